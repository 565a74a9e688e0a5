package storage

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJSONFileStoreSurvivesRestart(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "store.json")

	s, err := NewJSONFileStore(path, testLogger())
	require.NoError(t, err)

	require.NoError(t, s.SaveUser(ctx, "123", "alice"))
	require.NoError(t, s.UpsertVerification(ctx, "123", NetworkVerification{
		Network:       "ethereum",
		WalletAddress: "0x1111111111111111111111111111111111111111",
		VerifiedAt:    time.Now().UTC().Truncate(time.Second),
		Result:        VerificationResult{Verified: true, Method: "direct-ownership", OwnedCount: 1},
	}))
	require.NoError(t, s.PutChallenge(ctx, &Challenge{
		UserID:          "456",
		ClaimedWallet:   "0x2222222222222222222222222222222222222222",
		Amount:          "0.0000000101",
		AmountBaseUnits: "10100000000",
		CreatedAt:       time.Now().UTC().Truncate(time.Second),
	}))
	key, err := s.CreateAPIKey(ctx, "ops")
	require.NoError(t, err)
	require.NoError(t, s.Close())

	// A fresh store over the same file sees everything.
	s2, err := NewJSONFileStore(path, testLogger())
	require.NoError(t, err)

	u, err := s2.GetUser(ctx, "123")
	require.NoError(t, err)
	assert.Equal(t, "alice", u.Username)
	assert.Equal(t, "direct-ownership", u.Verifications["ethereum"].Result.Method)

	ch, err := s2.GetChallenge(ctx, "456")
	require.NoError(t, err)
	assert.Equal(t, "10100000000", ch.AmountBaseUnits)

	_, err = s2.ValidateAPIKey(ctx, key)
	require.NoError(t, err)

	assert.True(t, s2.Durable())
}

func TestJSONFileStoreMissingFileStartsEmpty(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "store.json")

	s, err := NewJSONFileStore(path, testLogger())
	require.NoError(t, err)

	_, err = s.GetUser(ctx, "123")
	assert.ErrorIs(t, err, ErrNotFound)

	// Nothing flushed yet, so nothing on disk either.
	_, err = os.Stat(path)
	assert.True(t, os.IsNotExist(err))
}

func TestJSONFileStoreRejectsCorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "store.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0600))

	_, err := NewJSONFileStore(path, testLogger())
	require.Error(t, err)
}

func TestJSONFileStoreDeleteFlushes(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "store.json")

	s, err := NewJSONFileStore(path, testLogger())
	require.NoError(t, err)
	require.NoError(t, s.SaveUser(ctx, "123", "alice"))
	require.NoError(t, s.DeleteUser(ctx, "123"))

	s2, err := NewJSONFileStore(path, testLogger())
	require.NoError(t, err)
	_, err = s2.GetUser(ctx, "123")
	assert.ErrorIs(t, err, ErrNotFound)
}
