package challenge

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/pendergraft/holdergate/internal/storage"
)

// Store is the subset of storage the manager needs.
type Store interface {
	PutChallenge(ctx context.Context, ch *storage.Challenge) error
	GetChallenge(ctx context.Context, userID string) (*storage.Challenge, error)
	DeleteChallenge(ctx context.Context, userID string) error
}

// Manager owns the challenge lifecycle: one challenge per user, resumed while
// unverified so a user who re-requests before paying gets the same amount.
type Manager struct {
	store  Store
	logger *slog.Logger
}

// NewManager creates a challenge manager
func NewManager(store Store, logger *slog.Logger) *Manager {
	return &Manager{store: store, logger: logger}
}

// CreateOrResume returns the user's active challenge. An existing unverified
// challenge is resumed with the same amount; only the claimed wallet is
// updated. A verified or absent challenge yields a fresh amount. The second
// return reports whether an existing challenge was resumed.
func (m *Manager) CreateOrResume(ctx context.Context, userID, claimedWallet string) (*storage.Challenge, bool, error) {
	existing, err := m.store.GetChallenge(ctx, userID)
	if err != nil && !errors.Is(err, storage.ErrNotFound) {
		return nil, false, err
	}
	if existing != nil && !existing.Verified {
		if existing.ClaimedWallet != claimedWallet {
			existing.ClaimedWallet = claimedWallet
			if err := m.store.PutChallenge(ctx, existing); err != nil {
				return nil, false, err
			}
		}
		return existing, true, nil
	}

	amount, baseUnits, err := GenerateAmount()
	if err != nil {
		return nil, false, err
	}
	ch := &storage.Challenge{
		UserID:          userID,
		ClaimedWallet:   claimedWallet,
		Amount:          amount,
		AmountBaseUnits: baseUnits,
		CreatedAt:       time.Now().UTC(),
	}
	if err := m.store.PutChallenge(ctx, ch); err != nil {
		return nil, false, err
	}
	m.logger.Info("challenge issued", "user_id", userID, "amount", amount)
	return ch, false, nil
}

// FindByUser returns the user's challenge or storage.ErrNotFound.
func (m *Manager) FindByUser(ctx context.Context, userID string) (*storage.Challenge, error) {
	return m.store.GetChallenge(ctx, userID)
}

// MarkVerified records a successful verification on the challenge. Returns
// storage.ErrNotFound when no challenge exists for the user.
func (m *Manager) MarkVerified(ctx context.Context, userID string, result *storage.VerificationResult) (*storage.Challenge, error) {
	ch, err := m.store.GetChallenge(ctx, userID)
	if err != nil {
		return nil, err
	}
	now := time.Now().UTC()
	ch.Verified = true
	ch.VerifiedAt = &now
	ch.Result = result
	if err := m.store.PutChallenge(ctx, ch); err != nil {
		return nil, err
	}
	return ch, nil
}

// RemoveByUser deletes the user's challenge if any.
func (m *Manager) RemoveByUser(ctx context.Context, userID string) error {
	return m.store.DeleteChallenge(ctx, userID)
}
