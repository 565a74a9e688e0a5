package auth

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pendergraft/holdergate/internal/storage"
)

type mockAPIKeyStore struct {
	keys map[string]*storage.APIKey
}

func (m *mockAPIKeyStore) CreateAPIKey(ctx context.Context, name string) (string, error) {
	return "", nil
}

func (m *mockAPIKeyStore) ValidateAPIKey(ctx context.Context, key string) (*storage.APIKey, error) {
	if apiKey, ok := m.keys[key]; ok {
		return apiKey, nil
	}
	return nil, storage.ErrNotFound
}

func (m *mockAPIKeyStore) ListAPIKeys(ctx context.Context) ([]storage.APIKey, error) {
	return nil, nil
}

func (m *mockAPIKeyStore) RevokeAPIKey(ctx context.Context, id string) error {
	return nil
}

func statusOnlyError(w http.ResponseWriter, status int, code, message string) {
	w.WriteHeader(status)
}

func TestMiddleware_ValidKey(t *testing.T) {
	store := &mockAPIKeyStore{
		keys: map[string]*storage.APIKey{
			"hg_key_valid": {ID: "key-123", Name: "ops"},
		},
	}

	var capturedCtx context.Context
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		capturedCtx = r.Context()
		w.WriteHeader(http.StatusOK)
	})

	req := httptest.NewRequest("POST", "/reset", nil)
	req.Header.Set("X-API-Key", "hg_key_valid")
	rec := httptest.NewRecorder()

	Middleware(store, statusOnlyError)(handler).ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	apiKey := GetAPIKeyFromContext(capturedCtx)
	require.NotNil(t, apiKey)
	assert.Equal(t, "key-123", apiKey.ID)
}

func TestMiddleware_InvalidKey(t *testing.T) {
	store := &mockAPIKeyStore{keys: map[string]*storage.APIKey{}}

	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	req := httptest.NewRequest("POST", "/reset", nil)
	req.Header.Set("X-API-Key", "hg_key_invalid")
	rec := httptest.NewRecorder()

	Middleware(store, statusOnlyError)(handler).ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestMiddleware_MissingKey(t *testing.T) {
	store := &mockAPIKeyStore{keys: map[string]*storage.APIKey{}}

	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	req := httptest.NewRequest("POST", "/reset", nil)
	rec := httptest.NewRecorder()

	Middleware(store, statusOnlyError)(handler).ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestMiddleware_BearerToken(t *testing.T) {
	store := &mockAPIKeyStore{
		keys: map[string]*storage.APIKey{
			"hg_key_bearer": {ID: "key-456", Name: "bearer"},
		},
	}

	var capturedCtx context.Context
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		capturedCtx = r.Context()
		w.WriteHeader(http.StatusOK)
	})

	req := httptest.NewRequest("POST", "/reset", nil)
	req.Header.Set("Authorization", "Bearer hg_key_bearer")
	rec := httptest.NewRecorder()

	Middleware(store, statusOnlyError)(handler).ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	apiKey := GetAPIKeyFromContext(capturedCtx)
	require.NotNil(t, apiKey)
	assert.Equal(t, "key-456", apiKey.ID)
}
