package storage

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/pendergraft/holdergate/internal/config"
)

// ChallengeStore handles challenge record operations, keyed by user id.
type ChallengeStore interface {
	PutChallenge(ctx context.Context, ch *Challenge) error
	GetChallenge(ctx context.Context, userID string) (*Challenge, error)
	DeleteChallenge(ctx context.Context, userID string) error
}

// UserStore handles user record and per-network verification operations.
type UserStore interface {
	// SaveUser creates the user record if absent and always overwrites the
	// username and last-updated stamp. Existing verifications are preserved.
	SaveUser(ctx context.Context, userID, username string) error
	GetUser(ctx context.Context, userID string) (*User, error)
	DeleteUser(ctx context.Context, userID string) error

	// UpsertVerification replaces the verification record for the
	// (user, network) pair entirely. Returns ErrNotFound when no user record
	// exists.
	UpsertVerification(ctx context.Context, userID string, v NetworkVerification) error

	Stats(ctx context.Context) (*Stats, error)
}

// APIKeyStore handles operator API key operations
type APIKeyStore interface {
	CreateAPIKey(ctx context.Context, name string) (key string, err error)
	ValidateAPIKey(ctx context.Context, key string) (*APIKey, error)
	ListAPIKeys(ctx context.Context) ([]APIKey, error)
	RevokeAPIKey(ctx context.Context, id string) error
}

// Store combines all storage interfaces with lifecycle methods.
// Domain services define their own minimal interfaces based on their actual usage.
type Store interface {
	ChallengeStore
	UserStore
	APIKeyStore

	// Lifecycle
	Close() error
	Migrate(ctx context.Context) error
	Healthy(ctx context.Context) error

	// Durable reports whether records survive a process restart. The
	// in-memory fallback store reports false so operators can see that
	// persistence degraded.
	Durable() bool
}

// Challenge is the persisted challenge record for one user. The amount and its
// base-unit form are generated once and never recomputed; the base-unit string
// is what the transaction scanner matches against.
type Challenge struct {
	UserID          string              `json:"userId"`
	ClaimedWallet   string              `json:"claimedWallet"`
	Amount          string              `json:"challengeAmount"`
	AmountBaseUnits string              `json:"challengeAmountBaseUnits"`
	CreatedAt       time.Time           `json:"createdAt"`
	Verified        bool                `json:"verified"`
	VerifiedAt      *time.Time          `json:"verifiedAt,omitempty"`
	Result          *VerificationResult `json:"verificationResult,omitempty"`
}

// NetworkVerification records a successful ownership verification on one
// network. At most one exists per (user, network) pair.
type NetworkVerification struct {
	Network       string             `json:"network"`
	WalletAddress string             `json:"walletAddress"`
	VerifiedAt    time.Time          `json:"verifiedAt"`
	Result        VerificationResult `json:"verificationResult"`
}

// VerificationResult is the persisted outcome of an ownership check.
type VerificationResult struct {
	Verified       bool     `json:"verified"`
	Method         string   `json:"method"`
	OwnedCount     int      `json:"ownedCount"`
	StakedCount    int      `json:"stakedCount,omitempty"`
	StakedTokenIDs []string `json:"stakedTokenIds,omitempty"`
	Collection     string   `json:"collection,omitempty"`
	Error          string   `json:"error,omitempty"`
}

// User is the persisted user record.
type User struct {
	UserID        string                         `json:"userId"`
	Username      string                         `json:"username"`
	CreatedAt     time.Time                      `json:"createdAt"`
	LastUpdated   time.Time                      `json:"lastUpdated"`
	Verifications map[string]NetworkVerification `json:"verifications"`
}

// APIKey represents an operator API key. Only the hash of the key material is
// ever stored.
type APIKey struct {
	ID         string     `json:"id"`
	Name       string     `json:"name"`
	KeyHash    string     `json:"keyHash"`
	CreatedAt  time.Time  `json:"createdAt"`
	LastUsedAt *time.Time `json:"lastUsedAt,omitempty"`
	RevokedAt  *time.Time `json:"revokedAt,omitempty"`
}

// Stats holds aggregate counts for the stats endpoint.
type Stats struct {
	TotalUsers        int            `json:"totalUsers"`
	VerifiedByNetwork map[string]int `json:"verifiedByNetwork"`
	LastVerifiedAt    *time.Time     `json:"lastVerifiedAt,omitempty"`
}

// New creates a store based on configuration. Backend selection happens once
// here: if the configured durable backend fails to initialize, New falls back
// to the in-memory store and logs the degradation rather than aborting, so the
// service stays responsive without persistence.
func New(cfg config.StorageConfig, logger *slog.Logger) (Store, error) {
	switch cfg.Type {
	case "sqlite", "postgres", "jsonfile", "memory":
	default:
		return nil, fmt.Errorf("unknown storage type: %s", cfg.Type)
	}

	s, err := newBackend(cfg, logger)
	if err == nil {
		return s, nil
	}
	logger.Error("durable storage unavailable, falling back to in-memory store",
		"type", cfg.Type,
		"error", err,
	)
	return NewMemoryStore(logger), nil
}

func newBackend(cfg config.StorageConfig, logger *slog.Logger) (Store, error) {
	switch cfg.Type {
	case "sqlite":
		return NewSQLiteStore(cfg.SQLite.Path, logger)
	case "postgres":
		return NewPostgresStore(cfg.Postgres.URL, logger)
	case "jsonfile":
		return NewJSONFileStore(cfg.JSONFile.Path, logger)
	case "memory":
		return NewMemoryStore(logger), nil
	default:
		return nil, fmt.Errorf("unknown storage type: %s", cfg.Type)
	}
}
