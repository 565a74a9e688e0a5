package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"

	_ "github.com/jackc/pgx/v5/stdlib"
)

// PostgresStore implements Store using PostgreSQL
type PostgresStore struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewPostgresStore creates a new Postgres store
func NewPostgresStore(url string, logger *slog.Logger) (*PostgresStore, error) {
	db, err := sql.Open("pgx", url)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	return &PostgresStore{db: db, logger: logger}, nil
}

// Close closes the database connection
func (s *PostgresStore) Close() error {
	return s.db.Close()
}

// Healthy pings the database
func (s *PostgresStore) Healthy(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Durable reports true: records survive restarts
func (s *PostgresStore) Durable() bool { return true }

// Migrate runs database migrations
func (s *PostgresStore) Migrate(ctx context.Context) error {
	schema := `
	-- Users
	CREATE TABLE IF NOT EXISTS users (
		id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
		user_id TEXT NOT NULL UNIQUE,
		username TEXT NOT NULL,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		last_updated TIMESTAMPTZ NOT NULL DEFAULT NOW()
	);

	-- Per-network verifications
	CREATE TABLE IF NOT EXISTS verifications (
		id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
		user_ref UUID REFERENCES users(id) ON DELETE CASCADE,
		network TEXT NOT NULL,
		wallet_address TEXT NOT NULL,
		verified_at TIMESTAMPTZ NOT NULL,
		result JSONB NOT NULL,
		UNIQUE(user_ref, network)
	);

	-- Challenges, one per user
	CREATE TABLE IF NOT EXISTS challenges (
		user_id TEXT PRIMARY KEY,
		claimed_wallet TEXT NOT NULL,
		amount TEXT NOT NULL,
		amount_base_units TEXT NOT NULL,
		created_at TIMESTAMPTZ NOT NULL,
		verified BOOLEAN DEFAULT FALSE,
		verified_at TIMESTAMPTZ,
		result JSONB
	);

	-- API keys
	CREATE TABLE IF NOT EXISTS api_keys (
		id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
		key_hash TEXT NOT NULL UNIQUE,
		name TEXT NOT NULL,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		last_used_at TIMESTAMPTZ,
		revoked_at TIMESTAMPTZ
	);

	-- Indexes
	CREATE INDEX IF NOT EXISTS idx_verifications_user ON verifications(user_ref);
	CREATE INDEX IF NOT EXISTS idx_verifications_network ON verifications(network);
	`

	_, err := s.db.ExecContext(ctx, schema)
	if err != nil {
		return fmt.Errorf("running migrations: %w", err)
	}

	s.logger.Info("database migrations complete")
	return nil
}

// PutChallenge stores a challenge record, replacing any existing one for the user
func (s *PostgresStore) PutChallenge(ctx context.Context, ch *Challenge) error {
	result, err := encodeResult(ch.Result)
	if err != nil {
		return err
	}
	query := `
		INSERT INTO challenges (user_id, claimed_wallet, amount, amount_base_units, created_at, verified, verified_at, result)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (user_id) DO UPDATE SET
			claimed_wallet = EXCLUDED.claimed_wallet,
			amount = EXCLUDED.amount,
			amount_base_units = EXCLUDED.amount_base_units,
			created_at = EXCLUDED.created_at,
			verified = EXCLUDED.verified,
			verified_at = EXCLUDED.verified_at,
			result = EXCLUDED.result
	`
	var verifiedAt any
	if ch.VerifiedAt != nil {
		verifiedAt = ch.VerifiedAt.UTC()
	}
	_, err = s.db.ExecContext(ctx, query,
		ch.UserID, ch.ClaimedWallet, ch.Amount, ch.AmountBaseUnits,
		ch.CreatedAt.UTC(), ch.Verified, verifiedAt, result,
	)
	return err
}

// GetChallenge retrieves the challenge record for a user
func (s *PostgresStore) GetChallenge(ctx context.Context, userID string) (*Challenge, error) {
	query := `
		SELECT user_id, claimed_wallet, amount, amount_base_units, created_at, verified, verified_at, result
		FROM challenges
		WHERE user_id = $1
	`
	var ch Challenge
	var verifiedAt sql.NullTime
	var result sql.NullString
	err := s.db.QueryRowContext(ctx, query, userID).Scan(
		&ch.UserID, &ch.ClaimedWallet, &ch.Amount, &ch.AmountBaseUnits,
		&ch.CreatedAt, &ch.Verified, &verifiedAt, &result,
	)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if verifiedAt.Valid {
		t := verifiedAt.Time.UTC()
		ch.VerifiedAt = &t
	}
	ch.Result, err = decodeResultPtr(result)
	return &ch, err
}

// DeleteChallenge removes the challenge record for a user
func (s *PostgresStore) DeleteChallenge(ctx context.Context, userID string) error {
	_, err := s.db.ExecContext(ctx, "DELETE FROM challenges WHERE user_id = $1", userID)
	return err
}

// SaveUser creates or updates the user record, preserving verifications
func (s *PostgresStore) SaveUser(ctx context.Context, userID, username string) error {
	query := `
		INSERT INTO users (user_id, username)
		VALUES ($1, $2)
		ON CONFLICT (user_id) DO UPDATE SET
			username = EXCLUDED.username,
			last_updated = NOW()
	`
	_, err := s.db.ExecContext(ctx, query, userID, username)
	return err
}

// GetUser retrieves a user record with its verifications
func (s *PostgresStore) GetUser(ctx context.Context, userID string) (*User, error) {
	var u User
	var ref string
	err := s.db.QueryRowContext(ctx,
		"SELECT id, user_id, username, created_at, last_updated FROM users WHERE user_id = $1", userID,
	).Scan(&ref, &u.UserID, &u.Username, &u.CreatedAt, &u.LastUpdated)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	u.Verifications = make(map[string]NetworkVerification)

	rows, err := s.db.QueryContext(ctx,
		"SELECT network, wallet_address, verified_at, result FROM verifications WHERE user_ref = $1", ref,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var v NetworkVerification
		var result []byte
		if err := rows.Scan(&v.Network, &v.WalletAddress, &v.VerifiedAt, &result); err != nil {
			return nil, err
		}
		if err := json.Unmarshal(result, &v.Result); err != nil {
			return nil, fmt.Errorf("decoding verification result: %w", err)
		}
		u.Verifications[v.Network] = v
	}
	return &u, rows.Err()
}

// DeleteUser removes a user record; verifications cascade
func (s *PostgresStore) DeleteUser(ctx context.Context, userID string) error {
	_, err := s.db.ExecContext(ctx, "DELETE FROM users WHERE user_id = $1", userID)
	return err
}

// UpsertVerification replaces the verification record for a (user, network) pair
func (s *PostgresStore) UpsertVerification(ctx context.Context, userID string, v NetworkVerification) error {
	var ref string
	err := s.db.QueryRowContext(ctx, "SELECT id FROM users WHERE user_id = $1", userID).Scan(&ref)
	if err == sql.ErrNoRows {
		return ErrNotFound
	}
	if err != nil {
		return err
	}

	result, err := json.Marshal(v.Result)
	if err != nil {
		return fmt.Errorf("encoding verification result: %w", err)
	}
	query := `
		INSERT INTO verifications (user_ref, network, wallet_address, verified_at, result)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (user_ref, network) DO UPDATE SET
			wallet_address = EXCLUDED.wallet_address,
			verified_at = EXCLUDED.verified_at,
			result = EXCLUDED.result
	`
	if _, err := s.db.ExecContext(ctx, query, ref, v.Network, v.WalletAddress, v.VerifiedAt.UTC(), result); err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, "UPDATE users SET last_updated = NOW() WHERE id = $1", ref)
	return err
}

// Stats returns aggregate counts
func (s *PostgresStore) Stats(ctx context.Context) (*Stats, error) {
	stats := &Stats{VerifiedByNetwork: make(map[string]int)}

	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM users").Scan(&stats.TotalUsers); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, "SELECT network, COUNT(*) FROM verifications GROUP BY network")
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var network string
		var count int
		if err := rows.Scan(&network, &count); err != nil {
			return nil, err
		}
		stats.VerifiedByNetwork[network] = count
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	var last sql.NullTime
	if err := s.db.QueryRowContext(ctx, "SELECT MAX(verified_at) FROM verifications").Scan(&last); err != nil {
		return nil, err
	}
	if last.Valid {
		t := last.Time.UTC()
		stats.LastVerifiedAt = &t
	}
	return stats, nil
}

// CreateAPIKey creates a new API key
func (s *PostgresStore) CreateAPIKey(ctx context.Context, name string) (string, error) {
	key := generateAPIKey()
	_, err := s.db.ExecContext(ctx,
		"INSERT INTO api_keys (key_hash, name) VALUES ($1, $2)",
		hashAPIKey(key), name,
	)
	if err != nil {
		return "", err
	}
	return key, nil
}

// ValidateAPIKey validates an API key
func (s *PostgresStore) ValidateAPIKey(ctx context.Context, key string) (*APIKey, error) {
	hash := hashAPIKey(key)
	var ak APIKey
	err := s.db.QueryRowContext(ctx,
		"SELECT id, key_hash, name, created_at FROM api_keys WHERE key_hash = $1 AND revoked_at IS NULL", hash,
	).Scan(&ak.ID, &ak.KeyHash, &ak.Name, &ak.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	// Update last used
	_, _ = s.db.ExecContext(ctx, "UPDATE api_keys SET last_used_at = NOW() WHERE id = $1", ak.ID)
	return &ak, nil
}

// ListAPIKeys lists all active API keys
func (s *PostgresStore) ListAPIKeys(ctx context.Context) ([]APIKey, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT id, name, created_at, last_used_at FROM api_keys WHERE revoked_at IS NULL",
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var keys []APIKey
	for rows.Next() {
		var k APIKey
		var lastUsed sql.NullTime
		if err := rows.Scan(&k.ID, &k.Name, &k.CreatedAt, &lastUsed); err != nil {
			return nil, err
		}
		if lastUsed.Valid {
			t := lastUsed.Time.UTC()
			k.LastUsedAt = &t
		}
		keys = append(keys, k)
	}
	return keys, rows.Err()
}

// RevokeAPIKey revokes an API key
func (s *PostgresStore) RevokeAPIKey(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, "UPDATE api_keys SET revoked_at = NOW() WHERE id = $1 AND revoked_at IS NULL", id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
