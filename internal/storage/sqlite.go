package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// SQLiteStore implements Store using SQLite
type SQLiteStore struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewSQLiteStore creates a new SQLite store
func NewSQLiteStore(path string, logger *slog.Logger) (*SQLiteStore, error) {
	// Ensure directory exists
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("creating data directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	// Enable WAL mode for better concurrency
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		return nil, fmt.Errorf("enabling WAL mode: %w", err)
	}

	// Enable foreign keys
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		return nil, fmt.Errorf("enabling foreign keys: %w", err)
	}

	return &SQLiteStore{db: db, logger: logger}, nil
}

// Close closes the database connection
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Healthy pings the database
func (s *SQLiteStore) Healthy(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Durable reports true: records survive restarts
func (s *SQLiteStore) Durable() bool { return true }

// Migrate runs database migrations
func (s *SQLiteStore) Migrate(ctx context.Context) error {
	schema := `
	-- Users
	CREATE TABLE IF NOT EXISTS users (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL UNIQUE,
		username TEXT NOT NULL,
		created_at TEXT NOT NULL,
		last_updated TEXT NOT NULL
	);

	-- Per-network verifications
	CREATE TABLE IF NOT EXISTS verifications (
		id TEXT PRIMARY KEY,
		user_ref TEXT REFERENCES users(id) ON DELETE CASCADE,
		network TEXT NOT NULL,
		wallet_address TEXT NOT NULL,
		verified_at TEXT NOT NULL,
		result TEXT NOT NULL,
		UNIQUE(user_ref, network)
	);

	-- Challenges, one per user
	CREATE TABLE IF NOT EXISTS challenges (
		user_id TEXT PRIMARY KEY,
		claimed_wallet TEXT NOT NULL,
		amount TEXT NOT NULL,
		amount_base_units TEXT NOT NULL,
		created_at TEXT NOT NULL,
		verified INTEGER DEFAULT 0,
		verified_at TEXT,
		result TEXT
	);

	-- API keys
	CREATE TABLE IF NOT EXISTS api_keys (
		id TEXT PRIMARY KEY,
		key_hash TEXT NOT NULL UNIQUE,
		name TEXT NOT NULL,
		created_at TEXT NOT NULL,
		last_used_at TEXT,
		revoked_at TEXT
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
func (s *SQLiteStore) PutChallenge(ctx context.Context, ch *Challenge) error {
	result, err := encodeResult(ch.Result)
	if err != nil {
		return err
	}
	query := `
		INSERT INTO challenges (user_id, claimed_wallet, amount, amount_base_units, created_at, verified, verified_at, result)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(user_id) DO UPDATE SET
			claimed_wallet = excluded.claimed_wallet,
			amount = excluded.amount,
			amount_base_units = excluded.amount_base_units,
			created_at = excluded.created_at,
			verified = excluded.verified,
			verified_at = excluded.verified_at,
			result = excluded.result
	`
	_, err = s.db.ExecContext(ctx, query,
		ch.UserID, ch.ClaimedWallet, ch.Amount, ch.AmountBaseUnits,
		formatTime(ch.CreatedAt), ch.Verified, nullableTime(ch.VerifiedAt), result,
	)
	return err
}

// GetChallenge retrieves the challenge record for a user
func (s *SQLiteStore) GetChallenge(ctx context.Context, userID string) (*Challenge, error) {
	query := `
		SELECT user_id, claimed_wallet, amount, amount_base_units, created_at, verified, verified_at, result
		FROM challenges
		WHERE user_id = ?
	`
	var ch Challenge
	var createdAt string
	var verifiedAt, result sql.NullString
	err := s.db.QueryRowContext(ctx, query, userID).Scan(
		&ch.UserID, &ch.ClaimedWallet, &ch.Amount, &ch.AmountBaseUnits,
		&createdAt, &ch.Verified, &verifiedAt, &result,
	)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	ch.CreatedAt = parseTime(createdAt)
	ch.VerifiedAt = timePtr(verifiedAt)
	ch.Result, err = decodeResultPtr(result)
	return &ch, err
}

// DeleteChallenge removes the challenge record for a user
func (s *SQLiteStore) DeleteChallenge(ctx context.Context, userID string) error {
	_, err := s.db.ExecContext(ctx, "DELETE FROM challenges WHERE user_id = ?", userID)
	return err
}

// SaveUser creates or updates the user record, preserving verifications
func (s *SQLiteStore) SaveUser(ctx context.Context, userID, username string) error {
	now := formatTime(time.Now())
	query := `
		INSERT INTO users (id, user_id, username, created_at, last_updated)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(user_id) DO UPDATE SET
			username = excluded.username,
			last_updated = excluded.last_updated
	`
	_, err := s.db.ExecContext(ctx, query, generateID(), userID, username, now, now)
	return err
}

// GetUser retrieves a user record with its verifications
func (s *SQLiteStore) GetUser(ctx context.Context, userID string) (*User, error) {
	var u User
	var ref, createdAt, lastUpdated string
	err := s.db.QueryRowContext(ctx,
		"SELECT id, user_id, username, created_at, last_updated FROM users WHERE user_id = ?", userID,
	).Scan(&ref, &u.UserID, &u.Username, &createdAt, &lastUpdated)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	u.CreatedAt = parseTime(createdAt)
	u.LastUpdated = parseTime(lastUpdated)
	u.Verifications = make(map[string]NetworkVerification)

	rows, err := s.db.QueryContext(ctx,
		"SELECT network, wallet_address, verified_at, result FROM verifications WHERE user_ref = ?", ref,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var v NetworkVerification
		var verifiedAt, result string
		if err := rows.Scan(&v.Network, &v.WalletAddress, &verifiedAt, &result); err != nil {
			return nil, err
		}
		v.VerifiedAt = parseTime(verifiedAt)
		if err := json.Unmarshal([]byte(result), &v.Result); err != nil {
			return nil, fmt.Errorf("decoding verification result: %w", err)
		}
		u.Verifications[v.Network] = v
	}
	return &u, rows.Err()
}

// DeleteUser removes a user record; verifications cascade
func (s *SQLiteStore) DeleteUser(ctx context.Context, userID string) error {
	_, err := s.db.ExecContext(ctx, "DELETE FROM users WHERE user_id = ?", userID)
	return err
}

// UpsertVerification replaces the verification record for a (user, network) pair
func (s *SQLiteStore) UpsertVerification(ctx context.Context, userID string, v NetworkVerification) error {
	var ref string
	err := s.db.QueryRowContext(ctx, "SELECT id FROM users WHERE user_id = ?", userID).Scan(&ref)
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
		INSERT INTO verifications (id, user_ref, network, wallet_address, verified_at, result)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(user_ref, network) DO UPDATE SET
			wallet_address = excluded.wallet_address,
			verified_at = excluded.verified_at,
			result = excluded.result
	`
	if _, err := s.db.ExecContext(ctx, query, generateID(), ref, v.Network, v.WalletAddress, formatTime(v.VerifiedAt), string(result)); err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, "UPDATE users SET last_updated = ? WHERE id = ?", formatTime(time.Now()), ref)
	return err
}

// Stats returns aggregate counts
func (s *SQLiteStore) Stats(ctx context.Context) (*Stats, error) {
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

	// RFC3339 UTC strings order lexicographically, so MAX is the latest.
	var last sql.NullString
	if err := s.db.QueryRowContext(ctx, "SELECT MAX(verified_at) FROM verifications").Scan(&last); err != nil {
		return nil, err
	}
	stats.LastVerifiedAt = timePtr(last)
	return stats, nil
}

// CreateAPIKey creates a new API key
func (s *SQLiteStore) CreateAPIKey(ctx context.Context, name string) (string, error) {
	key := generateAPIKey()
	_, err := s.db.ExecContext(ctx,
		"INSERT INTO api_keys (id, key_hash, name, created_at) VALUES (?, ?, ?, ?)",
		generateID(), hashAPIKey(key), name, formatTime(time.Now()),
	)
	if err != nil {
		return "", err
	}
	return key, nil
}

// ValidateAPIKey validates an API key
func (s *SQLiteStore) ValidateAPIKey(ctx context.Context, key string) (*APIKey, error) {
	hash := hashAPIKey(key)
	var ak APIKey
	var createdAt string
	err := s.db.QueryRowContext(ctx,
		"SELECT id, key_hash, name, created_at FROM api_keys WHERE key_hash = ? AND revoked_at IS NULL", hash,
	).Scan(&ak.ID, &ak.KeyHash, &ak.Name, &createdAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	ak.CreatedAt = parseTime(createdAt)
	// Update last used
	_, _ = s.db.ExecContext(ctx, "UPDATE api_keys SET last_used_at = ? WHERE id = ?", formatTime(time.Now()), ak.ID)
	return &ak, nil
}

// ListAPIKeys lists all active API keys
func (s *SQLiteStore) ListAPIKeys(ctx context.Context) ([]APIKey, error) {
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
		var createdAt string
		var lastUsed sql.NullString
		if err := rows.Scan(&k.ID, &k.Name, &createdAt, &lastUsed); err != nil {
			return nil, err
		}
		k.CreatedAt = parseTime(createdAt)
		k.LastUsedAt = timePtr(lastUsed)
		keys = append(keys, k)
	}
	return keys, rows.Err()
}

// RevokeAPIKey revokes an API key
func (s *SQLiteStore) RevokeAPIKey(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, "UPDATE api_keys SET revoked_at = ? WHERE id = ? AND revoked_at IS NULL", formatTime(time.Now()), id)
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
