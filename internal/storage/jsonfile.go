package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
)

// jsonData is the on-disk shape of the JSON file backend. Field names match
// the record shapes used by the SQL backends.
type jsonData struct {
	Users      map[string]*User      `json:"users"`
	Challenges map[string]*Challenge `json:"challenges"`
	APIKeys    map[string]*APIKey    `json:"apiKeys"`
}

// JSONFileStore implements Store with a single JSON file. Every mutation
// rewrites the whole file through a temp-file rename, which gives whole-file
// write granularity: concurrent requests for different users serialize on the
// flush mutex but never corrupt unrelated records.
type JSONFileStore struct {
	mem     *MemoryStore
	path    string
	flushMu sync.Mutex
	logger  *slog.Logger
}

// NewJSONFileStore opens or creates a JSON file store at path
func NewJSONFileStore(path string, logger *slog.Logger) (*JSONFileStore, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("creating data directory: %w", err)
	}

	s := &JSONFileStore{
		mem:    NewMemoryStore(logger),
		path:   path,
		logger: logger,
	}

	raw, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return s, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading store file: %w", err)
	}
	var data jsonData
	if err := json.Unmarshal(raw, &data); err != nil {
		return nil, fmt.Errorf("parsing store file %s: %w", path, err)
	}
	s.mem.restore(&data)
	return s, nil
}

// Close is a no-op; every mutation is flushed eagerly
func (s *JSONFileStore) Close() error { return nil }

// Migrate is a no-op for the JSON file store
func (s *JSONFileStore) Migrate(ctx context.Context) error { return nil }

// Healthy verifies the data directory is still writable
func (s *JSONFileStore) Healthy(ctx context.Context) error {
	_, err := os.Stat(filepath.Dir(s.path))
	return err
}

// Durable reports true: the file survives restarts
func (s *JSONFileStore) Durable() bool { return true }

// flush writes the current contents atomically (temp file + rename).
func (s *JSONFileStore) flush() error {
	s.flushMu.Lock()
	defer s.flushMu.Unlock()

	data, err := json.MarshalIndent(s.mem.snapshot(), "", "  ")
	if err != nil {
		return fmt.Errorf("encoding store file: %w", err)
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0600); err != nil {
		return fmt.Errorf("writing store file: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("replacing store file: %w", err)
	}
	return nil
}

func (s *JSONFileStore) PutChallenge(ctx context.Context, ch *Challenge) error {
	if err := s.mem.PutChallenge(ctx, ch); err != nil {
		return err
	}
	return s.flush()
}

func (s *JSONFileStore) GetChallenge(ctx context.Context, userID string) (*Challenge, error) {
	return s.mem.GetChallenge(ctx, userID)
}

func (s *JSONFileStore) DeleteChallenge(ctx context.Context, userID string) error {
	if err := s.mem.DeleteChallenge(ctx, userID); err != nil {
		return err
	}
	return s.flush()
}

func (s *JSONFileStore) SaveUser(ctx context.Context, userID, username string) error {
	if err := s.mem.SaveUser(ctx, userID, username); err != nil {
		return err
	}
	return s.flush()
}

func (s *JSONFileStore) GetUser(ctx context.Context, userID string) (*User, error) {
	return s.mem.GetUser(ctx, userID)
}

func (s *JSONFileStore) DeleteUser(ctx context.Context, userID string) error {
	if err := s.mem.DeleteUser(ctx, userID); err != nil {
		return err
	}
	return s.flush()
}

func (s *JSONFileStore) UpsertVerification(ctx context.Context, userID string, v NetworkVerification) error {
	if err := s.mem.UpsertVerification(ctx, userID, v); err != nil {
		return err
	}
	return s.flush()
}

func (s *JSONFileStore) Stats(ctx context.Context) (*Stats, error) {
	return s.mem.Stats(ctx)
}

func (s *JSONFileStore) CreateAPIKey(ctx context.Context, name string) (string, error) {
	key, err := s.mem.CreateAPIKey(ctx, name)
	if err != nil {
		return "", err
	}
	return key, s.flush()
}

func (s *JSONFileStore) ValidateAPIKey(ctx context.Context, key string) (*APIKey, error) {
	// Last-used stamps are not worth a full-file rewrite per request.
	return s.mem.ValidateAPIKey(ctx, key)
}

func (s *JSONFileStore) ListAPIKeys(ctx context.Context) ([]APIKey, error) {
	return s.mem.ListAPIKeys(ctx)
}

func (s *JSONFileStore) RevokeAPIKey(ctx context.Context, id string) error {
	if err := s.mem.RevokeAPIKey(ctx, id); err != nil {
		return err
	}
	return s.flush()
}
