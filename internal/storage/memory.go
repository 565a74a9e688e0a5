package storage

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// MemoryStore implements Store with process-local maps. It is the fallback
// backend when the configured durable backend fails to initialize, and the
// base for the JSON file backend.
type MemoryStore struct {
	mu         sync.RWMutex
	users      map[string]*User
	challenges map[string]*Challenge
	apiKeys    map[string]*APIKey
	logger     *slog.Logger
}

// NewMemoryStore creates a new in-memory store
func NewMemoryStore(logger *slog.Logger) *MemoryStore {
	return &MemoryStore{
		users:      make(map[string]*User),
		challenges: make(map[string]*Challenge),
		apiKeys:    make(map[string]*APIKey),
		logger:     logger,
	}
}

// Close is a no-op for the memory store
func (s *MemoryStore) Close() error { return nil }

// Migrate is a no-op for the memory store
func (s *MemoryStore) Migrate(ctx context.Context) error { return nil }

// Healthy always reports healthy for the memory store
func (s *MemoryStore) Healthy(ctx context.Context) error { return nil }

// Durable reports false: records do not survive a restart
func (s *MemoryStore) Durable() bool { return false }

// PutChallenge stores a challenge record keyed by user id
func (s *MemoryStore) PutChallenge(ctx context.Context, ch *Challenge) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.challenges[ch.UserID] = cloneChallenge(ch)
	return nil
}

// GetChallenge retrieves the challenge record for a user
func (s *MemoryStore) GetChallenge(ctx context.Context, userID string) (*Challenge, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ch, ok := s.challenges[userID]
	if !ok {
		return nil, ErrNotFound
	}
	return cloneChallenge(ch), nil
}

// DeleteChallenge removes the challenge record for a user
func (s *MemoryStore) DeleteChallenge(ctx context.Context, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.challenges, userID)
	return nil
}

// SaveUser creates or updates the user record
func (s *MemoryStore) SaveUser(ctx context.Context, userID, username string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now().UTC()
	u, ok := s.users[userID]
	if !ok {
		s.users[userID] = &User{
			UserID:        userID,
			Username:      username,
			CreatedAt:     now,
			LastUpdated:   now,
			Verifications: make(map[string]NetworkVerification),
		}
		return nil
	}
	u.Username = username
	u.LastUpdated = now
	return nil
}

// GetUser retrieves a user record
func (s *MemoryStore) GetUser(ctx context.Context, userID string) (*User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.users[userID]
	if !ok {
		return nil, ErrNotFound
	}
	return cloneUser(u), nil
}

// DeleteUser removes a user record and its verifications
func (s *MemoryStore) DeleteUser(ctx context.Context, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.users, userID)
	return nil
}

// UpsertVerification replaces the verification record for a (user, network) pair
func (s *MemoryStore) UpsertVerification(ctx context.Context, userID string, v NetworkVerification) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[userID]
	if !ok {
		return ErrNotFound
	}
	u.Verifications[v.Network] = v
	u.LastUpdated = time.Now().UTC()
	return nil
}

// Stats returns aggregate counts
func (s *MemoryStore) Stats(ctx context.Context) (*Stats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	stats := &Stats{
		TotalUsers:        len(s.users),
		VerifiedByNetwork: make(map[string]int),
	}
	for _, u := range s.users {
		for network, v := range u.Verifications {
			stats.VerifiedByNetwork[network]++
			if stats.LastVerifiedAt == nil || v.VerifiedAt.After(*stats.LastVerifiedAt) {
				t := v.VerifiedAt
				stats.LastVerifiedAt = &t
			}
		}
	}
	return stats, nil
}

// CreateAPIKey creates a new API key
func (s *MemoryStore) CreateAPIKey(ctx context.Context, name string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := generateAPIKey()
	id := generateID()
	s.apiKeys[id] = &APIKey{
		ID:        id,
		Name:      name,
		KeyHash:   hashAPIKey(key),
		CreatedAt: time.Now().UTC(),
	}
	return key, nil
}

// ValidateAPIKey validates an API key
func (s *MemoryStore) ValidateAPIKey(ctx context.Context, key string) (*APIKey, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	hash := hashAPIKey(key)
	for _, k := range s.apiKeys {
		if k.KeyHash == hash && k.RevokedAt == nil {
			now := time.Now().UTC()
			k.LastUsedAt = &now
			clone := *k
			return &clone, nil
		}
	}
	return nil, ErrNotFound
}

// ListAPIKeys lists all active API keys
func (s *MemoryStore) ListAPIKeys(ctx context.Context) ([]APIKey, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var keys []APIKey
	for _, k := range s.apiKeys {
		if k.RevokedAt == nil {
			keys = append(keys, *k)
		}
	}
	return keys, nil
}

// RevokeAPIKey revokes an API key
func (s *MemoryStore) RevokeAPIKey(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	k, ok := s.apiKeys[id]
	if !ok {
		return ErrNotFound
	}
	now := time.Now().UTC()
	k.RevokedAt = &now
	return nil
}

// snapshot copies the store contents for serialization by the JSON file backend.
func (s *MemoryStore) snapshot() *jsonData {
	s.mu.RLock()
	defer s.mu.RUnlock()
	data := &jsonData{
		Users:      make(map[string]*User, len(s.users)),
		Challenges: make(map[string]*Challenge, len(s.challenges)),
		APIKeys:    make(map[string]*APIKey, len(s.apiKeys)),
	}
	for id, u := range s.users {
		data.Users[id] = cloneUser(u)
	}
	for id, ch := range s.challenges {
		data.Challenges[id] = cloneChallenge(ch)
	}
	for id, k := range s.apiKeys {
		clone := *k
		data.APIKeys[id] = &clone
	}
	return data
}

// restore replaces the store contents from a deserialized snapshot.
func (s *MemoryStore) restore(data *jsonData) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if data.Users != nil {
		s.users = data.Users
	}
	if data.Challenges != nil {
		s.challenges = data.Challenges
	}
	if data.APIKeys != nil {
		s.apiKeys = data.APIKeys
	}
	for _, u := range s.users {
		if u.Verifications == nil {
			u.Verifications = make(map[string]NetworkVerification)
		}
	}
}

func cloneChallenge(ch *Challenge) *Challenge {
	clone := *ch
	if ch.VerifiedAt != nil {
		t := *ch.VerifiedAt
		clone.VerifiedAt = &t
	}
	if ch.Result != nil {
		r := *ch.Result
		r.StakedTokenIDs = append([]string(nil), ch.Result.StakedTokenIDs...)
		clone.Result = &r
	}
	return &clone
}

func cloneUser(u *User) *User {
	clone := *u
	clone.Verifications = make(map[string]NetworkVerification, len(u.Verifications))
	for network, v := range u.Verifications {
		v.Result.StakedTokenIDs = append([]string(nil), v.Result.StakedTokenIDs...)
		clone.Verifications[network] = v
	}
	return &clone
}
