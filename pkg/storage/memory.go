package storage

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/tmercier/keepsake/pkg/auth"
)

// MemoryStore is a mutex-guarded in-memory TokenStore and UserLookup,
// suitable for tests and single-process demos. Data does not survive a
// restart.
type MemoryStore struct {
	mu      sync.RWMutex
	records map[string]*auth.Record // keyed by credential
	users   []*User
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		records: make(map[string]*auth.Record),
	}
}

// GetToken returns the record for the credential, or (nil, nil) when none
// exists.
func (s *MemoryStore) GetToken(ctx context.Context, credential string) (*auth.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	record, ok := s.records[credential]
	if !ok {
		return nil, nil
	}
	cp := *record
	return &cp, nil
}

// SaveToken creates or replaces the record for its credential.
func (s *MemoryStore) SaveToken(ctx context.Context, record *auth.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *record
	s.records[record.Credential] = &cp
	return nil
}

// UpdateToken replaces the stored record matching the given record's ID.
func (s *MemoryStore) UpdateToken(ctx context.Context, record *auth.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for credential, existing := range s.records {
		if existing.ID == record.ID {
			cp := *record
			s.records[credential] = &cp
			return nil
		}
	}
	return nil
}

// DeleteToken removes the record with the given ID, if present.
func (s *MemoryStore) DeleteToken(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for credential, record := range s.records {
		if record.ID == id {
			delete(s.records, credential)
		}
	}
	return nil
}

// PurgeExpired drops records that are expired and older than the cutoff.
func (s *MemoryStore) PurgeExpired(ctx context.Context, olderThan time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var purged int64
	for credential, record := range s.records {
		if (record.IsExpired || record.ExpirationDate.Before(time.Now())) && record.UpdatedAt.Before(olderThan) {
			delete(s.records, credential)
			purged++
		}
	}
	return purged, nil
}

// AddUser registers a user for lookup.
func (s *MemoryStore) AddUser(user *User) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users = append(s.users, user)
}

// CreateUser inserts a new user and assigns it the next free ID.
func (s *MemoryStore) CreateUser(ctx context.Context, username, email, passwordHash string) (*User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.users {
		if existing.Username == username {
			return nil, fmt.Errorf("user %q already exists", username)
		}
	}
	user := &User{
		ID:             int64(len(s.users) + 1),
		Username:       username,
		Email:          email,
		HashedPassword: passwordHash,
		CreatedAt:      time.Now(),
	}
	s.users = append(s.users, user)
	cp := *user
	return &cp, nil
}

// GetUser resolves a user by field ("username" or "email"). Returns
// (nil, nil) when no user matches.
func (s *MemoryStore) GetUser(ctx context.Context, field, value string) (auth.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, user := range s.users {
		if v, ok := user.Field(field); ok && v == value {
			cp := *user
			return &cp, nil
		}
	}
	return nil, nil
}
