package store

import (
	"bytes"
	"context"
	"sync"
	"time"
)

// MemoryCredentialStore is an in-memory CredentialStore for tests and for
// running the service without a database. Records are copied on the way in
// and out so callers cannot mutate stored state.
type MemoryCredentialStore struct {
	mu    sync.RWMutex
	creds map[string]*CalendarCredential
}

// NewMemoryCredentialStore creates an empty MemoryCredentialStore.
func NewMemoryCredentialStore() *MemoryCredentialStore {
	return &MemoryCredentialStore{
		creds: make(map[string]*CalendarCredential),
	}
}

// Upsert stores a copy of the record, replacing any existing one.
func (s *MemoryCredentialStore) Upsert(_ context.Context, cred *CalendarCredential) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cred.UpdatedAt = time.Now().UTC()
	s.creds[cred.UserID] = copyCredential(cred)
	return nil
}

// Get returns a copy of the record, or nil when not linked.
func (s *MemoryCredentialStore) Get(_ context.Context, userID string) (*CalendarCredential, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	cred, ok := s.creds[userID]
	if !ok {
		return nil, nil
	}
	return copyCredential(cred), nil
}

// Delete removes the record; idempotent.
func (s *MemoryCredentialStore) Delete(_ context.Context, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.creds, userID)
	return nil
}

func copyCredential(cred *CalendarCredential) *CalendarCredential {
	c := *cred
	c.EncryptedAccessToken = bytes.Clone(cred.EncryptedAccessToken)
	c.EncryptedRefreshToken = bytes.Clone(cred.EncryptedRefreshToken)
	c.IV = bytes.Clone(cred.IV)
	return &c
}

// compile-time interface check
var _ CredentialStore = (*MemoryCredentialStore)(nil)
