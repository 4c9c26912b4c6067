package auth

import (
	"context"
	"sync"
	"time"
)

// MemorySessionStore keeps session state in-memory. It is safe for concurrent
// use and intended for development or single-instance deployments. The
// per-user map key gives the same replace-on-write semantics the Postgres
// store gets from its unique constraint.
type MemorySessionStore struct {
	mu     sync.RWMutex
	byUser map[string]SessionRecord
	byHash map[string]string
}

// NewMemorySessionStore constructs an in-memory store implementation.
func NewMemorySessionStore() *MemorySessionStore {
	return &MemorySessionStore{
		byUser: make(map[string]SessionRecord),
		byHash: make(map[string]string),
	}
}

// Replace installs the record as the user's only live session, dropping any
// prior token for that user in the same locked write.
func (s *MemorySessionStore) Replace(_ context.Context, record SessionRecord) error {
	s.mu.Lock()
	if prior, ok := s.byUser[record.UserID]; ok {
		delete(s.byHash, prior.TokenHash)
	}
	s.byUser[record.UserID] = record
	s.byHash[record.TokenHash] = record.UserID
	s.mu.Unlock()
	return nil
}

// Lookup retrieves the session record matching the hashed token.
func (s *MemorySessionStore) Lookup(_ context.Context, tokenHash string) (SessionRecord, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	userID, ok := s.byHash[tokenHash]
	if !ok {
		return SessionRecord{}, false, nil
	}
	record, ok := s.byUser[userID]
	if !ok || record.TokenHash != tokenHash {
		return SessionRecord{}, false, nil
	}
	return record, true, nil
}

// DeleteByUser removes the user's live session, if any.
func (s *MemorySessionStore) DeleteByUser(_ context.Context, userID string) error {
	s.mu.Lock()
	if record, ok := s.byUser[userID]; ok {
		delete(s.byHash, record.TokenHash)
		delete(s.byUser, userID)
	}
	s.mu.Unlock()
	return nil
}

// PurgeExpired removes sessions whose expiry has passed. Records without an
// expiry are never purged.
func (s *MemorySessionStore) PurgeExpired(_ context.Context, now time.Time) error {
	s.mu.Lock()
	for userID, record := range s.byUser {
		if !record.ExpiresAt.IsZero() && now.After(record.ExpiresAt) {
			delete(s.byHash, record.TokenHash)
			delete(s.byUser, userID)
		}
	}
	s.mu.Unlock()
	return nil
}

// Ping always reports success for the in-memory session store.
func (s *MemorySessionStore) Ping(context.Context) error {
	return nil
}
