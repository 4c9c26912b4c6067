package auth

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"time"
)

// SessionStore defines the persistence contract for session state. Replace
// must atomically supersede any live session for the record's user so that
// concurrent logins resolve to exactly one surviving session without
// in-process locking.
type SessionStore interface {
	Replace(ctx context.Context, record SessionRecord) error
	Lookup(ctx context.Context, tokenHash string) (SessionRecord, bool, error)
	DeleteByUser(ctx context.Context, userID string) error
	PurgeExpired(ctx context.Context, now time.Time) error
}

// SessionRecord captures a session row retrieved from the backing store. Only
// the token hash is persisted; the opaque token exists client-side only.
type SessionRecord struct {
	UserID    string
	TokenHash string
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// SessionOption configures a SessionManager instance.
type SessionOption func(*SessionManager)

// WithStore injects a custom SessionStore implementation.
func WithStore(store SessionStore) SessionOption {
	return func(m *SessionManager) {
		m.store = store
	}
}

// WithTokenLength sets the random byte length of newly issued tokens.
func WithTokenLength(length int) SessionOption {
	return func(m *SessionManager) {
		if length > 0 {
			m.tokenLength = length
		}
	}
}

// WithTTL enables time-based session expiry. Sessions are otherwise valid
// until superseded by a new login or explicitly invalidated.
func WithTTL(ttl time.Duration) SessionOption {
	return func(m *SessionManager) {
		if ttl > 0 {
			m.ttl = ttl
		}
	}
}

// SessionManager issues, validates, and invalidates single-active-session
// tokens against a backing store.
type SessionManager struct {
	store        SessionStore
	ttl          time.Duration
	tokenLength  int
	tokenFactory func(int) (string, error)
	now          func() time.Time
}

// NewSessionManager constructs a SessionManager. Without options it uses an
// in-memory store, 32-byte tokens, and no expiry.
func NewSessionManager(opts ...SessionOption) *SessionManager {
	manager := &SessionManager{
		tokenLength:  32,
		tokenFactory: generateToken,
		now:          time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(manager)
		}
	}
	if manager.store == nil {
		manager.store = NewMemorySessionStore()
	}
	return manager
}

// Issue creates a fresh session token for the user, superseding any prior
// session in the same store write. The returned expiry is zero when no TTL is
// configured.
func (m *SessionManager) Issue(ctx context.Context, userID string) (string, time.Time, error) {
	if userID == "" {
		return "", time.Time{}, ErrInvalidUserID
	}
	token, hashed, err := generateHashedSessionToken(m.tokenLength, m.tokenFactory)
	if err != nil {
		return "", time.Time{}, err
	}
	now := m.now().UTC()
	record := SessionRecord{UserID: userID, TokenHash: hashed, IssuedAt: now}
	if m.ttl > 0 {
		record.ExpiresAt = now.Add(m.ttl)
	}
	if err := m.store.Replace(ctx, record); err != nil {
		return "", time.Time{}, fmt.Errorf("%w: %v", ErrSessionStoreUnavailable, err)
	}
	return token, record.ExpiresAt, nil
}

// Validate reports whether the token is the live session for the claimed
// user. A stale, unknown, or mismatched token yields false with a nil error;
// store I/O failures surface as ErrSessionStoreUnavailable and are never
// collapsed into an invalid-session result.
func (m *SessionManager) Validate(ctx context.Context, userID, token string) (bool, error) {
	if userID == "" || token == "" {
		return false, nil
	}
	hashed, err := hashSessionToken(token)
	if err != nil {
		return false, nil
	}
	record, ok, err := m.store.Lookup(ctx, hashed)
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrSessionStoreUnavailable, err)
	}
	if !ok || record.UserID != userID {
		return false, nil
	}
	if !record.ExpiresAt.IsZero() && m.now().After(record.ExpiresAt) {
		_ = m.store.DeleteByUser(ctx, record.UserID)
		return false, nil
	}
	return true, nil
}

// Resolve looks up the session by token alone and returns its record. Used
// by middleware that derives identity from the presented credential.
func (m *SessionManager) Resolve(ctx context.Context, token string) (SessionRecord, bool, error) {
	if token == "" {
		return SessionRecord{}, false, nil
	}
	hashed, err := hashSessionToken(token)
	if err != nil {
		return SessionRecord{}, false, nil
	}
	record, ok, err := m.store.Lookup(ctx, hashed)
	if err != nil {
		return SessionRecord{}, false, fmt.Errorf("%w: %v", ErrSessionStoreUnavailable, err)
	}
	if !ok {
		return SessionRecord{}, false, nil
	}
	if !record.ExpiresAt.IsZero() && m.now().After(record.ExpiresAt) {
		_ = m.store.DeleteByUser(ctx, record.UserID)
		return SessionRecord{}, false, nil
	}
	return record, true, nil
}

// Invalidate removes any live session for the user. Used by Issue through the
// store's Replace semantics and exposed standalone for logout.
func (m *SessionManager) Invalidate(ctx context.Context, userID string) error {
	if userID == "" {
		return nil
	}
	if err := m.store.DeleteByUser(ctx, userID); err != nil {
		return fmt.Errorf("%w: %v", ErrSessionStoreUnavailable, err)
	}
	return nil
}

// PurgeExpired removes expired sessions from the backing store. A no-op when
// no TTL is configured since issued records carry no expiry.
func (m *SessionManager) PurgeExpired(ctx context.Context) error {
	return m.store.PurgeExpired(ctx, m.now().UTC())
}

// Ping verifies the underlying session store is reachable when it exposes a
// ping method.
func (m *SessionManager) Ping(ctx context.Context) error {
	if m == nil || m.store == nil {
		return nil
	}
	if ctx == nil {
		ctx = context.Background()
	}
	if pinger, ok := m.store.(interface{ Ping(context.Context) error }); ok {
		return pinger.Ping(ctx)
	}
	return nil
}

func generateToken(length int) (string, error) {
	bytes := make([]byte, length)
	if _, err := rand.Read(bytes); err != nil {
		return "", err
	}
	return hex.EncodeToString(bytes), nil
}

// ErrInvalidUserID is returned when issuing a session without a user identifier.
var ErrInvalidUserID = errors.New("userID is required")

// ErrSessionStoreUnavailable wraps store I/O failures so callers can tell
// infrastructure trouble apart from an invalid session.
var ErrSessionStoreUnavailable = errors.New("session store unavailable")
