package testsupport

import (
	"context"
	"errors"
	"time"

	"pressgate/internal/auth"
)

// FailingSessionStore is an auth.SessionStore whose every operation fails,
// standing in for an unreachable session backend in tests.
type FailingSessionStore struct {
	Err error
}

func (s FailingSessionStore) failure() error {
	if s.Err != nil {
		return s.Err
	}
	return errors.New("session store unavailable")
}

// Replace always fails.
func (s FailingSessionStore) Replace(context.Context, auth.SessionRecord) error {
	return s.failure()
}

// Lookup always fails.
func (s FailingSessionStore) Lookup(context.Context, string) (auth.SessionRecord, bool, error) {
	return auth.SessionRecord{}, false, s.failure()
}

// DeleteByUser always fails.
func (s FailingSessionStore) DeleteByUser(context.Context, string) error {
	return s.failure()
}

// PurgeExpired always fails.
func (s FailingSessionStore) PurgeExpired(context.Context, time.Time) error {
	return s.failure()
}

// Ping reports the store as unreachable.
func (s FailingSessionStore) Ping(context.Context) error {
	return s.failure()
}
