package auth

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

func TestIssueAndValidate(t *testing.T) {
	manager := NewSessionManager()
	ctx := context.Background()

	token, expiresAt, err := manager.Issue(ctx, "user-123")
	if err != nil {
		t.Fatalf("Issue returned error: %v", err)
	}
	if token == "" {
		t.Fatal("expected non-empty token")
	}
	if !expiresAt.IsZero() {
		t.Fatalf("expected no expiry without TTL, got %v", expiresAt)
	}

	ok, err := manager.Validate(ctx, "user-123", token)
	if err != nil {
		t.Fatalf("Validate returned error: %v", err)
	}
	if !ok {
		t.Fatal("expected token to validate")
	}
}

func TestValidateRequiresExactUserMatch(t *testing.T) {
	manager := NewSessionManager()
	ctx := context.Background()

	token, _, err := manager.Issue(ctx, "user-123")
	if err != nil {
		t.Fatalf("Issue returned error: %v", err)
	}

	if ok, err := manager.Validate(ctx, "user-456", token); err != nil || ok {
		t.Fatalf("expected mismatched user to be invalid, got ok=%v err=%v", ok, err)
	}
	if ok, err := manager.Validate(ctx, "user-12", token); err != nil || ok {
		t.Fatalf("expected prefix user id to be invalid, got ok=%v err=%v", ok, err)
	}
}

func TestIssueSupersedesPriorSession(t *testing.T) {
	store := NewMemorySessionStore()
	manager := NewSessionManager(WithStore(store))
	ctx := context.Background()

	first, _, err := manager.Issue(ctx, "user-123")
	if err != nil {
		t.Fatalf("Issue returned error: %v", err)
	}
	second, _, err := manager.Issue(ctx, "user-123")
	if err != nil {
		t.Fatalf("second Issue returned error: %v", err)
	}

	if ok, err := manager.Validate(ctx, "user-123", first); err != nil || ok {
		t.Fatalf("expected superseded token to be invalid, got ok=%v err=%v", ok, err)
	}
	if ok, err := manager.Validate(ctx, "user-123", second); err != nil || !ok {
		t.Fatalf("expected fresh token to validate, got ok=%v err=%v", ok, err)
	}
}

func TestConcurrentIssueLeavesOneSession(t *testing.T) {
	store := NewMemorySessionStore()
	ctx := context.Background()

	const workers = 8
	tokens := make([]string, workers)
	wg := sync.WaitGroup{}
	wg.Add(workers)
	errs := make(chan error, workers)
	for i := 0; i < workers; i++ {
		go func(slot int) {
			defer wg.Done()
			replica := NewSessionManager(WithStore(store))
			token, _, err := replica.Issue(ctx, "user-race")
			if err != nil {
				errs <- err
				return
			}
			tokens[slot] = token
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Fatalf("concurrent issue error: %v", err)
	}

	manager := NewSessionManager(WithStore(store))
	valid := 0
	for _, token := range tokens {
		ok, err := manager.Validate(ctx, "user-race", token)
		if err != nil {
			t.Fatalf("Validate returned error: %v", err)
		}
		if ok {
			valid++
		}
	}
	if valid != 1 {
		t.Fatalf("expected exactly one surviving session, got %d", valid)
	}
}

func TestInvalidateRemovesSession(t *testing.T) {
	manager := NewSessionManager()
	ctx := context.Background()

	token, _, err := manager.Issue(ctx, "user-123")
	if err != nil {
		t.Fatalf("Issue returned error: %v", err)
	}
	if err := manager.Invalidate(ctx, "user-123"); err != nil {
		t.Fatalf("Invalidate returned error: %v", err)
	}
	if ok, err := manager.Validate(ctx, "user-123", token); err != nil || ok {
		t.Fatalf("expected invalidated token to be rejected, got ok=%v err=%v", ok, err)
	}
}

func TestIssueRequiresUserID(t *testing.T) {
	manager := NewSessionManager()
	if _, _, err := manager.Issue(context.Background(), ""); !errors.Is(err, ErrInvalidUserID) {
		t.Fatalf("expected ErrInvalidUserID, got %v", err)
	}
}

func TestTTLExpiryAndPurge(t *testing.T) {
	store := NewMemorySessionStore()
	manager := NewSessionManager(WithStore(store), WithTTL(10*time.Millisecond))
	ctx := context.Background()

	token, expiresAt, err := manager.Issue(ctx, "user-123")
	if err != nil {
		t.Fatalf("Issue returned error: %v", err)
	}
	if expiresAt.IsZero() {
		t.Fatal("expected expiry when TTL configured")
	}

	manager.now = func() time.Time { return time.Now().Add(time.Second) }
	if ok, err := manager.Validate(ctx, "user-123", token); err != nil || ok {
		t.Fatalf("expected expired token to be invalid, got ok=%v err=%v", ok, err)
	}
	if err := manager.PurgeExpired(ctx); err != nil {
		t.Fatalf("PurgeExpired returned error: %v", err)
	}
}

func TestSessionPersistsAcrossManagers(t *testing.T) {
	store := NewMemorySessionStore()
	ctx := context.Background()

	first := NewSessionManager(WithStore(store))
	token, _, err := first.Issue(ctx, "persistent-user")
	if err != nil {
		t.Fatalf("Issue returned error: %v", err)
	}

	second := NewSessionManager(WithStore(store))
	ok, err := second.Validate(ctx, "persistent-user", token)
	if err != nil {
		t.Fatalf("Validate returned error: %v", err)
	}
	if !ok {
		t.Fatal("expected token to validate after manager restart")
	}
}

type failingSessionStore struct{}

func (failingSessionStore) Replace(context.Context, SessionRecord) error {
	return errors.New("connection refused")
}

func (failingSessionStore) Lookup(context.Context, string) (SessionRecord, bool, error) {
	return SessionRecord{}, false, errors.New("connection refused")
}

func (failingSessionStore) DeleteByUser(context.Context, string) error {
	return errors.New("connection refused")
}

func (failingSessionStore) PurgeExpired(context.Context, time.Time) error {
	return errors.New("connection refused")
}

func TestStoreFailureIsNotInvalidSession(t *testing.T) {
	manager := NewSessionManager(WithStore(failingSessionStore{}))
	ctx := context.Background()

	if _, _, err := manager.Issue(ctx, "user-123"); !errors.Is(err, ErrSessionStoreUnavailable) {
		t.Fatalf("expected ErrSessionStoreUnavailable from Issue, got %v", err)
	}
	ok, err := manager.Validate(ctx, "user-123", "some-token")
	if !errors.Is(err, ErrSessionStoreUnavailable) {
		t.Fatalf("expected ErrSessionStoreUnavailable from Validate, got %v", err)
	}
	if ok {
		t.Fatal("store failure must not report a valid session")
	}
}

func TestResolveReturnsRecord(t *testing.T) {
	store := NewMemorySessionStore()
	manager := NewSessionManager(WithStore(store))
	ctx := context.Background()

	token, _, err := manager.Issue(ctx, "user-123")
	if err != nil {
		t.Fatalf("Issue returned error: %v", err)
	}
	record, ok, err := manager.Resolve(ctx, token)
	if err != nil {
		t.Fatalf("Resolve returned error: %v", err)
	}
	if !ok || record.UserID != "user-123" {
		t.Fatalf("expected record for user-123, got ok=%v record=%+v", ok, record)
	}
	if _, ok, _ := manager.Resolve(ctx, "unknown-token"); ok {
		t.Fatal("expected unknown token to not resolve")
	}
}
