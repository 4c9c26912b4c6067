//go:build postgres

package auth

import (
	"context"
	"os"
	"strings"
	"testing"
	"time"
)

func openPostgresSessionStoreForTest(t *testing.T) (*PostgresSessionStore, func()) {
	t.Helper()

	dsn := os.Getenv("PRESSGATE_TEST_POSTGRES_DSN")
	if strings.TrimSpace(dsn) == "" {
		t.Skip("PRESSGATE_TEST_POSTGRES_DSN not set")
	}

	store, err := NewPostgresSessionStore(dsn)
	if err != nil {
		t.Fatalf("open postgres session store: %v", err)
	}
	ctx := context.Background()
	if err := store.EnsureSchema(ctx); err != nil {
		t.Fatalf("ensure schema: %v", err)
	}
	if _, err := store.pool.Exec(ctx, `TRUNCATE TABLE auth_sessions`); err != nil {
		t.Fatalf("truncate auth_sessions: %v", err)
	}

	cleanup := func() {
		cleanupCtx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		if store.pool != nil {
			_, _ = store.pool.Exec(cleanupCtx, `TRUNCATE TABLE auth_sessions`)
		}
		_ = store.Close(context.Background())
	}
	return store, cleanup
}

func TestPostgresReplaceSupersedesPriorRow(t *testing.T) {
	store, cleanup := openPostgresSessionStoreForTest(t)
	defer cleanup()
	ctx := context.Background()

	now := time.Now().UTC()
	first := SessionRecord{UserID: "user-1", TokenHash: "hash-a", IssuedAt: now}
	second := SessionRecord{UserID: "user-1", TokenHash: "hash-b", IssuedAt: now.Add(time.Second)}

	if err := store.Replace(ctx, first); err != nil {
		t.Fatalf("replace first: %v", err)
	}
	if err := store.Replace(ctx, second); err != nil {
		t.Fatalf("replace second: %v", err)
	}

	if _, ok, err := store.Lookup(ctx, "hash-a"); err != nil || ok {
		t.Fatalf("expected superseded hash to be gone, got ok=%v err=%v", ok, err)
	}
	record, ok, err := store.Lookup(ctx, "hash-b")
	if err != nil || !ok {
		t.Fatalf("expected live hash, got ok=%v err=%v", ok, err)
	}
	if record.UserID != "user-1" {
		t.Fatalf("expected user-1, got %s", record.UserID)
	}

	var count int
	if err := store.pool.QueryRow(ctx, `SELECT COUNT(*) FROM auth_sessions WHERE user_id = $1`, "user-1").Scan(&count); err != nil {
		t.Fatalf("count rows: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected exactly one session row, got %d", count)
	}
}

func TestPostgresPurgeKeepsNonExpiringRows(t *testing.T) {
	store, cleanup := openPostgresSessionStoreForTest(t)
	defer cleanup()
	ctx := context.Background()

	now := time.Now().UTC()
	if err := store.Replace(ctx, SessionRecord{UserID: "no-expiry", TokenHash: "hash-1", IssuedAt: now}); err != nil {
		t.Fatalf("replace: %v", err)
	}
	if err := store.Replace(ctx, SessionRecord{UserID: "expired", TokenHash: "hash-2", IssuedAt: now.Add(-time.Hour), ExpiresAt: now.Add(-time.Minute)}); err != nil {
		t.Fatalf("replace: %v", err)
	}

	if err := store.PurgeExpired(ctx, now); err != nil {
		t.Fatalf("purge: %v", err)
	}
	if _, ok, _ := store.Lookup(ctx, "hash-1"); !ok {
		t.Fatal("expected non-expiring session to survive purge")
	}
	if _, ok, _ := store.Lookup(ctx, "hash-2"); ok {
		t.Fatal("expected expired session to be purged")
	}
}
