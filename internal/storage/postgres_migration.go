package storage

import (
	"context"
	"fmt"
)

// schemaStatements create the tables the repository depends on. Statements
// are idempotent so replicas can race on startup without failing.
var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS users (
    id            TEXT PRIMARY KEY,
    email         TEXT NOT NULL UNIQUE,
    display_name  TEXT NOT NULL,
    roles         TEXT[] NOT NULL DEFAULT '{}',
    password_hash TEXT NOT NULL DEFAULT '',
    created_at    TIMESTAMPTZ NOT NULL
)`,
	`CREATE TABLE IF NOT EXISTS profiles (
    user_id            TEXT PRIMARY KEY REFERENCES users (id) ON DELETE CASCADE,
    first_name         TEXT NOT NULL DEFAULT '',
    last_name          TEXT NOT NULL DEFAULT '',
    avatar_id          TEXT NOT NULL DEFAULT '',
    subscription_start TIMESTAMPTZ,
    subscription_end   TIMESTAMPTZ,
    updated_at         TIMESTAMPTZ NOT NULL
)`,
	`CREATE TABLE IF NOT EXISTS premium_entitlements (
    user_id        TEXT PRIMARY KEY,
    premium_access BOOLEAN NOT NULL DEFAULT FALSE,
    updated_at     TIMESTAMPTZ NOT NULL
)`,
	`CREATE TABLE IF NOT EXISTS premium_files (
    id           TEXT PRIMARY KEY,
    title        TEXT NOT NULL,
    object_key   TEXT NOT NULL,
    content_type TEXT NOT NULL,
    size_bytes   BIGINT NOT NULL,
    uploaded_by  TEXT NOT NULL DEFAULT '',
    created_at   TIMESTAMPTZ NOT NULL
)`,
	`CREATE INDEX IF NOT EXISTS premium_files_created_at_idx ON premium_files (created_at DESC)`,
}

func (r *PostgresRepository) ensureSchema(ctx context.Context) error {
	for _, stmt := range schemaStatements {
		if _, err := r.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("ensure schema: %w", err)
		}
	}
	return nil
}

// ImportSnapshot upserts every record from a JSON datastore snapshot,
// preserving identifiers and password hashes. The import runs in one
// transaction so a partial failure leaves the database untouched.
func (r *PostgresRepository) ImportSnapshot(ctx context.Context, snapshot Snapshot) error {
	if r == nil || r.pool == nil {
		return fmt.Errorf("postgres pool not configured")
	}

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin import: %w", err)
	}
	defer rollbackTx(ctx, tx)

	for _, entry := range snapshot.Users {
		user := entry.User
		_, err := tx.Exec(ctx, `
INSERT INTO users (id, email, display_name, roles, password_hash, created_at)
VALUES ($1, $2, $3, $4, $5, $6)
ON CONFLICT (id) DO UPDATE SET
    email = EXCLUDED.email,
    display_name = EXCLUDED.display_name,
    roles = EXCLUDED.roles,
    password_hash = EXCLUDED.password_hash,
    created_at = EXCLUDED.created_at
`, user.ID, user.Email, user.DisplayName, rolesToStrings(user.Roles), entry.PasswordHash, user.CreatedAt)
		if err != nil {
			return fmt.Errorf("import user %s: %w", user.ID, err)
		}
	}

	for _, profile := range snapshot.Profiles {
		_, err := tx.Exec(ctx, `
INSERT INTO profiles (user_id, first_name, last_name, avatar_id, subscription_start, subscription_end, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7)
ON CONFLICT (user_id) DO UPDATE SET
    first_name = EXCLUDED.first_name,
    last_name = EXCLUDED.last_name,
    avatar_id = EXCLUDED.avatar_id,
    subscription_start = EXCLUDED.subscription_start,
    subscription_end = EXCLUDED.subscription_end,
    updated_at = EXCLUDED.updated_at
`, profile.UserID, profile.FirstName, profile.LastName, profile.AvatarID, profile.SubscriptionStart, profile.SubscriptionEnd, profile.UpdatedAt)
		if err != nil {
			return fmt.Errorf("import profile %s: %w", profile.UserID, err)
		}
	}

	for _, record := range snapshot.Entitlements {
		_, err := tx.Exec(ctx, `
INSERT INTO premium_entitlements (user_id, premium_access, updated_at)
VALUES ($1, $2, $3)
ON CONFLICT (user_id) DO UPDATE SET
    premium_access = EXCLUDED.premium_access,
    updated_at = EXCLUDED.updated_at
`, record.UserID, record.PremiumAccess, record.UpdatedAt)
		if err != nil {
			return fmt.Errorf("import entitlement %s: %w", record.UserID, err)
		}
	}

	for _, premium := range snapshot.PremiumFiles {
		_, err := tx.Exec(ctx, `
INSERT INTO premium_files (id, title, object_key, content_type, size_bytes, uploaded_by, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7)
ON CONFLICT (id) DO UPDATE SET
    title = EXCLUDED.title,
    object_key = EXCLUDED.object_key,
    content_type = EXCLUDED.content_type,
    size_bytes = EXCLUDED.size_bytes,
    uploaded_by = EXCLUDED.uploaded_by,
    created_at = EXCLUDED.created_at
`, premium.ID, premium.Title, premium.ObjectKey, premium.ContentType, premium.SizeBytes, premium.UploadedBy, premium.CreatedAt)
		if err != nil {
			return fmt.Errorf("import premium file %s: %w", premium.ID, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit import: %w", err)
	}
	return nil
}
