// Command migrate-json-to-postgres migrates stored data from JSON into Postgres.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"

	"pressgate/internal/storage"
)

func main() {
	jsonPath := flag.String("json", "data/store.json", "path to the JSON datastore to migrate")
	postgresDSN := flag.String("postgres-dsn", "", "Postgres connection string")
	flag.Parse()

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))

	dsn := strings.TrimSpace(*postgresDSN)
	if dsn == "" {
		dsn = strings.TrimSpace(os.Getenv("PRESSGATE_POSTGRES_DSN"))
	}
	if dsn == "" {
		dsn = strings.TrimSpace(os.Getenv("DATABASE_URL"))
	}
	if dsn == "" {
		logger.Error("postgres DSN required", "hint", "set --postgres-dsn, PRESSGATE_POSTGRES_DSN, or DATABASE_URL")
		os.Exit(1)
	}

	snapshot, err := storage.LoadSnapshotFromJSON(*jsonPath)
	if err != nil {
		logger.Error("failed to load JSON snapshot", "error", err)
		os.Exit(1)
	}
	counts := snapshot.Counts()
	logger.Info("loaded JSON snapshot", "path", *jsonPath,
		"users", counts.Users, "profiles", counts.Profiles,
		"entitlements", counts.Entitlements, "premium_files", counts.PremiumFiles)

	repo, err := storage.NewPostgresRepository(dsn)
	if err != nil {
		logger.Error("failed to open postgres repository", "error", err)
		os.Exit(1)
	}
	defer func() {
		_ = repo.Close(context.Background())
	}()

	ctx := context.Background()
	if err := repo.ImportSnapshot(ctx, snapshot); err != nil {
		logger.Error("failed to import snapshot", "error", err)
		os.Exit(1)
	}

	if err := verifyCounts(ctx, dsn, counts); err != nil {
		logger.Error("verification failed", "error", err)
		os.Exit(1)
	}

	logger.Info("migration completed",
		"users", counts.Users, "profiles", counts.Profiles,
		"entitlements", counts.Entitlements, "premium_files", counts.PremiumFiles)
}

// verifyCounts re-reads row totals over a fresh connection and confirms every
// snapshot record landed.
func verifyCounts(ctx context.Context, dsn string, counts storage.SnapshotCounts) error {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return fmt.Errorf("parse verification config: %w", err)
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return fmt.Errorf("open verification connection: %w", err)
	}
	defer pool.Close()

	checks := []struct {
		name  string
		query string
		want  int
	}{
		{name: "users", query: "SELECT COUNT(*) FROM users", want: counts.Users},
		{name: "profiles", query: "SELECT COUNT(*) FROM profiles", want: counts.Profiles},
		{name: "entitlements", query: "SELECT COUNT(*) FROM premium_entitlements", want: counts.Entitlements},
		{name: "premium files", query: "SELECT COUNT(*) FROM premium_files", want: counts.PremiumFiles},
	}
	for _, check := range checks {
		var got int
		if err := pool.QueryRow(ctx, check.query).Scan(&got); err != nil {
			return fmt.Errorf("count %s: %w", check.name, err)
		}
		if got < check.want {
			return fmt.Errorf("expected at least %d %s rows, found %d", check.want, check.name, got)
		}
	}
	return nil
}
