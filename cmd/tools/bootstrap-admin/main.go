// Command bootstrap-admin seeds or updates an administrator account in the datastore.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"pressgate/internal/models"
	"pressgate/internal/storage"
)

func main() {
	var (
		jsonPath    string
		postgresDSN string
		email       string
		displayName string
		password    string
		premium     bool
	)

	flag.StringVar(&jsonPath, "json", "", "Path to the JSON datastore (store.json)")
	flag.StringVar(&postgresDSN, "postgres-dsn", "", "Postgres connection string")
	flag.StringVar(&email, "email", "", "Email address for the admin account")
	flag.StringVar(&displayName, "name", "Administrator", "Display name for the admin account")
	flag.StringVar(&password, "password", "", "Password for the admin account")
	flag.BoolVar(&premium, "premium", false, "Grant premium entitlement to the admin account")
	flag.Parse()

	if jsonPath == "" && postgresDSN == "" {
		fatalf("either --json or --postgres-dsn must be provided")
	}
	if jsonPath != "" && postgresDSN != "" {
		fatalf("only one datastore option may be provided")
	}
	if strings.TrimSpace(email) == "" {
		fatalf("--email is required")
	}
	if len(password) < 8 {
		fatalf("--password must be at least 8 characters")
	}
	if strings.TrimSpace(displayName) == "" {
		fatalf("--name cannot be empty")
	}

	repo, err := openRepository(jsonPath, postgresDSN)
	if err != nil {
		fatalf("open datastore: %v", err)
	}
	defer closeRepository(repo)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	user, created, err := bootstrapAdmin(ctx, repo, strings.TrimSpace(email), strings.TrimSpace(displayName), password)
	if err != nil {
		fatalf("bootstrap admin: %v", err)
	}

	if premium {
		if _, err := repo.SetEntitlement(ctx, user.ID, true); err != nil {
			fatalf("grant premium entitlement: %v", err)
		}
	}

	state := "updated"
	if created {
		state = "created"
	}
	fmt.Printf("Admin user %s (%s) %s successfully.\n", user.Email, user.DisplayName, state)
	fmt.Println("Remember to rotate this password after the first login.")
}

func fatalf(format string, args ...any) {
	fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}

func openRepository(jsonPath, postgresDSN string) (storage.Repository, error) {
	if jsonPath != "" {
		return storage.NewJSONRepository(jsonPath)
	}
	return storage.NewPostgresRepository(postgresDSN)
}

func closeRepository(repo storage.Repository) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = repo.Close(ctx)
}

func bootstrapAdmin(ctx context.Context, repo storage.Repository, email, displayName, password string) (models.User, bool, error) {
	existing, found, err := repo.FindUserByEmail(ctx, email)
	if err != nil {
		return models.User{}, false, err
	}
	if found {
		if !existing.HasRole(models.RoleAdmin) {
			return models.User{}, false, fmt.Errorf("user %s exists without the admin role", existing.Email)
		}
		updated, err := repo.SetUserPassword(ctx, existing.ID, password)
		if err != nil {
			return models.User{}, false, err
		}
		return updated, false, nil
	}

	user, err := repo.CreateUser(ctx, storage.CreateUserParams{
		DisplayName: displayName,
		Email:       email,
		Password:    password,
		Roles:       []string{string(models.RoleAdmin)},
	})
	if err != nil {
		return models.User{}, false, err
	}
	return user, true, nil
}
