package storage

import (
	"context"
	"errors"
	"strings"
	"testing"
)

func TestAuthenticateUser(t *testing.T) {
	store := newTestStorage(t)
	ctx := context.Background()
	createTestUser(t, store, "reader@example.com")

	user, err := store.AuthenticateUser(ctx, "reader@example.com", "correct horse")
	if err != nil {
		t.Fatalf("AuthenticateUser returned error: %v", err)
	}
	if user.Email != "reader@example.com" {
		t.Fatalf("unexpected user %s", user.Email)
	}

	if _, err := store.AuthenticateUser(ctx, "reader@example.com", "wrong"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials for wrong password, got %v", err)
	}
	if _, err := store.AuthenticateUser(ctx, "nobody@example.com", "correct horse"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials for unknown email, got %v", err)
	}
}

func TestAuthenticateUserEmailCaseInsensitive(t *testing.T) {
	store := newTestStorage(t)
	createTestUser(t, store, "reader@example.com")

	if _, err := store.AuthenticateUser(context.Background(), "READER@example.com", "correct horse"); err != nil {
		t.Fatalf("expected case-insensitive email match, got %v", err)
	}
}

func TestAuthenticateUserWithoutPasswordHash(t *testing.T) {
	store := newTestStorage(t)
	ctx := context.Background()

	user, err := store.CreateUser(ctx, CreateUserParams{DisplayName: "No Password", Email: "np@example.com"})
	if err != nil {
		t.Fatalf("CreateUser returned error: %v", err)
	}
	if _, err := store.AuthenticateUser(ctx, user.Email, "anything"); !errors.Is(err, ErrPasswordLoginUnsupported) {
		t.Fatalf("expected ErrPasswordLoginUnsupported, got %v", err)
	}
}

func TestHashPasswordFormatAndVerify(t *testing.T) {
	hashed, err := hashPassword("a strong secret")
	if err != nil {
		t.Fatalf("hashPassword returned error: %v", err)
	}
	if !strings.HasPrefix(hashed, "pbkdf2$sha256$") {
		t.Fatalf("unexpected hash format %s", hashed)
	}
	if err := verifyPassword(hashed, "a strong secret"); err != nil {
		t.Fatalf("verifyPassword rejected correct password: %v", err)
	}
	if err := verifyPassword(hashed, "a wrong secret"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}
}

func TestVerifyPasswordRejectsMalformedHash(t *testing.T) {
	cases := []string{
		"",
		"plain",
		"bcrypt$sha256$1$salt$key",
		"pbkdf2$sha256$notanumber$salt$key",
	}
	for _, encoded := range cases {
		if err := verifyPassword(encoded, "candidate"); err == nil {
			t.Fatalf("expected malformed hash %q to be rejected", encoded)
		}
	}
}

func TestSetUserPassword(t *testing.T) {
	store := newTestStorage(t)
	ctx := context.Background()
	userID := createTestUser(t, store, "reader@example.com")

	if _, err := store.SetUserPassword(ctx, userID, "short"); err == nil {
		t.Fatal("expected short password to be rejected")
	}
	if _, err := store.SetUserPassword(ctx, userID, "brand new secret"); err != nil {
		t.Fatalf("SetUserPassword returned error: %v", err)
	}
	if _, err := store.AuthenticateUser(ctx, "reader@example.com", "brand new secret"); err != nil {
		t.Fatalf("expected new password to authenticate: %v", err)
	}
	if _, err := store.AuthenticateUser(ctx, "reader@example.com", "correct horse"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected old password to be rejected, got %v", err)
	}
}
