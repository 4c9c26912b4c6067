package entitlement

import (
	"context"
	"errors"
	"testing"

	"pressgate/internal/models"
)

type stubStore struct {
	records map[string]models.EntitlementRecord
	err     error
}

func (s stubStore) GetEntitlement(_ context.Context, userID string) (models.EntitlementRecord, bool, error) {
	if s.err != nil {
		return models.EntitlementRecord{}, false, s.err
	}
	record, ok := s.records[userID]
	return record, ok, nil
}

func TestIsPremiumGrantsActiveRecord(t *testing.T) {
	checker := NewChecker(stubStore{records: map[string]models.EntitlementRecord{
		"u1": {UserID: "u1", PremiumAccess: true},
		"u2": {UserID: "u2", PremiumAccess: false},
	}})

	premium, err := checker.IsPremium(context.Background(), "u1")
	if err != nil {
		t.Fatalf("IsPremium returned error: %v", err)
	}
	if !premium {
		t.Fatal("expected u1 to be premium")
	}

	premium, err = checker.IsPremium(context.Background(), "u2")
	if err != nil {
		t.Fatalf("IsPremium returned error: %v", err)
	}
	if premium {
		t.Fatal("expected u2 to not be premium")
	}
}

func TestMissingRecordIsFalseNotError(t *testing.T) {
	checker := NewChecker(stubStore{records: map[string]models.EntitlementRecord{}})

	premium, err := checker.IsPremium(context.Background(), "nobody")
	if err != nil {
		t.Fatalf("expected nil error for missing record, got %v", err)
	}
	if premium {
		t.Fatal("expected default-deny for missing record")
	}
}

func TestStoreFailureIsDistinctFromNotPremium(t *testing.T) {
	checker := NewChecker(stubStore{err: errors.New("connection refused")})

	premium, err := checker.IsPremium(context.Background(), "u1")
	if !errors.Is(err, ErrStoreUnavailable) {
		t.Fatalf("expected ErrStoreUnavailable, got %v", err)
	}
	if premium {
		t.Fatal("store failure must not grant access")
	}
}
