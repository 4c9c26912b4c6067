// Package entitlement answers whether a user currently holds premium access.
// Entitlement is default-deny: a missing record means false, while store I/O
// failure is reported as an error so callers never grant or deny access on
// infrastructure trouble.
package entitlement

import (
	"context"
	"errors"
	"fmt"

	"pressgate/internal/models"
)

// Store is the read side of the billing-derived entitlement view.
type Store interface {
	GetEntitlement(ctx context.Context, userID string) (models.EntitlementRecord, bool, error)
}

// ErrStoreUnavailable wraps entitlement store I/O failures, keeping them
// distinct from a "not premium" answer.
var ErrStoreUnavailable = errors.New("entitlement store unavailable")

// Checker resolves premium entitlement for user identities.
type Checker struct {
	store Store
}

// NewChecker constructs a Checker over the provided view.
func NewChecker(store Store) *Checker {
	return &Checker{store: store}
}

// IsPremium reports whether the user holds active premium access. Absence of
// a record yields false with a nil error.
func (c *Checker) IsPremium(ctx context.Context, userID string) (bool, error) {
	if userID == "" {
		return false, nil
	}
	record, ok, err := c.store.GetEntitlement(ctx, userID)
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	if !ok {
		return false, nil
	}
	return record.PremiumAccess, nil
}
