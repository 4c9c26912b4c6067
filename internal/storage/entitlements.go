package storage

import (
	"context"
	"fmt"

	"pressgate/internal/models"
)

// GetEntitlement reads the billing-derived entitlement view for the user.
// A missing record is reported through the boolean, not an error.
func (s *Storage) GetEntitlement(_ context.Context, userID string) (models.EntitlementRecord, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	record, ok := s.data.Entitlements[userID]
	return record, ok, nil
}

// SetEntitlement materializes the billing view for a user. This is the
// out-of-band write path used by the admin endpoint and the bootstrap tool;
// request handling itself never mutates entitlements.
func (s *Storage) SetEntitlement(_ context.Context, userID string, premium bool) (models.EntitlementRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.data.Users[userID]; !ok {
		return models.EntitlementRecord{}, fmt.Errorf("user %s: %w", userID, ErrNotFound)
	}

	record := models.EntitlementRecord{
		UserID:        userID,
		PremiumAccess: premium,
		UpdatedAt:     s.now(),
	}
	updated := cloneDataset(s.data)
	updated.Entitlements[userID] = record
	if err := s.persistDataset(updated); err != nil {
		return models.EntitlementRecord{}, err
	}
	s.data = updated
	return record, nil
}
