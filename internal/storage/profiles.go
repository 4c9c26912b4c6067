package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"pressgate/internal/models"
)

// GetProfile fetches the profile attached to the user.
func (s *Storage) GetProfile(_ context.Context, userID string) (models.Profile, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	profile, ok := s.data.Profiles[userID]
	return profile, ok, nil
}

// UpdateProfile applies the non-nil fields of the update to the stored
// profile. Omitted fields keep their current values.
func (s *Storage) UpdateProfile(_ context.Context, userID string, update ProfileUpdate) (models.Profile, error) {
	if err := validateProfileUpdate(update); err != nil {
		return models.Profile{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	updated := cloneDataset(s.data)
	profile, ok := updated.Profiles[userID]
	if !ok {
		return models.Profile{}, fmt.Errorf("profile %s: %w", userID, ErrNotFound)
	}

	applyProfileUpdate(&profile, update)
	profile.UpdatedAt = s.now()
	updated.Profiles[userID] = profile

	if err := s.persistDataset(updated); err != nil {
		return models.Profile{}, err
	}
	s.data = updated
	return profile, nil
}

func applyProfileUpdate(profile *models.Profile, update ProfileUpdate) {
	if update.FirstName != nil {
		profile.FirstName = strings.TrimSpace(*update.FirstName)
	}
	if update.LastName != nil {
		profile.LastName = strings.TrimSpace(*update.LastName)
	}
	if update.AvatarID != nil {
		profile.AvatarID = strings.TrimSpace(*update.AvatarID)
	}
	if update.SubscriptionStart != nil {
		start := update.SubscriptionStart.UTC()
		profile.SubscriptionStart = &start
	}
	if update.SubscriptionEnd != nil {
		end := update.SubscriptionEnd.UTC()
		profile.SubscriptionEnd = &end
	}
}

func validateProfileUpdate(update ProfileUpdate) error {
	if update.FirstName != nil && len(strings.TrimSpace(*update.FirstName)) > MaxProfileNameLength {
		return errors.New("firstName exceeds maximum length")
	}
	if update.LastName != nil && len(strings.TrimSpace(*update.LastName)) > MaxProfileNameLength {
		return errors.New("lastName exceeds maximum length")
	}
	if update.AvatarID != nil {
		avatar := strings.TrimSpace(*update.AvatarID)
		if len(avatar) > MaxAvatarIDLength {
			return errors.New("avatarId exceeds maximum length")
		}
		if strings.ContainsAny(avatar, "/\\") {
			return errors.New("avatarId must not contain path separators")
		}
	}
	if update.SubscriptionStart != nil && update.SubscriptionEnd != nil &&
		update.SubscriptionEnd.Before(*update.SubscriptionStart) {
		return errors.New("subscriptionEnd must not precede subscriptionStart")
	}
	return nil
}
