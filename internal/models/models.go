package models

import "time"

// Role identifies a coarse permission tier attached to a user account.
type Role string

const (
	// RoleMember is the default tier for reader accounts.
	RoleMember Role = "member"
	// RoleAdmin unlocks catalog and entitlement management endpoints.
	RoleAdmin Role = "admin"
)

// User is an account known to the platform. The identifier is opaque and
// immutable once issued; credentials are stored only as a derived hash.
type User struct {
	ID           string    `json:"id"`
	Email        string    `json:"email"`
	DisplayName  string    `json:"displayName"`
	Roles        []Role    `json:"roles"`
	PasswordHash string    `json:"-"`
	CreatedAt    time.Time `json:"createdAt"`
}

// HasRole reports whether the user carries the given role.
func (u User) HasRole(role Role) bool {
	for _, r := range u.Roles {
		if r == role {
			return true
		}
	}
	return false
}

// Profile holds the mutable, member-editable attributes of an account.
// AvatarID references an object in avatar storage; the display URL is derived
// at read time and never persisted.
type Profile struct {
	UserID            string     `json:"userId"`
	FirstName         string     `json:"firstName"`
	LastName          string     `json:"lastName"`
	AvatarID          string     `json:"avatarId"`
	SubscriptionStart *time.Time `json:"subscriptionStart,omitempty"`
	SubscriptionEnd   *time.Time `json:"subscriptionEnd,omitempty"`
	UpdatedAt         time.Time  `json:"updatedAt"`
}

// EntitlementRecord is the materialized billing view consulted before
// releasing premium artifacts. Absence of a record means no entitlement.
type EntitlementRecord struct {
	UserID        string    `json:"userId"`
	PremiumAccess bool      `json:"premiumAccess"`
	UpdatedAt     time.Time `json:"updatedAt"`
}

// PremiumFile describes a downloadable artifact gated behind premium
// entitlement. The bytes live in object storage under ObjectKey.
type PremiumFile struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	ObjectKey   string    `json:"objectKey"`
	ContentType string    `json:"contentType"`
	SizeBytes   int64     `json:"sizeBytes"`
	UploadedBy  string    `json:"uploadedBy"`
	CreatedAt   time.Time `json:"createdAt"`
}
