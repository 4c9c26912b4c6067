package storage

import (
	"context"
	"errors"
	"sync"
	"time"

	"pressgate/internal/models"
)

const (
	passwordHashSaltLength = 16
	passwordHashKeyLength  = 32
	passwordHashIterations = 120000

	// MaxProfileNameLength bounds first and last name fields.
	MaxProfileNameLength = 100
	// MaxAvatarIDLength bounds the avatar object reference.
	MaxAvatarIDLength = 128
	// MaxFileTitleLength bounds premium artifact titles.
	MaxFileTitleLength = 200
)

var (
	ErrInvalidCredentials       = errors.New("invalid credentials")
	ErrPasswordLoginUnsupported = errors.New("account does not support password login")

	// ErrNotFound indicates the requested record does not exist.
	ErrNotFound = errors.New("record not found")
	// ErrEmailTaken indicates a user with the same email already exists.
	ErrEmailTaken = errors.New("email already registered")
)

type dataset struct {
	Users        map[string]models.User              `json:"users"`
	Profiles     map[string]models.Profile           `json:"profiles"`
	Entitlements map[string]models.EntitlementRecord `json:"entitlements"`
	PremiumFiles map[string]models.PremiumFile       `json:"premiumFiles"`
}

// Storage is the JSON-file backed Repository used for development and
// single-instance deployments. All mutations clone the dataset, persist the
// clone, then swap it in so readers never observe partial writes.
type Storage struct {
	mu       sync.RWMutex
	filePath string
	data     dataset
	// persistOverride allows tests to intercept persist operations.
	persistOverride func(dataset) error
	objectStorage   ObjectStorageConfig
	objectClient    objectStorageClient
	contentDir      string
	now             func() time.Time
}

// ObjectStorageConfig describes the external bucket used for premium artifact
// bytes. When unset the content directory serves downloads instead.
type ObjectStorageConfig struct {
	Endpoint       string
	Region         string
	AccessKey      string
	SecretKey      string
	Bucket         string
	UseSSL         bool
	Prefix         string
	PublicEndpoint string
	RequestTimeout time.Duration
}

type objectStorageClient interface {
	Enabled() bool
	Upload(ctx context.Context, key, contentType string, body []byte) (objectReference, error)
	Download(ctx context.Context, key string) (objectDownload, error)
	Delete(ctx context.Context, key string) error
}

type objectReference struct {
	Key string
	URL string
}

const defaultObjectStorageRequestTimeout = 30 * time.Second

// CreateUserParams captures the attributes that can be set when creating a user.
type CreateUserParams struct {
	DisplayName string
	Email       string
	Password    string
	Roles       []string
}

// ProfileUpdate describes a partial profile mutation. Only non-nil fields are
// applied; nil means "leave unchanged", never "clear".
type ProfileUpdate struct {
	FirstName         *string
	LastName          *string
	AvatarID          *string
	SubscriptionStart *time.Time
	SubscriptionEnd   *time.Time
}

// CreatePremiumFileParams captures the metadata for a new gated artifact.
type CreatePremiumFileParams struct {
	Title       string
	Filename    string
	ContentType string
	UploadedBy  string
}
