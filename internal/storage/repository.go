package storage

import (
	"context"
	"io"

	"pressgate/internal/models"
)

// Repository exposes the datastore operations required by API handlers and
// the release gate. Both the JSON driver and the Postgres driver implement
// it, so callers never know which backend is wired in.
type Repository interface {
	Ping(ctx context.Context) error
	Close(ctx context.Context) error

	CreateUser(ctx context.Context, params CreateUserParams) (models.User, error)
	AuthenticateUser(ctx context.Context, email, password string) (models.User, error)
	GetUser(ctx context.Context, id string) (models.User, bool, error)
	FindUserByEmail(ctx context.Context, email string) (models.User, bool, error)
	ListUsers(ctx context.Context) ([]models.User, error)
	SetUserPassword(ctx context.Context, id, password string) (models.User, error)

	GetProfile(ctx context.Context, userID string) (models.Profile, bool, error)
	UpdateProfile(ctx context.Context, userID string, update ProfileUpdate) (models.Profile, error)

	GetEntitlement(ctx context.Context, userID string) (models.EntitlementRecord, bool, error)
	SetEntitlement(ctx context.Context, userID string, premium bool) (models.EntitlementRecord, error)

	CreatePremiumFile(ctx context.Context, params CreatePremiumFileParams, content []byte) (models.PremiumFile, error)
	ListPremiumFiles(ctx context.Context) ([]models.PremiumFile, error)
	GetPremiumFile(ctx context.Context, id string) (models.PremiumFile, bool, error)
	DeletePremiumFile(ctx context.Context, id string) error
	OpenPremiumFile(ctx context.Context, id string) (models.PremiumFile, io.ReadCloser, error)
}

var _ Repository = (*Storage)(nil)
var _ Repository = (*PostgresRepository)(nil)
