package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"pressgate/internal/models"
)

const pgUniqueViolation = "23505"

// PostgresRepository is the production datastore driver. It shares the
// Repository contract with the JSON driver so multiple API replicas can run
// against the same database.
type PostgresRepository struct {
	pool          *pgxpool.Pool
	cfg           PostgresConfig
	objectStorage ObjectStorageConfig
	objectClient  objectStorageClient
	contentDir    string
	now           func() time.Time
}

// NewPostgresRepository opens a Postgres-backed repository and verifies the
// schema exists, creating it when missing.
func NewPostgresRepository(dsn string, opts ...Option) (*PostgresRepository, error) {
	cfg := newPostgresConfig(dsn, opts...)
	if strings.TrimSpace(cfg.DSN) == "" {
		return nil, fmt.Errorf("postgres dsn required")
	}

	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres config: %w", err)
	}
	if cfg.MaxConnections > 0 {
		poolCfg.MaxConns = cfg.MaxConnections
	}
	if cfg.MinConnections >= 0 {
		poolCfg.MinConns = cfg.MinConnections
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	if cfg.MaxConnIdleTime > 0 {
		poolCfg.MaxConnIdleTime = cfg.MaxConnIdleTime
	}
	if cfg.HealthCheckInterval > 0 {
		poolCfg.HealthCheckPeriod = cfg.HealthCheckInterval
	}
	if cfg.AcquireTimeout > 0 {
		poolCfg.ConnConfig.ConnectTimeout = cfg.AcquireTimeout
	}
	if cfg.ApplicationName != "" {
		if poolCfg.ConnConfig.RuntimeParams == nil {
			poolCfg.ConnConfig.RuntimeParams = make(map[string]string)
		}
		poolCfg.ConnConfig.RuntimeParams["application_name"] = cfg.ApplicationName
	}

	ctx := context.Background()
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("open postgres pool: %w", err)
	}

	repo := &PostgresRepository{
		pool:          pool,
		cfg:           cfg,
		objectStorage: cfg.ObjectStorage,
		contentDir:    cfg.ContentDir,
		now:           func() time.Time { return time.Now().UTC() },
	}
	repo.objectClient = newObjectStorageClient(repo.objectStorage)
	if err := repo.ensureSchema(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return repo, nil
}

// Ping verifies database connectivity.
func (r *PostgresRepository) Ping(ctx context.Context) error {
	if r == nil || r.pool == nil {
		return fmt.Errorf("postgres pool not configured")
	}
	return r.pool.Ping(ctx)
}

// Close releases the connection pool, bounded by the context deadline.
func (r *PostgresRepository) Close(ctx context.Context) error {
	if r == nil || r.pool == nil {
		return nil
	}
	done := make(chan struct{})
	go func() {
		r.pool.Close()
		close(done)
	}()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-done:
		return nil
	}
}

// CreateUser inserts the user and its empty profile in one transaction.
func (r *PostgresRepository) CreateUser(ctx context.Context, params CreateUserParams) (models.User, error) {
	displayName := strings.TrimSpace(params.DisplayName)
	email := normalizeEmail(params.Email)
	if displayName == "" {
		return models.User{}, errors.New("displayName is required")
	}
	if email == "" {
		return models.User{}, errors.New("email is required")
	}
	var hashed string
	if params.Password != "" {
		if len(params.Password) < 8 {
			return models.User{}, errors.New("password must be at least 8 characters")
		}
		var err error
		hashed, err = hashPassword(params.Password)
		if err != nil {
			return models.User{}, fmt.Errorf("hash password: %w", err)
		}
	}

	id, err := generateID()
	if err != nil {
		return models.User{}, err
	}
	now := r.now()
	user := models.User{
		ID:           id,
		Email:        email,
		DisplayName:  displayName,
		Roles:        normalizeRoles(params.Roles),
		PasswordHash: hashed,
		CreatedAt:    now,
	}

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return models.User{}, fmt.Errorf("begin create user: %w", err)
	}
	defer rollbackTx(ctx, tx)

	_, err = tx.Exec(ctx, `
INSERT INTO users (id, email, display_name, roles, password_hash, created_at)
VALUES ($1, $2, $3, $4, $5, $6)
`, user.ID, user.Email, user.DisplayName, rolesToStrings(user.Roles), user.PasswordHash, user.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return models.User{}, ErrEmailTaken
		}
		return models.User{}, fmt.Errorf("insert user: %w", err)
	}
	_, err = tx.Exec(ctx, `
INSERT INTO profiles (user_id, first_name, last_name, avatar_id, updated_at)
VALUES ($1, '', '', '', $2)
`, user.ID, now)
	if err != nil {
		return models.User{}, fmt.Errorf("insert profile: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return models.User{}, fmt.Errorf("commit create user: %w", err)
	}
	return user, nil
}

// AuthenticateUser verifies credentials against the stored hash.
func (r *PostgresRepository) AuthenticateUser(ctx context.Context, email, password string) (models.User, error) {
	if password == "" {
		return models.User{}, errors.New("password is required")
	}
	user, ok, err := r.FindUserByEmail(ctx, email)
	if err != nil {
		return models.User{}, err
	}
	if !ok {
		return models.User{}, ErrInvalidCredentials
	}
	if user.PasswordHash == "" {
		return models.User{}, ErrPasswordLoginUnsupported
	}
	if err := verifyPassword(user.PasswordHash, password); err != nil {
		if errors.Is(err, ErrInvalidCredentials) {
			return models.User{}, ErrInvalidCredentials
		}
		return models.User{}, err
	}
	return user, nil
}

// GetUser fetches a user by identifier.
func (r *PostgresRepository) GetUser(ctx context.Context, id string) (models.User, bool, error) {
	row := r.pool.QueryRow(ctx, `
SELECT id, email, display_name, roles, password_hash, created_at
FROM users WHERE id = $1
`, id)
	return scanUser(row)
}

// FindUserByEmail fetches a user by email, case-insensitively.
func (r *PostgresRepository) FindUserByEmail(ctx context.Context, email string) (models.User, bool, error) {
	row := r.pool.QueryRow(ctx, `
SELECT id, email, display_name, roles, password_hash, created_at
FROM users WHERE email = $1
`, normalizeEmail(email))
	return scanUser(row)
}

// ListUsers returns all users ordered by creation time.
func (r *PostgresRepository) ListUsers(ctx context.Context) ([]models.User, error) {
	rows, err := r.pool.Query(ctx, `
SELECT id, email, display_name, roles, password_hash, created_at
FROM users ORDER BY created_at, id
`)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	defer rows.Close()
	var users []models.User
	for rows.Next() {
		user, _, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, user)
	}
	return users, rows.Err()
}

// SetUserPassword replaces the stored password hash for the provided user.
func (r *PostgresRepository) SetUserPassword(ctx context.Context, id, password string) (models.User, error) {
	if len(password) < 8 {
		return models.User{}, errors.New("password must be at least 8 characters")
	}
	hashed, err := hashPassword(password)
	if err != nil {
		return models.User{}, fmt.Errorf("hash password: %w", err)
	}
	row := r.pool.QueryRow(ctx, `
UPDATE users SET password_hash = $2 WHERE id = $1
RETURNING id, email, display_name, roles, password_hash, created_at
`, id, hashed)
	user, ok, err := scanUser(row)
	if err != nil {
		return models.User{}, err
	}
	if !ok {
		return models.User{}, fmt.Errorf("user %s: %w", id, ErrNotFound)
	}
	return user, nil
}

// GetProfile fetches the profile attached to the user.
func (r *PostgresRepository) GetProfile(ctx context.Context, userID string) (models.Profile, bool, error) {
	row := r.pool.QueryRow(ctx, `
SELECT user_id, first_name, last_name, avatar_id, subscription_start, subscription_end, updated_at
FROM profiles WHERE user_id = $1
`, userID)
	return scanProfile(row)
}

// UpdateProfile applies only the non-nil fields of the update. NULL bind
// parameters leave the stored column untouched through COALESCE.
func (r *PostgresRepository) UpdateProfile(ctx context.Context, userID string, update ProfileUpdate) (models.Profile, error) {
	if err := validateProfileUpdate(update); err != nil {
		return models.Profile{}, err
	}
	row := r.pool.QueryRow(ctx, `
UPDATE profiles SET
    first_name         = COALESCE($2, first_name),
    last_name          = COALESCE($3, last_name),
    avatar_id          = COALESCE($4, avatar_id),
    subscription_start = COALESCE($5, subscription_start),
    subscription_end   = COALESCE($6, subscription_end),
    updated_at         = $7
WHERE user_id = $1
RETURNING user_id, first_name, last_name, avatar_id, subscription_start, subscription_end, updated_at
`, userID, trimmedOrNil(update.FirstName), trimmedOrNil(update.LastName), trimmedOrNil(update.AvatarID),
		utcOrNil(update.SubscriptionStart), utcOrNil(update.SubscriptionEnd), r.now())
	profile, ok, err := scanProfile(row)
	if err != nil {
		return models.Profile{}, err
	}
	if !ok {
		return models.Profile{}, fmt.Errorf("profile %s: %w", userID, ErrNotFound)
	}
	return profile, nil
}

// GetEntitlement reads the billing-derived entitlement view for the user.
func (r *PostgresRepository) GetEntitlement(ctx context.Context, userID string) (models.EntitlementRecord, bool, error) {
	row := r.pool.QueryRow(ctx, `
SELECT user_id, premium_access, updated_at
FROM premium_entitlements WHERE user_id = $1
`, userID)
	var record models.EntitlementRecord
	if err := row.Scan(&record.UserID, &record.PremiumAccess, &record.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.EntitlementRecord{}, false, nil
		}
		return models.EntitlementRecord{}, false, fmt.Errorf("get entitlement: %w", err)
	}
	return record, true, nil
}

// SetEntitlement materializes the billing view for a user.
func (r *PostgresRepository) SetEntitlement(ctx context.Context, userID string, premium bool) (models.EntitlementRecord, error) {
	if _, ok, err := r.GetUser(ctx, userID); err != nil {
		return models.EntitlementRecord{}, err
	} else if !ok {
		return models.EntitlementRecord{}, fmt.Errorf("user %s: %w", userID, ErrNotFound)
	}
	record := models.EntitlementRecord{UserID: userID, PremiumAccess: premium, UpdatedAt: r.now()}
	_, err := r.pool.Exec(ctx, `
INSERT INTO premium_entitlements (user_id, premium_access, updated_at)
VALUES ($1, $2, $3)
ON CONFLICT (user_id) DO UPDATE SET premium_access = EXCLUDED.premium_access, updated_at = EXCLUDED.updated_at
`, record.UserID, record.PremiumAccess, record.UpdatedAt)
	if err != nil {
		return models.EntitlementRecord{}, fmt.Errorf("set entitlement: %w", err)
	}
	return record, nil
}

// CreatePremiumFile registers a gated artifact and stores its bytes.
func (r *PostgresRepository) CreatePremiumFile(ctx context.Context, params CreatePremiumFileParams, content []byte) (models.PremiumFile, error) {
	title := strings.TrimSpace(params.Title)
	filename := sanitizeFilename(params.Filename)
	if title == "" {
		return models.PremiumFile{}, errors.New("title is required")
	}
	if len(title) > MaxFileTitleLength {
		return models.PremiumFile{}, errors.New("title exceeds maximum length")
	}
	if filename == "" {
		return models.PremiumFile{}, errors.New("filename is required")
	}
	if len(content) == 0 {
		return models.PremiumFile{}, errors.New("file content is required")
	}

	id, err := generateID()
	if err != nil {
		return models.PremiumFile{}, err
	}
	objectKey := fmt.Sprintf("premium/%s/%s", id, filename)
	contentType := strings.TrimSpace(params.ContentType)
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	if r.objectClient.Enabled() {
		reference, err := r.objectClient.Upload(ctx, objectKey, contentType, content)
		if err != nil {
			return models.PremiumFile{}, fmt.Errorf("upload premium file: %w", err)
		}
		objectKey = reference.Key
	} else {
		if err := writeContentFile(r.resolvedContentDir(), objectKey, content); err != nil {
			return models.PremiumFile{}, err
		}
	}

	file := models.PremiumFile{
		ID:          id,
		Title:       title,
		ObjectKey:   objectKey,
		ContentType: contentType,
		SizeBytes:   int64(len(content)),
		UploadedBy:  params.UploadedBy,
		CreatedAt:   r.now(),
	}
	_, err = r.pool.Exec(ctx, `
INSERT INTO premium_files (id, title, object_key, content_type, size_bytes, uploaded_by, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7)
`, file.ID, file.Title, file.ObjectKey, file.ContentType, file.SizeBytes, file.UploadedBy, file.CreatedAt)
	if err != nil {
		return models.PremiumFile{}, fmt.Errorf("insert premium file: %w", err)
	}
	return file, nil
}

// ListPremiumFiles returns the catalog ordered newest first.
func (r *PostgresRepository) ListPremiumFiles(ctx context.Context) ([]models.PremiumFile, error) {
	rows, err := r.pool.Query(ctx, `
SELECT id, title, object_key, content_type, size_bytes, uploaded_by, created_at
FROM premium_files ORDER BY created_at DESC, id DESC
`)
	if err != nil {
		return nil, fmt.Errorf("list premium files: %w", err)
	}
	defer rows.Close()
	var files []models.PremiumFile
	for rows.Next() {
		var file models.PremiumFile
		if err := rows.Scan(&file.ID, &file.Title, &file.ObjectKey, &file.ContentType, &file.SizeBytes, &file.UploadedBy, &file.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan premium file: %w", err)
		}
		files = append(files, file)
	}
	return files, rows.Err()
}

// GetPremiumFile fetches artifact metadata by identifier.
func (r *PostgresRepository) GetPremiumFile(ctx context.Context, id string) (models.PremiumFile, bool, error) {
	row := r.pool.QueryRow(ctx, `
SELECT id, title, object_key, content_type, size_bytes, uploaded_by, created_at
FROM premium_files WHERE id = $1
`, id)
	var file models.PremiumFile
	if err := row.Scan(&file.ID, &file.Title, &file.ObjectKey, &file.ContentType, &file.SizeBytes, &file.UploadedBy, &file.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.PremiumFile{}, false, nil
		}
		return models.PremiumFile{}, false, fmt.Errorf("get premium file: %w", err)
	}
	return file, true, nil
}

// DeletePremiumFile removes the artifact bytes and its catalog row.
func (r *PostgresRepository) DeletePremiumFile(ctx context.Context, id string) error {
	file, ok, err := r.GetPremiumFile(ctx, id)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("premium file %s: %w", id, ErrNotFound)
	}
	if r.objectClient.Enabled() {
		if err := r.objectClient.Delete(ctx, file.ObjectKey); err != nil {
			return fmt.Errorf("delete premium file bytes: %w", err)
		}
	} else {
		path, err := contentPathFor(r.resolvedContentDir(), file.ObjectKey)
		if err != nil {
			return err
		}
		if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("delete premium file bytes: %w", err)
		}
	}
	_, err = r.pool.Exec(ctx, `DELETE FROM premium_files WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete premium file: %w", err)
	}
	return nil
}

// OpenPremiumFile opens the artifact's bytes for streaming. An empty id
// selects the newest catalog entry.
func (r *PostgresRepository) OpenPremiumFile(ctx context.Context, id string) (models.PremiumFile, io.ReadCloser, error) {
	var file models.PremiumFile
	var ok bool
	var err error
	if id == "" {
		files, listErr := r.ListPremiumFiles(ctx)
		if listErr != nil {
			return models.PremiumFile{}, nil, listErr
		}
		if len(files) > 0 {
			file, ok = files[0], true
		}
	} else {
		file, ok, err = r.GetPremiumFile(ctx, id)
		if err != nil {
			return models.PremiumFile{}, nil, err
		}
	}
	if !ok {
		return models.PremiumFile{}, nil, fmt.Errorf("premium file %q: %w", id, ErrNotFound)
	}

	if r.objectClient.Enabled() {
		download, err := r.objectClient.Download(ctx, file.ObjectKey)
		if err != nil {
			return models.PremiumFile{}, nil, fmt.Errorf("download premium file %s: %w", file.ID, err)
		}
		return file, download.Body, nil
	}
	path, err := contentPathFor(r.resolvedContentDir(), file.ObjectKey)
	if err != nil {
		return models.PremiumFile{}, nil, err
	}
	reader, err := os.Open(path)
	if err != nil {
		return models.PremiumFile{}, nil, fmt.Errorf("open premium file %s: %w", file.ID, err)
	}
	return file, reader, nil
}

func (r *PostgresRepository) resolvedContentDir() string {
	if r.contentDir != "" {
		return r.contentDir
	}
	return filepath.Join("data", "content")
}

func scanUser(row pgx.Row) (models.User, bool, error) {
	var user models.User
	var roles []string
	if err := row.Scan(&user.ID, &user.Email, &user.DisplayName, &roles, &user.PasswordHash, &user.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.User{}, false, nil
		}
		return models.User{}, false, fmt.Errorf("scan user: %w", err)
	}
	user.Roles = stringsToRoles(roles)
	return user, true, nil
}

func scanProfile(row pgx.Row) (models.Profile, bool, error) {
	var profile models.Profile
	if err := row.Scan(&profile.UserID, &profile.FirstName, &profile.LastName, &profile.AvatarID,
		&profile.SubscriptionStart, &profile.SubscriptionEnd, &profile.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.Profile{}, false, nil
		}
		return models.Profile{}, false, fmt.Errorf("scan profile: %w", err)
	}
	return profile, true, nil
}

func rolesToStrings(roles []models.Role) []string {
	if len(roles) == 0 {
		return []string{}
	}
	out := make([]string, 0, len(roles))
	for _, role := range roles {
		out = append(out, string(role))
	}
	return out
}

func stringsToRoles(roles []string) []models.Role {
	if len(roles) == 0 {
		return nil
	}
	out := make([]models.Role, 0, len(roles))
	for _, role := range roles {
		out = append(out, models.Role(role))
	}
	return out
}

func trimmedOrNil(value *string) *string {
	if value == nil {
		return nil
	}
	trimmed := strings.TrimSpace(*value)
	return &trimmed
}

func utcOrNil(value *time.Time) *time.Time {
	if value == nil {
		return nil
	}
	utc := value.UTC()
	return &utc
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation
}

func rollbackTx(ctx context.Context, tx pgx.Tx) {
	if err := tx.Rollback(ctx); err != nil && !errors.Is(err, pgx.ErrTxClosed) {
		_ = err
	}
}
