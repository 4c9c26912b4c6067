package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"pressgate/internal/models"
)

func newDataset() dataset {
	return dataset{
		Users:        make(map[string]models.User),
		Profiles:     make(map[string]models.Profile),
		Entitlements: make(map[string]models.EntitlementRecord),
		PremiumFiles: make(map[string]models.PremiumFile),
	}
}

func (s *Storage) ensureDatasetInitializedLocked() {
	if s.data.Users == nil {
		s.data.Users = make(map[string]models.User)
	}
	if s.data.Profiles == nil {
		s.data.Profiles = make(map[string]models.Profile)
	}
	if s.data.Entitlements == nil {
		s.data.Entitlements = make(map[string]models.EntitlementRecord)
	}
	if s.data.PremiumFiles == nil {
		s.data.PremiumFiles = make(map[string]models.PremiumFile)
	}
}

// NewStorage opens the JSON-backed datastore at path, creating the file on
// first use.
func NewStorage(path string, opts ...Option) (*Storage, error) {
	store := &Storage{
		filePath: path,
		now:      func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		if opt != nil {
			opt.applyJSON(store)
		}
	}
	store.objectClient = newObjectStorageClient(store.objectStorage)
	if err := store.load(); err != nil {
		return nil, err
	}
	return store, nil
}

func (s *Storage) load() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(s.filePath), 0o755); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}

	file, err := os.Open(s.filePath)
	if errors.Is(err, os.ErrNotExist) {
		s.data = newDataset()
		return nil
	} else if err != nil {
		return fmt.Errorf("open store file: %w", err)
	}
	defer file.Close()

	var stored storedDataset
	decoder := json.NewDecoder(file)
	if err := decoder.Decode(&stored); err != nil {
		if errors.Is(err, io.EOF) {
			s.data = newDataset()
			return nil
		}
		return fmt.Errorf("decode store file: %w", err)
	}

	s.data = stored.toDataset()
	s.ensureDatasetInitializedLocked()
	return nil
}

func (s *Storage) persistDataset(data dataset) error {
	if s.persistOverride != nil {
		if err := s.persistOverride(data); err != nil {
			return err
		}
	}

	dir := filepath.Dir(s.filePath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}

	tmpFile, err := os.CreateTemp(dir, "store-*.json")
	if err != nil {
		return fmt.Errorf("create temp store file: %w", err)
	}
	tmpPath := tmpFile.Name()
	success := false
	defer func() {
		if !success {
			_ = tmpFile.Close()
			_ = os.Remove(tmpPath)
		}
	}()

	encoder := json.NewEncoder(tmpFile)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(storedFromDataset(data)); err != nil {
		return fmt.Errorf("encode store file: %w", err)
	}
	if err := tmpFile.Sync(); err != nil {
		return fmt.Errorf("flush store file: %w", err)
	}
	if err := tmpFile.Close(); err != nil {
		return fmt.Errorf("close temp store file: %w", err)
	}

	if err := os.Rename(tmpPath, s.filePath); err != nil {
		return fmt.Errorf("replace store file: %w", err)
	}
	success = true
	return nil
}

func cloneDataset(src dataset) dataset {
	clone := newDataset()
	for id, user := range src.Users {
		cloned := user
		if user.Roles != nil {
			cloned.Roles = append([]models.Role(nil), user.Roles...)
		}
		clone.Users[id] = cloned
	}
	for id, profile := range src.Profiles {
		cloned := profile
		if profile.SubscriptionStart != nil {
			start := *profile.SubscriptionStart
			cloned.SubscriptionStart = &start
		}
		if profile.SubscriptionEnd != nil {
			end := *profile.SubscriptionEnd
			cloned.SubscriptionEnd = &end
		}
		clone.Profiles[id] = cloned
	}
	for id, record := range src.Entitlements {
		clone.Entitlements[id] = record
	}
	for id, file := range src.PremiumFiles {
		clone.PremiumFiles[id] = file
	}
	return clone
}

// Ping reports whether the datastore file remains writable.
func (s *Storage) Ping(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	dir := filepath.Dir(s.filePath)
	info, err := os.Stat(dir)
	if err != nil {
		return fmt.Errorf("stat data dir: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("data path %s is not a directory", dir)
	}
	return nil
}

// Close is a no-op for the file-backed driver.
func (s *Storage) Close(context.Context) error {
	return nil
}

// CreateUser registers a user and seeds an empty profile for it. Emails are
// unique case-insensitively.
func (s *Storage) CreateUser(_ context.Context, params CreateUserParams) (models.User, error) {
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

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.data.Users {
		if normalizeEmail(existing.Email) == email {
			return models.User{}, ErrEmailTaken
		}
	}

	id, err := generateID()
	if err != nil {
		return models.User{}, err
	}
	now := s.now()
	user := models.User{
		ID:           id,
		Email:        email,
		DisplayName:  displayName,
		Roles:        normalizeRoles(params.Roles),
		PasswordHash: hashed,
		CreatedAt:    now,
	}

	updated := cloneDataset(s.data)
	updated.Users[user.ID] = user
	updated.Profiles[user.ID] = models.Profile{UserID: user.ID, UpdatedAt: now}
	if err := s.persistDataset(updated); err != nil {
		return models.User{}, err
	}
	s.data = updated
	return user, nil
}

// GetUser fetches a user by identifier.
func (s *Storage) GetUser(_ context.Context, id string) (models.User, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	user, ok := s.data.Users[id]
	return user, ok, nil
}

// FindUserByEmail fetches a user by email, case-insensitively.
func (s *Storage) FindUserByEmail(_ context.Context, email string) (models.User, bool, error) {
	normalized := normalizeEmail(email)
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, user := range s.data.Users {
		if normalizeEmail(user.Email) == normalized {
			return user, true, nil
		}
	}
	return models.User{}, false, nil
}

// ListUsers returns all users ordered by creation time.
func (s *Storage) ListUsers(_ context.Context) ([]models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	users := make([]models.User, 0, len(s.data.Users))
	for _, user := range s.data.Users {
		users = append(users, user)
	}
	sort.Slice(users, func(i, j int) bool {
		if users[i].CreatedAt.Equal(users[j].CreatedAt) {
			return users[i].ID < users[j].ID
		}
		return users[i].CreatedAt.Before(users[j].CreatedAt)
	})
	return users, nil
}

// SetUserPassword replaces the stored password hash for the provided user.
func (s *Storage) SetUserPassword(_ context.Context, id, password string) (models.User, error) {
	if len(password) < 8 {
		return models.User{}, errors.New("password must be at least 8 characters")
	}
	hashed, err := hashPassword(password)
	if err != nil {
		return models.User{}, fmt.Errorf("hash password: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	updated := cloneDataset(s.data)
	user, ok := updated.Users[id]
	if !ok {
		return models.User{}, fmt.Errorf("user %s: %w", id, ErrNotFound)
	}
	user.PasswordHash = hashed
	updated.Users[id] = user

	if err := s.persistDataset(updated); err != nil {
		return models.User{}, err
	}
	s.data = updated
	return user, nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func normalizeRoles(input []string) []models.Role {
	if len(input) == 0 {
		return nil
	}
	roles := make([]models.Role, 0, len(input))
	seen := make(map[string]struct{})
	for _, role := range input {
		trimmed := strings.ToLower(strings.TrimSpace(role))
		if trimmed == "" {
			continue
		}
		if _, exists := seen[trimmed]; exists {
			continue
		}
		seen[trimmed] = struct{}{}
		roles = append(roles, models.Role(trimmed))
	}
	if len(roles) == 0 {
		return nil
	}
	sort.Slice(roles, func(i, j int) bool { return roles[i] < roles[j] })
	return roles
}
