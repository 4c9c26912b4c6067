package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"pressgate/internal/models"
)

// CreatePremiumFile registers a gated artifact and stores its bytes, in the
// configured bucket when object storage is enabled and under the local
// content directory otherwise.
func (s *Storage) CreatePremiumFile(ctx context.Context, params CreatePremiumFileParams, content []byte) (models.PremiumFile, error) {
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

	if s.objectClient.Enabled() {
		reference, err := s.objectClient.Upload(ctx, objectKey, contentType, content)
		if err != nil {
			return models.PremiumFile{}, fmt.Errorf("upload premium file: %w", err)
		}
		objectKey = reference.Key
	} else {
		if err := s.writeLocalContent(objectKey, content); err != nil {
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
		CreatedAt:   s.now(),
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	updated := cloneDataset(s.data)
	updated.PremiumFiles[file.ID] = file
	if err := s.persistDataset(updated); err != nil {
		return models.PremiumFile{}, err
	}
	s.data = updated
	return file, nil
}

// ListPremiumFiles returns the catalog ordered newest first.
func (s *Storage) ListPremiumFiles(_ context.Context) ([]models.PremiumFile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return sortPremiumFiles(s.data.PremiumFiles), nil
}

// GetPremiumFile fetches artifact metadata by identifier.
func (s *Storage) GetPremiumFile(_ context.Context, id string) (models.PremiumFile, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	file, ok := s.data.PremiumFiles[id]
	return file, ok, nil
}

// DeletePremiumFile removes the artifact bytes and its catalog entry.
func (s *Storage) DeletePremiumFile(ctx context.Context, id string) error {
	s.mu.Lock()
	file, ok := s.data.PremiumFiles[id]
	s.mu.Unlock()
	if !ok {
		return fmt.Errorf("premium file %s: %w", id, ErrNotFound)
	}

	if s.objectClient.Enabled() {
		if err := s.objectClient.Delete(ctx, file.ObjectKey); err != nil {
			return fmt.Errorf("delete premium file bytes: %w", err)
		}
	} else {
		path, err := s.localContentPath(file.ObjectKey)
		if err != nil {
			return err
		}
		if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("delete premium file bytes: %w", err)
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	updated := cloneDataset(s.data)
	delete(updated.PremiumFiles, id)
	if err := s.persistDataset(updated); err != nil {
		return err
	}
	s.data = updated
	return nil
}

// OpenPremiumFile opens the artifact's bytes for streaming. An empty id
// selects the newest catalog entry. The caller owns the returned reader.
func (s *Storage) OpenPremiumFile(ctx context.Context, id string) (models.PremiumFile, io.ReadCloser, error) {
	s.mu.RLock()
	var file models.PremiumFile
	var ok bool
	if id == "" {
		files := sortPremiumFiles(s.data.PremiumFiles)
		if len(files) > 0 {
			file, ok = files[0], true
		}
	} else {
		file, ok = s.data.PremiumFiles[id]
	}
	s.mu.RUnlock()
	if !ok {
		return models.PremiumFile{}, nil, fmt.Errorf("premium file %q: %w", id, ErrNotFound)
	}

	if s.objectClient.Enabled() {
		download, err := s.objectClient.Download(ctx, file.ObjectKey)
		if err != nil {
			return models.PremiumFile{}, nil, fmt.Errorf("download premium file %s: %w", file.ID, err)
		}
		return file, download.Body, nil
	}

	path, err := s.localContentPath(file.ObjectKey)
	if err != nil {
		return models.PremiumFile{}, nil, err
	}
	reader, err := os.Open(path)
	if err != nil {
		return models.PremiumFile{}, nil, fmt.Errorf("open premium file %s: %w", file.ID, err)
	}
	return file, reader, nil
}

func (s *Storage) writeLocalContent(objectKey string, content []byte) error {
	return writeContentFile(s.resolvedContentDir(), objectKey, content)
}

func (s *Storage) localContentPath(objectKey string) (string, error) {
	return contentPathFor(s.resolvedContentDir(), objectKey)
}

func (s *Storage) resolvedContentDir() string {
	if s.contentDir != "" {
		return s.contentDir
	}
	return filepath.Join(filepath.Dir(s.filePath), "content")
}

func writeContentFile(dir, objectKey string, content []byte) error {
	path, err := contentPathFor(dir, objectKey)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create content dir: %w", err)
	}
	if err := os.WriteFile(path, content, 0o644); err != nil {
		return fmt.Errorf("write premium file bytes: %w", err)
	}
	return nil
}

func contentPathFor(dir, objectKey string) (string, error) {
	cleaned := filepath.Clean(filepath.Join(dir, filepath.FromSlash(objectKey)))
	if !strings.HasPrefix(cleaned, filepath.Clean(dir)+string(os.PathSeparator)) {
		return "", fmt.Errorf("object key %q escapes content dir", objectKey)
	}
	return cleaned, nil
}

func sortPremiumFiles(byID map[string]models.PremiumFile) []models.PremiumFile {
	files := make([]models.PremiumFile, 0, len(byID))
	for _, file := range byID {
		files = append(files, file)
	}
	sort.Slice(files, func(i, j int) bool {
		if files[i].CreatedAt.Equal(files[j].CreatedAt) {
			return files[i].ID > files[j].ID
		}
		return files[i].CreatedAt.After(files[j].CreatedAt)
	})
	return files
}

func sanitizeFilename(name string) string {
	trimmed := strings.TrimSpace(name)
	if trimmed == "" {
		return ""
	}
	base := filepath.Base(filepath.FromSlash(trimmed))
	if base == "." || base == string(os.PathSeparator) {
		return ""
	}
	return base
}
