package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"

	"pressgate/internal/auth"
	"pressgate/internal/entitlement"
	"pressgate/internal/gate"
	"pressgate/internal/observability/metrics"
	"pressgate/internal/storage"
)

// Pinger reports the health of an injected dependency.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Handler wires the HTTP surface to the datastore, the session manager, and
// the premium release pipeline. Optional fields may be populated after
// NewHandler and before the handler begins serving.
type Handler struct {
	Store        storage.Repository
	Sessions     *auth.SessionManager
	Entitlements *entitlement.Checker
	Metrics      *metrics.Recorder

	// AvatarBaseURL and AvatarExtension derive a public avatar URL from the
	// stored avatar identifier.
	AvatarBaseURL   string
	AvatarExtension string

	SessionCookie SessionCookiePolicy

	// RateLimiter is only consulted for health reporting; enforcement happens
	// in the server middleware.
	RateLimiter Pinger

	releaser *gate.Releaser

	fallbackOnce     sync.Once
	fallbackSessions *auth.SessionManager
}

// NewHandler constructs a Handler around the provided datastore and session
// manager and assembles the premium release pipeline from them.
func NewHandler(store storage.Repository, sessions *auth.SessionManager) *Handler {
	return &Handler{
		Store:        store,
		Sessions:     sessions,
		Entitlements: entitlement.NewChecker(store),
	}
}

// gateReleaser assembles the release pipeline on first use so late wiring of
// Sessions or Entitlements is still picked up.
func (h *Handler) gateReleaser() *gate.Releaser {
	if h.releaser == nil {
		h.releaser = gate.NewReleaser(h.sessionManager(), h.entitlementChecker(), repositoryLibrary{store: h.Store})
	}
	return h.releaser
}

func (h *Handler) sessionManager() *auth.SessionManager {
	if h.Sessions != nil {
		return h.Sessions
	}
	h.fallbackOnce.Do(func() {
		h.fallbackSessions = auth.NewSessionManager()
	})
	return h.fallbackSessions
}

func (h *Handler) recorder() *metrics.Recorder {
	if h.Metrics != nil {
		return h.Metrics
	}
	return metrics.Default()
}

func (h *Handler) entitlementChecker() *entitlement.Checker {
	if h.Entitlements == nil {
		h.Entitlements = entitlement.NewChecker(h.Store)
	}
	return h.Entitlements
}

// Health reports liveness alongside per-dependency status.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		WriteMethodNotAllowed(w, r, http.MethodGet)
		return
	}
	components, overall, status := h.componentHealth(r.Context())
	WriteJSON(w, status, map[string]any{
		"status":     overall,
		"components": components,
	})
}

// repositoryLibrary adapts storage.Repository to the gate.Library contract.
type repositoryLibrary struct {
	store storage.Repository
}

func (l repositoryLibrary) Open(ctx context.Context, fileID string) (gate.Artifact, error) {
	file, reader, err := l.store.OpenPremiumFile(ctx, fileID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return gate.Artifact{}, fmt.Errorf("premium file %q: %w", fileID, gate.ErrArtifactNotFound)
		}
		return gate.Artifact{}, err
	}
	name := file.Title
	if name == "" {
		name = file.ID
	}
	return gate.Artifact{
		Name:        name,
		ContentType: file.ContentType,
		SizeBytes:   file.SizeBytes,
		Content:     reader,
	}, nil
}
