// Package gate authorizes the release of premium artifacts. Each request
// walks a fixed sequence of checks: session validity, then entitlement, then
// the actual transfer. Only the final step touches the artifact bytes; every
// earlier transition is a side-effect-free decision.
package gate

import (
	"context"
	"errors"
	"io"
)

// Outcome is the terminal state of a release request.
type Outcome string

const (
	// OutcomeUnauthorized means the session credentials were missing or invalid.
	OutcomeUnauthorized Outcome = "unauthorized"
	// OutcomeForbidden means the session is valid but lacks premium entitlement.
	OutcomeForbidden Outcome = "forbidden"
	// OutcomeReleased means the artifact was opened for transfer.
	OutcomeReleased Outcome = "released"
	// OutcomeReleaseFailed means the artifact could not be opened or streamed.
	OutcomeReleaseFailed Outcome = "release_failed"
)

// ErrArtifactNotFound is returned by a Library when no artifact matches the
// requested identifier.
var ErrArtifactNotFound = errors.New("artifact not found")

// SessionValidator confirms that a token is the live session for a user.
type SessionValidator interface {
	Validate(ctx context.Context, userID, token string) (bool, error)
}

// EntitlementChecker resolves premium access for a user.
type EntitlementChecker interface {
	IsPremium(ctx context.Context, userID string) (bool, error)
}

// Artifact is an opened premium file ready to stream. The caller owns Content
// and must close it.
type Artifact struct {
	Name        string
	ContentType string
	SizeBytes   int64
	Content     io.ReadCloser
}

// Library opens gated artifacts by identifier. An empty identifier selects
// the library's default artifact.
type Library interface {
	Open(ctx context.Context, fileID string) (Artifact, error)
}

// Releaser composes session validation, entitlement checking, and artifact
// access into a single authorization pipeline.
type Releaser struct {
	sessions     SessionValidator
	entitlements EntitlementChecker
	library      Library
}

// NewReleaser constructs a Releaser from its collaborators.
func NewReleaser(sessions SessionValidator, entitlements EntitlementChecker, library Library) *Releaser {
	return &Releaser{sessions: sessions, entitlements: entitlements, library: library}
}

// Release authorizes and opens the artifact. Denials are reported through the
// outcome with a nil error; a non-nil error means a collaborator failed
// (session store, entitlement store, or ErrArtifactNotFound) and no access
// decision was made. A transfer failure while opening yields
// OutcomeReleaseFailed with the underlying error.
func (r *Releaser) Release(ctx context.Context, userID, token, fileID string) (Artifact, Outcome, error) {
	valid, err := r.sessions.Validate(ctx, userID, token)
	if err != nil {
		return Artifact{}, "", err
	}
	if !valid {
		return Artifact{}, OutcomeUnauthorized, nil
	}

	premium, err := r.entitlements.IsPremium(ctx, userID)
	if err != nil {
		return Artifact{}, "", err
	}
	if !premium {
		return Artifact{}, OutcomeForbidden, nil
	}

	artifact, err := r.library.Open(ctx, fileID)
	if err != nil {
		if errors.Is(err, ErrArtifactNotFound) {
			return Artifact{}, "", err
		}
		return Artifact{}, OutcomeReleaseFailed, err
	}
	return artifact, OutcomeReleased, nil
}
