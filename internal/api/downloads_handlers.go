package api

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"pressgate/internal/gate"
)

// DownloadFile streams a premium artifact to an entitled caller. The session
// may arrive as user_id/session_token query parameters, a bearer token, or
// the session cookie; an optional file_id selects a specific artifact.
func (h *Handler) DownloadFile(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		WriteMethodNotAllowed(w, r, http.MethodGet)
		return
	}

	token := ExtractToken(r)
	if token == "" {
		h.recorder().ObserveDownload(string(gate.OutcomeUnauthorized))
		WriteError(w, http.StatusUnauthorized, fmt.Errorf("authentication required"))
		return
	}
	userID := strings.TrimSpace(r.URL.Query().Get("user_id"))
	if userID == "" {
		record, ok, err := h.sessionManager().Resolve(r.Context(), token)
		if err != nil {
			h.recorder().ObserveDownload("error")
			WriteError(w, http.StatusInternalServerError, fmt.Errorf("session lookup failed"))
			return
		}
		if !ok {
			h.recorder().ObserveDownload(string(gate.OutcomeUnauthorized))
			WriteError(w, http.StatusUnauthorized, fmt.Errorf("invalid session"))
			return
		}
		userID = record.UserID
	}
	fileID := strings.TrimSpace(r.URL.Query().Get("file_id"))

	artifact, outcome, err := h.gateReleaser().Release(r.Context(), userID, token, fileID)
	if err != nil {
		if errors.Is(err, gate.ErrArtifactNotFound) {
			h.recorder().ObserveDownload("not_found")
			WriteError(w, http.StatusNotFound, fmt.Errorf("file not found"))
			return
		}
		if outcome == gate.OutcomeReleaseFailed {
			h.recorder().ObserveDownload(string(outcome))
			WriteError(w, http.StatusInternalServerError, fmt.Errorf("file transfer failed"))
			return
		}
		h.recorder().ObserveDownload("error")
		WriteError(w, http.StatusInternalServerError, fmt.Errorf("download authorization failed"))
		return
	}

	switch outcome {
	case gate.OutcomeUnauthorized:
		h.recorder().ObserveDownload(string(outcome))
		WriteError(w, http.StatusUnauthorized, fmt.Errorf("invalid session"))
		return
	case gate.OutcomeForbidden:
		h.recorder().ObserveDownload(string(outcome))
		WriteError(w, http.StatusForbidden, fmt.Errorf("premium access required"))
		return
	case gate.OutcomeReleased:
	default:
		h.recorder().ObserveDownload("error")
		WriteError(w, http.StatusInternalServerError, fmt.Errorf("download authorization failed"))
		return
	}
	defer artifact.Content.Close()

	contentType := artifact.ContentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", artifact.Name))
	if artifact.SizeBytes > 0 {
		w.Header().Set("Content-Length", strconv.FormatInt(artifact.SizeBytes, 10))
	}
	w.WriteHeader(http.StatusOK)

	written, err := io.Copy(w, artifact.Content)
	h.recorder().AddDownloadBytes(written)
	if err != nil {
		// Headers are already out; the broken stream is all the client sees.
		h.recorder().ObserveDownload(string(gate.OutcomeReleaseFailed))
		return
	}
	h.recorder().ObserveDownload(string(gate.OutcomeReleased))
}
