package api

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"pressgate/internal/models"
	"pressgate/internal/storage"
)

const maxUploadBytes = 64 << 20

type premiumFileResponse struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	ContentType string `json:"contentType"`
	SizeBytes   int64  `json:"sizeBytes"`
	UploadedBy  string `json:"uploadedBy,omitempty"`
	CreatedAt   string `json:"createdAt"`
}

// PremiumFiles handles the admin artifact catalog: GET lists the registered
// artifacts, POST uploads a new one as multipart form data with a "title"
// field and a "file" part.
func (h *Handler) PremiumFiles(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		if _, ok := h.requireRole(w, r, models.RoleAdmin); !ok {
			return
		}
		files, err := h.Store.ListPremiumFiles(r.Context())
		if err != nil {
			WriteError(w, http.StatusInternalServerError, fmt.Errorf("file listing failed"))
			return
		}
		response := make([]premiumFileResponse, 0, len(files))
		for _, file := range files {
			response = append(response, buildPremiumFileResponse(file))
		}
		WriteJSON(w, http.StatusOK, response)
	case http.MethodPost:
		actor, ok := h.requireRole(w, r, models.RoleAdmin)
		if !ok {
			return
		}
		h.handleUploadPremiumFile(actor, w, r)
	default:
		WriteMethodNotAllowed(w, r, http.MethodGet, http.MethodPost)
	}
}

func (h *Handler) handleUploadPremiumFile(actor models.User, w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		WriteError(w, http.StatusBadRequest, fmt.Errorf("invalid multipart payload: %v", err))
		return
	}
	defer func() {
		_ = r.MultipartForm.RemoveAll()
	}()

	title := strings.TrimSpace(r.FormValue("title"))
	part, header, err := r.FormFile("file")
	if err != nil {
		WriteError(w, http.StatusBadRequest, fmt.Errorf("file part is required"))
		return
	}
	defer part.Close()

	content, err := io.ReadAll(part)
	if err != nil {
		WriteError(w, http.StatusBadRequest, fmt.Errorf("read upload: %v", err))
		return
	}
	if title == "" {
		title = header.Filename
	}

	file, err := h.Store.CreatePremiumFile(r.Context(), storage.CreatePremiumFileParams{
		Title:       title,
		Filename:    header.Filename,
		ContentType: header.Header.Get("Content-Type"),
		UploadedBy:  actor.ID,
	}, content)
	if err != nil {
		WriteError(w, http.StatusBadRequest, err)
		return
	}
	WriteJSON(w, http.StatusCreated, buildPremiumFileResponse(file))
}

// PremiumFileByID handles /api/files/{id}: GET fetches artifact metadata and
// DELETE removes the artifact and its bytes. Admin only.
func (h *Handler) PremiumFileByID(w http.ResponseWriter, r *http.Request) {
	fileID := strings.Trim(strings.TrimPrefix(r.URL.Path, "/api/files/"), "/")
	if fileID == "" || strings.Contains(fileID, "/") {
		WriteError(w, http.StatusNotFound, fmt.Errorf("file id missing"))
		return
	}
	switch r.Method {
	case http.MethodGet:
		if _, ok := h.requireRole(w, r, models.RoleAdmin); !ok {
			return
		}
		file, found, err := h.Store.GetPremiumFile(r.Context(), fileID)
		if err != nil {
			WriteError(w, http.StatusInternalServerError, fmt.Errorf("file lookup failed"))
			return
		}
		if !found {
			WriteError(w, http.StatusNotFound, fmt.Errorf("file %s not found", fileID))
			return
		}
		WriteJSON(w, http.StatusOK, buildPremiumFileResponse(file))
	case http.MethodDelete:
		if _, ok := h.requireRole(w, r, models.RoleAdmin); !ok {
			return
		}
		if err := h.Store.DeletePremiumFile(r.Context(), fileID); err != nil {
			if errors.Is(err, storage.ErrNotFound) {
				WriteError(w, http.StatusNotFound, fmt.Errorf("file %s not found", fileID))
				return
			}
			WriteError(w, http.StatusInternalServerError, fmt.Errorf("file delete failed"))
			return
		}
		w.WriteHeader(http.StatusNoContent)
	default:
		WriteMethodNotAllowed(w, r, http.MethodGet, http.MethodDelete)
	}
}

func buildPremiumFileResponse(file models.PremiumFile) premiumFileResponse {
	return premiumFileResponse{
		ID:          file.ID,
		Title:       file.Title,
		ContentType: file.ContentType,
		SizeBytes:   file.SizeBytes,
		UploadedBy:  file.UploadedBy,
		CreatedAt:   file.CreatedAt.Format(time.RFC3339Nano),
	}
}
