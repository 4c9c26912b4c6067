package api

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"pressgate/internal/auth"
	"pressgate/internal/models"
	"pressgate/internal/storage"
)

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginResponse struct {
	Message      string `json:"message"`
	SessionToken string `json:"sessionToken"`
	UserID       string `json:"user_id"`
}

// Login authenticates the email/password pair and issues a fresh session.
// Issuing always supersedes any prior session for the account, so at most one
// token is live per user at any time.
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		WriteMethodNotAllowed(w, r, http.MethodPost)
		return
	}
	var req loginRequest
	if !DecodeAndValidate(w, r, &req) {
		h.recorder().ObserveLogin("invalid_input")
		return
	}
	if req.Email == "" || req.Password == "" {
		h.recorder().ObserveLogin("invalid_input")
		WriteError(w, http.StatusBadRequest, fmt.Errorf("email and password are required"))
		return
	}

	user, err := h.Store.AuthenticateUser(r.Context(), req.Email, req.Password)
	if err != nil {
		if errors.Is(err, storage.ErrInvalidCredentials) || errors.Is(err, storage.ErrPasswordLoginUnsupported) {
			h.recorder().ObserveLogin("invalid_credentials")
			WriteError(w, http.StatusUnauthorized, fmt.Errorf("invalid email or password"))
			return
		}
		h.recorder().ObserveLogin("error")
		WriteError(w, http.StatusInternalServerError, fmt.Errorf("login failed"))
		return
	}

	token, expiresAt, err := h.sessionManager().Issue(r.Context(), user.ID)
	if err != nil {
		h.recorder().ObserveLogin("error")
		WriteError(w, http.StatusInternalServerError, fmt.Errorf("session could not be created"))
		return
	}

	h.setSessionCookie(w, r, token, expiresAt)
	h.recorder().ObserveLogin("success")
	WriteJSON(w, http.StatusOK, loginResponse{
		Message:      "Login successful",
		SessionToken: token,
		UserID:       user.ID,
	})
}

// Logout invalidates the caller's session and clears the cookie.
func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		WriteMethodNotAllowed(w, r, http.MethodPost)
		return
	}
	user, ok := h.requireAuthenticatedUser(w, r)
	if !ok {
		return
	}
	if err := h.sessionManager().Invalidate(r.Context(), user.ID); err != nil {
		WriteError(w, http.StatusInternalServerError, fmt.Errorf("logout failed"))
		return
	}
	h.clearSessionCookie(w, r)
	h.recorder().ObserveSessionEvent("logout")
	w.WriteHeader(http.StatusNoContent)
}

type sessionResponse struct {
	UserID      string   `json:"userId"`
	Email       string   `json:"email"`
	DisplayName string   `json:"displayName"`
	Roles       []string `json:"roles"`
	IssuedAt    string   `json:"issuedAt"`
	ExpiresAt   string   `json:"expiresAt,omitempty"`
}

// Session introspects the caller's current session.
func (h *Handler) Session(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		WriteMethodNotAllowed(w, r, http.MethodGet)
		return
	}
	user, record, ok := h.requireSession(w, r)
	if !ok {
		return
	}
	WriteJSON(w, http.StatusOK, buildSessionResponse(user.ID, user.Email, user.DisplayName, rolesAsStrings(user), record))
}

func buildSessionResponse(userID, email, displayName string, roles []string, record auth.SessionRecord) sessionResponse {
	resp := sessionResponse{
		UserID:      userID,
		Email:       email,
		DisplayName: displayName,
		Roles:       roles,
		IssuedAt:    record.IssuedAt.Format(time.RFC3339Nano),
	}
	if !record.ExpiresAt.IsZero() {
		resp.ExpiresAt = record.ExpiresAt.Format(time.RFC3339Nano)
	}
	return resp
}

func rolesAsStrings(user models.User) []string {
	roles := make([]string, 0, len(user.Roles))
	for _, role := range user.Roles {
		roles = append(roles, string(role))
	}
	return roles
}
