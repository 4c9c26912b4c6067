package api

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"pressgate/internal/models"
	"pressgate/internal/storage"
)

const (
	defaultAvatarBaseURL   = "/static/avatars"
	defaultAvatarExtension = ".png"
)

type profileResponse struct {
	UserID            string `json:"userId"`
	Email             string `json:"email"`
	DisplayName       string `json:"displayName"`
	FirstName         string `json:"firstName"`
	LastName          string `json:"lastName"`
	AvatarID          string `json:"avatarId,omitempty"`
	AvatarURL         string `json:"avatarUrl,omitempty"`
	SubscriptionStart string `json:"subscriptionStart,omitempty"`
	SubscriptionEnd   string `json:"subscriptionEnd,omitempty"`
	UpdatedAt         string `json:"updatedAt"`
}

// GetProfile returns the caller's own profile. Identity comes from the
// validated session; a userId query parameter naming anyone else is rejected.
func (h *Handler) GetProfile(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		WriteMethodNotAllowed(w, r, http.MethodGet)
		return
	}
	user, ok := h.requireAuthenticatedUser(w, r)
	if !ok {
		return
	}
	if requested := strings.TrimSpace(r.URL.Query().Get("userId")); requested != "" && requested != user.ID {
		WriteError(w, http.StatusForbidden, fmt.Errorf("profile access denied"))
		return
	}

	profile, found, err := h.Store.GetProfile(r.Context(), user.ID)
	if err != nil {
		WriteError(w, http.StatusInternalServerError, fmt.Errorf("profile lookup failed"))
		return
	}
	if !found {
		WriteError(w, http.StatusNotFound, fmt.Errorf("profile not found"))
		return
	}
	WriteJSON(w, http.StatusOK, h.buildProfileResponse(user, profile))
}

type updateProfileRequest struct {
	UserID            *string    `json:"userId"`
	FirstName         *string    `json:"firstName"`
	LastName          *string    `json:"lastName"`
	AvatarID          *string    `json:"avatarId"`
	SubscriptionStart *time.Time `json:"subscriptionStart"`
	SubscriptionEnd   *time.Time `json:"subscriptionEnd"`
}

func (req updateProfileRequest) empty() bool {
	return req.FirstName == nil && req.LastName == nil && req.AvatarID == nil &&
		req.SubscriptionStart == nil && req.SubscriptionEnd == nil
}

type updateProfileResponse struct {
	Message string          `json:"message"`
	Profile profileResponse `json:"profile"`
}

// UpdateProfile applies a partial update to the caller's profile. Only fields
// present in the payload change; absent fields keep their stored values. A
// userId in the body naming another account is rejected rather than honored.
func (h *Handler) UpdateProfile(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		WriteMethodNotAllowed(w, r, http.MethodPost)
		return
	}
	user, ok := h.requireAuthenticatedUser(w, r)
	if !ok {
		return
	}
	var req updateProfileRequest
	if !DecodeAndValidate(w, r, &req) {
		return
	}
	if req.UserID != nil && strings.TrimSpace(*req.UserID) != user.ID {
		WriteError(w, http.StatusForbidden, fmt.Errorf("profile access denied"))
		return
	}
	if req.empty() {
		WriteError(w, http.StatusBadRequest, fmt.Errorf("no profile fields provided"))
		return
	}

	profile, err := h.Store.UpdateProfile(r.Context(), user.ID, storage.ProfileUpdate{
		FirstName:         req.FirstName,
		LastName:          req.LastName,
		AvatarID:          req.AvatarID,
		SubscriptionStart: req.SubscriptionStart,
		SubscriptionEnd:   req.SubscriptionEnd,
	})
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			WriteError(w, http.StatusNotFound, fmt.Errorf("profile not found"))
			return
		}
		WriteError(w, http.StatusBadRequest, err)
		return
	}
	WriteJSON(w, http.StatusOK, updateProfileResponse{
		Message: "Profile updated",
		Profile: h.buildProfileResponse(user, profile),
	})
}

func (h *Handler) buildProfileResponse(user models.User, profile models.Profile) profileResponse {
	resp := profileResponse{
		UserID:      user.ID,
		Email:       user.Email,
		DisplayName: user.DisplayName,
		FirstName:   profile.FirstName,
		LastName:    profile.LastName,
		AvatarID:    profile.AvatarID,
		AvatarURL:   h.avatarURL(profile.AvatarID),
		UpdatedAt:   profile.UpdatedAt.Format(time.RFC3339Nano),
	}
	if profile.SubscriptionStart != nil {
		resp.SubscriptionStart = profile.SubscriptionStart.Format(time.RFC3339Nano)
	}
	if profile.SubscriptionEnd != nil {
		resp.SubscriptionEnd = profile.SubscriptionEnd.Format(time.RFC3339Nano)
	}
	return resp
}

// avatarURL derives the public avatar location from the stored identifier.
// The derivation is pure: no filesystem or bucket probe, an empty identifier
// simply yields no URL.
func (h *Handler) avatarURL(avatarID string) string {
	if avatarID == "" {
		return ""
	}
	base := h.AvatarBaseURL
	if base == "" {
		base = defaultAvatarBaseURL
	}
	extension := h.AvatarExtension
	if extension == "" {
		extension = defaultAvatarExtension
	}
	return strings.TrimRight(base, "/") + "/" + avatarID + extension
}
