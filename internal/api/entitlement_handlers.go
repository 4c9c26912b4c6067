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

type checkPremiumRequest struct {
	UserID string `json:"userId"`
}

type checkPremiumResponse struct {
	IsPremium bool `json:"isPremium"`
}

// CheckPremium resolves whether a user currently holds premium access. A user
// with no entitlement record is reported as non-premium; only a store failure
// produces an error response.
func (h *Handler) CheckPremium(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		WriteMethodNotAllowed(w, r, http.MethodPost)
		return
	}
	var req checkPremiumRequest
	if !DecodeAndValidate(w, r, &req) {
		return
	}
	userID := strings.TrimSpace(req.UserID)
	if userID == "" {
		h.recorder().ObserveEntitlementCheck("invalid_input")
		WriteError(w, http.StatusBadRequest, fmt.Errorf("userId is required"))
		return
	}

	premium, err := h.entitlementChecker().IsPremium(r.Context(), userID)
	if err != nil {
		h.recorder().ObserveEntitlementCheck("error")
		WriteError(w, http.StatusInternalServerError, fmt.Errorf("entitlement lookup failed"))
		return
	}
	if premium {
		h.recorder().ObserveEntitlementCheck("premium")
	} else {
		h.recorder().ObserveEntitlementCheck("standard")
	}
	WriteJSON(w, http.StatusOK, checkPremiumResponse{IsPremium: premium})
}

type setEntitlementRequest struct {
	Premium bool `json:"premium"`
}

type entitlementResponse struct {
	UserID        string `json:"userId"`
	PremiumAccess bool   `json:"premiumAccess"`
	UpdatedAt     string `json:"updatedAt"`
}

// EntitlementByUser handles PUT /api/entitlements/{userId}, materializing the
// billing system's verdict for a user. Admin only.
func (h *Handler) EntitlementByUser(w http.ResponseWriter, r *http.Request) {
	userID := strings.Trim(strings.TrimPrefix(r.URL.Path, "/api/entitlements/"), "/")
	if userID == "" || strings.Contains(userID, "/") {
		WriteError(w, http.StatusNotFound, fmt.Errorf("entitlement user id missing"))
		return
	}
	if r.Method != http.MethodPut {
		WriteMethodNotAllowed(w, r, http.MethodPut)
		return
	}
	if _, ok := h.requireRole(w, r, models.RoleAdmin); !ok {
		return
	}
	var req setEntitlementRequest
	if !DecodeAndValidate(w, r, &req) {
		return
	}
	record, err := h.Store.SetEntitlement(r.Context(), userID, req.Premium)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			WriteError(w, http.StatusNotFound, fmt.Errorf("user %s not found", userID))
			return
		}
		WriteError(w, http.StatusInternalServerError, fmt.Errorf("entitlement update failed"))
		return
	}
	WriteJSON(w, http.StatusOK, entitlementResponse{
		UserID:        record.UserID,
		PremiumAccess: record.PremiumAccess,
		UpdatedAt:     record.UpdatedAt.Format(time.RFC3339Nano),
	})
}
