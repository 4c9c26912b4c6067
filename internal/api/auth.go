package api

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"pressgate/internal/auth"
	"pressgate/internal/models"
)

type contextKey string

const userContextKey contextKey = "pressgate.user"

// ContextWithUser returns a child context carrying the authenticated user.
func ContextWithUser(ctx context.Context, user models.User) context.Context {
	return context.WithValue(ctx, userContextKey, user)
}

// UserFromContext extracts the authenticated user installed by
// ContextWithUser, reporting whether one was present.
func UserFromContext(ctx context.Context) (models.User, bool) {
	user, ok := ctx.Value(userContextKey).(models.User)
	return user, ok
}

// ExtractToken pulls the session token from the Authorization header, the
// session cookie, or the session_token query parameter, in that order.
func ExtractToken(r *http.Request) string {
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	if header != "" {
		parts := strings.SplitN(header, " ", 2)
		if len(parts) == 2 && strings.EqualFold(parts[0], "Bearer") {
			if token := strings.TrimSpace(parts[1]); token != "" {
				return token
			}
		}
	}
	if cookie, err := r.Cookie(sessionCookieName); err == nil && cookie.Value != "" {
		return cookie.Value
	}
	return strings.TrimSpace(r.URL.Query().Get("session_token"))
}

// resolveSession maps the request's token to its session record and owning
// user. A missing or dead session yields ok=false with a nil error; a non-nil
// error means the session or user store could not answer.
func (h *Handler) resolveSession(r *http.Request) (models.User, auth.SessionRecord, bool, error) {
	token := ExtractToken(r)
	if token == "" {
		return models.User{}, auth.SessionRecord{}, false, nil
	}
	record, ok, err := h.sessionManager().Resolve(r.Context(), token)
	if err != nil {
		return models.User{}, auth.SessionRecord{}, false, err
	}
	if !ok {
		return models.User{}, auth.SessionRecord{}, false, nil
	}
	user, ok, err := h.Store.GetUser(r.Context(), record.UserID)
	if err != nil {
		return models.User{}, auth.SessionRecord{}, false, err
	}
	if !ok {
		return models.User{}, auth.SessionRecord{}, false, nil
	}
	return user, record, true, nil
}

func (h *Handler) requireAuthenticatedUser(w http.ResponseWriter, r *http.Request) (models.User, bool) {
	user, _, ok := h.requireSession(w, r)
	return user, ok
}

func (h *Handler) requireSession(w http.ResponseWriter, r *http.Request) (models.User, auth.SessionRecord, bool) {
	user, record, ok, err := h.resolveSession(r)
	if err != nil {
		WriteError(w, http.StatusInternalServerError, fmt.Errorf("session lookup failed"))
		return models.User{}, auth.SessionRecord{}, false
	}
	if !ok {
		WriteError(w, http.StatusUnauthorized, fmt.Errorf("authentication required"))
		return models.User{}, auth.SessionRecord{}, false
	}
	return user, record, true
}

func (h *Handler) requireRole(w http.ResponseWriter, r *http.Request, roles ...models.Role) (models.User, bool) {
	user, ok := h.requireAuthenticatedUser(w, r)
	if !ok {
		return models.User{}, false
	}
	for _, role := range roles {
		if user.HasRole(role) {
			return user, true
		}
	}
	WriteError(w, http.StatusForbidden, fmt.Errorf("forbidden"))
	return models.User{}, false
}
