package api

import (
	"net/http"
	"strings"
	"time"
)

const sessionCookieName = "pressgate_session"

// SessionCookieSecureMode controls when the Secure attribute is set on the
// session cookie.
type SessionCookieSecureMode string

const (
	// SessionCookieSecureAuto marks the cookie Secure only when the request
	// arrived over TLS (directly or via a trusted proxy header).
	SessionCookieSecureAuto SessionCookieSecureMode = "auto"
	// SessionCookieSecureAlways marks the cookie Secure unconditionally.
	SessionCookieSecureAlways SessionCookieSecureMode = "always"
)

// SessionCookiePolicy captures the deployment-dependent cookie attributes.
type SessionCookiePolicy struct {
	SameSite   http.SameSite
	SecureMode SessionCookieSecureMode
}

func (h *Handler) sessionCookiePolicy() SessionCookiePolicy {
	policy := h.SessionCookie
	if policy.SameSite == 0 {
		policy.SameSite = http.SameSiteLaxMode
	}
	if policy.SecureMode == "" {
		policy.SecureMode = SessionCookieSecureAuto
	}
	return policy
}

// setSessionCookie installs the session token as an HttpOnly cookie. A zero
// expiry produces a session cookie with no Expires attribute.
func (h *Handler) setSessionCookie(w http.ResponseWriter, r *http.Request, token string, expires time.Time) {
	policy := h.sessionCookiePolicy()
	cookie := &http.Cookie{
		Name:     sessionCookieName,
		Value:    token,
		Path:     "/",
		HttpOnly: true,
		SameSite: policy.SameSite,
		Secure:   policy.SecureMode == SessionCookieSecureAlways || isSecureRequest(r),
	}
	if !expires.IsZero() {
		cookie.Expires = expires
	}
	http.SetCookie(w, cookie)
}

func (h *Handler) clearSessionCookie(w http.ResponseWriter, r *http.Request) {
	policy := h.sessionCookiePolicy()
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookieName,
		Value:    "",
		Path:     "/",
		HttpOnly: true,
		SameSite: policy.SameSite,
		Secure:   policy.SecureMode == SessionCookieSecureAlways || isSecureRequest(r),
		MaxAge:   -1,
	})
}

func isSecureRequest(r *http.Request) bool {
	if r.TLS != nil {
		return true
	}
	proto := r.Header.Get("X-Forwarded-Proto")
	if proto == "" {
		return false
	}
	if idx := strings.IndexByte(proto, ','); idx >= 0 {
		proto = proto[:idx]
	}
	return strings.EqualFold(strings.TrimSpace(proto), "https")
}
