package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestLoginValidatesInput(t *testing.T) {
	handler, store := newTestHandler(t)
	createHandlerUser(t, store, "reader@example.com")

	cases := []struct {
		name   string
		body   string
		status int
	}{
		{name: "empty body", body: "", status: http.StatusBadRequest},
		{name: "missing password", body: `{"email":"reader@example.com"}`, status: http.StatusBadRequest},
		{name: "missing email", body: `{"password":"correct horse"}`, status: http.StatusBadRequest},
		{name: "unknown field", body: `{"email":"a@b.c","password":"x","extra":true}`, status: http.StatusBadRequest},
		{name: "wrong password", body: `{"email":"reader@example.com","password":"wrong"}`, status: http.StatusUnauthorized},
		{name: "unknown account", body: `{"email":"nobody@example.com","password":"correct horse"}`, status: http.StatusUnauthorized},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/login", bytes.NewBufferString(tc.body))
			rec := httptest.NewRecorder()
			handler.Login(rec, req)
			if rec.Code != tc.status {
				t.Fatalf("expected status %d, got %d: %s", tc.status, rec.Code, rec.Body.String())
			}
		})
	}
}

func TestLoginIssuesSessionAndCookie(t *testing.T) {
	handler, store := newTestHandler(t)
	userID := createHandlerUser(t, store, "reader@example.com")

	body, _ := json.Marshal(map[string]string{"email": "reader@example.com", "password": "correct horse"})
	req := httptest.NewRequest(http.MethodPost, "/login", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	handler.Login(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	var resp loginResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.UserID != userID {
		t.Fatalf("expected user_id %s, got %s", userID, resp.UserID)
	}
	if resp.SessionToken == "" {
		t.Fatal("expected a session token")
	}
	if resp.Message == "" {
		t.Fatal("expected a confirmation message")
	}

	cookies := rec.Result().Cookies()
	var session *http.Cookie
	for _, cookie := range cookies {
		if cookie.Name == sessionCookieName {
			session = cookie
		}
	}
	if session == nil {
		t.Fatalf("expected %s cookie, got %+v", sessionCookieName, cookies)
	}
	if session.Value != resp.SessionToken {
		t.Fatal("expected cookie to carry the issued token")
	}
	if !session.HttpOnly {
		t.Fatal("expected HttpOnly session cookie")
	}
}

func TestLoginSupersedesPriorSession(t *testing.T) {
	handler, store := newTestHandler(t)
	createHandlerUser(t, store, "reader@example.com")

	first, _ := loginUser(t, handler, "reader@example.com", "correct horse")
	second, _ := loginUser(t, handler, "reader@example.com", "correct horse")

	rec := httptest.NewRecorder()
	handler.Session(rec, bearerRequest(http.MethodGet, "/api/session", first, nil))
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected superseded token to be rejected, got %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	handler.Session(rec, bearerRequest(http.MethodGet, "/api/session", second, nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected fresh token to introspect, got %d", rec.Code)
	}
}

func TestLogoutInvalidatesSession(t *testing.T) {
	handler, store := newTestHandler(t)
	createHandlerUser(t, store, "reader@example.com")
	token, _ := loginUser(t, handler, "reader@example.com", "correct horse")

	rec := httptest.NewRecorder()
	handler.Logout(rec, bearerRequest(http.MethodPost, "/logout", token, nil))
	if rec.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	handler.Session(rec, bearerRequest(http.MethodGet, "/api/session", token, nil))
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected token to be dead after logout, got %d", rec.Code)
	}
}

func TestSessionIntrospection(t *testing.T) {
	handler, store := newTestHandler(t)
	userID := createHandlerUser(t, store, "reader@example.com")
	token, _ := loginUser(t, handler, "reader@example.com", "correct horse")

	rec := httptest.NewRecorder()
	handler.Session(rec, bearerRequest(http.MethodGet, "/api/session", token, nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var resp sessionResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode session response: %v", err)
	}
	if resp.UserID != userID {
		t.Fatalf("expected user %s, got %s", userID, resp.UserID)
	}
	if resp.IssuedAt == "" {
		t.Fatal("expected issuedAt to be populated")
	}
	if resp.ExpiresAt != "" {
		t.Fatalf("expected no expiry by default, got %s", resp.ExpiresAt)
	}
}

func TestSessionCookieAuthenticates(t *testing.T) {
	handler, store := newTestHandler(t)
	createHandlerUser(t, store, "reader@example.com")
	token, _ := loginUser(t, handler, "reader@example.com", "correct horse")

	req := httptest.NewRequest(http.MethodGet, "/api/session", nil)
	req.AddCookie(&http.Cookie{Name: sessionCookieName, Value: token})
	rec := httptest.NewRecorder()
	handler.Session(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected cookie auth to work, got %d", rec.Code)
	}
}
