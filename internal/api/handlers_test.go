package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"pressgate/internal/auth"
	"pressgate/internal/observability/metrics"
	"pressgate/internal/storage"
)

func newTestHandler(t *testing.T) (*Handler, *storage.Storage) {
	t.Helper()
	store, err := storage.NewStorage(filepath.Join(t.TempDir(), "store.json"))
	if err != nil {
		t.Fatalf("NewStorage returned error: %v", err)
	}
	handler := NewHandler(store, auth.NewSessionManager())
	handler.Metrics = metrics.New()
	return handler, store
}

func createHandlerUser(t *testing.T, store *storage.Storage, email string, roles ...string) string {
	t.Helper()
	if len(roles) == 0 {
		roles = []string{"member"}
	}
	user, err := store.CreateUser(context.Background(), storage.CreateUserParams{
		DisplayName: "Test Member",
		Email:       email,
		Password:    "correct horse",
		Roles:       roles,
	})
	if err != nil {
		t.Fatalf("CreateUser returned error: %v", err)
	}
	return user.ID
}

func loginUser(t *testing.T, handler *Handler, email, password string) (string, string) {
	t.Helper()
	body, _ := json.Marshal(map[string]string{"email": email, "password": password})
	req := httptest.NewRequest(http.MethodPost, "/login", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	handler.Login(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("login failed with status %d: %s", rec.Code, rec.Body.String())
	}
	var resp loginResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode login response: %v", err)
	}
	return resp.SessionToken, resp.UserID
}

func bearerRequest(method, target, token string, body []byte) *http.Request {
	var req *http.Request
	if body != nil {
		req = httptest.NewRequest(method, target, bytes.NewReader(body))
	} else {
		req = httptest.NewRequest(method, target, nil)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	return req
}

func TestHealthReportsComponents(t *testing.T) {
	handler, _ := newTestHandler(t)

	rec := httptest.NewRecorder()
	handler.Health(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var resp struct {
		Status     string `json:"status"`
		Components []struct {
			Component string `json:"component"`
			Status    string `json:"status"`
		} `json:"components"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode health response: %v", err)
	}
	if resp.Status != "ok" {
		t.Fatalf("expected ok status, got %s", resp.Status)
	}
	seen := map[string]bool{}
	for _, component := range resp.Components {
		seen[component.Component] = component.Status == "ok"
	}
	if !seen["datastore"] || !seen["sessions"] {
		t.Fatalf("expected datastore and sessions components, got %+v", resp.Components)
	}
}

// The full member journey: login, check entitlement, read and update the
// profile, then fetch the gated artifact once premium access is granted.
func TestMemberJourneyFromLoginToDownload(t *testing.T) {
	handler, store := newTestHandler(t)
	ctx := context.Background()
	userID := createHandlerUser(t, store, "reader@example.com")
	adminID := createHandlerUser(t, store, "admin@example.com", "admin")

	content := []byte("gated newsletter issue")
	if _, err := store.CreatePremiumFile(ctx, storage.CreatePremiumFileParams{
		Title:       "Issue 12",
		Filename:    "issue-12.pdf",
		ContentType: "application/pdf",
		UploadedBy:  adminID,
	}, content); err != nil {
		t.Fatalf("CreatePremiumFile returned error: %v", err)
	}

	token, loggedInID := loginUser(t, handler, "reader@example.com", "correct horse")
	if loggedInID != userID {
		t.Fatalf("expected login as %s, got %s", userID, loggedInID)
	}

	// Not yet premium.
	body, _ := json.Marshal(map[string]string{"userId": userID})
	rec := httptest.NewRecorder()
	handler.CheckPremium(rec, httptest.NewRequest(http.MethodPost, "/check-premium", bytes.NewReader(body)))
	if rec.Code != http.StatusOK {
		t.Fatalf("check-premium status %d", rec.Code)
	}
	var premium checkPremiumResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &premium); err != nil {
		t.Fatalf("decode check-premium: %v", err)
	}
	if premium.IsPremium {
		t.Fatal("expected non-premium before entitlement is granted")
	}

	// Download is forbidden without entitlement.
	rec = httptest.NewRecorder()
	handler.DownloadFile(rec, bearerRequest(http.MethodGet, "/download-file", token, nil))
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403 before entitlement, got %d", rec.Code)
	}

	if _, err := store.SetEntitlement(ctx, userID, true); err != nil {
		t.Fatalf("SetEntitlement returned error: %v", err)
	}

	// Partial profile update, then read it back with the derived avatar URL.
	update, _ := json.Marshal(map[string]string{"firstName": "Ada", "avatarId": "avatar-7"})
	rec = httptest.NewRecorder()
	handler.UpdateProfile(rec, bearerRequest(http.MethodPost, "/update-profile", token, update))
	if rec.Code != http.StatusOK {
		t.Fatalf("update-profile status %d: %s", rec.Code, rec.Body.String())
	}

	rec = httptest.NewRecorder()
	handler.GetProfile(rec, bearerRequest(http.MethodGet, "/get-profile", token, nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("get-profile status %d", rec.Code)
	}
	var profile profileResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &profile); err != nil {
		t.Fatalf("decode profile: %v", err)
	}
	if profile.FirstName != "Ada" {
		t.Fatalf("expected first name Ada, got %s", profile.FirstName)
	}
	if profile.AvatarURL != "/static/avatars/avatar-7.png" {
		t.Fatalf("unexpected avatar url %s", profile.AvatarURL)
	}

	// Premium download succeeds via query credentials.
	target := fmt.Sprintf("/download-file?user_id=%s&session_token=%s", userID, token)
	rec = httptest.NewRecorder()
	handler.DownloadFile(rec, httptest.NewRequest(http.MethodGet, target, nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 download, got %d: %s", rec.Code, rec.Body.String())
	}
	if rec.Body.String() != string(content) {
		t.Fatalf("unexpected download body %q", rec.Body.String())
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/pdf" {
		t.Fatalf("unexpected content type %s", ct)
	}

	// A stale token is rejected once a new login supersedes it.
	fresh, _ := loginUser(t, handler, "reader@example.com", "correct horse")
	rec = httptest.NewRecorder()
	handler.DownloadFile(rec, bearerRequest(http.MethodGet, "/download-file", token, nil))
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for superseded token, got %d", rec.Code)
	}
	rec = httptest.NewRecorder()
	handler.DownloadFile(rec, bearerRequest(http.MethodGet, "/download-file", fresh, nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected fresh token to download, got %d", rec.Code)
	}
}
