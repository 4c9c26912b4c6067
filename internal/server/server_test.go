package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"pressgate/internal/api"
	"pressgate/internal/auth"
	"pressgate/internal/observability/metrics"
	"pressgate/internal/storage"
)

func newTestServer(t *testing.T, cfg Config) (*Server, *storage.Storage) {
	t.Helper()
	store, err := storage.NewStorage(filepath.Join(t.TempDir(), "store.json"))
	if err != nil {
		t.Fatalf("NewStorage returned error: %v", err)
	}
	handler := api.NewHandler(store, auth.NewSessionManager())
	if cfg.Metrics == nil {
		cfg.Metrics = metrics.New()
	}
	handler.Metrics = cfg.Metrics
	srv, err := New(handler, cfg)
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	return srv, store
}

func seedMember(t *testing.T, store *storage.Storage, email string) string {
	t.Helper()
	user, err := store.CreateUser(context.Background(), storage.CreateUserParams{
		DisplayName: "Member",
		Email:       email,
		Password:    "correct horse",
		Roles:       []string{"member"},
	})
	if err != nil {
		t.Fatalf("CreateUser returned error: %v", err)
	}
	return user.ID
}

func TestRoutesAreRegistered(t *testing.T) {
	srv, store := newTestServer(t, Config{})
	seedMember(t, store, "reader@example.com")
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	// Public routes respond without a session.
	resp, err := http.Get(ts.URL + "/healthz")
	if err != nil {
		t.Fatalf("healthz request failed: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("healthz status %d", resp.StatusCode)
	}

	resp, err = http.Get(ts.URL + "/metrics")
	if err != nil {
		t.Fatalf("metrics request failed: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("metrics status %d", resp.StatusCode)
	}

	body, _ := json.Marshal(map[string]string{"email": "reader@example.com", "password": "correct horse"})
	resp, err = http.Post(ts.URL+"/login", "application/json", bytes.NewReader(body))
	if err != nil {
		t.Fatalf("login request failed: %v", err)
	}
	var login struct {
		SessionToken string `json:"sessionToken"`
		UserID       string `json:"user_id"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&login); err != nil {
		t.Fatalf("decode login: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK || login.SessionToken == "" {
		t.Fatalf("login status %d token %q", resp.StatusCode, login.SessionToken)
	}

	// Authenticated route honors the bearer token end to end.
	req, _ := http.NewRequest(http.MethodGet, ts.URL+"/get-profile", nil)
	req.Header.Set("Authorization", "Bearer "+login.SessionToken)
	resp, err = http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("get-profile request failed: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("get-profile status %d", resp.StatusCode)
	}

	// Unknown routes produce the JSON not-found envelope.
	resp, err = http.Get(ts.URL + "/nope")
	if err != nil {
		t.Fatalf("unknown route request failed: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404 for unknown route, got %d", resp.StatusCode)
	}
}

func TestLoginRateLimitPerIP(t *testing.T) {
	srv, store := newTestServer(t, Config{
		RateLimit: RateLimitConfig{LoginLimit: 2, LoginWindow: time.Minute},
	})
	seedMember(t, store, "reader@example.com")

	body := `{"email":"reader@example.com","password":"wrong"}`
	statuses := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		req := httptest.NewRequest(http.MethodPost, "/login", strings.NewReader(body))
		req.RemoteAddr = "10.1.2.3:4567"
		rec := httptest.NewRecorder()
		srv.Handler().ServeHTTP(rec, req)
		statuses = append(statuses, rec.Code)
	}
	if statuses[0] != http.StatusUnauthorized || statuses[1] != http.StatusUnauthorized {
		t.Fatalf("expected first two attempts to reach the handler, got %v", statuses)
	}
	if statuses[2] != http.StatusTooManyRequests {
		t.Fatalf("expected third attempt to be throttled, got %v", statuses)
	}

	// A different IP is unaffected.
	req := httptest.NewRequest(http.MethodPost, "/login", strings.NewReader(body))
	req.RemoteAddr = "10.9.9.9:4567"
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected fresh ip to pass the limiter, got %d", rec.Code)
	}
}

func TestGlobalRateLimit(t *testing.T) {
	srv, _ := newTestServer(t, Config{
		RateLimit: RateLimitConfig{GlobalRPS: 0.001, GlobalBurst: 1},
	})

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected first request to pass, got %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("expected second request to be throttled, got %d", rec.Code)
	}
}

func TestMetricsMiddlewareObservesRequests(t *testing.T) {
	recorder := metrics.New()
	srv, _ := newTestServer(t, Config{Metrics: recorder})

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	var buf bytes.Buffer
	recorder.Write(&buf)
	if !strings.Contains(buf.String(), `pressgate_http_requests_total{method="GET",path="/healthz",status="200"} 1`) {
		t.Fatalf("expected request metric, got:\n%s", buf.String())
	}
}
