package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestGetProfileRequiresSession(t *testing.T) {
	handler, _ := newTestHandler(t)
	rec := httptest.NewRecorder()
	handler.GetProfile(rec, httptest.NewRequest(http.MethodGet, "/get-profile", nil))
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
}

func TestGetProfileRejectsForeignUserID(t *testing.T) {
	handler, store := newTestHandler(t)
	createHandlerUser(t, store, "reader@example.com")
	otherID := createHandlerUser(t, store, "other@example.com")
	token, userID := loginUser(t, handler, "reader@example.com", "correct horse")

	rec := httptest.NewRecorder()
	handler.GetProfile(rec, bearerRequest(http.MethodGet, "/get-profile?userId="+otherID, token, nil))
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for foreign userId, got %d", rec.Code)
	}

	// Naming yourself is allowed.
	rec = httptest.NewRecorder()
	handler.GetProfile(rec, bearerRequest(http.MethodGet, "/get-profile?userId="+userID, token, nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 for own userId, got %d", rec.Code)
	}
}

func TestUpdateProfilePartialAndValidation(t *testing.T) {
	handler, store := newTestHandler(t)
	createHandlerUser(t, store, "reader@example.com")
	token, userID := loginUser(t, handler, "reader@example.com", "correct horse")

	// Seed two fields, then change only one.
	body := []byte(`{"firstName":"Ada","lastName":"Lovelace"}`)
	rec := httptest.NewRecorder()
	handler.UpdateProfile(rec, bearerRequest(http.MethodPost, "/update-profile", token, body))
	if rec.Code != http.StatusOK {
		t.Fatalf("seed update failed: %d %s", rec.Code, rec.Body.String())
	}

	rec = httptest.NewRecorder()
	handler.UpdateProfile(rec, bearerRequest(http.MethodPost, "/update-profile", token, []byte(`{"firstName":"Augusta"}`)))
	if rec.Code != http.StatusOK {
		t.Fatalf("partial update failed: %d %s", rec.Code, rec.Body.String())
	}
	var resp updateProfileResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode update response: %v", err)
	}
	if resp.Profile.FirstName != "Augusta" || resp.Profile.LastName != "Lovelace" {
		t.Fatalf("expected partial update to keep lastName, got %+v", resp.Profile)
	}

	// Empty payloads and foreign identities are rejected.
	rec = httptest.NewRecorder()
	handler.UpdateProfile(rec, bearerRequest(http.MethodPost, "/update-profile", token, []byte(`{}`)))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for empty update, got %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	handler.UpdateProfile(rec, bearerRequest(http.MethodPost, "/update-profile", token, []byte(`{"userId":"someone-else","firstName":"Eve"}`)))
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for foreign userId, got %d", rec.Code)
	}

	// A matching userId in the body is fine.
	rec = httptest.NewRecorder()
	handler.UpdateProfile(rec, bearerRequest(http.MethodPost, "/update-profile", token, []byte(`{"userId":"`+userID+`","firstName":"Ada"}`)))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 for own userId, got %d", rec.Code)
	}
}

func TestAvatarURLDerivation(t *testing.T) {
	handler := &Handler{}
	if got := handler.avatarURL(""); got != "" {
		t.Fatalf("expected empty url for empty avatar id, got %q", got)
	}
	if got := handler.avatarURL("avatar-7"); got != "/static/avatars/avatar-7.png" {
		t.Fatalf("unexpected default derivation %q", got)
	}

	handler.AvatarBaseURL = "https://cdn.example.com/avatars/"
	handler.AvatarExtension = ".webp"
	if got := handler.avatarURL("u1"); got != "https://cdn.example.com/avatars/u1.webp" {
		t.Fatalf("unexpected configured derivation %q", got)
	}
}
