package api

import (
	"bytes"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"
)

func multipartUpload(t *testing.T, title, filename string, content []byte) (*bytes.Buffer, string) {
	t.Helper()
	buf := &bytes.Buffer{}
	writer := multipart.NewWriter(buf)
	if err := writer.WriteField("title", title); err != nil {
		t.Fatalf("write title field: %v", err)
	}
	part, err := writer.CreateFormFile("file", filename)
	if err != nil {
		t.Fatalf("create file part: %v", err)
	}
	if _, err := part.Write(content); err != nil {
		t.Fatalf("write file part: %v", err)
	}
	if err := writer.Close(); err != nil {
		t.Fatalf("close multipart writer: %v", err)
	}
	return buf, writer.FormDataContentType()
}

func TestPremiumFilesRequireAdmin(t *testing.T) {
	handler, store := newTestHandler(t)
	createHandlerUser(t, store, "reader@example.com")
	token, _ := loginUser(t, handler, "reader@example.com", "correct horse")

	rec := httptest.NewRecorder()
	handler.PremiumFiles(rec, bearerRequest(http.MethodGet, "/api/files", token, nil))
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for non-admin, got %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	handler.PremiumFiles(rec, httptest.NewRequest(http.MethodGet, "/api/files", nil))
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without session, got %d", rec.Code)
	}
}

func TestPremiumFileUploadListDelete(t *testing.T) {
	handler, store := newTestHandler(t)
	createHandlerUser(t, store, "admin@example.com", "admin")
	token, adminID := loginUser(t, handler, "admin@example.com", "correct horse")

	body, contentType := multipartUpload(t, "Subscriber Guide", "guide.pdf", []byte("guide bytes"))
	req := bearerRequest(http.MethodPost, "/api/files", token, body.Bytes())
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	handler.PremiumFiles(rec, req)
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	var uploaded premiumFileResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &uploaded); err != nil {
		t.Fatalf("decode upload response: %v", err)
	}
	if uploaded.Title != "Subscriber Guide" || uploaded.SizeBytes != int64(len("guide bytes")) {
		t.Fatalf("unexpected upload response %+v", uploaded)
	}
	if uploaded.UploadedBy != adminID {
		t.Fatalf("expected uploader %s, got %s", adminID, uploaded.UploadedBy)
	}

	rec = httptest.NewRecorder()
	handler.PremiumFiles(rec, bearerRequest(http.MethodGet, "/api/files", token, nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 list, got %d", rec.Code)
	}
	var listed []premiumFileResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &listed); err != nil {
		t.Fatalf("decode list response: %v", err)
	}
	if len(listed) != 1 || listed[0].ID != uploaded.ID {
		t.Fatalf("unexpected listing %+v", listed)
	}

	rec = httptest.NewRecorder()
	handler.PremiumFileByID(rec, bearerRequest(http.MethodDelete, "/api/files/"+uploaded.ID, token, nil))
	if rec.Code != http.StatusNoContent {
		t.Fatalf("expected 204 delete, got %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	handler.PremiumFileByID(rec, bearerRequest(http.MethodGet, "/api/files/"+uploaded.ID, token, nil))
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 after delete, got %d", rec.Code)
	}
}

func TestPremiumFileUploadRequiresFilePart(t *testing.T) {
	handler, store := newTestHandler(t)
	createHandlerUser(t, store, "admin@example.com", "admin")
	token, _ := loginUser(t, handler, "admin@example.com", "correct horse")

	buf := &bytes.Buffer{}
	writer := multipart.NewWriter(buf)
	_ = writer.WriteField("title", "No File")
	_ = writer.Close()

	req := bearerRequest(http.MethodPost, "/api/files", token, buf.Bytes())
	req.Header.Set("Content-Type", writer.FormDataContentType())
	rec := httptest.NewRecorder()
	handler.PremiumFiles(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 without file part, got %d", rec.Code)
	}
}
