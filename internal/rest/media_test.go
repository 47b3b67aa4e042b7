package rest

import (
	"bytes"
	"database/sql"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	_ "modernc.org/sqlite"

	"github.com/salonkit/mediavault/media/application"
	"github.com/salonkit/mediavault/media/persistence"
	"github.com/salonkit/mediavault/media/storage"
	"github.com/salonkit/mediavault/media/usage"
)

type apiFixture struct {
	db     *sql.DB
	router *gin.Engine
}

func setupApi(t *testing.T) *apiFixture {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("Failed to open database: %v", err)
	}
	// An in-memory database lives on a single connection
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })

	_, err = db.Exec(`
		CREATE TABLE assets (
			id TEXT PRIMARY KEY,
			owner_id TEXT NOT NULL,
			salon_id TEXT NOT NULL,
			storage_key TEXT NOT NULL UNIQUE,
			url TEXT NOT NULL,
			original_name TEXT NOT NULL,
			mime_type TEXT NOT NULL,
			size_bytes INTEGER NOT NULL,
			category TEXT NOT NULL,
			alt_text TEXT,
			created_at TIMESTAMP NOT NULL,
			deleted_at TIMESTAMP
		);
		CREATE TABLE blog_posts (id TEXT PRIMARY KEY, title TEXT NOT NULL, cover_image_url TEXT);
		CREATE TABLE salon_profiles (id TEXT PRIMARY KEY, name TEXT NOT NULL, logo_url TEXT, cover_url TEXT);
		CREATE TABLE partner_cards (id TEXT PRIMARY KEY, name TEXT NOT NULL, image_url TEXT);
		CREATE TABLE staff_profiles (id TEXT PRIMARY KEY, name TEXT NOT NULL, photo_url TEXT);
	`)
	if err != nil {
		t.Fatalf("Failed to create tables: %v", err)
	}

	store, err := storage.NewDiskStore(t.TempDir(), "http://localhost:8080/files")
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}

	registry := usage.NewRegistry(time.Second, zerolog.Nop())
	usage.RegisterCMSResolvers(registry, db)

	catalog := application.NewCatalogService(
		persistence.NewAssetRepository(db),
		store,
		registry,
		application.NewAccessGate([]byte("test-secret"), time.Minute),
		application.UploadLimits{
			MaxSizeBytes:     5 << 20,
			AllowedMimeTypes: map[string]bool{"image/jpeg": true, "image/png": true},
		},
	)

	router := gin.New()
	NewApi(router, NewMediaHandler(catalog, true))

	return &apiFixture{db: db, router: router}
}

func actorHeaders(req *http.Request, actorID, salonID uuid.UUID, role string) {
	req.Header.Set("X-Actor-Id", actorID.String())
	req.Header.Set("X-Actor-Salon", salonID.String())
	req.Header.Set("X-Actor-Role", role)
}

func multipartUpload(t *testing.T, filename, mimeType, category string, content []byte) (*bytes.Buffer, string) {
	t.Helper()

	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)

	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename=%q`, filename))
	header.Set("Content-Type", mimeType)
	part, err := writer.CreatePart(header)
	if err != nil {
		t.Fatalf("Failed to create form file: %v", err)
	}
	if _, err := part.Write(content); err != nil {
		t.Fatalf("Failed to write file content: %v", err)
	}

	if err := writer.WriteField("category", category); err != nil {
		t.Fatalf("Failed to write category field: %v", err)
	}

	if err := writer.Close(); err != nil {
		t.Fatalf("Failed to close multipart writer: %v", err)
	}

	return body, writer.FormDataContentType()
}

func uploadAsset(t *testing.T, f *apiFixture, actorID, salonID uuid.UUID) map[string]any {
	t.Helper()

	body, contentType := multipartUpload(t, "photo.jpg", "image/jpeg", "PROFILE_IMAGE", []byte("jpeg bytes"))
	req := httptest.NewRequest(http.MethodPost, "/media", body)
	req.Header.Set("Content-Type", contentType)
	actorHeaders(req, actorID, salonID, "staff")

	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)

	if w.Code != http.StatusCreated {
		t.Fatalf("Upload status = %d, body %s", w.Code, w.Body.String())
	}

	var resp struct {
		Asset map[string]any `json:"asset"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("Failed to decode upload response: %v", err)
	}
	return resp.Asset
}

func TestMediaApi_UploadListGetDeleteFlow(t *testing.T) {
	f := setupApi(t)
	actorID, salonID := uuid.New(), uuid.New()

	asset := uploadAsset(t, f, actorID, salonID)
	assetID := asset["id"].(string)

	if asset["originalName"] != "photo.jpg" {
		t.Errorf("originalName = %v", asset["originalName"])
	}
	if asset["mimeType"] != "image/jpeg" {
		t.Errorf("mimeType = %v", asset["mimeType"])
	}

	// List with stats
	req := httptest.NewRequest(http.MethodGet, "/media?stats=true", nil)
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("List status = %d", w.Code)
	}

	var listResp struct {
		Files      []map[string]any `json:"files"`
		Pagination map[string]any   `json:"pagination"`
		Stats      map[string]any   `json:"stats"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &listResp); err != nil {
		t.Fatalf("Failed to decode list response: %v", err)
	}
	if len(listResp.Files) != 1 {
		t.Errorf("List returned %d files, want 1", len(listResp.Files))
	}
	if listResp.Pagination["total"].(float64) != 1 {
		t.Errorf("Pagination total = %v, want 1", listResp.Pagination["total"])
	}
	if listResp.Stats["totalFiles"].(float64) != 1 {
		t.Errorf("Stats totalFiles = %v, want 1", listResp.Stats["totalFiles"])
	}

	// Get detail with empty usage list
	req = httptest.NewRequest(http.MethodGet, "/media/"+assetID, nil)
	w = httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("Get status = %d", w.Code)
	}

	var getResp struct {
		Usages []map[string]any `json:"usages"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &getResp); err != nil {
		t.Fatalf("Failed to decode get response: %v", err)
	}
	if len(getResp.Usages) != 0 {
		t.Errorf("Fresh asset reports %d usages, want 0", len(getResp.Usages))
	}

	// First delete soft-deletes
	req = httptest.NewRequest(http.MethodDelete, "/media/"+assetID, nil)
	actorHeaders(req, actorID, salonID, "staff")
	w = httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("First delete status = %d, body %s", w.Code, w.Body.String())
	}

	// Second delete purges
	req = httptest.NewRequest(http.MethodDelete, "/media/"+assetID, nil)
	actorHeaders(req, actorID, salonID, "staff")
	w = httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("Second delete status = %d, body %s", w.Code, w.Body.String())
	}
	var delResp map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &delResp); err != nil {
		t.Fatalf("Failed to decode delete response: %v", err)
	}
	if delResp["purged"] != true {
		t.Errorf("Second delete response = %v, want purged", delResp)
	}

	// The asset is gone
	req = httptest.NewRequest(http.MethodGet, "/media/"+assetID, nil)
	w = httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	if w.Code != http.StatusNotFound {
		t.Errorf("Get after purge = %d, want 404", w.Code)
	}
}

func TestMediaApi_UploadRejectsUnsupportedMime(t *testing.T) {
	f := setupApi(t)

	body, contentType := multipartUpload(t, "script.sh", "application/x-sh", "OTHER", []byte("#!/bin/sh"))
	req := httptest.NewRequest(http.MethodPost, "/media", body)
	req.Header.Set("Content-Type", contentType)
	actorHeaders(req, uuid.New(), uuid.New(), "staff")

	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)

	if w.Code != http.StatusUnsupportedMediaType {
		t.Errorf("Status = %d, want 415; body %s", w.Code, w.Body.String())
	}
}

func TestMediaApi_UploadRequiresActor(t *testing.T) {
	f := setupApi(t)

	body, contentType := multipartUpload(t, "photo.jpg", "image/jpeg", "OTHER", []byte("x"))
	req := httptest.NewRequest(http.MethodPost, "/media", body)
	req.Header.Set("Content-Type", contentType)

	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)

	if w.Code != http.StatusUnauthorized {
		t.Errorf("Status = %d, want 401", w.Code)
	}
}

func TestMediaApi_DeleteBlockedWhileInUse(t *testing.T) {
	f := setupApi(t)
	actorID, salonID := uuid.New(), uuid.New()

	asset := uploadAsset(t, f, actorID, salonID)
	assetID := asset["id"].(string)
	assetURL := asset["url"].(string)

	if _, err := f.db.Exec(`INSERT INTO blog_posts (id, title, cover_image_url) VALUES ('p1', 'Post', ?)`, assetURL); err != nil {
		t.Fatalf("Failed to seed reference: %v", err)
	}

	req := httptest.NewRequest(http.MethodDelete, "/media/"+assetID, nil)
	actorHeaders(req, actorID, salonID, "staff")
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)

	if w.Code != http.StatusConflict {
		t.Fatalf("Status = %d, want 409; body %s", w.Code, w.Body.String())
	}

	var resp struct {
		Code   string           `json:"code"`
		Usages []map[string]any `json:"usages"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if resp.Code != "in_use" {
		t.Errorf("Code = %q, want in_use", resp.Code)
	}
	if len(resp.Usages) != 1 {
		t.Errorf("Usages = %v, want the blog post", resp.Usages)
	}

	// force=true goes through
	req = httptest.NewRequest(http.MethodDelete, "/media/"+assetID+"?force=true", nil)
	actorHeaders(req, actorID, salonID, "staff")
	w = httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Errorf("Forced delete status = %d, body %s", w.Code, w.Body.String())
	}
}

func TestMediaApi_CrossOwnerConfirmationFlow(t *testing.T) {
	f := setupApi(t)
	uploaderID, salonID := uuid.New(), uuid.New()

	asset := uploadAsset(t, f, uploaderID, salonID)
	assetID := asset["id"].(string)

	// A stranger is forbidden
	req := httptest.NewRequest(http.MethodDelete, "/media/"+assetID, nil)
	actorHeaders(req, uuid.New(), uuid.New(), "staff")
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	if w.Code != http.StatusForbidden {
		t.Fatalf("Stranger delete status = %d, want 403", w.Code)
	}

	// The salon owner gets 428 with a token
	ownerID := uuid.New()
	req = httptest.NewRequest(http.MethodDelete, "/media/"+assetID, nil)
	actorHeaders(req, ownerID, salonID, "salon_owner")
	w = httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	if w.Code != http.StatusPreconditionRequired {
		t.Fatalf("Salon owner delete status = %d, want 428; body %s", w.Code, w.Body.String())
	}

	var resp struct {
		ConfirmationToken string `json:"confirmationToken"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if resp.ConfirmationToken == "" {
		t.Fatal("No confirmation token in 428 response")
	}

	// Retrying with the token succeeds
	req = httptest.NewRequest(http.MethodDelete, "/media/"+assetID+"?confirmationToken="+resp.ConfirmationToken, nil)
	actorHeaders(req, ownerID, salonID, "salon_owner")
	w = httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Errorf("Confirmed delete status = %d, body %s", w.Code, w.Body.String())
	}
}

func TestMediaApi_RestoreFlow(t *testing.T) {
	f := setupApi(t)
	actorID, salonID := uuid.New(), uuid.New()

	asset := uploadAsset(t, f, actorID, salonID)
	assetID := asset["id"].(string)

	// Soft-delete, then restore
	req := httptest.NewRequest(http.MethodDelete, "/media/"+assetID, nil)
	actorHeaders(req, actorID, salonID, "staff")
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("Delete status = %d", w.Code)
	}

	req = httptest.NewRequest(http.MethodPost, "/media/"+assetID+"/restore", nil)
	w = httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("Restore status = %d, body %s", w.Code, w.Body.String())
	}

	var resp struct {
		Asset map[string]any `json:"asset"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("Failed to decode restore response: %v", err)
	}
	if _, deleted := resp.Asset["deletedAt"]; deleted {
		t.Error("Restored asset still carries deletedAt")
	}

	// Restoring an unknown asset is 404
	req = httptest.NewRequest(http.MethodPost, "/media/"+uuid.NewString()+"/restore", nil)
	w = httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	if w.Code != http.StatusNotFound {
		t.Errorf("Restore of unknown asset = %d, want 404", w.Code)
	}
}

func TestMediaApi_Healthz(t *testing.T) {
	f := setupApi(t)

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("Healthz status = %d, want 200", w.Code)
	}
}
