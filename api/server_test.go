package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"incidents-reseau/config"
	"incidents-reseau/core/blob"
	"incidents-reseau/core/incidents"
	"incidents-reseau/core/queue"
	"incidents-reseau/core/store"
	"incidents-reseau/core/utils"
)

func newTestServer(t *testing.T) (http.Handler, store.IncidentsStore) {
	t.Helper()
	dir := t.TempDir()
	cfg := &config.AppConfig{
		DBURL: filepath.Join(dir, "incidents.db"),
		Uploads: config.UploadsConfig{
			AllowedExtensions:  []string{"txt", "pdf", "jpg", "png"},
			MaxFileSizeMB:      1,
			MaxFilesPerRequest: 10,
		},
		Storage: config.StorageConfig{Dir: filepath.Join(dir, "files")},
		Blob:    config.BlobConfig{URLTTL: time.Hour},
	}
	logger := utils.NewLoggerTo(io.Discard)
	db, err := store.NewDB(cfg, logger)
	if err != nil {
		t.Fatalf("db: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	if err := store.ApplyMigrations(context.Background(), db, logger); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	st := store.NewIncidentsStore(db, false)
	local, err := blob.NewLocalStore(cfg.Storage.Dir)
	if err != nil {
		t.Fatalf("local store: %v", err)
	}
	q := queue.Disabled{}
	svc := incidents.NewService(cfg, st, local, q, logger)
	srv := NewServer(ServerDeps{
		Cfg:          cfg,
		Store:        st,
		IncidentsSvc: svc,
		Blobs:        local,
		Queue:        q,
		Logger:       logger,
	})
	return srv.Handler(), st
}

func multipartBody(t *testing.T, fields map[string]string, files map[string]string) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for k, v := range fields {
		if err := mw.WriteField(k, v); err != nil {
			t.Fatalf("field %s: %v", k, err)
		}
	}
	for name, content := range files {
		part, err := mw.CreateFormFile("fichiers", name)
		if err != nil {
			t.Fatalf("file %s: %v", name, err)
		}
		if _, err := part.Write([]byte(content)); err != nil {
			t.Fatalf("file %s: %v", name, err)
		}
	}
	if err := mw.Close(); err != nil {
		t.Fatalf("close writer: %v", err)
	}
	return &buf, mw.FormDataContentType()
}

func TestCreateIncident_Multipart(t *testing.T) {
	handler, _ := newTestServer(t)

	body, contentType := multipartBody(t,
		map[string]string{"titre": "Panne serveur", "severite": "Critique", "description": "le serveur ne répond plus"},
		map[string]string{"rapport.txt": "détails de la panne"},
	)
	req := httptest.NewRequest(http.MethodPost, "/api/incidents", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, body: %s", rec.Code, rec.Body.String())
	}
	var result incidents.CreateResult
	if err := json.Unmarshal(rec.Body.Bytes(), &result); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if result.Incident == nil || result.Incident.Title != "Panne serveur" {
		t.Fatalf("incident missing from response: %s", rec.Body.String())
	}
	if len(result.Stored) != 1 || result.Incident.AttachmentsCount != 1 {
		t.Fatalf("attachment not stored: %s", rec.Body.String())
	}
	if result.Notified[incidents.MsgAnalytics] {
		t.Fatalf("disabled queue must report false dispatches: %v", result.Notified)
	}
}

func TestCreateIncident_EmptyTitleIs400(t *testing.T) {
	handler, _ := newTestServer(t)

	body, contentType := multipartBody(t, map[string]string{"titre": "  "}, nil)
	req := httptest.NewRequest(http.MethodPost, "/api/incidents", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, body: %s", rec.Code, rec.Body.String())
	}
	if !strings.Contains(rec.Body.String(), "titre") {
		t.Fatalf("error should mention the title field: %s", rec.Body.String())
	}
}

func TestCreateIncident_RejectedFileReported(t *testing.T) {
	handler, _ := newTestServer(t)

	body, contentType := multipartBody(t,
		map[string]string{"titre": "fichier interdit"},
		map[string]string{"script.exe": "MZ"},
	)
	req := httptest.NewRequest(http.MethodPost, "/api/incidents", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusCreated {
		t.Fatalf("per-file rejection must still create the incident, got %d: %s", rec.Code, rec.Body.String())
	}
	var result incidents.CreateResult
	if err := json.Unmarshal(rec.Body.Bytes(), &result); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(result.Rejected) != 1 || result.Rejected[0].Name != "script.exe" {
		t.Fatalf("rejection missing: %s", rec.Body.String())
	}
}

func TestListIncidents_FilterAndEmptyArray(t *testing.T) {
	handler, st := newTestServer(t)
	ctx := context.Background()

	req := httptest.NewRequest(http.MethodGet, "/api/incidents", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if got := strings.TrimSpace(rec.Body.String()); got != "[]" {
		t.Fatalf("empty table must serialize as [], got %s", got)
	}

	if _, err := st.SeedDemoData(ctx); err != nil {
		t.Fatalf("seed: %v", err)
	}
	req = httptest.NewRequest(http.MethodGet, "/api/incidents?severite=Moyenne", nil)
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	var items []store.Incident
	if err := json.Unmarshal(rec.Body.Bytes(), &items); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(items) != 2 {
		t.Fatalf("want the 2 demo incidents with severity Moyenne, got %d", len(items))
	}
	for _, inc := range items {
		if inc.Severity != "Moyenne" {
			t.Fatalf("filter leaked severity %q", inc.Severity)
		}
	}
}

func TestGetIncident_Missing404(t *testing.T) {
	handler, _ := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/api/incidents/424242", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, body: %s", rec.Code, rec.Body.String())
	}
}

func TestGetIncident_NonNumericIDNotRouted(t *testing.T) {
	handler, _ := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/api/incidents/abc", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d", rec.Code)
	}
}

func TestDownloadAttachment_LocalLocator(t *testing.T) {
	handler, st := newTestServer(t)

	body, contentType := multipartBody(t,
		map[string]string{"titre": "téléchargement"},
		map[string]string{"doc.txt": "bonjour"},
	)
	req := httptest.NewRequest(http.MethodPost, "/api/incidents", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusCreated {
		t.Fatalf("create: %d %s", rec.Code, rec.Body.String())
	}
	var result incidents.CreateResult
	if err := json.Unmarshal(rec.Body.Bytes(), &result); err != nil {
		t.Fatalf("decode: %v", err)
	}
	atts, err := st.ListAttachments(context.Background(), result.Incident.ID)
	if err != nil || len(atts) != 1 {
		t.Fatalf("attachments: %v (%d)", err, len(atts))
	}

	req = httptest.NewRequest(http.MethodGet, "/api/attachments/"+strconv.FormatInt(atts[0].ID, 10)+"/download", nil)
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("download: %d %s", rec.Code, rec.Body.String())
	}
	var loc incidents.Locator
	if err := json.Unmarshal(rec.Body.Bytes(), &loc); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if loc.Path == "" {
		t.Fatalf("local backend must return a path: %s", rec.Body.String())
	}
}

func TestListAttachments_MissingIncident404(t *testing.T) {
	handler, _ := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/api/incidents/99/attachments", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, body: %s", rec.Code, rec.Body.String())
	}
}

func TestStatus_ReportsComponents(t *testing.T) {
	handler, _ := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/api/status", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body: %s", rec.Code, rec.Body.String())
	}
	var report map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &report); err != nil {
		t.Fatalf("decode: %v", err)
	}
	for _, key := range []string{"base_donnees", "stockage", "queue"} {
		if _, ok := report[key]; !ok {
			t.Fatalf("missing component %q in %s", key, rec.Body.String())
		}
	}
}
