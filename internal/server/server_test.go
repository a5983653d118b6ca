package server

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rs/zerolog"

	"github.com/fermo-metabolomics/fermo-srv/internal/antismash"
	"github.com/fermo-metabolomics/fermo-srv/internal/config"
	"github.com/fermo-metabolomics/fermo-srv/internal/params"
	"github.com/fermo-metabolomics/fermo-srv/internal/submit"
	"github.com/fermo-metabolomics/fermo-srv/internal/task"
	"github.com/fermo-metabolomics/fermo-srv/internal/upload"
	"github.com/fermo-metabolomics/fermo-srv/internal/workspace"
)

const peaktableCSV = "id,mz,rt\n1,100.0,5.0\n2,200.0,6.0\n"

type formFile struct {
	field   string
	name    string
	content string
}

func newTestServer(t *testing.T, mutate func(*config.Config)) (*Server, *workspace.Layout) {
	t.Helper()

	cfg := config.Default()
	cfg.UploadRoot = t.TempDir()
	cfg.Online = false
	if mutate != nil {
		mutate(cfg)
	}

	queue := task.NewQueue(8, func(ctx context.Context, job task.Job) error { return nil }, zerolog.Nop())
	queue.Start(context.Background(), 1)
	t.Cleanup(queue.Shutdown)

	schema, err := params.NewSchemaValidator()
	if err != nil {
		t.Fatal(err)
	}

	layout := workspace.NewLayout(cfg.UploadRoot)
	orch := submit.NewOrchestrator(cfg, layout,
		upload.NewIngestor(cfg, zerolog.Nop()),
		antismash.NewClient(cfg, zerolog.Nop()),
		schema,
		params.NewModuleValidator(cfg),
		queue, zerolog.Nop())

	return New(cfg, layout, orch, zerolog.Nop()), layout
}

func multipartRequest(t *testing.T, fields map[string]string, files []formFile) *http.Request {
	t.Helper()

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	for field, value := range fields {
		if err := mw.WriteField(field, value); err != nil {
			t.Fatal(err)
		}
	}
	for _, f := range files {
		part, err := mw.CreateFormFile(f.field, f.name)
		if err != nil {
			t.Fatal(err)
		}
		if _, err := part.Write([]byte(f.content)); err != nil {
			t.Fatal(err)
		}
	}
	if err := mw.Close(); err != nil {
		t.Fatal(err)
	}

	req := httptest.NewRequest(http.MethodPost, "/analysis/dispatch/", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var payload map[string]any
	if err := json.NewDecoder(rec.Body).Decode(&payload); err != nil {
		t.Fatalf("Response is not JSON: %v", err)
	}
	return payload
}

func TestDispatchNewAnalysis(t *testing.T) {
	srv, layout := newTestServer(t, nil)

	req := multipartRequest(t,
		map[string]string{"emailInput": "user@example.org"},
		[]formFile{{"PeaktableParametersFile", "peaks.csv", peaktableCSV}})
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusAccepted {
		t.Fatalf("Expected 202, got %d: %s", rec.Code, rec.Body)
	}
	payload := decodeBody(t, rec)
	token, _ := payload["job_id"].(string)
	if token == "" {
		t.Fatal("Response must carry the job token")
	}
	if payload["status"] != "pending" {
		t.Errorf("Expected pending status, got %v", payload["status"])
	}
	if layout.Resolve(token) != workspace.StatusPending {
		t.Error("Submitted job must be on disk")
	}
}

func TestDispatchRejectsMissingPeaktable(t *testing.T) {
	srv, _ := newTestServer(t, nil)

	req := multipartRequest(t, map[string]string{"emailInput": ""}, nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("Expected 400, got %d: %s", rec.Code, rec.Body)
	}
	payload := decodeBody(t, rec)
	if msg, _ := payload["error"].(string); msg == "" {
		t.Error("Rejection must carry a user-facing message")
	}
}

func TestDispatchRejectsOversizedUpload(t *testing.T) {
	srv, _ := newTestServer(t, func(cfg *config.Config) {
		cfg.Online = true
		cfg.MaxUploadBytes = 8
	})

	req := multipartRequest(t, nil,
		[]formFile{{"PeaktableParametersFile", "peaks.csv", peaktableCSV}})
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusRequestEntityTooLarge {
		t.Fatalf("Expected 413, got %d: %s", rec.Code, rec.Body)
	}
	payload := decodeBody(t, rec)
	if msg, _ := payload["error"].(string); !strings.Contains(msg, "bytes") {
		t.Errorf("Message must name the byte counts, got %q", msg)
	}
}

func TestDispatchSessionUpload(t *testing.T) {
	srv, layout := newTestServer(t, nil)

	req := multipartRequest(t, nil,
		[]formFile{{"SessionFile", "session.json", `{"parameters":{}}`}})
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusCreated {
		t.Fatalf("Expected 201, got %d: %s", rec.Code, rec.Body)
	}
	payload := decodeBody(t, rec)
	token, _ := payload["job_id"].(string)
	if layout.Resolve(token) != workspace.StatusSucceeded {
		t.Error("Uploaded session must resolve as succeeded")
	}
}

func TestDispatchSessionUploadRejected(t *testing.T) {
	srv, _ := newTestServer(t, nil)

	req := multipartRequest(t, nil,
		[]formFile{{"SessionFile", "session.json", `{"results":{}}`}})
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("Expected 400, got %d: %s", rec.Code, rec.Body)
	}
	payload := decodeBody(t, rec)
	if msg, _ := payload["error"].(string); !strings.Contains(msg, "formatting") {
		t.Errorf("Expected a formatting rejection, got %q", msg)
	}
}

func TestDispatchSessionByID(t *testing.T) {
	srv, layout := newTestServer(t, nil)

	token, err := layout.Allocate()
	if err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(layout.SessionFile(token), []byte(`{"parameters":{}}`), 0o644); err != nil {
		t.Fatal(err)
	}

	req := multipartRequest(t, map[string]string{"SessionId": token}, nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", rec.Code, rec.Body)
	}
	payload := decodeBody(t, rec)
	if payload["results"] != "/results/"+token+"/" {
		t.Errorf("Expected results link, got %v", payload["results"])
	}
}

func TestDispatchSessionByIDUnknown(t *testing.T) {
	srv, _ := newTestServer(t, nil)

	req := multipartRequest(t, map[string]string{"SessionId": "eeee0000-0000-0000-0000-000000000000"}, nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("Expected 404, got %d: %s", rec.Code, rec.Body)
	}
}

func TestStatusRoute(t *testing.T) {
	srv, layout := newTestServer(t, nil)

	token, err := layout.Allocate()
	if err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(layout.LogFile(token), []byte("running\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/results/"+token+"/", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", rec.Code)
	}
	if payload := decodeBody(t, rec); payload["status"] != "running" {
		t.Errorf("Expected running status, got %v", payload["status"])
	}
}

func TestStatusRouteUnknownJob(t *testing.T) {
	srv, _ := newTestServer(t, nil)

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/results/missing-token/", nil))

	if rec.Code != http.StatusNotFound {
		t.Fatalf("Expected 404, got %d", rec.Code)
	}
}

func TestDownloadRoute(t *testing.T) {
	srv, layout := newTestServer(t, nil)

	token, err := layout.Allocate()
	if err != nil {
		t.Fatal(err)
	}
	summary := filepath.Join(layout.ResultsDir(token), "out.fermo.summary.txt")
	if err := os.WriteFile(summary, []byte("3 features retained\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/downloads/"+token+"/summary/", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "3 features retained") {
		t.Error("Download must stream the artifact content")
	}

	rec = httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/downloads/"+token+"/bogus/", nil))
	if rec.Code != http.StatusNotFound {
		t.Errorf("Unknown artifact identifier must 404, got %d", rec.Code)
	}
}
