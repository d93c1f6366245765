package server

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"go.uber.org/zap"

	"github.com/shirahama/ronbun/internal/config"
	"github.com/shirahama/ronbun/internal/embedding"
	"github.com/shirahama/ronbun/internal/ingest"
	"github.com/shirahama/ronbun/internal/lexical"
	"github.com/shirahama/ronbun/internal/models"
	"github.com/shirahama/ronbun/internal/pressure"
	"github.com/shirahama/ronbun/internal/search"
	"github.com/shirahama/ronbun/internal/storage"
	"github.com/shirahama/ronbun/internal/vector"
)

func newTestServer(t *testing.T) *Server {
	t.Helper()
	dir := t.TempDir()
	embedder := embedding.NewMockEmbedder(16)
	idx, err := vector.Open(vector.Options{
		Dimensions: 16,
		Path:       filepath.Join(dir, "vectors"),
		Hybrid:     true,
		Gauge:      &pressure.Fixed{Value: 0.5},
		Seed:       5,
	})
	if err != nil {
		t.Fatalf("vector.Open: %v", err)
	}
	store, err := storage.NewSQLiteStorage(filepath.Join(dir, "papers.db"))
	if err != nil {
		t.Fatalf("NewSQLiteStorage: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	lex, err := lexical.New(filepath.Join(dir, "lexical"))
	if err != nil {
		t.Fatalf("lexical.New: %v", err)
	}
	t.Cleanup(func() { lex.Close() })

	pipeline := search.NewPipeline(embedder, idx, lex, store, search.Options{
		DefaultLimit:        10,
		MaxLimit:            100,
		SimilarityThreshold: 0.2,
	})
	ingester := ingest.NewService(embedder, idx, lex, store, ingest.Options{})

	cfg := &config.Config{}
	config.ApplyDefaults(cfg)
	cfg.Storage.DatabasePath = filepath.Join(dir, "papers.db")
	cfg.Storage.VectorIndexPath = filepath.Join(dir, "vectors")
	cfg.Storage.LexicalIndexPath = filepath.Join(dir, "lexical")

	return NewServer(pipeline, ingester, idx, store, cfg, zap.NewNop())
}

func doJSON(t *testing.T, handler http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func ingestSample(t *testing.T, handler http.Handler, id string) {
	t.Helper()
	rec := doJSON(t, handler, http.MethodPost, "/api/v1/papers", &models.IngestRequest{
		ID: id,
		Metadata: models.PaperMetadata{
			Title:   "Streaming Joins",
			Authors: []string{"J. Dean"},
			Year:    2015,
		},
		Paragraphs: []models.Paragraph{
			{Index: 0, Text: "Windowed joins over unbounded streams."},
		},
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("ingest status = %d, body %s", rec.Code, rec.Body.String())
	}
}

func TestHealthEndpoint(t *testing.T) {
	srv := newTestServer(t)
	rec := doJSON(t, srv.Router(), http.MethodGet, "/health", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
}

func TestIngestAndSearch(t *testing.T) {
	srv := newTestServer(t)
	router := srv.Router()
	ingestSample(t, router, "p1")

	rec := doJSON(t, router, http.MethodPost, "/api/v1/search", &models.SearchRequest{
		Query: "Windowed joins over unbounded streams.",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("search status = %d, body %s", rec.Code, rec.Body.String())
	}
	var resp models.SearchResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(resp.Results) == 0 || resp.Results[0].PaperID != "p1" {
		t.Errorf("results = %+v, want p1 first", resp.Results)
	}
}

func TestSearchRejectsEmptyQuery(t *testing.T) {
	srv := newTestServer(t)
	rec := doJSON(t, srv.Router(), http.MethodPost, "/api/v1/search", &models.SearchRequest{})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

func TestPaperCRUD(t *testing.T) {
	srv := newTestServer(t)
	router := srv.Router()
	ingestSample(t, router, "p1")

	rec := doJSON(t, router, http.MethodGet, "/api/v1/papers/p1", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("get status = %d", rec.Code)
	}

	rec = doJSON(t, router, http.MethodPut, "/api/v1/papers/p1", &models.PaperMetadata{
		Title: "Streaming Joins Revisited",
		Year:  2016,
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("update status = %d, body %s", rec.Code, rec.Body.String())
	}
	var updated models.Paper
	if err := json.Unmarshal(rec.Body.Bytes(), &updated); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if updated.Metadata.Title != "Streaming Joins Revisited" {
		t.Errorf("title = %q", updated.Metadata.Title)
	}

	rec = doJSON(t, router, http.MethodGet, "/api/v1/papers", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("list status = %d", rec.Code)
	}

	rec = doJSON(t, router, http.MethodDelete, "/api/v1/papers/p1", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("delete status = %d", rec.Code)
	}
	rec = doJSON(t, router, http.MethodDelete, "/api/v1/papers/p1", nil)
	if rec.Code != http.StatusNotFound {
		t.Errorf("second delete status = %d, want 404", rec.Code)
	}
	rec = doJSON(t, router, http.MethodGet, "/api/v1/papers/p1", nil)
	if rec.Code != http.StatusNotFound {
		t.Errorf("get after delete status = %d, want 404", rec.Code)
	}
}

func TestFilterOptionsEndpoint(t *testing.T) {
	srv := newTestServer(t)
	router := srv.Router()
	ingestSample(t, router, "p1")

	rec := doJSON(t, router, http.MethodGet, "/api/v1/search/filters", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var opts models.FilterOptions
	if err := json.Unmarshal(rec.Body.Bytes(), &opts); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(opts.Years) != 1 || opts.Years[0] != 2015 {
		t.Errorf("years = %v, want [2015]", opts.Years)
	}
}

func TestAdminEndpoints(t *testing.T) {
	srv := newTestServer(t)
	router := srv.Router()
	ingestSample(t, router, "p1")

	rec := doJSON(t, router, http.MethodPost, "/api/v1/admin/rebuild", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("rebuild status = %d, body %s", rec.Code, rec.Body.String())
	}

	rec = doJSON(t, router, http.MethodPost, "/api/v1/admin/backup", nil)
	if rec.Code != http.StatusCreated {
		t.Fatalf("backup status = %d, body %s", rec.Code, rec.Body.String())
	}

	ingestSample(t, router, "p2")
	rec = doJSON(t, router, http.MethodPost, "/api/v1/admin/rollback", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("rollback status = %d, body %s", rec.Code, rec.Body.String())
	}

	// The slot is consumed; a second rollback conflicts.
	rec = doJSON(t, router, http.MethodPost, "/api/v1/admin/rollback", nil)
	if rec.Code != http.StatusConflict {
		t.Errorf("second rollback status = %d, want 409", rec.Code)
	}

	rec = doJSON(t, router, http.MethodGet, "/api/v1/status", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status endpoint = %d", rec.Code)
	}
	var status map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &status); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if _, ok := status["index"]; !ok {
		t.Errorf("status missing index section: %v", status)
	}
}
