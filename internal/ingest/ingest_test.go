package ingest

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/shirahama/ronbun/internal/embedding"
	"github.com/shirahama/ronbun/internal/lexical"
	"github.com/shirahama/ronbun/internal/models"
	"github.com/shirahama/ronbun/internal/pressure"
	"github.com/shirahama/ronbun/internal/storage"
	"github.com/shirahama/ronbun/internal/vector"
)

type fixture struct {
	service *Service
	index   *vector.HybridIndex
	storage *storage.SQLiteStorage
	lexical *lexical.Index
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	idx, err := vector.Open(vector.Options{
		Dimensions: 16,
		Hybrid:     true,
		Gauge:      &pressure.Fixed{Value: 0.5},
		Seed:       11,
	})
	if err != nil {
		t.Fatalf("vector.Open: %v", err)
	}
	store, err := storage.NewSQLiteStorage(filepath.Join(t.TempDir(), "papers.db"))
	if err != nil {
		t.Fatalf("NewSQLiteStorage: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	lex, err := lexical.New(filepath.Join(t.TempDir(), "lexical"))
	if err != nil {
		t.Fatalf("lexical.New: %v", err)
	}
	t.Cleanup(func() { lex.Close() })

	svc := NewService(embedding.NewMockEmbedder(16), idx, lex, store, Options{})
	return &fixture{service: svc, index: idx, storage: store, lexical: lex}
}

func sampleRequest(id string) *models.IngestRequest {
	return &models.IngestRequest{
		ID: id,
		Metadata: models.PaperMetadata{
			Title:   "Robust Optimization",
			Authors: []string{"R. Author"},
			Year:    2022,
		},
		Paragraphs: []models.Paragraph{
			{Index: 0, Section: "Introduction", Text: "Robustness matters.", IsHeader: false},
			{Index: 1, Section: "Method", Text: "We minimize worst case loss.", IsHeader: false},
		},
	}
}

func TestIngestWithParagraphs(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	resp, err := f.service.Ingest(ctx, sampleRequest("p1"))
	if err != nil {
		t.Fatalf("Ingest: %v", err)
	}
	if resp.PaperID != "p1" || resp.ParagraphCount != 2 {
		t.Errorf("response = %+v, want p1 with 2 paragraphs", resp)
	}

	paper, err := f.storage.GetPaper(ctx, "p1")
	if err != nil {
		t.Fatalf("GetPaper: %v", err)
	}
	if paper.ParagraphCount != 2 {
		t.Errorf("stored paragraph count = %d, want 2", paper.ParagraphCount)
	}

	// Two paragraph records plus the document-level record.
	if f.index.Len() != 3 {
		t.Errorf("vector population = %d, want 3", f.index.Len())
	}
	doc, err := f.index.Get("p1:doc")
	if err != nil {
		t.Fatalf("document record missing: %v", err)
	}
	if !doc.Meta.IsDocument || doc.Meta.ParagraphIndex != -1 {
		t.Errorf("document record meta = %+v", doc.Meta)
	}

	hits, err := f.lexical.Search(ctx, "robust", 10)
	if err != nil {
		t.Fatalf("lexical Search: %v", err)
	}
	if len(hits) != 1 || hits[0].PaperID != "p1" {
		t.Errorf("lexical hits = %v, want [p1]", hits)
	}
}

func TestIngestGeneratesID(t *testing.T) {
	f := newFixture(t)
	req := sampleRequest("")
	resp, err := f.service.Ingest(context.Background(), req)
	if err != nil {
		t.Fatalf("Ingest: %v", err)
	}
	if resp.PaperID == "" {
		t.Error("no id generated")
	}
}

func TestIngestPlainTextIsChunked(t *testing.T) {
	f := newFixture(t)
	req := &models.IngestRequest{
		ID:       "p1",
		Metadata: models.PaperMetadata{Title: "Plain Text Paper"},
		Text:     "First block of text.\n\nSecond block of text.",
	}
	resp, err := f.service.Ingest(context.Background(), req)
	if err != nil {
		t.Fatalf("Ingest: %v", err)
	}
	if resp.ParagraphCount != 2 {
		t.Errorf("paragraph count = %d, want 2", resp.ParagraphCount)
	}
}

func TestIngestValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.service.Ingest(ctx, &models.IngestRequest{
		Metadata: models.PaperMetadata{},
		Text:     "some text",
	})
	if !errors.Is(err, vector.ErrValidation) {
		t.Errorf("missing title err = %v, want ErrValidation", err)
	}

	_, err = f.service.Ingest(ctx, &models.IngestRequest{
		Metadata: models.PaperMetadata{Title: "No Content"},
	})
	if !errors.Is(err, vector.ErrValidation) {
		t.Errorf("missing content err = %v, want ErrValidation", err)
	}
}

func TestReingestReplaces(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	if _, err := f.service.Ingest(ctx, sampleRequest("p1")); err != nil {
		t.Fatalf("first Ingest: %v", err)
	}
	req := sampleRequest("p1")
	req.Metadata.Title = "Robust Optimization v2"
	req.Paragraphs = req.Paragraphs[:1]
	if _, err := f.service.Ingest(ctx, req); err != nil {
		t.Fatalf("second Ingest: %v", err)
	}

	paper, err := f.storage.GetPaper(ctx, "p1")
	if err != nil {
		t.Fatalf("GetPaper: %v", err)
	}
	if paper.Metadata.Title != "Robust Optimization v2" {
		t.Errorf("title = %q, want replaced", paper.Metadata.Title)
	}
	// One paragraph plus the document record.
	if f.index.Len() != 2 {
		t.Errorf("vector population = %d, want 2", f.index.Len())
	}
}

func TestReindexUpdatesVectorMetadata(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	if _, err := f.service.Ingest(ctx, sampleRequest("p1")); err != nil {
		t.Fatalf("Ingest: %v", err)
	}
	paper, err := f.storage.GetPaper(ctx, "p1")
	if err != nil {
		t.Fatalf("GetPaper: %v", err)
	}
	paper.Metadata.Year = 1999
	paper.Metadata.Conference = "SOSP"
	if err := f.service.Reindex(ctx, paper); err != nil {
		t.Fatalf("Reindex: %v", err)
	}

	rec, err := f.index.Get("p1:0")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if rec.Meta.Year != 1999 || rec.Meta.Conference != "SOSP" {
		t.Errorf("vector metadata not updated: %+v", rec.Meta)
	}
	if rec.Meta.Text != "Robustness matters." {
		t.Errorf("paragraph text lost during reindex: %q", rec.Meta.Text)
	}
}

func TestRemove(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	if _, err := f.service.Ingest(ctx, sampleRequest("p1")); err != nil {
		t.Fatalf("Ingest: %v", err)
	}
	ok, err := f.service.Remove(ctx, "p1")
	if err != nil || !ok {
		t.Fatalf("Remove = (%v, %v), want (true, nil)", ok, err)
	}
	if f.index.Len() != 0 {
		t.Errorf("vector population = %d, want 0", f.index.Len())
	}
	ok, err = f.service.Remove(ctx, "p1")
	if err != nil || ok {
		t.Errorf("second Remove = (%v, %v), want (false, nil)", ok, err)
	}
}
