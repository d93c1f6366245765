package storage

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/shirahama/ronbun/internal/models"
)

func newTestStorage(t *testing.T) *SQLiteStorage {
	t.Helper()
	s, err := NewSQLiteStorage(filepath.Join(t.TempDir(), "ronbun.db"))
	if err != nil {
		t.Fatalf("NewSQLiteStorage: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func samplePaper(id string) *models.Paper {
	return &models.Paper{
		ID: id,
		Metadata: models.PaperMetadata{
			Title:      "Attention Is All You Need",
			Authors:    []string{"Ashish Vaswani", "Noam Shazeer"},
			Abstract:   "We propose the Transformer.",
			Year:       2017,
			Keywords:   []string{"attention", "transformer"},
			Conference: "NeurIPS",
		},
		Filename:       "attention.pdf",
		ParagraphCount: 12,
	}
}

func TestCreateAndGetPaper(t *testing.T) {
	s := newTestStorage(t)
	ctx := context.Background()

	paper := samplePaper("p1")
	if err := s.CreatePaper(ctx, paper); err != nil {
		t.Fatalf("CreatePaper: %v", err)
	}

	got, err := s.GetPaper(ctx, "p1")
	if err != nil {
		t.Fatalf("GetPaper: %v", err)
	}
	if got.Metadata.Title != paper.Metadata.Title {
		t.Errorf("title = %q, want %q", got.Metadata.Title, paper.Metadata.Title)
	}
	if got.Metadata.Year != 2017 {
		t.Errorf("year = %d, want 2017", got.Metadata.Year)
	}
	if len(got.Metadata.Authors) != 2 || got.Metadata.Authors[0] != "Ashish Vaswani" {
		t.Errorf("authors = %v, want ordered original list", got.Metadata.Authors)
	}
	if len(got.Metadata.Keywords) != 2 {
		t.Errorf("keywords = %v, want 2 entries", got.Metadata.Keywords)
	}
	if got.ParagraphCount != 12 {
		t.Errorf("paragraph count = %d, want 12", got.ParagraphCount)
	}
}

func TestGetPaperNotFound(t *testing.T) {
	s := newTestStorage(t)
	if _, err := s.GetPaper(context.Background(), "missing"); err == nil {
		t.Fatal("expected error for missing paper")
	}
}

func TestUpdatePaper(t *testing.T) {
	s := newTestStorage(t)
	ctx := context.Background()

	paper := samplePaper("p1")
	if err := s.CreatePaper(ctx, paper); err != nil {
		t.Fatalf("CreatePaper: %v", err)
	}
	paper.Metadata.Title = "Updated Title"
	paper.Metadata.Authors = []string{"Someone Else"}
	paper.Metadata.Keywords = nil
	if err := s.UpdatePaper(ctx, paper); err != nil {
		t.Fatalf("UpdatePaper: %v", err)
	}

	got, err := s.GetPaper(ctx, "p1")
	if err != nil {
		t.Fatalf("GetPaper: %v", err)
	}
	if got.Metadata.Title != "Updated Title" {
		t.Errorf("title = %q, want updated", got.Metadata.Title)
	}
	if len(got.Metadata.Authors) != 1 || got.Metadata.Authors[0] != "Someone Else" {
		t.Errorf("authors = %v, want replaced list", got.Metadata.Authors)
	}
	if len(got.Metadata.Keywords) != 0 {
		t.Errorf("keywords = %v, want empty", got.Metadata.Keywords)
	}

	missing := samplePaper("nope")
	if err := s.UpdatePaper(ctx, missing); err == nil {
		t.Error("expected error updating missing paper")
	}
}

func TestDeletePaper(t *testing.T) {
	s := newTestStorage(t)
	ctx := context.Background()

	if err := s.CreatePaper(ctx, samplePaper("p1")); err != nil {
		t.Fatalf("CreatePaper: %v", err)
	}
	ok, err := s.DeletePaper(ctx, "p1")
	if err != nil || !ok {
		t.Fatalf("DeletePaper = (%v, %v), want (true, nil)", ok, err)
	}
	ok, err = s.DeletePaper(ctx, "p1")
	if err != nil || ok {
		t.Fatalf("second DeletePaper = (%v, %v), want (false, nil)", ok, err)
	}
	if _, err := s.GetPaper(ctx, "p1"); err == nil {
		t.Error("paper still readable after delete")
	}
}

func TestListAndCountPapers(t *testing.T) {
	s := newTestStorage(t)
	ctx := context.Background()

	for _, id := range []string{"a", "b", "c"} {
		if err := s.CreatePaper(ctx, samplePaper(id)); err != nil {
			t.Fatalf("CreatePaper %s: %v", id, err)
		}
	}
	n, err := s.CountPapers(ctx)
	if err != nil {
		t.Fatalf("CountPapers: %v", err)
	}
	if n != 3 {
		t.Errorf("count = %d, want 3", n)
	}
	papers, err := s.ListPapers(ctx, 0, 2)
	if err != nil {
		t.Fatalf("ListPapers: %v", err)
	}
	if len(papers) != 2 {
		t.Errorf("got %d papers, want 2", len(papers))
	}
}

func TestFilterOptions(t *testing.T) {
	s := newTestStorage(t)
	ctx := context.Background()

	p1 := samplePaper("p1")
	p2 := samplePaper("p2")
	p2.Metadata.Year = 2020
	p2.Metadata.Authors = []string{"Grace Hopper"}
	p2.Metadata.Keywords = []string{"compilers"}
	p2.Metadata.Conference = ""
	p2.Metadata.Journal = "CACM"
	for _, p := range []*models.Paper{p1, p2} {
		if err := s.CreatePaper(ctx, p); err != nil {
			t.Fatalf("CreatePaper: %v", err)
		}
	}

	opts, err := s.FilterOptions(ctx)
	if err != nil {
		t.Fatalf("FilterOptions: %v", err)
	}
	if len(opts.Years) != 2 || opts.Years[0] != 2020 {
		t.Errorf("years = %v, want [2020 2017]", opts.Years)
	}
	if len(opts.Authors) != 3 {
		t.Errorf("authors = %v, want 3 distinct", opts.Authors)
	}
	if len(opts.Keywords) != 3 {
		t.Errorf("keywords = %v, want 3 distinct", opts.Keywords)
	}
	if len(opts.Conferences) != 1 || opts.Conferences[0] != "NeurIPS" {
		t.Errorf("conferences = %v, want [NeurIPS]", opts.Conferences)
	}
	if len(opts.Journals) != 1 || opts.Journals[0] != "CACM" {
		t.Errorf("journals = %v, want [CACM]", opts.Journals)
	}
}

func TestDiskUsageBytes(t *testing.T) {
	dir := t.TempDir()
	s, err := NewSQLiteStorage(filepath.Join(dir, "ronbun.db"))
	if err != nil {
		t.Fatalf("NewSQLiteStorage: %v", err)
	}
	defer s.Close()

	n, err := DiskUsageBytes(dir)
	if err != nil {
		t.Fatalf("DiskUsageBytes: %v", err)
	}
	if n <= 0 {
		t.Errorf("usage = %d, want positive", n)
	}
	if _, err := DiskUsageBytes(filepath.Join(dir, "missing")); err != nil {
		t.Errorf("missing path should be skipped, got %v", err)
	}
}
