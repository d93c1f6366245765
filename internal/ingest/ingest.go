// Package ingest coordinates writes across the metadata store, the
// lexical index and the vector index when papers enter or leave the
// corpus.
package ingest

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/shirahama/ronbun/internal/embedding"
	"github.com/shirahama/ronbun/internal/lexical"
	"github.com/shirahama/ronbun/internal/models"
	"github.com/shirahama/ronbun/internal/storage"
	"github.com/shirahama/ronbun/internal/vector"
	"github.com/shirahama/ronbun/pkg/utils"
)

// Options configures a Service.
type Options struct {
	ChunkSize    int
	ChunkOverlap int
	Logger       *zap.Logger
}

// Service ingests and removes papers.
type Service struct {
	embedder embedding.Embedder
	index    *vector.HybridIndex
	lexical  *lexical.Index
	storage  storage.Storage
	opts     Options
	logger   *zap.Logger
}

// NewService wires an ingestion service. The lexical index may be nil.
func NewService(embedder embedding.Embedder, index *vector.HybridIndex, lex *lexical.Index, store storage.Storage, opts Options) *Service {
	if opts.ChunkSize <= 0 {
		opts.ChunkSize = 200
	}
	if opts.ChunkOverlap < 0 {
		opts.ChunkOverlap = 0
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	return &Service{
		embedder: embedder,
		index:    index,
		lexical:  lex,
		storage:  store,
		opts:     opts,
		logger:   opts.Logger,
	}
}

// Ingest stores one paper: metadata in SQLite, title and abstract in
// the lexical index, and one vector record per paragraph plus a
// document-level record built from the mean paragraph embedding.
// Re-ingesting an existing id replaces the paper wholesale.
func (s *Service) Ingest(ctx context.Context, req *models.IngestRequest) (*models.IngestResponse, error) {
	if req.Metadata.Title == "" {
		return nil, fmt.Errorf("%w: title is required", vector.ErrValidation)
	}
	paragraphs := req.Paragraphs
	if len(paragraphs) == 0 {
		paragraphs = SplitText(req.Text, s.opts.ChunkSize, s.opts.ChunkOverlap)
	}
	if len(paragraphs) == 0 {
		return nil, fmt.Errorf("%w: no text or paragraphs provided", vector.ErrValidation)
	}

	paperID := req.ID
	if paperID == "" {
		paperID = uuid.NewString()
	}

	// Replace semantics: clear any previous version first.
	if _, err := s.Remove(ctx, paperID); err != nil {
		return nil, fmt.Errorf("replace existing paper: %w", err)
	}

	texts := make([]string, len(paragraphs))
	for i, p := range paragraphs {
		texts[i] = p.Text
	}
	vecs, err := s.embedder.EmbedBatch(ctx, texts)
	if err != nil {
		return nil, fmt.Errorf("embed paragraphs: %w", err)
	}

	paper := &models.Paper{
		ID:             paperID,
		Metadata:       req.Metadata,
		Filename:       req.Filename,
		FilePath:       req.FilePath,
		ParagraphCount: len(paragraphs),
	}
	if err := s.storage.CreatePaper(ctx, paper); err != nil {
		return nil, fmt.Errorf("store paper metadata: %w", err)
	}
	if s.lexical != nil {
		if err := s.lexical.IndexPaper(ctx, paper); err != nil {
			s.rollbackPaper(ctx, paperID)
			return nil, fmt.Errorf("index paper lexically: %w", err)
		}
	}

	for i, p := range paragraphs {
		rec := vector.Record{
			ID:     fmt.Sprintf("%s:%d", paperID, p.Index),
			Vector: vecs[i],
			Meta:   s.recordMeta(paper, p),
		}
		if err := s.index.Insert(ctx, rec); err != nil {
			s.rollbackPaper(ctx, paperID)
			return nil, fmt.Errorf("index paragraph %d: %w", p.Index, err)
		}
	}

	// The document record lets document-granularity queries match the
	// paper as a whole. IsDocument keeps it out of paragraph-level
	// retrieval entirely.
	docRec := vector.Record{
		ID:     paperID + ":doc",
		Vector: utils.MeanVector(vecs),
		Meta: vector.RecordMeta{
			PaperID:        paperID,
			Title:          paper.Metadata.Title,
			Authors:        paper.Metadata.Authors,
			Abstract:       paper.Metadata.Abstract,
			Year:           paper.Metadata.Year,
			Keywords:       paper.Metadata.Keywords,
			Conference:     paper.Metadata.Conference,
			Journal:        paper.Metadata.Journal,
			Filename:       paper.Filename,
			ParagraphIndex: -1,
			IsDocument:     true,
		},
	}
	if err := s.index.Insert(ctx, docRec); err != nil {
		s.rollbackPaper(ctx, paperID)
		return nil, fmt.Errorf("index document record: %w", err)
	}

	s.logger.Info("paper ingested",
		zap.String("paper_id", paperID),
		zap.String("title", paper.Metadata.Title),
		zap.Int("paragraphs", len(paragraphs)))

	return &models.IngestResponse{
		PaperID:        paperID,
		ParagraphCount: len(paragraphs),
		IngestedAt:     time.Now(),
	}, nil
}

// Reindex propagates updated metadata for an already-ingested paper
// into the lexical index and the vector records. Embeddings are left
// alone; changed text requires a fresh Ingest.
func (s *Service) Reindex(ctx context.Context, paper *models.Paper) error {
	if s.lexical != nil {
		if err := s.lexical.IndexPaper(ctx, paper); err != nil {
			return fmt.Errorf("reindex paper lexically: %w", err)
		}
	}
	_, err := s.index.UpdateMetaWhere(ctx,
		func(m vector.RecordMeta) bool { return m.PaperID == paper.ID },
		func(m *vector.RecordMeta) {
			m.Title = paper.Metadata.Title
			m.Authors = paper.Metadata.Authors
			m.Abstract = paper.Metadata.Abstract
			m.Year = paper.Metadata.Year
			m.Keywords = paper.Metadata.Keywords
			m.Conference = paper.Metadata.Conference
			m.Journal = paper.Metadata.Journal
			m.Filename = paper.Filename
		})
	if err != nil {
		return fmt.Errorf("update vector metadata: %w", err)
	}
	return nil
}

// Remove deletes a paper from all three stores. It reports false when
// nothing was stored under the id.
func (s *Service) Remove(ctx context.Context, paperID string) (bool, error) {
	existed, err := s.storage.DeletePaper(ctx, paperID)
	if err != nil {
		return false, fmt.Errorf("delete paper metadata: %w", err)
	}
	if s.lexical != nil {
		if err := s.lexical.Remove(ctx, paperID); err != nil {
			return existed, fmt.Errorf("delete paper from lexical index: %w", err)
		}
	}
	removed, err := s.index.DeleteWhere(ctx, func(m vector.RecordMeta) bool {
		return m.PaperID == paperID
	})
	if err != nil {
		return existed, fmt.Errorf("delete paper vectors: %w", err)
	}
	return existed || removed > 0, nil
}

// rollbackPaper undoes a partial ingest; failures here only get logged
// because the caller already has the original error.
func (s *Service) rollbackPaper(ctx context.Context, paperID string) {
	if _, err := s.Remove(ctx, paperID); err != nil {
		s.logger.Warn("rollback after failed ingest",
			zap.String("paper_id", paperID), zap.Error(err))
	}
}

func (s *Service) recordMeta(paper *models.Paper, p models.Paragraph) vector.RecordMeta {
	return vector.RecordMeta{
		PaperID:        paper.ID,
		Title:          paper.Metadata.Title,
		Authors:        paper.Metadata.Authors,
		Abstract:       paper.Metadata.Abstract,
		Year:           paper.Metadata.Year,
		Keywords:       paper.Metadata.Keywords,
		Conference:     paper.Metadata.Conference,
		Journal:        paper.Metadata.Journal,
		Filename:       paper.Filename,
		ParagraphIndex: p.Index,
		Section:        p.Section,
		Text:           p.Text,
		Context:        p.Context,
		IsHeader:       p.IsHeader,
	}
}
