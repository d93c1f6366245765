// Package search implements the retrieval pipeline: query embedding,
// two-stage vector retrieval, post-retrieval metadata filtering and
// paragraph aggregation.
package search

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/shirahama/ronbun/internal/embedding"
	"github.com/shirahama/ronbun/internal/lexical"
	"github.com/shirahama/ronbun/internal/models"
	"github.com/shirahama/ronbun/internal/storage"
	"github.com/shirahama/ronbun/internal/vector"
)

// Over-fetch multipliers. Filters discard hits after retrieval, so the
// pipeline asks the index for more than the caller's limit. Paragraph
// searches fetch deeper because many hits collapse into one paper.
const (
	documentOverfetch  = 3
	paragraphOverfetch = 10
)

// Options configures a Pipeline.
type Options struct {
	DefaultLimit        int
	MaxLimit            int
	SimilarityThreshold float64
	MaxParagraphsPerHit int
	Logger              *zap.Logger
}

// Pipeline executes search requests against the vector index, the
// lexical index and the metadata store.
type Pipeline struct {
	embedder embedding.Embedder
	index    *vector.HybridIndex
	lexical  *lexical.Index
	storage  storage.Storage
	opts     Options
	logger   *zap.Logger
}

// NewPipeline wires a pipeline. The lexical index may be nil, in which
// case lexical-mode requests fail.
func NewPipeline(embedder embedding.Embedder, index *vector.HybridIndex, lex *lexical.Index, store storage.Storage, opts Options) *Pipeline {
	if opts.DefaultLimit <= 0 {
		opts.DefaultLimit = 10
	}
	if opts.MaxLimit <= 0 {
		opts.MaxLimit = 100
	}
	if opts.MaxParagraphsPerHit <= 0 {
		opts.MaxParagraphsPerHit = 3
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	return &Pipeline{
		embedder: embedder,
		index:    index,
		lexical:  lex,
		storage:  store,
		opts:     opts,
		logger:   opts.Logger,
	}
}

// Search runs one request end to end.
func (p *Pipeline) Search(ctx context.Context, req *models.SearchRequest) (*models.SearchResponse, error) {
	if err := req.Validate(p.opts.DefaultLimit, p.opts.MaxLimit); err != nil {
		return nil, fmt.Errorf("%w: %v", vector.ErrValidation, err)
	}
	start := time.Now()

	var (
		results []*models.SearchResult
		err     error
	)
	switch req.Mode {
	case models.ModeLexical:
		results, err = p.searchLexical(ctx, req)
	default:
		results, err = p.searchSemantic(ctx, req)
	}
	if err != nil {
		return nil, err
	}

	total := len(results)
	if len(results) > req.Limit {
		results = results[:req.Limit]
	}
	p.logger.Debug("search completed",
		zap.String("mode", req.Mode),
		zap.String("granularity", req.Granularity),
		zap.Int("total", total),
		zap.Duration("elapsed", time.Since(start)))

	return &models.SearchResponse{
		Results:    results,
		TotalCount: total,
		Query:      req.Query,
		QueryTime:  time.Since(start).Milliseconds(),
	}, nil
}

// searchSemantic embeds the query, over-fetches from the vector index,
// applies the similarity floor and metadata filters, then aggregates by
// paper according to the requested granularity.
func (p *Pipeline) searchSemantic(ctx context.Context, req *models.SearchRequest) ([]*models.SearchResult, error) {
	queryVec, err := p.embedder.Embed(ctx, req.Query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}

	overfetch := documentOverfetch
	if req.Granularity == models.GranularityParagraph {
		overfetch = paragraphOverfetch
	}
	fetchK := req.Limit * overfetch

	threshold := p.opts.SimilarityThreshold
	if req.Threshold != nil {
		threshold = *req.Threshold
	}
	var floor *float64
	if threshold > 0 {
		floor = &threshold
	}

	hits, err := p.index.Search(ctx, queryVec, fetchK, floor)
	if err != nil {
		return nil, fmt.Errorf("vector search: %w", err)
	}

	withParagraphs := req.Granularity == models.GranularityParagraph
	if withParagraphs {
		// Whole-document records only serve document granularity; a
		// paper must match through an actual paragraph to appear here.
		kept := hits[:0]
		for _, hit := range hits {
			if !hit.Meta.IsDocument {
				kept = append(kept, hit)
			}
		}
		hits = kept
	}
	hits = filterResults(hits, req.Filters)

	return aggregateByPaper(hits, p.opts.MaxParagraphsPerHit, withParagraphs), nil
}

// searchLexical answers through the Bleve index and hydrates paper
// metadata from storage. Bleve scores are relevance weights, not
// similarities, so the threshold does not apply.
func (p *Pipeline) searchLexical(ctx context.Context, req *models.SearchRequest) ([]*models.SearchResult, error) {
	if p.lexical == nil {
		return nil, fmt.Errorf("%w: lexical index not configured", vector.ErrValidation)
	}
	fetchK := req.Limit * documentOverfetch
	hits, err := p.lexical.Search(ctx, req.Query, fetchK)
	if err != nil {
		return nil, fmt.Errorf("lexical search: %w", err)
	}

	results := make([]*models.SearchResult, 0, len(hits))
	for _, hit := range hits {
		paper, err := p.storage.GetPaper(ctx, hit.PaperID)
		if err != nil {
			// Index and store can briefly disagree during deletes.
			p.logger.Debug("lexical hit without stored paper", zap.String("paper_id", hit.PaperID))
			continue
		}
		meta := recordMetaFromPaper(paper)
		if !matchesFilter(meta, req.Filters) {
			continue
		}
		results = append(results, &models.SearchResult{
			PaperID:    paper.ID,
			Title:      paper.Metadata.Title,
			Authors:    paper.Metadata.Authors,
			Year:       paper.Metadata.Year,
			Abstract:   paper.Metadata.Abstract,
			Score:      hit.Score,
			Filename:   paper.Filename,
			Conference: paper.Metadata.Conference,
			Journal:    paper.Metadata.Journal,
			Keywords:   paper.Metadata.Keywords,
		})
	}
	return results, nil
}

func recordMetaFromPaper(paper *models.Paper) vector.RecordMeta {
	return vector.RecordMeta{
		PaperID:    paper.ID,
		Title:      paper.Metadata.Title,
		Authors:    paper.Metadata.Authors,
		Abstract:   paper.Metadata.Abstract,
		Year:       paper.Metadata.Year,
		Keywords:   paper.Metadata.Keywords,
		Conference: paper.Metadata.Conference,
		Journal:    paper.Metadata.Journal,
		Filename:   paper.Filename,
	}
}
