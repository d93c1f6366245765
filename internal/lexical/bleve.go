// Package lexical provides the Bleve-backed keyword index used for
// lexical-mode queries over paper titles, abstracts and keywords.
package lexical

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/standard"

	"github.com/shirahama/ronbun/internal/models"
)

// Result is one lexical hit: a paper id with Bleve's relevance score.
type Result struct {
	PaperID string
	Score   float64
}

// Index is a Bleve index over paper metadata.
type Index struct {
	index bleve.Index
}

// paperDoc is the flattened shape handed to Bleve.
type paperDoc struct {
	Title    string `json:"title"`
	Abstract string `json:"abstract"`
	Keywords string `json:"keywords"`
}

// New creates or opens a Bleve index at path. An existing index is
// reused; remove the directory to force a full re-index after a
// mapping change.
func New(path string) (*Index, error) {
	im := bleve.NewIndexMapping()

	docMapping := bleve.NewDocumentMapping()
	textFieldMapping := bleve.NewTextFieldMapping()
	// Standard analyzer (lowercase + tokenize, no stemming) so queries
	// match exact words; stemming turns "Bayesian" into "bayesi" and
	// breaks exact matches.
	textFieldMapping.Analyzer = standard.Name
	docMapping.AddFieldMappingsAt("title", textFieldMapping)
	docMapping.AddFieldMappingsAt("abstract", textFieldMapping)
	docMapping.AddFieldMappingsAt("keywords", textFieldMapping)
	im.AddDocumentMapping("paper", docMapping)
	im.DefaultType = "paper"
	im.DefaultMapping = docMapping

	if _, err := os.Stat(path); err == nil {
		index, openErr := bleve.Open(path)
		if openErr != nil {
			return nil, fmt.Errorf("failed to open Bleve index: %w", openErr)
		}
		return &Index{index: index}, nil
	}

	index, err := bleve.New(path, im)
	if err != nil {
		return nil, fmt.Errorf("failed to create Bleve index: %w", err)
	}
	return &Index{index: index}, nil
}

// NewInMemory creates an index with no backing directory; used in tests.
func NewInMemory() (*Index, error) {
	im := bleve.NewIndexMapping()
	index, err := bleve.NewMemOnly(im)
	if err != nil {
		return nil, fmt.Errorf("failed to create in-memory Bleve index: %w", err)
	}
	return &Index{index: index}, nil
}

// IndexPaper adds or replaces a paper in the index.
func (x *Index) IndexPaper(ctx context.Context, paper *models.Paper) error {
	doc := paperDoc{
		Title:    paper.Metadata.Title,
		Abstract: paper.Metadata.Abstract,
		Keywords: strings.Join(paper.Metadata.Keywords, " "),
	}
	return x.index.Index(paper.ID, doc)
}

// Remove deletes a paper from the index. Removing an absent id is a no-op.
func (x *Index) Remove(ctx context.Context, paperID string) error {
	return x.index.Delete(paperID)
}

// Search runs a match query over all indexed fields, title weighted
// above abstract, and returns up to limit hits best first.
func (x *Index) Search(ctx context.Context, query string, limit int) ([]Result, error) {
	titleQuery := bleve.NewMatchQuery(query)
	titleQuery.SetField("title")
	titleQuery.SetBoost(2.0)
	restQuery := bleve.NewMatchQuery(query)
	q := bleve.NewDisjunctionQuery(titleQuery, restQuery)

	req := bleve.NewSearchRequest(q)
	req.Size = limit
	results, err := x.index.Search(req)
	if err != nil {
		return nil, fmt.Errorf("Bleve search failed: %w", err)
	}
	out := make([]Result, len(results.Hits))
	for i, hit := range results.Hits {
		out[i] = Result{PaperID: hit.ID, Score: hit.Score}
	}
	return out, nil
}

// Count returns the number of indexed papers.
func (x *Index) Count() (uint64, error) {
	return x.index.DocCount()
}

// Close releases the index.
func (x *Index) Close() error {
	return x.index.Close()
}
