// Package storage defines the persistence interface for paper metadata.
package storage

import (
	"context"

	"github.com/shirahama/ronbun/internal/models"
)

// Storage defines paper metadata persistence operations. The metadata
// store is the system of record for paper bookkeeping; vectors and the
// lexical index hold derived data.
type Storage interface {
	CreatePaper(ctx context.Context, paper *models.Paper) error
	GetPaper(ctx context.Context, id string) (*models.Paper, error)
	UpdatePaper(ctx context.Context, paper *models.Paper) error
	// DeletePaper reports false when the id is absent.
	DeletePaper(ctx context.Context, id string) (bool, error)
	ListPapers(ctx context.Context, offset, limit int) ([]*models.Paper, error)
	CountPapers(ctx context.Context) (int64, error)

	// FilterOptions lists the distinct filterable values in the corpus.
	FilterOptions(ctx context.Context) (*models.FilterOptions, error)

	Close() error
}
