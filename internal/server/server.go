// Package server provides the HTTP API for ronbun.
package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/shirahama/ronbun/internal/config"
	"github.com/shirahama/ronbun/internal/ingest"
	"github.com/shirahama/ronbun/internal/search"
	"github.com/shirahama/ronbun/internal/storage"
	"github.com/shirahama/ronbun/internal/vector"
)

// Server is the HTTP server for the ronbun API.
type Server struct {
	pipeline *search.Pipeline
	ingester *ingest.Service
	index    *vector.HybridIndex
	storage  storage.Storage
	config   *config.Config
	logger   *zap.Logger
	server   *http.Server
}

// NewServer creates a server with the given dependencies.
func NewServer(
	pipeline *search.Pipeline,
	ingester *ingest.Service,
	index *vector.HybridIndex,
	store storage.Storage,
	cfg *config.Config,
	logger *zap.Logger,
) *Server {
	return &Server{
		pipeline: pipeline,
		ingester: ingester,
		index:    index,
		storage:  store,
		config:   cfg,
		logger:   logger,
	}
}

// Router builds the route table; exposed for handler tests.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))
	r.Use(middleware.Compress(5))

	r.Post("/api/v1/search", s.handleSearch)
	r.Get("/api/v1/search/filters", s.handleFilterOptions)

	r.Post("/api/v1/papers", s.handleIngestPaper)
	r.Get("/api/v1/papers", s.handleListPapers)
	r.Get("/api/v1/papers/{id}", s.handleGetPaper)
	r.Put("/api/v1/papers/{id}", s.handleUpdatePaper)
	r.Delete("/api/v1/papers/{id}", s.handleDeletePaper)

	r.Get("/api/v1/status", s.handleStatus)
	r.Post("/api/v1/admin/rebuild", s.handleRebuild)
	r.Post("/api/v1/admin/backup", s.handleBackup)
	r.Post("/api/v1/admin/rollback", s.handleRollback)

	r.Get("/health", s.handleHealth)
	return r
}

// Start starts the HTTP server and blocks until it stops.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Server.Host, s.config.Server.Port)
	s.server = &http.Server{
		Addr:    addr,
		Handler: s.Router(),
	}
	s.logger.Info("starting server", zap.String("addr", addr))
	return s.server.ListenAndServe()
}

// Stop gracefully shuts down the server.
func (s *Server) Stop(ctx context.Context) error {
	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}
