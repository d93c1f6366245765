package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/shirahama/ronbun/internal/models"
	"github.com/shirahama/ronbun/internal/storage"
	"github.com/shirahama/ronbun/internal/vector"
)

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	var req models.SearchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	s.logger.Debug("search request", zap.String("query", req.Query), zap.String("mode", req.Mode))
	response, err := s.pipeline.Search(r.Context(), &req)
	if err != nil {
		s.respondFromError(w, err, "search failed")
		return
	}
	s.respondJSON(w, http.StatusOK, response)
}

func (s *Server) handleFilterOptions(w http.ResponseWriter, r *http.Request) {
	opts, err := s.storage.FilterOptions(r.Context())
	if err != nil {
		s.respondFromError(w, err, "filter options failed")
		return
	}
	s.respondJSON(w, http.StatusOK, opts)
}

func (s *Server) handleIngestPaper(w http.ResponseWriter, r *http.Request) {
	var req models.IngestRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	s.logger.Debug("ingest request", zap.String("id", req.ID), zap.String("title", req.Metadata.Title))
	resp, err := s.ingester.Ingest(r.Context(), &req)
	if err != nil {
		s.respondFromError(w, err, "ingestion failed")
		return
	}
	s.respondJSON(w, http.StatusCreated, resp)
}

func (s *Server) handleListPapers(w http.ResponseWriter, r *http.Request) {
	offset := queryInt(r, "offset", 0)
	limit := queryInt(r, "limit", 50)
	if limit > 200 {
		limit = 200
	}
	papers, err := s.storage.ListPapers(r.Context(), offset, limit)
	if err != nil {
		s.respondFromError(w, err, "list papers failed")
		return
	}
	total, err := s.storage.CountPapers(r.Context())
	if err != nil {
		s.respondFromError(w, err, "count papers failed")
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]any{
		"papers": papers,
		"total":  total,
		"offset": offset,
		"limit":  limit,
	})
}

func (s *Server) handleGetPaper(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	paper, err := s.storage.GetPaper(r.Context(), id)
	if err != nil {
		s.respondError(w, http.StatusNotFound, "paper not found")
		return
	}
	s.respondJSON(w, http.StatusOK, paper)
}

// handleUpdatePaper replaces a paper's metadata without touching its
// text or embeddings. New text means a fresh ingest.
func (s *Server) handleUpdatePaper(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	var meta models.PaperMetadata
	if err := json.NewDecoder(r.Body).Decode(&meta); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if meta.Title == "" {
		s.respondError(w, http.StatusBadRequest, "title is required")
		return
	}

	paper, err := s.storage.GetPaper(r.Context(), id)
	if err != nil {
		s.respondError(w, http.StatusNotFound, "paper not found")
		return
	}
	paper.Metadata = meta
	if err := s.storage.UpdatePaper(r.Context(), paper); err != nil {
		s.respondFromError(w, err, "update paper failed")
		return
	}
	if err := s.ingester.Reindex(r.Context(), paper); err != nil {
		s.respondFromError(w, err, "propagate metadata update failed")
		return
	}
	s.respondJSON(w, http.StatusOK, paper)
}

func (s *Server) handleDeletePaper(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	s.logger.Debug("delete paper request", zap.String("id", id))
	ok, err := s.ingester.Remove(r.Context(), id)
	if err != nil {
		s.respondFromError(w, err, "deletion failed")
		return
	}
	if !ok {
		s.respondError(w, http.StatusNotFound, "paper not found")
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	paperCount, err := s.storage.CountPapers(r.Context())
	if err != nil {
		s.respondFromError(w, err, "status failed")
		return
	}
	st := s.index.Describe()
	resp := map[string]any{
		"papers": paperCount,
		"index":  st,
	}
	diskBytes, err := storage.DiskUsageBytes(
		s.config.Storage.DatabasePath,
		s.config.Storage.VectorIndexPath,
		s.config.Storage.LexicalIndexPath,
	)
	if err == nil {
		resp["disk_usage_bytes"] = diskBytes
	}
	s.respondJSON(w, http.StatusOK, resp)
}

func (s *Server) handleRebuild(w http.ResponseWriter, r *http.Request) {
	if err := s.index.Rebuild(r.Context()); err != nil {
		s.respondFromError(w, err, "rebuild failed")
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]string{"status": "rebuilt"})
}

func (s *Server) handleBackup(w http.ResponseWriter, r *http.Request) {
	info, err := s.index.Backup(r.Context())
	if err != nil {
		s.respondFromError(w, err, "backup failed")
		return
	}
	s.respondJSON(w, http.StatusCreated, info)
}

func (s *Server) handleRollback(w http.ResponseWriter, r *http.Request) {
	if err := s.index.Rollback(r.Context()); err != nil {
		s.respondFromError(w, err, "rollback failed")
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]string{"status": "rolled_back"})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) respondJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.logger.Error("encode response", zap.Error(err))
	}
}

func (s *Server) respondError(w http.ResponseWriter, status int, message string) {
	s.respondJSON(w, status, map[string]string{"error": message})
}

// respondFromError maps index error kinds to HTTP status codes.
func (s *Server) respondFromError(w http.ResponseWriter, err error, logMsg string) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, vector.ErrValidation):
		status = http.StatusBadRequest
	case errors.Is(err, vector.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, vector.ErrBackupUnavailable):
		status = http.StatusConflict
	}
	if status == http.StatusInternalServerError {
		s.logger.Error(logMsg, zap.Error(err))
	} else {
		s.logger.Debug(logMsg, zap.Error(err))
	}
	s.respondError(w, status, err.Error())
}

func queryInt(r *http.Request, key string, fallback int) int {
	v := r.URL.Query().Get(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return fallback
	}
	return n
}
