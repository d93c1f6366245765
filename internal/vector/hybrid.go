// Package vector implements the adaptive hybrid vector index: an exact
// flat tier holding every raw vector plus an optional approximate HNSW
// tier, with memory pressure deciding which tier answers queries.
package vector

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/shirahama/ronbun/internal/pressure"
)

// Options configures a hybrid index. Zero values pick the defaults.
type Options struct {
	// Dimensions is the vector dimensionality. Required.
	Dimensions int
	// Path is the persistence directory. Empty disables persistence.
	Path string
	// Hybrid enables the approximate tier. When false the index always
	// answers exhaustively and never builds a graph.
	Hybrid bool
	// HighWatermark is the memory utilization above which the index
	// switches to flat mode. Default 0.85.
	HighWatermark float64
	// Margin is the hysteresis band below the watermark. The index
	// returns to hybrid mode only below HighWatermark-Margin. Default 0.1.
	Margin float64
	// M is the graph connectivity. Default 32.
	M int
	// EfConstruction is the build-time beam width. Default 200.
	EfConstruction int
	// EfSearch is the query-time beam width floor. Default 128.
	EfSearch int
	// RerankSize is the minimum exact-rerank window. Default 30.
	RerankSize int
	// Gauge reports memory utilization. Defaults to the system gauge.
	Gauge pressure.Gauge
	// Seed fixes the graph's level draws for reproducible tests.
	// Zero uses the current time.
	Seed int64

	Logger *zap.Logger
}

func (o *Options) applyDefaults() {
	if o.HighWatermark <= 0 {
		o.HighWatermark = 0.85
	}
	if o.Margin <= 0 {
		o.Margin = 0.1
	}
	if o.M <= 0 {
		o.M = 32
	}
	if o.EfConstruction <= 0 {
		o.EfConstruction = 200
	}
	if o.EfSearch <= 0 {
		o.EfSearch = 128
	}
	if o.RerankSize <= 0 {
		o.RerankSize = 30
	}
	if o.Gauge == nil {
		o.Gauge = pressure.NewSystem()
	}
	if o.Seed == 0 {
		o.Seed = time.Now().UnixNano()
	}
	if o.Logger == nil {
		o.Logger = zap.NewNop()
	}
}

// HybridIndex stores vectors with metadata and serves nearest-neighbor
// queries through either tier. All mutations are persisted synchronously
// when a path is configured.
//
// Concurrency: one RWMutex guards all state. Mode lives in an atomic so
// a read-locked search can still record a transition.
type HybridIndex struct {
	opts   Options
	logger *zap.Logger

	mode atomic.Int32

	mu          sync.RWMutex
	records     []*Record
	vectors     [][]float32
	byID        map[string]int
	graph       *hnswGraph
	lastUpdated time.Time
	backup      *BackupInfo
}

// Open creates the index, loading any snapshot present at opts.Path.
func Open(opts Options) (*HybridIndex, error) {
	if opts.Dimensions <= 0 {
		return nil, fmt.Errorf("%w: dimensions must be positive", ErrValidation)
	}
	opts.applyDefaults()
	idx := &HybridIndex{
		opts:   opts,
		logger: opts.Logger,
		byID:   make(map[string]int),
	}
	if opts.Hybrid {
		idx.graph = idx.newGraph()
	} else {
		idx.mode.Store(int32(ModeFlat))
	}
	if opts.Path != "" {
		if err := idx.load(); err != nil {
			return nil, err
		}
		idx.loadDescriptor()
	}
	idx.evaluateMode()
	return idx, nil
}

func (h *HybridIndex) newGraph() *hnswGraph {
	return newHNSWGraph(h.opts.M, h.opts.EfConstruction, func(pos uint32) []float32 {
		return h.vectors[pos]
	}, h.opts.Seed)
}

// Mode returns the current search mode.
func (h *HybridIndex) Mode() Mode {
	return Mode(h.mode.Load())
}

// evaluateMode consults the gauge and applies the hysteresis rule.
// A gauge failure forces flat mode; approximate answers are never
// worth risking an OOM on a host we cannot observe.
func (h *HybridIndex) evaluateMode() Mode {
	if !h.opts.Hybrid {
		return ModeFlat
	}
	prev := Mode(h.mode.Load())
	util, err := h.opts.Gauge.Utilization()
	if err != nil {
		if prev != ModeFlat {
			h.logger.Warn("memory gauge failed, forcing flat mode", zap.Error(err))
			h.mode.Store(int32(ModeFlat))
		}
		return ModeFlat
	}
	next := prev
	switch {
	case util > h.opts.HighWatermark:
		next = ModeFlat
	case util < h.opts.HighWatermark-h.opts.Margin:
		next = ModeHybrid
	}
	if next != prev {
		h.mode.Store(int32(next))
		h.logger.Info("index mode transition",
			zap.String("from", prev.String()),
			zap.String("to", next.String()),
			zap.Float64("utilization", util))
	}
	return next
}

// Insert adds a record and persists the index. The id must be new and
// the vector must match the configured dimensionality. On a persistence
// failure the in-memory state is rolled back and the insert reports
// ErrStorage.
func (h *HybridIndex) Insert(ctx context.Context, rec Record) error {
	if rec.ID == "" {
		return fmt.Errorf("%w: empty id", ErrValidation)
	}
	if len(rec.Vector) != h.opts.Dimensions {
		return fmt.Errorf("%w: vector dimension %d, index expects %d", ErrValidation, len(rec.Vector), h.opts.Dimensions)
	}
	mode := h.evaluateMode()

	h.mu.Lock()
	defer h.mu.Unlock()
	if _, exists := h.byID[rec.ID]; exists {
		return fmt.Errorf("%w: id %q already indexed", ErrValidation, rec.ID)
	}

	vec := make([]float32, len(rec.Vector))
	copy(vec, rec.Vector)
	stored := rec
	stored.Vector = vec

	pos := len(h.records)
	h.records = append(h.records, &stored)
	h.vectors = append(h.vectors, vec)
	h.byID[rec.ID] = pos

	graphTouched := false
	if h.graph != nil && mode == ModeHybrid {
		// Catch up on records inserted while flat, then the new one.
		for p := h.graph.size(); p < len(h.records); p++ {
			h.graph.add(uint32(p))
		}
		graphTouched = true
	}
	h.lastUpdated = time.Now()

	if err := h.save(); err != nil {
		h.records = h.records[:pos]
		h.vectors = h.vectors[:pos]
		delete(h.byID, rec.ID)
		if graphTouched {
			h.rebuildGraphLocked()
		}
		return fmt.Errorf("%w: persist insert: %v", ErrStorage, err)
	}
	return nil
}

// Search returns the k records nearest to query, best first.
//
// In hybrid mode the graph proposes a candidate window of
// min(max(rerankSize, 3k), population) positions. Records inserted
// while the index was flat are not in the graph yet, so they join the
// window unconditionally; an exact rerank over the window then picks
// the final k. Flat mode scans everything. A non-nil threshold drops
// results scoring below it.
func (h *HybridIndex) Search(ctx context.Context, query []float32, k int, threshold *float64) ([]ScoredResult, error) {
	if len(query) != h.opts.Dimensions {
		return nil, fmt.Errorf("%w: query dimension %d, index expects %d", ErrValidation, len(query), h.opts.Dimensions)
	}
	if k <= 0 {
		return nil, nil
	}
	mode := h.evaluateMode()

	h.mu.RLock()
	defer h.mu.RUnlock()
	n := len(h.records)
	if n == 0 {
		return nil, nil
	}

	var window []uint32
	if mode == ModeHybrid && h.graph != nil && h.graph.size() > 0 {
		candidateK := max(h.opts.RerankSize, 3*k)
		if candidateK > n {
			candidateK = n
		}
		ef := max(h.opts.EfSearch, candidateK)
		window = h.graph.search(query, candidateK, ef)
		for p := h.graph.size(); p < n; p++ {
			window = append(window, uint32(p))
		}
	} else {
		window = make([]uint32, n)
		for i := range window {
			window[i] = uint32(i)
		}
	}

	// Exact rerank over the window.
	vecs := make([][]float32, len(window))
	for i, p := range window {
		vecs[i] = h.vectors[p]
	}
	nearest := flatSearch(vecs, query, k)

	out := make([]ScoredResult, 0, len(nearest))
	for _, c := range nearest {
		score := similarity(c.dist)
		if threshold != nil && score < *threshold {
			continue
		}
		rec := h.records[window[c.pos]]
		out = append(out, ScoredResult{ID: rec.ID, Score: score, Meta: rec.Meta})
	}
	return out, nil
}

// Delete removes a record by id. It reports false without error when
// the id is absent. A successful removal rebuilds both tiers from the
// surviving vectors and persists the result. When persistence fails
// the removal is undone, keeping memory and disk in agreement.
func (h *HybridIndex) Delete(ctx context.Context, id string) (bool, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	pos, ok := h.byID[id]
	if !ok {
		return false, nil
	}
	prev := make([]*Record, len(h.records))
	copy(prev, h.records)
	h.records = append(h.records[:pos], h.records[pos+1:]...)
	h.rebuildLocked()
	if err := h.save(); err != nil {
		h.records = prev
		h.rebuildLocked()
		return false, fmt.Errorf("%w: persist delete: %v", ErrStorage, err)
	}
	return true, nil
}

// DeleteWhere removes every record the predicate matches and rebuilds
// once. Returns the number removed.
func (h *HybridIndex) DeleteWhere(ctx context.Context, match func(RecordMeta) bool) (int, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	kept := make([]*Record, 0, len(h.records))
	removed := 0
	for _, rec := range h.records {
		if match(rec.Meta) {
			removed++
			continue
		}
		kept = append(kept, rec)
	}
	if removed == 0 {
		return 0, nil
	}
	prev := h.records
	h.records = kept
	h.rebuildLocked()
	if err := h.save(); err != nil {
		h.records = prev
		h.rebuildLocked()
		return 0, fmt.Errorf("%w: persist delete: %v", ErrStorage, err)
	}
	return removed, nil
}

// UpdateMetaWhere applies fn to the metadata of every record the
// predicate matches, then persists. Vectors are untouched, so no tier
// needs rebuilding. Returns the number of records updated.
func (h *HybridIndex) UpdateMetaWhere(ctx context.Context, match func(RecordMeta) bool, fn func(*RecordMeta)) (int, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	updated := 0
	type savedMeta struct {
		rec  *Record
		meta RecordMeta
	}
	var prior []savedMeta
	for _, rec := range h.records {
		if match(rec.Meta) {
			prior = append(prior, savedMeta{rec: rec, meta: rec.Meta})
			fn(&rec.Meta)
			updated++
		}
	}
	if updated == 0 {
		return 0, nil
	}
	h.lastUpdated = time.Now()
	if err := h.save(); err != nil {
		for _, p := range prior {
			p.rec.Meta = p.meta
		}
		return 0, fmt.Errorf("%w: persist metadata update: %v", ErrStorage, err)
	}
	return updated, nil
}

// Rebuild reconstructs both tiers from the stored raw vectors in
// insertion order and persists the result. Rebuilding an untouched
// index is a no-op semantically.
func (h *HybridIndex) Rebuild(ctx context.Context) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.rebuildLocked()
	if err := h.save(); err != nil {
		return fmt.Errorf("%w: persist rebuild: %v", ErrStorage, err)
	}
	return nil
}

// rebuildLocked derives fresh tiers from h.records. Caller holds the
// write lock.
func (h *HybridIndex) rebuildLocked() {
	h.vectors = make([][]float32, len(h.records))
	h.byID = make(map[string]int, len(h.records))
	for i, rec := range h.records {
		h.vectors[i] = rec.Vector
		h.byID[rec.ID] = i
	}
	h.rebuildGraphLocked()
	h.lastUpdated = time.Now()
}

func (h *HybridIndex) rebuildGraphLocked() {
	if !h.opts.Hybrid {
		return
	}
	h.graph = h.newGraph()
	if Mode(h.mode.Load()) != ModeHybrid {
		// Flat mode defers graph construction to the next hybrid insert.
		return
	}
	for p := range h.records {
		h.graph.add(uint32(p))
	}
}

// Get returns the record stored under id.
func (h *HybridIndex) Get(id string) (Record, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	pos, ok := h.byID[id]
	if !ok {
		return Record{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return *h.records[pos], nil
}

// Has reports whether id is indexed.
func (h *HybridIndex) Has(id string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	_, ok := h.byID[id]
	return ok
}

// Len returns the population.
func (h *HybridIndex) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.records)
}

// Describe reports the index configuration and current state.
func (h *HybridIndex) Describe() Status {
	h.mu.RLock()
	defer h.mu.RUnlock()
	st := Status{
		Population:     len(h.records),
		Dimensions:     h.opts.Dimensions,
		Mode:           Mode(h.mode.Load()).String(),
		HybridEnabled:  h.opts.Hybrid,
		M:              h.opts.M,
		EfConstruction: h.opts.EfConstruction,
		EfSearch:       h.opts.EfSearch,
		RerankSize:     h.opts.RerankSize,
		HighWatermark:  h.opts.HighWatermark,
		Margin:         h.opts.Margin,
		LastUpdated:    h.lastUpdated,
	}
	if h.graph != nil {
		st.GraphSize = h.graph.size()
	}
	if h.backup != nil {
		info := *h.backup
		st.Backup = &info
	}
	return st
}
