// Package watcher ingests paper bundles dropped into a directory.
// A bundle is one JSON file holding an ingest request; once the file
// stops changing it is ingested and removed, or renamed with a .failed
// suffix when ingestion errors.
package watcher

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"github.com/shirahama/ronbun/internal/ingest"
	"github.com/shirahama/ronbun/internal/models"
)

const defaultDebounce = 400 * time.Millisecond

// Watcher tails a drop directory and feeds bundles to the ingest service.
type Watcher struct {
	dir     string
	service *ingest.Service
	logger  *zap.Logger

	debounce    time.Duration
	watcher     *fsnotify.Watcher
	mu          sync.Mutex
	debounceMap map[string]*time.Timer
	done        chan struct{}
	started     bool
	stopOnce    sync.Once
}

// New creates a watcher over dir. The directory is created if missing.
func New(dir string, service *ingest.Service, logger *zap.Logger) *Watcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Watcher{
		dir:         dir,
		service:     service,
		logger:      logger,
		debounce:    defaultDebounce,
		debounceMap: make(map[string]*time.Timer),
		done:        make(chan struct{}),
	}
}

// Start begins watching. Bundles already present in the directory are
// processed first so restarts do not strand files. Runs until ctx is
// cancelled or Stop is called.
func (w *Watcher) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.started {
		w.mu.Unlock()
		return nil
	}
	if err := os.MkdirAll(w.dir, 0755); err != nil {
		w.mu.Unlock()
		return err
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		w.mu.Unlock()
		return err
	}
	if err := watcher.Add(w.dir); err != nil {
		_ = watcher.Close()
		w.mu.Unlock()
		return err
	}
	w.watcher = watcher
	w.started = true
	w.mu.Unlock()

	w.logger.Info("watching drop directory", zap.String("dir", w.dir))
	w.drainExisting(ctx)
	go w.run(ctx)
	return nil
}

// Stop stops the watcher. Safe to call more than once.
func (w *Watcher) Stop() {
	w.stopOnce.Do(func() {
		close(w.done)
		w.mu.Lock()
		if w.watcher != nil {
			_ = w.watcher.Close()
		}
		for _, t := range w.debounceMap {
			t.Stop()
		}
		w.mu.Unlock()
	})
}

func (w *Watcher) run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			w.Stop()
			return
		case <-w.done:
			return
		case ev, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			w.handleEvent(ctx, ev)
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			if err != nil {
				w.logger.Debug("watcher error", zap.Error(err))
			}
		}
	}
}

func (w *Watcher) handleEvent(ctx context.Context, ev fsnotify.Event) {
	if !isBundle(ev.Name) {
		return
	}
	switch {
	case ev.Op.Has(fsnotify.Create), ev.Op.Has(fsnotify.Write):
		w.debounceProcess(ctx, ev.Name)
	case ev.Op.Has(fsnotify.Remove), ev.Op.Has(fsnotify.Rename):
		w.cancelDebounce(ev.Name)
	}
}

func (w *Watcher) drainExisting(ctx context.Context) {
	entries, err := os.ReadDir(w.dir)
	if err != nil {
		w.logger.Warn("read drop directory", zap.Error(err))
		return
	}
	for _, e := range entries {
		if e.Type().IsRegular() && isBundle(e.Name()) {
			w.process(ctx, filepath.Join(w.dir, e.Name()))
		}
	}
}

// debounceProcess delays processing until writes settle; editors and
// network copies produce several write events per file.
func (w *Watcher) debounceProcess(ctx context.Context, path string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if t, ok := w.debounceMap[path]; ok {
		t.Stop()
	}
	w.debounceMap[path] = time.AfterFunc(w.debounce, func() {
		w.mu.Lock()
		delete(w.debounceMap, path)
		w.mu.Unlock()
		w.process(ctx, path)
	})
}

func (w *Watcher) cancelDebounce(path string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if t, ok := w.debounceMap[path]; ok {
		t.Stop()
		delete(w.debounceMap, path)
	}
}

func (w *Watcher) process(ctx context.Context, path string) {
	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			w.logger.Warn("read bundle", zap.String("path", path), zap.Error(err))
		}
		return
	}
	var req models.IngestRequest
	if err := json.Unmarshal(data, &req); err != nil {
		w.logger.Warn("malformed bundle", zap.String("path", path), zap.Error(err))
		w.quarantine(path)
		return
	}
	if req.Filename == "" {
		req.Filename = filepath.Base(path)
	}

	resp, err := w.service.Ingest(ctx, &req)
	if err != nil {
		w.logger.Warn("bundle ingestion failed", zap.String("path", path), zap.Error(err))
		w.quarantine(path)
		return
	}
	w.logger.Info("bundle ingested",
		zap.String("path", path),
		zap.String("paper_id", resp.PaperID),
		zap.Int("paragraphs", resp.ParagraphCount))
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		w.logger.Warn("remove processed bundle", zap.String("path", path), zap.Error(err))
	}
}

// quarantine renames a bad bundle so it is not retried on every restart.
func (w *Watcher) quarantine(path string) {
	if err := os.Rename(path, path+".failed"); err != nil && !os.IsNotExist(err) {
		w.logger.Warn("quarantine bundle", zap.String("path", path), zap.Error(err))
	}
}

func isBundle(path string) bool {
	return strings.EqualFold(filepath.Ext(path), ".json")
}
