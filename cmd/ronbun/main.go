// Package main is the ronbun CLI entry point.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/shirahama/ronbun/internal/config"
	"github.com/shirahama/ronbun/internal/embedding"
	"github.com/shirahama/ronbun/internal/ingest"
	"github.com/shirahama/ronbun/internal/lexical"
	"github.com/shirahama/ronbun/internal/models"
	"github.com/shirahama/ronbun/internal/search"
	"github.com/shirahama/ronbun/internal/server"
	"github.com/shirahama/ronbun/internal/storage"
	"github.com/shirahama/ronbun/internal/vector"
	"github.com/shirahama/ronbun/internal/watcher"
	"github.com/shirahama/ronbun/pkg/utils"
)

var version = "dev"

const defaultConfigPath = "/usr/local/etc/ronbun/config.yaml"

// loadConfig prefers config.yaml in the working directory when the
// default path is requested, so running from a project checkout picks
// up the project's config.
func loadConfig(path string) (*config.Config, string, error) {
	if path == defaultConfigPath {
		if cwd, cwdErr := os.Getwd(); cwdErr == nil {
			fallback := filepath.Join(cwd, "config.yaml")
			if _, statErr := os.Stat(fallback); statErr == nil {
				cfg, loadErr := config.Load(fallback)
				if loadErr != nil {
					return nil, "", loadErr
				}
				return cfg, fallback, nil
			}
		}
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, "", err
	}
	return cfg, path, nil
}

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}
	switch os.Args[1] {
	case "server":
		runServer()
	case "search":
		runSearch()
	case "ingest":
		runIngest()
	case "delete":
		runDelete()
	case "status":
		runStatus()
	case "rebuild":
		runAdmin("rebuild", http.MethodPost, "/api/v1/admin/rebuild")
	case "backup":
		runAdmin("backup", http.MethodPost, "/api/v1/admin/backup")
	case "rollback":
		runAdmin("rollback", http.MethodPost, "/api/v1/admin/rollback")
	case "version", "--version", "-v":
		fmt.Printf("ronbun version %s\n", version)
	case "help", "--help", "-h":
		printUsage()
	default:
		fmt.Printf("Unknown command: %s\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

// components holds everything the server needs, for one-shot teardown.
type components struct {
	Storage  *storage.SQLiteStorage
	Embedder embedding.Embedder
	Index    *vector.HybridIndex
	Lexical  *lexical.Index
	Pipeline *search.Pipeline
	Ingester *ingest.Service
}

func (c *components) Close() {
	if c.Lexical != nil {
		_ = c.Lexical.Close()
	}
	if c.Embedder != nil {
		_ = c.Embedder.Close()
	}
	if c.Storage != nil {
		_ = c.Storage.Close()
	}
}

func initializeComponents(cfg *config.Config, logger *zap.Logger) (*components, error) {
	store, err := storage.NewSQLiteStorage(cfg.Storage.DatabasePath)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}

	var embedder embedding.Embedder
	onnxEmbedder, err := embedding.NewONNXEmbedder(
		cfg.Embedding.ModelPath,
		cfg.Embedding.Dimensions,
		cfg.Embedding.MaxTokens,
	)
	if err != nil {
		logger.Warn("ONNX embedder unavailable, using mock embeddings", zap.Error(err))
		embedder = embedding.NewMockEmbedder(cfg.Embedding.Dimensions)
	} else {
		embedder = onnxEmbedder
	}
	if cfg.Embedding.CacheSize > 0 {
		embedder = embedding.NewCachingEmbedder(embedder, cfg.Embedding.CacheSize)
	}

	index, err := vector.Open(vector.Options{
		Dimensions:     cfg.Embedding.Dimensions,
		Path:           cfg.Storage.VectorIndexPath,
		Hybrid:         cfg.Index.HybridEnabled(),
		HighWatermark:  cfg.Index.MemoryHighWatermark,
		Margin:         cfg.Index.MemoryMargin,
		M:              cfg.Index.M,
		EfConstruction: cfg.Index.EfConstruction,
		EfSearch:       cfg.Index.EfSearch,
		RerankSize:     cfg.Index.RerankSize,
		Logger:         logger,
	})
	if err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("failed to open vector index: %w", err)
	}
	logger.Info("vector index opened",
		zap.Int("population", index.Len()),
		zap.String("mode", index.Mode().String()))

	lex, err := lexical.New(cfg.Storage.LexicalIndexPath)
	if err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("failed to initialize lexical index: %w", err)
	}

	pipeline := search.NewPipeline(embedder, index, lex, store, search.Options{
		DefaultLimit:        cfg.Search.DefaultLimit,
		MaxLimit:            cfg.Search.MaxLimit,
		SimilarityThreshold: cfg.Search.SimilarityThreshold,
		MaxParagraphsPerHit: cfg.Search.MaxParagraphsPerPaper,
		Logger:              logger,
	})
	ingester := ingest.NewService(embedder, index, lex, store, ingest.Options{
		ChunkSize:    cfg.Search.ChunkSize,
		ChunkOverlap: cfg.Search.ChunkOverlap,
		Logger:       logger,
	})

	return &components{
		Storage:  store,
		Embedder: embedder,
		Index:    index,
		Lexical:  lex,
		Pipeline: pipeline,
		Ingester: ingester,
	}, nil
}

func runServer() {
	fs := flag.NewFlagSet("server", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	debug := fs.Bool("debug", false, "enable debug logging")
	_ = fs.Parse(os.Args[2:])

	cfg, resolvedPath, err := loadConfig(*configPath)
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}
	debugMode := cfg.Debug || *debug
	logger, err := utils.NewLogger(debugMode)
	if err != nil {
		fmt.Printf("Failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	logger.Info("config loaded",
		zap.String("config_path", resolvedPath),
		zap.Bool("debug", debugMode))

	comps, err := initializeComponents(cfg, logger)
	if err != nil {
		logger.Fatal("Failed to initialize components", zap.Error(err))
	}
	defer comps.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if cfg.Watch.Directory != "" {
		w := watcher.New(cfg.Watch.Directory, comps.Ingester, logger)
		if err := w.Start(ctx); err != nil {
			logger.Fatal("Failed to start drop directory watcher", zap.Error(err))
		}
		defer w.Stop()
	}

	srv := server.NewServer(comps.Pipeline, comps.Ingester, comps.Index, comps.Storage, cfg, logger)

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Start() }()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	select {
	case err := <-errCh:
		if err != nil && err != http.ErrServerClosed {
			logger.Fatal("server failed", zap.Error(err))
		}
	case sig := <-sigCh:
		logger.Info("shutting down", zap.String("signal", sig.String()))
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		if err := srv.Stop(shutdownCtx); err != nil {
			logger.Warn("shutdown error", zap.Error(err))
		}
	}
}

func runSearch() {
	fs := flag.NewFlagSet("search", flag.ExitOnError)
	serverURL := fs.String("server", "http://localhost:8080", "server URL")
	mode := fs.String("mode", "semantic", "search mode: semantic or lexical")
	granularity := fs.String("granularity", "paragraph", "result granularity: paragraph or document")
	limit := fs.Int("limit", 10, "number of results")
	yearMin := fs.Int("year-min", 0, "minimum publication year (inclusive)")
	yearMax := fs.Int("year-max", 0, "maximum publication year (inclusive)")
	author := fs.String("author", "", "author name filter (partial match)")
	conference := fs.String("conference", "", "conference filter (partial match)")
	outputJSON := fs.Bool("json", false, "print raw JSON response")
	_ = fs.Parse(os.Args[2:])

	if fs.NArg() < 1 {
		fmt.Fprintln(os.Stderr, "Usage: ronbun search [flags] <query>")
		fs.PrintDefaults()
		os.Exit(1)
	}
	query := strings.Join(fs.Args(), " ")

	req := &models.SearchRequest{
		Query:       query,
		Mode:        *mode,
		Granularity: *granularity,
		Limit:       *limit,
	}
	filter := &models.SearchFilter{}
	if *yearMin > 0 {
		filter.YearMin = yearMin
	}
	if *yearMax > 0 {
		filter.YearMax = yearMax
	}
	if *author != "" {
		filter.Authors = []string{*author}
	}
	if *conference != "" {
		filter.Conference = *conference
	}
	if !filter.Empty() {
		req.Filters = filter
	}

	var resp models.SearchResponse
	if err := postJSON(*serverURL+"/api/v1/search", req, &resp); err != nil {
		fmt.Fprintf(os.Stderr, "Search failed: %v\n", err)
		os.Exit(1)
	}

	if *outputJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		_ = enc.Encode(resp)
		return
	}
	fmt.Printf("%d papers matched (%d shown, %dms)\n\n", resp.TotalCount, len(resp.Results), resp.QueryTime)
	for i, r := range resp.Results {
		fmt.Printf("%d. %s (%.3f)\n", i+1, r.Title, r.Score)
		if len(r.Authors) > 0 {
			fmt.Printf("   %s", strings.Join(r.Authors, ", "))
			if r.Year > 0 {
				fmt.Printf(" (%d)", r.Year)
			}
			fmt.Println()
		}
		for _, p := range r.MatchingParagraphs {
			fmt.Printf("   > %s\n", truncate(p.Text, 160))
		}
		fmt.Println()
	}
}

func runIngest() {
	fs := flag.NewFlagSet("ingest", flag.ExitOnError)
	serverURL := fs.String("server", "http://localhost:8080", "server URL")
	_ = fs.Parse(os.Args[2:])

	if fs.NArg() < 1 {
		fmt.Fprintln(os.Stderr, "Usage: ronbun ingest [flags] <bundle.json>...")
		os.Exit(1)
	}
	for _, path := range fs.Args() {
		data, err := os.ReadFile(path)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Read %s failed: %v\n", path, err)
			os.Exit(1)
		}
		var req models.IngestRequest
		if err := json.Unmarshal(data, &req); err != nil {
			fmt.Fprintf(os.Stderr, "Parse %s failed: %v\n", path, err)
			os.Exit(1)
		}
		if req.Filename == "" {
			req.Filename = filepath.Base(path)
		}
		var resp models.IngestResponse
		if err := postJSON(*serverURL+"/api/v1/papers", &req, &resp); err != nil {
			fmt.Fprintf(os.Stderr, "Ingest %s failed: %v\n", path, err)
			os.Exit(1)
		}
		fmt.Printf("Ingested %s as %s (%d paragraphs)\n", path, resp.PaperID, resp.ParagraphCount)
	}
}

func runDelete() {
	fs := flag.NewFlagSet("delete", flag.ExitOnError)
	serverURL := fs.String("server", "http://localhost:8080", "server URL")
	_ = fs.Parse(os.Args[2:])

	if fs.NArg() < 1 {
		fmt.Fprintln(os.Stderr, "Usage: ronbun delete [flags] <paper-id>...")
		os.Exit(1)
	}
	for _, id := range fs.Args() {
		req, err := http.NewRequest(http.MethodDelete, *serverURL+"/api/v1/papers/"+id, nil)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Delete %s failed: %v\n", id, err)
			os.Exit(1)
		}
		if err := doRequest(req, nil); err != nil {
			fmt.Fprintf(os.Stderr, "Delete %s failed: %v\n", id, err)
			os.Exit(1)
		}
		fmt.Printf("Deleted %s\n", id)
	}
}

func runStatus() {
	fs := flag.NewFlagSet("status", flag.ExitOnError)
	serverURL := fs.String("server", "http://localhost:8080", "server URL")
	_ = fs.Parse(os.Args[2:])

	req, err := http.NewRequest(http.MethodGet, *serverURL+"/api/v1/status", nil)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Status failed: %v\n", err)
		os.Exit(1)
	}
	var status map[string]any
	if err := doRequest(req, &status); err != nil {
		fmt.Fprintf(os.Stderr, "Status failed: %v\n", err)
		os.Exit(1)
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	_ = enc.Encode(status)
}

func runAdmin(name, method, path string) {
	fs := flag.NewFlagSet(name, flag.ExitOnError)
	serverURL := fs.String("server", "http://localhost:8080", "server URL")
	_ = fs.Parse(os.Args[2:])

	req, err := http.NewRequest(method, *serverURL+path, nil)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%s failed: %v\n", name, err)
		os.Exit(1)
	}
	var resp map[string]any
	if err := doRequest(req, &resp); err != nil {
		fmt.Fprintf(os.Stderr, "%s failed: %v\n", name, err)
		os.Exit(1)
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	_ = enc.Encode(resp)
}

func postJSON(url string, payload, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	resp, err := http.Post(url, "application/json", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		b, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("server returned %d: %s", resp.StatusCode, string(b))
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func doRequest(req *http.Request, out any) error {
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		b, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("server returned %d: %s", resp.StatusCode, string(b))
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

func printUsage() {
	fmt.Println(`ronbun - semantic search over research papers

Usage:
  ronbun server   [-config path] [-debug]          run the HTTP server
  ronbun search   [flags] <query>                  search the corpus
  ronbun ingest   [flags] <bundle.json>...         ingest paper bundles
  ronbun delete   [flags] <paper-id>...            delete papers
  ronbun status   [flags]                          show corpus and index status
  ronbun rebuild  [flags]                          rebuild the vector index
  ronbun backup   [flags]                          snapshot the vector index
  ronbun rollback [flags]                          restore the last backup
  ronbun version                                   print version

Client commands talk to a running server (default http://localhost:8080).`)
}
