// Package config provides configuration loading and structs for the ronbun server.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the application.
type Config struct {
	Debug     bool            `yaml:"debug"`
	Server    ServerConfig    `yaml:"server"`
	Storage   StorageConfig   `yaml:"storage"`
	Embedding EmbeddingConfig `yaml:"embedding"`
	Index     IndexConfig     `yaml:"index"`
	Search    SearchConfig    `yaml:"search"`
	Watch     WatchConfig     `yaml:"watch"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// StorageConfig holds paths for the metadata database and indices.
type StorageConfig struct {
	DatabasePath     string `yaml:"database_path"`
	VectorIndexPath  string `yaml:"vector_index_path"`
	LexicalIndexPath string `yaml:"lexical_index_path"`
}

// EmbeddingConfig holds embedder settings.
type EmbeddingConfig struct {
	ModelPath  string `yaml:"model_path"`
	Dimensions int    `yaml:"dimensions"`
	MaxTokens  int    `yaml:"max_tokens"`
	CacheSize  int    `yaml:"cache_size"`
}

// IndexConfig holds hybrid vector index settings.
type IndexConfig struct {
	// Hybrid enables the approximate tier; when false the index runs flat only.
	Hybrid *bool `yaml:"hybrid"`
	// MemoryHighWatermark is the system memory utilization (0-1) above which
	// the index switches to flat search.
	MemoryHighWatermark float64 `yaml:"memory_high_watermark"`
	// MemoryMargin is subtracted from the watermark to form the re-entry
	// threshold, preventing mode oscillation.
	MemoryMargin   float64 `yaml:"memory_margin"`
	M              int     `yaml:"hnsw_m"`
	EfConstruction int     `yaml:"hnsw_ef_construction"`
	EfSearch       int     `yaml:"hnsw_ef_search"`
	RerankSize     int     `yaml:"rerank_size"`
}

// HybridEnabled returns whether the approximate tier is enabled; defaults to true.
func (c *IndexConfig) HybridEnabled() bool {
	if c.Hybrid != nil {
		return *c.Hybrid
	}
	return true
}

// SearchConfig holds search settings.
type SearchConfig struct {
	DefaultLimit          int     `yaml:"default_limit"`
	MaxLimit              int     `yaml:"max_limit"`
	SimilarityThreshold   float64 `yaml:"similarity_threshold"`
	MaxParagraphsPerPaper int     `yaml:"max_paragraphs_per_paper"`
	ChunkSize             int     `yaml:"chunk_size"`
	ChunkOverlap          int     `yaml:"chunk_overlap"`
}

// WatchConfig holds ingestion drop-directory settings.
type WatchConfig struct {
	Directory string `yaml:"directory"`
}

// Load reads and parses the config file at path, applies defaults, and
// expands paths. Returns an error if the file cannot be read or parsed.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	ApplyDefaults(&cfg)

	configDir := filepath.Dir(path)
	cfg.Storage.DatabasePath = expandPath(cfg.Storage.DatabasePath, configDir)
	cfg.Storage.VectorIndexPath = expandPath(cfg.Storage.VectorIndexPath, configDir)
	cfg.Storage.LexicalIndexPath = expandPath(cfg.Storage.LexicalIndexPath, configDir)
	cfg.Embedding.ModelPath = expandPath(cfg.Embedding.ModelPath, configDir)
	if cfg.Watch.Directory != "" {
		cfg.Watch.Directory = expandPath(cfg.Watch.Directory, configDir)
	}

	return &cfg, nil
}

// expandPath converts a path to absolute. Paths starting with "./" are relative
// to configDir; other relative paths are relative to the home directory.
func expandPath(path string, configDir string) string {
	if filepath.IsAbs(path) {
		return path
	}
	if strings.HasPrefix(path, "./") || path == "." {
		return filepath.Join(configDir, path)
	}
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, path)
	}
	return path
}
