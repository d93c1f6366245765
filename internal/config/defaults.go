package config

// ApplyDefaults sets default values for any zero values in cfg.
func ApplyDefaults(cfg *Config) {
	if cfg.Server.Host == "" {
		cfg.Server.Host = "localhost"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Storage.DatabasePath == "" {
		cfg.Storage.DatabasePath = "/usr/local/var/ronbun/data/metadata.db"
	}
	if cfg.Storage.VectorIndexPath == "" {
		cfg.Storage.VectorIndexPath = "/usr/local/var/ronbun/data/indices/vector"
	}
	if cfg.Storage.LexicalIndexPath == "" {
		cfg.Storage.LexicalIndexPath = "/usr/local/var/ronbun/data/indices/lexical"
	}
	if cfg.Embedding.Dimensions == 0 {
		cfg.Embedding.Dimensions = 384
	}
	if cfg.Embedding.MaxTokens == 0 {
		cfg.Embedding.MaxTokens = 256
	}
	if cfg.Embedding.CacheSize == 0 {
		cfg.Embedding.CacheSize = 10000
	}
	if cfg.Index.MemoryHighWatermark == 0 {
		cfg.Index.MemoryHighWatermark = 0.85
	}
	if cfg.Index.MemoryMargin == 0 {
		cfg.Index.MemoryMargin = 0.1
	}
	if cfg.Index.M == 0 {
		cfg.Index.M = 32
	}
	if cfg.Index.EfConstruction == 0 {
		cfg.Index.EfConstruction = 200
	}
	if cfg.Index.EfSearch == 0 {
		cfg.Index.EfSearch = 128
	}
	if cfg.Index.RerankSize == 0 {
		cfg.Index.RerankSize = 30
	}
	if cfg.Search.DefaultLimit == 0 {
		cfg.Search.DefaultLimit = 10
	}
	if cfg.Search.MaxLimit == 0 {
		cfg.Search.MaxLimit = 100
	}
	if cfg.Search.SimilarityThreshold == 0 {
		cfg.Search.SimilarityThreshold = 0.2
	}
	if cfg.Search.MaxParagraphsPerPaper == 0 {
		cfg.Search.MaxParagraphsPerPaper = 3
	}
	if cfg.Search.ChunkSize == 0 {
		cfg.Search.ChunkSize = 200
	}
	if cfg.Search.ChunkOverlap == 0 {
		cfg.Search.ChunkOverlap = 40
	}
}
