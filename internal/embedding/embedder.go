// Package embedding provides text embedding and caching. The embedding model
// itself is an external collaborator: this package defines the oracle
// interface, a deterministic mock, and an optional ONNX adapter (build tag
// "onnx").
package embedding

import "context"

// Embedder produces vector embeddings for text. Implementations must be
// deterministic: identical input yields an identical vector.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
	Dimensions() int
	Close() error
}
