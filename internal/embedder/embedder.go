// Package embedder provides interfaces and implementations for text embedding.
package embedder

import (
	"context"
	"errors"
)

// ErrNotConfigured is returned at construction time when a provider is
// missing required credentials or endpoints. It is fatal: the service must
// not start without a working embedder.
var ErrNotConfigured = errors.New("embedder not configured")

// Embedder defines the interface for text embedding services.
type Embedder interface {
	// Embed generates an embedding vector for a single text input.
	Embed(ctx context.Context, text string) ([]float32, error)

	// EmbedBatch generates embedding vectors for multiple text inputs.
	// Returns a slice of embeddings in the same order as the input texts.
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)

	// Dimension returns the dimensionality of the embedding vectors.
	Dimension() int

	// ModelName returns the name of the embedding model being used.
	ModelName() string
}

// Cache stores embedding vectors keyed by a stable record identifier.
// Implementations are best-effort: a miss or write failure only forces
// recomputation, it never fails the caller.
type Cache interface {
	// Get returns the cached vector for a record, if present and produced
	// by the given model.
	Get(recordID, model string) ([]float32, bool)

	// Put stores a vector for a record, overwriting any entry from a
	// previous model.
	Put(recordID, model string, vector []float32)
}
