package embedder

import (
	"context"
	"fmt"

	openai "github.com/sashabaranov/go-openai"
)

const (
	// DefaultOpenAIModel is the default OpenAI embedding model.
	DefaultOpenAIModel = string(openai.SmallEmbedding3)

	// DefaultOpenAIDimension is the dimension of text-embedding-3-small.
	DefaultOpenAIDimension = 1536
)

// OpenAIConfig holds configuration for the OpenAI embedder.
type OpenAIConfig struct {
	// APIKey is required.
	APIKey string

	// Model is the embedding model (default: text-embedding-3-small).
	Model string

	// Dimension is the embedding dimension (default: 1536).
	Dimension int
}

// OpenAIEmbedder implements the Embedder interface using the OpenAI API.
type OpenAIEmbedder struct {
	client    *openai.Client
	model     string
	dimension int
}

// NewOpenAIEmbedder creates a new OpenAI embedder.
// Returns ErrNotConfigured when the API key is missing.
func NewOpenAIEmbedder(cfg OpenAIConfig) (*OpenAIEmbedder, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("%w: missing OpenAI API key", ErrNotConfigured)
	}

	model := cfg.Model
	if model == "" {
		model = DefaultOpenAIModel
	}

	dimension := cfg.Dimension
	if dimension <= 0 {
		dimension = DefaultOpenAIDimension
	}

	return &OpenAIEmbedder{
		client:    openai.NewClient(cfg.APIKey),
		model:     model,
		dimension: dimension,
	}, nil
}

// Embed generates an embedding vector for a single text input.
func (e *OpenAIEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	vectors, err := e.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

// EmbedBatch generates embedding vectors for multiple text inputs in a
// single API call, order preserving.
func (e *OpenAIEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return [][]float32{}, nil
	}

	resp, err := e.client.CreateEmbeddings(ctx, openai.EmbeddingRequestStrings{
		Input: texts,
		Model: openai.EmbeddingModel(e.model),
	})
	if err != nil {
		return nil, fmt.Errorf("openai embedding request failed: %w", err)
	}

	if len(resp.Data) != len(texts) {
		return nil, fmt.Errorf("openai returned %d embeddings for %d inputs", len(resp.Data), len(texts))
	}

	// Response order matches the data Index field, not necessarily the
	// slice order.
	vectors := make([][]float32, len(texts))
	for _, d := range resp.Data {
		if d.Index < 0 || d.Index >= len(vectors) {
			return nil, fmt.Errorf("openai returned out-of-range embedding index %d", d.Index)
		}
		vectors[d.Index] = d.Embedding
	}

	return vectors, nil
}

// Dimension returns the dimensionality of the embedding vectors.
func (e *OpenAIEmbedder) Dimension() int {
	return e.dimension
}

// ModelName returns the name of the embedding model being used.
func (e *OpenAIEmbedder) ModelName() string {
	return e.model
}

// Ensure OpenAIEmbedder implements Embedder interface.
var _ Embedder = (*OpenAIEmbedder)(nil)
