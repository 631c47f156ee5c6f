package embedder

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"
)

const (
	// DefaultOllamaBaseURL is the default Ollama API endpoint.
	DefaultOllamaBaseURL = "http://localhost:11434"

	// DefaultOllamaModel is the default Ollama embedding model.
	DefaultOllamaModel = "nomic-embed-text"

	// DefaultOllamaDimension is the dimension of nomic-embed-text.
	DefaultOllamaDimension = 768

	// DefaultOllamaConcurrency bounds concurrent requests in EmbedBatch.
	// Ollama serves one embedding per request, so batches fan out.
	DefaultOllamaConcurrency = 4
)

// OllamaEmbedder implements the Embedder interface against an Ollama server.
type OllamaEmbedder struct {
	baseURL     string
	model       string
	dimension   int
	concurrency int
	httpClient  *http.Client
}

// OllamaOption is a functional option for configuring OllamaEmbedder.
type OllamaOption func(*OllamaEmbedder)

// WithBaseURL sets a custom base URL for the Ollama API.
func WithBaseURL(u string) OllamaOption {
	return func(e *OllamaEmbedder) {
		e.baseURL = strings.TrimSuffix(u, "/")
	}
}

// WithModel sets the embedding model.
func WithModel(model string) OllamaOption {
	return func(e *OllamaEmbedder) {
		e.model = model
	}
}

// WithDimension sets the expected embedding dimension. Needed when the
// model is not the default; used to size vector collections.
func WithDimension(dimension int) OllamaOption {
	return func(e *OllamaEmbedder) {
		e.dimension = dimension
	}
}

// WithConcurrency sets the batch fan-out limit.
func WithConcurrency(n int) OllamaOption {
	return func(e *OllamaEmbedder) {
		e.concurrency = n
	}
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(client *http.Client) OllamaOption {
	return func(e *OllamaEmbedder) {
		e.httpClient = client
	}
}

// NewOllamaEmbedder creates an Ollama embedder with the given options.
// Returns ErrNotConfigured when the base URL is not a usable endpoint.
func NewOllamaEmbedder(opts ...OllamaOption) (*OllamaEmbedder, error) {
	e := &OllamaEmbedder{
		baseURL:     DefaultOllamaBaseURL,
		model:       DefaultOllamaModel,
		dimension:   DefaultOllamaDimension,
		concurrency: DefaultOllamaConcurrency,
		httpClient:  &http.Client{Timeout: 2 * time.Minute},
	}
	for _, opt := range opts {
		opt(e)
	}

	if u, err := url.Parse(e.baseURL); err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("%w: invalid Ollama base URL %q", ErrNotConfigured, e.baseURL)
	}
	if e.concurrency <= 0 {
		e.concurrency = DefaultOllamaConcurrency
	}

	return e, nil
}

// ollamaEmbedRequest is the request body for Ollama's embeddings API.
type ollamaEmbedRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
}

// ollamaEmbedResponse is the response from Ollama's embeddings API.
type ollamaEmbedResponse struct {
	Embedding []float64 `json:"embedding"`
}

// Embed generates an embedding vector for a single text input.
func (e *OllamaEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	body, err := json.Marshal(ollamaEmbedRequest{Model: e.model, Prompt: text})
	if err != nil {
		return nil, fmt.Errorf("marshaling request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.baseURL+"/api/embeddings", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("executing request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("ollama API error (status %d): %s", resp.StatusCode, string(respBody))
	}

	var result ollamaEmbedResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("decoding response: %w", err)
	}
	if len(result.Embedding) == 0 {
		return nil, fmt.Errorf("ollama returned an empty embedding for model %q", e.model)
	}

	vector := make([]float32, len(result.Embedding))
	for i, v := range result.Embedding {
		vector[i] = float32(v)
	}
	return vector, nil
}

// EmbedBatch generates embedding vectors for multiple text inputs, order
// preserving. Requests fan out up to the configured concurrency; the first
// failure cancels the rest.
func (e *OllamaEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return [][]float32{}, nil
	}

	vectors := make([][]float32, len(texts))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.concurrency)
	for i, text := range texts {
		g.Go(func() error {
			vector, err := e.Embed(gctx, text)
			if err != nil {
				return fmt.Errorf("embedding input %d: %w", i, err)
			}
			vectors[i] = vector
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return vectors, nil
}

// Dimension returns the dimensionality of the embedding vectors.
func (e *OllamaEmbedder) Dimension() int {
	return e.dimension
}

// ModelName returns the name of the embedding model being used.
func (e *OllamaEmbedder) ModelName() string {
	return e.model
}

// Ensure OllamaEmbedder implements Embedder interface.
var _ Embedder = (*OllamaEmbedder)(nil)
