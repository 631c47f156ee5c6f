package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const (
	// DefaultOllamaBaseURL is the default Ollama API endpoint.
	DefaultOllamaBaseURL = "http://localhost:11434"

	// DefaultOllamaModel is the default model to use.
	DefaultOllamaModel = "llama3.2"
)

// OllamaClient implements the ChatModel interface using the Ollama API.
type OllamaClient struct {
	baseURL    string
	httpClient *http.Client
	model      string
}

// OllamaOption is a functional option for configuring OllamaClient.
type OllamaOption func(*OllamaClient)

// WithBaseURL sets a custom base URL for the Ollama API.
func WithBaseURL(url string) OllamaOption {
	return func(c *OllamaClient) {
		c.baseURL = strings.TrimSuffix(url, "/")
	}
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(client *http.Client) OllamaOption {
	return func(c *OllamaClient) {
		c.httpClient = client
	}
}

// WithModel sets the default model for the client.
func WithModel(model string) OllamaOption {
	return func(c *OllamaClient) {
		c.model = model
	}
}

// NewOllamaClient creates a new Ollama chat client with the given options.
func NewOllamaClient(opts ...OllamaOption) *OllamaClient {
	c := &OllamaClient{
		baseURL: DefaultOllamaBaseURL,
		httpClient: &http.Client{
			Timeout: 5 * time.Minute, // Long timeout for generation
		},
		model: DefaultOllamaModel,
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// ollamaRequest represents the request body for Ollama's generate API.
type ollamaRequest struct {
	Model   string         `json:"model"`
	Prompt  string         `json:"prompt"`
	System  string         `json:"system,omitempty"`
	Stream  bool           `json:"stream"`
	Options map[string]any `json:"options,omitempty"`
}

// ollamaResponse represents the response from Ollama's generate API.
type ollamaResponse struct {
	Model      string `json:"model"`
	Response   string `json:"response"`
	Done       bool   `json:"done"`
	DoneReason string `json:"done_reason,omitempty"`
}

// Complete sends a prompt to Ollama and returns the complete response.
func (c *OllamaClient) Complete(ctx context.Context, prompt string, opts CompleteOptions) (string, error) {
	model := opts.Model
	if model == "" {
		model = c.model
	}

	reqBody := ollamaRequest{
		Model:  model,
		Prompt: prompt,
		System: opts.SystemPrompt,
		Stream: false,
	}

	options := make(map[string]any)
	if opts.Temperature > 0 {
		options["temperature"] = opts.Temperature
	}
	if opts.MaxTokens > 0 {
		options["num_predict"] = opts.MaxTokens
	}
	if len(options) > 0 {
		reqBody.Options = options
	}

	body, err := json.Marshal(reqBody)
	if err != nil {
		return "", fmt.Errorf("marshaling request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/generate", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("executing request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("ollama API error (status %d): %s", resp.StatusCode, string(respBody))
	}

	var result ollamaResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", fmt.Errorf("decoding response: %w", err)
	}

	return result.Response, nil
}

// Ensure OllamaClient implements ChatModel interface.
var _ ChatModel = (*OllamaClient)(nil)
