// Package llm provides interfaces and implementations for chat model clients.
package llm

import (
	"context"
	"errors"
)

// ErrNotConfigured is returned at construction time when a provider is
// missing required credentials or endpoints.
var ErrNotConfigured = errors.New("chat model not configured")

// CompleteOptions configures a completion request.
type CompleteOptions struct {
	// Model specifies the model to use (e.g., "llama3.2", "gpt-4o-mini").
	Model string

	// SystemPrompt sets the system-level instructions for the model.
	SystemPrompt string

	// Temperature controls randomness in generation (0.0 = deterministic).
	Temperature float32

	// MaxTokens limits the maximum number of tokens in the response.
	MaxTokens int
}

// ChatModel defines the interface for generative model clients. Both the
// query rewriter and the reranker consume it.
type ChatModel interface {
	// Complete sends a prompt to the model and returns the full response.
	// It blocks until the response is received or an error occurs.
	Complete(ctx context.Context, prompt string, opts CompleteOptions) (string, error)
}
