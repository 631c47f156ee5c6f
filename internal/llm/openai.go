package llm

import (
	"context"
	"fmt"

	openai "github.com/sashabaranov/go-openai"
)

// DefaultOpenAIModel is the default OpenAI chat model.
const DefaultOpenAIModel = openai.GPT4oMini

// OpenAIClient implements the ChatModel interface using the OpenAI API.
type OpenAIClient struct {
	client *openai.Client
	model  string
}

// NewOpenAIClient creates a new OpenAI chat client.
// Returns ErrNotConfigured when the API key is missing.
func NewOpenAIClient(apiKey, model string) (*OpenAIClient, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("%w: missing OpenAI API key", ErrNotConfigured)
	}
	if model == "" {
		model = DefaultOpenAIModel
	}
	return &OpenAIClient{
		client: openai.NewClient(apiKey),
		model:  model,
	}, nil
}

// Complete sends a prompt to OpenAI and returns the complete response.
func (c *OpenAIClient) Complete(ctx context.Context, prompt string, opts CompleteOptions) (string, error) {
	model := opts.Model
	if model == "" {
		model = c.model
	}

	var messages []openai.ChatCompletionMessage
	if opts.SystemPrompt != "" {
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleSystem,
			Content: opts.SystemPrompt,
		})
	}
	messages = append(messages, openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleUser,
		Content: prompt,
	})

	req := openai.ChatCompletionRequest{
		Model:       model,
		Messages:    messages,
		Temperature: opts.Temperature,
	}
	if opts.MaxTokens > 0 {
		req.MaxTokens = opts.MaxTokens
	}

	resp, err := c.client.CreateChatCompletion(ctx, req)
	if err != nil {
		return "", fmt.Errorf("openai completion failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("openai returned no choices")
	}

	return resp.Choices[0].Message.Content, nil
}

// Ensure OpenAIClient implements ChatModel interface.
var _ ChatModel = (*OpenAIClient)(nil)
