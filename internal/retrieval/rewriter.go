package retrieval

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/relay-crm/relay/internal/llm"
)

// DefaultRewriteTimeout bounds the single rewrite model call.
const DefaultRewriteTimeout = 10 * time.Second

const rewriteSystemPrompt = `You turn verbose requests for finding people in a professional network into concise search queries. Reply with the rewritten query only, no explanation and no quotes.`

// QueryRewriter condenses a verbose query into a concise search intent with
// a single model call. It can never abort the pipeline: any failure falls
// back to the original text.
type QueryRewriter struct {
	chat    llm.ChatModel
	timeout time.Duration
	logger  *slog.Logger
}

// NewQueryRewriter creates a query rewriter.
func NewQueryRewriter(chat llm.ChatModel, timeout time.Duration, logger *slog.Logger) *QueryRewriter {
	if timeout <= 0 {
		timeout = DefaultRewriteTimeout
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &QueryRewriter{chat: chat, timeout: timeout, logger: logger}
}

// Rewrite returns the rewritten query and whether a rewrite was applied.
// When enabled is false, or the model call fails or returns nothing usable,
// the original text comes back unchanged. Single attempt, no retry.
func (r *QueryRewriter) Rewrite(ctx context.Context, query string, enabled bool) (string, bool) {
	if !enabled {
		return query, false
	}

	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	rewritten, err := r.chat.Complete(ctx, query, llm.CompleteOptions{
		SystemPrompt: rewriteSystemPrompt,
		Temperature:  0.0,
		MaxTokens:    128,
	})
	if err != nil {
		r.logger.Warn("query rewrite failed, using original query", "error", err)
		return query, false
	}

	rewritten = strings.Trim(strings.TrimSpace(rewritten), `"`)
	if rewritten == "" {
		return query, false
	}

	return rewritten, true
}
