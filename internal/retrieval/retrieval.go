// Package retrieval implements the search pipeline: query rewrite, query
// embedding, filtered vector search scoped to one user's namespace, profile
// hydration, and LLM re-ranking under a context-window budget.
//
// Failure policy is per stage. Rewrite failures and individual rerank chunk
// failures are absorbed; embedding, vector search, and hydration failures
// abort the request as ErrUpstreamUnavailable. Callers always receive either
// a well-formed (possibly empty) result or a single error, never a partial
// one.
package retrieval

import (
	"errors"

	"github.com/google/uuid"
	"github.com/relay-crm/relay/internal/repository"
	"github.com/relay-crm/relay/internal/vectorstore"
)

// ErrUpstreamUnavailable is returned when the vector index, the embedding
// provider, or the primary store fails during a request. It aborts the
// pipeline; no partial result is returned.
var ErrUpstreamUnavailable = errors.New("upstream unavailable")

// Request is one search request, scoped to a single user.
type Request struct {
	Query          string
	UserID         uuid.UUID
	RewriteEnabled bool
	Filter         *vectorstore.SearchFilter
}

// RankedProfile is one re-ranked result: a hydrated profile with the
// model's integer score in [1,10] and a one-sentence pro and con.
type RankedProfile struct {
	Profile *repository.Profile
	Score   int
	Pro     string
	Con     string

	// SimilarityRank is the profile's position in the original
	// vector-similarity ordering; equal scores are broken by it so the
	// final ordering is reproducible.
	SimilarityRank int
}

// ProcessingInfo carries request diagnostics. It never affects ordering.
type ProcessingInfo struct {
	QueryRewritten bool
	FilterApplied  bool
}

// Result is the pipeline output: results globally sorted by score
// descending across all rerank chunks.
type Result struct {
	Results    []RankedProfile
	TotalCount int
	QueryUsed  string
	Info       ProcessingInfo
}
