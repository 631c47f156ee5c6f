package retrieval

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/relay-crm/relay/internal/embedder"
	"github.com/relay-crm/relay/internal/repository"
	"github.com/relay-crm/relay/internal/vectorstore"
)

// ErrEmptyQuery is returned when the request carries no query text.
var ErrEmptyQuery = errors.New("query is required")

// MaxResults is the caller-visible cap on returned results, applied after
// the global sort regardless of how many candidates were scored.
const MaxResults = 20

// PipelineConfig configures candidate pool sizing and per-stage timeouts.
type PipelineConfig struct {
	// TopK is the candidate pool size requested from the vector index.
	// It is deliberately much larger than MaxResults so that re-ranking,
	// not retrieval, is the quality bottleneck.
	TopK int

	EmbedTimeout   time.Duration
	SearchTimeout  time.Duration
	HydrateTimeout time.Duration
}

// Pipeline orchestrates one search request: rewrite, embed, vector search,
// hydrate, rerank, merge. All collaborators are injected; the pipeline owns
// no global state.
type Pipeline struct {
	rewriter *QueryRewriter
	embedder embedder.Embedder
	vectors  vectorstore.VectorStore
	profiles repository.ProfileRepository
	reranker *Reranker
	cfg      PipelineConfig
	logger   *slog.Logger
}

// NewPipeline creates a pipeline. Zero config fields get defaults.
func NewPipeline(
	rewriter *QueryRewriter,
	emb embedder.Embedder,
	vectors vectorstore.VectorStore,
	profiles repository.ProfileRepository,
	reranker *Reranker,
	cfg PipelineConfig,
	logger *slog.Logger,
) *Pipeline {
	if cfg.TopK <= 0 {
		cfg.TopK = 200
	}
	if cfg.EmbedTimeout <= 0 {
		cfg.EmbedTimeout = 15 * time.Second
	}
	if cfg.SearchTimeout <= 0 {
		cfg.SearchTimeout = 10 * time.Second
	}
	if cfg.HydrateTimeout <= 0 {
		cfg.HydrateTimeout = 10 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Pipeline{
		rewriter: rewriter,
		embedder: emb,
		vectors:  vectors,
		profiles: profiles,
		reranker: reranker,
		cfg:      cfg,
		logger:   logger,
	}
}

// RetrieveAndRerank runs the full pipeline for one request.
func (p *Pipeline) RetrieveAndRerank(ctx context.Context, req Request) (*Result, error) {
	if req.Query == "" {
		return nil, ErrEmptyQuery
	}

	info := ProcessingInfo{FilterApplied: !req.Filter.IsZero()}

	// Stage 1: optional query rewrite; never fatal.
	queryUsed, rewritten := p.rewriter.Rewrite(ctx, req.Query, req.RewriteEnabled)
	info.QueryRewritten = rewritten

	// Stage 2: embed the query.
	embedCtx, cancelEmbed := context.WithTimeout(ctx, p.cfg.EmbedTimeout)
	vector, err := p.embedder.Embed(embedCtx, queryUsed)
	cancelEmbed()
	if err != nil {
		return nil, fmt.Errorf("%w: embed query: %v", ErrUpstreamUnavailable, err)
	}

	// Stage 3: filtered nearest-neighbor search in the user's namespace.
	searchCtx, cancelSearch := context.WithTimeout(ctx, p.cfg.SearchTimeout)
	candidates, err := p.vectors.Query(searchCtx, req.UserID.String(), vector, p.cfg.TopK, req.Filter)
	cancelSearch()
	if err != nil {
		return nil, fmt.Errorf("%w: vector search: %v", ErrUpstreamUnavailable, err)
	}

	if len(candidates) == 0 {
		return &Result{QueryUsed: queryUsed, Info: info}, nil
	}

	// Stage 4: hydrate candidates from the primary store. Ownership is
	// enforced again here; candidates from another user's namespace
	// hydrate to nothing.
	profiles, err := p.hydrate(ctx, candidates, req.UserID)
	if err != nil {
		return nil, fmt.Errorf("%w: hydrate profiles: %v", ErrUpstreamUnavailable, err)
	}

	if len(profiles) == 0 {
		return &Result{QueryUsed: queryUsed, Info: info}, nil
	}

	// Stage 5: chunked re-ranking with one global sort after the merge.
	ranked, err := p.reranker.Rerank(ctx, queryUsed, profiles)
	if err != nil {
		return nil, err
	}

	if len(ranked) > MaxResults {
		ranked = ranked[:MaxResults]
	}

	p.logger.Info("search pipeline completed",
		"user_id", req.UserID,
		"candidates", len(candidates),
		"hydrated", len(profiles),
		"returned", len(ranked),
		"rewritten", info.QueryRewritten,
		"filtered", info.FilterApplied,
	)

	return &Result{
		Results:    ranked,
		TotalCount: len(profiles),
		QueryUsed:  queryUsed,
		Info:       info,
	}, nil
}

// hydrate resolves candidate ids into profiles, preserving the similarity
// ordering of the candidate list. Unparseable or unknown ids are dropped.
func (p *Pipeline) hydrate(ctx context.Context, candidates []vectorstore.Candidate, userID uuid.UUID) ([]*repository.Profile, error) {
	ids := make([]uuid.UUID, 0, len(candidates))
	for _, c := range candidates {
		id, err := uuid.Parse(c.ID)
		if err != nil {
			p.logger.Warn("skipping candidate with non-uuid id", "candidate_id", c.ID)
			continue
		}
		ids = append(ids, id)
	}
	if len(ids) == 0 {
		return nil, nil
	}

	ctx, cancel := context.WithTimeout(ctx, p.cfg.HydrateTimeout)
	defer cancel()

	rows, err := p.profiles.GetByIDs(ctx, ids, userID)
	if err != nil {
		return nil, err
	}

	// The store returns rows in arbitrary order; restore similarity order.
	byID := make(map[uuid.UUID]*repository.Profile, len(rows))
	for _, row := range rows {
		byID[row.ID] = row
	}

	ordered := make([]*repository.Profile, 0, len(rows))
	for _, id := range ids {
		if row, ok := byID[id]; ok {
			ordered = append(ordered, row)
		}
	}

	return ordered, nil
}
