package retrieval

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/relay-crm/relay/internal/llm"
	"github.com/relay-crm/relay/internal/repository"
)

// DefaultChunkTimeout bounds each rerank model call. A timed-out chunk is
// dropped like a malformed one; it never aborts the request.
const DefaultChunkTimeout = 30 * time.Second

// RerankerConfig configures chunk sizing and the per-chunk model call.
type RerankerConfig struct {
	// Model overrides the chat client's default model when non-empty.
	Model string

	// ContextTokens is the generative model's total context window.
	ContextTokens int

	// PromptOverheadTokens estimates the prompt text surrounding the records.
	PromptOverheadTokens int

	// AvgRecordTokens estimates one serialized profile's token cost.
	AvgRecordTokens int

	// ChunkTimeout bounds each chunk's model call.
	ChunkTimeout time.Duration
}

// Reranker re-scores hydrated profiles against the query with a generative
// model, one bounded chunk at a time, and reconciles the model's returned
// identifiers back to source profiles.
type Reranker struct {
	chat   llm.ChatModel
	cfg    RerankerConfig
	logger *slog.Logger
}

// NewReranker creates a reranker. Zero config fields get defaults.
func NewReranker(chat llm.ChatModel, cfg RerankerConfig, logger *slog.Logger) *Reranker {
	if cfg.ContextTokens <= 0 {
		cfg.ContextTokens = DefaultContextTokens
	}
	if cfg.PromptOverheadTokens <= 0 {
		cfg.PromptOverheadTokens = DefaultPromptOverheadTokens
	}
	if cfg.AvgRecordTokens <= 0 {
		cfg.AvgRecordTokens = DefaultAvgRecordTokens
	}
	if cfg.ChunkTimeout <= 0 {
		cfg.ChunkTimeout = DefaultChunkTimeout
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Reranker{chat: chat, cfg: cfg, logger: logger}
}

// rerankRecord is one profile serialized into the rerank prompt.
type rerankRecord struct {
	RecordID     string `json:"record_id"`
	FullName     string `json:"full_name"`
	Headline     string `json:"headline,omitempty"`
	Company      string `json:"company,omitempty"`
	Industry     string `json:"industry,omitempty"`
	Location     string `json:"location,omitempty"`
	About        string `json:"about,omitempty"`
	Experience   string `json:"experience,omitempty"`
	Skills       string `json:"skills,omitempty"`
	IsHiring     bool   `json:"is_hiring,omitempty"`
	IsOpenToWork bool   `json:"is_open_to_work,omitempty"`
}

// rerankTuple is one scored entry in the model's JSON array response.
type rerankTuple struct {
	RecordID string  `json:"record_id"`
	Score    float64 `json:"score"`
	Pro      string  `json:"pro"`
	Con      string  `json:"con"`
}

// Rerank scores profiles against the query in sequential chunks sized by
// the context budget, then sorts the surviving results globally by score
// descending (ties broken by original similarity rank). A malformed or
// timed-out chunk only degrades completeness; the only returned error is
// caller cancellation.
func (r *Reranker) Rerank(ctx context.Context, query string, profiles []*repository.Profile) ([]RankedProfile, error) {
	if len(profiles) == 0 {
		return nil, nil
	}

	chunkSize := ChunkSize(r.cfg.ContextTokens, r.cfg.PromptOverheadTokens, r.cfg.AvgRecordTokens)

	// Identifier reconciliation maps. The canonical id is tried first; the
	// LinkedIn URL is the secondary identifier legacy index entries carried.
	byID := make(map[string]int, len(profiles))
	byURL := make(map[string]int, len(profiles))
	for i, p := range profiles {
		byID[p.ID.String()] = i
		if p.LinkedinURL != "" {
			byURL[p.LinkedinURL] = i
		}
	}

	var ranked []RankedProfile
	for start := 0; start < len(profiles); start += chunkSize {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		end := start + chunkSize
		if end > len(profiles) {
			end = len(profiles)
		}
		chunk := profiles[start:end]
		chunkIdx := start / chunkSize

		tuples, err := r.rerankChunk(ctx, query, chunk)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			r.logger.Warn("rerank chunk dropped",
				"chunk", chunkIdx, "profiles", len(chunk), "error", err)
			continue
		}

		for _, tup := range tuples {
			idx, ok := byID[tup.RecordID]
			if !ok {
				idx, ok = byURL[tup.RecordID]
			}
			if !ok {
				r.logger.Warn("rerank tuple does not match any profile",
					"chunk", chunkIdx, "record_id", tup.RecordID)
				continue
			}

			ranked = append(ranked, RankedProfile{
				Profile:        profiles[idx],
				Score:          clampScore(tup.Score),
				Pro:            tup.Pro,
				Con:            tup.Con,
				SimilarityRank: idx,
			})
		}
	}

	// One global sort across all chunks, never per chunk.
	sort.SliceStable(ranked, func(i, j int) bool {
		if ranked[i].Score != ranked[j].Score {
			return ranked[i].Score > ranked[j].Score
		}
		return ranked[i].SimilarityRank < ranked[j].SimilarityRank
	})

	return ranked, nil
}

// rerankChunk issues one model call for a chunk and parses the response.
func (r *Reranker) rerankChunk(ctx context.Context, query string, chunk []*repository.Profile) ([]rerankTuple, error) {
	prompt, err := r.buildPrompt(query, chunk)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, r.cfg.ChunkTimeout)
	defer cancel()

	response, err := r.chat.Complete(ctx, prompt, llm.CompleteOptions{
		Model:       r.cfg.Model,
		Temperature: 0.0, // Deterministic scoring
		MaxTokens:   4096,
	})
	if err != nil {
		return nil, fmt.Errorf("rerank call failed: %w", err)
	}

	return parseRerankResponse(response)
}

// buildPrompt constructs the rerank prompt with the chunk's profiles
// serialized as JSON records.
func (r *Reranker) buildPrompt(query string, chunk []*repository.Profile) (string, error) {
	records := make([]rerankRecord, len(chunk))
	for i, p := range chunk {
		records[i] = rerankRecord{
			RecordID:     p.ID.String(),
			FullName:     p.FullName,
			Headline:     p.Headline,
			Company:      p.Company,
			Industry:     p.Industry,
			Location:     formatLocation(p),
			About:        p.About,
			Experience:   p.Experience,
			Skills:       p.Skills,
			IsHiring:     p.IsHiring,
			IsOpenToWork: p.IsOpenToWork,
		}
	}

	recordsJSON, err := json.Marshal(records)
	if err != nil {
		return "", fmt.Errorf("failed to serialize profiles: %w", err)
	}

	var sb strings.Builder
	sb.WriteString("You score professional contacts against a search request.\n\n")
	sb.WriteString("Search request: ")
	sb.WriteString(query)
	sb.WriteString("\n\nContacts:\n")
	sb.Write(recordsJSON)
	sb.WriteString("\n\n")
	sb.WriteString(`For every contact you can judge, rate how well they match the search request.
Output ONLY a valid JSON array, one object per contact, in this exact format:
[{"record_id": "<record_id from input>", "score": 7, "pro": "one sentence for", "con": "one sentence against"}]

Scores are integers from 1 (no match) to 10 (perfect match).
Copy record_id values exactly as given. Output only JSON, no explanation:`)

	return sb.String(), nil
}

// parseRerankResponse extracts the JSON array of scored tuples from the
// model response. Anything that does not parse into the expected shape is
// an error; the caller drops the chunk.
func parseRerankResponse(response string) ([]rerankTuple, error) {
	response = strings.TrimSpace(response)

	// Strip markdown code fences if present
	if idx := strings.Index(response, "```json"); idx != -1 {
		start := idx + 7
		if end := strings.Index(response[start:], "```"); end != -1 {
			response = response[start : start+end]
		}
	} else if idx := strings.Index(response, "```"); idx != -1 {
		start := idx + 3
		if end := strings.Index(response[start:], "```"); end != -1 {
			response = response[start : start+end]
		}
	}

	response = strings.TrimSpace(response)

	var tuples []rerankTuple
	if err := json.Unmarshal([]byte(response), &tuples); err != nil {
		return nil, fmt.Errorf("failed to parse rerank response: %w", err)
	}

	for _, tup := range tuples {
		if tup.RecordID == "" {
			return nil, fmt.Errorf("rerank response contains tuple without record_id")
		}
	}

	return tuples, nil
}

// clampScore rounds and clamps a model score into [1,10].
func clampScore(score float64) int {
	s := int(math.Round(score))
	if s < 1 {
		return 1
	}
	if s > 10 {
		return 10
	}
	return s
}

func formatLocation(p *repository.Profile) string {
	parts := make([]string, 0, 3)
	for _, s := range []string{p.City, p.State, p.Country} {
		if s != "" {
			parts = append(parts, s)
		}
	}
	if len(parts) == 0 {
		return p.GeoLocation
	}
	return strings.Join(parts, ", ")
}
