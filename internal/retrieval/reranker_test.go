package retrieval

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"testing"

	"github.com/google/uuid"
	"github.com/relay-crm/relay/internal/llm"
	"github.com/relay-crm/relay/internal/repository"
)

// scriptedChat replays one canned response per Complete call, in order.
type scriptedChat struct {
	responses []string
	errs      []error
	calls     int
	prompts   []string
}

func (c *scriptedChat) Complete(ctx context.Context, prompt string, opts llm.CompleteOptions) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	i := c.calls
	c.calls++
	c.prompts = append(c.prompts, prompt)
	if i < len(c.errs) && c.errs[i] != nil {
		return "", c.errs[i]
	}
	if i < len(c.responses) {
		return c.responses[i], nil
	}
	return "[]", nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func makeProfiles(n int) []*repository.Profile {
	profiles := make([]*repository.Profile, n)
	for i := range profiles {
		profiles[i] = &repository.Profile{
			ID:          uuid.New(),
			UserID:      uuid.New(),
			FullName:    fmt.Sprintf("Person %d", i),
			Headline:    "Engineer",
			LinkedinURL: fmt.Sprintf("https://linkedin.com/in/person-%d", i),
		}
	}
	return profiles
}

// tuplesJSON builds a model response scoring the given profiles by their
// canonical ids.
func tuplesJSON(t *testing.T, profiles []*repository.Profile, scores []float64) string {
	t.Helper()
	tuples := make([]rerankTuple, len(profiles))
	for i, p := range profiles {
		tuples[i] = rerankTuple{
			RecordID: p.ID.String(),
			Score:    scores[i],
			Pro:      "relevant",
			Con:      "none",
		}
	}
	data, err := json.Marshal(tuples)
	if err != nil {
		t.Fatalf("marshal tuples: %v", err)
	}
	return string(data)
}

func TestReranker_SingleChunk(t *testing.T) {
	profiles := makeProfiles(5)
	chat := &scriptedChat{
		responses: []string{tuplesJSON(t, profiles, []float64{3, 9, 5, 9, 1})},
	}
	reranker := NewReranker(chat, RerankerConfig{}, testLogger())

	ranked, err := reranker.Rerank(context.Background(), "fintech founders", profiles)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if chat.calls != 1 {
		t.Errorf("expected 1 model call, got %d", chat.calls)
	}
	if len(ranked) != 5 {
		t.Fatalf("expected 5 results, got %d", len(ranked))
	}

	for i, r := range ranked {
		if r.Score < 1 || r.Score > 10 {
			t.Errorf("result %d score %d out of range", i, r.Score)
		}
		if i > 0 && ranked[i-1].Score < r.Score {
			t.Errorf("results not sorted by score descending at %d", i)
		}
	}

	// Profiles 1 and 3 tied at 9; similarity rank breaks the tie.
	if ranked[0].Profile.ID != profiles[1].ID {
		t.Errorf("expected profile 1 first, got %s", ranked[0].Profile.FullName)
	}
	if ranked[1].Profile.ID != profiles[3].ID {
		t.Errorf("expected profile 3 second, got %s", ranked[1].Profile.FullName)
	}
}

func TestReranker_MalformedChunkDropped(t *testing.T) {
	// Budget of 900 tokens with 200 per record and 500 overhead gives
	// chunks of 2, so 6 profiles span 3 calls.
	profiles := makeProfiles(6)
	chat := &scriptedChat{
		responses: []string{
			tuplesJSON(t, profiles[0:2], []float64{8, 7}),
			"I could not produce JSON for these contacts.",
			tuplesJSON(t, profiles[4:6], []float64{6, 5}),
		},
	}
	reranker := NewReranker(chat, RerankerConfig{
		ContextTokens:        900,
		PromptOverheadTokens: 500,
		AvgRecordTokens:      200,
	}, testLogger())

	ranked, err := reranker.Rerank(context.Background(), "query", profiles)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if chat.calls != 3 {
		t.Errorf("expected 3 model calls, got %d", chat.calls)
	}
	if len(ranked) != 4 {
		t.Fatalf("expected 4 results after dropping the bad chunk, got %d", len(ranked))
	}

	for _, r := range ranked {
		if r.Profile.ID == profiles[2].ID || r.Profile.ID == profiles[3].ID {
			t.Errorf("profile from dropped chunk leaked into results: %s", r.Profile.FullName)
		}
	}

	// Global sort holds across surviving chunks.
	wantOrder := []uuid.UUID{profiles[0].ID, profiles[1].ID, profiles[4].ID, profiles[5].ID}
	for i, want := range wantOrder {
		if ranked[i].Profile.ID != want {
			t.Errorf("position %d: wrong profile %s", i, ranked[i].Profile.FullName)
		}
	}
}

func TestReranker_ChunkErrorDropped(t *testing.T) {
	profiles := makeProfiles(4)
	chat := &scriptedChat{
		responses: []string{"", tuplesJSON(t, profiles[2:4], []float64{9, 2})},
		errs:      []error{fmt.Errorf("model overloaded"), nil},
	}
	reranker := NewReranker(chat, RerankerConfig{
		ContextTokens:        900,
		PromptOverheadTokens: 500,
		AvgRecordTokens:      200,
	}, testLogger())

	ranked, err := reranker.Rerank(context.Background(), "query", profiles)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(ranked) != 2 {
		t.Fatalf("expected 2 results, got %d", len(ranked))
	}
}

func TestReranker_URLFallbackMatching(t *testing.T) {
	profiles := makeProfiles(2)
	response := fmt.Sprintf(
		`[{"record_id": %q, "score": 8, "pro": "p", "con": "c"},
		  {"record_id": "https://linkedin.com/in/nobody", "score": 9, "pro": "p", "con": "c"}]`,
		profiles[1].LinkedinURL,
	)
	chat := &scriptedChat{responses: []string{response}}
	reranker := NewReranker(chat, RerankerConfig{}, testLogger())

	ranked, err := reranker.Rerank(context.Background(), "query", profiles)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	// The URL tuple matches profile 1; the unknown identifier is dropped.
	if len(ranked) != 1 {
		t.Fatalf("expected 1 result, got %d", len(ranked))
	}
	if ranked[0].Profile.ID != profiles[1].ID {
		t.Errorf("expected URL-matched profile, got %s", ranked[0].Profile.FullName)
	}
}

func TestReranker_ScoreClamping(t *testing.T) {
	profiles := makeProfiles(3)
	chat := &scriptedChat{
		responses: []string{tuplesJSON(t, profiles, []float64{15, -2, 7.6})},
	}
	reranker := NewReranker(chat, RerankerConfig{}, testLogger())

	ranked, err := reranker.Rerank(context.Background(), "query", profiles)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	scores := map[uuid.UUID]int{}
	for _, r := range ranked {
		scores[r.Profile.ID] = r.Score
	}
	if scores[profiles[0].ID] != 10 {
		t.Errorf("score 15 should clamp to 10, got %d", scores[profiles[0].ID])
	}
	if scores[profiles[1].ID] != 1 {
		t.Errorf("score -2 should clamp to 1, got %d", scores[profiles[1].ID])
	}
	if scores[profiles[2].ID] != 8 {
		t.Errorf("score 7.6 should round to 8, got %d", scores[profiles[2].ID])
	}
}

func TestReranker_CancellationAborts(t *testing.T) {
	profiles := makeProfiles(2)
	chat := &scriptedChat{}
	reranker := NewReranker(chat, RerankerConfig{}, testLogger())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := reranker.Rerank(ctx, "query", profiles); err == nil {
		t.Fatal("expected error for cancelled context")
	}
}

func TestReranker_EmptyInput(t *testing.T) {
	chat := &scriptedChat{}
	reranker := NewReranker(chat, RerankerConfig{}, testLogger())

	ranked, err := reranker.Rerank(context.Background(), "query", nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ranked != nil {
		t.Errorf("expected nil results, got %v", ranked)
	}
	if chat.calls != 0 {
		t.Errorf("expected no model calls, got %d", chat.calls)
	}
}

func TestParseRerankResponse(t *testing.T) {
	id := uuid.New().String()
	valid := fmt.Sprintf(`[{"record_id": %q, "score": 7, "pro": "a", "con": "b"}]`, id)

	tests := []struct {
		name     string
		response string
		wantErr  bool
		wantLen  int
	}{
		{"plain array", valid, false, 1},
		{"json fence", "```json\n" + valid + "\n```", false, 1},
		{"bare fence", "```\n" + valid + "\n```", false, 1},
		{"fence with preamble", "Here you go:\n```json\n" + valid + "\n```", false, 1},
		{"empty array", "[]", false, 0},
		{"prose", "These contacts all look great.", true, 0},
		{"object not array", `{"record_id": "x", "score": 5}`, true, 0},
		{"missing record_id", `[{"score": 5, "pro": "a", "con": "b"}]`, true, 0},
		{"truncated", valid[:20], true, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tuples, err := parseRerankResponse(tt.response)
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error")
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if len(tuples) != tt.wantLen {
				t.Errorf("expected %d tuples, got %d", tt.wantLen, len(tuples))
			}
		})
	}
}
