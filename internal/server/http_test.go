package server

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/relay-crm/relay/internal/auth"
	"github.com/relay-crm/relay/internal/llm"
	"github.com/relay-crm/relay/internal/repository"
	"github.com/relay-crm/relay/internal/retrieval"
	"github.com/relay-crm/relay/internal/service"
	"github.com/relay-crm/relay/internal/vectorstore"
)

const testAPIKey = "test-key"

type fixedChat struct {
	response string
	err      error
}

func (c *fixedChat) Complete(ctx context.Context, prompt string, opts llm.CompleteOptions) (string, error) {
	return c.response, c.err
}

type fixedEmbedder struct{ err error }

func (e *fixedEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	return []float32{0.1, 0.2}, e.err
}
func (e *fixedEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	return nil, e.err
}
func (e *fixedEmbedder) Dimension() int    { return 2 }
func (e *fixedEmbedder) ModelName() string { return "test" }

type fixedVectorStore struct {
	candidates []vectorstore.Candidate
	err        error
}

func (s *fixedVectorStore) EnsureCollection(ctx context.Context, userID string, dim int) error {
	return nil
}
func (s *fixedVectorStore) Upsert(ctx context.Context, userID string, pts []vectorstore.Point) error {
	return nil
}
func (s *fixedVectorStore) Query(ctx context.Context, userID string, v []float32, k int, f *vectorstore.SearchFilter) ([]vectorstore.Candidate, error) {
	return s.candidates, s.err
}
func (s *fixedVectorStore) DeletePoints(ctx context.Context, userID string, ids []string) error {
	return nil
}

type fixedProfileRepo struct {
	profiles map[uuid.UUID]*repository.Profile
}

func (r *fixedProfileRepo) GetByIDs(ctx context.Context, ids []uuid.UUID, userID uuid.UUID) ([]*repository.Profile, error) {
	var out []*repository.Profile
	for _, id := range ids {
		if p, ok := r.profiles[id]; ok && p.UserID == userID {
			out = append(out, p)
		}
	}
	return out, nil
}
func (r *fixedProfileRepo) Create(ctx context.Context, p *repository.Profile) error { return nil }
func (r *fixedProfileRepo) CreateBatch(ctx context.Context, p []*repository.Profile) error {
	return nil
}
func (r *fixedProfileRepo) GetByID(ctx context.Context, id, userID uuid.UUID) (*repository.Profile, error) {
	return nil, repository.ErrNotFound
}
func (r *fixedProfileRepo) List(ctx context.Context, userID uuid.UUID, limit, offset int) ([]*repository.Profile, int, error) {
	return nil, 0, nil
}
func (r *fixedProfileRepo) Update(ctx context.Context, p *repository.Profile) error { return nil }
func (r *fixedProfileRepo) Delete(ctx context.Context, id, userID uuid.UUID) error  { return nil }

type fixedUserRepo struct{ user *repository.User }

func (r *fixedUserRepo) GetByAPIKey(ctx context.Context, key string) (*repository.User, error) {
	if key == r.user.APIKey {
		return r.user, nil
	}
	return nil, repository.ErrNotFound
}
func (r *fixedUserRepo) Create(ctx context.Context, u *repository.User) error { return nil }
func (r *fixedUserRepo) GetByID(ctx context.Context, id uuid.UUID) (*repository.User, error) {
	return nil, repository.ErrNotFound
}
func (r *fixedUserRepo) GetByEmail(ctx context.Context, email string) (*repository.User, error) {
	return nil, repository.ErrNotFound
}
func (r *fixedUserRepo) Update(ctx context.Context, u *repository.User) error { return nil }
func (r *fixedUserRepo) Delete(ctx context.Context, id uuid.UUID) error       { return nil }

// newTestServer wires a server whose pipeline returns one fixture contact.
func newTestServer(t *testing.T, vectors *fixedVectorStore, chat llm.ChatModel) (*HTTPServer, *repository.User, *repository.Profile) {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	user := &repository.User{ID: uuid.New(), Email: "ada@example.com", APIKey: testAPIKey}
	profile := &repository.Profile{
		ID:       uuid.New(),
		UserID:   user.ID,
		FullName: "Grace Hopper",
		Headline: "Engineer",
	}

	if vectors == nil {
		vectors = &fixedVectorStore{candidates: []vectorstore.Candidate{{ID: profile.ID.String(), Score: 0.9}}}
	}
	if chat == nil {
		chat = &fixedChat{response: fmt.Sprintf(
			`[{"record_id": %q, "score": 8, "pro": "fits", "con": "none"}]`, profile.ID)}
	}

	pipeline := retrieval.NewPipeline(
		retrieval.NewQueryRewriter(chat, 0, logger),
		&fixedEmbedder{},
		vectors,
		&fixedProfileRepo{profiles: map[uuid.UUID]*repository.Profile{profile.ID: profile}},
		retrieval.NewReranker(chat, retrieval.RerankerConfig{}, logger),
		retrieval.PipelineConfig{},
		logger,
	)

	jwtManager := auth.NewJWTManager(auth.DefaultJWTConfig("test-secret"))
	srv := NewHTTPServer(HTTPServerConfig{
		Port:   0,
		Logger: logger,
		Auth:   auth.NewMiddleware(&fixedUserRepo{user: user}, jwtManager, logger),
		JWT:    jwtManager,
		Search: service.NewSearchService(pipeline),
	})
	return srv, user, profile
}

func doSearch(t *testing.T, srv *HTTPServer, apiKey, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/search", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if apiKey != "" {
		req.Header.Set(auth.APIKeyHeader, apiKey)
	}
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)
	return rec
}

func TestSearchEndpoint(t *testing.T) {
	srv, _, profile := newTestServer(t, nil, nil)

	rec := doSearch(t, srv, testAPIKey, `{"query": "software engineer", "enable_query_rewrite": false}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	var resp struct {
		Results []struct {
			Profile struct {
				ID       string `json:"id"`
				FullName string `json:"full_name"`
			} `json:"profile"`
			Score int    `json:"score"`
			Pro   string `json:"pro"`
			Con   string `json:"con"`
		} `json:"results"`
		TotalCount     int    `json:"total_count"`
		QueryUsed      string `json:"query_used"`
		ProcessingInfo struct {
			QueryRewriteEnabled bool `json:"query_rewrite_enabled"`
			FiltersApplied      bool `json:"filters_applied"`
		} `json:"processing_info"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("invalid response body: %v", err)
	}

	if len(resp.Results) != 1 {
		t.Fatalf("expected 1 result, got %d", len(resp.Results))
	}
	if resp.Results[0].Profile.ID != profile.ID.String() {
		t.Errorf("wrong profile id %q", resp.Results[0].Profile.ID)
	}
	if resp.Results[0].Score != 8 {
		t.Errorf("wrong score %d", resp.Results[0].Score)
	}
	if resp.TotalCount != 1 {
		t.Errorf("wrong total_count %d", resp.TotalCount)
	}
	if resp.QueryUsed != "software engineer" {
		t.Errorf("wrong query_used %q", resp.QueryUsed)
	}
	if resp.ProcessingInfo.QueryRewriteEnabled {
		t.Error("rewrite was disabled but reported")
	}
}

func TestSearchEndpoint_Unauthorized(t *testing.T) {
	srv, _, _ := newTestServer(t, nil, nil)

	rec := doSearch(t, srv, "", `{"query": "q"}`)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}

	rec = doSearch(t, srv, "wrong-key", `{"query": "q"}`)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
}

func TestSearchEndpoint_EmptyQuery(t *testing.T) {
	srv, _, _ := newTestServer(t, nil, nil)

	rec := doSearch(t, srv, testAPIKey, `{"query": ""}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}

	var body errorBody
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("invalid error body: %v", err)
	}
	if body.Kind != "invalid_request" {
		t.Errorf("wrong error kind %q", body.Kind)
	}
}

func TestSearchEndpoint_UpstreamFailure(t *testing.T) {
	srv, _, _ := newTestServer(t, &fixedVectorStore{err: fmt.Errorf("index down")}, nil)

	rec := doSearch(t, srv, testAPIKey, `{"query": "q", "enable_query_rewrite": false}`)
	if rec.Code != http.StatusBadGateway {
		t.Fatalf("expected 502, got %d: %s", rec.Code, rec.Body.String())
	}

	var body errorBody
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("invalid error body: %v", err)
	}
	if body.Kind != "upstream_unavailable" {
		t.Errorf("wrong error kind %q", body.Kind)
	}
}

func TestTokenEndpoint_IssuesUsableBearerToken(t *testing.T) {
	srv, _, _ := newTestServer(t, nil, nil)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/token", nil)
	req.Header.Set(auth.APIKeyHeader, testAPIKey)
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	var body tokenBody
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("invalid token body: %v", err)
	}
	if body.Token == "" {
		t.Fatal("expected a token")
	}

	// The issued token must authenticate subsequent requests.
	req = httptest.NewRequest(http.MethodPost, "/api/v1/search",
		strings.NewReader(`{"query": "q", "enable_query_rewrite": false}`))
	req.Header.Set("Authorization", "Bearer "+body.Token)
	rec = httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("bearer search: expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestTokenEndpoint_RequiresCredentials(t *testing.T) {
	srv, _, _ := newTestServer(t, nil, nil)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/token", nil)
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
}

func TestRefreshEndpoint(t *testing.T) {
	srv, user, _ := newTestServer(t, nil, nil)

	jwtManager := auth.NewJWTManager(auth.DefaultJWTConfig("test-secret"))
	token, err := jwtManager.GenerateToken(user.ID, user.Email)
	if err != nil {
		t.Fatalf("GenerateToken: %v", err)
	}

	req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/refresh",
		strings.NewReader(fmt.Sprintf(`{"token": %q}`, token)))
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	var body tokenBody
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("invalid token body: %v", err)
	}
	if body.Token == "" {
		t.Fatal("expected a refreshed token")
	}

	req = httptest.NewRequest(http.MethodPost, "/api/v1/auth/refresh",
		strings.NewReader(`{"token": "not-a-token"}`))
	rec = httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("bad token: expected 401, got %d", rec.Code)
	}
}

func TestReadinessReportsUnavailable(t *testing.T) {
	handler := readinessCheckHandler(func(ctx context.Context) error {
		return fmt.Errorf("database unreachable")
	})

	req := httptest.NewRequest(http.MethodGet, "/readyz", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", rec.Code)
	}
}

func TestHealthEndpoints(t *testing.T) {
	srv, _, _ := newTestServer(t, nil, nil)

	for _, path := range []string{"/healthz", "/readyz"} {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		rec := httptest.NewRecorder()
		srv.Router().ServeHTTP(rec, req)
		if rec.Code != http.StatusOK {
			t.Errorf("%s: expected 200, got %d", path, rec.Code)
		}
	}
}
