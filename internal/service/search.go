// Package service implements the application services behind the HTTP API:
// search, contact management, imports, invitations, and follow-up emails.
// Services validate input at the boundary and translate between wire DTOs
// and domain types.
package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/relay-crm/relay/internal/repository"
	"github.com/relay-crm/relay/internal/retrieval"
	"github.com/relay-crm/relay/internal/vectorstore"
)

// ValidationError reports invalid request input. The HTTP layer maps it to
// a 400 response.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string { return e.Message }

func invalidf(format string, args ...any) error {
	return &ValidationError{Message: fmt.Sprintf(format, args...)}
}

// SearchRequest is the wire shape of a search call.
type SearchRequest struct {
	Query string `json:"query"`

	// EnableQueryRewrite defaults to true when omitted.
	EnableQueryRewrite *bool          `json:"enable_query_rewrite"`
	Filters            *SearchFilters `json:"filters"`
}

// SearchFilters is the typed filter block. Absent fields mean
// "not specified".
type SearchFilters struct {
	Industries   []string `json:"industries,omitempty"`
	CompanySizes []string `json:"company_sizes,omitempty"`
	Locations    []string `json:"locations,omitempty"`
	GeoLocation  string   `json:"geo_location,omitempty"`

	MinFollowers *int `json:"min_followers,omitempty"`
	MaxFollowers *int `json:"max_followers,omitempty"`

	// Connection date range, RFC 3339 or YYYY-MM-DD.
	DateRangeStart string `json:"date_range_start,omitempty"`
	DateRangeEnd   string `json:"date_range_end,omitempty"`

	HiringStatus   string `json:"hiring_status,omitempty"`
	IsHiring       *bool  `json:"is_hiring,omitempty"`
	IsOpenToWork   *bool  `json:"is_open_to_work,omitempty"`
	IsCompanyOwner *bool  `json:"is_company_owner,omitempty"`
	HasPEVCRole    *bool  `json:"has_pe_vc_role,omitempty"`
}

// SearchResponse is the wire shape of a search result.
type SearchResponse struct {
	Results        []SearchResult `json:"results"`
	TotalCount     int            `json:"total_count"`
	QueryUsed      string         `json:"query_used"`
	ProcessingInfo ProcessingInfo `json:"processing_info"`
}

// SearchResult is one scored contact.
type SearchResult struct {
	Profile *ProfileDTO `json:"profile"`
	Score   int         `json:"score"`
	Pro     string      `json:"pro"`
	Con     string      `json:"con"`
}

// ProcessingInfo reports what the pipeline actually did with the request.
type ProcessingInfo struct {
	QueryRewriteEnabled bool `json:"query_rewrite_enabled"`
	FiltersApplied      bool `json:"filters_applied"`
}

// SearchService fronts the retrieval pipeline.
type SearchService struct {
	pipeline *retrieval.Pipeline
}

// NewSearchService creates a search service.
func NewSearchService(pipeline *retrieval.Pipeline) *SearchService {
	return &SearchService{pipeline: pipeline}
}

// Search validates the request and runs the pipeline for the given user.
func (s *SearchService) Search(ctx context.Context, userID uuid.UUID, req *SearchRequest) (*SearchResponse, error) {
	if req.Query == "" {
		return nil, invalidf("query is required")
	}

	rewrite := true
	if req.EnableQueryRewrite != nil {
		rewrite = *req.EnableQueryRewrite
	}

	filter, err := req.Filters.toDomain()
	if err != nil {
		return nil, err
	}

	result, err := s.pipeline.RetrieveAndRerank(ctx, retrieval.Request{
		Query:          req.Query,
		UserID:         userID,
		RewriteEnabled: rewrite,
		Filter:         filter,
	})
	if err != nil {
		return nil, err
	}

	resp := &SearchResponse{
		Results:    make([]SearchResult, 0, len(result.Results)),
		TotalCount: result.TotalCount,
		QueryUsed:  result.QueryUsed,
		ProcessingInfo: ProcessingInfo{
			QueryRewriteEnabled: result.Info.QueryRewritten,
			FiltersApplied:      result.Info.FilterApplied,
		},
	}
	for _, r := range result.Results {
		resp.Results = append(resp.Results, SearchResult{
			Profile: profileToDTO(r.Profile),
			Score:   r.Score,
			Pro:     r.Pro,
			Con:     r.Con,
		})
	}
	return resp, nil
}

// toDomain converts wire filters into the typed search filter, validating
// enum values and date formats once at the boundary.
func (f *SearchFilters) toDomain() (*vectorstore.SearchFilter, error) {
	if f == nil {
		return nil, nil
	}

	switch f.HiringStatus {
	case "", string(repository.HiringStatusHiring), string(repository.HiringStatusOpenToWork):
	default:
		return nil, invalidf("invalid hiring_status %q", f.HiringStatus)
	}

	out := &vectorstore.SearchFilter{
		Industries:     f.Industries,
		CompanySizes:   f.CompanySizes,
		Locations:      f.Locations,
		GeoLocation:    f.GeoLocation,
		MinFollowers:   f.MinFollowers,
		MaxFollowers:   f.MaxFollowers,
		HiringStatus:   f.HiringStatus,
		IsHiring:       f.IsHiring,
		IsOpenToWork:   f.IsOpenToWork,
		IsCompanyOwner: f.IsCompanyOwner,
		HasPEVCRole:    f.HasPEVCRole,
	}

	if f.DateRangeStart != "" {
		ts, err := parseDate(f.DateRangeStart)
		if err != nil {
			return nil, invalidf("invalid date_range_start: %v", err)
		}
		out.ConnectedAfter = &ts
	}
	if f.DateRangeEnd != "" {
		ts, err := parseDate(f.DateRangeEnd)
		if err != nil {
			return nil, invalidf("invalid date_range_end: %v", err)
		}
		out.ConnectedBefore = &ts
	}

	return out, nil
}

func parseDate(s string) (time.Time, error) {
	if ts, err := time.Parse(time.RFC3339, s); err == nil {
		return ts, nil
	}
	return time.Parse("2006-01-02", s)
}
