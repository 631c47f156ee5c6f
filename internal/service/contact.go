package service

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/relay-crm/relay/internal/embedder"
	"github.com/relay-crm/relay/internal/ingestion"
	"github.com/relay-crm/relay/internal/repository"
	"github.com/relay-crm/relay/internal/vectorstore"
)

// ProfileDTO is the wire shape of a contact profile.
type ProfileDTO struct {
	ID          string `json:"id"`
	FullName    string `json:"full_name"`
	Headline    string `json:"headline,omitempty"`
	Company     string `json:"company,omitempty"`
	CompanySize string `json:"company_size,omitempty"`
	Industry    string `json:"industry,omitempty"`
	LinkedinURL string `json:"linkedin_url,omitempty"`

	City        string `json:"city,omitempty"`
	State       string `json:"state,omitempty"`
	Country     string `json:"country,omitempty"`
	GeoLocation string `json:"geo_location,omitempty"`

	About      string `json:"about,omitempty"`
	Experience string `json:"experience,omitempty"`
	Skills     string `json:"skills,omitempty"`

	Followers   int    `json:"followers,omitempty"`
	ConnectedAt string `json:"connected_at,omitempty"`

	HiringStatus   string `json:"hiring_status,omitempty"`
	IsHiring       bool   `json:"is_hiring"`
	IsOpenToWork   bool   `json:"is_open_to_work"`
	IsCompanyOwner bool   `json:"is_company_owner"`
	HasPEVCRole    bool   `json:"has_pe_vc_role"`

	CreatedAt string `json:"created_at,omitempty"`
	UpdatedAt string `json:"updated_at,omitempty"`
}

func profileToDTO(p *repository.Profile) *ProfileDTO {
	dto := &ProfileDTO{
		ID:             p.ID.String(),
		FullName:       p.FullName,
		Headline:       p.Headline,
		Company:        p.Company,
		CompanySize:    p.CompanySize,
		Industry:       p.Industry,
		LinkedinURL:    p.LinkedinURL,
		City:           p.City,
		State:          p.State,
		Country:        p.Country,
		GeoLocation:    p.GeoLocation,
		About:          p.About,
		Experience:     p.Experience,
		Skills:         p.Skills,
		Followers:      p.Followers,
		HiringStatus:   string(p.HiringStatus),
		IsHiring:       p.IsHiring,
		IsOpenToWork:   p.IsOpenToWork,
		IsCompanyOwner: p.IsCompanyOwner,
		HasPEVCRole:    p.HasPEVCRole,
	}
	if p.ConnectedAt != nil {
		dto.ConnectedAt = p.ConnectedAt.Format(time.RFC3339)
	}
	if !p.CreatedAt.IsZero() {
		dto.CreatedAt = p.CreatedAt.Format(time.RFC3339)
	}
	if !p.UpdatedAt.IsZero() {
		dto.UpdatedAt = p.UpdatedAt.Format(time.RFC3339)
	}
	return dto
}

// ContactInput is the wire shape for creating or updating a contact.
type ContactInput struct {
	FullName    string `json:"full_name"`
	Headline    string `json:"headline"`
	Company     string `json:"company"`
	CompanySize string `json:"company_size"`
	Industry    string `json:"industry"`
	LinkedinURL string `json:"linkedin_url"`

	City        string `json:"city"`
	State       string `json:"state"`
	Country     string `json:"country"`
	GeoLocation string `json:"geo_location"`

	About      string `json:"about"`
	Experience string `json:"experience"`
	Skills     string `json:"skills"`

	Followers   int    `json:"followers"`
	ConnectedAt string `json:"connected_at"`

	HiringStatus   string `json:"hiring_status"`
	IsHiring       bool   `json:"is_hiring"`
	IsOpenToWork   bool   `json:"is_open_to_work"`
	IsCompanyOwner bool   `json:"is_company_owner"`
	HasPEVCRole    bool   `json:"has_pe_vc_role"`
}

// ContactService manages contact profiles. Every write goes to both the
// primary store and the vector index so search stays consistent with CRUD.
type ContactService struct {
	profiles repository.ProfileRepository
	vectors  vectorstore.VectorStore
	embedder *embedder.CachedEmbedder
	importer *ingestion.Importer
	logger   *slog.Logger
}

// NewContactService creates a contact service.
func NewContactService(
	profiles repository.ProfileRepository,
	vectors vectorstore.VectorStore,
	emb *embedder.CachedEmbedder,
	importer *ingestion.Importer,
	logger *slog.Logger,
) *ContactService {
	if logger == nil {
		logger = slog.Default()
	}
	return &ContactService{
		profiles: profiles,
		vectors:  vectors,
		embedder: emb,
		importer: importer,
		logger:   logger,
	}
}

// Create stores a new contact and indexes its vector.
func (s *ContactService) Create(ctx context.Context, userID uuid.UUID, input *ContactInput) (*ProfileDTO, error) {
	p, err := input.toDomain()
	if err != nil {
		return nil, err
	}
	p.ID = uuid.New()
	p.UserID = userID
	now := time.Now()
	p.CreatedAt = now
	p.UpdatedAt = now

	if err := s.vectors.EnsureCollection(ctx, userID.String(), s.embedder.Dimension()); err != nil {
		return nil, fmt.Errorf("failed to prepare vector collection: %w", err)
	}
	if err := s.profiles.Create(ctx, p); err != nil {
		return nil, fmt.Errorf("failed to store contact: %w", err)
	}
	if err := s.index(ctx, p); err != nil {
		return nil, err
	}

	return profileToDTO(p), nil
}

// Get returns one contact owned by the user.
func (s *ContactService) Get(ctx context.Context, id, userID uuid.UUID) (*ProfileDTO, error) {
	p, err := s.profiles.GetByID(ctx, id, userID)
	if err != nil {
		return nil, err
	}
	return profileToDTO(p), nil
}

// List returns a page of the user's contacts with the total count.
func (s *ContactService) List(ctx context.Context, userID uuid.UUID, limit, offset int) ([]*ProfileDTO, int, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}

	rows, total, err := s.profiles.List(ctx, userID, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	dtos := make([]*ProfileDTO, len(rows))
	for i, p := range rows {
		dtos[i] = profileToDTO(p)
	}
	return dtos, total, nil
}

// Update overwrites a contact's fields and re-indexes its vector.
func (s *ContactService) Update(ctx context.Context, id, userID uuid.UUID, input *ContactInput) (*ProfileDTO, error) {
	existing, err := s.profiles.GetByID(ctx, id, userID)
	if err != nil {
		return nil, err
	}

	p, err := input.toDomain()
	if err != nil {
		return nil, err
	}
	p.ID = existing.ID
	p.UserID = existing.UserID
	p.CreatedAt = existing.CreatedAt
	p.UpdatedAt = time.Now()

	if err := s.profiles.Update(ctx, p); err != nil {
		return nil, fmt.Errorf("failed to update contact: %w", err)
	}
	if err := s.index(ctx, p); err != nil {
		return nil, err
	}

	return profileToDTO(p), nil
}

// Delete removes a contact from both stores.
func (s *ContactService) Delete(ctx context.Context, id, userID uuid.UUID) error {
	if err := s.profiles.Delete(ctx, id, userID); err != nil {
		return err
	}
	if err := s.vectors.DeletePoints(ctx, userID.String(), []string{id.String()}); err != nil {
		// The profile is gone; a dangling vector hydrates to nothing.
		s.logger.Warn("failed to delete vector point", "profile_id", id, "error", err)
	}
	return nil
}

// Import ingests a CSV export for the user.
func (s *ContactService) Import(ctx context.Context, userID uuid.UUID, r io.Reader) (*ingestion.ImportResult, error) {
	return s.importer.Import(ctx, userID, r)
}

// index embeds and upserts one profile's vector. Vector ids reuse the
// profile primary key so a re-index overwrites in place.
func (s *ContactService) index(ctx context.Context, p *repository.Profile) error {
	vector, err := s.embedder.Embed(ctx, ingestion.EmbeddingText(p))
	if err != nil {
		return fmt.Errorf("failed to embed contact: %w", err)
	}
	point := vectorstore.Point{
		ID:     p.ID.String(),
		Vector: vector,
		Meta:   ingestion.PointMetadata(p),
	}
	if err := s.vectors.Upsert(ctx, p.UserID.String(), []vectorstore.Point{point}); err != nil {
		return fmt.Errorf("failed to index contact: %w", err)
	}
	return nil
}

func (in *ContactInput) toDomain() (*repository.Profile, error) {
	if in.FullName == "" {
		return nil, invalidf("full_name is required")
	}

	switch in.HiringStatus {
	case "", string(repository.HiringStatusHiring), string(repository.HiringStatusOpenToWork):
	default:
		return nil, invalidf("invalid hiring_status %q", in.HiringStatus)
	}

	p := &repository.Profile{
		FullName:       in.FullName,
		Headline:       in.Headline,
		Company:        in.Company,
		CompanySize:    in.CompanySize,
		Industry:       in.Industry,
		LinkedinURL:    in.LinkedinURL,
		City:           in.City,
		State:          in.State,
		Country:        in.Country,
		GeoLocation:    in.GeoLocation,
		About:          in.About,
		Experience:     in.Experience,
		Skills:         in.Skills,
		Followers:      in.Followers,
		HiringStatus:   repository.HiringStatus(in.HiringStatus),
		IsHiring:       in.IsHiring,
		IsOpenToWork:   in.IsOpenToWork,
		IsCompanyOwner: in.IsCompanyOwner,
		HasPEVCRole:    in.HasPEVCRole,
	}

	if in.ConnectedAt != "" {
		ts, err := parseDate(in.ConnectedAt)
		if err != nil {
			return nil, invalidf("invalid connected_at: %v", err)
		}
		p.ConnectedAt = &ts
	}

	return p, nil
}
