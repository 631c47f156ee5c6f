// Package ingestion imports contact exports: it parses CSV rows, embeds
// each contact's text, and writes the result to both the primary store and
// the vector index under the importing user's namespace.
package ingestion

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/relay-crm/relay/internal/embedder"
	"github.com/relay-crm/relay/internal/repository"
	"github.com/relay-crm/relay/internal/vectorstore"
)

// DefaultEmbedConcurrency bounds concurrent embedding calls per import.
const DefaultEmbedConcurrency = 4

// ImportResult summarizes one import run.
type ImportResult struct {
	Imported int
	Skipped  int
	Errors   []string
}

// Importer runs contact imports end to end.
type Importer struct {
	profiles    repository.ProfileRepository
	vectors     vectorstore.VectorStore
	embedder    *embedder.CachedEmbedder
	concurrency int
	logger      *slog.Logger
}

// NewImporter creates an importer. Zero concurrency gets the default.
func NewImporter(
	profiles repository.ProfileRepository,
	vectors vectorstore.VectorStore,
	emb *embedder.CachedEmbedder,
	concurrency int,
	logger *slog.Logger,
) *Importer {
	if concurrency <= 0 {
		concurrency = DefaultEmbedConcurrency
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Importer{
		profiles:    profiles,
		vectors:     vectors,
		embedder:    emb,
		concurrency: concurrency,
		logger:      logger,
	}
}

// Import parses a CSV export and persists every valid row for the user.
// Each profile gets a canonical id at this point; the same id is the
// primary key, the vector point id, and the identifier the reranking
// model later echoes back.
func (im *Importer) Import(ctx context.Context, userID uuid.UUID, r io.Reader) (*ImportResult, error) {
	rows, rowErrs, err := ParseCSV(r)
	if err != nil {
		return nil, err
	}

	result := &ImportResult{Skipped: len(rowErrs)}
	for _, re := range rowErrs {
		result.Errors = append(result.Errors, re.Error())
	}

	if len(rows) == 0 {
		return result, nil
	}

	now := time.Now()
	for _, p := range rows {
		p.ID = uuid.New()
		p.UserID = userID
		p.CreatedAt = now
		p.UpdatedAt = now
	}

	if err := im.vectors.EnsureCollection(ctx, userID.String(), im.embedder.Dimension()); err != nil {
		return nil, fmt.Errorf("failed to prepare vector collection: %w", err)
	}

	points := make([]vectorstore.Point, len(rows))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(im.concurrency)
	for i, p := range rows {
		g.Go(func() error {
			vector, err := im.embedder.EmbedRecord(gctx, p.ID.String(), EmbeddingText(p))
			if err != nil {
				return fmt.Errorf("failed to embed contact %q: %w", p.FullName, err)
			}
			points[i] = vectorstore.Point{
				ID:     p.ID.String(),
				Vector: vector,
				Meta:   PointMetadata(p),
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	// Primary store first: a profile without a vector is invisible to
	// search but intact, a vector without a profile hydrates to nothing.
	if err := im.profiles.CreateBatch(ctx, rows); err != nil {
		return nil, fmt.Errorf("failed to store contacts: %w", err)
	}
	if err := im.vectors.Upsert(ctx, userID.String(), points); err != nil {
		return nil, fmt.Errorf("failed to index contacts: %w", err)
	}

	result.Imported = len(rows)
	im.logger.Info("import completed",
		"user_id", userID, "imported", result.Imported, "skipped", result.Skipped)
	return result, nil
}

// EmbeddingText builds the text embedded for a profile. The same builder
// is used at import and update time so cached vectors stay comparable.
func EmbeddingText(p *repository.Profile) string {
	var sb strings.Builder
	write := func(label, value string) {
		if value == "" {
			return
		}
		sb.WriteString(label)
		sb.WriteString(": ")
		sb.WriteString(value)
		sb.WriteString("\n")
	}

	write("Name", p.FullName)
	write("Headline", p.Headline)
	write("Company", p.Company)
	write("Industry", p.Industry)
	write("Location", joinLocation(p))
	write("About", p.About)
	write("Experience", p.Experience)
	write("Skills", p.Skills)
	return sb.String()
}

func joinLocation(p *repository.Profile) string {
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

// PointMetadata builds the filterable vector payload mirroring a profile's
// structured fields.
func PointMetadata(p *repository.Profile) vectorstore.Metadata {
	meta := vectorstore.Metadata{
		Industry:       p.Industry,
		CompanySize:    p.CompanySize,
		City:           p.City,
		State:          p.State,
		Country:        p.Country,
		GeoLocation:    p.GeoLocation,
		Followers:      int64(p.Followers),
		HiringStatus:   string(p.HiringStatus),
		IsHiring:       p.IsHiring,
		IsOpenToWork:   p.IsOpenToWork,
		IsCompanyOwner: p.IsCompanyOwner,
		HasPEVCRole:    p.HasPEVCRole,
	}
	if p.ConnectedAt != nil {
		meta.ConnectedAt = p.ConnectedAt.Unix()
	}
	return meta
}
