package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/relay-crm/relay/internal/repository"
)

const profileColumns = `id, user_id, full_name, headline, company, company_size, industry,
	linkedin_url, city, state, country, geo_location, about, experience, skills,
	followers, connected_at, hiring_status, is_hiring, is_open_to_work,
	is_company_owner, has_pe_vc_role, created_at, updated_at`

// ProfileRepo implements repository.ProfileRepository
type ProfileRepo struct {
	db *DB
}

// NewProfileRepo creates a new profile repository
func NewProfileRepo(db *DB) *ProfileRepo {
	return &ProfileRepo{db: db}
}

// Create creates a new profile
func (r *ProfileRepo) Create(ctx context.Context, p *repository.Profile) error {
	query := `
		INSERT INTO profiles (` + profileColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15,
			$16, $17, $18, $19, $20, $21, $22, $23, $24)
	`
	_, err := r.db.Pool.Exec(ctx, query, profileArgs(p)...)
	if err != nil {
		return fmt.Errorf("failed to create profile: %w", err)
	}
	return nil
}

// CreateBatch inserts multiple profiles in a single batch round-trip
func (r *ProfileRepo) CreateBatch(ctx context.Context, profiles []*repository.Profile) error {
	if len(profiles) == 0 {
		return nil
	}

	query := `
		INSERT INTO profiles (` + profileColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15,
			$16, $17, $18, $19, $20, $21, $22, $23, $24)
	`

	batch := &pgx.Batch{}
	for _, p := range profiles {
		batch.Queue(query, profileArgs(p)...)
	}

	results := r.db.Pool.SendBatch(ctx, batch)
	defer results.Close()

	for range profiles {
		if _, err := results.Exec(); err != nil {
			return fmt.Errorf("failed to insert profile: %w", err)
		}
	}

	return nil
}

// GetByID retrieves a profile by ID, scoped to the owning user
func (r *ProfileRepo) GetByID(ctx context.Context, id, userID uuid.UUID) (*repository.Profile, error) {
	query := `SELECT ` + profileColumns + ` FROM profiles WHERE id = $1 AND user_id = $2`

	row := r.db.Pool.QueryRow(ctx, query, id, userID)
	p, err := scanProfile(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get profile: %w", err)
	}
	return p, nil
}

// GetByIDs hydrates a set of profile IDs, returning only rows owned by the
// given user. The user_id predicate is the second isolation check after the
// vector index's namespace scoping; IDs not found (or owned by another user)
// are silently omitted.
func (r *ProfileRepo) GetByIDs(ctx context.Context, ids []uuid.UUID, userID uuid.UUID) ([]*repository.Profile, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	query := `SELECT ` + profileColumns + ` FROM profiles WHERE user_id = $1 AND id = ANY($2)`

	rows, err := r.db.Pool.Query(ctx, query, userID, ids)
	if err != nil {
		return nil, fmt.Errorf("failed to hydrate profiles: %w", err)
	}
	defer rows.Close()

	profiles := make([]*repository.Profile, 0, len(ids))
	for rows.Next() {
		p, err := scanProfile(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan profile: %w", err)
		}
		profiles = append(profiles, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read profiles: %w", err)
	}

	return profiles, nil
}

// List retrieves profiles for a user with pagination
func (r *ProfileRepo) List(ctx context.Context, userID uuid.UUID, limit, offset int) ([]*repository.Profile, int, error) {
	var total int
	err := r.db.Pool.QueryRow(ctx, `SELECT COUNT(*) FROM profiles WHERE user_id = $1`, userID).Scan(&total)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to count profiles: %w", err)
	}

	query := `SELECT ` + profileColumns + `
		FROM profiles
		WHERE user_id = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3`

	rows, err := r.db.Pool.Query(ctx, query, userID, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list profiles: %w", err)
	}
	defer rows.Close()

	var profiles []*repository.Profile
	for rows.Next() {
		p, err := scanProfile(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("failed to scan profile: %w", err)
		}
		profiles = append(profiles, p)
	}

	return profiles, total, nil
}

// Update updates a profile
func (r *ProfileRepo) Update(ctx context.Context, p *repository.Profile) error {
	query := `
		UPDATE profiles
		SET full_name = $3, headline = $4, company = $5, company_size = $6,
		    industry = $7, linkedin_url = $8, city = $9, state = $10,
		    country = $11, geo_location = $12, about = $13, experience = $14,
		    skills = $15, followers = $16, connected_at = $17,
		    hiring_status = $18, is_hiring = $19, is_open_to_work = $20,
		    is_company_owner = $21, has_pe_vc_role = $22, updated_at = NOW()
		WHERE id = $1 AND user_id = $2
	`
	result, err := r.db.Pool.Exec(ctx, query,
		p.ID, p.UserID, p.FullName, p.Headline, p.Company, p.CompanySize,
		p.Industry, p.LinkedinURL, p.City, p.State, p.Country, p.GeoLocation,
		p.About, p.Experience, p.Skills, p.Followers, p.ConnectedAt,
		p.HiringStatus, p.IsHiring, p.IsOpenToWork, p.IsCompanyOwner, p.HasPEVCRole)
	if err != nil {
		return fmt.Errorf("failed to update profile: %w", err)
	}
	if result.RowsAffected() == 0 {
		return repository.ErrNotFound
	}
	return nil
}

// Delete deletes a profile, scoped to the owning user
func (r *ProfileRepo) Delete(ctx context.Context, id, userID uuid.UUID) error {
	result, err := r.db.Pool.Exec(ctx,
		`DELETE FROM profiles WHERE id = $1 AND user_id = $2`, id, userID)
	if err != nil {
		return fmt.Errorf("failed to delete profile: %w", err)
	}
	if result.RowsAffected() == 0 {
		return repository.ErrNotFound
	}
	return nil
}

func profileArgs(p *repository.Profile) []any {
	return []any{
		p.ID, p.UserID, p.FullName, p.Headline, p.Company, p.CompanySize,
		p.Industry, p.LinkedinURL, p.City, p.State, p.Country, p.GeoLocation,
		p.About, p.Experience, p.Skills, p.Followers, p.ConnectedAt,
		p.HiringStatus, p.IsHiring, p.IsOpenToWork, p.IsCompanyOwner,
		p.HasPEVCRole, p.CreatedAt, p.UpdatedAt,
	}
}

func scanProfile(row pgx.Row) (*repository.Profile, error) {
	var p repository.Profile
	err := row.Scan(
		&p.ID, &p.UserID, &p.FullName, &p.Headline, &p.Company, &p.CompanySize,
		&p.Industry, &p.LinkedinURL, &p.City, &p.State, &p.Country, &p.GeoLocation,
		&p.About, &p.Experience, &p.Skills, &p.Followers, &p.ConnectedAt,
		&p.HiringStatus, &p.IsHiring, &p.IsOpenToWork, &p.IsCompanyOwner,
		&p.HasPEVCRole, &p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// Ensure ProfileRepo implements the interface
var _ repository.ProfileRepository = (*ProfileRepo)(nil)
