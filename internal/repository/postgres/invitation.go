package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/relay-crm/relay/internal/repository"
)

// InvitationRepo implements repository.InvitationRepository
type InvitationRepo struct {
	db *DB
}

// NewInvitationRepo creates a new invitation repository
func NewInvitationRepo(db *DB) *InvitationRepo {
	return &InvitationRepo{db: db}
}

// Create creates a new invitation
func (r *InvitationRepo) Create(ctx context.Context, inv *repository.Invitation) error {
	query := `
		INSERT INTO invitations (id, user_id, email, token, status, created_at, accepted_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	_, err := r.db.Pool.Exec(ctx, query,
		inv.ID, inv.UserID, inv.Email, inv.Token, inv.Status, inv.CreatedAt, inv.AcceptedAt)
	if err != nil {
		return fmt.Errorf("failed to create invitation: %w", err)
	}
	return nil
}

// GetByToken retrieves an invitation by its token
func (r *InvitationRepo) GetByToken(ctx context.Context, token string) (*repository.Invitation, error) {
	query := `
		SELECT id, user_id, email, token, status, created_at, accepted_at
		FROM invitations
		WHERE token = $1
	`
	var inv repository.Invitation
	err := r.db.Pool.QueryRow(ctx, query, token).Scan(
		&inv.ID, &inv.UserID, &inv.Email, &inv.Token, &inv.Status,
		&inv.CreatedAt, &inv.AcceptedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get invitation: %w", err)
	}
	return &inv, nil
}

// List retrieves invitations sent by a user with pagination
func (r *InvitationRepo) List(ctx context.Context, userID uuid.UUID, limit, offset int) ([]*repository.Invitation, int, error) {
	var total int
	err := r.db.Pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM invitations WHERE user_id = $1`, userID).Scan(&total)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to count invitations: %w", err)
	}

	query := `
		SELECT id, user_id, email, token, status, created_at, accepted_at
		FROM invitations
		WHERE user_id = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3
	`
	rows, err := r.db.Pool.Query(ctx, query, userID, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list invitations: %w", err)
	}
	defer rows.Close()

	var invs []*repository.Invitation
	for rows.Next() {
		var inv repository.Invitation
		if err := rows.Scan(&inv.ID, &inv.UserID, &inv.Email, &inv.Token,
			&inv.Status, &inv.CreatedAt, &inv.AcceptedAt); err != nil {
			return nil, 0, fmt.Errorf("failed to scan invitation: %w", err)
		}
		invs = append(invs, &inv)
	}

	return invs, total, nil
}

// MarkAccepted marks a pending invitation as accepted
func (r *InvitationRepo) MarkAccepted(ctx context.Context, id uuid.UUID) error {
	result, err := r.db.Pool.Exec(ctx, `
		UPDATE invitations
		SET status = 'accepted', accepted_at = $2
		WHERE id = $1 AND status = 'pending'
	`, id, time.Now())
	if err != nil {
		return fmt.Errorf("failed to accept invitation: %w", err)
	}
	if result.RowsAffected() == 0 {
		return repository.ErrNotFound
	}
	return nil
}

// Delete deletes an invitation, scoped to the owning user
func (r *InvitationRepo) Delete(ctx context.Context, id, userID uuid.UUID) error {
	result, err := r.db.Pool.Exec(ctx,
		`DELETE FROM invitations WHERE id = $1 AND user_id = $2`, id, userID)
	if err != nil {
		return fmt.Errorf("failed to delete invitation: %w", err)
	}
	if result.RowsAffected() == 0 {
		return repository.ErrNotFound
	}
	return nil
}

// Ensure InvitationRepo implements the interface
var _ repository.InvitationRepository = (*InvitationRepo)(nil)
