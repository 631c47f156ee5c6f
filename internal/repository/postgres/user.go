package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/relay-crm/relay/internal/repository"
)

// UserRepo implements repository.UserRepository
type UserRepo struct {
	db *DB
}

// NewUserRepo creates a new user repository
func NewUserRepo(db *DB) *UserRepo {
	return &UserRepo{db: db}
}

// Create creates a new user
func (r *UserRepo) Create(ctx context.Context, user *repository.User) error {
	query := `
		INSERT INTO users (id, email, name, api_key, password_hash, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	_, err := r.db.Pool.Exec(ctx, query,
		user.ID, user.Email, user.Name, user.APIKey, user.PasswordHash,
		user.CreatedAt, user.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create user: %w", err)
	}
	return nil
}

// GetByID retrieves a user by ID
func (r *UserRepo) GetByID(ctx context.Context, id uuid.UUID) (*repository.User, error) {
	query := `
		SELECT id, email, name, api_key, password_hash, created_at, updated_at
		FROM users
		WHERE id = $1
	`
	return r.scanUser(ctx, query, id)
}

// GetByEmail retrieves a user by email
func (r *UserRepo) GetByEmail(ctx context.Context, email string) (*repository.User, error) {
	query := `
		SELECT id, email, name, api_key, password_hash, created_at, updated_at
		FROM users
		WHERE email = $1
	`
	return r.scanUser(ctx, query, email)
}

// GetByAPIKey retrieves a user by API key
func (r *UserRepo) GetByAPIKey(ctx context.Context, apiKey string) (*repository.User, error) {
	query := `
		SELECT id, email, name, api_key, password_hash, created_at, updated_at
		FROM users
		WHERE api_key = $1
	`
	return r.scanUser(ctx, query, apiKey)
}

func (r *UserRepo) scanUser(ctx context.Context, query string, args ...any) (*repository.User, error) {
	var user repository.User
	err := r.db.Pool.QueryRow(ctx, query, args...).Scan(
		&user.ID, &user.Email, &user.Name, &user.APIKey, &user.PasswordHash,
		&user.CreatedAt, &user.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return &user, nil
}

// Update updates a user
func (r *UserRepo) Update(ctx context.Context, user *repository.User) error {
	query := `
		UPDATE users
		SET email = $2, name = $3, api_key = $4, password_hash = $5, updated_at = NOW()
		WHERE id = $1
	`
	result, err := r.db.Pool.Exec(ctx, query,
		user.ID, user.Email, user.Name, user.APIKey, user.PasswordHash)
	if err != nil {
		return fmt.Errorf("failed to update user: %w", err)
	}
	if result.RowsAffected() == 0 {
		return repository.ErrNotFound
	}
	return nil
}

// Delete deletes a user
func (r *UserRepo) Delete(ctx context.Context, id uuid.UUID) error {
	result, err := r.db.Pool.Exec(ctx, `DELETE FROM users WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete user: %w", err)
	}
	if result.RowsAffected() == 0 {
		return repository.ErrNotFound
	}
	return nil
}

// Ensure UserRepo implements the interface
var _ repository.UserRepository = (*UserRepo)(nil)
