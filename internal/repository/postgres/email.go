package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/relay-crm/relay/internal/repository"
)

// ScheduledEmailRepo implements repository.ScheduledEmailRepository
type ScheduledEmailRepo struct {
	db *DB
}

// NewScheduledEmailRepo creates a new scheduled email repository
func NewScheduledEmailRepo(db *DB) *ScheduledEmailRepo {
	return &ScheduledEmailRepo{db: db}
}

// Create queues a new follow-up email
func (r *ScheduledEmailRepo) Create(ctx context.Context, email *repository.ScheduledEmail) error {
	query := `
		INSERT INTO scheduled_emails (id, user_id, profile_id, recipient, subject, body,
			send_at, status, error_message, sent_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`
	_, err := r.db.Pool.Exec(ctx, query,
		email.ID, email.UserID, email.ProfileID, email.Recipient, email.Subject,
		email.Body, email.SendAt, email.Status, email.ErrorMessage, email.SentAt,
		email.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create scheduled email: %w", err)
	}
	return nil
}

// List retrieves scheduled emails for a user with pagination
func (r *ScheduledEmailRepo) List(ctx context.Context, userID uuid.UUID, status string, limit, offset int) ([]*repository.ScheduledEmail, int, error) {
	countQuery := `SELECT COUNT(*) FROM scheduled_emails WHERE user_id = $1`
	listQuery := `
		SELECT id, user_id, profile_id, recipient, subject, body, send_at,
			status, error_message, sent_at, created_at
		FROM scheduled_emails
		WHERE user_id = $1
	`
	args := []any{userID}

	if status != "" {
		countQuery += ` AND status = $2`
		listQuery += ` AND status = $2`
		args = append(args, status)
	}

	listQuery += fmt.Sprintf(` ORDER BY send_at ASC LIMIT $%d OFFSET $%d`, len(args)+1, len(args)+2)

	var total int
	if err := r.db.Pool.QueryRow(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count scheduled emails: %w", err)
	}

	args = append(args, limit, offset)
	rows, err := r.db.Pool.Query(ctx, listQuery, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list scheduled emails: %w", err)
	}
	defer rows.Close()

	var emails []*repository.ScheduledEmail
	for rows.Next() {
		var e repository.ScheduledEmail
		if err := rows.Scan(&e.ID, &e.UserID, &e.ProfileID, &e.Recipient,
			&e.Subject, &e.Body, &e.SendAt, &e.Status, &e.ErrorMessage,
			&e.SentAt, &e.CreatedAt); err != nil {
			return nil, 0, fmt.Errorf("failed to scan scheduled email: %w", err)
		}
		emails = append(emails, &e)
	}

	return emails, total, nil
}

// staleClaimAfter bounds how long a claimed row may sit in 'sending' before
// another scheduler instance may re-claim it. Covers crashes mid-batch.
const staleClaimAfter = 10 * time.Minute

// ClaimDue atomically claims due pending emails using FOR UPDATE SKIP LOCKED
// so multiple scheduler instances never dispatch the same row twice. Rows
// stuck in 'sending' past staleClaimAfter are treated as due again.
func (r *ScheduledEmailRepo) ClaimDue(ctx context.Context, now time.Time, limit int) ([]*repository.ScheduledEmail, error) {
	query := `
		UPDATE scheduled_emails
		SET status = $3, claimed_at = $1
		WHERE id IN (
			SELECT id FROM scheduled_emails
			WHERE (status = $4 AND send_at <= $1)
			   OR (status = $3 AND claimed_at <= $5)
			ORDER BY send_at ASC
			LIMIT $2
			FOR UPDATE SKIP LOCKED
		)
		RETURNING id, user_id, profile_id, recipient, subject, body, send_at,
			status, error_message, sent_at, created_at
	`
	rows, err := r.db.Pool.Query(ctx, query, now, limit,
		repository.EmailStatusSending, repository.EmailStatusPending,
		now.Add(-staleClaimAfter))
	if err != nil {
		return nil, fmt.Errorf("failed to claim due emails: %w", err)
	}
	defer rows.Close()

	var emails []*repository.ScheduledEmail
	for rows.Next() {
		var e repository.ScheduledEmail
		if err := rows.Scan(&e.ID, &e.UserID, &e.ProfileID, &e.Recipient,
			&e.Subject, &e.Body, &e.SendAt, &e.Status, &e.ErrorMessage,
			&e.SentAt, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan claimed email: %w", err)
		}
		emails = append(emails, &e)
	}

	return emails, nil
}

// MarkSent records a successful dispatch
func (r *ScheduledEmailRepo) MarkSent(ctx context.Context, id uuid.UUID, sentAt time.Time) error {
	result, err := r.db.Pool.Exec(ctx, `
		UPDATE scheduled_emails SET status = $2, sent_at = $3, error_message = '' WHERE id = $1
	`, id, repository.EmailStatusSent, sentAt)
	if err != nil {
		return fmt.Errorf("failed to mark email sent: %w", err)
	}
	if result.RowsAffected() == 0 {
		return repository.ErrNotFound
	}
	return nil
}

// MarkFailed records a failed dispatch
func (r *ScheduledEmailRepo) MarkFailed(ctx context.Context, id uuid.UUID, errMsg string) error {
	result, err := r.db.Pool.Exec(ctx, `
		UPDATE scheduled_emails SET status = $2, error_message = $3 WHERE id = $1
	`, id, repository.EmailStatusFailed, errMsg)
	if err != nil {
		return fmt.Errorf("failed to mark email failed: %w", err)
	}
	if result.RowsAffected() == 0 {
		return repository.ErrNotFound
	}
	return nil
}

// Ensure ScheduledEmailRepo implements the interface
var _ repository.ScheduledEmailRepository = (*ScheduledEmailRepo)(nil)
