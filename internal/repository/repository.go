// Package repository defines domain models and data access interfaces for
// users, contact profiles, invitations, and scheduled follow-up emails.
package repository

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

// ErrNotFound is returned when a requested entity does not exist
var ErrNotFound = errors.New("not found")

// User represents an account that owns a partition of contact data.
// The user ID doubles as the vector index namespace.
type User struct {
	ID           uuid.UUID
	Email        string
	Name         string
	APIKey       string
	PasswordHash string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// HiringStatus is the legacy mutually-exclusive employment status field.
// New records carry the independent boolean flags on Profile instead.
type HiringStatus string

const (
	HiringStatusNone       HiringStatus = ""
	HiringStatusHiring     HiringStatus = "hiring"
	HiringStatusOpenToWork HiringStatus = "open_to_work"
)

// Profile represents a contact record owned by exactly one user.
// The ID is canonical: it is the Postgres primary key, the vector index
// point id, and the record_id echoed by the reranking model.
type Profile struct {
	ID     uuid.UUID
	UserID uuid.UUID

	FullName    string
	Headline    string
	Company     string
	CompanySize string
	Industry    string
	LinkedinURL string

	City        string
	State       string
	Country     string
	GeoLocation string

	About      string
	Experience string
	Skills     string

	Followers   int
	ConnectedAt *time.Time

	HiringStatus   HiringStatus
	IsHiring       bool
	IsOpenToWork   bool
	IsCompanyOwner bool
	HasPEVCRole    bool

	CreatedAt time.Time
	UpdatedAt time.Time
}

// Invitation represents an invite sent by a user to bring a new account
// into their workspace.
type Invitation struct {
	ID         uuid.UUID
	UserID     uuid.UUID
	Email      string
	Token      string
	Status     string // pending, accepted, revoked
	CreatedAt  time.Time
	AcceptedAt *time.Time
}

// Scheduled email statuses. Sending is transient: claimed by a scheduler
// instance but not yet delivered. Stale sending rows are requeued.
const (
	EmailStatusPending = "pending"
	EmailStatusSending = "sending"
	EmailStatusSent    = "sent"
	EmailStatusFailed  = "failed"
)

// ScheduledEmail represents a follow-up email queued for a contact.
type ScheduledEmail struct {
	ID           uuid.UUID
	UserID       uuid.UUID
	ProfileID    uuid.UUID
	Recipient    string
	Subject      string
	Body         string
	SendAt       time.Time
	Status       string
	ErrorMessage string
	SentAt       *time.Time
	CreatedAt    time.Time
}

// UserRepository defines operations for user persistence
type UserRepository interface {
	Create(ctx context.Context, user *User) error
	GetByID(ctx context.Context, id uuid.UUID) (*User, error)
	GetByEmail(ctx context.Context, email string) (*User, error)
	GetByAPIKey(ctx context.Context, apiKey string) (*User, error)
	Update(ctx context.Context, user *User) error
	Delete(ctx context.Context, id uuid.UUID) error
}

// ProfileRepository defines operations for contact profile persistence.
// All reads are scoped by the owning user; hydration must never return a
// profile owned by a different user even if its id is known.
type ProfileRepository interface {
	Create(ctx context.Context, profile *Profile) error
	CreateBatch(ctx context.Context, profiles []*Profile) error
	GetByID(ctx context.Context, id, userID uuid.UUID) (*Profile, error)
	GetByIDs(ctx context.Context, ids []uuid.UUID, userID uuid.UUID) ([]*Profile, error)
	List(ctx context.Context, userID uuid.UUID, limit, offset int) ([]*Profile, int, error)
	Update(ctx context.Context, profile *Profile) error
	Delete(ctx context.Context, id, userID uuid.UUID) error
}

// InvitationRepository defines operations for invitation persistence
type InvitationRepository interface {
	Create(ctx context.Context, inv *Invitation) error
	GetByToken(ctx context.Context, token string) (*Invitation, error)
	List(ctx context.Context, userID uuid.UUID, limit, offset int) ([]*Invitation, int, error)
	MarkAccepted(ctx context.Context, id uuid.UUID) error
	Delete(ctx context.Context, id, userID uuid.UUID) error
}

// ScheduledEmailRepository defines operations for the follow-up email queue
type ScheduledEmailRepository interface {
	Create(ctx context.Context, email *ScheduledEmail) error
	List(ctx context.Context, userID uuid.UUID, status string, limit, offset int) ([]*ScheduledEmail, int, error)
	// ClaimDue atomically claims up to limit pending emails whose send time
	// has passed, so concurrent scheduler instances never double-send.
	ClaimDue(ctx context.Context, now time.Time, limit int) ([]*ScheduledEmail, error)
	MarkSent(ctx context.Context, id uuid.UUID, sentAt time.Time) error
	MarkFailed(ctx context.Context, id uuid.UUID, errMsg string) error
}
