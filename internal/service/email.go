package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/relay-crm/relay/internal/repository"
)

// ScheduleEmailInput is the wire shape for queueing a follow-up email.
type ScheduleEmailInput struct {
	ProfileID string `json:"profile_id"`
	Recipient string `json:"recipient"`
	Subject   string `json:"subject"`
	Body      string `json:"body"`
	SendAt    string `json:"send_at"` // RFC 3339; empty means now
}

// ScheduledEmailDTO is the wire shape of a queued email.
type ScheduledEmailDTO struct {
	ID        string `json:"id"`
	ProfileID string `json:"profile_id"`
	Recipient string `json:"recipient"`
	Subject   string `json:"subject"`
	Body      string `json:"body"`
	SendAt    string `json:"send_at"`
	Status    string `json:"status"`
	Error     string `json:"error,omitempty"`
	SentAt    string `json:"sent_at,omitempty"`
}

func scheduledEmailToDTO(e *repository.ScheduledEmail) *ScheduledEmailDTO {
	dto := &ScheduledEmailDTO{
		ID:        e.ID.String(),
		ProfileID: e.ProfileID.String(),
		Recipient: e.Recipient,
		Subject:   e.Subject,
		Body:      e.Body,
		SendAt:    e.SendAt.Format(time.RFC3339),
		Status:    e.Status,
		Error:     e.ErrorMessage,
	}
	if e.SentAt != nil {
		dto.SentAt = e.SentAt.Format(time.RFC3339)
	}
	return dto
}

// EmailService queues follow-up emails for contacts.
type EmailService struct {
	emails   repository.ScheduledEmailRepository
	profiles repository.ProfileRepository
}

// NewEmailService creates an email service.
func NewEmailService(emails repository.ScheduledEmailRepository, profiles repository.ProfileRepository) *EmailService {
	return &EmailService{emails: emails, profiles: profiles}
}

// Schedule queues one follow-up email. The target profile must belong to
// the scheduling user.
func (s *EmailService) Schedule(ctx context.Context, userID uuid.UUID, input *ScheduleEmailInput) (*ScheduledEmailDTO, error) {
	profileID, err := uuid.Parse(input.ProfileID)
	if err != nil {
		return nil, invalidf("invalid profile_id")
	}
	if input.Recipient == "" {
		return nil, invalidf("recipient is required")
	}
	if input.Subject == "" {
		return nil, invalidf("subject is required")
	}

	if _, err := s.profiles.GetByID(ctx, profileID, userID); err != nil {
		return nil, err
	}

	sendAt := time.Now()
	if input.SendAt != "" {
		sendAt, err = time.Parse(time.RFC3339, input.SendAt)
		if err != nil {
			return nil, invalidf("invalid send_at: %v", err)
		}
	}

	email := &repository.ScheduledEmail{
		ID:        uuid.New(),
		UserID:    userID,
		ProfileID: profileID,
		Recipient: input.Recipient,
		Subject:   input.Subject,
		Body:      input.Body,
		SendAt:    sendAt,
		Status:    repository.EmailStatusPending,
		CreatedAt: time.Now(),
	}
	if err := s.emails.Create(ctx, email); err != nil {
		return nil, fmt.Errorf("failed to queue email: %w", err)
	}
	return scheduledEmailToDTO(email), nil
}

// List returns a page of the user's queued emails, optionally filtered by
// status, with the total count.
func (s *EmailService) List(ctx context.Context, userID uuid.UUID, status string, limit, offset int) ([]*ScheduledEmailDTO, int, error) {
	switch status {
	case "", repository.EmailStatusPending, repository.EmailStatusSending,
		repository.EmailStatusSent, repository.EmailStatusFailed:
	default:
		return nil, 0, invalidf("invalid status %q", status)
	}
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}

	rows, total, err := s.emails.List(ctx, userID, status, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	dtos := make([]*ScheduledEmailDTO, len(rows))
	for i, e := range rows {
		dtos[i] = scheduledEmailToDTO(e)
	}
	return dtos, total, nil
}
