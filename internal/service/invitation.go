package service

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/relay-crm/relay/internal/repository"
)

// InvitationDTO is the wire shape of an invitation.
type InvitationDTO struct {
	ID         string `json:"id"`
	Email      string `json:"email"`
	Token      string `json:"token"`
	Status     string `json:"status"`
	CreatedAt  string `json:"created_at"`
	AcceptedAt string `json:"accepted_at,omitempty"`
}

func invitationToDTO(inv *repository.Invitation) *InvitationDTO {
	dto := &InvitationDTO{
		ID:        inv.ID.String(),
		Email:     inv.Email,
		Token:     inv.Token,
		Status:    inv.Status,
		CreatedAt: inv.CreatedAt.Format(time.RFC3339),
	}
	if inv.AcceptedAt != nil {
		dto.AcceptedAt = inv.AcceptedAt.Format(time.RFC3339)
	}
	return dto
}

// InvitationService manages workspace invitations.
type InvitationService struct {
	invitations repository.InvitationRepository
}

// NewInvitationService creates an invitation service.
func NewInvitationService(invitations repository.InvitationRepository) *InvitationService {
	return &InvitationService{invitations: invitations}
}

// Create issues an invitation with a fresh opaque token.
func (s *InvitationService) Create(ctx context.Context, userID uuid.UUID, email string) (*InvitationDTO, error) {
	email = strings.TrimSpace(strings.ToLower(email))
	if email == "" || !strings.Contains(email, "@") {
		return nil, invalidf("a valid email is required")
	}

	token, err := generateToken()
	if err != nil {
		return nil, fmt.Errorf("failed to generate invitation token: %w", err)
	}

	inv := &repository.Invitation{
		ID:        uuid.New(),
		UserID:    userID,
		Email:     email,
		Token:     token,
		Status:    "pending",
		CreatedAt: time.Now(),
	}
	if err := s.invitations.Create(ctx, inv); err != nil {
		return nil, fmt.Errorf("failed to store invitation: %w", err)
	}
	return invitationToDTO(inv), nil
}

// Accept marks a pending invitation accepted by its token.
func (s *InvitationService) Accept(ctx context.Context, token string) (*InvitationDTO, error) {
	if token == "" {
		return nil, invalidf("token is required")
	}

	inv, err := s.invitations.GetByToken(ctx, token)
	if err != nil {
		return nil, err
	}
	if inv.Status != "pending" {
		return nil, invalidf("invitation is %s", inv.Status)
	}
	if err := s.invitations.MarkAccepted(ctx, inv.ID); err != nil {
		return nil, err
	}

	inv.Status = "accepted"
	now := time.Now()
	inv.AcceptedAt = &now
	return invitationToDTO(inv), nil
}

// List returns a page of the user's invitations with the total count.
func (s *InvitationService) List(ctx context.Context, userID uuid.UUID, limit, offset int) ([]*InvitationDTO, int, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}

	rows, total, err := s.invitations.List(ctx, userID, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	dtos := make([]*InvitationDTO, len(rows))
	for i, inv := range rows {
		dtos[i] = invitationToDTO(inv)
	}
	return dtos, total, nil
}

// Revoke deletes an invitation owned by the user.
func (s *InvitationService) Revoke(ctx context.Context, id, userID uuid.UUID) error {
	return s.invitations.Delete(ctx, id, userID)
}

func generateToken() (string, error) {
	buf := make([]byte, 24)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}
