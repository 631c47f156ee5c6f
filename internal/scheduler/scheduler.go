// Package scheduler delivers queued follow-up emails. A single loop claims
// due emails in batches and hands them to a sender; claiming uses row locks
// so running several instances never double-sends.
package scheduler

import (
	"context"
	"log/slog"
	"time"

	"github.com/relay-crm/relay/internal/repository"
)

const (
	DefaultInterval  = time.Minute
	DefaultBatchSize = 50
)

// EmailSender delivers one email.
type EmailSender interface {
	Send(ctx context.Context, email *repository.ScheduledEmail) error
}

// LogSender logs instead of sending. It stands in until an SMTP or
// provider-backed sender is configured.
type LogSender struct {
	Logger *slog.Logger
}

func (s *LogSender) Send(ctx context.Context, email *repository.ScheduledEmail) error {
	s.Logger.Info("would send follow-up email",
		"email_id", email.ID,
		"recipient", email.Recipient,
		"subject", email.Subject,
	)
	return nil
}

// Scheduler runs the delivery loop.
type Scheduler struct {
	emails    repository.ScheduledEmailRepository
	sender    EmailSender
	interval  time.Duration
	batchSize int
	logger    *slog.Logger
}

// New creates a scheduler. Zero interval and batch size get defaults.
func New(emails repository.ScheduledEmailRepository, sender EmailSender, interval time.Duration, batchSize int, logger *slog.Logger) *Scheduler {
	if interval <= 0 {
		interval = DefaultInterval
	}
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{
		emails:    emails,
		sender:    sender,
		interval:  interval,
		batchSize: batchSize,
		logger:    logger,
	}
}

// Run processes due emails until the context is cancelled.
func (s *Scheduler) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.logger.Info("email scheduler started", "interval", s.interval)
	for {
		select {
		case <-ctx.Done():
			s.logger.Info("email scheduler stopped")
			return
		case <-ticker.C:
			s.processDue(ctx, time.Now())
		}
	}
}

// processDue claims and delivers one batch. Send failures are recorded on
// the email and never stop the batch.
func (s *Scheduler) processDue(ctx context.Context, now time.Time) {
	due, err := s.emails.ClaimDue(ctx, now, s.batchSize)
	if err != nil {
		s.logger.Error("failed to claim due emails", "error", err)
		return
	}
	if len(due) == 0 {
		return
	}

	sent, failed := 0, 0
	for _, email := range due {
		if err := s.sender.Send(ctx, email); err != nil {
			failed++
			s.logger.Warn("failed to send follow-up email",
				"email_id", email.ID, "recipient", email.Recipient, "error", err)
			if err := s.emails.MarkFailed(ctx, email.ID, err.Error()); err != nil {
				s.logger.Error("failed to mark email failed", "email_id", email.ID, "error", err)
			}
			continue
		}
		sent++
		if err := s.emails.MarkSent(ctx, email.ID, time.Now()); err != nil {
			s.logger.Error("failed to mark email sent", "email_id", email.ID, "error", err)
		}
	}

	s.logger.Info("processed due emails", "sent", sent, "failed", failed)
}
