package scheduler

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/relay-crm/relay/internal/repository"
)

type stubEmailRepo struct {
	due      []*repository.ScheduledEmail
	claimErr error

	sent   []uuid.UUID
	failed map[uuid.UUID]string
}

func newStubEmailRepo(due ...*repository.ScheduledEmail) *stubEmailRepo {
	return &stubEmailRepo{due: due, failed: map[uuid.UUID]string{}}
}

func (r *stubEmailRepo) ClaimDue(ctx context.Context, now time.Time, limit int) ([]*repository.ScheduledEmail, error) {
	if r.claimErr != nil {
		return nil, r.claimErr
	}
	if len(r.due) > limit {
		return r.due[:limit], nil
	}
	return r.due, nil
}

func (r *stubEmailRepo) MarkSent(ctx context.Context, id uuid.UUID, sentAt time.Time) error {
	r.sent = append(r.sent, id)
	return nil
}

func (r *stubEmailRepo) MarkFailed(ctx context.Context, id uuid.UUID, errMsg string) error {
	r.failed[id] = errMsg
	return nil
}

func (r *stubEmailRepo) Create(ctx context.Context, email *repository.ScheduledEmail) error {
	return nil
}

func (r *stubEmailRepo) List(ctx context.Context, userID uuid.UUID, status string, limit, offset int) ([]*repository.ScheduledEmail, int, error) {
	return nil, 0, nil
}

type stubSender struct {
	failFor map[uuid.UUID]error
	sent    []uuid.UUID
}

func (s *stubSender) Send(ctx context.Context, email *repository.ScheduledEmail) error {
	if err, ok := s.failFor[email.ID]; ok {
		return err
	}
	s.sent = append(s.sent, email.ID)
	return nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func dueEmail() *repository.ScheduledEmail {
	return &repository.ScheduledEmail{
		ID:        uuid.New(),
		UserID:    uuid.New(),
		Recipient: "contact@example.com",
		Subject:   "Following up",
		Status:    repository.EmailStatusPending,
		SendAt:    time.Now().Add(-time.Minute),
	}
}

func TestScheduler_SendsDueEmails(t *testing.T) {
	a, b := dueEmail(), dueEmail()
	repo := newStubEmailRepo(a, b)
	sender := &stubSender{}
	s := New(repo, sender, 0, 0, testLogger())

	s.processDue(context.Background(), time.Now())

	if len(sender.sent) != 2 {
		t.Fatalf("expected 2 sends, got %d", len(sender.sent))
	}
	if len(repo.sent) != 2 {
		t.Errorf("expected 2 emails marked sent, got %d", len(repo.sent))
	}
	if len(repo.failed) != 0 {
		t.Errorf("expected no failures, got %v", repo.failed)
	}
}

func TestScheduler_SendFailureDoesNotStopBatch(t *testing.T) {
	a, b, c := dueEmail(), dueEmail(), dueEmail()
	repo := newStubEmailRepo(a, b, c)
	sender := &stubSender{failFor: map[uuid.UUID]error{b.ID: fmt.Errorf("smtp timeout")}}
	s := New(repo, sender, 0, 0, testLogger())

	s.processDue(context.Background(), time.Now())

	if len(repo.sent) != 2 {
		t.Errorf("expected 2 emails marked sent, got %d", len(repo.sent))
	}
	if msg, ok := repo.failed[b.ID]; !ok || msg != "smtp timeout" {
		t.Errorf("expected failure recorded for %s, got %v", b.ID, repo.failed)
	}
}

func TestScheduler_ClaimErrorIsLoggedOnly(t *testing.T) {
	repo := newStubEmailRepo()
	repo.claimErr = fmt.Errorf("database down")
	s := New(repo, &stubSender{}, 0, 0, testLogger())

	// Must not panic or mark anything.
	s.processDue(context.Background(), time.Now())
	if len(repo.sent) != 0 || len(repo.failed) != 0 {
		t.Error("nothing should be marked after a claim failure")
	}
}

func TestScheduler_RunStopsOnCancel(t *testing.T) {
	repo := newStubEmailRepo()
	s := New(repo, &stubSender{}, time.Millisecond, 0, testLogger())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		s.Run(ctx)
		close(done)
	}()

	time.Sleep(10 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("scheduler did not stop after cancellation")
	}
}
