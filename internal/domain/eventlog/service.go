package eventlog

import (
	"context"
	"time"

	"github.com/google/uuid"
)

type Service struct {
	repo Repository
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

// Record persists a new event row. Status defaults to pending.
func (s *Service) Record(ctx context.Context, ev *Event) error {
	if ev.Status == "" {
		ev.Status = StatusPending
	}
	if ev.CorrelationID == uuid.Nil {
		ev.CorrelationID = uuid.New()
	}
	return s.repo.CreateEvent(ctx, ev)
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*Event, error) {
	return s.repo.GetEvent(ctx, id)
}

// GetWithExecutions returns the event plus every execution attempt recorded
// against it, ordered by start time.
func (s *Service) GetWithExecutions(ctx context.Context, id uuid.UUID) (*Event, []*Execution, error) {
	ev, err := s.repo.GetEvent(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	execs, err := s.repo.ListExecutions(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	return ev, execs, nil
}

func (s *Service) Search(ctx context.Context, filter SearchFilter, limit, offset int) ([]*Event, int, error) {
	return s.repo.Search(ctx, filter, limit, offset)
}

// MarkProcessing moves a pending event to processing.
func (s *Service) MarkProcessing(ctx context.Context, id uuid.UUID) error {
	return s.repo.MarkProcessing(ctx, id)
}

// Complete moves the event to completed. Events that already reached a
// terminal status are left untouched.
func (s *Service) Complete(ctx context.Context, id uuid.UUID, triggeredAt time.Time) (bool, error) {
	now := time.Now().UTC()
	return s.repo.Complete(ctx, id, now, now.Sub(triggeredAt).Milliseconds())
}

// Fail moves the event to failed and appends errs to its error list. Events
// that already reached a terminal status are left untouched.
func (s *Service) Fail(ctx context.Context, id uuid.UUID, triggeredAt time.Time, errs []string) (bool, error) {
	now := time.Now().UTC()
	return s.repo.Fail(ctx, id, now, now.Sub(triggeredAt).Milliseconds(), errs)
}

// Reopen moves a failed event back to pending ahead of a manual redelivery.
func (s *Service) Reopen(ctx context.Context, id uuid.UUID) (bool, error) {
	return s.repo.Reopen(ctx, id)
}
