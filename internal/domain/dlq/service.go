package dlq

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/praxismed/eventd/internal/platform/bus"
)

// EventReopener moves a failed event back to pending so a redelivered item is
// not discarded by the terminal-event guard.
type EventReopener interface {
	Reopen(ctx context.Context, id uuid.UUID) (bool, error)
}

type Service struct {
	repo     Repository
	enqueuer bus.Enqueuer
	events   EventReopener
	log      zerolog.Logger
}

func NewService(repo Repository, enqueuer bus.Enqueuer, events EventReopener, logger zerolog.Logger) *Service {
	return &Service{repo: repo, enqueuer: enqueuer, events: events, log: logger}
}

// Record writes an entry for an exhausted delivery. Exactly one entry per
// (event, target): a second call for the same pair is a no-op, so re-running
// the processor over an already dead-lettered item cannot duplicate.
func (s *Service) Record(ctx context.Context, e *Entry) error {
	exists, err := s.repo.ExistsForEventTarget(ctx, e.EventID, e.TargetID)
	if err != nil {
		return err
	}
	if exists {
		s.log.Debug().Str("event_id", e.EventID.String()).Str("target", e.TargetName).
			Msg("dead letter entry already recorded")
		return nil
	}
	e.Status = StatusPending
	return s.repo.Create(ctx, e)
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*Entry, error) {
	return s.repo.Get(ctx, id)
}

func (s *Service) List(ctx context.Context, status Status, limit, offset int) ([]*Entry, int, error) {
	return s.repo.List(ctx, status, limit, offset)
}

// Retry spawns a fresh queue item for the entry's target with the attempt
// counter reset, then marks the entry retried. Allowed from pending and
// dismissed alike. The event is reopened first: exhaustion left it failed,
// and a terminal event would discard the new item unexecuted.
func (s *Service) Retry(ctx context.Context, id uuid.UUID, reviewer string) (*Entry, error) {
	e, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	reopened, err := s.events.Reopen(ctx, e.EventID)
	if err != nil {
		return nil, err
	}
	if !reopened {
		s.log.Debug().Str("event_id", e.EventID.String()).
			Msg("event not failed, redelivering without reopen")
	}
	job := bus.Job{
		EventID:    e.EventID,
		TargetKind: e.TargetKind,
		TargetID:   e.TargetID,
		TargetName: e.TargetName,
		RetryCount: e.RetryCount,
		TimeoutMs:  e.TimeoutMs,
	}
	if err := s.enqueuer.EnqueueJobs(ctx, []bus.Job{job}); err != nil {
		return nil, err
	}
	if err := s.repo.MarkRetried(ctx, id, reviewer); err != nil {
		return nil, err
	}
	e.Status = StatusRetried
	e.Reviewer = reviewer
	return e, nil
}

// Dismiss resolves the entry without redelivery. Dismissing an already
// dismissed entry is idempotent.
func (s *Service) Dismiss(ctx context.Context, id uuid.UUID, reviewer, notes string) error {
	err := s.repo.Resolve(ctx, id, StatusDismissed, reviewer, notes)
	if errors.Is(err, ErrTerminal) {
		e, getErr := s.repo.Get(ctx, id)
		if getErr != nil {
			return getErr
		}
		if e.Status == StatusDismissed {
			return nil
		}
		return err
	}
	return err
}

// NewEntry builds an entry from an exhausted delivery.
func NewEntry(eventID uuid.UUID, eventName string, payload []byte, job bus.Job,
	errMsg string, failureCount int, firstFailedAt time.Time) *Entry {
	return &Entry{
		EventID:       eventID,
		EventName:     eventName,
		Payload:       payload,
		TargetKind:    job.TargetKind,
		TargetID:      job.TargetID,
		TargetName:    job.TargetName,
		RetryCount:    job.RetryCount,
		TimeoutMs:     job.TimeoutMs,
		ErrorMessage:  errMsg,
		FailureCount:  failureCount,
		FirstFailedAt: firstFailedAt,
		LastFailedAt:  time.Now().UTC(),
		Status:        StatusPending,
	}
}
