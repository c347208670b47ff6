package eventlog

import (
	"context"
	"time"

	"github.com/google/uuid"
)

type Repository interface {
	CreateEvent(ctx context.Context, ev *Event) error
	GetEvent(ctx context.Context, id uuid.UUID) (*Event, error)
	Search(ctx context.Context, filter SearchFilter, limit, offset int) ([]*Event, int, error)

	// MarkProcessing moves a pending event to processing. A no-op when the
	// event is already processing or terminal.
	MarkProcessing(ctx context.Context, id uuid.UUID) error
	// Complete marks the event completed. Fails silently (returns false) if
	// the event already reached a terminal status.
	Complete(ctx context.Context, id uuid.UUID, processedAt time.Time, durationMs int64) (bool, error)
	// Fail marks the event failed and appends errs. Returns false if the
	// event already reached a terminal status.
	Fail(ctx context.Context, id uuid.UUID, processedAt time.Time, durationMs int64, errs []string) (bool, error)
	// Reopen moves a failed event back to pending so redelivery can settle it
	// again. Returns false if the event is not failed.
	Reopen(ctx context.Context, id uuid.UUID) (bool, error)

	CreateExecution(ctx context.Context, ex *Execution) error
	FinishExecution(ctx context.Context, ex *Execution) error
	ListExecutions(ctx context.Context, eventID uuid.UUID) ([]*Execution, error)
}
