// Package bus is the dispatch core: it turns an emitted event into persisted
// log rows and executions against matched handlers and webhook subscriptions,
// inline for synchronous targets and through the queue for asynchronous ones.
package bus

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
)

// ErrUnknownEvent is returned when emit names an event with no active
// definition. No log row is written for unknown events.
var ErrUnknownEvent = errors.New("unknown event")

// Job is one unit of asynchronous work: deliver one event to one target.
type Job struct {
	EventID    uuid.UUID
	TargetKind string
	TargetID   uuid.UUID
	TargetName string
	RetryCount int
	TimeoutMs  int
}

// Enqueuer hands jobs to the durable queue. Implemented by the queue
// repository; the indirection keeps the dispatch core free of queue
// internals.
type Enqueuer interface {
	EnqueueJobs(ctx context.Context, jobs []Job) error
}

// UnknownEventError wraps ErrUnknownEvent with the offending name.
func UnknownEventError(name string) error {
	return fmt.Errorf("%w: %s", ErrUnknownEvent, name)
}
