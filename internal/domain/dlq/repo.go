package dlq

import (
	"context"

	"github.com/google/uuid"
)

type Repository interface {
	Create(ctx context.Context, e *Entry) error
	Get(ctx context.Context, id uuid.UUID) (*Entry, error)
	// List returns entries newest-first, optionally filtered by status.
	List(ctx context.Context, status Status, limit, offset int) ([]*Entry, int, error)
	// ExistsForItem reports whether an entry was already written for the
	// given queue item. Keeps processor re-runs from duplicating entries.
	ExistsForEventTarget(ctx context.Context, eventID, targetID uuid.UUID) (bool, error)
	// Resolve moves a pending entry to retried or dismissed. Returns
	// ErrTerminal when the entry was already resolved.
	Resolve(ctx context.Context, id uuid.UUID, status Status, reviewer, notes string) error
	// MarkRetried stamps an entry retried regardless of its current status.
	// Retrying is allowed even from dismissed.
	MarkRetried(ctx context.Context, id uuid.UUID, reviewer string) error
}
