package queue

import (
	"context"
	"time"

	"github.com/google/uuid"
)

type Repository interface {
	// Enqueue inserts pending items, one per job, due immediately.
	Enqueue(ctx context.Context, items []*Item) error
	// Claim atomically moves up to limit due pending items (and stale
	// processing items older than staleAfter) to processing, stamping
	// locked_at. This conditional update is the only synchronization point
	// between workers.
	Claim(ctx context.Context, limit int, staleAfter time.Duration) ([]*Item, error)
	// Complete marks a claimed item done.
	Complete(ctx context.Context, id uuid.UUID) error
	// Reschedule returns a claimed item to pending with attempt+1, due after
	// the backoff delay.
	Reschedule(ctx context.Context, id uuid.UUID, attempt int, nextAttemptAt time.Time, lastError string) error
	// DeadLetter marks a claimed item exhausted.
	DeadLetter(ctx context.Context, id uuid.UUID, lastError string) error

	// CountUnfinishedForEvent counts sibling items of an event still pending
	// or processing, excluding the given item.
	CountUnfinishedForEvent(ctx context.Context, eventID, excludeItem uuid.UUID) (int, error)
}
