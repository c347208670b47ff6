package stats

import (
	"context"
	"time"
)

type Repository interface {
	// EventCounts buckets event log rows by (event_name, status) since the
	// given time, within the current tenant schema.
	EventCounts(ctx context.Context, since time.Time) ([]EventCount, error)
	// QueueSnapshot inspects the current tenant's queue.
	QueueSnapshot(ctx context.Context, staleAfter time.Duration) (*QueueSnapshot, error)
	// TenantSnapshots inspects the queue of every tenant schema.
	TenantSnapshots(ctx context.Context, staleAfter time.Duration) ([]QueueSnapshot, error)
}
