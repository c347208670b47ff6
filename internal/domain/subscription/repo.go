package subscription

import (
	"context"
	"time"

	"github.com/google/uuid"
)

type Repository interface {
	Create(ctx context.Context, sub *Subscription) error
	Get(ctx context.Context, id uuid.UUID) (*Subscription, error)
	List(ctx context.Context, eventName string, activeOnly bool) ([]*Subscription, error)
	// ListActive returns every active subscription. Pattern matching against a
	// concrete event name happens in the service, patterns cannot be filtered
	// by equality in SQL.
	ListActive(ctx context.Context) ([]*Subscription, error)
	Update(ctx context.Context, sub *Subscription) error
	Delete(ctx context.Context, id uuid.UUID) error

	// RecordSuccess stamps last_triggered_at and last_success_at and resets
	// failure_count.
	RecordSuccess(ctx context.Context, id uuid.UUID, at time.Time) error
	// RecordFailure stamps last_triggered_at and increments failure_count.
	RecordFailure(ctx context.Context, id uuid.UUID, at time.Time) error
}
