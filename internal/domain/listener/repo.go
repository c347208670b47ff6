package listener

import (
	"context"

	"github.com/google/uuid"
)

type Repository interface {
	Create(ctx context.Context, h *Handler) error
	Get(ctx context.Context, id uuid.UUID) (*Handler, error)
	// List returns handlers, optionally filtered by event name. Ordered by
	// event name then priority ascending.
	List(ctx context.Context, eventName string) ([]*Handler, error)
	// ListActiveForEvent returns active handlers for one event, priority
	// ascending. This is the dispatch path.
	ListActiveForEvent(ctx context.Context, eventName string) ([]*Handler, error)
	Update(ctx context.Context, h *Handler) error
	SetActive(ctx context.Context, id uuid.UUID, active bool) error
	Delete(ctx context.Context, id uuid.UUID) error
}
