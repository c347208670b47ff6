package listener

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

const (
	defaultPriority  = 100
	defaultRetries   = 3
	defaultTimeoutMs = 30000
)

type Service struct {
	repo     Repository
	registry *Registry
	log      zerolog.Logger
}

func NewService(repo Repository, registry *Registry, logger zerolog.Logger) *Service {
	return &Service{repo: repo, registry: registry, log: logger}
}

// Register stores a new handler binding. The target does not have to be bound
// in the invoker registry yet; registrations routinely precede deploys of the
// code they point at.
func (s *Service) Register(ctx context.Context, h *Handler) (*Handler, error) {
	if h.Priority == 0 {
		h.Priority = defaultPriority
	}
	if h.RetryCount == 0 {
		h.RetryCount = defaultRetries
	}
	if h.TimeoutMs == 0 {
		h.TimeoutMs = defaultTimeoutMs
	}
	h.Active = true
	if err := h.Validate(); err != nil {
		return nil, err
	}
	if _, ok := s.registry.Resolve(h.Target()); !ok {
		s.log.Warn().Str("target", h.Target()).Str("event", h.EventName).
			Msg("handler registered without a bound invoker")
	}
	if err := s.repo.Create(ctx, h); err != nil {
		return nil, err
	}
	return h, nil
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*Handler, error) {
	return s.repo.Get(ctx, id)
}

func (s *Service) List(ctx context.Context, eventName string) ([]*Handler, error) {
	return s.repo.List(ctx, eventName)
}

// Update replaces the mutable fields of an existing handler.
func (s *Service) Update(ctx context.Context, h *Handler) (*Handler, error) {
	if err := h.Validate(); err != nil {
		return nil, err
	}
	if err := s.repo.Update(ctx, h); err != nil {
		return nil, err
	}
	return h, nil
}

// SetActive soft-toggles a handler. Deactivated handlers keep their history
// and can be reactivated later.
func (s *Service) SetActive(ctx context.Context, id uuid.UUID, active bool) error {
	return s.repo.SetActive(ctx, id, active)
}

func (s *Service) Delete(ctx context.Context, id uuid.UUID) error {
	return s.repo.Delete(ctx, id)
}

// MatchesForEvent returns the active handlers for eventName whose condition
// accepts the payload, priority ascending. Handlers with malformed stored
// conditions are skipped and logged rather than blocking their siblings.
func (s *Service) MatchesForEvent(ctx context.Context, eventName string, payload json.RawMessage) ([]*Handler, error) {
	handlers, err := s.repo.ListActiveForEvent(ctx, eventName)
	if err != nil {
		return nil, err
	}
	if len(handlers) == 0 {
		return nil, nil
	}

	var decoded map[string]interface{}
	if len(payload) > 0 {
		if err := json.Unmarshal(payload, &decoded); err != nil {
			decoded = nil
		}
	}

	matched := make([]*Handler, 0, len(handlers))
	for _, h := range handlers {
		cond, err := ParseCondition(h.Condition)
		if err != nil {
			s.log.Error().Err(err).Str("handler", h.HandlerName).Str("event", eventName).
				Msg("skipping handler with malformed condition")
			continue
		}
		if cond.Matches(decoded) {
			matched = append(matched, h)
		}
	}
	return matched, nil
}

// Invoker resolves the invoker bound to the handler's target.
func (s *Service) Invoker(h *Handler) (Invoker, error) {
	fn, ok := s.registry.Resolve(h.Target())
	if !ok {
		return nil, ErrUnknownTarget
	}
	return fn, nil
}
