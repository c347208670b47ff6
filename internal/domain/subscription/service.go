package subscription

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

type Service struct {
	repo      Repository
	deliverer *Deliverer
	log       zerolog.Logger
}

func NewService(repo Repository, deliverer *Deliverer, logger zerolog.Logger) *Service {
	return &Service{repo: repo, deliverer: deliverer, log: logger}
}

// Register validates and persists a new subscription. If secretKey is empty a
// cryptographically random one is generated and returned once in the response.
func (s *Service) Register(ctx context.Context, sub *Subscription) (*Subscription, error) {
	if err := sub.Validate(); err != nil {
		return nil, err
	}
	if sub.SecretKey == "" {
		secret, err := generateSecret()
		if err != nil {
			return nil, fmt.Errorf("generate secret: %w", err)
		}
		sub.SecretKey = secret
	}
	sub.Active = true
	sub.FailureCount = 0
	if err := s.repo.Create(ctx, sub); err != nil {
		return nil, err
	}
	return sub, nil
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*Subscription, error) {
	return s.repo.Get(ctx, id)
}

func (s *Service) List(ctx context.Context, eventName string, activeOnly bool) ([]*Subscription, error) {
	return s.repo.List(ctx, eventName, activeOnly)
}

func (s *Service) Update(ctx context.Context, sub *Subscription) (*Subscription, error) {
	if err := sub.Validate(); err != nil {
		return nil, err
	}
	if err := s.repo.Update(ctx, sub); err != nil {
		return nil, err
	}
	return sub, nil
}

func (s *Service) SetActive(ctx context.Context, id uuid.UUID, active bool) (*Subscription, error) {
	sub, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	sub.Active = active
	if err := s.repo.Update(ctx, sub); err != nil {
		return nil, err
	}
	return sub, nil
}

func (s *Service) Delete(ctx context.Context, id uuid.UUID) error {
	return s.repo.Delete(ctx, id)
}

// MatchesForEvent returns the active subscriptions whose pattern matches the
// concrete event name.
func (s *Service) MatchesForEvent(ctx context.Context, eventName string) ([]*Subscription, error) {
	subs, err := s.repo.ListActive(ctx)
	if err != nil {
		return nil, err
	}
	var matched []*Subscription
	for _, sub := range subs {
		if EventMatches(sub.EventName, eventName) {
			matched = append(matched, sub)
		}
	}
	return matched, nil
}

// Deliver pushes one event to one subscription and updates its failure
// accounting. Success resets failure_count; failure increments it. Both stamp
// last_triggered_at.
func (s *Service) Deliver(ctx context.Context, sub *Subscription, del Delivery) *Result {
	res := s.deliverer.Deliver(ctx, sub, del)
	now := time.Now().UTC()
	var accErr error
	if res.Success {
		accErr = s.repo.RecordSuccess(ctx, sub.ID, now)
	} else {
		accErr = s.repo.RecordFailure(ctx, sub.ID, now)
	}
	if accErr != nil {
		s.log.Error().Err(accErr).Str("subscription", sub.SubscriptionName).
			Msg("failed to update delivery accounting")
	}
	return res
}

// Test sends a synthetic event to verify endpoint connectivity. Test
// deliveries bypass the queue and do not touch failure accounting.
func (s *Service) Test(ctx context.Context, id uuid.UUID) (*Result, error) {
	sub, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	del := Delivery{
		EventID:       uuid.New(),
		EventName:     "webhook.test",
		Payload:       json.RawMessage(`{"test":true}`),
		CorrelationID: uuid.New(),
		TriggeredAt:   time.Now().UTC(),
		Attempt:       1,
	}
	return s.deliverer.Deliver(ctx, sub, del), nil
}
