package bus

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/praxismed/eventd/internal/domain/eventdef"
	"github.com/praxismed/eventd/internal/domain/eventlog"
	"github.com/praxismed/eventd/internal/domain/listener"
	"github.com/praxismed/eventd/internal/domain/subscription"
	"github.com/praxismed/eventd/internal/platform/db"
)

// EmitRequest describes one event emission.
type EmitRequest struct {
	EventName     string          `json:"eventName"`
	Payload       json.RawMessage `json:"payload"`
	SourceService string          `json:"sourceService"`
	SourceUserID  string          `json:"sourceUserId,omitempty"`
	EntityType    string          `json:"entityType,omitempty"`
	EntityID      string          `json:"entityId,omitempty"`
	CorrelationID uuid.UUID       `json:"correlationId,omitempty"`
	Metadata      json.RawMessage `json:"metadata,omitempty"`
	Sync          bool            `json:"sync,omitempty"`
}

// EmitResult is returned to the emitter. Results is populated only for
// synchronous emissions; Queued counts targets routed through the queue.
type EmitResult struct {
	EventID           uuid.UUID  `json:"eventId"`
	CorrelationID     uuid.UUID  `json:"correlationId"`
	HandlersTriggered int        `json:"handlersTriggered"`
	Queued            int        `json:"queued,omitempty"`
	Results           []*Outcome `json:"results,omitempty"`
}

// Dispatcher is the emit entry point. It validates the event against the
// definition registry, writes the durable log row, then either executes
// matched targets inline or enqueues them.
type Dispatcher struct {
	defs      *eventdef.Service
	listeners *listener.Service
	subs      *subscription.Service
	logSvc    *eventlog.Service
	executor  *Executor
	enqueuer  Enqueuer

	// Webhook deliveries share one retry budget and timeout, handlers carry
	// their own per registration.
	webhookRetries   int
	webhookTimeoutMs int

	log zerolog.Logger
}

func NewDispatcher(defs *eventdef.Service, listeners *listener.Service, subs *subscription.Service,
	logSvc *eventlog.Service, executor *Executor, enqueuer Enqueuer,
	webhookRetries int, webhookTimeout time.Duration, logger zerolog.Logger) *Dispatcher {
	return &Dispatcher{
		defs:             defs,
		listeners:        listeners,
		subs:             subs,
		logSvc:           logSvc,
		executor:         executor,
		enqueuer:         enqueuer,
		webhookRetries:   webhookRetries,
		webhookTimeoutMs: int(webhookTimeout.Milliseconds()),
		log:              logger,
	}
}

// Emit validates, persists, and dispatches one event. The log row is written
// before any execution so a crash mid-dispatch is recoverable from the log.
func (d *Dispatcher) Emit(ctx context.Context, req EmitRequest) (*EmitResult, error) {
	if _, err := d.defs.LookupActive(ctx, req.EventName); err != nil {
		if errors.Is(err, eventdef.ErrNotFound) {
			return nil, UnknownEventError(req.EventName)
		}
		return nil, err
	}

	ev := &eventlog.Event{
		TenantID:      db.TenantFromContext(ctx),
		EventName:     req.EventName,
		Payload:       req.Payload,
		SourceService: req.SourceService,
		SourceUserID:  req.SourceUserID,
		EntityType:    req.EntityType,
		EntityID:      req.EntityID,
		CorrelationID: req.CorrelationID,
		Metadata:      req.Metadata,
	}
	if err := d.logSvc.Record(ctx, ev); err != nil {
		return nil, err
	}

	handlers, err := d.listeners.MatchesForEvent(ctx, req.EventName, req.Payload)
	if err != nil {
		return nil, err
	}
	subs, err := d.subs.MatchesForEvent(ctx, req.EventName)
	if err != nil {
		return nil, err
	}

	result := &EmitResult{
		EventID:           ev.ID,
		CorrelationID:     ev.CorrelationID,
		HandlersTriggered: len(handlers) + len(subs),
	}

	if result.HandlersTriggered == 0 {
		if _, err := d.logSvc.Complete(ctx, ev.ID, ev.TriggeredAt); err != nil {
			return nil, err
		}
		return result, nil
	}

	if req.Sync {
		// Handlers registered async stay on the queue even for a sync emit;
		// only the rest block the caller.
		var inline, deferred []*listener.Handler
		for _, h := range handlers {
			if h.IsAsync {
				deferred = append(deferred, h)
			} else {
				inline = append(inline, h)
			}
		}
		result.Results = d.runInline(ctx, ev, inline, subs, len(deferred) > 0)
		for _, out := range result.Results {
			if !out.Success {
				// The sync failure settled the event; nothing to queue.
				return result, nil
			}
		}
		if len(deferred) > 0 {
			if err := d.enqueue(ctx, ev, deferred, nil); err != nil {
				return nil, err
			}
			result.Queued = len(deferred)
		}
		return result, nil
	}

	if err := d.enqueue(ctx, ev, handlers, subs); err != nil {
		return nil, err
	}
	result.Queued = result.HandlersTriggered
	return result, nil
}

// runInline executes every matched target in priority order, one attempt
// each. Failures are isolated per target; the event completes only when all
// targets succeeded. With deferred targets outstanding, a clean inline pass
// leaves the event pending for the queue to finalize.
func (d *Dispatcher) runInline(ctx context.Context, ev *eventlog.Event, handlers []*listener.Handler, subs []*subscription.Subscription, hasDeferred bool) []*Outcome {
	outcomes := make([]*Outcome, 0, len(handlers)+len(subs))
	var failures []string

	for _, h := range handlers {
		out := d.executor.ExecuteHandler(ctx, ev, h, 1)
		outcomes = append(outcomes, out)
		if !out.Success {
			failures = append(failures, out.TargetName+": "+out.Error)
		}
	}
	for _, sub := range subs {
		out := d.executor.ExecuteWebhook(ctx, ev, sub, 1)
		outcomes = append(outcomes, out)
		if !out.Success {
			failures = append(failures, out.TargetName+": "+out.Error)
		}
	}

	var err error
	switch {
	case len(failures) > 0:
		_, err = d.logSvc.Fail(ctx, ev.ID, ev.TriggeredAt, failures)
	case !hasDeferred:
		_, err = d.logSvc.Complete(ctx, ev.ID, ev.TriggeredAt)
	}
	if err != nil {
		d.log.Error().Err(err).Str("event_id", ev.ID.String()).Msg("failed to finalize sync event")
	}
	return outcomes
}

func (d *Dispatcher) enqueue(ctx context.Context, ev *eventlog.Event, handlers []*listener.Handler, subs []*subscription.Subscription) error {
	jobs := make([]Job, 0, len(handlers)+len(subs))
	for _, h := range handlers {
		jobs = append(jobs, Job{
			EventID:    ev.ID,
			TargetKind: eventlog.TargetHandler,
			TargetID:   h.ID,
			TargetName: h.HandlerName,
			RetryCount: h.RetryCount,
			TimeoutMs:  h.TimeoutMs,
		})
	}
	for _, sub := range subs {
		jobs = append(jobs, Job{
			EventID:    ev.ID,
			TargetKind: eventlog.TargetWebhook,
			TargetID:   sub.ID,
			TargetName: sub.SubscriptionName,
			RetryCount: d.webhookRetries,
			TimeoutMs:  d.webhookTimeoutMs,
		})
	}
	return d.enqueuer.EnqueueJobs(ctx, jobs)
}
