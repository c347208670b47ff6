package bus

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/praxismed/eventd/internal/domain/eventlog"
	"github.com/praxismed/eventd/internal/domain/listener"
	"github.com/praxismed/eventd/internal/domain/subscription"
)

// Outcome is the result of executing one target once.
type Outcome struct {
	Success    bool            `json:"success"`
	TargetName string          `json:"target_name"`
	Error      string          `json:"error,omitempty"`
	Result     json.RawMessage `json:"result,omitempty"`
	DurationMs int64           `json:"duration_ms"`
}

// Executor runs a single (event, target) pair and records the attempt in the
// execution log. It never lets one target's failure escape to its siblings.
type Executor struct {
	listeners *listener.Service
	subs      *subscription.Service
	logRepo   eventlog.Repository
	log       zerolog.Logger
}

func NewExecutor(listeners *listener.Service, subs *subscription.Service, logRepo eventlog.Repository, logger zerolog.Logger) *Executor {
	return &Executor{listeners: listeners, subs: subs, logRepo: logRepo, log: logger}
}

// ExecuteHandler invokes the handler's bound function under its configured
// timeout, recording the attempt.
func (x *Executor) ExecuteHandler(ctx context.Context, ev *eventlog.Event, h *listener.Handler, attempt int) *Outcome {
	out := &Outcome{TargetName: h.HandlerName}
	exec := &eventlog.Execution{
		EventID:       ev.ID,
		TargetKind:    eventlog.TargetHandler,
		HandlerID:     &h.ID,
		TargetName:    h.HandlerName,
		Status:        eventlog.ExecRunning,
		AttemptNumber: attempt,
	}
	if err := x.logRepo.CreateExecution(ctx, exec); err != nil {
		x.log.Error().Err(err).Str("handler", h.HandlerName).Msg("failed to record execution start")
	}

	start := time.Now()
	fn, err := x.listeners.Invoker(h)
	if err != nil {
		out.Error = err.Error()
	} else {
		result, invokeErr := x.invokeWithTimeout(ctx, fn, ev.Payload, time.Duration(h.TimeoutMs)*time.Millisecond)
		if invokeErr != nil {
			out.Error = invokeErr.Error()
		} else {
			out.Success = true
			out.Result = result
		}
	}
	out.DurationMs = time.Since(start).Milliseconds()

	x.finish(ctx, exec, out)
	return out
}

// ExecuteWebhook delivers the event to the subscription endpoint, recording
// the attempt. Delivery accounting on the subscription row is handled inside
// the subscription service.
func (x *Executor) ExecuteWebhook(ctx context.Context, ev *eventlog.Event, sub *subscription.Subscription, attempt int) *Outcome {
	out := &Outcome{TargetName: sub.SubscriptionName}
	exec := &eventlog.Execution{
		EventID:        ev.ID,
		TargetKind:     eventlog.TargetWebhook,
		SubscriptionID: &sub.ID,
		TargetName:     sub.SubscriptionName,
		Status:         eventlog.ExecRunning,
		AttemptNumber:  attempt,
	}
	if err := x.logRepo.CreateExecution(ctx, exec); err != nil {
		x.log.Error().Err(err).Str("subscription", sub.SubscriptionName).Msg("failed to record execution start")
	}

	start := time.Now()
	res := x.subs.Deliver(ctx, sub, subscription.Delivery{
		EventID:       ev.ID,
		EventName:     ev.EventName,
		Payload:       ev.Payload,
		CorrelationID: ev.CorrelationID,
		TriggeredAt:   ev.TriggeredAt,
		Attempt:       attempt,
	})
	out.DurationMs = time.Since(start).Milliseconds()
	out.Success = res.Success
	out.Error = res.Error
	if res.StatusCode != 0 {
		status, _ := json.Marshal(map[string]interface{}{"status_code": res.StatusCode})
		out.Result = status
	}

	x.finish(ctx, exec, out)
	return out
}

// invokeWithTimeout runs fn on its own goroutine and abandons it when the
// deadline passes. The goroutine keeps running; invokers are expected to
// honor ctx cancellation for real cleanup.
func (x *Executor) invokeWithTimeout(ctx context.Context, fn listener.Invoker, payload json.RawMessage, timeout time.Duration) (json.RawMessage, error) {
	if timeout <= 0 {
		return fn(ctx, payload)
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	type reply struct {
		result json.RawMessage
		err    error
	}
	done := make(chan reply, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- reply{err: fmt.Errorf("handler panic: %v", r)}
			}
		}()
		result, err := fn(ctx, payload)
		done <- reply{result: result, err: err}
	}()

	select {
	case r := <-done:
		return r.result, r.err
	case <-ctx.Done():
		return nil, fmt.Errorf("handler timed out after %s", timeout)
	}
}

func (x *Executor) finish(ctx context.Context, exec *eventlog.Execution, out *Outcome) {
	now := time.Now().UTC()
	exec.CompletedAt = &now
	exec.DurationMs = &out.DurationMs
	exec.Result = out.Result
	exec.Error = out.Error
	if out.Success {
		exec.Status = eventlog.ExecSucceeded
	} else {
		exec.Status = eventlog.ExecFailed
	}
	if err := x.logRepo.FinishExecution(ctx, exec); err != nil {
		x.log.Error().Err(err).Str("target", exec.TargetName).Msg("failed to record execution result")
	}
}
