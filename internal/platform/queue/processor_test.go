package queue

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/praxismed/eventd/internal/domain/dlq"
	"github.com/praxismed/eventd/internal/domain/eventlog"
	"github.com/praxismed/eventd/internal/domain/listener"
	"github.com/praxismed/eventd/internal/domain/subscription"
	"github.com/praxismed/eventd/internal/platform/bus"
)

// -- In-memory queue repository --

type memQueue struct {
	items map[uuid.UUID]*Item
}

func newMemQueue() *memQueue {
	return &memQueue{items: make(map[uuid.UUID]*Item)}
}

func (m *memQueue) Enqueue(_ context.Context, items []*Item) error {
	for _, it := range items {
		if it.ID == uuid.Nil {
			it.ID = uuid.New()
		}
		if it.Attempt == 0 {
			it.Attempt = 1
		}
		it.Status = StatusPending
		it.NextAttemptAt = time.Now().UTC()
		it.CreatedAt = time.Now().UTC()
		m.items[it.ID] = it
	}
	return nil
}

func (m *memQueue) EnqueueJobs(ctx context.Context, jobs []bus.Job) error {
	items := make([]*Item, 0, len(jobs))
	for _, j := range jobs {
		items = append(items, &Item{
			EventID: j.EventID, TargetKind: j.TargetKind, TargetID: j.TargetID,
			TargetName: j.TargetName, RetryCount: j.RetryCount, TimeoutMs: j.TimeoutMs,
		})
	}
	return m.Enqueue(ctx, items)
}

func (m *memQueue) Claim(_ context.Context, limit int, staleAfter time.Duration) ([]*Item, error) {
	now := time.Now().UTC()
	var claimed []*Item
	for _, it := range m.items {
		if len(claimed) >= limit {
			break
		}
		due := it.Status == StatusPending && !it.NextAttemptAt.After(now)
		stale := it.Status == StatusProcessing && it.LockedAt != nil && now.Sub(*it.LockedAt) > staleAfter
		if due || stale {
			it.Status = StatusProcessing
			locked := now
			it.LockedAt = &locked
			cp := *it
			claimed = append(claimed, &cp)
		}
	}
	return claimed, nil
}

func (m *memQueue) Complete(_ context.Context, id uuid.UUID) error {
	it, ok := m.items[id]
	if !ok {
		return ErrNotFound
	}
	it.Status = StatusCompleted
	it.LockedAt = nil
	return nil
}

func (m *memQueue) Reschedule(_ context.Context, id uuid.UUID, attempt int, next time.Time, lastError string) error {
	it, ok := m.items[id]
	if !ok {
		return ErrNotFound
	}
	it.Status = StatusPending
	it.Attempt = attempt
	it.NextAttemptAt = next
	it.LockedAt = nil
	it.LastError = lastError
	return nil
}

func (m *memQueue) DeadLetter(_ context.Context, id uuid.UUID, lastError string) error {
	it, ok := m.items[id]
	if !ok {
		return ErrNotFound
	}
	it.Status = StatusDeadLetter
	it.LockedAt = nil
	it.LastError = lastError
	return nil
}

func (m *memQueue) CountUnfinishedForEvent(_ context.Context, eventID, exclude uuid.UUID) (int, error) {
	n := 0
	for _, it := range m.items {
		if it.EventID == eventID && it.ID != exclude &&
			(it.Status == StatusPending || it.Status == StatusProcessing) {
			n++
		}
	}
	return n, nil
}

// -- Event log fixture --

type memLog struct {
	events map[uuid.UUID]*eventlog.Event
	execs  []*eventlog.Execution
}

func newMemLog() *memLog {
	return &memLog{events: make(map[uuid.UUID]*eventlog.Event)}
}
func (m *memLog) CreateEvent(_ context.Context, ev *eventlog.Event) error {
	if ev.ID == uuid.Nil {
		ev.ID = uuid.New()
	}
	ev.TriggeredAt = time.Now().UTC()
	if ev.Status == "" {
		ev.Status = eventlog.StatusPending
	}
	m.events[ev.ID] = ev
	return nil
}
func (m *memLog) GetEvent(_ context.Context, id uuid.UUID) (*eventlog.Event, error) {
	ev, ok := m.events[id]
	if !ok {
		return nil, eventlog.ErrNotFound
	}
	return ev, nil
}
func (m *memLog) Search(_ context.Context, _ eventlog.SearchFilter, _, _ int) ([]*eventlog.Event, int, error) {
	return nil, 0, nil
}
func (m *memLog) MarkProcessing(_ context.Context, id uuid.UUID) error {
	if ev, ok := m.events[id]; ok && ev.Status == eventlog.StatusPending {
		ev.Status = eventlog.StatusProcessing
	}
	return nil
}
func (m *memLog) Complete(_ context.Context, id uuid.UUID, at time.Time, d int64) (bool, error) {
	ev, ok := m.events[id]
	if !ok || ev.Status.Terminal() {
		return false, nil
	}
	ev.Status = eventlog.StatusCompleted
	ev.ProcessedAt = &at
	ev.DurationMs = &d
	return true, nil
}
func (m *memLog) Fail(_ context.Context, id uuid.UUID, at time.Time, d int64, errs []string) (bool, error) {
	ev, ok := m.events[id]
	if !ok || ev.Status.Terminal() {
		return false, nil
	}
	ev.Status = eventlog.StatusFailed
	ev.ProcessedAt = &at
	ev.DurationMs = &d
	ev.Errors = append(ev.Errors, errs...)
	return true, nil
}
func (m *memLog) Reopen(_ context.Context, id uuid.UUID) (bool, error) {
	ev, ok := m.events[id]
	if !ok || ev.Status != eventlog.StatusFailed {
		return false, nil
	}
	ev.Status = eventlog.StatusPending
	ev.ProcessedAt = nil
	ev.DurationMs = nil
	return true, nil
}
func (m *memLog) CreateExecution(_ context.Context, ex *eventlog.Execution) error {
	if ex.ID == uuid.Nil {
		ex.ID = uuid.New()
	}
	ex.StartedAt = time.Now().UTC()
	m.execs = append(m.execs, ex)
	return nil
}
func (m *memLog) FinishExecution(_ context.Context, ex *eventlog.Execution) error {
	for i, e := range m.execs {
		if e.ID == ex.ID {
			m.execs[i] = ex
			return nil
		}
	}
	return eventlog.ErrNotFound
}
func (m *memLog) ListExecutions(_ context.Context, eventID uuid.UUID) ([]*eventlog.Execution, error) {
	var r []*eventlog.Execution
	for _, e := range m.execs {
		if e.EventID == eventID {
			r = append(r, e)
		}
	}
	return r, nil
}

// -- Handler / subscription fixtures --

type memHandlers struct {
	handlers map[uuid.UUID]*listener.Handler
}

func (m *memHandlers) Create(_ context.Context, h *listener.Handler) error {
	if h.ID == uuid.Nil {
		h.ID = uuid.New()
	}
	m.handlers[h.ID] = h
	return nil
}
func (m *memHandlers) Get(_ context.Context, id uuid.UUID) (*listener.Handler, error) {
	h, ok := m.handlers[id]
	if !ok {
		return nil, listener.ErrNotFound
	}
	return h, nil
}
func (m *memHandlers) List(_ context.Context, _ string) ([]*listener.Handler, error) { return nil, nil }
func (m *memHandlers) ListActiveForEvent(_ context.Context, _ string) ([]*listener.Handler, error) {
	return nil, nil
}
func (m *memHandlers) Update(_ context.Context, _ *listener.Handler) error    { return nil }
func (m *memHandlers) SetActive(_ context.Context, _ uuid.UUID, _ bool) error { return nil }
func (m *memHandlers) Delete(_ context.Context, _ uuid.UUID) error            { return nil }

type memSubs struct{}

func (memSubs) Create(_ context.Context, _ *subscription.Subscription) error { return nil }
func (memSubs) Get(_ context.Context, _ uuid.UUID) (*subscription.Subscription, error) {
	return nil, subscription.ErrNotFound
}
func (memSubs) List(_ context.Context, _ string, _ bool) ([]*subscription.Subscription, error) {
	return nil, nil
}
func (memSubs) ListActive(_ context.Context) ([]*subscription.Subscription, error) {
	return nil, nil
}
func (memSubs) Update(_ context.Context, _ *subscription.Subscription) error       { return nil }
func (memSubs) Delete(_ context.Context, _ uuid.UUID) error                        { return nil }
func (memSubs) RecordSuccess(_ context.Context, _ uuid.UUID, _ time.Time) error    { return nil }
func (memSubs) RecordFailure(_ context.Context, _ uuid.UUID, _ time.Time) error    { return nil }

// -- DLQ fixture --

type memDLQ struct {
	entries map[uuid.UUID]*dlq.Entry
}

func newMemDLQ() *memDLQ {
	return &memDLQ{entries: make(map[uuid.UUID]*dlq.Entry)}
}
func (m *memDLQ) Create(_ context.Context, e *dlq.Entry) error {
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	m.entries[e.ID] = e
	return nil
}
func (m *memDLQ) Get(_ context.Context, id uuid.UUID) (*dlq.Entry, error) {
	e, ok := m.entries[id]
	if !ok {
		return nil, dlq.ErrNotFound
	}
	return e, nil
}
func (m *memDLQ) List(_ context.Context, _ dlq.Status, _, _ int) ([]*dlq.Entry, int, error) {
	return nil, 0, nil
}
func (m *memDLQ) ExistsForEventTarget(_ context.Context, eventID, targetID uuid.UUID) (bool, error) {
	for _, e := range m.entries {
		if e.EventID == eventID && e.TargetID == targetID {
			return true, nil
		}
	}
	return false, nil
}
func (m *memDLQ) Resolve(_ context.Context, id uuid.UUID, status dlq.Status, reviewer, notes string) error {
	e, ok := m.entries[id]
	if !ok {
		return dlq.ErrNotFound
	}
	if e.Status != dlq.StatusPending {
		return dlq.ErrTerminal
	}
	e.Status = status
	e.Reviewer = reviewer
	e.Notes = notes
	return nil
}
func (m *memDLQ) MarkRetried(_ context.Context, id uuid.UUID, reviewer string) error {
	e, ok := m.entries[id]
	if !ok {
		return dlq.ErrNotFound
	}
	e.Status = dlq.StatusRetried
	e.Reviewer = reviewer
	return nil
}

// -- Fixture wiring --

type procFixture struct {
	proc     *Processor
	queue    *memQueue
	logs     *memLog
	handlers *memHandlers
	registry *listener.Registry
	deadRepo *memDLQ
	deadSvc  *dlq.Service
}

func newProcFixture(t *testing.T) *procFixture {
	t.Helper()
	q := newMemQueue()
	logs := newMemLog()
	handlers := &memHandlers{handlers: make(map[uuid.UUID]*listener.Handler)}
	registry := listener.NewRegistry()
	deadRepo := newMemDLQ()

	listenerSvc := listener.NewService(handlers, registry, zerolog.Nop())
	subSvc := subscription.NewService(memSubs{}, subscription.NewDeliverer(time.Second), zerolog.Nop())
	logSvc := eventlog.NewService(logs)
	deadSvc := dlq.NewService(deadRepo, q, logSvc, zerolog.Nop())
	executor := bus.NewExecutor(listenerSvc, subSvc, logs, zerolog.Nop())

	cfg := Config{
		Workers:      1,
		PollInterval: time.Millisecond,
		BatchSize:    10,
		StaleAfter:   5 * time.Minute,
		Backoff:      Backoff{Base: 0, Max: 0},
	}
	return &procFixture{
		proc:     NewProcessor(cfg, nil, q, executor, listenerSvc, subSvc, logSvc, deadSvc, zerolog.Nop()),
		queue:    q,
		logs:     logs,
		handlers: handlers,
		registry: registry,
		deadRepo: deadRepo,
		deadSvc:  deadSvc,
	}
}

func (f *procFixture) seedEvent(t *testing.T, name string) *eventlog.Event {
	t.Helper()
	ev := &eventlog.Event{EventName: name, Payload: json.RawMessage(`{"id":"a1"}`)}
	if err := f.logs.CreateEvent(context.Background(), ev); err != nil {
		t.Fatal(err)
	}
	return ev
}

func (f *procFixture) seedHandler(t *testing.T, name string, fn listener.Invoker) *listener.Handler {
	t.Helper()
	target := "svc." + name
	f.registry.Bind(target, fn)
	h := &listener.Handler{
		EventName: "appointment.booked", HandlerName: name,
		Service: "svc", Method: name,
		RetryCount: 3, TimeoutMs: 5000, Active: true,
	}
	if err := f.handlers.Create(context.Background(), h); err != nil {
		t.Fatal(err)
	}
	return h
}

func (f *procFixture) enqueue(t *testing.T, ev *eventlog.Event, h *listener.Handler) *Item {
	t.Helper()
	it := &Item{
		EventID: ev.ID, TargetKind: eventlog.TargetHandler,
		TargetID: h.ID, TargetName: h.HandlerName,
		RetryCount: h.RetryCount, TimeoutMs: h.TimeoutMs,
	}
	if err := f.queue.Enqueue(context.Background(), []*Item{it}); err != nil {
		t.Fatal(err)
	}
	return f.queue.items[it.ID]
}

// -- Tests --

func TestProcess_SuccessCompletesEvent(t *testing.T) {
	f := newProcFixture(t)
	ev := f.seedEvent(t, "appointment.booked")
	h := f.seedHandler(t, "confirm", func(_ context.Context, _ json.RawMessage) (json.RawMessage, error) {
		return nil, nil
	})
	it := f.enqueue(t, ev, h)

	if err := f.proc.drainBatch(context.Background()); err != nil {
		t.Fatal(err)
	}
	if it.Status != StatusCompleted {
		t.Errorf("item status = %s, want completed", it.Status)
	}
	if ev.Status != eventlog.StatusCompleted {
		t.Errorf("event status = %s, want completed", ev.Status)
	}
}

func TestProcess_EventCompletesOnlyAfterLastSibling(t *testing.T) {
	f := newProcFixture(t)
	ev := f.seedEvent(t, "appointment.booked")

	blocked := true
	fast := f.seedHandler(t, "fast", func(_ context.Context, _ json.RawMessage) (json.RawMessage, error) {
		return nil, nil
	})
	slow := f.seedHandler(t, "slow", func(_ context.Context, _ json.RawMessage) (json.RawMessage, error) {
		if blocked {
			return nil, errors.New("not yet")
		}
		return nil, nil
	})
	f.enqueue(t, ev, fast)
	slowItem := f.enqueue(t, ev, slow)

	if err := f.proc.drainBatch(context.Background()); err != nil {
		t.Fatal(err)
	}
	if ev.Status.Terminal() {
		t.Fatalf("event status = %s while a sibling is unfinished", ev.Status)
	}
	if slowItem.Attempt != 2 {
		t.Errorf("slow item attempt = %d, want 2 after one failure", slowItem.Attempt)
	}

	blocked = false
	if err := f.proc.drainBatch(context.Background()); err != nil {
		t.Fatal(err)
	}
	if ev.Status != eventlog.StatusCompleted {
		t.Errorf("event status = %s, want completed after last sibling", ev.Status)
	}
}

func TestProcess_RetryExhaustionDeadLetters(t *testing.T) {
	f := newProcFixture(t)
	ev := f.seedEvent(t, "appointment.booked")
	h := f.seedHandler(t, "alwaysfails", func(_ context.Context, _ json.RawMessage) (json.RawMessage, error) {
		return nil, errors.New("boom")
	})
	it := f.enqueue(t, ev, h)

	ctx := context.Background()
	attempts := []int{}
	for pass := 0; pass < 3; pass++ {
		attempts = append(attempts, f.queue.items[it.ID].Attempt)
		if err := f.proc.drainBatch(ctx); err != nil {
			t.Fatal(err)
		}
	}

	// Attempts strictly increase: 1, 2, 3.
	for i, a := range attempts {
		if a != i+1 {
			t.Errorf("attempt sequence = %v, want [1 2 3]", attempts)
			break
		}
	}
	if it.Status != StatusDeadLetter {
		t.Fatalf("item status = %s, want dead_letter", it.Status)
	}
	if ev.Status != eventlog.StatusFailed {
		t.Errorf("event status = %s, want failed", ev.Status)
	}
	if len(f.deadRepo.entries) != 1 {
		t.Fatalf("dead letter entries = %d, want exactly 1", len(f.deadRepo.entries))
	}
	for _, e := range f.deadRepo.entries {
		if e.FailureCount != 3 {
			t.Errorf("failure_count = %d, want 3", e.FailureCount)
		}
	}

	// Re-running the processor does not duplicate the entry.
	if err := f.proc.drainBatch(ctx); err != nil {
		t.Fatal(err)
	}
	if len(f.deadRepo.entries) != 1 {
		t.Errorf("dead letter entries after re-run = %d, want 1", len(f.deadRepo.entries))
	}
}

func TestProcess_DLQRetrySpawnsFreshItem(t *testing.T) {
	f := newProcFixture(t)
	ev := f.seedEvent(t, "appointment.booked")
	broken := true
	h := f.seedHandler(t, "flaky", func(_ context.Context, _ json.RawMessage) (json.RawMessage, error) {
		if broken {
			return nil, errors.New("boom")
		}
		return nil, nil
	})
	f.enqueue(t, ev, h)

	ctx := context.Background()
	for pass := 0; pass < 3; pass++ {
		if err := f.proc.drainBatch(ctx); err != nil {
			t.Fatal(err)
		}
	}
	if ev.Status != eventlog.StatusFailed {
		t.Fatalf("event status = %s, want failed after exhaustion", ev.Status)
	}

	broken = false
	var entryID uuid.UUID
	for id := range f.deadRepo.entries {
		entryID = id
	}
	if _, err := f.deadSvc.Retry(ctx, entryID, "ops"); err != nil {
		t.Fatalf("Retry: %v", err)
	}

	fresh := 0
	for _, qi := range f.queue.items {
		if qi.Status == StatusPending {
			fresh++
			if qi.Attempt != 1 {
				t.Errorf("fresh item attempt = %d, want 1", qi.Attempt)
			}
		}
	}
	if fresh != 1 {
		t.Errorf("fresh pending items = %d, want 1", fresh)
	}

	// Retry reopened the event, so the fresh item executes rather than being
	// discarded against a failed event.
	if ev.Status != eventlog.StatusPending {
		t.Fatalf("event status = %s, want pending after retry", ev.Status)
	}
	if err := f.proc.drainBatch(ctx); err != nil {
		t.Fatal(err)
	}
	if ev.Status != eventlog.StatusCompleted {
		t.Errorf("event status = %s, want completed after redelivery", ev.Status)
	}
}

func TestProcess_TerminalEventDiscardsClaim(t *testing.T) {
	f := newProcFixture(t)
	ev := f.seedEvent(t, "appointment.booked")
	invoked := false
	h := f.seedHandler(t, "confirm", func(_ context.Context, _ json.RawMessage) (json.RawMessage, error) {
		invoked = true
		return nil, nil
	})
	it := f.enqueue(t, ev, h)

	// A sibling (or sync path) already settled the event.
	ev.Status = eventlog.StatusFailed

	if err := f.proc.drainBatch(context.Background()); err != nil {
		t.Fatal(err)
	}
	if invoked {
		t.Error("claim against terminal event must not execute")
	}
	if it.Status != StatusCompleted {
		t.Errorf("item status = %s, want completed (discarded)", it.Status)
	}
}

func TestClaim_ReclaimsStaleProcessing(t *testing.T) {
	f := newProcFixture(t)
	ev := f.seedEvent(t, "appointment.booked")
	h := f.seedHandler(t, "confirm", func(_ context.Context, _ json.RawMessage) (json.RawMessage, error) {
		return nil, nil
	})
	it := f.enqueue(t, ev, h)

	// Simulate a crashed worker: claimed long ago, never finished.
	old := time.Now().UTC().Add(-time.Hour)
	it.Status = StatusProcessing
	it.LockedAt = &old

	claimed, err := f.queue.Claim(context.Background(), 10, 5*time.Minute)
	if err != nil {
		t.Fatal(err)
	}
	if len(claimed) != 1 {
		t.Fatalf("claimed %d items, want stale item reclaimed", len(claimed))
	}
}
