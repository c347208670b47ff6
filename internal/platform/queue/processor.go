package queue

import (
	"context"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"github.com/praxismed/eventd/internal/domain/dlq"
	"github.com/praxismed/eventd/internal/domain/eventlog"
	"github.com/praxismed/eventd/internal/domain/listener"
	"github.com/praxismed/eventd/internal/domain/subscription"
	"github.com/praxismed/eventd/internal/platform/bus"
	"github.com/praxismed/eventd/internal/platform/db"
)

// Config tunes the worker pool.
type Config struct {
	Workers      int
	PollInterval time.Duration
	BatchSize    int
	StaleAfter   time.Duration
	Backoff      Backoff
}

// Processor drains the queue across all tenant schemas. Workers coordinate
// purely through the claim update, so multiple processes can run the same
// loop against one database.
type Processor struct {
	cfg       Config
	pool      *pgxpool.Pool
	repo      Repository
	executor  *bus.Executor
	listeners *listener.Service
	subs      *subscription.Service
	logSvc    *eventlog.Service
	deadSvc   *dlq.Service
	log       zerolog.Logger
}

func NewProcessor(cfg Config, pool *pgxpool.Pool, repo Repository, executor *bus.Executor,
	listeners *listener.Service, subs *subscription.Service,
	logSvc *eventlog.Service, deadSvc *dlq.Service, logger zerolog.Logger) *Processor {
	return &Processor{
		cfg:       cfg,
		pool:      pool,
		repo:      repo,
		executor:  executor,
		listeners: listeners,
		subs:      subs,
		logSvc:    logSvc,
		deadSvc:   deadSvc,
		log:       logger,
	}
}

// Start runs the worker pool until ctx is cancelled.
func (p *Processor) Start(ctx context.Context) {
	var wg sync.WaitGroup
	for i := 0; i < p.cfg.Workers; i++ {
		wg.Add(1)
		go func(worker int) {
			defer wg.Done()
			p.run(ctx, worker)
		}(i)
	}
	wg.Wait()
}

func (p *Processor) run(ctx context.Context, worker int) {
	ticker := time.NewTicker(p.cfg.PollInterval)
	defer ticker.Stop()

	p.log.Info().Int("worker", worker).Dur("poll_interval", p.cfg.PollInterval).
		Msg("queue worker started")
	for {
		select {
		case <-ctx.Done():
			p.log.Info().Int("worker", worker).Msg("queue worker stopping")
			return
		case <-ticker.C:
			if err := p.ProcessOnce(ctx); err != nil {
				p.log.Error().Err(err).Int("worker", worker).Msg("queue pass failed")
			}
		}
	}
}

// ProcessOnce walks every tenant schema and drains one batch from each.
func (p *Processor) ProcessOnce(ctx context.Context) error {
	schemas, err := db.ListTenantSchemas(ctx, p.pool)
	if err != nil {
		return err
	}
	for _, schema := range schemas {
		if err := p.processTenant(ctx, schema); err != nil {
			p.log.Error().Err(err).Str("schema", schema).Msg("tenant queue pass failed")
		}
	}
	return nil
}

func (p *Processor) processTenant(ctx context.Context, schema string) error {
	conn, err := p.pool.Acquire(ctx)
	if err != nil {
		return err
	}
	defer conn.Release()

	if err := db.SetSearchPath(ctx, conn, schema); err != nil {
		return err
	}
	ctx = db.WithConn(ctx, conn)
	ctx = db.WithTenant(ctx, db.TenantFromSchema(schema))
	return p.drainBatch(ctx)
}

// drainBatch claims and processes one batch in the current tenant context.
func (p *Processor) drainBatch(ctx context.Context) error {
	items, err := p.repo.Claim(ctx, p.cfg.BatchSize, p.cfg.StaleAfter)
	if err != nil {
		return err
	}
	for _, item := range items {
		p.processItem(ctx, item)
	}
	return nil
}

// processItem executes one claimed item. All failures are recorded, never
// propagated; one bad item cannot take down the loop.
func (p *Processor) processItem(ctx context.Context, item *Item) {
	ev, err := p.logSvc.Get(ctx, item.EventID)
	if err != nil {
		p.log.Error().Err(err).Str("item_id", item.ID.String()).Msg("queue item references missing event")
		p.deadLetter(ctx, item, nil, "event not found")
		return
	}

	// A terminal event means a sibling already settled it; the claim is
	// discarded without execution.
	if ev.Status.Terminal() {
		if err := p.repo.Complete(ctx, item.ID); err != nil {
			p.log.Error().Err(err).Str("item_id", item.ID.String()).Msg("failed to discard stale claim")
		}
		return
	}

	if err := p.logSvc.MarkProcessing(ctx, ev.ID); err != nil {
		p.log.Error().Err(err).Str("event_id", ev.ID.String()).Msg("failed to mark event processing")
	}

	out := p.execute(ctx, ev, item)
	if out.Success {
		p.succeed(ctx, item, ev)
		return
	}
	p.fail(ctx, item, ev, out.Error)
}

func (p *Processor) execute(ctx context.Context, ev *eventlog.Event, item *Item) *bus.Outcome {
	switch item.TargetKind {
	case eventlog.TargetHandler:
		h, err := p.listeners.Get(ctx, item.TargetID)
		if err != nil {
			return &bus.Outcome{TargetName: item.TargetName, Error: "handler not found: " + err.Error()}
		}
		if item.TimeoutMs > 0 {
			h.TimeoutMs = item.TimeoutMs
		}
		return p.executor.ExecuteHandler(ctx, ev, h, item.Attempt)
	case eventlog.TargetWebhook:
		sub, err := p.subs.Get(ctx, item.TargetID)
		if err != nil {
			return &bus.Outcome{TargetName: item.TargetName, Error: "subscription not found: " + err.Error()}
		}
		return p.executor.ExecuteWebhook(ctx, ev, sub, item.Attempt)
	default:
		return &bus.Outcome{TargetName: item.TargetName, Error: "unknown target kind: " + item.TargetKind}
	}
}

func (p *Processor) succeed(ctx context.Context, item *Item, ev *eventlog.Event) {
	if err := p.repo.Complete(ctx, item.ID); err != nil {
		p.log.Error().Err(err).Str("item_id", item.ID.String()).Msg("failed to complete item")
		return
	}
	remaining, err := p.repo.CountUnfinishedForEvent(ctx, ev.ID, item.ID)
	if err != nil {
		p.log.Error().Err(err).Str("event_id", ev.ID.String()).Msg("failed to count siblings")
		return
	}
	if remaining == 0 {
		if _, err := p.logSvc.Complete(ctx, ev.ID, ev.TriggeredAt); err != nil {
			p.log.Error().Err(err).Str("event_id", ev.ID.String()).Msg("failed to complete event")
		}
	}
}

func (p *Processor) fail(ctx context.Context, item *Item, ev *eventlog.Event, errMsg string) {
	if !item.Exhausted() {
		next := time.Now().UTC().Add(p.cfg.Backoff.Delay(item.Attempt + 1))
		if err := p.repo.Reschedule(ctx, item.ID, item.Attempt+1, next, errMsg); err != nil {
			p.log.Error().Err(err).Str("item_id", item.ID.String()).Msg("failed to reschedule item")
		}
		p.log.Warn().Str("target", item.TargetName).Int("attempt", item.Attempt).
			Time("next_attempt_at", next).Str("error", errMsg).Msg("delivery failed, retrying")
		return
	}
	p.deadLetter(ctx, item, ev, errMsg)
}

// deadLetter promotes an exhausted item: one DLQ entry, item dead_letter,
// event failed.
func (p *Processor) deadLetter(ctx context.Context, item *Item, ev *eventlog.Event, errMsg string) {
	if err := p.repo.DeadLetter(ctx, item.ID, errMsg); err != nil {
		p.log.Error().Err(err).Str("item_id", item.ID.String()).Msg("failed to dead-letter item")
		return
	}
	if ev == nil {
		return
	}

	entry := dlq.NewEntry(ev.ID, ev.EventName, ev.Payload, bus.Job{
		TargetKind: item.TargetKind,
		TargetID:   item.TargetID,
		TargetName: item.TargetName,
		RetryCount: item.RetryCount,
		TimeoutMs:  item.TimeoutMs,
	}, errMsg, item.Attempt, item.CreatedAt)
	if err := p.deadSvc.Record(ctx, entry); err != nil {
		p.log.Error().Err(err).Str("event_id", ev.ID.String()).Msg("failed to record dead letter entry")
	}

	if _, err := p.logSvc.Fail(ctx, ev.ID, ev.TriggeredAt, []string{item.TargetName + ": " + errMsg}); err != nil {
		p.log.Error().Err(err).Str("event_id", ev.ID.String()).Msg("failed to fail event")
	}
	p.log.Error().Str("target", item.TargetName).Str("event", ev.EventName).
		Int("attempts", item.Attempt).Msg("delivery exhausted, moved to dead letter queue")
}
