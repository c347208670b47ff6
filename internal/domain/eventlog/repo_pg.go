package eventlog

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/praxismed/eventd/internal/platform/db"
)

type queryable interface {
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
}

type RepoPG struct {
	pool *pgxpool.Pool
}

func NewRepoPG(pool *pgxpool.Pool) *RepoPG {
	return &RepoPG{pool: pool}
}

func (r *RepoPG) conn(ctx context.Context) queryable {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	if c := db.ConnFromContext(ctx); c != nil {
		return c
	}
	return r.pool
}

const eventCols = `id, tenant_id, event_name, payload, source_service, source_user_id,
	entity_type, entity_id, correlation_id, status, triggered_at, processed_at,
	duration_ms, errors, metadata`

func scanEvent(row pgx.Row) (*Event, error) {
	var ev Event
	err := row.Scan(
		&ev.ID, &ev.TenantID, &ev.EventName, &ev.Payload, &ev.SourceService, &ev.SourceUserID,
		&ev.EntityType, &ev.EntityID, &ev.CorrelationID, &ev.Status, &ev.TriggeredAt, &ev.ProcessedAt,
		&ev.DurationMs, &ev.Errors, &ev.Metadata,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	return &ev, err
}

func (r *RepoPG) CreateEvent(ctx context.Context, ev *Event) error {
	if ev.ID == uuid.Nil {
		ev.ID = uuid.New()
	}
	q := fmt.Sprintf(`INSERT INTO event_log (%s)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, NOW(), $11, $12, $13, $14)
		RETURNING triggered_at`, eventCols)
	err := r.conn(ctx).QueryRow(ctx, q,
		ev.ID, ev.TenantID, ev.EventName, ev.Payload, ev.SourceService, ev.SourceUserID,
		ev.EntityType, ev.EntityID, ev.CorrelationID, ev.Status, ev.ProcessedAt,
		ev.DurationMs, ev.Errors, ev.Metadata,
	).Scan(&ev.TriggeredAt)
	if err != nil {
		return fmt.Errorf("insert event: %w", err)
	}
	return nil
}

func (r *RepoPG) GetEvent(ctx context.Context, id uuid.UUID) (*Event, error) {
	q := fmt.Sprintf("SELECT %s FROM event_log WHERE id = $1", eventCols)
	return scanEvent(r.conn(ctx).QueryRow(ctx, q, id))
}

func (r *RepoPG) Search(ctx context.Context, filter SearchFilter, limit, offset int) ([]*Event, int, error) {
	where := []string{}
	args := []interface{}{}
	idx := 1

	add := func(clause string, val interface{}) {
		where = append(where, fmt.Sprintf(clause, idx))
		args = append(args, val)
		idx++
	}

	if filter.EventName != "" {
		add("event_name = $%d", filter.EventName)
	}
	if filter.Status != "" {
		add("status = $%d", filter.Status)
	}
	if filter.StartDate != nil {
		add("triggered_at >= $%d", *filter.StartDate)
	}
	if filter.EndDate != nil {
		add("triggered_at <= $%d", *filter.EndDate)
	}
	if filter.EntityType != "" {
		add("entity_type = $%d", filter.EntityType)
	}
	if filter.EntityID != "" {
		add("entity_id = $%d", filter.EntityID)
	}

	whereClause := ""
	if len(where) > 0 {
		whereClause = "WHERE " + strings.Join(where, " AND ")
	}

	countQ := fmt.Sprintf("SELECT COUNT(*) FROM event_log %s", whereClause)
	var total int
	if err := r.conn(ctx).QueryRow(ctx, countQ, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	q := fmt.Sprintf("SELECT %s FROM event_log %s ORDER BY triggered_at DESC LIMIT $%d OFFSET $%d",
		eventCols, whereClause, idx, idx+1)
	args = append(args, limit, offset)

	rows, err := r.conn(ctx).Query(ctx, q, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var items []*Event
	for rows.Next() {
		ev, err := scanEvent(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, ev)
	}
	return items, total, rows.Err()
}

func (r *RepoPG) MarkProcessing(ctx context.Context, id uuid.UUID) error {
	_, err := r.conn(ctx).Exec(ctx,
		"UPDATE event_log SET status = $2 WHERE id = $1 AND status = $3",
		id, StatusProcessing, StatusPending)
	return err
}

func (r *RepoPG) Complete(ctx context.Context, id uuid.UUID, processedAt time.Time, durationMs int64) (bool, error) {
	tag, err := r.conn(ctx).Exec(ctx,
		`UPDATE event_log SET status = $2, processed_at = $3, duration_ms = $4
		 WHERE id = $1 AND status IN ($5, $6)`,
		id, StatusCompleted, processedAt, durationMs, StatusPending, StatusProcessing)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

func (r *RepoPG) Fail(ctx context.Context, id uuid.UUID, processedAt time.Time, durationMs int64, errs []string) (bool, error) {
	tag, err := r.conn(ctx).Exec(ctx,
		`UPDATE event_log
		 SET status = $2, processed_at = $3, duration_ms = $4, errors = errors || $5
		 WHERE id = $1 AND status IN ($6, $7)`,
		id, StatusFailed, processedAt, durationMs, errs, StatusPending, StatusProcessing)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

func (r *RepoPG) Reopen(ctx context.Context, id uuid.UUID) (bool, error) {
	tag, err := r.conn(ctx).Exec(ctx,
		`UPDATE event_log SET status = $2, processed_at = NULL, duration_ms = NULL
		 WHERE id = $1 AND status = $3`,
		id, StatusPending, StatusFailed)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

const execCols = `id, event_id, target_kind, handler_id, subscription_id, target_name,
	status, attempt_number, started_at, completed_at, duration_ms, result, error`

func scanExecution(row pgx.Row) (*Execution, error) {
	var ex Execution
	err := row.Scan(
		&ex.ID, &ex.EventID, &ex.TargetKind, &ex.HandlerID, &ex.SubscriptionID, &ex.TargetName,
		&ex.Status, &ex.AttemptNumber, &ex.StartedAt, &ex.CompletedAt, &ex.DurationMs, &ex.Result, &ex.Error,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	return &ex, err
}

func (r *RepoPG) CreateExecution(ctx context.Context, ex *Execution) error {
	if ex.ID == uuid.Nil {
		ex.ID = uuid.New()
	}
	q := fmt.Sprintf(`INSERT INTO event_handler_executions (%s)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, NOW(), $9, $10, $11, $12)
		RETURNING started_at`, execCols)
	err := r.conn(ctx).QueryRow(ctx, q,
		ex.ID, ex.EventID, ex.TargetKind, ex.HandlerID, ex.SubscriptionID, ex.TargetName,
		ex.Status, ex.AttemptNumber, ex.CompletedAt, ex.DurationMs, ex.Result, ex.Error,
	).Scan(&ex.StartedAt)
	if err != nil {
		return fmt.Errorf("insert execution: %w", err)
	}
	return nil
}

func (r *RepoPG) FinishExecution(ctx context.Context, ex *Execution) error {
	_, err := r.conn(ctx).Exec(ctx,
		`UPDATE event_handler_executions
		 SET status = $2, completed_at = $3, duration_ms = $4, result = $5, error = $6
		 WHERE id = $1`,
		ex.ID, ex.Status, ex.CompletedAt, ex.DurationMs, ex.Result, ex.Error)
	if err != nil {
		return fmt.Errorf("finish execution: %w", err)
	}
	return nil
}

func (r *RepoPG) ListExecutions(ctx context.Context, eventID uuid.UUID) ([]*Execution, error) {
	q := fmt.Sprintf(`SELECT %s FROM event_handler_executions
		WHERE event_id = $1 ORDER BY started_at, attempt_number`, execCols)
	rows, err := r.conn(ctx).Query(ctx, q, eventID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []*Execution
	for rows.Next() {
		ex, err := scanExecution(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, ex)
	}
	return items, rows.Err()
}
