package dlq

import (
	"context"
	"errors"
	"fmt"

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

const entryCols = `id, event_id, event_name, payload, target_kind, target_id, target_name,
	retry_count, timeout_ms, error_message, failure_count, first_failed_at, last_failed_at,
	status, reviewer, notes, created_at`

func scanEntry(row pgx.Row) (*Entry, error) {
	var e Entry
	err := row.Scan(
		&e.ID, &e.EventID, &e.EventName, &e.Payload, &e.TargetKind, &e.TargetID, &e.TargetName,
		&e.RetryCount, &e.TimeoutMs, &e.ErrorMessage, &e.FailureCount, &e.FirstFailedAt, &e.LastFailedAt,
		&e.Status, &e.Reviewer, &e.Notes, &e.CreatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	return &e, err
}

func (r *RepoPG) Create(ctx context.Context, e *Entry) error {
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	q := fmt.Sprintf(`INSERT INTO event_dead_letter_queue (%s)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, NOW())
		RETURNING created_at`, entryCols)
	err := r.conn(ctx).QueryRow(ctx, q,
		e.ID, e.EventID, e.EventName, e.Payload, e.TargetKind, e.TargetID, e.TargetName,
		e.RetryCount, e.TimeoutMs, e.ErrorMessage, e.FailureCount, e.FirstFailedAt, e.LastFailedAt,
		e.Status, e.Reviewer, e.Notes,
	).Scan(&e.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert dead letter entry: %w", err)
	}
	return nil
}

func (r *RepoPG) Get(ctx context.Context, id uuid.UUID) (*Entry, error) {
	q := fmt.Sprintf("SELECT %s FROM event_dead_letter_queue WHERE id = $1", entryCols)
	return scanEntry(r.conn(ctx).QueryRow(ctx, q, id))
}

func (r *RepoPG) List(ctx context.Context, status Status, limit, offset int) ([]*Entry, int, error) {
	where := ""
	args := []interface{}{}
	if status != "" {
		where = "WHERE status = $1"
		args = append(args, status)
	}

	var total int
	countQ := fmt.Sprintf("SELECT COUNT(*) FROM event_dead_letter_queue %s", where)
	if err := r.conn(ctx).QueryRow(ctx, countQ, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	q := fmt.Sprintf(`SELECT %s FROM event_dead_letter_queue %s
		ORDER BY last_failed_at DESC LIMIT $%d OFFSET $%d`,
		entryCols, where, len(args)+1, len(args)+2)
	args = append(args, limit, offset)

	rows, err := r.conn(ctx).Query(ctx, q, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var items []*Entry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, e)
	}
	return items, total, rows.Err()
}

func (r *RepoPG) ExistsForEventTarget(ctx context.Context, eventID, targetID uuid.UUID) (bool, error) {
	var exists bool
	err := r.conn(ctx).QueryRow(ctx,
		"SELECT EXISTS(SELECT 1 FROM event_dead_letter_queue WHERE event_id = $1 AND target_id = $2)",
		eventID, targetID).Scan(&exists)
	return exists, err
}

func (r *RepoPG) Resolve(ctx context.Context, id uuid.UUID, status Status, reviewer, notes string) error {
	tag, err := r.conn(ctx).Exec(ctx,
		`UPDATE event_dead_letter_queue
		 SET status = $2, reviewer = $3, notes = $4
		 WHERE id = $1 AND status = $5`,
		id, status, reviewer, notes, StatusPending)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		// Distinguish missing from already-resolved.
		if _, err := r.Get(ctx, id); err != nil {
			return err
		}
		return ErrTerminal
	}
	return nil
}

func (r *RepoPG) MarkRetried(ctx context.Context, id uuid.UUID, reviewer string) error {
	tag, err := r.conn(ctx).Exec(ctx,
		"UPDATE event_dead_letter_queue SET status = $2, reviewer = $3 WHERE id = $1",
		id, StatusRetried, reviewer)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
