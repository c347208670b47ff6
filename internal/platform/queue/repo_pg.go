package queue

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/praxismed/eventd/internal/platform/bus"
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

const itemCols = `id, event_id, target_kind, target_id, target_name, attempt,
	retry_count, timeout_ms, status, next_attempt_at, locked_at, completed_at, last_error, created_at`

func scanItem(row pgx.Row) (*Item, error) {
	var it Item
	err := row.Scan(
		&it.ID, &it.EventID, &it.TargetKind, &it.TargetID, &it.TargetName, &it.Attempt,
		&it.RetryCount, &it.TimeoutMs, &it.Status, &it.NextAttemptAt, &it.LockedAt, &it.CompletedAt, &it.LastError, &it.CreatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	return &it, err
}

// Enqueue implements bus.Enqueuer by inserting one pending item per job.
func (r *RepoPG) EnqueueJobs(ctx context.Context, jobs []bus.Job) error {
	items := make([]*Item, 0, len(jobs))
	for _, j := range jobs {
		items = append(items, &Item{
			EventID:    j.EventID,
			TargetKind: j.TargetKind,
			TargetID:   j.TargetID,
			TargetName: j.TargetName,
			Attempt:    1,
			RetryCount: j.RetryCount,
			TimeoutMs:  j.TimeoutMs,
		})
	}
	return r.Enqueue(ctx, items)
}

func (r *RepoPG) Enqueue(ctx context.Context, items []*Item) error {
	for _, it := range items {
		if it.ID == uuid.Nil {
			it.ID = uuid.New()
		}
		if it.Attempt == 0 {
			it.Attempt = 1
		}
		q := fmt.Sprintf(`INSERT INTO event_queue (%s)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, NOW(), NULL, NULL, '', NOW())
			RETURNING next_attempt_at, created_at`, itemCols)
		err := r.conn(ctx).QueryRow(ctx, q,
			it.ID, it.EventID, it.TargetKind, it.TargetID, it.TargetName, it.Attempt,
			it.RetryCount, it.TimeoutMs, StatusPending,
		).Scan(&it.NextAttemptAt, &it.CreatedAt)
		if err != nil {
			return fmt.Errorf("enqueue item: %w", err)
		}
	}
	return nil
}

// Claim grabs due pending items plus abandoned processing items. FOR UPDATE
// SKIP LOCKED keeps concurrent workers from blocking on each other's batch.
func (r *RepoPG) Claim(ctx context.Context, limit int, staleAfter time.Duration) ([]*Item, error) {
	q := fmt.Sprintf(`UPDATE event_queue
		SET status = $1, locked_at = NOW()
		WHERE id IN (
			SELECT id FROM event_queue
			WHERE (status = $2 AND next_attempt_at <= NOW())
			   OR (status = $1 AND locked_at < NOW() - $3::interval)
			ORDER BY next_attempt_at
			LIMIT $4
			FOR UPDATE SKIP LOCKED
		)
		RETURNING %s`, itemCols)
	interval := fmt.Sprintf("%f seconds", staleAfter.Seconds())
	rows, err := r.conn(ctx).Query(ctx, q, StatusProcessing, StatusPending, interval, limit)
	if err != nil {
		return nil, fmt.Errorf("claim items: %w", err)
	}
	defer rows.Close()

	var items []*Item
	for rows.Next() {
		it, err := scanItem(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, it)
	}
	return items, rows.Err()
}

func (r *RepoPG) Complete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.conn(ctx).Exec(ctx,
		"UPDATE event_queue SET status = $2, locked_at = NULL, completed_at = NOW() WHERE id = $1",
		id, StatusCompleted)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *RepoPG) Reschedule(ctx context.Context, id uuid.UUID, attempt int, nextAttemptAt time.Time, lastError string) error {
	tag, err := r.conn(ctx).Exec(ctx,
		`UPDATE event_queue
		 SET status = $2, attempt = $3, next_attempt_at = $4, locked_at = NULL, last_error = $5
		 WHERE id = $1`,
		id, StatusPending, attempt, nextAttemptAt, lastError)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *RepoPG) DeadLetter(ctx context.Context, id uuid.UUID, lastError string) error {
	tag, err := r.conn(ctx).Exec(ctx,
		"UPDATE event_queue SET status = $2, locked_at = NULL, last_error = $3 WHERE id = $1",
		id, StatusDeadLetter, lastError)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *RepoPG) CountUnfinishedForEvent(ctx context.Context, eventID, excludeItem uuid.UUID) (int, error) {
	var n int
	err := r.conn(ctx).QueryRow(ctx,
		`SELECT COUNT(*) FROM event_queue
		 WHERE event_id = $1 AND id <> $2 AND status IN ($3, $4)`,
		eventID, excludeItem, StatusPending, StatusProcessing).Scan(&n)
	return n, err
}
