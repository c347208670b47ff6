package listener

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

const handlerCols = `id, event_name, handler_name, service, method, priority,
	is_async, retry_count, timeout_ms, condition, active, created_at, updated_at`

func scanHandler(row pgx.Row) (*Handler, error) {
	var h Handler
	err := row.Scan(
		&h.ID, &h.EventName, &h.HandlerName, &h.Service, &h.Method, &h.Priority,
		&h.IsAsync, &h.RetryCount, &h.TimeoutMs, &h.Condition, &h.Active, &h.CreatedAt, &h.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	return &h, err
}

func (r *RepoPG) Create(ctx context.Context, h *Handler) error {
	if h.ID == uuid.Nil {
		h.ID = uuid.New()
	}
	q := fmt.Sprintf(`INSERT INTO event_handlers (%s)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, NOW(), NOW())
		RETURNING created_at, updated_at`, handlerCols)
	err := r.conn(ctx).QueryRow(ctx, q,
		h.ID, h.EventName, h.HandlerName, h.Service, h.Method, h.Priority,
		h.IsAsync, h.RetryCount, h.TimeoutMs, h.Condition, h.Active,
	).Scan(&h.CreatedAt, &h.UpdatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return ErrDuplicate
		}
		return fmt.Errorf("insert handler: %w", err)
	}
	return nil
}

func (r *RepoPG) Get(ctx context.Context, id uuid.UUID) (*Handler, error) {
	q := fmt.Sprintf("SELECT %s FROM event_handlers WHERE id = $1", handlerCols)
	return scanHandler(r.conn(ctx).QueryRow(ctx, q, id))
}

func (r *RepoPG) List(ctx context.Context, eventName string) ([]*Handler, error) {
	q := fmt.Sprintf("SELECT %s FROM event_handlers", handlerCols)
	args := []interface{}{}
	if eventName != "" {
		q += " WHERE event_name = $1"
		args = append(args, eventName)
	}
	q += " ORDER BY event_name, priority, handler_name"
	return r.queryHandlers(ctx, q, args...)
}

func (r *RepoPG) ListActiveForEvent(ctx context.Context, eventName string) ([]*Handler, error) {
	q := fmt.Sprintf(`SELECT %s FROM event_handlers
		WHERE event_name = $1 AND active ORDER BY priority, handler_name`, handlerCols)
	return r.queryHandlers(ctx, q, eventName)
}

func (r *RepoPG) queryHandlers(ctx context.Context, q string, args ...interface{}) ([]*Handler, error) {
	rows, err := r.conn(ctx).Query(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []*Handler
	for rows.Next() {
		h, err := scanHandler(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, h)
	}
	return items, rows.Err()
}

func (r *RepoPG) Update(ctx context.Context, h *Handler) error {
	tag, err := r.conn(ctx).Exec(ctx,
		`UPDATE event_handlers
		 SET event_name = $2, handler_name = $3, service = $4, method = $5,
		     priority = $6, is_async = $7, retry_count = $8, timeout_ms = $9,
		     condition = $10, active = $11, updated_at = NOW()
		 WHERE id = $1`,
		h.ID, h.EventName, h.HandlerName, h.Service, h.Method,
		h.Priority, h.IsAsync, h.RetryCount, h.TimeoutMs, h.Condition, h.Active)
	if err != nil {
		return fmt.Errorf("update handler: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *RepoPG) SetActive(ctx context.Context, id uuid.UUID, active bool) error {
	tag, err := r.conn(ctx).Exec(ctx,
		"UPDATE event_handlers SET active = $2, updated_at = NOW() WHERE id = $1",
		id, active)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *RepoPG) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.conn(ctx).Exec(ctx, "DELETE FROM event_handlers WHERE id = $1", id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
