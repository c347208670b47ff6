package subscription

import (
	"context"
	"errors"
	"fmt"
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

const subCols = `id, subscription_name, event_name, webhook_url, secret_key, headers,
	active, last_triggered_at, last_success_at, failure_count, created_at, updated_at`

func scanSub(row pgx.Row) (*Subscription, error) {
	var s Subscription
	err := row.Scan(
		&s.ID, &s.SubscriptionName, &s.EventName, &s.WebhookURL, &s.SecretKey, &s.Headers,
		&s.Active, &s.LastTriggeredAt, &s.LastSuccessAt, &s.FailureCount, &s.CreatedAt, &s.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	return &s, err
}

func (r *RepoPG) Create(ctx context.Context, sub *Subscription) error {
	if sub.ID == uuid.Nil {
		sub.ID = uuid.New()
	}
	q := fmt.Sprintf(`INSERT INTO event_subscriptions (%s)
		VALUES ($1, $2, $3, $4, $5, $6, $7, NULL, NULL, 0, NOW(), NOW())
		RETURNING created_at, updated_at`, subCols)
	err := r.conn(ctx).QueryRow(ctx, q,
		sub.ID, sub.SubscriptionName, sub.EventName, sub.WebhookURL, sub.SecretKey,
		sub.Headers, sub.Active,
	).Scan(&sub.CreatedAt, &sub.UpdatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return ErrDuplicateName
		}
		return fmt.Errorf("insert subscription: %w", err)
	}
	return nil
}

func (r *RepoPG) Get(ctx context.Context, id uuid.UUID) (*Subscription, error) {
	q := fmt.Sprintf("SELECT %s FROM event_subscriptions WHERE id = $1", subCols)
	return scanSub(r.conn(ctx).QueryRow(ctx, q, id))
}

func (r *RepoPG) List(ctx context.Context, eventName string, activeOnly bool) ([]*Subscription, error) {
	q := fmt.Sprintf("SELECT %s FROM event_subscriptions WHERE 1=1", subCols)
	args := []interface{}{}
	if eventName != "" {
		args = append(args, eventName)
		q += fmt.Sprintf(" AND event_name = $%d", len(args))
	}
	if activeOnly {
		q += " AND active"
	}
	q += " ORDER BY subscription_name"
	return r.querySubs(ctx, q, args...)
}

func (r *RepoPG) ListActive(ctx context.Context) ([]*Subscription, error) {
	q := fmt.Sprintf("SELECT %s FROM event_subscriptions WHERE active ORDER BY subscription_name", subCols)
	return r.querySubs(ctx, q)
}

func (r *RepoPG) querySubs(ctx context.Context, q string, args ...interface{}) ([]*Subscription, error) {
	rows, err := r.conn(ctx).Query(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []*Subscription
	for rows.Next() {
		s, err := scanSub(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, s)
	}
	return items, rows.Err()
}

func (r *RepoPG) Update(ctx context.Context, sub *Subscription) error {
	tag, err := r.conn(ctx).Exec(ctx,
		`UPDATE event_subscriptions
		 SET subscription_name = $2, event_name = $3, webhook_url = $4,
		     secret_key = $5, headers = $6, active = $7, updated_at = NOW()
		 WHERE id = $1`,
		sub.ID, sub.SubscriptionName, sub.EventName, sub.WebhookURL,
		sub.SecretKey, sub.Headers, sub.Active)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return ErrDuplicateName
		}
		return fmt.Errorf("update subscription: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *RepoPG) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.conn(ctx).Exec(ctx, "DELETE FROM event_subscriptions WHERE id = $1", id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *RepoPG) RecordSuccess(ctx context.Context, id uuid.UUID, at time.Time) error {
	_, err := r.conn(ctx).Exec(ctx,
		`UPDATE event_subscriptions
		 SET last_triggered_at = $2, last_success_at = $2, failure_count = 0, updated_at = NOW()
		 WHERE id = $1`, id, at)
	return err
}

func (r *RepoPG) RecordFailure(ctx context.Context, id uuid.UUID, at time.Time) error {
	_, err := r.conn(ctx).Exec(ctx,
		`UPDATE event_subscriptions
		 SET last_triggered_at = $2, failure_count = failure_count + 1, updated_at = NOW()
		 WHERE id = $1`, id, at)
	return err
}
