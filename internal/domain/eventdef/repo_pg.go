package eventdef

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

const defCols = `id, name, category, description, schema, example, is_system, active, created_at, updated_at`

func scanDef(row pgx.Row) (*Definition, error) {
	var d Definition
	err := row.Scan(
		&d.ID, &d.Name, &d.Category, &d.Description, &d.Schema, &d.Example,
		&d.IsSystem, &d.Active, &d.CreatedAt, &d.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	return &d, err
}

func (r *RepoPG) Create(ctx context.Context, def *Definition) error {
	if def.ID == uuid.Nil {
		def.ID = uuid.New()
	}
	q := fmt.Sprintf(`INSERT INTO shared.event_definitions (%s)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, NOW(), NOW())
		RETURNING created_at, updated_at`, defCols)
	err := r.conn(ctx).QueryRow(ctx, q,
		def.ID, def.Name, def.Category, def.Description, def.Schema, def.Example,
		def.IsSystem, def.Active,
	).Scan(&def.CreatedAt, &def.UpdatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return ErrDuplicate
		}
		return fmt.Errorf("insert event definition: %w", err)
	}
	return nil
}

func (r *RepoPG) GetByName(ctx context.Context, name string) (*Definition, error) {
	q := fmt.Sprintf("SELECT %s FROM shared.event_definitions WHERE name = $1", defCols)
	return scanDef(r.conn(ctx).QueryRow(ctx, q, name))
}

func (r *RepoPG) List(ctx context.Context, category string) ([]*Definition, error) {
	q := fmt.Sprintf("SELECT %s FROM shared.event_definitions", defCols)
	args := []interface{}{}
	if category != "" {
		q += " WHERE category = $1"
		args = append(args, category)
	}
	q += " ORDER BY category, name"

	rows, err := r.conn(ctx).Query(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("list event definitions: %w", err)
	}
	defer rows.Close()

	var defs []*Definition
	for rows.Next() {
		d, err := scanDef(rows)
		if err != nil {
			return nil, err
		}
		defs = append(defs, d)
	}
	return defs, rows.Err()
}

func (r *RepoPG) Update(ctx context.Context, def *Definition) error {
	tag, err := r.conn(ctx).Exec(ctx,
		`UPDATE shared.event_definitions
		 SET category = $2, description = $3, schema = $4, example = $5, active = $6, updated_at = NOW()
		 WHERE name = $1`,
		def.Name, def.Category, def.Description, def.Schema, def.Example, def.Active,
	)
	if err != nil {
		return fmt.Errorf("update event definition: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *RepoPG) Delete(ctx context.Context, name string) error {
	tag, err := r.conn(ctx).Exec(ctx,
		"DELETE FROM shared.event_definitions WHERE name = $1", name)
	if err != nil {
		return fmt.Errorf("delete event definition: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
