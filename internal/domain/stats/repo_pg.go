package stats

import (
	"context"
	"fmt"
	"time"

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

func (r *RepoPG) EventCounts(ctx context.Context, since time.Time) ([]EventCount, error) {
	rows, err := r.conn(ctx).Query(ctx,
		`SELECT event_name, status, COUNT(*)
		 FROM event_log
		 WHERE triggered_at >= $1
		 GROUP BY event_name, status
		 ORDER BY event_name, status`, since)
	if err != nil {
		return nil, fmt.Errorf("event counts: %w", err)
	}
	defer rows.Close()

	var counts []EventCount
	for rows.Next() {
		var c EventCount
		if err := rows.Scan(&c.EventName, &c.Status, &c.Count); err != nil {
			return nil, err
		}
		counts = append(counts, c)
	}
	return counts, rows.Err()
}

// TenantSnapshots walks every tenant schema and takes a queue snapshot in
// each. Per-schema failures are returned; callers decide how to degrade.
func (r *RepoPG) TenantSnapshots(ctx context.Context, staleAfter time.Duration) ([]QueueSnapshot, error) {
	schemas, err := db.ListTenantSchemas(ctx, r.pool)
	if err != nil {
		return nil, fmt.Errorf("list tenant schemas: %w", err)
	}
	snaps := make([]QueueSnapshot, 0, len(schemas))
	for _, schema := range schemas {
		snap, err := r.snapshotSchema(ctx, schema, staleAfter)
		if err != nil {
			return nil, fmt.Errorf("snapshot %s: %w", schema, err)
		}
		snaps = append(snaps, *snap)
	}
	return snaps, nil
}

func (r *RepoPG) snapshotSchema(ctx context.Context, schema string, staleAfter time.Duration) (*QueueSnapshot, error) {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer conn.Release()

	if err := db.SetSearchPath(ctx, conn, schema); err != nil {
		return nil, err
	}
	return r.QueueSnapshot(db.WithConn(ctx, conn), staleAfter)
}

// PoolChecker reports database reachability and pool statistics.
type PoolChecker struct {
	pool *pgxpool.Pool
}

func NewPoolChecker(pool *pgxpool.Pool) *PoolChecker {
	return &PoolChecker{pool: pool}
}

func (p *PoolChecker) Ping(ctx context.Context) error {
	return db.Ping(ctx, p.pool)
}

func (p *PoolChecker) Stats() *db.PoolStats {
	return db.GetPoolStats(p.pool)
}

func (r *RepoPG) QueueSnapshot(ctx context.Context, staleAfter time.Duration) (*QueueSnapshot, error) {
	interval := fmt.Sprintf("%f seconds", staleAfter.Seconds())
	var snap QueueSnapshot
	err := r.conn(ctx).QueryRow(ctx,
		`SELECT
			COUNT(*) FILTER (WHERE status = 'pending'),
			COUNT(*) FILTER (WHERE status = 'processing' AND locked_at < NOW() - $1::interval),
			MAX(completed_at) FILTER (WHERE status = 'completed')
		 FROM event_queue`, interval).
		Scan(&snap.PendingDepth, &snap.StaleProcessing, &snap.LastCompletedAt)
	if err != nil {
		return nil, fmt.Errorf("queue snapshot: %w", err)
	}
	return &snap, nil
}
