package stats

import (
	"context"
	"time"

	"github.com/praxismed/eventd/internal/platform/db"
)

// DBChecker reports database reachability and pool statistics for the health
// probe.
type DBChecker interface {
	Ping(ctx context.Context) error
	Stats() *db.PoolStats
}

type Service struct {
	repo       Repository
	dbc        DBChecker
	staleAfter time.Duration
}

func NewService(repo Repository, dbc DBChecker, staleAfter time.Duration) *Service {
	return &Service{repo: repo, dbc: dbc, staleAfter: staleAfter}
}

// GetEventStats aggregates the current tenant's event log over the trailing
// window.
func (s *Service) GetEventStats(ctx context.Context, hoursBack int) (*EventStats, error) {
	if hoursBack <= 0 {
		hoursBack = 24
	}
	since := time.Now().UTC().Add(-time.Duration(hoursBack) * time.Hour)
	counts, err := s.repo.EventCounts(ctx, since)
	if err != nil {
		return nil, err
	}

	stats := &EventStats{
		HoursBack: hoursBack,
		ByEvent:   make(map[string]map[string]int),
		ByStatus:  make(map[string]int),
	}
	for _, c := range counts {
		if stats.ByEvent[c.EventName] == nil {
			stats.ByEvent[c.EventName] = make(map[string]int)
		}
		stats.ByEvent[c.EventName][c.Status] += c.Count
		stats.ByStatus[c.Status] += c.Count
		stats.Total += c.Count
	}
	return stats, nil
}

// Health sums queue snapshots across every tenant schema. Healthy iff the
// database responds and no item anywhere is stuck in processing past the
// staleness threshold.
func (s *Service) Health(ctx context.Context) *Health {
	h := &Health{Healthy: true, Database: "ok"}

	if err := s.dbc.Ping(ctx); err != nil {
		h.Healthy = false
		h.Database = err.Error()
		return h
	}
	h.Pool = s.dbc.Stats()

	snaps, err := s.repo.TenantSnapshots(ctx, s.staleAfter)
	if err != nil {
		h.Healthy = false
		h.Database = err.Error()
		return h
	}
	for _, snap := range snaps {
		h.PendingDepth += snap.PendingDepth
		h.StaleProcessing += snap.StaleProcessing
		if snap.LastCompletedAt != nil &&
			(h.LastCompletedAt == nil || snap.LastCompletedAt.After(*h.LastCompletedAt)) {
			h.LastCompletedAt = snap.LastCompletedAt
		}
	}
	if h.StaleProcessing > 0 {
		h.Healthy = false
	}
	return h
}
