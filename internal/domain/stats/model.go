// Package stats is read-only aggregation over the event log and queue for
// operational visibility. No counters table: everything derives from the
// rows the pipeline already writes.
package stats

import (
	"time"

	"github.com/praxismed/eventd/internal/platform/db"
)

// EventCount is one (eventName, status) bucket within the query window.
type EventCount struct {
	EventName string `db:"event_name" json:"event_name"`
	Status    string `db:"status" json:"status"`
	Count     int    `db:"count" json:"count"`
}

// EventStats is the aggregated response for one tenant.
type EventStats struct {
	HoursBack int                       `json:"hours_back"`
	Total     int                       `json:"total"`
	ByEvent   map[string]map[string]int `json:"by_event"`
	ByStatus  map[string]int            `json:"by_status"`
}

// QueueSnapshot is the queue health of one tenant schema.
type QueueSnapshot struct {
	PendingDepth    int        `json:"pending_depth"`
	StaleProcessing int        `json:"stale_processing"`
	LastCompletedAt *time.Time `json:"last_completed_at,omitempty"`
}

// Health is the aggregate probe response. Healthy iff the database responds
// and no item anywhere has been stuck in processing past the staleness
// threshold.
type Health struct {
	Healthy         bool          `json:"healthy"`
	PendingDepth    int           `json:"pending_depth"`
	StaleProcessing int           `json:"stale_processing"`
	LastCompletedAt *time.Time    `json:"last_completed_at,omitempty"`
	Database        string        `json:"database"`
	Pool            *db.PoolStats `json:"pool,omitempty"`
}
