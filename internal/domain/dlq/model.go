// Package dlq holds deliveries that exhausted their retry budget, for manual
// review. Entries are retried (spawning a fresh queue item) or dismissed.
package dlq

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
)

var (
	ErrNotFound = errors.New("dead letter entry not found")
	ErrTerminal = errors.New("dead letter entry already resolved")
)

// Status is the review state of an entry.
type Status string

const (
	StatusPending   Status = "pending"
	StatusRetried   Status = "retried"
	StatusDismissed Status = "dismissed"
)

// Entry is one exhausted delivery. Target fields carry enough to rebuild a
// queue item on retry.
type Entry struct {
	ID            uuid.UUID       `db:"id" json:"id"`
	EventID       uuid.UUID       `db:"event_id" json:"event_id"`
	EventName     string          `db:"event_name" json:"event_name"`
	Payload       json.RawMessage `db:"payload" json:"payload"`
	TargetKind    string          `db:"target_kind" json:"target_kind"`
	TargetID      uuid.UUID       `db:"target_id" json:"target_id"`
	TargetName    string          `db:"target_name" json:"target_name"`
	RetryCount    int             `db:"retry_count" json:"retry_count"`
	TimeoutMs     int             `db:"timeout_ms" json:"timeout_ms"`
	ErrorMessage  string          `db:"error_message" json:"error_message"`
	FailureCount  int             `db:"failure_count" json:"failure_count"`
	FirstFailedAt time.Time       `db:"first_failed_at" json:"first_failed_at"`
	LastFailedAt  time.Time       `db:"last_failed_at" json:"last_failed_at"`
	Status        Status          `db:"status" json:"status"`
	Reviewer      string          `db:"reviewer" json:"reviewer,omitempty"`
	Notes         string          `db:"notes" json:"notes,omitempty"`
	CreatedAt     time.Time       `db:"created_at" json:"created_at"`
}
