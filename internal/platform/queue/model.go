// Package queue is the durable work queue behind asynchronous dispatch. Each
// item is one (event, target) pair; claiming is an atomic conditional update
// so any number of workers across processes can drain the same tenant.
package queue

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

var ErrNotFound = errors.New("queue item not found")

// Status is the item lifecycle state.
type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusDeadLetter Status = "dead_letter"
)

// Item is one unit of deliverable work.
type Item struct {
	ID            uuid.UUID  `db:"id" json:"id"`
	EventID       uuid.UUID  `db:"event_id" json:"event_id"`
	TargetKind    string     `db:"target_kind" json:"target_kind"`
	TargetID      uuid.UUID  `db:"target_id" json:"target_id"`
	TargetName    string     `db:"target_name" json:"target_name"`
	Attempt       int        `db:"attempt" json:"attempt"`
	RetryCount    int        `db:"retry_count" json:"retry_count"`
	TimeoutMs     int        `db:"timeout_ms" json:"timeout_ms"`
	Status        Status     `db:"status" json:"status"`
	NextAttemptAt time.Time  `db:"next_attempt_at" json:"next_attempt_at"`
	LockedAt      *time.Time `db:"locked_at" json:"locked_at,omitempty"`
	CompletedAt   *time.Time `db:"completed_at" json:"completed_at,omitempty"`
	LastError     string     `db:"last_error" json:"last_error,omitempty"`
	CreatedAt     time.Time  `db:"created_at" json:"created_at"`
}

// Exhausted reports whether the item has used its full retry budget.
// retry_count is the total number of attempts allowed.
func (i *Item) Exhausted() bool {
	return i.Attempt >= i.RetryCount
}
