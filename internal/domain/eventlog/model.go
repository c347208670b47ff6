// Package eventlog is the durable record of every emitted event and every
// execution attempt made against it. Rows are append-mostly: an event that
// reached a terminal status is never edited in place, corrections are new
// events.
package eventlog

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
)

var ErrNotFound = errors.New("event not found")

// Status is the lifecycle state of an event.
type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

// Terminal reports whether the status admits no further transitions.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// Event is one emitted domain event.
type Event struct {
	ID            uuid.UUID       `db:"id" json:"id"`
	TenantID      string          `db:"tenant_id" json:"tenant_id"`
	EventName     string          `db:"event_name" json:"event_name"`
	Payload       json.RawMessage `db:"payload" json:"payload"`
	SourceService string          `db:"source_service" json:"source_service"`
	SourceUserID  string          `db:"source_user_id" json:"source_user_id,omitempty"`
	EntityType    string          `db:"entity_type" json:"entity_type,omitempty"`
	EntityID      string          `db:"entity_id" json:"entity_id,omitempty"`
	CorrelationID uuid.UUID       `db:"correlation_id" json:"correlation_id"`
	Status        Status          `db:"status" json:"status"`
	TriggeredAt   time.Time       `db:"triggered_at" json:"triggered_at"`
	ProcessedAt   *time.Time      `db:"processed_at" json:"processed_at,omitempty"`
	DurationMs    *int64          `db:"duration_ms" json:"duration_ms,omitempty"`
	Errors        []string        `db:"errors" json:"errors,omitempty"`
	Metadata      json.RawMessage `db:"metadata" json:"metadata,omitempty"`
}

// ExecStatus is the lifecycle state of a single execution attempt.
type ExecStatus string

const (
	ExecPending   ExecStatus = "pending"
	ExecRunning   ExecStatus = "running"
	ExecSucceeded ExecStatus = "succeeded"
	ExecFailed    ExecStatus = "failed"
)

// Target kinds for executions.
const (
	TargetHandler = "handler"
	TargetWebhook = "webhook"
)

// Execution records one attempt to deliver an event to one target, either an
// in-process handler or a webhook subscription.
type Execution struct {
	ID             uuid.UUID       `db:"id" json:"id"`
	EventID        uuid.UUID       `db:"event_id" json:"event_id"`
	TargetKind     string          `db:"target_kind" json:"target_kind"`
	HandlerID      *uuid.UUID      `db:"handler_id" json:"handler_id,omitempty"`
	SubscriptionID *uuid.UUID      `db:"subscription_id" json:"subscription_id,omitempty"`
	TargetName     string          `db:"target_name" json:"target_name"`
	Status         ExecStatus      `db:"status" json:"status"`
	AttemptNumber  int             `db:"attempt_number" json:"attempt_number"`
	StartedAt      time.Time       `db:"started_at" json:"started_at"`
	CompletedAt    *time.Time      `db:"completed_at" json:"completed_at,omitempty"`
	DurationMs     *int64          `db:"duration_ms" json:"duration_ms,omitempty"`
	Result         json.RawMessage `db:"result" json:"result,omitempty"`
	Error          string          `db:"error" json:"error,omitempty"`
}

// SearchFilter narrows event log queries.
type SearchFilter struct {
	EventName  string
	Status     Status
	StartDate  *time.Time
	EndDate    *time.Time
	EntityType string
	EntityID   string
}
