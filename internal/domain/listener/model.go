// Package listener manages the registry of in-process event handlers: which
// service method runs for which event, in what order, and under what
// conditions.
package listener

import (
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"time"

	"github.com/google/uuid"
)

var (
	ErrNotFound      = errors.New("handler not found")
	ErrDuplicate     = errors.New("handler already registered for this event")
	ErrUnknownTarget = errors.New("no invoker registered for target")
)

// handlerNamePattern matches "service.method" targets.
var handlerNamePattern = regexp.MustCompile(`^[a-zA-Z0-9_]+\.[a-zA-Z0-9_]+$`)

// Handler binds an event name to an invocable service method.
type Handler struct {
	ID          uuid.UUID       `db:"id" json:"id"`
	EventName   string          `db:"event_name" json:"event_name"`
	HandlerName string          `db:"handler_name" json:"handler_name"`
	Service     string          `db:"service" json:"service"`
	Method      string          `db:"method" json:"method"`
	Priority    int             `db:"priority" json:"priority"`
	IsAsync     bool            `db:"is_async" json:"is_async"`
	RetryCount  int             `db:"retry_count" json:"retry_count"`
	TimeoutMs   int             `db:"timeout_ms" json:"timeout_ms"`
	Condition   json.RawMessage `db:"condition" json:"condition,omitempty"`
	Active      bool            `db:"active" json:"active"`
	CreatedAt   time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time       `db:"updated_at" json:"updated_at"`
}

// Target is the invoker key, "service.method".
func (h *Handler) Target() string {
	return h.Service + "." + h.Method
}

// Validate checks the registration fields that cannot be defaulted.
func (h *Handler) Validate() error {
	if h.EventName == "" {
		return fmt.Errorf("event_name is required")
	}
	if h.HandlerName == "" {
		return fmt.Errorf("handler_name is required")
	}
	if !handlerNamePattern.MatchString(h.Target()) {
		return fmt.Errorf("invalid target %q: want service.method", h.Target())
	}
	if h.RetryCount < 0 {
		return fmt.Errorf("retry_count must be >= 0")
	}
	if h.TimeoutMs < 0 {
		return fmt.Errorf("timeout_ms must be >= 0")
	}
	if len(h.Condition) > 0 {
		if _, err := ParseCondition(h.Condition); err != nil {
			return fmt.Errorf("invalid condition: %w", err)
		}
	}
	return nil
}
