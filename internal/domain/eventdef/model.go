// Package eventdef holds the registry of known event definitions. The
// registry is global (shared schema): every tenant emits against the same
// catalog of event names.
package eventdef

import (
	"encoding/json"
	"errors"
	"regexp"
	"time"

	"github.com/google/uuid"
)

var (
	ErrNotFound        = errors.New("event definition not found")
	ErrDuplicate       = errors.New("event definition already exists")
	ErrSystemImmutable = errors.New("system event definitions cannot be modified")
	ErrInvalidName     = errors.New("invalid event name")
)

// Event names are dot-separated, e.g. "appointment.booked".
var namePattern = regexp.MustCompile(`^[a-z0-9_]+(\.[a-z0-9_]+)+$`)

// ValidName reports whether name follows the <resource>.<action> convention.
func ValidName(name string) bool {
	return namePattern.MatchString(name)
}

// Definition describes one known event type: its name, category, the shape
// of its payload, and an example. System definitions ship with the product
// and are immutable; custom ones are admin-created.
type Definition struct {
	ID          uuid.UUID       `db:"id" json:"id"`
	Name        string          `db:"name" json:"name"`
	Category    string          `db:"category" json:"category"`
	Description string          `db:"description" json:"description"`
	Schema      json.RawMessage `db:"schema" json:"schema,omitempty"`
	Example     json.RawMessage `db:"example" json:"example,omitempty"`
	IsSystem    bool            `db:"is_system" json:"is_system"`
	Active      bool            `db:"active" json:"active"`
	CreatedAt   time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time       `db:"updated_at" json:"updated_at"`
}
