// Package subscription manages outbound webhook subscriptions: registration,
// HMAC-SHA256 signed delivery, and failure accounting.
package subscription

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
)

var (
	ErrNotFound      = errors.New("subscription not found")
	ErrDuplicateName = errors.New("subscription name already in use")
)

// Subscription is one registered webhook destination. SubscriptionName is
// unique per tenant.
type Subscription struct {
	ID               uuid.UUID         `db:"id" json:"id"`
	SubscriptionName string            `db:"subscription_name" json:"subscription_name"`
	EventName        string            `db:"event_name" json:"event_name"`
	WebhookURL       string            `db:"webhook_url" json:"webhook_url"`
	SecretKey        string            `db:"secret_key" json:"secret_key,omitempty"`
	Headers          map[string]string `db:"headers" json:"headers,omitempty"`
	Active           bool              `db:"active" json:"active"`
	LastTriggeredAt  *time.Time        `db:"last_triggered_at" json:"last_triggered_at,omitempty"`
	LastSuccessAt    *time.Time        `db:"last_success_at" json:"last_success_at,omitempty"`
	FailureCount     int               `db:"failure_count" json:"failure_count"`
	CreatedAt        time.Time         `db:"created_at" json:"created_at"`
	UpdatedAt        time.Time         `db:"updated_at" json:"updated_at"`
}

// Validate checks the registration fields.
func (s *Subscription) Validate() error {
	if s.SubscriptionName == "" {
		return fmt.Errorf("subscription_name is required")
	}
	if s.EventName == "" {
		return fmt.Errorf("event_name is required")
	}
	return validateWebhookURL(s.WebhookURL)
}

func validateWebhookURL(rawURL string) error {
	if rawURL == "" {
		return fmt.Errorf("webhook_url is required")
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("invalid webhook_url: %w", err)
	}
	scheme := strings.ToLower(u.Scheme)
	if scheme != "http" && scheme != "https" {
		return fmt.Errorf("webhook_url scheme must be http or https, got %q", u.Scheme)
	}
	if u.Host == "" {
		return fmt.Errorf("webhook_url host is required")
	}
	return nil
}
