package subscription

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
)

// maxResponseBytes caps how much of the receiver's response body is kept.
const maxResponseBytes = 1024

// Delivery is one event being pushed to a webhook endpoint.
type Delivery struct {
	EventID       uuid.UUID       `json:"event_id"`
	EventName     string          `json:"event_name"`
	Payload       json.RawMessage `json:"payload"`
	CorrelationID uuid.UUID       `json:"correlation_id"`
	TriggeredAt   time.Time       `json:"triggered_at"`
	Attempt       int             `json:"-"`
}

// Result summarises one delivery attempt.
type Result struct {
	Success      bool          `json:"success"`
	StatusCode   int           `json:"status_code"`
	ResponseBody string        `json:"response_body,omitempty"`
	Duration     time.Duration `json:"duration_ns"`
	Error        string        `json:"error,omitempty"`
}

// Deliverer POSTs signed event envelopes to subscription endpoints.
type Deliverer struct {
	client *http.Client
}

func NewDeliverer(timeout time.Duration) *Deliverer {
	return &Deliverer{client: &http.Client{Timeout: timeout}}
}

// Deliver signs the envelope and POSTs it. A 2xx response is success;
// anything else, including transport errors, is failure. The receiver's
// response body is truncated to 1KB.
func (d *Deliverer) Deliver(ctx context.Context, sub *Subscription, del Delivery) *Result {
	body, err := json.Marshal(del)
	if err != nil {
		return &Result{Error: fmt.Sprintf("marshal envelope: %v", err)}
	}
	sig := SignPayload(body, sub.SecretKey)
	now := time.Now().UTC()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, sub.WebhookURL, bytes.NewReader(body))
	if err != nil {
		return &Result{Error: err.Error()}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Event-Name", del.EventName)
	req.Header.Set("X-Event-Id", del.EventID.String())
	req.Header.Set("X-Attempt", strconv.Itoa(del.Attempt))
	req.Header.Set("X-Signature", "sha256="+sig)
	req.Header.Set("X-Timestamp", now.Format(time.RFC3339))
	for k, v := range sub.Headers {
		req.Header.Set(k, v)
	}

	start := time.Now()
	resp, err := d.client.Do(req)
	res := &Result{Duration: time.Since(start)}
	if err != nil {
		res.Error = err.Error()
		return res
	}
	defer resp.Body.Close()

	res.StatusCode = resp.StatusCode
	bodyBytes, _ := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	res.ResponseBody = string(bodyBytes)

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		res.Success = true
	} else {
		res.Error = fmt.Sprintf("non-2xx response: %d", resp.StatusCode)
	}
	return res
}
