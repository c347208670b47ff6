package listener

import (
	"bytes"
	"context"
	"encoding/json"
	"sort"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// -- Mock Repository --

type mockRepo struct {
	store map[uuid.UUID]*Handler
}

func newMockRepo() *mockRepo {
	return &mockRepo{store: make(map[uuid.UUID]*Handler)}
}

func (m *mockRepo) Create(_ context.Context, h *Handler) error {
	for _, existing := range m.store {
		if existing.EventName == h.EventName && existing.HandlerName == h.HandlerName {
			return ErrDuplicate
		}
	}
	if h.ID == uuid.Nil {
		h.ID = uuid.New()
	}
	m.store[h.ID] = h
	return nil
}

func (m *mockRepo) Get(_ context.Context, id uuid.UUID) (*Handler, error) {
	h, ok := m.store[id]
	if !ok {
		return nil, ErrNotFound
	}
	return h, nil
}

func (m *mockRepo) List(_ context.Context, eventName string) ([]*Handler, error) {
	var r []*Handler
	for _, h := range m.store {
		if eventName == "" || h.EventName == eventName {
			r = append(r, h)
		}
	}
	sort.Slice(r, func(i, j int) bool { return r[i].Priority < r[j].Priority })
	return r, nil
}

func (m *mockRepo) ListActiveForEvent(_ context.Context, eventName string) ([]*Handler, error) {
	var r []*Handler
	for _, h := range m.store {
		if h.EventName == eventName && h.Active {
			r = append(r, h)
		}
	}
	sort.Slice(r, func(i, j int) bool { return r[i].Priority < r[j].Priority })
	return r, nil
}

func (m *mockRepo) Update(_ context.Context, h *Handler) error {
	if _, ok := m.store[h.ID]; !ok {
		return ErrNotFound
	}
	m.store[h.ID] = h
	return nil
}

func (m *mockRepo) SetActive(_ context.Context, id uuid.UUID, active bool) error {
	h, ok := m.store[id]
	if !ok {
		return ErrNotFound
	}
	h.Active = active
	return nil
}

func (m *mockRepo) Delete(_ context.Context, id uuid.UUID) error {
	if _, ok := m.store[id]; !ok {
		return ErrNotFound
	}
	delete(m.store, id)
	return nil
}

func newTestService(repo *mockRepo) *Service {
	reg := NewRegistry()
	reg.Bind("notifications.sendConfirmation", func(_ context.Context, _ json.RawMessage) (json.RawMessage, error) {
		return nil, nil
	})
	return NewService(repo, reg, zerolog.Nop())
}

// -- Tests --

func TestRegister_Defaults(t *testing.T) {
	svc := newTestService(newMockRepo())

	h, err := svc.Register(context.Background(), &Handler{
		EventName:   "appointment.booked",
		HandlerName: "send-confirmation",
		Service:     "notifications",
		Method:      "sendConfirmation",
	})
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	if h.Priority != defaultPriority {
		t.Errorf("priority = %d, want %d", h.Priority, defaultPriority)
	}
	if h.RetryCount != defaultRetries {
		t.Errorf("retry_count = %d, want %d", h.RetryCount, defaultRetries)
	}
	if h.TimeoutMs != defaultTimeoutMs {
		t.Errorf("timeout_ms = %d, want %d", h.TimeoutMs, defaultTimeoutMs)
	}
	if !h.Active {
		t.Error("new handler should be active")
	}
}

func TestRegister_Validation(t *testing.T) {
	svc := newTestService(newMockRepo())
	ctx := context.Background()

	cases := []*Handler{
		{HandlerName: "x", Service: "a", Method: "b"},
		{EventName: "a.b", Service: "a", Method: "b"},
		{EventName: "a.b", HandlerName: "x", Service: "", Method: "b"},
		{EventName: "a.b", HandlerName: "x", Service: "a", Method: "b c"},
		{EventName: "a.b", HandlerName: "x", Service: "a", Method: "b", RetryCount: -1},
		{EventName: "a.b", HandlerName: "x", Service: "a", Method: "b",
			Condition: json.RawMessage(`{"op":"nope"}`)},
	}
	for i, h := range cases {
		if _, err := svc.Register(ctx, h); err == nil {
			t.Errorf("case %d: Register should fail", i)
		}
	}
}

func TestMatchesForEvent_PriorityAndCondition(t *testing.T) {
	repo := newMockRepo()
	svc := newTestService(repo)
	ctx := context.Background()

	mk := func(name string, priority int, cond string) {
		h := &Handler{
			EventName: "bill.paid", HandlerName: name,
			Service: "billing", Method: "onPaid", Priority: priority,
		}
		if cond != "" {
			h.Condition = json.RawMessage(cond)
		}
		if _, err := svc.Register(ctx, h); err != nil {
			t.Fatal(err)
		}
	}
	mk("second", 20, "")
	mk("first", 10, "")
	mk("large-only", 30, `{"field":"amount","op":"gt","value":1000}`)

	matched, err := svc.MatchesForEvent(ctx, "bill.paid", json.RawMessage(`{"amount":500}`))
	if err != nil {
		t.Fatalf("MatchesForEvent: %v", err)
	}
	if len(matched) != 2 {
		t.Fatalf("matched %d handlers, want 2", len(matched))
	}
	if matched[0].HandlerName != "first" || matched[1].HandlerName != "second" {
		t.Errorf("order = [%s, %s], want [first, second]", matched[0].HandlerName, matched[1].HandlerName)
	}

	matched, err = svc.MatchesForEvent(ctx, "bill.paid", json.RawMessage(`{"amount":5000}`))
	if err != nil {
		t.Fatal(err)
	}
	if len(matched) != 3 {
		t.Errorf("matched %d handlers, want 3 for large amount", len(matched))
	}
}

func TestMatchesForEvent_SkipsDeactivated(t *testing.T) {
	repo := newMockRepo()
	svc := newTestService(repo)
	ctx := context.Background()

	h, err := svc.Register(ctx, &Handler{
		EventName: "patient.created", HandlerName: "welcome",
		Service: "notifications", Method: "sendWelcome",
	})
	if err != nil {
		t.Fatal(err)
	}
	if err := svc.SetActive(ctx, h.ID, false); err != nil {
		t.Fatal(err)
	}

	matched, err := svc.MatchesForEvent(ctx, "patient.created", nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(matched) != 0 {
		t.Errorf("deactivated handler matched: %v", matched)
	}

	// Reactivation restores it.
	if err := svc.SetActive(ctx, h.ID, true); err != nil {
		t.Fatal(err)
	}
	matched, _ = svc.MatchesForEvent(ctx, "patient.created", nil)
	if len(matched) != 1 {
		t.Error("reactivated handler should match again")
	}
}

func TestRegister_UnboundInvokerWarnsThroughInjectedLogger(t *testing.T) {
	var buf bytes.Buffer
	svc := NewService(newMockRepo(), NewRegistry(), zerolog.New(&buf))

	_, err := svc.Register(context.Background(), &Handler{
		EventName: "claim.submitted", HandlerName: "score",
		Service: "risk", Method: "score",
	})
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	if !strings.Contains(buf.String(), "handler registered without a bound invoker") {
		t.Errorf("warning missing from injected logger output: %q", buf.String())
	}
}

func TestInvoker_Resolution(t *testing.T) {
	svc := newTestService(newMockRepo())

	bound := &Handler{Service: "notifications", Method: "sendConfirmation"}
	if _, err := svc.Invoker(bound); err != nil {
		t.Errorf("Invoker for bound target: %v", err)
	}

	unbound := &Handler{Service: "ghost", Method: "run"}
	if _, err := svc.Invoker(unbound); err != ErrUnknownTarget {
		t.Errorf("Invoker for unbound target err = %v, want ErrUnknownTarget", err)
	}
}
