package dlq

import (
	"context"
	"sort"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/praxismed/eventd/internal/platform/bus"
)

// -- Mock Repository --

type mockRepo struct {
	store map[uuid.UUID]*Entry
}

func newMockRepo() *mockRepo {
	return &mockRepo{store: make(map[uuid.UUID]*Entry)}
}

func (m *mockRepo) Create(_ context.Context, e *Entry) error {
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	e.CreatedAt = time.Now().UTC()
	m.store[e.ID] = e
	return nil
}

func (m *mockRepo) Get(_ context.Context, id uuid.UUID) (*Entry, error) {
	e, ok := m.store[id]
	if !ok {
		return nil, ErrNotFound
	}
	return e, nil
}

func (m *mockRepo) List(_ context.Context, status Status, limit, offset int) ([]*Entry, int, error) {
	var r []*Entry
	for _, e := range m.store {
		if status == "" || e.Status == status {
			r = append(r, e)
		}
	}
	sort.Slice(r, func(i, j int) bool { return r[i].LastFailedAt.After(r[j].LastFailedAt) })
	total := len(r)
	if offset > len(r) {
		offset = len(r)
	}
	r = r[offset:]
	if limit < len(r) {
		r = r[:limit]
	}
	return r, total, nil
}

func (m *mockRepo) ExistsForEventTarget(_ context.Context, eventID, targetID uuid.UUID) (bool, error) {
	for _, e := range m.store {
		if e.EventID == eventID && e.TargetID == targetID {
			return true, nil
		}
	}
	return false, nil
}

func (m *mockRepo) Resolve(_ context.Context, id uuid.UUID, status Status, reviewer, notes string) error {
	e, ok := m.store[id]
	if !ok {
		return ErrNotFound
	}
	if e.Status != StatusPending {
		return ErrTerminal
	}
	e.Status = status
	e.Reviewer = reviewer
	e.Notes = notes
	return nil
}

func (m *mockRepo) MarkRetried(_ context.Context, id uuid.UUID, reviewer string) error {
	e, ok := m.store[id]
	if !ok {
		return ErrNotFound
	}
	e.Status = StatusRetried
	e.Reviewer = reviewer
	return nil
}

type capturingEnqueuer struct {
	jobs []bus.Job
}

func (m *capturingEnqueuer) EnqueueJobs(_ context.Context, jobs []bus.Job) error {
	m.jobs = append(m.jobs, jobs...)
	return nil
}

// mockReopener tracks failed events and which ones were reopened.
type mockReopener struct {
	failed   map[uuid.UUID]bool
	reopened []uuid.UUID
}

func newMockReopener() *mockReopener {
	return &mockReopener{failed: make(map[uuid.UUID]bool)}
}

func (m *mockReopener) Reopen(_ context.Context, id uuid.UUID) (bool, error) {
	m.reopened = append(m.reopened, id)
	if m.failed[id] {
		delete(m.failed, id)
		return true, nil
	}
	return false, nil
}

func seedEntry(t *testing.T, svc *Service) *Entry {
	t.Helper()
	e := NewEntry(uuid.New(), "bill.paid", []byte(`{"amount":1}`), bus.Job{
		TargetKind: "handler",
		TargetID:   uuid.New(),
		TargetName: "billing-sync",
		RetryCount: 3,
		TimeoutMs:  5000,
	}, "handler timed out", 3, time.Now().UTC().Add(-time.Hour))
	if err := svc.Record(context.Background(), e); err != nil {
		t.Fatal(err)
	}
	return e
}

// -- Tests --

func TestRecord_NoDuplicates(t *testing.T) {
	repo := newMockRepo()
	svc := NewService(repo, &capturingEnqueuer{}, newMockReopener(), zerolog.Nop())
	ctx := context.Background()

	e := seedEntry(t, svc)

	// Same (event, target) again: no second entry.
	dup := NewEntry(e.EventID, e.EventName, e.Payload, bus.Job{
		TargetKind: e.TargetKind, TargetID: e.TargetID, TargetName: e.TargetName,
	}, "again", 3, e.FirstFailedAt)
	if err := svc.Record(ctx, dup); err != nil {
		t.Fatal(err)
	}
	if len(repo.store) != 1 {
		t.Errorf("entries = %d, want 1", len(repo.store))
	}
}

func TestRetry_SpawnsFreshQueueItem(t *testing.T) {
	repo := newMockRepo()
	enq := &capturingEnqueuer{}
	reopener := newMockReopener()
	svc := NewService(repo, enq, reopener, zerolog.Nop())
	ctx := context.Background()

	e := seedEntry(t, svc)
	reopener.failed[e.EventID] = true

	got, err := svc.Retry(ctx, e.ID, "ops")
	if err != nil {
		t.Fatalf("Retry: %v", err)
	}
	if got.Status != StatusRetried || got.Reviewer != "ops" {
		t.Errorf("entry = %+v", got)
	}
	if len(enq.jobs) != 1 {
		t.Fatalf("enqueued %d jobs, want 1", len(enq.jobs))
	}
	job := enq.jobs[0]
	if job.EventID != e.EventID || job.TargetID != e.TargetID || job.RetryCount != 3 {
		t.Errorf("job = %+v", job)
	}
}

func TestRetry_ReopensFailedEvent(t *testing.T) {
	repo := newMockRepo()
	reopener := newMockReopener()
	svc := NewService(repo, &capturingEnqueuer{}, reopener, zerolog.Nop())
	ctx := context.Background()

	e := seedEntry(t, svc)
	reopener.failed[e.EventID] = true

	if _, err := svc.Retry(ctx, e.ID, "ops"); err != nil {
		t.Fatalf("Retry: %v", err)
	}
	// The event must be reopened or the workers will discard the fresh item
	// against its failed status.
	if len(reopener.reopened) != 1 || reopener.reopened[0] != e.EventID {
		t.Fatalf("reopened = %v, want [%s]", reopener.reopened, e.EventID)
	}
	if reopener.failed[e.EventID] {
		t.Error("event should no longer be failed after retry")
	}
}

func TestRetry_AllowedFromDismissed(t *testing.T) {
	repo := newMockRepo()
	enq := &capturingEnqueuer{}
	svc := NewService(repo, enq, newMockReopener(), zerolog.Nop())
	ctx := context.Background()

	e := seedEntry(t, svc)
	if err := svc.Dismiss(ctx, e.ID, "ops", "known flake"); err != nil {
		t.Fatal(err)
	}

	if _, err := svc.Retry(ctx, e.ID, "ops"); err != nil {
		t.Fatalf("Retry from dismissed: %v", err)
	}
	if len(enq.jobs) != 1 {
		t.Error("retry from dismissed should enqueue")
	}
}

func TestDismiss_Idempotent(t *testing.T) {
	repo := newMockRepo()
	svc := NewService(repo, &capturingEnqueuer{}, newMockReopener(), zerolog.Nop())
	ctx := context.Background()

	e := seedEntry(t, svc)

	if err := svc.Dismiss(ctx, e.ID, "ops", ""); err != nil {
		t.Fatalf("first Dismiss: %v", err)
	}
	if err := svc.Dismiss(ctx, e.ID, "ops", ""); err != nil {
		t.Errorf("second Dismiss should be idempotent, got %v", err)
	}
	if err := svc.Dismiss(ctx, uuid.New(), "ops", ""); err != ErrNotFound {
		t.Errorf("Dismiss missing entry err = %v, want ErrNotFound", err)
	}
}

func TestList_NewestFirst(t *testing.T) {
	repo := newMockRepo()
	svc := NewService(repo, &capturingEnqueuer{}, newMockReopener(), zerolog.Nop())
	ctx := context.Background()

	old := seedEntry(t, svc)
	old.LastFailedAt = time.Now().UTC().Add(-2 * time.Hour)
	recent := seedEntry(t, svc)
	recent.LastFailedAt = time.Now().UTC()

	entries, total, err := svc.List(ctx, "", 10, 0)
	if err != nil {
		t.Fatal(err)
	}
	if total != 2 || len(entries) != 2 {
		t.Fatalf("total=%d len=%d, want 2/2", total, len(entries))
	}
	if entries[0].ID != recent.ID {
		t.Error("entries should be ordered newest-first")
	}
}
