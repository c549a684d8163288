package audit

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/caregate/caregate/internal/platform/clock"
)

func testEvent(action string) Event {
	return Event{
		PrincipalID:   "nurse-7",
		PrincipalRole: "nurse",
		Action:        action,
		ResourceType:  "Consent",
		ResourceID:    "c-1",
		Result:        ResultSuccess,
		RiskLevel:     RiskLow,
	}
}

func TestAppendFillsIdentifiers(t *testing.T) {
	clk := clock.NewFake(time.Date(2025, 2, 1, 8, 0, 0, 0, time.UTC))
	store := NewInMemoryEventStore()
	rec := NewRecorder(store, clk, zerolog.Nop())
	defer rec.Close(context.Background())

	id := rec.Append(testEvent("consent.create"))
	if id == uuid.Nil {
		t.Fatal("Append returned nil id")
	}
	if err := rec.Flush(context.Background()); err != nil {
		t.Fatalf("flush: %v", err)
	}

	events, err := store.Query(context.Background(), Query{})
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if len(events) != 1 {
		t.Fatalf("stored events = %d, want 1", len(events))
	}
	e := events[0]
	if e.ID != id {
		t.Errorf("stored id = %s, want %s", e.ID, id)
	}
	if !e.Timestamp.Equal(clk.Now()) {
		t.Errorf("timestamp = %v, want %v", e.Timestamp, clk.Now())
	}
	if e.CorrelationID == uuid.Nil {
		t.Error("correlation id not filled")
	}
}

// slowFailStore fails every insert, to exercise retry and degraded mode.
type slowFailStore struct {
	mu       sync.Mutex
	attempts int
}

func (s *slowFailStore) Insert(context.Context, *Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.attempts++
	return errors.New("sink unavailable")
}

func (s *slowFailStore) Query(context.Context, Query) ([]*Event, error) {
	return nil, nil
}

func (s *slowFailStore) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.attempts
}

func TestWriteRetriesThenDegrades(t *testing.T) {
	store := &slowFailStore{}
	rec := NewRecorder(store, clock.NewSystem(), zerolog.Nop(),
		WithMaxRetries(2), WithRetryDelay(0))
	defer rec.Close(context.Background())

	rec.Append(testEvent("consent.grant"))
	if err := rec.Flush(context.Background()); err != nil {
		t.Fatalf("flush: %v", err)
	}

	if got := store.count(); got != 3 {
		t.Errorf("insert attempts = %d, want 3 (1 + 2 retries)", got)
	}
	if rec.Dropped() != 1 {
		t.Errorf("dropped = %d, want 1", rec.Dropped())
	}
}

func TestWriteRetryDelayRunsOnInjectedClock(t *testing.T) {
	clk := clock.NewFake(time.Date(2025, 2, 1, 8, 0, 0, 0, time.UTC))
	store := &slowFailStore{}
	rec := NewRecorder(store, clk, zerolog.Nop(),
		WithMaxRetries(1), WithRetryDelay(10*time.Minute))
	defer rec.Close(context.Background())

	rec.Append(testEvent("consent.grant"))

	// Ten minutes of wall time would never elapse here; the retry pause
	// completes only because the fake clock is advanced.
	deadline := time.Now().Add(2 * time.Second)
	for rec.Dropped() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("retry never completed under the fake clock")
		}
		clk.Advance(10 * time.Minute)
		time.Sleep(time.Millisecond)
	}
	if got := store.count(); got != 2 {
		t.Errorf("insert attempts = %d, want 2 (1 + 1 retry)", got)
	}
}

// recoveringStore fails the first n inserts then succeeds.
type recoveringStore struct {
	InMemoryEventStore
	mu       sync.Mutex
	failures int
}

func (s *recoveringStore) Insert(ctx context.Context, e *Event) error {
	s.mu.Lock()
	if s.failures > 0 {
		s.failures--
		s.mu.Unlock()
		return errors.New("transient failure")
	}
	s.mu.Unlock()
	return s.InMemoryEventStore.Insert(ctx, e)
}

func TestWriteSucceedsAfterTransientFailure(t *testing.T) {
	store := &recoveringStore{failures: 2}
	rec := NewRecorder(store, clock.NewSystem(), zerolog.Nop(),
		WithMaxRetries(3), WithRetryDelay(0))
	defer rec.Close(context.Background())

	rec.Append(testEvent("consent.grant"))
	if err := rec.Flush(context.Background()); err != nil {
		t.Fatalf("flush: %v", err)
	}

	if store.Len() != 1 {
		t.Errorf("stored = %d, want 1", store.Len())
	}
	if rec.Dropped() != 0 {
		t.Errorf("dropped = %d, want 0", rec.Dropped())
	}
}

func TestAppendAfterCloseDegrades(t *testing.T) {
	store := NewInMemoryEventStore()
	rec := NewRecorder(store, clock.NewSystem(), zerolog.Nop())
	if err := rec.Close(context.Background()); err != nil {
		t.Fatalf("close: %v", err)
	}

	id := rec.Append(testEvent("session.begin"))
	if id == uuid.Nil {
		t.Fatal("Append after close should still mint an id")
	}
	if rec.Dropped() != 1 {
		t.Errorf("dropped = %d, want 1", rec.Dropped())
	}
	if store.Len() != 0 {
		t.Errorf("stored = %d, want 0", store.Len())
	}
}

func TestCloseIsIdempotent(t *testing.T) {
	rec := NewRecorder(NewInMemoryEventStore(), clock.NewSystem(), zerolog.Nop())
	if err := rec.Close(context.Background()); err != nil {
		t.Fatalf("first close: %v", err)
	}
	if err := rec.Close(context.Background()); err != nil {
		t.Fatalf("second close: %v", err)
	}
}

func TestConcurrentAppends(t *testing.T) {
	store := NewInMemoryEventStore()
	rec := NewRecorder(store, clock.NewSystem(), zerolog.Nop(), WithQueueSize(4096))
	defer rec.Close(context.Background())

	const n = 200
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			rec.Append(testEvent("authz.check"))
		}()
	}
	wg.Wait()
	if err := rec.Flush(context.Background()); err != nil {
		t.Fatalf("flush: %v", err)
	}

	if store.Len() != n {
		t.Errorf("stored = %d, want %d", store.Len(), n)
	}
	if rec.Dropped() != 0 {
		t.Errorf("dropped = %d, want 0", rec.Dropped())
	}
}

func TestFlushConcurrentWithAppends(t *testing.T) {
	store := NewInMemoryEventStore()
	rec := NewRecorder(store, clock.NewSystem(), zerolog.Nop(), WithQueueSize(4096))
	defer rec.Close(context.Background())

	const workers, perWorker = 8, 50
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < perWorker; j++ {
				rec.Append(testEvent("authz.check"))
				if err := rec.Flush(context.Background()); err != nil {
					t.Errorf("flush: %v", err)
				}
			}
		}()
	}
	wg.Wait()

	if err := rec.Flush(context.Background()); err != nil {
		t.Fatalf("final flush: %v", err)
	}
	if store.Len() != workers*perWorker {
		t.Errorf("stored = %d, want %d", store.Len(), workers*perWorker)
	}
	if rec.Dropped() != 0 {
		t.Errorf("dropped = %d, want 0", rec.Dropped())
	}
}
