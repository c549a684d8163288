package audit

import (
	"context"
	"sort"
	"sync"
)

// EventStore is the persistence surface for audit events. There is no
// update or delete: the log is tamper-evident by construction.
type EventStore interface {
	Insert(ctx context.Context, event *Event) error
	Query(ctx context.Context, q Query) ([]*Event, error)
}

// InMemoryEventStore is a thread-safe, in-memory EventStore. It is the
// authoritative implementation for tests and for running the core as a
// plain library without a database.
type InMemoryEventStore struct {
	mu     sync.RWMutex
	events []*Event
}

// NewInMemoryEventStore creates an empty in-memory store.
func NewInMemoryEventStore() *InMemoryEventStore {
	return &InMemoryEventStore{}
}

func (s *InMemoryEventStore) Insert(_ context.Context, event *Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	copied := *event
	s.events = append(s.events, &copied)
	return nil
}

// Query returns matching events ordered by timestamp ascending. Callers
// receive copies; the stored log cannot be mutated through the results.
func (s *InMemoryEventStore) Query(_ context.Context, q Query) ([]*Event, error) {
	s.mu.RLock()
	var matched []*Event
	for _, e := range s.events {
		if q.Matches(e) {
			copied := *e
			matched = append(matched, &copied)
		}
	}
	s.mu.RUnlock()

	sort.SliceStable(matched, func(i, j int) bool {
		return matched[i].Timestamp.Before(matched[j].Timestamp)
	})

	if q.Offset > 0 {
		if q.Offset >= len(matched) {
			return []*Event{}, nil
		}
		matched = matched[q.Offset:]
	}
	if q.Limit > 0 && q.Limit < len(matched) {
		matched = matched[:q.Limit]
	}
	return matched, nil
}

// Len returns the number of stored events.
func (s *InMemoryEventStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.events)
}
