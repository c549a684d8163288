package consent

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// InMemoryRepository is a thread-safe, in-memory Repository for tests and
// for running the core without a database.
type InMemoryRepository struct {
	mu       sync.RWMutex
	consents map[uuid.UUID]*Consent
}

// NewInMemoryRepository creates an empty repository.
func NewInMemoryRepository() *InMemoryRepository {
	return &InMemoryRepository{consents: make(map[uuid.UUID]*Consent)}
}

func (r *InMemoryRepository) Insert(_ context.Context, c *Consent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.consents[c.ID] = c.clone()
	return nil
}

func (r *InMemoryRepository) Get(_ context.Context, id uuid.UUID) (*Consent, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.consents[id]
	if !ok {
		return nil, ErrNotFound
	}
	return c.clone(), nil
}

func (r *InMemoryRepository) Update(_ context.Context, c *Consent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.consents[c.ID]; !ok {
		return ErrNotFound
	}
	r.consents[c.ID] = c.clone()
	return nil
}

func (r *InMemoryRepository) MaxVersion(_ context.Context, patientID string, t Type) (int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	max := 0
	for _, c := range r.consents {
		if c.PatientID == patientID && c.Type == t && c.Version > max {
			max = c.Version
		}
	}
	return max, nil
}

func (r *InMemoryRepository) ListByPatient(_ context.Context, patientID string, t *Type) ([]*Consent, error) {
	r.mu.RLock()
	var result []*Consent
	for _, c := range r.consents {
		if c.PatientID != patientID {
			continue
		}
		if t != nil && c.Type != *t {
			continue
		}
		result = append(result, c.clone())
	}
	r.mu.RUnlock()

	sort.Slice(result, func(i, j int) bool {
		if result[i].Version != result[j].Version {
			return result[i].Version > result[j].Version
		}
		return result[i].CreatedAt.After(result[j].CreatedAt)
	})
	return result, nil
}

func (r *InMemoryRepository) ListGrantedDue(_ context.Context, now time.Time) ([]*Consent, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var due []*Consent
	for _, c := range r.consents {
		if c.Status == StatusGranted && c.ExpiresAt != nil && !c.ExpiresAt.After(now) {
			due = append(due, c.clone())
		}
	}
	return due, nil
}
