// Package consent owns the patient consent lifecycle: creation, grant,
// suspension, revocation, and expiry. Mutations for one
// (patient, consent type) pair are serialized through a keyed lock arena so
// version numbers never collide and conflicting transitions cannot
// interleave; reads are snapshots of last-committed state and never block
// writers.
package consent

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/caregate/caregate/internal/audit"
	"github.com/caregate/caregate/internal/platform/clock"
	"github.com/caregate/caregate/internal/platform/identity"
)

// Audit actions emitted by the store.
const (
	ActionCreate    = "consent.create"
	ActionGrant     = "consent.grant"
	ActionRevoke    = "consent.revoke"
	ActionSuspend   = "consent.suspend"
	ActionReinstate = "consent.reinstate"
	ActionExpire    = "consent.expire"
)

const resourceType = "Consent"

// CreateRequest is the input to Store.Create. Categories are registry keys;
// the store resolves and copies the full category definitions.
type CreateRequest struct {
	PatientID  string   `json:"patient_id"`
	Type       Type     `json:"consent_type"`
	Categories []string `json:"data_categories"`
	Scope      Scope    `json:"scope"`
	Flags      Flags    `json:"flags"`
}

// Store coordinates the consent lifecycle over a Repository and emits
// exactly one audit event per mutation, success or failure.
type Store struct {
	repo  Repository
	rec   *audit.Recorder
	clock clock.Clock

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewStore creates a Store.
func NewStore(repo Repository, rec *audit.Recorder, clk clock.Clock) *Store {
	return &Store{
		repo:  repo,
		rec:   rec,
		clock: clk,
		locks: make(map[string]*sync.Mutex),
	}
}

// keyLock returns the mutex serializing writes for one (patient, type)
// pair. Locks are per key, not global, so unrelated patients never contend.
func (s *Store) keyLock(patientID string, t Type) *sync.Mutex {
	key := patientID + "\x00" + string(t)
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.locks[key]
	if !ok {
		l = &sync.Mutex{}
		s.locks[key] = l
	}
	return l
}

func (s *Store) emit(actor identity.Principal, action string, resourceID string, result audit.Result, risk audit.RiskLevel) {
	s.rec.Append(audit.Event{
		PrincipalID:   actor.ID,
		PrincipalRole: actor.Role,
		Action:        action,
		ResourceType:  resourceType,
		ResourceID:    resourceID,
		Result:        result,
		RiskLevel:     risk,
	})
}

// Create validates the request and records a new pending consent at the
// next version for its (patient, type) pair. Exactly one audit event is
// emitted whether the create succeeds or fails validation.
func (s *Store) Create(ctx context.Context, req CreateRequest, actor identity.Principal) (uuid.UUID, error) {
	categories, err := s.validateCreate(req)
	if err != nil {
		s.emit(actor, ActionCreate, "", audit.ResultFailure, audit.RiskMedium)
		return uuid.Nil, err
	}

	lock := s.keyLock(req.PatientID, req.Type)
	lock.Lock()
	defer lock.Unlock()

	maxVersion, err := s.repo.MaxVersion(ctx, req.PatientID, req.Type)
	if err != nil {
		s.emit(actor, ActionCreate, "", audit.ResultFailure, audit.RiskMedium)
		return uuid.Nil, fmt.Errorf("resolve consent version: %w", err)
	}

	now := s.clock.Now()
	c := &Consent{
		ID:             uuid.New(),
		PatientID:      req.PatientID,
		Version:        maxVersion + 1,
		Type:           req.Type,
		Status:         StatusPending,
		DataCategories: categories,
		Scope:          req.Scope,
		Flags:          req.Flags,
		CreatedBy:      actor.ID,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := s.repo.Insert(ctx, c); err != nil {
		s.emit(actor, ActionCreate, "", audit.ResultFailure, audit.RiskMedium)
		return uuid.Nil, fmt.Errorf("insert consent: %w", err)
	}

	s.emit(actor, ActionCreate, c.ID.String(), audit.ResultSuccess, audit.RiskLow)
	return c.ID, nil
}

func (s *Store) validateCreate(req CreateRequest) ([]DataCategory, error) {
	if req.PatientID == "" {
		return nil, &ValidationError{Field: "patient_id", Reason: "must not be empty"}
	}
	if !req.Type.IsValid() {
		return nil, &ValidationError{Field: "consent_type", Reason: fmt.Sprintf("unknown type %q", req.Type)}
	}
	if len(req.Categories) == 0 {
		return nil, &ValidationError{Field: "data_categories", Reason: "must not be empty"}
	}
	if req.Scope.TimeLimitDays < MinTimeLimitDays || req.Scope.TimeLimitDays > MaxTimeLimitDays {
		return nil, &ValidationError{
			Field:  "scope.time_limit_days",
			Reason: fmt.Sprintf("must be between %d and %d, got %d", MinTimeLimitDays, MaxTimeLimitDays, req.Scope.TimeLimitDays),
		}
	}

	requested := make(map[string]bool, len(req.Categories))
	categories := make([]DataCategory, 0, len(req.Categories))
	for _, key := range req.Categories {
		cat, ok := LookupCategory(key)
		if !ok {
			return nil, &ValidationError{Field: "data_categories", Reason: fmt.Sprintf("unknown category %q", key)}
		}
		if requested[key] {
			return nil, &ValidationError{Field: "data_categories", Reason: fmt.Sprintf("duplicate category %q", key)}
		}
		requested[key] = true
		categories = append(categories, cat)
	}

	// Sharing beyond direct care requires explicit enumeration of every
	// category that demands explicit consent; silence is not consent.
	if req.Flags.requireExplicit() {
		for _, cat := range Registry() {
			if cat.RequiresExplicitConsent && !requested[cat.Category] {
				return nil, &ValidationError{
					Field:  "data_categories",
					Reason: fmt.Sprintf("category %q requires explicit consent and must be listed when sharing flags are set", cat.Category),
				}
			}
		}
	}
	return categories, nil
}

// Grant activates a pending consent. The expiry is derived from the scope's
// time limit at the moment of grant.
func (s *Store) Grant(ctx context.Context, id uuid.UUID, actor identity.Principal) error {
	return s.transition(ctx, id, actor, ActionGrant, func(c *Consent, now time.Time) error {
		if c.Status != StatusPending {
			return &InvalidStateError{ConsentID: c.ID, Current: c.Status, Attempted: "grant"}
		}
		granted := now
		expires := granted.AddDate(0, 0, c.Scope.TimeLimitDays)
		c.Status = StatusGranted
		c.GrantedAt = &granted
		c.ExpiresAt = &expires
		return nil
	})
}

// Revoke terminally revokes a granted or suspended consent. Revocation is
// deliberately not idempotent: a second revoke is a caller bug surfaced as
// InvalidStateError, never silently absorbed.
func (s *Store) Revoke(ctx context.Context, id uuid.UUID, reason string, actor identity.Principal) error {
	if reason == "" {
		s.emit(actor, ActionRevoke, id.String(), audit.ResultFailure, audit.RiskMedium)
		return &ValidationError{Field: "reason", Reason: "must not be empty"}
	}
	return s.transition(ctx, id, actor, ActionRevoke, func(c *Consent, now time.Time) error {
		if c.Status != StatusGranted && c.Status != StatusSuspended {
			return &InvalidStateError{ConsentID: c.ID, Current: c.Status, Attempted: "revoke"}
		}
		revoked := now
		c.Status = StatusRevoked
		c.RevokedAt = &revoked
		c.RevokedReason = reason
		return nil
	})
}

// Suspend pauses a granted consent without ending it.
func (s *Store) Suspend(ctx context.Context, id uuid.UUID, actor identity.Principal) error {
	return s.transition(ctx, id, actor, ActionSuspend, func(c *Consent, _ time.Time) error {
		if c.Status != StatusGranted {
			return &InvalidStateError{ConsentID: c.ID, Current: c.Status, Attempted: "suspend"}
		}
		c.Status = StatusSuspended
		return nil
	})
}

// Reinstate returns a suspended consent to granted. The original grant and
// expiry stand; suspension does not stop the clock.
func (s *Store) Reinstate(ctx context.Context, id uuid.UUID, actor identity.Principal) error {
	return s.transition(ctx, id, actor, ActionReinstate, func(c *Consent, _ time.Time) error {
		if c.Status != StatusSuspended {
			return &InvalidStateError{ConsentID: c.ID, Current: c.Status, Attempted: "reinstate"}
		}
		c.Status = StatusGranted
		return nil
	})
}

// transition loads the consent, serializes on its (patient, type) key,
// applies the mutation, and emits exactly one audit event matching the
// outcome.
func (s *Store) transition(ctx context.Context, id uuid.UUID, actor identity.Principal, action string, apply func(*Consent, time.Time) error) error {
	c, err := s.repo.Get(ctx, id)
	if err != nil {
		s.emit(actor, action, id.String(), audit.ResultFailure, audit.RiskMedium)
		return err
	}

	lock := s.keyLock(c.PatientID, c.Type)
	lock.Lock()
	defer lock.Unlock()

	// Re-read under the lock: the snapshot above may be stale.
	c, err = s.repo.Get(ctx, id)
	if err != nil {
		s.emit(actor, action, id.String(), audit.ResultFailure, audit.RiskMedium)
		return err
	}

	now := s.clock.Now()
	if err := apply(c, now); err != nil {
		s.emit(actor, action, id.String(), audit.ResultFailure, audit.RiskMedium)
		return err
	}
	c.UpdatedAt = now

	if err := s.repo.Update(ctx, c); err != nil {
		s.emit(actor, action, id.String(), audit.ResultFailure, audit.RiskMedium)
		return fmt.Errorf("update consent: %w", err)
	}

	s.emit(actor, action, id.String(), audit.ResultSuccess, audit.RiskLow)
	return nil
}

// ExpireSweep transitions every granted consent whose expiry is due at now
// to expired, emitting one audit event per transition. Running the sweep
// again over already-expired records is a no-op: idempotent by design,
// unlike revoke.
func (s *Store) ExpireSweep(ctx context.Context, now time.Time) ([]uuid.UUID, error) {
	due, err := s.repo.ListGrantedDue(ctx, now)
	if err != nil {
		return nil, fmt.Errorf("list due consents: %w", err)
	}

	var expired []uuid.UUID
	for _, candidate := range due {
		lock := s.keyLock(candidate.PatientID, candidate.Type)
		lock.Lock()

		c, err := s.repo.Get(ctx, candidate.ID)
		if err != nil {
			lock.Unlock()
			return expired, err
		}
		// A concurrent revoke or earlier sweep may have won; skip quietly.
		if c.Status != StatusGranted || c.ExpiresAt == nil || c.ExpiresAt.After(now) {
			lock.Unlock()
			continue
		}

		c.Status = StatusExpired
		c.UpdatedAt = now
		if err := s.repo.Update(ctx, c); err != nil {
			lock.Unlock()
			return expired, fmt.Errorf("expire consent %s: %w", c.ID, err)
		}
		lock.Unlock()

		s.emit(identity.System, ActionExpire, c.ID.String(), audit.ResultSuccess, audit.RiskLow)
		expired = append(expired, c.ID)
	}
	return expired, nil
}

// Query returns the patient's consents ordered by version descending.
// Reads are not audited; mutations are.
func (s *Store) Query(ctx context.Context, patientID string, t *Type) ([]*Consent, error) {
	return s.repo.ListByPatient(ctx, patientID, t)
}

// Get returns one consent by id.
func (s *Store) Get(ctx context.Context, id uuid.UUID) (*Consent, error) {
	return s.repo.Get(ctx, id)
}
