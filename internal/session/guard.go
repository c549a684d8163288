// Package session tracks per-principal timed sessions: activity, warning,
// and deterministic expiry. At most one live session exists per principal,
// and once expired a session is terminal; downstream authorization treats
// the principal as unauthenticated from that point on.
package session

import (
	"fmt"
	"sync"
	"time"

	"github.com/caregate/caregate/internal/audit"
	"github.com/caregate/caregate/internal/platform/clock"
	"github.com/caregate/caregate/internal/platform/identity"
)

// State is the lifecycle state of a session.
type State string

const (
	StateActive  State = "active"
	StateWarning State = "warning"
	StateExpired State = "expired"
)

// Audit actions emitted by the guard.
const (
	ActionBegin   = "session.begin"
	ActionWarn    = "session.warn"
	ActionRefresh = "session.refresh"
	ActionExpire  = "session.expire"
)

// Session is one principal's timed session.
type Session struct {
	PrincipalID    string    `json:"principal_id"`
	Role           string    `json:"role"`
	IssuedAt       time.Time `json:"issued_at"`
	LastActivityAt time.Time `json:"last_activity_at"`
	ExpiresAt      time.Time `json:"expires_at"`
	State          State     `json:"state"`
}

// NotFoundError reports an operation on an absent or expired session.
type NotFoundError struct {
	PrincipalID string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("no active session for principal %q", e.PrincipalID)
}

// Guard owns session records keyed by principal and drives the state
// machine active -> warning -> expired. Expiry always wins a race against
// touch or refresh at the same instant.
type Guard struct {
	mu       sync.Mutex
	sessions map[string]*Session

	clock            clock.Clock
	rec              *audit.Recorder
	lifetime         time.Duration
	warningThreshold time.Duration
}

// NewGuard creates a Guard. lifetime is how long a fresh or refreshed
// session lives; warningThreshold is how much remaining time flips the
// session into the warning state.
func NewGuard(clk clock.Clock, rec *audit.Recorder, lifetime, warningThreshold time.Duration) *Guard {
	return &Guard{
		sessions:         make(map[string]*Session),
		clock:            clk,
		rec:              rec,
		lifetime:         lifetime,
		warningThreshold: warningThreshold,
	}
}

func (g *Guard) emit(p identity.Principal, action string, result audit.Result, risk audit.RiskLevel) {
	g.rec.Append(audit.Event{
		PrincipalID:   p.ID,
		PrincipalRole: p.Role,
		Action:        action,
		ResourceType:  "Session",
		ResourceID:    p.ID,
		Result:        result,
		RiskLevel:     risk,
	})
}

// Begin starts a session for the principal, replacing any existing one.
func (g *Guard) Begin(p identity.Principal) Session {
	now := g.clock.Now()
	s := &Session{
		PrincipalID:    p.ID,
		Role:           p.Role,
		IssuedAt:       now,
		LastActivityAt: now,
		ExpiresAt:      now.Add(g.lifetime),
		State:          StateActive,
	}

	g.mu.Lock()
	g.sessions[p.ID] = s
	copied := *s
	g.mu.Unlock()

	g.emit(p, ActionBegin, audit.ResultSuccess, audit.RiskLow)
	return copied
}

// Touch records activity. It never extends the session; it only updates
// LastActivityAt, re-evaluating state in case a threshold was crossed.
// Expiry wins if the touch lands exactly at the expiry instant.
func (g *Guard) Touch(principalID string) error {
	now := g.clock.Now()

	g.mu.Lock()
	s, ok := g.sessions[principalID]
	if !ok || s.State == StateExpired {
		g.mu.Unlock()
		return &NotFoundError{PrincipalID: principalID}
	}
	s.LastActivityAt = now
	transition := g.recomputeLocked(s, now)
	g.mu.Unlock()

	g.emitTransition(s, transition)
	return nil
}

// Remaining returns the time left before expiry, clamped at zero.
func (g *Guard) Remaining(principalID string) (time.Duration, error) {
	now := g.clock.Now()

	g.mu.Lock()
	defer g.mu.Unlock()
	s, ok := g.sessions[principalID]
	if !ok {
		return 0, &NotFoundError{PrincipalID: principalID}
	}
	remaining := s.ExpiresAt.Sub(now)
	if remaining < 0 {
		remaining = 0
	}
	return remaining, nil
}

// Refresh extends an active or warning session by the configured lifetime
// and returns it to active. A missing or expired session fails with
// NotFoundError; a session found expired on entry is finalized first so
// that expiry wins the race.
func (g *Guard) Refresh(principalID string) error {
	now := g.clock.Now()

	g.mu.Lock()
	s, ok := g.sessions[principalID]
	if !ok || s.State == StateExpired {
		g.mu.Unlock()
		return &NotFoundError{PrincipalID: principalID}
	}
	if transition := g.recomputeLocked(s, now); transition == StateExpired {
		g.mu.Unlock()
		g.emitTransition(s, StateExpired)
		return &NotFoundError{PrincipalID: principalID}
	}
	s.LastActivityAt = now
	s.ExpiresAt = now.Add(g.lifetime)
	s.State = StateActive
	p := identity.Principal{ID: s.PrincipalID, Role: s.Role}
	g.mu.Unlock()

	g.emit(p, ActionRefresh, audit.ResultSuccess, audit.RiskLow)
	return nil
}

// Expire forces the session into its terminal state. It is idempotent:
// expiring an already-expired or absent session is a no-op and emits no
// duplicate audit event.
func (g *Guard) Expire(principalID string) {
	g.mu.Lock()
	s, ok := g.sessions[principalID]
	if !ok || s.State == StateExpired {
		g.mu.Unlock()
		return
	}
	s.State = StateExpired
	p := identity.Principal{ID: s.PrincipalID, Role: s.Role}
	g.mu.Unlock()

	g.emit(p, ActionExpire, audit.ResultSuccess, audit.RiskMedium)
}

// CurrentState re-evaluates and returns the session's state.
func (g *Guard) CurrentState(principalID string) (State, error) {
	now := g.clock.Now()

	g.mu.Lock()
	s, ok := g.sessions[principalID]
	if !ok {
		g.mu.Unlock()
		return "", &NotFoundError{PrincipalID: principalID}
	}
	transition := g.recomputeLocked(s, now)
	state := s.State
	g.mu.Unlock()

	g.emitTransition(s, transition)
	return state, nil
}

// Get returns a snapshot of the session.
func (g *Guard) Get(principalID string) (Session, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	s, ok := g.sessions[principalID]
	if !ok {
		return Session{}, &NotFoundError{PrincipalID: principalID}
	}
	return *s, nil
}

// Expired implements the authorizer's session gate: it reports true when
// the principal's session exists and has expired. Principals without any
// session are governed by authentication, not by the guard.
func (g *Guard) Expired(principalID string) bool {
	now := g.clock.Now()

	g.mu.Lock()
	s, ok := g.sessions[principalID]
	if !ok {
		g.mu.Unlock()
		return false
	}
	transition := g.recomputeLocked(s, now)
	state := s.State
	g.mu.Unlock()

	g.emitTransition(s, transition)
	return state == StateExpired
}

// checkAll re-evaluates every session and reports whether any is in the
// warning state, which the watcher uses to tighten its cadence.
func (g *Guard) checkAll(now time.Time) bool {
	type pendingTransition struct {
		session    *Session
		transition State
	}

	g.mu.Lock()
	anyWarning := false
	var transitions []pendingTransition
	for _, s := range g.sessions {
		if t := g.recomputeLocked(s, now); t != "" {
			transitions = append(transitions, pendingTransition{session: s, transition: t})
		}
		if s.State == StateWarning {
			anyWarning = true
		}
	}
	g.mu.Unlock()

	for _, pt := range transitions {
		g.emitTransition(pt.session, pt.transition)
	}
	return anyWarning
}

// recomputeLocked applies threshold transitions and returns the transition
// that occurred, if any. Expiry is checked before the warning threshold so
// that a race at the expiry instant resolves to expired.
func (g *Guard) recomputeLocked(s *Session, now time.Time) State {
	if s.State == StateExpired {
		return ""
	}
	if !s.ExpiresAt.After(now) {
		s.State = StateExpired
		return StateExpired
	}
	if s.State == StateActive && s.ExpiresAt.Sub(now) <= g.warningThreshold {
		s.State = StateWarning
		return StateWarning
	}
	return ""
}

// emitTransition audits a state transition computed under the lock. Safe to
// call with an empty transition.
func (g *Guard) emitTransition(s *Session, transition State) {
	p := identity.Principal{ID: s.PrincipalID, Role: s.Role}
	switch transition {
	case StateExpired:
		g.emit(p, ActionExpire, audit.ResultSuccess, audit.RiskMedium)
	case StateWarning:
		g.emit(p, ActionWarn, audit.ResultSuccess, audit.RiskLow)
	}
}
