package audit

import (
	"time"

	"github.com/google/uuid"
)

// Result classifies the outcome of the audited operation.
type Result string

const (
	ResultSuccess Result = "success"
	ResultFailure Result = "failure"
	ResultDenied  Result = "denied"
)

// RiskLevel grades how concerning an event is for compliance review.
type RiskLevel string

const (
	RiskLow      RiskLevel = "low"
	RiskMedium   RiskLevel = "medium"
	RiskHigh     RiskLevel = "high"
	RiskCritical RiskLevel = "critical"
)

// Event is one immutable record of an authorization decision or state
// mutation. Events are append-only: once written they are never updated
// or deleted.
type Event struct {
	ID            uuid.UUID `db:"id" json:"id"`
	Timestamp     time.Time `db:"recorded" json:"timestamp"`
	PrincipalID   string    `db:"principal_id" json:"principal_id"`
	PrincipalRole string    `db:"principal_role" json:"principal_role"`
	Action        string    `db:"action" json:"action"`
	ResourceType  string    `db:"resource_type" json:"resource_type"`
	ResourceID    string    `db:"resource_id" json:"resource_id"`
	Result        Result    `db:"result" json:"result"`
	RiskLevel     RiskLevel `db:"risk_level" json:"risk_level"`
	CorrelationID uuid.UUID `db:"correlation_id" json:"correlation_id"`
}

// Query restricts which events a store returns. The zero value matches
// everything. Results are always ordered by timestamp ascending.
type Query struct {
	From          time.Time
	To            time.Time
	PrincipalID   string
	Action        string
	ResourceType  string
	Result        Result
	Limit         int
	Offset        int
}

// Matches reports whether the event satisfies every set filter.
func (q Query) Matches(e *Event) bool {
	if !q.From.IsZero() && e.Timestamp.Before(q.From) {
		return false
	}
	if !q.To.IsZero() && e.Timestamp.After(q.To) {
		return false
	}
	if q.PrincipalID != "" && e.PrincipalID != q.PrincipalID {
		return false
	}
	if q.Action != "" && e.Action != q.Action {
		return false
	}
	if q.ResourceType != "" && e.ResourceType != q.ResourceType {
		return false
	}
	if q.Result != "" && e.Result != q.Result {
		return false
	}
	return true
}
