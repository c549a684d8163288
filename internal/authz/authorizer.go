// Package authz evaluates role-to-permission decisions. The rule is
// default-deny: any action a role does not explicitly hold is refused, and
// a denied decision is a value, never an error, so callers can render "not
// permitted" without special-casing.
package authz

import (
	"context"
	"strings"

	"github.com/caregate/caregate/internal/audit"
	"github.com/caregate/caregate/internal/platform/identity"
)

// Decision is the outcome of one authorization check.
type Decision struct {
	Allowed bool   `json:"allowed"`
	Reason  string `json:"reason"`
}

// SessionChecker lets the authorizer refuse principals whose session has
// been expired, regardless of any cached role. A nil checker skips the
// session gate, which keeps Authorize a pure function of its inputs.
type SessionChecker interface {
	Expired(principalID string) bool
}

// Authorizer evaluates decisions against a static role table and emits one
// audit event per call. Apart from the audit append it performs no I/O.
type Authorizer struct {
	roles    Table
	rec      *audit.Recorder
	sessions SessionChecker
}

// NewAuthorizer creates an Authorizer. sessions may be nil.
func NewAuthorizer(roles Table, rec *audit.Recorder, sessions SessionChecker) *Authorizer {
	return &Authorizer{roles: roles, rec: rec, sessions: sessions}
}

// Authorize decides whether the principal may perform action. For actions
// on a patient-owned resource, resourceOwnerID identifies the owner; pass
// "" for unowned resources. The decision algorithm:
//
//  1. An expired session denies, regardless of role.
//  2. An unknown role denies.
//  3. The action is normalized to a capability key.
//  4. A role lacking both the capability and its own-record variant denies.
//  5. A role holding only the own-record variant denies unless the
//     principal owns the resource.
//  6. Otherwise, allow.
func (a *Authorizer) Authorize(ctx context.Context, principal identity.Principal, action, resourceOwnerID string) Decision {
	capability := normalize(action)
	decision := a.decide(principal, capability, resourceOwnerID)

	result := audit.ResultSuccess
	if !decision.Allowed {
		result = audit.ResultDenied
	}
	a.rec.Append(audit.Event{
		PrincipalID:   principal.ID,
		PrincipalRole: principal.Role,
		Action:        capability,
		ResourceType:  "Authorization",
		ResourceID:    resourceOwnerID,
		Result:        result,
		RiskLevel:     riskOf(capability, decision.Allowed),
	})
	return decision
}

func (a *Authorizer) decide(principal identity.Principal, capability, resourceOwnerID string) Decision {
	if a.sessions != nil && a.sessions.Expired(principal.ID) {
		return Decision{Allowed: false, Reason: "session expired"}
	}

	role, ok := a.roles[principal.Role]
	if !ok {
		return Decision{Allowed: false, Reason: "unknown role " + principal.Role}
	}

	if role.Has(capability) {
		if ownScoped(capability) && resourceOwnerID != principal.ID {
			return Decision{Allowed: false, Reason: "capability " + capability + " is limited to own records"}
		}
		return Decision{Allowed: true, Reason: "capability " + capability + " granted to role " + role.ID}
	}

	// A role may hold only the own-record variant of the requested
	// capability; that suffices when the principal owns the resource.
	if own := ownVariant(capability); own != "" && role.Has(own) {
		if resourceOwnerID == principal.ID {
			return Decision{Allowed: true, Reason: "capability " + own + " granted to role " + role.ID}
		}
		return Decision{Allowed: false, Reason: "capability " + own + " is limited to own records"}
	}

	return Decision{Allowed: false, Reason: "role " + role.ID + " lacks capability " + capability}
}

// normalize maps a caller-supplied action to a capability key.
func normalize(action string) string {
	key := strings.ToLower(strings.TrimSpace(action))
	key = strings.ReplaceAll(key, " ", "_")
	key = strings.ReplaceAll(key, "-", "_")
	return key
}

// ownScoped reports whether a capability applies only to the principal's
// own records.
func ownScoped(capability string) bool {
	return strings.Contains(capability, "_own_")
}

// ownVariant derives the own-record form of a capability: the first verb
// segment gains an "own" qualifier ("view_medical_record" becomes
// "view_own_medical_record"). Returns "" when the capability is already
// own-scoped or has no object part.
func ownVariant(capability string) string {
	if ownScoped(capability) {
		return ""
	}
	verb, rest, ok := strings.Cut(capability, "_")
	if !ok {
		return ""
	}
	return verb + "_own_" + rest
}

// riskOf grades a decision for the audit trail. Denied attempts at
// admin-level capabilities are critical; denied writes are high; denied
// reads of clinical records are medium; other denied reads are low.
func riskOf(capability string, allowed bool) audit.RiskLevel {
	if allowed {
		return audit.RiskLow
	}
	if adminCapabilities[capability] {
		return audit.RiskCritical
	}
	verb, _, _ := strings.Cut(capability, "_")
	switch verb {
	case "edit", "manage", "delete", "prescribe", "record", "book":
		return audit.RiskHigh
	}
	if sensitiveReads[capability] {
		return audit.RiskMedium
	}
	return audit.RiskLow
}
