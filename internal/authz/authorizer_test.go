package authz

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/caregate/caregate/internal/audit"
	"github.com/caregate/caregate/internal/platform/clock"
	"github.com/caregate/caregate/internal/platform/identity"
)

type stubSessions struct {
	expired map[string]bool
}

func (s *stubSessions) Expired(principalID string) bool {
	return s.expired[principalID]
}

func newTestAuthorizer(t *testing.T, sessions SessionChecker) (*Authorizer, *audit.Recorder) {
	t.Helper()
	clk := clock.NewFake(time.Date(2025, 5, 1, 9, 0, 0, 0, time.UTC))
	rec := audit.NewRecorder(audit.NewInMemoryEventStore(), clk, zerolog.Nop())
	t.Cleanup(func() { _ = rec.Close(context.Background()) })
	return NewAuthorizer(DefaultRoles(), rec, sessions), rec
}

func lastEvent(t *testing.T, rec *audit.Recorder) *audit.Event {
	t.Helper()
	if err := rec.Flush(context.Background()); err != nil {
		t.Fatalf("flush: %v", err)
	}
	events, err := rec.QueryEvents(context.Background(), audit.Query{})
	if err != nil {
		t.Fatalf("query events: %v", err)
	}
	if len(events) == 0 {
		t.Fatal("no audit events recorded")
	}
	return events[len(events)-1]
}

func TestAuthorizeGrantedCapability(t *testing.T) {
	a, rec := newTestAuthorizer(t, nil)
	physician := identity.Principal{ID: "dr-1", Role: "physician"}

	d := a.Authorize(context.Background(), physician, "view_medical_record", "patient-9")
	if !d.Allowed {
		t.Fatalf("denied: %s", d.Reason)
	}

	e := lastEvent(t, rec)
	if e.Result != audit.ResultSuccess || e.RiskLevel != audit.RiskLow {
		t.Errorf("event = %s/%s, want success/low", e.Result, e.RiskLevel)
	}
	if e.Action != "view_medical_record" || e.ResourceType != "Authorization" {
		t.Errorf("event action = %q type = %q", e.Action, e.ResourceType)
	}
}

func TestAuthorizeDefaultDeny(t *testing.T) {
	a, rec := newTestAuthorizer(t, nil)
	nurse := identity.Principal{ID: "rn-1", Role: "nurse"}

	d := a.Authorize(context.Background(), nurse, "prescribe_medication", "patient-9")
	if d.Allowed {
		t.Fatal("nurse prescribing should be denied")
	}

	e := lastEvent(t, rec)
	if e.Result != audit.ResultDenied {
		t.Errorf("result = %s, want denied", e.Result)
	}
	if e.RiskLevel != audit.RiskHigh {
		t.Errorf("risk = %s, want high for a denied write verb", e.RiskLevel)
	}
}

func TestAuthorizeUnknownRole(t *testing.T) {
	a, _ := newTestAuthorizer(t, nil)
	d := a.Authorize(context.Background(), identity.Principal{ID: "x", Role: "janitor"}, "view_medical_record", "")
	if d.Allowed {
		t.Fatal("unknown role should be denied")
	}
}

func TestAuthorizeOwnScopedCapability(t *testing.T) {
	a, _ := newTestAuthorizer(t, nil)
	patient := identity.Principal{ID: "patient-1", Role: "patient"}

	if d := a.Authorize(context.Background(), patient, "view_own_medical_record", "patient-1"); !d.Allowed {
		t.Errorf("own record denied: %s", d.Reason)
	}
	if d := a.Authorize(context.Background(), patient, "view_own_medical_record", "patient-2"); d.Allowed {
		t.Error("other patient's record allowed")
	}
}

func TestAuthorizeOwnVariantFallback(t *testing.T) {
	a, _ := newTestAuthorizer(t, nil)
	patient := identity.Principal{ID: "patient-1", Role: "patient"}

	// The patient role holds only view_own_medical_record; the generic
	// action resolves through the own variant when the owner matches.
	if d := a.Authorize(context.Background(), patient, "view_medical_record", "patient-1"); !d.Allowed {
		t.Errorf("own-variant fallback denied: %s", d.Reason)
	}
	if d := a.Authorize(context.Background(), patient, "view_medical_record", "patient-2"); d.Allowed {
		t.Error("own-variant fallback allowed for another patient")
	}
	if d := a.Authorize(context.Background(), patient, "manage_consents", "patient-1"); !d.Allowed {
		t.Errorf("manage own consents denied: %s", d.Reason)
	}
}

func TestAuthorizeNormalizesAction(t *testing.T) {
	a, _ := newTestAuthorizer(t, nil)
	physician := identity.Principal{ID: "dr-1", Role: "physician"}

	if d := a.Authorize(context.Background(), physician, "View Medical-Record", ""); !d.Allowed {
		t.Errorf("normalized action denied: %s", d.Reason)
	}
}

func TestAuthorizeDeniedSensitiveReadIsMedium(t *testing.T) {
	a, rec := newTestAuthorizer(t, nil)
	receptionist := identity.Principal{ID: "desk-1", Role: "receptionist"}

	if d := a.Authorize(context.Background(), receptionist, "view_medical_record", "patient-9"); d.Allowed {
		t.Fatal("receptionist reading a medical record should be denied")
	}
	if e := lastEvent(t, rec); e.RiskLevel != audit.RiskMedium {
		t.Errorf("risk = %s, want medium", e.RiskLevel)
	}
}

func TestAuthorizeDeniedAdminCapabilityIsCritical(t *testing.T) {
	a, rec := newTestAuthorizer(t, nil)
	nurse := identity.Principal{ID: "rn-1", Role: "nurse"}

	if d := a.Authorize(context.Background(), nurse, "manage_users", ""); d.Allowed {
		t.Fatal("nurse managing users should be denied")
	}
	if e := lastEvent(t, rec); e.RiskLevel != audit.RiskCritical {
		t.Errorf("risk = %s, want critical", e.RiskLevel)
	}
}

func TestAuthorizeExpiredSessionDenies(t *testing.T) {
	sessions := &stubSessions{expired: map[string]bool{"dr-1": true}}
	a, rec := newTestAuthorizer(t, sessions)
	physician := identity.Principal{ID: "dr-1", Role: "physician"}

	d := a.Authorize(context.Background(), physician, "view_medical_record", "")
	if d.Allowed {
		t.Fatal("expired session should deny regardless of role")
	}
	if e := lastEvent(t, rec); e.Result != audit.ResultDenied {
		t.Errorf("result = %s, want denied", e.Result)
	}

	// Another principal with a live session is unaffected.
	other := identity.Principal{ID: "dr-2", Role: "physician"}
	if d := a.Authorize(context.Background(), other, "view_medical_record", ""); !d.Allowed {
		t.Errorf("live session denied: %s", d.Reason)
	}
}

func TestAuthorizeEmitsOneEventPerCall(t *testing.T) {
	a, rec := newTestAuthorizer(t, nil)
	physician := identity.Principal{ID: "dr-1", Role: "physician"}

	const calls = 5
	for i := 0; i < calls; i++ {
		a.Authorize(context.Background(), physician, "view_medical_record", "")
	}
	if err := rec.Flush(context.Background()); err != nil {
		t.Fatalf("flush: %v", err)
	}
	events, err := rec.QueryEvents(context.Background(), audit.Query{ResourceType: "Authorization"})
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if len(events) != calls {
		t.Errorf("events = %d, want %d", len(events), calls)
	}
}

func TestOwnVariant(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"view_medical_record", "view_own_medical_record"},
		{"manage_consents", "manage_own_consents"},
		{"view_own_medical_record", ""},
		{"admin", ""},
	}
	for _, tc := range cases {
		if got := ownVariant(tc.in); got != tc.want {
			t.Errorf("ownVariant(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}
