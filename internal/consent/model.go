package consent

import (
	"time"

	"github.com/google/uuid"
)

// Type categorizes what the patient is consenting to.
type Type string

const (
	TypeTreatment            Type = "treatment"
	TypePayment              Type = "payment"
	TypeHealthcareOperations Type = "healthcare_operations"
	TypeMarketing            Type = "marketing"
	TypeResearch             Type = "research"
	TypeThirdParty           Type = "third_party"
)

// ValidTypes lists every recognized consent type.
func ValidTypes() []Type {
	return []Type{
		TypeTreatment, TypePayment, TypeHealthcareOperations,
		TypeMarketing, TypeResearch, TypeThirdParty,
	}
}

// IsValid reports whether t is a recognized consent type.
func (t Type) IsValid() bool {
	for _, v := range ValidTypes() {
		if t == v {
			return true
		}
	}
	return false
}

// Status is the lifecycle state of a consent. Exactly one holds at any
// instant; expired and revoked are terminal.
type Status string

const (
	StatusPending   Status = "pending"
	StatusGranted   Status = "granted"
	StatusRevoked   Status = "revoked"
	StatusExpired   Status = "expired"
	StatusSuspended Status = "suspended"
)

// Sensitivity grades a data category for risk scoring and explicit-consent
// requirements.
type Sensitivity string

const (
	SensitivityLow      Sensitivity = "low"
	SensitivityMedium   Sensitivity = "medium"
	SensitivityHigh     Sensitivity = "high"
	SensitivityCritical Sensitivity = "critical"
)

// GeographicScope bounds where a consent applies.
type GeographicScope string

const (
	GeographicLocal    GeographicScope = "local"
	GeographicRegional GeographicScope = "regional"
	GeographicNational GeographicScope = "national"
)

// DataCategory is static reference data describing one class of patient
// data. Consents hold copies, never shared pointers, so mutating the
// registry can never rewrite history.
type DataCategory struct {
	Category                string      `json:"category"`
	Description             string      `json:"description"`
	Examples                []string    `json:"examples"`
	Sensitivity             Sensitivity `json:"sensitivity"`
	RequiresExplicitConsent bool        `json:"requires_explicit_consent"`
}

// Scope is a pure value type bounding where, with whom, and for how long a
// consent is valid.
type Scope struct {
	Facilities      []string        `json:"facilities"`
	Providers       []string        `json:"providers"`
	Services        []string        `json:"services"`
	TimeLimitDays   int             `json:"time_limit_days"`
	GeographicScope GeographicScope `json:"geographic_scope"`
}

// Flags carry the patient's explicit opt-ins for secondary uses of data.
type Flags struct {
	ThirdPartySharing bool `json:"third_party_sharing"`
	MarketingConsent  bool `json:"marketing_consent"`
	ResearchConsent   bool `json:"research_consent"`
}

// requireExplicit reports whether any flag widens sharing beyond direct
// care, which obligates the consent to enumerate every explicit-consent
// data category.
func (f Flags) requireExplicit() bool {
	return f.ThirdPartySharing || f.MarketingConsent || f.ResearchConsent
}

// Consent is a versioned, scoped, time-bounded patient authorization.
// A revoked or expired consent is immutable thereafter.
type Consent struct {
	ID             uuid.UUID      `db:"id" json:"id"`
	PatientID      string         `db:"patient_id" json:"patient_id"`
	Version        int            `db:"version" json:"version"`
	Type           Type           `db:"consent_type" json:"consent_type"`
	Status         Status         `db:"status" json:"status"`
	DataCategories []DataCategory `db:"data_categories" json:"data_categories"`
	Scope          Scope          `db:"scope" json:"scope"`
	Flags          Flags          `db:"flags" json:"flags"`
	GrantedAt      *time.Time     `db:"granted_at" json:"granted_at,omitempty"`
	ExpiresAt      *time.Time     `db:"expires_at" json:"expires_at,omitempty"`
	RevokedAt      *time.Time     `db:"revoked_at" json:"revoked_at,omitempty"`
	RevokedReason  string         `db:"revoked_reason" json:"revoked_reason,omitempty"`
	CreatedBy      string         `db:"created_by" json:"created_by"`
	CreatedAt      time.Time      `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time      `db:"updated_at" json:"updated_at"`
}

// Terminal reports whether the consent can never transition again.
func (c *Consent) Terminal() bool {
	return c.Status == StatusRevoked || c.Status == StatusExpired
}

// clone returns a deep copy so readers never observe in-flight mutation.
func (c *Consent) clone() *Consent {
	copied := *c
	copied.DataCategories = append([]DataCategory(nil), c.DataCategories...)
	copied.Scope.Facilities = append([]string(nil), c.Scope.Facilities...)
	copied.Scope.Providers = append([]string(nil), c.Scope.Providers...)
	copied.Scope.Services = append([]string(nil), c.Scope.Services...)
	return &copied
}

// MinTimeLimitDays and MaxTimeLimitDays bound Scope.TimeLimitDays.
const (
	MinTimeLimitDays = 1
	MaxTimeLimitDays = 3650
)

// Registry returns the static data category reference set. Callers receive
// fresh copies on every call.
func Registry() []DataCategory {
	return []DataCategory{
		{
			Category:    "demographics",
			Description: "Name, date of birth, contact details, insurance identifiers",
			Examples:    []string{"name", "address", "phone", "insurance_id"},
			Sensitivity: SensitivityLow,
		},
		{
			Category:    "medical_history",
			Description: "Diagnoses, procedures, encounter summaries",
			Examples:    []string{"diagnoses", "procedures", "discharge_summaries"},
			Sensitivity: SensitivityHigh,
		},
		{
			Category:    "medications",
			Description: "Active and historical prescriptions",
			Examples:    []string{"prescriptions", "administration_records"},
			Sensitivity: SensitivityMedium,
		},
		{
			Category:    "lab_results",
			Description: "Laboratory and diagnostic test results",
			Examples:    []string{"blood_panels", "imaging_reports"},
			Sensitivity: SensitivityMedium,
		},
		{
			Category:                "mental_health",
			Description:             "Behavioral health notes and psychiatric records",
			Examples:                []string{"therapy_notes", "psychiatric_evaluations"},
			Sensitivity:             SensitivityCritical,
			RequiresExplicitConsent: true,
		},
		{
			Category:                "genetic_data",
			Description:             "Genomic test results and hereditary risk profiles",
			Examples:                []string{"genome_sequences", "carrier_screenings"},
			Sensitivity:             SensitivityCritical,
			RequiresExplicitConsent: true,
		},
	}
}

// LookupCategory finds a registry category by key.
func LookupCategory(key string) (DataCategory, bool) {
	for _, c := range Registry() {
		if c.Category == key {
			return c, true
		}
	}
	return DataCategory{}, false
}
