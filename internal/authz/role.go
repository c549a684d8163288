package authz

// AccessLevel is the broad tier a role operates at.
type AccessLevel string

const (
	AccessRead  AccessLevel = "read"
	AccessWrite AccessLevel = "write"
	AccessAdmin AccessLevel = "admin"
)

// Role is an immutable deployment-time definition: a named set of
// capability strings. Roles are not editable at runtime.
type Role struct {
	ID          string      `json:"id"`
	Name        string      `json:"name"`
	Permissions []string    `json:"permissions"`
	AccessLevel AccessLevel `json:"access_level"`
}

// Has reports whether the role holds the exact capability.
func (r Role) Has(capability string) bool {
	for _, p := range r.Permissions {
		if p == capability {
			return true
		}
	}
	return false
}

// Table maps role id to its definition.
type Table map[string]Role

// DefaultRoles returns the deployment role table.
func DefaultRoles() Table {
	roles := []Role{
		{
			ID:   "admin",
			Name: "System Administrator",
			Permissions: []string{
				"manage_users", "manage_roles",
				"view_medical_record", "edit_medical_record",
				"manage_consents", "view_consents",
				"view_audit_log", "export_audit_log",
				"generate_compliance_report",
			},
			AccessLevel: AccessAdmin,
		},
		{
			ID:   "physician",
			Name: "Physician",
			Permissions: []string{
				"view_medical_record", "edit_medical_record",
				"view_lab_results", "prescribe_medication",
				"view_consents", "view_appointments",
			},
			AccessLevel: AccessWrite,
		},
		{
			ID:   "nurse",
			Name: "Nurse",
			Permissions: []string{
				"view_medical_record", "record_vitals",
				"view_lab_results", "view_appointments",
			},
			AccessLevel: AccessWrite,
		},
		{
			ID:   "patient",
			Name: "Patient",
			Permissions: []string{
				"view_own_medical_record", "manage_own_consents",
				"view_own_consents", "view_own_appointments", "book_own_appointment",
				"view_own_lab_results",
			},
			AccessLevel: AccessRead,
		},
		{
			ID:   "receptionist",
			Name: "Receptionist",
			Permissions: []string{
				"view_demographics", "view_appointments", "manage_appointments",
			},
			AccessLevel: AccessWrite,
		},
		{
			ID:   "auditor",
			Name: "Compliance Auditor",
			Permissions: []string{
				"view_audit_log", "export_audit_log", "generate_compliance_report",
			},
			AccessLevel: AccessRead,
		},
	}

	table := make(Table, len(roles))
	for _, r := range roles {
		table[r.ID] = r
	}
	return table
}

// adminCapabilities are the capabilities whose denied attempts are treated
// as critical-risk events.
var adminCapabilities = map[string]bool{
	"manage_users":     true,
	"manage_roles":     true,
	"view_audit_log":   true,
	"export_audit_log": true,
}

// sensitiveReads are the read capabilities over clinical records; denied
// attempts at these are graded medium rather than low.
var sensitiveReads = map[string]bool{
	"view_medical_record":     true,
	"view_own_medical_record": true,
	"view_lab_results":        true,
	"view_own_lab_results":    true,
}
