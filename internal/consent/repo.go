package consent

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Repository is the durable persistence surface for consents. The Store
// layers lifecycle rules and serialization on top; implementations only
// need last-write-wins record storage.
type Repository interface {
	Insert(ctx context.Context, c *Consent) error
	Get(ctx context.Context, id uuid.UUID) (*Consent, error)
	Update(ctx context.Context, c *Consent) error

	// MaxVersion returns the highest version recorded for the
	// (patientID, consentType) pair, or 0 when none exists.
	MaxVersion(ctx context.Context, patientID string, t Type) (int, error)

	// ListByPatient returns the patient's consents ordered by version
	// descending. A nil type matches all types.
	ListByPatient(ctx context.Context, patientID string, t *Type) ([]*Consent, error)

	// ListGrantedDue returns granted consents whose expiry is at or
	// before now, for the expiry sweep.
	ListGrantedDue(ctx context.Context, now time.Time) ([]*Consent, error)
}
