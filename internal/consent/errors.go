package consent

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
)

// ErrNotFound is returned when the identified consent does not exist.
var ErrNotFound = errors.New("consent not found")

// ValidationError reports malformed input. It is always the caller's fault
// and recoverable by correcting the input.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// InvalidStateError reports an illegal lifecycle transition. It carries the
// consent id, its current status, and the attempted transition so callers
// can render a useful message.
type InvalidStateError struct {
	ConsentID uuid.UUID
	Current   Status
	Attempted string
}

func (e *InvalidStateError) Error() string {
	return fmt.Sprintf("consent %s: cannot %s from status %q",
		e.ConsentID, e.Attempted, e.Current)
}

// IsValidation reports whether err is a ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// IsInvalidState reports whether err is an InvalidStateError.
func IsInvalidState(err error) bool {
	var se *InvalidStateError
	return errors.As(err, &se)
}
