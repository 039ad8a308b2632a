package prescription

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned when no record exists for the given id.
	ErrNotFound = errors.New("prescription not found")

	// ErrInvalidState is returned when a transition is attempted on a
	// record that is no longer ACTIVE. The wrapping error carries the
	// observed status so callers can refresh.
	ErrInvalidState = errors.New("prescription is not active")
)

// ValidationError reports malformed input to create or amend. It is
// user-correctable and surfaced to the caller verbatim.
type ValidationError struct {
	Msg string
}

func (e *ValidationError) Error() string {
	return e.Msg
}

func validationErrorf(format string, args ...interface{}) *ValidationError {
	return &ValidationError{Msg: fmt.Sprintf(format, args...)}
}

// IsValidation reports whether err is a ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}
