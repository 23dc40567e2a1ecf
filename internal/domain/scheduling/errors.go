package scheduling

import (
	"errors"
	"strings"
)

// Domain errors callers are expected to branch on. Anything else coming out
// of the service is an infrastructure failure.
var (
	ErrStaffNotFound      = errors.New("staff member not found")
	ErrNotEligible        = errors.New("staff member is not eligible for shift assignment")
	ErrNotAuthorized      = errors.New("staff member is not authorized to manage emergencies")
	ErrSchedulingConflict = errors.New("schedule conflict with an existing event")
	ErrWeeklyCapExceeded  = errors.New("weekly shift limit reached")
	ErrInvalidTransition  = errors.New("invalid status transition")
	ErrNotFound           = errors.New("event not found")
)

// ValidationError reports every rule violation found on a candidate event.
type ValidationError struct {
	Violations []string
}

func (e *ValidationError) Error() string {
	return "validation failed: " + strings.Join(e.Violations, ", ")
}

// AsValidationError unwraps err into a *ValidationError if it is one.
func AsValidationError(err error) (*ValidationError, bool) {
	var ve *ValidationError
	if errors.As(err, &ve) {
		return ve, true
	}
	return nil, false
}
