package services

import (
	"errors"
	"strings"
)

// ErrVersionConflict is returned when a mutation carries a stale form
// version. Callers refresh and retry with the current version.
var ErrVersionConflict = errors.New("form version conflict")

// ErrFormNotSubmittable is returned when a response targets a form that is
// unpublished or retired.
var ErrFormNotSubmittable = errors.New("form is not accepting submissions")

// ErrFormRetired is returned when a mutation targets a retired form.
var ErrFormRetired = errors.New("form is retired")

// ValidationError carries every problem found in one request so clients can
// fix them all in a single round trip.
type ValidationError struct {
	Problems []string
}

func (e *ValidationError) Error() string {
	return "validation failed: " + strings.Join(e.Problems, "; ")
}

// IsValidation reports whether err is a ValidationError.
func IsValidation(err error) (*ValidationError, bool) {
	var ve *ValidationError
	if errors.As(err, &ve) {
		return ve, true
	}
	return nil, false
}
