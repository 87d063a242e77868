package internal

import (
	"errors"
	"fmt"
)

// ErrValidation is wrapped by every ValidationError so callers can test with
// errors.Is without knowing the offending field.
var ErrValidation = errors.New("validation failed")

// ValidationError rejects malformed input before any job side effects.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

func (e *ValidationError) Unwrap() error {
	return ErrValidation
}

// Invalid is a shorthand constructor.
func Invalid(field, format string, args ...any) error {
	return &ValidationError{Field: field, Reason: fmt.Sprintf(format, args...)}
}
