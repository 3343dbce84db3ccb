package validate

import (
	"errors"
	"fmt"

	"github.com/roach88/healthstore/internal/record"
)

var (
	// ErrValidation is matched by every *ValidationError.
	ErrValidation = errors.New("validation failed")

	// ErrUnsupportedVersion is matched by every *UnsupportedVersionError.
	ErrUnsupportedVersion = errors.New("unsupported version")
)

// ValidationError reports a payload field that violates its rule.
type ValidationError struct {
	// Field is the offending column, empty when the payload as a whole is rejected.
	Field string

	// Value is the offending value as supplied.
	Value any

	// Reason describes the violated rule.
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return "validation: " + e.Reason
	}
	return fmt.Sprintf("validation: invalid %s (was %v): %s", e.Field, e.Value, e.Reason)
}

// Is makes errors.Is(err, ErrValidation) match.
func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

// UnsupportedVersionError reports a payload version this build cannot validate.
type UnsupportedVersionError struct {
	Version record.Version
}

func (e *UnsupportedVersionError) Error() string {
	return fmt.Sprintf("unsupported payload version %d (supported %d..%d)",
		e.Version, record.MinVersion, record.CurrentVersion)
}

// Is makes errors.Is(err, ErrUnsupportedVersion) match.
func (e *UnsupportedVersionError) Is(target error) bool {
	return target == ErrUnsupportedVersion
}

// IsValidationError reports whether err is or wraps a *ValidationError.
func IsValidationError(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// IsUnsupportedVersion reports whether err is or wraps an *UnsupportedVersionError.
func IsUnsupportedVersion(err error) bool {
	var ue *UnsupportedVersionError
	return errors.As(err, &ue)
}

func invalid(field string, value any, format string, args ...any) *ValidationError {
	return &ValidationError{Field: field, Value: value, Reason: fmt.Sprintf(format, args...)}
}
