package provider

import (
	"errors"
	"fmt"
)

// Client errors. They are raised before any permission check or storage
// access and never depend on the caller's permissions.
var (
	// ErrMetricMismatch is returned when a payload's _metric differs from
	// the metric of its address.
	ErrMetricMismatch = errors.New("payload metric does not match address")

	// ErrSelectionNotAllowed is returned for updates and deletes that
	// carry a caller-supplied selection.
	ErrSelectionNotAllowed = errors.New("selection not allowed on mutations")

	// ErrImmutableField is returned when an update tries to change a
	// record's id or metric.
	ErrImmutableField = errors.New("field cannot be changed")

	// ErrUnknownColumn is returned for projections naming a column the
	// addressed table does not have.
	ErrUnknownColumn = errors.New("unknown column")
)

// ErrIdentityNotCleared is returned when a permission lookup runs outside
// the coordinator, with the caller's own identity still in effect.
var ErrIdentityNotCleared = errors.New("permission lookup requires the store identity")

// IsClientError reports whether err is one of the client errors above.
func IsClientError(err error) bool {
	return errors.Is(err, ErrMetricMismatch) ||
		errors.Is(err, ErrSelectionNotAllowed) ||
		errors.Is(err, ErrImmutableField) ||
		errors.Is(err, ErrUnknownColumn)
}

func metricMismatch(uri string, payload, address any) error {
	return fmt.Errorf("%w: inserting metric %v at %s (metric %v)", ErrMetricMismatch, payload, uri, address)
}

func selectionNotAllowed(uri string) error {
	return fmt.Errorf("%w: %s", ErrSelectionNotAllowed, uri)
}
