package domain

import (
	"errors"
	"fmt"
)

// Sentinel errors shared by every store backend. They propagate to callers
// unmodified; retry policy, if any, belongs to the calling layer.
var (
	// ErrNotFound indicates the requested entity id does not exist.
	ErrNotFound = errors.New("entity not found")

	// ErrConflict indicates a create collided with an existing natural id.
	ErrConflict = errors.New("entity already exists")

	// ErrGuardTimeout indicates a mutating call gave up waiting for the
	// store's concurrency guard. The operation was not applied.
	ErrGuardTimeout = errors.New("timed out waiting for store guard")
)

// ValidationError reports a proposed payload field that is unknown to the
// collection schema or carries a value of the wrong structural shape.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("invalid payload: %s", e.Reason)
	}
	return fmt.Sprintf("invalid field %q: %s", e.Field, e.Reason)
}

// IsValidation reports whether err is (or wraps) a ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// VersioningError reports a stored version string that does not parse as
// three dot-separated non-negative integers. Parse failure is fatal to the
// operation; the store never silently coerces a malformed version.
type VersioningError struct {
	Version string
	Reason  string
}

func (e *VersioningError) Error() string {
	return fmt.Sprintf("malformed version %q: %s", e.Version, e.Reason)
}

// IsVersioning reports whether err is (or wraps) a VersioningError.
func IsVersioning(err error) bool {
	var ve *VersioningError
	return errors.As(err, &ve)
}
