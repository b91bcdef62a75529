/*
errors.go - Centralized error types for the booking core

PURPOSE:
  All error kinds in one place. Collaborator layers (API, stores) map these
  to their own surfaces; the HTTP layer turns them into status codes.

ERROR CATEGORIES:
  1. Validation errors  - malformed input, rejected before touching the store
  2. Transition errors  - operations illegal in the current status
  3. Conflict errors    - overlapping date ranges, carry the clashing booking
  4. Lookup/access      - unknown booking, missing permission
  5. Configuration      - no resolvable fee config and fallback failed

USAGE:
  if errors.Is(err, booking.ErrConflict) {
      var ce *booking.ConflictError
      errors.As(err, &ce) // ce.ClashingID, ce.ClashingStatus
  }
*/
package booking

import (
	"errors"
	"fmt"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrValidation is the base of all input validation failures.
	ErrValidation = errors.New("validation failed")

	// ErrNotFound is returned for unknown booking ids.
	ErrNotFound = errors.New("booking not found")

	// ErrAccessDenied is returned when the caller lacks permission, a valid
	// manage token, or a matching lead email.
	ErrAccessDenied = errors.New("access denied")

	// ErrConflict is returned when a date range overlaps a PENDING or
	// APPROVED booking.
	ErrConflict = errors.New("booking dates conflict")

	// ErrInvalidTransition is returned for operations illegal in the
	// booking's current status (e.g. editing a CANCELLED booking).
	ErrInvalidTransition = errors.New("invalid status transition")

	// ErrConfiguration is returned when pricing cannot resolve a fee
	// configuration and the fallback installation itself failed.
	ErrConfiguration = errors.New("fee configuration unavailable")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// ValidationError names the offending field.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

func invalid(field, format string, args ...any) error {
	return &ValidationError{Field: field, Message: fmt.Sprintf(format, args...)}
}

// ConflictError carries the clashing booking so callers can show it.
type ConflictError struct {
	ClashingID     BookingID
	ClashingStatus Status
	ClashingRange  DateRange
	Requested      DateRange
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("requested %s overlaps booking %s (%s, %s)",
		e.Requested, e.ClashingID, e.ClashingStatus, e.ClashingRange)
}

func (e *ConflictError) Unwrap() error { return ErrConflict }

// InvalidTransitionError records the rejected transition.
type InvalidTransitionError struct {
	ID     BookingID
	From   Status
	Action string
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("cannot %s booking %s in status %s", e.Action, e.ID, e.From)
}

func (e *InvalidTransitionError) Unwrap() error { return ErrInvalidTransition }

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsClientError reports whether the error is the caller's fault and carries
// enough detail to correct the request.
func IsClientError(err error) bool {
	return errors.Is(err, ErrValidation) ||
		errors.Is(err, ErrConflict) ||
		errors.Is(err, ErrInvalidTransition) ||
		errors.Is(err, ErrAccessDenied) ||
		errors.Is(err, ErrNotFound)
}
