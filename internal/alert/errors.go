package alert

import "errors"

// Error taxonomy for the alert lifecycle. Handlers map these onto HTTP status
// codes with errors.Is; everything else is an internal failure.
var (
	// ErrValidation marks a missing or malformed required field.
	ErrValidation = errors.New("validation error")

	// ErrNotFound marks an unknown alert id.
	ErrNotFound = errors.New("alert not found")

	// ErrInvalidState marks a transition attempted on a terminal or
	// mismatched state (e.g. acknowledging a resolved alert).
	ErrInvalidState = errors.New("invalid alert state")

	// ErrConflict marks a clinician binding collision: the alert is already
	// bound to a different clinician, or the clinician is already bound to a
	// different alert.
	ErrConflict = errors.New("intervention conflict")

	// ErrPersistenceUnavailable marks a durable-store failure. The lifecycle
	// degrades to in-memory operation instead of failing the chat path; this
	// error is logged loudly, never returned to the end user.
	ErrPersistenceUnavailable = errors.New("persistence unavailable")
)
