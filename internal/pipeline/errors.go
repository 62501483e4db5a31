package pipeline

import "errors"

// Sentinel errors shared by store implementations and their callers.
var (
	// ErrNotFound is returned when a lookup matches no record.
	ErrNotFound = errors.New("record not found")

	// ErrConflict is returned when a write loses a race on a uniqueness
	// constraint or a serialization failure. Callers may retry the
	// enclosing transaction.
	ErrConflict = errors.New("store conflict")

	// ErrInvalidTransition is returned when a run status update does not
	// follow the one-directional state machine.
	ErrInvalidTransition = errors.New("invalid run status transition")
)
