package common

import "errors"

// Sentinel errors shared by services and handlers.
// Services wrap them with context; handlers map them to status codes with errors.Is.
var (
	// ErrValidation marks missing or malformed caller input
	ErrValidation = errors.New("validation failed")

	// ErrStateConflict marks a request that conflicts with the current phase (e.g. a task already running)
	ErrStateConflict = errors.New("state conflict")

	// ErrNotFound marks a missing record
	ErrNotFound = errors.New("not found")

	// ErrConflict marks an optimistic concurrency conflict on a versioned record
	ErrConflict = errors.New("version conflict")
)
