package queue

import "errors"

// Sentinel errors implementing the taxonomy in SPEC_FULL.md §7. The HTTP
// adapter maps these to status codes; nothing else in the codebase compares
// errors with ==.
var (
	ErrValidation = errors.New("validation error")
	ErrNotFound   = errors.New("task not found")
	ErrConflict   = errors.New("conflict")
)
