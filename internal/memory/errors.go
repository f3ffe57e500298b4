package memory

import "errors"

var (
	// ErrInvalidInput rejects malformed record or parameter values.
	ErrInvalidInput = errors.New("invalid input")
	// ErrNotFound signals that no record has the requested id.
	ErrNotFound = errors.New("memory not found")
)
