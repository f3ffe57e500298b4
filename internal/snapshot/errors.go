package snapshot

import (
	"context"
	"errors"
	"fmt"
)

var (
	// ErrCancelled is returned when the caller's context ends mid-operation.
	// The context's own error is wrapped alongside it.
	ErrCancelled = errors.New("snapshot operation cancelled")
	// ErrNoSnapshots is returned by LoadLatest when nothing has been saved.
	ErrNoSnapshots = errors.New("no snapshots found")
)

// CorruptionError reports a snapshot whose bytes cannot be trusted. Callers
// must fall back to an older snapshot or an empty store.
type CorruptionError struct {
	Name   string
	Reason string
	Err    error
}

func (e *CorruptionError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("snapshot %s corrupt: %s: %v", e.Name, e.Reason, e.Err)
	}
	return fmt.Sprintf("snapshot %s corrupt: %s", e.Name, e.Reason)
}

func (e *CorruptionError) Unwrap() error { return e.Err }

// IOError reports a failure of the underlying storage medium.
type IOError struct {
	Op   string
	Name string
	Err  error
}

func (e *IOError) Error() string {
	return fmt.Sprintf("snapshot %s %s: %v", e.Op, e.Name, e.Err)
}

func (e *IOError) Unwrap() error { return e.Err }

// IsCorruption reports whether err is, or wraps, a CorruptionError.
func IsCorruption(err error) bool {
	var ce *CorruptionError
	return errors.As(err, &ce)
}

// IsCancelled reports whether err signals a cancelled operation.
func IsCancelled(err error) bool {
	return errors.Is(err, ErrCancelled)
}

// classify turns a medium error into a typed snapshot error.
func classify(op, name string, err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %s %s: %w", ErrCancelled, op, name, err)
	}
	return &IOError{Op: op, Name: name, Err: err}
}

func corrupt(name, reason string, err error) error {
	return &CorruptionError{Name: name, Reason: reason, Err: err}
}
