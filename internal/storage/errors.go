package storage

import (
	"context"
	"errors"
)

// ErrNotFound is returned when a requested entity does not exist.
var ErrNotFound = errors.New("storage: not found")

// ErrFatal marks unrecoverable engine errors (schema corruption, failed
// migration). Callers must not retry; the current operation stops.
var ErrFatal = errors.New("storage: fatal")

// IsTransient reports whether err is a transient store error that the
// caller may retry: serialization failures, deadlocks, lock contention.
func IsTransient(err error) bool {
	if err == nil || errors.Is(err, ErrFatal) || errors.Is(err, ErrNotFound) {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	return isRetriable(err)
}
