/*
errors.go - Error types for the earnings engine

PURPOSE:
  All error types in one place. The engine itself never fails a tick:
  sink errors are wrapped in SinkError, reported to the engine's error
  handler and dropped. Store and lookup errors surface to callers.

ERROR CATEGORIES:
  1. Lookup errors - session does not exist
  2. Sink errors - an external consumer refused or failed an update
  3. Store errors - persistence failures (wrapped by the store)
*/
package earnings

import (
	"errors"
	"fmt"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrSessionNotFound is returned when a referenced session doesn't exist.
	ErrSessionNotFound = errors.New("session not found")

	// ErrDuplicateSession is returned when creating a session whose ID is taken.
	ErrDuplicateSession = errors.New("duplicate session id")

	// ErrSinkUnavailable is returned by sinks that can no longer accept updates
	// (e.g. the live presentation they mirror has ended).
	ErrSinkUnavailable = errors.New("sink unavailable")

	// ErrSinkPanic marks a sink that panicked during delivery.
	ErrSinkPanic = errors.New("sink panicked")
)

// =============================================================================
// STRUCTURED ERRORS
// =============================================================================

// SinkError describes one failed delivery. It is never returned from a tick;
// it is passed to the engine's error handler.
type SinkError struct {
	Sink      string
	SessionID SessionID
	Seq       uint64
	Err       error
}

func (e *SinkError) Error() string {
	return fmt.Sprintf("sink %q (session %s, seq %d): %v", e.Sink, e.SessionID, e.Seq, e.Err)
}

func (e *SinkError) Unwrap() error {
	return e.Err
}

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsNotFound returns true if the error indicates a missing session.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrSessionNotFound)
}

// IsClientError returns true if the error is due to invalid client input.
func IsClientError(err error) bool {
	return errors.Is(err, ErrDuplicateSession)
}
