package request

import (
	"errors"
	"fmt"
)

var (
	// ErrNotStarted is returned when Execute is called before Start.
	// It signals a lifecycle bug in the caller, not a transient condition,
	// and is never retried.
	ErrNotStarted = errors.New("request: engine not started")

	// ErrNoResponse is returned once every attempt for a logical operation
	// has been exhausted. Callers should treat the item as skipped rather
	// than aborting the run.
	ErrNoResponse = errors.New("request: no response after all attempts")
)

// StatusError carries the non-success status of the last completed attempt.
// It is wrapped into ErrNoResponse so callers can tell a refused operation
// from one that never reached the endpoint.
type StatusError struct {
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected status %d", e.StatusCode)
}
