package jobs

import (
	"errors"
	"fmt"
)

var (
	// ErrStale is returned when an update is older than the stored record.
	// Callers treat it as a silent no-op.
	ErrStale = errors.New("stale job update")
	// ErrInvalidTransition is returned for backward status moves.
	ErrInvalidTransition = errors.New("invalid job status transition")
	// ErrUnknownJob is returned by Apply for ids not in the registry.
	ErrUnknownJob = errors.New("unknown job")
	// ErrInvalidJob is returned for records missing an id or status.
	ErrInvalidJob = errors.New("invalid job record")
)

// CheckTransition validates a status move.
//
// Forward jumps are accepted since intermediate events may be lost. Same
// status is always legal. Leaving a terminal status and returning from
// processing to queued are rejected.
func CheckTransition(from, to Status) error {
	if from == to {
		return nil
	}
	if from.IsTerminal() || to.rank() < from.rank() {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, to)
	}
	return nil
}
