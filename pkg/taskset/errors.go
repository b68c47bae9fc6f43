package taskset

import (
	"errors"
	"fmt"
)

var (
	// ErrCycle is returned when a definition's dependency edges contain a cycle.
	// The message names the tasks that could not be ordered.
	ErrCycle = errors.New("taskset: dependency cycle")

	// ErrNotFound is returned when a node reference resolves to nothing:
	// a missing node ID, or a task output that has not been recorded yet.
	ErrNotFound = errors.New("taskset: not found")

	// ErrAmbiguousRef is returned when a query reference does not match
	// exactly one node (zero or multiple matches).
	ErrAmbiguousRef = errors.New("taskset: ambiguous node reference")

	// ErrPreconditionFailed is returned when a delta's from-status or
	// expected-value guard does not hold at application time.
	ErrPreconditionFailed = errors.New("taskset: precondition failed")

	// ErrInvalidTransition is returned for a task status change the state
	// machine does not permit, including any change to a terminal task.
	ErrInvalidTransition = errors.New("taskset: invalid transition")

	// ErrInstanceNotActive is returned when a mutating operation hits a
	// paused or cancelled instance.
	ErrInstanceNotActive = errors.New("taskset: instance not active")

	// ErrInvalidDefinition is returned when a definition fails structural
	// validation (unknown references, bad deltas, duplicate IDs).
	ErrInvalidDefinition = errors.New("taskset: invalid definition")
)

// DeltaError reports a failed delta application. For a compound delta it
// identifies the failing step; StepIndex is -1 for a single delta.
type DeltaError struct {
	StepIndex int
	StepKey   string
	Err       error
}

func (e *DeltaError) Error() string {
	if e.StepIndex < 0 {
		return fmt.Sprintf("taskset: delta failed: %v", e.Err)
	}
	return fmt.Sprintf("taskset: delta step %d (%s) failed: %v", e.StepIndex, e.StepKey, e.Err)
}

func (e *DeltaError) Unwrap() error { return e.Err }
