package sim

import (
	"errors"
	"fmt"
)

// Sentinel conditions. Typed errors below unwrap to one of these so callers can
// classify with errors.Is.
var (
	// ErrEmptyQueue signals that no events remain. It is the normal termination
	// signal of a run, not a failure.
	ErrEmptyQueue = errors.New("event queue is empty")

	// ErrOrderingViolation marks a backward-in-time event or an out-of-sequence
	// entity transition. Fatal for the run.
	ErrOrderingViolation = errors.New("ordering violation")

	// ErrIncompleteState marks an export requested before the entity state it
	// reads has been recorded. Recoverable by the caller.
	ErrIncompleteState = errors.New("incomplete state")

	// ErrContractViolation marks a collaborator returning a malformed result or
	// being addressed with an unknown replica/stage/entity id. Fatal for the run.
	ErrContractViolation = errors.New("collaborator contract violation")

	// ErrLivelock reports that more events fired at a single timestamp than the
	// configured per-instant bound allows.
	ErrLivelock = errors.New("zero-duration event bound exceeded")
)

// OrderingViolationError carries the context of an ordering violation.
type OrderingViolationError struct {
	Event  EventType // event kind being handled or pushed (may be empty)
	Time   float64   // time of the offending event or transition
	Last   float64   // last popped time (queue violations) or previously recorded time
	Entity string    // entity description, e.g. "batch_stage 3 (batch 1)"
	From   string    // state the entity was in
	To     string    // state the transition attempted to reach
}

func (e *OrderingViolationError) Error() string {
	if e.Entity == "" {
		return fmt.Sprintf("%v: %s event at t=%v precedes last popped t=%v", ErrOrderingViolation, e.Event, e.Time, e.Last)
	}
	return fmt.Sprintf("%v: %s cannot move %s -> %s at t=%v (event %s)", ErrOrderingViolation, e.Entity, e.From, e.To, e.Time, e.Event)
}

func (e *OrderingViolationError) Unwrap() error { return ErrOrderingViolation }

// IncompleteStateError names the missing piece of state an export needed.
type IncompleteStateError struct {
	Entity  string
	Missing string
}

func (e *IncompleteStateError) Error() string {
	return fmt.Sprintf("%v: %s has no %s recorded", ErrIncompleteState, e.Entity, e.Missing)
}

func (e *IncompleteStateError) Unwrap() error { return ErrIncompleteState }

// ContractViolationError describes a malformed collaborator interaction.
type ContractViolationError struct {
	Event   EventType
	Time    float64
	Replica ReplicaID
	Stage   StageID
	Detail  string
}

func (e *ContractViolationError) Error() string {
	return fmt.Sprintf("%v: %s at t=%v (replica %d, stage %d): %s", ErrContractViolation, e.Event, e.Time, e.Replica, e.Stage, e.Detail)
}

func (e *ContractViolationError) Unwrap() error { return ErrContractViolation }

// unknownEntity builds the contract violation returned by Store lookups.
func unknownEntity(kind string, id int) error {
	return fmt.Errorf("%w: unknown %s id %d", ErrContractViolation, kind, id)
}
