package work

import "errors"

// State is the lifecycle stage of a Work item. It is monotone except that
// Waiting->Running->Waiting is legal on requeue/retry (MarkDispatching
// counts each trip back through Running as a new execution, not a
// transition rewind).
type State int

const (
	StateWaiting State = iota
	StateRunning
	StateSucceeded
	StateFailed
	StateStopped
	StateCancelled
)

func (s State) String() string {
	switch s {
	case StateWaiting:
		return "waiting"
	case StateRunning:
		return "running"
	case StateSucceeded:
		return "succeeded"
	case StateFailed:
		return "failed"
	case StateStopped:
		return "stopped"
	case StateCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// IsTerminal reports whether s is a state the dispatcher will never move a
// work item out of (aside from an explicit Requeue, which resets to Waiting
// and is modeled as a new execution rather than a transition).
func (s State) IsTerminal() bool {
	switch s {
	case StateSucceeded, StateFailed, StateStopped, StateCancelled:
		return true
	default:
		return false
	}
}

var ErrInvalidTransition = errors.New("work: invalid state transition")

// validTransitions mirrors spec §3: Waiting is the only pre-dispatch
// state, terminal outcomes are reached from Running (Cancelled also
// directly from Waiting, for work cancelled before it starts), and
// requeue sends a Running or Failed work back to Waiting.
var validTransitions = map[State][]State{
	StateWaiting:   {StateRunning, StateCancelled},
	StateRunning:   {StateSucceeded, StateFailed, StateStopped, StateCancelled, StateWaiting},
	StateSucceeded: {},
	StateFailed:    {StateWaiting}, // a retried failure is requeued
	StateStopped:   {},
	StateCancelled: {},
}

// CanTransitionTo reports whether a transition from s to target is legal.
func (s State) CanTransitionTo(target State) bool {
	for _, v := range validTransitions[s] {
		if v == target {
			return true
		}
	}
	return false
}
