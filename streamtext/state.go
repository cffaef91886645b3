package streamtext

import "fmt"

// State is the orchestrator's position in a generation.
type State int

const (
	// StateAwaitingStep means the next step has not been requested yet.
	StateAwaitingStep State = iota
	// StateStepInFlight means a step's parts are being received.
	StateStepInFlight
	// StateStepFinishedContinue means a step finished and another follows.
	StateStepFinishedContinue
	// StateStepFinishedTerminal means the last step finished. Final.
	StateStepFinishedTerminal
	// StateError means the generation failed or was cancelled. Final.
	StateError
)

func (s State) String() string {
	switch s {
	case StateAwaitingStep:
		return "awaiting-step"
	case StateStepInFlight:
		return "step-in-flight"
	case StateStepFinishedContinue:
		return "step-finished-continue"
	case StateStepFinishedTerminal:
		return "step-finished-terminal"
	case StateError:
		return "error"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// IsFinal reports whether no transition leaves s.
func (s State) IsFinal() bool {
	return s == StateStepFinishedTerminal || s == StateError
}

// CanTransition reports whether the orchestrator may move from s to next.
func (s State) CanTransition(next State) bool {
	switch s {
	case StateAwaitingStep:
		return next == StateStepInFlight || next == StateError
	case StateStepInFlight:
		return next == StateStepFinishedContinue || next == StateStepFinishedTerminal || next == StateError
	case StateStepFinishedContinue:
		return next == StateAwaitingStep || next == StateError
	default:
		return false
	}
}
