package streamtext

import "testing"

func TestState_CanTransition(t *testing.T) {
	all := []State{StateAwaitingStep, StateStepInFlight, StateStepFinishedContinue, StateStepFinishedTerminal, StateError}
	allowed := map[[2]State]bool{
		{StateAwaitingStep, StateStepInFlight}:              true,
		{StateAwaitingStep, StateError}:                     true,
		{StateStepInFlight, StateStepFinishedContinue}:      true,
		{StateStepInFlight, StateStepFinishedTerminal}:      true,
		{StateStepInFlight, StateError}:                     true,
		{StateStepFinishedContinue, StateAwaitingStep}:      true,
		{StateStepFinishedContinue, StateError}:             true,
	}

	for _, from := range all {
		for _, to := range all {
			if got := from.CanTransition(to); got != allowed[[2]State{from, to}] {
				t.Errorf("%s -> %s = %v", from, to, got)
			}
		}
		if from.IsFinal() != (from == StateStepFinishedTerminal || from == StateError) {
			t.Errorf("%s.IsFinal() = %v", from, from.IsFinal())
		}
	}
}

func TestState_String(t *testing.T) {
	if got := StateStepInFlight.String(); got != "step-in-flight" {
		t.Errorf("String() = %q", got)
	}
	if got := State(42).String(); got != "State(42)" {
		t.Errorf("String() = %q", got)
	}
}
