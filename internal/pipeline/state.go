package pipeline

import (
	"fmt"
	"sync"
)

// State is one stage of a pipeline run.
type State string

const (
	StateReceived     State = "Received"
	StateGenerating   State = "Generating"
	StateValidating   State = "Validating"
	StateRepairing    State = "Repairing"
	StateRevalidating State = "Revalidating"
	StateFinalizing   State = "Finalizing"
	StateDone         State = "Done"
	StateFailed       State = "Failed"
)

// Terminal reports whether no further transitions are allowed.
func (s State) Terminal() bool {
	return s == StateDone || s == StateFailed
}

// StateMachine tracks a single run's progress and records every state it
// has visited. Transitions outside the run lifecycle are rejected.
type StateMachine struct {
	mu      sync.RWMutex
	state   State
	history []State
}

func NewStateMachine() *StateMachine {
	return &StateMachine{state: StateReceived, history: []State{StateReceived}}
}

// State returns the current state.
func (sm *StateMachine) State() State {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	return sm.state
}

// History returns the visited states in order, starting with Received.
func (sm *StateMachine) History() []State {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	out := make([]State, len(sm.history))
	copy(out, sm.history)
	return out
}

// Transition attempts to move the state to target.
// It returns an error if the transition is invalid.
func (sm *StateMachine) Transition(target State) error {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	if !isValidTransition(sm.state, target) {
		return fmt.Errorf("invalid pipeline transition: %s -> %s", sm.state, target)
	}

	sm.state = target
	sm.history = append(sm.history, target)
	return nil
}

// isValidTransition defines the permitted state machine edges.
func isValidTransition(current, target State) bool {
	switch current {
	case StateReceived:
		return target == StateGenerating
	case StateGenerating:
		return target == StateValidating || target == StateFailed
	case StateValidating:
		return target == StateRepairing || target == StateFinalizing
	case StateRepairing:
		// One repair pass, always followed by exactly one re-validation
		return target == StateRevalidating
	case StateRevalidating:
		return target == StateFinalizing
	case StateFinalizing:
		return target == StateDone
	default:
		return false
	}
}
