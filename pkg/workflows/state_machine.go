package workflows

import (
	"fmt"
	"slices"
)

// StateMachine enforces status transitions over a fixed successor table.
type StateMachine[S comparable] struct {
	allowedTransitions map[S][]S
}

// NewStateMachine creates a new state machine with allowed transitions.
// The table is copied; later changes to the argument do not affect it.
func NewStateMachine[S comparable](transitions map[S][]S) *StateMachine[S] {
	allowed := make(map[S][]S, len(transitions))
	for from, to := range transitions {
		allowed[from] = slices.Clone(to)
	}
	return &StateMachine[S]{allowedTransitions: allowed}
}

// CanTransition checks if a status transition is allowed
func (sm *StateMachine[S]) CanTransition(from, to S) bool {
	allowed, exists := sm.allowedTransitions[from]
	if !exists {
		return false
	}
	return slices.Contains(allowed, to)
}

// GetAllowedTransitions returns the allowed next statuses for a given status
func (sm *StateMachine[S]) GetAllowedTransitions(from S) []S {
	allowed, exists := sm.allowedTransitions[from]
	if !exists {
		return []S{}
	}
	return slices.Clone(allowed)
}

// HasState reports whether the table has an entry for s.
func (sm *StateMachine[S]) HasState(s S) bool {
	_, exists := sm.allowedTransitions[s]
	return exists
}

// IsTerminal reports whether s is known and has no successors.
func (sm *StateMachine[S]) IsTerminal(s S) bool {
	allowed, exists := sm.allowedTransitions[s]
	return exists && len(allowed) == 0
}

// Validate checks the table against the full list of states: every state needs
// an entry (possibly empty) and every successor must itself be a listed state.
func (sm *StateMachine[S]) Validate(states []S) error {
	for _, s := range states {
		if _, exists := sm.allowedTransitions[s]; !exists {
			return fmt.Errorf("state %v has no transition entry", s)
		}
	}
	for from, allowed := range sm.allowedTransitions {
		if !slices.Contains(states, from) {
			return fmt.Errorf("transition entry for unknown state %v", from)
		}
		for _, to := range allowed {
			if !slices.Contains(states, to) {
				return fmt.Errorf("state %v lists unknown successor %v", from, to)
			}
		}
	}
	return nil
}
