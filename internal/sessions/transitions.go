package sessions

import (
	"fmt"

	"clinic-portal/clinic-portal-backend/pkg/workflows"
)

// ValidationError identifies the offending field of a rejected request.
type ValidationError struct {
	Path    string `json:"path"`
	Message string `json:"message"`
}

func (e *ValidationError) Error() string {
	return e.Message
}

var statusMachine = workflows.NewStateMachine(map[SessionStatus][]SessionStatus{
	StatusNew:       {StatusScheduled, StatusCancelled},
	StatusScheduled: {StatusStarted, StatusCancelled, StatusNoShow},
	StatusStarted:   {StatusCompleted, StatusCancelled},
	StatusCompleted: {},
	StatusCancelled: {},
	StatusNoShow:    {},
})

func init() {
	if err := statusMachine.Validate(AllStatuses); err != nil {
		panic(fmt.Sprintf("sessions: incomplete status transition table: %v", err))
	}
}

// IsValid reports whether s is a known status.
func (s SessionStatus) IsValid() bool {
	return statusMachine.HasState(s)
}

// ParseStatus converts a wire value into a SessionStatus.
func ParseStatus(raw string) (SessionStatus, error) {
	s := SessionStatus(raw)
	if !s.IsValid() {
		return "", &ValidationError{Path: "status", Message: fmt.Sprintf("unknown session status %q", raw)}
	}
	return s, nil
}

// ValidateStatusTransition checks next against the successor set of current.
// Self-transitions are rejected unless the table lists them.
func ValidateStatusTransition(current, next SessionStatus) (bool, *ValidationError) {
	if !current.IsValid() {
		return false, &ValidationError{Path: "status", Message: fmt.Sprintf("unknown current session status %q", current)}
	}
	if !next.IsValid() {
		return false, &ValidationError{Path: "status", Message: fmt.Sprintf("unknown session status %q", next)}
	}
	if !statusMachine.CanTransition(current, next) {
		return false, &ValidationError{
			Path:    "status",
			Message: fmt.Sprintf("cannot change session status from %s to %s", current, next),
		}
	}
	return true, nil
}

// ValidateInitialStatus checks the status a session is created with. Sessions
// start as new; creating in any other status is treated as a transition out of new.
func ValidateInitialStatus(s SessionStatus) (bool, *ValidationError) {
	if s == StatusNew {
		return true, nil
	}
	return ValidateStatusTransition(StatusNew, s)
}

// AllowedTransitions returns the statuses current may move to.
func AllowedTransitions(current SessionStatus) []SessionStatus {
	return statusMachine.GetAllowedTransitions(current)
}

// IsTerminal reports whether s has no outgoing transitions.
func IsTerminal(s SessionStatus) bool {
	return statusMachine.IsTerminal(s)
}
