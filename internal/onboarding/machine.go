package onboarding

import (
	"github.com/looplab/fsm"
)

const (
	eventSubmitClinic       = "submit_clinic"
	eventSubmitSubscription = "submit_subscription"
	eventSubmitPayment      = "submit_payment"
	eventBack               = "back"
)

// newStepMachine builds the wizard's forward/back transitions starting at
// initial. SetStep bypasses these through SetState.
func newStepMachine(initial Step) *fsm.FSM {
	return fsm.NewFSM(
		string(initial),
		fsm.Events{
			{Name: eventSubmitClinic, Src: []string{string(StepClinicInfo)}, Dst: string(StepSubscription)},
			{Name: eventSubmitSubscription, Src: []string{string(StepSubscription)}, Dst: string(StepPayment)},
			{Name: eventSubmitPayment, Src: []string{string(StepPayment)}, Dst: string(StepComplete)},
			{Name: eventBack, Src: []string{string(StepSubscription)}, Dst: string(StepClinicInfo)},
			{Name: eventBack, Src: []string{string(StepPayment)}, Dst: string(StepSubscription)},
		},
		fsm.Callbacks{},
	)
}

// submitEvent maps a step to the event that leaves it forward.
func submitEvent(step Step) (string, bool) {
	switch step {
	case StepClinicInfo:
		return eventSubmitClinic, true
	case StepSubscription:
		return eventSubmitSubscription, true
	case StepPayment:
		return eventSubmitPayment, true
	default:
		return "", false
	}
}
