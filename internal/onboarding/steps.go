package onboarding

import "fmt"

// Step is a position in the onboarding wizard
type Step string

const (
	StepClinicInfo   Step = "clinic_info"
	StepSubscription Step = "subscription"
	StepPayment      Step = "payment"
	StepComplete     Step = "complete"
)

var orderedSteps = []Step{StepClinicInfo, StepSubscription, StepPayment, StepComplete}

// Steps returns the wizard steps in order.
func Steps() []Step {
	out := make([]Step, len(orderedSteps))
	copy(out, orderedSteps)
	return out
}

// Index is the zero-based position of s, or -1 for an unknown step.
func (s Step) Index() int {
	for i, step := range orderedSteps {
		if step == s {
			return i
		}
	}
	return -1
}

func (s Step) IsValid() bool {
	return s.Index() >= 0
}

// Next returns the step after s. ok is false at Complete.
func (s Step) Next() (Step, bool) {
	i := s.Index()
	if i < 0 || i == len(orderedSteps)-1 {
		return s, false
	}
	return orderedSteps[i+1], true
}

// Prev returns the step before s. ok is false at ClinicInfo.
func (s Step) Prev() (Step, bool) {
	if i := s.Index(); i > 0 {
		return orderedSteps[i-1], true
	}
	return s, false
}

func ParseStep(raw string) (Step, error) {
	s := Step(raw)
	if !s.IsValid() {
		return "", fmt.Errorf("unknown onboarding step %q", raw)
	}
	return s, nil
}
