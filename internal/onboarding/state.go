package onboarding

import (
	"time"

	"clinic-portal/clinic-portal-backend/internal/billing"
	"clinic-portal/clinic-portal-backend/internal/clinics"
)

// Data accumulates the payload of each submitted (or drafted) step.
type Data struct {
	Clinic       *clinics.ClinicFormData   `json:"clinic,omitempty"`
	Subscription *billing.SubscriptionData `json:"subscription,omitempty"`
	Payment      *billing.PaymentData      `json:"payment,omitempty"`
}

func (d Data) clone() Data {
	var out Data
	if d.Clinic != nil {
		c := *d.Clinic
		out.Clinic = &c
	}
	if d.Subscription != nil {
		s := *d.Subscription
		out.Subscription = &s
	}
	if d.Payment != nil {
		p := *d.Payment
		out.Payment = &p
	}
	return out
}

// redactPayment copies p without the card token, which is only needed for
// the charge itself.
func redactPayment(p *billing.PaymentData) *billing.PaymentData {
	if p == nil {
		return nil
	}
	out := *p
	out.CardToken = ""
	return &out
}

// State is a user's wizard position plus its transient request status.
type State struct {
	CurrentStep               Step       `json:"current_step"`
	Data                      Data       `json:"data"`
	IsLoading                 bool       `json:"is_loading"`
	Error                     string     `json:"error,omitempty"`
	JustCompletedSubscription bool       `json:"just_completed_subscription"`
	CompletedAt               *time.Time `json:"completed_at,omitempty"`
}

// NewState returns the state of a user who has not started onboarding.
func NewState() State {
	return State{CurrentStep: StepClinicInfo}
}

func (s State) clone() State {
	out := s
	out.Data = s.Data.clone()
	if s.CompletedAt != nil {
		t := *s.CompletedAt
		out.CompletedAt = &t
	}
	return out
}

// awaitingCompletion is the condition under which the completion timer runs.
func (s State) awaitingCompletion() bool {
	return s.CurrentStep == StepComplete && s.JustCompletedSubscription && s.CompletedAt == nil
}
