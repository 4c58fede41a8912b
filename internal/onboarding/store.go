package onboarding

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/looplab/fsm"
	"go.uber.org/zap"

	"clinic-portal/clinic-portal-backend/internal/billing"
	"clinic-portal/clinic-portal-backend/internal/clinics"
	"clinic-portal/clinic-portal-backend/pkg/validation"
)

var (
	ErrStepNotReady         = errors.New("step is not the current onboarding step")
	ErrSubmissionInProgress = errors.New("a submission is already in progress")
	ErrStoreClosed          = errors.New("onboarding session closed")
)

const (
	DefaultCompletionDelay = 5 * time.Second
	genericSubmitError     = "submission failed, please try again"
)

// errors whose own message is safe to show in the wizard
var userFacingErrors = []error{
	ErrStepNotReady,
	ErrSubmissionInProgress,
	ErrStoreClosed,
	billing.ErrPaymentDeclined,
	billing.ErrSubscriptionActive,
	billing.ErrNoSubscription,
	billing.ErrUnknownPlan,
	clinics.ErrClinicNotFound,
}

// StoreConfig wires a Store to its collaborators. Only Submitter is required.
type StoreConfig struct {
	Submitter       Submitter
	Completer       Completer
	Progress        ProgressRepository
	Notifier        Notifier
	CompletionDelay time.Duration
	Logger          *zap.Logger

	// OnCompleted runs after the completion timer has finished the flow and
	// the store has shut itself down.
	OnCompleted func(*Store)
}

// Store holds one user's wizard state. All methods are safe for concurrent
// use; collaborator calls run without holding the lock.
type Store struct {
	userID uuid.UUID

	mu         sync.Mutex
	state      State
	machine    *fsm.FSM
	closed     bool
	completing bool

	timer              *time.Timer
	timerGen           uint64
	completionAttempts int
	inflight           sync.WaitGroup

	submitter       Submitter
	completer       Completer
	progress        ProgressRepository
	notifier        Notifier
	completionDelay time.Duration
	onCompleted     func(*Store)
	logger          *zap.Logger
	now             func() time.Time
}

// NewStore creates a store for userID positioned at initial.
func NewStore(userID uuid.UUID, initial State, cfg StoreConfig) *Store {
	if !initial.CurrentStep.IsValid() {
		initial.CurrentStep = StepClinicInfo
	}
	initial.IsLoading = false

	s := &Store{
		userID:          userID,
		state:           initial.clone(),
		machine:         newStepMachine(initial.CurrentStep),
		submitter:       cfg.Submitter,
		completer:       cfg.Completer,
		progress:        cfg.Progress,
		notifier:        cfg.Notifier,
		completionDelay: cfg.CompletionDelay,
		onCompleted:     cfg.OnCompleted,
		logger:          cfg.Logger,
		now:             time.Now,
	}
	if s.notifier == nil {
		s.notifier = nopNotifier{}
	}
	if s.completionDelay <= 0 {
		s.completionDelay = DefaultCompletionDelay
	}
	if s.logger == nil {
		s.logger = zap.NewNop()
	}

	s.mu.Lock()
	s.syncCompletionLocked()
	s.mu.Unlock()

	return s
}

func (s *Store) UserID() uuid.UUID {
	return s.userID
}

// Snapshot returns a copy of the current state.
func (s *Store) Snapshot() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.clone()
}

func (s *Store) Step() Step {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.CurrentStep
}

func (s *Store) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// SubmitClinicData saves the clinic profile and advances to Subscription.
func (s *Store) SubmitClinicData(ctx context.Context, form *clinics.ClinicFormData) error {
	return s.submit(ctx, StepClinicInfo,
		func(ctx context.Context) error { return s.submitter.SubmitClinic(ctx, s.userID, form) },
		func(st *State) {
			if form != nil {
				c := *form
				st.Data.Clinic = &c
			}
		})
}

// SubmitSubscription records the chosen plan and advances to Payment.
func (s *Store) SubmitSubscription(ctx context.Context, data *billing.SubscriptionData) error {
	return s.submit(ctx, StepSubscription,
		func(ctx context.Context) error { return s.submitter.SubmitSubscription(ctx, s.userID, data) },
		func(st *State) {
			if data != nil {
				d := *data
				st.Data.Subscription = &d
			}
		})
}

// SubmitPayment confirms payment and advances to Complete, arming the
// completion timer.
func (s *Store) SubmitPayment(ctx context.Context, data *billing.PaymentData) error {
	return s.submit(ctx, StepPayment,
		func(ctx context.Context) error { return s.submitter.SubmitPayment(ctx, s.userID, data) },
		func(st *State) {
			st.Data.Payment = redactPayment(data)
			st.JustCompletedSubscription = true
		})
}

// submit runs one step's collaborator call. Failures are recorded in
// State.Error and returned; the step only moves on success.
func (s *Store) submit(ctx context.Context, from Step, call func(context.Context) error, apply func(*State)) error {
	event, _ := submitEvent(from)
	target, _ := from.Next()

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrStoreClosed
	}
	if s.state.IsLoading {
		s.mu.Unlock()
		return ErrSubmissionInProgress
	}
	if !s.machine.Can(event) {
		s.state.Error = ErrStepNotReady.Error()
		s.mu.Unlock()
		return ErrStepNotReady
	}
	s.state.IsLoading = true
	s.state.Error = ""
	s.mu.Unlock()

	err := call(ctx)
	ctx = context.WithoutCancel(ctx)

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		s.logger.Debug("Discarding onboarding result for closed session",
			zap.String("user_id", s.userID.String()),
			zap.String("step", string(from)))
		if err != nil {
			return err
		}
		return ErrStoreClosed
	}
	s.state.IsLoading = false

	if err != nil {
		s.state.Error = userMessage(err)
		s.mu.Unlock()
		s.logFailure(from, err)
		return err
	}

	// a reconciliation may already have moved the machine to target
	if Step(s.machine.Current()) != target {
		if fireErr := s.machine.Event(ctx, event); fireErr != nil {
			s.state.Error = ErrStepNotReady.Error()
			s.mu.Unlock()
			s.logger.Info("Onboarding step moved during submission",
				zap.String("user_id", s.userID.String()),
				zap.String("step", string(from)),
				zap.String("current", s.machine.Current()))
			return ErrStepNotReady
		}
	}
	apply(&s.state)
	s.state.CurrentStep = target
	s.state.Error = ""
	s.syncCompletionLocked()
	s.persistLocked(ctx)
	s.mu.Unlock()

	s.logger.Info("Onboarding step submitted",
		zap.String("user_id", s.userID.String()),
		zap.String("step", string(from)),
		zap.String("next", string(target)))
	s.notifier.NotifyStepChanged(ctx, s.userID, string(target))
	return nil
}

func (s *Store) logFailure(step Step, err error) {
	var verr *validation.Error
	if errors.As(err, &verr) || isUserFacing(err) {
		s.logger.Info("Onboarding submission rejected",
			zap.String("user_id", s.userID.String()),
			zap.String("step", string(step)),
			zap.Error(err))
		return
	}
	s.logger.Error("Onboarding submission failed",
		zap.String("user_id", s.userID.String()),
		zap.String("step", string(step)),
		zap.Error(err))
}

// UpdateClinicData stores a draft without advancing.
func (s *Store) UpdateClinicData(ctx context.Context, form *clinics.ClinicFormData) error {
	return s.mutate(ctx, func(st *State) {
		if form != nil {
			c := *form
			st.Data.Clinic = &c
		}
	})
}

func (s *Store) UpdateSubscriptionData(ctx context.Context, data *billing.SubscriptionData) error {
	return s.mutate(ctx, func(st *State) {
		if data != nil {
			d := *data
			st.Data.Subscription = &d
		}
	})
}

func (s *Store) UpdatePaymentData(ctx context.Context, data *billing.PaymentData) error {
	return s.mutate(ctx, func(st *State) {
		if data != nil {
			st.Data.Payment = redactPayment(data)
		}
	})
}

// PrevStep moves one step back. It does nothing at ClinicInfo or Complete.
func (s *Store) PrevStep(ctx context.Context) error {
	return s.mutate(ctx, func(st *State) {
		if !s.machine.Can(eventBack) {
			return
		}
		if err := s.machine.Event(context.WithoutCancel(ctx), eventBack); err != nil {
			return
		}
		st.CurrentStep = Step(s.machine.Current())
	})
}

// SetStep overrides the wizard position to match server-derived truth.
func (s *Store) SetStep(ctx context.Context, step Step) error {
	if !step.IsValid() {
		return fmt.Errorf("unknown onboarding step %q", step)
	}
	return s.mutate(ctx, func(st *State) {
		s.machine.SetState(string(step))
		st.CurrentStep = step
		if step != StepComplete {
			st.JustCompletedSubscription = false
		}
	})
}

// ResetOnboarding discards all step data and returns to ClinicInfo.
func (s *Store) ResetOnboarding(ctx context.Context) error {
	return s.mutate(ctx, func(st *State) {
		s.machine.SetState(string(StepClinicInfo))
		st.CurrentStep = StepClinicInfo
		st.Data = Data{}
		st.Error = ""
		st.JustCompletedSubscription = false
		st.CompletedAt = nil
	})
}

// ResetToStep discards all step data and positions the wizard at step in a
// single mutation, so only step is persisted and announced.
func (s *Store) ResetToStep(ctx context.Context, step Step) error {
	if !step.IsValid() {
		return fmt.Errorf("unknown onboarding step %q", step)
	}
	return s.mutate(ctx, func(st *State) {
		s.machine.SetState(string(step))
		st.CurrentStep = step
		st.Data = Data{}
		st.Error = ""
		st.JustCompletedSubscription = false
		st.CompletedAt = nil
	})
}

func (s *Store) ClearError(ctx context.Context) error {
	return s.mutate(ctx, func(st *State) {
		st.Error = ""
	})
}

// mutate applies fn under the lock, then re-evaluates the completion timer,
// persists, and announces a step change.
func (s *Store) mutate(ctx context.Context, fn func(*State)) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrStoreClosed
	}
	before := s.state.CurrentStep
	fn(&s.state)
	after := s.state.CurrentStep
	s.syncCompletionLocked()
	s.persistLocked(ctx)
	s.mu.Unlock()

	if before != after {
		s.notifier.NotifyStepChanged(ctx, s.userID, string(after))
	}
	return nil
}

func (s *Store) persistLocked(ctx context.Context) {
	if s.progress == nil {
		return
	}
	if err := s.progress.Save(ctx, s.userID, s.state); err != nil {
		s.logger.Error("Failed to persist onboarding progress",
			zap.String("user_id", s.userID.String()),
			zap.Error(err))
	}
}

// Close cancels the completion timer and detaches the store. Results of
// calls still in flight are discarded. Close waits for a completion that
// has already started.
func (s *Store) Close() {
	s.mu.Lock()
	s.closed = true
	s.disarmLocked()
	s.mu.Unlock()

	s.inflight.Wait()
}

func userMessage(err error) string {
	var verr *validation.Error
	if errors.As(err, &verr) {
		return verr.Message
	}
	for _, known := range userFacingErrors {
		if errors.Is(err, known) {
			return known.Error()
		}
	}
	return genericSubmitError
}

func isUserFacing(err error) bool {
	for _, known := range userFacingErrors {
		if errors.Is(err, known) {
			return true
		}
	}
	return false
}
