package onboarding

import (
	"context"
	"sync/atomic"

	"go.uber.org/zap"
)

// Trigger names what started a reconciliation
type Trigger string

const (
	TriggerMount     Trigger = "mount"
	TriggerInterval  Trigger = "interval"
	TriggerStepEntry Trigger = "step_entry"
)

type Outcome string

const (
	OutcomeSkipped   Outcome = "skipped"
	OutcomeUnchanged Outcome = "unchanged"
	OutcomeCorrected Outcome = "corrected"
	OutcomeReset     Outcome = "reset"
)

// ReconcileResult describes one Check.
type ReconcileResult struct {
	Trigger     Trigger            `json:"trigger"`
	Outcome     Outcome            `json:"outcome"`
	LocalStep   Step               `json:"local_step,omitempty"`
	ServerStep  Step               `json:"server_step,omitempty"`
	Eligibility *EligibilityStatus `json:"eligibility,omitempty"`
}

// Reconciler keeps a Store in line with server-derived eligibility.
type Reconciler struct {
	store      *Store
	source     EligibilitySource
	logger     *zap.Logger
	validating atomic.Bool
}

func NewReconciler(store *Store, source EligibilitySource, logger *zap.Logger) *Reconciler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Reconciler{store: store, source: source, logger: logger}
}

// IsValidating reports whether a Check is currently looking up eligibility.
func (r *Reconciler) IsValidating() bool {
	return r.validating.Load()
}

// Check compares the store's step with the server's and corrects it. A
// Check that starts while another is running returns OutcomeSkipped
// without a lookup. Interval checks reuse cached eligibility while it is
// fresh; mount and step entry always look up again.
func (r *Reconciler) Check(ctx context.Context, trigger Trigger) (ReconcileResult, error) {
	result := ReconcileResult{Trigger: trigger, Outcome: OutcomeSkipped}

	if !r.validating.CompareAndSwap(false, true) {
		return result, nil
	}
	defer r.validating.Store(false)

	// a submission in flight will move the step itself
	if r.store.Snapshot().IsLoading {
		return result, nil
	}

	userID := r.store.UserID()
	var (
		status EligibilityStatus
		err    error
	)
	if trigger == TriggerInterval && !r.source.IsDataStale(userID) {
		status, err = r.source.Lookup(ctx, userID)
	} else {
		status, err = r.source.ForceValidation(ctx, userID)
	}
	if err != nil {
		return result, err
	}

	local := r.store.Step()
	server := status.CurrentStep()
	result.LocalStep = local
	result.ServerStep = server
	result.Eligibility = &status

	switch {
	case local == StepComplete && server != StepComplete:
		if err := r.store.ResetToStep(ctx, server); err != nil {
			return result, err
		}
		result.Outcome = OutcomeReset
	case local != server:
		if err := r.store.SetStep(ctx, server); err != nil {
			return result, err
		}
		result.Outcome = OutcomeCorrected
	default:
		result.Outcome = OutcomeUnchanged
		return result, nil
	}

	r.logger.Info("Onboarding step reconciled with server",
		zap.String("user_id", userID.String()),
		zap.String("trigger", string(trigger)),
		zap.String("outcome", string(result.Outcome)),
		zap.String("local_step", string(local)),
		zap.String("server_step", string(server)))
	return result, nil
}
