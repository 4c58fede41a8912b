package onboarding

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"

	"clinic-portal/clinic-portal-backend/internal/billing"
	"clinic-portal/clinic-portal-backend/pkg/cache"
)

// EligibilityStatus is the server's view of how far a user has got.
type EligibilityStatus struct {
	UserHasClinic         bool      `json:"user_has_clinic"`
	HasSubscription       bool      `json:"has_subscription"`
	HasActiveSubscription bool      `json:"has_active_subscription"`
	PaymentConfirmed      bool      `json:"payment_confirmed"`
	OnboardingCompleted   bool      `json:"onboarding_completed"`
	CheckedAt             time.Time `json:"checked_at"`
}

// CurrentStep derives the wizard step the server facts support.
func (e EligibilityStatus) CurrentStep() Step {
	switch {
	case !e.UserHasClinic:
		return StepClinicInfo
	case !e.HasSubscription:
		return StepSubscription
	case !e.PaymentConfirmed || !e.HasActiveSubscription:
		return StepPayment
	default:
		return StepComplete
	}
}

func (e EligibilityStatus) NeedsOnboarding() bool {
	return e.CurrentStep() != StepComplete
}

func (e EligibilityStatus) ShouldRedirectToPortal() bool {
	return e.CurrentStep() == StepComplete
}

// EligibilityLookup fetches a fresh EligibilityStatus.
type EligibilityLookup interface {
	Lookup(ctx context.Context, userID uuid.UUID) (EligibilityStatus, error)
}

// EligibilitySource is what a Reconciler reads server truth from.
type EligibilitySource interface {
	EligibilityLookup
	ForceValidation(ctx context.Context, userID uuid.UUID) (EligibilityStatus, error)
	IsDataStale(userID uuid.UUID) bool
}

type ClinicChecker interface {
	HasClinic(ctx context.Context, ownerID uuid.UUID) (bool, error)
}

type BillingChecker interface {
	Status(ctx context.Context, userID uuid.UUID) (billing.BillingStatus, error)
}

// DBEligibility reads eligibility straight from the clinics and billing
// services.
type DBEligibility struct {
	clinics  ClinicChecker
	billing  BillingChecker
	progress ProgressRepository
	now      func() time.Time
}

func NewDBEligibility(clinics ClinicChecker, billing BillingChecker, progress ProgressRepository) *DBEligibility {
	return &DBEligibility{clinics: clinics, billing: billing, progress: progress, now: time.Now}
}

func (e *DBEligibility) Lookup(ctx context.Context, userID uuid.UUID) (EligibilityStatus, error) {
	hasClinic, err := e.clinics.HasClinic(ctx, userID)
	if err != nil {
		return EligibilityStatus{}, fmt.Errorf("failed to check clinic: %w", err)
	}

	billingStatus, err := e.billing.Status(ctx, userID)
	if err != nil {
		return EligibilityStatus{}, fmt.Errorf("failed to check billing: %w", err)
	}

	status := EligibilityStatus{
		UserHasClinic:         hasClinic,
		HasSubscription:       billingStatus.HasSubscription,
		HasActiveSubscription: billingStatus.HasActiveSubscription,
		PaymentConfirmed:      billingStatus.PaymentConfirmed,
		CheckedAt:             e.now().UTC(),
	}

	if e.progress != nil {
		completed, err := e.progress.IsCompleted(ctx, userID)
		if err != nil {
			return EligibilityStatus{}, err
		}
		status.OnboardingCompleted = completed
	}

	return status, nil
}

// CachedEligibility keeps the last lookup per user for ttl and collapses
// concurrent lookups for the same user into one.
type CachedEligibility struct {
	source EligibilityLookup
	cache  *cache.TTLCache[uuid.UUID, EligibilityStatus]
	group  singleflight.Group
}

func NewCachedEligibility(source EligibilityLookup, ttl time.Duration, opts ...cache.Option) *CachedEligibility {
	return &CachedEligibility{
		source: source,
		cache:  cache.NewTTLCache[uuid.UUID, EligibilityStatus](ttl, opts...),
	}
}

// Lookup serves from cache while the entry is fresh.
func (c *CachedEligibility) Lookup(ctx context.Context, userID uuid.UUID) (EligibilityStatus, error) {
	if status, ok := c.cache.Get(userID); ok {
		return status, nil
	}
	return c.ForceValidation(ctx, userID)
}

// ForceValidation bypasses the cache and refreshes it.
func (c *CachedEligibility) ForceValidation(ctx context.Context, userID uuid.UUID) (EligibilityStatus, error) {
	v, err, _ := c.group.Do(userID.String(), func() (any, error) {
		status, err := c.source.Lookup(ctx, userID)
		if err != nil {
			return EligibilityStatus{}, err
		}
		c.cache.Set(userID, status)
		return status, nil
	})
	if err != nil {
		return EligibilityStatus{}, err
	}
	return v.(EligibilityStatus), nil
}

// IsDataStale reports whether there is no fresh cached status for userID.
func (c *CachedEligibility) IsDataStale(userID uuid.UUID) bool {
	_, ok := c.cache.Age(userID)
	return !ok
}

// Invalidate drops the cached status so the next Lookup hits the source.
func (c *CachedEligibility) Invalidate(userID uuid.UUID) {
	c.cache.Delete(userID)
}

// Stop releases the cache's cleanup goroutine.
func (c *CachedEligibility) Stop() {
	c.cache.Stop()
}
