package billing

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

var (
	ErrNoSubscription     = errors.New("no subscription found")
	ErrSubscriptionActive = errors.New("subscription is already active")
	ErrUnknownPlan        = errors.New("unknown plan")
)

// Service manages subscriptions and payments
type Service struct {
	repo    Repository
	gateway Gateway
	logger  *zap.Logger
	now     func() time.Time
}

// NewService creates a new billing service
func NewService(repo Repository, gateway Gateway, logger *zap.Logger) *Service {
	return &Service{
		repo:    repo,
		gateway: gateway,
		logger:  logger,
		now:     time.Now,
	}
}

func (s *Service) Plans() []Plan {
	return Plans()
}

// Subscribe records the chosen plan. The subscription stays pending until a
// payment is confirmed; re-subscribing while pending switches the plan.
func (s *Service) Subscribe(ctx context.Context, userID uuid.UUID, data *SubscriptionData) (*Subscription, error) {
	if data == nil {
		return nil, &ValidationError{Path: "subscription", Message: "subscription details are required"}
	}
	if err := data.Validate(); err != nil {
		return nil, err
	}
	plan, ok := FindPlan(data.PlanID)
	if !ok {
		return nil, ErrUnknownPlan
	}

	sub, err := s.repo.GetSubscription(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to load subscription: %w", err)
	}
	if sub != nil && sub.Status == SubscriptionActive {
		return nil, ErrSubscriptionActive
	}
	if sub == nil {
		sub = &Subscription{UserID: userID}
	}

	seats := data.Seats
	if seats == 0 {
		seats = 1
	}
	sub.PlanID = plan.ID
	sub.BillingCycle = data.BillingCycle
	sub.Seats = seats
	sub.Status = SubscriptionPendingPayment
	sub.AmountCents = plan.Price(data.BillingCycle) * int64(seats)
	sub.Currency = plan.Currency
	sub.CanceledAt = nil

	if err := s.repo.SaveSubscription(ctx, sub); err != nil {
		return nil, fmt.Errorf("failed to save subscription: %w", err)
	}

	s.logger.Info("Subscription pending payment",
		zap.String("user_id", userID.String()),
		zap.String("plan_id", plan.ID),
		zap.String("billing_cycle", string(data.BillingCycle)))

	return sub, nil
}

// ConfirmPayment charges the pending subscription and activates it.
func (s *Service) ConfirmPayment(ctx context.Context, userID uuid.UUID, data *PaymentData) (*Payment, error) {
	if data == nil {
		return nil, &ValidationError{Path: "payment", Message: "payment details are required"}
	}
	if err := data.Validate(); err != nil {
		return nil, err
	}

	sub, err := s.repo.GetSubscription(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to load subscription: %w", err)
	}
	if sub == nil || sub.Status == SubscriptionCanceled {
		return nil, ErrNoSubscription
	}
	if sub.Status == SubscriptionActive {
		return nil, ErrSubscriptionActive
	}

	ref, err := s.gateway.Charge(ctx, ChargeRequest{
		UserID:      userID,
		AmountCents: sub.AmountCents,
		Currency:    sub.Currency,
		Method:      data.Method,
		CardToken:   data.CardToken,
	})
	if err != nil {
		s.logger.Warn("Payment failed",
			zap.String("user_id", userID.String()),
			zap.Error(err))
		return nil, err
	}

	now := s.now().UTC()
	periodEnd := now.AddDate(0, 1, 0)
	if sub.BillingCycle == CycleYearly {
		periodEnd = now.AddDate(1, 0, 0)
	}

	payment := &Payment{
		SubscriptionID: sub.ID,
		UserID:         userID,
		AmountCents:    sub.AmountCents,
		Currency:       sub.Currency,
		Method:         data.Method,
		CardLast4:      data.CardLast4,
		ProviderRef:    ref,
		Status:         PaymentConfirmed,
		ConfirmedAt:    &now,
	}
	sub.Status = SubscriptionActive
	sub.ActivatedAt = &now
	sub.CurrentPeriodEnd = &periodEnd

	if err := s.repo.ActivateWithPayment(ctx, sub, payment); err != nil {
		return nil, fmt.Errorf("failed to record payment: %w", err)
	}

	s.logger.Info("Subscription activated",
		zap.String("user_id", userID.String()),
		zap.String("subscription_id", sub.ID.String()),
		zap.String("payment_id", payment.ID.String()))

	return payment, nil
}

func (s *Service) GetSubscription(ctx context.Context, userID uuid.UUID) (*Subscription, error) {
	sub, err := s.repo.GetSubscription(ctx, userID)
	if err != nil {
		return nil, err
	}
	if sub == nil {
		return nil, ErrNoSubscription
	}
	return sub, nil
}

// Status reports the user's billing progress as seen by the database.
func (s *Service) Status(ctx context.Context, userID uuid.UUID) (BillingStatus, error) {
	var status BillingStatus

	sub, err := s.repo.GetSubscription(ctx, userID)
	if err != nil {
		return status, err
	}
	if sub == nil || sub.Status == SubscriptionCanceled {
		return status, nil
	}

	status.HasSubscription = true
	status.HasActiveSubscription = sub.Status == SubscriptionActive

	confirmed, err := s.repo.HasConfirmedPayment(ctx, sub.ID)
	if err != nil {
		return status, err
	}
	status.PaymentConfirmed = confirmed
	return status, nil
}
