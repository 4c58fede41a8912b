package onboarding

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"clinic-portal/clinic-portal-backend/internal/billing"
	"clinic-portal/clinic-portal-backend/internal/clinics"
	"clinic-portal/clinic-portal-backend/internal/notifications"
)

// Submitter persists each step's payload on the server.
type Submitter interface {
	SubmitClinic(ctx context.Context, userID uuid.UUID, form *clinics.ClinicFormData) error
	SubmitSubscription(ctx context.Context, userID uuid.UUID, data *billing.SubscriptionData) error
	SubmitPayment(ctx context.Context, userID uuid.UUID, data *billing.PaymentData) error
}

// Completer runs the side effects of finishing onboarding.
type Completer interface {
	CompleteOnboarding(ctx context.Context, userID uuid.UUID, state State) error
}

// Notifier pushes wizard events to the user's browser.
type Notifier interface {
	NotifyStepChanged(ctx context.Context, userID uuid.UUID, step string)
	NotifyRedirect(ctx context.Context, userID uuid.UUID, url string)
}

type nopNotifier struct{}

func (nopNotifier) NotifyStepChanged(context.Context, uuid.UUID, string) {}
func (nopNotifier) NotifyRedirect(context.Context, uuid.UUID, string)    {}

// ServiceSubmitter forwards submissions to the clinics and billing services
type ServiceSubmitter struct {
	clinics *clinics.Service
	billing *billing.Service
}

func NewServiceSubmitter(clinicService *clinics.Service, billingService *billing.Service) *ServiceSubmitter {
	return &ServiceSubmitter{clinics: clinicService, billing: billingService}
}

func (s *ServiceSubmitter) SubmitClinic(ctx context.Context, userID uuid.UUID, form *clinics.ClinicFormData) error {
	_, err := s.clinics.CreateOrUpdateClinic(ctx, userID, form)
	return err
}

func (s *ServiceSubmitter) SubmitSubscription(ctx context.Context, userID uuid.UUID, data *billing.SubscriptionData) error {
	_, err := s.billing.Subscribe(ctx, userID, data)
	return err
}

func (s *ServiceSubmitter) SubmitPayment(ctx context.Context, userID uuid.UUID, data *billing.PaymentData) error {
	_, err := s.billing.ConfirmPayment(ctx, userID, data)
	return err
}

// WelcomeSender is satisfied by notifications.Service
type WelcomeSender interface {
	SendWelcomeEmail(ctx context.Context, userID uuid.UUID, welcome notifications.WelcomeEmail) error
}

// PortalCompleter sends the welcome email and redirects the browser to the
// portal. A failed email is logged and does not block completion.
type PortalCompleter struct {
	clinics   *clinics.Service
	billing   *billing.Service
	mailer    WelcomeSender
	notifier  Notifier
	portalURL string
	logger    *zap.Logger
}

func NewPortalCompleter(
	clinicService *clinics.Service,
	billingService *billing.Service,
	mailer WelcomeSender,
	notifier Notifier,
	portalURL string,
	logger *zap.Logger,
) *PortalCompleter {
	return &PortalCompleter{
		clinics:   clinicService,
		billing:   billingService,
		mailer:    mailer,
		notifier:  notifier,
		portalURL: portalURL,
		logger:    logger,
	}
}

func (c *PortalCompleter) CompleteOnboarding(ctx context.Context, userID uuid.UUID, state State) error {
	clinic, err := c.clinics.GetByOwner(ctx, userID)
	if err != nil {
		if errors.Is(err, clinics.ErrClinicNotFound) {
			return fmt.Errorf("cannot complete onboarding: %w", err)
		}
		return fmt.Errorf("failed to load clinic: %w", err)
	}

	welcome := notifications.WelcomeEmail{
		To:         clinic.Email,
		ClinicName: clinic.Name,
		PortalURL:  c.portalURL,
	}
	if sub, err := c.billing.GetSubscription(ctx, userID); err == nil {
		if plan, ok := billing.FindPlan(sub.PlanID); ok {
			welcome.PlanName = plan.Name
		}
	} else if state.Data.Subscription != nil {
		welcome.PlanName = state.Data.Subscription.PlanID
	}

	if c.mailer != nil {
		if err := c.mailer.SendWelcomeEmail(ctx, userID, welcome); err != nil {
			c.logger.Warn("Welcome email failed",
				zap.String("user_id", userID.String()),
				zap.Error(err))
		}
	}
	if c.notifier != nil {
		c.notifier.NotifyRedirect(ctx, userID, c.portalURL)
	}
	return nil
}
