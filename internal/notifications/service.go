package notifications

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"html"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"clinic-portal/clinic-portal-backend/internal/notifications/websocket"
)

const (
	KindStepChanged = "onboarding.step_changed"
	KindRedirect    = "onboarding.redirect"
	KindWelcome     = "onboarding.welcome"

	defaultListLimit = 50
	maxListLimit     = 200
)

// Pusher delivers realtime messages to a user's open sockets
type Pusher interface {
	SendToUser(userID string, message websocket.Message) error
}

// WelcomeEmail carries what the completion email needs
type WelcomeEmail struct {
	To         string
	ClinicName string
	PlanName   string
	PortalURL  string
}

// Service provides notification business logic
type Service struct {
	db     *gorm.DB
	pusher Pusher
	mailer Mailer
	logger *zap.Logger
	now    func() time.Time
}

// NewService creates a new notification service
func NewService(db *gorm.DB, pusher Pusher, mailer Mailer, logger *zap.Logger) *Service {
	return &Service{
		db:     db,
		pusher: pusher,
		mailer: mailer,
		logger: logger,
		now:    time.Now,
	}
}

// NotifyStepChanged pushes the user's new wizard step to their open sockets.
func (s *Service) NotifyStepChanged(ctx context.Context, userID uuid.UUID, step string) {
	s.push(ctx, userID, KindStepChanged, websocket.Message{
		Type: websocket.MessageTypeStepChanged,
		Data: map[string]any{"step": step},
	})
}

// NotifyRedirect tells the user's browser to navigate to url.
func (s *Service) NotifyRedirect(ctx context.Context, userID uuid.UUID, url string) {
	s.push(ctx, userID, KindRedirect, websocket.Message{
		Type: websocket.MessageTypeRedirect,
		Data: map[string]any{"url": url},
	})
}

func (s *Service) push(ctx context.Context, userID uuid.UUID, kind string, msg websocket.Message) {
	record := &SentNotification{
		UserID:  userID,
		Channel: ChannelWebSocket,
		Kind:    kind,
		Status:  StatusSent,
	}
	if payload, err := json.Marshal(msg.Data); err == nil {
		record.Payload = payload
	}

	err := s.pusher.SendToUser(userID.String(), msg)
	switch {
	case err == nil:
	case errors.Is(err, websocket.ErrUserNotConnected):
		record.Status = StatusSkipped
	default:
		record.Status = StatusFailed
		record.Error = err.Error()
		s.logger.Warn("Failed to push notification",
			zap.String("user_id", userID.String()),
			zap.String("kind", kind),
			zap.Error(err))
	}

	s.record(ctx, record)
}

// SendWelcomeEmail emails the clinic admin once onboarding finishes.
func (s *Service) SendWelcomeEmail(ctx context.Context, userID uuid.UUID, welcome WelcomeEmail) error {
	if welcome.To == "" {
		return fmt.Errorf("welcome email requires a recipient")
	}

	email := buildWelcomeEmail(welcome)
	record := &SentNotification{
		UserID:  userID,
		Channel: ChannelEmail,
		Kind:    KindWelcome,
		Subject: email.Subject,
		Status:  StatusSent,
	}

	providerID, err := s.mailer.Send(ctx, email)
	if err != nil {
		record.Status = StatusFailed
		record.Error = err.Error()
		s.record(ctx, record)
		return fmt.Errorf("failed to send welcome email: %w", err)
	}
	record.ProviderID = &providerID
	s.record(ctx, record)

	s.logger.Info("Welcome email sent",
		zap.String("user_id", userID.String()),
		zap.String("provider_id", providerID))
	return nil
}

func (s *Service) record(ctx context.Context, n *SentNotification) {
	if s.db == nil {
		return
	}
	n.SentAt = s.now().UTC()
	if err := s.db.WithContext(ctx).Create(n).Error; err != nil {
		s.logger.Error("Failed to record notification",
			zap.String("user_id", n.UserID.String()),
			zap.String("kind", n.Kind),
			zap.Error(err))
	}
}

// List returns the user's most recent notifications, newest first.
func (s *Service) List(ctx context.Context, userID uuid.UUID, limit int) ([]SentNotification, error) {
	if limit <= 0 {
		limit = defaultListLimit
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}

	var out []SentNotification
	err := s.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("sent_at DESC").
		Limit(limit).
		Find(&out).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list notifications: %w", err)
	}
	return out, nil
}

func buildWelcomeEmail(w WelcomeEmail) Email {
	name := w.ClinicName
	if name == "" {
		name = "your clinic"
	}
	subject := fmt.Sprintf("Welcome aboard, %s", name)
	text := fmt.Sprintf("Setup for %s is complete.\n\nPlan: %s\nOpen your portal: %s\n", name, w.PlanName, w.PortalURL)
	body := fmt.Sprintf(`<p>Setup for <strong>%s</strong> is complete.</p><p>Plan: %s</p><p><a href="%s">Open your portal</a></p>`,
		html.EscapeString(name), html.EscapeString(w.PlanName), html.EscapeString(w.PortalURL))

	return Email{
		To:       []string{w.To},
		Subject:  subject,
		TextBody: text,
		HTMLBody: body,
	}
}
