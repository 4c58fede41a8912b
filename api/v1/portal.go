package v1

import (
	"context"
	"fmt"

	"github.com/gin-gonic/gin"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"clinic-portal/clinic-portal-backend/internal/auth"
	"clinic-portal/clinic-portal-backend/internal/billing"
	"clinic-portal/clinic-portal-backend/internal/clinics"
	"clinic-portal/clinic-portal-backend/internal/config"
	"clinic-portal/clinic-portal-backend/internal/notifications"
	"clinic-portal/clinic-portal-backend/internal/notifications/websocket"
	"clinic-portal/clinic-portal-backend/internal/onboarding"
	"clinic-portal/clinic-portal-backend/internal/sessions"
)

// PortalAPI holds the portal API dependencies
type PortalAPI struct {
	Tokens *auth.TokenManager

	AuthHandler          *auth.Handler
	ClinicHandler        *clinics.Handler
	BillingHandler       *billing.Handler
	SessionHandler       *sessions.Handler
	OnboardingHandler    *onboarding.Handler
	NotificationsHandler *notifications.Handler

	ClinicService       *clinics.Service
	BillingService      *billing.Service
	SessionService      *sessions.Service
	NotificationService *notifications.Service
	SessionRepository   sessions.Repository

	Sockets     *websocket.Manager
	Eligibility *onboarding.CachedEligibility
	Registry    *onboarding.Registry
	Scheduler   *onboarding.Scheduler
}

// Models lists the gorm models the portal migrates on startup.
func Models() []any {
	return []any{
		&clinics.Clinic{},
		&billing.Subscription{},
		&billing.Payment{},
		&onboarding.OnboardingProgress{},
		&notifications.SentNotification{},
	}
}

// SetupPortalAPI sets up the portal API with all dependencies. The caller
// must Start it to run background sweeps and Close it on shutdown.
func SetupPortalAPI(ctx context.Context, cfg *config.Config, db *gorm.DB, sqlDB *sqlx.DB, logger *zap.Logger) (*PortalAPI, error) {
	// Clinic and billing
	clinicService := clinics.NewService(clinics.NewRepository(db), logger)
	billingService := billing.NewService(billing.NewRepository(db), billing.SandboxGateway{}, logger)

	// Therapy sessions
	sessionRepo := sessions.NewRepository(sqlDB)
	sessionService := sessions.NewService(sessionRepo, logger)

	// Notifications
	mailer, err := notifications.NewMailer(ctx, cfg.Email, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create mailer: %w", err)
	}
	sockets := websocket.NewManager(logger, cfg.Server.AllowedOrigins)
	notificationService := notifications.NewService(db, sockets, mailer, logger)

	// Onboarding
	progress := onboarding.NewProgressRepository(db)
	eligibility := onboarding.NewCachedEligibility(
		onboarding.NewDBEligibility(clinicService, billingService, progress),
		cfg.Onboarding.DataTTL.Std(),
	)
	registry := onboarding.NewRegistry(onboarding.RegistryConfig{
		Submitter: onboarding.NewServiceSubmitter(clinicService, billingService),
		Completer: onboarding.NewPortalCompleter(
			clinicService, billingService, notificationService, notificationService,
			cfg.Onboarding.PortalURL, logger),
		Progress:        progress,
		Notifier:        notificationService,
		Eligibility:     eligibility,
		CompletionDelay: cfg.Onboarding.CompletionDelay.Std(),
		Logger:          logger,
	})

	tokens := auth.NewTokenManager(cfg.Auth)

	return &PortalAPI{
		Tokens: tokens,

		AuthHandler:          auth.NewHandler(tokens, registry, cfg.Auth.AllowDevTokens, logger),
		ClinicHandler:        clinics.NewHandler(clinicService, logger),
		BillingHandler:       billing.NewHandler(billingService, logger),
		SessionHandler:       sessions.NewHandler(sessionService, logger),
		OnboardingHandler:    onboarding.NewHandler(registry, logger),
		NotificationsHandler: notifications.NewHandler(notificationService, sockets, logger),

		ClinicService:       clinicService,
		BillingService:      billingService,
		SessionService:      sessionService,
		NotificationService: notificationService,
		SessionRepository:   sessionRepo,

		Sockets:     sockets,
		Eligibility: eligibility,
		Registry:    registry,
		Scheduler:   onboarding.NewScheduler(registry, cfg.Onboarding.SweepSpec, logger),
	}, nil
}

// Start launches the periodic onboarding reconciliation sweep
func (api *PortalAPI) Start() error {
	return api.Scheduler.Start()
}

// Close stops background work. Live onboarding sessions are torn down before
// the socket hub so their final notifications still have somewhere to go.
func (api *PortalAPI) Close() {
	api.Scheduler.Stop()
	api.Registry.Close()
	api.Eligibility.Stop()
	api.Sockets.Close()
}

// RegisterPortalRoutes registers the portal routes on the router group.
// Everything except token issuance sits behind RequireAuth.
func RegisterPortalRoutes(router *gin.RouterGroup, api *PortalAPI) {
	requireAuth := auth.RequireAuth(api.Tokens)
	auth.RegisterRoutes(router, api.AuthHandler, requireAuth)

	protected := router.Group("")
	protected.Use(requireAuth)
	{
		api.ClinicHandler.RegisterRoutes(protected)
		api.BillingHandler.RegisterRoutes(protected)
		api.SessionHandler.RegisterRoutes(protected)
		api.OnboardingHandler.RegisterRoutes(protected)
		api.NotificationsHandler.RegisterRoutes(protected)
	}
}
