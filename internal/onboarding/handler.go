package onboarding

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"clinic-portal/clinic-portal-backend/internal/auth"
	"clinic-portal/clinic-portal-backend/internal/billing"
	"clinic-portal/clinic-portal-backend/internal/clinics"
	"clinic-portal/clinic-portal-backend/pkg/validation"
)

type Handler struct {
	registry *Registry
	logger   *zap.Logger
}

func NewHandler(registry *Registry, logger *zap.Logger) *Handler {
	return &Handler{registry: registry, logger: logger}
}

func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	onboarding := rg.Group("/onboarding")
	{
		onboarding.GET("", h.Mount)
		onboarding.PUT("/data/clinic", h.UpdateClinicData)
		onboarding.PUT("/data/subscription", h.UpdateSubscriptionData)
		onboarding.PUT("/data/payment", h.UpdatePaymentData)
		onboarding.POST("/clinic", h.SubmitClinic)
		onboarding.POST("/subscription", h.SubmitSubscription)
		onboarding.POST("/payment", h.SubmitPayment)
		onboarding.POST("/back", h.Back)
		onboarding.POST("/reset", h.Reset)
		onboarding.DELETE("/error", h.ClearError)
		onboarding.DELETE("/session", h.Unmount)
	}
}

// eligibilityView is what the wizard UI reads to decide where to go
type eligibilityView struct {
	NeedsOnboarding        bool `json:"needs_onboarding"`
	UserHasClinic          bool `json:"user_has_clinic"`
	HasSubscription        bool `json:"has_subscription"`
	HasActiveSubscription  bool `json:"has_active_subscription"`
	PaymentConfirmed       bool `json:"payment_confirmed"`
	IsLoaded               bool `json:"is_loaded"`
	ShouldRedirectToPortal bool `json:"should_redirect_to_portal"`
	CurrentStep            Step `json:"current_step"`
}

type flowResponse struct {
	State            State            `json:"state"`
	Eligibility      *eligibilityView `json:"eligibility,omitempty"`
	RedirectToPortal bool             `json:"redirect_to_portal"`
	Reconciliation   Outcome          `json:"reconciliation,omitempty"`
}

func (h *Handler) session(c *gin.Context) (*Session, bool) {
	userID, ok := auth.CurrentUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "authentication required"})
		return nil, false
	}
	sess, err := h.registry.Acquire(c.Request.Context(), userID)
	if err != nil {
		if errors.Is(err, ErrRegistryClosed) {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "service shutting down"})
			return nil, false
		}
		h.logger.Error("Failed to open onboarding session", zap.String("user_id", userID.String()), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
		return nil, false
	}
	return sess, true
}

// Mount handles GET /onboarding: open the session and sync it with the server.
func (h *Handler) Mount(c *gin.Context) {
	sess, ok := h.session(c)
	if !ok {
		return
	}
	h.respond(c, http.StatusOK, sess, h.reconcile(c.Request.Context(), sess, TriggerMount))
}

func (h *Handler) UpdateClinicData(c *gin.Context) {
	var form clinics.ClinicFormData
	h.update(c, &form, func(ctx context.Context, s *Store) error { return s.UpdateClinicData(ctx, &form) })
}

func (h *Handler) UpdateSubscriptionData(c *gin.Context) {
	var data billing.SubscriptionData
	h.update(c, &data, func(ctx context.Context, s *Store) error { return s.UpdateSubscriptionData(ctx, &data) })
}

func (h *Handler) UpdatePaymentData(c *gin.Context) {
	var data billing.PaymentData
	h.update(c, &data, func(ctx context.Context, s *Store) error { return s.UpdatePaymentData(ctx, &data) })
}

func (h *Handler) update(c *gin.Context, payload any, apply func(context.Context, *Store) error) {
	if err := c.ShouldBindJSON(payload); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	sess, ok := h.session(c)
	if !ok {
		return
	}
	if err := apply(c.Request.Context(), sess.Store); err != nil {
		h.respondError(c, sess, err)
		return
	}
	h.respond(c, http.StatusOK, sess, nil)
}

func (h *Handler) SubmitClinic(c *gin.Context) {
	var form clinics.ClinicFormData
	h.submit(c, &form, func(ctx context.Context, s *Store) error { return s.SubmitClinicData(ctx, &form) })
}

func (h *Handler) SubmitSubscription(c *gin.Context) {
	var data billing.SubscriptionData
	h.submit(c, &data, func(ctx context.Context, s *Store) error { return s.SubmitSubscription(ctx, &data) })
}

func (h *Handler) SubmitPayment(c *gin.Context) {
	var data billing.PaymentData
	h.submit(c, &data, func(ctx context.Context, s *Store) error { return s.SubmitPayment(ctx, &data) })
}

func (h *Handler) submit(c *gin.Context, payload any, run func(context.Context, *Store) error) {
	if err := c.ShouldBindJSON(payload); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	sess, ok := h.session(c)
	if !ok {
		return
	}
	if err := run(c.Request.Context(), sess.Store); err != nil {
		h.respondError(c, sess, err)
		return
	}
	h.respond(c, http.StatusOK, sess, h.enterStep(c.Request.Context(), sess))
}

// Back handles POST /onboarding/back. It skips step-entry reconciliation, so
// the step is not pushed forward on this request; the next sweep or mount
// still realigns it with the server.
func (h *Handler) Back(c *gin.Context) {
	sess, ok := h.session(c)
	if !ok {
		return
	}
	if err := sess.Store.PrevStep(c.Request.Context()); err != nil {
		h.respondError(c, sess, err)
		return
	}
	h.respond(c, http.StatusOK, sess, nil)
}

func (h *Handler) Reset(c *gin.Context) {
	sess, ok := h.session(c)
	if !ok {
		return
	}
	if err := sess.Store.ResetOnboarding(c.Request.Context()); err != nil {
		h.respondError(c, sess, err)
		return
	}
	h.respond(c, http.StatusOK, sess, nil)
}

func (h *Handler) ClearError(c *gin.Context) {
	sess, ok := h.session(c)
	if !ok {
		return
	}
	if err := sess.Store.ClearError(c.Request.Context()); err != nil {
		h.respondError(c, sess, err)
		return
	}
	h.respond(c, http.StatusOK, sess, nil)
}

// Unmount handles DELETE /onboarding/session
func (h *Handler) Unmount(c *gin.Context) {
	userID, ok := auth.CurrentUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "authentication required"})
		return
	}
	h.registry.Release(userID)
	c.Status(http.StatusNoContent)
}

// enterStep reconciles when a submission lands on Subscription or Payment.
func (h *Handler) enterStep(ctx context.Context, sess *Session) *ReconcileResult {
	switch sess.Store.Step() {
	case StepSubscription, StepPayment:
		return h.reconcile(ctx, sess, TriggerStepEntry)
	default:
		return nil
	}
}

func (h *Handler) reconcile(ctx context.Context, sess *Session, trigger Trigger) *ReconcileResult {
	result, err := sess.Reconciler.Check(ctx, trigger)
	if err != nil {
		h.logger.Warn("Onboarding reconciliation failed",
			zap.String("user_id", sess.Store.UserID().String()),
			zap.String("trigger", string(trigger)),
			zap.Error(err))
		return nil
	}
	return &result
}

func (h *Handler) respond(c *gin.Context, code int, sess *Session, result *ReconcileResult) {
	state := sess.Store.Snapshot()
	resp := flowResponse{State: state}
	if result != nil {
		resp.Reconciliation = result.Outcome
		if result.Eligibility != nil {
			resp.Eligibility = newEligibilityView(*result.Eligibility)
			resp.RedirectToPortal = result.Eligibility.ShouldRedirectToPortal() && !state.JustCompletedSubscription
		}
	}
	c.JSON(code, resp)
}

func newEligibilityView(e EligibilityStatus) *eligibilityView {
	return &eligibilityView{
		NeedsOnboarding:        e.NeedsOnboarding(),
		UserHasClinic:          e.UserHasClinic,
		HasSubscription:        e.HasSubscription,
		HasActiveSubscription:  e.HasActiveSubscription,
		PaymentConfirmed:       e.PaymentConfirmed,
		IsLoaded:               true,
		ShouldRedirectToPortal: e.ShouldRedirectToPortal(),
		CurrentStep:            e.CurrentStep(),
	}
}

func (h *Handler) respondError(c *gin.Context, sess *Session, err error) {
	state := sess.Store.Snapshot()
	var verr *validation.Error
	switch {
	case errors.As(err, &verr):
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": verr.Message, "path": verr.Path, "state": state})
	case errors.Is(err, billing.ErrPaymentDeclined):
		c.JSON(http.StatusPaymentRequired, gin.H{"error": err.Error(), "state": state})
	case errors.Is(err, ErrStepNotReady),
		errors.Is(err, ErrSubmissionInProgress),
		errors.Is(err, ErrStoreClosed),
		errors.Is(err, billing.ErrSubscriptionActive),
		errors.Is(err, billing.ErrNoSubscription):
		c.JSON(http.StatusConflict, gin.H{"error": userMessage(err), "state": state})
	default:
		h.logger.Error("Onboarding request failed",
			zap.String("user_id", sess.Store.UserID().String()),
			zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error", "state": state})
	}
}

var _ auth.SessionReleaser = (*Registry)(nil)

