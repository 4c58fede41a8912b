package onboarding

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"clinic-portal/clinic-portal-backend/internal/auth"
	"clinic-portal/clinic-portal-backend/internal/billing"
	"clinic-portal/clinic-portal-backend/internal/clinics"
	"clinic-portal/clinic-portal-backend/pkg/cache"
	"clinic-portal/clinic-portal-backend/pkg/database/dbtest"
)

type flowEnv struct {
	router   *gin.Engine
	registry *Registry
	clinics  *clinics.Service
	user     uuid.UUID
}

func newFlowEnv(t *testing.T) *flowEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db := dbtest.Open(t, &clinics.Clinic{}, &billing.Subscription{}, &billing.Payment{}, &OnboardingProgress{})
	clinicService := clinics.NewService(clinics.NewRepository(db), zap.NewNop())
	billingService := billing.NewService(billing.NewRepository(db), billing.SandboxGateway{}, zap.NewNop())
	progress := NewProgressRepository(db)

	eligibility := NewCachedEligibility(NewDBEligibility(clinicService, billingService, progress), time.Minute, cache.WithCleanupInterval(0))
	t.Cleanup(eligibility.Stop)

	registry := NewRegistry(RegistryConfig{
		Submitter:       NewServiceSubmitter(clinicService, billingService),
		Progress:        progress,
		Eligibility:     eligibility,
		CompletionDelay: time.Hour,
		Logger:          zap.NewNop(),
	})
	t.Cleanup(registry.Close)

	user := uuid.New()
	r := gin.New()
	rg := r.Group("/api/v1")
	rg.Use(func(c *gin.Context) {
		auth.SetIdentity(c, auth.Identity{UserID: user, Role: auth.RoleAdmin})
		c.Next()
	})
	NewHandler(registry, zap.NewNop()).RegisterRoutes(rg)

	return &flowEnv{router: r, registry: registry, clinics: clinicService, user: user}
}

type flowBody struct {
	State            State            `json:"state"`
	Eligibility      *eligibilityView `json:"eligibility"`
	RedirectToPortal bool             `json:"redirect_to_portal"`
	Reconciliation   Outcome          `json:"reconciliation"`
	Error            string           `json:"error"`
	Path             string           `json:"path"`
}

func (e *flowEnv) do(t *testing.T, method, path string, payload any) (int, flowBody) {
	t.Helper()
	var body bytes.Buffer
	if payload != nil {
		require.NoError(t, json.NewEncoder(&body).Encode(payload))
	}
	req := httptest.NewRequest(method, "/api/v1/onboarding"+path, &body)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)

	var out flowBody
	if w.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	}
	return w.Code, out
}

func TestOnboardingFlowOverHTTP(t *testing.T) {
	env := newFlowEnv(t)

	code, body := env.do(t, http.MethodGet, "", nil)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, StepClinicInfo, body.State.CurrentStep)
	require.NotNil(t, body.Eligibility)
	assert.True(t, body.Eligibility.NeedsOnboarding)
	assert.True(t, body.Eligibility.IsLoaded)
	assert.False(t, body.RedirectToPortal)

	bad := clinicForm()
	bad.Country = "Portugal"
	code, body = env.do(t, http.MethodPost, "/clinic", bad)
	assert.Equal(t, http.StatusUnprocessableEntity, code)
	assert.Equal(t, "country", body.Path)
	assert.Equal(t, StepClinicInfo, body.State.CurrentStep)
	assert.NotEmpty(t, body.State.Error)

	code, body = env.do(t, http.MethodDelete, "/error", nil)
	assert.Equal(t, http.StatusOK, code)
	assert.Empty(t, body.State.Error)

	code, body = env.do(t, http.MethodPost, "/clinic", clinicForm())
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, StepSubscription, body.State.CurrentStep)
	assert.Equal(t, OutcomeUnchanged, body.Reconciliation)

	code, _ = env.do(t, http.MethodPost, "/payment", paymentData())
	assert.Equal(t, http.StatusConflict, code)

	code, body = env.do(t, http.MethodPost, "/subscription", subscriptionData())
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, StepPayment, body.State.CurrentStep)

	code, body = env.do(t, http.MethodPost, "/back", nil)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, StepSubscription, body.State.CurrentStep)
	assert.Empty(t, body.Reconciliation)

	switched := subscriptionData()
	switched.PlanID = "enterprise"
	code, body = env.do(t, http.MethodPost, "/subscription", switched)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, StepPayment, body.State.CurrentStep)
	assert.Equal(t, "enterprise", body.State.Data.Subscription.PlanID)

	declined := paymentData()
	declined.CardToken = "tok_declined"
	code, body = env.do(t, http.MethodPost, "/payment", declined)
	assert.Equal(t, http.StatusPaymentRequired, code)
	assert.Equal(t, StepPayment, body.State.CurrentStep)

	code, body = env.do(t, http.MethodPost, "/payment", paymentData())
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, StepComplete, body.State.CurrentStep)
	assert.True(t, body.State.JustCompletedSubscription)
	assert.NotNil(t, body.State.Data.Clinic)
	assert.NotNil(t, body.State.Data.Subscription)
	require.NotNil(t, body.State.Data.Payment)
	assert.Empty(t, body.State.Data.Payment.CardToken)

	code, body = env.do(t, http.MethodGet, "", nil)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, StepComplete, body.State.CurrentStep)
	assert.True(t, body.Eligibility.ShouldRedirectToPortal)
	assert.False(t, body.RedirectToPortal, "completion screen is shown first")

	code, _ = env.do(t, http.MethodDelete, "/session", nil)
	assert.Equal(t, http.StatusNoContent, code)
	assert.Equal(t, 0, env.registry.Len())
}

func TestMountResetsWhenClinicDeleted(t *testing.T) {
	env := newFlowEnv(t)

	for _, step := range []struct {
		path    string
		payload any
	}{
		{"/clinic", clinicForm()},
		{"/subscription", subscriptionData()},
		{"/payment", paymentData()},
	} {
		code, _ := env.do(t, http.MethodPost, step.path, step.payload)
		require.Equal(t, http.StatusOK, code, step.path)
	}

	require.NoError(t, env.clinics.DeleteByOwner(t.Context(), env.user))
	env.registry.Release(env.user)

	code, body := env.do(t, http.MethodGet, "", nil)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, OutcomeReset, body.Reconciliation)
	assert.Equal(t, StepClinicInfo, body.State.CurrentStep)
	assert.Nil(t, body.State.Data.Clinic)
	assert.False(t, body.State.JustCompletedSubscription)
}

func TestDraftsAndReset(t *testing.T) {
	env := newFlowEnv(t)

	code, body := env.do(t, http.MethodPut, "/data/clinic", clinicForm())
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, StepClinicInfo, body.State.CurrentStep)
	require.NotNil(t, body.State.Data.Clinic)

	code, body = env.do(t, http.MethodPut, "/data/subscription", subscriptionData())
	require.Equal(t, http.StatusOK, code)
	require.NotNil(t, body.State.Data.Subscription)

	code, body = env.do(t, http.MethodPut, "/data/payment", paymentData())
	require.Equal(t, http.StatusOK, code)
	require.NotNil(t, body.State.Data.Payment)

	code, body = env.do(t, http.MethodPost, "/reset", nil)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, Data{}, body.State.Data)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/onboarding/clinic", bytes.NewBufferString("{"))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	env.router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestOnboardingRequiresIdentity(t *testing.T) {
	gin.SetMode(gin.TestMode)
	registry := NewRegistry(RegistryConfig{Submitter: acceptAll(), Eligibility: &fakeSource{}})
	defer registry.Close()

	r := gin.New()
	NewHandler(registry, zap.NewNop()).RegisterRoutes(r.Group("/api/v1"))

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/onboarding", nil))
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}
