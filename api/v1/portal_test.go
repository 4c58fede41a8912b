package v1

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"clinic-portal/clinic-portal-backend/internal/config"
	"clinic-portal/clinic-portal-backend/pkg/database/dbtest"
)

func newTestPortal(t *testing.T) (*gin.Engine, *PortalAPI) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	cfg := config.Default()
	cfg.Auth.JWTSecret = "test-secret"
	cfg.Auth.AllowDevTokens = true

	db := dbtest.Open(t, Models()...)
	// sessions are not touched here, so no sqlx connection is needed
	api, err := SetupPortalAPI(context.Background(), cfg, db, nil, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(api.Close)

	r := gin.New()
	RegisterPortalRoutes(r.Group("/api/v1"), api)
	return r, api
}

func do(r *gin.Engine, method, path, token string, body any) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestPortalRoutesRequireToken(t *testing.T) {
	r, _ := newTestPortal(t)

	for _, path := range []string{"/api/v1/onboarding", "/api/v1/clinics/me", "/api/v1/notifications", "/api/v1/auth/me"} {
		w := do(r, http.MethodGet, path, "", nil)
		assert.Equal(t, http.StatusUnauthorized, w.Code, path)
	}
}

func TestPortalDevTokenOpensOnboarding(t *testing.T) {
	r, api := newTestPortal(t)

	w := do(r, http.MethodPost, "/api/v1/auth/token", "", map[string]string{"email": "admin@clinic.test"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var issued struct {
		AccessToken string `json:"access_token"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &issued))
	require.NotEmpty(t, issued.AccessToken)

	w = do(r, http.MethodGet, "/api/v1/onboarding", issued.AccessToken, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var flow struct {
		State struct {
			CurrentStep string `json:"current_step"`
		} `json:"state"`
		RedirectToPortal bool `json:"redirect_to_portal"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &flow))
	assert.Equal(t, "clinic_info", flow.State.CurrentStep)
	assert.False(t, flow.RedirectToPortal)
	assert.Equal(t, 1, api.Registry.Len())

	w = do(r, http.MethodGet, "/api/v1/billing/plans", issued.AccessToken, nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w = do(r, http.MethodPost, "/api/v1/auth/logout", issued.AccessToken, nil)
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, 0, api.Registry.Len())
}
