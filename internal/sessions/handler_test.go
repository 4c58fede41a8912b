package sessions

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"clinic-portal/clinic-portal-backend/internal/auth"
)

func newTestRouter(repo Repository, actor uuid.UUID) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	rg := r.Group("/api/v1")
	rg.Use(func(c *gin.Context) {
		auth.SetIdentity(c, auth.Identity{UserID: actor, Role: auth.RoleTherapist})
		c.Next()
	})
	NewHandler(newTestService(repo), zap.NewNop()).RegisterRoutes(rg)
	return r
}

func TestHandlerUpdateStatusValidationError(t *testing.T) {
	repo := new(MockRepository)
	id := uuid.New()
	repo.On("GetSession", mock.Anything, id).Return(&Session{ID: id, Status: StatusCancelled}, nil)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPatch, "/api/v1/sessions/"+id.String()+"/status",
		strings.NewReader(`{"status":"scheduled"}`))
	req.Header.Set("Content-Type", "application/json")
	newTestRouter(repo, uuid.New()).ServeHTTP(w, req)

	require.Equal(t, http.StatusUnprocessableEntity, w.Code)
	var body map[string]string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "status", body["path"])
	assert.Equal(t, "cannot change session status from cancelled to scheduled", body["error"])
}

func TestHandlerUpdateStatusConflict(t *testing.T) {
	repo := new(MockRepository)
	id := uuid.New()
	repo.On("GetSession", mock.Anything, id).Return(&Session{ID: id, Status: StatusNew}, nil)
	repo.On("UpdateStatus", mock.Anything, mock.Anything).Return(false, nil)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPatch, "/api/v1/sessions/"+id.String()+"/status",
		strings.NewReader(`{"status":"scheduled"}`))
	req.Header.Set("Content-Type", "application/json")
	newTestRouter(repo, uuid.New()).ServeHTTP(w, req)

	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestHandlerGetNotFound(t *testing.T) {
	repo := new(MockRepository)
	id := uuid.New()
	repo.On("GetSession", mock.Anything, id).Return(nil, nil)

	w := httptest.NewRecorder()
	newTestRouter(repo, uuid.New()).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/sessions/"+id.String(), nil))
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = httptest.NewRecorder()
	newTestRouter(repo, uuid.New()).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/sessions/not-a-uuid", nil))
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestHandlerCreateUsesCaller(t *testing.T) {
	repo := new(MockRepository)
	actor := uuid.New()
	repo.On("CreateSession", mock.Anything, mock.MatchedBy(func(s *Session) bool {
		return s.TherapistID == actor
	}), (*StatusHistory)(nil)).Return(nil)

	body := `{"therapy_id":"` + uuid.NewString() + `","client_id":"` + uuid.NewString() + `"}`
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/sessions", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	newTestRouter(repo, actor).ServeHTTP(w, req)

	require.Equal(t, http.StatusCreated, w.Code)
	var got Session
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
	assert.Equal(t, StatusNew, got.Status)
	repo.AssertExpectations(t)
}

func TestHandlerListParsesFilters(t *testing.T) {
	repo := new(MockRepository)
	therapist := uuid.New()
	repo.On("ListSessions", mock.Anything, mock.MatchedBy(func(f *SessionFilter) bool {
		return f.TherapistID != nil && *f.TherapistID == therapist &&
			len(f.Statuses) == 2 && f.Statuses[0] == StatusScheduled && f.Statuses[1] == StatusStarted &&
			f.SortBy == SortCreatedAt && f.SortOrder == SortDesc &&
			f.Page == 2 && f.PageSize == 10 && f.ScheduledFrom != nil
	})).Return([]Session{}, 0, nil)

	url := "/api/v1/sessions?therapist_id=" + therapist.String() +
		"&status=scheduled,started&sort_by=created_at&sort_order=DESC&page=2&page_size=10" +
		"&scheduled_from=2026-01-01T00:00:00Z"
	w := httptest.NewRecorder()
	newTestRouter(repo, uuid.New()).ServeHTTP(w, httptest.NewRequest(http.MethodGet, url, nil))

	require.Equal(t, http.StatusOK, w.Code)
	repo.AssertExpectations(t)
}

func TestHandlerListRejectsUnknownStatus(t *testing.T) {
	w := httptest.NewRecorder()
	newTestRouter(new(MockRepository), uuid.New()).ServeHTTP(w,
		httptest.NewRequest(http.MethodGet, "/api/v1/sessions?status=paused", nil))

	require.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.Contains(t, w.Body.String(), `"path":"status"`)
}

func TestHandlerTransitions(t *testing.T) {
	repo := new(MockRepository)
	id := uuid.New()
	repo.On("GetSession", mock.Anything, id).Return(&Session{ID: id, Status: StatusNew}, nil)

	w := httptest.NewRecorder()
	newTestRouter(repo, uuid.New()).ServeHTTP(w,
		httptest.NewRequest(http.MethodGet, "/api/v1/sessions/"+id.String()+"/transitions", nil))

	require.Equal(t, http.StatusOK, w.Code)
	var body struct {
		Allowed []SessionStatus `json:"allowed"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.ElementsMatch(t, []SessionStatus{StatusScheduled, StatusCancelled}, body.Allowed)
}
