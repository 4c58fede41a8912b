package sessions

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"
)

// MockRepository is a mock implementation of the Repository interface
type MockRepository struct {
	mock.Mock
}

func (m *MockRepository) EnsureSchema(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

func (m *MockRepository) CreateSession(ctx context.Context, session *Session, initial *StatusHistory) error {
	args := m.Called(ctx, session, initial)
	return args.Error(0)
}

func (m *MockRepository) GetSession(ctx context.Context, id uuid.UUID) (*Session, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*Session), args.Error(1)
}

func (m *MockRepository) ListSessions(ctx context.Context, filter *SessionFilter) ([]Session, int, error) {
	args := m.Called(ctx, filter)
	return args.Get(0).([]Session), args.Int(1), args.Error(2)
}

func (m *MockRepository) UpdateStatus(ctx context.Context, change *StatusChange) (bool, error) {
	args := m.Called(ctx, change)
	return args.Bool(0), args.Error(1)
}

func (m *MockRepository) ListStatusHistory(ctx context.Context, sessionID uuid.UUID) ([]StatusHistory, error) {
	args := m.Called(ctx, sessionID)
	return args.Get(0).([]StatusHistory), args.Error(1)
}

func (m *MockRepository) ListOverdueScheduled(ctx context.Context, before time.Time, limit int) ([]Session, error) {
	args := m.Called(ctx, before, limit)
	return args.Get(0).([]Session), args.Error(1)
}

var fixedNow = time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)

func newTestService(repo Repository) *Service {
	svc := NewService(repo, zap.NewNop())
	svc.now = func() time.Time { return fixedNow }
	return svc
}

func TestCreateSessionDefaultsToNew(t *testing.T) {
	repo := new(MockRepository)
	svc := newTestService(repo)
	actor := uuid.New()

	repo.On("CreateSession", mock.Anything, mock.MatchedBy(func(s *Session) bool {
		return s.Status == StatusNew && s.TherapistID == actor && s.DurationMinutes == defaultDurationMinutes
	}), (*StatusHistory)(nil)).Return(nil)

	session, err := svc.CreateSession(context.Background(), actor, &CreateSessionRequest{
		TherapyID: uuid.New(),
		ClientID:  uuid.New(),
	})

	require.NoError(t, err)
	assert.Equal(t, StatusNew, session.Status)
	assert.Equal(t, fixedNow, session.CreatedAt)
	repo.AssertExpectations(t)
}

func TestCreateSessionRejectsUnreachableInitialStatus(t *testing.T) {
	repo := new(MockRepository)
	svc := newTestService(repo)

	_, err := svc.CreateSession(context.Background(), uuid.New(), &CreateSessionRequest{
		TherapyID: uuid.New(),
		ClientID:  uuid.New(),
		Status:    StatusCompleted,
	})

	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "status", verr.Path)
	repo.AssertNotCalled(t, "CreateSession", mock.Anything, mock.Anything, mock.Anything)
}

func TestCreateCancelledSessionRecordsHistory(t *testing.T) {
	repo := new(MockRepository)
	svc := newTestService(repo)
	actor := uuid.New()

	var saved *StatusHistory
	repo.On("CreateSession", mock.Anything, mock.AnythingOfType("*sessions.Session"), mock.AnythingOfType("*sessions.StatusHistory")).
		Run(func(args mock.Arguments) { saved = args.Get(2).(*StatusHistory) }).
		Return(nil)

	session, err := svc.CreateSession(context.Background(), actor, &CreateSessionRequest{
		TherapyID: uuid.New(),
		ClientID:  uuid.New(),
		Status:    StatusCancelled,
	})

	require.NoError(t, err)
	require.NotNil(t, session.CancelledAt)
	require.NotNil(t, saved)
	assert.Equal(t, session.ID, saved.SessionID)
	assert.Equal(t, StatusNew, saved.FromStatus)
	assert.Equal(t, StatusCancelled, saved.ToStatus)
	assert.Equal(t, actor, saved.ChangedBy)
	assert.Equal(t, fixedNow, saved.ChangedAt)
	repo.AssertExpectations(t)
}

func TestCreateScheduledSessionNeedsTime(t *testing.T) {
	svc := newTestService(new(MockRepository))

	_, err := svc.CreateSession(context.Background(), uuid.New(), &CreateSessionRequest{
		TherapyID: uuid.New(),
		ClientID:  uuid.New(),
		Status:    StatusScheduled,
	})

	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "scheduled_at", verr.Path)
}

func TestUpdateStatusStampsAndRecords(t *testing.T) {
	repo := new(MockRepository)
	svc := newTestService(repo)
	id := uuid.New()
	actor := uuid.New()

	repo.On("GetSession", mock.Anything, id).Return(&Session{ID: id, Status: StatusScheduled}, nil)
	repo.On("UpdateStatus", mock.Anything, mock.MatchedBy(func(c *StatusChange) bool {
		return c.From == StatusScheduled && c.To == StatusStarted &&
			c.ChangedBy == actor && c.StartedAt != nil && c.StartedAt.Equal(fixedNow)
	})).Return(true, nil)

	session, err := svc.UpdateStatus(context.Background(), id, StatusStarted, actor, "")

	require.NoError(t, err)
	assert.Equal(t, StatusStarted, session.Status)
	require.NotNil(t, session.StartedAt)
	assert.Equal(t, fixedNow, *session.StartedAt)
	repo.AssertExpectations(t)
}

func TestUpdateStatusRejectsIllegalTransition(t *testing.T) {
	repo := new(MockRepository)
	svc := newTestService(repo)
	id := uuid.New()

	repo.On("GetSession", mock.Anything, id).Return(&Session{ID: id, Status: StatusCompleted}, nil)

	_, err := svc.UpdateStatus(context.Background(), id, StatusStarted, uuid.New(), "")

	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "status", verr.Path)
	repo.AssertNotCalled(t, "UpdateStatus", mock.Anything, mock.Anything)
}

func TestUpdateStatusLostRace(t *testing.T) {
	repo := new(MockRepository)
	svc := newTestService(repo)
	id := uuid.New()

	repo.On("GetSession", mock.Anything, id).Return(&Session{ID: id, Status: StatusScheduled}, nil)
	repo.On("UpdateStatus", mock.Anything, mock.Anything).Return(false, nil)

	_, err := svc.UpdateStatus(context.Background(), id, StatusCancelled, uuid.New(), "client called")
	assert.ErrorIs(t, err, ErrStatusConflict)
}

func TestUpdateStatusMissingSession(t *testing.T) {
	repo := new(MockRepository)
	svc := newTestService(repo)
	id := uuid.New()

	repo.On("GetSession", mock.Anything, id).Return(nil, nil)

	_, err := svc.UpdateStatus(context.Background(), id, StatusCancelled, uuid.New(), "")
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestListSessionsNormalisesPaging(t *testing.T) {
	repo := new(MockRepository)
	svc := newTestService(repo)

	repo.On("ListSessions", mock.Anything, mock.MatchedBy(func(f *SessionFilter) bool {
		return f.Page == 1 && f.PageSize == maxPageSize && f.SortBy == SortScheduledAt && f.SortOrder == SortAsc
	})).Return([]Session{{ID: uuid.New()}}, 250, nil)

	resp, err := svc.ListSessions(context.Background(), &SessionFilter{Page: -3, PageSize: 1000})

	require.NoError(t, err)
	assert.Equal(t, 250, resp.TotalCount)
	assert.True(t, resp.HasMore)
	assert.Len(t, resp.Sessions, 1)
}

func TestListSessionsRejectsBadSort(t *testing.T) {
	svc := newTestService(new(MockRepository))

	_, err := svc.ListSessions(context.Background(), &SessionFilter{SortBy: "notes; DROP TABLE"})

	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "sort_by", verr.Path)
}

func TestGetAllowedTransitions(t *testing.T) {
	repo := new(MockRepository)
	svc := newTestService(repo)
	id := uuid.New()
	repo.On("GetSession", mock.Anything, id).Return(&Session{ID: id, Status: StatusStarted}, nil)

	allowed, err := svc.GetAllowedTransitions(context.Background(), id)
	require.NoError(t, err)
	assert.ElementsMatch(t, []SessionStatus{StatusCompleted, StatusCancelled}, allowed)
}

func TestExportSessionsWalksAllPages(t *testing.T) {
	repo := new(MockRepository)
	svc := newTestService(repo)

	first := make([]Session, maxPageSize)
	for i := range first {
		first[i] = Session{ID: uuid.New(), Status: StatusNew}
	}
	second := []Session{{ID: uuid.New(), Status: StatusCancelled, Notes: "last"}}

	repo.On("ListSessions", mock.Anything, mock.MatchedBy(func(f *SessionFilter) bool { return f.Page == 1 })).
		Return(first, maxPageSize+1, nil).Once()
	repo.On("ListSessions", mock.Anything, mock.MatchedBy(func(f *SessionFilter) bool { return f.Page == 2 })).
		Return(second, maxPageSize+1, nil).Once()

	var buf bytes.Buffer
	require.NoError(t, svc.ExportSessions(context.Background(), &SessionFilter{}, &buf))

	f, err := excelize.OpenReader(&buf)
	require.NoError(t, err)
	defer f.Close()
	rows, err := f.GetRows(exportSheet)
	require.NoError(t, err)
	assert.Len(t, rows, maxPageSize+2)
	repo.AssertExpectations(t)
}

func TestExportSessionsPropagatesErrors(t *testing.T) {
	repo := new(MockRepository)
	svc := newTestService(repo)
	repo.On("ListSessions", mock.Anything, mock.Anything).Return([]Session(nil), 0, errors.New("db down"))

	var buf bytes.Buffer
	assert.Error(t, svc.ExportSessions(context.Background(), &SessionFilter{}, &buf))
}
