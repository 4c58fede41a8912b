package sessions

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap"
)

func TestNoShowWorkerRunOnce(t *testing.T) {
	repo := new(MockRepository)
	svc := newTestService(repo)
	cfg := DefaultNoShowWorkerConfig()
	w := NewNoShowWorker(svc, repo, zap.NewNop(), cfg)

	overdue := Session{ID: uuid.New(), Status: StatusScheduled}
	raced := Session{ID: uuid.New(), Status: StatusScheduled}

	repo.On("ListOverdueScheduled", mock.Anything, fixedNow.Add(-cfg.Grace), cfg.BatchSize).
		Return([]Session{overdue, raced}, nil)
	repo.On("GetSession", mock.Anything, overdue.ID).Return(&overdue, nil)
	repo.On("GetSession", mock.Anything, raced.ID).Return(&Session{ID: raced.ID, Status: StatusStarted}, nil)
	repo.On("UpdateStatus", mock.Anything, mock.MatchedBy(func(c *StatusChange) bool {
		return c.SessionID == overdue.ID && c.To == StatusNoShow && c.ChangedBy == SystemActorID
	})).Return(true, nil)

	marked, err := w.RunOnce(context.Background())

	require.NoError(t, err)
	assert.Equal(t, 1, marked)
	repo.AssertExpectations(t)
}

func TestNoShowWorkerStopsOnError(t *testing.T) {
	repo := new(MockRepository)
	w := NewNoShowWorker(newTestService(repo), repo, zap.NewNop(), DefaultNoShowWorkerConfig())
	repo.On("ListOverdueScheduled", mock.Anything, mock.Anything, mock.Anything).
		Return([]Session(nil), errors.New("db down"))

	_, err := w.RunOnce(context.Background())
	assert.Error(t, err)
}

func TestNoShowWorkerStop(t *testing.T) {
	defer goleak.VerifyNone(t)

	repo := new(MockRepository)
	repo.On("ListOverdueScheduled", mock.Anything, mock.Anything, mock.Anything).Return([]Session{}, nil)

	cfg := DefaultNoShowWorkerConfig()
	cfg.PollInterval = time.Hour
	w := NewNoShowWorker(newTestService(repo), repo, zap.NewNop(), cfg)

	done := make(chan error)
	go func() { done <- w.Start(context.Background()) }()

	w.Stop()
	w.Stop()
	require.NoError(t, <-done)
}
