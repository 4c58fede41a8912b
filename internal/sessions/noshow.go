package sessions

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// SystemActorID is recorded as changed_by for automatic status changes.
var SystemActorID = uuid.Nil

// NoShowWorker marks scheduled sessions that never started as no-shows
type NoShowWorker struct {
	service *Service
	repo    Repository
	logger  *zap.Logger
	config  NoShowWorkerConfig
	done    chan struct{}
	once    sync.Once
}

// NoShowWorkerConfig configuration for the no-show worker
type NoShowWorkerConfig struct {
	Grace        time.Duration
	PollInterval time.Duration
	BatchSize    int
}

// DefaultNoShowWorkerConfig returns default configuration
func DefaultNoShowWorkerConfig() NoShowWorkerConfig {
	return NoShowWorkerConfig{
		Grace:        30 * time.Minute,
		PollInterval: 5 * time.Minute,
		BatchSize:    50,
	}
}

// NewNoShowWorker creates a new no-show worker
func NewNoShowWorker(service *Service, repo Repository, logger *zap.Logger, config NoShowWorkerConfig) *NoShowWorker {
	return &NoShowWorker{
		service: service,
		repo:    repo,
		logger:  logger,
		config:  config,
		done:    make(chan struct{}),
	}
}

// Start polls until ctx is cancelled or Stop is called.
func (w *NoShowWorker) Start(ctx context.Context) error {
	w.logger.Info("Starting no-show worker",
		zap.Duration("grace", w.config.Grace),
		zap.Duration("poll_interval", w.config.PollInterval))

	ticker := time.NewTicker(w.config.PollInterval)
	defer ticker.Stop()

	w.runLogged(ctx)

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("No-show worker shutting down")
			return nil
		case <-w.done:
			w.logger.Info("No-show worker stopped")
			return nil
		case <-ticker.C:
			w.runLogged(ctx)
		}
	}
}

// Stop stops the worker
func (w *NoShowWorker) Stop() {
	w.once.Do(func() { close(w.done) })
}

func (w *NoShowWorker) runLogged(ctx context.Context) {
	marked, err := w.RunOnce(ctx)
	if err != nil {
		w.logger.Error("No-show sweep failed", zap.Error(err))
		return
	}
	if marked > 0 {
		w.logger.Info("Marked sessions as no-show", zap.Int("count", marked))
	}
}

// RunOnce processes one batch of overdue sessions and returns how many were
// moved to no_show. Sessions that changed status in the meantime are skipped.
func (w *NoShowWorker) RunOnce(ctx context.Context) (int, error) {
	cutoff := w.service.now().UTC().Add(-w.config.Grace)
	overdue, err := w.repo.ListOverdueScheduled(ctx, cutoff, w.config.BatchSize)
	if err != nil {
		return 0, err
	}

	marked := 0
	for _, session := range overdue {
		_, err := w.service.UpdateStatus(ctx, session.ID, StatusNoShow, SystemActorID, "not started within grace period")
		switch {
		case err == nil:
			marked++
		case errors.Is(err, ErrStatusConflict), errors.Is(err, ErrSessionNotFound):
			continue
		default:
			var verr *ValidationError
			if errors.As(err, &verr) {
				continue
			}
			return marked, err
		}
	}
	return marked, nil
}
