package onboarding

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

const (
	DefaultSweepSpec = "@every 2m"
	sweepTimeout     = time.Minute
)

// Sweeper is implemented by Registry
type Sweeper interface {
	Sweep(ctx context.Context) int
}

// Scheduler runs the periodic reconciliation sweep
type Scheduler struct {
	cron    *cron.Cron
	sweeper Sweeper
	spec    string
	logger  *zap.Logger
	mu      sync.Mutex
	running bool
	entryID cron.EntryID
}

// NewScheduler creates a scheduler that sweeps on spec (cron syntax or a
// descriptor such as "@every 2m").
func NewScheduler(sweeper Sweeper, spec string, logger *zap.Logger) *Scheduler {
	if spec == "" {
		spec = DefaultSweepSpec
	}
	return &Scheduler{
		cron:    cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger))),
		sweeper: sweeper,
		spec:    spec,
		logger:  logger,
	}
}

// Start registers the sweep job and starts the cron runner
func (s *Scheduler) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return fmt.Errorf("onboarding scheduler already running")
	}

	id, err := s.cron.AddFunc(s.spec, s.runSweep)
	if err != nil {
		return fmt.Errorf("invalid sweep schedule %q: %w", s.spec, err)
	}
	s.entryID = id
	s.running = true
	s.cron.Start()

	s.logger.Info("Onboarding scheduler started", zap.String("spec", s.spec))
	return nil
}

func (s *Scheduler) runSweep() {
	ctx, cancel := context.WithTimeout(context.Background(), sweepTimeout)
	defer cancel()

	start := time.Now()
	corrected := s.sweeper.Sweep(ctx)
	s.logger.Debug("Onboarding sweep finished",
		zap.Int("corrected", corrected),
		zap.Duration("duration", time.Since(start)))
}

// Stop stops the cron runner and waits for a running sweep to finish
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	s.cron.Remove(s.entryID)
	s.mu.Unlock()

	<-s.cron.Stop().Done()
	s.logger.Info("Onboarding scheduler stopped")
}

// NextRun returns when the next sweep is due, or the zero time when stopped.
func (s *Scheduler) NextRun() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.running {
		return time.Time{}
	}
	return s.cron.Entry(s.entryID).Next
}
