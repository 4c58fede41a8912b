package onboarding

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
)

const (
	completionTimeout     = 30 * time.Second
	maxCompletionAttempts = 3
)

// syncCompletionLocked arms the completion timer while the state is waiting
// for it and clears it otherwise.
func (s *Store) syncCompletionLocked() {
	if s.closed || !s.state.awaitingCompletion() {
		s.disarmLocked()
		return
	}
	if s.timer != nil {
		return
	}
	s.timerGen++
	gen := s.timerGen
	s.timer = time.AfterFunc(s.completionDelay, func() { s.fireCompletion(gen) })
}

func (s *Store) disarmLocked() {
	if s.timer == nil {
		return
	}
	s.timer.Stop()
	s.timer = nil
	// a callback that already fired sees a newer generation and returns
	s.timerGen++
}

// CompletionPending reports whether the completion timer is armed.
func (s *Store) CompletionPending() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.timer != nil
}

func (s *Store) fireCompletion(gen uint64) {
	s.mu.Lock()
	if s.closed || gen != s.timerGen || !s.state.awaitingCompletion() {
		s.mu.Unlock()
		return
	}
	s.timer = nil
	s.inflight.Add(1)
	s.mu.Unlock()
	defer s.inflight.Done()

	ctx, cancel := context.WithTimeout(context.Background(), completionTimeout)
	defer cancel()

	err := s.CompleteOnboarding(ctx)
	switch {
	case err == nil:
		s.mu.Lock()
		s.closed = true
		s.mu.Unlock()
		if s.onCompleted != nil {
			s.onCompleted(s)
		}
	case errors.Is(err, ErrStoreClosed):
	default:
		s.mu.Lock()
		s.completionAttempts++
		if s.completionAttempts < maxCompletionAttempts {
			s.syncCompletionLocked()
		}
		s.mu.Unlock()
		s.logger.Error("Onboarding completion failed",
			zap.String("user_id", s.userID.String()),
			zap.Error(err))
	}
}

// CompleteOnboarding marks the flow finished and runs the completer. It is
// a no-op once CompletedAt is set. A completer that succeeds always leaves
// CompletedAt persisted, even when Close ran while it was working.
func (s *Store) CompleteOnboarding(ctx context.Context) error {
	s.mu.Lock()
	switch {
	case s.closed:
		s.mu.Unlock()
		return ErrStoreClosed
	case s.state.CurrentStep != StepComplete:
		s.mu.Unlock()
		return ErrStepNotReady
	case s.state.CompletedAt != nil:
		s.mu.Unlock()
		return nil
	case s.completing:
		s.mu.Unlock()
		return ErrSubmissionInProgress
	}
	s.completing = true
	snapshot := s.state.clone()
	s.mu.Unlock()

	var err error
	if s.completer != nil {
		err = s.completer.CompleteOnboarding(ctx, s.userID, snapshot)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.completing = false
	if err != nil {
		return fmt.Errorf("failed to complete onboarding: %w", err)
	}

	// the completer's side effects have happened, so completion is recorded
	// even if the store was closed meanwhile
	now := s.now().UTC()
	s.state.CompletedAt = &now
	s.state.JustCompletedSubscription = false
	s.syncCompletionLocked()
	s.persistLocked(context.WithoutCancel(ctx))

	s.logger.Info("Onboarding completed", zap.String("user_id", s.userID.String()))
	return nil
}
