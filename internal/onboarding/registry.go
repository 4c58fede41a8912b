package onboarding

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

var ErrRegistryClosed = errors.New("onboarding registry closed")

// Session is one user's live onboarding container
type Session struct {
	Store      *Store
	Reconciler *Reconciler
}

// RegistryConfig holds what every Session is built from
type RegistryConfig struct {
	Submitter       Submitter
	Completer       Completer
	Progress        ProgressRepository
	Notifier        Notifier
	Eligibility     EligibilitySource
	CompletionDelay time.Duration
	Logger          *zap.Logger
}

// Registry owns the onboarding sessions of authenticated users. Sessions are
// created on first access and torn down on logout, unmount, completion or
// Close.
type Registry struct {
	cfg    RegistryConfig
	logger *zap.Logger

	mu       sync.Mutex
	sessions map[uuid.UUID]*Session
	closed   bool
}

// NewRegistry creates a new onboarding session registry
func NewRegistry(cfg RegistryConfig) *Registry {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Registry{
		cfg:      cfg,
		logger:   logger,
		sessions: make(map[uuid.UUID]*Session),
	}
}

// Acquire returns userID's session, loading saved progress the first time.
func (r *Registry) Acquire(ctx context.Context, userID uuid.UUID) (*Session, error) {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil, ErrRegistryClosed
	}
	if sess, ok := r.sessions[userID]; ok && !sess.Store.Closed() {
		r.mu.Unlock()
		return sess, nil
	}
	r.mu.Unlock()

	initial := NewState()
	if r.cfg.Progress != nil {
		saved, err := r.cfg.Progress.Get(ctx, userID)
		if err != nil {
			return nil, fmt.Errorf("failed to load onboarding session: %w", err)
		}
		if saved != nil {
			initial = *saved
		}
	}

	store := NewStore(userID, initial, StoreConfig{
		Submitter:       r.cfg.Submitter,
		Completer:       r.cfg.Completer,
		Progress:        r.cfg.Progress,
		Notifier:        r.cfg.Notifier,
		CompletionDelay: r.cfg.CompletionDelay,
		Logger:          r.logger,
		OnCompleted:     r.forget,
	})
	sess := &Session{
		Store:      store,
		Reconciler: NewReconciler(store, r.cfg.Eligibility, r.logger),
	}

	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		store.Close()
		return nil, ErrRegistryClosed
	}
	if existing, ok := r.sessions[userID]; ok && !existing.Store.Closed() {
		r.mu.Unlock()
		store.Close()
		return existing, nil
	}
	r.sessions[userID] = sess
	r.mu.Unlock()

	r.logger.Debug("Onboarding session started", zap.String("user_id", userID.String()))
	return sess, nil
}

// Get returns userID's session if one is open.
func (r *Registry) Get(userID uuid.UUID) (*Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	sess, ok := r.sessions[userID]
	return sess, ok
}

// Release tears down userID's session. It is safe to call when none exists.
func (r *Registry) Release(userID uuid.UUID) {
	r.mu.Lock()
	sess, ok := r.sessions[userID]
	delete(r.sessions, userID)
	r.mu.Unlock()

	if cached, isCached := r.cfg.Eligibility.(interface{ Invalidate(uuid.UUID) }); isCached {
		cached.Invalidate(userID)
	}
	if !ok {
		return
	}
	sess.Store.Close()
	r.logger.Debug("Onboarding session released", zap.String("user_id", userID.String()))
}

// forget drops a store that finished on its own.
func (r *Registry) forget(store *Store) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if sess, ok := r.sessions[store.UserID()]; ok && sess.Store == store {
		delete(r.sessions, store.UserID())
	}
}

// Sweep reconciles every open session with the interval trigger and returns
// how many were corrected.
func (r *Registry) Sweep(ctx context.Context) int {
	r.mu.Lock()
	sessions := make([]*Session, 0, len(r.sessions))
	for _, sess := range r.sessions {
		sessions = append(sessions, sess)
	}
	r.mu.Unlock()

	corrected := 0
	for _, sess := range sessions {
		if ctx.Err() != nil {
			break
		}
		result, err := sess.Reconciler.Check(ctx, TriggerInterval)
		if err != nil {
			if !errors.Is(err, ErrStoreClosed) {
				r.logger.Warn("Onboarding reconciliation failed",
					zap.String("user_id", sess.Store.UserID().String()),
					zap.Error(err))
			}
			continue
		}
		if result.Outcome == OutcomeCorrected || result.Outcome == OutcomeReset {
			corrected++
		}
	}
	return corrected
}

// Len returns the number of open sessions
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

// Close tears down every session and rejects further Acquire calls.
func (r *Registry) Close() {
	r.mu.Lock()
	r.closed = true
	sessions := r.sessions
	r.sessions = make(map[uuid.UUID]*Session)
	r.mu.Unlock()

	for _, sess := range sessions {
		sess.Store.Close()
	}
}
