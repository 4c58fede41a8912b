package sessions

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

var (
	ErrSessionNotFound = errors.New("session not found")
	// ErrStatusConflict means the stored status changed between read and write.
	ErrStatusConflict = errors.New("session status was changed concurrently")
)

const (
	defaultPageSize        = 20
	maxPageSize            = 100
	defaultDurationMinutes = 50
)

// Service provides business logic for therapy sessions
type Service struct {
	repo   Repository
	logger *zap.Logger
	now    func() time.Time
}

// NewService creates a new sessions service
func NewService(repo Repository, logger *zap.Logger) *Service {
	return &Service{
		repo:   repo,
		logger: logger,
		now:    time.Now,
	}
}

// CreateSession creates a session. Sessions start as new unless the request
// names a status reachable from new.
func (s *Service) CreateSession(ctx context.Context, actorID uuid.UUID, req *CreateSessionRequest) (*Session, error) {
	status := req.Status
	if status == "" {
		status = StatusNew
	}
	if ok, verr := ValidateInitialStatus(status); !ok {
		return nil, verr
	}
	if status == StatusScheduled && req.ScheduledAt == nil {
		return nil, &ValidationError{Path: "scheduled_at", Message: "scheduled sessions need a scheduled_at time"}
	}

	now := s.now().UTC()
	session := &Session{
		ID:              uuid.New(),
		TherapyID:       req.TherapyID,
		ClientID:        req.ClientID,
		TherapistID:     req.TherapistID,
		ClinicID:        req.ClinicID,
		Status:          status,
		ScheduledAt:     req.ScheduledAt,
		DurationMinutes: req.DurationMinutes,
		Notes:           req.Notes,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if session.TherapistID == uuid.Nil {
		session.TherapistID = actorID
	}
	if session.DurationMinutes == 0 {
		session.DurationMinutes = defaultDurationMinutes
	}
	if status == StatusCancelled {
		session.CancelledAt = &now
	}

	// a session born past new gets the same history row a transition would
	var initial *StatusHistory
	if status != StatusNew {
		initial = &StatusHistory{
			ID:         uuid.New(),
			SessionID:  session.ID,
			FromStatus: StatusNew,
			ToStatus:   status,
			ChangedBy:  actorID,
			Reason:     "created",
			ChangedAt:  now,
		}
	}

	if err := s.repo.CreateSession(ctx, session, initial); err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}

	s.logger.Info("Session created",
		zap.String("session_id", session.ID.String()),
		zap.String("status", string(session.Status)),
		zap.String("created_by", actorID.String()))

	return session, nil
}

// GetSession retrieves a session by ID
func (s *Service) GetSession(ctx context.Context, id uuid.UUID) (*Session, error) {
	session, err := s.repo.GetSession(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to load session: %w", err)
	}
	if session == nil {
		return nil, ErrSessionNotFound
	}
	return session, nil
}

// ListSessions returns one page of sessions matching filter.
func (s *Service) ListSessions(ctx context.Context, filter *SessionFilter) (*SessionListResponse, error) {
	if err := normalizeFilter(filter); err != nil {
		return nil, err
	}

	sessions, total, err := s.repo.ListSessions(ctx, filter)
	if err != nil {
		return nil, err
	}

	return &SessionListResponse{
		Sessions:   sessions,
		TotalCount: total,
		Page:       filter.Page,
		PageSize:   filter.PageSize,
		HasMore:    filter.Page*filter.PageSize < total,
	}, nil
}

func normalizeFilter(filter *SessionFilter) error {
	if filter.Page < 1 {
		filter.Page = 1
	}
	switch {
	case filter.PageSize <= 0:
		filter.PageSize = defaultPageSize
	case filter.PageSize > maxPageSize:
		filter.PageSize = maxPageSize
	}

	if filter.SortBy == "" {
		filter.SortBy = SortScheduledAt
	}
	if _, ok := sortColumns[filter.SortBy]; !ok {
		return &ValidationError{Path: "sort_by", Message: fmt.Sprintf("cannot sort sessions by %q", filter.SortBy)}
	}
	if filter.SortOrder == "" {
		filter.SortOrder = SortAsc
	}
	if filter.SortOrder != SortAsc && filter.SortOrder != SortDesc {
		return &ValidationError{Path: "sort_order", Message: fmt.Sprintf("unknown sort order %q", filter.SortOrder)}
	}

	for _, st := range filter.Statuses {
		if !st.IsValid() {
			return &ValidationError{Path: "status", Message: fmt.Sprintf("unknown session status %q", st)}
		}
	}
	if filter.ScheduledFrom != nil && filter.ScheduledTo != nil && filter.ScheduledTo.Before(*filter.ScheduledFrom) {
		return &ValidationError{Path: "scheduled_to", Message: "scheduled_to is before scheduled_from"}
	}
	return nil
}

// UpdateStatus moves a session to next. The write only lands if nobody else
// changed the status since it was read.
func (s *Service) UpdateStatus(ctx context.Context, id uuid.UUID, next SessionStatus, actorID uuid.UUID, reason string) (*Session, error) {
	session, err := s.GetSession(ctx, id)
	if err != nil {
		return nil, err
	}

	if ok, verr := ValidateStatusTransition(session.Status, next); !ok {
		return nil, verr
	}

	now := s.now().UTC()
	change := &StatusChange{
		SessionID: id,
		From:      session.Status,
		To:        next,
		ChangedBy: actorID,
		Reason:    reason,
		ChangedAt: now,
	}
	switch next {
	case StatusStarted:
		change.StartedAt = &now
	case StatusCompleted:
		change.CompletedAt = &now
	case StatusCancelled, StatusNoShow:
		change.CancelledAt = &now
	}

	applied, err := s.repo.UpdateStatus(ctx, change)
	if err != nil {
		return nil, err
	}
	if !applied {
		s.logger.Warn("Session status changed concurrently",
			zap.String("session_id", id.String()),
			zap.String("expected", string(session.Status)),
			zap.String("requested", string(next)))
		return nil, ErrStatusConflict
	}

	session.Status = next
	session.UpdatedAt = now
	if change.StartedAt != nil {
		session.StartedAt = change.StartedAt
	}
	if change.CompletedAt != nil {
		session.CompletedAt = change.CompletedAt
	}
	if change.CancelledAt != nil {
		session.CancelledAt = change.CancelledAt
	}

	s.logger.Info("Session status updated",
		zap.String("session_id", id.String()),
		zap.String("from", string(change.From)),
		zap.String("to", string(next)),
		zap.String("changed_by", actorID.String()))

	return session, nil
}

// GetAllowedTransitions lists the statuses the session may move to next.
func (s *Service) GetAllowedTransitions(ctx context.Context, id uuid.UUID) ([]SessionStatus, error) {
	session, err := s.GetSession(ctx, id)
	if err != nil {
		return nil, err
	}
	return AllowedTransitions(session.Status), nil
}

func (s *Service) ListHistory(ctx context.Context, id uuid.UUID) ([]StatusHistory, error) {
	if _, err := s.GetSession(ctx, id); err != nil {
		return nil, err
	}
	return s.repo.ListStatusHistory(ctx, id)
}

// ExportSessions writes every session matching filter as an XLSX workbook.
func (s *Service) ExportSessions(ctx context.Context, filter *SessionFilter, w io.Writer) error {
	filter.Page = 1
	filter.PageSize = maxPageSize
	if err := normalizeFilter(filter); err != nil {
		return err
	}

	var all []Session
	for {
		page, total, err := s.repo.ListSessions(ctx, filter)
		if err != nil {
			return err
		}
		all = append(all, page...)
		if len(page) == 0 || len(all) >= total {
			break
		}
		filter.Page++
	}

	exporter := NewExcelExporter()
	if err := exporter.Write(w, all); err != nil {
		return fmt.Errorf("failed to export sessions: %w", err)
	}

	s.logger.Info("Sessions exported", zap.Int("rows", len(all)))
	return nil
}
