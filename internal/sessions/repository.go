package sessions

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
)

//go:embed schema.sql
var schemaSQL string

// Repository defines the interface for therapy session data access
type Repository interface {
	EnsureSchema(ctx context.Context) error

	// CreateSession inserts session, and initial when the session starts in
	// a status other than new, in one transaction.
	CreateSession(ctx context.Context, session *Session, initial *StatusHistory) error
	GetSession(ctx context.Context, id uuid.UUID) (*Session, error)
	ListSessions(ctx context.Context, filter *SessionFilter) ([]Session, int, error)

	// UpdateStatus writes change only if the stored status still equals
	// change.From. It reports false when another writer got there first.
	UpdateStatus(ctx context.Context, change *StatusChange) (bool, error)
	ListStatusHistory(ctx context.Context, sessionID uuid.UUID) ([]StatusHistory, error)

	ListOverdueScheduled(ctx context.Context, before time.Time, limit int) ([]Session, error)
}

type postgresRepository struct {
	db *sqlx.DB
}

func NewRepository(db *sqlx.DB) Repository {
	return &postgresRepository{db: db}
}

func (r *postgresRepository) EnsureSchema(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx, schemaSQL); err != nil {
		return fmt.Errorf("failed to apply session schema: %w", err)
	}
	return nil
}

func (r *postgresRepository) CreateSession(ctx context.Context, session *Session, initial *StatusHistory) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	query := `
		INSERT INTO therapy_sessions (
			id, therapy_id, client_id, therapist_id, clinic_id, status,
			scheduled_at, started_at, completed_at, cancelled_at,
			duration_minutes, notes, created_at, updated_at
		) VALUES (
			:id, :therapy_id, :client_id, :therapist_id, :clinic_id, :status,
			:scheduled_at, :started_at, :completed_at, :cancelled_at,
			:duration_minutes, :notes, :created_at, :updated_at
		)`
	if _, err := tx.NamedExecContext(ctx, query, session); err != nil {
		return err
	}

	if initial != nil {
		if err := insertHistory(ctx, tx, initial); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func insertHistory(ctx context.Context, tx *sqlx.Tx, h *StatusHistory) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO therapy_session_status_history (
			id, session_id, from_status, to_status, changed_by, reason, changed_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		h.ID, h.SessionID, h.FromStatus, h.ToStatus, h.ChangedBy, h.Reason, h.ChangedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to record status history: %w", err)
	}
	return nil
}

func (r *postgresRepository) GetSession(ctx context.Context, id uuid.UUID) (*Session, error) {
	var session Session
	err := r.db.GetContext(ctx, &session, "SELECT * FROM therapy_sessions WHERE id = $1", id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &session, nil
}

// likeEscaper makes user input match literally inside a LIKE pattern
var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// sessionFilterClause builds the WHERE clause for filter with $n placeholders
// starting at $1.
func sessionFilterClause(filter *SessionFilter) (string, []interface{}) {
	var conditions []string
	var args []interface{}
	argCount := 0

	if filter.TherapistID != nil {
		argCount++
		conditions = append(conditions, fmt.Sprintf("therapist_id = $%d", argCount))
		args = append(args, *filter.TherapistID)
	}
	if filter.ClientID != nil {
		argCount++
		conditions = append(conditions, fmt.Sprintf("client_id = $%d", argCount))
		args = append(args, *filter.ClientID)
	}
	if filter.TherapyID != nil {
		argCount++
		conditions = append(conditions, fmt.Sprintf("therapy_id = $%d", argCount))
		args = append(args, *filter.TherapyID)
	}
	if filter.ClinicID != nil {
		argCount++
		conditions = append(conditions, fmt.Sprintf("clinic_id = $%d", argCount))
		args = append(args, *filter.ClinicID)
	}
	if len(filter.Statuses) > 0 {
		statuses := make([]string, len(filter.Statuses))
		for i, s := range filter.Statuses {
			statuses[i] = string(s)
		}
		argCount++
		conditions = append(conditions, fmt.Sprintf("status = ANY($%d)", argCount))
		args = append(args, pq.Array(statuses))
	}
	if filter.ScheduledFrom != nil {
		argCount++
		conditions = append(conditions, fmt.Sprintf("scheduled_at >= $%d", argCount))
		args = append(args, *filter.ScheduledFrom)
	}
	if filter.ScheduledTo != nil {
		argCount++
		conditions = append(conditions, fmt.Sprintf("scheduled_at < $%d", argCount))
		args = append(args, *filter.ScheduledTo)
	}
	if filter.Search != "" {
		argCount++
		conditions = append(conditions, fmt.Sprintf(`notes ILIKE $%d ESCAPE '\'`, argCount))
		args = append(args, "%"+likeEscaper.Replace(filter.Search)+"%")
	}

	if len(conditions) == 0 {
		return "", args
	}
	return " WHERE " + strings.Join(conditions, " AND "), args
}

var sortColumns = map[SortField]string{
	SortScheduledAt: "scheduled_at",
	SortCreatedAt:   "created_at",
	SortUpdatedAt:   "updated_at",
	SortStatus:      "status",
}

func (r *postgresRepository) ListSessions(ctx context.Context, filter *SessionFilter) ([]Session, int, error) {
	whereClause, args := sessionFilterClause(filter)
	argCount := len(args)

	var totalCount int
	if err := r.db.GetContext(ctx, &totalCount, "SELECT COUNT(*) FROM therapy_sessions"+whereClause, args...); err != nil {
		return nil, 0, fmt.Errorf("failed to count sessions: %w", err)
	}

	column, ok := sortColumns[filter.SortBy]
	if !ok {
		column = "scheduled_at"
	}
	direction := "ASC"
	if filter.SortOrder == SortDesc {
		direction = "DESC"
	}

	offset := (filter.Page - 1) * filter.PageSize
	if filter.Page < 1 {
		offset = 0
	}

	argCount++
	limitArg := argCount
	argCount++
	offsetArg := argCount

	query := "SELECT * FROM therapy_sessions" + whereClause +
		fmt.Sprintf(" ORDER BY %s %s NULLS LAST, id ASC LIMIT $%d OFFSET $%d", column, direction, limitArg, offsetArg)
	args = append(args, filter.PageSize, offset)

	sessions := []Session{}
	if err := r.db.SelectContext(ctx, &sessions, query, args...); err != nil {
		return nil, 0, fmt.Errorf("failed to list sessions: %w", err)
	}
	return sessions, totalCount, nil
}

func (r *postgresRepository) UpdateStatus(ctx context.Context, change *StatusChange) (bool, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx, `
		UPDATE therapy_sessions SET
			status = $1,
			updated_at = $2,
			started_at = COALESCE($3, started_at),
			completed_at = COALESCE($4, completed_at),
			cancelled_at = COALESCE($5, cancelled_at)
		WHERE id = $6 AND status = $7`,
		change.To, change.ChangedAt, change.StartedAt, change.CompletedAt, change.CancelledAt,
		change.SessionID, change.From,
	)
	if err != nil {
		return false, fmt.Errorf("failed to update session status: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	if affected == 0 {
		return false, nil
	}

	err = insertHistory(ctx, tx, &StatusHistory{
		ID:         uuid.New(),
		SessionID:  change.SessionID,
		FromStatus: change.From,
		ToStatus:   change.To,
		ChangedBy:  change.ChangedBy,
		Reason:     change.Reason,
		ChangedAt:  change.ChangedAt,
	})
	if err != nil {
		return false, err
	}

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("failed to commit status change: %w", err)
	}
	return true, nil
}

func (r *postgresRepository) ListStatusHistory(ctx context.Context, sessionID uuid.UUID) ([]StatusHistory, error) {
	history := []StatusHistory{}
	err := r.db.SelectContext(ctx, &history,
		"SELECT * FROM therapy_session_status_history WHERE session_id = $1 ORDER BY changed_at ASC", sessionID)
	return history, err
}

func (r *postgresRepository) ListOverdueScheduled(ctx context.Context, before time.Time, limit int) ([]Session, error) {
	sessions := []Session{}
	err := r.db.SelectContext(ctx, &sessions, `
		SELECT * FROM therapy_sessions
		WHERE status = $1 AND scheduled_at IS NOT NULL AND scheduled_at < $2
		ORDER BY scheduled_at ASC
		LIMIT $3`,
		StatusScheduled, before, limit)
	return sessions, err
}
