package sessions

import (
	"time"

	"github.com/google/uuid"
)

type SessionStatus string

const (
	StatusNew       SessionStatus = "new"
	StatusScheduled SessionStatus = "scheduled"
	StatusStarted   SessionStatus = "started"
	StatusCompleted SessionStatus = "completed"
	StatusCancelled SessionStatus = "cancelled"
	StatusNoShow    SessionStatus = "no_show"
)

// AllStatuses lists every session status. The transition table must have an
// entry for each of them.
var AllStatuses = []SessionStatus{
	StatusNew,
	StatusScheduled,
	StatusStarted,
	StatusCompleted,
	StatusCancelled,
	StatusNoShow,
}

type Session struct {
	ID              uuid.UUID     `json:"id" db:"id"`
	TherapyID       uuid.UUID     `json:"therapy_id" db:"therapy_id"`
	ClientID        uuid.UUID     `json:"client_id" db:"client_id"`
	TherapistID     uuid.UUID     `json:"therapist_id" db:"therapist_id"`
	ClinicID        *uuid.UUID    `json:"clinic_id,omitempty" db:"clinic_id"`
	Status          SessionStatus `json:"status" db:"status"`
	ScheduledAt     *time.Time    `json:"scheduled_at,omitempty" db:"scheduled_at"`
	StartedAt       *time.Time    `json:"started_at,omitempty" db:"started_at"`
	CompletedAt     *time.Time    `json:"completed_at,omitempty" db:"completed_at"`
	CancelledAt     *time.Time    `json:"cancelled_at,omitempty" db:"cancelled_at"`
	DurationMinutes int           `json:"duration_minutes" db:"duration_minutes"`
	Notes           string        `json:"notes" db:"notes"`
	CreatedAt       time.Time     `json:"created_at" db:"created_at"`
	UpdatedAt       time.Time     `json:"updated_at" db:"updated_at"`
}

type StatusHistory struct {
	ID         uuid.UUID     `json:"id" db:"id"`
	SessionID  uuid.UUID     `json:"session_id" db:"session_id"`
	FromStatus SessionStatus `json:"from_status" db:"from_status"`
	ToStatus   SessionStatus `json:"to_status" db:"to_status"`
	ChangedBy  uuid.UUID     `json:"changed_by" db:"changed_by"`
	Reason     string        `json:"reason" db:"reason"`
	ChangedAt  time.Time     `json:"changed_at" db:"changed_at"`
}

// StatusChange describes a guarded status write.
type StatusChange struct {
	SessionID   uuid.UUID
	From        SessionStatus
	To          SessionStatus
	ChangedBy   uuid.UUID
	Reason      string
	ChangedAt   time.Time
	StartedAt   *time.Time
	CompletedAt *time.Time
	CancelledAt *time.Time
}

type SortField string

const (
	SortScheduledAt SortField = "scheduled_at"
	SortCreatedAt   SortField = "created_at"
	SortUpdatedAt   SortField = "updated_at"
	SortStatus      SortField = "status"
)

type SortOrder string

const (
	SortAsc  SortOrder = "asc"
	SortDesc SortOrder = "desc"
)

type SessionFilter struct {
	TherapistID   *uuid.UUID
	ClientID      *uuid.UUID
	TherapyID     *uuid.UUID
	ClinicID      *uuid.UUID
	Statuses      []SessionStatus
	ScheduledFrom *time.Time
	ScheduledTo   *time.Time
	Search        string
	SortBy        SortField
	SortOrder     SortOrder
	Page          int
	PageSize      int
}

type SessionListResponse struct {
	Sessions   []Session `json:"sessions"`
	TotalCount int       `json:"total_count"`
	Page       int       `json:"page"`
	PageSize   int       `json:"page_size"`
	HasMore    bool      `json:"has_more"`
}

type CreateSessionRequest struct {
	TherapyID       uuid.UUID     `json:"therapy_id" binding:"required"`
	ClientID        uuid.UUID     `json:"client_id" binding:"required"`
	TherapistID     uuid.UUID     `json:"therapist_id"`
	ClinicID        *uuid.UUID    `json:"clinic_id"`
	Status          SessionStatus `json:"status"`
	ScheduledAt     *time.Time    `json:"scheduled_at"`
	DurationMinutes int           `json:"duration_minutes" binding:"omitempty,min=5,max=480"`
	Notes           string        `json:"notes" binding:"max=4000"`
}

type UpdateStatusRequest struct {
	Status SessionStatus `json:"status" binding:"required"`
	Reason string        `json:"reason" binding:"max=500"`
}
