package onboarding

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// OnboardingProgress is the persisted part of a user's wizard state
type OnboardingProgress struct {
	UserID                    uuid.UUID                `gorm:"type:uuid;primaryKey" json:"user_id"`
	CurrentStep               Step                     `gorm:"type:varchar(32);not null" json:"current_step"`
	Data                      datatypes.JSONType[Data] `json:"data"`
	JustCompletedSubscription bool                     `gorm:"not null;default:false" json:"just_completed_subscription"`
	CompletedAt               *time.Time               `json:"completed_at,omitempty"`
	CreatedAt                 time.Time                `json:"created_at"`
	UpdatedAt                 time.Time                `json:"updated_at"`
}

func (OnboardingProgress) TableName() string { return "onboarding_progress" }

// ProgressRepository stores wizard progress per user
type ProgressRepository interface {
	Get(ctx context.Context, userID uuid.UUID) (*State, error)
	Save(ctx context.Context, userID uuid.UUID, state State) error
	IsCompleted(ctx context.Context, userID uuid.UUID) (bool, error)
}

type gormProgressRepository struct {
	db *gorm.DB
}

// NewProgressRepository creates a new gorm-backed progress repository
func NewProgressRepository(db *gorm.DB) ProgressRepository {
	return &gormProgressRepository{db: db}
}

// Get returns nil, nil when the user has no saved progress.
func (r *gormProgressRepository) Get(ctx context.Context, userID uuid.UUID) (*State, error) {
	var row OnboardingProgress
	err := r.db.WithContext(ctx).Where("user_id = ?", userID).First(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to load onboarding progress: %w", err)
	}

	state := State{
		CurrentStep:               row.CurrentStep,
		Data:                      row.Data.Data(),
		JustCompletedSubscription: row.JustCompletedSubscription,
		CompletedAt:               row.CompletedAt,
	}
	if !state.CurrentStep.IsValid() {
		state.CurrentStep = StepClinicInfo
	}
	return &state, nil
}

// Save upserts the durable fields of state. Loading flags and errors are
// not persisted.
func (r *gormProgressRepository) Save(ctx context.Context, userID uuid.UUID, state State) error {
	data := state.Data.clone()
	data.Payment = redactPayment(data.Payment)

	row := OnboardingProgress{
		UserID:                    userID,
		CurrentStep:               state.CurrentStep,
		Data:                      datatypes.NewJSONType(data),
		JustCompletedSubscription: state.JustCompletedSubscription,
		CompletedAt:               state.CompletedAt,
	}
	err := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "user_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"current_step", "data", "just_completed_subscription", "completed_at", "updated_at"}),
		}).
		Create(&row).Error
	if err != nil {
		return fmt.Errorf("failed to save onboarding progress: %w", err)
	}
	return nil
}

// IsCompleted reports whether userID has finished onboarding.
func (r *gormProgressRepository) IsCompleted(ctx context.Context, userID uuid.UUID) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&OnboardingProgress{}).
		Where("user_id = ? AND completed_at IS NOT NULL", userID).
		Count(&count).Error
	if err != nil {
		return false, fmt.Errorf("failed to check onboarding completion: %w", err)
	}
	return count > 0, nil
}
