package clinics

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

var ErrClinicNotFound = errors.New("clinic not found")

// Service manages clinic profiles
type Service struct {
	repo   Repository
	logger *zap.Logger
}

// NewService creates a new clinics service
func NewService(repo Repository, logger *zap.Logger) *Service {
	return &Service{repo: repo, logger: logger}
}

// CreateOrUpdateClinic validates form and stores it as ownerID's clinic.
func (s *Service) CreateOrUpdateClinic(ctx context.Context, ownerID uuid.UUID, form *ClinicFormData) (*Clinic, error) {
	if form == nil {
		return nil, &ValidationError{Path: "clinic", Message: "clinic details are required"}
	}
	if err := form.Validate(); err != nil {
		return nil, err
	}

	clinic := &Clinic{OwnerID: ownerID}
	form.apply(clinic)
	if err := s.repo.Save(ctx, clinic); err != nil {
		return nil, fmt.Errorf("failed to save clinic: %w", err)
	}

	s.logger.Info("Clinic saved",
		zap.String("clinic_id", clinic.ID.String()),
		zap.String("owner_id", ownerID.String()))

	return clinic, nil
}

func (s *Service) GetByOwner(ctx context.Context, ownerID uuid.UUID) (*Clinic, error) {
	clinic, err := s.repo.GetByOwner(ctx, ownerID)
	if err != nil {
		return nil, fmt.Errorf("failed to load clinic: %w", err)
	}
	if clinic == nil {
		return nil, ErrClinicNotFound
	}
	return clinic, nil
}

// DeleteByOwner removes the owner's clinic. Onboarding notices the missing
// clinic on its next reconciliation and sends the user back to the first step.
func (s *Service) DeleteByOwner(ctx context.Context, ownerID uuid.UUID) error {
	deleted, err := s.repo.DeleteByOwner(ctx, ownerID)
	if err != nil {
		return fmt.Errorf("failed to delete clinic: %w", err)
	}
	if !deleted {
		return ErrClinicNotFound
	}
	s.logger.Info("Clinic deleted", zap.String("owner_id", ownerID.String()))
	return nil
}

func (s *Service) HasClinic(ctx context.Context, ownerID uuid.UUID) (bool, error) {
	return s.repo.ExistsForOwner(ctx, ownerID)
}
