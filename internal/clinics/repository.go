package clinics

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type Repository interface {
	GetByOwner(ctx context.Context, ownerID uuid.UUID) (*Clinic, error)
	// Save inserts c, or revives and overwrites a soft-deleted row for the same owner.
	Save(ctx context.Context, c *Clinic) error
	DeleteByOwner(ctx context.Context, ownerID uuid.UUID) (bool, error)
	ExistsForOwner(ctx context.Context, ownerID uuid.UUID) (bool, error)
}

type gormRepository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) Repository {
	return &gormRepository{db: db}
}

func (r *gormRepository) GetByOwner(ctx context.Context, ownerID uuid.UUID) (*Clinic, error) {
	var clinic Clinic
	err := r.db.WithContext(ctx).Where("owner_id = ?", ownerID).First(&clinic).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &clinic, nil
}

func (r *gormRepository) Save(ctx context.Context, c *Clinic) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing Clinic
		err := tx.Unscoped().Where("owner_id = ?", c.OwnerID).First(&existing).Error
		switch {
		case errors.Is(err, gorm.ErrRecordNotFound):
			return tx.Create(c).Error
		case err != nil:
			return err
		}

		c.ID = existing.ID
		c.CreatedAt = existing.CreatedAt
		if existing.DeletedAt.Valid {
			c.DeletedAt = gorm.DeletedAt{}
		}
		return tx.Unscoped().Save(c).Error
	})
}

func (r *gormRepository) DeleteByOwner(ctx context.Context, ownerID uuid.UUID) (bool, error) {
	res := r.db.WithContext(ctx).Where("owner_id = ?", ownerID).Delete(&Clinic{})
	return res.RowsAffected > 0, res.Error
}

func (r *gormRepository) ExistsForOwner(ctx context.Context, ownerID uuid.UUID) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&Clinic{}).Where("owner_id = ?", ownerID).Count(&count).Error
	return count > 0, err
}
