package billing

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type Repository interface {
	GetSubscription(ctx context.Context, userID uuid.UUID) (*Subscription, error)
	SaveSubscription(ctx context.Context, sub *Subscription) error
	// ActivateWithPayment records payment and activates its subscription atomically.
	ActivateWithPayment(ctx context.Context, sub *Subscription, payment *Payment) error
	HasConfirmedPayment(ctx context.Context, subscriptionID uuid.UUID) (bool, error)
}

type gormRepository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) Repository {
	return &gormRepository{db: db}
}

func (r *gormRepository) GetSubscription(ctx context.Context, userID uuid.UUID) (*Subscription, error) {
	var sub Subscription
	err := r.db.WithContext(ctx).Where("user_id = ?", userID).First(&sub).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &sub, nil
}

func (r *gormRepository) SaveSubscription(ctx context.Context, sub *Subscription) error {
	return r.db.WithContext(ctx).Save(sub).Error
}

func (r *gormRepository) ActivateWithPayment(ctx context.Context, sub *Subscription, payment *Payment) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(payment).Error; err != nil {
			return err
		}
		return tx.Save(sub).Error
	})
}

func (r *gormRepository) HasConfirmedPayment(ctx context.Context, subscriptionID uuid.UUID) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&Payment{}).
		Where("subscription_id = ? AND status = ?", subscriptionID, PaymentConfirmed).
		Count(&count).Error
	return count > 0, err
}
