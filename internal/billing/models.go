package billing

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"clinic-portal/clinic-portal-backend/pkg/validation"
)

type BillingCycle string

const (
	CycleMonthly BillingCycle = "monthly"
	CycleYearly  BillingCycle = "yearly"
)

type SubscriptionStatus string

const (
	SubscriptionPendingPayment SubscriptionStatus = "pending_payment"
	SubscriptionActive         SubscriptionStatus = "active"
	SubscriptionCanceled       SubscriptionStatus = "canceled"
)

type PaymentStatus string

const (
	PaymentConfirmed PaymentStatus = "confirmed"
	PaymentDeclined  PaymentStatus = "declined"
)

// Plan is an entry of the static plan catalog
type Plan struct {
	ID                string   `json:"id"`
	Name              string   `json:"name"`
	Description       string   `json:"description"`
	MonthlyPriceCents int64    `json:"monthly_price_cents"`
	YearlyPriceCents  int64    `json:"yearly_price_cents"`
	Currency          string   `json:"currency"`
	MaxTherapists     int      `json:"max_therapists"`
	Features          []string `json:"features"`
}

// Price returns the amount charged per billing period
func (p Plan) Price(cycle BillingCycle) int64 {
	if cycle == CycleYearly {
		return p.YearlyPriceCents
	}
	return p.MonthlyPriceCents
}

type Subscription struct {
	ID               uuid.UUID          `gorm:"type:uuid;primaryKey" json:"id"`
	UserID           uuid.UUID          `gorm:"type:uuid;not null;uniqueIndex" json:"user_id"`
	PlanID           string             `gorm:"not null" json:"plan_id"`
	BillingCycle     BillingCycle       `gorm:"not null" json:"billing_cycle"`
	Seats            int                `gorm:"not null;default:1" json:"seats"`
	Status           SubscriptionStatus `gorm:"not null;index" json:"status"`
	AmountCents      int64              `gorm:"not null" json:"amount_cents"`
	Currency         string             `gorm:"size:3;not null" json:"currency"`
	ActivatedAt      *time.Time         `json:"activated_at,omitempty"`
	CurrentPeriodEnd *time.Time         `json:"current_period_end,omitempty"`
	CanceledAt       *time.Time         `json:"canceled_at,omitempty"`
	CreatedAt        time.Time          `json:"created_at"`
	UpdatedAt        time.Time          `json:"updated_at"`
}

func (s *Subscription) BeforeCreate(*gorm.DB) error {
	if s.ID == uuid.Nil {
		s.ID = uuid.New()
	}
	return nil
}

type Payment struct {
	ID             uuid.UUID     `gorm:"type:uuid;primaryKey" json:"id"`
	SubscriptionID uuid.UUID     `gorm:"type:uuid;not null;index" json:"subscription_id"`
	UserID         uuid.UUID     `gorm:"type:uuid;not null;index" json:"user_id"`
	AmountCents    int64         `gorm:"not null" json:"amount_cents"`
	Currency       string        `gorm:"size:3;not null" json:"currency"`
	Method         string        `gorm:"not null" json:"method"`
	CardLast4      string        `gorm:"size:4" json:"card_last4,omitempty"`
	ProviderRef    string        `json:"provider_ref"`
	Status         PaymentStatus `gorm:"not null" json:"status"`
	ConfirmedAt    *time.Time    `json:"confirmed_at,omitempty"`
	CreatedAt      time.Time     `json:"created_at"`
}

func (p *Payment) BeforeCreate(*gorm.DB) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	return nil
}

// SubscriptionData is the second onboarding step's payload
type SubscriptionData struct {
	PlanID       string       `json:"plan_id" validate:"required,oneof=basic professional enterprise"`
	BillingCycle BillingCycle `json:"billing_cycle" validate:"required,oneof=monthly yearly"`
	Seats        int          `json:"seats" validate:"omitempty,min=1,max=500"`
}

// PaymentData is the third onboarding step's payload. Card details arrive
// tokenized; only the token and the last four digits reach the server.
type PaymentData struct {
	Method         string `json:"method" validate:"required,oneof=card invoice"`
	CardToken      string `json:"card_token" validate:"required_if=Method card"`
	CardLast4      string `json:"card_last4" validate:"required_if=Method card,omitempty,len=4,numeric"`
	CardholderName string `json:"cardholder_name" validate:"required_if=Method card,max=120"`
	BillingEmail   string `json:"billing_email" validate:"omitempty,email"`
}

type ValidationError = validation.Error

func (d *SubscriptionData) Validate() error {
	return validation.Struct(d)
}

func (d *PaymentData) Validate() error {
	return validation.Struct(d)
}

// BillingStatus summarises a user's billing state for onboarding
type BillingStatus struct {
	HasSubscription       bool `json:"has_subscription"`
	HasActiveSubscription bool `json:"has_active_subscription"`
	PaymentConfirmed      bool `json:"payment_confirmed"`
}
