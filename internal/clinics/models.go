package clinics

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"clinic-portal/clinic-portal-backend/pkg/validation"
)

// Clinic is the practice profile owned by one admin user
type Clinic struct {
	ID            uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	OwnerID       uuid.UUID      `gorm:"type:uuid;not null;uniqueIndex" json:"owner_id"`
	Name          string         `gorm:"not null" json:"name"`
	Email         string         `gorm:"not null" json:"email"`
	Phone         string         `json:"phone"`
	Address       string         `json:"address"`
	City          string         `json:"city"`
	Country       string         `gorm:"size:2" json:"country"`
	PostalCode    string         `json:"postal_code"`
	LicenseNumber string         `json:"license_number"`
	Website       string         `json:"website"`
	CreatedAt     time.Time      `json:"created_at"`
	UpdatedAt     time.Time      `json:"updated_at"`
	DeletedAt     gorm.DeletedAt `gorm:"index" json:"-"`
}

func (c *Clinic) BeforeCreate(*gorm.DB) error {
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	return nil
}

// ClinicFormData is the first onboarding step's payload
type ClinicFormData struct {
	Name          string `json:"name" validate:"required,min=2,max=120"`
	Email         string `json:"email" validate:"required,email"`
	Phone         string `json:"phone" validate:"required,e164"`
	Address       string `json:"address" validate:"required,max=200"`
	City          string `json:"city" validate:"required,max=100"`
	Country       string `json:"country" validate:"required,iso3166_1_alpha2"`
	PostalCode    string `json:"postal_code" validate:"required,max=20"`
	LicenseNumber string `json:"license_number" validate:"omitempty,max=64"`
	Website       string `json:"website" validate:"omitempty,http_url"`
}

type ValidationError = validation.Error

// Validate returns a *ValidationError naming the first invalid field.
func (f *ClinicFormData) Validate() error {
	return validation.Struct(f)
}

func (f *ClinicFormData) apply(c *Clinic) {
	c.Name = f.Name
	c.Email = f.Email
	c.Phone = f.Phone
	c.Address = f.Address
	c.City = f.City
	c.Country = f.Country
	c.PostalCode = f.PostalCode
	c.LicenseNumber = f.LicenseNumber
	c.Website = f.Website
}
