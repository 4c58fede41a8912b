package notifications

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type Channel string

const (
	ChannelEmail     Channel = "email"
	ChannelWebSocket Channel = "websocket"
)

type DeliveryStatus string

const (
	StatusSent    DeliveryStatus = "sent"
	StatusSkipped DeliveryStatus = "skipped"
	StatusFailed  DeliveryStatus = "failed"
)

// SentNotification records one delivery attempt to a user
type SentNotification struct {
	ID         uuid.UUID      `json:"id" gorm:"primaryKey;type:uuid"`
	UserID     uuid.UUID      `json:"user_id" gorm:"type:uuid;not null;index"`
	Channel    Channel        `json:"channel" gorm:"not null"`
	Kind       string         `json:"kind" gorm:"not null"`
	Subject    string         `json:"subject"`
	Status     DeliveryStatus `json:"status" gorm:"not null"`
	ProviderID *string        `json:"provider_id"`
	Error      string         `json:"error,omitempty"`
	Payload    datatypes.JSON `json:"payload,omitempty"`
	SentAt     time.Time      `json:"sent_at" gorm:"not null;index"`
}

func (SentNotification) TableName() string { return "sent_notifications" }

func (n *SentNotification) BeforeCreate(*gorm.DB) error {
	if n.ID == uuid.Nil {
		n.ID = uuid.New()
	}
	return nil
}
