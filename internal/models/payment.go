package models

import "time"

type Payment struct {
	ID              uint    `gorm:"primaryKey" json:"id"`
	ExternalID      string  `gorm:"size:255;index" json:"external_id"`
	AmountCents     int64   `gorm:"not null" json:"amount_cents"`
	Currency        string  `gorm:"size:3;not null;default:'USD'" json:"currency"`
	Status          string  `gorm:"size:20;not null;index" json:"status"`
	Metadata        string  `gorm:"type:text" json:"-"` // JSON, opaque to the service
	IdempotencyKey  *string `gorm:"size:255;uniqueIndex" json:"-"`
	GatewayChargeID string  `gorm:"size:255;index" json:"gateway_charge_id"`
	GatewayIntentID string  `gorm:"size:255;index" json:"gateway_payment_intent_id"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	Events []PaymentEvent `gorm:"foreignKey:PaymentID" json:"-"`
}

func (Payment) TableName() string {
	return "payments"
}

// PaymentEvent is an append-only audit record, one per status transition.
// Payload holds the serialized gateway response snapshot and is never read
// back by the service.
type PaymentEvent struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	PaymentID uint      `gorm:"not null;index" json:"payment_id"`
	EventType string    `gorm:"size:50;not null" json:"event_type"`
	Payload   string    `gorm:"type:text" json:"payload"`
	CreatedAt time.Time `json:"created_at"`
}

func (PaymentEvent) TableName() string {
	return "payment_events"
}
