// Package domain contains persistence models for customer payments and
// gateway event ingestion.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

type PaymentType string

const (
	PaymentTypePayment     PaymentType = "PAYMENT"
	PaymentTypeAdjustment  PaymentType = "ADJUSTMENT"
	PaymentTypeElectricity PaymentType = "ELECTRICITY_CHARGES"
	PaymentTypeRefund      PaymentType = "REFUND"
)

// Payment is one signed ledger entry against a customer. A payment may link
// to at most one invoice: the single nullable InvoiceID column can hold one
// reference, and the service rejects re-linking an already linked payment.
// Many payments may link to the same invoice.
type Payment struct {
	ID          snowflake.ID  `gorm:"primaryKey" json:"id"`
	CustomerID  snowflake.ID  `gorm:"not null;index" json:"customer_id"`
	InvoiceID   *snowflake.ID `gorm:"index" json:"invoice_id,omitempty"`
	AmountCents int64         `gorm:"not null" json:"amount_cents"`
	Type        PaymentType   `gorm:"type:text;not null" json:"type"`
	Narration   string        `gorm:"type:text" json:"narration,omitempty"`
	PaidAt      time.Time     `gorm:"not null" json:"paid_at"`
	CreatedAt   time.Time     `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt   time.Time     `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
}

// TableName sets the database table name.
func (Payment) TableName() string { return "payments" }

// PaymentEvent is one webhook delivery from a payment gateway. Provider plus
// ProviderEventID is unique, which makes ingestion idempotent under redelivery.
type PaymentEvent struct {
	ID              snowflake.ID      `gorm:"primaryKey" json:"id"`
	Provider        string            `gorm:"type:text;not null;uniqueIndex:ux_payment_events_provider_event" json:"provider"`
	ProviderEventID string            `gorm:"type:text;not null;uniqueIndex:ux_payment_events_provider_event" json:"provider_event_id"`
	InvoiceID       *snowflake.ID     `gorm:"index" json:"invoice_id,omitempty"`
	PaymentID       *snowflake.ID     `gorm:"" json:"payment_id,omitempty"`
	EventType       string            `gorm:"type:text;not null" json:"event_type"`
	AmountCents     int64             `gorm:"not null;default:0" json:"amount_cents"`
	Currency        string            `gorm:"type:text" json:"currency,omitempty"`
	Payload         datatypes.JSONMap `gorm:"type:jsonb;not null;default:'{}'" json:"payload,omitempty"`
	ProcessedAt     *time.Time        `gorm:"" json:"processed_at,omitempty"`
	CreatedAt       time.Time         `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
}

// TableName sets the database table name.
func (PaymentEvent) TableName() string { return "payment_events" }
