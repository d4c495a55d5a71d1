// Package domain contains persistence models for hosting invoices.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

// InvoiceStatus represents invoice lifecycle states.
type InvoiceStatus string

const (
	InvoiceStatusDraft     InvoiceStatus = "DRAFT"
	InvoiceStatusIssued    InvoiceStatus = "ISSUED"
	InvoiceStatusPaid      InvoiceStatus = "PAID"
	InvoiceStatusOverdue   InvoiceStatus = "OVERDUE"
	InvoiceStatusCancelled InvoiceStatus = "CANCELLED"
	InvoiceStatusRefunded  InvoiceStatus = "REFUNDED"
)

// Invoice is one monthly hosting charge: miner count times the per-miner
// rate agreed with the customer. The amount fields are minor units (cents)
// and freeze once the invoice leaves DRAFT.
type Invoice struct {
	ID             snowflake.ID      `gorm:"primaryKey" json:"id"`
	CustomerID     snowflake.ID      `gorm:"not null;index" json:"customer_id"`
	InvoiceNumber  string            `gorm:"type:text;not null;uniqueIndex" json:"invoice_number"`
	MinerCount     int64             `gorm:"not null" json:"miner_count"`
	UnitPriceCents int64             `gorm:"not null" json:"unit_price_cents"`
	TotalCents     int64             `gorm:"not null" json:"total_cents"`
	Currency       string            `gorm:"type:text;not null" json:"currency"`
	Status         InvoiceStatus     `gorm:"type:text;not null;default:'DRAFT';index" json:"status"`
	GeneratedAt    time.Time         `gorm:"not null" json:"generated_at"`
	IssuedAt       *time.Time        `gorm:"" json:"issued_at,omitempty"`
	DueAt          time.Time         `gorm:"not null;index" json:"due_at"`
	PaidAt         *time.Time        `gorm:"" json:"paid_at,omitempty"`
	Notes          string            `gorm:"type:text" json:"notes,omitempty"`
	Metadata       datatypes.JSONMap `gorm:"type:jsonb;not null;default:'{}'" json:"metadata,omitempty"`
	CreatedAt      time.Time         `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt      time.Time         `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
}

// TableName sets the database table name.
func (Invoice) TableName() string { return "invoices" }
