// Package domain contains persistence models for per-customer hosting rates.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

// PricingConfig is one agreed per-miner hosting rate with a half-open
// validity interval [EffectiveFrom, EffectiveTo). A nil EffectiveTo means the
// config is open, i.e. currently in effect with no scheduled end. At most one
// open config exists per customer; CustomerID 0 marks the system default row.
type PricingConfig struct {
	ID             snowflake.ID `gorm:"primaryKey" json:"id"`
	CustomerID     snowflake.ID `gorm:"not null;index" json:"customer_id"`
	UnitPriceCents int64        `gorm:"not null" json:"unit_price_cents"`
	Currency       string       `gorm:"type:text;not null" json:"currency"`
	EffectiveFrom  time.Time    `gorm:"not null" json:"effective_from"`
	EffectiveTo    *time.Time   `gorm:"" json:"effective_to,omitempty"`
	CreatedAt      time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt      time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
}

// TableName sets the database table name.
func (PricingConfig) TableName() string { return "pricing_configs" }

// DefaultCustomerID marks the system-wide fallback pricing row.
const DefaultCustomerID snowflake.ID = 0
