// Package domain contains persistence models for hosted customers.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/hashridge/hostbill/internal/authcontext"
	"gorm.io/datatypes"
)

// Customer is an account hosted at the facility. Archived customers are
// soft-deleted: flagged, never removed.
type Customer struct {
	ID             snowflake.ID      `gorm:"primaryKey" json:"id"`
	Name           string            `gorm:"not null" json:"name"`
	Email          string            `gorm:"not null;uniqueIndex" json:"email"`
	Role           authcontext.Role  `gorm:"type:text;not null;default:'client'" json:"role"`
	PoolSubaccount *string           `gorm:"type:text" json:"pool_subaccount,omitempty"`
	GroupName      *string           `gorm:"type:text" json:"group_name,omitempty"`
	Archived       bool              `gorm:"not null;default:false;index" json:"archived"`
	Metadata       datatypes.JSONMap `gorm:"type:jsonb;not null;default:'{}'" json:"metadata,omitempty"`
	CreatedAt      time.Time         `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt      time.Time         `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
}

// TableName sets the database table name.
func (Customer) TableName() string { return "customers" }
