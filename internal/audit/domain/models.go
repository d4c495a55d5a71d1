// Package domain contains persistence models for audit logging.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

// ActorType identifies who performed an audited action.
type ActorType string

const (
	ActorTypeUser   ActorType = "user"
	ActorTypeSystem ActorType = "system"
)

// AuditLog is an immutable record of a state-changing action. Rows are only
// ever inserted.
type AuditLog struct {
	ID          snowflake.ID      `gorm:"primaryKey" json:"id"`
	ActorType   ActorType         `gorm:"type:text;not null" json:"actor_type"`
	ActorID     *string           `gorm:"type:text" json:"actor_id,omitempty"`
	Action      string            `gorm:"type:text;not null;index" json:"action"`
	TargetType  string            `gorm:"type:text;not null;index" json:"target_type"`
	TargetID    *string           `gorm:"type:text;index" json:"target_id,omitempty"`
	Description string            `gorm:"type:text" json:"description"`
	Diff        datatypes.JSONMap `gorm:"type:jsonb;not null;default:'{}'" json:"diff,omitempty"`
	IPAddress   *string           `gorm:"type:text" json:"ip_address,omitempty"`
	UserAgent   *string           `gorm:"type:text" json:"user_agent,omitempty"`
	RequestID   *string           `gorm:"type:text" json:"request_id,omitempty"`
	CreatedAt   time.Time         `gorm:"not null;default:CURRENT_TIMESTAMP;index" json:"created_at"`
}

// TableName sets the database table name.
func (AuditLog) TableName() string { return "audit_logs" }

// AuditCursor is the keyset cursor for paging audit logs.
type AuditCursor struct {
	ID        snowflake.ID
	CreatedAt time.Time
}
