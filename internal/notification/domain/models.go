// Package domain contains persistence models for invoice email bookkeeping.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

type NotificationType string

const (
	NotificationTypeInvoiceIssued   NotificationType = "invoice_issued"
	NotificationTypePaymentReminder NotificationType = "payment_reminder"
	NotificationTypePaymentReceipt  NotificationType = "payment_receipt"
)

type NotificationStatus string

const (
	NotificationStatusPending NotificationStatus = "PENDING"
	NotificationStatusSent    NotificationStatus = "SENT"
	NotificationStatusFailed  NotificationStatus = "FAILED"
)

// InvoiceNotification records one email send attempt. Rows append per
// attempt; nothing here is ever updated after the attempt resolves.
type InvoiceNotification struct {
	ID            snowflake.ID       `gorm:"primaryKey" json:"id"`
	InvoiceID     snowflake.ID       `gorm:"not null;index" json:"invoice_id"`
	Type          NotificationType   `gorm:"type:text;not null" json:"type"`
	Recipient     string             `gorm:"type:text;not null" json:"recipient"`
	CC            string             `gorm:"type:text" json:"cc,omitempty"`
	Status        NotificationStatus `gorm:"type:text;not null" json:"status"`
	Error         *string            `gorm:"type:text" json:"error,omitempty"`
	AttemptCount  int                `gorm:"not null;default:1" json:"attempt_count"`
	LastAttemptAt time.Time          `gorm:"not null" json:"last_attempt_at"`
	CreatedAt     time.Time          `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
}

// TableName sets the database table name.
func (InvoiceNotification) TableName() string { return "invoice_notifications" }
