package domain

import (
	"context"
	"errors"
	"time"

	"github.com/hashridge/hostbill/pkg/db/pagination"
)

// Entry describes one audited action.
type Entry struct {
	Action      string
	TargetType  string
	TargetID    string
	Description string
	Before      map[string]any
	After       map[string]any
	Metadata    map[string]any
}

type ListAuditLogRequest struct {
	pagination.Pagination
	Action     string
	TargetType string
	TargetID   string
	ActorType  string
	StartAt    *time.Time
	EndAt      *time.Time
}

type ListAuditLogResponse struct {
	pagination.PageInfo
	AuditLogs []AuditLog `json:"audit_logs"`
}

// Service records and lists audit entries. Record is best-effort: callers
// log failures but never fail the business mutation on a recorder error.
type Service interface {
	Record(ctx context.Context, entry Entry) error
	List(ctx context.Context, req ListAuditLogRequest) (ListAuditLogResponse, error)
}

var (
	ErrInvalidAction    = errors.New("invalid_action")
	ErrInvalidPageToken = errors.New("invalid_page_token")
	ErrInvalidTimeRange = errors.New("invalid_time_range")
)
