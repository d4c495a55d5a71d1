package domain

import (
	"context"
	"errors"
	"time"

	"github.com/hashridge/hostbill/pkg/db/pagination"
)

type CreateInvoiceRequest struct {
	CustomerID     string
	MinerCount     *int64
	UnitPriceCents *int64
	Notes          string
}

type UpdateDraftRequest struct {
	ID             string
	MinerCount     *int64
	UnitPriceCents *int64
	Notes          *string
}

type ListInvoiceRequest struct {
	pagination.Pagination
	CustomerID    string
	Status        string
	InvoiceNumber string
	GeneratedFrom *time.Time
	GeneratedTo   *time.Time
	DueFrom       *time.Time
	DueTo         *time.Time
}

type ListInvoiceResponse struct {
	pagination.PageInfo
	Invoices []Invoice `json:"invoices"`
}

// IssueResult reports the status change plus whether the customer email went
// out. A failed send leaves the invoice ISSUED; callers surface the partial
// success instead of rolling back.
type IssueResult struct {
	Invoice   Invoice `json:"invoice"`
	EmailSent bool    `json:"email_sent"`
	EmailErr  string  `json:"email_error,omitempty"`
}

type Service interface {
	Create(ctx context.Context, req CreateInvoiceRequest) (Invoice, error)
	UpdateDraft(ctx context.Context, req UpdateDraftRequest) (Invoice, error)
	Issue(ctx context.Context, id string) (IssueResult, error)
	Cancel(ctx context.Context, id string) (Invoice, error)
	Refund(ctx context.Context, id string) (Invoice, error)
	List(ctx context.Context, req ListInvoiceRequest) (ListInvoiceResponse, error)
	GetByID(ctx context.Context, id string) (Invoice, error)
	RenderPDF(ctx context.Context, id string) ([]byte, error)
	// SweepOverdue materializes OVERDUE onto every ISSUED invoice past its
	// due date and returns the number of rows updated. Idempotent.
	SweepOverdue(ctx context.Context) (int64, error)
}

var (
	ErrInvalidID              = errors.New("invalid_invoice_id")
	ErrNotFound               = errors.New("invoice_not_found")
	ErrCustomerNotFound       = errors.New("invoice_customer_not_found")
	ErrCustomerArchived       = errors.New("invoice_customer_archived")
	ErrInvalidMinerCount      = errors.New("invalid_miner_count")
	ErrMinerCountUnavailable  = errors.New("miner_count_unavailable")
	ErrInvalidUnitPrice       = errors.New("invalid_unit_price")
	ErrInvoiceNotDraft        = errors.New("invoice_not_draft")
	ErrInvalidTransition      = errors.New("invalid_status_transition")
	ErrDailySequenceExhausted = errors.New("daily_sequence_exhausted")
	ErrForbidden              = errors.New("forbidden")
)
