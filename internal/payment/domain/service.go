package domain

import (
	"context"
	"errors"
	"time"

	invoicedomain "github.com/hashridge/hostbill/internal/invoice/domain"
	"github.com/hashridge/hostbill/pkg/db/pagination"
)

type CreatePaymentRequest struct {
	CustomerID  string
	AmountCents int64
	Type        string
	Narration   string
	PaidAt      *time.Time
}

type ListPaymentRequest struct {
	pagination.Pagination
	CustomerID string
	InvoiceID  string
	Type       string
}

type ListPaymentResponse struct {
	pagination.PageInfo
	Payments []Payment `json:"payments"`
}

// RecordPaymentResult reports the reconciliation outcome: the link written,
// the running paid total, and the invoice status after recomputation.
type RecordPaymentResult struct {
	Payment        Payment                     `json:"payment"`
	Invoice        invoicedomain.Invoice       `json:"invoice"`
	TotalPaidCents int64                       `json:"total_paid_cents"`
	StatusChanged  bool                        `json:"status_changed"`
	InvoiceStatus  invoicedomain.InvoiceStatus `json:"invoice_status"`
}

// BalanceSummary is the signed sum of a customer's payment ledger.
type BalanceSummary struct {
	CustomerID   string `json:"customer_id"`
	BalanceCents int64  `json:"balance_cents"`
	PaymentCount int64  `json:"payment_count"`
}

type Service interface {
	Create(ctx context.Context, req CreatePaymentRequest) (Payment, error)
	// RecordPayment links a payment to an invoice and recomputes the paid
	// total inside one transaction; crossing the invoice total flips the
	// invoice to PAID.
	RecordPayment(ctx context.Context, invoiceID, paymentID string) (RecordPaymentResult, error)
	// UnlinkPayment clears the link. It never reverts the invoice status:
	// reconciled state is treated as immutable history.
	UnlinkPayment(ctx context.Context, paymentID string) (Payment, error)
	DeletePayment(ctx context.Context, paymentID string) error
	List(ctx context.Context, req ListPaymentRequest) (ListPaymentResponse, error)
	CustomerBalance(ctx context.Context, customerID string) (BalanceSummary, error)
}

var (
	ErrInvalidID            = errors.New("invalid_payment_id")
	ErrNotFound             = errors.New("payment_not_found")
	ErrInvalidAmount        = errors.New("invalid_amount")
	ErrInvalidType          = errors.New("invalid_payment_type")
	ErrInvalidCustomer      = errors.New("invalid_payment_customer")
	ErrPaymentAlreadyLinked = errors.New("payment_already_linked")
	ErrPaymentLinked        = errors.New("payment_linked")
)
