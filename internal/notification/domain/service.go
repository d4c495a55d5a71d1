package domain

import (
	"context"
	"errors"

	customerdomain "github.com/hashridge/hostbill/internal/customer/domain"
	invoicedomain "github.com/hashridge/hostbill/internal/invoice/domain"
	"github.com/hashridge/hostbill/pkg/db/pagination"
)

type ListNotificationRequest struct {
	pagination.Pagination
	InvoiceID string
	Type      string
	Status    string
}

type ListNotificationResponse struct {
	pagination.PageInfo
	Notifications []InvoiceNotification `json:"notifications"`
}

// Service sends customer emails and records every attempt. Send failures
// come back as errors with a FAILED row already written; callers decide
// whether that fails their operation.
type Service interface {
	SendInvoiceIssued(ctx context.Context, invoice invoicedomain.Invoice, customer customerdomain.Customer) (InvoiceNotification, error)
	SendPaymentReminder(ctx context.Context, invoice invoicedomain.Invoice, customer customerdomain.Customer) (InvoiceNotification, error)
	SendPaymentReceipt(ctx context.Context, invoice invoicedomain.Invoice, customer customerdomain.Customer) (InvoiceNotification, error)
	List(ctx context.Context, req ListNotificationRequest) (ListNotificationResponse, error)
}

var (
	ErrMissingRecipient = errors.New("missing_recipient")
	ErrSendFailed       = errors.New("notification_send_failed")
)
