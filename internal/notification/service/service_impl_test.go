package service

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/hashridge/hostbill/internal/clock"
	"github.com/hashridge/hostbill/internal/config"
	customerdomain "github.com/hashridge/hostbill/internal/customer/domain"
	"github.com/hashridge/hostbill/internal/dbtest"
	invoicedomain "github.com/hashridge/hostbill/internal/invoice/domain"
	"github.com/hashridge/hostbill/internal/notification/domain"
	"github.com/hashridge/hostbill/internal/providers/email"
	"github.com/hashridge/hostbill/internal/providers/pdf"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

type captureEmail struct {
	sent    []email.Message
	sendErr error
}

func (c *captureEmail) Send(ctx context.Context, msg email.Message) error {
	if c.sendErr != nil {
		return c.sendErr
	}
	c.sent = append(c.sent, msg)
	return nil
}

type stubPDF struct {
	doc []byte
	err error
}

func (s *stubPDF) GenerateInvoice(ctx context.Context, data pdf.InvoiceData) ([]byte, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.doc, nil
}

type notifHarness struct {
	svc      *Service
	mail     *captureEmail
	pdf      *stubPDF
	invoice  invoicedomain.Invoice
	customer customerdomain.Customer
}

func setupNotification(t *testing.T) *notifHarness {
	t.Helper()

	db := dbtest.Open(t)
	if err := db.AutoMigrate(&domain.InvoiceNotification{}); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	node, err := snowflake.NewNode(1)
	if err != nil {
		t.Fatalf("new node: %v", err)
	}
	fake := clock.NewFakeClock(time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC))

	mail := &captureEmail{}
	pdfStub := &stubPDF{doc: []byte("%PDF-1.7 stub")}

	svc := NewService(Params{
		DB:    db,
		Log:   zap.NewNop(),
		GenID: node,
		Clock: fake,
		Cfg: config.Config{
			AppName:   "HostBill",
			SMTPFrom:  "billing@hostbill.example",
			BillingCC: []string{"finance@hostbill.example"},
		},
		Email: mail,
		PDF:   pdfStub,
	}).(*Service)

	issued := fake.Now()
	invoice := invoicedomain.Invoice{
		ID:            node.Generate(),
		InvoiceNumber: "20250310001",
		TotalCents:    25500,
		Currency:      "USD",
		Status:        invoicedomain.InvoiceStatusIssued,
		IssuedAt:      &issued,
		DueAt:         issued.AddDate(0, 0, 14),
	}
	customer := customerdomain.Customer{
		ID:    node.Generate(),
		Name:  "Ridgeline Mining LLC",
		Email: "ops@ridgeline.example",
	}

	return &notifHarness{svc: svc, mail: mail, pdf: pdfStub, invoice: invoice, customer: customer}
}

func TestSendInvoiceIssued_AttachesPDF(t *testing.T) {
	h := setupNotification(t)
	ctx := context.Background()

	notification, err := h.svc.SendInvoiceIssued(ctx, h.invoice, h.customer)
	assert.NoError(t, err)
	assert.Equal(t, domain.NotificationStatusSent, notification.Status)
	assert.Equal(t, 1, notification.AttemptCount)
	assert.Equal(t, "ops@ridgeline.example", notification.Recipient)

	if assert.Len(t, h.mail.sent, 1) {
		msg := h.mail.sent[0]
		assert.Equal(t, []string{"finance@hostbill.example"}, msg.CC)
		assert.Contains(t, msg.Subject, "20250310001")
		assert.Contains(t, msg.HTMLBody, "USD 255.00")
		if assert.Len(t, msg.Attachments, 1) {
			assert.Equal(t, "invoice-20250310001.pdf", msg.Attachments[0].Filename)
			assert.Equal(t, "application/pdf", msg.Attachments[0].ContentType)
		}
	}
}

func TestSendInvoiceIssued_PDFFailureRecordsFailed(t *testing.T) {
	h := setupNotification(t)
	h.pdf.err = errors.New("layout overflow")
	ctx := context.Background()

	notification, err := h.svc.SendInvoiceIssued(ctx, h.invoice, h.customer)
	assert.ErrorIs(t, err, domain.ErrSendFailed)
	assert.Equal(t, domain.NotificationStatusFailed, notification.Status)
	if assert.NotNil(t, notification.Error) {
		assert.True(t, strings.Contains(*notification.Error, "render pdf"))
	}
	assert.Empty(t, h.mail.sent)
}

func TestSendInvoiceIssued_RetryIncrementsAttempt(t *testing.T) {
	h := setupNotification(t)
	ctx := context.Background()

	h.mail.sendErr = errors.New("smtp refused")
	first, err := h.svc.SendInvoiceIssued(ctx, h.invoice, h.customer)
	assert.ErrorIs(t, err, domain.ErrSendFailed)
	assert.Equal(t, 1, first.AttemptCount)
	assert.Equal(t, domain.NotificationStatusFailed, first.Status)

	h.mail.sendErr = nil
	second, err := h.svc.SendInvoiceIssued(ctx, h.invoice, h.customer)
	assert.NoError(t, err)
	assert.Equal(t, 2, second.AttemptCount)
	assert.Equal(t, domain.NotificationStatusSent, second.Status)
}

func TestSend_MissingRecipient(t *testing.T) {
	h := setupNotification(t)
	h.customer.Email = "  "

	notification, err := h.svc.SendPaymentReminder(context.Background(), h.invoice, h.customer)
	assert.ErrorIs(t, err, domain.ErrSendFailed)
	assert.Equal(t, domain.NotificationStatusFailed, notification.Status)
	assert.Empty(t, h.mail.sent)
}

func TestList_FiltersByStatusAndType(t *testing.T) {
	h := setupNotification(t)
	ctx := context.Background()

	_, err := h.svc.SendPaymentReceipt(ctx, h.invoice, h.customer)
	assert.NoError(t, err)

	h.mail.sendErr = errors.New("smtp refused")
	_, err = h.svc.SendPaymentReminder(ctx, h.invoice, h.customer)
	assert.ErrorIs(t, err, domain.ErrSendFailed)

	resp, err := h.svc.List(ctx, domain.ListNotificationRequest{
		InvoiceID: h.invoice.ID.String(),
		Status:    "failed",
	})
	assert.NoError(t, err)
	if assert.Len(t, resp.Notifications, 1) {
		assert.Equal(t, domain.NotificationTypePaymentReminder, resp.Notifications[0].Type)
	}

	resp, err = h.svc.List(ctx, domain.ListNotificationRequest{
		Type: string(domain.NotificationTypePaymentReceipt),
	})
	assert.NoError(t, err)
	assert.Len(t, resp.Notifications, 1)
}
