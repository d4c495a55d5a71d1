package service

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	auditdomain "github.com/hashridge/hostbill/internal/audit/domain"
	"github.com/hashridge/hostbill/internal/clock"
	customerdomain "github.com/hashridge/hostbill/internal/customer/domain"
	"github.com/hashridge/hostbill/internal/dbtest"
	invoicedomain "github.com/hashridge/hostbill/internal/invoice/domain"
	invoicerepo "github.com/hashridge/hostbill/internal/invoice/repository"
	notificationdomain "github.com/hashridge/hostbill/internal/notification/domain"
	"github.com/hashridge/hostbill/internal/payment/domain"
	paymentrepo "github.com/hashridge/hostbill/internal/payment/repository"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type noopAuditSvc struct{}

func (noopAuditSvc) Record(ctx context.Context, entry auditdomain.Entry) error { return nil }
func (noopAuditSvc) List(ctx context.Context, req auditdomain.ListAuditLogRequest) (auditdomain.ListAuditLogResponse, error) {
	return auditdomain.ListAuditLogResponse{}, nil
}

type stubCustomerSvc struct {
	customers map[snowflake.ID]customerdomain.Customer
}

func (s *stubCustomerSvc) Create(ctx context.Context, req customerdomain.CreateCustomerRequest) (customerdomain.Customer, error) {
	return customerdomain.Customer{}, nil
}
func (s *stubCustomerSvc) List(ctx context.Context, req customerdomain.ListCustomerRequest) (customerdomain.ListCustomerResponse, error) {
	return customerdomain.ListCustomerResponse{}, nil
}
func (s *stubCustomerSvc) GetByID(ctx context.Context, id string) (customerdomain.Customer, error) {
	customerID, err := snowflake.ParseString(id)
	if err != nil {
		return customerdomain.Customer{}, customerdomain.ErrInvalidID
	}
	customer, ok := s.customers[customerID]
	if !ok {
		return customerdomain.Customer{}, customerdomain.ErrNotFound
	}
	return customer, nil
}
func (s *stubCustomerSvc) Update(ctx context.Context, req customerdomain.UpdateCustomerRequest) (customerdomain.Customer, error) {
	return customerdomain.Customer{}, nil
}
func (s *stubCustomerSvc) Archive(ctx context.Context, id string) error { return nil }

type stubNotifySvc struct {
	receipts []snowflake.ID
}

func (s *stubNotifySvc) SendInvoiceIssued(ctx context.Context, invoice invoicedomain.Invoice, customer customerdomain.Customer) (notificationdomain.InvoiceNotification, error) {
	return notificationdomain.InvoiceNotification{}, nil
}
func (s *stubNotifySvc) SendPaymentReminder(ctx context.Context, invoice invoicedomain.Invoice, customer customerdomain.Customer) (notificationdomain.InvoiceNotification, error) {
	return notificationdomain.InvoiceNotification{}, nil
}
func (s *stubNotifySvc) SendPaymentReceipt(ctx context.Context, invoice invoicedomain.Invoice, customer customerdomain.Customer) (notificationdomain.InvoiceNotification, error) {
	s.receipts = append(s.receipts, invoice.ID)
	return notificationdomain.InvoiceNotification{}, nil
}
func (s *stubNotifySvc) List(ctx context.Context, req notificationdomain.ListNotificationRequest) (notificationdomain.ListNotificationResponse, error) {
	return notificationdomain.ListNotificationResponse{}, nil
}

type paymentHarness struct {
	svc      *Service
	db       *gorm.DB
	fake     *clock.FakeClock
	node     *snowflake.Node
	notify   *stubNotifySvc
	customer customerdomain.Customer
	invRepo  invoicedomain.Repository
	seq      int
}

func setupPayment(t *testing.T) *paymentHarness {
	t.Helper()

	db := dbtest.Open(t)
	if err := db.AutoMigrate(&domain.Payment{}, &invoicedomain.Invoice{}); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	node, err := snowflake.NewNode(1)
	if err != nil {
		t.Fatalf("new node: %v", err)
	}
	fake := clock.NewFakeClock(time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC))

	customer := customerdomain.Customer{
		ID:    node.Generate(),
		Name:  "Ridgeline Mining LLC",
		Email: "ops@ridgeline.example",
	}
	notify := &stubNotifySvc{}
	invRepo := invoicerepo.Provide()

	svc := NewService(Params{
		DB:          db,
		Log:         zap.NewNop(),
		GenID:       node,
		Clock:       fake,
		Repo:        paymentrepo.Provide(),
		InvoiceRepo: invRepo,
		AuditSvc:    noopAuditSvc{},
		CustomerSvc: &stubCustomerSvc{customers: map[snowflake.ID]customerdomain.Customer{customer.ID: customer}},
		NotifySvc:   notify,
	}).(*Service)

	return &paymentHarness{
		svc:      svc,
		db:       db,
		fake:     fake,
		node:     node,
		notify:   notify,
		customer: customer,
		invRepo:  invRepo,
	}
}

func (h *paymentHarness) seedInvoice(t *testing.T, status invoicedomain.InvoiceStatus, totalCents int64) invoicedomain.Invoice {
	t.Helper()

	h.seq++
	now := h.fake.Now()
	issued := now.AddDate(0, 0, -5)
	invoice := invoicedomain.Invoice{
		ID:             h.node.Generate(),
		CustomerID:     h.customer.ID,
		InvoiceNumber:  fmt.Sprintf("20250305%03d", h.seq),
		MinerCount:     10,
		UnitPriceCents: totalCents / 10,
		TotalCents:     totalCents,
		Currency:       "USD",
		Status:         status,
		GeneratedAt:    issued,
		IssuedAt:       &issued,
		DueAt:          issued.AddDate(0, 0, 14),
		CreatedAt:      issued,
		UpdatedAt:      issued,
	}
	if status == invoicedomain.InvoiceStatusOverdue {
		invoice.DueAt = now.AddDate(0, 0, -1)
	}
	if err := h.invRepo.Insert(context.Background(), h.db, &invoice); err != nil {
		t.Fatalf("seed invoice: %v", err)
	}
	return invoice
}

func (h *paymentHarness) createPayment(t *testing.T, amountCents int64) domain.Payment {
	t.Helper()

	payment, err := h.svc.Create(context.Background(), domain.CreatePaymentRequest{
		CustomerID:  h.customer.ID.String(),
		AmountCents: amountCents,
		Narration:   "wire transfer",
	})
	if err != nil {
		t.Fatalf("create payment: %v", err)
	}
	return payment
}

func TestCreatePayment_Validation(t *testing.T) {
	h := setupPayment(t)
	ctx := context.Background()

	_, err := h.svc.Create(ctx, domain.CreatePaymentRequest{
		CustomerID:  h.node.Generate().String(),
		AmountCents: 1000,
	})
	assert.ErrorIs(t, err, domain.ErrInvalidCustomer)

	_, err = h.svc.Create(ctx, domain.CreatePaymentRequest{
		CustomerID: h.customer.ID.String(),
	})
	assert.ErrorIs(t, err, domain.ErrInvalidAmount)

	_, err = h.svc.Create(ctx, domain.CreatePaymentRequest{
		CustomerID:  h.customer.ID.String(),
		AmountCents: 1000,
		Type:        "GIFT",
	})
	assert.ErrorIs(t, err, domain.ErrInvalidType)

	payment, err := h.svc.Create(ctx, domain.CreatePaymentRequest{
		CustomerID:  h.customer.ID.String(),
		AmountCents: -500,
		Type:        "adjustment",
	})
	assert.NoError(t, err)
	assert.Equal(t, domain.PaymentTypeAdjustment, payment.Type)
	assert.Equal(t, int64(-500), payment.AmountCents)
}

func TestRecordPayment_FullAmountFlipsToPaid(t *testing.T) {
	h := setupPayment(t)
	ctx := context.Background()

	invoice := h.seedInvoice(t, invoicedomain.InvoiceStatusIssued, 25500)
	payment := h.createPayment(t, 25500)

	result, err := h.svc.RecordPayment(ctx, invoice.ID.String(), payment.ID.String())
	assert.NoError(t, err)
	assert.True(t, result.StatusChanged)
	assert.Equal(t, invoicedomain.InvoiceStatusPaid, result.InvoiceStatus)
	assert.Equal(t, int64(25500), result.TotalPaidCents)

	stored, err := h.invRepo.FindByID(ctx, h.db, invoice.ID)
	assert.NoError(t, err)
	assert.Equal(t, invoicedomain.InvoiceStatusPaid, stored.Status)
	if assert.NotNil(t, stored.PaidAt) {
		assert.Equal(t, h.fake.Now().Unix(), stored.PaidAt.Unix())
	}
	assert.Equal(t, []snowflake.ID{invoice.ID}, h.notify.receipts)
}

func TestRecordPayment_PartialLeavesStatus(t *testing.T) {
	h := setupPayment(t)
	ctx := context.Background()

	invoice := h.seedInvoice(t, invoicedomain.InvoiceStatusIssued, 25500)
	payment := h.createPayment(t, 10000)

	result, err := h.svc.RecordPayment(ctx, invoice.ID.String(), payment.ID.String())
	assert.NoError(t, err)
	assert.False(t, result.StatusChanged)
	assert.Equal(t, invoicedomain.InvoiceStatusIssued, result.InvoiceStatus)
	assert.Equal(t, int64(10000), result.TotalPaidCents)

	stored, err := h.invRepo.FindByID(ctx, h.db, invoice.ID)
	assert.NoError(t, err)
	assert.Equal(t, invoicedomain.InvoiceStatusIssued, stored.Status)
	assert.Nil(t, stored.PaidAt)
	assert.Empty(t, h.notify.receipts)

	// A second payment covering the remainder settles it.
	second := h.createPayment(t, 15500)
	result, err = h.svc.RecordPayment(ctx, invoice.ID.String(), second.ID.String())
	assert.NoError(t, err)
	assert.True(t, result.StatusChanged)
	assert.Equal(t, int64(25500), result.TotalPaidCents)
}

func TestRecordPayment_OverdueSettles(t *testing.T) {
	h := setupPayment(t)
	ctx := context.Background()

	invoice := h.seedInvoice(t, invoicedomain.InvoiceStatusOverdue, 25500)
	payment := h.createPayment(t, 30000)

	result, err := h.svc.RecordPayment(ctx, invoice.ID.String(), payment.ID.String())
	assert.NoError(t, err)
	assert.True(t, result.StatusChanged)
	assert.Equal(t, invoicedomain.InvoiceStatusPaid, result.InvoiceStatus)
}

func TestRecordPayment_AlreadyLinkedElsewhere(t *testing.T) {
	h := setupPayment(t)
	ctx := context.Background()

	first := h.seedInvoice(t, invoicedomain.InvoiceStatusIssued, 25500)
	second := h.seedInvoice(t, invoicedomain.InvoiceStatusIssued, 25500)
	payment := h.createPayment(t, 25500)

	_, err := h.svc.RecordPayment(ctx, first.ID.String(), payment.ID.String())
	assert.NoError(t, err)

	_, err = h.svc.RecordPayment(ctx, second.ID.String(), payment.ID.String())
	assert.ErrorIs(t, err, domain.ErrPaymentAlreadyLinked)

	// Re-recording against the same invoice is idempotent.
	result, err := h.svc.RecordPayment(ctx, first.ID.String(), payment.ID.String())
	assert.NoError(t, err)
	assert.Equal(t, int64(25500), result.TotalPaidCents)
}

func TestUnlinkPayment_KeepsInvoicePaid(t *testing.T) {
	h := setupPayment(t)
	ctx := context.Background()

	invoice := h.seedInvoice(t, invoicedomain.InvoiceStatusIssued, 25500)
	payment := h.createPayment(t, 25500)

	_, err := h.svc.RecordPayment(ctx, invoice.ID.String(), payment.ID.String())
	assert.NoError(t, err)

	unlinked, err := h.svc.UnlinkPayment(ctx, payment.ID.String())
	assert.NoError(t, err)
	assert.Nil(t, unlinked.InvoiceID)

	stored, err := h.invRepo.FindByID(ctx, h.db, invoice.ID)
	assert.NoError(t, err)
	assert.Equal(t, invoicedomain.InvoiceStatusPaid, stored.Status)
}

func TestDeletePayment_RejectsLinked(t *testing.T) {
	h := setupPayment(t)
	ctx := context.Background()

	invoice := h.seedInvoice(t, invoicedomain.InvoiceStatusIssued, 25500)
	payment := h.createPayment(t, 25500)

	_, err := h.svc.RecordPayment(ctx, invoice.ID.String(), payment.ID.String())
	assert.NoError(t, err)

	err = h.svc.DeletePayment(context.Background(), payment.ID.String())
	assert.ErrorIs(t, err, domain.ErrPaymentLinked)

	_, err = h.svc.UnlinkPayment(ctx, payment.ID.String())
	assert.NoError(t, err)
	assert.NoError(t, h.svc.DeletePayment(ctx, payment.ID.String()))
	assert.ErrorIs(t, h.svc.DeletePayment(ctx, payment.ID.String()), domain.ErrNotFound)
}

func TestCustomerBalance(t *testing.T) {
	h := setupPayment(t)
	ctx := context.Background()

	h.createPayment(t, 25500)
	h.createPayment(t, -500)

	summary, err := h.svc.CustomerBalance(ctx, h.customer.ID.String())
	assert.NoError(t, err)
	assert.Equal(t, int64(25000), summary.BalanceCents)
	assert.Equal(t, int64(2), summary.PaymentCount)
}
