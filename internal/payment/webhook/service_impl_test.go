package webhook

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"net/http"
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
	"github.com/hashridge/hostbill/internal/payment/adapters"
	"github.com/hashridge/hostbill/internal/payment/adapters/confirmo"
	paymentdomain "github.com/hashridge/hostbill/internal/payment/domain"
	paymentrepo "github.com/hashridge/hostbill/internal/payment/repository"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const webhookSecret = "whsec-test"

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

type webhookHarness struct {
	svc     *Service
	db      *gorm.DB
	node    *snowflake.Node
	fake    *clock.FakeClock
	notify  *stubNotifySvc
	invoice invoicedomain.Invoice
	invRepo invoicedomain.Repository
	payRepo paymentdomain.Repository
}

func setupWebhook(t *testing.T) *webhookHarness {
	t.Helper()

	db := dbtest.Open(t)
	if err := db.AutoMigrate(&paymentdomain.Payment{}, &paymentdomain.PaymentEvent{}, &invoicedomain.Invoice{}); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	node, err := snowflake.NewNode(1)
	if err != nil {
		t.Fatalf("new node: %v", err)
	}
	fake := clock.NewFakeClock(time.Date(2025, 3, 12, 8, 0, 0, 0, time.UTC))

	customer := customerdomain.Customer{
		ID:    node.Generate(),
		Name:  "Ridgeline Mining LLC",
		Email: "ops@ridgeline.example",
	}

	invRepo := invoicerepo.Provide()
	payRepo := paymentrepo.Provide()
	notify := &stubNotifySvc{}

	issued := fake.Now().AddDate(0, 0, -3)
	invoice := invoicedomain.Invoice{
		ID:             node.Generate(),
		CustomerID:     customer.ID,
		InvoiceNumber:  "20250309001",
		MinerCount:     10,
		UnitPriceCents: 2550,
		TotalCents:     25500,
		Currency:       "USD",
		Status:         invoicedomain.InvoiceStatusIssued,
		GeneratedAt:    issued,
		IssuedAt:       &issued,
		DueAt:          issued.AddDate(0, 0, 14),
		CreatedAt:      issued,
		UpdatedAt:      issued,
	}
	if err := invRepo.Insert(context.Background(), db, &invoice); err != nil {
		t.Fatalf("seed invoice: %v", err)
	}

	svc := NewService(Params{
		DB:          db,
		Log:         zap.NewNop(),
		GenID:       node,
		Clock:       fake,
		Adapters:    adapters.NewRegistry(confirmo.New(webhookSecret)),
		PaymentRepo: payRepo,
		InvoiceRepo: invRepo,
		AuditSvc:    noopAuditSvc{},
		CustomerSvc: &stubCustomerSvc{customers: map[snowflake.ID]customerdomain.Customer{customer.ID: customer}},
		NotifySvc:   notify,
	}).(*Service)

	return &webhookHarness{
		svc:     svc,
		db:      db,
		node:    node,
		fake:    fake,
		notify:  notify,
		invoice: invoice,
		invRepo: invRepo,
		payRepo: payRepo,
	}
}

func signedHeaders(payload []byte) http.Header {
	mac := hmac.New(sha256.New, []byte(webhookSecret))
	mac.Write(payload)
	headers := http.Header{}
	headers.Set("X-Confirmo-Signature", hex.EncodeToString(mac.Sum(nil)))
	return headers
}

func (h *webhookHarness) eventRow(t *testing.T, providerEventID string) paymentdomain.PaymentEvent {
	t.Helper()
	var event paymentdomain.PaymentEvent
	err := h.db.Raw(
		`SELECT * FROM payment_events WHERE provider = ? AND provider_event_id = ?`,
		"confirmo", providerEventID,
	).Scan(&event).Error
	if err != nil {
		t.Fatalf("load event: %v", err)
	}
	return event
}

func TestIngest_SettledFlipsInvoice(t *testing.T) {
	h := setupWebhook(t)
	ctx := context.Background()

	payload := []byte(`{"id":"evt-1","status":"paid","reference":"` + h.invoice.ID.String() + `","amount":"255.00","currency":"USD"}`)
	err := h.svc.Ingest(ctx, "confirmo", signedHeaders(payload), payload)
	assert.NoError(t, err)

	stored, err := h.invRepo.FindByID(ctx, h.db, h.invoice.ID)
	assert.NoError(t, err)
	assert.Equal(t, invoicedomain.InvoiceStatusPaid, stored.Status)
	assert.NotNil(t, stored.PaidAt)

	total, err := h.payRepo.SumLinked(ctx, h.db, h.invoice.ID)
	assert.NoError(t, err)
	assert.Equal(t, int64(25500), total)

	event := h.eventRow(t, "evt-1")
	assert.NotNil(t, event.ProcessedAt)
	assert.NotNil(t, event.PaymentID)
	assert.Equal(t, []snowflake.ID{h.invoice.ID}, h.notify.receipts)
}

func TestIngest_RedeliveryIsIdempotent(t *testing.T) {
	h := setupWebhook(t)
	ctx := context.Background()

	payload := []byte(`{"id":"evt-1","status":"paid","reference":"` + h.invoice.ID.String() + `","amount":"255.00","currency":"USD"}`)
	assert.NoError(t, h.svc.Ingest(ctx, "confirmo", signedHeaders(payload), payload))
	assert.NoError(t, h.svc.Ingest(ctx, "confirmo", signedHeaders(payload), payload))

	total, err := h.payRepo.SumLinked(ctx, h.db, h.invoice.ID)
	assert.NoError(t, err)
	assert.Equal(t, int64(25500), total)
	assert.Len(t, h.notify.receipts, 1)
}

func TestIngest_PartialAmountLeavesStatus(t *testing.T) {
	h := setupWebhook(t)
	ctx := context.Background()

	payload := []byte(`{"id":"evt-1","status":"paid","reference":"` + h.invoice.ID.String() + `","amount":"100.00","currency":"USD"}`)
	assert.NoError(t, h.svc.Ingest(ctx, "confirmo", signedHeaders(payload), payload))

	stored, err := h.invRepo.FindByID(ctx, h.db, h.invoice.ID)
	assert.NoError(t, err)
	assert.Equal(t, invoicedomain.InvoiceStatusIssued, stored.Status)
	assert.Nil(t, stored.PaidAt)
	assert.Empty(t, h.notify.receipts)
}

func TestIngest_NonSettledRecordedOnly(t *testing.T) {
	h := setupWebhook(t)
	ctx := context.Background()

	payload := []byte(`{"id":"evt-2","status":"expired","reference":"` + h.invoice.ID.String() + `","amount":"255.00","currency":"USD"}`)
	assert.NoError(t, h.svc.Ingest(ctx, "confirmo", signedHeaders(payload), payload))

	event := h.eventRow(t, "evt-2")
	assert.Equal(t, "failed", event.EventType)
	assert.NotNil(t, event.ProcessedAt)
	assert.Nil(t, event.PaymentID)

	stored, err := h.invRepo.FindByID(ctx, h.db, h.invoice.ID)
	assert.NoError(t, err)
	assert.Equal(t, invoicedomain.InvoiceStatusIssued, stored.Status)
}

func TestIngest_Rejections(t *testing.T) {
	h := setupWebhook(t)
	ctx := context.Background()

	payload := []byte(`{"id":"evt-3","status":"paid","reference":"` + h.invoice.ID.String() + `","amount":"255.00"}`)

	err := h.svc.Ingest(ctx, "stripe", signedHeaders(payload), payload)
	assert.ErrorIs(t, err, ErrProviderNotFound)

	headers := http.Header{}
	headers.Set("X-Confirmo-Signature", "deadbeef")
	err = h.svc.Ingest(ctx, "confirmo", headers, payload)
	assert.ErrorIs(t, err, adapters.ErrInvalidSignature)
}

func TestIngest_UnknownInvoiceRollsBack(t *testing.T) {
	h := setupWebhook(t)
	ctx := context.Background()

	payload := []byte(`{"id":"evt-4","status":"paid","reference":"` + h.node.Generate().String() + `","amount":"255.00","currency":"USD"}`)
	err := h.svc.Ingest(ctx, "confirmo", signedHeaders(payload), payload)
	assert.ErrorIs(t, err, ErrUnknownInvoice)

	// The event row rolled back with the transaction, so a corrected
	// redelivery is still processable.
	var count int64
	assert.NoError(t, h.db.Raw(`SELECT COUNT(*) FROM payment_events`).Scan(&count).Error)
	assert.Equal(t, int64(0), count)
}
