package scheduler

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/hashridge/hostbill/internal/clock"
	"github.com/hashridge/hostbill/internal/config"
	customerdomain "github.com/hashridge/hostbill/internal/customer/domain"
	"github.com/hashridge/hostbill/internal/dbtest"
	invoicedomain "github.com/hashridge/hostbill/internal/invoice/domain"
	notificationdomain "github.com/hashridge/hostbill/internal/notification/domain"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// stubInvoiceSvc runs the real sweep UPDATE; everything else is unused here.
type stubInvoiceSvc struct {
	db   *gorm.DB
	fake *clock.FakeClock
}

func (s *stubInvoiceSvc) Create(ctx context.Context, req invoicedomain.CreateInvoiceRequest) (invoicedomain.Invoice, error) {
	return invoicedomain.Invoice{}, nil
}
func (s *stubInvoiceSvc) UpdateDraft(ctx context.Context, req invoicedomain.UpdateDraftRequest) (invoicedomain.Invoice, error) {
	return invoicedomain.Invoice{}, nil
}
func (s *stubInvoiceSvc) Issue(ctx context.Context, id string) (invoicedomain.IssueResult, error) {
	return invoicedomain.IssueResult{}, nil
}
func (s *stubInvoiceSvc) Cancel(ctx context.Context, id string) (invoicedomain.Invoice, error) {
	return invoicedomain.Invoice{}, nil
}
func (s *stubInvoiceSvc) Refund(ctx context.Context, id string) (invoicedomain.Invoice, error) {
	return invoicedomain.Invoice{}, nil
}
func (s *stubInvoiceSvc) List(ctx context.Context, req invoicedomain.ListInvoiceRequest) (invoicedomain.ListInvoiceResponse, error) {
	return invoicedomain.ListInvoiceResponse{}, nil
}
func (s *stubInvoiceSvc) GetByID(ctx context.Context, id string) (invoicedomain.Invoice, error) {
	return invoicedomain.Invoice{}, nil
}
func (s *stubInvoiceSvc) RenderPDF(ctx context.Context, id string) ([]byte, error) {
	return nil, nil
}
func (s *stubInvoiceSvc) SweepOverdue(ctx context.Context) (int64, error) {
	now := s.fake.Now()
	result := s.db.WithContext(ctx).Exec(
		`UPDATE invoices SET status = ?, updated_at = ? WHERE status = ? AND due_at < ?`,
		invoicedomain.InvoiceStatusOverdue, now, invoicedomain.InvoiceStatusIssued, now,
	)
	return result.RowsAffected, result.Error
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

// recordingNotifySvc writes the attempt rows the way the real service does,
// so the reminder dedupe sees them.
type recordingNotifySvc struct {
	db        *gorm.DB
	node      *snowflake.Node
	fake      *clock.FakeClock
	reminders []snowflake.ID
	sendErr   error
}

func (s *recordingNotifySvc) SendInvoiceIssued(ctx context.Context, invoice invoicedomain.Invoice, customer customerdomain.Customer) (notificationdomain.InvoiceNotification, error) {
	return notificationdomain.InvoiceNotification{}, nil
}
func (s *recordingNotifySvc) SendPaymentReminder(ctx context.Context, invoice invoicedomain.Invoice, customer customerdomain.Customer) (notificationdomain.InvoiceNotification, error) {
	notification := notificationdomain.InvoiceNotification{
		ID:            s.node.Generate(),
		InvoiceID:     invoice.ID,
		Type:          notificationdomain.NotificationTypePaymentReminder,
		Recipient:     customer.Email,
		Status:        notificationdomain.NotificationStatusSent,
		AttemptCount:  1,
		LastAttemptAt: s.fake.Now(),
		CreatedAt:     s.fake.Now(),
	}
	if s.sendErr != nil {
		notification.Status = notificationdomain.NotificationStatusFailed
		msg := s.sendErr.Error()
		notification.Error = &msg
	}
	if err := s.db.WithContext(ctx).Create(&notification).Error; err != nil {
		return notificationdomain.InvoiceNotification{}, err
	}
	if s.sendErr != nil {
		return notification, notificationdomain.ErrSendFailed
	}
	s.reminders = append(s.reminders, invoice.ID)
	return notification, nil
}
func (s *recordingNotifySvc) SendPaymentReceipt(ctx context.Context, invoice invoicedomain.Invoice, customer customerdomain.Customer) (notificationdomain.InvoiceNotification, error) {
	return notificationdomain.InvoiceNotification{}, nil
}
func (s *recordingNotifySvc) List(ctx context.Context, req notificationdomain.ListNotificationRequest) (notificationdomain.ListNotificationResponse, error) {
	return notificationdomain.ListNotificationResponse{}, nil
}

type schedHarness struct {
	sched   *Scheduler
	db      *gorm.DB
	fake    *clock.FakeClock
	node    *snowflake.Node
	notify  *recordingNotifySvc
	invoice invoicedomain.Invoice
}

func setupScheduler(t *testing.T, dueAgo time.Duration) *schedHarness {
	t.Helper()

	db := dbtest.Open(t)
	if err := db.AutoMigrate(&invoicedomain.Invoice{}, &notificationdomain.InvoiceNotification{}); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	node, err := snowflake.NewNode(1)
	if err != nil {
		t.Fatalf("new node: %v", err)
	}
	fake := clock.NewFakeClock(time.Date(2025, 3, 20, 6, 0, 0, 0, time.UTC))

	customer := customerdomain.Customer{
		ID:    node.Generate(),
		Name:  "Ridgeline Mining LLC",
		Email: "ops@ridgeline.example",
	}

	due := fake.Now().Add(-dueAgo)
	issued := due.AddDate(0, 0, -14)
	invoice := invoicedomain.Invoice{
		ID:            node.Generate(),
		CustomerID:    customer.ID,
		InvoiceNumber: "20250306001",
		TotalCents:    25500,
		Currency:      "USD",
		Status:        invoicedomain.InvoiceStatusIssued,
		GeneratedAt:   issued,
		IssuedAt:      &issued,
		DueAt:         due,
		CreatedAt:     issued,
		UpdatedAt:     issued,
	}
	if err := db.Create(&invoice).Error; err != nil {
		t.Fatalf("seed invoice: %v", err)
	}

	notify := &recordingNotifySvc{db: db, node: node, fake: fake}
	sched, err := New(Params{
		DB:          db,
		Log:         zap.NewNop(),
		Clock:       fake,
		Billing:     config.NewStaticBillingConfigHolder(config.DefaultBillingConfig()),
		InvoiceSvc:  &stubInvoiceSvc{db: db, fake: fake},
		CustomerSvc: &stubCustomerSvc{customers: map[snowflake.ID]customerdomain.Customer{customer.ID: customer}},
		NotifySvc:   notify,
	})
	if err != nil {
		t.Fatalf("new scheduler: %v", err)
	}

	return &schedHarness{sched: sched, db: db, fake: fake, node: node, notify: notify, invoice: invoice}
}

func (h *schedHarness) status(t *testing.T) invoicedomain.InvoiceStatus {
	t.Helper()
	var status string
	if err := h.db.Raw(`SELECT status FROM invoices WHERE id = ?`, h.invoice.ID).Scan(&status).Error; err != nil {
		t.Fatalf("load status: %v", err)
	}
	return invoicedomain.InvoiceStatus(status)
}

func TestRunOnce_SweepsAndReminds(t *testing.T) {
	h := setupScheduler(t, 4*24*time.Hour)

	assert.NoError(t, h.sched.RunOnce(context.Background()))
	assert.Equal(t, invoicedomain.InvoiceStatusOverdue, h.status(t))
	assert.Len(t, h.notify.reminders, 1)

	// Same day again: first offset already covered, nothing new.
	assert.NoError(t, h.sched.RunOnce(context.Background()))
	assert.Len(t, h.notify.reminders, 1)

	// Past the second offset another reminder goes out.
	h.fake.Advance(4 * 24 * time.Hour)
	assert.NoError(t, h.sched.RunOnce(context.Background()))
	assert.Len(t, h.notify.reminders, 2)
}

func TestRunOnce_NotYetDueSendsNothing(t *testing.T) {
	h := setupScheduler(t, 24*time.Hour)

	// One day past due is before the first reminder offset; the sweep
	// still materializes OVERDUE.
	assert.NoError(t, h.sched.RunOnce(context.Background()))
	assert.Equal(t, invoicedomain.InvoiceStatusOverdue, h.status(t))
	assert.Empty(t, h.notify.reminders)
}

func TestPaymentRemindersJob_FailedSendRetries(t *testing.T) {
	h := setupScheduler(t, 4*24*time.Hour)

	h.notify.sendErr = errors.New("smtp refused")
	err := h.sched.RunOnce(context.Background())
	assert.Error(t, err)
	assert.Empty(t, h.notify.reminders)

	// Only SENT rows satisfy an offset, so the next run retries.
	h.notify.sendErr = nil
	assert.NoError(t, h.sched.RunOnce(context.Background()))
	assert.Len(t, h.notify.reminders, 1)
}
