package service

import (
	"context"
	"errors"
	"net/url"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	auditdomain "github.com/hashridge/hostbill/internal/audit/domain"
	"github.com/hashridge/hostbill/internal/authcontext"
	"github.com/hashridge/hostbill/internal/clock"
	"github.com/hashridge/hostbill/internal/config"
	customerdomain "github.com/hashridge/hostbill/internal/customer/domain"
	"github.com/hashridge/hostbill/internal/dbtest"
	"github.com/hashridge/hostbill/internal/invoice/domain"
	invoicerepo "github.com/hashridge/hostbill/internal/invoice/repository"
	notificationdomain "github.com/hashridge/hostbill/internal/notification/domain"
	"github.com/hashridge/hostbill/internal/pool"
	pricingdomain "github.com/hashridge/hostbill/internal/pricing/domain"
	"github.com/hashridge/hostbill/internal/providers/pdf"
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

type stubPricingSvc struct {
	price pricingdomain.ResolvedPrice
	err   error
}

func (s *stubPricingSvc) ResolveUnitPrice(ctx context.Context, customerID string, atDate time.Time) (pricingdomain.ResolvedPrice, error) {
	if s.err != nil {
		return pricingdomain.ResolvedPrice{}, s.err
	}
	return s.price, nil
}
func (s *stubPricingSvc) CreateConfig(ctx context.Context, req pricingdomain.CreateConfigRequest) (pricingdomain.PricingConfig, error) {
	return pricingdomain.PricingConfig{}, nil
}
func (s *stubPricingSvc) ListByCustomer(ctx context.Context, customerID string) ([]pricingdomain.PricingConfig, error) {
	return nil, nil
}

type stubPoolClient struct {
	workers int64
	ok      bool
}

func (s *stubPoolClient) WorkerCount(ctx context.Context, subaccount string) (int64, bool) {
	return s.workers, s.ok
}
func (s *stubPoolClient) Hashrate(ctx context.Context, subaccount string) (pool.HashrateSample, bool) {
	return pool.HashrateSample{}, s.ok
}
func (s *stubPoolClient) Revenue(ctx context.Context, subaccount string) (pool.RevenueSample, bool) {
	return pool.RevenueSample{}, s.ok
}
func (s *stubPoolClient) Proxy(ctx context.Context, path string, query url.Values) (pool.ProxyResult, error) {
	return pool.ProxyResult{}, nil
}

type stubNotifySvc struct {
	sent    []snowflake.ID
	sendErr error
}

func (s *stubNotifySvc) SendInvoiceIssued(ctx context.Context, invoice domain.Invoice, customer customerdomain.Customer) (notificationdomain.InvoiceNotification, error) {
	if s.sendErr != nil {
		return notificationdomain.InvoiceNotification{}, s.sendErr
	}
	s.sent = append(s.sent, invoice.ID)
	return notificationdomain.InvoiceNotification{}, nil
}
func (s *stubNotifySvc) SendPaymentReminder(ctx context.Context, invoice domain.Invoice, customer customerdomain.Customer) (notificationdomain.InvoiceNotification, error) {
	return notificationdomain.InvoiceNotification{}, nil
}
func (s *stubNotifySvc) SendPaymentReceipt(ctx context.Context, invoice domain.Invoice, customer customerdomain.Customer) (notificationdomain.InvoiceNotification, error) {
	return notificationdomain.InvoiceNotification{}, nil
}
func (s *stubNotifySvc) List(ctx context.Context, req notificationdomain.ListNotificationRequest) (notificationdomain.ListNotificationResponse, error) {
	return notificationdomain.ListNotificationResponse{}, nil
}

type invoiceHarness struct {
	svc      *Service
	db       *gorm.DB
	fake     *clock.FakeClock
	node     *snowflake.Node
	pool     *stubPoolClient
	notify   *stubNotifySvc
	customer customerdomain.Customer
}

func setupInvoice(t *testing.T, billing config.BillingConfig) *invoiceHarness {
	t.Helper()

	db := dbtest.Open(t)
	if err := db.AutoMigrate(&domain.Invoice{}); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	node, err := snowflake.NewNode(1)
	if err != nil {
		t.Fatalf("new node: %v", err)
	}

	fake := clock.NewFakeClock(time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC))

	customer := customerdomain.Customer{
		ID:    node.Generate(),
		Name:  "Mining Co",
		Email: "billing@mining.example",
		Role:  authcontext.RoleClient,
	}

	poolClient := &stubPoolClient{workers: 10, ok: true}
	notify := &stubNotifySvc{}

	customers := map[snowflake.ID]customerdomain.Customer{customer.ID: customer}

	svc := NewService(Params{
		DB:          db,
		Log:         zap.NewNop(),
		GenID:       node,
		Clock:       fake,
		Cfg:         config.Config{AppName: "hostbill", DefaultCurrency: "USD", SMTPFrom: "billing@hostbill.local"},
		Billing:     config.NewStaticBillingConfigHolder(billing),
		Repo:        invoicerepo.Provide(),
		AuditSvc:    noopAuditSvc{},
		CustomerSvc: &stubCustomerSvc{customers: customers},
		PricingSvc:  &stubPricingSvc{price: pricingdomain.ResolvedPrice{UnitPriceCents: 2550, Currency: "USD"}},
		Pool:        poolClient,
		NotifySvc:   notify,
		PDF:         &pdf.NoOpProvider{},
	}).(*Service)

	return &invoiceHarness{
		svc:      svc,
		db:       db,
		fake:     fake,
		node:     node,
		pool:     poolClient,
		notify:   notify,
		customer: customer,
	}
}

func adminCtx(node *snowflake.Node) context.Context {
	return authcontext.WithIdentity(context.Background(), authcontext.Identity{
		UserID: node.Generate(),
		Role:   authcontext.RoleAdmin,
	})
}

func int64ptr(v int64) *int64 { return &v }

func TestCreateInvoice_ComputesTotalAndNumber(t *testing.T) {
	h := setupInvoice(t, config.DefaultBillingConfig())
	ctx := adminCtx(h.node)

	inv, err := h.svc.Create(ctx, domain.CreateInvoiceRequest{
		CustomerID:     h.customer.ID.String(),
		MinerCount:     int64ptr(10),
		UnitPriceCents: int64ptr(2550),
	})
	assert.NoError(t, err)
	assert.Equal(t, int64(25500), inv.TotalCents)
	assert.Equal(t, domain.InvoiceStatusDraft, inv.Status)
	assert.Equal(t, "20250301001", inv.InvoiceNumber)
	assert.Equal(t, h.fake.Now().AddDate(0, 0, 14), inv.DueAt)
	assert.Regexp(t, `^\d{11}$`, inv.InvoiceNumber)

	second, err := h.svc.Create(ctx, domain.CreateInvoiceRequest{
		CustomerID:     h.customer.ID.String(),
		MinerCount:     int64ptr(3),
		UnitPriceCents: int64ptr(2550),
	})
	assert.NoError(t, err)
	assert.Equal(t, "20250301002", second.InvoiceNumber)
}

func TestCreateInvoice_DailySequenceExhausted(t *testing.T) {
	billing := config.DefaultBillingConfig()
	billing.DailySequenceLimit = 2
	h := setupInvoice(t, billing)
	ctx := adminCtx(h.node)

	req := domain.CreateInvoiceRequest{
		CustomerID:     h.customer.ID.String(),
		MinerCount:     int64ptr(1),
		UnitPriceCents: int64ptr(100),
	}
	_, err := h.svc.Create(ctx, req)
	assert.NoError(t, err)
	_, err = h.svc.Create(ctx, req)
	assert.NoError(t, err)
	_, err = h.svc.Create(ctx, req)
	assert.ErrorIs(t, err, domain.ErrDailySequenceExhausted)

	// The next day starts a fresh sequence.
	h.fake.Advance(24 * time.Hour)
	inv, err := h.svc.Create(ctx, req)
	assert.NoError(t, err)
	assert.Equal(t, "20250302001", inv.InvoiceNumber)
}

func TestCreateInvoice_ResolvesPriceAndPoolCount(t *testing.T) {
	h := setupInvoice(t, config.DefaultBillingConfig())
	ctx := adminCtx(h.node)

	inv, err := h.svc.Create(ctx, domain.CreateInvoiceRequest{
		CustomerID: h.customer.ID.String(),
	})
	assert.NoError(t, err)
	assert.Equal(t, int64(10), inv.MinerCount)
	assert.Equal(t, int64(2550), inv.UnitPriceCents)
	assert.Equal(t, int64(25500), inv.TotalCents)
	assert.Equal(t, "USD", inv.Currency)
}

func TestCreateInvoice_PoolUnavailable(t *testing.T) {
	h := setupInvoice(t, config.DefaultBillingConfig())
	h.pool.ok = false
	ctx := adminCtx(h.node)

	_, err := h.svc.Create(ctx, domain.CreateInvoiceRequest{
		CustomerID: h.customer.ID.String(),
	})
	assert.ErrorIs(t, err, domain.ErrMinerCountUnavailable)
}

func TestCreateInvoice_UnknownOrArchivedCustomer(t *testing.T) {
	h := setupInvoice(t, config.DefaultBillingConfig())
	ctx := adminCtx(h.node)

	_, err := h.svc.Create(ctx, domain.CreateInvoiceRequest{
		CustomerID: h.node.Generate().String(),
		MinerCount: int64ptr(1),
	})
	assert.ErrorIs(t, err, domain.ErrCustomerNotFound)

	archived := h.customer
	archived.ID = h.node.Generate()
	archived.Archived = true
	h.svc.customerSvc.(*stubCustomerSvc).customers[archived.ID] = archived

	_, err = h.svc.Create(ctx, domain.CreateInvoiceRequest{
		CustomerID: archived.ID.String(),
		MinerCount: int64ptr(1),
	})
	assert.ErrorIs(t, err, domain.ErrCustomerArchived)
}

func TestUpdateDraft_RecomputesTotal(t *testing.T) {
	h := setupInvoice(t, config.DefaultBillingConfig())
	ctx := adminCtx(h.node)

	inv, err := h.svc.Create(ctx, domain.CreateInvoiceRequest{
		CustomerID:     h.customer.ID.String(),
		MinerCount:     int64ptr(10),
		UnitPriceCents: int64ptr(2550),
	})
	assert.NoError(t, err)

	updated, err := h.svc.UpdateDraft(ctx, domain.UpdateDraftRequest{
		ID:         inv.ID.String(),
		MinerCount: int64ptr(4),
	})
	assert.NoError(t, err)
	assert.Equal(t, int64(4), updated.MinerCount)
	assert.Equal(t, int64(10200), updated.TotalCents)
}

func TestUpdateDraft_RejectedOnceIssued(t *testing.T) {
	h := setupInvoice(t, config.DefaultBillingConfig())
	ctx := adminCtx(h.node)

	inv, err := h.svc.Create(ctx, domain.CreateInvoiceRequest{
		CustomerID:     h.customer.ID.String(),
		MinerCount:     int64ptr(10),
		UnitPriceCents: int64ptr(2550),
	})
	assert.NoError(t, err)

	_, err = h.svc.Issue(ctx, inv.ID.String())
	assert.NoError(t, err)

	_, err = h.svc.UpdateDraft(ctx, domain.UpdateDraftRequest{
		ID:         inv.ID.String(),
		MinerCount: int64ptr(99),
	})
	assert.ErrorIs(t, err, domain.ErrInvoiceNotDraft)

	// The amount tuple is frozen.
	stored, err := h.svc.GetByID(ctx, inv.ID.String())
	assert.NoError(t, err)
	assert.Equal(t, int64(10), stored.MinerCount)
	assert.Equal(t, int64(25500), stored.TotalCents)
}

func TestIssue_StampsDateAndSendsEmail(t *testing.T) {
	h := setupInvoice(t, config.DefaultBillingConfig())
	ctx := adminCtx(h.node)

	inv, err := h.svc.Create(ctx, domain.CreateInvoiceRequest{
		CustomerID:     h.customer.ID.String(),
		MinerCount:     int64ptr(10),
		UnitPriceCents: int64ptr(2550),
	})
	assert.NoError(t, err)

	result, err := h.svc.Issue(ctx, inv.ID.String())
	assert.NoError(t, err)
	assert.Equal(t, domain.InvoiceStatusIssued, result.Invoice.Status)
	if assert.NotNil(t, result.Invoice.IssuedAt) {
		assert.Equal(t, h.fake.Now(), *result.Invoice.IssuedAt)
	}
	assert.True(t, result.EmailSent)
	assert.Equal(t, []snowflake.ID{inv.ID}, h.notify.sent)
}

func TestIssue_EmailFailureIsPartialSuccess(t *testing.T) {
	h := setupInvoice(t, config.DefaultBillingConfig())
	h.notify.sendErr = errors.New("smtp down")
	ctx := adminCtx(h.node)

	inv, err := h.svc.Create(ctx, domain.CreateInvoiceRequest{
		CustomerID:     h.customer.ID.String(),
		MinerCount:     int64ptr(10),
		UnitPriceCents: int64ptr(2550),
	})
	assert.NoError(t, err)

	result, err := h.svc.Issue(ctx, inv.ID.String())
	assert.NoError(t, err)
	assert.False(t, result.EmailSent)
	assert.Contains(t, result.EmailErr, "smtp down")

	stored, err := h.svc.GetByID(ctx, inv.ID.String())
	assert.NoError(t, err)
	assert.Equal(t, domain.InvoiceStatusIssued, stored.Status)
}

func TestIssue_RequiresAdminTier(t *testing.T) {
	h := setupInvoice(t, config.DefaultBillingConfig())
	ctx := adminCtx(h.node)

	inv, err := h.svc.Create(ctx, domain.CreateInvoiceRequest{
		CustomerID:     h.customer.ID.String(),
		MinerCount:     int64ptr(10),
		UnitPriceCents: int64ptr(2550),
	})
	assert.NoError(t, err)

	clientCtx := authcontext.WithIdentity(context.Background(), authcontext.Identity{
		UserID: h.node.Generate(),
		Role:   authcontext.RoleClient,
	})
	_, err = h.svc.Issue(clientCtx, inv.ID.String())
	assert.ErrorIs(t, err, domain.ErrForbidden)
}

func TestCancel_RejectedOncePaid(t *testing.T) {
	h := setupInvoice(t, config.DefaultBillingConfig())
	ctx := adminCtx(h.node)

	inv, err := h.svc.Create(ctx, domain.CreateInvoiceRequest{
		CustomerID:     h.customer.ID.String(),
		MinerCount:     int64ptr(10),
		UnitPriceCents: int64ptr(2550),
	})
	assert.NoError(t, err)
	_, err = h.svc.Issue(ctx, inv.ID.String())
	assert.NoError(t, err)

	err = h.db.Exec(`UPDATE invoices SET status = ? WHERE id = ?`, domain.InvoiceStatusPaid, inv.ID).Error
	assert.NoError(t, err)

	_, err = h.svc.Cancel(ctx, inv.ID.String())
	assert.ErrorIs(t, err, domain.ErrInvalidTransition)

	stored, err := h.svc.GetByID(ctx, inv.ID.String())
	assert.NoError(t, err)
	assert.Equal(t, domain.InvoiceStatusPaid, stored.Status)
}

func TestCancel_AllowedAfterOverdueSweep(t *testing.T) {
	h := setupInvoice(t, config.DefaultBillingConfig())
	ctx := adminCtx(h.node)

	req := domain.CreateInvoiceRequest{
		CustomerID:     h.customer.ID.String(),
		MinerCount:     int64ptr(10),
		UnitPriceCents: int64ptr(2550),
	}
	first, err := h.svc.Create(ctx, req)
	assert.NoError(t, err)
	second, err := h.svc.Create(ctx, req)
	assert.NoError(t, err)
	_, err = h.svc.Issue(ctx, first.ID.String())
	assert.NoError(t, err)
	_, err = h.svc.Issue(ctx, second.ID.String())
	assert.NoError(t, err)

	h.fake.Advance(15 * 24 * time.Hour)

	// Cancelling a past-due invoice works the same whether or not the sweep
	// has materialized OVERDUE yet.
	cancelled, err := h.svc.Cancel(ctx, first.ID.String())
	assert.NoError(t, err)
	assert.Equal(t, domain.InvoiceStatusCancelled, cancelled.Status)

	rows, err := h.svc.SweepOverdue(ctx)
	assert.NoError(t, err)
	assert.Equal(t, int64(1), rows)

	cancelled, err = h.svc.Cancel(ctx, second.ID.String())
	assert.NoError(t, err)
	assert.Equal(t, domain.InvoiceStatusCancelled, cancelled.Status)
}

func TestRefund_OnlyFromPaid(t *testing.T) {
	h := setupInvoice(t, config.DefaultBillingConfig())
	ctx := adminCtx(h.node)

	inv, err := h.svc.Create(ctx, domain.CreateInvoiceRequest{
		CustomerID:     h.customer.ID.String(),
		MinerCount:     int64ptr(10),
		UnitPriceCents: int64ptr(2550),
	})
	assert.NoError(t, err)

	_, err = h.svc.Refund(ctx, inv.ID.String())
	assert.ErrorIs(t, err, domain.ErrInvalidTransition)

	_, err = h.svc.Issue(ctx, inv.ID.String())
	assert.NoError(t, err)
	err = h.db.Exec(`UPDATE invoices SET status = ? WHERE id = ?`, domain.InvoiceStatusPaid, inv.ID).Error
	assert.NoError(t, err)

	refunded, err := h.svc.Refund(ctx, inv.ID.String())
	assert.NoError(t, err)
	assert.Equal(t, domain.InvoiceStatusRefunded, refunded.Status)
}

func TestOverdue_DerivedAndSwept(t *testing.T) {
	h := setupInvoice(t, config.DefaultBillingConfig())
	ctx := adminCtx(h.node)

	inv, err := h.svc.Create(ctx, domain.CreateInvoiceRequest{
		CustomerID:     h.customer.ID.String(),
		MinerCount:     int64ptr(10),
		UnitPriceCents: int64ptr(2550),
	})
	assert.NoError(t, err)
	_, err = h.svc.Issue(ctx, inv.ID.String())
	assert.NoError(t, err)

	// Not yet due: reads report ISSUED.
	current, err := h.svc.GetByID(ctx, inv.ID.String())
	assert.NoError(t, err)
	assert.Equal(t, domain.InvoiceStatusIssued, current.Status)

	h.fake.Advance(15 * 24 * time.Hour)

	// Past due: derived OVERDUE before any sweep runs.
	current, err = h.svc.GetByID(ctx, inv.ID.String())
	assert.NoError(t, err)
	assert.Equal(t, domain.InvoiceStatusOverdue, current.Status)

	listed, err := h.svc.List(ctx, domain.ListInvoiceRequest{Status: "OVERDUE"})
	assert.NoError(t, err)
	assert.Len(t, listed.Invoices, 1)

	rows, err := h.svc.SweepOverdue(ctx)
	assert.NoError(t, err)
	assert.Equal(t, int64(1), rows)

	var stored domain.Invoice
	assert.NoError(t, h.db.First(&stored, "id = ?", inv.ID).Error)
	assert.Equal(t, domain.InvoiceStatusOverdue, stored.Status)

	// The sweep is idempotent.
	rows, err = h.svc.SweepOverdue(ctx)
	assert.NoError(t, err)
	assert.Zero(t, rows)
}
