package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	auditdomain "github.com/hashridge/hostbill/internal/audit/domain"
	"github.com/hashridge/hostbill/internal/authcontext"
	"github.com/hashridge/hostbill/internal/clock"
	"github.com/hashridge/hostbill/internal/config"
	customerdomain "github.com/hashridge/hostbill/internal/customer/domain"
	"github.com/hashridge/hostbill/internal/invoice/domain"
	invoiceformat "github.com/hashridge/hostbill/internal/invoice/format"
	notificationdomain "github.com/hashridge/hostbill/internal/notification/domain"
	obsmetrics "github.com/hashridge/hostbill/internal/observability/metrics"
	"github.com/hashridge/hostbill/internal/pool"
	pricingdomain "github.com/hashridge/hostbill/internal/pricing/domain"
	"github.com/hashridge/hostbill/internal/providers/pdf"
	pkgdb "github.com/hashridge/hostbill/pkg/db"
	"github.com/hashridge/hostbill/pkg/db/pagination"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB          *gorm.DB
	Log         *zap.Logger
	GenID       *snowflake.Node
	Clock       clock.Clock
	Cfg         config.Config
	Billing     *config.BillingConfigHolder
	Repo        domain.Repository
	AuditSvc    auditdomain.Service
	CustomerSvc customerdomain.Service
	PricingSvc  pricingdomain.Service
	Pool        pool.Client
	NotifySvc   notificationdomain.Service
	PDF         pdf.Provider
	Metrics     *obsmetrics.BillingMetrics `optional:"true"`
}

type Service struct {
	db          *gorm.DB
	log         *zap.Logger
	genID       *snowflake.Node
	clock       clock.Clock
	cfg         config.Config
	billing     *config.BillingConfigHolder
	repo        domain.Repository
	auditSvc    auditdomain.Service
	customerSvc customerdomain.Service
	pricingSvc  pricingdomain.Service
	pool        pool.Client
	notifySvc   notificationdomain.Service
	pdf         pdf.Provider
	metrics     *obsmetrics.BillingMetrics
}

func NewService(p Params) domain.Service {
	return &Service{
		db:          p.DB,
		log:         p.Log.Named("invoice.service"),
		genID:       p.GenID,
		clock:       p.Clock,
		cfg:         p.Cfg,
		billing:     p.Billing,
		repo:        p.Repo,
		auditSvc:    p.AuditSvc,
		customerSvc: p.CustomerSvc,
		pricingSvc:  p.PricingSvc,
		pool:        p.Pool,
		notifySvc:   p.NotifySvc,
		pdf:         p.PDF,
		metrics:     p.Metrics,
	}
}

func (s *Service) Create(ctx context.Context, req domain.CreateInvoiceRequest) (domain.Invoice, error) {
	customer, err := s.loadCustomer(ctx, req.CustomerID)
	if err != nil {
		return domain.Invoice{}, err
	}

	var minerCount int64
	if req.MinerCount != nil {
		if *req.MinerCount < 0 {
			return domain.Invoice{}, domain.ErrInvalidMinerCount
		}
		minerCount = *req.MinerCount
	} else {
		subaccount := ""
		if customer.PoolSubaccount != nil {
			subaccount = *customer.PoolSubaccount
		}
		count, ok := s.pool.WorkerCount(ctx, subaccount)
		if !ok {
			// Without a count the total is meaningless, so unlike the
			// read paths this failure does not degrade to zero.
			return domain.Invoice{}, domain.ErrMinerCountUnavailable
		}
		minerCount = count
	}

	now := s.clock.Now()

	var unitPriceCents int64
	currency := s.cfg.DefaultCurrency
	if req.UnitPriceCents != nil {
		if *req.UnitPriceCents <= 0 {
			return domain.Invoice{}, domain.ErrInvalidUnitPrice
		}
		unitPriceCents = *req.UnitPriceCents
	} else {
		price, err := s.pricingSvc.ResolveUnitPrice(ctx, customer.ID.String(), now)
		if err != nil {
			return domain.Invoice{}, err
		}
		unitPriceCents = price.UnitPriceCents
		currency = price.Currency
	}

	billing := s.billing.Get()
	invoice := domain.Invoice{
		ID:             s.genID.Generate(),
		CustomerID:     customer.ID,
		MinerCount:     minerCount,
		UnitPriceCents: unitPriceCents,
		TotalCents:     minerCount * unitPriceCents,
		Currency:       currency,
		Status:         domain.InvoiceStatusDraft,
		GeneratedAt:    now,
		DueAt:          now.AddDate(0, 0, billing.NetTermsDays),
		Notes:          strings.TrimSpace(req.Notes),
		Metadata:       datatypes.JSONMap{},
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	prefix := now.Format("20060102")
	for attempt := 0; ; attempt++ {
		err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			seq, err := s.repo.MaxDailySequence(ctx, tx, prefix)
			if err != nil {
				return err
			}
			next := seq + 1
			if next > billing.DailySequenceLimit {
				return domain.ErrDailySequenceExhausted
			}
			invoice.InvoiceNumber = fmt.Sprintf("%s%03d", prefix, next)
			return s.repo.Insert(ctx, tx, &invoice)
		})
		if err == nil {
			break
		}
		// Concurrent creation may race the sequence scan onto the same
		// number; the unique index catches it and one retry suffices.
		if pkgdb.IsDuplicateKeyErr(err) && attempt == 0 {
			continue
		}
		return domain.Invoice{}, err
	}

	s.emitAudit(ctx, "invoice.created", invoice.ID, nil, map[string]any{
		"invoice_number":   invoice.InvoiceNumber,
		"customer_id":      invoice.CustomerID.String(),
		"miner_count":      invoice.MinerCount,
		"unit_price_cents": invoice.UnitPriceCents,
		"total_cents":      invoice.TotalCents,
		"status":           string(invoice.Status),
	})
	if s.metrics != nil {
		s.metrics.IncInvoiceCreated()
	}

	return invoice, nil
}

func (s *Service) UpdateDraft(ctx context.Context, req domain.UpdateDraftRequest) (domain.Invoice, error) {
	invoiceID, err := parseInvoiceID(req.ID)
	if err != nil {
		return domain.Invoice{}, err
	}
	if req.MinerCount != nil && *req.MinerCount < 0 {
		return domain.Invoice{}, domain.ErrInvalidMinerCount
	}
	if req.UnitPriceCents != nil && *req.UnitPriceCents <= 0 {
		return domain.Invoice{}, domain.ErrInvalidUnitPrice
	}

	now := s.clock.Now()
	var before, updated domain.Invoice
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		current, err := s.repo.FindByIDForUpdate(ctx, tx, invoiceID)
		if err != nil {
			return err
		}
		if current == nil {
			return domain.ErrNotFound
		}
		if current.Status != domain.InvoiceStatusDraft {
			return domain.ErrInvoiceNotDraft
		}
		before = *current

		updated = *current
		if req.MinerCount != nil {
			updated.MinerCount = *req.MinerCount
		}
		if req.UnitPriceCents != nil {
			updated.UnitPriceCents = *req.UnitPriceCents
		}
		if req.Notes != nil {
			updated.Notes = strings.TrimSpace(*req.Notes)
		}
		updated.TotalCents = updated.MinerCount * updated.UnitPriceCents
		updated.UpdatedAt = now

		return tx.WithContext(ctx).Exec(
			`UPDATE invoices
			 SET miner_count = ?, unit_price_cents = ?, total_cents = ?, notes = ?, updated_at = ?
			 WHERE id = ?`,
			updated.MinerCount,
			updated.UnitPriceCents,
			updated.TotalCents,
			updated.Notes,
			updated.UpdatedAt,
			updated.ID,
		).Error
	})
	if err != nil {
		return domain.Invoice{}, err
	}

	s.emitAudit(ctx, "invoice.draft_updated", updated.ID, map[string]any{
		"miner_count":      before.MinerCount,
		"unit_price_cents": before.UnitPriceCents,
		"total_cents":      before.TotalCents,
	}, map[string]any{
		"miner_count":      updated.MinerCount,
		"unit_price_cents": updated.UnitPriceCents,
		"total_cents":      updated.TotalCents,
	})

	return updated, nil
}

func (s *Service) Issue(ctx context.Context, id string) (domain.IssueResult, error) {
	if err := requireAdminTier(ctx); err != nil {
		return domain.IssueResult{}, err
	}

	invoice, err := s.transition(ctx, id, domain.InvoiceStatusIssued, "invoice.issued")
	if err != nil {
		return domain.IssueResult{}, err
	}
	if s.metrics != nil {
		s.metrics.IncInvoiceIssued()
	}

	result := domain.IssueResult{Invoice: invoice, EmailSent: true}

	customer, err := s.customerSvc.GetByID(ctx, invoice.CustomerID.String())
	if err != nil {
		result.EmailSent = false
		result.EmailErr = err.Error()
		s.log.Warn("issue email skipped", zap.String("invoice_id", invoice.ID.String()), zap.Error(err))
		return result, nil
	}
	if _, err := s.notifySvc.SendInvoiceIssued(ctx, invoice, customer); err != nil {
		result.EmailSent = false
		result.EmailErr = err.Error()
		s.log.Warn("issue email failed", zap.String("invoice_id", invoice.ID.String()), zap.Error(err))
	}

	return result, nil
}

func (s *Service) Cancel(ctx context.Context, id string) (domain.Invoice, error) {
	return s.transition(ctx, id, domain.InvoiceStatusCancelled, "invoice.cancelled")
}

func (s *Service) Refund(ctx context.Context, id string) (domain.Invoice, error) {
	if err := requireAdminTier(ctx); err != nil {
		return domain.Invoice{}, err
	}
	return s.transition(ctx, id, domain.InvoiceStatusRefunded, "invoice.refunded")
}

// transition applies one status change under a row lock and audits the
// before/after pair after commit.
func (s *Service) transition(ctx context.Context, id string, to domain.InvoiceStatus, action string) (domain.Invoice, error) {
	invoiceID, err := parseInvoiceID(id)
	if err != nil {
		return domain.Invoice{}, err
	}

	now := s.clock.Now()
	var before domain.InvoiceStatus
	var updated domain.Invoice
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		current, err := s.repo.FindByIDForUpdate(ctx, tx, invoiceID)
		if err != nil {
			return err
		}
		if current == nil {
			return domain.ErrNotFound
		}
		if !domain.CanTransition(current.Status, to) {
			return domain.ErrInvalidTransition
		}
		before = current.Status

		updated = *current
		updated.Status = to
		updated.UpdatedAt = now
		if to == domain.InvoiceStatusIssued {
			issuedAt := now
			updated.IssuedAt = &issuedAt
		}

		return tx.WithContext(ctx).Exec(
			`UPDATE invoices SET status = ?, issued_at = ?, updated_at = ? WHERE id = ?`,
			updated.Status,
			updated.IssuedAt,
			updated.UpdatedAt,
			updated.ID,
		).Error
	})
	if err != nil {
		return domain.Invoice{}, err
	}

	s.emitAudit(ctx, action, updated.ID,
		map[string]any{"status": string(before)},
		map[string]any{"status": string(updated.Status)},
	)

	return updated, nil
}

func (s *Service) List(ctx context.Context, req domain.ListInvoiceRequest) (domain.ListInvoiceResponse, error) {
	filter := domain.ListInvoiceFilter{
		InvoiceNumber: strings.TrimSpace(req.InvoiceNumber),
		Status:        domain.InvoiceStatus(strings.ToUpper(strings.TrimSpace(req.Status))),
		GeneratedFrom: req.GeneratedFrom,
		GeneratedTo:   req.GeneratedTo,
		DueFrom:       req.DueFrom,
		DueTo:         req.DueTo,
		Now:           s.clock.Now(),
	}
	if raw := strings.TrimSpace(req.CustomerID); raw != "" {
		customerID, err := snowflake.ParseString(raw)
		if err != nil {
			return domain.ListInvoiceResponse{}, domain.ErrCustomerNotFound
		}
		filter.CustomerID = customerID
	}

	pageSize := req.PageSize
	if pageSize <= 0 {
		pageSize = 50
	}

	items, err := s.repo.List(ctx, s.db, filter, pagination.Pagination{
		PageToken: req.PageToken,
		PageSize:  pageSize,
	})
	if err != nil {
		return domain.ListInvoiceResponse{}, err
	}

	pageInfo := pagination.BuildCursorPageInfo(items, pageSize, func(invoice *domain.Invoice) string {
		token, err := pagination.EncodeCursor(pagination.Cursor{
			ID:        invoice.ID.String(),
			CreatedAt: invoice.CreatedAt.Format(time.RFC3339),
		})
		if err != nil {
			return ""
		}
		return token
	})
	if pageInfo != nil && pageInfo.HasMore && len(items) > int(pageSize) {
		items = items[:pageSize]
	}

	invoices := make([]domain.Invoice, 0, len(items))
	for _, item := range items {
		if item == nil {
			continue
		}
		inv := *item
		inv.Status = domain.EffectiveStatus(inv, filter.Now)
		invoices = append(invoices, inv)
	}

	resp := domain.ListInvoiceResponse{Invoices: invoices}
	if pageInfo != nil {
		resp.PageInfo = *pageInfo
	}
	return resp, nil
}

func (s *Service) GetByID(ctx context.Context, id string) (domain.Invoice, error) {
	invoiceID, err := parseInvoiceID(id)
	if err != nil {
		return domain.Invoice{}, err
	}

	invoice, err := s.repo.FindByID(ctx, s.db, invoiceID)
	if err != nil {
		return domain.Invoice{}, err
	}
	if invoice == nil {
		return domain.Invoice{}, domain.ErrNotFound
	}

	result := *invoice
	result.Status = domain.EffectiveStatus(result, s.clock.Now())
	return result, nil
}

func (s *Service) RenderPDF(ctx context.Context, id string) ([]byte, error) {
	invoice, err := s.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	customer, err := s.customerSvc.GetByID(ctx, invoice.CustomerID.String())
	if err != nil {
		return nil, err
	}

	data := invoiceformat.PDFData(invoice, customer, s.cfg.AppName, s.cfg.SMTPFrom)
	return s.pdf.GenerateInvoice(ctx, data)
}

func (s *Service) SweepOverdue(ctx context.Context) (int64, error) {
	now := s.clock.Now()
	result := s.db.WithContext(ctx).Exec(
		`UPDATE invoices SET status = ?, updated_at = ? WHERE status = ? AND due_at < ?`,
		domain.InvoiceStatusOverdue,
		now,
		domain.InvoiceStatusIssued,
		now,
	)
	if result.Error != nil {
		return 0, result.Error
	}
	if result.RowsAffected > 0 {
		s.log.Info("overdue sweep", zap.Int64("rows", result.RowsAffected))
	}
	return result.RowsAffected, nil
}

func (s *Service) loadCustomer(ctx context.Context, id string) (customerdomain.Customer, error) {
	customer, err := s.customerSvc.GetByID(ctx, id)
	if err != nil {
		switch err {
		case customerdomain.ErrInvalidID, customerdomain.ErrNotFound:
			return customerdomain.Customer{}, domain.ErrCustomerNotFound
		default:
			return customerdomain.Customer{}, err
		}
	}
	if customer.Archived {
		return customerdomain.Customer{}, domain.ErrCustomerArchived
	}
	return customer, nil
}

func (s *Service) emitAudit(ctx context.Context, action string, id snowflake.ID, before, after map[string]any) {
	if s.auditSvc == nil {
		return
	}
	err := s.auditSvc.Record(ctx, auditdomain.Entry{
		Action:     action,
		TargetType: "invoice",
		TargetID:   id.String(),
		Before:     before,
		After:      after,
	})
	if err != nil {
		s.log.Warn("audit record failed", zap.String("action", action), zap.Error(err))
	}
}

func requireAdminTier(ctx context.Context) error {
	identity, ok := authcontext.IdentityFromContext(ctx)
	if !ok || !identity.Role.IsAdminTier() {
		return domain.ErrForbidden
	}
	return nil
}

func parseInvoiceID(raw string) (snowflake.ID, error) {
	id, err := snowflake.ParseString(strings.TrimSpace(raw))
	if err != nil || id == 0 {
		return 0, domain.ErrInvalidID
	}
	return id, nil
}
