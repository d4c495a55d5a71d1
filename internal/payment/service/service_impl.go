package service

import (
	"context"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	auditdomain "github.com/hashridge/hostbill/internal/audit/domain"
	"github.com/hashridge/hostbill/internal/clock"
	customerdomain "github.com/hashridge/hostbill/internal/customer/domain"
	invoicedomain "github.com/hashridge/hostbill/internal/invoice/domain"
	notificationdomain "github.com/hashridge/hostbill/internal/notification/domain"
	obsmetrics "github.com/hashridge/hostbill/internal/observability/metrics"
	"github.com/hashridge/hostbill/internal/payment/domain"
	"github.com/hashridge/hostbill/pkg/db/pagination"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB          *gorm.DB
	Log         *zap.Logger
	GenID       *snowflake.Node
	Clock       clock.Clock
	Repo        domain.Repository
	InvoiceRepo invoicedomain.Repository
	AuditSvc    auditdomain.Service
	CustomerSvc customerdomain.Service
	NotifySvc   notificationdomain.Service
	Metrics     *obsmetrics.BillingMetrics `optional:"true"`
}

type Service struct {
	db          *gorm.DB
	log         *zap.Logger
	genID       *snowflake.Node
	clock       clock.Clock
	repo        domain.Repository
	invoiceRepo invoicedomain.Repository
	auditSvc    auditdomain.Service
	customerSvc customerdomain.Service
	notifySvc   notificationdomain.Service
	metrics     *obsmetrics.BillingMetrics
}

func NewService(p Params) domain.Service {
	return &Service{
		db:          p.DB,
		log:         p.Log.Named("payment.service"),
		genID:       p.GenID,
		clock:       p.Clock,
		repo:        p.Repo,
		invoiceRepo: p.InvoiceRepo,
		auditSvc:    p.AuditSvc,
		customerSvc: p.CustomerSvc,
		notifySvc:   p.NotifySvc,
		metrics:     p.Metrics,
	}
}

func (s *Service) Create(ctx context.Context, req domain.CreatePaymentRequest) (domain.Payment, error) {
	customer, err := s.customerSvc.GetByID(ctx, req.CustomerID)
	if err != nil {
		return domain.Payment{}, domain.ErrInvalidCustomer
	}
	if req.AmountCents == 0 {
		return domain.Payment{}, domain.ErrInvalidAmount
	}

	paymentType := domain.PaymentType(strings.ToUpper(strings.TrimSpace(req.Type)))
	switch paymentType {
	case domain.PaymentTypePayment, domain.PaymentTypeAdjustment,
		domain.PaymentTypeElectricity, domain.PaymentTypeRefund:
	case "":
		paymentType = domain.PaymentTypePayment
	default:
		return domain.Payment{}, domain.ErrInvalidType
	}

	now := s.clock.Now()
	paidAt := now
	if req.PaidAt != nil {
		paidAt = req.PaidAt.UTC()
	}

	payment := domain.Payment{
		ID:          s.genID.Generate(),
		CustomerID:  customer.ID,
		AmountCents: req.AmountCents,
		Type:        paymentType,
		Narration:   strings.TrimSpace(req.Narration),
		PaidAt:      paidAt,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	if err := s.repo.Insert(ctx, s.db, &payment); err != nil {
		return domain.Payment{}, err
	}

	s.emitAudit(ctx, "payment.created", payment.ID, nil, map[string]any{
		"customer_id":  payment.CustomerID.String(),
		"amount_cents": payment.AmountCents,
		"type":         string(payment.Type),
	})

	return payment, nil
}

func (s *Service) RecordPayment(ctx context.Context, invoiceID, paymentID string) (domain.RecordPaymentResult, error) {
	invID, err := parseID(invoiceID, invoicedomain.ErrInvalidID)
	if err != nil {
		return domain.RecordPaymentResult{}, err
	}
	payID, err := parseID(paymentID, domain.ErrInvalidID)
	if err != nil {
		return domain.RecordPaymentResult{}, err
	}

	now := s.clock.Now()
	var result domain.RecordPaymentResult
	var prevStatus invoicedomain.InvoiceStatus
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		invoice, err := s.invoiceRepo.FindByIDForUpdate(ctx, tx, invID)
		if err != nil {
			return err
		}
		if invoice == nil {
			return invoicedomain.ErrNotFound
		}
		prevStatus = invoice.Status

		payment, err := s.repo.FindByIDForUpdate(ctx, tx, payID)
		if err != nil {
			return err
		}
		if payment == nil {
			return domain.ErrNotFound
		}
		if payment.InvoiceID != nil && *payment.InvoiceID != invoice.ID {
			return domain.ErrPaymentAlreadyLinked
		}

		if payment.InvoiceID == nil {
			if err := tx.WithContext(ctx).Exec(
				`UPDATE payments SET invoice_id = ?, updated_at = ? WHERE id = ?`,
				invoice.ID, now, payment.ID,
			).Error; err != nil {
				return err
			}
			linked := invoice.ID
			payment.InvoiceID = &linked
			payment.UpdatedAt = now
		}

		// The sum runs in the same transaction as the link write so two
		// concurrent recordings cannot both observe a stale total.
		totalPaid, err := s.repo.SumLinked(ctx, tx, invoice.ID)
		if err != nil {
			return err
		}

		result = domain.RecordPaymentResult{
			Payment:        *payment,
			Invoice:        *invoice,
			TotalPaidCents: totalPaid,
			InvoiceStatus:  invoice.Status,
		}

		if totalPaid >= invoice.TotalCents &&
			invoicedomain.CanTransition(invoice.Status, invoicedomain.InvoiceStatusPaid) {
			if err := tx.WithContext(ctx).Exec(
				`UPDATE invoices SET status = ?, paid_at = ?, updated_at = ? WHERE id = ?`,
				invoicedomain.InvoiceStatusPaid, now, now, invoice.ID,
			).Error; err != nil {
				return err
			}
			result.StatusChanged = true
			result.InvoiceStatus = invoicedomain.InvoiceStatusPaid
			result.Invoice.Status = invoicedomain.InvoiceStatusPaid
			paidAt := now
			result.Invoice.PaidAt = &paidAt
		}

		return nil
	})
	if err != nil {
		return domain.RecordPaymentResult{}, err
	}

	s.emitAudit(ctx, "payment.recorded", result.Payment.ID,
		map[string]any{"invoice_status": string(prevStatus)},
		map[string]any{
			"invoice_id":       invID.String(),
			"total_paid_cents": result.TotalPaidCents,
			"invoice_status":   string(result.InvoiceStatus),
		})

	if result.StatusChanged {
		if s.metrics != nil {
			s.metrics.IncInvoicePaid()
		}
		s.sendReceipt(ctx, result.Invoice)
	}

	return result, nil
}

func (s *Service) UnlinkPayment(ctx context.Context, paymentID string) (domain.Payment, error) {
	payID, err := parseID(paymentID, domain.ErrInvalidID)
	if err != nil {
		return domain.Payment{}, err
	}

	now := s.clock.Now()
	var payment domain.Payment
	var invoiceStatus string
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		current, err := s.repo.FindByIDForUpdate(ctx, tx, payID)
		if err != nil {
			return err
		}
		if current == nil {
			return domain.ErrNotFound
		}
		payment = *current
		if current.InvoiceID == nil {
			return nil
		}

		invoice, err := s.invoiceRepo.FindByID(ctx, tx, *current.InvoiceID)
		if err != nil {
			return err
		}
		if invoice != nil {
			invoiceStatus = string(invoice.Status)
		}

		if err := tx.WithContext(ctx).Exec(
			`UPDATE payments SET invoice_id = NULL, updated_at = ? WHERE id = ?`,
			now, current.ID,
		).Error; err != nil {
			return err
		}
		payment.InvoiceID = nil
		payment.UpdatedAt = now
		return nil
	})
	if err != nil {
		return domain.Payment{}, err
	}

	// The invoice keeps its status even if it was PAID; the audit entry
	// records what state it was left in.
	s.emitAudit(ctx, "payment.unlinked", payment.ID, nil, map[string]any{
		"invoice_status_after": invoiceStatus,
	})

	return payment, nil
}

func (s *Service) DeletePayment(ctx context.Context, paymentID string) error {
	payID, err := parseID(paymentID, domain.ErrInvalidID)
	if err != nil {
		return err
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		current, err := s.repo.FindByIDForUpdate(ctx, tx, payID)
		if err != nil {
			return err
		}
		if current == nil {
			return domain.ErrNotFound
		}
		if current.InvoiceID != nil {
			return domain.ErrPaymentLinked
		}
		return s.repo.Delete(ctx, tx, current.ID)
	})
	if err != nil {
		return err
	}

	s.emitAudit(ctx, "payment.deleted", payID, nil, nil)
	return nil
}

func (s *Service) List(ctx context.Context, req domain.ListPaymentRequest) (domain.ListPaymentResponse, error) {
	filter := domain.ListPaymentFilter{
		Type: domain.PaymentType(strings.ToUpper(strings.TrimSpace(req.Type))),
	}
	if raw := strings.TrimSpace(req.CustomerID); raw != "" {
		id, err := snowflake.ParseString(raw)
		if err != nil {
			return domain.ListPaymentResponse{}, domain.ErrInvalidCustomer
		}
		filter.CustomerID = id
	}
	if raw := strings.TrimSpace(req.InvoiceID); raw != "" {
		id, err := snowflake.ParseString(raw)
		if err != nil {
			return domain.ListPaymentResponse{}, invoicedomain.ErrInvalidID
		}
		filter.InvoiceID = id
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
		return domain.ListPaymentResponse{}, err
	}

	pageInfo := pagination.BuildCursorPageInfo(items, pageSize, func(payment *domain.Payment) string {
		token, err := pagination.EncodeCursor(pagination.Cursor{
			ID:        payment.ID.String(),
			CreatedAt: payment.CreatedAt.Format(time.RFC3339),
		})
		if err != nil {
			return ""
		}
		return token
	})
	if pageInfo != nil && pageInfo.HasMore && len(items) > int(pageSize) {
		items = items[:pageSize]
	}

	payments := make([]domain.Payment, 0, len(items))
	for _, item := range items {
		if item == nil {
			continue
		}
		payments = append(payments, *item)
	}

	resp := domain.ListPaymentResponse{Payments: payments}
	if pageInfo != nil {
		resp.PageInfo = *pageInfo
	}
	return resp, nil
}

func (s *Service) CustomerBalance(ctx context.Context, customerID string) (domain.BalanceSummary, error) {
	id, err := parseID(customerID, domain.ErrInvalidCustomer)
	if err != nil {
		return domain.BalanceSummary{}, err
	}

	var summary struct {
		Balance int64
		Count   int64
	}
	err = s.db.WithContext(ctx).Raw(
		`SELECT COALESCE(SUM(amount_cents), 0) AS balance, COUNT(*) AS count
		 FROM payments WHERE customer_id = ?`,
		id,
	).Scan(&summary).Error
	if err != nil {
		return domain.BalanceSummary{}, err
	}

	return domain.BalanceSummary{
		CustomerID:   id.String(),
		BalanceCents: summary.Balance,
		PaymentCount: summary.Count,
	}, nil
}

func (s *Service) sendReceipt(ctx context.Context, invoice invoicedomain.Invoice) {
	customer, err := s.customerSvc.GetByID(ctx, invoice.CustomerID.String())
	if err != nil {
		s.log.Warn("receipt skipped", zap.String("invoice_id", invoice.ID.String()), zap.Error(err))
		return
	}
	if _, err := s.notifySvc.SendPaymentReceipt(ctx, invoice, customer); err != nil {
		s.log.Warn("receipt failed", zap.String("invoice_id", invoice.ID.String()), zap.Error(err))
	}
}

func (s *Service) emitAudit(ctx context.Context, action string, id snowflake.ID, before, after map[string]any) {
	if s.auditSvc == nil {
		return
	}
	err := s.auditSvc.Record(ctx, auditdomain.Entry{
		Action:     action,
		TargetType: "payment",
		TargetID:   id.String(),
		Before:     before,
		After:      after,
	})
	if err != nil {
		s.log.Warn("audit record failed", zap.String("action", action), zap.Error(err))
	}
}

func parseID(raw string, invalid error) (snowflake.ID, error) {
	id, err := snowflake.ParseString(strings.TrimSpace(raw))
	if err != nil || id == 0 {
		return 0, invalid
	}
	return id, nil
}
