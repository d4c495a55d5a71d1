// Package webhook ingests payment-gateway deliveries and reconciles settled
// events against their invoices.
package webhook

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	auditdomain "github.com/hashridge/hostbill/internal/audit/domain"
	"github.com/hashridge/hostbill/internal/clock"
	customerdomain "github.com/hashridge/hostbill/internal/customer/domain"
	invoicedomain "github.com/hashridge/hostbill/internal/invoice/domain"
	notificationdomain "github.com/hashridge/hostbill/internal/notification/domain"
	obsmetrics "github.com/hashridge/hostbill/internal/observability/metrics"
	"github.com/hashridge/hostbill/internal/payment/adapters"
	paymentdomain "github.com/hashridge/hostbill/internal/payment/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

var (
	ErrProviderNotFound = errors.New("provider_not_found")
	ErrUnknownInvoice   = errors.New("webhook_unknown_invoice")
)

// Ingestor accepts one raw gateway delivery.
type Ingestor interface {
	Ingest(ctx context.Context, provider string, headers http.Header, payload []byte) error
}

type Params struct {
	fx.In

	DB          *gorm.DB
	Log         *zap.Logger
	GenID       *snowflake.Node
	Clock       clock.Clock
	Adapters    *adapters.Registry
	PaymentRepo paymentdomain.Repository
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
	adapters    *adapters.Registry
	paymentRepo paymentdomain.Repository
	invoiceRepo invoicedomain.Repository
	auditSvc    auditdomain.Service
	customerSvc customerdomain.Service
	notifySvc   notificationdomain.Service
	metrics     *obsmetrics.BillingMetrics
}

func NewService(p Params) Ingestor {
	return &Service{
		db:          p.DB,
		log:         p.Log.Named("payment.webhook"),
		genID:       p.GenID,
		clock:       p.Clock,
		adapters:    p.Adapters,
		paymentRepo: p.PaymentRepo,
		invoiceRepo: p.InvoiceRepo,
		auditSvc:    p.AuditSvc,
		customerSvc: p.CustomerSvc,
		notifySvc:   p.NotifySvc,
		metrics:     p.Metrics,
	}
}

func (s *Service) Ingest(ctx context.Context, provider string, headers http.Header, payload []byte) error {
	adapter, ok := s.adapters.Get(provider)
	if !ok {
		return ErrProviderNotFound
	}
	if err := adapter.Verify(headers, payload); err != nil {
		return err
	}
	if !json.Valid(payload) {
		return adapters.ErrInvalidPayload
	}

	event, err := adapter.Parse(payload)
	if err != nil {
		return err
	}
	if s.metrics != nil {
		s.metrics.IncPaymentEvent(adapter.Provider(), string(event.EventType))
	}

	var rawPayload datatypes.JSONMap
	if err := json.Unmarshal(payload, &rawPayload); err != nil {
		rawPayload = datatypes.JSONMap{}
	}

	now := s.clock.Now()
	record := paymentdomain.PaymentEvent{
		ID:              s.genID.Generate(),
		Provider:        adapter.Provider(),
		ProviderEventID: event.ProviderEventID,
		EventType:       string(event.EventType),
		AmountCents:     event.AmountCents,
		Currency:        event.Currency,
		Payload:         rawPayload,
		CreatedAt:       now,
	}

	var paidInvoice *invoicedomain.Invoice
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		inserted := tx.WithContext(ctx).Exec(
			`INSERT INTO payment_events (id, provider, provider_event_id, invoice_id, payment_id, event_type, amount_cents, currency, payload, processed_at, created_at)
			 VALUES (?, ?, ?, NULL, NULL, ?, ?, ?, ?, NULL, ?)
			 ON CONFLICT (provider, provider_event_id) DO NOTHING`,
			record.ID,
			record.Provider,
			record.ProviderEventID,
			record.EventType,
			record.AmountCents,
			record.Currency,
			record.Payload,
			record.CreatedAt,
		)
		if inserted.Error != nil {
			return inserted.Error
		}
		// Redelivery of an event already ingested is a no-op.
		if inserted.RowsAffected == 0 {
			return nil
		}

		if event.EventType != adapters.EventSettled {
			return s.stampProcessed(ctx, tx, record.ID, nil, nil, now)
		}

		invoiceID, err := snowflake.ParseString(event.InvoiceID)
		if err != nil || invoiceID == 0 {
			return ErrUnknownInvoice
		}
		invoice, err := s.invoiceRepo.FindByIDForUpdate(ctx, tx, invoiceID)
		if err != nil {
			return err
		}
		if invoice == nil {
			return ErrUnknownInvoice
		}

		linkedID := invoice.ID
		payment := paymentdomain.Payment{
			ID:          s.genID.Generate(),
			CustomerID:  invoice.CustomerID,
			InvoiceID:   &linkedID,
			AmountCents: event.AmountCents,
			Type:        paymentdomain.PaymentTypePayment,
			Narration:   "confirmo " + event.ProviderEventID,
			PaidAt:      now,
			CreatedAt:   now,
			UpdatedAt:   now,
		}
		if err := s.paymentRepo.Insert(ctx, tx, &payment); err != nil {
			return err
		}

		totalPaid, err := s.paymentRepo.SumLinked(ctx, tx, invoice.ID)
		if err != nil {
			return err
		}
		if totalPaid >= invoice.TotalCents &&
			invoicedomain.CanTransition(invoice.Status, invoicedomain.InvoiceStatusPaid) {
			if err := tx.WithContext(ctx).Exec(
				`UPDATE invoices SET status = ?, paid_at = ?, updated_at = ? WHERE id = ?`,
				invoicedomain.InvoiceStatusPaid, now, now, invoice.ID,
			).Error; err != nil {
				return err
			}
			paid := *invoice
			paid.Status = invoicedomain.InvoiceStatusPaid
			paid.PaidAt = &now
			paidInvoice = &paid
		}

		return s.stampProcessed(ctx, tx, record.ID, &invoice.ID, &payment.ID, now)
	})
	if err != nil {
		if errors.Is(err, ErrUnknownInvoice) {
			s.log.Warn("webhook references unknown invoice",
				zap.String("provider", record.Provider),
				zap.String("provider_event_id", record.ProviderEventID),
				zap.String("reference", event.InvoiceID))
		}
		return err
	}

	s.emitAudit(ctx, record, event)

	if paidInvoice != nil {
		if s.metrics != nil {
			s.metrics.IncInvoicePaid()
		}
		s.sendReceipt(ctx, *paidInvoice)
	}

	return nil
}

func (s *Service) stampProcessed(ctx context.Context, tx *gorm.DB, eventID snowflake.ID, invoiceID, paymentID *snowflake.ID, now time.Time) error {
	return tx.WithContext(ctx).Exec(
		`UPDATE payment_events SET invoice_id = ?, payment_id = ?, processed_at = ? WHERE id = ?`,
		invoiceID, paymentID, now, eventID,
	).Error
}

func (s *Service) emitAudit(ctx context.Context, record paymentdomain.PaymentEvent, event adapters.GatewayEvent) {
	if s.auditSvc == nil {
		return
	}
	err := s.auditSvc.Record(ctx, auditdomain.Entry{
		Action:     "payment.webhook_" + strings.ToLower(string(event.EventType)),
		TargetType: "payment_event",
		TargetID:   record.ID.String(),
		Metadata: map[string]any{
			"provider":          record.Provider,
			"provider_event_id": record.ProviderEventID,
			"amount_cents":      record.AmountCents,
		},
	})
	if err != nil {
		s.log.Warn("audit record failed", zap.Error(err))
	}
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
