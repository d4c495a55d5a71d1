package service

import (
	"bytes"
	"context"
	"fmt"
	"html/template"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/hashridge/hostbill/internal/clock"
	"github.com/hashridge/hostbill/internal/config"
	customerdomain "github.com/hashridge/hostbill/internal/customer/domain"
	invoicedomain "github.com/hashridge/hostbill/internal/invoice/domain"
	invoiceformat "github.com/hashridge/hostbill/internal/invoice/format"
	"github.com/hashridge/hostbill/internal/notification/domain"
	"github.com/hashridge/hostbill/internal/providers/email"
	"github.com/hashridge/hostbill/internal/providers/pdf"
	"github.com/hashridge/hostbill/pkg/db/pagination"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var issuedBodyTmpl = template.Must(template.New("invoice_issued").Parse(`
<p>Hello {{.Name}},</p>
<p>Your hosting invoice <b>{{.Number}}</b> for {{.Total}} has been issued.
Payment is due by {{.DueDate}}. The invoice is attached as a PDF.</p>
<p>{{.Provider}}</p>`))

var reminderBodyTmpl = template.Must(template.New("payment_reminder").Parse(`
<p>Hello {{.Name}},</p>
<p>This is a reminder that invoice <b>{{.Number}}</b> for {{.Total}} was due
on {{.DueDate}} and remains unpaid. Please arrange payment at your earliest
convenience.</p>
<p>{{.Provider}}</p>`))

var receiptBodyTmpl = template.Must(template.New("payment_receipt").Parse(`
<p>Hello {{.Name}},</p>
<p>We have received payment in full for invoice <b>{{.Number}}</b>
({{.Total}}). Thank you.</p>
<p>{{.Provider}}</p>`))

type Params struct {
	fx.In

	DB    *gorm.DB
	Log   *zap.Logger
	GenID *snowflake.Node
	Clock clock.Clock
	Cfg   config.Config
	Email email.Provider
	PDF   pdf.Provider
}

type Service struct {
	db    *gorm.DB
	log   *zap.Logger
	genID *snowflake.Node
	clock clock.Clock
	cfg   config.Config
	email email.Provider
	pdf   pdf.Provider
}

func NewService(p Params) domain.Service {
	return &Service{
		db:    p.DB,
		log:   p.Log.Named("notification.service"),
		genID: p.GenID,
		clock: p.Clock,
		cfg:   p.Cfg,
		email: p.Email,
		pdf:   p.PDF,
	}
}

func (s *Service) SendInvoiceIssued(ctx context.Context, invoice invoicedomain.Invoice, customer customerdomain.Customer) (domain.InvoiceNotification, error) {
	msg, err := s.buildMessage(issuedBodyTmpl, "Invoice %s from %s", invoice, customer)
	if err != nil {
		return s.record(ctx, invoice.ID, domain.NotificationTypeInvoiceIssued, customer.Email, err)
	}

	// The PDF is mandatory for the issue email. No document, no send.
	doc, err := s.pdf.GenerateInvoice(ctx, invoiceformat.PDFData(invoice, customer, s.cfg.AppName, s.cfg.SMTPFrom))
	if err != nil {
		return s.record(ctx, invoice.ID, domain.NotificationTypeInvoiceIssued, customer.Email,
			fmt.Errorf("render pdf: %w", err))
	}
	msg.Attachments = []email.Attachment{{
		Filename:    "invoice-" + invoice.InvoiceNumber + ".pdf",
		ContentType: "application/pdf",
		Content:     doc,
	}}

	return s.record(ctx, invoice.ID, domain.NotificationTypeInvoiceIssued, customer.Email,
		s.email.Send(ctx, msg))
}

func (s *Service) SendPaymentReminder(ctx context.Context, invoice invoicedomain.Invoice, customer customerdomain.Customer) (domain.InvoiceNotification, error) {
	msg, err := s.buildMessage(reminderBodyTmpl, "Payment reminder for invoice %s from %s", invoice, customer)
	if err == nil {
		err = s.email.Send(ctx, msg)
	}
	return s.record(ctx, invoice.ID, domain.NotificationTypePaymentReminder, customer.Email, err)
}

func (s *Service) SendPaymentReceipt(ctx context.Context, invoice invoicedomain.Invoice, customer customerdomain.Customer) (domain.InvoiceNotification, error) {
	msg, err := s.buildMessage(receiptBodyTmpl, "Payment received for invoice %s from %s", invoice, customer)
	if err == nil {
		err = s.email.Send(ctx, msg)
	}
	return s.record(ctx, invoice.ID, domain.NotificationTypePaymentReceipt, customer.Email, err)
}

func (s *Service) List(ctx context.Context, req domain.ListNotificationRequest) (domain.ListNotificationResponse, error) {
	stmt := s.db.WithContext(ctx).Model(&domain.InvoiceNotification{})
	if raw := strings.TrimSpace(req.InvoiceID); raw != "" {
		invoiceID, err := snowflake.ParseString(raw)
		if err != nil {
			return domain.ListNotificationResponse{}, invoicedomain.ErrInvalidID
		}
		stmt = stmt.Where("invoice_id = ?", invoiceID)
	}
	if req.Type != "" {
		stmt = stmt.Where("type = ?", strings.TrimSpace(req.Type))
	}
	if req.Status != "" {
		stmt = stmt.Where("status = ?", strings.ToUpper(strings.TrimSpace(req.Status)))
	}

	pageSize := req.PageSize
	if pageSize <= 0 {
		pageSize = 50
	}

	var items []*domain.InvoiceNotification
	err := stmt.
		Order("created_at desc, id desc").
		Limit(int(pageSize) + 1).
		Find(&items).Error
	if err != nil {
		return domain.ListNotificationResponse{}, err
	}

	pageInfo := pagination.BuildCursorPageInfo(items, pageSize, func(n *domain.InvoiceNotification) string {
		token, err := pagination.EncodeCursor(pagination.Cursor{
			ID:        n.ID.String(),
			CreatedAt: n.CreatedAt.Format(time.RFC3339),
		})
		if err != nil {
			return ""
		}
		return token
	})
	if pageInfo != nil && pageInfo.HasMore && len(items) > int(pageSize) {
		items = items[:pageSize]
	}

	notifications := make([]domain.InvoiceNotification, 0, len(items))
	for _, item := range items {
		if item == nil {
			continue
		}
		notifications = append(notifications, *item)
	}

	resp := domain.ListNotificationResponse{Notifications: notifications}
	if pageInfo != nil {
		resp.PageInfo = *pageInfo
	}
	return resp, nil
}

type bodyData struct {
	Name     string
	Number   string
	Total    string
	DueDate  string
	Provider string
}

func (s *Service) buildMessage(tmpl *template.Template, subjectFormat string, invoice invoicedomain.Invoice, customer customerdomain.Customer) (email.Message, error) {
	recipient := strings.TrimSpace(customer.Email)
	if recipient == "" {
		return email.Message{}, domain.ErrMissingRecipient
	}

	var body bytes.Buffer
	err := tmpl.Execute(&body, bodyData{
		Name:     customer.Name,
		Number:   invoice.InvoiceNumber,
		Total:    invoiceformat.Amount(invoice.TotalCents, invoice.Currency),
		DueDate:  invoiceformat.Date(invoice.DueAt),
		Provider: s.cfg.AppName,
	})
	if err != nil {
		return email.Message{}, err
	}

	return email.Message{
		To:       recipient,
		CC:       s.cfg.BillingCC,
		Subject:  fmt.Sprintf(subjectFormat, invoice.InvoiceNumber, s.cfg.AppName),
		HTMLBody: body.String(),
	}, nil
}

// record appends the attempt row and passes the send error through so the
// caller decides how hard to fail.
func (s *Service) record(ctx context.Context, invoiceID snowflake.ID, notifType domain.NotificationType, recipient string, sendErr error) (domain.InvoiceNotification, error) {
	now := s.clock.Now()

	var prior int64
	if err := s.db.WithContext(ctx).Model(&domain.InvoiceNotification{}).
		Where("invoice_id = ? AND type = ?", invoiceID, notifType).
		Count(&prior).Error; err != nil {
		s.log.Warn("notification attempt count failed", zap.Error(err))
	}

	notification := domain.InvoiceNotification{
		ID:            s.genID.Generate(),
		InvoiceID:     invoiceID,
		Type:          notifType,
		Recipient:     recipient,
		CC:            strings.Join(s.cfg.BillingCC, ","),
		Status:        domain.NotificationStatusSent,
		AttemptCount:  int(prior) + 1,
		LastAttemptAt: now,
		CreatedAt:     now,
	}
	if sendErr != nil {
		notification.Status = domain.NotificationStatusFailed
		msg := sendErr.Error()
		notification.Error = &msg
	}

	if err := s.db.WithContext(ctx).Create(&notification).Error; err != nil {
		// Bookkeeping must not mask the send outcome.
		s.log.Warn("notification record failed", zap.Error(err))
	}

	if sendErr != nil {
		return notification, fmt.Errorf("%w: %s", domain.ErrSendFailed, sendErr.Error())
	}
	return notification, nil
}
