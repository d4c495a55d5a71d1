package repository

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"github.com/hashridge/hostbill/internal/invoice/domain"
	"github.com/hashridge/hostbill/pkg/db/option"
	"github.com/hashridge/hostbill/pkg/db/pagination"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

const invoiceColumns = `id, customer_id, invoice_number, miner_count, unit_price_cents, total_cents, currency,
	 status, generated_at, issued_at, due_at, paid_at, notes, metadata, created_at, updated_at`

func (r *repo) Insert(ctx context.Context, db *gorm.DB, invoice *domain.Invoice) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO invoices (id, customer_id, invoice_number, miner_count, unit_price_cents, total_cents, currency,
		 status, generated_at, issued_at, due_at, paid_at, notes, metadata, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		invoice.ID,
		invoice.CustomerID,
		invoice.InvoiceNumber,
		invoice.MinerCount,
		invoice.UnitPriceCents,
		invoice.TotalCents,
		invoice.Currency,
		invoice.Status,
		invoice.GeneratedAt,
		invoice.IssuedAt,
		invoice.DueAt,
		invoice.PaidAt,
		invoice.Notes,
		invoice.Metadata,
		invoice.CreatedAt,
		invoice.UpdatedAt,
	).Error
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.Invoice, error) {
	return r.findByID(ctx, db, id, "")
}

func (r *repo) FindByIDForUpdate(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.Invoice, error) {
	return r.findByID(ctx, db, id, " FOR UPDATE")
}

func (r *repo) findByID(ctx context.Context, db *gorm.DB, id snowflake.ID, suffix string) (*domain.Invoice, error) {
	var invoice domain.Invoice
	err := db.WithContext(ctx).Raw(
		`SELECT `+invoiceColumns+` FROM invoices WHERE id = ?`+suffix,
		id,
	).Scan(&invoice).Error
	if err != nil {
		return nil, err
	}
	if invoice.ID == 0 {
		return nil, nil
	}
	return &invoice, nil
}

func (r *repo) List(ctx context.Context, db *gorm.DB, filter domain.ListInvoiceFilter, page pagination.Pagination) ([]*domain.Invoice, error) {
	var invoices []*domain.Invoice
	stmt := db.WithContext(ctx).Model(&domain.Invoice{})
	if filter.CustomerID != 0 {
		stmt = stmt.Where("customer_id = ?", filter.CustomerID)
	}
	if filter.InvoiceNumber != "" {
		stmt = stmt.Where("invoice_number = ?", filter.InvoiceNumber)
	}
	switch filter.Status {
	case "":
	case domain.InvoiceStatusOverdue:
		// Include ISSUED invoices past due that the sweep has not
		// materialized yet.
		stmt = stmt.Where("(status = ? OR (status = ? AND due_at < ?))",
			domain.InvoiceStatusOverdue, domain.InvoiceStatusIssued, filter.Now)
	case domain.InvoiceStatusIssued:
		stmt = stmt.Where("status = ? AND due_at >= ?", domain.InvoiceStatusIssued, filter.Now)
	default:
		stmt = stmt.Where("status = ?", filter.Status)
	}
	if filter.GeneratedFrom != nil {
		stmt = stmt.Where("generated_at >= ?", *filter.GeneratedFrom)
	}
	if filter.GeneratedTo != nil {
		stmt = stmt.Where("generated_at <= ?", *filter.GeneratedTo)
	}
	if filter.DueFrom != nil {
		stmt = stmt.Where("due_at >= ?", *filter.DueFrom)
	}
	if filter.DueTo != nil {
		stmt = stmt.Where("due_at <= ?", *filter.DueTo)
	}
	stmt = option.ApplyPagination(page).Apply(stmt)
	err := stmt.
		Order("created_at desc, id desc").
		Find(&invoices).Error
	if err != nil {
		return nil, err
	}
	return invoices, nil
}

func (r *repo) MaxDailySequence(ctx context.Context, db *gorm.DB, prefix string) (int, error) {
	var max int
	err := db.WithContext(ctx).Raw(
		`SELECT COALESCE(MAX(CAST(SUBSTR(invoice_number, 9, 3) AS INTEGER)), 0)
		 FROM invoices WHERE invoice_number LIKE ?`,
		prefix+"%",
	).Scan(&max).Error
	if err != nil {
		return 0, err
	}
	return max, nil
}
