package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"github.com/hashridge/hostbill/pkg/db/pagination"
	"gorm.io/gorm"
)

type ListPaymentFilter struct {
	CustomerID snowflake.ID
	InvoiceID  snowflake.ID
	Type       PaymentType
}

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, payment *Payment) error
	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Payment, error)
	FindByIDForUpdate(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Payment, error)
	List(ctx context.Context, db *gorm.DB, filter ListPaymentFilter, page pagination.Pagination) ([]*Payment, error)
	// SumLinked totals the signed amounts linked to an invoice. Callers run
	// it inside the reconciliation transaction.
	SumLinked(ctx context.Context, db *gorm.DB, invoiceID snowflake.ID) (int64, error)
	Delete(ctx context.Context, db *gorm.DB, id snowflake.ID) error
}
