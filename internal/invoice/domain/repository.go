package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/hashridge/hostbill/pkg/db/pagination"
	"gorm.io/gorm"
)

// ListInvoiceFilter narrows a listing. Now anchors the derived-overdue
// comparison so ISSUED and OVERDUE filters agree with EffectiveStatus.
type ListInvoiceFilter struct {
	CustomerID    snowflake.ID
	Status        InvoiceStatus
	InvoiceNumber string
	GeneratedFrom *time.Time
	GeneratedTo   *time.Time
	DueFrom       *time.Time
	DueTo         *time.Time
	Now           time.Time
}

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, invoice *Invoice) error
	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Invoice, error)
	FindByIDForUpdate(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Invoice, error)
	List(ctx context.Context, db *gorm.DB, filter ListInvoiceFilter, page pagination.Pagination) ([]*Invoice, error)
	// MaxDailySequence returns the highest sequence already allocated under
	// an YYYYMMDD invoice-number prefix, 0 when none exist.
	MaxDailySequence(ctx context.Context, db *gorm.DB, prefix string) (int, error)
}
