package option

import (
	"time"

	"github.com/hashridge/hostbill/pkg/db/pagination"
	"gorm.io/gorm"
)

type paginationOption struct {
	page pagination.Pagination
}

func (o paginationOption) Apply(db *gorm.DB) *gorm.DB {
	if token := o.page.PageToken; token != "" {
		cursor, err := pagination.DecodeCursor(token)
		if err == nil && cursor != nil {
			createdAt, parseErr := time.Parse(time.RFC3339, cursor.CreatedAt)
			if parseErr == nil {
				db = db.Where("(created_at < ?) OR (created_at = ? AND id < ?)",
					createdAt, createdAt, cursor.ID)
			}
		}
	}

	size := o.page.PageSize
	if size <= 0 {
		size = 50
	}
	if size > 250 {
		size = 250
	}
	// One extra row so callers can detect another page.
	return db.Limit(int(size) + 1)
}

// ApplyPagination applies the keyset cursor and limit from a page request.
func ApplyPagination(page pagination.Pagination) QueryOption {
	return paginationOption{page: page}
}
