// Package seed bootstraps the baseline rows a fresh deployment needs.
package seed

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	pricingdomain "github.com/hashridge/hostbill/internal/pricing/domain"
	"gorm.io/gorm"
)

// EnsureDefaultPricing seeds the system default pricing row (customer 0) so
// rate resolution never comes up empty on a fresh database. The insert rides
// the one-open-config unique index, so concurrent boots are a no-op rather
// than a race.
func EnsureDefaultPricing(db *gorm.DB, unitPriceCents int64, currency string) error {
	if db == nil {
		return errors.New("seed database handle is required")
	}
	if unitPriceCents <= 0 || currency == "" {
		return errors.New("seed default pricing requires a positive price and a currency")
	}

	node, err := snowflake.NewNode(1)
	if err != nil {
		return err
	}

	ctx := context.Background()
	now := time.Now().UTC()
	return db.WithContext(ctx).Exec(
		`INSERT INTO pricing_configs (id, customer_id, unit_price_cents, currency, effective_from, effective_to, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, NULL, ?, ?)
		 ON CONFLICT (customer_id) WHERE effective_to IS NULL DO NOTHING`,
		node.Generate(),
		pricingdomain.DefaultCustomerID,
		unitPriceCents,
		currency,
		now,
		now,
		now,
	).Error
}
