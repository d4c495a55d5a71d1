package domain

import (
	"context"
	"errors"
	"time"
)

type CreateConfigRequest struct {
	CustomerID     string
	UnitPriceCents int64
	Currency       string
	EffectiveFrom  time.Time
}

// ResolvedPrice is the rate in effect for a customer at a point in time.
type ResolvedPrice struct {
	UnitPriceCents int64
	Currency       string
	ConfigID       int64
	IsDefault      bool
}

type Service interface {
	// ResolveUnitPrice returns the config covering atDate, falling back to
	// the seeded default row when the customer has none.
	ResolveUnitPrice(ctx context.Context, customerID string, atDate time.Time) (ResolvedPrice, error)
	// CreateConfig inserts a new config and closes the customer's open one
	// in the same transaction.
	CreateConfig(ctx context.Context, req CreateConfigRequest) (PricingConfig, error)
	ListByCustomer(ctx context.Context, customerID string) ([]PricingConfig, error)
}

var (
	ErrInvalidCustomer       = errors.New("invalid_customer")
	ErrInvalidUnitPrice      = errors.New("invalid_unit_price")
	ErrInvalidEffectiveRange = errors.New("invalid_effective_range")
	ErrDefaultConfigMissing  = errors.New("default_config_missing")
)
