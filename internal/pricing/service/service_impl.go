package service

import (
	"context"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	auditdomain "github.com/hashridge/hostbill/internal/audit/domain"
	"github.com/hashridge/hostbill/internal/clock"
	"github.com/hashridge/hostbill/internal/pricing/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB       *gorm.DB
	Log      *zap.Logger
	GenID    *snowflake.Node
	Clock    clock.Clock
	AuditSvc auditdomain.Service
}

type Service struct {
	db       *gorm.DB
	log      *zap.Logger
	genID    *snowflake.Node
	clock    clock.Clock
	auditSvc auditdomain.Service
}

func NewService(p Params) domain.Service {
	return &Service{
		db:       p.DB,
		log:      p.Log.Named("pricing.service"),
		genID:    p.GenID,
		clock:    p.Clock,
		auditSvc: p.AuditSvc,
	}
}

func (s *Service) ResolveUnitPrice(ctx context.Context, customerID string, atDate time.Time) (domain.ResolvedPrice, error) {
	id, err := parseCustomerID(customerID)
	if err != nil {
		return domain.ResolvedPrice{}, err
	}

	config, err := s.findConfigAt(ctx, s.db, id, atDate)
	if err != nil {
		return domain.ResolvedPrice{}, err
	}
	if config != nil {
		return domain.ResolvedPrice{
			UnitPriceCents: config.UnitPriceCents,
			Currency:       config.Currency,
			ConfigID:       int64(config.ID),
		}, nil
	}

	// No customer config covers atDate; fall back to the seeded default row.
	fallback, err := s.findConfigAt(ctx, s.db, domain.DefaultCustomerID, atDate)
	if err != nil {
		return domain.ResolvedPrice{}, err
	}
	if fallback == nil {
		return domain.ResolvedPrice{}, domain.ErrDefaultConfigMissing
	}
	return domain.ResolvedPrice{
		UnitPriceCents: fallback.UnitPriceCents,
		Currency:       fallback.Currency,
		ConfigID:       int64(fallback.ID),
		IsDefault:      true,
	}, nil
}

func (s *Service) CreateConfig(ctx context.Context, req domain.CreateConfigRequest) (domain.PricingConfig, error) {
	customerID, err := parseCustomerID(req.CustomerID)
	if err != nil {
		return domain.PricingConfig{}, err
	}
	if req.UnitPriceCents <= 0 {
		return domain.PricingConfig{}, domain.ErrInvalidUnitPrice
	}

	currency := strings.ToUpper(strings.TrimSpace(req.Currency))
	if currency == "" {
		currency = "USD"
	}

	effectiveFrom := req.EffectiveFrom.UTC()
	if effectiveFrom.IsZero() {
		effectiveFrom = s.clock.Now()
	}

	now := s.clock.Now()
	config := domain.PricingConfig{
		ID:             s.genID.Generate(),
		CustomerID:     customerID,
		UnitPriceCents: req.UnitPriceCents,
		Currency:       currency,
		EffectiveFrom:  effectiveFrom,
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	var closedID snowflake.ID
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		open, err := s.loadOpenConfigForUpdate(ctx, tx, customerID)
		if err != nil {
			return err
		}
		if open != nil {
			if !effectiveFrom.After(open.EffectiveFrom) {
				return domain.ErrInvalidEffectiveRange
			}
			if err := tx.WithContext(ctx).Exec(
				`UPDATE pricing_configs
				 SET effective_to = ?, updated_at = ?
				 WHERE id = ?`,
				effectiveFrom,
				now,
				open.ID,
			).Error; err != nil {
				return err
			}
			closedID = open.ID
		}

		return tx.WithContext(ctx).Exec(
			`INSERT INTO pricing_configs (id, customer_id, unit_price_cents, currency, effective_from, effective_to, created_at, updated_at)
			 VALUES (?, ?, ?, ?, ?, NULL, ?, ?)`,
			config.ID,
			config.CustomerID,
			config.UnitPriceCents,
			config.Currency,
			config.EffectiveFrom,
			config.CreatedAt,
			config.UpdatedAt,
		).Error
	})
	if err != nil {
		return domain.PricingConfig{}, err
	}

	metadata := map[string]any{
		"customer_id":      customerID.String(),
		"unit_price_cents": config.UnitPriceCents,
		"currency":         config.Currency,
		"effective_from":   config.EffectiveFrom.Format(time.RFC3339),
	}
	if closedID != 0 {
		metadata["closed_config_id"] = closedID.String()
	}
	if recordErr := s.auditSvc.Record(ctx, auditdomain.Entry{
		Action:     "pricing.config_created",
		TargetType: "pricing_config",
		TargetID:   config.ID.String(),
		Metadata:   metadata,
	}); recordErr != nil {
		s.log.Warn("audit record failed", zap.Error(recordErr))
	}

	return config, nil
}

func (s *Service) ListByCustomer(ctx context.Context, customerID string) ([]domain.PricingConfig, error) {
	id, err := parseCustomerID(customerID)
	if err != nil {
		return nil, err
	}

	var configs []domain.PricingConfig
	err = s.db.WithContext(ctx).Raw(
		`SELECT id, customer_id, unit_price_cents, currency, effective_from, effective_to, created_at, updated_at
		 FROM pricing_configs
		 WHERE customer_id = ?
		 ORDER BY effective_from DESC`,
		id,
	).Scan(&configs).Error
	if err != nil {
		return nil, err
	}
	return configs, nil
}

func (s *Service) findConfigAt(ctx context.Context, db *gorm.DB, customerID snowflake.ID, at time.Time) (*domain.PricingConfig, error) {
	var config domain.PricingConfig
	err := db.WithContext(ctx).Raw(
		`SELECT id, customer_id, unit_price_cents, currency, effective_from, effective_to, created_at, updated_at
		 FROM pricing_configs
		 WHERE customer_id = ?
		   AND effective_from <= ?
		   AND (effective_to IS NULL OR effective_to > ?)
		 ORDER BY effective_from DESC
		 LIMIT 1`,
		customerID,
		at.UTC(),
		at.UTC(),
	).Scan(&config).Error
	if err != nil {
		return nil, err
	}
	if config.ID == 0 {
		return nil, nil
	}
	return &config, nil
}

func (s *Service) loadOpenConfigForUpdate(ctx context.Context, tx *gorm.DB, customerID snowflake.ID) (*domain.PricingConfig, error) {
	var config domain.PricingConfig
	err := tx.WithContext(ctx).Raw(
		`SELECT id, customer_id, unit_price_cents, currency, effective_from, effective_to, created_at, updated_at
		 FROM pricing_configs
		 WHERE customer_id = ? AND effective_to IS NULL
		 FOR UPDATE`,
		customerID,
	).Scan(&config).Error
	if err != nil {
		return nil, err
	}
	if config.ID == 0 {
		return nil, nil
	}
	return &config, nil
}

func parseCustomerID(raw string) (snowflake.ID, error) {
	id, err := snowflake.ParseString(strings.TrimSpace(raw))
	if err != nil || id == 0 {
		return 0, domain.ErrInvalidCustomer
	}
	return id, nil
}
