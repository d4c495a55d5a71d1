package migration

import (
	"github.com/hashridge/hostbill/internal/config"
	"github.com/hashridge/hostbill/internal/seed"
	"go.uber.org/fx"
	"gorm.io/gorm"
)

var Module = fx.Module("migrations",
	fx.Invoke(func(conn *gorm.DB, cfg config.Config) error {
		sqlDB, err := conn.DB()
		if err != nil {
			return err
		}

		if err := RunMigrations(sqlDB); err != nil {
			return err
		}

		return seed.EnsureDefaultPricing(conn, cfg.DefaultUnitPriceCents, cfg.DefaultCurrency)
	}),
)
