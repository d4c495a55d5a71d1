package pool

import (
	"github.com/hashridge/hostbill/internal/config"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("pool.client",
	fx.Provide(NewFromConfig),
)

func NewFromConfig(cfg config.Config, log *zap.Logger) Client {
	return NewLuxorClient(cfg.PoolAPIBaseURL, cfg.PoolAPIKey, log)
}
