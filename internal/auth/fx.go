package auth

import (
	"github.com/hashridge/hostbill/internal/clock"
	"github.com/hashridge/hostbill/internal/config"
	"go.uber.org/fx"
)

var Module = fx.Module("auth",
	fx.Provide(NewFromConfig),
)

func NewFromConfig(cfg config.Config, clk clock.Clock) Verifier {
	return NewHMACVerifier(cfg.AuthTokenSecret, clk)
}
