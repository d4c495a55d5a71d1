package payment

import (
	"github.com/hashridge/hostbill/internal/config"
	"github.com/hashridge/hostbill/internal/payment/adapters"
	"github.com/hashridge/hostbill/internal/payment/adapters/confirmo"
	"github.com/hashridge/hostbill/internal/payment/repository"
	"github.com/hashridge/hostbill/internal/payment/service"
	"github.com/hashridge/hostbill/internal/payment/webhook"
	"go.uber.org/fx"
)

var Module = fx.Module("payment.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.NewService),
	fx.Provide(newAdapterRegistry),
	fx.Provide(webhook.NewService),
)

func newAdapterRegistry(cfg config.Config) *adapters.Registry {
	return adapters.NewRegistry(
		confirmo.New(cfg.ConfirmoWebhookSecret),
	)
}
