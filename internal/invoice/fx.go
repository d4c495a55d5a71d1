package invoice

import (
	"github.com/hashridge/hostbill/internal/invoice/repository"
	"github.com/hashridge/hostbill/internal/invoice/service"
	"go.uber.org/fx"
)

var Module = fx.Module("invoice.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.NewService),
)
