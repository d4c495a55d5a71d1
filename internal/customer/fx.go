package customer

import (
	"github.com/hashridge/hostbill/internal/customer/repository"
	"github.com/hashridge/hostbill/internal/customer/service"
	"go.uber.org/fx"
)

var Module = fx.Module("customer.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.New),
)
