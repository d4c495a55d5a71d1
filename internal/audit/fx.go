package audit

import (
	"github.com/hashridge/hostbill/internal/audit/repository"
	"github.com/hashridge/hostbill/internal/audit/service"
	"go.uber.org/fx"
)

var Module = fx.Module("audit.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.NewService),
)
