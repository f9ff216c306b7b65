package billing

import (
	"github.com/hostlify/hostlify/internal/billing/service"
	"go.uber.org/fx"
)

var Module = fx.Module("billing.service",
	fx.Provide(service.NewSettler),
	fx.Provide(service.NewService),
)
