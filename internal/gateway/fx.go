package gateway

import (
	"github.com/hostlify/hostlify/internal/gateway/adapters"
	"github.com/hostlify/hostlify/internal/gateway/adapters/p24"
	"github.com/hostlify/hostlify/internal/gateway/adapters/paynow"
	"github.com/hostlify/hostlify/internal/gateway/adapters/stripe"
	"github.com/hostlify/hostlify/internal/gateway/repository"
	"github.com/hostlify/hostlify/internal/gateway/service"
	"go.uber.org/fx"
)

var Module = fx.Module("gateway.service",
	fx.Provide(func() *adapters.Registry {
		return adapters.NewRegistry(
			stripe.NewFactory(),
			p24.NewFactory(),
			paynow.NewFactory(),
		)
	}),
	fx.Provide(repository.Provide),
	fx.Provide(service.NewService),
)
