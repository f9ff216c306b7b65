package metering

import (
	meteringdomain "github.com/hostlify/hostlify/internal/metering/domain"
	"github.com/hostlify/hostlify/internal/metering/provider"
	"github.com/hostlify/hostlify/internal/metering/repository"
	"github.com/hostlify/hostlify/internal/metering/service"
	"go.uber.org/fx"
)

var Module = fx.Module("metering.service",
	fx.Provide(repository.Provide),
	fx.Provide(func() meteringdomain.TelemetryProvider { return provider.NewLocal() }),
	fx.Provide(service.NewService),
)
