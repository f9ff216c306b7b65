package statistics

import (
	"github.com/hostlify/hostlify/internal/statistics/repository"
	"github.com/hostlify/hostlify/internal/statistics/service"
	"go.uber.org/fx"
)

var Module = fx.Module("statistics.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.NewService),
)
