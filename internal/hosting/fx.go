package hosting

import (
	"github.com/hostlify/hostlify/internal/hosting/repository"
	"github.com/hostlify/hostlify/internal/hosting/service"
	"go.uber.org/fx"
)

var Module = fx.Module("hosting.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.NewService),
)
