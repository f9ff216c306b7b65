package promo

import (
	"github.com/hostlify/hostlify/internal/promo/repository"
	"github.com/hostlify/hostlify/internal/promo/service"
	"go.uber.org/fx"
)

var Module = fx.Module("promo.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.NewService),
)
