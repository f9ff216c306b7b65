package wallet

import (
	"github.com/hostlify/hostlify/internal/wallet/repository"
	"github.com/hostlify/hostlify/internal/wallet/service"
	"go.uber.org/fx"
)

var Module = fx.Module("wallet.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.NewService),
)
