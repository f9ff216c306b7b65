package user

import (
	"github.com/hostlify/hostlify/internal/user/repository"
	"github.com/hostlify/hostlify/internal/user/service"
	"go.uber.org/fx"
)

var Module = fx.Module("user.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.NewService),
)
