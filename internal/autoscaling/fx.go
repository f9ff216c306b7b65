package autoscaling

import (
	"github.com/hostlify/hostlify/internal/autoscaling/engine"
	"github.com/hostlify/hostlify/internal/autoscaling/repository"
	"go.uber.org/fx"
)

var Module = fx.Module("autoscaling.engine",
	fx.Provide(repository.Provide),
	fx.Provide(engine.NewEngine),
)
