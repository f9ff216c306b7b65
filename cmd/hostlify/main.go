package main

import (
	"github.com/bwmarrin/snowflake"
	"github.com/hostlify/hostlify/internal/auth"
	"github.com/hostlify/hostlify/internal/autoscaling"
	"github.com/hostlify/hostlify/internal/billing"
	"github.com/hostlify/hostlify/internal/clock"
	"github.com/hostlify/hostlify/internal/config"
	"github.com/hostlify/hostlify/internal/gateway"
	"github.com/hostlify/hostlify/internal/hosting"
	"github.com/hostlify/hostlify/internal/metering"
	"github.com/hostlify/hostlify/internal/migration"
	"github.com/hostlify/hostlify/internal/plan"
	"github.com/hostlify/hostlify/internal/promo"
	"github.com/hostlify/hostlify/internal/ratelimit"
	"github.com/hostlify/hostlify/internal/scheduler"
	"github.com/hostlify/hostlify/internal/server"
	"github.com/hostlify/hostlify/internal/statistics"
	"github.com/hostlify/hostlify/internal/user"
	"github.com/hostlify/hostlify/internal/wallet"
	"github.com/hostlify/hostlify/pkg/db"
	"github.com/hostlify/hostlify/pkg/log"
	"go.uber.org/fx"
)

func main() {
	app := fx.New(
		// Core infrastructure
		config.Module,
		log.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		clock.Module,
		migration.Module,
		ratelimit.Module,
		auth.Module,

		// Functional domains
		user.Module,
		wallet.Module,
		plan.Module,
		hosting.Module,
		metering.Module,
		autoscaling.Module,
		promo.Module,
		gateway.Module,
		billing.Module,
		statistics.Module,

		// Background jobs and HTTP API
		scheduler.Module,
		server.Module,
	)
	app.Run()
}

func RegisterSnowflake() *snowflake.Node {
	node, err := snowflake.NewNode(1)
	if err != nil {
		panic(err)
	}
	return node
}
