package migration

import (
	"context"

	autoscalingdomain "github.com/hostlify/hostlify/internal/autoscaling/domain"
	"github.com/hostlify/hostlify/internal/config"
	gatewaydomain "github.com/hostlify/hostlify/internal/gateway/domain"
	hostingdomain "github.com/hostlify/hostlify/internal/hosting/domain"
	meteringdomain "github.com/hostlify/hostlify/internal/metering/domain"
	plandomain "github.com/hostlify/hostlify/internal/plan/domain"
	promodomain "github.com/hostlify/hostlify/internal/promo/domain"
	"github.com/hostlify/hostlify/internal/seed"
	userdomain "github.com/hostlify/hostlify/internal/user/domain"
	walletdomain "github.com/hostlify/hostlify/internal/wallet/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Module applies the schema and seeds reference data before anything else
// touches the database.
var Module = fx.Module("migration",
	fx.Provide(seed.NewSeeder),
	fx.Invoke(Prepare),
)

// Prepare brings the schema up to date. Postgres goes through the
// versioned migrations; other dialects fall back to AutoMigrate, which
// covers local sqlite and mysql development setups.
func Prepare(lc fx.Lifecycle, cfg config.Config, gdb *gorm.DB, log *zap.Logger, seeder *seed.Seeder) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			if cfg.DBType == "postgres" {
				sqlDB, err := gdb.DB()
				if err != nil {
					return err
				}
				if err := RunMigrations(sqlDB); err != nil {
					return err
				}
			} else {
				if err := gdb.WithContext(ctx).AutoMigrate(
					&userdomain.User{},
					&walletdomain.Wallet{}, &walletdomain.Transaction{},
					&plandomain.HostingPlan{},
					&hostingdomain.HostingService{}, &hostingdomain.HostingAccount{},
					&autoscalingdomain.ScalingLog{},
					&meteringdomain.UsageSample{},
					&promodomain.PromoCode{}, &promodomain.Redemption{},
					&gatewaydomain.PaymentSession{},
				); err != nil {
					return err
				}
			}
			log.Info("database schema ready")
			return seeder.Run(ctx)
		},
	})
}
