// Package seed inserts the default plan catalog on first boot.
package seed

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"github.com/hostlify/hostlify/internal/clock"
	plandomain "github.com/hostlify/hostlify/internal/plan/domain"
	"github.com/hostlify/hostlify/pkg/db"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB       *gorm.DB
	Log      *zap.Logger
	GenID    *snowflake.Node
	Clock    clock.Clock
	PlanRepo plandomain.Repository
}

type Seeder struct {
	db    *gorm.DB
	log   *zap.Logger
	genID *snowflake.Node
	clock clock.Clock
	plans plandomain.Repository
}

func NewSeeder(p Params) *Seeder {
	return &Seeder{
		db:    p.DB,
		log:   p.Log.Named("seed"),
		genID: p.GenID,
		clock: p.Clock,
		plans: p.PlanRepo,
	}
}

// Run inserts any missing default plan. Existing plans, including edited
// ones, are left alone.
func (s *Seeder) Run(ctx context.Context) error {
	now := s.clock.Now()
	for _, plan := range defaultPlans() {
		existing, err := s.plans.FindByCode(ctx, s.db, plan.Code)
		if err != nil {
			return err
		}
		if existing != nil {
			continue
		}
		plan.ID = s.genID.Generate()
		plan.CreatedAt = now
		if err := s.plans.Insert(ctx, s.db, &plan); err != nil {
			if db.IsDuplicateKeyErr(err) {
				continue
			}
			return err
		}
		s.log.Info("seeded plan", zap.String("code", plan.Code))
	}
	return nil
}

func defaultPlans() []plandomain.HostingPlan {
	return []plandomain.HostingPlan{
		{
			Code: "starter", Name: "Starter",
			RAM: 512, CPU: 25, Storage: 5_120, Bandwidth: 51_200,
			MaxRAM: 1024, MaxCPU: 50,
			PriceMonthly: 1_490, PriceYearly: 14_900, Active: true,
		},
		{
			Code: "standard", Name: "Standard",
			RAM: 1024, CPU: 50, Storage: 10_240, Bandwidth: 102_400,
			MaxRAM: 2048, MaxCPU: 100,
			PriceMonthly: 2_990, PriceYearly: 29_900, Active: true,
		},
		{
			Code: "business", Name: "Business",
			RAM: 2048, CPU: 100, Storage: 20_480, Bandwidth: 204_800,
			MaxRAM: 4096, MaxCPU: 200,
			PriceMonthly: 5_990, PriceYearly: 59_900, Active: true,
		},
	}
}
