package service

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/hostlify/hostlify/internal/cache"
	"github.com/hostlify/hostlify/internal/clock"
	"github.com/hostlify/hostlify/internal/config"
	meteringdomain "github.com/hostlify/hostlify/internal/metering/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// latestCacheTTL bounds how long a read path may serve a cached snapshot.
// Keep it well under the sampling interval so the panel stays fresh.
const latestCacheTTL = 15 * time.Second

type Params struct {
	fx.In

	DB       *gorm.DB
	Log      *zap.Logger
	GenID    *snowflake.Node
	Clock    clock.Clock
	Policy   *config.PolicyHolder
	Repo     meteringdomain.Repository
	Provider meteringdomain.TelemetryProvider
}

type Service struct {
	db       *gorm.DB
	log      *zap.Logger
	genID    *snowflake.Node
	clock    clock.Clock
	policy   *config.PolicyHolder
	repo     meteringdomain.Repository
	provider meteringdomain.TelemetryProvider
	latest   cache.Cache[snowflake.ID, meteringdomain.UsageSnapshot]
}

func NewService(p Params) meteringdomain.Service {
	return &Service{
		db:       p.DB,
		log:      p.Log.Named("metering.service"),
		genID:    p.GenID,
		clock:    p.Clock,
		policy:   p.Policy,
		repo:     p.Repo,
		provider: p.Provider,
		latest:   cache.NewTTLCache[snowflake.ID, meteringdomain.UsageSnapshot](),
	}
}

func (s *Service) Sample(ctx context.Context, serviceID snowflake.ID) (*meteringdomain.UsageSnapshot, error) {
	telemetry, err := s.provider.Read(ctx, serviceID)
	if err != nil {
		s.log.Warn("telemetry read failed",
			zap.String("service_id", serviceID.String()),
			zap.Error(err),
		)
		return nil, err
	}

	now := s.clock.Now()
	sample := &meteringdomain.UsageSample{
		ID:             s.genID.Generate(),
		ServiceID:      serviceID,
		RAMUsage:       telemetry.RAMUsage,
		CPUUsage:       telemetry.CPUUsage,
		StorageUsage:   telemetry.StorageUsage,
		BandwidthUsage: telemetry.BandwidthUsage,
		SampledAt:      now,
	}
	if err := s.repo.Insert(ctx, s.db, sample); err != nil {
		return nil, err
	}

	snapshot := snapshotOf(sample, false)
	s.latest.Set(serviceID, snapshot, latestCacheTTL)
	return &snapshot, nil
}

func (s *Service) Latest(ctx context.Context, serviceID snowflake.ID) (meteringdomain.UsageSnapshot, error) {
	staleAfter := s.policy.Get().Autoscaling.StaleAfter
	now := s.clock.Now()

	if cached, ok := s.latest.Get(serviceID); ok {
		cached.IsStale = now.Sub(cached.SampledAt) > staleAfter
		return cached, nil
	}

	sample, err := s.repo.FindLatest(ctx, s.db, serviceID)
	if err != nil {
		return meteringdomain.UsageSnapshot{}, err
	}
	if sample == nil {
		// No reading yet. Callers treat stale-zero as "do not act".
		return meteringdomain.UsageSnapshot{ServiceID: serviceID, IsStale: true}, nil
	}

	snapshot := snapshotOf(sample, now.Sub(sample.SampledAt) > staleAfter)
	s.latest.Set(serviceID, snapshot, latestCacheTTL)
	return snapshot, nil
}

func snapshotOf(sample *meteringdomain.UsageSample, stale bool) meteringdomain.UsageSnapshot {
	return meteringdomain.UsageSnapshot{
		ServiceID:      sample.ServiceID,
		RAMUsage:       sample.RAMUsage,
		CPUUsage:       sample.CPUUsage,
		StorageUsage:   sample.StorageUsage,
		BandwidthUsage: sample.BandwidthUsage,
		SampledAt:      sample.SampledAt,
		IsStale:        stale,
	}
}
