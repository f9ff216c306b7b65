// Package scheduler drives the periodic jobs: usage sampling, autoscaling
// ticks, renewals, expiry, payment confirmation and housekeeping.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	autoscalingdomain "github.com/hostlify/hostlify/internal/autoscaling/domain"
	billingdomain "github.com/hostlify/hostlify/internal/billing/domain"
	"github.com/hostlify/hostlify/internal/clock"
	gatewaydomain "github.com/hostlify/hostlify/internal/gateway/domain"
	hostingdomain "github.com/hostlify/hostlify/internal/hosting/domain"
	meteringdomain "github.com/hostlify/hostlify/internal/metering/domain"
	obsmetrics "github.com/hostlify/hostlify/internal/observability/metrics"
	"github.com/hostlify/hostlify/internal/ratelimit"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var ErrInvalidConfig = errors.New("scheduler dependencies are incomplete")

type Params struct {
	fx.In

	DB           *gorm.DB
	Log          *zap.Logger
	Clock        clock.Clock
	Config       Config `optional:"true"`
	HostingRepo  hostingdomain.Repository
	MeteringRepo meteringdomain.Repository
	Meter        meteringdomain.Service
	Engine       autoscalingdomain.Engine
	Billing      billingdomain.Service
	Gateway      gatewaydomain.Service
	Limiter      *ratelimit.APILimiter `optional:"true"`
}

type Scheduler struct {
	db           *gorm.DB
	log          *zap.Logger
	cfg          Config
	clock        clock.Clock
	hostingRepo  hostingdomain.Repository
	meteringRepo meteringdomain.Repository
	meter        meteringdomain.Service
	engine       autoscalingdomain.Engine
	billing      billingdomain.Service
	gateway      gatewaydomain.Service
	limiter      *ratelimit.APILimiter
}

func New(p Params) (*Scheduler, error) {
	if p.DB == nil || p.Log == nil || p.Clock == nil || p.HostingRepo == nil ||
		p.MeteringRepo == nil || p.Meter == nil || p.Engine == nil ||
		p.Billing == nil || p.Gateway == nil {
		return nil, ErrInvalidConfig
	}
	return &Scheduler{
		db:           p.DB,
		log:          p.Log.Named("scheduler"),
		cfg:          p.Config.withDefaults(),
		clock:        p.Clock,
		hostingRepo:  p.HostingRepo,
		meteringRepo: p.MeteringRepo,
		meter:        p.Meter,
		engine:       p.Engine,
		billing:      p.Billing,
		gateway:      p.Gateway,
		limiter:      p.Limiter,
	}, nil
}

func (s *Scheduler) runJob(parent context.Context, name string, fn func(ctx context.Context) (int, error)) error {
	if !s.isJobEnabled(name) {
		return nil
	}

	// Skip the run when another replica holds the job; the next tick
	// retries.
	token, acquired, err := s.limiter.TryJobLock(parent, name, s.cfg.JobTimeout)
	if err != nil {
		s.log.Warn("job lock unavailable", zap.String("job", name), zap.Error(err))
	} else if !acquired {
		return nil
	}
	defer func() {
		_ = s.limiter.ReleaseJobLock(parent, name, token)
	}()

	start := s.clock.Now()
	ctx, cancel := context.WithTimeout(parent, s.cfg.JobTimeout)
	defer cancel()

	schedMetrics := obsmetrics.Scheduler()
	schedMetrics.IncJobRun(name)

	processed, err := fn(ctx)
	schedMetrics.ObserveJobDuration(name, time.Since(start))
	schedMetrics.AddBatchProcessed(name, processed)
	if err == nil {
		if processed > 0 {
			s.log.Info("job finished", zap.String("job", name), zap.Int("processed", processed))
		}
		return nil
	}

	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		schedMetrics.IncJobTimeout(name)
		s.log.Warn("job timed out",
			zap.String("job", name),
			zap.Duration("timeout", s.cfg.JobTimeout),
			zap.Error(err),
		)
		return nil
	}

	schedMetrics.IncJobError(name)
	return fmt.Errorf("%s: %w", name, err)
}

// RunOnce executes every enabled job once, in dependency order: usage is
// sampled before the engine evaluates it.
func (s *Scheduler) RunOnce(parent context.Context) error {
	var err error
	err = errors.Join(err, s.runJob(parent, "sample_usage", s.SampleUsageJob))
	err = errors.Join(err, s.runJob(parent, "evaluate_autoscaling", s.EvaluateAutoscalingJob))
	err = errors.Join(err, s.runJob(parent, "reconcile_scaling", s.ReconcileScalingJob))
	err = errors.Join(err, s.runJob(parent, "renew_due_services", s.RenewDueServicesJob))
	err = errors.Join(err, s.runJob(parent, "expire_services", s.ExpireServicesJob))
	err = errors.Join(err, s.runJob(parent, "confirm_payments", s.ConfirmPaymentsJob))
	err = errors.Join(err, s.runJob(parent, "trim_usage_samples", s.TrimUsageSamplesJob))
	return err
}

func (s *Scheduler) RunForever(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.RunInterval)
	defer ticker.Stop()
	nextRun := s.clock.Now().Add(s.cfg.RunInterval)
	schedMetrics := obsmetrics.Scheduler()

	for {
		if lag := time.Since(nextRun); lag > 0 {
			schedMetrics.ObserveRunLoopLag(lag)
		}
		if err := s.RunOnce(ctx); err != nil {
			s.log.Warn("scheduler run failed", zap.Error(err))
		}
		nextRun = nextRun.Add(s.cfg.RunInterval)

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (s *Scheduler) isJobEnabled(name string) bool {
	if len(s.cfg.EnabledJobs) == 0 {
		return true
	}
	for _, enabled := range s.cfg.EnabledJobs {
		if strings.EqualFold(enabled, name) {
			return true
		}
	}
	return false
}

func (s *Scheduler) SampleUsageJob(ctx context.Context) (int, error) {
	ids, err := s.hostingRepo.ListServiceIDsByStatus(ctx, s.db, hostingdomain.StatusActive, s.cfg.BatchSize)
	if err != nil {
		return 0, err
	}
	var jobErr error
	sampled := 0
	for _, id := range ids {
		if ctx.Err() != nil {
			return sampled, ctx.Err()
		}
		if _, err := s.meter.Sample(ctx, id); err != nil {
			jobErr = errors.Join(jobErr, err)
			continue
		}
		sampled++
	}
	return sampled, jobErr
}

func (s *Scheduler) EvaluateAutoscalingJob(ctx context.Context) (int, error) {
	ids, err := s.hostingRepo.ListServiceIDsByStatus(ctx, s.db, hostingdomain.StatusActive, s.cfg.BatchSize)
	if err != nil {
		return 0, err
	}
	var jobErr error
	evaluated := 0
	for _, id := range ids {
		if ctx.Err() != nil {
			return evaluated, ctx.Err()
		}
		if _, err := s.engine.Evaluate(ctx, id); err != nil {
			// A manual evaluation may hold the per-service slot.
			if errors.Is(err, autoscalingdomain.ErrEvaluationInFlight) {
				continue
			}
			jobErr = errors.Join(jobErr, err)
			continue
		}
		evaluated++
	}
	return evaluated, jobErr
}

func (s *Scheduler) ReconcileScalingJob(ctx context.Context) (int, error) {
	return s.engine.Reconcile(ctx)
}

func (s *Scheduler) RenewDueServicesJob(ctx context.Context) (int, error) {
	return s.billing.RenewDueServices(ctx, s.cfg.BatchSize)
}

func (s *Scheduler) ExpireServicesJob(ctx context.Context) (int, error) {
	return s.billing.ExpireServices(ctx, s.cfg.BatchSize)
}

func (s *Scheduler) ConfirmPaymentsJob(ctx context.Context) (int, error) {
	sessions, err := s.gateway.ListPending(ctx, s.cfg.BatchSize)
	if err != nil {
		return 0, err
	}
	var jobErr error
	confirmed := 0
	for _, session := range sessions {
		if ctx.Err() != nil {
			return confirmed, ctx.Err()
		}
		if err := s.gateway.Confirm(ctx, session.ID); err != nil {
			// Still-unsettled checkouts are expected here.
			if errors.Is(err, gatewaydomain.ErrPaymentNotSettled) ||
				errors.Is(err, gatewaydomain.ErrSessionNotPending) {
				continue
			}
			jobErr = errors.Join(jobErr, err)
			continue
		}
		confirmed++
	}
	return confirmed, jobErr
}

func (s *Scheduler) TrimUsageSamplesJob(ctx context.Context) (int, error) {
	cutoff := s.clock.Now().Add(-s.cfg.SampleRetention)
	deleted, err := s.meteringRepo.DeleteOlderThan(ctx, s.db, cutoff)
	return int(deleted), err
}
