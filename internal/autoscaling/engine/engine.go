// Package engine implements the autoscaling decision loop: watermark
// checks against the latest usage snapshot, bounded step proposals, wallet
// settlement and the scaling audit log.
package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bwmarrin/snowflake"
	autoscalingdomain "github.com/hostlify/hostlify/internal/autoscaling/domain"
	"github.com/hostlify/hostlify/internal/clock"
	"github.com/hostlify/hostlify/internal/config"
	hostingdomain "github.com/hostlify/hostlify/internal/hosting/domain"
	meteringdomain "github.com/hostlify/hostlify/internal/metering/domain"
	"github.com/hostlify/hostlify/internal/observability/metrics"
	plandomain "github.com/hostlify/hostlify/internal/plan/domain"
	walletdomain "github.com/hostlify/hostlify/internal/wallet/domain"
	"github.com/hostlify/hostlify/pkg/db"
	"github.com/hostlify/hostlify/pkg/db/pagination"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const defaultPageSize = 20

const reconcileBatchSize = 100

type Params struct {
	fx.In

	DB          *gorm.DB
	Log         *zap.Logger
	GenID       *snowflake.Node
	Clock       clock.Clock
	Policy      *config.PolicyHolder
	Repo        autoscalingdomain.Repository
	HostingRepo hostingdomain.Repository
	PlanRepo    plandomain.Repository
	Meter       meteringdomain.Service
	Wallet      walletdomain.Service
}

type Engine struct {
	db          *gorm.DB
	log         *zap.Logger
	genID       *snowflake.Node
	clock       clock.Clock
	policy      *config.PolicyHolder
	repo        autoscalingdomain.Repository
	hostingRepo hostingdomain.Repository
	planRepo    plandomain.Repository
	meter       meteringdomain.Service
	wallet      walletdomain.Service
	metrics     *metrics.AutoscalingMetrics
	locks       *keyedLock
}

func NewEngine(p Params) autoscalingdomain.Engine {
	return &Engine{
		db:          p.DB,
		log:         p.Log.Named("autoscaling.engine"),
		genID:       p.GenID,
		clock:       p.Clock,
		policy:      p.Policy,
		repo:        p.Repo,
		hostingRepo: p.HostingRepo,
		planRepo:    p.PlanRepo,
		meter:       p.Meter,
		wallet:      p.Wallet,
		metrics:     metrics.Autoscaling(),
		locks:       newKeyedLock(),
	}
}

func (e *Engine) Evaluate(ctx context.Context, serviceID snowflake.ID) (*autoscalingdomain.Decision, error) {
	if !e.locks.tryAcquire(serviceID) {
		return nil, autoscalingdomain.ErrEvaluationInFlight
	}
	defer e.locks.release(serviceID)

	decision, err := e.evaluate(ctx, serviceID)
	if err != nil {
		return nil, err
	}
	e.metrics.IncDecision(decisionLabel(decision))
	if decision.Action != autoscalingdomain.ActionNone {
		e.log.Info("scaling decision",
			zap.String("service_id", serviceID.String()),
			zap.String("action", string(decision.Action)),
			zap.String("reason", decision.Reason),
			zap.Int64("previous_ram", decision.PreviousRAM),
			zap.Int64("new_ram", decision.NewRAM),
			zap.Int64("previous_cpu", decision.PreviousCPU),
			zap.Int64("new_cpu", decision.NewCPU),
			zap.Int64("cost", decision.Cost),
		)
	}
	return decision, nil
}

func (e *Engine) evaluate(ctx context.Context, serviceID snowflake.ID) (*autoscalingdomain.Decision, error) {
	svc, err := e.hostingRepo.FindServiceByID(ctx, e.db, serviceID)
	if err != nil {
		return nil, err
	}
	if svc == nil {
		return nil, hostingdomain.ErrServiceNotFound
	}

	skip := func(reason string) *autoscalingdomain.Decision {
		return &autoscalingdomain.Decision{
			ServiceID: serviceID,
			Action:    autoscalingdomain.ActionNone,
			Reason:    reason,
		}
	}

	if !svc.IsAutoscalingEnabled {
		return skip(autoscalingdomain.ReasonDisabled), nil
	}
	if svc.Status != hostingdomain.StatusActive {
		return skip(autoscalingdomain.ReasonNotActive), nil
	}

	account, err := e.hostingRepo.FindAccountByServiceID(ctx, e.db, serviceID)
	if err != nil {
		return nil, err
	}
	if account == nil {
		return nil, hostingdomain.ErrAccountNotFound
	}
	plan, err := e.planRepo.FindByID(ctx, e.db, svc.PlanID)
	if err != nil {
		return nil, err
	}
	if plan == nil {
		return nil, plandomain.ErrPlanNotFound
	}

	snapshot, err := e.meter.Latest(ctx, serviceID)
	if err != nil {
		return nil, err
	}
	if snapshot.IsStale {
		return skip(autoscalingdomain.ReasonStaleMetric), nil
	}

	policy := e.policy.Get().Autoscaling
	now := e.clock.Now()
	ramUtil := utilization(snapshot.RAMUsage, account.CurrentRAM)
	cpuUtil := utilization(snapshot.CPUUsage, account.CurrentCPU)

	switch {
	case ramUtil >= policy.HighWatermarkPct || cpuUtil >= policy.HighWatermarkPct:
		return e.scaleUp(ctx, svc, account, plan, policy, ramUtil, cpuUtil, now)
	case ramUtil <= policy.LowWatermarkPct && cpuUtil <= policy.LowWatermarkPct:
		return e.scaleDown(ctx, svc, account, plan, policy, now)
	default:
		return skip(autoscalingdomain.ReasonWithinWatermarks), nil
	}
}

func (e *Engine) scaleUp(
	ctx context.Context,
	svc *hostingdomain.HostingService,
	account *hostingdomain.HostingAccount,
	plan *plandomain.HostingPlan,
	policy config.AutoscalingPolicy,
	ramUtil, cpuUtil float64,
	now time.Time,
) (*autoscalingdomain.Decision, error) {
	proposedRAM := account.CurrentRAM
	if ramUtil >= policy.HighWatermarkPct {
		proposedRAM = clamp(account.CurrentRAM+policy.RAMStepMB, plan.RAM, plan.MaxRAM)
	}
	proposedCPU := account.CurrentCPU
	if cpuUtil >= policy.HighWatermarkPct {
		proposedCPU = clamp(account.CurrentCPU+policy.CPUStepPct, plan.CPU, plan.MaxCPU)
	}

	if proposedRAM == account.CurrentRAM && proposedCPU == account.CurrentCPU {
		return &autoscalingdomain.Decision{
			ServiceID:   svc.ID,
			Action:      autoscalingdomain.ActionNone,
			Reason:      autoscalingdomain.ReasonAtPlanMax,
			PreviousRAM: account.CurrentRAM,
			PreviousCPU: account.CurrentCPU,
			NewRAM:      account.CurrentRAM,
			NewCPU:      account.CurrentCPU,
		}, nil
	}

	if err := hostingdomain.ValidateAllocation(*plan, proposedRAM, proposedCPU); err != nil {
		return nil, err
	}

	reference := debitReference(svc.ID, now.Truncate(policy.TickWindow), proposedRAM, proposedCPU)

	// A log for this reference means the tick was already settled; replaying
	// it must not debit or scale a second time.
	if prior, err := e.repo.FindByReference(ctx, e.db, reference); err != nil {
		return nil, err
	} else if prior != nil {
		return replayDecision(svc.ID, prior), nil
	}

	cost := ScaleUpCost(policy,
		proposedRAM-account.CurrentRAM,
		proposedCPU-account.CurrentCPU,
		RemainingDays(now, svc.EndDate),
	)

	wallet, err := e.wallet.GetByUserID(ctx, svc.UserID)
	if err != nil {
		return nil, err
	}

	_, err = e.wallet.Debit(ctx, walletdomain.DebitRequest{
		WalletID:  wallet.ID,
		Amount:    cost,
		Source:    walletdomain.SourceAutoscaling,
		Reference: reference,
		Metadata: map[string]any{
			"service_id": svc.ID.String(),
			"ram":        proposedRAM,
			"cpu":        proposedCPU,
		},
	})
	switch {
	case err == nil:
		e.metrics.IncDebit("charged")
	case errors.Is(err, walletdomain.ErrDuplicateReference):
		// Charged on an earlier attempt that died before committing the
		// allocation. Fall through and finish the commit.
		e.metrics.IncDebit("replayed")
	case errors.Is(err, walletdomain.ErrInsufficientFunds):
		e.metrics.IncDebit("insufficient_funds")
		return e.recordFailedScaleUp(ctx, svc, account, policy, proposedRAM, proposedCPU, cost, reference, now)
	default:
		return nil, err
	}

	log := &autoscalingdomain.ScalingLog{
		ID:            e.genID.Generate(),
		ServiceID:     svc.ID,
		PreviousRAM:   account.CurrentRAM,
		NewRAM:        proposedRAM,
		ScaledRAM:     proposedRAM - account.CurrentRAM,
		PreviousCPU:   account.CurrentCPU,
		NewCPU:        proposedCPU,
		ScaledCPU:     proposedCPU - account.CurrentCPU,
		Cost:          cost,
		PaymentStatus: autoscalingdomain.PaymentPaid,
		Reference:     reference,
		AppliedAt:     &now,
		CreatedAt:     now,
	}
	err = e.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := e.repo.Insert(ctx, tx, log); err != nil {
			return err
		}
		return e.hostingRepo.UpdateAccountAllocation(ctx, tx, svc.ID, proposedRAM, proposedCPU, true, now)
	})
	if err != nil {
		if db.IsDuplicateKeyErr(err) {
			prior, findErr := e.repo.FindByReference(ctx, e.db, log.Reference)
			if findErr != nil {
				return nil, findErr
			}
			if prior != nil {
				return replayDecision(svc.ID, prior), nil
			}
		}
		return nil, err
	}

	return &autoscalingdomain.Decision{
		ServiceID:   svc.ID,
		Action:      autoscalingdomain.ActionScaleUp,
		PreviousRAM: account.CurrentRAM,
		PreviousCPU: account.CurrentCPU,
		NewRAM:      proposedRAM,
		NewCPU:      proposedCPU,
		Cost:        cost,
		Log:         log,
	}, nil
}

// recordFailedScaleUp leaves the allocation untouched and writes a failed
// log so the charge shortfall shows up in the user's scaling history.
func (e *Engine) recordFailedScaleUp(
	ctx context.Context,
	svc *hostingdomain.HostingService,
	account *hostingdomain.HostingAccount,
	policy config.AutoscalingPolicy,
	proposedRAM, proposedCPU, cost int64,
	reference string,
	now time.Time,
) (*autoscalingdomain.Decision, error) {
	log := &autoscalingdomain.ScalingLog{
		ID:            e.genID.Generate(),
		ServiceID:     svc.ID,
		PreviousRAM:   account.CurrentRAM,
		NewRAM:        account.CurrentRAM,
		ScaledRAM:     0,
		PreviousCPU:   account.CurrentCPU,
		NewCPU:        account.CurrentCPU,
		ScaledCPU:     0,
		Cost:          cost,
		PaymentStatus: autoscalingdomain.PaymentFailed,
		Reference:     reference,
		CreatedAt:     now,
	}
	if err := e.repo.Insert(ctx, e.db, log); err != nil {
		if db.IsDuplicateKeyErr(err) {
			prior, findErr := e.repo.FindByReference(ctx, e.db, reference)
			if findErr != nil {
				return nil, findErr
			}
			if prior != nil {
				return replayDecision(svc.ID, prior), nil
			}
		}
		return nil, err
	}

	if policy.DisableOnInsufficientFunds {
		if err := e.hostingRepo.UpdateAutoscalingEnabled(ctx, e.db, svc.ID, false); err != nil {
			return nil, err
		}
		e.log.Warn("autoscaling disabled after failed charge",
			zap.String("service_id", svc.ID.String()),
			zap.Int64("cost", cost),
		)
	}

	return &autoscalingdomain.Decision{
		ServiceID:   svc.ID,
		Action:      autoscalingdomain.ActionNone,
		Reason:      "insufficient_funds",
		PreviousRAM: account.CurrentRAM,
		PreviousCPU: account.CurrentCPU,
		NewRAM:      account.CurrentRAM,
		NewCPU:      account.CurrentCPU,
		Cost:        cost,
		Log:         log,
	}, nil
}

func (e *Engine) scaleDown(
	ctx context.Context,
	svc *hostingdomain.HostingService,
	account *hostingdomain.HostingAccount,
	plan *plandomain.HostingPlan,
	policy config.AutoscalingPolicy,
	now time.Time,
) (*autoscalingdomain.Decision, error) {
	skip := func(reason string) *autoscalingdomain.Decision {
		return &autoscalingdomain.Decision{
			ServiceID:   svc.ID,
			Action:      autoscalingdomain.ActionNone,
			Reason:      reason,
			PreviousRAM: account.CurrentRAM,
			PreviousCPU: account.CurrentCPU,
			NewRAM:      account.CurrentRAM,
			NewCPU:      account.CurrentCPU,
		}
	}

	if account.LastScaledUpAt != nil && now.Sub(*account.LastScaledUpAt) < policy.ScaleDownCooldown {
		return skip(autoscalingdomain.ReasonCooldown), nil
	}

	proposedRAM := clamp(account.CurrentRAM-policy.RAMStepMB, plan.RAM, plan.MaxRAM)
	proposedCPU := clamp(account.CurrentCPU-policy.CPUStepPct, plan.CPU, plan.MaxCPU)
	if proposedRAM == account.CurrentRAM && proposedCPU == account.CurrentCPU {
		return skip(autoscalingdomain.ReasonAtBaseline), nil
	}

	reference := debitReference(svc.ID, now.Truncate(policy.TickWindow), proposedRAM, proposedCPU)
	if prior, err := e.repo.FindByReference(ctx, e.db, reference); err != nil {
		return nil, err
	} else if prior != nil {
		return replayDecision(svc.ID, prior), nil
	}

	log := &autoscalingdomain.ScalingLog{
		ID:            e.genID.Generate(),
		ServiceID:     svc.ID,
		PreviousRAM:   account.CurrentRAM,
		NewRAM:        proposedRAM,
		ScaledRAM:     proposedRAM - account.CurrentRAM,
		PreviousCPU:   account.CurrentCPU,
		NewCPU:        proposedCPU,
		ScaledCPU:     proposedCPU - account.CurrentCPU,
		Cost:          0,
		PaymentStatus: autoscalingdomain.PaymentPaid,
		Reference:     reference,
		AppliedAt:     &now,
		CreatedAt:     now,
	}
	err := e.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := e.repo.Insert(ctx, tx, log); err != nil {
			return err
		}
		return e.hostingRepo.UpdateAccountAllocation(ctx, tx, svc.ID, proposedRAM, proposedCPU, false, now)
	})
	if err != nil {
		if db.IsDuplicateKeyErr(err) {
			prior, findErr := e.repo.FindByReference(ctx, e.db, reference)
			if findErr != nil {
				return nil, findErr
			}
			if prior != nil {
				return replayDecision(svc.ID, prior), nil
			}
		}
		return nil, err
	}

	return &autoscalingdomain.Decision{
		ServiceID:   svc.ID,
		Action:      autoscalingdomain.ActionScaleDown,
		PreviousRAM: account.CurrentRAM,
		PreviousCPU: account.CurrentCPU,
		NewRAM:      proposedRAM,
		NewCPU:      proposedCPU,
		Log:         log,
	}, nil
}

func (e *Engine) ListLogs(ctx context.Context, req autoscalingdomain.ListLogsRequest) (autoscalingdomain.ListLogsResponse, error) {
	limit := req.PageSize
	if limit <= 0 {
		limit = defaultPageSize
	}

	var afterID snowflake.ID
	if req.PageToken != "" {
		cursor, err := pagination.DecodeCursor(req.PageToken)
		if err != nil {
			return autoscalingdomain.ListLogsResponse{}, err
		}
		parsed, err := snowflake.ParseString(cursor.ID)
		if err != nil {
			return autoscalingdomain.ListLogsResponse{}, err
		}
		afterID = parsed
	}

	logs, err := e.repo.ListByService(ctx, e.db, req.ServiceID, afterID, limit+1)
	if err != nil {
		return autoscalingdomain.ListLogsResponse{}, err
	}

	resp := autoscalingdomain.ListLogsResponse{Logs: logs}
	if len(logs) > limit {
		resp.Logs = logs[:limit]
		resp.HasMore = true
		token, err := pagination.EncodeCursor(pagination.Cursor{
			ID: resp.Logs[limit-1].ID.String(),
		})
		if err != nil {
			return autoscalingdomain.ListLogsResponse{}, err
		}
		resp.NextPageToken = token
	}
	return resp, nil
}

// Reconcile pushes paid but unapplied logs onto the account allocation.
// Runs from the scheduler recovery job after restarts.
func (e *Engine) Reconcile(ctx context.Context) (int, error) {
	logs, err := e.repo.ListPaidUnapplied(ctx, e.db, reconcileBatchSize)
	if err != nil {
		return 0, err
	}

	applied := 0
	for i := range logs {
		log := logs[i]
		now := e.clock.Now()

		svc, err := e.hostingRepo.FindServiceByID(ctx, e.db, log.ServiceID)
		if err != nil {
			return applied, err
		}
		if svc == nil {
			continue
		}
		plan, err := e.planRepo.FindByID(ctx, e.db, svc.PlanID)
		if err != nil {
			return applied, err
		}
		if plan == nil {
			continue
		}
		if err := hostingdomain.ValidateAllocation(*plan, log.NewRAM, log.NewCPU); err != nil {
			e.log.Warn("skipping out-of-bounds scaling log",
				zap.String("service_id", log.ServiceID.String()),
				zap.String("reference", log.Reference),
			)
			continue
		}

		err = e.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			scaledUp := log.ScaledRAM > 0 || log.ScaledCPU > 0
			if err := e.hostingRepo.UpdateAccountAllocation(ctx, tx, log.ServiceID, log.NewRAM, log.NewCPU, scaledUp, now); err != nil {
				return err
			}
			return e.repo.MarkApplied(ctx, tx, log.ID, now)
		})
		if err != nil {
			return applied, err
		}
		applied++
		e.log.Info("scaling log reconciled",
			zap.String("service_id", log.ServiceID.String()),
			zap.String("reference", log.Reference),
		)
	}
	return applied, nil
}

func replayDecision(serviceID snowflake.ID, log *autoscalingdomain.ScalingLog) *autoscalingdomain.Decision {
	return &autoscalingdomain.Decision{
		ServiceID:   serviceID,
		Action:      autoscalingdomain.ActionNone,
		Reason:      autoscalingdomain.ReasonReplay,
		PreviousRAM: log.PreviousRAM,
		PreviousCPU: log.PreviousCPU,
		NewRAM:      log.NewRAM,
		NewCPU:      log.NewCPU,
		Cost:        log.Cost,
		Log:         log,
	}
}

func decisionLabel(d *autoscalingdomain.Decision) string {
	if d.Action != autoscalingdomain.ActionNone {
		return string(d.Action)
	}
	return d.Reason
}

func debitReference(serviceID snowflake.ID, windowStart time.Time, ram, cpu int64) string {
	return fmt.Sprintf("autoscale:%d:%d:%d:%d", serviceID, windowStart.Unix(), ram, cpu)
}

func utilization(usage, allocated int64) float64 {
	if allocated <= 0 {
		return 0
	}
	return float64(usage) / float64(allocated)
}

func clamp(v, lo, hi int64) int64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
