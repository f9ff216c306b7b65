package service

import (
	"context"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/hostlify/hostlify/internal/clock"
	hostingdomain "github.com/hostlify/hostlify/internal/hosting/domain"
	plandomain "github.com/hostlify/hostlify/internal/plan/domain"
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
	Repo     hostingdomain.Repository
	PlanRepo plandomain.Repository
}

type Service struct {
	db       *gorm.DB
	log      *zap.Logger
	genID    *snowflake.Node
	clock    clock.Clock
	repo     hostingdomain.Repository
	planRepo plandomain.Repository
}

func NewService(p Params) hostingdomain.Service {
	return &Service{
		db:       p.DB,
		log:      p.Log.Named("hosting.service"),
		genID:    p.GenID,
		clock:    p.Clock,
		repo:     p.Repo,
		planRepo: p.PlanRepo,
	}
}

func (s *Service) Provision(ctx context.Context, tx *gorm.DB, req hostingdomain.ProvisionRequest) (*hostingdomain.ServiceDetails, error) {
	if tx == nil {
		tx = s.db
	}
	domain := strings.TrimSpace(strings.ToLower(req.Domain))
	if domain == "" || !strings.Contains(domain, ".") {
		return nil, hostingdomain.ErrInvalidDomain
	}

	now := s.clock.Now()
	svc := &hostingdomain.HostingService{
		ID:                   s.genID.Generate(),
		UserID:               req.UserID,
		PlanID:               req.Plan.ID,
		Domain:               domain,
		Status:               req.Status,
		StartDate:            req.StartDate,
		EndDate:              req.EndDate,
		IsAutoscalingEnabled: req.IsAutoscalingEnabled,
		IsAutoRenew:          req.IsAutoRenew,
		PaymentMethod:        req.PaymentMethod,
		CreatedAt:            now,
		UpdatedAt:            now,
	}
	if err := s.repo.InsertService(ctx, tx, svc); err != nil {
		return nil, err
	}

	// The account starts at the plan baseline; autoscaling moves it later.
	account := &hostingdomain.HostingAccount{
		ID:               s.genID.Generate(),
		ServiceID:        svc.ID,
		CurrentRAM:       req.Plan.RAM,
		CurrentCPU:       req.Plan.CPU,
		CurrentStorage:   req.Plan.Storage,
		CurrentBandwidth: req.Plan.Bandwidth,
		UpdatedAt:        now,
	}
	if err := s.repo.InsertAccount(ctx, tx, account); err != nil {
		return nil, err
	}

	s.log.Info("hosting service provisioned",
		zap.String("service_id", svc.ID.String()),
		zap.String("domain", svc.Domain),
		zap.String("status", string(svc.Status)),
	)
	return &hostingdomain.ServiceDetails{Service: *svc, Plan: req.Plan, Account: *account}, nil
}

func (s *Service) GetDetails(ctx context.Context, serviceID snowflake.ID) (*hostingdomain.ServiceDetails, error) {
	svc, err := s.repo.FindServiceByID(ctx, s.db, serviceID)
	if err != nil {
		return nil, err
	}
	if svc == nil {
		return nil, hostingdomain.ErrServiceNotFound
	}
	return s.loadDetails(ctx, svc)
}

func (s *Service) GetDetailsForUser(ctx context.Context, userID, serviceID snowflake.ID) (*hostingdomain.ServiceDetails, error) {
	details, err := s.GetDetails(ctx, serviceID)
	if err != nil {
		return nil, err
	}
	if details.Service.UserID != userID {
		return nil, hostingdomain.ErrServiceNotFound
	}
	return details, nil
}

func (s *Service) ListByUser(ctx context.Context, userID snowflake.ID) ([]hostingdomain.ServiceDetails, error) {
	services, err := s.repo.ListServicesByUser(ctx, s.db, userID)
	if err != nil {
		return nil, err
	}
	out := make([]hostingdomain.ServiceDetails, 0, len(services))
	for i := range services {
		details, err := s.loadDetails(ctx, &services[i])
		if err != nil {
			return nil, err
		}
		out = append(out, *details)
	}
	return out, nil
}

func (s *Service) SetAutoscaling(ctx context.Context, userID, serviceID snowflake.ID, enabled bool) (*hostingdomain.ServiceDetails, error) {
	details, err := s.GetDetailsForUser(ctx, userID, serviceID)
	if err != nil {
		return nil, err
	}
	if err := s.repo.UpdateAutoscalingEnabled(ctx, s.db, serviceID, enabled); err != nil {
		return nil, err
	}
	details.Service.IsAutoscalingEnabled = enabled
	return details, nil
}

func (s *Service) Transition(ctx context.Context, tx *gorm.DB, serviceID snowflake.ID, to hostingdomain.ServiceStatus, reason hostingdomain.TransitionReason) error {
	if tx == nil {
		tx = s.db
	}
	svc, err := s.repo.FindServiceByID(ctx, tx, serviceID)
	if err != nil {
		return err
	}
	if svc == nil {
		return hostingdomain.ErrServiceNotFound
	}
	if svc.Status == to {
		return nil
	}
	if !hostingdomain.CanTransition(svc.Status, to) {
		return hostingdomain.ErrInvalidTransition
	}

	updated, err := s.repo.UpdateServiceStatus(ctx, tx, serviceID, svc.Status, to)
	if err != nil {
		return err
	}
	if !updated {
		// Lost a race with another transition; re-read and re-validate.
		return hostingdomain.ErrInvalidTransition
	}

	s.log.Info("service status changed",
		zap.String("service_id", serviceID.String()),
		zap.String("from", string(svc.Status)),
		zap.String("to", string(to)),
		zap.String("reason", string(reason)),
	)
	return nil
}

func (s *Service) loadDetails(ctx context.Context, svc *hostingdomain.HostingService) (*hostingdomain.ServiceDetails, error) {
	plan, err := s.planRepo.FindByID(ctx, s.db, svc.PlanID)
	if err != nil {
		return nil, err
	}
	if plan == nil {
		return nil, plandomain.ErrPlanNotFound
	}
	account, err := s.repo.FindAccountByServiceID(ctx, s.db, svc.ID)
	if err != nil {
		return nil, err
	}
	if account == nil {
		return nil, hostingdomain.ErrAccountNotFound
	}
	return &hostingdomain.ServiceDetails{Service: *svc, Plan: *plan, Account: *account}, nil
}

// ExtendPeriod moves end_date forward by one period from whichever is later,
// now or the current end_date, so early renewals do not lose paid time.
func ExtendPeriod(now time.Time, current *time.Time, period plandomain.Period) (time.Time, time.Time) {
	start := now
	base := now
	if current != nil && current.After(now) {
		base = *current
	}
	return start, period.Duration(base)
}
