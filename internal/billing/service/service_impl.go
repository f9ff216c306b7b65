package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/bwmarrin/snowflake"
	billingdomain "github.com/hostlify/hostlify/internal/billing/domain"
	"github.com/hostlify/hostlify/internal/clock"
	"github.com/hostlify/hostlify/internal/config"
	gatewaydomain "github.com/hostlify/hostlify/internal/gateway/domain"
	hostingdomain "github.com/hostlify/hostlify/internal/hosting/domain"
	hostingsvc "github.com/hostlify/hostlify/internal/hosting/service"
	plandomain "github.com/hostlify/hostlify/internal/plan/domain"
	promodomain "github.com/hostlify/hostlify/internal/promo/domain"
	walletdomain "github.com/hostlify/hostlify/internal/wallet/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB          *gorm.DB
	Log         *zap.Logger
	GenID       *snowflake.Node
	Clock       clock.Clock
	Config      config.Config
	Policy      *config.PolicyHolder
	Wallet      walletdomain.Service
	Hosting     hostingdomain.Service
	HostingRepo hostingdomain.Repository
	PlanRepo    plandomain.Repository
	Promo       promodomain.Service
	Gateway     gatewaydomain.Service
}

type Service struct {
	db          *gorm.DB
	log         *zap.Logger
	genID       *snowflake.Node
	clock       clock.Clock
	cfg         config.Config
	policy      *config.PolicyHolder
	wallet      walletdomain.Service
	hosting     hostingdomain.Service
	hostingRepo hostingdomain.Repository
	planRepo    plandomain.Repository
	promo       promodomain.Service
	gateway     gatewaydomain.Service
}

func NewService(p Params) billingdomain.Service {
	return &Service{
		db:          p.DB,
		log:         p.Log.Named("billing.service"),
		genID:       p.GenID,
		clock:       p.Clock,
		cfg:         p.Config,
		policy:      p.Policy,
		wallet:      p.Wallet,
		hosting:     p.Hosting,
		hostingRepo: p.HostingRepo,
		planRepo:    p.PlanRepo,
		promo:       p.Promo,
		gateway:     p.Gateway,
	}
}

func (s *Service) Purchase(ctx context.Context, req billingdomain.PurchaseRequest) (*billingdomain.PurchaseResponse, error) {
	plan, err := s.planRepo.FindByID(ctx, s.db, req.PlanID)
	if err != nil {
		return nil, err
	}
	if plan == nil {
		return nil, plandomain.ErrPlanNotFound
	}
	if !plan.Active {
		return nil, billingdomain.ErrPlanNotPurchasable
	}
	period, err := plandomain.ParsePeriod(req.Period)
	if err != nil {
		return nil, err
	}
	method, err := hostingdomain.ParsePaymentMethod(req.PaymentMethod)
	if err != nil {
		return nil, err
	}

	amount := plan.Price(period)
	var discount int64
	var promoCode *promodomain.PromoCode
	if code := strings.TrimSpace(req.PromoCode); code != "" {
		validation, err := s.promo.Validate(ctx, req.UserID, code, plan.ID, amount)
		if err != nil {
			return nil, err
		}
		discount = validation.Discount
		amount = validation.FinalAmount
		promoCode = validation.Code
	}

	if method != hostingdomain.PaymentMethodWallet {
		session, err := s.gateway.CreateSession(ctx, gatewaydomain.CreateSessionRequest{
			UserID:               req.UserID,
			Purpose:              gatewaydomain.PurposePurchase,
			Amount:               amount,
			Currency:             s.cfg.Currency,
			Provider:             string(method),
			PlanID:               &plan.ID,
			Period:               string(period),
			Domain:               req.Domain,
			PromoCode:            req.PromoCode,
			IsAutoscalingEnabled: req.IsAutoscalingEnabled,
			ReturnURL:            req.ReturnURL,
		})
		if err != nil {
			return nil, err
		}
		return &billingdomain.PurchaseResponse{
			SessionID:  session.ID,
			PaymentURL: session.PaymentURL,
			Amount:     amount,
			Discount:   discount,
		}, nil
	}

	sessionID := s.genID.Generate()
	wallet, err := s.wallet.GetByUserID(ctx, req.UserID)
	if err != nil {
		return nil, err
	}
	if _, err := s.wallet.Debit(ctx, walletdomain.DebitRequest{
		WalletID:  wallet.ID,
		Amount:    amount,
		Source:    walletdomain.SourceHostingPurchase,
		Reference: fmt.Sprintf("purchase:%d", sessionID),
		Metadata:  map[string]any{"plan": plan.Code, "domain": req.Domain},
	}); err != nil && !errors.Is(err, walletdomain.ErrDuplicateReference) {
		return nil, err
	}

	details, err := s.provision(ctx, req.UserID, plan, period, req.Domain, req.IsAutoscalingEnabled, req.IsAutoRenew, hostingdomain.PaymentMethodWallet, promoCode)
	if err != nil {
		return nil, err
	}

	s.log.Info("hosting purchase settled",
		zap.String("service_id", details.Service.ID.String()),
		zap.String("plan", plan.Code),
		zap.Int64("amount", amount),
		zap.Int64("discount", discount),
	)
	return &billingdomain.PurchaseResponse{
		Service:   details,
		SessionID: sessionID,
		Amount:    amount,
		Discount:  discount,
	}, nil
}

// provision creates the service active immediately and consumes the promo
// code in the same transaction.
func (s *Service) provision(
	ctx context.Context,
	userID snowflake.ID,
	plan *plandomain.HostingPlan,
	period plandomain.Period,
	domain string,
	autoscaling, autoRenew bool,
	method hostingdomain.PaymentMethod,
	promoCode *promodomain.PromoCode,
) (*hostingdomain.ServiceDetails, error) {
	now := s.clock.Now()
	end := period.Duration(now)

	var details *hostingdomain.ServiceDetails
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		details, err = s.hosting.Provision(ctx, tx, hostingdomain.ProvisionRequest{
			UserID:               userID,
			Plan:                 *plan,
			Domain:               domain,
			Status:               hostingdomain.StatusActive,
			StartDate:            &now,
			EndDate:              &end,
			IsAutoscalingEnabled: autoscaling,
			IsAutoRenew:          autoRenew,
			PaymentMethod:        method,
		})
		if err != nil {
			return err
		}
		if promoCode != nil {
			return s.promo.Redeem(ctx, tx, userID, promoCode)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return details, nil
}

func (s *Service) Renew(ctx context.Context, req billingdomain.RenewRequest) (*billingdomain.RenewResponse, error) {
	details, err := s.hosting.GetDetailsForUser(ctx, req.UserID, req.ServiceID)
	if err != nil {
		return nil, err
	}
	period, err := plandomain.ParsePeriod(req.Period)
	if err != nil {
		return nil, err
	}
	method, err := hostingdomain.ParsePaymentMethod(req.PaymentMethod)
	if err != nil {
		return nil, err
	}
	amount := details.Plan.Price(period)

	if method != hostingdomain.PaymentMethodWallet {
		session, err := s.gateway.CreateSession(ctx, gatewaydomain.CreateSessionRequest{
			UserID:    req.UserID,
			Purpose:   gatewaydomain.PurposeRenewal,
			Amount:    amount,
			Currency:  s.cfg.Currency,
			Provider:  string(method),
			ServiceID: &details.Service.ID,
			Period:    string(period),
			ReturnURL: req.ReturnURL,
		})
		if err != nil {
			return nil, err
		}
		return &billingdomain.RenewResponse{
			SessionID:  session.ID,
			PaymentURL: session.PaymentURL,
			Amount:     amount,
		}, nil
	}

	sessionID := s.genID.Generate()
	wallet, err := s.wallet.GetByUserID(ctx, req.UserID)
	if err != nil {
		return nil, err
	}
	if _, err := s.wallet.Debit(ctx, walletdomain.DebitRequest{
		WalletID:  wallet.ID,
		Amount:    amount,
		Source:    walletdomain.SourceHostingPurchase,
		Reference: fmt.Sprintf("renew:%d", sessionID),
		Metadata:  map[string]any{"service_id": details.Service.ID.String()},
	}); err != nil && !errors.Is(err, walletdomain.ErrDuplicateReference) {
		return nil, err
	}

	if err := s.extendAndReactivate(ctx, &details.Service, period); err != nil {
		return nil, err
	}

	refreshed, err := s.hosting.GetDetails(ctx, details.Service.ID)
	if err != nil {
		return nil, err
	}
	s.log.Info("service renewed",
		zap.String("service_id", details.Service.ID.String()),
		zap.String("period", string(period)),
		zap.Int64("amount", amount),
	)
	return &billingdomain.RenewResponse{
		Service:   refreshed,
		SessionID: sessionID,
		Amount:    amount,
	}, nil
}

// extendAndReactivate pushes end_date one period past max(now, end_date)
// and brings suspended or expired services back to active.
func (s *Service) extendAndReactivate(ctx context.Context, svc *hostingdomain.HostingService, period plandomain.Period) error {
	start, end := hostingsvc.ExtendPeriod(s.clock.Now(), svc.EndDate, period)
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.hostingRepo.UpdateServicePeriod(ctx, tx, svc.ID, start, end); err != nil {
			return err
		}
		if svc.Status == hostingdomain.StatusSuspended || svc.Status == hostingdomain.StatusExpired {
			return s.hosting.Transition(ctx, tx, svc.ID, hostingdomain.StatusActive, hostingdomain.ReasonRenewal)
		}
		return nil
	})
}

func (s *Service) TopUp(ctx context.Context, req billingdomain.TopUpRequest) (*billingdomain.TopUpResponse, error) {
	if req.Amount <= 0 {
		return nil, billingdomain.ErrInvalidTopUpAmount
	}
	session, err := s.gateway.CreateSession(ctx, gatewaydomain.CreateSessionRequest{
		UserID:    req.UserID,
		Purpose:   gatewaydomain.PurposeWalletTopUp,
		Amount:    req.Amount,
		Currency:  s.cfg.Currency,
		Provider:  req.Provider,
		ReturnURL: req.ReturnURL,
	})
	if err != nil {
		return nil, err
	}
	return &billingdomain.TopUpResponse{
		SessionID:  session.ID,
		PaymentURL: session.PaymentURL,
	}, nil
}

func (s *Service) RenewDueServices(ctx context.Context, limit int) (int, error) {
	now := s.clock.Now()
	due, err := s.hostingRepo.ListDueServices(ctx, s.db, hostingdomain.StatusActive, now, limit)
	if err != nil {
		return 0, err
	}

	processed := 0
	for i := range due {
		svc := due[i]
		if err := s.settleDueService(ctx, &svc); err != nil {
			s.log.Error("due service settlement failed",
				zap.String("service_id", svc.ID.String()),
				zap.Error(err),
			)
			continue
		}
		processed++
	}
	return processed, nil
}

func (s *Service) settleDueService(ctx context.Context, svc *hostingdomain.HostingService) error {
	if !svc.IsAutoRenew || svc.PaymentMethod != hostingdomain.PaymentMethodWallet {
		return s.hosting.Transition(ctx, nil, svc.ID, hostingdomain.StatusSuspended, hostingdomain.ReasonBillingFailure)
	}

	plan, err := s.planRepo.FindByID(ctx, s.db, svc.PlanID)
	if err != nil {
		return err
	}
	if plan == nil {
		return plandomain.ErrPlanNotFound
	}
	wallet, err := s.wallet.GetByUserID(ctx, svc.UserID)
	if err != nil {
		return err
	}

	// The end date anchors the reference, so one billing period settles at
	// most once no matter how often the sweep runs.
	var endUnix int64
	if svc.EndDate != nil {
		endUnix = svc.EndDate.Unix()
	}
	_, err = s.wallet.Debit(ctx, walletdomain.DebitRequest{
		WalletID:  wallet.ID,
		Amount:    plan.PriceMonthly,
		Source:    walletdomain.SourceHostingPurchase,
		Reference: fmt.Sprintf("autorenew:%d:%d", svc.ID, endUnix),
		Metadata:  map[string]any{"plan": plan.Code},
	})
	switch {
	case err == nil, errors.Is(err, walletdomain.ErrDuplicateReference):
		return s.extendAndReactivate(ctx, svc, plandomain.PeriodMonthly)
	case errors.Is(err, walletdomain.ErrInsufficientFunds):
		return s.hosting.Transition(ctx, nil, svc.ID, hostingdomain.StatusSuspended, hostingdomain.ReasonBillingFailure)
	default:
		return err
	}
}

func (s *Service) ExpireServices(ctx context.Context, limit int) (int, error) {
	grace := s.policy.Get().Billing.GracePeriodDays
	cutoff := s.clock.Now().AddDate(0, 0, -grace)

	overdue, err := s.hostingRepo.ListDueServices(ctx, s.db, hostingdomain.StatusSuspended, cutoff, limit)
	if err != nil {
		return 0, err
	}

	processed := 0
	for i := range overdue {
		if err := s.hosting.Transition(ctx, nil, overdue[i].ID, hostingdomain.StatusExpired, hostingdomain.ReasonGraceExceeded); err != nil {
			s.log.Error("expire transition failed",
				zap.String("service_id", overdue[i].ID.String()),
				zap.Error(err),
			)
			continue
		}
		processed++
	}
	return processed, nil
}
