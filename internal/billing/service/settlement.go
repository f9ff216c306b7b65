package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/bwmarrin/snowflake"
	"github.com/hostlify/hostlify/internal/clock"
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

// Settler finishes confirmed gateway sessions: wallet top-ups become
// credits, purchases become active services, renewals extend the period.
// It runs inside the confirming transaction, so a replayed confirmation
// never reaches it; the wallet reference and the service link guard the
// direct-invocation paths on top of that.
type Settler struct {
	db          *gorm.DB
	log         *zap.Logger
	genID       *snowflake.Node
	clock       clock.Clock
	wallet      walletdomain.Service
	hosting     hostingdomain.Service
	hostingRepo hostingdomain.Repository
	planRepo    plandomain.Repository
	promo       promodomain.Service
	gatewayRepo gatewaydomain.Repository
}

type SettlerParams struct {
	fx.In

	DB          *gorm.DB
	Log         *zap.Logger
	GenID       *snowflake.Node
	Clock       clock.Clock
	Wallet      walletdomain.Service
	Hosting     hostingdomain.Service
	HostingRepo hostingdomain.Repository
	PlanRepo    plandomain.Repository
	Promo       promodomain.Service
	GatewayRepo gatewaydomain.Repository
}

func NewSettler(p SettlerParams) gatewaydomain.SettlementHandler {
	return &Settler{
		db:          p.DB,
		log:         p.Log.Named("billing.settler"),
		genID:       p.GenID,
		clock:       p.Clock,
		wallet:      p.Wallet,
		hosting:     p.Hosting,
		hostingRepo: p.HostingRepo,
		planRepo:    p.PlanRepo,
		promo:       p.Promo,
		gatewayRepo: p.GatewayRepo,
	}
}

func (s *Settler) OnSessionConfirmed(ctx context.Context, tx *gorm.DB, session *gatewaydomain.PaymentSession) error {
	if tx == nil {
		tx = s.db
	}
	switch session.Purpose {
	case gatewaydomain.PurposeWalletTopUp:
		return s.settleTopUp(ctx, tx, session)
	case gatewaydomain.PurposePurchase:
		return s.settlePurchase(ctx, tx, session)
	case gatewaydomain.PurposeRenewal:
		return s.settleRenewal(ctx, tx, session)
	default:
		return fmt.Errorf("unknown session purpose %q", session.Purpose)
	}
}

func (s *Settler) settleTopUp(ctx context.Context, tx *gorm.DB, session *gatewaydomain.PaymentSession) error {
	wallet, err := s.wallet.GetByUserID(ctx, session.UserID)
	if err != nil {
		return err
	}
	_, err = s.wallet.CreditTx(ctx, tx, walletdomain.CreditRequest{
		WalletID:  wallet.ID,
		Amount:    session.Amount,
		Source:    walletdomain.SourceDeposit,
		Reference: fmt.Sprintf("topup:%d", session.ID),
		Metadata:  map[string]any{"provider": session.Provider},
	})
	if err != nil && !errors.Is(err, walletdomain.ErrDuplicateReference) {
		return err
	}
	s.log.Info("wallet top-up settled",
		zap.String("session_id", session.ID.String()),
		zap.Int64("amount", session.Amount),
	)
	return nil
}

func (s *Settler) settlePurchase(ctx context.Context, tx *gorm.DB, session *gatewaydomain.PaymentSession) error {
	// A linked service means an earlier settlement already provisioned.
	if session.ServiceID != nil {
		return nil
	}
	if session.PlanID == nil {
		return plandomain.ErrPlanNotFound
	}
	plan, err := s.planRepo.FindByID(ctx, tx, *session.PlanID)
	if err != nil {
		return err
	}
	if plan == nil {
		return plandomain.ErrPlanNotFound
	}
	period, err := plandomain.ParsePeriod(session.Period)
	if err != nil {
		return err
	}
	method, err := hostingdomain.ParsePaymentMethod(session.Provider)
	if err != nil {
		return err
	}

	now := s.clock.Now()
	end := period.Duration(now)
	details, err := s.hosting.Provision(ctx, tx, hostingdomain.ProvisionRequest{
		UserID:               session.UserID,
		Plan:                 *plan,
		Domain:               session.Domain,
		Status:               hostingdomain.StatusActive,
		StartDate:            &now,
		EndDate:              &end,
		IsAutoscalingEnabled: session.IsAutoscalingEnabled,
		IsAutoRenew:          true,
		PaymentMethod:        method,
	})
	if err != nil {
		return err
	}
	if session.PromoCode != "" {
		if err := s.redeemSessionPromo(ctx, tx, session); err != nil {
			// The money is already captured at the discounted price;
			// a promo gone stale since checkout must not void the
			// purchase.
			s.log.Warn("promo redeem skipped on settlement",
				zap.String("session_id", session.ID.String()),
				zap.Error(err),
			)
		}
	}
	if err := s.gatewayRepo.UpdateServiceID(ctx, tx, session.ID, details.Service.ID); err != nil {
		return err
	}
	s.log.Info("gateway purchase settled",
		zap.String("session_id", session.ID.String()),
		zap.String("service_id", details.Service.ID.String()),
	)
	return nil
}

func (s *Settler) redeemSessionPromo(ctx context.Context, tx *gorm.DB, session *gatewaydomain.PaymentSession) error {
	validation, err := s.promo.Validate(ctx, session.UserID, session.PromoCode, ptrID(session.PlanID), session.Amount)
	if err != nil {
		return err
	}
	return s.promo.Redeem(ctx, tx, session.UserID, validation.Code)
}

func (s *Settler) settleRenewal(ctx context.Context, tx *gorm.DB, session *gatewaydomain.PaymentSession) error {
	if session.ServiceID == nil {
		return hostingdomain.ErrServiceNotFound
	}
	svc, err := s.hostingRepo.FindServiceByID(ctx, tx, *session.ServiceID)
	if err != nil {
		return err
	}
	if svc == nil {
		return hostingdomain.ErrServiceNotFound
	}
	period, err := plandomain.ParsePeriod(session.Period)
	if err != nil {
		return err
	}

	start, end := hostingsvc.ExtendPeriod(s.clock.Now(), svc.EndDate, period)
	if err := s.hostingRepo.UpdateServicePeriod(ctx, tx, svc.ID, start, end); err != nil {
		return err
	}
	if svc.Status == hostingdomain.StatusSuspended || svc.Status == hostingdomain.StatusExpired {
		if err := s.hosting.Transition(ctx, tx, svc.ID, hostingdomain.StatusActive, hostingdomain.ReasonRenewal); err != nil {
			return err
		}
	}
	s.log.Info("gateway renewal settled",
		zap.String("session_id", session.ID.String()),
		zap.String("service_id", svc.ID.String()),
	)
	return nil
}

func ptrID(id *snowflake.ID) snowflake.ID {
	if id == nil {
		return 0
	}
	return *id
}
