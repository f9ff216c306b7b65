package service

import (
	"context"
	"net/http"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/cenkalti/backoff/v4"
	"github.com/hostlify/hostlify/internal/clock"
	"github.com/hostlify/hostlify/internal/config"
	"github.com/hostlify/hostlify/internal/gateway/adapters"
	gatewaydomain "github.com/hostlify/hostlify/internal/gateway/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// confirmPollRetries bounds the provider polls within a single Confirm
// call; the scheduler re-runs the whole call until the attempt cap.
const confirmPollRetries = 3

type Params struct {
	fx.In

	DB       *gorm.DB
	Log      *zap.Logger
	GenID    *snowflake.Node
	Clock    clock.Clock
	Config   config.Config
	Policy   *config.PolicyHolder
	Registry *adapters.Registry
	Repo     gatewaydomain.Repository
	Handler  gatewaydomain.SettlementHandler `optional:"true"`
}

type Service struct {
	db       *gorm.DB
	log      *zap.Logger
	genID    *snowflake.Node
	clock    clock.Clock
	cfg      config.Config
	policy   *config.PolicyHolder
	registry *adapters.Registry
	repo     gatewaydomain.Repository
	handler  gatewaydomain.SettlementHandler
}

func NewService(p Params) gatewaydomain.Service {
	return &Service{
		db:       p.DB,
		log:      p.Log.Named("gateway.service"),
		genID:    p.GenID,
		clock:    p.Clock,
		cfg:      p.Config,
		policy:   p.Policy,
		registry: p.Registry,
		repo:     p.Repo,
		handler:  p.Handler,
	}
}

func (s *Service) CreateSession(ctx context.Context, req gatewaydomain.CreateSessionRequest) (*gatewaydomain.PaymentSession, error) {
	adapter, err := s.adapterFor(req.Provider)
	if err != nil {
		return nil, err
	}

	now := s.clock.Now()
	session := &gatewaydomain.PaymentSession{
		ID:                   s.genID.Generate(),
		UserID:               req.UserID,
		Purpose:              req.Purpose,
		Amount:               req.Amount,
		Currency:             req.Currency,
		Provider:             strings.ToLower(strings.TrimSpace(req.Provider)),
		Status:               gatewaydomain.SessionPending,
		ServiceID:            req.ServiceID,
		PlanID:               req.PlanID,
		Period:               req.Period,
		Domain:               req.Domain,
		PromoCode:            req.PromoCode,
		IsAutoscalingEnabled: req.IsAutoscalingEnabled,
		ReturnURL:            req.ReturnURL,
		CreatedAt:            now,
		UpdatedAt:            now,
	}
	if err := s.repo.Insert(ctx, s.db, session); err != nil {
		return nil, err
	}

	checkout, err := adapter.CreateCheckout(ctx, session)
	if err != nil {
		if _, markErr := s.repo.UpdateStatus(ctx, s.db, session.ID, gatewaydomain.SessionPending, gatewaydomain.SessionFailed); markErr != nil {
			s.log.Error("mark session failed", zap.Error(markErr))
		}
		return nil, err
	}
	if err := s.repo.UpdateCheckout(ctx, s.db, session.ID, checkout.ExternalID, checkout.PaymentURL); err != nil {
		return nil, err
	}
	session.ExternalID = checkout.ExternalID
	session.PaymentURL = checkout.PaymentURL

	s.log.Info("payment session created",
		zap.String("session_id", session.ID.String()),
		zap.String("provider", session.Provider),
		zap.String("purpose", string(session.Purpose)),
		zap.Int64("amount", session.Amount),
	)
	return session, nil
}

func (s *Service) GetSession(ctx context.Context, id snowflake.ID) (*gatewaydomain.PaymentSession, error) {
	session, err := s.repo.FindByID(ctx, s.db, id)
	if err != nil {
		return nil, err
	}
	if session == nil {
		return nil, gatewaydomain.ErrSessionNotFound
	}
	return session, nil
}

func (s *Service) HandleCallback(ctx context.Context, provider, externalID string, payload []byte, headers http.Header) error {
	adapter, err := s.adapterFor(provider)
	if err != nil {
		return err
	}
	if err := adapter.VerifyCallback(ctx, payload, headers); err != nil {
		return err
	}

	session, err := s.repo.FindByExternalID(ctx, s.db, strings.ToLower(strings.TrimSpace(provider)), externalID)
	if err != nil {
		return err
	}
	if session == nil {
		return gatewaydomain.ErrSessionNotFound
	}
	return s.Confirm(ctx, session.ID)
}

func (s *Service) Confirm(ctx context.Context, sessionID snowflake.ID) error {
	session, err := s.GetSession(ctx, sessionID)
	if err != nil {
		return err
	}
	if session.Status != gatewaydomain.SessionPending {
		return gatewaydomain.ErrSessionNotPending
	}

	adapter, err := s.adapterFor(session.Provider)
	if err != nil {
		return err
	}

	confirm := func() error {
		paid, err := adapter.ConfirmPayment(ctx, session.ExternalID)
		if err != nil {
			return err
		}
		if !paid {
			return gatewaydomain.ErrPaymentNotSettled
		}
		return nil
	}
	err = backoff.Retry(confirm, backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewExponentialBackOff(), confirmPollRetries), ctx))
	if err != nil {
		return s.recordFailedAttempt(ctx, session, err)
	}

	// The status flip and the settlement effects commit together. A racing
	// or replayed confirm loses the guarded update and aborts before any
	// side effect; a crash rolls both back, leaving the session pending for
	// the next sweep.
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		swapped, err := s.repo.UpdateStatus(ctx, tx, session.ID, gatewaydomain.SessionPending, gatewaydomain.SessionConfirmed)
		if err != nil {
			return err
		}
		if !swapped {
			return gatewaydomain.ErrSessionNotPending
		}
		if s.handler == nil {
			return nil
		}
		return s.handler.OnSessionConfirmed(ctx, tx, session)
	})
	if err != nil {
		return err
	}
	s.log.Info("payment session confirmed",
		zap.String("session_id", session.ID.String()),
		zap.String("provider", session.Provider),
	)
	return nil
}

func (s *Service) ListPending(ctx context.Context, limit int) ([]gatewaydomain.PaymentSession, error) {
	return s.repo.ListByStatus(ctx, s.db, gatewaydomain.SessionPending, limit)
}

func (s *Service) recordFailedAttempt(ctx context.Context, session *gatewaydomain.PaymentSession, cause error) error {
	attempts, err := s.repo.IncrementAttempts(ctx, s.db, session.ID)
	if err != nil {
		return err
	}
	maxAttempts := s.policy.Get().Billing.ConfirmMaxAttempts
	if attempts >= maxAttempts {
		if _, err := s.repo.UpdateStatus(ctx, s.db, session.ID, gatewaydomain.SessionPending, gatewaydomain.SessionDeadLetter); err != nil {
			return err
		}
		s.log.Error("payment session dead-lettered",
			zap.String("session_id", session.ID.String()),
			zap.Int("attempts", attempts),
			zap.Error(cause),
		)
		return nil
	}
	s.log.Warn("payment confirmation attempt failed",
		zap.String("session_id", session.ID.String()),
		zap.Int("attempts", attempts),
		zap.Error(cause),
	)
	return cause
}

func (s *Service) adapterFor(provider string) (gatewaydomain.Adapter, error) {
	provider = strings.ToLower(strings.TrimSpace(provider))
	cfg := gatewaydomain.AdapterConfig{BaseURL: s.cfg.GatewayBaseURL}
	switch provider {
	case "stripe":
		cfg.APIKey = s.cfg.GatewayStripeKey
	case "p24":
		cfg.APIKey = s.cfg.GatewayP24Key
	case "paynow":
		cfg.APIKey = s.cfg.GatewayPayNowKey
	default:
		if !s.registry.ProviderExists(provider) {
			return nil, gatewaydomain.ErrProviderNotFound
		}
	}
	return s.registry.NewAdapter(provider, cfg)
}
