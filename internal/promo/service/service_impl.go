package service

import (
	"context"
	"fmt"

	"github.com/bwmarrin/snowflake"
	"github.com/hostlify/hostlify/internal/clock"
	promodomain "github.com/hostlify/hostlify/internal/promo/domain"
	walletdomain "github.com/hostlify/hostlify/internal/wallet/domain"
	"github.com/hostlify/hostlify/pkg/db"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB     *gorm.DB
	Log    *zap.Logger
	GenID  *snowflake.Node
	Clock  clock.Clock
	Repo   promodomain.Repository
	Wallet walletdomain.Service
}

type Service struct {
	db     *gorm.DB
	log    *zap.Logger
	genID  *snowflake.Node
	clock  clock.Clock
	repo   promodomain.Repository
	wallet walletdomain.Service
}

func NewService(p Params) promodomain.Service {
	return &Service{
		db:     p.DB,
		log:    p.Log.Named("promo.service"),
		genID:  p.GenID,
		clock:  p.Clock,
		repo:   p.Repo,
		wallet: p.Wallet,
	}
}

func (s *Service) Validate(ctx context.Context, userID snowflake.ID, code string, planID snowflake.ID, amount int64) (*promodomain.Validation, error) {
	promo, err := s.repo.FindByCode(ctx, s.db, code)
	if err != nil {
		return nil, err
	}
	if promo == nil || !promo.Active {
		return nil, promodomain.ErrInvalidPromoCode
	}
	if promo.ExpiresAt != nil && s.clock.Now().After(*promo.ExpiresAt) {
		return nil, promodomain.ErrPromoCodeExpired
	}
	if promo.MaxUses > 0 && promo.UsedCount >= promo.MaxUses {
		return nil, promodomain.ErrPromoCodeExhausted
	}
	if promo.PlanID != nil && planID != 0 && *promo.PlanID != planID {
		return nil, promodomain.ErrInvalidPromoCode
	}
	if promo.SingleUsePerUser {
		used, err := s.repo.HasRedemption(ctx, s.db, promo.ID, userID)
		if err != nil {
			return nil, err
		}
		if used {
			return nil, promodomain.ErrPromoCodeAlreadyUsed
		}
	}

	discount := discountFor(promo, amount)
	return &promodomain.Validation{
		Code:        promo,
		Discount:    discount,
		FinalAmount: amount - discount,
	}, nil
}

func (s *Service) Redeem(ctx context.Context, tx *gorm.DB, userID snowflake.ID, code *promodomain.PromoCode) error {
	if tx == nil {
		tx = s.db
	}
	bumped, err := s.repo.IncrementUsedCount(ctx, tx, code.ID)
	if err != nil {
		return err
	}
	if !bumped {
		return promodomain.ErrPromoCodeExhausted
	}
	if code.SingleUsePerUser {
		redemption := &promodomain.Redemption{
			ID:          s.genID.Generate(),
			PromoCodeID: code.ID,
			UserID:      userID,
			CreatedAt:   s.clock.Now(),
		}
		if err := s.repo.InsertRedemption(ctx, tx, redemption); err != nil {
			if db.IsDuplicateKeyErr(err) {
				return promodomain.ErrPromoCodeAlreadyUsed
			}
			return err
		}
	}
	s.log.Info("promo code redeemed",
		zap.String("code", code.Code),
		zap.String("user_id", userID.String()),
	)
	return nil
}

func (s *Service) ApplyToWallet(ctx context.Context, userID snowflake.ID, code string) (int64, error) {
	validation, err := s.Validate(ctx, userID, code, 0, 0)
	if err != nil {
		return 0, err
	}
	promo := validation.Code
	// Percentage codes need a purchase amount to discount; only flat codes
	// translate into a wallet top-up.
	if promo.DiscountType != promodomain.DiscountFlat {
		return 0, promodomain.ErrPromoCodeNotTopUp
	}

	wallet, err := s.wallet.GetByUserID(ctx, userID)
	if err != nil {
		return 0, err
	}

	// The redemption and the credit commit together. A multi-use code
	// credits on every application, so each application carries its own
	// reference; a failed credit rolls the consumed use back.
	reference := fmt.Sprintf("promo:%d:%d:%d", promo.ID, userID, s.genID.Generate())
	var txn *walletdomain.Transaction
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.Redeem(ctx, tx, userID, promo); err != nil {
			return err
		}
		var creditErr error
		txn, creditErr = s.wallet.CreditTx(ctx, tx, walletdomain.CreditRequest{
			WalletID:  wallet.ID,
			Amount:    promo.DiscountValue,
			Source:    walletdomain.SourcePromoCode,
			Reference: reference,
			Metadata:  map[string]any{"code": promo.Code},
		})
		return creditErr
	})
	if err != nil {
		return 0, err
	}
	return txn.Amount, nil
}

func discountFor(promo *promodomain.PromoCode, amount int64) int64 {
	var discount int64
	switch promo.DiscountType {
	case promodomain.DiscountPercentage:
		discount = amount * promo.DiscountValue / 100
	default:
		discount = promo.DiscountValue
	}
	if amount > 0 && discount > amount {
		discount = amount
	}
	return discount
}
