package service

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"github.com/hostlify/hostlify/internal/clock"
	promodomain "github.com/hostlify/hostlify/internal/promo/domain"
	promorepo "github.com/hostlify/hostlify/internal/promo/repository"
	walletdomain "github.com/hostlify/hostlify/internal/wallet/domain"
	walletrepo "github.com/hostlify/hostlify/internal/wallet/repository"
	walletsvc "github.com/hostlify/hostlify/internal/wallet/service"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type fixture struct {
	db     *gorm.DB
	node   *snowflake.Node
	clock  *clock.FakeClock
	wallet walletdomain.Service
	svc    promodomain.Service
}

func setupPromo(t *testing.T) *fixture {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := db.AutoMigrate(
		&walletdomain.Wallet{}, &walletdomain.Transaction{},
		&promodomain.PromoCode{}, &promodomain.Redemption{},
	); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	node, err := snowflake.NewNode(1)
	if err != nil {
		t.Fatalf("snowflake node: %v", err)
	}
	fake := clock.NewFakeClock(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	log := zap.NewNop()

	walletService := walletsvc.NewService(walletsvc.Params{
		DB: db, Log: log, GenID: node, Repo: walletrepo.Provide(),
	})
	svc := NewService(Params{
		DB: db, Log: log, GenID: node, Clock: fake,
		Repo: promorepo.Provide(), Wallet: walletService,
	})
	return &fixture{db: db, node: node, clock: fake, wallet: walletService, svc: svc}
}

func (f *fixture) seedCode(t *testing.T, code promodomain.PromoCode) *promodomain.PromoCode {
	t.Helper()
	code.ID = f.node.Generate()
	code.CreatedAt = f.clock.Now()
	if err := promorepo.Provide().Insert(context.Background(), f.db, &code); err != nil {
		t.Fatalf("insert promo: %v", err)
	}
	return &code
}

func TestValidatePercentageDiscount(t *testing.T) {
	f := setupPromo(t)
	f.seedCode(t, promodomain.PromoCode{
		Code: "WELCOME10", DiscountType: promodomain.DiscountPercentage,
		DiscountValue: 10, SingleUsePerUser: true, Active: true,
	})

	validation, err := f.svc.Validate(context.Background(), f.node.Generate(), "WELCOME10", 0, 2_990)
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	if validation.Discount != 299 {
		t.Fatalf("discount = %d, want 299", validation.Discount)
	}
	if validation.FinalAmount != 2_691 {
		t.Fatalf("final = %d, want 2691", validation.FinalAmount)
	}
}

func TestValidateRejections(t *testing.T) {
	f := setupPromo(t)
	ctx := context.Background()
	userID := f.node.Generate()
	planA, planB := f.node.Generate(), f.node.Generate()

	expired := f.clock.Now().Add(-time.Hour)
	f.seedCode(t, promodomain.PromoCode{
		Code: "EXPIRED", DiscountType: promodomain.DiscountFlat,
		DiscountValue: 1_000, Active: true, ExpiresAt: &expired,
	})
	f.seedCode(t, promodomain.PromoCode{
		Code: "USEDUP", DiscountType: promodomain.DiscountFlat,
		DiscountValue: 1_000, Active: true, MaxUses: 3, UsedCount: 3,
	})
	f.seedCode(t, promodomain.PromoCode{
		Code: "PLANONLY", DiscountType: promodomain.DiscountFlat,
		DiscountValue: 1_000, Active: true, PlanID: &planA,
	})
	f.seedCode(t, promodomain.PromoCode{
		Code: "DISABLED", DiscountType: promodomain.DiscountFlat,
		DiscountValue: 1_000, Active: false,
	})

	cases := []struct {
		code   string
		planID snowflake.ID
		want   error
	}{
		{"MISSING", 0, promodomain.ErrInvalidPromoCode},
		{"EXPIRED", 0, promodomain.ErrPromoCodeExpired},
		{"USEDUP", 0, promodomain.ErrPromoCodeExhausted},
		{"PLANONLY", planB, promodomain.ErrInvalidPromoCode},
		{"DISABLED", 0, promodomain.ErrInvalidPromoCode},
	}
	for _, tc := range cases {
		if _, err := f.svc.Validate(ctx, userID, tc.code, tc.planID, 5_000); err != tc.want {
			t.Errorf("Validate(%s) = %v, want %v", tc.code, err, tc.want)
		}
	}

	if _, err := f.svc.Validate(ctx, userID, "PLANONLY", planA, 5_000); err != nil {
		t.Errorf("matching plan must validate: %v", err)
	}
}

func TestApplyToWalletSingleUse(t *testing.T) {
	f := setupPromo(t)
	ctx := context.Background()
	userID := f.node.Generate()
	if _, err := f.wallet.CreateForUser(ctx, userID, "PLN"); err != nil {
		t.Fatalf("create wallet: %v", err)
	}
	f.seedCode(t, promodomain.PromoCode{
		Code: "BONUS50", DiscountType: promodomain.DiscountFlat,
		DiscountValue: 5_000, SingleUsePerUser: true, Active: true,
	})

	credited, err := f.svc.ApplyToWallet(ctx, userID, "BONUS50")
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	if credited != 5_000 {
		t.Fatalf("credited = %d, want 5000", credited)
	}

	wallet, err := f.wallet.GetByUserID(ctx, userID)
	if err != nil {
		t.Fatalf("get wallet: %v", err)
	}
	if wallet.Balance != 5_000 {
		t.Fatalf("balance = %d, want 5000", wallet.Balance)
	}

	if _, err := f.svc.ApplyToWallet(ctx, userID, "BONUS50"); err != promodomain.ErrPromoCodeAlreadyUsed {
		t.Fatalf("second apply = %v, want ErrPromoCodeAlreadyUsed", err)
	}
	wallet, _ = f.wallet.GetByUserID(ctx, userID)
	if wallet.Balance != 5_000 {
		t.Fatalf("second apply changed balance: %d", wallet.Balance)
	}
}

func TestApplyToWalletMultiUseCreditsEachApplication(t *testing.T) {
	f := setupPromo(t)
	ctx := context.Background()
	userID := f.node.Generate()
	if _, err := f.wallet.CreateForUser(ctx, userID, "PLN"); err != nil {
		t.Fatalf("create wallet: %v", err)
	}
	f.seedCode(t, promodomain.PromoCode{
		Code: "RELOAD20", DiscountType: promodomain.DiscountFlat,
		DiscountValue: 2_000, MaxUses: 2, SingleUsePerUser: false, Active: true,
	})

	// Each application consumes a use and lands as its own credit.
	for i := 0; i < 2; i++ {
		credited, err := f.svc.ApplyToWallet(ctx, userID, "RELOAD20")
		if err != nil {
			t.Fatalf("apply %d: %v", i, err)
		}
		if credited != 2_000 {
			t.Fatalf("apply %d credited = %d, want 2000", i, credited)
		}
	}

	wallet, err := f.wallet.GetByUserID(ctx, userID)
	if err != nil {
		t.Fatalf("get wallet: %v", err)
	}
	if wallet.Balance != 4_000 {
		t.Fatalf("balance = %d, want 4000", wallet.Balance)
	}
	stored, err := promorepo.Provide().FindByCode(ctx, f.db, "RELOAD20")
	if err != nil {
		t.Fatalf("find code: %v", err)
	}
	if stored.UsedCount != 2 {
		t.Fatalf("used count = %d, want 2", stored.UsedCount)
	}

	if _, err := f.svc.ApplyToWallet(ctx, userID, "RELOAD20"); err != promodomain.ErrPromoCodeExhausted {
		t.Fatalf("third apply = %v, want ErrPromoCodeExhausted", err)
	}
}

func TestApplyToWalletRejectsPercentage(t *testing.T) {
	f := setupPromo(t)
	ctx := context.Background()
	userID := f.node.Generate()
	if _, err := f.wallet.CreateForUser(ctx, userID, "PLN"); err != nil {
		t.Fatalf("create wallet: %v", err)
	}
	f.seedCode(t, promodomain.PromoCode{
		Code: "WELCOME10", DiscountType: promodomain.DiscountPercentage,
		DiscountValue: 10, Active: true,
	})

	if _, err := f.svc.ApplyToWallet(ctx, userID, "WELCOME10"); err != promodomain.ErrPromoCodeNotTopUp {
		t.Fatalf("apply = %v, want ErrPromoCodeNotTopUp", err)
	}
}

func TestRedeemRespectsMaxUses(t *testing.T) {
	f := setupPromo(t)
	ctx := context.Background()
	code := f.seedCode(t, promodomain.PromoCode{
		Code: "LIMITED", DiscountType: promodomain.DiscountFlat,
		DiscountValue: 1_000, Active: true, MaxUses: 2, SingleUsePerUser: false,
	})

	for i := 0; i < 2; i++ {
		if err := f.svc.Redeem(ctx, nil, f.node.Generate(), code); err != nil {
			t.Fatalf("redeem %d: %v", i, err)
		}
	}
	if err := f.svc.Redeem(ctx, nil, f.node.Generate(), code); err != promodomain.ErrPromoCodeExhausted {
		t.Fatalf("third redeem = %v, want ErrPromoCodeExhausted", err)
	}
}
