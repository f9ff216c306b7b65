package engine

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	autoscalingdomain "github.com/hostlify/hostlify/internal/autoscaling/domain"
	autoscalingrepo "github.com/hostlify/hostlify/internal/autoscaling/repository"
	"github.com/hostlify/hostlify/internal/clock"
	"github.com/hostlify/hostlify/internal/config"
	hostingdomain "github.com/hostlify/hostlify/internal/hosting/domain"
	hostingrepo "github.com/hostlify/hostlify/internal/hosting/repository"
	meteringdomain "github.com/hostlify/hostlify/internal/metering/domain"
	"github.com/hostlify/hostlify/internal/metering/provider"
	meteringrepo "github.com/hostlify/hostlify/internal/metering/repository"
	meteringsvc "github.com/hostlify/hostlify/internal/metering/service"
	plandomain "github.com/hostlify/hostlify/internal/plan/domain"
	planrepo "github.com/hostlify/hostlify/internal/plan/repository"
	walletdomain "github.com/hostlify/hostlify/internal/wallet/domain"
	walletrepo "github.com/hostlify/hostlify/internal/wallet/repository"
	walletsvc "github.com/hostlify/hostlify/internal/wallet/service"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type fixture struct {
	db      *gorm.DB
	node    *snowflake.Node
	clock   *clock.FakeClock
	static  *provider.Static
	meter   meteringdomain.Service
	wallet  walletdomain.Service
	engine  autoscalingdomain.Engine
	plan    *plandomain.HostingPlan
	svc     *hostingdomain.HostingService
	account *hostingdomain.HostingAccount
	funds   *walletdomain.Wallet
}

// testPolicy keeps watermark defaults but fixes pricing so costs in the
// scenarios come out to round grosz amounts.
func testPolicy(ramPricePerGBMonth int64) config.Policy {
	p := config.DefaultPolicy()
	p.Autoscaling.RAMPricePerGBMonth = ramPricePerGBMonth
	p.Autoscaling.CPUPricePerPctMonth = 0
	return p
}

func setupEngine(t *testing.T, pol config.Policy) *fixture {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := db.AutoMigrate(
		&walletdomain.Wallet{}, &walletdomain.Transaction{},
		&plandomain.HostingPlan{},
		&hostingdomain.HostingService{}, &hostingdomain.HostingAccount{},
		&meteringdomain.UsageSample{},
		&autoscalingdomain.ScalingLog{},
	); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	node, err := snowflake.NewNode(1)
	if err != nil {
		t.Fatalf("snowflake node: %v", err)
	}
	fake := clock.NewFakeClock(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	holder := config.NewPolicyHolder(pol)
	static := provider.NewStatic()
	log := zap.NewNop()
	ctx := context.Background()

	walletService := walletsvc.NewService(walletsvc.Params{
		DB: db, Log: log, GenID: node, Repo: walletrepo.Provide(),
	})
	meterService := meteringsvc.NewService(meteringsvc.Params{
		DB: db, Log: log, GenID: node, Clock: fake, Policy: holder,
		Repo: meteringrepo.Provide(), Provider: static,
	})

	planRepo := planrepo.Provide()
	hostingRepo := hostingrepo.Provide()
	eng := NewEngine(Params{
		DB: db, Log: log, GenID: node, Clock: fake, Policy: holder,
		Repo:        autoscalingrepo.Provide(),
		HostingRepo: hostingRepo,
		PlanRepo:    planRepo,
		Meter:       meterService,
		Wallet:      walletService,
	})

	plan := &plandomain.HostingPlan{
		ID: node.Generate(), Code: "standard", Name: "Standard",
		RAM: 1024, CPU: 50, Storage: 10_240, Bandwidth: 102_400,
		MaxRAM: 2048, MaxCPU: 100,
		PriceMonthly: 2_990, PriceYearly: 29_900, Active: true,
		CreatedAt: fake.Now(),
	}
	if err := planRepo.Insert(ctx, db, plan); err != nil {
		t.Fatalf("insert plan: %v", err)
	}

	userID := node.Generate()
	funds, err := walletService.CreateForUser(ctx, userID, "PLN")
	if err != nil {
		t.Fatalf("create wallet: %v", err)
	}

	start := fake.Now()
	end := start.AddDate(0, 0, 30)
	svc := &hostingdomain.HostingService{
		ID: node.Generate(), UserID: userID, PlanID: plan.ID,
		Domain: "example.pl", Status: hostingdomain.StatusActive,
		StartDate: &start, EndDate: &end,
		IsAutoscalingEnabled: true, IsAutoRenew: true,
		PaymentMethod: hostingdomain.PaymentMethodWallet,
		CreatedAt:     start, UpdatedAt: start,
	}
	if err := hostingRepo.InsertService(ctx, db, svc); err != nil {
		t.Fatalf("insert service: %v", err)
	}
	account := &hostingdomain.HostingAccount{
		ID: node.Generate(), ServiceID: svc.ID,
		CurrentRAM: plan.RAM, CurrentCPU: plan.CPU,
		CurrentStorage: plan.Storage, CurrentBandwidth: plan.Bandwidth,
		UpdatedAt: start,
	}
	if err := hostingRepo.InsertAccount(ctx, db, account); err != nil {
		t.Fatalf("insert account: %v", err)
	}

	return &fixture{
		db: db, node: node, clock: fake, static: static,
		meter: meterService, wallet: walletService, engine: eng,
		plan: plan, svc: svc, account: account, funds: funds,
	}
}

func (f *fixture) topUp(t *testing.T, amount int64) {
	t.Helper()
	if _, err := f.wallet.Credit(context.Background(), walletdomain.CreditRequest{
		WalletID: f.funds.ID, Amount: amount,
		Source: walletdomain.SourceDeposit, Reference: "topup",
	}); err != nil {
		t.Fatalf("top up: %v", err)
	}
}

func (f *fixture) recordUsage(t *testing.T, ram, cpu int64) {
	t.Helper()
	f.static.Set(f.svc.ID, meteringdomain.Telemetry{RAMUsage: ram, CPUUsage: cpu})
	if _, err := f.meter.Sample(context.Background(), f.svc.ID); err != nil {
		t.Fatalf("sample: %v", err)
	}
}

func (f *fixture) currentAllocation(t *testing.T) (int64, int64) {
	t.Helper()
	account, err := hostingrepo.Provide().FindAccountByServiceID(context.Background(), f.db, f.svc.ID)
	if err != nil || account == nil {
		t.Fatalf("find account: %v", err)
	}
	return account.CurrentRAM, account.CurrentCPU
}

func (f *fixture) balance(t *testing.T) int64 {
	t.Helper()
	w, err := f.wallet.GetByID(context.Background(), f.funds.ID)
	if err != nil {
		t.Fatalf("get wallet: %v", err)
	}
	return w.Balance
}

func (f *fixture) countLogs(t *testing.T) int {
	t.Helper()
	var count int64
	if err := f.db.Raw(`SELECT COUNT(*) FROM scaling_logs WHERE service_id = ?`, f.svc.ID).Scan(&count).Error; err != nil {
		t.Fatalf("count logs: %v", err)
	}
	return int(count)
}

func TestScaleUpChargesWallet(t *testing.T) {
	// 512 MB step at 10000 grosz per GB-month over 30 remaining days
	// prices the upgrade at exactly 50 PLN.
	f := setupEngine(t, testPolicy(10_000))
	f.topUp(t, 20_000)
	f.recordUsage(t, 900, 20)

	decision, err := f.engine.Evaluate(context.Background(), f.svc.ID)
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if decision.Action != autoscalingdomain.ActionScaleUp {
		t.Fatalf("decision = %+v, want scale_up", decision)
	}
	if decision.Cost != 5_000 {
		t.Fatalf("cost = %d, want 5000", decision.Cost)
	}
	if decision.NewRAM != 1536 || decision.NewCPU != 50 {
		t.Fatalf("allocation = %d/%d, want 1536/50", decision.NewRAM, decision.NewCPU)
	}

	if ram, cpu := f.currentAllocation(t); ram != 1536 || cpu != 50 {
		t.Fatalf("account allocation = %d/%d, want 1536/50", ram, cpu)
	}
	if got := f.balance(t); got != 15_000 {
		t.Fatalf("balance = %d, want 15000", got)
	}
	if decision.Log == nil || decision.Log.PaymentStatus != autoscalingdomain.PaymentPaid {
		t.Fatalf("log = %+v, want paid", decision.Log)
	}
	if decision.Log.AppliedAt == nil {
		t.Fatal("paid log must be stamped applied")
	}
}

func TestScaleUpInsufficientFundsLeavesAllocation(t *testing.T) {
	// Cost comes out to 120 PLN against a 100 PLN balance.
	f := setupEngine(t, testPolicy(24_000))
	f.topUp(t, 10_000)
	f.recordUsage(t, 900, 20)

	decision, err := f.engine.Evaluate(context.Background(), f.svc.ID)
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if decision.Action != autoscalingdomain.ActionNone || decision.Reason != "insufficient_funds" {
		t.Fatalf("decision = %+v, want insufficient_funds skip", decision)
	}
	if decision.Cost != 12_000 {
		t.Fatalf("cost = %d, want 12000", decision.Cost)
	}

	if ram, cpu := f.currentAllocation(t); ram != 1024 || cpu != 50 {
		t.Fatalf("allocation changed on failed charge: %d/%d", ram, cpu)
	}
	if got := f.balance(t); got != 10_000 {
		t.Fatalf("balance changed on failed charge: %d", got)
	}
	if decision.Log == nil || decision.Log.PaymentStatus != autoscalingdomain.PaymentFailed {
		t.Fatalf("log = %+v, want failed", decision.Log)
	}
	if decision.Log.ScaledRAM != 0 || decision.Log.ScaledCPU != 0 {
		t.Fatalf("failed log must record zero delta, got %+v", decision.Log)
	}
}

func TestDoubleTickDebitsOnce(t *testing.T) {
	f := setupEngine(t, testPolicy(10_000))
	f.topUp(t, 50_000)
	f.recordUsage(t, 900, 20)
	ctx := context.Background()

	first, err := f.engine.Evaluate(ctx, f.svc.ID)
	if err != nil {
		t.Fatalf("first evaluate: %v", err)
	}
	if first.Action != autoscalingdomain.ActionScaleUp {
		t.Fatalf("first decision = %+v", first)
	}

	// Roll the allocation back to model a tick replayed before the
	// allocation commit landed. Same window, same usage, same proposal.
	if err := hostingrepo.Provide().UpdateAccountAllocation(ctx, f.db, f.svc.ID, 1024, 50, true, f.clock.Now()); err != nil {
		t.Fatalf("revert allocation: %v", err)
	}
	f.clock.Advance(time.Minute)

	second, err := f.engine.Evaluate(ctx, f.svc.ID)
	if err != nil {
		t.Fatalf("second evaluate: %v", err)
	}
	if second.Reason != autoscalingdomain.ReasonReplay {
		t.Fatalf("second decision = %+v, want replay", second)
	}
	if second.Log == nil || first.Log == nil || second.Log.ID != first.Log.ID {
		t.Fatal("replay must return the original log")
	}

	if got := f.balance(t); got != 45_000 {
		t.Fatalf("balance = %d, want one debit of 5000", got)
	}
	if f.countLogs(t) != 1 {
		t.Fatalf("expected 1 log, got %d", f.countLogs(t))
	}
}

func TestScaleUpClampedToPlanMax(t *testing.T) {
	f := setupEngine(t, testPolicy(10_000))
	f.topUp(t, 100_000)
	ctx := context.Background()

	// Push the account near the ceiling, then confirm the step clamps.
	if err := hostingrepo.Provide().UpdateAccountAllocation(ctx, f.db, f.svc.ID, 1792, 50, true, f.clock.Now()); err != nil {
		t.Fatalf("preset allocation: %v", err)
	}
	f.recordUsage(t, 1_700, 20)

	decision, err := f.engine.Evaluate(ctx, f.svc.ID)
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if decision.Action != autoscalingdomain.ActionScaleUp || decision.NewRAM != 2048 {
		t.Fatalf("decision = %+v, want clamp to 2048", decision)
	}

	// At the ceiling there is nothing left to propose.
	f.clock.Advance(10 * time.Minute)
	f.recordUsage(t, 2_000, 20)
	decision, err = f.engine.Evaluate(ctx, f.svc.ID)
	if err != nil {
		t.Fatalf("evaluate at max: %v", err)
	}
	if decision.Action != autoscalingdomain.ActionNone || decision.Reason != autoscalingdomain.ReasonAtPlanMax {
		t.Fatalf("decision = %+v, want at_plan_max", decision)
	}
}

func TestCooldownBlocksScaleDown(t *testing.T) {
	f := setupEngine(t, testPolicy(10_000))
	f.topUp(t, 50_000)
	f.recordUsage(t, 900, 20)
	ctx := context.Background()

	if _, err := f.engine.Evaluate(ctx, f.svc.ID); err != nil {
		t.Fatalf("scale up: %v", err)
	}

	// Idle shortly after scaling up: the cooldown must hold the floor.
	f.clock.Advance(10 * time.Minute)
	f.recordUsage(t, 100, 5)
	decision, err := f.engine.Evaluate(ctx, f.svc.ID)
	if err != nil {
		t.Fatalf("evaluate in cooldown: %v", err)
	}
	if decision.Reason != autoscalingdomain.ReasonCooldown {
		t.Fatalf("decision = %+v, want cooldown", decision)
	}

	f.clock.Advance(25 * time.Minute)
	f.recordUsage(t, 100, 5)
	decision, err = f.engine.Evaluate(ctx, f.svc.ID)
	if err != nil {
		t.Fatalf("evaluate after cooldown: %v", err)
	}
	if decision.Action != autoscalingdomain.ActionScaleDown {
		t.Fatalf("decision = %+v, want scale_down", decision)
	}
	if decision.NewRAM != 1024 {
		t.Fatalf("new ram = %d, want baseline 1024", decision.NewRAM)
	}
	if decision.Log.Cost != 0 || decision.Log.PaymentStatus != autoscalingdomain.PaymentPaid {
		t.Fatalf("scale-down must be free, log = %+v", decision.Log)
	}

	if got := f.balance(t); got != 45_000 {
		t.Fatalf("scale-down charged the wallet: balance = %d", got)
	}
}

func TestStaleMetricSkipsEvaluation(t *testing.T) {
	f := setupEngine(t, testPolicy(10_000))
	f.topUp(t, 50_000)

	// No sample recorded at all.
	decision, err := f.engine.Evaluate(context.Background(), f.svc.ID)
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if decision.Reason != autoscalingdomain.ReasonStaleMetric {
		t.Fatalf("decision = %+v, want stale_metric", decision)
	}
	if f.countLogs(t) != 0 {
		t.Fatal("stale skip must not log")
	}
}

func TestReconcileAppliesPaidLog(t *testing.T) {
	f := setupEngine(t, testPolicy(10_000))
	ctx := context.Background()

	// A paid log without applied_at models a crash between settlement and
	// allocation commit.
	orphan := &autoscalingdomain.ScalingLog{
		ID: f.node.Generate(), ServiceID: f.svc.ID,
		PreviousRAM: 1024, NewRAM: 1536, ScaledRAM: 512,
		PreviousCPU: 50, NewCPU: 50, ScaledCPU: 0,
		Cost: 5_000, PaymentStatus: autoscalingdomain.PaymentPaid,
		Reference: "autoscale:recovery", CreatedAt: f.clock.Now(),
	}
	if err := autoscalingrepo.Provide().Insert(ctx, f.db, orphan); err != nil {
		t.Fatalf("insert orphan log: %v", err)
	}

	applied, err := f.engine.Reconcile(ctx)
	if err != nil {
		t.Fatalf("reconcile: %v", err)
	}
	if applied != 1 {
		t.Fatalf("applied = %d, want 1", applied)
	}
	if ram, _ := f.currentAllocation(t); ram != 1536 {
		t.Fatalf("allocation = %d, want 1536", ram)
	}

	// Second run finds nothing left.
	applied, err = f.engine.Reconcile(ctx)
	if err != nil {
		t.Fatalf("second reconcile: %v", err)
	}
	if applied != 0 {
		t.Fatalf("second reconcile applied %d", applied)
	}
}

func TestEvaluationLockIsPerService(t *testing.T) {
	locks := newKeyedLock()
	a, b := snowflake.ID(1), snowflake.ID(2)

	if !locks.tryAcquire(a) {
		t.Fatal("first acquire must succeed")
	}
	if locks.tryAcquire(a) {
		t.Fatal("second acquire on the same key must fail")
	}
	if !locks.tryAcquire(b) {
		t.Fatal("other keys must stay independent")
	}
	locks.release(a)
	if !locks.tryAcquire(a) {
		t.Fatal("release must free the key")
	}
}
