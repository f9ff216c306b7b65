package service

import (
	"context"
	"fmt"
	"math"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"github.com/hostlify/hostlify/internal/clock"
	"github.com/hostlify/hostlify/internal/config"
	hostingdomain "github.com/hostlify/hostlify/internal/hosting/domain"
	hostingrepo "github.com/hostlify/hostlify/internal/hosting/repository"
	hostingsvc "github.com/hostlify/hostlify/internal/hosting/service"
	meteringdomain "github.com/hostlify/hostlify/internal/metering/domain"
	"github.com/hostlify/hostlify/internal/metering/provider"
	meteringrepo "github.com/hostlify/hostlify/internal/metering/repository"
	meteringsvc "github.com/hostlify/hostlify/internal/metering/service"
	plandomain "github.com/hostlify/hostlify/internal/plan/domain"
	planrepo "github.com/hostlify/hostlify/internal/plan/repository"
	statisticsdomain "github.com/hostlify/hostlify/internal/statistics/domain"
	"github.com/hostlify/hostlify/internal/statistics/repository"
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
	wallet  walletdomain.Service
	hosting hostingdomain.Service
	meter   meteringdomain.Service
	stats   statisticsdomain.Service
	plan    *plandomain.HostingPlan
	userID  snowflake.ID
}

func setupStatistics(t *testing.T) *fixture {
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
	); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	node, err := snowflake.NewNode(1)
	if err != nil {
		t.Fatalf("snowflake node: %v", err)
	}
	fake := clock.NewFakeClock(time.Date(2026, 3, 15, 12, 0, 0, 0, time.UTC))
	log := zap.NewNop()
	holder := config.NewPolicyHolder(config.DefaultPolicy())
	ctx := context.Background()

	wallet := walletsvc.NewService(walletsvc.Params{
		DB: db, Log: log, GenID: node, Repo: walletrepo.Provide(),
	})
	hosting := hostingsvc.NewService(hostingsvc.Params{
		DB: db, Log: log, GenID: node, Clock: fake,
		Repo: hostingrepo.Provide(), PlanRepo: planrepo.Provide(),
	})
	static := provider.NewStatic()
	meter := meteringsvc.NewService(meteringsvc.Params{
		DB: db, Log: log, GenID: node, Clock: fake, Policy: holder,
		Repo: meteringrepo.Provide(), Provider: static,
	})
	stats := NewService(Params{
		DB: db, Log: log, Clock: fake, Policy: holder,
		Repo: repository.Provide(), Hosting: hosting, Meter: meter, Wallet: wallet,
	})

	plan := &plandomain.HostingPlan{
		ID: node.Generate(), Code: "standard", Name: "Standard",
		RAM: 1024, CPU: 50, Storage: 10_240, Bandwidth: 102_400,
		MaxRAM: 2048, MaxCPU: 100,
		PriceMonthly: 2_990, PriceYearly: 29_900, Active: true,
		CreatedAt: fake.Now(),
	}
	if err := planrepo.Provide().Insert(ctx, db, plan); err != nil {
		t.Fatalf("insert plan: %v", err)
	}

	return &fixture{
		db: db, node: node, clock: fake, static: static,
		wallet: wallet, hosting: hosting, meter: meter, stats: stats,
		plan: plan, userID: node.Generate(),
	}
}

func (f *fixture) provision(t *testing.T, domain string) *hostingdomain.ServiceDetails {
	t.Helper()
	start := f.clock.Now()
	end := start.AddDate(0, 1, 0)
	details, err := f.hosting.Provision(context.Background(), nil, hostingdomain.ProvisionRequest{
		UserID: f.userID, Plan: *f.plan, Domain: domain,
		Status: hostingdomain.StatusActive, PaymentMethod: hostingdomain.PaymentMethodWallet,
		StartDate: &start, EndDate: &end,
	})
	if err != nil {
		t.Fatalf("provision %s: %v", domain, err)
	}
	return details
}

// insertDebit backdates a spent ledger row so reports can span months.
func (f *fixture) insertDebit(t *testing.T, walletID snowflake.ID, amount int64, source walletdomain.TransactionSource, at time.Time) {
	t.Helper()
	err := f.db.Exec(
		`INSERT INTO wallet_transactions (id, wallet_id, amount, source, balance_after, reference, created_at)
		 VALUES (?, ?, ?, ?, 0, ?, ?)`,
		f.node.Generate(), walletID, -amount, source, f.node.Generate().String(), at,
	).Error
	if err != nil {
		t.Fatalf("insert debit: %v", err)
	}
}

func TestResourcesAggregatesServices(t *testing.T) {
	f := setupStatistics(t)
	ctx := context.Background()

	first := f.provision(t, "alpha.example.com")
	second := f.provision(t, "beta.example.com")

	f.static.Set(first.Service.ID, meteringdomain.Telemetry{RAMUsage: 700, CPUUsage: 42})
	if _, err := f.meter.Sample(ctx, first.Service.ID); err != nil {
		t.Fatalf("sample: %v", err)
	}

	report, err := f.stats.Resources(ctx, f.userID)
	if err != nil {
		t.Fatalf("resources: %v", err)
	}
	if len(report.Services) != 2 {
		t.Fatalf("services = %d, want 2", len(report.Services))
	}
	if report.TotalRAM != 2048 || report.TotalCPU != 100 {
		t.Fatalf("totals = ram %d cpu %d", report.TotalRAM, report.TotalCPU)
	}

	byID := map[snowflake.ID]statisticsdomain.ServiceResources{}
	for _, svc := range report.Services {
		byID[svc.ServiceID] = svc
	}
	sampled := byID[first.Service.ID]
	if sampled.RAMUsage != 700 || sampled.CPUUsage != 42 || sampled.IsStale {
		t.Fatalf("sampled service = %+v", sampled)
	}
	unsampled := byID[second.Service.ID]
	if unsampled.RAMUsage != 0 || !unsampled.IsStale {
		t.Fatalf("unsampled service = %+v", unsampled)
	}
	if sampled.RAMAllocated != 1024 || sampled.CPUAllocated != 50 {
		t.Fatalf("allocation = %+v", sampled)
	}
}

func TestResourcesEmptyForNewUser(t *testing.T) {
	f := setupStatistics(t)

	report, err := f.stats.Resources(context.Background(), f.node.Generate())
	if err != nil {
		t.Fatalf("resources: %v", err)
	}
	if len(report.Services) != 0 || report.TotalRAM != 0 {
		t.Fatalf("report = %+v", report)
	}
}

func TestSpendingGroupsByMonthAndSource(t *testing.T) {
	f := setupStatistics(t)
	ctx := context.Background()

	funds, err := f.wallet.CreateForUser(ctx, f.userID, "PLN")
	if err != nil {
		t.Fatalf("create wallet: %v", err)
	}

	now := f.clock.Now()
	f.insertDebit(t, funds.ID, 2_990, walletdomain.SourceHostingPurchase, now.AddDate(0, -1, 0))
	f.insertDebit(t, funds.ID, 500, walletdomain.SourceAutoscaling, now.AddDate(0, -1, 0))
	f.insertDebit(t, funds.ID, 2_990, walletdomain.SourceHostingPurchase, now)
	// Older than the report window, must not appear.
	f.insertDebit(t, funds.ID, 9_999, walletdomain.SourceHostingPurchase, now.AddDate(0, -7, 0))

	report, err := f.stats.Spending(ctx, f.userID)
	if err != nil {
		t.Fatalf("spending: %v", err)
	}
	if report.Total != 6_480 {
		t.Fatalf("total = %d, want 6480", report.Total)
	}
	if len(report.Months) != 2 {
		t.Fatalf("months = %+v", report.Months)
	}

	february := report.Months[0]
	if february.Month != "2026-02" || february.Total != 3_490 {
		t.Fatalf("february = %+v", february)
	}
	if february.BySource[string(walletdomain.SourceAutoscaling)] != 500 {
		t.Fatalf("february by source = %+v", february.BySource)
	}
	march := report.Months[1]
	if march.Month != "2026-03" || march.Total != 2_990 {
		t.Fatalf("march = %+v", march)
	}
}

func TestSpendingWithoutWallet(t *testing.T) {
	f := setupStatistics(t)

	report, err := f.stats.Spending(context.Background(), f.node.Generate())
	if err != nil {
		t.Fatalf("spending: %v", err)
	}
	if report.Total != 0 || len(report.Months) != 0 {
		t.Fatalf("report = %+v", report)
	}
}

func TestEcoEstimatesFromSamples(t *testing.T) {
	f := setupStatistics(t)
	ctx := context.Background()

	details := f.provision(t, "alpha.example.com")

	// Two readings averaging 50% CPU.
	f.static.Set(details.Service.ID, meteringdomain.Telemetry{CPUUsage: 40})
	if _, err := f.meter.Sample(ctx, details.Service.ID); err != nil {
		t.Fatalf("sample: %v", err)
	}
	f.clock.Advance(5 * time.Minute)
	f.static.Set(details.Service.ID, meteringdomain.Telemetry{CPUUsage: 60})
	if _, err := f.meter.Sample(ctx, details.Service.ID); err != nil {
		t.Fatalf("sample: %v", err)
	}

	report, err := f.stats.Eco(ctx, f.userID)
	if err != nil {
		t.Fatalf("eco: %v", err)
	}

	window := config.DefaultPolicy().Autoscaling.TickWindow
	wantCoreHours := 2 * window.Hours() * 0.5
	if math.Abs(report.CPUCoreHours-wantCoreHours) > 1e-9 {
		t.Fatalf("core hours = %f, want %f", report.CPUCoreHours, wantCoreHours)
	}
	if report.EnergyKWh <= 0 || report.CarbonKg <= 0 || report.TreesEquivalent <= 0 {
		t.Fatalf("report = %+v", report)
	}
	if report.CarbonKg >= report.EnergyKWh {
		t.Fatalf("carbon %f should be below energy %f at the fixed grid factor", report.CarbonKg, report.EnergyKWh)
	}
}

func TestEcoZeroWithoutServices(t *testing.T) {
	f := setupStatistics(t)

	report, err := f.stats.Eco(context.Background(), f.userID)
	if err != nil {
		t.Fatalf("eco: %v", err)
	}
	if report.CPUCoreHours != 0 || report.EnergyKWh != 0 {
		t.Fatalf("report = %+v", report)
	}
}
