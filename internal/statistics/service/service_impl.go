package service

import (
	"context"
	"errors"
	"sort"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/hostlify/hostlify/internal/clock"
	"github.com/hostlify/hostlify/internal/config"
	hostingdomain "github.com/hostlify/hostlify/internal/hosting/domain"
	meteringdomain "github.com/hostlify/hostlify/internal/metering/domain"
	statisticsdomain "github.com/hostlify/hostlify/internal/statistics/domain"
	walletdomain "github.com/hostlify/hostlify/internal/wallet/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const spendingMonths = 6

// Footprint estimate constants: one CPU core-hour at full load drawn as
// 12 Wh, the Polish grid mix around 0.65 kg CO2 per kWh, a tree binding
// roughly 21 kg CO2 a year.
const (
	kWhPerCoreHour  = 0.012
	carbonKgPerKWh  = 0.65
	carbonKgPerTree = 21.0
)

type Params struct {
	fx.In

	DB      *gorm.DB
	Log     *zap.Logger
	Clock   clock.Clock
	Policy  *config.PolicyHolder
	Repo    statisticsdomain.Repository
	Hosting hostingdomain.Service
	Meter   meteringdomain.Service
	Wallet  walletdomain.Service
}

type Service struct {
	db      *gorm.DB
	log     *zap.Logger
	clock   clock.Clock
	policy  *config.PolicyHolder
	repo    statisticsdomain.Repository
	hosting hostingdomain.Service
	meter   meteringdomain.Service
	wallet  walletdomain.Service
}

func NewService(p Params) statisticsdomain.Service {
	return &Service{
		db:      p.DB,
		log:     p.Log.Named("statistics.service"),
		clock:   p.Clock,
		policy:  p.Policy,
		repo:    p.Repo,
		hosting: p.Hosting,
		meter:   p.Meter,
		wallet:  p.Wallet,
	}
}

func (s *Service) Resources(ctx context.Context, userID snowflake.ID) (*statisticsdomain.ResourcesReport, error) {
	services, err := s.hosting.ListByUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	report := &statisticsdomain.ResourcesReport{
		Services: make([]statisticsdomain.ServiceResources, 0, len(services)),
	}
	for i := range services {
		details := services[i]
		snapshot, err := s.meter.Latest(ctx, details.Service.ID)
		if err != nil {
			return nil, err
		}
		report.Services = append(report.Services, statisticsdomain.ServiceResources{
			ServiceID:          details.Service.ID,
			Domain:             details.Service.Domain,
			Status:             string(details.Service.Status),
			RAMAllocated:       details.Account.CurrentRAM,
			RAMUsage:           snapshot.RAMUsage,
			CPUAllocated:       details.Account.CurrentCPU,
			CPUUsage:           snapshot.CPUUsage,
			StorageAllocated:   details.Account.CurrentStorage,
			StorageUsage:       snapshot.StorageUsage,
			BandwidthAllocated: details.Account.CurrentBandwidth,
			BandwidthUsage:     snapshot.BandwidthUsage,
			IsStale:            snapshot.IsStale,
		})
		report.TotalRAM += details.Account.CurrentRAM
		report.TotalCPU += details.Account.CurrentCPU
		report.TotalStorage += details.Account.CurrentStorage
	}
	return report, nil
}

func (s *Service) Spending(ctx context.Context, userID snowflake.ID) (*statisticsdomain.SpendingReport, error) {
	wallet, err := s.wallet.GetByUserID(ctx, userID)
	if err != nil {
		if errors.Is(err, walletdomain.ErrWalletNotFound) {
			return &statisticsdomain.SpendingReport{Months: []statisticsdomain.MonthSpending{}}, nil
		}
		return nil, err
	}

	now := s.clock.Now()
	since := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC).AddDate(0, -(spendingMonths - 1), 0)
	rows, err := s.repo.ListDebitsSince(ctx, s.db, wallet.ID, since)
	if err != nil {
		return nil, err
	}

	byMonth := make(map[string]*statisticsdomain.MonthSpending)
	report := &statisticsdomain.SpendingReport{}
	for _, row := range rows {
		month := row.CreatedAt.UTC().Format("2006-01")
		entry, ok := byMonth[month]
		if !ok {
			entry = &statisticsdomain.MonthSpending{Month: month, BySource: map[string]int64{}}
			byMonth[month] = entry
		}
		spent := -row.Amount
		entry.BySource[string(row.Source)] += spent
		entry.Total += spent
		report.Total += spent
	}

	months := make([]string, 0, len(byMonth))
	for month := range byMonth {
		months = append(months, month)
	}
	sort.Strings(months)
	report.Months = make([]statisticsdomain.MonthSpending, 0, len(months))
	for _, month := range months {
		report.Months = append(report.Months, *byMonth[month])
	}
	return report, nil
}

func (s *Service) Eco(ctx context.Context, userID snowflake.ID) (*statisticsdomain.EcoReport, error) {
	services, err := s.hosting.ListByUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	ids := make([]snowflake.ID, 0, len(services))
	for i := range services {
		ids = append(ids, services[i].Service.ID)
	}

	since := s.clock.Now().AddDate(0, -1, 0)
	stats, err := s.repo.CPUStatsSince(ctx, s.db, ids, since)
	if err != nil {
		return nil, err
	}

	// Each sample stands for one tick window of consumption at its
	// measured CPU percentage.
	window := s.policy.Get().Autoscaling.TickWindow
	coreHours := float64(stats.Samples) * window.Hours() * stats.AvgCPU / 100
	energy := coreHours * kWhPerCoreHour
	carbon := energy * carbonKgPerKWh
	return &statisticsdomain.EcoReport{
		CPUCoreHours:    coreHours,
		EnergyKWh:       energy,
		CarbonKg:        carbon,
		TreesEquivalent: carbon / carbonKgPerTree,
	}, nil
}
