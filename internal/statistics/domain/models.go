// Package domain contains read-side reporting models for the user panel.
package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	walletdomain "github.com/hostlify/hostlify/internal/wallet/domain"
	"gorm.io/gorm"
)

// ServiceResources pairs the current allocation of one service with its
// latest meter reading.
type ServiceResources struct {
	ServiceID          snowflake.ID `json:"service_id"`
	Domain             string       `json:"domain"`
	Status             string       `json:"status"`
	RAMAllocated       int64        `json:"ram_allocated"`
	RAMUsage           int64        `json:"ram_usage"`
	CPUAllocated       int64        `json:"cpu_allocated"`
	CPUUsage           int64        `json:"cpu_usage"`
	StorageAllocated   int64        `json:"storage_allocated"`
	StorageUsage       int64        `json:"storage_usage"`
	BandwidthAllocated int64        `json:"bandwidth_allocated"`
	BandwidthUsage     int64        `json:"bandwidth_usage"`
	IsStale            bool         `json:"is_stale"`
}

type ResourcesReport struct {
	Services     []ServiceResources `json:"services"`
	TotalRAM     int64              `json:"total_ram"`
	TotalCPU     int64              `json:"total_cpu"`
	TotalStorage int64              `json:"total_storage"`
}

// MonthSpending groups debits of one calendar month by source, amounts in
// grosz.
type MonthSpending struct {
	Month    string           `json:"month"`
	BySource map[string]int64 `json:"by_source"`
	Total    int64            `json:"total"`
}

type SpendingReport struct {
	Months []MonthSpending `json:"months"`
	Total  int64           `json:"total"`
}

// EcoReport estimates the footprint of the user's CPU consumption.
type EcoReport struct {
	CPUCoreHours    float64 `json:"cpu_core_hours"`
	EnergyKWh       float64 `json:"energy_kwh"`
	CarbonKg        float64 `json:"carbon_kg"`
	TreesEquivalent float64 `json:"trees_equivalent"`
}

type Service interface {
	Resources(ctx context.Context, userID snowflake.ID) (*ResourcesReport, error)
	// Spending covers the last six calendar months.
	Spending(ctx context.Context, userID snowflake.ID) (*SpendingReport, error)
	Eco(ctx context.Context, userID snowflake.ID) (*EcoReport, error)
}

// DebitRow is one spent transaction row for aggregation.
type DebitRow struct {
	Amount    int64
	Source    walletdomain.TransactionSource
	CreatedAt time.Time
}

// CPUUsageStats aggregates meter samples of a set of services.
type CPUUsageStats struct {
	Samples int64
	AvgCPU  float64
}

type Repository interface {
	ListDebitsSince(ctx context.Context, db *gorm.DB, walletID snowflake.ID, since time.Time) ([]DebitRow, error)
	CPUStatsSince(ctx context.Context, db *gorm.DB, serviceIDs []snowflake.ID, since time.Time) (CPUUsageStats, error)
}
