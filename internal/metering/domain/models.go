// Package domain contains usage sampling models. RAM, storage and
// bandwidth are in MB, CPU in percent.
package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

var ErrStaleMetric = errors.New("stale_metric")

// UsageSample is one persisted meter reading for a service.
type UsageSample struct {
	ID             snowflake.ID `gorm:"primaryKey"`
	ServiceID      snowflake.ID `gorm:"not null;index"`
	RAMUsage       int64        `gorm:"column:ram_usage;not null"`
	CPUUsage       int64        `gorm:"column:cpu_usage;not null"`
	StorageUsage   int64        `gorm:"not null"`
	BandwidthUsage int64        `gorm:"not null"`
	SampledAt      time.Time    `gorm:"not null"`
}

// TableName sets the database table name.
func (UsageSample) TableName() string { return "usage_samples" }

// UsageSnapshot is the read-side view. A missing or old sample surfaces as
// IsStale rather than an error so read paths and the engine can decide.
type UsageSnapshot struct {
	ServiceID      snowflake.ID `json:"-"`
	RAMUsage       int64        `json:"ram_usage"`
	CPUUsage       int64        `json:"cpu_usage"`
	StorageUsage   int64        `json:"storage_usage"`
	BandwidthUsage int64        `json:"bandwidth_usage"`
	SampledAt      time.Time    `json:"sampled_at"`
	IsStale        bool         `json:"is_stale"`
}

// Telemetry is a raw reading from the hosting infrastructure.
type Telemetry struct {
	RAMUsage       int64
	CPUUsage       int64
	StorageUsage   int64
	BandwidthUsage int64
}

// TelemetryProvider reads live consumption for a service from the actual
// hosting infrastructure. Implementations must be side-effect free.
type TelemetryProvider interface {
	Read(ctx context.Context, serviceID snowflake.ID) (Telemetry, error)
}

type Service interface {
	// Sample reads telemetry and persists a usage row.
	Sample(ctx context.Context, serviceID snowflake.ID) (*UsageSnapshot, error)
	// Latest returns the last-known snapshot; zero values flagged stale
	// when no sample exists.
	Latest(ctx context.Context, serviceID snowflake.ID) (UsageSnapshot, error)
}

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, sample *UsageSample) error
	FindLatest(ctx context.Context, db *gorm.DB, serviceID snowflake.ID) (*UsageSample, error)
	DeleteOlderThan(ctx context.Context, db *gorm.DB, cutoff time.Time) (int64, error)
}
