// Package domain contains the hosting plan catalog. Plans are immutable
// reference data; RAM, storage and bandwidth are in MB, CPU in percent of
// one core, prices in grosz.
package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

var ErrPlanNotFound = errors.New("plan_not_found")

// Period is the billing period of a purchase or renewal.
type Period string

const (
	PeriodMonthly Period = "monthly"
	PeriodYearly  Period = "yearly"
)

func ParsePeriod(raw string) (Period, error) {
	switch Period(raw) {
	case PeriodMonthly, PeriodYearly:
		return Period(raw), nil
	default:
		return "", errors.New("invalid_period")
	}
}

// Duration returns the calendar length of the period.
func (p Period) Duration(from time.Time) time.Time {
	if p == PeriodYearly {
		return from.AddDate(1, 0, 0)
	}
	return from.AddDate(0, 1, 0)
}

type HostingPlan struct {
	ID           snowflake.ID `gorm:"primaryKey" json:"id"`
	Code         string       `gorm:"type:text;not null;uniqueIndex" json:"code"`
	Name         string       `gorm:"type:text;not null" json:"name"`
	RAM          int64        `gorm:"column:ram;not null" json:"ram"`
	CPU          int64        `gorm:"column:cpu;not null" json:"cpu"`
	Storage      int64        `gorm:"not null" json:"storage"`
	Bandwidth    int64        `gorm:"not null" json:"bandwidth"`
	MaxRAM       int64        `gorm:"column:max_ram;not null" json:"max_ram"`
	MaxCPU       int64        `gorm:"column:max_cpu;not null" json:"max_cpu"`
	PriceMonthly int64        `gorm:"not null" json:"-"`
	PriceYearly  int64        `gorm:"not null" json:"-"`
	Active       bool         `gorm:"not null;default:true" json:"-"`
	CreatedAt    time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP" json:"-"`
}

// TableName sets the database table name.
func (HostingPlan) TableName() string { return "hosting_plans" }

// Price returns the plan price for the given period in grosz.
func (p HostingPlan) Price(period Period) int64 {
	if period == PeriodYearly {
		return p.PriceYearly
	}
	return p.PriceMonthly
}

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, plan *HostingPlan) error
	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*HostingPlan, error)
	FindByCode(ctx context.Context, db *gorm.DB, code string) (*HostingPlan, error)
	ListActive(ctx context.Context, db *gorm.DB) ([]HostingPlan, error)
}
