// Package domain contains hosting service and account persistence models
// plus the service lifecycle state machine.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	plandomain "github.com/hostlify/hostlify/internal/plan/domain"
)

// ServiceStatus is the closed lifecycle enum of a hosting service.
type ServiceStatus string

const (
	StatusPending   ServiceStatus = "pending"
	StatusActive    ServiceStatus = "active"
	StatusSuspended ServiceStatus = "suspended"
	StatusExpired   ServiceStatus = "expired"
)

func ParseServiceStatus(raw string) (ServiceStatus, error) {
	switch ServiceStatus(raw) {
	case StatusPending, StatusActive, StatusSuspended, StatusExpired:
		return ServiceStatus(raw), nil
	default:
		return "", ErrInvalidStatus
	}
}

// PaymentMethod selects how charges for this service are settled.
type PaymentMethod string

const (
	PaymentMethodWallet PaymentMethod = "wallet"
	PaymentMethodStripe PaymentMethod = "stripe"
	PaymentMethodP24    PaymentMethod = "p24"
	PaymentMethodPayNow PaymentMethod = "paynow"
)

func ParsePaymentMethod(raw string) (PaymentMethod, error) {
	switch PaymentMethod(raw) {
	case PaymentMethodWallet, PaymentMethodStripe, PaymentMethodP24, PaymentMethodPayNow:
		return PaymentMethod(raw), nil
	default:
		return "", ErrInvalidPaymentMethod
	}
}

type HostingService struct {
	ID                   snowflake.ID  `gorm:"primaryKey"`
	UserID               snowflake.ID  `gorm:"not null;index"`
	PlanID               snowflake.ID  `gorm:"not null;index"`
	Domain               string        `gorm:"type:text;not null"`
	Status               ServiceStatus `gorm:"type:text;not null"`
	StartDate            *time.Time    `gorm:""`
	EndDate              *time.Time    `gorm:""`
	IsAutoscalingEnabled bool          `gorm:"not null;default:false"`
	IsAutoRenew          bool          `gorm:"not null;default:false"`
	PaymentMethod        PaymentMethod `gorm:"type:text;not null"`
	CreatedAt            time.Time     `gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt            time.Time     `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (HostingService) TableName() string { return "hosting_services" }

// HostingAccount holds the live allocation of a service. The autoscaling
// engine moves current_* within [plan baseline, plan max]; nothing else
// writes these columns.
type HostingAccount struct {
	ID               snowflake.ID `gorm:"primaryKey"`
	ServiceID        snowflake.ID `gorm:"not null;uniqueIndex"`
	CurrentRAM       int64        `gorm:"column:current_ram;not null"`
	CurrentCPU       int64        `gorm:"column:current_cpu;not null"`
	CurrentStorage   int64        `gorm:"not null"`
	CurrentBandwidth int64        `gorm:"not null"`
	LastScaledUpAt   *time.Time   `gorm:""`
	LastScaledDownAt *time.Time   `gorm:""`
	UpdatedAt        time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (HostingAccount) TableName() string { return "hosting_accounts" }

// ValidateAllocation rejects RAM/CPU targets outside [plan baseline,
// plan max].
func ValidateAllocation(plan plandomain.HostingPlan, ram, cpu int64) error {
	if ram < plan.RAM || ram > plan.MaxRAM {
		return ErrPlanLimitExceeded
	}
	if cpu < plan.CPU || cpu > plan.MaxCPU {
		return ErrPlanLimitExceeded
	}
	return nil
}

// ServiceDetails bundles a service with its plan and account for read paths.
type ServiceDetails struct {
	Service HostingService
	Plan    plandomain.HostingPlan
	Account HostingAccount
}
