// Package domain contains scaling decision and audit log models.
package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/hostlify/hostlify/pkg/db/pagination"
	"gorm.io/gorm"
)

// PaymentStatus records how the scale-up charge settled.
type PaymentStatus string

const (
	PaymentPaid    PaymentStatus = "paid"
	PaymentPending PaymentStatus = "pending"
	PaymentFailed  PaymentStatus = "failed"
)

// ScalingLog is the audit row for one evaluation that produced an action.
// scaled_ram/scaled_cpu hold the applied delta; a failed charge keeps them
// at zero and leaves the allocation untouched.
type ScalingLog struct {
	ID            snowflake.ID  `gorm:"primaryKey" json:"id"`
	ServiceID     snowflake.ID  `gorm:"not null;index" json:"service_id"`
	PreviousRAM   int64         `gorm:"column:previous_ram;not null" json:"previous_ram"`
	NewRAM        int64         `gorm:"column:new_ram;not null" json:"new_ram"`
	ScaledRAM     int64         `gorm:"column:scaled_ram;not null" json:"scaled_ram"`
	PreviousCPU   int64         `gorm:"column:previous_cpu;not null" json:"previous_cpu"`
	NewCPU        int64         `gorm:"column:new_cpu;not null" json:"new_cpu"`
	ScaledCPU     int64         `gorm:"column:scaled_cpu;not null" json:"scaled_cpu"`
	Cost          int64         `gorm:"not null" json:"-"`
	PaymentStatus PaymentStatus `gorm:"type:text;not null" json:"payment_status"`
	Reference     string        `gorm:"type:text;not null;uniqueIndex" json:"-"`
	AppliedAt     *time.Time    `gorm:"" json:"-"`
	CreatedAt     time.Time     `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
}

// TableName sets the database table name.
func (ScalingLog) TableName() string { return "scaling_logs" }

// Action is what an evaluation decided to do.
type Action string

const (
	ActionNone      Action = "none"
	ActionScaleUp   Action = "scale_up"
	ActionScaleDown Action = "scale_down"
)

// Skip reasons for ActionNone decisions.
const (
	ReasonDisabled         = "autoscaling_disabled"
	ReasonNotActive        = "service_not_active"
	ReasonStaleMetric      = "stale_metric"
	ReasonWithinWatermarks = "within_watermarks"
	ReasonAtPlanMax        = "at_plan_max"
	ReasonAtBaseline       = "at_baseline"
	ReasonCooldown         = "cooldown"
	ReasonReplay           = "replay"
)

// Decision is the outcome of one evaluation tick for one service.
type Decision struct {
	ServiceID   snowflake.ID
	Action      Action
	Reason      string
	PreviousRAM int64
	PreviousCPU int64
	NewRAM      int64
	NewCPU      int64
	Cost        int64
	Log         *ScalingLog
}

type ListLogsRequest struct {
	ServiceID snowflake.ID
	PageToken string
	PageSize  int
}

type ListLogsResponse struct {
	pagination.PageInfo
	Logs []ScalingLog `json:"logs"`
}

// Engine evaluates one service at a time against the scaling policy.
type Engine interface {
	// Evaluate runs a single decision tick. At most one evaluation per
	// service may be in flight; concurrent calls get ErrEvaluationInFlight.
	Evaluate(ctx context.Context, serviceID snowflake.ID) (*Decision, error)
	ListLogs(ctx context.Context, req ListLogsRequest) (ListLogsResponse, error)
	// Reconcile re-applies paid logs whose allocation change never landed.
	Reconcile(ctx context.Context) (int, error)
}

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, log *ScalingLog) error
	FindByReference(ctx context.Context, db *gorm.DB, reference string) (*ScalingLog, error)
	ListByService(ctx context.Context, db *gorm.DB, serviceID snowflake.ID, afterID snowflake.ID, limit int) ([]ScalingLog, error)
	ListPaidUnapplied(ctx context.Context, db *gorm.DB, limit int) ([]ScalingLog, error)
	MarkApplied(ctx context.Context, db *gorm.DB, id snowflake.ID, at time.Time) error
}
