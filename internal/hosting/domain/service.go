package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	plandomain "github.com/hostlify/hostlify/internal/plan/domain"
	"gorm.io/gorm"
)

// ProvisionRequest creates a service plus its account at plan baseline.
// It is issued by billing settlement only, never by handlers directly.
type ProvisionRequest struct {
	UserID               snowflake.ID
	Plan                 plandomain.HostingPlan
	Domain               string
	Status               ServiceStatus
	StartDate            *time.Time
	EndDate              *time.Time
	IsAutoscalingEnabled bool
	IsAutoRenew          bool
	PaymentMethod        PaymentMethod
}

type Service interface {
	// Provision runs inside the caller's transaction when tx is non-nil.
	Provision(ctx context.Context, tx *gorm.DB, req ProvisionRequest) (*ServiceDetails, error)
	GetDetails(ctx context.Context, serviceID snowflake.ID) (*ServiceDetails, error)
	GetDetailsForUser(ctx context.Context, userID, serviceID snowflake.ID) (*ServiceDetails, error)
	ListByUser(ctx context.Context, userID snowflake.ID) ([]ServiceDetails, error)
	SetAutoscaling(ctx context.Context, userID, serviceID snowflake.ID, enabled bool) (*ServiceDetails, error)
	// Transition enforces the lifecycle state machine. Callers are billing
	// settlement, gateway confirmation and admin actions only.
	Transition(ctx context.Context, tx *gorm.DB, serviceID snowflake.ID, to ServiceStatus, reason TransitionReason) error
}

type Repository interface {
	InsertService(ctx context.Context, db *gorm.DB, svc *HostingService) error
	InsertAccount(ctx context.Context, db *gorm.DB, account *HostingAccount) error
	FindServiceByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*HostingService, error)
	FindAccountByServiceID(ctx context.Context, db *gorm.DB, serviceID snowflake.ID) (*HostingAccount, error)
	ListServicesByUser(ctx context.Context, db *gorm.DB, userID snowflake.ID) ([]HostingService, error)
	ListServiceIDsByStatus(ctx context.Context, db *gorm.DB, status ServiceStatus, limit int) ([]snowflake.ID, error)
	ListDueServices(ctx context.Context, db *gorm.DB, status ServiceStatus, dueBefore time.Time, limit int) ([]HostingService, error)
	UpdateServiceStatus(ctx context.Context, db *gorm.DB, id snowflake.ID, from, to ServiceStatus) (bool, error)
	UpdateServicePeriod(ctx context.Context, db *gorm.DB, id snowflake.ID, startDate, endDate time.Time) error
	UpdateAutoscalingEnabled(ctx context.Context, db *gorm.DB, id snowflake.ID, enabled bool) error
	// UpdateAccountAllocation commits a new RAM/CPU allocation and stamps
	// the matching scaled-at column.
	UpdateAccountAllocation(ctx context.Context, db *gorm.DB, serviceID snowflake.ID, ram, cpu int64, scaledUp bool, at time.Time) error
}
