// Package domain contains billing settlement requests and the settlement
// service contract. Amounts are in grosz.
package domain

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	hostingdomain "github.com/hostlify/hostlify/internal/hosting/domain"
)

var (
	ErrPlanNotPurchasable = errors.New("plan_not_purchasable")
	ErrInvalidTopUpAmount = errors.New("invalid_top_up_amount")
)

type PurchaseRequest struct {
	UserID               snowflake.ID
	PlanID               snowflake.ID
	Domain               string
	Period               string
	PaymentMethod        string
	PromoCode            string
	IsAutoscalingEnabled bool
	IsAutoRenew          bool
	ReturnURL            string
}

// PurchaseResponse is either a provisioned service (wallet settlement) or
// a redirect to the provider's checkout page.
type PurchaseResponse struct {
	Service    *hostingdomain.ServiceDetails
	SessionID  snowflake.ID
	PaymentURL string
	Amount     int64
	Discount   int64
}

type RenewRequest struct {
	UserID        snowflake.ID
	ServiceID     snowflake.ID
	Period        string
	PaymentMethod string
	ReturnURL     string
}

type RenewResponse struct {
	Service    *hostingdomain.ServiceDetails
	SessionID  snowflake.ID
	PaymentURL string
	Amount     int64
}

type TopUpRequest struct {
	UserID    snowflake.ID
	Amount    int64
	Provider  string
	ReturnURL string
}

type TopUpResponse struct {
	SessionID  snowflake.ID
	PaymentURL string
}

type Service interface {
	Purchase(ctx context.Context, req PurchaseRequest) (*PurchaseResponse, error)
	Renew(ctx context.Context, req RenewRequest) (*RenewResponse, error)
	// TopUp opens a gateway checkout that credits the wallet on confirm.
	TopUp(ctx context.Context, req TopUpRequest) (*TopUpResponse, error)
	// RenewDueServices sweeps active services past end_date: auto-renew
	// from the wallet where enabled, suspension otherwise.
	RenewDueServices(ctx context.Context, limit int) (int, error)
	// ExpireServices moves services suspended past the grace period to
	// expired.
	ExpireServices(ctx context.Context, limit int) (int, error)
}
