// Package domain contains external payment gateway models. Sessions track
// a redirect to a hosted checkout page until the provider confirms.
package domain

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

var (
	ErrProviderNotFound      = errors.New("provider_not_found")
	ErrInvalidConfig         = errors.New("invalid_adapter_config")
	ErrInvalidSignature      = errors.New("invalid_signature")
	ErrSessionNotFound       = errors.New("session_not_found")
	ErrSessionNotPending     = errors.New("session_not_pending")
	ErrPaymentGatewayFailure = errors.New("payment_gateway_failure")
	ErrPaymentNotSettled     = errors.New("payment_not_settled")
)

type SessionPurpose string

const (
	PurposeWalletTopUp SessionPurpose = "wallet_topup"
	PurposePurchase    SessionPurpose = "purchase"
	PurposeRenewal     SessionPurpose = "renewal"
)

type SessionStatus string

const (
	SessionPending    SessionStatus = "pending"
	SessionConfirmed  SessionStatus = "confirmed"
	SessionFailed     SessionStatus = "failed"
	SessionDeadLetter SessionStatus = "dead_letter"
)

// PaymentSession carries enough purchase context to finish the order when
// the provider callback arrives, without trusting anything in the callback
// beyond the session identity.
type PaymentSession struct {
	ID                   snowflake.ID   `gorm:"primaryKey"`
	UserID               snowflake.ID   `gorm:"not null;index"`
	Purpose              SessionPurpose `gorm:"type:text;not null"`
	Amount               int64          `gorm:"not null"`
	Currency             string         `gorm:"type:text;not null"`
	Provider             string         `gorm:"type:text;not null"`
	Status               SessionStatus  `gorm:"type:text;not null"`
	Attempts             int            `gorm:"not null;default:0"`
	ServiceID            *snowflake.ID  `gorm:"index"`
	PlanID               *snowflake.ID  `gorm:""`
	Period               string         `gorm:"type:text"`
	Domain               string         `gorm:"type:text"`
	PromoCode            string         `gorm:"type:text"`
	IsAutoscalingEnabled bool           `gorm:"not null;default:false"`
	ReturnURL            string         `gorm:"type:text"`
	ExternalID           string         `gorm:"type:text;index"`
	PaymentURL           string         `gorm:"type:text"`
	CreatedAt            time.Time      `gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt            time.Time      `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (PaymentSession) TableName() string { return "payment_sessions" }

// Checkout is what an adapter returns when the hosted page is created.
type Checkout struct {
	ExternalID string
	PaymentURL string
}

// Adapter talks to one external payment provider.
type Adapter interface {
	CreateCheckout(ctx context.Context, session *PaymentSession) (*Checkout, error)
	// VerifyCallback authenticates a provider webhook before any state moves.
	VerifyCallback(ctx context.Context, payload []byte, headers http.Header) error
	// ConfirmPayment polls the provider for the final charge state.
	ConfirmPayment(ctx context.Context, externalID string) (bool, error)
}

type AdapterConfig struct {
	APIKey  string
	BaseURL string
}

type AdapterFactory interface {
	Provider() string
	NewAdapter(cfg AdapterConfig) (Adapter, error)
}

// SettlementHandler finishes the business side of a confirmed session.
// Billing implements it; the gateway only drives the session state machine.
// The handler runs inside the transaction that flips the session from
// pending to confirmed, so its effects commit or roll back with the flip.
// A nil tx settles outside any enclosing transaction.
type SettlementHandler interface {
	OnSessionConfirmed(ctx context.Context, tx *gorm.DB, session *PaymentSession) error
}

type CreateSessionRequest struct {
	UserID               snowflake.ID
	Purpose              SessionPurpose
	Amount               int64
	Currency             string
	Provider             string
	ServiceID            *snowflake.ID
	PlanID               *snowflake.ID
	Period               string
	Domain               string
	PromoCode            string
	IsAutoscalingEnabled bool
	ReturnURL            string
}

type Service interface {
	CreateSession(ctx context.Context, req CreateSessionRequest) (*PaymentSession, error)
	GetSession(ctx context.Context, id snowflake.ID) (*PaymentSession, error)
	// HandleCallback verifies the webhook and settles the session.
	HandleCallback(ctx context.Context, provider, externalID string, payload []byte, headers http.Header) error
	// Confirm retries provider confirmation with backoff; sessions that
	// exhaust their attempts move to dead_letter for manual handling.
	Confirm(ctx context.Context, sessionID snowflake.ID) error
	ListPending(ctx context.Context, limit int) ([]PaymentSession, error)
}

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, session *PaymentSession) error
	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*PaymentSession, error)
	FindByExternalID(ctx context.Context, db *gorm.DB, provider, externalID string) (*PaymentSession, error)
	UpdateCheckout(ctx context.Context, db *gorm.DB, id snowflake.ID, externalID, paymentURL string) error
	// UpdateStatus is guarded by the current status.
	UpdateStatus(ctx context.Context, db *gorm.DB, id snowflake.ID, from, to SessionStatus) (bool, error)
	// UpdateServiceID links the session to the service it provisioned.
	UpdateServiceID(ctx context.Context, db *gorm.DB, id, serviceID snowflake.ID) error
	IncrementAttempts(ctx context.Context, db *gorm.DB, id snowflake.ID) (int, error)
	ListByStatus(ctx context.Context, db *gorm.DB, status SessionStatus, limit int) ([]PaymentSession, error)
}
