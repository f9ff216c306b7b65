// Package domain contains promo code models and validation rules.
package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

var (
	ErrInvalidPromoCode     = errors.New("invalid_promo_code")
	ErrPromoCodeExpired     = errors.New("promo_code_expired")
	ErrPromoCodeExhausted   = errors.New("promo_code_exhausted")
	ErrPromoCodeAlreadyUsed = errors.New("promo_code_already_used")
	ErrPromoCodeNotTopUp    = errors.New("promo_code_not_top_up")
)

// DiscountType is how DiscountValue is interpreted: grosz for flat codes,
// whole percent for percentage codes.
type DiscountType string

const (
	DiscountFlat       DiscountType = "flat"
	DiscountPercentage DiscountType = "percentage"
)

type PromoCode struct {
	ID               snowflake.ID  `gorm:"primaryKey"`
	Code             string        `gorm:"type:text;not null;uniqueIndex"`
	DiscountType     DiscountType  `gorm:"type:text;not null"`
	DiscountValue    int64         `gorm:"not null"`
	PlanID           *snowflake.ID `gorm:"index"`
	MaxUses          int64         `gorm:"not null;default:0"`
	UsedCount        int64         `gorm:"not null;default:0"`
	SingleUsePerUser bool          `gorm:"not null;default:true"`
	ExpiresAt        *time.Time    `gorm:""`
	Active           bool          `gorm:"not null;default:true"`
	CreatedAt        time.Time     `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (PromoCode) TableName() string { return "promo_codes" }

type Redemption struct {
	ID          snowflake.ID `gorm:"primaryKey"`
	PromoCodeID snowflake.ID `gorm:"not null;uniqueIndex:ux_promo_redemptions_code_user"`
	UserID      snowflake.ID `gorm:"not null;uniqueIndex:ux_promo_redemptions_code_user"`
	CreatedAt   time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (Redemption) TableName() string { return "promo_code_redemptions" }

// Validation is the priced outcome of applying a code to an amount.
type Validation struct {
	Code        *PromoCode
	Discount    int64
	FinalAmount int64
}

type Service interface {
	// Validate prices the discount without consuming the code.
	Validate(ctx context.Context, userID snowflake.ID, code string, planID snowflake.ID, amount int64) (*Validation, error)
	// Redeem consumes one use inside the caller's transaction. The guarded
	// used_count bump keeps concurrent purchases under max_uses.
	Redeem(ctx context.Context, tx *gorm.DB, userID snowflake.ID, code *PromoCode) error
	// ApplyToWallet credits a flat code straight onto the user's wallet.
	ApplyToWallet(ctx context.Context, userID snowflake.ID, code string) (int64, error)
}

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, code *PromoCode) error
	FindByCode(ctx context.Context, db *gorm.DB, code string) (*PromoCode, error)
	// IncrementUsedCount returns false when the code is already at max_uses.
	IncrementUsedCount(ctx context.Context, db *gorm.DB, id snowflake.ID) (bool, error)
	InsertRedemption(ctx context.Context, db *gorm.DB, redemption *Redemption) error
	HasRedemption(ctx context.Context, db *gorm.DB, promoCodeID, userID snowflake.ID) (bool, error)
}
