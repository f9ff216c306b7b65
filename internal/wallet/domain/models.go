// Package domain contains persistence models for wallets and their ledger.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

// TransactionSource is a closed enum of ledger mutation origins.
type TransactionSource string

const (
	SourceDeposit         TransactionSource = "deposit"
	SourcePromoCode       TransactionSource = "promo_code"
	SourceReferral        TransactionSource = "referral"
	SourceHostingPurchase TransactionSource = "hosting_purchase"
	SourceAutoscaling     TransactionSource = "autoscaling"
	SourceWithdrawal      TransactionSource = "withdrawal"
)

// ParseTransactionSource validates a source string at the boundary.
// Unrecognized values are rejected rather than passed through.
func ParseTransactionSource(raw string) (TransactionSource, error) {
	switch TransactionSource(raw) {
	case SourceDeposit, SourcePromoCode, SourceReferral,
		SourceHostingPurchase, SourceAutoscaling, SourceWithdrawal:
		return TransactionSource(raw), nil
	default:
		return "", ErrInvalidSource
	}
}

// Wallet is a per-user prepaid balance. Balance is in grosz and never
// mutated outside the ledger service; Version backs the compare-and-swap
// commit.
type Wallet struct {
	ID        snowflake.ID `gorm:"primaryKey"`
	UserID    snowflake.ID `gorm:"not null;uniqueIndex"`
	Balance   int64        `gorm:"not null;default:0"`
	Currency  string       `gorm:"type:text;not null"`
	Version   int64        `gorm:"not null;default:0"`
	CreatedAt time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (Wallet) TableName() string { return "wallets" }

// Transaction is one immutable ledger row. BalanceAfter snapshots the
// wallet balance as of this mutation; Reference is the idempotency key,
// unique per wallet.
type Transaction struct {
	ID           snowflake.ID      `gorm:"primaryKey"`
	WalletID     snowflake.ID      `gorm:"not null;index;uniqueIndex:ux_wallet_transactions_wallet_reference,priority:1"`
	Amount       int64             `gorm:"not null"`
	Source       TransactionSource `gorm:"type:text;not null"`
	BalanceAfter int64             `gorm:"not null"`
	Reference    string            `gorm:"type:text;not null;uniqueIndex:ux_wallet_transactions_wallet_reference,priority:2"`
	Metadata     datatypes.JSONMap `gorm:"type:jsonb"`
	CreatedAt    time.Time         `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (Transaction) TableName() string { return "wallet_transactions" }
