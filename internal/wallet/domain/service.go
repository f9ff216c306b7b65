package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"github.com/hostlify/hostlify/pkg/db/pagination"
	"gorm.io/gorm"
)

// DebitRequest removes funds from a wallet. Reference is required and
// deduplicates retries of the same logical charge.
type DebitRequest struct {
	WalletID  snowflake.ID
	Amount    int64
	Source    TransactionSource
	Reference string
	Metadata  map[string]any
}

type CreditRequest struct {
	WalletID  snowflake.ID
	Amount    int64
	Source    TransactionSource
	Reference string
	Metadata  map[string]any
}

type ListTransactionsRequest struct {
	WalletID  snowflake.ID
	Source    TransactionSource
	PageToken string
	PageSize  int
}

type ListTransactionsResponse struct {
	pagination.PageInfo
	Transactions []Transaction `json:"transactions"`
}

// Service is the only writer of wallet balances. All mutations are atomic
// and linearized per wallet via compare-and-swap on Wallet.Version.
type Service interface {
	CreateForUser(ctx context.Context, userID snowflake.ID, currency string) (*Wallet, error)
	GetByUserID(ctx context.Context, userID snowflake.ID) (*Wallet, error)
	GetByID(ctx context.Context, walletID snowflake.ID) (*Wallet, error)
	Debit(ctx context.Context, req DebitRequest) (*Transaction, error)
	Credit(ctx context.Context, req CreditRequest) (*Transaction, error)
	// CreditTx applies a credit inside the caller's transaction, so the
	// credit commits or rolls back together with the caller's own writes.
	// A nil tx behaves like Credit.
	CreditTx(ctx context.Context, tx *gorm.DB, req CreditRequest) (*Transaction, error)
	ListTransactions(ctx context.Context, req ListTransactionsRequest) (ListTransactionsResponse, error)
}

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, wallet *Wallet) error
	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Wallet, error)
	FindByUserID(ctx context.Context, db *gorm.DB, userID snowflake.ID) (*Wallet, error)
	// UpdateBalanceCAS applies the new balance only when the stored version
	// still matches; returns false when another writer won the race.
	UpdateBalanceCAS(ctx context.Context, db *gorm.DB, id snowflake.ID, newBalance, expectedVersion int64) (bool, error)
	InsertTransaction(ctx context.Context, db *gorm.DB, txn *Transaction) error
	FindTransactionByReference(ctx context.Context, db *gorm.DB, walletID snowflake.ID, reference string) (*Transaction, error)
	ListTransactions(ctx context.Context, db *gorm.DB, walletID snowflake.ID, source TransactionSource, afterID snowflake.ID, limit int) ([]Transaction, error)
	SumTransactions(ctx context.Context, db *gorm.DB, walletID snowflake.ID) (int64, error)
}
