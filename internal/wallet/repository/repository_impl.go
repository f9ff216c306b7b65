package repository

import (
	"context"

	"github.com/bwmarrin/snowflake"
	walletdomain "github.com/hostlify/hostlify/internal/wallet/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() walletdomain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, w *walletdomain.Wallet) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO wallets (id, user_id, balance, currency, version, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		w.ID,
		w.UserID,
		w.Balance,
		w.Currency,
		w.Version,
		w.CreatedAt,
		w.UpdatedAt,
	).Error
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*walletdomain.Wallet, error) {
	var wallet walletdomain.Wallet
	err := db.WithContext(ctx).Raw(
		`SELECT id, user_id, balance, currency, version, created_at, updated_at
		 FROM wallets WHERE id = ?`,
		id,
	).Scan(&wallet).Error
	if err != nil {
		return nil, err
	}
	if wallet.ID == 0 {
		return nil, nil
	}
	return &wallet, nil
}

func (r *repo) FindByUserID(ctx context.Context, db *gorm.DB, userID snowflake.ID) (*walletdomain.Wallet, error) {
	var wallet walletdomain.Wallet
	err := db.WithContext(ctx).Raw(
		`SELECT id, user_id, balance, currency, version, created_at, updated_at
		 FROM wallets WHERE user_id = ?`,
		userID,
	).Scan(&wallet).Error
	if err != nil {
		return nil, err
	}
	if wallet.ID == 0 {
		return nil, nil
	}
	return &wallet, nil
}

func (r *repo) UpdateBalanceCAS(ctx context.Context, db *gorm.DB, id snowflake.ID, newBalance, expectedVersion int64) (bool, error) {
	result := db.WithContext(ctx).Exec(
		`UPDATE wallets
		 SET balance = ?, version = version + 1, updated_at = CURRENT_TIMESTAMP
		 WHERE id = ? AND version = ?`,
		newBalance,
		id,
		expectedVersion,
	)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

func (r *repo) InsertTransaction(ctx context.Context, db *gorm.DB, txn *walletdomain.Transaction) error {
	return db.WithContext(ctx).Create(txn).Error
}

func (r *repo) FindTransactionByReference(ctx context.Context, db *gorm.DB, walletID snowflake.ID, reference string) (*walletdomain.Transaction, error) {
	var txn walletdomain.Transaction
	err := db.WithContext(ctx).Raw(
		`SELECT id, wallet_id, amount, source, balance_after, reference, metadata, created_at
		 FROM wallet_transactions WHERE wallet_id = ? AND reference = ?`,
		walletID,
		reference,
	).Scan(&txn).Error
	if err != nil {
		return nil, err
	}
	if txn.ID == 0 {
		return nil, nil
	}
	return &txn, nil
}

func (r *repo) ListTransactions(ctx context.Context, db *gorm.DB, walletID snowflake.ID, source walletdomain.TransactionSource, afterID snowflake.ID, limit int) ([]walletdomain.Transaction, error) {
	query := `SELECT id, wallet_id, amount, source, balance_after, reference, metadata, created_at
		 FROM wallet_transactions WHERE wallet_id = ?`
	args := []any{walletID}

	if source != "" {
		query += ` AND source = ?`
		args = append(args, source)
	}
	if afterID != 0 {
		query += ` AND id < ?`
		args = append(args, afterID)
	}
	query += ` ORDER BY id DESC LIMIT ?`
	args = append(args, limit)

	var txns []walletdomain.Transaction
	if err := db.WithContext(ctx).Raw(query, args...).Scan(&txns).Error; err != nil {
		return nil, err
	}
	return txns, nil
}

func (r *repo) SumTransactions(ctx context.Context, db *gorm.DB, walletID snowflake.ID) (int64, error) {
	var sum int64
	err := db.WithContext(ctx).Raw(
		`SELECT COALESCE(SUM(amount), 0) FROM wallet_transactions WHERE wallet_id = ?`,
		walletID,
	).Scan(&sum).Error
	return sum, err
}
