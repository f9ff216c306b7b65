package service

import (
	"context"
	"strings"

	"github.com/bwmarrin/snowflake"
	walletdomain "github.com/hostlify/hostlify/internal/wallet/domain"
	"github.com/hostlify/hostlify/pkg/db"
	"github.com/hostlify/hostlify/pkg/db/pagination"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// casRetries bounds the optimistic-concurrency loop; each retry re-reads
// the balance, so a loser of a concurrent debit race is re-checked against
// fresh funds rather than stale ones.
const casRetries = 5

const defaultPageSize = 20

type Params struct {
	fx.In

	DB    *gorm.DB
	Log   *zap.Logger
	GenID *snowflake.Node
	Repo  walletdomain.Repository
}

type Service struct {
	db    *gorm.DB
	log   *zap.Logger
	genID *snowflake.Node
	repo  walletdomain.Repository
}

func NewService(p Params) walletdomain.Service {
	return &Service{
		db:    p.DB,
		log:   p.Log.Named("wallet.service"),
		genID: p.GenID,
		repo:  p.Repo,
	}
}

func (s *Service) CreateForUser(ctx context.Context, userID snowflake.ID, currency string) (*walletdomain.Wallet, error) {
	now := nowUTC()
	wallet := &walletdomain.Wallet{
		ID:        s.genID.Generate(),
		UserID:    userID,
		Balance:   0,
		Currency:  currency,
		Version:   0,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.repo.Insert(ctx, s.db, wallet); err != nil {
		if db.IsDuplicateKeyErr(err) {
			return s.GetByUserID(ctx, userID)
		}
		return nil, err
	}
	return wallet, nil
}

func (s *Service) GetByUserID(ctx context.Context, userID snowflake.ID) (*walletdomain.Wallet, error) {
	wallet, err := s.repo.FindByUserID(ctx, s.db, userID)
	if err != nil {
		return nil, err
	}
	if wallet == nil {
		return nil, walletdomain.ErrWalletNotFound
	}
	return wallet, nil
}

func (s *Service) GetByID(ctx context.Context, walletID snowflake.ID) (*walletdomain.Wallet, error) {
	wallet, err := s.repo.FindByID(ctx, s.db, walletID)
	if err != nil {
		return nil, err
	}
	if wallet == nil {
		return nil, walletdomain.ErrWalletNotFound
	}
	return wallet, nil
}

func (s *Service) Debit(ctx context.Context, req walletdomain.DebitRequest) (*walletdomain.Transaction, error) {
	if req.Amount <= 0 {
		return nil, walletdomain.ErrInvalidAmount
	}
	return s.apply(ctx, req.WalletID, -req.Amount, req.Source, req.Reference, req.Metadata)
}

func (s *Service) Credit(ctx context.Context, req walletdomain.CreditRequest) (*walletdomain.Transaction, error) {
	if req.Amount <= 0 {
		return nil, walletdomain.ErrInvalidAmount
	}
	return s.apply(ctx, req.WalletID, req.Amount, req.Source, req.Reference, req.Metadata)
}

func (s *Service) CreditTx(ctx context.Context, tx *gorm.DB, req walletdomain.CreditRequest) (*walletdomain.Transaction, error) {
	if tx == nil {
		return s.Credit(ctx, req)
	}
	if req.Amount <= 0 {
		return nil, walletdomain.ErrInvalidAmount
	}
	// The caller owns the transaction, so a version conflict cannot be
	// retried here; it aborts the whole unit and the caller runs again.
	txn, err := s.applyOnce(ctx, tx, req.WalletID, req.Amount, req.Source, req.Reference, req.Metadata)
	if err != nil {
		return txn, err
	}
	s.logApplied(req.WalletID, req.Amount, req.Source, req.Reference)
	return txn, nil
}

// apply is the retrying mutation path for wallet balances: each attempt
// runs applyOnce in its own database transaction and a version conflict
// re-reads the fresh balance.
func (s *Service) apply(
	ctx context.Context,
	walletID snowflake.ID,
	amount int64,
	source walletdomain.TransactionSource,
	reference string,
	metadata map[string]any,
) (*walletdomain.Transaction, error) {
	for attempt := 0; attempt < casRetries; attempt++ {
		var applied *walletdomain.Transaction
		err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			var err error
			applied, err = s.applyOnce(ctx, tx, walletID, amount, source, reference, metadata)
			return err
		})

		switch {
		case err == nil:
			s.logApplied(walletID, amount, source, reference)
			return applied, nil
		case err == errCASConflict:
			continue
		case err == walletdomain.ErrDuplicateReference:
			// applyOnce hands back the winning transaction.
			return applied, walletdomain.ErrDuplicateReference
		case db.IsDuplicateKeyErr(err):
			// Lost an insert race on the reference; surface the winner.
			prior, findErr := s.repo.FindTransactionByReference(ctx, s.db, walletID, strings.TrimSpace(reference))
			if findErr != nil {
				return nil, findErr
			}
			if prior != nil {
				return prior, walletdomain.ErrDuplicateReference
			}
			return nil, err
		default:
			return nil, err
		}
	}

	return nil, errCASExhausted
}

// applyOnce is the single atomic mutation step: it checks the idempotency
// reference, verifies funds, commits the new balance with a version
// compare-and-swap and writes the immutable transaction row, all on the
// handle it is given. On a duplicate reference it returns the existing
// transaction alongside ErrDuplicateReference.
func (s *Service) applyOnce(
	ctx context.Context,
	tx *gorm.DB,
	walletID snowflake.ID,
	amount int64,
	source walletdomain.TransactionSource,
	reference string,
	metadata map[string]any,
) (*walletdomain.Transaction, error) {
	if _, err := walletdomain.ParseTransactionSource(string(source)); err != nil {
		return nil, err
	}
	reference = strings.TrimSpace(reference)
	if reference == "" {
		return nil, walletdomain.ErrInvalidReference
	}

	wallet, err := s.repo.FindByID(ctx, tx, walletID)
	if err != nil {
		return nil, err
	}
	if wallet == nil {
		return nil, walletdomain.ErrWalletNotFound
	}

	prior, err := s.repo.FindTransactionByReference(ctx, tx, walletID, reference)
	if err != nil {
		return nil, err
	}
	if prior != nil {
		return prior, walletdomain.ErrDuplicateReference
	}

	newBalance := wallet.Balance + amount
	if newBalance < 0 {
		return nil, walletdomain.ErrInsufficientFunds
	}

	swapped, err := s.repo.UpdateBalanceCAS(ctx, tx, walletID, newBalance, wallet.Version)
	if err != nil {
		return nil, err
	}
	if !swapped {
		return nil, errCASConflict
	}

	txn := &walletdomain.Transaction{
		ID:           s.genID.Generate(),
		WalletID:     walletID,
		Amount:       amount,
		Source:       source,
		BalanceAfter: newBalance,
		Reference:    reference,
		Metadata:     metadata,
		CreatedAt:    nowUTC(),
	}
	if err := s.repo.InsertTransaction(ctx, tx, txn); err != nil {
		return nil, err
	}
	return txn, nil
}

func (s *Service) logApplied(walletID snowflake.ID, amount int64, source walletdomain.TransactionSource, reference string) {
	s.log.Info("wallet mutation applied",
		zap.String("wallet_id", walletID.String()),
		zap.Int64("amount", amount),
		zap.String("source", string(source)),
		zap.String("reference", reference),
	)
}

func (s *Service) ListTransactions(ctx context.Context, req walletdomain.ListTransactionsRequest) (walletdomain.ListTransactionsResponse, error) {
	limit := req.PageSize
	if limit <= 0 {
		limit = defaultPageSize
	}

	var afterID snowflake.ID
	if req.PageToken != "" {
		cursor, err := pagination.DecodeCursor(req.PageToken)
		if err != nil {
			return walletdomain.ListTransactionsResponse{}, err
		}
		parsed, err := snowflake.ParseString(cursor.ID)
		if err != nil {
			return walletdomain.ListTransactionsResponse{}, err
		}
		afterID = parsed
	}

	txns, err := s.repo.ListTransactions(ctx, s.db, req.WalletID, req.Source, afterID, limit+1)
	if err != nil {
		return walletdomain.ListTransactionsResponse{}, err
	}

	resp := walletdomain.ListTransactionsResponse{Transactions: txns}
	if len(txns) > limit {
		resp.Transactions = txns[:limit]
		resp.HasMore = true
		token, err := pagination.EncodeCursor(pagination.Cursor{
			ID: resp.Transactions[limit-1].ID.String(),
		})
		if err != nil {
			return walletdomain.ListTransactionsResponse{}, err
		}
		resp.NextPageToken = token
	}
	return resp, nil
}
