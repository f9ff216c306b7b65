package service

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	walletdomain "github.com/hostlify/hostlify/internal/wallet/domain"
	"github.com/hostlify/hostlify/internal/wallet/repository"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func mustNode(t *testing.T) *snowflake.Node {
	t.Helper()
	node, err := snowflake.NewNode(1)
	if err != nil {
		t.Fatalf("snowflake node: %v", err)
	}
	return node
}

func setupWalletService(t *testing.T, node *snowflake.Node) (walletdomain.Service, *gorm.DB) {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := db.AutoMigrate(&walletdomain.Wallet{}, &walletdomain.Transaction{}); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	svc := NewService(Params{
		DB:    db,
		Log:   zap.NewNop(),
		GenID: node,
		Repo:  repository.Provide(),
	})
	return svc, db
}

func newWallet(t *testing.T, svc walletdomain.Service, node *snowflake.Node) *walletdomain.Wallet {
	t.Helper()
	wallet, err := svc.CreateForUser(context.Background(), node.Generate(), "PLN")
	if err != nil {
		t.Fatalf("create wallet: %v", err)
	}
	return wallet
}

func countTransactions(t *testing.T, db *gorm.DB, walletID snowflake.ID) int {
	t.Helper()
	var count int64
	if err := db.Raw(`SELECT COUNT(*) FROM wallet_transactions WHERE wallet_id = ?`, walletID).Scan(&count).Error; err != nil {
		t.Fatalf("count transactions: %v", err)
	}
	return int(count)
}

func TestLedgerRunningSum(t *testing.T) {
	node := mustNode(t)
	svc, _ := setupWalletService(t, node)
	wallet := newWallet(t, svc, node)
	ctx := context.Background()

	steps := []struct {
		credit bool
		amount int64
	}{
		{true, 10_000},
		{false, 2_500},
		{true, 500},
		{false, 7_000},
	}

	var running int64
	for i, step := range steps {
		var (
			txn *walletdomain.Transaction
			err error
		)
		ref := fmt.Sprintf("step-%d", i)
		if step.credit {
			txn, err = svc.Credit(ctx, walletdomain.CreditRequest{
				WalletID: wallet.ID, Amount: step.amount, Source: walletdomain.SourceDeposit, Reference: ref,
			})
			running += step.amount
		} else {
			txn, err = svc.Debit(ctx, walletdomain.DebitRequest{
				WalletID: wallet.ID, Amount: step.amount, Source: walletdomain.SourceHostingPurchase, Reference: ref,
			})
			running -= step.amount
		}
		if err != nil {
			t.Fatalf("step %d: %v", i, err)
		}
		if txn.BalanceAfter != running {
			t.Fatalf("step %d: balance_after = %d, want %d", i, txn.BalanceAfter, running)
		}
	}

	got, err := svc.GetByID(ctx, wallet.ID)
	if err != nil {
		t.Fatalf("get wallet: %v", err)
	}
	if got.Balance != running {
		t.Fatalf("final balance = %d, want %d", got.Balance, running)
	}
}

func TestDebitInsufficientFunds(t *testing.T) {
	node := mustNode(t)
	svc, db := setupWalletService(t, node)
	wallet := newWallet(t, svc, node)
	ctx := context.Background()

	if _, err := svc.Credit(ctx, walletdomain.CreditRequest{
		WalletID: wallet.ID, Amount: 10_000, Source: walletdomain.SourceDeposit, Reference: "topup",
	}); err != nil {
		t.Fatalf("credit: %v", err)
	}

	_, err := svc.Debit(ctx, walletdomain.DebitRequest{
		WalletID: wallet.ID, Amount: 12_000, Source: walletdomain.SourceAutoscaling, Reference: "too-big",
	})
	if err != walletdomain.ErrInsufficientFunds {
		t.Fatalf("expected ErrInsufficientFunds, got %v", err)
	}

	got, err := svc.GetByID(ctx, wallet.ID)
	if err != nil {
		t.Fatalf("get wallet: %v", err)
	}
	if got.Balance != 10_000 {
		t.Fatalf("balance changed on failed debit: %d", got.Balance)
	}
	if count := countTransactions(t, db, wallet.ID); count != 1 {
		t.Fatalf("expected 1 transaction, got %d", count)
	}
}

func TestDebitIdempotentReference(t *testing.T) {
	node := mustNode(t)
	svc, db := setupWalletService(t, node)
	wallet := newWallet(t, svc, node)
	ctx := context.Background()

	if _, err := svc.Credit(ctx, walletdomain.CreditRequest{
		WalletID: wallet.ID, Amount: 20_000, Source: walletdomain.SourceDeposit, Reference: "topup",
	}); err != nil {
		t.Fatalf("credit: %v", err)
	}

	first, err := svc.Debit(ctx, walletdomain.DebitRequest{
		WalletID: wallet.ID, Amount: 5_000, Source: walletdomain.SourceAutoscaling, Reference: "charge-1",
	})
	if err != nil {
		t.Fatalf("first debit: %v", err)
	}

	second, err := svc.Debit(ctx, walletdomain.DebitRequest{
		WalletID: wallet.ID, Amount: 5_000, Source: walletdomain.SourceAutoscaling, Reference: "charge-1",
	})
	if err != walletdomain.ErrDuplicateReference {
		t.Fatalf("expected ErrDuplicateReference, got %v", err)
	}
	if second == nil || second.ID != first.ID {
		t.Fatalf("expected the original transaction to be returned")
	}

	got, err := svc.GetByID(ctx, wallet.ID)
	if err != nil {
		t.Fatalf("get wallet: %v", err)
	}
	if got.Balance != 15_000 {
		t.Fatalf("retry double-charged: balance = %d", got.Balance)
	}
	if count := countTransactions(t, db, wallet.ID); count != 2 {
		t.Fatalf("expected 2 transactions, got %d", count)
	}
}

func TestCreditTxRollsBackWithCaller(t *testing.T) {
	node := mustNode(t)
	svc, db := setupWalletService(t, node)
	wallet := newWallet(t, svc, node)
	ctx := context.Background()

	abort := fmt.Errorf("caller aborted")
	err := db.Transaction(func(tx *gorm.DB) error {
		if _, err := svc.CreditTx(ctx, tx, walletdomain.CreditRequest{
			WalletID: wallet.ID, Amount: 5_000, Source: walletdomain.SourceDeposit, Reference: "joint-unit",
		}); err != nil {
			return err
		}
		return abort
	})
	if err != abort {
		t.Fatalf("transaction = %v, want the caller's abort", err)
	}

	got, err := svc.GetByID(ctx, wallet.ID)
	if err != nil {
		t.Fatalf("get wallet: %v", err)
	}
	if got.Balance != 0 {
		t.Fatalf("rolled-back credit changed balance: %d", got.Balance)
	}
	if count := countTransactions(t, db, wallet.ID); count != 0 {
		t.Fatalf("expected no transactions, got %d", count)
	}

	// The reference is free again once the unit rolled back; a nil tx
	// behaves like a plain credit.
	txn, err := svc.CreditTx(ctx, nil, walletdomain.CreditRequest{
		WalletID: wallet.ID, Amount: 5_000, Source: walletdomain.SourceDeposit, Reference: "joint-unit",
	})
	if err != nil {
		t.Fatalf("credit: %v", err)
	}
	if txn.BalanceAfter != 5_000 {
		t.Fatalf("balance_after = %d, want 5000", txn.BalanceAfter)
	}
}

func TestConcurrentDebitsSerialize(t *testing.T) {
	node := mustNode(t)
	svc, db := setupWalletService(t, node)
	wallet := newWallet(t, svc, node)
	ctx := context.Background()

	if _, err := svc.Credit(ctx, walletdomain.CreditRequest{
		WalletID: wallet.ID, Amount: 10_000, Source: walletdomain.SourceDeposit, Reference: "topup",
	}); err != nil {
		t.Fatalf("credit: %v", err)
	}

	// Only one of the two 70 PLN debits can be afforded from 100 PLN.
	var wg sync.WaitGroup
	results := make([]error, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := svc.Debit(ctx, walletdomain.DebitRequest{
				WalletID:  wallet.ID,
				Amount:    7_000,
				Source:    walletdomain.SourceAutoscaling,
				Reference: fmt.Sprintf("concurrent-%d", i),
			})
			results[i] = err
		}(i)
	}
	wg.Wait()

	succeeded := 0
	for _, err := range results {
		if err == nil {
			succeeded++
		} else if err != walletdomain.ErrInsufficientFunds {
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if succeeded != 1 {
		t.Fatalf("expected exactly one debit to succeed, got %d", succeeded)
	}

	got, err := svc.GetByID(ctx, wallet.ID)
	if err != nil {
		t.Fatalf("get wallet: %v", err)
	}
	if got.Balance != 3_000 {
		t.Fatalf("balance = %d, want 3000", got.Balance)
	}
	if count := countTransactions(t, db, wallet.ID); count != 2 {
		t.Fatalf("expected 2 transactions, got %d", count)
	}
}
