package domain

import "errors"

var (
	ErrWalletNotFound    = errors.New("wallet_not_found")
	ErrInsufficientFunds = errors.New("insufficient_funds")
	// ErrDuplicateReference is returned together with the previously
	// applied transaction; callers treat it as an idempotent no-op.
	ErrDuplicateReference = errors.New("duplicate_reference")
	ErrInvalidAmount      = errors.New("invalid_amount")
	ErrInvalidSource      = errors.New("invalid_transaction_source")
	ErrInvalidReference   = errors.New("invalid_reference")
)
