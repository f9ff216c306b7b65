package service

import (
	"errors"
	"time"
)

var (
	errCASConflict  = errors.New("wallet_version_conflict")
	errCASExhausted = errors.New("wallet_version_conflict_retries_exhausted")
)

func nowUTC() time.Time {
	return time.Now().UTC()
}
