package domain

import "errors"

var (
	ErrServiceNotFound      = errors.New("service_not_found")
	ErrAccountNotFound      = errors.New("hosting_account_not_found")
	ErrInvalidStatus        = errors.New("invalid_service_status")
	ErrInvalidTransition    = errors.New("invalid_status_transition")
	ErrInvalidPaymentMethod = errors.New("invalid_payment_method")
	ErrInvalidDomain        = errors.New("invalid_domain")
	ErrPlanLimitExceeded    = errors.New("plan_limit_exceeded")
)
