package domain

// TransitionReason records who or what drove a lifecycle change.
type TransitionReason string

const (
	ReasonPaymentCaptured TransitionReason = "payment_captured"
	ReasonRenewal         TransitionReason = "renewal"
	ReasonBillingFailure  TransitionReason = "billing_failure"
	ReasonGraceExceeded   TransitionReason = "grace_exceeded"
	ReasonAdminAction     TransitionReason = "admin_action"
)

// validTransitions is the full lifecycle:
// pending -> active; active -> suspended|expired;
// suspended -> active|expired; expired -> active.
var validTransitions = map[ServiceStatus][]ServiceStatus{
	StatusPending:   {StatusActive},
	StatusActive:    {StatusSuspended, StatusExpired},
	StatusSuspended: {StatusActive, StatusExpired},
	StatusExpired:   {StatusActive},
}

// CanTransition reports whether the lifecycle permits from -> to.
func CanTransition(from, to ServiceStatus) bool {
	for _, allowed := range validTransitions[from] {
		if allowed == to {
			return true
		}
	}
	return false
}
