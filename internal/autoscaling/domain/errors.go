package domain

import "errors"

var (
	// ErrEvaluationInFlight means another evaluation holds the per-service
	// lock. Callers skip the tick and retry on the next one.
	ErrEvaluationInFlight = errors.New("evaluation_in_flight")
)
