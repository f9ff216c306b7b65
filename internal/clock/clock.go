package clock

import (
	"time"

	"go.uber.org/fx"
)

// Clock abstracts time so schedulers and the autoscaling engine can be
// driven deterministically in tests.
type Clock interface {
	Now() time.Time
}

// Module provides the real clock.
var Module = fx.Module("clock",
	fx.Provide(NewSystemClock),
)

type SystemClock struct{}

func NewSystemClock() Clock {
	return SystemClock{}
}

func (SystemClock) Now() time.Time {
	return time.Now().UTC()
}
