package provider

import (
	"context"
	"sync"

	"github.com/bwmarrin/snowflake"
	meteringdomain "github.com/hostlify/hostlify/internal/metering/domain"
)

// Static serves fixed readings per service. Used in tests and when wiring
// the engine against recorded fixtures.
type Static struct {
	mu       sync.RWMutex
	readings map[snowflake.ID]meteringdomain.Telemetry
	err      error
}

func NewStatic() *Static {
	return &Static{readings: make(map[snowflake.ID]meteringdomain.Telemetry)}
}

func (s *Static) Set(serviceID snowflake.ID, t meteringdomain.Telemetry) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.readings[serviceID] = t
}

func (s *Static) Fail(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.err = err
}

func (s *Static) Read(_ context.Context, serviceID snowflake.ID) (meteringdomain.Telemetry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.err != nil {
		return meteringdomain.Telemetry{}, s.err
	}
	return s.readings[serviceID], nil
}
