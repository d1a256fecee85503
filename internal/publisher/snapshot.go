package publisher

import (
	"context"
	"sync/atomic"

	"metro-simulator/internal/sim"
)

// Snapshot keeps the most recent tick in memory for the HTTP API.
type Snapshot struct {
	latest atomic.Pointer[sim.TickResult]
}

func NewSnapshot() *Snapshot { return &Snapshot{} }

func (s *Snapshot) Publish(_ context.Context, res sim.TickResult) error {
	s.latest.Store(&res)
	return nil
}

// Latest returns the last published tick, or false before the first one.
func (s *Snapshot) Latest() (sim.TickResult, bool) {
	p := s.latest.Load()
	if p == nil {
		return sim.TickResult{}, false
	}
	return *p, true
}
