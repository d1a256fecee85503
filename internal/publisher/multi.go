package publisher

import (
	"context"
	"fmt"

	"github.com/sourcegraph/conc/pool"

	"metro-simulator/internal/metrics"
	"metro-simulator/internal/sim"
)

// Multi hands each tick to every registered sink concurrently and waits for
// all of them. One failing sink does not stop the others.
type Multi struct {
	names   []string
	sinks   []sim.Sink
	metrics *metrics.Collector
}

func NewMulti(m *metrics.Collector) *Multi {
	return &Multi{metrics: m}
}

func (m *Multi) Add(name string, s sim.Sink) {
	m.names = append(m.names, name)
	m.sinks = append(m.sinks, s)
}

func (m *Multi) Len() int { return len(m.sinks) }

func (m *Multi) Publish(ctx context.Context, res sim.TickResult) error {
	p := pool.New().WithErrors().WithContext(ctx)
	for i, s := range m.sinks {
		s := s
		name := m.names[i]
		p.Go(func(ctx context.Context) error {
			if err := s.Publish(ctx, res); err != nil {
				if m.metrics != nil {
					m.metrics.SinkErrors.WithLabelValues(name).Inc()
				}
				return fmt.Errorf("%s: %w", name, err)
			}
			return nil
		})
	}
	return p.Wait()
}
