package sim

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	mmetrics "metro-simulator/internal/metrics"
)

// Sink receives every computed tick. Implementations own any presentation
// state such as the mapping from trip IDs to rendered markers.
type Sink interface {
	Publish(ctx context.Context, res TickResult) error
}

// Runner calls Engine.Tick on a fixed interval and hands each result to the
// sink. Ticks never overlap; a slow sink delays the next tick.
type Runner struct {
	engine   *Engine
	clock    Clock
	sink     Sink
	interval time.Duration
	metrics  *mmetrics.Collector

	mu     sync.Mutex
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewRunner(engine *Engine, clock Clock, sink Sink, interval time.Duration, metrics *mmetrics.Collector) *Runner {
	if interval <= 0 {
		interval = time.Second
	}
	return &Runner{
		engine:   engine,
		clock:    clock,
		sink:     sink,
		interval: interval,
		metrics:  metrics,
	}
}

// Start launches the tick loop. Calling Start on a running Runner is a no-op.
func (r *Runner) Start(parent context.Context) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.cancel != nil {
		return
	}
	ctx, cancel := context.WithCancel(parent)
	r.cancel = cancel
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		r.Step(ctx)
		ticker := time.NewTicker(r.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				r.Step(ctx)
			}
		}
	}()
	log.Info().Dur("interval", r.interval).Msg("simulation started")
}

// Stop prevents further ticks and waits for the one in progress to finish.
func (r *Runner) Stop() {
	r.mu.Lock()
	cancel := r.cancel
	r.cancel = nil
	r.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	r.wg.Wait()
	log.Info().Msg("simulation stopped")
}

// Step computes and publishes a single tick.
func (r *Runner) Step(ctx context.Context) TickResult {
	tickStart := time.Now()
	res := r.engine.Tick(r.clock.Now())
	if r.metrics != nil {
		r.metrics.TickDuration.Observe(time.Since(tickStart).Seconds())
		r.metrics.Ticks.Inc()
		r.metrics.LiveTrains.Set(float64(len(res.Trains)))
		r.metrics.TripsSkipped.Add(float64(res.Skipped))
		if res.Period == "" {
			r.metrics.IdleTicks.Inc()
		}
	}
	if r.sink == nil {
		return res
	}

	pubStart := time.Now()
	if err := r.sink.Publish(ctx, res); err != nil {
		log.Error().Err(err).Time("at", res.At).Msg("publish tick")
	}
	if r.metrics != nil {
		r.metrics.PublishDuration.Observe(time.Since(pubStart).Seconds())
	}
	return res
}
