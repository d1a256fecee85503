package sim

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"metro-simulator/internal/metrics"
)

type fixedClock time.Time

func (c fixedClock) Now() time.Time { return time.Time(c) }

type recordingSink struct {
	mu   sync.Mutex
	got  []TickResult
	fail bool
}

func (s *recordingSink) Publish(_ context.Context, res TickResult) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.got = append(s.got, res)
	if s.fail {
		return errors.New("sink down")
	}
	return nil
}

func (s *recordingSink) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.got)
}

func TestRunnerStep(t *testing.T) {
	e, err := NewEngine(engineNetwork(), engineOptions())
	require.NoError(t, err)
	sink := &recordingSink{fail: true}
	m := metrics.NewCollector(1, time.Second)

	r := NewRunner(e, fixedClock(at(375)), sink, time.Second, m)
	res := r.Step(context.Background())

	assert.Len(t, res.Trains, 1)
	assert.Equal(t, 1, sink.count())
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Ticks))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.LiveTrains))
	assert.Zero(t, testutil.ToFloat64(m.IdleTicks))

	r = NewRunner(e, fixedClock(at(9000)), nil, time.Second, m)
	r.Step(context.Background())
	assert.Equal(t, 1.0, testutil.ToFloat64(m.IdleTicks))
}

func TestRunnerCountsSkippedTrips(t *testing.T) {
	n, opts := redNetwork()
	e, err := NewEngine(n, opts)
	require.NoError(t, err)
	sink := &recordingSink{}
	m := metrics.NewCollector(1, time.Second)

	r := NewRunner(e, fixedClock(at(375)), sink, time.Second, m)
	res := r.Step(context.Background())
	assert.Len(t, res.Trains, 1)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.TripsSkipped))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.LiveTrains))

	r.Step(context.Background())
	assert.Equal(t, 2.0, testutil.ToFloat64(m.TripsSkipped))
	assert.Equal(t, 2, sink.count())
}

func TestRunnerStartStop(t *testing.T) {
	e, err := NewEngine(engineNetwork(), engineOptions())
	require.NoError(t, err)
	sink := &recordingSink{}

	r := NewRunner(e, fixedClock(at(375)), sink, 5*time.Millisecond, nil)
	r.Start(context.Background())
	r.Start(context.Background())

	require.Eventually(t, func() bool { return sink.count() >= 3 }, time.Second, time.Millisecond)
	r.Stop()

	n := sink.count()
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, n, sink.count())

	r.Stop()
}

func TestRunnerStopsWithContext(t *testing.T) {
	e, err := NewEngine(engineNetwork(), engineOptions())
	require.NoError(t, err)
	sink := &recordingSink{}
	ctx, cancel := context.WithCancel(context.Background())

	r := NewRunner(e, fixedClock(at(375)), sink, 5*time.Millisecond, nil)
	r.Start(ctx)
	require.Eventually(t, func() bool { return sink.count() >= 1 }, time.Second, time.Millisecond)
	cancel()
	r.Stop()
}
