package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
)

type Collector struct {
	reg *prometheus.Registry

	LiveTrains prometheus.Gauge
	Stations   prometheus.Gauge

	Ticks        prometheus.Counter
	IdleTicks    prometheus.Counter // no active service period
	TripsSkipped prometheus.Counter

	NATSPublished prometheus.Counter
	NATSConnected prometheus.Gauge
	RedisWrites   prometheus.Counter

	SinkErrors *prometheus.CounterVec // sink label: nats|redis|snapshot

	TickDuration    prometheus.Histogram
	PublishDuration prometheus.Histogram

	SpeedMultiplier prometheus.Gauge
	TickInterval    prometheus.Gauge // seconds
}

func NewCollector(speedMultiplier float64, tickInterval time.Duration) *Collector {
	reg := prometheus.NewRegistry()

	c := &Collector{
		reg: reg,
		LiveTrains: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "simulator_live_trains",
			Help: "Number of trains positioned in the last tick.",
		}),
		Stations: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "simulator_stations",
			Help: "Number of aligned stations.",
		}),
		Ticks: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "simulator_ticks_total",
			Help: "Total simulation ticks computed.",
		}),
		IdleTicks: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "simulator_idle_ticks_total",
			Help: "Ticks that found no active service period.",
		}),
		TripsSkipped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "simulator_trips_skipped_total",
			Help: "Trips dropped from a tick because locating them failed.",
		}),
		NATSPublished: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "simulator_nats_published_total",
			Help: "Total NATS messages published.",
		}),
		NATSConnected: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "simulator_nats_connected",
			Help: "1 if NATS connection is established, 0 otherwise.",
		}),
		RedisWrites: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "simulator_redis_snapshots_total",
			Help: "Total snapshots written to Redis.",
		}),
		SinkErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "simulator_sink_errors_total",
			Help: "Render sink publish errors.",
		}, []string{"sink"}),
		TickDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "simulator_tick_duration_seconds",
			Help:    "Duration of simulation tick computations.",
			Buckets: prometheus.ExponentialBuckets(0.0001, 2, 15),
		}),
		PublishDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "simulator_publish_duration_seconds",
			Help:    "Duration to hand one tick to every sink.",
			Buckets: prometheus.ExponentialBuckets(0.0005, 2, 15),
		}),
		SpeedMultiplier: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "simulator_speed_multiplier",
			Help: "Current speed multiplier.",
		}),
		TickInterval: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "simulator_tick_interval_seconds",
			Help: "Tick interval in seconds.",
		}),
	}

	reg.MustRegister(
		c.LiveTrains, c.Stations,
		c.Ticks, c.IdleTicks, c.TripsSkipped,
		c.NATSPublished, c.NATSConnected, c.RedisWrites,
		c.SinkErrors, c.TickDuration, c.PublishDuration,
		c.SpeedMultiplier, c.TickInterval,
	)

	c.SpeedMultiplier.Set(speedMultiplier)
	c.TickInterval.Set(tickInterval.Seconds())

	return c
}

func (c *Collector) Handler() http.Handler { return promhttp.HandlerFor(c.reg, promhttp.HandlerOpts{}) }

// Serve starts an HTTP server exposing /metrics on the given address.
func (c *Collector) Serve(addr string) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", c.Handler())
	srv := &http.Server{Addr: addr, Handler: mux}
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("metrics server error")
		}
	}()
	log.Info().Str("addr", addr).Msg("metrics listening")
	return srv
}
