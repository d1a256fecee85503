package publisher

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"metro-simulator/internal/metrics"
	"metro-simulator/internal/sim"
	"metro-simulator/internal/transit"
)

// RedisSink keeps the latest frame in Redis:
//
//	<prefix>:trains    hash trip id -> train JSON
//	<prefix>:stations  hash station id -> station JSON
//	<prefix>:tick      JSON summary of the last tick
//
// Each tick is written in one MULTI/EXEC so readers never see half a frame.
type RedisSink struct {
	rdb      *redis.Client
	prefix   string
	registry *Registry
	metrics  *metrics.Collector
}

type redisTrain struct {
	transit.TrainPosition
	Handle Handle `json:"handle"`
}

func NewRedisSink(ctx context.Context, opts *redis.Options, prefix string, m *metrics.Collector) (*RedisSink, error) {
	rdb := redis.NewClient(opts)
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("redis ping %s: %w", opts.Addr, err)
	}
	return NewRedisSinkClient(rdb, prefix, m), nil
}

func NewRedisSinkClient(rdb *redis.Client, prefix string, m *metrics.Collector) *RedisSink {
	if prefix == "" {
		prefix = "metro"
	}
	return &RedisSink{rdb: rdb, prefix: prefix, registry: NewRegistry(), metrics: m}
}

func (s *RedisSink) TrainsKey() string   { return s.prefix + ":trains" }
func (s *RedisSink) StationsKey() string { return s.prefix + ":stations" }
func (s *RedisSink) TickKey() string     { return s.prefix + ":tick" }

func (s *RedisSink) Close() error { return s.rdb.Close() }

func (s *RedisSink) Publish(ctx context.Context, res sim.TickResult) error {
	diff := s.registry.Plan(res.Trains)

	fields := make(map[string]any, len(res.Trains))
	for _, t := range res.Trains {
		b, err := json.Marshal(redisTrain{TrainPosition: t, Handle: diff.Handles[t.TripID]})
		if err != nil {
			return err
		}
		fields[t.TripID] = b
	}
	tick, err := json.Marshal(TickMessage{
		Timestamp: res.At,
		DayType:   res.DayType,
		Period:    res.Period,
		Seconds:   res.Seconds,
		Trains:    len(res.Trains),
	})
	if err != nil {
		return err
	}

	_, err = s.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		if len(diff.Removed) > 0 {
			pipe.HDel(ctx, s.TrainsKey(), diff.Removed...)
		}
		if len(fields) > 0 {
			pipe.HSet(ctx, s.TrainsKey(), fields)
		}
		pipe.Set(ctx, s.TickKey(), tick, 0)
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis write tick: %w", err)
	}
	s.registry.Commit(diff)
	if s.metrics != nil {
		s.metrics.RedisWrites.Inc()
	}
	return nil
}

// PublishStations replaces the stations hash. Stations do not move, so this
// runs once at start-up.
func (s *RedisSink) PublishStations(ctx context.Context, stations []transit.StationPosition) error {
	fields := make(map[string]any, len(stations))
	for _, st := range stations {
		b, err := json.Marshal(st)
		if err != nil {
			return err
		}
		fields[st.StationID] = b
	}
	_, err := s.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, s.StationsKey())
		if len(fields) > 0 {
			pipe.HSet(ctx, s.StationsKey(), fields)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis write stations: %w", err)
	}
	log.Info().Int("stations", len(stations)).Str("key", s.StationsKey()).Msg("stations written to redis")
	return nil
}
