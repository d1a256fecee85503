package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
	"github.com/urfave/cli/v2"

	"metro-simulator/internal/api"
	"metro-simulator/internal/config"
	"metro-simulator/internal/dataset"
	"metro-simulator/internal/db"
	"metro-simulator/internal/geo"
	"metro-simulator/internal/metrics"
	"metro-simulator/internal/publisher"
	"metro-simulator/internal/sim"
	"metro-simulator/internal/transit"
)

func runCommand() *cli.Command {
	return &cli.Command{
		Name:  "run",
		Usage: "run the simulation until interrupted",
		Action: func(c *cli.Context) error {
			ctx, cancel := signal.NotifyContext(c.Context, syscall.SIGINT, syscall.SIGTERM)
			defer cancel()
			return run(ctx)
		},
	}
}

func run(ctx context.Context) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}
	engine, err := buildEngine(ctx, cfg)
	if err != nil {
		return err
	}

	var mcol *metrics.Collector
	if cfg.MetricsAddr != "" {
		mcol = metrics.NewCollector(cfg.SpeedMultiplier, cfg.TickInterval)
		mcol.Stations.Set(float64(len(engine.Stations())))
		srv := mcol.Serve(cfg.MetricsAddr)
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()
	}

	sinks := publisher.NewMulti(mcol)
	snapshot := publisher.NewSnapshot()
	sinks.Add("snapshot", snapshot)

	if cfg.NATSURL != "" {
		ns, err := publisher.NewNATSSink(ctx, cfg.NATSURL, cfg.NATSSubjectPrefix, engine.ID().String(), cfg.LogNATSSubjects, mcol)
		if err != nil {
			return err
		}
		defer ns.Close()
		sinks.Add("nats", ns)
	}

	if cfg.RedisAddr != "" {
		rs, err := publisher.NewRedisSink(ctx, &redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		}, cfg.RedisKeyPrefix, mcol)
		if err != nil {
			return err
		}
		defer rs.Close()
		if err := rs.PublishStations(ctx, engine.Stations()); err != nil {
			return err
		}
		sinks.Add("redis", rs)
	}

	if cfg.APIAddr != "" {
		srv := api.NewServer(engine, snapshot)
		srv.Listen(cfg.APIAddr)
		defer func() {
			if err := srv.Shutdown(3 * time.Second); err != nil {
				log.Warn().Err(err).Msg("api shutdown")
			}
		}()
	}

	clock := newClock(cfg)
	runner := sim.NewRunner(engine, clock, sinks, cfg.TickInterval, mcol)
	runner.Start(ctx)

	<-ctx.Done()
	runner.Stop()
	log.Info().Msg("shutdown complete")
	return nil
}

func newClock(cfg *config.Config) *sim.ScaledClock {
	var start time.Time
	if cfg.SimStart != nil {
		start = sim.StartOfDayAt(time.Now().In(cfg.Location), *cfg.SimStart)
	}
	return sim.NewScaledClock(start, cfg.SpeedMultiplier)
}

func loadNetwork(ctx context.Context, cfg *config.Config) (*transit.Network, error) {
	switch cfg.DataSource {
	case config.SourcePostgres:
		sqlDB, err := db.Connect(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, err
		}
		defer sqlDB.Close()
		return db.LoadNetwork(ctx, sqlDB)
	default:
		log.Info().Str("dir", dataset.Dir(cfg.DataDir)).Msg("loading dataset")
		return dataset.Load(cfg.DataDir)
	}
}

func engineOptions(cfg *config.Config) (sim.Options, error) {
	policy, err := geo.ParsePolicy(cfg.AlignPolicy)
	if err != nil {
		return sim.Options{}, err
	}
	classifier, err := transit.NewDayClassifier(cfg.DayTypeExpr)
	if err != nil {
		return sim.Options{}, err
	}
	opts := sim.Options{
		Projector:          geo.Projector{Width: cfg.MapWidth, Height: cfg.MapHeight, Padding: cfg.MapPadding},
		AlignPolicy:        policy,
		SnapStep:           cfg.SnapStep,
		MaxTimeOnMap:       cfg.MaxTimeOnMap.Seconds(),
		DefaultSegmentTime: cfg.DefaultSegmentTravel.Seconds(),
		Jitter:             sim.Jitter{Fraction: cfg.JitterFraction, Seed: cfg.JitterSeed},
		Location:           cfg.Location,
		Classifier:         classifier,
	}
	if cfg.MapBounds != nil {
		opts.Projector.Bounds = *cfg.MapBounds
	}
	return opts, nil
}

func buildEngine(ctx context.Context, cfg *config.Config) (*sim.Engine, error) {
	n, err := loadNetwork(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("load network: %w", err)
	}
	opts, err := engineOptions(cfg)
	if err != nil {
		return nil, err
	}
	return sim.NewEngine(n, opts)
}
