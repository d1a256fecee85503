package main

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/kr/pretty"
	"github.com/rs/zerolog/log"
	"github.com/urfave/cli/v2"

	"metro-simulator/internal/config"
	"metro-simulator/internal/dataset"
	"metro-simulator/internal/db"
	"metro-simulator/internal/sim"
	"metro-simulator/internal/transit"
)

func stationsCommand() *cli.Command {
	return &cli.Command{
		Name:  "stations",
		Usage: "print aligned station positions as JSON",
		Action: func(c *cli.Context) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			engine, err := buildEngine(c.Context, cfg)
			if err != nil {
				return err
			}
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(engine.Stations())
		},
	}
}

func inspectCommand() *cli.Command {
	return &cli.Command{
		Name:  "inspect",
		Usage: "compute one tick and dump it",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "date",
				Usage: "service date, YYYY-MM-DD (default today)",
			},
			&cli.StringFlag{
				Name:  "at",
				Usage: "time of day, HH:MM[:SS] (default now)",
			},
		},
		Action: func(c *cli.Context) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			engine, err := buildEngine(c.Context, cfg)
			if err != nil {
				return err
			}
			at, err := inspectInstant(time.Now().In(cfg.Location), c.String("date"), c.String("at"))
			if err != nil {
				return err
			}
			res := engine.Tick(at)
			pretty.Println(res)
			log.Info().
				Str("day_type", string(res.DayType)).
				Str("period", res.Period).
				Int("trains", len(res.Trains)).
				Int("skipped", res.Skipped).
				Msg("tick")
			return nil
		},
	}
}

// inspectInstant resolves the --date/--at flags against now.
func inspectInstant(now time.Time, date, clock string) (time.Time, error) {
	day := now
	if date != "" {
		d, err := time.ParseInLocation("2006-01-02", date, now.Location())
		if err != nil {
			return time.Time{}, fmt.Errorf("invalid --date: %w", err)
		}
		day = d.Add(time.Duration(transit.SecondsOfDay(now) * float64(time.Second)))
	}
	if clock == "" {
		return day, nil
	}
	sec, err := transit.ParseClock(clock)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid --at: %w", err)
	}
	return sim.StartOfDayAt(day, sec), nil
}

func dbCommand() *cli.Command {
	return &cli.Command{
		Name:  "db",
		Usage: "manage the Postgres network store",
		Before: func(*cli.Context) error {
			// config.Load is not used here, so .env is read explicitly
			_ = godotenv.Load()
			return nil
		},
		Subcommands: []*cli.Command{
			{
				Name:  "init",
				Usage: "create the network tables",
				Action: func(c *cli.Context) error {
					dsn, err := config.DatabaseURL()
					if err != nil {
						return err
					}
					sqlDB, err := db.Connect(c.Context, dsn)
					if err != nil {
						return err
					}
					defer sqlDB.Close()
					if err := db.InitSchema(c.Context, sqlDB); err != nil {
						return err
					}
					log.Info().Msg("schema ready")
					return nil
				},
			},
			{
				Name:  "import",
				Usage: "replace the stored network with a dataset directory",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "dir",
						Value: "./data",
						Usage: "dataset directory",
					},
				},
				Action: func(c *cli.Context) error {
					n, err := dataset.Load(c.String("dir"))
					if err != nil {
						return err
					}
					if err := n.Validate(); err != nil {
						return err
					}
					dsn, err := config.DatabaseURL()
					if err != nil {
						return err
					}
					sqlDB, err := db.Connect(c.Context, dsn)
					if err != nil {
						return err
					}
					defer sqlDB.Close()
					if err := db.InitSchema(c.Context, sqlDB); err != nil {
						return err
					}
					return db.Import(c.Context, sqlDB, n)
				},
			},
		},
	}
}
