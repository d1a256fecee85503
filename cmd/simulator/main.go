package main

import (
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/urfave/cli/v2"

	"metro-simulator/internal/config"

	_ "time/tzdata"
)

func main() {
	setupLogging(config.LoadLogging())

	app := &cli.App{
		Name:        "metro-simulator",
		Usage:       "simulate metro trains from a timetable",
		Description: "Computes train positions on a schematic map every tick and publishes them to NATS, Redis and HTTP.",
		Commands: []*cli.Command{
			runCommand(),
			stationsCommand(),
			inspectCommand(),
			dbCommand(),
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal().Err(err).Send()
	}
}

func setupLogging(l config.Logging) {
	if l.Format != "json" {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339})
	}
	log.Logger = log.Logger.Level(logLevel(l.Level))
}

// logLevel falls back to info for empty or unknown names.
func logLevel(name string) zerolog.Level {
	level, err := zerolog.ParseLevel(name)
	if err != nil || level == zerolog.NoLevel {
		return zerolog.InfoLevel
	}
	return level
}
