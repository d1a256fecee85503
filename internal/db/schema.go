package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"slices"
	"sort"

	"github.com/rs/zerolog/log"

	"metro-simulator/internal/transit"
)

var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS lines (
		line_id TEXT PRIMARY KEY,
		name    TEXT,
		color   TEXT
	)`,
	`CREATE TABLE IF NOT EXISTS line_shape_points (
		line_id TEXT NOT NULL REFERENCES lines(line_id) ON DELETE CASCADE,
		seq     INTEGER NOT NULL,
		lat     DOUBLE PRECISION NOT NULL,
		lon     DOUBLE PRECISION NOT NULL,
		PRIMARY KEY (line_id, seq)
	)`,
	`CREATE TABLE IF NOT EXISTS stations (
		station_id TEXT PRIMARY KEY,
		name       TEXT,
		lat        DOUBLE PRECISION NOT NULL,
		lon        DOUBLE PRECISION NOT NULL,
		line_id    TEXT
	)`,
	`CREATE TABLE IF NOT EXISTS stop_sequences (
		line_id           TEXT NOT NULL,
		direction         TEXT NOT NULL,
		reverse_direction TEXT,
		reversed          BOOLEAN NOT NULL DEFAULT false,
		PRIMARY KEY (line_id, direction)
	)`,
	`ALTER TABLE stop_sequences ADD COLUMN IF NOT EXISTS reversed BOOLEAN NOT NULL DEFAULT false`,
	`CREATE TABLE IF NOT EXISTS stop_sequence_stations (
		line_id    TEXT NOT NULL,
		direction  TEXT NOT NULL,
		seq        INTEGER NOT NULL,
		station_id TEXT NOT NULL,
		PRIMARY KEY (line_id, direction, seq),
		FOREIGN KEY (line_id, direction) REFERENCES stop_sequences(line_id, direction) ON DELETE CASCADE
	)`,
	`CREATE TABLE IF NOT EXISTS travel_times (
		from_station TEXT NOT NULL,
		to_station   TEXT NOT NULL,
		seconds      DOUBLE PRECISION NOT NULL,
		PRIMARY KEY (from_station, to_station)
	)`,
	`CREATE TABLE IF NOT EXISTS service_periods (
		period_id  BIGINT PRIMARY KEY,
		day_type   TEXT NOT NULL,
		name       TEXT,
		start_time TEXT NOT NULL,
		end_time   TEXT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS period_headways (
		period_id      BIGINT NOT NULL REFERENCES service_periods(period_id) ON DELETE CASCADE,
		line_direction TEXT NOT NULL,
		headway_mins   DOUBLE PRECISION NOT NULL,
		PRIMARY KEY (period_id, line_direction)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_service_periods_day_type ON service_periods(day_type)`,
}

// InitSchema creates the network tables if they do not exist yet.
func InitSchema(ctx context.Context, db *sql.DB) error {
	if db == nil {
		return errors.New("init schema: DB is nil")
	}
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("init schema: begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	for i, stmt := range schemaStatements {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("init schema: exec statement #%d: %w", i+1, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("init schema: commit tx: %w", err)
	}
	return nil
}

// Import replaces the stored network with n in a single transaction.
// Derived reverse sequences are not stored; they are rebuilt from
// reverse_direction.
func Import(ctx context.Context, db *sql.DB, n *transit.Network) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("import: begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	for _, table := range []string{"period_headways", "service_periods", "travel_times", "stop_sequence_stations", "stop_sequences", "stations", "line_shape_points", "lines"} {
		if _, err := tx.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			return fmt.Errorf("import: clear %s: %w", table, err)
		}
	}

	for _, id := range n.LineIDs() {
		l := n.Lines[id]
		if _, err := tx.ExecContext(ctx, `INSERT INTO lines (line_id, name, color) VALUES ($1, $2, $3)`, l.ID, l.Name, l.Color); err != nil {
			return fmt.Errorf("import: line %s: %w", l.ID, err)
		}
		for i, p := range l.Shape {
			if _, err := tx.ExecContext(ctx, `INSERT INTO line_shape_points (line_id, seq, lat, lon) VALUES ($1, $2, $3, $4)`, l.ID, i, p.Lat(), p.Lon()); err != nil {
				return fmt.Errorf("import: shape %s: %w", l.ID, err)
			}
		}
	}

	for _, s := range n.Stations {
		if _, err := tx.ExecContext(ctx, `INSERT INTO stations (station_id, name, lat, lon, line_id) VALUES ($1, $2, $3, $4, $5)`, s.ID, s.Name, s.Lat, s.Lon, s.LineID); err != nil {
			return fmt.Errorf("import: station %s: %w", s.ID, err)
		}
	}

	for _, seq := range storedSequences(n) {
		if _, err := tx.ExecContext(ctx, `INSERT INTO stop_sequences (line_id, direction, reverse_direction, reversed) VALUES ($1, $2, NULLIF($3, ''), $4)`,
			seq.LineID, string(seq.Direction), string(seq.reverse), seq.Reversed); err != nil {
			return fmt.Errorf("import: sequence %s: %w", seq.Key(), err)
		}
		for i, st := range seq.Stations {
			if _, err := tx.ExecContext(ctx, `INSERT INTO stop_sequence_stations (line_id, direction, seq, station_id) VALUES ($1, $2, $3, $4)`,
				seq.LineID, string(seq.Direction), i, st); err != nil {
				return fmt.Errorf("import: sequence %s: %w", seq.Key(), err)
			}
		}
	}

	for k, sec := range n.TravelTimes {
		if _, err := tx.ExecContext(ctx, `INSERT INTO travel_times (from_station, to_station, seconds) VALUES ($1, $2, $3)`, k.From, k.To, sec); err != nil {
			return fmt.Errorf("import: travel time %s_%s: %w", k.From, k.To, err)
		}
	}

	periodID := int64(0)
	for _, dt := range sortedDayTypes(n.Schedule) {
		for _, p := range n.Schedule[dt] {
			periodID++
			if _, err := tx.ExecContext(ctx, `INSERT INTO service_periods (period_id, day_type, name, start_time, end_time) VALUES ($1, $2, $3, $4, $5)`,
				periodID, string(dt), p.Name, transit.FormatClock(p.Start), transit.FormatClock(p.End)); err != nil {
				return fmt.Errorf("import: period %s %s: %w", dt, p.Name, err)
			}
			for key, mins := range p.Headways {
				if _, err := tx.ExecContext(ctx, `INSERT INTO period_headways (period_id, line_direction, headway_mins) VALUES ($1, $2, $3)`, periodID, key, mins); err != nil {
					return fmt.Errorf("import: headway %s: %w", key, err)
				}
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("import: commit tx: %w", err)
	}
	log.Info().
		Int("lines", len(n.Lines)).
		Int("stations", len(n.Stations)).
		Int64("periods", periodID).
		Msg("network imported")
	return nil
}

type storedSequence struct {
	transit.StopSequence
	reverse transit.Direction
}

// storedSequences returns the sequences that were declared rather than
// derived, each with the direction of its derived reverse if present. A
// reversed sequence counts as derived only when a forward sequence on the
// same line runs through the same stations backwards.
func storedSequences(n *transit.Network) []storedSequence {
	keys := make([]string, 0, len(n.Sequences))
	for k, seq := range n.Sequences {
		if !seq.Reversed || partner(n, seq, false) == nil {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)

	out := make([]storedSequence, 0, len(keys))
	for _, k := range keys {
		seq := n.Sequences[k]
		s := storedSequence{StopSequence: seq}
		if !seq.Reversed {
			if other := partner(n, seq, true); other != nil {
				s.reverse = other.Direction
			}
		}
		out = append(out, s)
	}
	return out
}

// partner finds the sequence on seq's line that visits its stations in
// reverse order and has the given Reversed flag.
func partner(n *transit.Network, seq transit.StopSequence, reversed bool) *transit.StopSequence {
	want := transit.ReverseStations(seq.Stations)
	for _, other := range n.Sequences {
		if other.Reversed == reversed && other.LineID == seq.LineID && slices.Equal(other.Stations, want) {
			return &other
		}
	}
	return nil
}

func sortedDayTypes(s transit.Schedule) []transit.DayType {
	out := make([]transit.DayType, 0, len(s))
	for dt := range s {
		out = append(out, dt)
	}
	slices.Sort(out)
	return out
}
