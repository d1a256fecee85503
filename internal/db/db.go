package db

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/paulmach/orb"
	"github.com/rs/zerolog/log"

	"metro-simulator/internal/transit"

	_ "github.com/jackc/pgx/v5/stdlib"
)

func Open(dsn string) (*sql.DB, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(5)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(30 * time.Minute)
	return db, nil
}

func Ping(ctx context.Context, db *sql.DB) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	return db.PingContext(ctx)
}

// Connect opens dsn and retries the first ping with exponential backoff, so
// the simulator can start alongside its database.
func Connect(ctx context.Context, dsn string) (*sql.DB, error) {
	db, err := Open(dsn)
	if err != nil {
		return nil, err
	}
	retry := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), 6), ctx)
	err = backoff.RetryNotify(func() error {
		return Ping(ctx, db)
	}, retry, func(err error, next time.Duration) {
		log.Warn().Err(err).Dur("retry_in", next).Msg("database not ready")
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("db ping: %w", err)
	}
	return db, nil
}

// LoadNetwork reads the whole network. The result is not validated.
func LoadNetwork(ctx context.Context, db *sql.DB) (*transit.Network, error) {
	n := transit.NewNetwork()

	if err := loadLines(ctx, db, n); err != nil {
		return nil, err
	}
	if err := loadShapes(ctx, db, n); err != nil {
		return nil, err
	}
	if err := loadSequences(ctx, db, n); err != nil {
		return nil, err
	}
	if err := loadStations(ctx, db, n); err != nil {
		return nil, err
	}
	if err := loadTravelTimes(ctx, db, n); err != nil {
		return nil, err
	}
	if err := loadSchedule(ctx, db, n); err != nil {
		return nil, err
	}
	return n, nil
}

func loadLines(ctx context.Context, db *sql.DB, n *transit.Network) error {
	rows, err := db.QueryContext(ctx, `SELECT line_id, COALESCE(name, ''), COALESCE(color, '') FROM lines`)
	if err != nil {
		return fmt.Errorf("query lines: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var l transit.Line
		if err := rows.Scan(&l.ID, &l.Name, &l.Color); err != nil {
			return err
		}
		n.Lines[l.ID] = l
	}
	return rows.Err()
}

func loadShapes(ctx context.Context, db *sql.DB, n *transit.Network) error {
	// Either plain lat/lon columns or a PostGIS point column.
	cols, err := hasColumns(ctx, db, "public", "line_shape_points", "lat", "lon", "geom")
	if err != nil {
		return fmt.Errorf("introspect line_shape_points columns: %w", err)
	}
	var q string
	switch {
	case cols["lat"] && cols["lon"]:
		q = `SELECT line_id, lon, lat FROM line_shape_points ORDER BY line_id, seq`
	case cols["geom"]:
		q = `SELECT line_id, ST_X(geom::geometry), ST_Y(geom::geometry) FROM line_shape_points ORDER BY line_id, seq`
	default:
		return fmt.Errorf("line_shape_points missing expected columns (lat/lon or geom)")
	}
	rows, err := db.QueryContext(ctx, q)
	if err != nil {
		return fmt.Errorf("query line_shape_points: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var id string
		var pt orb.Point
		if err := rows.Scan(&id, &pt[0], &pt[1]); err != nil {
			return err
		}
		l, ok := n.Lines[id]
		if !ok {
			continue
		}
		l.Shape = append(l.Shape, pt)
		n.Lines[id] = l
	}
	return rows.Err()
}

type sequenceRow struct {
	LineID    string
	Direction string
	Reverse   string
	Reversed  bool
	StationID string
}

func loadSequences(ctx context.Context, db *sql.DB, n *transit.Network) error {
	q := `
SELECT s.line_id, s.direction, COALESCE(s.reverse_direction, ''), s.reversed, ss.station_id
FROM stop_sequences s
JOIN stop_sequence_stations ss ON ss.line_id = s.line_id AND ss.direction = s.direction
ORDER BY s.line_id, s.direction, ss.seq`
	rows, err := db.QueryContext(ctx, q)
	if err != nil {
		return fmt.Errorf("query stop_sequences: %w", err)
	}
	defer rows.Close()
	var all []sequenceRow
	for rows.Next() {
		var r sequenceRow
		if err := rows.Scan(&r.LineID, &r.Direction, &r.Reverse, &r.Reversed, &r.StationID); err != nil {
			return err
		}
		all = append(all, r)
	}
	if err := rows.Err(); err != nil {
		return err
	}
	addSequences(n, all)
	return nil
}

// addSequences groups ordered rows into sequences.
func addSequences(n *transit.Network, rows []sequenceRow) {
	for i := 0; i < len(rows); {
		j := i
		var stations []string
		for j < len(rows) && rows[j].LineID == rows[i].LineID && rows[j].Direction == rows[i].Direction {
			stations = append(stations, rows[j].StationID)
			j++
		}
		n.AddSequence(transit.StopSequence{
			LineID:    rows[i].LineID,
			Direction: transit.Direction(rows[i].Direction),
			Stations:  stations,
			Reversed:  rows[i].Reversed,
		}, transit.Direction(rows[i].Reverse))
		i = j
	}
}

func loadStations(ctx context.Context, db *sql.DB, n *transit.Network) error {
	rows, err := db.QueryContext(ctx, `SELECT station_id, COALESCE(name, ''), lat, lon, COALESCE(line_id, '') FROM stations`)
	if err != nil {
		return fmt.Errorf("query stations: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var s transit.Station
		if err := rows.Scan(&s.ID, &s.Name, &s.Lat, &s.Lon, &s.LineID); err != nil {
			return err
		}
		if s.LineID == "" {
			s.LineID = n.OwningLine(s.ID)
		}
		n.Stations[s.ID] = s
	}
	return rows.Err()
}

func loadTravelTimes(ctx context.Context, db *sql.DB, n *transit.Network) error {
	rows, err := db.QueryContext(ctx, `SELECT from_station, to_station, seconds FROM travel_times`)
	if err != nil {
		return fmt.Errorf("query travel_times: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var k transit.SegmentKey
		var sec float64
		if err := rows.Scan(&k.From, &k.To, &sec); err != nil {
			return err
		}
		n.TravelTimes[k] = sec
	}
	return rows.Err()
}

type periodRow struct {
	PeriodID    int64
	DayType     string
	Name        string
	Start       string
	End         string
	LineDir     sql.NullString
	HeadwayMins sql.NullFloat64
}

func loadSchedule(ctx context.Context, db *sql.DB, n *transit.Network) error {
	// start/end are stored as text so service past midnight ("25:10:00") survives.
	q := `
SELECT p.period_id, p.day_type, COALESCE(p.name, ''), p.start_time, p.end_time, h.line_direction, h.headway_mins
FROM service_periods p
LEFT JOIN period_headways h ON h.period_id = p.period_id
ORDER BY p.day_type, p.period_id`
	rows, err := db.QueryContext(ctx, q)
	if err != nil {
		return fmt.Errorf("query service_periods: %w", err)
	}
	defer rows.Close()
	var all []periodRow
	for rows.Next() {
		var r periodRow
		if err := rows.Scan(&r.PeriodID, &r.DayType, &r.Name, &r.Start, &r.End, &r.LineDir, &r.HeadwayMins); err != nil {
			return err
		}
		all = append(all, r)
	}
	if err := rows.Err(); err != nil {
		return err
	}
	return addPeriods(n, all)
}

// addPeriods groups ordered rows by period, keeping the row order of periods
// within a day type.
func addPeriods(n *transit.Network, rows []periodRow) error {
	for i := 0; i < len(rows); {
		r := rows[i]
		start, err := transit.ParseClock(r.Start)
		if err != nil {
			return fmt.Errorf("period %d: %w", r.PeriodID, err)
		}
		end, err := transit.ParseClock(r.End)
		if err != nil {
			return fmt.Errorf("period %d: %w", r.PeriodID, err)
		}
		p := transit.ServicePeriod{Name: r.Name, Start: start, End: end, Headways: make(map[string]float64)}
		j := i
		for ; j < len(rows) && rows[j].PeriodID == r.PeriodID; j++ {
			if rows[j].LineDir.Valid && rows[j].HeadwayMins.Valid {
				p.Headways[rows[j].LineDir.String] = rows[j].HeadwayMins.Float64
			}
		}
		dt := transit.DayType(r.DayType)
		n.Schedule[dt] = append(n.Schedule[dt], p)
		i = j
	}
	return nil
}

// hasColumns returns a map of requested column names to existence for the given table.
func hasColumns(ctx context.Context, db *sql.DB, schema, table string, cols ...string) (map[string]bool, error) {
	res := make(map[string]bool, len(cols))
	if len(cols) == 0 {
		return res, nil
	}
	for _, c := range cols {
		res[c] = false
	}
	q := `SELECT column_name FROM information_schema.columns
          WHERE table_schema = $1 AND table_name = $2 AND column_name = ANY($3)`
	rows, err := db.QueryContext(ctx, q, schema, table, cols)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		res[name] = true
	}
	return res, rows.Err()
}
