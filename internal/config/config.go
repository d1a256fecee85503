package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/paulmach/orb"
	iso8601 "github.com/senseyeio/duration"

	"metro-simulator/internal/transit"
)

type DataSource string

const (
	SourceDir      DataSource = "dir"
	SourcePostgres DataSource = "postgres"
)

type Config struct {
	DataSource  DataSource
	DataDir     string
	DatabaseURL string

	TickInterval    time.Duration
	SpeedMultiplier float64
	Location        *time.Location
	SimStart        *float64 // seconds since midnight; nil means wall clock

	MapWidth   float64
	MapHeight  float64
	MapPadding float64
	MapBounds  *orb.Bound // nil means derived from the network

	AlignPolicy          string
	SnapStep             float64
	MaxTimeOnMap         time.Duration
	DefaultSegmentTravel time.Duration
	JitterFraction       float64
	JitterSeed           uint64
	DayTypeExpr          string

	NATSURL           string
	NATSSubjectPrefix string
	LogNATSSubjects   bool

	RedisAddr      string
	RedisPassword  string
	RedisDB        int
	RedisKeyPrefix string

	APIAddr     string
	MetricsAddr string
}

type Logging struct {
	Level  string // zerolog level name
	Format string // console|json
}

// LoadLogging reads .env and the logging keys only. It never fails, so
// logging can be set up before the rest of the configuration is validated.
func LoadLogging() Logging {
	_ = godotenv.Load()
	return Logging{
		Level:  strings.ToLower(strings.TrimSpace(getenvDefault("LOG_LEVEL", "info"))),
		Format: strings.ToLower(strings.TrimSpace(getenvDefault("LOG_FORMAT", "console"))),
	}
}

func Load() (*Config, error) {
	// Load .env into environment (ignore if missing)
	_ = godotenv.Load()

	cfg := &Config{}
	var err error

	switch src := DataSource(getenvDefault("DATA_SOURCE", string(SourceDir))); src {
	case SourceDir:
		cfg.DataSource = src
		cfg.DataDir = getenvDefault("DATA_DIR", "./data")
	case SourcePostgres:
		cfg.DataSource = src
		if cfg.DatabaseURL, err = DatabaseURL(); err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("invalid DATA_SOURCE: %q", src)
	}

	if v := os.Getenv("TICK_INTERVAL_MS"); v != "" {
		ms, err := strconv.Atoi(v)
		if err != nil || ms <= 0 {
			return nil, fmt.Errorf("invalid TICK_INTERVAL_MS: %q", v)
		}
		cfg.TickInterval = time.Duration(ms) * time.Millisecond
	} else {
		cfg.TickInterval = 250 * time.Millisecond
	}

	if cfg.SpeedMultiplier, err = positiveFloat("SPEED_MULTIPLIER", 1); err != nil {
		return nil, err
	}

	// Time zone
	tzName := getenvDefault("TZ", "")
	if tzName == "" {
		cfg.Location = time.Local
	} else {
		loc, err := time.LoadLocation(tzName)
		if err != nil {
			return nil, fmt.Errorf("invalid TZ: %v", err)
		}
		cfg.Location = loc
	}

	if v := os.Getenv("SIM_START"); v != "" {
		sec, err := transit.ParseClock(v)
		if err != nil {
			return nil, fmt.Errorf("invalid SIM_START: %w", err)
		}
		cfg.SimStart = &sec
	}

	if cfg.MapWidth, err = positiveFloat("MAP_WIDTH", 1200); err != nil {
		return nil, err
	}
	if cfg.MapHeight, err = positiveFloat("MAP_HEIGHT", 800); err != nil {
		return nil, err
	}
	if cfg.MapPadding, err = nonNegativeFloat("MAP_PADDING", 0); err != nil {
		return nil, err
	}
	if 2*cfg.MapPadding >= cfg.MapWidth || 2*cfg.MapPadding >= cfg.MapHeight {
		return nil, fmt.Errorf("MAP_PADDING %v leaves no drawing area", cfg.MapPadding)
	}
	if v := os.Getenv("MAP_BOUNDS"); v != "" {
		b, err := ParseBounds(v)
		if err != nil {
			return nil, err
		}
		cfg.MapBounds = &b
	}

	cfg.AlignPolicy = strings.ToLower(getenvDefault("ALIGN_POLICY", "ordinal"))
	if cfg.SnapStep, err = positiveFloat("SNAP_STEP", 1); err != nil {
		return nil, err
	}

	if cfg.MaxTimeOnMap, err = isoDuration("MAX_TIME_ON_MAP", "PT5000S"); err != nil {
		return nil, err
	}
	if cfg.MaxTimeOnMap <= 0 {
		return nil, errors.New("MAX_TIME_ON_MAP must be positive")
	}

	def, err := positiveFloat("DEFAULT_SEGMENT_SECONDS", 150)
	if err != nil {
		return nil, err
	}
	cfg.DefaultSegmentTravel = time.Duration(def * float64(time.Second))

	if cfg.JitterFraction, err = nonNegativeFloat("JITTER_FRACTION", 0); err != nil {
		return nil, err
	}
	if cfg.JitterFraction > 1 {
		return nil, fmt.Errorf("invalid JITTER_FRACTION: %v (must be within [0,1])", cfg.JitterFraction)
	}
	if v := os.Getenv("JITTER_SEED"); v != "" {
		seed, err := strconv.ParseUint(v, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid JITTER_SEED: %q", v)
		}
		cfg.JitterSeed = seed
	}

	cfg.DayTypeExpr = getenvDefault("DAY_TYPE_EXPR", transit.DefaultDayTypeExpr)

	// NATS is optional; empty URL disables the sink.
	cfg.NATSURL = os.Getenv("NATS_URL")
	cfg.NATSSubjectPrefix = getenvDefault("NATS_SUBJECT_PREFIX", "trains")
	cfg.LogNATSSubjects = truthy(os.Getenv("LOG_NATS_SUBJECTS"))

	cfg.RedisAddr = os.Getenv("REDIS_ADDR")
	cfg.RedisPassword = os.Getenv("REDIS_PASSWORD")
	if v := os.Getenv("REDIS_DB"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return nil, fmt.Errorf("invalid REDIS_DB: %q", v)
		}
		cfg.RedisDB = n
	}
	cfg.RedisKeyPrefix = getenvDefault("REDIS_KEY_PREFIX", "metro")

	// Listen addresses (e.g., ":8080"). Empty disables the server.
	cfg.APIAddr = os.Getenv("API_ADDR")
	cfg.MetricsAddr = os.Getenv("METRICS_ADDR")

	return cfg, nil
}

// DatabaseURL prefers DATABASE_URL / PG_DSN, else builds a DSN from PG* vars.
func DatabaseURL() (string, error) {
	if dsn := firstNonEmpty(os.Getenv("DATABASE_URL"), os.Getenv("PG_DSN")); dsn != "" {
		return dsn, nil
	}
	host := getenvDefault("PGHOST", "127.0.0.1")
	port := getenvDefault("PGPORT", "5432")
	user := getenvDefault("PGUSER", "postgres")
	pass := os.Getenv("PGPASSWORD")
	db := os.Getenv("PGDATABASE")
	if db == "" {
		return "", errors.New("PGDATABASE or DATABASE_URL must be set when DATA_SOURCE=postgres")
	}
	sslmode := getenvDefault("PGSSLMODE", "disable")
	if pass != "" {
		return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=%s", urlEscape(user), urlEscape(pass), host, port, db, sslmode), nil
	}
	return fmt.Sprintf("postgres://%s@%s:%s/%s?sslmode=%s", urlEscape(user), host, port, db, sslmode), nil
}

// ParseBounds reads "minLon,minLat,maxLon,maxLat".
func ParseBounds(s string) (orb.Bound, error) {
	parts := strings.Split(s, ",")
	if len(parts) != 4 {
		return orb.Bound{}, fmt.Errorf("invalid MAP_BOUNDS %q: want minLon,minLat,maxLon,maxLat", s)
	}
	var v [4]float64
	for i, p := range parts {
		f, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return orb.Bound{}, fmt.Errorf("invalid MAP_BOUNDS %q: %w", s, err)
		}
		v[i] = f
	}
	if v[2] <= v[0] || v[3] <= v[1] {
		return orb.Bound{}, fmt.Errorf("invalid MAP_BOUNDS %q: max must exceed min", s)
	}
	return orb.Bound{Min: orb.Point{v[0], v[1]}, Max: orb.Point{v[2], v[3]}}, nil
}

func isoDuration(key, def string) (time.Duration, error) {
	v := getenvDefault(key, def)
	d, err := iso8601.ParseISO8601(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %q: %w", key, v, err)
	}
	// Calendar parts are resolved against a fixed date so the result does
	// not depend on when the process starts.
	ref := time.Date(2000, 1, 1, 0, 0, 0, 0, time.UTC)
	return d.Shift(ref).Sub(ref), nil
}

func positiveFloat(key string, def float64) (float64, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil || f <= 0 {
		return 0, fmt.Errorf("invalid %s: %q", key, v)
	}
	return f, nil
}

func nonNegativeFloat(key string, def float64) (float64, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil || f < 0 {
		return 0, fmt.Errorf("invalid %s: %q", key, v)
	}
	return f, nil
}

func truthy(v string) bool {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "1", "true", "t", "yes", "y", "on":
		return true
	}
	return false
}

func getenvDefault(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

func urlEscape(s string) string {
	// Minimal escape for DSN user/pass with special chars
	r := strings.NewReplacer("@", "%40", ":", "%3A", "/", "%2F", "?", "%3F", "#", "%23")
	return r.Replace(s)
}
