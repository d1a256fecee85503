package config

import (
	"testing"
	"time"

	"github.com/paulmach/orb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("DATA_SOURCE", "")
	t.Setenv("DATA_DIR", "")
	t.Setenv("MAX_TIME_ON_MAP", "")
	t.Setenv("TZ", "")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, SourceDir, cfg.DataSource)
	assert.Equal(t, "./data", cfg.DataDir)
	assert.Equal(t, 250*time.Millisecond, cfg.TickInterval)
	assert.Equal(t, 1.0, cfg.SpeedMultiplier)
	assert.Nil(t, cfg.SimStart)
	assert.Equal(t, 1200.0, cfg.MapWidth)
	assert.Equal(t, 800.0, cfg.MapHeight)
	assert.Nil(t, cfg.MapBounds)
	assert.Equal(t, "ordinal", cfg.AlignPolicy)
	assert.Equal(t, 5000*time.Second, cfg.MaxTimeOnMap)
	assert.Equal(t, 150*time.Second, cfg.DefaultSegmentTravel)
	assert.Equal(t, "trains", cfg.NATSSubjectPrefix)
	assert.Equal(t, "metro", cfg.RedisKeyPrefix)
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("DATA_SOURCE", "postgres")
	t.Setenv("DATABASE_URL", "")
	t.Setenv("PG_DSN", "")
	t.Setenv("PGHOST", "db")
	t.Setenv("PGUSER", "metro")
	t.Setenv("PGPASSWORD", "p@ss")
	t.Setenv("PGDATABASE", "cmrl")
	t.Setenv("TICK_INTERVAL_MS", "16")
	t.Setenv("SPEED_MULTIPLIER", "30")
	t.Setenv("TZ", "Asia/Kolkata")
	t.Setenv("SIM_START", "08:15:00")
	t.Setenv("MAP_BOUNDS", "80.1691,12.9890,80.3134,13.1868")
	t.Setenv("MAX_TIME_ON_MAP", "PT1H30M")
	t.Setenv("JITTER_FRACTION", "0.25")
	t.Setenv("JITTER_SEED", "99")
	t.Setenv("LOG_NATS_SUBJECTS", "yes")
	t.Setenv("REDIS_DB", "3")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, SourcePostgres, cfg.DataSource)
	assert.Equal(t, "postgres://metro:p%40ss@db:5432/cmrl?sslmode=disable", cfg.DatabaseURL)
	assert.Equal(t, 16*time.Millisecond, cfg.TickInterval)
	assert.Equal(t, 30.0, cfg.SpeedMultiplier)
	assert.Equal(t, "Asia/Kolkata", cfg.Location.String())
	require.NotNil(t, cfg.SimStart)
	assert.Equal(t, 29700.0, *cfg.SimStart)
	require.NotNil(t, cfg.MapBounds)
	assert.Equal(t, orb.Point{80.1691, 12.9890}, cfg.MapBounds.Min)
	assert.Equal(t, 90*time.Minute, cfg.MaxTimeOnMap)
	assert.Equal(t, 0.25, cfg.JitterFraction)
	assert.Equal(t, uint64(99), cfg.JitterSeed)
	assert.True(t, cfg.LogNATSSubjects)
	assert.Equal(t, 3, cfg.RedisDB)
}

func TestLoadRejectsInvalid(t *testing.T) {
	cases := map[string]string{
		"DATA_SOURCE":      "mongo",
		"TICK_INTERVAL_MS": "0",
		"SPEED_MULTIPLIER": "-2",
		"SIM_START":        "8am",
		"MAP_BOUNDS":       "1,2,3",
		"MAX_TIME_ON_MAP":  "5000",
		"JITTER_FRACTION":  "1.5",
		"REDIS_DB":         "x",
		"MAP_PADDING":      "600",
	}
	for key, val := range cases {
		t.Run(key, func(t *testing.T) {
			t.Setenv(key, val)
			_, err := Load()
			assert.Error(t, err)
		})
	}
}

func TestParseBounds(t *testing.T) {
	b, err := ParseBounds(" 1, 2 ,3,4")
	require.NoError(t, err)
	assert.Equal(t, orb.Bound{Min: orb.Point{1, 2}, Max: orb.Point{3, 4}}, b)

	_, err = ParseBounds("3,4,1,2")
	assert.Error(t, err)
}

func TestLoadLogging(t *testing.T) {
	t.Setenv("LOG_LEVEL", "")
	t.Setenv("LOG_FORMAT", "")
	assert.Equal(t, Logging{Level: "info", Format: "console"}, LoadLogging())

	t.Setenv("LOG_LEVEL", " DEBUG")
	t.Setenv("LOG_FORMAT", "JSON")
	assert.Equal(t, Logging{Level: "debug", Format: "json"}, LoadLogging())
}
