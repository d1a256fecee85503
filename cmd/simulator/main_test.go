package main

import (
	"testing"
	"time"

	"github.com/paulmach/orb"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"metro-simulator/internal/config"
	"metro-simulator/internal/geo"
)

func TestInspectInstant(t *testing.T) {
	loc := time.FixedZone("IST", 5*3600+1800)
	now := time.Date(2024, 5, 6, 14, 30, 0, 0, loc)

	got, err := inspectInstant(now, "", "")
	require.NoError(t, err)
	assert.Equal(t, now, got)

	got, err = inspectInstant(now, "", "08:15")
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 5, 6, 8, 15, 0, 0, loc), got)

	got, err = inspectInstant(now, "2024-05-12", "")
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 5, 12, 14, 30, 0, 0, loc), got)

	got, err = inspectInstant(now, "2024-05-12", "23:00:30")
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 5, 12, 23, 0, 30, 0, loc), got)

	_, err = inspectInstant(now, "12/05/2024", "")
	assert.ErrorContains(t, err, "--date")
	_, err = inspectInstant(now, "", "8am")
	assert.ErrorContains(t, err, "--at")
}

func TestLogLevel(t *testing.T) {
	tests := map[string]zerolog.Level{
		"":        zerolog.InfoLevel,
		"info":    zerolog.InfoLevel,
		"debug":   zerolog.DebugLevel,
		"warn":    zerolog.WarnLevel,
		"trace":   zerolog.TraceLevel,
		"verbose": zerolog.InfoLevel,
	}
	for in, want := range tests {
		assert.Equal(t, want, logLevel(in), in)
	}
}

func TestEngineOptions(t *testing.T) {
	bounds := orb.Bound{Min: orb.Point{80.1, 12.9}, Max: orb.Point{80.4, 13.2}}
	cfg := &config.Config{
		MapWidth:             1200,
		MapHeight:            800,
		MapPadding:           20,
		MapBounds:            &bounds,
		AlignPolicy:          "snap",
		SnapStep:             2,
		MaxTimeOnMap:         5000 * time.Second,
		DefaultSegmentTravel: 150 * time.Second,
		JitterFraction:       0.1,
		JitterSeed:           7,
		Location:             time.UTC,
		DayTypeExpr:          `"weekday"`,
	}

	opts, err := engineOptions(cfg)
	require.NoError(t, err)
	assert.Equal(t, geo.PolicySnap, opts.AlignPolicy)
	assert.Equal(t, bounds, opts.Projector.Bounds)
	assert.Equal(t, 20.0, opts.Projector.Padding)
	assert.Equal(t, 5000.0, opts.MaxTimeOnMap)
	assert.Equal(t, 150.0, opts.DefaultSegmentTime)
	assert.Equal(t, uint64(7), opts.Jitter.Seed)
	require.NotNil(t, opts.Classifier)

	dt, err := opts.Classifier.Classify(time.Now())
	require.NoError(t, err)
	assert.EqualValues(t, "weekday", dt)

	cfg.MapBounds = nil
	opts, err = engineOptions(cfg)
	require.NoError(t, err)
	assert.Equal(t, orb.Bound{}, opts.Projector.Bounds)

	cfg.AlignPolicy = "nearest"
	_, err = engineOptions(cfg)
	assert.Error(t, err)

	cfg.AlignPolicy = "ordinal"
	cfg.DayTypeExpr = "weekday +"
	_, err = engineOptions(cfg)
	assert.Error(t, err)
}
