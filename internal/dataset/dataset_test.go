package dataset

import (
	"testing"
	"testing/fstest"

	"github.com/paulmach/orb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"metro-simulator/internal/transit"
)

func baseFS() fstest.MapFS {
	return fstest.MapFS{
		"routes.json": {Data: []byte(`[
			{"route_id": "blue-line", "route_name": "Blue Line", "color": "#0070C0"},
			{"route_id": "green-line", "route_name": "Green Line", "color": "#00B050"}
		]`)},
		"shapes.json": {Data: []byte(`{
			"blue-line": [[80.30, 13.17], [80.25, 13.05], [80.17, 12.99]],
			"green-line": [[80.27, 13.08], [80.20, 13.01]]
		}`)},
		"stops.json": {Data: []byte(`[
			{"stop_id": "wimco-nagar", "stop_name": "Wimco Nagar", "lat": 13.17, "lon": 80.30},
			{"stop_id": "central_metro", "stop_name": "Central Metro", "lat": 13.08, "lon": 80.27, "line_id": "blue-line"},
			{"stop_id": "alandur", "stop_name": "Alandur", "lat": 13.00, "lon": 80.20},
			{"stop_id": "airport", "stop_name": "Airport", "lat": 12.98, "lon": 80.16},
			{"stop_id": "egmore", "stop_name": "Egmore", "lat": 13.07, "lon": 80.26}
		]`)},
		"sequences.yaml": {Data: []byte(`
- line: blue-line
  direction: down
  reverse: up
  stations: [wimco-nagar, central_metro, alandur, airport]
- line: green-line
  direction: down
  reverse: up
  stations: [central_metro, egmore, alandur]
`)},
		"schedule.json": {Data: []byte(`{
			"weekday": [
				{"name": "peak", "start": "08:00:00", "end": "11:00:00", "headways_mins": {"blue-line-down": 5, "blue-line-up": 5}},
				{"start": "05:30:00", "end": "07:59:59", "headways_mins": {"green-line-down": 10}}
			],
			"sunday": [
				{"name": "all day", "start": "06:00:00", "end": "22:00:00", "headways_mins": {"blue-line-down": 10}}
			]
		}`)},
	}
}

func TestLoadFS(t *testing.T) {
	fsys := baseFS()
	fsys["travel_times.json"] = &fstest.MapFile{Data: []byte(`{
		"wimco-nagar_central_metro": 600,
		"central_metro_alandur": 780
	}`)}

	n, err := LoadFS(fsys)
	require.NoError(t, err)
	require.NoError(t, n.Validate())

	blue := n.Lines["blue-line"]
	assert.Equal(t, "#0070C0", blue.Color)
	assert.Equal(t, "Blue Line", blue.Name)
	assert.Equal(t, orb.LineString{{80.30, 13.17}, {80.25, 13.05}, {80.17, 12.99}}, blue.Shape)

	assert.Len(t, n.Sequences, 4)
	assert.Equal(t, []string{"airport", "alandur", "central_metro", "wimco-nagar"}, n.Sequences["blue-line-up"].Stations)

	// explicit owner wins, otherwise the first line listing the station
	assert.Equal(t, "blue-line", n.Stations["central_metro"].LineID)
	assert.Equal(t, "blue-line", n.Stations["alandur"].LineID)
	assert.Equal(t, "green-line", n.Stations["egmore"].LineID)

	assert.Equal(t, 600.0, n.TravelTime("wimco-nagar", "central_metro", 150))
	assert.Equal(t, 780.0, n.TravelTime("central_metro", "alandur", 150))
	assert.Equal(t, 150.0, n.TravelTime("alandur", "airport", 150))

	weekday := n.Schedule["weekday"]
	require.Len(t, weekday, 2)
	assert.Equal(t, "peak", weekday[0].Name)
	assert.Equal(t, 28800.0, weekday[0].Start)
	assert.Equal(t, "05:30:00-07:59:59", weekday[1].Name)
	assert.Equal(t, 5.0, weekday[0].Headways["blue-line-up"])

	start, ok := n.ServiceStart(transit.DayType("weekday"))
	require.True(t, ok)
	assert.Equal(t, 19800.0, start)
}

func TestLoadFSTravelTimesCSV(t *testing.T) {
	fsys := baseFS()
	fsys["travel_times.csv"] = &fstest.MapFile{Data: []byte("from,to,seconds\nalandur, airport, 240\nairport,alandur,250\n")}

	n, err := LoadFS(fsys)
	require.NoError(t, err)
	assert.Equal(t, 240.0, n.TravelTime("alandur", "airport", 0))
	assert.Equal(t, 250.0, n.TravelTime("airport", "alandur", 0))
}

func TestLoadFSWithoutTravelTimes(t *testing.T) {
	n, err := LoadFS(baseFS())
	require.NoError(t, err)
	assert.Empty(t, n.TravelTimes)
}

func TestLoadFSExplicitReversedSequence(t *testing.T) {
	fsys := baseFS()
	fsys["sequences.yaml"] = &fstest.MapFile{Data: []byte(`
- line: blue-line
  direction: up
  reversed: true
  stations: [airport, alandur, central_metro, wimco-nagar]
- line: green-line
  direction: down
  stations: [central_metro, egmore, alandur]
`)}

	n, err := LoadFS(fsys)
	require.NoError(t, err)
	require.Len(t, n.Sequences, 2)
	assert.True(t, n.Sequences["blue-line-up"].Reversed)
	assert.False(t, n.Sequences["green-line-down"].Reversed)
}

func TestLoadFSErrors(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(fstest.MapFS)
	}{
		{name: "missing routes", mutate: func(f fstest.MapFS) { delete(f, "routes.json") }},
		{name: "bad shape point", mutate: func(f fstest.MapFS) {
			f["shapes.json"] = &fstest.MapFile{Data: []byte(`{"blue-line": [[80.3]]}`)}
		}},
		{name: "bad clock", mutate: func(f fstest.MapFS) {
			f["schedule.json"] = &fstest.MapFile{Data: []byte(`{"weekday": [{"start": "8am", "end": "09:00:00"}]}`)}
		}},
		{name: "unsplittable travel key", mutate: func(f fstest.MapFS) {
			f["travel_times.json"] = &fstest.MapFile{Data: []byte(`{"nowhere_else": 60}`)}
		}},
		{name: "malformed yaml", mutate: func(f fstest.MapFS) {
			f["sequences.yaml"] = &fstest.MapFile{Data: []byte("- line: [")}
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fsys := baseFS()
			tt.mutate(fsys)
			_, err := LoadFS(fsys)
			assert.Error(t, err)
		})
	}
}

func TestLoadBundledData(t *testing.T) {
	n, err := Load("../../data")
	require.NoError(t, err)
	require.NoError(t, n.Validate())

	assert.Len(t, n.Lines, 2)
	assert.Len(t, n.Sequences, 4)
	assert.Equal(t, "blue-line", n.Stations["central"].LineID)
	assert.Equal(t, "blue-line", n.Stations["alandur"].LineID)
	assert.Equal(t, "green-line", n.Stations["koyambedu"].LineID)

	start, ok := n.ServiceStart("weekday")
	require.True(t, ok)
	assert.Equal(t, 18000.0, start)
	assert.Equal(t, 520.0, n.TravelTime("tollgate", "wimco-nagar", 150))
}
