// Package dataset reads a network from a directory of static files:
//
//	routes.json        [{route_id, route_name, color}]
//	stops.json         [{stop_id, stop_name, lat, lon, line_id}]
//	shapes.json        {route_id: [[lon, lat], ...]}
//	sequences.yaml     [{line, direction, reverse, reversed, stations: [...]}]
//	schedule.json      {day_type: [{name, start, end, headways_mins: {key: minutes}}]}
//	travel_times.json  {"from_to": seconds}   or travel_times.csv (from,to,seconds)
//
// JSON files are read with the YAML decoder, so either syntax works for any
// of them.
package dataset

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/gocarina/gocsv"
	"github.com/paulmach/orb"
	"github.com/rs/zerolog/log"
	"gopkg.in/yaml.v3"

	"metro-simulator/internal/transit"
)

type route struct {
	ID    string `yaml:"route_id"`
	Name  string `yaml:"route_name"`
	Color string `yaml:"color"`
}

type stop struct {
	ID     string  `yaml:"stop_id"`
	Name   string  `yaml:"stop_name"`
	Lat    float64 `yaml:"lat"`
	Lon    float64 `yaml:"lon"`
	LineID string  `yaml:"line_id"`
}

type sequence struct {
	Line      string   `yaml:"line"`
	Direction string   `yaml:"direction"`
	Reverse   string   `yaml:"reverse"`
	Reversed  bool     `yaml:"reversed"` // runs against the shape's drawing direction
	Stations  []string `yaml:"stations"`
}

type period struct {
	Name     string             `yaml:"name"`
	Start    string             `yaml:"start"`
	End      string             `yaml:"end"`
	Headways map[string]float64 `yaml:"headways_mins"`
}

type travelTimeRow struct {
	From    string  `csv:"from"`
	To      string  `csv:"to"`
	Seconds float64 `csv:"seconds"`
}

// Load reads every file of the data set in dir. The result is not validated.
func Load(dir string) (*transit.Network, error) {
	return LoadFS(os.DirFS(dir))
}

func LoadFS(fsys fs.FS) (*transit.Network, error) {
	n := transit.NewNetwork()

	var routes []route
	if err := decode(fsys, "routes.json", &routes); err != nil {
		return nil, err
	}
	for _, r := range routes {
		n.Lines[r.ID] = transit.Line{ID: r.ID, Name: r.Name, Color: r.Color}
	}

	var shapes map[string][][]float64
	if err := decode(fsys, "shapes.json", &shapes); err != nil {
		return nil, err
	}
	for id, coords := range shapes {
		line, ok := n.Lines[id]
		if !ok {
			log.Warn().Str("line", id).Msg("shape for unknown route ignored")
			continue
		}
		ls := make(orb.LineString, 0, len(coords))
		for i, c := range coords {
			if len(c) < 2 {
				return nil, fmt.Errorf("shapes.json: %s point %d: want [lon, lat]", id, i)
			}
			ls = append(ls, orb.Point{c[0], c[1]})
		}
		line.Shape = ls
		n.Lines[id] = line
	}

	var seqs []sequence
	if err := decode(fsys, "sequences.yaml", &seqs); err != nil {
		return nil, err
	}
	for _, s := range seqs {
		n.AddSequence(transit.StopSequence{
			LineID:    s.Line,
			Direction: transit.Direction(s.Direction),
			Stations:  s.Stations,
			Reversed:  s.Reversed,
		}, transit.Direction(s.Reverse))
	}

	var stops []stop
	if err := decode(fsys, "stops.json", &stops); err != nil {
		return nil, err
	}
	for _, s := range stops {
		st := transit.Station{ID: s.ID, Name: s.Name, Lat: s.Lat, Lon: s.Lon, LineID: s.LineID}
		if st.LineID == "" {
			st.LineID = n.OwningLine(s.ID)
		}
		n.Stations[s.ID] = st
	}

	var schedule map[string][]period
	if err := decode(fsys, "schedule.json", &schedule); err != nil {
		return nil, err
	}
	for dt, periods := range schedule {
		for i, p := range periods {
			sp, err := servicePeriod(p)
			if err != nil {
				return nil, fmt.Errorf("schedule.json: %s period %d: %w", dt, i, err)
			}
			n.Schedule[transit.DayType(dt)] = append(n.Schedule[transit.DayType(dt)], sp)
		}
	}

	if err := loadTravelTimes(fsys, n); err != nil {
		return nil, err
	}

	log.Info().
		Int("lines", len(n.Lines)).
		Int("stations", len(n.Stations)).
		Int("sequences", len(n.Sequences)).
		Int("travel_times", len(n.TravelTimes)).
		Int("day_types", len(n.Schedule)).
		Msg("dataset loaded")
	return n, nil
}

func decode(fsys fs.FS, name string, v any) error {
	b, err := fs.ReadFile(fsys, name)
	if err != nil {
		return fmt.Errorf("read %s: %w", name, err)
	}
	if err := yaml.Unmarshal(b, v); err != nil {
		return fmt.Errorf("parse %s: %w", name, err)
	}
	return nil
}

func servicePeriod(p period) (transit.ServicePeriod, error) {
	start, err := transit.ParseClock(p.Start)
	if err != nil {
		return transit.ServicePeriod{}, err
	}
	end, err := transit.ParseClock(p.End)
	if err != nil {
		return transit.ServicePeriod{}, err
	}
	name := p.Name
	if name == "" {
		name = p.Start + "-" + p.End
	}
	return transit.ServicePeriod{Name: name, Start: start, End: end, Headways: p.Headways}, nil
}

func loadTravelTimes(fsys fs.FS, n *transit.Network) error {
	f, err := fsys.Open("travel_times.csv")
	switch {
	case err == nil:
		defer f.Close()
		return readTravelTimesCSV(f, n)
	case !errors.Is(err, fs.ErrNotExist):
		return fmt.Errorf("open travel_times.csv: %w", err)
	}

	var raw map[string]float64
	if err := decode(fsys, "travel_times.json", &raw); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			// every segment uses the default travel time
			return nil
		}
		return err
	}
	for key, sec := range raw {
		seg, ok := splitSegmentKey(n, key)
		if !ok {
			return fmt.Errorf("travel_times.json: cannot split %q into two known stations", key)
		}
		n.TravelTimes[seg] = sec
	}
	return nil
}

func readTravelTimesCSV(r io.Reader, n *transit.Network) error {
	var rows []travelTimeRow
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true
	if err := gocsv.UnmarshalCSV(reader, &rows); err != nil {
		return fmt.Errorf("parse travel_times.csv: %w", err)
	}
	for _, row := range rows {
		n.TravelTimes[transit.SegmentKey{From: row.From, To: row.To}] = row.Seconds
	}
	return nil
}

// splitSegmentKey splits "from_to". Station IDs may themselves contain
// underscores, so every split point is tried against the known stations.
func splitSegmentKey(n *transit.Network, key string) (transit.SegmentKey, bool) {
	for i := 0; i < len(key); i++ {
		if key[i] != '_' {
			continue
		}
		from, to := key[:i], key[i+1:]
		_, okFrom := n.Stations[from]
		_, okTo := n.Stations[to]
		if okFrom && okTo {
			return transit.SegmentKey{From: from, To: to}, true
		}
	}
	if from, to, ok := strings.Cut(key, "_"); ok && len(n.Stations) == 0 {
		return transit.SegmentKey{From: from, To: to}, true
	}
	return transit.SegmentKey{}, false
}

// Dir returns an absolute form of dir for logging.
func Dir(dir string) string {
	if abs, err := filepath.Abs(dir); err == nil {
		return abs
	}
	return dir
}
