package transit

import (
	"github.com/paulmach/orb"
)

type Direction string

type DayType string

type Station struct {
	ID     string
	Name   string
	Lat    float64
	Lon    float64
	LineID string
}

// Point returns the station location in orb's lon/lat order.
func (s Station) Point() orb.Point { return orb.Point{s.Lon, s.Lat} }

type Line struct {
	ID    string
	Name  string
	Color string
	Shape orb.LineString // lon/lat
}

// StopSequence is the ordered list of stations served by one line in one direction.
type StopSequence struct {
	LineID    string
	Direction Direction
	Stations  []string
	// Reversed marks a sequence that runs against the drawing direction of
	// the line's path.
	Reversed bool
}

// Key is the line-direction identifier used by schedules, e.g. "blue-line-down".
func (s StopSequence) Key() string { return LineDirectionKey(s.LineID, s.Direction) }

func LineDirectionKey(lineID string, dir Direction) string {
	return lineID + "-" + string(dir)
}

// Reverse returns the stop sequence travelled in the opposite direction.
func (s StopSequence) Reverse(dir Direction) StopSequence {
	return StopSequence{LineID: s.LineID, Direction: dir, Stations: ReverseStations(s.Stations), Reversed: !s.Reversed}
}

func ReverseStations(ids []string) []string {
	out := make([]string, len(ids))
	for i, id := range ids {
		out[len(ids)-1-i] = id
	}
	return out
}

type SegmentKey struct {
	From string
	To   string
}

type ServicePeriod struct {
	Name  string
	Start float64 // seconds since midnight
	End   float64 // seconds since midnight, inclusive
	// Headways maps a line-direction key to minutes between departures.
	Headways map[string]float64
}

func (p ServicePeriod) Contains(sec float64) bool {
	return sec >= p.Start && sec <= p.End
}

// Trip is one virtual train journey. Trips are rebuilt on every tick; ID is
// stable across ticks for the same departure.
type Trip struct {
	ID        string
	LineID    string
	Direction Direction
	Key       string
	Step      int     // departure index counted from service start, before jitter
	StartTime float64 // seconds since midnight, jitter applied
}

type TrainPosition struct {
	TripID      string    `json:"tripId"`
	LineID      string    `json:"lineId"`
	Direction   Direction `json:"direction"`
	Color       string    `json:"color"`
	X           float64   `json:"x"`
	Y           float64   `json:"y"`
	Progress    float64   `json:"progress"` // 0..1 along the whole path
	FromStation string    `json:"fromStation"`
	ToStation   string    `json:"toStation"`
}

type StationPosition struct {
	StationID string  `json:"stationId"`
	Name      string  `json:"name"`
	LineID    string  `json:"lineId"`
	X         float64 `json:"x"`
	Y         float64 `json:"y"`
}
