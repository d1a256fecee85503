// Package sim turns a timetable into train positions. Engine.Tick computes
// one frame for a given instant; Runner drives it on a timer.
package sim

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/paulmach/orb"
	"github.com/rs/zerolog/log"

	"metro-simulator/internal/geo"
	"metro-simulator/internal/transit"
)

const (
	DefaultMaxTimeOnMap      = 5000.0
	DefaultSegmentTravelTime = 150.0
	DefaultSnapStep          = 1.0

	defaultCanvasWidth  = 1200.0
	defaultCanvasHeight = 800.0
)

type DayClassifier interface {
	Classify(t time.Time) (transit.DayType, error)
}

type Options struct {
	Projector          geo.Projector
	AlignPolicy        geo.Policy
	SnapStep           float64
	MaxTimeOnMap       float64 // seconds
	DefaultSegmentTime float64 // seconds
	Jitter             Jitter
	Location           *time.Location
	Classifier         DayClassifier
	// TravelTime overrides the network's segment travel times. Nil uses the
	// network with DefaultSegmentTime as fallback.
	TravelTime TravelTimeFunc
}

// LineView is a line's rendered geometry on the canvas.
type LineView struct {
	ID     string      `json:"id"`
	Name   string      `json:"name"`
	Color  string      `json:"color"`
	Length float64     `json:"length"`
	Points []orb.Point `json:"points"`
}

type TickResult struct {
	At      time.Time               `json:"at"`
	DayType transit.DayType         `json:"dayType"`
	Period  string                  `json:"period,omitempty"`
	Seconds float64                 `json:"seconds"`
	Trains  []transit.TrainPosition `json:"trains"`
	Skipped int                     `json:"skipped"`
}

// Engine owns everything derived from a Network at start-up: projected
// paths and aligned station positions. None of it changes after NewEngine
// returns, so Tick may be called from any goroutine.
type Engine struct {
	id       uuid.UUID
	net      *transit.Network
	opts     Options
	paths    map[string]*geo.PathIndex
	lines    []LineView
	stations []transit.StationPosition
}

func NewEngine(n *transit.Network, opts Options) (*Engine, error) {
	if err := n.Validate(); err != nil {
		return nil, err
	}
	if opts.Classifier == nil {
		return nil, errors.New("day classifier is required")
	}
	if opts.Location == nil {
		opts.Location = time.Local
	}
	if opts.MaxTimeOnMap <= 0 {
		opts.MaxTimeOnMap = DefaultMaxTimeOnMap
	}
	if opts.DefaultSegmentTime <= 0 {
		opts.DefaultSegmentTime = DefaultSegmentTravelTime
	}
	if opts.TravelTime == nil {
		def := opts.DefaultSegmentTime
		opts.TravelTime = func(from, to string) float64 {
			return n.TravelTime(from, to, def)
		}
	}
	if opts.SnapStep <= 0 {
		opts.SnapStep = DefaultSnapStep
	}
	if opts.AlignPolicy == "" {
		opts.AlignPolicy = geo.PolicyOrdinal
	}
	if opts.Projector.Width <= 0 || opts.Projector.Height <= 0 {
		opts.Projector.Width, opts.Projector.Height = defaultCanvasWidth, defaultCanvasHeight
	}
	if opts.Projector.Bounds == (orb.Bound{}) {
		b, ok := geo.NetworkBounds(n)
		if !ok {
			return nil, errors.New("network has no coordinates to derive map bounds from")
		}
		opts.Projector.Bounds = b
	}

	e := &Engine{
		id:    uuid.New(),
		net:   n,
		opts:  opts,
		paths: make(map[string]*geo.PathIndex, len(n.Lines)),
	}
	for _, id := range n.LineIDs() {
		line := n.Lines[id]
		projected := opts.Projector.ProjectLine(line.Shape)
		view := LineView{ID: id, Name: line.Name, Color: line.Color, Points: projected}
		p, err := geo.NewPathIndex(projected)
		if err != nil {
			// trains on this line are never positioned
			log.Warn().Str("line", id).Int("points", len(line.Shape)).Err(err).Msg("line has no usable path")
		} else {
			e.paths[id] = p
			view.Length = p.TotalLength()
		}
		e.lines = append(e.lines, view)
	}

	aligner := geo.Aligner{Projector: opts.Projector, Policy: opts.AlignPolicy, Step: opts.SnapStep}
	e.stations = aligner.Align(n, e.paths)

	log.Info().
		Str("engine", e.id.String()).
		Int("lines", len(n.Lines)).
		Int("stations", len(e.stations)).
		Str("align", string(opts.AlignPolicy)).
		Msg("simulation engine ready")
	return e, nil
}

func (e *Engine) ID() uuid.UUID { return e.id }

func (e *Engine) Options() Options { return e.opts }

func (e *Engine) Stations() []transit.StationPosition {
	out := make([]transit.StationPosition, len(e.stations))
	copy(out, e.stations)
	return out
}

func (e *Engine) Lines() []LineView {
	out := make([]LineView, len(e.lines))
	copy(out, e.lines)
	return out
}

// Tick computes the position of every live train at now.
func (e *Engine) Tick(now time.Time) TickResult {
	local := now.In(e.opts.Location)
	res := TickResult{At: now, Seconds: transit.SecondsOfDay(local)}

	dt, err := e.opts.Classifier.Classify(local)
	if err != nil {
		log.Warn().Err(err).Msg("cannot classify day")
		return res
	}
	res.DayType = dt

	period, ok := Resolve(e.net.Schedule, dt, res.Seconds)
	if !ok {
		return res
	}
	res.Period = period.Name

	start, _ := e.net.ServiceStart(dt)
	trips := GenerateTrips(period, e.net.Sequences, res.Seconds, TripOptions{
		ServiceStart: start,
		MaxTimeOnMap: e.opts.MaxTimeOnMap,
		Jitter:       e.opts.Jitter,
	})

	res.Trains = make([]transit.TrainPosition, 0, len(trips))
	for _, trip := range trips {
		tp, ok, err := e.position(trip, res.Seconds)
		if err != nil {
			res.Skipped++
			log.Warn().Str("trip", trip.ID).Str("line", trip.LineID).Int("step", trip.Step).Err(err).Msg("skipping trip")
			continue
		}
		if ok {
			res.Trains = append(res.Trains, tp)
		}
	}
	return res
}

func (e *Engine) position(trip transit.Trip, now float64) (tp transit.TrainPosition, ok bool, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("locate: %v", r)
		}
	}()

	line, known := e.net.Lines[trip.LineID]
	if !known {
		return tp, false, nil
	}
	seq := e.net.Sequences[trip.Key]
	pos, ok := Locate(trip, now, seq, e.opts.TravelTime, e.paths[trip.LineID])
	if !ok {
		return tp, false, nil
	}
	return transit.TrainPosition{
		TripID:      trip.ID,
		LineID:      trip.LineID,
		Direction:   trip.Direction,
		Color:       line.Color,
		X:           pos.Point[0],
		Y:           pos.Point[1],
		Progress:    pos.Proportion,
		FromStation: pos.From,
		ToStation:   pos.To,
	}, true, nil
}
