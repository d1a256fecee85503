package sim

import (
	"github.com/paulmach/orb"

	"metro-simulator/internal/geo"
	"metro-simulator/internal/transit"
)

type Position struct {
	Point      orb.Point
	Proportion float64 // along the whole path
	Segment    int     // index of the departure station in the sequence
	Progress   float64 // within the segment
	From       string
	To         string
}

// TravelTimeFunc returns the seconds between two consecutive stations.
type TravelTimeFunc func(from, to string) float64

// Locate finds where trip is at now by walking the stop sequence and
// accumulating segment travel times. Inside a segment the train moves
// linearly between the ordinal proportions i/(N-1) and (i+1)/(N-1) of the
// path, regardless of where station markers were drawn; a reversed sequence
// measures them from the far end. A finished trip, a trip not yet started or
// a missing path yields false.
func Locate(trip transit.Trip, now float64, seq transit.StopSequence, travel TravelTimeFunc, path *geo.PathIndex) (Position, bool) {
	stations := seq.Stations
	if path == nil || len(stations) < 2 {
		return Position{}, false
	}
	elapsed := now - trip.StartTime
	if elapsed < 0 {
		return Position{}, false
	}

	last := float64(len(stations) - 1)
	cum := 0.0
	for i := 0; i < len(stations)-1; i++ {
		seg := travel(stations[i], stations[i+1])
		if elapsed >= cum && elapsed < cum+seg {
			progress := (elapsed - cum) / seg
			from := float64(i) / last
			to := float64(i+1) / last
			prop := from + progress*(to-from)
			if seq.Reversed {
				prop = 1 - prop
			}
			return Position{
				Point:      path.PointAtProportion(prop),
				Proportion: prop,
				Segment:    i,
				Progress:   progress,
				From:       stations[i],
				To:         stations[i+1],
			}, true
		}
		cum += seg
	}
	return Position{}, false
}
