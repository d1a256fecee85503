package geo

import (
	"fmt"
	"sort"

	"github.com/sourcegraph/conc/pool"

	"metro-simulator/internal/transit"
)

type Policy string

const (
	// PolicyOrdinal spaces a line's stations evenly by stop index.
	PolicyOrdinal Policy = "ordinal"
	// PolicySnap moves each station to the nearest sampled point of its line.
	PolicySnap Policy = "snap"
)

func ParsePolicy(s string) (Policy, error) {
	switch Policy(s) {
	case PolicyOrdinal, PolicySnap:
		return Policy(s), nil
	case "":
		return PolicyOrdinal, nil
	}
	return "", fmt.Errorf("unknown align policy %q", s)
}

type Aligner struct {
	Projector Projector
	Policy    Policy
	// Step is the arc-length sampling interval used by PolicySnap. Snapped
	// points are within Step/2 of the true nearest distance.
	Step float64
}

// Align computes one canvas position per station. Stations whose line has no
// usable path, or that are missing from their line's stop sequence under
// PolicyOrdinal, keep their projected location. The result is sorted by
// station ID.
func (a Aligner) Align(n *transit.Network, paths map[string]*PathIndex) []transit.StationPosition {
	byLine := make(map[string][]transit.Station)
	for _, st := range n.Stations {
		byLine[st.LineID] = append(byLine[st.LineID], st)
	}

	p := pool.NewWithResults[[]transit.StationPosition]()
	for lineID, stations := range byLine {
		lineID, stations := lineID, stations
		p.Go(func() []transit.StationPosition {
			return a.alignLine(n, lineID, stations, paths[lineID])
		})
	}

	var out []transit.StationPosition
	for _, res := range p.Wait() {
		out = append(out, res...)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StationID < out[j].StationID })
	return out
}

func (a Aligner) alignLine(n *transit.Network, lineID string, stations []transit.Station, path *PathIndex) []transit.StationPosition {
	var ordinal map[string]float64
	if path != nil && a.Policy == PolicyOrdinal {
		if seq, ok := n.PrimarySequence(lineID); ok {
			ordinal = OrdinalProportions(seq.Stations)
		}
	}

	out := make([]transit.StationPosition, 0, len(stations))
	for _, st := range stations {
		pt := a.Projector.Project(st.Lat, st.Lon)
		switch {
		case path == nil:
		case a.Policy == PolicySnap:
			pt, _ = path.Nearest(pt, a.Step)
		default:
			if f, ok := ordinal[st.ID]; ok {
				pt = path.PointAtProportion(f)
			}
		}
		out = append(out, transit.StationPosition{
			StationID: st.ID,
			Name:      st.Name,
			LineID:    lineID,
			X:         pt[0],
			Y:         pt[1],
		})
	}
	return out
}

// OrdinalProportions places the station at index i of an N-stop sequence at
// i/(N-1). A station listed twice keeps its first index.
func OrdinalProportions(stations []string) map[string]float64 {
	out := make(map[string]float64, len(stations))
	if len(stations) < 2 {
		return out
	}
	last := float64(len(stations) - 1)
	for i, id := range stations {
		if _, seen := out[id]; !seen {
			out[id] = float64(i) / last
		}
	}
	return out
}
