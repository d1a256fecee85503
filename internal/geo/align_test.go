package geo

import (
	"testing"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/planar"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"metro-simulator/internal/transit"
)

// alignNetwork has one straight east-west line across a 1000x100 canvas.
func alignNetwork() (*transit.Network, Projector) {
	n := transit.NewNetwork()
	n.Lines["red"] = transit.Line{ID: "red", Shape: orb.LineString{{0, 0}, {10, 0}}}
	n.Stations["w"] = transit.Station{ID: "w", Lat: 0.2, Lon: 0, LineID: "red"}
	n.Stations["m"] = transit.Station{ID: "m", Lat: -0.3, Lon: 2.5, LineID: "red"}
	n.Stations["e"] = transit.Station{ID: "e", Lat: 0.1, Lon: 10, LineID: "red"}
	n.Stations["x"] = transit.Station{ID: "x", Lat: 0.5, Lon: 5, LineID: "red"}
	n.AddSequence(transit.StopSequence{LineID: "red", Direction: "east", Stations: []string{"w", "m", "e"}}, "west")

	proj := NewProjector(orb.Bound{Min: orb.Point{0, -1}, Max: orb.Point{10, 1}}, 1000, 100, 0)
	return n, proj
}

func paths(t *testing.T, n *transit.Network, proj Projector) map[string]*PathIndex {
	out := map[string]*PathIndex{}
	for id, l := range n.Lines {
		p, err := NewPathIndex(proj.ProjectLine(l.Shape))
		require.NoError(t, err)
		out[id] = p
	}
	return out
}

func byID(ps []transit.StationPosition) map[string]transit.StationPosition {
	out := map[string]transit.StationPosition{}
	for _, p := range ps {
		out[p.StationID] = p
	}
	return out
}

func TestAlignOrdinal(t *testing.T) {
	n, proj := alignNetwork()
	a := Aligner{Projector: proj, Policy: PolicyOrdinal}

	got := a.Align(n, paths(t, n, proj))
	require.Len(t, got, 4)
	assert.Equal(t, []string{"e", "m", "w", "x"}, []string{got[0].StationID, got[1].StationID, got[2].StationID, got[3].StationID})

	pos := byID(got)
	assert.InDelta(t, 0, pos["w"].X, 1e-9)
	assert.InDelta(t, 500, pos["m"].X, 1e-9)
	assert.InDelta(t, 1000, pos["e"].X, 1e-9)
	for _, id := range []string{"w", "m", "e"} {
		assert.InDelta(t, 50, pos[id].Y, 1e-9)
	}

	// not in the sequence: projected position
	assert.InDelta(t, 500, pos["x"].X, 1e-9)
	assert.InDelta(t, 25, pos["x"].Y, 1e-9)
}

func TestAlignSnap(t *testing.T) {
	n, proj := alignNetwork()
	a := Aligner{Projector: proj, Policy: PolicySnap, Step: 10}
	ps := paths(t, n, proj)

	pos := byID(a.Align(n, ps))
	for _, id := range []string{"w", "m", "e", "x"} {
		st := n.Stations[id]
		projected := proj.Project(st.Lat, st.Lon)
		snapped := orb.Point{pos[id].X, pos[id].Y}

		assert.InDelta(t, 50, snapped[1], 1e-9, id)
		// the line is straight, so the true nearest point is straight below
		assert.LessOrEqual(t, planar.Distance(snapped, orb.Point{projected[0], 50}), a.Step/2+1e-9, id)
	}
	assert.InDelta(t, 250, pos["m"].X, 5+1e-9)
}

func TestAlignWithoutPath(t *testing.T) {
	n, proj := alignNetwork()
	a := Aligner{Projector: proj, Policy: PolicyOrdinal}

	pos := byID(a.Align(n, nil))
	assert.InDelta(t, 250, pos["m"].X, 1e-9)
	assert.InDelta(t, 65, pos["m"].Y, 1e-9)
}

func TestOrdinalProportions(t *testing.T) {
	assert.Empty(t, OrdinalProportions([]string{"a"}))
	assert.Equal(t, map[string]float64{"a": 0, "b": 0.5, "c": 1}, OrdinalProportions([]string{"a", "b", "c"}))
	assert.Equal(t, map[string]float64{"a": 0, "b": 1.0 / 3}, OrdinalProportions([]string{"a", "b", "a", "b"}))
}

func TestParsePolicy(t *testing.T) {
	p, err := ParsePolicy("")
	require.NoError(t, err)
	assert.Equal(t, PolicyOrdinal, p)

	p, err = ParsePolicy("snap")
	require.NoError(t, err)
	assert.Equal(t, PolicySnap, p)

	_, err = ParsePolicy("nearest")
	assert.Error(t, err)
}
