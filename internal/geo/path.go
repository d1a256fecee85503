package geo

import (
	"errors"
	"sort"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/planar"
)

var ErrDegeneratePath = errors.New("path needs at least two distinct points")

// PathIndex answers position queries by arc length along a polyline in
// canvas coordinates. It is immutable once built.
type PathIndex struct {
	line orb.LineString
	cum  []float64 // cum[i] is the arc length at line[i]
}

func NewPathIndex(line orb.LineString) (*PathIndex, error) {
	if len(line) < 2 {
		return nil, ErrDegeneratePath
	}
	cum := make([]float64, len(line))
	for i := 1; i < len(line); i++ {
		cum[i] = cum[i-1] + planar.Distance(line[i-1], line[i])
	}
	if cum[len(cum)-1] == 0 {
		return nil, ErrDegeneratePath
	}
	pts := make(orb.LineString, len(line))
	copy(pts, line)
	return &PathIndex{line: pts, cum: cum}, nil
}

func (p *PathIndex) TotalLength() float64 { return p.cum[len(p.cum)-1] }

func (p *PathIndex) PointAtProportion(f float64) orb.Point {
	return p.PointAtLength(f * p.TotalLength())
}

// PointAtLength clamps l to [0, TotalLength].
func (p *PathIndex) PointAtLength(l float64) orb.Point {
	n := len(p.line)
	if l <= 0 {
		return p.line[0]
	}
	if l >= p.cum[n-1] {
		return p.line[n-1]
	}
	// first vertex at or beyond l; i >= 1 since cum[0] == 0 < l
	i := sort.SearchFloat64s(p.cum, l)
	d0, d1 := p.cum[i-1], p.cum[i]
	a, b := p.line[i-1], p.line[i]
	if d1 == d0 {
		return a
	}
	t := (l - d0) / (d1 - d0)
	return orb.Point{a[0] + t*(b[0]-a[0]), a[1] + t*(b[1]-a[1])}
}

// Nearest samples the path every step units of arc length and returns the
// first sample with the smallest distance to target, with its arc length.
// The end of the path is always sampled.
func (p *PathIndex) Nearest(target orb.Point, step float64) (orb.Point, float64) {
	total := p.TotalLength()
	if step <= 0 || step > total {
		step = total
	}
	best := p.line[0]
	bestAt := 0.0
	bestDist := planar.Distance(best, target)
	for k := 1; ; k++ {
		l := float64(k) * step
		if l > total {
			l = total
		}
		pt := p.PointAtLength(l)
		if d := planar.Distance(pt, target); d < bestDist {
			best, bestAt, bestDist = pt, l, d
		}
		if l == total {
			break
		}
	}
	return best, bestAt
}
