// Package geo turns geographic line and station data into canvas geometry:
// projection, arc-length lookup along rendered paths and station placement.
package geo

import (
	"github.com/paulmach/orb"

	"metro-simulator/internal/transit"
)

// Projector maps lon/lat onto a fixed-size canvas whose origin is the top
// left corner. Inputs outside Bounds land outside the canvas; that is not an
// error.
type Projector struct {
	Bounds  orb.Bound
	Width   float64
	Height  float64
	Padding float64
}

func NewProjector(bounds orb.Bound, width, height, padding float64) Projector {
	return Projector{Bounds: bounds, Width: width, Height: height, Padding: padding}
}

func (p Projector) Project(lat, lon float64) orb.Point {
	fx := fraction(lon, p.Bounds.Min[0], p.Bounds.Max[0])
	fy := fraction(lat, p.Bounds.Min[1], p.Bounds.Max[1])
	w := p.Width - 2*p.Padding
	h := p.Height - 2*p.Padding
	return orb.Point{
		p.Padding + fx*w,
		p.Padding + (1-fy)*h, // higher latitude is nearer the top
	}
}

func (p Projector) ProjectPoint(ll orb.Point) orb.Point {
	return p.Project(ll[1], ll[0])
}

func (p Projector) ProjectLine(ls orb.LineString) orb.LineString {
	out := make(orb.LineString, len(ls))
	for i, pt := range ls {
		out[i] = p.ProjectPoint(pt)
	}
	return out
}

func fraction(v, lo, hi float64) float64 {
	if hi == lo {
		return 0.5
	}
	return (v - lo) / (hi - lo)
}

// NetworkBounds is the extent of every station and shape coordinate in n.
func NetworkBounds(n *transit.Network) (orb.Bound, bool) {
	var b orb.Bound
	found := false
	extend := func(pt orb.Point) {
		if !found {
			b = pt.Bound()
			found = true
			return
		}
		b = b.Extend(pt)
	}
	for _, st := range n.Stations {
		extend(st.Point())
	}
	for _, l := range n.Lines {
		for _, pt := range l.Shape {
			extend(pt)
		}
	}
	return b, found
}
