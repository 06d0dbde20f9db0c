package geometry

import (
	"math"

	"gonum.org/v1/gonum/spatial/r3"
)

// Line is the infinite line through Origin along Direction.
type Line struct {
	Origin    Point
	Direction Point
}

// HalfLine is the ray starting at Origin and going along Direction.
type HalfLine struct {
	Origin    Point
	Direction Point
}

// Segment is the line segment between From and To.
type Segment struct {
	From Point
	To   Point
}

// At returns the point of the segment at parameter t, From being at 0 and To
// at 1.
func (s Segment) At(t float64) Point {
	return r3.Add(s.From, r3.Scale(t, r3.Sub(s.To, s.From)))
}

func LineIntersectsBox(l Line, b Box) bool {
	_, _, ok := clip(l.Origin, l.Direction, b, math.Inf(-1), math.Inf(1))
	return ok
}

func HalfLineIntersectsBox(h HalfLine, b Box) bool {
	_, _, ok := clip(h.Origin, h.Direction, b, 0, math.Inf(1))
	return ok
}

func LineSegmentIntersectsBox(s Segment, b Box) bool {
	_, _, ok := ClipSegment(s, b)
	return ok
}

// ClipSegment returns the parameter interval [t0, t1] of s that lies in b.
// ok is false when s misses b.
func ClipSegment(s Segment, b Box) (t0, t1 float64, ok bool) {
	return clip(s.From, r3.Sub(s.To, s.From), b, 0, 1)
}

// clip runs the slab method: the parametric interval [tmin, tmax] is
// narrowed by the interval of each axis. A zero direction component leaves
// the interval as is when the origin is within that axis of b, and fails
// otherwise.
func clip(origin, dir Point, b Box, tmin, tmax float64) (float64, float64, bool) {
	for axis := 0; axis < 3; axis++ {
		o, d := coord(origin, axis), coord(dir, axis)
		lo, hi := coord(b.Min, axis), coord(b.Max, axis)

		if d == 0 {
			if o < lo || o > hi || math.IsNaN(o) {
				return 0, 0, false
			}
			continue
		}

		t1 := (lo - o) / d
		t2 := (hi - o) / d
		if math.IsNaN(t1) || math.IsNaN(t2) {
			return 0, 0, false
		}
		if t1 > t2 {
			t1, t2 = t2, t1
		}

		tmin = math.Max(tmin, t1)
		tmax = math.Min(tmax, t2)
		if tmin > tmax {
			return 0, 0, false
		}
	}
	return tmin, tmax, true
}
