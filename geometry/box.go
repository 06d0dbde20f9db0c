package geometry

import (
	"fmt"
	"math"

	"github.com/aukilabs/go-tooling/pkg/errors"
	"gonum.org/v1/gonum/spatial/r3"
)

const (
	ErrTypeMalformedBox = "malformed_box"
)

// Point is a location in 3D space.
type Point = r3.Vec

func NewPoint(x, y, z float64) Point {
	return Point{X: x, Y: y, Z: z}
}

// Box is an axis-aligned box. On each axis it covers the half-open interval
// [Min, Max). Zero volume boxes are legal.
type Box struct {
	Min Point
	Max Point
}

// NewBox returns the box ((minX, maxX), (minY, maxY), (minZ, maxZ)).
func NewBox(minX, maxX, minY, maxY, minZ, maxZ float64) Box {
	return Box{
		Min: Point{X: minX, Y: minY, Z: minZ},
		Max: Point{X: maxX, Y: maxY, Z: maxZ},
	}
}

// Validate returns a malformed_box error when Min > Max on an axis or when a
// coordinate is NaN.
func (b Box) Validate() error {
	for axis := 0; axis < 3; axis++ {
		lo, hi := coord(b.Min, axis), coord(b.Max, axis)
		if math.IsNaN(lo) || math.IsNaN(hi) || lo > hi {
			return errors.New("malformed box").
				WithType(ErrTypeMalformedBox).
				WithTag("axis", axisNames[axis]).
				WithTag("min", lo).
				WithTag("max", hi)
		}
	}
	return nil
}

// IsFinite reports whether no coordinate of b is infinite or NaN.
func (b Box) IsFinite() bool {
	for _, v := range [6]float64{b.Min.X, b.Min.Y, b.Min.Z, b.Max.X, b.Max.Y, b.Max.Z} {
		if math.IsInf(v, 0) || math.IsNaN(v) {
			return false
		}
	}
	return true
}

func (b Box) String() string {
	return fmt.Sprintf("((%g, %g), (%g, %g), (%g, %g))",
		b.Min.X, b.Max.X,
		b.Min.Y, b.Max.Y,
		b.Min.Z, b.Max.Z,
	)
}

var axisNames = [3]string{"x", "y", "z"}

func coord(p Point, axis int) float64 {
	switch axis {
	case 0:
		return p.X
	case 1:
		return p.Y
	default:
		return p.Z
	}
}

// PointInBox reports whether p lies in b, using min <= c < max on every
// axis so a point on a shared octant face belongs to exactly one octant.
func PointInBox(p Point, b Box) bool {
	return b.Min.X <= p.X && p.X < b.Max.X &&
		b.Min.Y <= p.Y && p.Y < b.Max.Y &&
		b.Min.Z <= p.Z && p.Z < b.Max.Z
}

func BoxContains(inner, outer Box) bool {
	return outer.Min.X <= inner.Min.X && inner.Max.X <= outer.Max.X &&
		outer.Min.Y <= inner.Min.Y && inner.Max.Y <= outer.Max.Y &&
		outer.Min.Z <= inner.Min.Z && inner.Max.Z <= outer.Max.Z
}

// BoxesDisjoint reports whether b1 and b2 are separated on some axis.
// Boxes that only touch are not disjoint: they are possible overlaps.
func BoxesDisjoint(b1, b2 Box) bool {
	return b1.Max.X < b2.Min.X || b2.Max.X < b1.Min.X ||
		b1.Max.Y < b2.Min.Y || b2.Max.Y < b1.Min.Y ||
		b1.Max.Z < b2.Min.Z || b2.Max.Z < b1.Min.Z
}

func UnionBox(b1, b2 Box) Box {
	return Box{
		Min: Point{
			X: math.Min(b1.Min.X, b2.Min.X),
			Y: math.Min(b1.Min.Y, b2.Min.Y),
			Z: math.Min(b1.Min.Z, b2.Min.Z),
		},
		Max: Point{
			X: math.Max(b1.Max.X, b2.Max.X),
			Y: math.Max(b1.Max.Y, b2.Max.Y),
			Z: math.Max(b1.Max.Z, b2.Max.Z),
		},
	}
}

// Centroid returns the center of b. Halves are summed separately so that
// boxes spanning the whole float range do not overflow.
func Centroid(b Box) Point {
	return Point{
		X: b.Min.X/2 + b.Max.X/2,
		Y: b.Min.Y/2 + b.Max.Y/2,
		Z: b.Min.Z/2 + b.Max.Z/2,
	}
}

func Volume(b Box) float64 {
	size := r3.Sub(b.Max, b.Min)
	return size.X * size.Y * size.Z
}

// Vertices returns the 8 corners of b. Corner i takes Max on x when bit 2 is
// set, on y when bit 1 is set and on z when bit 0 is set.
func Vertices(b Box) [8]Point {
	var vertices [8]Point
	for i := range vertices {
		v := b.Min
		if i&4 != 0 {
			v.X = b.Max.X
		}
		if i&2 != 0 {
			v.Y = b.Max.Y
		}
		if i&1 != 0 {
			v.Z = b.Max.Z
		}
		vertices[i] = v
	}
	return vertices
}

// BoundingBox returns the smallest box holding all the given points.
func BoundingBox(first Point, others ...Point) Box {
	b := Box{Min: first, Max: first}
	for _, p := range others {
		b = UnionBox(b, Box{Min: p, Max: p})
	}
	return b
}

// Subboxes splits b at its centroid into 8 octants. Octant i is the high
// half on x when bit 2 is set, on y when bit 1 is set and on z when bit 0 is
// set. Narrow routes points with the same numbering.
func Subboxes(b Box) [8]Box {
	mid := Centroid(b)

	var boxes [8]Box
	for i := range boxes {
		boxes[i] = octant(b, mid, i)
	}
	return boxes
}

// Narrow returns the octant of b that holds p, and its bounds.
func Narrow(b Box, p Point) (int, Box) {
	mid := Centroid(b)

	i := 0
	if p.X >= mid.X {
		i |= 4
	}
	if p.Y >= mid.Y {
		i |= 2
	}
	if p.Z >= mid.Z {
		i |= 1
	}
	return i, octant(b, mid, i)
}

func octant(b Box, mid Point, i int) Box {
	o := b
	if i&4 == 0 {
		o.Max.X = mid.X
	} else {
		o.Min.X = mid.X
	}
	if i&2 == 0 {
		o.Max.Y = mid.Y
	} else {
		o.Min.Y = mid.Y
	}
	if i&1 == 0 {
		o.Max.Z = mid.Z
	} else {
		o.Min.Z = mid.Z
	}
	return o
}
