package geometry

import (
	"gonum.org/v1/gonum/spatial/r3"
)

// Functional is a scalar field whose zero set acts as a separating surface.
type Functional func(Point) float64

// Plane is the set of points p where Normal·p = Offset.
type Plane struct {
	Normal Point
	Offset float64
}

func (p Plane) Functional() Functional {
	return func(v Point) float64 {
		return r3.Dot(p.Normal, v) - p.Offset
	}
}

// BoxIntersectsPlane evaluates f at the vertices of b and reports whether
// the signs are mixed or a vertex lies on the zero set. It is exact for
// planes and only an approximation for curved zero sets, where callers must
// expect false positives.
func BoxIntersectsPlane(b Box, f Functional) bool {
	var negative, positive bool

	for _, v := range Vertices(b) {
		switch s := f(v); {
		case s == 0:
			return true
		case s < 0:
			negative = true
		default:
			positive = true
		}

		if negative && positive {
			return true
		}
	}
	return false
}

// ConvexBoxDeform maps the vertices of b through f and returns their
// bounding box.
func ConvexBoxDeform(f func(Point) Point, b Box) Box {
	vertices := Vertices(b)
	for i, v := range vertices {
		vertices[i] = f(v)
	}
	return BoundingBox(vertices[0], vertices[1:]...)
}
