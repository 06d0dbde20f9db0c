package geometry

import (
	"math"

	"gonum.org/v1/gonum/spatial/r3"
)

// NearestPointInBox returns the point of b closest to p.
func NearestPointInBox(p Point, b Box) Point {
	return Point{
		X: clamp(p.X, b.Min.X, b.Max.X),
		Y: clamp(p.Y, b.Min.Y, b.Max.Y),
		Z: clamp(p.Z, b.Min.Z, b.Max.Z),
	}
}

// FurthestPointInBox returns the corner of b furthest from p.
func FurthestPointInBox(p Point, b Box) Point {
	return Point{
		X: furthest(p.X, b.Min.X, b.Max.X),
		Y: furthest(p.Y, b.Min.Y, b.Max.Y),
		Z: furthest(p.Z, b.Min.Z, b.Max.Z),
	}
}

func EuclideanPointPoint(p1, p2 Point) float64 {
	return r3.Norm(r3.Sub(p1, p2))
}

// EuclideanPointBox returns the distance between p and the nearest point of
// b, which is 0 when p is in b.
func EuclideanPointBox(p Point, b Box) float64 {
	return EuclideanPointPoint(p, NearestPointInBox(p, b))
}

// EuclideanBoxBox returns the smallest distance between a point of b1 and a
// point of b2.
func EuclideanBoxBox(b1, b2 Box) float64 {
	d, _ := EuclideanBoxBoxMinMax(b1, b2)
	return d
}

// EuclideanBoxBoxMax returns the largest distance between a point of b1 and
// a point of b2.
func EuclideanBoxBoxMax(b1, b2 Box) float64 {
	_, d := EuclideanBoxBoxMinMax(b1, b2)
	return d
}

func EuclideanBoxBoxMinMax(b1, b2 Box) (float64, float64) {
	var gap, span Point
	gap.X, span.X = axisMinMax(b1.Min.X, b1.Max.X, b2.Min.X, b2.Max.X)
	gap.Y, span.Y = axisMinMax(b1.Min.Y, b1.Max.Y, b2.Min.Y, b2.Max.Y)
	gap.Z, span.Z = axisMinMax(b1.Min.Z, b1.Max.Z, b2.Min.Z, b2.Max.Z)
	return r3.Norm(gap), r3.Norm(span)
}

func axisMinMax(lo1, hi1, lo2, hi2 float64) (float64, float64) {
	gap := math.Max(0, math.Max(lo2-hi1, lo1-hi2))
	span := math.Max(hi1-lo2, hi2-lo1)
	return gap, span
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(v, hi))
}

func furthest(v, lo, hi float64) float64 {
	if math.Abs(v-lo) > math.Abs(v-hi) {
		return lo
	}
	return hi
}
