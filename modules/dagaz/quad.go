package dagaz

import (
	"math"

	"github.com/aukilabs/blobtree/geometry"
	"github.com/aukilabs/hagall-common/messages/dagazpb"
	"gonum.org/v1/gonum/spatial/r3"
)

const (
	// Vertical distance under which two horizontal quads are merged.
	MergeEpsilon = 0.6

	// Weight of a new sample when merged into an existing quad.
	mergeWeight = 0.2

	hitEpsilon = 0.0001
)

func EqualWithEpsilon(a, b, epsilon float64) bool {
	return math.Abs(a-b) <= epsilon
}

func InRangeWithEpsilon(value, lo, hi, epsilon float64) bool {
	return value+epsilon >= lo && value-epsilon <= hi
}

func NewPointFromProtobuf(p *dagazpb.Point) geometry.Point {
	if p == nil {
		return geometry.Point{}
	}
	return geometry.NewPoint(float64(p.X), float64(p.Y), float64(p.Z))
}

func PointToProtobuf(p geometry.Point) *dagazpb.Point {
	return &dagazpb.Point{
		X: float32(p.X),
		Y: float32(p.Y),
		Z: float32(p.Z),
	}
}

// Quad is a sampled rectangle, usually a horizontal plane such as a floor or
// a table.
type Quad struct {
	Center  geometry.Point
	Extents geometry.Point // Half-extents.

	// implicit
	Normal geometry.Point

	MergeCount uint32
}

func NewQuad(center, extents geometry.Point) Quad {
	extents = geometry.NewPoint(math.Abs(extents.X), math.Abs(extents.Y), math.Abs(extents.Z))

	return Quad{
		Center:  center,
		Extents: extents,
		Normal:  calculateNormal(center, extents),
	}
}

func NewQuadFromProtobuf(protoQuad *dagazpb.Quad) Quad {
	q := NewQuad(
		NewPointFromProtobuf(protoQuad.Center),
		NewPointFromProtobuf(protoQuad.Extents),
	)
	q.MergeCount = protoQuad.MergeCount
	return q
}

func (q Quad) ToProtobuf() *dagazpb.Quad {
	return &dagazpb.Quad{
		Center:     PointToProtobuf(q.Center),
		Extents:    PointToProtobuf(q.Extents),
		MergeCount: q.MergeCount,
	}
}

// Bounds returns the box covered by the quad.
func (q Quad) Bounds() geometry.Box {
	return geometry.Box{
		Min: r3.Sub(q.Center, q.Extents),
		Max: r3.Add(q.Center, q.Extents),
	}
}

func (q Quad) IsFinite() bool {
	return q.Bounds().IsFinite()
}

func doHorizontalPlanesOverlap(a, b Quad) bool {
	ba, bb := a.Bounds(), b.Bounds()

	if ba.Min.X >= bb.Max.X || ba.Max.X <= bb.Min.X {
		return false
	}
	if ba.Min.Z >= bb.Max.Z || ba.Max.Z <= bb.Min.Z {
		return false
	}

	// overlap on both axes -> must overlap
	return true
}

// mergeQuads moves existing towards sample and counts the merge.
func mergeQuads(existing, sample Quad) Quad {
	centerDiff := r3.Sub(sample.Center, existing.Center)
	extentsDiff := r3.Sub(sample.Extents, existing.Extents)

	merged := NewQuad(
		r3.Add(existing.Center, r3.Scale(mergeWeight, centerDiff)),
		r3.Add(existing.Extents, r3.Scale(mergeWeight, extentsDiff)),
	)
	merged.MergeCount = existing.MergeCount + sample.MergeCount + 1
	return merged
}

func calculateNormal(c, e geometry.Point) geometry.Point {
	pointA := r3.Add(c, geometry.NewPoint(e.X, e.Y, 0))
	pointB := r3.Add(c, geometry.NewPoint(0, e.Y, e.Z))
	vectorA := r3.Sub(pointA, c)
	vectorB := r3.Sub(pointB, c)

	normal := r3.Cross(vectorB, vectorA)
	if n := r3.Norm(normal); n != 0 {
		normal = r3.Scale(1/n, normal)
	}
	return normal
}

func NewSegmentFromProtobuf(protoRay *dagazpb.Ray) geometry.Segment {
	if protoRay == nil {
		return geometry.Segment{}
	}

	return geometry.Segment{
		From: NewPointFromProtobuf(protoRay.From),
		To:   NewPointFromProtobuf(protoRay.To),
	}
}

// IntersectQuad returns whether the segment s crosses the plane of q inside
// its bounds, and the segment parameter of the hit.
func IntersectQuad(s geometry.Segment, q Quad) (bool, float64) {
	dir := r3.Sub(s.To, s.From)

	denominator := r3.Dot(q.Normal, dir)
	if denominator == 0 {
		return false, -1
	}

	t := (r3.Dot(q.Normal, q.Center) - r3.Dot(q.Normal, s.From)) / denominator
	if t < 0 || t > 1 {
		return false, -1
	}

	hit := s.At(t)
	b := q.Bounds()
	if InRangeWithEpsilon(hit.X, b.Min.X, b.Max.X, hitEpsilon) &&
		InRangeWithEpsilon(hit.Y, b.Min.Y, b.Max.Y, hitEpsilon) &&
		InRangeWithEpsilon(hit.Z, b.Min.Z, b.Max.Z, hitEpsilon) {
		return true, t
	}
	return false, -1
}
