package dagaz

import (
	"iter"
	"math"

	"github.com/aukilabs/blobtree/geometry"
	"github.com/aukilabs/blobtree/models"
	"github.com/aukilabs/blobtree/octree"
)

// Quads are stored in a layer keyed by the center of their first sample.
// Merges move the stored quad but keep its key, so an entry extent does not
// always hold its point.

type DebugInfo struct {
	Depth      uint32
	PlaneCount uint32
	MergeCount uint32
	Min        geometry.Point
	Max        geometry.Point
	Occupancy  []uint32
}

// maxMergeChain bounds how many stored quads a single sample can pull
// towards each other.
const maxMergeChain = 4

// InsertQuad stores q in the layer, merging it into the closest horizontal
// quad sitting within MergeEpsilon of its height. The merged quad is then
// merged into its own closest neighbour, and so on, until no neighbour is
// close enough or maxMergeChain quads were moved. Quads that do not merge
// are stored under their center, or the next free key along x when a
// drifted quad still holds that center.
func InsertQuad(l *models.Layer, q Quad) error {
	return l.Modify(func(idx *octree.Index[any]) error {
		e, existing, ok := findMergeCandidate(idx, q, nil)
		if !ok {
			return idx.Insert(freeKey(idx, q.Center), q.Bounds(), q)
		}

		moved := make(map[geometry.Point]bool, maxMergeChain)
		for len(moved) < maxMergeChain {
			merged := mergeQuads(existing, q)
			if err := idx.Update(e.Point, merged.Bounds(), merged); err != nil {
				return err
			}
			moved[e.Point] = true

			if e, existing, ok = findMergeCandidate(idx, merged, moved); !ok {
				break
			}

			// A chained merge moves a stored quad, it is not a new sample.
			q = merged
			q.MergeCount = 0
		}
		return nil
	})
}

func freeKey(idx *octree.Index[any], p geometry.Point) geometry.Point {
	for idx.Contains(p) {
		p.X = math.Nextafter(p.X, math.Inf(1))
	}
	return p
}

// findMergeCandidate returns the stored quad q merges into. Entries whose key
// is in skip are ignored.
func findMergeCandidate(idx *octree.Index[any], q Quad, skip map[geometry.Point]bool) (octree.Entry[any], Quad, bool) {
	region := q.Bounds()
	region.Min.Y -= MergeEpsilon
	region.Max.Y += MergeEpsilon

	var (
		best     octree.Entry[any]
		bestQuad Quad
		bestDist = math.Inf(1)
	)

	for e := range idx.IntersectWithBox(region) {
		candidate, ok := e.Data.(Quad)
		if !ok || skip[e.Point] {
			continue
		}

		dist := math.Abs(candidate.Center.Y - q.Center.Y)
		if dist > MergeEpsilon || dist >= bestDist || !doHorizontalPlanesOverlap(candidate, q) {
			continue
		}

		best, bestQuad, bestDist = e, candidate, dist
	}
	return best, bestQuad, !math.IsInf(bestDist, 1)
}

// IntersectSegment returns the first quad hit by s, going from s.From to s.To.
func IntersectSegment(l *models.Layer, s geometry.Segment) (Quad, float64, bool) {
	var (
		hit  Quad
		hitT = math.Inf(1)
	)

	entries := l.Collect(models.QuerySegment, func(idx *octree.Index[any]) iter.Seq[octree.Entry[any]] {
		return idx.IntersectWithLineSegment(s)
	})

	for _, e := range entries {
		q, ok := e.Data.(Quad)
		if !ok {
			continue
		}

		if ok, t := IntersectQuad(s, q); ok && t < hitT {
			hit, hitT = q, t
		}
	}

	if math.IsInf(hitT, 1) {
		return Quad{}, -1, false
	}
	return hit, hitT, true
}

// Region returns the quads whose bounds are not disjoint from the box
// spanned by a and b.
func Region(l *models.Layer, a, b geometry.Point) []Quad {
	region := geometry.BoundingBox(a, b)

	entries := l.Collect(models.QueryBox, func(idx *octree.Index[any]) iter.Seq[octree.Entry[any]] {
		return idx.IntersectWithBox(region)
	})

	quads := make([]Quad, 0, len(entries))
	for _, e := range entries {
		if q, ok := e.Data.(Quad); ok {
			quads = append(quads, q)
		}
	}
	return quads
}

func GetDebugInfo(l *models.Layer) DebugInfo {
	idx := l.Snapshot()
	bounds := idx.Bounds()

	info := DebugInfo{
		Depth:     uint32(idx.Depth()),
		Min:       bounds.Min,
		Max:       bounds.Max,
		Occupancy: make([]uint32, 0, 8),
	}

	for e := range idx.All() {
		q, ok := e.Data.(Quad)
		if !ok {
			continue
		}
		info.PlaneCount++
		info.MergeCount += q.MergeCount
	}

	for _, n := range idx.Occupancy() {
		info.Occupancy = append(info.Occupancy, uint32(n))
	}
	return info
}
