// Package octree implements the blob octree: a persistent spatial index that
// maps unique reference points to an extent and an opaque payload.
//
// Points are routed through octants of the index bounds, one point per leaf.
// Extents are free: they do not have to contain their point nor fit in its
// octant, so every subtree caches the union of the extents below it and
// range queries prune on that union.
//
// The tree is immutable. Insert and Update replace the root of an Index with
// a new tree sharing all untouched subtrees, which makes Copy O(1) and lets
// readers iterate a snapshot while the Index keeps changing. An Index itself
// is not safe for concurrent writers.
package octree

import (
	"io"
	"iter"
	"reflect"
	"strings"

	"github.com/aukilabs/blobtree/geometry"
	"github.com/aukilabs/go-tooling/pkg/errors"
)

// Entry is an indexed item.
type Entry[T any] struct {
	Point  geometry.Point
	Bounds geometry.Box
	Data   T
}

// Index is a blob octree over a fixed domain.
type Index[T any] struct {
	bounds geometry.Box
	root   *node[T]
}

// New returns an empty index whose points must lie in bounds. The bounds
// must be finite since they are bisected to route points.
func New[T any](bounds geometry.Box) (*Index[T], error) {
	if err := bounds.Validate(); err != nil {
		return nil, err
	}

	if !bounds.IsFinite() {
		return nil, errors.New("index bounds are not finite").
			WithType(geometry.ErrTypeMalformedBox).
			WithTag("bounds", bounds.String())
	}
	return &Index[T]{bounds: bounds}, nil
}

// Bounds returns the domain of the index.
func (idx *Index[T]) Bounds() geometry.Box {
	return idx.bounds
}

// Len returns the number of entries.
func (idx *Index[T]) Len() int {
	return idx.root.len()
}

// Depth returns the number of branch levels of the tree.
func (idx *Index[T]) Depth() int {
	return idx.root.depth()
}

// Insert adds an entry at p. It fails with malformed_box when b is invalid,
// out_of_bounds when p is not in the index bounds and duplicate_key when p
// already has an entry. The index is left unchanged on failure.
func (idx *Index[T]) Insert(p geometry.Point, b geometry.Box, d T) error {
	return idx.put(p, b, d, false)
}

// Update sets the entry at p, adding it when missing.
func (idx *Index[T]) Update(p geometry.Point, b geometry.Box, d T) error {
	return idx.put(p, b, d, true)
}

func (idx *Index[T]) put(p geometry.Point, b geometry.Box, d T, overwrite bool) error {
	if err := b.Validate(); err != nil {
		return err
	}

	if !geometry.PointInBox(p, idx.bounds) {
		return errors.New("point is out of bounds").
			WithType(ErrTypeOutOfBounds).
			WithTag("point", p).
			WithTag("bounds", idx.bounds.String())
	}

	root, err := insert(idx.root, idx.bounds, p, b, d, overwrite)
	if err != nil {
		return err
	}
	idx.root = root
	return nil
}

// Extend inserts the given entries in order. It stops at the first failing
// insertion; entries inserted before it are kept.
func (idx *Index[T]) Extend(entries iter.Seq[Entry[T]]) error {
	for e := range entries {
		if err := idx.Insert(e.Point, e.Bounds, e.Data); err != nil {
			return err
		}
	}
	return nil
}

// Get returns the entry at p.
func (idx *Index[T]) Get(p geometry.Point) (Entry[T], bool) {
	n := lookup(idx.root, idx.bounds, p)
	if n == nil {
		return Entry[T]{}, false
	}
	return n.entry(), true
}

func (idx *Index[T]) Contains(p geometry.Point) bool {
	return lookup(idx.root, idx.bounds, p) != nil
}

// Copy returns an index sharing the current tree. Later writes to either
// index do not affect the other.
func (idx *Index[T]) Copy() *Index[T] {
	return &Index[T]{
		bounds: idx.bounds,
		root:   idx.root,
	}
}

// All returns the entries of the index. The sequence iterates the tree as
// it was when All was called and can be ranged over any number of times.
func (idx *Index[T]) All() iter.Seq[Entry[T]] {
	root := idx.root
	return func(yield func(Entry[T]) bool) {
		root.all(yield)
	}
}

// IntersectionWithBox returns an index holding the entries whose extent is
// not disjoint from q.
func (idx *Index[T]) IntersectionWithBox(q geometry.Box) *Index[T] {
	return &Index[T]{
		bounds: idx.bounds,
		root:   idx.root.intersection(q),
	}
}

// IntersectWithBox returns the entries whose extent is not disjoint from q.
func (idx *Index[T]) IntersectWithBox(q geometry.Box) iter.Seq[Entry[T]] {
	return idx.intersectWith(func(b geometry.Box) bool {
		return !geometry.BoxesDisjoint(b, q)
	})
}

func (idx *Index[T]) IntersectWithLine(l geometry.Line) iter.Seq[Entry[T]] {
	return idx.intersectWith(func(b geometry.Box) bool {
		return geometry.LineIntersectsBox(l, b)
	})
}

func (idx *Index[T]) IntersectWithHalfLine(h geometry.HalfLine) iter.Seq[Entry[T]] {
	return idx.intersectWith(func(b geometry.Box) bool {
		return geometry.HalfLineIntersectsBox(h, b)
	})
}

func (idx *Index[T]) IntersectWithLineSegment(s geometry.Segment) iter.Seq[Entry[T]] {
	return idx.intersectWith(func(b geometry.Box) bool {
		return geometry.LineSegmentIntersectsBox(s, b)
	})
}

// IntersectWithPlane returns the entries whose extent is accepted by
// geometry.BoxIntersectsPlane. Results are exact when f is affine. For curved
// zero sets the vertex test can accept extents the surface misses, and since
// subtrees are pruned with the same test on their hull, it can also drop
// entries whose own extent would be accepted.
func (idx *Index[T]) IntersectWithPlane(f geometry.Functional) iter.Seq[Entry[T]] {
	return idx.intersectWith(func(b geometry.Box) bool {
		return geometry.BoxIntersectsPlane(b, f)
	})
}

func (idx *Index[T]) intersectWith(accept func(geometry.Box) bool) iter.Seq[Entry[T]] {
	root := idx.root
	return func(yield func(Entry[T]) bool) {
		root.filter(accept, yield)
	}
}

// Occupancy returns the number of entries in each octant of the index
// bounds.
func (idx *Index[T]) Occupancy() [8]int {
	var occupancy [8]int

	switch n := idx.root; {
	case n == nil:
	case n.typ == leafNode:
		i, _ := geometry.Narrow(idx.bounds, n.point)
		occupancy[i] = 1
	default:
		for i, c := range n.children {
			occupancy[i] = c.len()
		}
	}
	return occupancy
}

// Equal reports whether both indexes have the same bounds and entries.
// Payloads are compared with reflect.DeepEqual.
func (idx *Index[T]) Equal(other *Index[T]) bool {
	return idx.EqualFunc(other, func(a, b T) bool {
		return reflect.DeepEqual(a, b)
	})
}

// EqualFunc is like Equal but compares payloads with eq. The result does not
// depend on the order entries were written in.
func (idx *Index[T]) EqualFunc(other *Index[T], eq func(a, b T) bool) bool {
	if idx.bounds != other.bounds || idx.Len() != other.Len() {
		return false
	}

	for e := range idx.All() {
		o, ok := other.Get(e.Point)
		if !ok || o.Bounds != e.Bounds || !eq(e.Data, o.Data) {
			return false
		}
	}
	return true
}

// Debug writes a description of the tree structure to w.
func (idx *Index[T]) Debug(w io.Writer) {
	idx.root.debug(w, idx.bounds, -1, 0)
}

func (idx *Index[T]) DebugString() string {
	var b strings.Builder
	idx.Debug(&b)
	return b.String()
}

// PossibleOverlaps returns every pair of entries, one from a and one from b,
// whose extents are not disjoint. a and b can have different bounds.
func PossibleOverlaps[T, U any](a *Index[T], b *Index[U]) iter.Seq2[Entry[T], Entry[U]] {
	ra, rb := a.root, b.root
	return func(yield func(Entry[T], Entry[U]) bool) {
		overlaps(ra, rb, yield)
	}
}

// ByPossibleOverlap returns, for each entry of a overlapping at least one
// entry of b, the entry and the entries of b it possibly overlaps.
func ByPossibleOverlap[T, U any](a *Index[T], b *Index[U]) iter.Seq2[Entry[T], []Entry[U]] {
	ra, rb := a.root, b.root
	return func(yield func(Entry[T], []Entry[U]) bool) {
		ra.all(func(e Entry[T]) bool {
			leaf := newLeaf(e.Point, e.Bounds, e.Data)

			var matches []Entry[U]
			overlaps(leaf, rb, func(_ Entry[T], m Entry[U]) bool {
				matches = append(matches, m)
				return true
			})

			if len(matches) == 0 {
				return true
			}
			return yield(e, matches)
		})
	}
}
