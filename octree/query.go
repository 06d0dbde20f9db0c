package octree

import (
	"github.com/aukilabs/blobtree/geometry"
)

// all yields the entries of n depth first, in octant order. It returns false
// when yield asked to stop.
func (n *node[T]) all(yield func(Entry[T]) bool) bool {
	if n == nil {
		return true
	}

	switch n.typ {
	case leafNode:
		return yield(n.entry())

	case branchNode:
		for _, c := range n.children {
			if !c.all(yield) {
				return false
			}
		}
	}
	return true
}

// filter yields the entries of n whose extent is accepted. Subtrees whose
// hull is rejected are skipped, so entries are only complete when accept
// never rejects a box containing an accepted one. Box, line and affine plane
// tests hold this; vertex sign tests on curved functionals do not.
func (n *node[T]) filter(accept func(geometry.Box) bool, yield func(Entry[T]) bool) bool {
	if n == nil || !accept(n.hull) {
		return true
	}

	switch n.typ {
	case leafNode:
		return yield(n.entry())

	case branchNode:
		for _, c := range n.children {
			if !c.filter(accept, yield) {
				return false
			}
		}
	}
	return true
}

// intersection returns the subtree of n holding the entries whose extent is
// not disjoint from q. Subtrees entirely within q are shared as is.
func (n *node[T]) intersection(q geometry.Box) *node[T] {
	if n == nil || geometry.BoxesDisjoint(n.hull, q) {
		return nil
	}

	if n.typ == leafNode || geometry.BoxContains(n.hull, q) {
		return n
	}

	var children [8]*node[T]
	for i, c := range n.children {
		children[i] = c.intersection(q)
	}
	return newBranch(children)
}

// overlaps yields the pairs of entries of a and b whose extents are not
// disjoint. Both trees are walked together: a pair of subtrees is dropped as
// soon as their hulls are disjoint, and when both sides are branches every
// child of a is matched against every child of b.
func overlaps[T, U any](a *node[T], b *node[U], yield func(Entry[T], Entry[U]) bool) bool {
	if a == nil || b == nil || geometry.BoxesDisjoint(a.hull, b.hull) {
		return true
	}

	switch {
	case a.typ == leafNode && b.typ == leafNode:
		return yield(a.entry(), b.entry())

	case a.typ == branchNode:
		for _, c := range a.children {
			if !overlaps(c, b, yield) {
				return false
			}
		}

	default:
		for _, c := range b.children {
			if !overlaps(a, c, yield) {
				return false
			}
		}
	}
	return true
}
