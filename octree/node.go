package octree

import (
	"github.com/aukilabs/blobtree/geometry"
	"github.com/aukilabs/go-tooling/pkg/errors"
)

type nodeType uint8

const (
	leafNode nodeType = iota + 1
	branchNode
)

func (t nodeType) String() string {
	switch t {
	case leafNode:
		return "leaf"
	case branchNode:
		return "branch"
	default:
		return "empty"
	}
}

// node is a tree node. A nil node is empty. Nodes are never modified after
// construction: a write rebuilds the path from the root to the written leaf
// and shares every other subtree with the previous tree.
//
// Octant bounds are not stored. They are derived from the index bounds by
// bisecting on the way down.
type node[T any] struct {
	typ nodeType

	// Number of entries in the subtree and union of their extents.
	size int
	hull geometry.Box

	point  geometry.Point
	bounds geometry.Box
	data   T

	children *[8]*node[T]
}

func newLeaf[T any](p geometry.Point, b geometry.Box, d T) *node[T] {
	return &node[T]{
		typ:    leafNode,
		size:   1,
		hull:   b,
		point:  p,
		bounds: b,
		data:   d,
	}
}

// newBranch returns a branch over the given children, or nil when they are
// all empty.
func newBranch[T any](children [8]*node[T]) *node[T] {
	n := &node[T]{
		typ:      branchNode,
		children: &children,
	}

	for _, c := range children {
		if c == nil {
			continue
		}

		if n.size == 0 {
			n.hull = c.hull
		} else {
			n.hull = geometry.UnionBox(n.hull, c.hull)
		}
		n.size += c.size
	}

	if n.size == 0 {
		return nil
	}
	return n
}

func (n *node[T]) len() int {
	if n == nil {
		return 0
	}
	return n.size
}

func (n *node[T]) entry() Entry[T] {
	return Entry[T]{
		Point:  n.point,
		Bounds: n.bounds,
		Data:   n.data,
	}
}

// insert returns a new tree where p maps to (b, d). region is the bounds of
// n. When overwrite is false, an existing entry at p is a duplicate_key
// error.
func insert[T any](n *node[T], region geometry.Box, p geometry.Point, b geometry.Box, d T, overwrite bool) (*node[T], error) {
	if n == nil {
		return newLeaf(p, b, d), nil
	}

	switch n.typ {
	case leafNode:
		if n.point != p {
			return split(region, n, newLeaf(p, b, d))
		}

		if !overwrite {
			return nil, errors.New("point already has an entry").
				WithType(ErrTypeDuplicateKey).
				WithTag("point", p)
		}
		return newLeaf(p, b, d), nil

	case branchNode:
		i, sub := geometry.Narrow(region, p)

		child, err := insert(n.children[i], sub, p, b, d, overwrite)
		if err != nil {
			return nil, err
		}

		children := *n.children
		children[i] = child
		return newBranch(children), nil

	default:
		return nil, errors.Newf("unknown node type %v", n.typ)
	}
}

// split returns a branch holding the leaves a and b, pushed down until their
// points fall in different octants.
func split[T any](region geometry.Box, a, b *node[T]) (*node[T], error) {
	ia, sub := geometry.Narrow(region, a.point)
	ib, _ := geometry.Narrow(region, b.point)

	var children [8]*node[T]
	if ia != ib {
		children[ia] = a
		children[ib] = b
		return newBranch(children), nil
	}

	// Bisection ran out of float precision.
	if sub == region {
		return nil, errors.New("points cannot be separated").
			WithType(ErrTypeInseparablePoints).
			WithTag("point_a", a.point).
			WithTag("point_b", b.point).
			WithTag("region", region.String())
	}

	child, err := split(sub, a, b)
	if err != nil {
		return nil, err
	}
	children[ia] = child
	return newBranch(children), nil
}

func lookup[T any](n *node[T], region geometry.Box, p geometry.Point) *node[T] {
	for n != nil {
		switch n.typ {
		case leafNode:
			if n.point == p {
				return n
			}
			return nil

		case branchNode:
			var i int
			i, region = geometry.Narrow(region, p)
			n = n.children[i]

		default:
			return nil
		}
	}
	return nil
}

func (n *node[T]) depth() int {
	if n == nil || n.typ != branchNode {
		return 0
	}

	var d int
	for _, c := range n.children {
		d = max(d, c.depth())
	}
	return d + 1
}
