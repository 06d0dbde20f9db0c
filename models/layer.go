package models

import (
	"iter"
	"slices"
	"sync"
	"time"

	"github.com/aukilabs/blobtree/geometry"
	"github.com/aukilabs/blobtree/octree"
	"github.com/google/uuid"
)

// Query kinds, used to label query metrics.
const (
	QueryAll       = "all"
	QueryBox       = "box"
	QueryLine      = "line"
	QueryHalfLine  = "half_line"
	QuerySegment   = "segment"
	QueryPlane     = "plane"
	QueryOverlaps  = "overlaps"
	QueryByOverlap = "by_overlap"
	QueryLookup    = "lookup"
)

const (
	insertOperation = "insert"
	updateOperation = "update"
	extendOperation = "extend"
	modifyOperation = "modify"
)

// Layer is a named blob octree. Writers are serialized while readers work on
// snapshots, which never block writers for longer than a root copy.
type Layer struct {
	ID        string
	Name      string
	CreatedAt time.Time

	mutex sync.RWMutex
	index *octree.Index[any]
}

// NewLayer creates an empty layer whose entries must have their point in
// bounds.
func NewLayer(name string, bounds geometry.Box) (*Layer, error) {
	index, err := octree.New[any](bounds)
	if err != nil {
		return nil, err
	}
	return newLayer(name, index), nil
}

func newLayer(name string, index *octree.Index[any]) *Layer {
	return &Layer{
		ID:        uuid.NewString(),
		Name:      name,
		CreatedAt: time.Now(),
		index:     index,
	}
}

func (l *Layer) Bounds() geometry.Box {
	l.mutex.RLock()
	defer l.mutex.RUnlock()

	return l.index.Bounds()
}

func (l *Layer) Len() int {
	l.mutex.RLock()
	defer l.mutex.RUnlock()

	return l.index.Len()
}

func (l *Layer) Insert(p geometry.Point, b geometry.Box, d any) error {
	l.mutex.Lock()
	defer l.mutex.Unlock()

	err := l.index.Insert(p, b, d)
	instrumentEntryWrite(insertOperation, err)
	return err
}

func (l *Layer) Update(p geometry.Point, b geometry.Box, d any) error {
	l.mutex.Lock()
	defer l.mutex.Unlock()

	err := l.index.Update(p, b, d)
	instrumentEntryWrite(updateOperation, err)
	return err
}

// Extend inserts entries in order and stops at the first failure. Entries
// inserted before the failure stay in the layer.
func (l *Layer) Extend(entries iter.Seq[octree.Entry[any]]) error {
	l.mutex.Lock()
	defer l.mutex.Unlock()

	err := l.index.Extend(entries)
	instrumentEntryWrite(extendOperation, err)
	return err
}

// Modify runs f on a copy of the layer index while holding the write lock.
// The copy replaces the index only when f succeeds, so the changes made by f
// are applied all together or not at all.
func (l *Layer) Modify(f func(idx *octree.Index[any]) error) error {
	l.mutex.Lock()
	defer l.mutex.Unlock()

	idx := l.index.Copy()
	err := f(idx)
	instrumentEntryWrite(modifyOperation, err)
	if err != nil {
		return err
	}

	l.index = idx
	return nil
}

// Snapshot returns a copy of the layer index that later writes do not
// affect.
func (l *Layer) Snapshot() *octree.Index[any] {
	l.mutex.RLock()
	defer l.mutex.RUnlock()

	return l.index.Copy()
}

// Collect runs a query on a snapshot and returns its results.
func (l *Layer) Collect(kind string, query func(idx *octree.Index[any]) iter.Seq[octree.Entry[any]]) []octree.Entry[any] {
	defer instrumentQueryLatency(kind, time.Now())
	return slices.Collect(query(l.Snapshot()))
}

func (l *Layer) Get(p geometry.Point) (octree.Entry[any], bool) {
	defer instrumentQueryLatency(QueryLookup, time.Now())
	return l.Snapshot().Get(p)
}

// Overlap is a pair of entries from two layers whose extents are not
// disjoint.
type Overlap struct {
	A octree.Entry[any]
	B octree.Entry[any]
}

// OverlapGroup is an entry and the entries of another layer it possibly
// overlaps.
type OverlapGroup struct {
	Entry   octree.Entry[any]
	Matches []octree.Entry[any]
}

// PossibleOverlaps returns the pairs of entries of a and b whose extents are
// not disjoint.
func PossibleOverlaps(a, b *Layer) []Overlap {
	defer instrumentQueryLatency(QueryOverlaps, time.Now())

	var overlaps []Overlap
	for ea, eb := range octree.PossibleOverlaps(a.Snapshot(), b.Snapshot()) {
		overlaps = append(overlaps, Overlap{A: ea, B: eb})
	}
	return overlaps
}

// ByPossibleOverlap groups the possible overlaps of a and b by entry of a.
func ByPossibleOverlap(a, b *Layer) []OverlapGroup {
	defer instrumentQueryLatency(QueryByOverlap, time.Now())

	var groups []OverlapGroup
	for e, matches := range octree.ByPossibleOverlap(a.Snapshot(), b.Snapshot()) {
		groups = append(groups, OverlapGroup{Entry: e, Matches: matches})
	}
	return groups
}
