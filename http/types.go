package http

import (
	"time"

	"github.com/aukilabs/blobtree/geometry"
	"github.com/aukilabs/blobtree/models"
	"github.com/aukilabs/blobtree/octree"
	"github.com/aukilabs/go-tooling/pkg/errors"
	"github.com/go-playground/validator/v10"
)

const (
	ErrTypeInvalidRequest = "invalid_request"
)

var validate = validator.New()

// Vector is a point or a direction encoded as [x, y, z].
type Vector [3]float64

func NewVector(p geometry.Point) Vector {
	return Vector{p.X, p.Y, p.Z}
}

func (v Vector) Point() geometry.Point {
	return geometry.NewPoint(v[0], v[1], v[2])
}

func (v Vector) isZero() bool {
	return v == Vector{}
}

type Box struct {
	Min Vector `json:"min"`
	Max Vector `json:"max"`
}

func NewBox(b geometry.Box) Box {
	return Box{
		Min: NewVector(b.Min),
		Max: NewVector(b.Max),
	}
}

func (b Box) Box() geometry.Box {
	return geometry.Box{
		Min: b.Min.Point(),
		Max: b.Max.Point(),
	}
}

type Entry struct {
	Point  Vector `json:"point"`
	Extent Box    `json:"extent"`
	Data   any    `json:"data,omitempty"`
}

func NewEntry(e octree.Entry[any]) Entry {
	return Entry{
		Point:  NewVector(e.Point),
		Extent: NewBox(e.Bounds),
		Data:   e.Data,
	}
}

func newEntries(entries []octree.Entry[any]) []Entry {
	res := make([]Entry, len(entries))
	for i, e := range entries {
		res[i] = NewEntry(e)
	}
	return res
}

func (e Entry) entry() octree.Entry[any] {
	return octree.Entry[any]{
		Point:  e.Point.Point(),
		Bounds: e.Extent.Box(),
		Data:   e.Data,
	}
}

type Layer struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
	Bounds    Box       `json:"bounds"`
	Len       int       `json:"len"`
	Depth     int       `json:"depth"`
	Occupancy [8]int    `json:"occupancy"`
}

func NewLayer(l *models.Layer) Layer {
	snapshot := l.Snapshot()

	return Layer{
		ID:        l.ID,
		Name:      l.Name,
		CreatedAt: l.CreatedAt,
		Bounds:    NewBox(snapshot.Bounds()),
		Len:       snapshot.Len(),
		Depth:     snapshot.Depth(),
		Occupancy: snapshot.Occupancy(),
	}
}

type CreateLayerRequest struct {
	Name   string `json:"name" validate:"required,max=128"`
	Bounds Box    `json:"bounds"`
}

func (r *CreateLayerRequest) Validate() error {
	if err := validateStruct(r); err != nil {
		return err
	}
	return r.Bounds.Box().Validate()
}

type CopyLayerRequest struct {
	Name string `json:"name" validate:"required,max=128"`
}

func (r *CopyLayerRequest) Validate() error {
	return validateStruct(r)
}

type IntersectionRequest struct {
	Name string `json:"name" validate:"required,max=128"`
	Box  Box    `json:"box"`
}

func (r *IntersectionRequest) Validate() error {
	if err := validateStruct(r); err != nil {
		return err
	}
	return r.Box.Box().Validate()
}

type EntriesRequest struct {
	Entries []Entry `json:"entries" validate:"required,min=1,max=10000"`
}

func (r *EntriesRequest) Validate() error {
	if err := validateStruct(r); err != nil {
		return err
	}

	for i, e := range r.Entries {
		if err := e.Extent.Box().Validate(); err != nil {
			return errors.New("invalid entry extent").
				WithType(errors.Type(err)).
				WithTag("index", i).
				Wrap(err)
		}
	}
	return nil
}

type Line struct {
	Origin    Vector `json:"origin"`
	Direction Vector `json:"direction"`
}

type Segment struct {
	From Vector `json:"from"`
	To   Vector `json:"to"`
}

type Plane struct {
	Normal Vector  `json:"normal"`
	Offset float64 `json:"offset"`
}

// QueryRequest selects the entries whose extent intersects exactly one of
// its shapes.
type QueryRequest struct {
	Box      *Box     `json:"box,omitempty"`
	Line     *Line    `json:"line,omitempty"`
	HalfLine *Line    `json:"half_line,omitempty"`
	Segment  *Segment `json:"segment,omitempty"`
	Plane    *Plane   `json:"plane,omitempty"`
}

func (r *QueryRequest) Validate() error {
	var count int
	for _, set := range []bool{
		r.Box != nil,
		r.Line != nil,
		r.HalfLine != nil,
		r.Segment != nil,
		r.Plane != nil,
	} {
		if set {
			count++
		}
	}
	if count != 1 {
		return errors.New("query must have exactly one shape").
			WithType(ErrTypeInvalidRequest).
			WithTag("shapes", count)
	}

	switch {
	case r.Box != nil:
		return r.Box.Box().Validate()

	case r.Line != nil && r.Line.Direction.isZero(),
		r.HalfLine != nil && r.HalfLine.Direction.isZero():
		return errors.New("line direction is zero").
			WithType(ErrTypeInvalidRequest)

	case r.Plane != nil && r.Plane.Normal.isZero():
		return errors.New("plane normal is zero").
			WithType(ErrTypeInvalidRequest)
	}
	return nil
}

// Kind returns the query kind used to label metrics.
func (r *QueryRequest) Kind() string {
	switch {
	case r.Box != nil:
		return models.QueryBox
	case r.Line != nil:
		return models.QueryLine
	case r.HalfLine != nil:
		return models.QueryHalfLine
	case r.Segment != nil:
		return models.QuerySegment
	default:
		return models.QueryPlane
	}
}

type EntriesResponse struct {
	Entries []Entry `json:"entries"`
}

type Overlap struct {
	A Entry `json:"a"`
	B Entry `json:"b"`
}

type OverlapsResponse struct {
	Overlaps []Overlap `json:"overlaps"`
}

type OverlapGroup struct {
	Entry   Entry   `json:"entry"`
	Matches []Entry `json:"matches"`
}

type OverlapGroupsResponse struct {
	Groups []OverlapGroup `json:"groups"`
}

type LayersResponse struct {
	Layers []Layer `json:"layers"`
}

type ErrorResponse struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

func validateStruct(v any) error {
	if err := validate.Struct(v); err != nil {
		return errors.New("invalid request").
			WithType(ErrTypeInvalidRequest).
			Wrap(err)
	}
	return nil
}
