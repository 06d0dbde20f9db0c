package http

import (
	"io"
	"iter"
	"net/http"
	"strconv"

	"github.com/aukilabs/blobtree/featureflag"
	"github.com/aukilabs/blobtree/geometry"
	"github.com/aukilabs/blobtree/models"
	"github.com/aukilabs/blobtree/octree"
	"github.com/aukilabs/go-tooling/pkg/errors"
	"github.com/aukilabs/go-tooling/pkg/logs"
	httpcmn "github.com/aukilabs/hagall-common/http"
	"github.com/segmentio/encoding/json"
)

const maxRequestBodySize = 8 << 20

// API serves the layer store over JSON.
type API struct {
	Layers       *models.LayerStore
	FeatureFlags featureflag.FeatureFlag
}

// Register adds the API routes to mux.
func (a *API) Register(mux *http.ServeMux) {
	mux.HandleFunc("POST /layers", a.handleCreateLayer)
	mux.HandleFunc("GET /layers", a.handleListLayers)
	mux.HandleFunc("GET /layers/{id}", a.handleGetLayer)
	mux.HandleFunc("DELETE /layers/{id}", a.handleDeleteLayer)
	mux.HandleFunc("POST /layers/{id}/copy", a.handleCopyLayer)
	mux.HandleFunc("POST /layers/{id}/intersection", a.handleIntersection)
	mux.HandleFunc("POST /layers/{id}/entries", a.handleInsertEntries)
	mux.HandleFunc("PUT /layers/{id}/entries", a.handleUpdateEntries)
	mux.HandleFunc("GET /layers/{id}/entries", a.handleListEntries)
	mux.HandleFunc("POST /layers/{id}/query", a.handleQuery)
	mux.HandleFunc("GET /layers/{id}/overlaps/{other}", a.handleOverlaps)
	mux.HandleFunc("GET /layers/{id}/debug", a.handleDebug)
}

func (a *API) handleCreateLayer(w http.ResponseWriter, r *http.Request) {
	var req CreateLayerRequest
	if !readRequest(w, r, &req) {
		return
	}

	l, err := a.Layers.Create(req.Name, req.Bounds.Box())
	if err != nil {
		writeError(w, err)
		return
	}

	logs.WithTag("layer_id", l.ID).
		WithTag("name", l.Name).
		Info("layer created")
	writeJSON(w, http.StatusCreated, NewLayer(l))
}

func (a *API) handleListLayers(w http.ResponseWriter, r *http.Request) {
	layers := a.Layers.List()

	res := LayersResponse{Layers: make([]Layer, len(layers))}
	for i, l := range layers {
		res.Layers[i] = NewLayer(l)
	}
	writeJSON(w, http.StatusOK, res)
}

func (a *API) handleGetLayer(w http.ResponseWriter, r *http.Request) {
	l, ok := a.layer(w, r, "id")
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, NewLayer(l))
}

func (a *API) handleDeleteLayer(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := a.Layers.Remove(id); err != nil {
		writeError(w, err)
		return
	}

	logs.WithTag("layer_id", id).Info("layer removed")
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) handleCopyLayer(w http.ResponseWriter, r *http.Request) {
	var req CopyLayerRequest
	if !readRequest(w, r, &req) {
		return
	}

	l, err := a.Layers.Copy(r.PathValue("id"), req.Name)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, NewLayer(l))
}

func (a *API) handleIntersection(w http.ResponseWriter, r *http.Request) {
	var req IntersectionRequest
	if !readRequest(w, r, &req) {
		return
	}

	l, err := a.Layers.Intersection(r.PathValue("id"), req.Box.Box(), req.Name)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, NewLayer(l))
}

func (a *API) handleInsertEntries(w http.ResponseWriter, r *http.Request) {
	l, ok := a.layer(w, r, "id")
	if !ok {
		return
	}

	var req EntriesRequest
	if !readRequest(w, r, &req) {
		return
	}

	var err error
	if len(req.Entries) == 1 {
		e := req.Entries[0].entry()
		err = l.Insert(e.Point, e.Bounds, e.Data)
	} else {
		err = l.Extend(func(yield func(octree.Entry[any]) bool) {
			for _, e := range req.Entries {
				if !yield(e.entry()) {
					return
				}
			}
		})
	}
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, NewLayer(l))
}

func (a *API) handleUpdateEntries(w http.ResponseWriter, r *http.Request) {
	l, ok := a.layer(w, r, "id")
	if !ok {
		return
	}

	var req EntriesRequest
	if !readRequest(w, r, &req) {
		return
	}

	err := l.Modify(func(idx *octree.Index[any]) error {
		for _, e := range req.Entries {
			if err := idx.Update(e.Point.Point(), e.Extent.Box(), e.Data); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, NewLayer(l))
}

func (a *API) handleListEntries(w http.ResponseWriter, r *http.Request) {
	l, ok := a.layer(w, r, "id")
	if !ok {
		return
	}

	entries := l.Collect(models.QueryAll, (*octree.Index[any]).All)
	writeJSON(w, http.StatusOK, EntriesResponse{Entries: newEntries(entries)})
}

func (a *API) handleQuery(w http.ResponseWriter, r *http.Request) {
	l, ok := a.layer(w, r, "id")
	if !ok {
		return
	}

	var req QueryRequest
	if !readRequest(w, r, &req) {
		return
	}

	entries := l.Collect(req.Kind(), func(idx *octree.Index[any]) iter.Seq[octree.Entry[any]] {
		switch {
		case req.Box != nil:
			return idx.IntersectWithBox(req.Box.Box())

		case req.Line != nil:
			return idx.IntersectWithLine(geometry.Line{
				Origin:    req.Line.Origin.Point(),
				Direction: req.Line.Direction.Point(),
			})

		case req.HalfLine != nil:
			return idx.IntersectWithHalfLine(geometry.HalfLine{
				Origin:    req.HalfLine.Origin.Point(),
				Direction: req.HalfLine.Direction.Point(),
			})

		case req.Segment != nil:
			return idx.IntersectWithLineSegment(geometry.Segment{
				From: req.Segment.From.Point(),
				To:   req.Segment.To.Point(),
			})

		default:
			return idx.IntersectWithPlane(geometry.Plane{
				Normal: req.Plane.Normal.Point(),
				Offset: req.Plane.Offset,
			}.Functional())
		}
	})
	writeJSON(w, http.StatusOK, EntriesResponse{Entries: newEntries(entries)})
}

func (a *API) handleOverlaps(w http.ResponseWriter, r *http.Request) {
	la, ok := a.layer(w, r, "id")
	if !ok {
		return
	}
	lb, ok := a.layer(w, r, "other")
	if !ok {
		return
	}

	if group, _ := strconv.ParseBool(r.URL.Query().Get("group")); group {
		groups := models.ByPossibleOverlap(la, lb)

		res := OverlapGroupsResponse{Groups: make([]OverlapGroup, len(groups))}
		for i, g := range groups {
			res.Groups[i] = OverlapGroup{
				Entry:   NewEntry(g.Entry),
				Matches: newEntries(g.Matches),
			}
		}
		writeJSON(w, http.StatusOK, res)
		return
	}

	overlaps := models.PossibleOverlaps(la, lb)

	res := OverlapsResponse{Overlaps: make([]Overlap, len(overlaps))}
	for i, o := range overlaps {
		res.Overlaps[i] = Overlap{
			A: NewEntry(o.A),
			B: NewEntry(o.B),
		}
	}
	writeJSON(w, http.StatusOK, res)
}

func (a *API) handleDebug(w http.ResponseWriter, r *http.Request) {
	if a.FeatureFlags.IsSet(featureflag.FlagDisableDebugDump) {
		w.WriteHeader(http.StatusForbidden)
		return
	}

	l, ok := a.layer(w, r, "id")
	if !ok {
		return
	}

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	l.Snapshot().Debug(w)
}

func (a *API) layer(w http.ResponseWriter, r *http.Request, pathKey string) (*models.Layer, bool) {
	l, err := a.Layers.Get(r.PathValue(pathKey))
	if err != nil {
		writeError(w, err)
		return nil, false
	}
	return l, true
}

type validatable interface {
	Validate() error
}

func readRequest(w http.ResponseWriter, r *http.Request, req validatable) bool {
	b, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxRequestBodySize))
	if err != nil {
		httpcmn.InternalServerError(w, errors.New("reading body failed").Wrap(err))
		return false
	}

	if err := json.Unmarshal(b, req); err != nil {
		writeError(w, errors.New("decoding request failed").
			WithType(ErrTypeInvalidRequest).
			Wrap(err))
		return false
	}

	if err := req.Validate(); err != nil {
		writeError(w, err)
		return false
	}
	return true
}

type errorStatus struct {
	errType string
	status  int
}

// errorStatuses maps error types to HTTP statuses. The first matching type
// wins.
var errorStatuses = []errorStatus{
	{errType: models.ErrTypeLayerNotFound, status: http.StatusNotFound},
	{errType: ErrTypeInvalidRequest, status: http.StatusBadRequest},
	{errType: geometry.ErrTypeMalformedBox, status: http.StatusBadRequest},
	{errType: octree.ErrTypeDuplicateKey, status: http.StatusConflict},
	{errType: octree.ErrTypeOutOfBounds, status: http.StatusUnprocessableEntity},
	{errType: octree.ErrTypeInseparablePoints, status: http.StatusUnprocessableEntity},
}

func statusFromError(err error) errorStatus {
	for _, s := range errorStatuses {
		if errors.IsType(err, s.errType) {
			return s
		}
	}
	return errorStatus{
		errType: errors.Type(err),
		status:  http.StatusInternalServerError,
	}
}

func writeError(w http.ResponseWriter, err error) {
	s := statusFromError(err)

	entry := logs.WithTag("status", s.status)
	if s.status == http.StatusInternalServerError {
		entry.Error(err)
	} else {
		entry.Debug(err)
	}

	writeJSON(w, s.status, ErrorResponse{
		Type:    s.errType,
		Message: err.Error(),
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	b, err := json.Marshal(v)
	if err != nil {
		httpcmn.InternalServerError(w, errors.New("encoding response failed").Wrap(err))
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	w.Write(b)
}
