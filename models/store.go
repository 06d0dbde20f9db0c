package models

import (
	"slices"
	"strings"
	"sync"

	"github.com/aukilabs/blobtree/geometry"
	"github.com/aukilabs/go-tooling/pkg/errors"
)

const (
	ErrTypeLayerNotFound = "layer_not_found"
)

// LayerStore holds the layers of the server.
type LayerStore struct {
	initOnce sync.Once
	mutex    sync.RWMutex
	layers   map[string]*Layer
}

func (s *LayerStore) init() {
	s.layers = map[string]*Layer{}
}

// Create adds an empty layer to the store.
func (s *LayerStore) Create(name string, bounds geometry.Box) (*Layer, error) {
	l, err := NewLayer(name, bounds)
	if err != nil {
		return nil, errors.New("creating layer failed").
			WithType(errors.Type(err)).
			WithTag("name", name).
			Wrap(err)
	}

	s.Add(l)
	return l, nil
}

// Add adds the given layer to the store.
func (s *LayerStore) Add(l *Layer) {
	s.initOnce.Do(s.init)
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if _, ok := s.layers[l.ID]; !ok {
		instrumentIncreaseLayerGauge()
	}
	s.layers[l.ID] = l
}

// Get returns the layer with the given id or a layer_not_found error.
func (s *LayerStore) Get(id string) (*Layer, error) {
	s.initOnce.Do(s.init)
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	l, ok := s.layers[id]
	if !ok {
		return nil, errors.New("layer not found").
			WithType(ErrTypeLayerNotFound).
			WithTag("layer_id", id)
	}
	return l, nil
}

func (s *LayerStore) Remove(id string) error {
	s.initOnce.Do(s.init)
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if _, ok := s.layers[id]; !ok {
		return errors.New("layer not found").
			WithType(ErrTypeLayerNotFound).
			WithTag("layer_id", id)
	}

	delete(s.layers, id)
	instrumentDecreaseLayerGauge()
	return nil
}

// List returns the layers ordered by creation time.
func (s *LayerStore) List() []*Layer {
	s.initOnce.Do(s.init)
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	layers := make([]*Layer, 0, len(s.layers))
	for _, l := range s.layers {
		layers = append(layers, l)
	}

	slices.SortFunc(layers, func(a, b *Layer) int {
		if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
			return c
		}
		return strings.Compare(a.ID, b.ID)
	})
	return layers
}

func (s *LayerStore) Len() int {
	s.initOnce.Do(s.init)
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	return len(s.layers)
}

// Copy stores a new layer holding the current entries of the layer with the
// given id. Both layers evolve independently afterwards.
func (s *LayerStore) Copy(id, name string) (*Layer, error) {
	src, err := s.Get(id)
	if err != nil {
		return nil, err
	}

	l := newLayer(name, src.Snapshot())
	s.Add(l)
	return l, nil
}

// Intersection stores a new layer holding the entries of the layer with the
// given id whose extent is not disjoint from q.
func (s *LayerStore) Intersection(id string, q geometry.Box, name string) (*Layer, error) {
	if err := q.Validate(); err != nil {
		return nil, err
	}

	src, err := s.Get(id)
	if err != nil {
		return nil, err
	}

	l := newLayer(name, src.Snapshot().IntersectionWithBox(q))
	s.Add(l)
	return l, nil
}
