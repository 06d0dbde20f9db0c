package models

import (
	"testing"

	"github.com/aukilabs/blobtree/geometry"
	"github.com/aukilabs/go-tooling/pkg/errors"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestLayerStoreCreate(t *testing.T) {
	var store LayerStore
	count := testutil.ToFloat64(layerCount)

	l, err := store.Create("a", testBounds)
	require.NoError(t, err)
	require.Equal(t, 1, store.Len())
	require.Equal(t, count+1, testutil.ToFloat64(layerCount))

	got, err := store.Get(l.ID)
	require.NoError(t, err)
	require.Same(t, l, got)

	_, err = store.Create("bad", geometry.NewBox(0, 1, 0, -1, 0, 1))
	require.True(t, errors.IsType(err, geometry.ErrTypeMalformedBox))
	require.Equal(t, 1, store.Len())
}

func TestLayerStoreGetUnknown(t *testing.T) {
	var store LayerStore

	_, err := store.Get("nope")
	require.Error(t, err)
	require.Equal(t, ErrTypeLayerNotFound, errors.Type(err))
}

func TestLayerStoreRemove(t *testing.T) {
	var store LayerStore

	l, err := store.Create("a", testBounds)
	require.NoError(t, err)
	count := testutil.ToFloat64(layerCount)

	require.NoError(t, store.Remove(l.ID))
	require.Zero(t, store.Len())
	require.Equal(t, count-1, testutil.ToFloat64(layerCount))

	err = store.Remove(l.ID)
	require.True(t, errors.IsType(err, ErrTypeLayerNotFound))
}

func TestLayerStoreList(t *testing.T) {
	var store LayerStore
	require.Empty(t, store.List())

	a, err := store.Create("a", testBounds)
	require.NoError(t, err)
	b, err := store.Create("b", testBounds)
	require.NoError(t, err)
	c, err := store.Create("c", testBounds)
	require.NoError(t, err)

	layers := store.List()
	require.Len(t, layers, 3)
	require.ElementsMatch(t, []*Layer{a, b, c}, layers)

	for i := 1; i < len(layers); i++ {
		require.False(t, layers[i].CreatedAt.Before(layers[i-1].CreatedAt))
	}
}

func TestLayerStoreCopy(t *testing.T) {
	var store LayerStore

	src, err := store.Create("src", testBounds)
	require.NoError(t, err)
	require.NoError(t, src.Insert(geometry.NewPoint(1, 1, 1), testBounds, "a"))

	dst, err := store.Copy(src.ID, "dst")
	require.NoError(t, err)
	require.NotEqual(t, src.ID, dst.ID)
	require.Equal(t, "dst", dst.Name)
	require.Equal(t, 1, dst.Len())

	require.NoError(t, dst.Insert(geometry.NewPoint(2, 2, 2), testBounds, "b"))
	require.Equal(t, 1, src.Len())
	require.Equal(t, 2, dst.Len())

	_, err = store.Copy("nope", "x")
	require.True(t, errors.IsType(err, ErrTypeLayerNotFound))
}

func TestLayerStoreIntersection(t *testing.T) {
	var store LayerStore

	src, err := store.Create("src", testBounds)
	require.NoError(t, err)
	require.NoError(t, src.Insert(geometry.NewPoint(1, 1, 1), geometry.NewBox(0, 2, 0, 2, 0, 2), "a"))
	require.NoError(t, src.Insert(geometry.NewPoint(5, 5, 5), geometry.NewBox(4, 6, 4, 6, 4, 6), "b"))

	dst, err := store.Intersection(src.ID, geometry.NewBox(3, 7, 3, 7, 3, 7), "dst")
	require.NoError(t, err)
	require.Equal(t, 1, dst.Len())
	require.Equal(t, 2, src.Len())
	require.Equal(t, src.Bounds(), dst.Bounds())

	_, err = store.Intersection(src.ID, geometry.NewBox(3, 2, 3, 7, 3, 7), "bad")
	require.True(t, errors.IsType(err, geometry.ErrTypeMalformedBox))
}
