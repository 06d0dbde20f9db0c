package http

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/aukilabs/blobtree/geometry"
	"github.com/aukilabs/blobtree/models"
	"github.com/stretchr/testify/require"
)

func TestMetricsPathFormatter(t *testing.T) {
	tests := []struct {
		status   int
		path     string
		expected string
	}{
		{status: http.StatusOK, path: "/health", expected: "/health"},
		{status: http.StatusOK, path: "/layers", expected: "/layers"},
		{status: http.StatusOK, path: "/layers/42", expected: "/layers/{id}"},
		{status: http.StatusCreated, path: "/layers/42/entries", expected: "/layers/{id}/entries"},
		{status: http.StatusOK, path: "/layers/42/overlaps/21", expected: "/layers/{id}/overlaps/{id}"},
		{status: http.StatusNotFound, path: "/layers/42", expected: ""},
		{status: http.StatusBadRequest, path: "/layers", expected: ""},
		{status: http.StatusMethodNotAllowed, path: "/layers", expected: ""},
	}

	for _, test := range tests {
		t.Run(test.path, func(t *testing.T) {
			require.Equal(t, test.expected, MetricsPathFormatter(test.status, test.path))
		})
	}
}

func TestHandleReadyCheck(t *testing.T) {
	var ready bool
	h := HandleReadyCheck(func() bool { return ready })

	w := httptest.NewRecorder()
	h(w, httptest.NewRequest(http.MethodGet, "/ready", nil))
	require.Equal(t, http.StatusServiceUnavailable, w.Code)

	ready = true
	w = httptest.NewRecorder()
	h(w, httptest.NewRequest(http.MethodGet, "/ready", nil))
	require.Equal(t, http.StatusOK, w.Code)
}

func TestHandleVersion(t *testing.T) {
	w := httptest.NewRecorder()
	HandleVersion("v1.2.3")(w, httptest.NewRequest(http.MethodGet, "/version", nil))
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, "v1.2.3", w.Body.String())
}

func TestLayerHandshakeHandler(t *testing.T) {
	store := &models.LayerStore{}
	l, err := store.Create("handshake", geometry.NewBox(0, 1, 0, 1, 0, 1))
	require.NoError(t, err)

	var called int
	h := LayerHandshakeHandler(store, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called++
		w.WriteHeader(http.StatusSwitchingProtocols)
	}))

	tests := []struct {
		name   string
		target string
		status int
	}{
		{name: "scratch layer", target: "/", status: http.StatusSwitchingProtocols},
		{name: "known layer", target: "/?layer=" + l.ID, status: http.StatusSwitchingProtocols},
		{name: "unknown layer", target: "/?layer=unknown", status: http.StatusNotFound},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			h(w, httptest.NewRequest(http.MethodGet, test.target, nil))
			require.Equal(t, test.status, w.Code)
		})
	}
	require.Equal(t, 2, called)
}

func TestLayerHandshake(t *testing.T) {
	store := &models.LayerStore{}
	handshake := LayerHandshake(store)

	err := handshake(nil, httptest.NewRequest(http.MethodGet, "/", nil))
	require.NoError(t, err)

	err = handshake(nil, httptest.NewRequest(http.MethodGet, "/?layer=unknown", nil))
	require.Error(t, err)
}
