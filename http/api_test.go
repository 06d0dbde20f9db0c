package http

import (
	"bytes"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/aukilabs/blobtree/featureflag"
	"github.com/aukilabs/blobtree/geometry"
	"github.com/aukilabs/blobtree/models"
	"github.com/segmentio/encoding/json"
	"github.com/stretchr/testify/require"
)

func newTestAPI(t *testing.T, flags ...string) (*httptest.Server, *models.LayerStore) {
	layers := &models.LayerStore{}
	api := API{
		Layers:       layers,
		FeatureFlags: featureflag.New(flags),
	}

	mux := http.NewServeMux()
	api.Register(mux)

	server := httptest.NewServer(HandleWithCORS(mux))
	t.Cleanup(server.Close)
	return server, layers
}

func doRequest(t *testing.T, server *httptest.Server, method, path string, body any) (int, []byte) {
	var reqBody io.Reader
	switch b := body.(type) {
	case nil:
	case string:
		reqBody = strings.NewReader(b)
	default:
		data, err := json.Marshal(b)
		require.NoError(t, err)
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequest(method, server.URL+path, reqBody)
	require.NoError(t, err)

	res, err := server.Client().Do(req)
	require.NoError(t, err)
	defer res.Body.Close()

	resBody, err := io.ReadAll(res.Body)
	require.NoError(t, err)
	return res.StatusCode, resBody
}

func decode[T any](t *testing.T, b []byte) T {
	var v T
	require.NoError(t, json.Unmarshal(b, &v))
	return v
}

func createTestLayer(t *testing.T, server *httptest.Server, name string) Layer {
	status, body := doRequest(t, server, http.MethodPost, "/layers", CreateLayerRequest{
		Name:   name,
		Bounds: NewBox(geometry.NewBox(0, 10, 0, 10, 0, 10)),
	})
	require.Equal(t, http.StatusCreated, status, string(body))
	return decode[Layer](t, body)
}

func testEntry(p geometry.Point, b geometry.Box, data string) Entry {
	return Entry{
		Point:  NewVector(p),
		Extent: NewBox(b),
		Data:   data,
	}
}

var (
	entryA = testEntry(geometry.NewPoint(1, 1, 1), geometry.NewBox(0, 2, 0, 2, 0, 2), "a")
	entryB = testEntry(geometry.NewPoint(5, 5, 5), geometry.NewBox(4, 6, 4, 6, 4, 6), "b")
)

func TestAPIScenario(t *testing.T) {
	server, _ := newTestAPI(t)
	layer := createTestLayer(t, server, "scenario")
	require.Equal(t, "scenario", layer.Name)
	require.Zero(t, layer.Len)

	path := "/layers/" + layer.ID

	status, body := doRequest(t, server, http.MethodPost, path+"/entries", EntriesRequest{
		Entries: []Entry{entryA},
	})
	require.Equal(t, http.StatusCreated, status, string(body))

	status, body = doRequest(t, server, http.MethodPost, path+"/entries", EntriesRequest{
		Entries: []Entry{entryB},
	})
	require.Equal(t, http.StatusCreated, status, string(body))
	require.Equal(t, 2, decode[Layer](t, body).Len)

	t.Run("box queries", func(t *testing.T) {
		status, body := doRequest(t, server, http.MethodPost, path+"/query", QueryRequest{
			Box: &Box{Min: Vector{0, 0, 0}, Max: Vector{3, 3, 3}},
		})
		require.Equal(t, http.StatusOK, status, string(body))
		require.Equal(t, []Entry{entryA}, decode[EntriesResponse](t, body).Entries)

		status, body = doRequest(t, server, http.MethodPost, path+"/query", QueryRequest{
			Box: &Box{Min: Vector{3, 3, 3}, Max: Vector{7, 7, 7}},
		})
		require.Equal(t, http.StatusOK, status, string(body))
		require.Equal(t, []Entry{entryB}, decode[EntriesResponse](t, body).Entries)
	})

	t.Run("duplicate insert", func(t *testing.T) {
		status, body := doRequest(t, server, http.MethodPost, path+"/entries", EntriesRequest{
			Entries: []Entry{entryA},
		})
		require.Equal(t, http.StatusConflict, status)
		require.Equal(t, "duplicate_key", decode[ErrorResponse](t, body).Type)
	})

	t.Run("update", func(t *testing.T) {
		updated := testEntry(geometry.NewPoint(1, 1, 1), geometry.NewBox(0, 1, 0, 1, 0, 1), "a2")

		status, body := doRequest(t, server, http.MethodPut, path+"/entries", EntriesRequest{
			Entries: []Entry{updated},
		})
		require.Equal(t, http.StatusOK, status, string(body))
		require.Equal(t, 2, decode[Layer](t, body).Len)

		status, body = doRequest(t, server, http.MethodGet, path+"/entries", nil)
		require.Equal(t, http.StatusOK, status)
		require.ElementsMatch(t, []Entry{updated, entryB}, decode[EntriesResponse](t, body).Entries)
	})
}

func TestAPIQueryShapes(t *testing.T) {
	server, _ := newTestAPI(t)
	layer := createTestLayer(t, server, "shapes")
	path := "/layers/" + layer.ID

	status, body := doRequest(t, server, http.MethodPost, path+"/entries", EntriesRequest{
		Entries: []Entry{entryA, entryB},
	})
	require.Equal(t, http.StatusCreated, status, string(body))

	tests := []struct {
		name     string
		query    QueryRequest
		expected []Entry
	}{
		{
			name: "line",
			query: QueryRequest{Line: &Line{
				Origin:    Vector{1, 1, -20},
				Direction: Vector{0, 0, 1},
			}},
			expected: []Entry{entryA},
		},
		{
			name: "half line pointing away",
			query: QueryRequest{HalfLine: &Line{
				Origin:    Vector{5, 5, 8},
				Direction: Vector{0, 0, 1},
			}},
		},
		{
			name: "half line",
			query: QueryRequest{HalfLine: &Line{
				Origin:    Vector{5, 5, 8},
				Direction: Vector{0, 0, -1},
			}},
			expected: []Entry{entryB},
		},
		{
			name: "segment",
			query: QueryRequest{Segment: &Segment{
				From: Vector{0, 0, 0},
				To:   Vector{9, 9, 9},
			}},
			expected: []Entry{entryA, entryB},
		},
		{
			name: "plane",
			query: QueryRequest{Plane: &Plane{
				Normal: Vector{1, 0, 0},
				Offset: 5,
			}},
			expected: []Entry{entryB},
		},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			status, body := doRequest(t, server, http.MethodPost, path+"/query", test.query)
			require.Equal(t, http.StatusOK, status, string(body))
			require.ElementsMatch(t, test.expected, decode[EntriesResponse](t, body).Entries)
		})
	}
}

func TestAPIErrors(t *testing.T) {
	server, _ := newTestAPI(t)
	layer := createTestLayer(t, server, "errors")
	path := "/layers/" + layer.ID

	tests := []struct {
		name    string
		method  string
		path    string
		body    any
		status  int
		errType string
	}{
		{
			name:    "unknown layer",
			method:  http.MethodGet,
			path:    "/layers/unknown",
			status:  http.StatusNotFound,
			errType: models.ErrTypeLayerNotFound,
		},
		{
			name:    "delete unknown layer",
			method:  http.MethodDelete,
			path:    "/layers/unknown",
			status:  http.StatusNotFound,
			errType: models.ErrTypeLayerNotFound,
		},
		{
			name:   "malformed bounds",
			method: http.MethodPost,
			path:   "/layers",
			body: CreateLayerRequest{
				Name:   "malformed",
				Bounds: Box{Min: Vector{1, 0, 0}, Max: Vector{0, 1, 1}},
			},
			status:  http.StatusBadRequest,
			errType: geometry.ErrTypeMalformedBox,
		},
		{
			name:   "missing name",
			method: http.MethodPost,
			path:   "/layers",
			body: CreateLayerRequest{
				Bounds: NewBox(geometry.NewBox(0, 1, 0, 1, 0, 1)),
			},
			status:  http.StatusBadRequest,
			errType: ErrTypeInvalidRequest,
		},
		{
			name:    "invalid json",
			method:  http.MethodPost,
			path:    "/layers",
			body:    "{",
			status:  http.StatusBadRequest,
			errType: ErrTypeInvalidRequest,
		},
		{
			name:    "no entries",
			method:  http.MethodPost,
			path:    path + "/entries",
			body:    EntriesRequest{},
			status:  http.StatusBadRequest,
			errType: ErrTypeInvalidRequest,
		},
		{
			name:   "out of bounds entry",
			method: http.MethodPost,
			path:   path + "/entries",
			body: EntriesRequest{
				Entries: []Entry{testEntry(geometry.NewPoint(10, 1, 1), geometry.NewBox(0, 1, 0, 1, 0, 1), "x")},
			},
			status:  http.StatusUnprocessableEntity,
			errType: "out_of_bounds",
		},
		{
			name:   "malformed entry extent",
			method: http.MethodPut,
			path:   path + "/entries",
			body: EntriesRequest{
				Entries: []Entry{testEntry(geometry.NewPoint(1, 1, 1), geometry.NewBox(0, 1, 2, 1, 0, 1), "x")},
			},
			status:  http.StatusBadRequest,
			errType: geometry.ErrTypeMalformedBox,
		},
		{
			name:    "query without shape",
			method:  http.MethodPost,
			path:    path + "/query",
			body:    QueryRequest{},
			status:  http.StatusBadRequest,
			errType: ErrTypeInvalidRequest,
		},
		{
			name:   "query with two shapes",
			method: http.MethodPost,
			path:   path + "/query",
			body: QueryRequest{
				Box:     &Box{Max: Vector{1, 1, 1}},
				Segment: &Segment{To: Vector{1, 1, 1}},
			},
			status:  http.StatusBadRequest,
			errType: ErrTypeInvalidRequest,
		},
		{
			name:   "query line without direction",
			method: http.MethodPost,
			path:   path + "/query",
			body: QueryRequest{
				Line: &Line{Origin: Vector{1, 1, 1}},
			},
			status:  http.StatusBadRequest,
			errType: ErrTypeInvalidRequest,
		},
		{
			name:    "overlaps with unknown layer",
			method:  http.MethodGet,
			path:    path + "/overlaps/unknown",
			status:  http.StatusNotFound,
			errType: models.ErrTypeLayerNotFound,
		},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			status, body := doRequest(t, server, test.method, test.path, test.body)
			require.Equal(t, test.status, status, string(body))

			res := decode[ErrorResponse](t, body)
			require.Equal(t, test.errType, res.Type)
			require.NotEmpty(t, res.Message)
		})
	}
}

func TestAPIListAndDeleteLayers(t *testing.T) {
	server, layers := newTestAPI(t)
	a := createTestLayer(t, server, "a")
	b := createTestLayer(t, server, "b")

	status, body := doRequest(t, server, http.MethodGet, "/layers", nil)
	require.Equal(t, http.StatusOK, status)

	list := decode[LayersResponse](t, body).Layers
	require.Len(t, list, 2)
	require.ElementsMatch(t, []string{a.ID, b.ID}, []string{list[0].ID, list[1].ID})

	status, _ = doRequest(t, server, http.MethodDelete, "/layers/"+a.ID, nil)
	require.Equal(t, http.StatusNoContent, status)
	require.Equal(t, 1, layers.Len())

	status, _ = doRequest(t, server, http.MethodGet, "/layers/"+a.ID, nil)
	require.Equal(t, http.StatusNotFound, status)
}

func TestAPICopyAndIntersection(t *testing.T) {
	server, _ := newTestAPI(t)
	layer := createTestLayer(t, server, "source")
	path := "/layers/" + layer.ID

	status, body := doRequest(t, server, http.MethodPost, path+"/entries", EntriesRequest{
		Entries: []Entry{entryA, entryB},
	})
	require.Equal(t, http.StatusCreated, status, string(body))

	status, body = doRequest(t, server, http.MethodPost, path+"/copy", CopyLayerRequest{Name: "copy"})
	require.Equal(t, http.StatusCreated, status, string(body))

	cpy := decode[Layer](t, body)
	require.NotEqual(t, layer.ID, cpy.ID)
	require.Equal(t, "copy", cpy.Name)
	require.Equal(t, 2, cpy.Len)

	status, body = doRequest(t, server, http.MethodPost, path+"/intersection", IntersectionRequest{
		Name: "intersection",
		Box:  Box{Min: Vector{3, 3, 3}, Max: Vector{7, 7, 7}},
	})
	require.Equal(t, http.StatusCreated, status, string(body))

	intersection := decode[Layer](t, body)
	require.Equal(t, 1, intersection.Len)

	status, body = doRequest(t, server, http.MethodGet, "/layers/"+intersection.ID+"/entries", nil)
	require.Equal(t, http.StatusOK, status)
	require.Equal(t, []Entry{entryB}, decode[EntriesResponse](t, body).Entries)

	t.Run("copies evolve independently", func(t *testing.T) {
		extra := testEntry(geometry.NewPoint(8, 8, 8), geometry.NewBox(8, 9, 8, 9, 8, 9), "c")
		status, body := doRequest(t, server, http.MethodPost, "/layers/"+cpy.ID+"/entries", EntriesRequest{
			Entries: []Entry{extra},
		})
		require.Equal(t, http.StatusCreated, status, string(body))
		require.Equal(t, 3, decode[Layer](t, body).Len)

		status, body = doRequest(t, server, http.MethodGet, path, nil)
		require.Equal(t, http.StatusOK, status)
		require.Equal(t, 2, decode[Layer](t, body).Len)
	})
}

func TestAPIOverlaps(t *testing.T) {
	server, _ := newTestAPI(t)
	a := createTestLayer(t, server, "a")
	b := createTestLayer(t, server, "b")

	status, body := doRequest(t, server, http.MethodPost, "/layers/"+a.ID+"/entries", EntriesRequest{
		Entries: []Entry{entryA, entryB},
	})
	require.Equal(t, http.StatusCreated, status, string(body))

	entryC := testEntry(geometry.NewPoint(1.5, 1.5, 1.5), geometry.NewBox(1, 3, 1, 3, 1, 3), "c")
	status, body = doRequest(t, server, http.MethodPost, "/layers/"+b.ID+"/entries", EntriesRequest{
		Entries: []Entry{entryC},
	})
	require.Equal(t, http.StatusCreated, status, string(body))

	status, body = doRequest(t, server, http.MethodGet, "/layers/"+a.ID+"/overlaps/"+b.ID, nil)
	require.Equal(t, http.StatusOK, status, string(body))
	require.Equal(t, []Overlap{{A: entryA, B: entryC}}, decode[OverlapsResponse](t, body).Overlaps)

	status, body = doRequest(t, server, http.MethodGet, "/layers/"+a.ID+"/overlaps/"+b.ID+"?group=true", nil)
	require.Equal(t, http.StatusOK, status, string(body))
	require.Equal(t, []OverlapGroup{{Entry: entryA, Matches: []Entry{entryC}}}, decode[OverlapGroupsResponse](t, body).Groups)
}

func TestAPIDebug(t *testing.T) {
	t.Run("enabled", func(t *testing.T) {
		server, _ := newTestAPI(t)
		layer := createTestLayer(t, server, "debug")

		status, body := doRequest(t, server, http.MethodGet, "/layers/"+layer.ID+"/debug", nil)
		require.Equal(t, http.StatusOK, status)
		require.Equal(t, "root: empty\n", string(body))
	})

	t.Run("disabled", func(t *testing.T) {
		server, _ := newTestAPI(t, string(featureflag.FlagDisableDebugDump))
		layer := createTestLayer(t, server, "debug")

		status, _ := doRequest(t, server, http.MethodGet, "/layers/"+layer.ID+"/debug", nil)
		require.Equal(t, http.StatusForbidden, status)
	})
}

func TestHandleWithCORS(t *testing.T) {
	server, _ := newTestAPI(t)

	req, err := http.NewRequest(http.MethodOptions, server.URL+"/layers", nil)
	require.NoError(t, err)
	req.Header.Set("Origin", "https://example.com")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)

	res, err := server.Client().Do(req)
	require.NoError(t, err)
	defer res.Body.Close()

	require.Equal(t, http.StatusNoContent, res.StatusCode)
	require.Equal(t, "*", res.Header.Get("Access-Control-Allow-Origin"))
	require.Contains(t, res.Header.Get("Access-Control-Allow-Methods"), http.MethodPost)
}
