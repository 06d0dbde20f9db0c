package websocket

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/aukilabs/blobtree/geometry"
	"github.com/aukilabs/blobtree/models"
	"github.com/aukilabs/blobtree/modules"
	"github.com/aukilabs/go-tooling/pkg/errors"
	"github.com/aukilabs/go-tooling/pkg/logs"
	httpcmn "github.com/aukilabs/hagall-common/http"
	"github.com/google/uuid"
	"github.com/segmentio/encoding/json"
	"golang.org/x/net/websocket"
)

// TestLayerBounds are the bounds of the scratch layers created by test
// handlers.
var TestLayerBounds = geometry.NewBox(-100, 100, -100, 100, -100, 100)

// NewTestingEnv creates a testing environment to unit test handlers and
// modules. Clients are connected to the layer with the given id, or to a
// scratch layer when layerID is empty.
func NewTestingEnv(t *testing.T, newHandler func() Handler, layerID string) (*websocket.Conn, *websocket.Conn, func()) {
	var mutex sync.Mutex
	logger := t.Log

	logs.Encoder = func(v any) ([]byte, error) {
		return json.MarshalIndent(v, "", "  ")
	}

	logs.SetLogger(func(e logs.Entry) {
		mutex.Lock()
		defer mutex.Unlock()

		if logger != nil {
			logger(e)
		}
	})

	errors.Encoder = json.Marshal

	server := newTestingServer(newHandler)
	clientA := dialTestingServer(t, server, layerID)
	clientB := dialTestingServer(t, server, layerID)

	return clientA, clientB, func() {
		clientA.Close()
		clientB.Close()
		server.Close()

		mutex.Lock()
		defer mutex.Unlock()
		logger = nil
	}
}

func newTestingServer(newHandler func() Handler) *httptest.Server {
	return httptest.NewServer(websocket.Server{
		Handshake: func(c *websocket.Config, r *http.Request) error {
			return nil
		},
		Handler: func(conn *websocket.Conn) {
			defer conn.Close()

			handler := newHandler()
			defer handler.Close()

			Handle(context.Background(), conn, handler)
		},
	})
}

func dialTestingServer(t *testing.T, server *httptest.Server, layerID string) *websocket.Conn {
	u := strings.ReplaceAll(server.URL, "http://", "ws://")
	if layerID != "" {
		u += "?" + url.Values{LayerQueryParam: {layerID}}.Encode()
	}

	config, err := websocket.NewConfig(u, "http://localhost")
	if err != nil {
		t.Fatalf("error initializing web socket: %s", err)
	}

	config.Header.Set("User-Agent", "ted")
	config.Header.Set("X-Forwarded-for", "192.0.0.0")
	config.Header.Set(httpcmn.HeaderPosemeshClientID, uuid.NewString())

	conn, err := websocket.DialConfig(config)
	if err != nil {
		t.Fatalf("error dialing web socket: %s", err)
	}
	return conn
}

const testPublicEndpoint = "https://auki-test.com"

func newTestHandler(layers *models.LayerStore, newModule ...func() modules.Module) func() Handler {
	return newTestHandlerWithEndpoint(testPublicEndpoint, layers, newModule...)
}

// newTestHandlerWithEndpoint returns handlers whose metrics are labeled with
// the given public endpoint.
func newTestHandlerWithEndpoint(endpoint string, layers *models.LayerStore, newModule ...func() modules.Module) func() Handler {
	return func() Handler {
		modules := make([]modules.Module, len(newModule))
		for i, nm := range newModule {
			modules[i] = nm()
		}

		var h Handler = &RealtimeHandler{
			ClientSyncClockInterval: time.Millisecond * 250,
			ClientIdleTimeout:       time.Minute,
			Layers:                  layers,
			ScratchLayerBounds:      TestLayerBounds,
			Modules:                 modules,
		}

		h = HandlerWithLogs(h, time.Millisecond*100)
		h = HandlerWithMetrics(h, endpoint)
		return h
	}
}
