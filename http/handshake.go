package http

import (
	"net/http"

	"github.com/aukilabs/blobtree/models"
	"github.com/aukilabs/blobtree/websocket"
	"github.com/aukilabs/go-tooling/pkg/errors"
	"github.com/aukilabs/go-tooling/pkg/logs"
	httpcmn "github.com/aukilabs/hagall-common/http"
	xwebsocket "golang.org/x/net/websocket"
)

// LayerHandshake rejects WebSocket connections that select a layer missing
// from the store. Connections without a layer are accepted and get a
// scratch layer.
func LayerHandshake(store *models.LayerStore) func(*xwebsocket.Config, *http.Request) error {
	return func(c *xwebsocket.Config, r *http.Request) error {
		if err := checkRequestedLayer(store, r); err != nil {
			logs.WithClientID(r.Header.Get(httpcmn.HeaderPosemeshClientID)).Warn(err)
			return err
		}
		return nil
	}
}

// LayerHandshakeHandler responds with a 404 to requests that select a layer
// missing from the store and forwards the others to next.
func LayerHandshakeHandler(store *models.LayerStore, next http.Handler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := checkRequestedLayer(store, r); err != nil {
			logs.WithClientID(r.Header.Get(httpcmn.HeaderPosemeshClientID)).Warn(err)
			writeError(w, err)
			return
		}

		next.ServeHTTP(w, r)
	}
}

func checkRequestedLayer(store *models.LayerStore, r *http.Request) error {
	id := r.URL.Query().Get(websocket.LayerQueryParam)
	if id == "" {
		return nil
	}

	if _, err := store.Get(id); err != nil {
		return errors.New("websocket handshake failed").
			WithType(models.ErrTypeLayerNotFound).
			Wrap(err)
	}
	return nil
}
