package websocket

import (
	"context"
	"time"

	"github.com/aukilabs/blobtree/geometry"
	"github.com/aukilabs/blobtree/models"
	"github.com/aukilabs/blobtree/modules"
	"github.com/aukilabs/go-tooling/pkg/errors"
	"github.com/aukilabs/go-tooling/pkg/logs"
	httpcmn "github.com/aukilabs/hagall-common/http"
	"github.com/aukilabs/hagall-common/messages/hagallpb"
	hwebsocket "github.com/aukilabs/hagall-common/websocket"
	"golang.org/x/net/websocket"
	"google.golang.org/protobuf/types/known/timestamppb"
)

// LayerQueryParam is the query parameter a client uses to select the layer
// it works on.
const LayerQueryParam = "layer"

// Kinds of layer a client works on.
const (
	LayerKindScratch  = "scratch"
	LayerKindSelected = "selected"
)

// RealtimeHandler serves a client working on a single layer. Clients that
// do not select a layer get a scratch layer that is removed when they
// disconnect.
type RealtimeHandler struct {
	// The interval between each sync clock message sent to the connected
	// client.
	ClientSyncClockInterval time.Duration

	// The time a client is idle before being disconnected.
	ClientIdleTimeout time.Duration

	// The store that contains all the server layers.
	Layers *models.LayerStore

	// The bounds of scratch layers.
	ScratchLayerBounds geometry.Box

	// The modules that handle layer messages.
	Modules []modules.Module

	conn         *websocket.Conn
	currentLayer *models.Layer
	layerKind    string

	clientID string
}

func (h *RealtimeHandler) HandleConnect(conn *websocket.Conn) error {
	h.conn = conn

	req := conn.Request()
	h.clientID = req.Header.Get(httpcmn.HeaderPosemeshClientID)

	var layer *models.Layer
	var err error

	if id := req.URL.Query().Get(LayerQueryParam); id != "" {
		h.layerKind = LayerKindSelected
		layer, err = h.Layers.Get(id)
	} else {
		h.layerKind = LayerKindScratch
		layer, err = h.Layers.Create("scratch-"+h.clientID, h.ScratchLayerBounds)
	}
	if err != nil {
		return errors.New("selecting layer failed").
			WithType(errors.Type(err)).
			Wrap(err)
	}

	h.currentLayer = layer
	for _, m := range h.Modules {
		m.Init(layer)
	}
	return nil
}

func (h *RealtimeHandler) HandlePing(ctx context.Context, respond hwebsocket.ResponseSender, msg hwebsocket.Msg) error {
	var req hagallpb.Request
	if err := msg.DataTo(&req); err != nil {
		return err
	}

	respond.Send(&hagallpb.Response{
		Type:      hagallpb.MsgType_MSG_TYPE_PING_RESPONSE,
		Timestamp: timestamppb.Now(),
		RequestId: req.RequestId,
	})
	return nil
}

func (h *RealtimeHandler) HandleDisconnect(err error) {
	h.leaveLayer()
}

func (h *RealtimeHandler) HandleWithModule(ctx context.Context, m modules.Module, respond hwebsocket.ResponseSender, msg hwebsocket.Msg) error {
	if h.CurrentLayer() == nil {
		return nil
	}

	err := m.HandleMsg(ctx, respond, msg)
	if errors.IsType(err, hwebsocket.ErrTypeMsgSkip) {
		return nil
	}
	if err != nil {
		return errors.New("handling message with module failed").
			WithTag("module", m.Name()).
			Wrap(err)
	}
	return nil
}

func (h *RealtimeHandler) SendSyncClock(ctx context.Context, respond hwebsocket.ResponseSender) error {
	respond.Send(&hagallpb.SyncClock{
		Type:      hagallpb.MsgType_MSG_TYPE_SYNC_CLOCK,
		Timestamp: timestamppb.Now(),
	})
	return nil
}

func (h *RealtimeHandler) Receiver() hwebsocket.Receiver {
	return func() (hwebsocket.Msg, int, error) {
		return hwebsocket.Receive(h.conn)
	}
}

func (h *RealtimeHandler) Sender() hwebsocket.Sender {
	return func(msg hwebsocket.Msg) (int, error) {
		return hwebsocket.Send(h.conn, msg)
	}
}

func (h *RealtimeHandler) Close() {
}

func (h *RealtimeHandler) SyncClockInterval() time.Duration {
	return h.ClientSyncClockInterval
}

func (h *RealtimeHandler) IdleTimeout() time.Duration {
	return h.ClientIdleTimeout
}

func (h *RealtimeHandler) GetLayers() *models.LayerStore {
	return h.Layers
}

func (h *RealtimeHandler) GetModules() []modules.Module {
	return h.Modules
}

func (h *RealtimeHandler) CurrentLayer() *models.Layer {
	return h.currentLayer
}

// LayerKind returns the kind of layer the client asked for. It is set even
// when connecting failed.
func (h *RealtimeHandler) LayerKind() string {
	return h.layerKind
}

func (h *RealtimeHandler) GetClientID() string {
	return h.clientID
}

func (h *RealtimeHandler) leaveLayer() {
	layer := h.currentLayer
	if layer == nil {
		return
	}

	for _, m := range h.Modules {
		m.HandleDisconnect()
	}

	if h.layerKind == LayerKindScratch {
		if err := h.Layers.Remove(layer.ID); err != nil {
			logs.WithTag("layer_id", layer.ID).
				WithClientID(h.clientID).
				Warn(err)
		}
	}

	h.currentLayer = nil
}
