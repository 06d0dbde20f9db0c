package websocket

import (
	"context"
	"time"

	"github.com/aukilabs/blobtree/modules"
	"github.com/aukilabs/go-tooling/pkg/errors"
	"github.com/aukilabs/hagall-common/messages/hagallpb"
	hwebsocket "github.com/aukilabs/hagall-common/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"golang.org/x/net/websocket"
)

const (
	errTypeLabel        = "error_type"
	layerKindLabel      = "layer_kind"
	msgTypeLabel        = "msg_type"
	moduleLabel         = "module"
	operationLabel      = "operation"
	publicEndpointLabel = "public_endpoint"

	defaultModule = "blobtree"
)

var (
	wsConnectedClients = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "ws_connected_clients",
		Help: "The number of connected clients by layer kind.",
	}, []string{
		publicEndpointLabel,
		layerKindLabel,
	})

	wsConnectErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ws_connect_errors",
		Help: "The errors that occurred while a client was selecting its layer.",
	}, []string{
		publicEndpointLabel,
		layerKindLabel,
		errTypeLabel,
	})

	wsLayerOperations = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ws_layer_operations",
		Help: "The number of received messages that write or query the client layer.",
	}, []string{
		publicEndpointLabel,
		layerKindLabel,
		operationLabel,
	})

	wsReceivedBytes = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ws_received_bytes",
		Help: "The number of bytes received from WebSocket connections.",
	}, []string{
		publicEndpointLabel,
		msgTypeLabel,
	})

	wsReceiveErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ws_receive_errors",
		Help: "The errors that occurred while receiving a websocket message.",
	}, []string{
		publicEndpointLabel,
		errTypeLabel,
	})

	wsSentBytes = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ws_sent_bytes",
		Help: "The number of bytes sent to WebSocket connections.",
	}, []string{
		publicEndpointLabel,
		msgTypeLabel,
	})

	wsSendErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ws_send_errors",
		Help: "The errors that occurred while sending a websocket message.",
	}, []string{
		publicEndpointLabel,
		errTypeLabel,
		msgTypeLabel,
	})

	wsMsgLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name: "ws_msg_latency",
		Help: "The time to process a WebSocket msg.",
	}, []string{
		publicEndpointLabel,
		layerKindLabel,
		msgTypeLabel,
		moduleLabel,
	})
)

// HandlerWithMetrics instruments h. Connections and layer operations are
// labeled with the kind of layer the client works on.
func HandlerWithMetrics(h Handler, publicEndpoint string) Handler {
	return &handlerWithMetrics{
		Handler:        h,
		publicEndpoint: publicEndpoint,
	}
}

type handlerWithMetrics struct {
	Handler

	publicEndpoint string
	layerKind      string

	// The gauge is only decremented for clients that got a layer.
	connected bool
}

func (h *handlerWithMetrics) HandleConnect(conn *websocket.Conn) error {
	err := h.Handler.HandleConnect(conn)
	kind := h.LayerKind()

	if err != nil {
		wsConnectErrors.
			With(prometheus.Labels{
				publicEndpointLabel: h.publicEndpoint,
				layerKindLabel:      kind,
				errTypeLabel:        errors.Type(err),
			}).
			Inc()
		return err
	}

	h.layerKind = kind
	h.connected = true
	h.connectedClients().Inc()
	return nil
}

func (h *handlerWithMetrics) HandleDisconnect(err error) {
	if h.connected {
		h.connected = false
		h.connectedClients().Dec()
	}

	h.Handler.HandleDisconnect(err)
}

func (h *handlerWithMetrics) connectedClients() prometheus.Gauge {
	return wsConnectedClients.With(prometheus.Labels{
		publicEndpointLabel: h.publicEndpoint,
		layerKindLabel:      h.layerKind,
	})
}

func (h *handlerWithMetrics) HandlePing(ctx context.Context, sender hwebsocket.ResponseSender, msg hwebsocket.Msg) error {
	return h.measureLatency(msg, defaultModule, func() error {
		return h.Handler.HandlePing(ctx, sender, msg)
	})
}

func (h *handlerWithMetrics) HandleWithModule(ctx context.Context, module modules.Module, sender hwebsocket.ResponseSender, msg hwebsocket.Msg) error {
	return h.measureLatency(msg, module.Name(), func() error {
		return h.Handler.HandleWithModule(ctx, module, sender, msg)
	})
}

func (h *handlerWithMetrics) SendSyncClock(ctx context.Context, sender hwebsocket.ResponseSender) error {
	return h.measureLatency(hwebsocket.Msg{Type: hagallpb.MsgType_MSG_TYPE_SYNC_CLOCK}, defaultModule, func() error {
		return h.Handler.SendSyncClock(ctx, sender)
	})
}

func (h *handlerWithMetrics) Receiver() hwebsocket.Receiver {
	receive := h.Handler.Receiver()

	return func() (hwebsocket.Msg, int, error) {
		msg, n, err := receive()
		switch {
		case err != nil:
			wsReceiveErrors.
				With(prometheus.Labels{
					publicEndpointLabel: h.publicEndpoint,
					errTypeLabel:        errors.Type(err),
				}).
				Inc()

		case layerOperation(msg) != "":
			wsLayerOperations.
				With(prometheus.Labels{
					publicEndpointLabel: h.publicEndpoint,
					layerKindLabel:      h.layerKind,
					operationLabel:      layerOperation(msg),
				}).
				Inc()
		}

		if n != 0 {
			wsReceivedBytes.
				With(prometheus.Labels{
					publicEndpointLabel: h.publicEndpoint,
					msgTypeLabel:        msg.TypeString(),
				}).
				Add(float64(n))
		}
		return msg, n, err
	}
}

func (h *handlerWithMetrics) Sender() hwebsocket.Sender {
	send := h.Handler.Sender()

	return func(msg hwebsocket.Msg) (int, error) {
		n, err := send(msg)
		if err != nil {
			wsSendErrors.
				With(prometheus.Labels{
					publicEndpointLabel: h.publicEndpoint,
					errTypeLabel:        errors.Type(err),
					msgTypeLabel:        msg.TypeString(),
				}).
				Inc()
		}

		if n != 0 {
			wsSentBytes.
				With(prometheus.Labels{
					publicEndpointLabel: h.publicEndpoint,
					msgTypeLabel:        msg.TypeString(),
				}).
				Add(float64(n))
		}
		return n, err
	}
}

// measureLatency observes the time f takes. Messages a module skipped are
// not observed.
func (h *handlerWithMetrics) measureLatency(msg hwebsocket.Msg, module string, f func() error) error {
	start := time.Now()

	err := f()
	if errors.IsType(err, hwebsocket.ErrTypeMsgSkip) {
		return err
	}

	wsMsgLatency.
		With(prometheus.Labels{
			publicEndpointLabel: h.publicEndpoint,
			layerKindLabel:      h.layerKind,
			msgTypeLabel:        msg.TypeString(),
			moduleLabel:         module,
		}).
		Observe(time.Since(start).Seconds())
	return err
}
