package websocket

import (
	"context"
	"io"
	"net"
	"sync"
	"time"

	"github.com/aukilabs/go-tooling/pkg/errors"
	"github.com/aukilabs/go-tooling/pkg/logs"
	httpcmn "github.com/aukilabs/hagall-common/http"
	hwebsocket "github.com/aukilabs/hagall-common/websocket"
	"golang.org/x/net/websocket"
)

const (
	layerIDTag   = "layer_id"
	layerKindTag = "layer_kind"
)

// HandlerWithLogs logs the connection events of h and, every
// summaryInterval, how many messages of each type the client sent and which
// operations they ran on its layer.
func HandlerWithLogs(h Handler, summaryInterval time.Duration) Handler {
	ctx, cancel := context.WithCancel(context.Background())

	handler := &handlerWithLogs{
		Handler:            h,
		summaryInterval:    summaryInterval,
		closeSummaryWorker: cancel,
		received:           make(map[string]int),
		operations:         make(map[string]int),
	}

	go handler.startSummaryWorker(ctx)
	return handler
}

type handlerWithLogs struct {
	Handler

	summaryInterval    time.Duration
	closeSummaryWorker func()

	// Set on connect, read-only afterwards.
	layerID   string
	layerKind string

	countersMutex sync.Mutex
	received      map[string]int
	operations    map[string]int
}

func (h *handlerWithLogs) HandleConnect(conn *websocket.Conn) error {
	err := h.Handler.HandleConnect(conn)

	h.layerKind = h.LayerKind()
	if l := h.CurrentLayer(); l != nil {
		h.layerID = l.ID
	}

	req := conn.Request()
	entry := h.entry().
		WithTag("http_headers", struct {
			UserAgent     string `json:"user_agent,omitempty"`
			XForwardedFor string `json:"x_forwarded_for,omitempty"`
		}{
			UserAgent:     req.UserAgent(),
			XForwardedFor: req.Header.Get(httpcmn.XForwardedForHeaderKey),
		})

	if err != nil {
		entry.
			WithTag("requested_layer_id", req.URL.Query().Get(LayerQueryParam)).
			Warn(errors.New("client failed to select a layer").Wrap(err))
		return err
	}

	if l := h.CurrentLayer(); l != nil {
		entry = entry.WithTag("layer_bounds", l.Bounds().String())
	}
	entry.Info("client connected to layer")
	return nil
}

func (h *handlerWithLogs) HandleDisconnect(err error) {
	h.Handler.HandleDisconnect(err)

	entry := h.entry()
	if h.layerKind == LayerKindScratch && h.layerID != "" {
		entry = entry.WithTag("scratch_layer_removed", true)
	}
	entry.Info("client disconnected")
}

func (h *handlerWithLogs) Receiver() hwebsocket.Receiver {
	receive := h.Handler.Receiver()

	return func() (hwebsocket.Msg, int, error) {
		msg, n, err := receive()
		switch {
		case err == nil:
			h.entry().
				WithTag("msg_type", msg.TypeString()).
				Debug("message received")
			h.count(msg)

		case !errors.Is(err, io.EOF) && !errors.Is(err, net.ErrClosed):
			h.entry().Error(errors.New("receiving message failed").Wrap(err))
		}
		return msg, n, err
	}
}

func (h *handlerWithLogs) Sender() hwebsocket.Sender {
	send := h.Handler.Sender()

	return func(msg hwebsocket.Msg) (int, error) {
		n, err := send(msg)
		switch {
		case err == nil:
			h.entry().
				WithTag("msg_type", msg.TypeString()).
				Debug("message sent")

		case !errors.Is(err, net.ErrClosed):
			h.entry().
				WithTag("msg_type", msg.TypeString()).
				Error(errors.New("sending message failed").Wrap(err))
		}
		return n, err
	}
}

func (h *handlerWithLogs) Close() {
	h.Handler.Close()
	h.closeSummaryWorker()
	h.logSummary()
}

func (h *handlerWithLogs) entry() logs.Entry {
	return logs.WithClientID(h.GetClientID()).
		WithTag(layerIDTag, h.layerID).
		WithTag(layerKindTag, h.layerKind)
}

func (h *handlerWithLogs) startSummaryWorker(ctx context.Context) {
	ticker := time.NewTicker(h.summaryInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return

		case <-ticker.C:
			h.logSummary()
		}
	}
}

func (h *handlerWithLogs) count(msg hwebsocket.Msg) {
	h.countersMutex.Lock()
	defer h.countersMutex.Unlock()

	h.received[msg.TypeString()]++
	if op := layerOperation(msg); op != "" {
		h.operations[op]++
	}
}

func (h *handlerWithLogs) logSummary() {
	h.countersMutex.Lock()
	defer h.countersMutex.Unlock()

	if len(h.received) == 0 {
		return
	}

	entry := h.entry().
		WithTag("time_interval", h.summaryInterval).
		WithTag("received", h.received)
	if len(h.operations) != 0 {
		entry = entry.WithTag("layer_operations", h.operations)
	}
	entry.Info("inbound message summary")

	h.received = make(map[string]int)
	h.operations = make(map[string]int)
}
