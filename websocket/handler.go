package websocket

import (
	"context"
	"sync"
	"time"

	"github.com/aukilabs/blobtree/models"
	"github.com/aukilabs/blobtree/modules"
	"github.com/aukilabs/go-tooling/pkg/errors"
	"github.com/aukilabs/go-tooling/pkg/logs"
	"github.com/aukilabs/hagall-common/messages/hagallpb"
	hwebsocket "github.com/aukilabs/hagall-common/websocket"
	"golang.org/x/net/websocket"
)

const (
	outboxSize      = 512
	disconnectsSize = 8
)

// Handler represents a WebSocket connection handler.
type Handler interface {
	// Handles a ping request.
	HandlePing(ctx context.Context, respond hwebsocket.ResponseSender, msg hwebsocket.Msg) error

	// Handles a client connection. It selects the layer the client works on.
	// Returning an error closes the connection.
	HandleConnect(conn *websocket.Conn) error

	// Handles a client's disconnection.
	HandleDisconnect(error)

	// Handles a message with the given module.
	HandleWithModule(ctx context.Context, module modules.Module, respond hwebsocket.ResponseSender, msg hwebsocket.Msg) error

	// Sends a sync clock message.
	SendSyncClock(ctx context.Context, send hwebsocket.ResponseSender) error

	// Returns the function that reads messages from the connection.
	Receiver() hwebsocket.Receiver

	// Returns the function that writes messages to the connection.
	Sender() hwebsocket.Sender

	// Closes the service and releases its allocated resources.
	Close()

	// The interval between each sync clock message sent to the connected
	// client.
	SyncClockInterval() time.Duration

	// The time a client is idle before being disconnected.
	IdleTimeout() time.Duration

	// Returns the layer store.
	GetLayers() *models.LayerStore

	// Returns the modules.
	GetModules() []modules.Module

	// The layer the client works on.
	CurrentLayer() *models.Layer

	// Whether the client works on a scratch or a selected layer.
	LayerKind() string

	GetClientID() string
}

// Handle serves a client until it disconnects, ctx is done or its layer is
// removed from the store.
func Handle(ctx context.Context, conn *websocket.Conn, h Handler) {
	c := connection{
		conn:    conn,
		handler: h,
	}
	c.serve(ctx)
}

type connection struct {
	conn    *websocket.Conn
	handler Handler

	outbox      chan hwebsocket.Msg
	disconnects chan error
	dispatcher  hwebsocket.Dispatcher
	consumer    hwebsocket.Consumer
}

func (c *connection) serve(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	if err := c.handler.HandleConnect(c.conn); err != nil {
		c.close(errors.New("connecting client failed").Wrap(err))
		return
	}

	c.outbox = make(chan hwebsocket.Msg, outboxSize)
	c.disconnects = make(chan error, disconnectsSize)

	scheduler := hwebsocket.NewScheduler()
	defer scheduler.Close()
	c.dispatcher = scheduler
	c.consumer = scheduler

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		c.sendLoop(ctx, c.handler.Sender())
	}()
	go func() {
		defer wg.Done()
		c.receiveLoop(ctx, c.handler.Receiver())
	}()

	c.eventLoop(ctx, cancel)
	wg.Wait()

	drain(c.outbox)
	drain(c.disconnects)
}

func (c *connection) eventLoop(ctx context.Context, cancel func()) {
	idleTimeout := c.handler.IdleTimeout()
	idleTimer := time.NewTimer(idleTimeout)
	defer idleTimer.Stop()

	syncClock := time.NewTicker(c.handler.SyncClockInterval())
	defer syncClock.Stop()

	respond := responseSender{
		ctx:      ctx,
		outbox:   c.outbox,
		clientID: c.handler.GetClientID(),
	}

	for {
		select {
		case <-ctx.Done():
			c.close(ctx.Err())
			return

		case err := <-c.disconnects:
			c.close(err)
			cancel()
			return

		case <-idleTimer.C:
			c.disconnect(errors.New("idle connection").WithTag("duration", idleTimeout))

		case <-syncClock.C:
			if err := c.checkLayer(); err != nil {
				c.disconnect(err)
				continue
			}

			if err := c.handler.SendSyncClock(ctx, respond); err != nil {
				c.disconnect(errors.New("sending sync clock failed").Wrap(err))
			}

		case msg := <-c.consumer.Messages():
			idleTimer.Reset(idleTimeout)

			if err := c.checkLayer(); err != nil {
				c.disconnect(err)
				continue
			}

			if err := c.handleMessage(ctx, msg, respond); err != nil {
				c.disconnect(errors.New("handling message failed").Wrap(err))
			}
		}
	}
}

// checkLayer fails when the layer of the client is no longer in the store,
// for instance after a DELETE on the HTTP API.
func (c *connection) checkLayer() error {
	l := c.handler.CurrentLayer()
	if l == nil {
		return nil
	}

	if _, err := c.handler.GetLayers().Get(l.ID); err != nil {
		return errors.New("layer was removed").
			WithType(errors.Type(err)).
			WithTag("layer_id", l.ID).
			Wrap(err)
	}
	return nil
}

func (c *connection) handleMessage(ctx context.Context, msg hwebsocket.Msg, respond hwebsocket.ResponseSender) error {
	if msg.Type == hagallpb.MsgType_MSG_TYPE_PING_REQUEST {
		return c.handler.HandlePing(ctx, respond, msg)
	}

	if c.handler.CurrentLayer() == nil {
		return nil
	}

	for _, m := range c.handler.GetModules() {
		if err := c.handler.HandleWithModule(ctx, m, respond, msg); err != nil {
			return err
		}
	}
	return nil
}

func (c *connection) sendLoop(ctx context.Context, send hwebsocket.Sender) {
	for {
		select {
		case <-ctx.Done():
			return

		case msg := <-c.outbox:
			if _, err := send(msg); err != nil {
				c.disconnect(errors.New("sending message failed").Wrap(err))
				return
			}
		}
	}
}

func (c *connection) receiveLoop(ctx context.Context, receive hwebsocket.Receiver) {
	for ctx.Err() == nil {
		msg, _, err := receive()
		if err != nil {
			c.disconnect(errors.New("receiving message failed").Wrap(err))
			return
		}

		if err := c.dispatcher.Dispatch(ctx, msg); err != nil {
			c.disconnect(errors.New("dispatching message failed").Wrap(err))
			return
		}
	}
}

// disconnect asks the event loop to close the connection. Requests past the
// first few are dropped.
func (c *connection) disconnect(err error) {
	select {
	case c.disconnects <- err:
	default:
	}
}

func (c *connection) close(err error) {
	c.conn.Close()
	c.handler.HandleDisconnect(err)
}

func drain[T any](c chan T) {
	for len(c) != 0 {
		<-c
	}
}

type responseSender struct {
	ctx      context.Context
	outbox   chan<- hwebsocket.Msg
	clientID string
}

func (r responseSender) Send(protoMsg hwebsocket.ProtoMsg) {
	msg, err := hwebsocket.MsgFromProto(protoMsg)
	if err != nil {
		logs.WithTag("message", protoMsg).
			WithClientID(r.clientID).
			Debug(err)
		return
	}
	r.SendMsg(msg)
}

func (r responseSender) SendMsg(msg hwebsocket.Msg) {
	select {
	case r.outbox <- msg:
	case <-r.ctx.Done():
	}
}
