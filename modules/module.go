package modules

import (
	"context"

	"github.com/aukilabs/blobtree/models"
	hwebsocket "github.com/aukilabs/hagall-common/websocket"
)

const (
	ErrTypeNoLayer = "no_layer"
)

// Module is the interface that describes a module that extends the WebSocket
// endpoint capabilities.
type Module interface {
	// Returns the module name.
	Name() string

	// Initializes the module with the layer selected by the client.
	Init(*models.Layer)

	// Handles a given message. Modules are free to decide whether they handle a
	// message.
	//
	// Returning hwebsocket.ErrModuleMsgSkip indicates that handling a message
	// was skipped.
	//
	// Any other returned errors causes the current WebSocket client to be
	// disconnected.
	HandleMsg(context.Context, hwebsocket.ResponseSender, hwebsocket.Msg) error

	// Handles a client disconnection.
	HandleDisconnect()
}
