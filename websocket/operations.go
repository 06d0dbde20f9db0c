package websocket

import (
	"github.com/aukilabs/blobtree/models"
	"github.com/aukilabs/hagall-common/messages/dagazpb"
	hwebsocket "github.com/aukilabs/hagall-common/websocket"
)

const (
	operationQuadSample = "quad_sample"
	operationDebugInfo  = "debug_info"
)

// layerOperation returns what a message does with the client layer, or an
// empty string when it does not touch it. Queries are named after the layer
// query kind they run.
func layerOperation(msg hwebsocket.Msg) string {
	if msg.Type == nil {
		return ""
	}

	switch dagazpb.MsgType(msg.Type.Number()) {
	case dagazpb.MsgType_MSG_TYPE_DAGAZ_QUAD_SAMPLE:
		return operationQuadSample

	case dagazpb.MsgType_MSG_TYPE_DAGAZ_GET_GROUND_PLANE_REQUEST:
		return models.QuerySegment

	case dagazpb.MsgType_MSG_TYPE_DAGAZ_GET_REGION_REQUEST:
		return models.QueryBox

	case dagazpb.MsgType_MSG_TYPE_DAGAZ_GET_DEBUG_INFO_REQUEST:
		return operationDebugInfo

	default:
		return ""
	}
}
