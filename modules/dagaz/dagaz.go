package dagaz

import (
	"context"

	"github.com/aukilabs/blobtree/models"
	"github.com/aukilabs/blobtree/modules"
	"github.com/aukilabs/blobtree/octree"
	"github.com/aukilabs/go-tooling/pkg/errors"
	"github.com/aukilabs/go-tooling/pkg/logs"
	"github.com/aukilabs/hagall-common/messages/dagazpb"
	hwebsocket "github.com/aukilabs/hagall-common/websocket"
	"google.golang.org/protobuf/types/known/timestamppb"
)

// Module stores the quads sampled by a client in its layer and answers
// spatial requests about them.
type Module struct {
	currentLayer *models.Layer
}

func (m *Module) Name() string {
	return "dagaz"
}

func (m *Module) Init(l *models.Layer) {
	m.currentLayer = l
}

func (m *Module) HandleMsg(ctx context.Context, respond hwebsocket.ResponseSender, msg hwebsocket.Msg) error {
	var err error

	switch dagazpb.MsgType(msg.Type.Number()) {
	case dagazpb.MsgType_MSG_TYPE_DAGAZ_QUAD_SAMPLE:
		err = m.HandleDagazQuadSample(ctx, msg)

	case dagazpb.MsgType_MSG_TYPE_DAGAZ_GET_GROUND_PLANE_REQUEST:
		err = m.HandleDagazGetGroundPlane(ctx, respond, msg)

	case dagazpb.MsgType_MSG_TYPE_DAGAZ_GET_REGION_REQUEST:
		err = m.HandleDagazGetRegion(ctx, respond, msg)

	case dagazpb.MsgType_MSG_TYPE_DAGAZ_GET_DEBUG_INFO_REQUEST:
		err = m.HandleDagazGetDebugInfo(ctx, respond, msg)

	default:
		err = hwebsocket.ErrModuleMsgSkip
	}

	return err
}

func (m *Module) HandleDisconnect() {
	m.currentLayer = nil
}

func (m *Module) layer(msg hwebsocket.Msg) (*models.Layer, error) {
	if m.currentLayer == nil {
		return nil, errors.New("no layer selected").
			WithType(modules.ErrTypeNoLayer).
			WithTag("msg_type", msg.TypeString())
	}
	return m.currentLayer, nil
}

func (m *Module) HandleDagazQuadSample(ctx context.Context, msg hwebsocket.Msg) error {
	var sample dagazpb.DagazQuadSample
	if err := msg.DataTo(&sample); err != nil {
		return err
	}

	layer, err := m.layer(msg)
	if err != nil {
		return err
	}

	for _, protoQuad := range sample.Samples {
		quad := NewQuadFromProtobuf(protoQuad)
		if !quad.IsFinite() {
			logs.WithTag("layer_id", layer.ID).
				WithTag("quad", protoQuad).
				Warn("skipping non finite quad sample")
			continue
		}

		err := InsertQuad(layer, quad)
		if errors.IsType(err, octree.ErrTypeOutOfBounds) {
			logs.WithTag("layer_id", layer.ID).Warn(err)
			continue
		}
		if err != nil {
			return errors.New("inserting quad failed").
				WithTag("layer_id", layer.ID).
				Wrap(err)
		}
	}

	return nil
}

func (m *Module) HandleDagazGetGroundPlane(ctx context.Context, respond hwebsocket.ResponseSender, msg hwebsocket.Msg) error {
	var req dagazpb.DagazGetGroundPlaneRequest
	if err := msg.DataTo(&req); err != nil {
		return err
	}

	layer, err := m.layer(msg)
	if err != nil {
		return err
	}

	// An empty quad is sent when nothing is hit.
	quadHit, _, _ := IntersectSegment(layer, NewSegmentFromProtobuf(req.Ray))

	respond.Send(&dagazpb.DagazGetGroundPlaneResponse{
		Type:      dagazpb.MsgType_MSG_TYPE_DAGAZ_GET_GROUND_PLANE_RESPONSE,
		Timestamp: timestamppb.Now(),
		RequestId: req.RequestId,
		Ground:    quadHit.ToProtobuf(),
	})
	return nil
}

func (m *Module) HandleDagazGetRegion(ctx context.Context, respond hwebsocket.ResponseSender, msg hwebsocket.Msg) error {
	var req dagazpb.DagazGetRegionRequest
	if err := msg.DataTo(&req); err != nil {
		return err
	}

	layer, err := m.layer(msg)
	if err != nil {
		return err
	}

	regionQuads := Region(layer, NewPointFromProtobuf(req.Min), NewPointFromProtobuf(req.Max))
	regionQuadsProtobuf := make([]*dagazpb.Quad, len(regionQuads))
	for i, q := range regionQuads {
		regionQuadsProtobuf[i] = q.ToProtobuf()
	}

	respond.Send(&dagazpb.DagazGetRegionResponse{
		Type:      dagazpb.MsgType_MSG_TYPE_DAGAZ_GET_REGION_RESPONSE,
		Timestamp: timestamppb.Now(),
		RequestId: req.RequestId,
		Quads:     regionQuadsProtobuf,
	})
	return nil
}

func (m *Module) HandleDagazGetDebugInfo(ctx context.Context, respond hwebsocket.ResponseSender, msg hwebsocket.Msg) error {
	var req dagazpb.DagazGetDebugInfoRequest
	if err := msg.DataTo(&req); err != nil {
		return err
	}

	layer, err := m.layer(msg)
	if err != nil {
		return err
	}

	debugInfo := GetDebugInfo(layer)

	// The root octants are reported as a single row.
	respond.Send(&dagazpb.DagazGetDebugInfoResponse{
		Type:           dagazpb.MsgType_MSG_TYPE_DAGAZ_GET_DEBUG_INFO_RESPONSE,
		Timestamp:      timestamppb.Now(),
		RequestId:      req.RequestId,
		GridResolution: debugInfo.Depth,
		GridRowCount:   1,
		GridColCount:   uint32(len(debugInfo.Occupancy)),
		GridPlaneCount: debugInfo.PlaneCount,
		GridMergeCount: debugInfo.MergeCount,
		GridMinPoint:   PointToProtobuf(debugInfo.Min),
		GridMaxPoint:   PointToProtobuf(debugInfo.Max),
		Occupancy:      debugInfo.Occupancy,
	})
	return nil
}
