package dagaz

import (
	"context"
	"testing"

	"github.com/aukilabs/blobtree/geometry"
	"github.com/aukilabs/blobtree/modules"
	"github.com/aukilabs/go-tooling/pkg/errors"
	"github.com/aukilabs/hagall-common/messages/dagazpb"
	"github.com/aukilabs/hagall-common/messages/hagallpb"
	hwebsocket "github.com/aukilabs/hagall-common/websocket"
	"github.com/stretchr/testify/require"
	"google.golang.org/protobuf/types/known/timestamppb"
)

type testResponseSender struct {
	sent []hwebsocket.ProtoMsg
}

func (s *testResponseSender) Send(msg hwebsocket.ProtoMsg) {
	s.sent = append(s.sent, msg)
}

func (s *testResponseSender) SendMsg(msg hwebsocket.Msg) {
}

func newTestMsg(t *testing.T, protoMsg hwebsocket.ProtoMsg) hwebsocket.Msg {
	msg, err := hwebsocket.MsgFromProto(protoMsg)
	require.NoError(t, err)
	return msg
}

func TestModuleWithoutLayer(t *testing.T) {
	var m Module
	var sender testResponseSender

	err := m.HandleMsg(context.Background(), &sender, newTestMsg(t, &dagazpb.DagazGetRegionRequest{
		Type:      dagazpb.MsgType_MSG_TYPE_DAGAZ_GET_REGION_REQUEST,
		Timestamp: timestamppb.Now(),
		RequestId: 1,
	}))
	require.True(t, errors.IsType(err, modules.ErrTypeNoLayer))
	require.Empty(t, sender.sent)
}

func TestModuleSkipsUnknownMessages(t *testing.T) {
	m := Module{}
	m.Init(newTestLayer(t))

	err := m.HandleMsg(context.Background(), &testResponseSender{}, newTestMsg(t, &hagallpb.Request{
		Type:      hagallpb.MsgType_MSG_TYPE_PING_REQUEST,
		Timestamp: timestamppb.Now(),
		RequestId: 1,
	}))
	require.True(t, errors.IsType(err, hwebsocket.ErrTypeMsgSkip))
}

func TestModuleQuadSampleAndRegion(t *testing.T) {
	l := newTestLayer(t)
	m := Module{}
	m.Init(l)

	ctx := context.Background()
	var sender testResponseSender

	quad := NewQuad(geometry.NewPoint(0, 0, 0), geometry.NewPoint(1, 0, 1))
	err := m.HandleMsg(ctx, &sender, newTestMsg(t, &dagazpb.DagazQuadSample{
		Type:      dagazpb.MsgType_MSG_TYPE_DAGAZ_QUAD_SAMPLE,
		Timestamp: timestamppb.Now(),
		Samples: []*dagazpb.Quad{
			quad.ToProtobuf(),
			NewQuad(geometry.NewPoint(1000, 0, 0), geometry.NewPoint(1, 0, 1)).ToProtobuf(),
		},
	}))
	require.NoError(t, err)
	require.Equal(t, 1, l.Len())
	require.Empty(t, sender.sent)

	err = m.HandleMsg(ctx, &sender, newTestMsg(t, &dagazpb.DagazGetRegionRequest{
		Type:      dagazpb.MsgType_MSG_TYPE_DAGAZ_GET_REGION_REQUEST,
		Timestamp: timestamppb.Now(),
		RequestId: 2,
		Min:       &dagazpb.Point{X: -10, Y: -10, Z: -10},
		Max:       &dagazpb.Point{X: 10, Y: 10, Z: 10},
	}))
	require.NoError(t, err)
	require.Len(t, sender.sent, 1)

	res, ok := sender.sent[0].(*dagazpb.DagazGetRegionResponse)
	require.True(t, ok)
	require.Equal(t, uint32(2), res.RequestId)
	require.Len(t, res.Quads, 1)
	require.Equal(t, float32(1), res.Quads[0].Extents.X)
}

func TestModuleGetGroundPlane(t *testing.T) {
	l := newTestLayer(t)
	require.NoError(t, InsertQuad(l, NewQuad(geometry.NewPoint(0, -1, 0), geometry.NewPoint(2, 0, 2))))

	m := Module{}
	m.Init(l)

	var sender testResponseSender
	err := m.HandleMsg(context.Background(), &sender, newTestMsg(t, &dagazpb.DagazGetGroundPlaneRequest{
		Type:      dagazpb.MsgType_MSG_TYPE_DAGAZ_GET_GROUND_PLANE_REQUEST,
		Timestamp: timestamppb.Now(),
		RequestId: 3,
		Ray: &dagazpb.Ray{
			From: &dagazpb.Point{X: 0, Y: 1, Z: 0},
			To:   &dagazpb.Point{X: 0, Y: -5, Z: 0},
		},
	}))
	require.NoError(t, err)
	require.Len(t, sender.sent, 1)

	res := sender.sent[0].(*dagazpb.DagazGetGroundPlaneResponse)
	require.Equal(t, uint32(3), res.RequestId)
	require.Equal(t, float32(-1), res.Ground.Center.Y)
	require.Equal(t, float32(2), res.Ground.Extents.X)

	t.Run("nothing hit", func(t *testing.T) {
		var sender testResponseSender
		err := m.HandleMsg(context.Background(), &sender, newTestMsg(t, &dagazpb.DagazGetGroundPlaneRequest{
			Type:      dagazpb.MsgType_MSG_TYPE_DAGAZ_GET_GROUND_PLANE_REQUEST,
			Timestamp: timestamppb.Now(),
			RequestId: 4,
			Ray: &dagazpb.Ray{
				From: &dagazpb.Point{X: 50, Y: 1, Z: 0},
				To:   &dagazpb.Point{X: 50, Y: -5, Z: 0},
			},
		}))
		require.NoError(t, err)

		res := sender.sent[0].(*dagazpb.DagazGetGroundPlaneResponse)
		require.Zero(t, res.Ground.Center.Y)
		require.Zero(t, res.Ground.Extents.X)
	})
}

func TestModuleGetDebugInfo(t *testing.T) {
	l := newTestLayer(t)
	require.NoError(t, InsertQuad(l, NewQuad(geometry.NewPoint(1, 1, 1), geometry.NewPoint(1, 0, 1))))

	m := Module{}
	m.Init(l)

	var sender testResponseSender
	err := m.HandleMsg(context.Background(), &sender, newTestMsg(t, &dagazpb.DagazGetDebugInfoRequest{
		Type:      dagazpb.MsgType_MSG_TYPE_DAGAZ_GET_DEBUG_INFO_REQUEST,
		Timestamp: timestamppb.Now(),
		RequestId: 5,
	}))
	require.NoError(t, err)

	res := sender.sent[0].(*dagazpb.DagazGetDebugInfoResponse)
	require.Equal(t, uint32(5), res.RequestId)
	require.Equal(t, uint32(1), res.GridPlaneCount)
	require.Equal(t, uint32(1), res.GridRowCount)
	require.Equal(t, uint32(8), res.GridColCount)
	require.Equal(t, []uint32{0, 0, 0, 0, 0, 0, 0, 1}, res.Occupancy)
	require.Equal(t, float32(-100), res.GridMinPoint.X)
}

func TestModuleHandleDisconnect(t *testing.T) {
	m := Module{}
	m.Init(newTestLayer(t))
	m.HandleDisconnect()
	require.Nil(t, m.currentLayer)
}
