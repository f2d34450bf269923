package connection

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuemby/sitekeeper/pkg/transport"
)

// fakeStream implements the stream interface Channel wraps (SendMsg/RecvMsg),
// letting tests drive Channel.Send without a real gRPC connection.
type fakeStream struct {
	sendErr error
	sent    []*transport.Frame
}

func (s *fakeStream) SendMsg(m any) error {
	if s.sendErr != nil {
		return s.sendErr
	}
	s.sent = append(s.sent, m.(*transport.Frame))
	return nil
}

func (s *fakeStream) RecvMsg(m any) error { return nil }

type fakeHealthSink struct {
	heartbeats []transport.Heartbeat
}

func (h *fakeHealthSink) OnHeartbeat(nodeName string, hb transport.Heartbeat) {
	h.heartbeats = append(h.heartbeats, hb)
}

type fakeFrameRouter struct {
	routed []string
}

func (r *fakeFrameRouter) RouteFrame(nodeName string, f *transport.Frame) {
	r.routed = append(r.routed, nodeName)
}

func registerAgent(t *testing.T, m *Manager, nodeName, handle string) *transport.Channel {
	t.Helper()
	ch := transport.NewChannelForTesting(handle, &fakeStream{})
	m.HandleFrame(ch, &transport.Frame{
		Kind: transport.KindSlaveRegistration,
		SlaveRegistration: &transport.SlaveRegistration{
			AgentName:    nodeName,
			AgentVersion: "v1",
		},
	})
	return ch
}

func TestHandleFrame_RegistrationRegistersAgent(t *testing.T) {
	m := NewManager(nil, &fakeFrameRouter{}, nil)
	registerAgent(t, m, "node-1", "chan-1")

	info, ok := m.GetAgent("node-1")
	require.True(t, ok)
	assert.Equal(t, "node-1", info.NodeName)
	assert.Equal(t, "chan-1", info.ChannelHandle)
}

func TestHandleFrame_ReconnectSupersedesPriorChannel(t *testing.T) {
	m := NewManager(nil, &fakeFrameRouter{}, nil)
	registerAgent(t, m, "node-1", "chan-1")
	registerAgent(t, m, "node-1", "chan-2")

	info, ok := m.GetAgent("node-1")
	require.True(t, ok)
	assert.Equal(t, "chan-2", info.ChannelHandle)
}

func TestHandleFrame_HeartbeatForwardsToHealthSink(t *testing.T) {
	health := &fakeHealthSink{}
	m := NewManager(health, &fakeFrameRouter{}, nil)
	registerAgent(t, m, "node-1", "chan-1")

	m.HandleFrame(&transport.Channel{NodeName: "node-1"}, &transport.Frame{
		Kind:      transport.KindHeartbeat,
		Heartbeat: &transport.Heartbeat{NodeName: "node-1"},
	})

	require.Len(t, health.heartbeats, 1)
	assert.Equal(t, "node-1", health.heartbeats[0].NodeName)
}

func TestHandleFrame_UnregisteredChannelDropsOtherFrames(t *testing.T) {
	router := &fakeFrameRouter{}
	m := NewManager(nil, router, nil)

	m.HandleFrame(&transport.Channel{}, &transport.Frame{Kind: transport.KindTaskProgressUpdate})

	assert.Empty(t, router.routed)
}

func TestHandleFrame_RegisteredChannelRoutesOtherFrames(t *testing.T) {
	router := &fakeFrameRouter{}
	m := NewManager(nil, router, nil)
	ch := registerAgent(t, m, "node-1", "chan-1")

	m.HandleFrame(ch, &transport.Frame{Kind: transport.KindTaskProgressUpdate})

	require.Len(t, router.routed, 1)
	assert.Equal(t, "node-1", router.routed[0])
}

func TestHandleDisconnect_RemovesMatchingChannel(t *testing.T) {
	m := NewManager(nil, &fakeFrameRouter{}, nil)
	ch := registerAgent(t, m, "node-1", "chan-1")

	m.HandleDisconnect(ch)

	_, ok := m.GetAgent("node-1")
	assert.False(t, ok)
}

func TestHandleDisconnect_StaleHandleDoesNotRemoveCurrentAgent(t *testing.T) {
	m := NewManager(nil, &fakeFrameRouter{}, nil)
	stale := registerAgent(t, m, "node-1", "chan-1")
	registerAgent(t, m, "node-1", "chan-2")

	m.HandleDisconnect(stale)

	info, ok := m.GetAgent("node-1")
	require.True(t, ok)
	assert.Equal(t, "chan-2", info.ChannelHandle)
}

func TestSendToNode_UnknownNodeReturnsErrNotFound(t *testing.T) {
	m := NewManager(nil, &fakeFrameRouter{}, nil)

	err := m.SendToNode("missing", &transport.Frame{Kind: transport.KindCancelTaskRequest})

	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSendToNode_DeliversThroughChannel(t *testing.T) {
	m := NewManager(nil, &fakeFrameRouter{}, nil)
	stream := &fakeStream{}
	ch := transport.NewChannelForTesting("chan-1", stream)
	m.HandleFrame(ch, &transport.Frame{
		Kind:              transport.KindSlaveRegistration,
		SlaveRegistration: &transport.SlaveRegistration{AgentName: "node-1"},
	})

	err := m.SendToNode("node-1", &transport.Frame{Kind: transport.KindCancelTaskRequest})

	require.NoError(t, err)
	require.Len(t, stream.sent, 1)
	assert.Equal(t, transport.KindCancelTaskRequest, stream.sent[0].Kind)
}

func TestSendToNode_BreakerOpensAfterConsecutiveFailures(t *testing.T) {
	m := NewManager(nil, &fakeFrameRouter{}, nil)
	stream := &fakeStream{sendErr: errors.New("boom")}
	ch := transport.NewChannelForTesting("chan-1", stream)
	m.HandleFrame(ch, &transport.Frame{
		Kind:              transport.KindSlaveRegistration,
		SlaveRegistration: &transport.SlaveRegistration{AgentName: "node-1"},
	})

	var lastErr error
	for i := 0; i < 5; i++ {
		lastErr = m.SendToNode("node-1", &transport.Frame{Kind: transport.KindCancelTaskRequest})
		require.Error(t, lastErr)
	}

	// The 6th call should be rejected by the now-open breaker rather than
	// attempting the (still-failing) send.
	err := m.SendToNode("node-1", &transport.Frame{Kind: transport.KindCancelTaskRequest})
	require.Error(t, err)
	assert.NotEqual(t, lastErr, err)
}

func TestGetAllConnectedAgents_ReturnsSnapshot(t *testing.T) {
	m := NewManager(nil, &fakeFrameRouter{}, nil)
	registerAgent(t, m, "node-1", "chan-1")
	registerAgent(t, m, "node-2", "chan-2")

	agents := m.GetAllConnectedAgents()
	assert.Len(t, agents, 2)
}
