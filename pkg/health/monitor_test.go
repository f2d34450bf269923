package health

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuemby/sitekeeper/pkg/config"
	"github.com/cuemby/sitekeeper/pkg/model"
	"github.com/cuemby/sitekeeper/pkg/notify"
	"github.com/cuemby/sitekeeper/pkg/transport"
)

type fakeNotifier struct {
	events []*notify.Event
}

func (n *fakeNotifier) Publish(e *notify.Event) {
	n.events = append(n.events, e)
}

func testConfig() config.Config {
	cfg := config.Defaults()
	cfg.HeartbeatIntervalSec = 1
	return cfg
}

func TestOnHeartbeat_FirstHeartbeatMarksOnline(t *testing.T) {
	notifier := &fakeNotifier{}
	mon := NewMonitor(testConfig(), notifier)

	mon.OnHeartbeat("node-1", transport.Heartbeat{NodeName: "node-1", Timestamp: time.Now().UTC()})

	state, ok := mon.Status("node-1")
	require.True(t, ok)
	assert.Equal(t, model.ConnectivityOnline, state.ConnectivityStatus)
	require.Len(t, notifier.events, 1)
	assert.Equal(t, notify.EventNodeStatusChanged, notifier.events[0].Type)
}

func TestOnHeartbeat_RepeatedHeartbeatDoesNotRepublish(t *testing.T) {
	notifier := &fakeNotifier{}
	mon := NewMonitor(testConfig(), notifier)

	mon.OnHeartbeat("node-1", transport.Heartbeat{NodeName: "node-1", Timestamp: time.Now().UTC()})
	mon.OnHeartbeat("node-1", transport.Heartbeat{NodeName: "node-1", Timestamp: time.Now().UTC()})

	assert.Len(t, notifier.events, 1)
}

func TestSweep_StaleHeartbeatGoesUnreachableThenOffline(t *testing.T) {
	mon := NewMonitor(testConfig(), nil)
	mon.OnHeartbeat("node-1", transport.Heartbeat{NodeName: "node-1", Timestamp: time.Now().UTC()})

	mon.mu.Lock()
	mon.nodes["node-1"].LastHeartbeatTime = time.Now().UTC().Add(-2 * time.Second)
	mon.mu.Unlock()
	mon.sweep()

	state, ok := mon.Status("node-1")
	require.True(t, ok)
	assert.Equal(t, model.ConnectivityUnreachable, state.ConnectivityStatus)

	mon.mu.Lock()
	mon.nodes["node-1"].LastHeartbeatTime = time.Now().UTC().Add(-10 * time.Second)
	mon.mu.Unlock()
	mon.sweep()

	state, ok = mon.Status("node-1")
	require.True(t, ok)
	assert.Equal(t, model.ConnectivityOffline, state.ConnectivityStatus)
}

func TestSubscribe_ReceivesStatusChanges(t *testing.T) {
	mon := NewMonitor(testConfig(), nil)
	sub := mon.Subscribe()
	defer mon.Unsubscribe(sub)

	mon.OnHeartbeat("node-1", transport.Heartbeat{NodeName: "node-1", Timestamp: time.Now().UTC()})

	select {
	case change := <-sub:
		assert.Equal(t, "node-1", change.NodeName)
		assert.Equal(t, model.ConnectivityOnline, change.Current)
	case <-time.After(time.Second):
		t.Fatal("expected a status change on the subscriber channel")
	}
}

func TestUnsubscribe_ClosesChannel(t *testing.T) {
	mon := NewMonitor(testConfig(), nil)
	sub := mon.Subscribe()
	mon.Unsubscribe(sub)

	_, ok := <-sub
	assert.False(t, ok)
}

func TestStatus_UnknownNodeReturnsFalse(t *testing.T) {
	mon := NewMonitor(testConfig(), nil)
	_, ok := mon.Status("missing")
	assert.False(t, ok)
}
