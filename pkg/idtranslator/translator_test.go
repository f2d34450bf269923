package idtranslator

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuemby/sitekeeper/pkg/model"
	"github.com/cuemby/sitekeeper/pkg/transport"
)

type fakeRouter struct {
	routed []string
}

func (r *fakeRouter) RouteToNodeAction(nodeActionID string, f *transport.Frame) {
	r.routed = append(r.routed, nodeActionID)
}

type fakeJournal struct {
	appended []model.LogEntry
	resolved bool
}

func (j *fakeJournal) AppendStageLog(masterActionID string, stageIndex int, stageName string, source string, entry model.LogEntry) error {
	j.appended = append(j.appended, entry)
	return nil
}

func (j *fakeJournal) ResolveNodeAction(nodeActionID string) (string, int, string, bool) {
	if j.resolved {
		return "master-1", 0, "stage-0", true
	}
	return "", 0, "", false
}

func progressFrame(nodeActionID, status string) *transport.Frame {
	return &transport.Frame{
		Kind: transport.KindTaskProgressUpdate,
		TaskProgressUpdate: &transport.TaskProgressUpdate{
			NodeActionID: nodeActionID,
			Status:       status,
			TimestampUTC: time.Now().UTC(),
		},
	}
}

func TestRouteFrame_UnmappedIsDropped(t *testing.T) {
	router := &fakeRouter{}
	tr := New(&fakeJournal{}, time.Minute)
	tr.SetRouter(router)

	tr.RouteFrame("node-1", progressFrame("unknown-node-action", "InProgress"))

	assert.Empty(t, router.routed)
}

func TestRouteFrame_RoutesToLiveContextWhileRegistered(t *testing.T) {
	router := &fakeRouter{}
	tr := New(&fakeJournal{}, time.Minute)
	tr.SetRouter(router)

	tr.RegisterMapping("na-1", "ma-1")
	tr.RouteFrame("node-1", progressFrame("na-1", "InProgress"))

	require.Len(t, router.routed, 1)
	assert.Equal(t, "na-1", router.routed[0])
}

func TestRouteFrame_LateMessageAfterUnregisterGoesToJournal(t *testing.T) {
	router := &fakeRouter{}
	j := &fakeJournal{resolved: true}
	tr := New(j, time.Minute)
	tr.SetRouter(router)

	tr.RegisterMapping("na-1", "ma-1")
	tr.UnregisterMapping("na-1")
	tr.RouteFrame("node-1", progressFrame("na-1", "Succeeded"))

	assert.Empty(t, router.routed)
	require.Len(t, j.appended, 1)
	assert.Contains(t, j.appended[0].Message, "Succeeded")
}

func TestSweep_EvictsMappingsPastGrace(t *testing.T) {
	tr := New(&fakeJournal{}, 0)
	tr.RegisterMapping("na-1", "ma-1")
	tr.UnregisterMapping("na-1")

	tr.mu.Lock()
	tr.mappings["na-1"].Unregistered = time.Now().UTC().Add(-time.Hour)
	tr.mu.Unlock()

	tr.sweep()

	tr.mu.RLock()
	_, ok := tr.mappings["na-1"]
	tr.mu.RUnlock()
	assert.False(t, ok)
}

func TestSweep_KeepsMappingsWithinGrace(t *testing.T) {
	tr := New(&fakeJournal{}, time.Hour)
	tr.RegisterMapping("na-1", "ma-1")
	tr.UnregisterMapping("na-1")

	tr.sweep()

	tr.mu.RLock()
	_, ok := tr.mappings["na-1"]
	tr.mu.RUnlock()
	assert.True(t, ok)
}
