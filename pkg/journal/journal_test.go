package journal

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuemby/sitekeeper/pkg/config"
	"github.com/cuemby/sitekeeper/pkg/model"
)

func testJournal(t *testing.T) *Journal {
	t.Helper()
	cfg := config.Defaults()
	cfg.JournalRoot = t.TempDir()
	cfg.EnvironmentName = "test-env"

	j, err := New(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = j.Close() })
	return j
}

func TestRegisterAndFinalizeMasterAction_RoundTrips(t *testing.T) {
	j := testJournal(t)

	action := &model.MasterAction{
		ID:          "ma-1",
		Type:        "EnvVerify",
		Name:        "verify prod",
		InitiatedBy: "alice",
		StartTime:   time.Now().UTC(),
	}
	_, err := j.RegisterMasterAction(action.ID, action.StartTime)
	require.NoError(t, err)

	action.OverallStatus = model.OverallSucceeded
	action.EndTime = time.Now().UTC()
	require.NoError(t, j.FinalizeMasterAction(action))

	got, err := j.GetArchivedMasterAction("ma-1")
	require.NoError(t, err)
	assert.Equal(t, "ma-1", got.ID)
	assert.Equal(t, "verify prod", got.Name)
	assert.Equal(t, model.OverallSucceeded, got.OverallStatus)
}

func TestGetArchivedMasterAction_UnknownIDReturnsNotFound(t *testing.T) {
	j := testJournal(t)

	_, err := j.GetArchivedMasterAction("missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMapNodeActionToStage_ResolvesForRouting(t *testing.T) {
	j := testJournal(t)
	_, err := j.RegisterMasterAction("ma-1", time.Now().UTC())
	require.NoError(t, err)

	require.NoError(t, j.MapNodeActionToStage("ma-1", 0, "prepare", "na-1"))

	masterActionID, stageIndex, stageName, ok := j.ResolveNodeAction("na-1")
	require.True(t, ok)
	assert.Equal(t, "ma-1", masterActionID)
	assert.Equal(t, 0, stageIndex)
	assert.Equal(t, "prepare", stageName)

	j.UnmapNodeAction("na-1")
	_, _, _, ok = j.ResolveNodeAction("na-1")
	assert.False(t, ok)
}

func TestAppendStageLog_WritesMasterAndPerNodeFiles(t *testing.T) {
	j := testJournal(t)
	_, err := j.RegisterMasterAction("ma-1", time.Now().UTC())
	require.NoError(t, err)

	require.NoError(t, j.AppendStageLog("ma-1", 0, "prepare", MasterLogSource, model.LogEntry{
		Time: time.Now().UTC(), Level: "info", Message: "stage started",
	}))
	require.NoError(t, j.AppendStageLog("ma-1", 0, "prepare", "node-1", model.LogEntry{
		Time: time.Now().UTC(), Level: "info", Message: "task running",
	}))

	masterLog, err := j.GetArchivedStageLogContent("ma-1", 0, "_master.log")
	require.NoError(t, err)
	assert.Contains(t, masterLog, "stage started")

	nodeLog, err := j.GetArchivedStageLogContent("ma-1", 0, "node-1.log")
	require.NoError(t, err)
	assert.Contains(t, nodeLog, "task running")
}

func TestRecordStageCompleted_RoundTripsStageResult(t *testing.T) {
	j := testJournal(t)
	_, err := j.RegisterMasterAction("ma-1", time.Now().UTC())
	require.NoError(t, err)

	result := StageResult{
		NodeActionResults: []model.NodeAction{{ID: "na-1", OverallStatus: model.NodeActionSucceeded}},
	}
	require.NoError(t, j.RecordStageCompleted("ma-1", 0, "prepare", result))

	got, err := j.GetArchivedStageResult("ma-1", 0)
	require.NoError(t, err)
	require.Len(t, got.NodeActionResults, 1)
	assert.Equal(t, "na-1", got.NodeActionResults[0].ID)
}

func TestFindActionDir_FallsBackToDirectoryScanWhenIndexMissesEntry(t *testing.T) {
	j := testJournal(t)
	startTime := time.Now().UTC()
	dir, err := j.RegisterMasterAction("ma-1", startTime)
	require.NoError(t, err)

	// Simulate a missing index entry: findActionDir must still locate the
	// directory by scanning for its id suffix.
	require.NoError(t, j.index.delete("ma-1"))
	found, err := j.findActionDir("ma-1")
	require.NoError(t, err)
	assert.Equal(t, filepath.Clean(dir), filepath.Clean(found))
}
