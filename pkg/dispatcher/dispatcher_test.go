package dispatcher

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuemby/sitekeeper/pkg/config"
	"github.com/cuemby/sitekeeper/pkg/connection"
	"github.com/cuemby/sitekeeper/pkg/model"
	"github.com/cuemby/sitekeeper/pkg/transport"
)

// autoStream implements transport's stream interface and plays the slave
// side of the protocol: every PrepareForTask/ExecuteTask frame the
// Dispatcher sends is answered by feeding a synthetic response straight
// back through Dispatcher.RouteToNodeAction, the same entry point
// pkg/idtranslator uses for real inbound frames.
type autoStream struct {
	d *Dispatcher

	mu       sync.Mutex
	attempts map[string]int

	onPrepare func(taskID string) (ready bool, reason string)
	onExecute func(stream *autoStream, nodeActionID, taskID string)
}

func newAutoStream(d *Dispatcher) *autoStream {
	return &autoStream{d: d, attempts: make(map[string]int)}
}

func (s *autoStream) nextAttempt(taskID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.attempts[taskID]++
	return s.attempts[taskID]
}

func (s *autoStream) SendMsg(m any) error {
	f := m.(*transport.Frame)
	switch f.Kind {
	case transport.KindPrepareForTask:
		p := f.PrepareForTask
		ready, reason := true, ""
		if s.onPrepare != nil {
			ready, reason = s.onPrepare(p.TaskID)
		}
		go s.d.RouteToNodeAction(p.NodeActionID, &transport.Frame{
			Kind: transport.KindTaskReadinessReport,
			TaskReadinessReport: &transport.TaskReadinessReport{
				NodeActionID:     p.NodeActionID,
				TaskID:           p.TaskID,
				IsReady:          ready,
				ReasonIfNotReady: reason,
				TimestampUTC:     time.Now().UTC(),
			},
		})
	case transport.KindExecuteTask:
		e := f.ExecuteTask
		if s.onExecute != nil {
			go s.onExecute(s, e.NodeActionID, e.TaskID)
		}
	case transport.KindLogFlushRequest:
		r := f.LogFlushRequest
		go s.d.RouteToNodeAction(r.NodeActionID, &transport.Frame{
			Kind:                 transport.KindLogFlushConfirmation,
			LogFlushConfirmation: &transport.LogFlushConfirmation{NodeActionID: r.NodeActionID, NodeName: "node-1"},
		})
	}
	return nil
}

func (s *autoStream) RecvMsg(m any) error { return nil }

func reportProgress(d *Dispatcher, nodeActionID, taskID, status string, percent int) {
	d.RouteToNodeAction(nodeActionID, &transport.Frame{
		Kind: transport.KindTaskProgressUpdate,
		TaskProgressUpdate: &transport.TaskProgressUpdate{
			NodeActionID:    nodeActionID,
			TaskID:          taskID,
			Status:          status,
			ProgressPercent: percent,
			TimestampUTC:    time.Now().UTC(),
		},
	})
}

func testDispatcher(t *testing.T, cfg config.Config) (*Dispatcher, *autoStream) {
	t.Helper()
	conn := connection.NewManager(nil, nil, nil)
	d := New(conn, nil, cfg)
	t.Cleanup(d.Stop)

	stream := newAutoStream(d)
	ch := transport.NewChannelForTesting("chan-1", stream)
	conn.HandleFrame(ch, &transport.Frame{
		Kind:              transport.KindSlaveRegistration,
		SlaveRegistration: &transport.SlaveRegistration{AgentName: "node-1"},
	})
	return d, stream
}

func testCfg() config.Config {
	cfg := config.Defaults()
	cfg.ReadinessTimeoutSec = 5
	cfg.ExecutionTimeoutSec = 5
	cfg.CancelGraceSec = 1
	cfg.LogFlushTimeoutSec = 1
	return cfg
}

func oneTaskAction(taskType string) *model.NodeAction {
	return &model.NodeAction{
		ID: "na-1",
		NodeTasks: []*model.NodeTask{
			{TaskID: "task-1", NodeName: "node-1", TaskType: taskType, Status: model.TaskPending},
		},
	}
}

func TestExecute_AllTasksSucceed(t *testing.T) {
	d, stream := testDispatcher(t, testCfg())
	stream.onExecute = func(s *autoStream, nodeActionID, taskID string) {
		reportProgress(d, nodeActionID, taskID, string(model.TaskSucceeded), 100)
	}

	na := oneTaskAction("verify")
	result, err := d.Execute(context.Background(), na, nil, nil)

	require.NoError(t, err)
	assert.True(t, result.IsSuccess)
	assert.Equal(t, model.NodeActionSucceeded, na.OverallStatus)
	assert.Equal(t, model.TaskSucceeded, na.NodeTasks[0].Status)
}

func TestExecute_NotReadyFailsWithoutDispatch(t *testing.T) {
	d, stream := testDispatcher(t, testCfg())
	stream.onPrepare = func(taskID string) (bool, string) { return false, "agent busy" }
	executed := false
	stream.onExecute = func(s *autoStream, nodeActionID, taskID string) { executed = true }

	na := oneTaskAction("verify")
	result, err := d.Execute(context.Background(), na, nil, nil)

	require.NoError(t, err)
	assert.False(t, result.IsSuccess)
	assert.Equal(t, model.NodeActionFailed, na.OverallStatus)
	assert.Equal(t, model.TaskNotReadyForTask, na.NodeTasks[0].Status)
	assert.False(t, executed, "execute phase must never run for a task that failed readiness")
}

func TestExecute_FailedTaskRetriesThenSucceeds(t *testing.T) {
	cfg := testCfg()
	cfg.MaxRetries = 1
	d, stream := testDispatcher(t, cfg)
	stream.onExecute = func(s *autoStream, nodeActionID, taskID string) {
		if s.nextAttempt(taskID) == 1 {
			reportProgress(d, nodeActionID, taskID, string(model.TaskFailed), 0)
			return
		}
		reportProgress(d, nodeActionID, taskID, string(model.TaskSucceeded), 100)
	}

	na := oneTaskAction("verify")
	result, err := d.Execute(context.Background(), na, nil, nil)

	require.NoError(t, err)
	assert.True(t, result.IsSuccess)
	assert.Equal(t, 1, na.NodeTasks[0].RetryCount)
	assert.Equal(t, model.TaskSucceeded, na.NodeTasks[0].Status)
}

func TestExecute_FailedTaskExhaustsRetriesAndFails(t *testing.T) {
	cfg := testCfg()
	cfg.MaxRetries = 1
	d, stream := testDispatcher(t, cfg)
	stream.onExecute = func(s *autoStream, nodeActionID, taskID string) {
		reportProgress(d, nodeActionID, taskID, string(model.TaskFailed), 0)
	}

	na := oneTaskAction("verify")
	result, err := d.Execute(context.Background(), na, nil, nil)

	require.NoError(t, err)
	assert.False(t, result.IsSuccess)
	assert.Equal(t, 1, na.NodeTasks[0].RetryCount)
	assert.Equal(t, model.TaskFailed, na.NodeTasks[0].Status)
	assert.Equal(t, model.NodeActionFailed, na.OverallStatus)
}

func TestExecute_ExecutionTimeoutWithoutCancelConfirmationTimesOut(t *testing.T) {
	cfg := testCfg()
	cfg.ExecutionTimeoutSec = 0 // fires immediately
	cfg.CancelGraceSec = 0
	d, _ := testDispatcher(t, cfg)
	// onExecute left nil: the slave never answers, forcing the timeout path.

	na := oneTaskAction("verify")
	result, err := d.Execute(context.Background(), na, nil, nil)

	require.NoError(t, err)
	assert.False(t, result.IsSuccess)
	assert.Equal(t, model.TaskTimedOut, na.NodeTasks[0].Status)
}

func TestExecute_ContextCancellationRequestsCooperativeCancel(t *testing.T) {
	cfg := testCfg()
	cfg.CancelGraceSec = 1
	d, stream := testDispatcher(t, cfg)
	stream.onExecute = func(s *autoStream, nodeActionID, taskID string) {
		reportProgress(d, nodeActionID, taskID, string(model.TaskStarting), 10)
		time.Sleep(50 * time.Millisecond)
		reportProgress(d, nodeActionID, taskID, string(model.TaskCancelled), 10)
	}

	ctx, cancel := context.WithCancel(context.Background())
	na := oneTaskAction("verify")
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()

	result, err := d.Execute(ctx, na, nil, nil)

	require.NoError(t, err)
	assert.False(t, result.IsSuccess)
	assert.Equal(t, model.TaskCancelled, na.NodeTasks[0].Status)
	assert.Equal(t, model.NodeActionCancelled, na.OverallStatus)
}

func TestExecute_ProgressReporterReceivesAggregatedUpdates(t *testing.T) {
	d, stream := testDispatcher(t, testCfg())
	stream.onExecute = func(s *autoStream, nodeActionID, taskID string) {
		reportProgress(d, nodeActionID, taskID, string(model.TaskStarting), 50)
		reportProgress(d, nodeActionID, taskID, string(model.TaskSucceeded), 100)
	}

	var mu sync.Mutex
	var percents []int
	reporter := func(percent int, message string) {
		mu.Lock()
		percents = append(percents, percent)
		mu.Unlock()
	}

	na := oneTaskAction("verify")
	_, err := d.Execute(context.Background(), na, reporter, nil)
	require.NoError(t, err)

	mu.Lock()
	defer mu.Unlock()
	require.NotEmpty(t, percents)
	assert.Equal(t, 100, percents[len(percents)-1])
}
