package dispatcher

import (
	"sync"

	"github.com/cuemby/sitekeeper/pkg/model"
	"github.com/cuemby/sitekeeper/pkg/transport"
)

// NodeActionResult is C6's output per call to Execute.
type NodeActionResult struct {
	IsSuccess  bool
	FinalState *model.NodeAction
}

// ProgressReporter receives {percent, message} updates as the NodeAction
// progresses. Implemented by pkg/workflow to mirror into the GUI
// Notifier and MasterAction.RecentLogs.
type ProgressReporter func(percent int, message string)

// LogAppender receives one log line attributed to a participating node,
// for pass-through TaskLogEntry frames that carry no state-machine
// meaning of their own. Implemented by pkg/workflow against pkg/journal.
type LogAppender func(nodeName string, entry model.LogEntry)

// taskRun holds the channels one task's state machine goroutine reads
// inbound frames from, and the forced-offline signal C3 can raise.
type taskRun struct {
	mu           sync.Mutex
	readinessCh  chan transport.TaskReadinessReport
	progressCh   chan transport.TaskProgressUpdate
	forceOffline chan struct{}
}

func newTaskRun() *taskRun {
	return &taskRun{
		readinessCh:  make(chan transport.TaskReadinessReport, 1),
		progressCh:   make(chan transport.TaskProgressUpdate, 8),
		forceOffline: make(chan struct{}),
	}
}

// resetForRetry replaces the readiness/progress channels for a fresh
// attempt, since the old ones may hold a stale send race with the
// previous attempt's goroutine.
func (t *taskRun) resetForRetry() {
	t.mu.Lock()
	t.readinessCh = make(chan transport.TaskReadinessReport, 1)
	t.progressCh = make(chan transport.TaskProgressUpdate, 8)
	t.mu.Unlock()
}

func (t *taskRun) channels() (chan transport.TaskReadinessReport, chan transport.TaskProgressUpdate) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.readinessCh, t.progressCh
}

// run is one in-flight NodeAction's bookkeeping, keyed by NodeAction.ID
// in Dispatcher.active.
type run struct {
	nodeAction *model.NodeAction

	mu          sync.Mutex
	tasks       map[string]*taskRun // taskID -> taskRun
	logAppender LogAppender

	flushMu sync.Mutex
	flushed map[string]bool // nodeName -> confirmed
	flushCh chan struct{}
}

func newRun(nodeAction *model.NodeAction) *run {
	r := &run{
		nodeAction: nodeAction,
		tasks:      make(map[string]*taskRun),
		flushed:    make(map[string]bool),
		flushCh:    make(chan struct{}, 64),
	}
	for _, t := range nodeAction.NodeTasks {
		r.tasks[t.TaskID] = newTaskRun()
	}
	return r
}

func (r *run) taskRunFor(taskID string) (*taskRun, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	tr, ok := r.tasks[taskID]
	return tr, ok
}

func (r *run) taskByID(taskID string) *model.NodeTask {
	for _, t := range r.nodeAction.NodeTasks {
		if t.TaskID == taskID {
			return t
		}
	}
	return nil
}

func (r *run) tasksOnNode(nodeName string) []*model.NodeTask {
	var out []*model.NodeTask
	for _, t := range r.nodeAction.NodeTasks {
		if t.NodeName == nodeName {
			out = append(out, t)
		}
	}
	return out
}
