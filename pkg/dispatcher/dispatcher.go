package dispatcher

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/cuemby/sitekeeper/pkg/config"
	"github.com/cuemby/sitekeeper/pkg/connection"
	"github.com/cuemby/sitekeeper/pkg/health"
	"github.com/cuemby/sitekeeper/pkg/idtranslator"
	"github.com/cuemby/sitekeeper/pkg/log"
	"github.com/cuemby/sitekeeper/pkg/metrics"
	"github.com/cuemby/sitekeeper/pkg/model"
	"github.com/cuemby/sitekeeper/pkg/transport"
)

// Dispatcher is the NodeActionDispatcher (C6).
type Dispatcher struct {
	conn   *connection.Manager
	health *health.Monitor
	cfg    config.Config
	log    zerolog.Logger

	mu     sync.RWMutex
	active map[string]*run // nodeActionID -> run

	stopCh chan struct{}
}

// New constructs a Dispatcher. The caller must also call
// translator.SetRouter(d) so inbound slave frames reach RouteToNodeAction.
func New(conn *connection.Manager, healthMon *health.Monitor, cfg config.Config) *Dispatcher {
	d := &Dispatcher{
		conn:   conn,
		health: healthMon,
		cfg:    cfg,
		log:    log.WithComponent("dispatcher"),
		active: make(map[string]*run),
		stopCh: make(chan struct{}),
	}
	if healthMon != nil {
		go d.watchHealth(healthMon.Subscribe())
	}
	return d
}

var _ idtranslator.ContextRouter = (*Dispatcher)(nil)

// RouteToNodeAction implements idtranslator.ContextRouter.
func (d *Dispatcher) RouteToNodeAction(nodeActionID string, f *transport.Frame) {
	d.mu.RLock()
	r, ok := d.active[nodeActionID]
	d.mu.RUnlock()
	if !ok {
		d.log.Warn().Str("node_action_id", nodeActionID).Msg("frame for unknown/finished node action dropped")
		return
	}

	switch f.Kind {
	case transport.KindTaskReadinessReport:
		e := f.TaskReadinessReport
		if tr, ok := r.taskRunFor(e.TaskID); ok {
			select {
			case tr.readinessCh <- *e:
			default:
			}
		}
	case transport.KindTaskProgressUpdate:
		e := f.TaskProgressUpdate
		if tr, ok := r.taskRunFor(e.TaskID); ok {
			select {
			case tr.progressCh <- *e:
			default:
			}
		}
	case transport.KindLogFlushConfirmation:
		e := f.LogFlushConfirmation
		r.flushMu.Lock()
		r.flushed[e.NodeName] = true
		r.flushMu.Unlock()
		select {
		case r.flushCh <- struct{}{}:
		default:
		}
	case transport.KindTaskLogEntry:
		// handled by the caller's LogAppender, stored on the run by Execute
		r.mu.Lock()
		la := r.logAppender
		r.mu.Unlock()
		if la != nil && f.TaskLogEntry != nil {
			la(f.TaskLogEntry.NodeName, model.LogEntry{
				Time:    f.TaskLogEntry.TimestampUTC,
				Level:   f.TaskLogEntry.Level,
				Message: f.TaskLogEntry.Message,
			})
		}
	}
}

// watchHealth marks InProgress/dispatched tasks NodeOfflineDuringTask
// when C3 reports a node going Offline or Unreachable.
func (d *Dispatcher) watchHealth(sub health.Subscriber) {
	for {
		select {
		case sc, ok := <-sub:
			if !ok {
				return
			}
			if sc.Current != model.ConnectivityOffline && sc.Current != model.ConnectivityUnreachable {
				continue
			}
			d.mu.RLock()
			runs := make([]*run, 0, len(d.active))
			for _, r := range d.active {
				runs = append(runs, r)
			}
			d.mu.RUnlock()

			for _, r := range runs {
				for _, t := range r.tasksOnNode(sc.NodeName) {
					if isDispatchedNonTerminal(t.Status) {
						if tr, ok := r.taskRunFor(t.TaskID); ok {
							closeOnce(tr.forceOffline)
						}
					}
				}
			}
		case <-d.stopCh:
			return
		}
	}
}

func closeOnce(ch chan struct{}) {
	select {
	case <-ch:
	default:
		close(ch)
	}
}

func isDispatchedNonTerminal(s model.TaskStatus) bool {
	switch s {
	case model.TaskDispatched, model.TaskStarting, model.TaskInProgress, model.TaskAwaitingReadiness, model.TaskCancelling:
		return true
	default:
		return false
	}
}

// Stop halts the background health watcher.
func (d *Dispatcher) Stop() {
	close(d.stopCh)
}

// Execute runs nodeAction's tasks through the two-phase protocol and
// returns once every task has reached a terminal state. ctx, when
// its Done channel fires, requests cooperative cancellation of every
// not-yet-terminal task.
func (d *Dispatcher) Execute(ctx context.Context, nodeAction *model.NodeAction, reporter ProgressReporter, logAppender LogAppender) (*NodeActionResult, error) {
	r := newRun(nodeAction)
	r.logAppender = logAppender

	d.mu.Lock()
	d.active[nodeAction.ID] = r
	d.mu.Unlock()
	defer func() {
		d.mu.Lock()
		delete(d.active, nodeAction.ID)
		d.mu.Unlock()
	}()

	nodeAction.StartTime = time.Now().UTC()
	nodeAction.OverallStatus = model.NodeActionAwaitingReadiness

	report := func() {
		if reporter != nil {
			percent := aggregateProgress(nodeAction)
			reporter(percent, nodeAction.StatusMessage)
		} else {
			aggregateProgress(nodeAction)
		}
	}

	var wg sync.WaitGroup
	for _, task := range nodeAction.NodeTasks {
		wg.Add(1)
		go func(t *model.NodeTask) {
			defer wg.Done()
			d.phase1(ctx, r, nodeAction, t, report)
		}(task)
	}
	wg.Wait()

	ready := 0
	for _, t := range nodeAction.NodeTasks {
		if t.Status == model.TaskReadyToExecute {
			ready++
		}
	}

	if ready == 0 {
		nodeAction.OverallStatus = model.NodeActionFailed
		nodeAction.FinalOutcome = "no task reached ReadyToExecute"
		nodeAction.EndTime = time.Now().UTC()
		report()
		metrics.NodeActionsTotal.WithLabelValues(primaryTaskType(nodeAction), string(nodeAction.OverallStatus)).Inc()
		return &NodeActionResult{IsSuccess: false, FinalState: nodeAction}, nil
	}

	nodeAction.OverallStatus = model.NodeActionInProgress
	for _, task := range nodeAction.NodeTasks {
		if task.Status != model.TaskReadyToExecute {
			continue
		}
		wg.Add(1)
		go func(t *model.NodeTask) {
			defer wg.Done()
			d.phase2WithRetry(ctx, r, nodeAction, t, report)
		}(task)
	}
	wg.Wait()

	d.logFlushHandshake(r, nodeAction)

	cancellationRequested := nodeAction.IsCancellationRequested || ctx.Err() != nil
	outcome := computeOutcome(nodeAction, cancellationRequested, d.cfg.FailFastOnNodeOffline)
	nodeAction.OverallStatus = outcome
	nodeAction.EndTime = time.Now().UTC()
	report()

	isSuccess := outcome == model.NodeActionSucceeded || outcome == model.NodeActionSucceededWithErrors
	metrics.NodeActionsTotal.WithLabelValues(primaryTaskType(nodeAction), string(outcome)).Inc()
	return &NodeActionResult{IsSuccess: isSuccess, FinalState: nodeAction}, nil
}

func primaryTaskType(nodeAction *model.NodeAction) string {
	if len(nodeAction.NodeTasks) == 0 {
		return ""
	}
	return nodeAction.NodeTasks[0].TaskType
}

// logFlushHandshake implements §4.6's completion handshake: request a
// flush from every still-connected participating node and wait up to
// logFlushTimeoutSec for all confirmations.
func (d *Dispatcher) logFlushHandshake(r *run, nodeAction *model.NodeAction) {
	nodes := map[string]bool{}
	for _, t := range nodeAction.NodeTasks {
		nodes[t.NodeName] = true
	}

	expected := 0
	for nodeName := range nodes {
		frame := &transport.Frame{Kind: transport.KindLogFlushRequest, LogFlushRequest: &transport.LogFlushRequest{NodeActionID: nodeAction.ID}}
		if err := d.conn.SendToNode(nodeName, frame); err != nil {
			d.log.Warn().Err(err).Str("node_name", nodeName).Msg("log flush request failed, node likely disconnected")
			continue
		}
		expected++
	}
	if expected == 0 {
		return
	}

	deadline := time.After(d.cfg.LogFlushTimeout())
	for {
		r.flushMu.Lock()
		confirmed := len(r.flushed)
		r.flushMu.Unlock()
		if confirmed >= expected {
			return
		}
		select {
		case <-r.flushCh:
		case <-deadline:
			d.log.Warn().Str("node_action_id", nodeAction.ID).Int("confirmed", confirmed).Int("expected", expected).Msg("log flush handshake timed out, proceeding")
			return
		}
	}
}

// auditPayloadForReadiness marshals a task's payload for the readiness
// probe, reusing the same JSON the execute phase will send.
func auditPayloadForReadiness(task *model.NodeTask) string {
	data, err := json.Marshal(task.Payload)
	if err != nil {
		return "{}"
	}
	return string(data)
}
