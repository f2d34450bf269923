package slave

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/cuemby/sitekeeper/pkg/config"
	"github.com/cuemby/sitekeeper/pkg/log"
	"github.com/cuemby/sitekeeper/pkg/metrics"
	"github.com/cuemby/sitekeeper/pkg/transport"
)

// Agent is the Slave-side Transport client and task executor.
type Agent struct {
	cfg       config.SlaveConfig
	executors Registry
	log       zerolog.Logger

	mu         sync.Mutex
	channel    *transport.Channel
	connCancel context.CancelFunc
	tasks      map[string]chan struct{} // taskID -> cancel signal
}

// New constructs an Agent. executors should cover every TaskType the
// deployment's handlers may dispatch; an unrecognized TaskType answers
// Prepare with isReady=false.
func New(cfg config.SlaveConfig, executors Registry) *Agent {
	return &Agent{
		cfg:       cfg,
		executors: executors,
		log:       log.WithNodeID(cfg.NodeName),
		tasks:     make(map[string]chan struct{}),
	}
}

// Run dials the Master and serves until ctx is cancelled, reconnecting
// with transport.ReconnectSchedule's backoff on every disconnect, per
// §4.1's slave-side reconnection policy.
func (a *Agent) Run(ctx context.Context) error {
	attempt := 0
	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if attempt > 0 {
			select {
			case <-time.After(transport.ReconnectSchedule(attempt)):
			case <-ctx.Done():
				return ctx.Err()
			}
		}

		if err := a.connectAndServe(ctx); err != nil {
			a.log.Warn().Err(err).Int("attempt", attempt+1).Msg("connection to master ended, will reconnect")
			attempt++
			continue
		}
		attempt = 0
	}
}

func (a *Agent) connectAndServe(ctx context.Context) error {
	connCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	ch, closer, err := transport.Dial(connCtx, a.cfg.MasterAddress)
	if err != nil {
		return err
	}
	defer closer()

	if err := ch.Send(&transport.Frame{
		Kind: transport.KindSlaveRegistration,
		SlaveRegistration: &transport.SlaveRegistration{
			AgentName:            a.cfg.NodeName,
			AgentVersion:         a.cfg.AgentVersion,
			OSDescription:        a.cfg.OSDescription,
			FrameworkDescription: a.cfg.FrameworkDescription,
			MaxConcurrentTasks:   a.cfg.MaxConcurrentTasks,
			Hostname:             a.cfg.NodeName,
		},
	}); err != nil {
		return err
	}

	a.mu.Lock()
	a.channel = ch
	a.connCancel = cancel
	a.mu.Unlock()
	defer func() {
		a.mu.Lock()
		a.channel = nil
		a.connCancel = nil
		a.mu.Unlock()
	}()

	a.log.Info().Str("master_address", a.cfg.MasterAddress).Msg("connected to master")

	go a.heartbeatLoop(connCtx, ch)

	for {
		f, err := ch.Recv()
		if err != nil {
			return err
		}
		metrics.TransportMessagesTotal.WithLabelValues("inbound", string(f.Kind)).Inc()
		a.handleFrame(connCtx, ch, f)
	}
}

func (a *Agent) heartbeatLoop(ctx context.Context, ch *transport.Channel) {
	interval := time.Duration(a.cfg.HeartbeatIntervalSec) * time.Second
	if interval <= 0 {
		interval = 15 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			a.mu.Lock()
			active := len(a.tasks)
			a.mu.Unlock()
			hb := &transport.Heartbeat{
				NodeName:           a.cfg.NodeName,
				Timestamp:          time.Now().UTC(),
				ActiveTasks:        active,
				AvailableTaskSlots: a.cfg.MaxConcurrentTasks - active,
			}
			if err := ch.Send(&transport.Frame{Kind: transport.KindHeartbeat, Heartbeat: hb}); err != nil {
				a.log.Warn().Err(err).Msg("heartbeat send failed")
				return
			}
		case <-ctx.Done():
			return
		}
	}
}

func (a *Agent) handleFrame(ctx context.Context, ch *transport.Channel, f *transport.Frame) {
	switch f.Kind {
	case transport.KindPrepareForTask:
		a.handlePrepare(ch, f.PrepareForTask)
	case transport.KindExecuteTask:
		a.handleExecute(ctx, ch, f.ExecuteTask)
	case transport.KindCancelTaskRequest:
		a.handleCancel(f.CancelTaskRequest)
	case transport.KindLogFlushRequest:
		a.handleLogFlush(ch, f.LogFlushRequest)
	case transport.KindAdjustSystemTime:
		a.log.Debug().Msg("adjustSystemTime received, ignored (opaque pass-through)")
	}
}

// handlePrepare runs the readiness probe on its own goroutine: an
// executor simulating readiness_timeout blocks here indefinitely (until
// the connection itself is torn down), and must not stall handleFrame's
// single-threaded dispatch of heartbeats, other tasks, or cancellations.
func (a *Agent) handlePrepare(ch *transport.Channel, p *transport.PrepareForTask) {
	if p == nil {
		return
	}
	go func() {
		exec, ok := a.executors[p.ExpectedTaskType]
		ready, reason := false, "unknown task type"
		if ok {
			ready, reason = exec.Prepare(p)
		}
		ch.Send(&transport.Frame{
			Kind: transport.KindTaskReadinessReport,
			TaskReadinessReport: &transport.TaskReadinessReport{
				NodeActionID:     p.NodeActionID,
				TaskID:           p.TaskID,
				NodeName:         a.cfg.NodeName,
				IsReady:          ready,
				ReasonIfNotReady: reason,
				TimestampUTC:     time.Now().UTC(),
			},
		})
	}()
}

func (a *Agent) handleExecute(ctx context.Context, ch *transport.Channel, e *transport.ExecuteTaskInstruction) {
	if e == nil {
		return
	}
	exec, ok := a.executors[e.TaskType]
	if !ok {
		ch.Send(&transport.Frame{
			Kind: transport.KindTaskProgressUpdate,
			TaskProgressUpdate: &transport.TaskProgressUpdate{
				NodeActionID: e.NodeActionID, TaskID: e.TaskID, NodeName: a.cfg.NodeName,
				Status: "Failed", Message: "no executor for task type " + e.TaskType, TimestampUTC: time.Now().UTC(),
			},
		})
		return
	}

	cancelCh := make(chan struct{})
	a.mu.Lock()
	a.tasks[e.TaskID] = cancelCh
	a.mu.Unlock()

	rep := &reporter{ch: ch, nodeActionID: e.NodeActionID, taskID: e.TaskID, nodeName: a.cfg.NodeName, disconnect: a.disconnect}
	go func() {
		defer func() {
			a.mu.Lock()
			delete(a.tasks, e.TaskID)
			a.mu.Unlock()
		}()
		exec.Execute(ctx, e, rep, cancelCh)
	}()
}

func (a *Agent) handleCancel(c *transport.CancelTaskRequest) {
	if c == nil {
		return
	}
	a.mu.Lock()
	cancelCh, ok := a.tasks[c.TaskID]
	a.mu.Unlock()
	if ok {
		select {
		case <-cancelCh:
		default:
			close(cancelCh)
		}
	}
}

// disconnect cancels the context the current connection's stream was
// dialed with, aborting its blocking Recv() and forcing connectAndServe
// to return so Run's reconnect loop takes over.
func (a *Agent) disconnect() {
	a.mu.Lock()
	cancel := a.connCancel
	a.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

func (a *Agent) handleLogFlush(ch *transport.Channel, r *transport.LogFlushRequest) {
	if r == nil {
		return
	}
	ch.Send(&transport.Frame{
		Kind: transport.KindLogFlushConfirmation,
		LogFlushConfirmation: &transport.LogFlushConfirmation{
			NodeActionID: r.NodeActionID,
			NodeName:     a.cfg.NodeName,
		},
	})
}

// reporter is the Executor-facing Reporter, sending frames directly on
// the channel active when the task was dispatched.
type reporter struct {
	ch           *transport.Channel
	nodeActionID string
	taskID       string
	nodeName     string
	disconnect   func()
}

func (r *reporter) Progress(status string, percent int, message string, resultJSON string) {
	r.ch.Send(&transport.Frame{
		Kind: transport.KindTaskProgressUpdate,
		TaskProgressUpdate: &transport.TaskProgressUpdate{
			NodeActionID:    r.nodeActionID,
			TaskID:          r.taskID,
			NodeName:        r.nodeName,
			Status:          status,
			Message:         message,
			ProgressPercent: percent,
			ResultJSON:      resultJSON,
			TimestampUTC:    time.Now().UTC(),
		},
	})
}

func (r *reporter) Disconnect() {
	if r.disconnect != nil {
		r.disconnect()
	}
}

func (r *reporter) Log(level, message string) {
	r.ch.Send(&transport.Frame{
		Kind: transport.KindTaskLogEntry,
		TaskLogEntry: &transport.TaskLogEntry{
			NodeActionID: r.nodeActionID,
			TaskID:       r.taskID,
			NodeName:     r.nodeName,
			Level:        level,
			Message:      message,
			TimestampUTC: time.Now().UTC(),
		},
	})
}
