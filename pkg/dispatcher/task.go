package dispatcher

import (
	"context"
	"time"

	"github.com/cuemby/sitekeeper/pkg/metrics"
	"github.com/cuemby/sitekeeper/pkg/model"
	"github.com/cuemby/sitekeeper/pkg/transport"
)

// phase1 implements the readiness gate: Pending -> AwaitingReadiness ->
// {ReadyToExecute | NotReadyForTask | ReadinessCheckTimedOut |
// DispatchFailed_Prepare}. Returns true iff the task reached
// ReadyToExecute.
func (d *Dispatcher) phase1(ctx context.Context, r *run, nodeAction *model.NodeAction, task *model.NodeTask, report func()) bool {
	timer := metrics.NewTimer()
	defer timer.ObserveDurationVec(metrics.DispatcherPhaseDuration, task.TaskType, "prepare")

	if _, connected := d.conn.GetAgent(task.NodeName); !connected {
		setStatus(task, model.TaskDispatchFailedPrepare, "node not connected")
		report()
		return false
	}

	tr, ok := r.taskRunFor(task.TaskID)
	if !ok {
		setStatus(task, model.TaskDispatchFailedPrepare, "internal: no task run registered")
		report()
		return false
	}

	frame := &transport.Frame{
		Kind: transport.KindPrepareForTask,
		PrepareForTask: &transport.PrepareForTask{
			NodeActionID:              nodeAction.ID,
			TaskID:                    task.TaskID,
			ExpectedTaskType:          task.TaskType,
			PreparationParametersJSON: auditPayloadForReadiness(task),
		},
	}

	setStatus(task, model.TaskAwaitingReadiness, "")
	report()

	if err := d.conn.SendToNode(task.NodeName, frame); err != nil {
		setStatus(task, model.TaskDispatchFailedPrepare, err.Error())
		report()
		return false
	}

	readinessCh, _ := tr.channels()
	select {
	case rr := <-readinessCh:
		if rr.IsReady {
			setStatus(task, model.TaskReadyToExecute, "")
			report()
			return true
		}
		setStatus(task, model.TaskNotReadyForTask, rr.ReasonIfNotReady)
		report()
		return false
	case <-time.After(d.cfg.ReadinessTimeout()):
		setStatus(task, model.TaskReadinessCheckTimedOut, "readiness timeout")
		report()
		return false
	case <-ctx.Done():
		setStatus(task, model.TaskCancelled, "cancelled before dispatch")
		report()
		return false
	}
}

// taskOutcome distinguishes a task run that needs one more attempt from
// one that has reached a final resting state for this NodeAction.
type taskOutcome int

const (
	outcomeDone taskOutcome = iota
	outcomeRetry
)

// phase2WithRetry runs phase2 for task, and on a retryable Failed
// transitions Retrying -> Pending and re-enters phase1+phase2, up to
// maxRetries retries (maxRetries+1 attempts in all).
func (d *Dispatcher) phase2WithRetry(ctx context.Context, r *run, nodeAction *model.NodeAction, task *model.NodeTask, report func()) {
	for {
		outcome := d.phase2(ctx, r, nodeAction, task, report)
		if outcome != outcomeRetry {
			return
		}
		if task.RetryCount >= d.cfg.MaxRetries {
			return
		}

		task.RetryCount++
		metrics.RetriesTotal.WithLabelValues(task.TaskType).Inc()
		setStatus(task, model.TaskRetrying, "retrying after failure")
		report()

		tr, _ := r.taskRunFor(task.TaskID)
		if tr != nil {
			tr.resetForRetry()
		}
		setStatus(task, model.TaskPending, "")
		report()

		if !d.phase1(ctx, r, nodeAction, task, report) {
			return
		}
	}
}

// phase2 implements the execute phase: ReadyToExecute -> TaskDispatched
// -> Starting -> InProgress -> terminal, plus cancellation handling.
func (d *Dispatcher) phase2(ctx context.Context, r *run, nodeAction *model.NodeAction, task *model.NodeTask, report func()) taskOutcome {
	timer := metrics.NewTimer()
	defer timer.ObserveDurationVec(metrics.DispatcherPhaseDuration, task.TaskType, "execute")

	tr, ok := r.taskRunFor(task.TaskID)
	if !ok {
		setStatus(task, model.TaskDispatchFailedExecute, "internal: no task run registered")
		report()
		return outcomeDone
	}

	frame := &transport.Frame{
		Kind: transport.KindExecuteTask,
		ExecuteTask: &transport.ExecuteTaskInstruction{
			NodeActionID:   nodeAction.ID,
			TaskID:         task.TaskID,
			TaskType:       task.TaskType,
			ParametersJSON: auditPayloadForReadiness(task),
		},
	}
	if err := d.conn.SendToNode(task.NodeName, frame); err != nil {
		setStatus(task, model.TaskDispatchFailedExecute, err.Error())
		metrics.NodeTasksTotal.WithLabelValues(task.TaskType, string(task.Status)).Inc()
		report()
		return outcomeDone
	}
	setStatus(task, model.TaskDispatched, "")
	report()

	_, progressCh := tr.channels()
	timeout := d.cfg.ExecutionTimeout(task.TaskType)
	timeoutTimer := time.NewTimer(timeout)
	defer timeoutTimer.Stop()

	cancelling := false
	var cancelGraceTimer <-chan time.Time
	doneCh := ctx.Done()

	for {
		select {
		case upd := <-progressCh:
			applyProgressUpdate(task, upd)
			report()
			if task.Status.IsTerminal() {
				metrics.NodeTasksTotal.WithLabelValues(task.TaskType, string(task.Status)).Inc()
				if task.Status == model.TaskFailed {
					return outcomeRetry
				}
				return outcomeDone
			}

		case <-timeoutTimer.C:
			if cancelling {
				setStatus(task, model.TaskTimedOut, "cancellation did not complete before timeout")
				metrics.NodeTasksTotal.WithLabelValues(task.TaskType, string(task.Status)).Inc()
				report()
				return outcomeDone
			}
			d.conn.SendToNode(task.NodeName, &transport.Frame{Kind: transport.KindCancelTaskRequest, CancelTaskRequest: &transport.CancelTaskRequest{NodeActionID: nodeAction.ID, TaskID: task.TaskID}})
			setStatus(task, model.TaskCancelling, "execution timed out, cancelling")
			report()
			cancelling = true
			cancelGraceTimer = time.After(d.cfg.CancelGrace())

		case <-cancelGraceTimer:
			setStatus(task, model.TaskTimedOut, "execution timed out")
			metrics.NodeTasksTotal.WithLabelValues(task.TaskType, string(task.Status)).Inc()
			report()
			return outcomeDone

		case <-tr.forceOffline:
			setStatus(task, model.TaskNodeOfflineDuringTask, "node went offline during task")
			metrics.NodeTasksTotal.WithLabelValues(task.TaskType, string(task.Status)).Inc()
			report()
			return outcomeDone

		case <-doneCh:
			doneCh = nil
			if cancelling {
				continue
			}
			d.conn.SendToNode(task.NodeName, &transport.Frame{Kind: transport.KindCancelTaskRequest, CancelTaskRequest: &transport.CancelTaskRequest{NodeActionID: nodeAction.ID, TaskID: task.TaskID}})
			setStatus(task, model.TaskCancelling, "cancellation requested")
			report()
			cancelling = true
			cancelGraceTimer = time.After(d.cfg.CancelGrace())
		}
	}
}

// applyProgressUpdate advances task per the reported status, per §4.6's
// "each update sets lastUpdateTime and may advance the task state".
func applyProgressUpdate(task *model.NodeTask, upd transport.TaskProgressUpdate) {
	task.ProgressPercent = upd.ProgressPercent
	if upd.ResultJSON != "" {
		task.ResultPayload = upd.ResultJSON
	}

	switch model.TaskStatus(upd.Status) {
	case model.TaskStarting:
		setStatus(task, model.TaskStarting, upd.Message)
	case model.TaskInProgress:
		setStatus(task, model.TaskInProgress, upd.Message)
	case model.TaskSucceeded:
		setStatus(task, model.TaskSucceeded, upd.Message)
	case model.TaskSucceededWithIssues:
		setStatus(task, model.TaskSucceededWithIssues, upd.Message)
	case model.TaskFailed:
		setStatus(task, model.TaskFailed, upd.Message)
	case model.TaskCancelled:
		setStatus(task, model.TaskCancelled, upd.Message)
	case model.TaskCancellationFailed:
		setStatus(task, model.TaskCancellationFailed, upd.Message)
	default:
		task.StatusMessage = upd.Message
		task.LastUpdateTime = time.Now().UTC()
	}
}
