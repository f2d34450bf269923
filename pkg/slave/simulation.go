package slave

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/cuemby/sitekeeper/pkg/handlers"
	"github.com/cuemby/sitekeeper/pkg/transport"
)

// SimulationExecutor backs pkg/handlers.OrchestrationTest's
// OrchestrationSimulation task: its payload names a Behavior that drives
// the executor through a specific edge of the NodeActionDispatcher's
// state graph (§4.6), so the graph can be exercised end to end over a
// real Master<->Slave connection rather than only in dispatcher tests.
type SimulationExecutor struct {
	mu       sync.Mutex
	attempts map[string]int // taskID -> execute() call count, for fail_retryable
}

var _ Executor = (*SimulationExecutor)(nil)

// NewSimulationExecutor constructs a SimulationExecutor.
func NewSimulationExecutor() *SimulationExecutor {
	return &SimulationExecutor{attempts: make(map[string]int)}
}

type simulationParams struct {
	Behavior      string `json:"slaveBehavior"`
	CustomMessage string `json:"customMessage"`
	DelaySeconds  int    `json:"executionDelaySeconds"`
}

func parseSimulationParams(raw string) simulationParams {
	var p simulationParams
	if raw != "" {
		_ = json.Unmarshal([]byte(raw), &p)
	}
	if p.Behavior == "" {
		p.Behavior = handlers.BehaviorSucceed
	}
	return p
}

func (e *SimulationExecutor) Prepare(task *transport.PrepareForTask) (bool, string) {
	p := parseSimulationParams(task.PreparationParametersJSON)
	switch p.Behavior {
	case handlers.BehaviorNotReady:
		return false, "simulated not-ready"
	case handlers.BehaviorReadinessTimeout:
		// Never respond; the dispatcher's own readiness timer decides
		// this task's fate. handlePrepare already runs this call on its
		// own goroutine so it does not stall other frames.
		select {}
	default:
		return true, ""
	}
}

func (e *SimulationExecutor) Execute(ctx context.Context, task *transport.ExecuteTaskInstruction, report Reporter, cancel <-chan struct{}) {
	p := parseSimulationParams(task.ParametersJSON)
	message := p.CustomMessage
	if message == "" {
		message = "simulation: " + p.Behavior
	}

	delay := time.Duration(p.DelaySeconds) * time.Second
	report.Progress("InProgress", 10, message, "")

	switch p.Behavior {
	case handlers.BehaviorSucceed:
		if e.sleep(ctx, cancel, delay, report) {
			return
		}
		report.Progress("Succeeded", 100, message, `{"ok":true}`)

	case handlers.BehaviorSucceedWithIssues:
		if e.sleep(ctx, cancel, delay, report) {
			return
		}
		report.Progress("SucceededWithIssues", 100, message, `{"ok":true,"issues":["simulated warning"]}`)

	case handlers.BehaviorFail:
		if e.sleep(ctx, cancel, delay, report) {
			return
		}
		report.Progress("Failed", 100, message, "")

	case handlers.BehaviorFailRetryable:
		attempt := e.nextAttempt(task.TaskID)
		if e.sleep(ctx, cancel, delay, report) {
			return
		}
		if attempt == 1 {
			report.Progress("Failed", 100, "failing on first attempt, expect a retry", "")
			return
		}
		report.Progress("Succeeded", 100, "succeeded on retry", `{"ok":true}`)

	case handlers.BehaviorExecutionTimeout:
		// Ignore both ctx and cancel entirely: the dispatcher's own
		// execution and cancel-grace timers must produce TimedOut
		// without any help from this side.
		select {}

	case handlers.BehaviorDisconnect:
		report.Disconnect()

	case handlers.BehaviorCancelConfirm:
		<-cancel
		report.Progress("Cancelled", 100, "cancellation confirmed", "")

	case handlers.BehaviorCancelIgnore:
		<-cancel
		// model.TaskCancellationFailed is never produced by the
		// dispatcher itself; only a slave self-reporting it lands a
		// task there, which is exactly what this behavior simulates.
		report.Progress("CancellationFailed", 90, "refusing to cancel", "")

	default:
		report.Progress("Failed", 100, "unknown simulation behavior "+p.Behavior, "")
	}
}

// nextAttempt returns this taskID's 1-based Execute call count. The
// dispatcher reuses the same TaskID across retries of one NodeTask, so
// counting calls here is how fail_retryable tells its first attempt
// from its retry.
func (e *SimulationExecutor) nextAttempt(taskID string) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.attempts[taskID]++
	return e.attempts[taskID]
}

// sleep waits out delay, reporting Cancelled and returning true if ctx
// or cancel fire first.
func (e *SimulationExecutor) sleep(ctx context.Context, cancel <-chan struct{}, delay time.Duration, report Reporter) bool {
	if delay <= 0 {
		return false
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-timer.C:
		return false
	case <-ctx.Done():
		report.Progress("Cancelled", 10, "cancelled during simulated delay", "")
		return true
	case <-cancel:
		report.Progress("Cancelled", 10, "cancelled during simulated delay", "")
		return true
	}
}
