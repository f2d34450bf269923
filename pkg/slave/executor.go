package slave

import (
	"context"

	"github.com/cuemby/sitekeeper/pkg/transport"
)

// Reporter lets an Executor push TaskProgressUpdate/TaskLogEntry frames
// for the task it is running back to the Master.
type Reporter interface {
	Progress(status string, percent int, message string, resultJSON string)
	Log(level, message string)
	// Disconnect tears down the live connection to the Master, simulating
	// a node going offline mid-task. The Master's health monitor then
	// detects the missed heartbeats on its own schedule.
	Disconnect()
}

// Executor implements one TaskType's behavior on the slave side.
type Executor interface {
	// Prepare answers Phase 1's readiness probe. A false return (with a
	// reason) lands the task on NotReadyForTask without ever reaching
	// Execute.
	Prepare(task *transport.PrepareForTask) (ready bool, reason string)
	// Execute runs Phase 2. It must return once cancel is closed or ctx
	// is done; report is how it surfaces progress and final status. The
	// final Progress call's status should be one the dispatcher's state
	// graph recognizes as terminal (Succeeded, SucceededWithIssues,
	// Failed, Cancelled, CancellationFailed).
	Execute(ctx context.Context, task *transport.ExecuteTaskInstruction, report Reporter, cancel <-chan struct{})
}

// Registry maps TaskType to the Executor that implements it.
type Registry map[string]Executor
