package dispatcher

import (
	"time"

	"github.com/cuemby/sitekeeper/pkg/model"
)

// setStatus transitions task to status, stamping StartTime on first exit
// from Pending and EndTime when status is terminal.
func setStatus(task *model.NodeTask, status model.TaskStatus, message string) {
	now := time.Now().UTC()
	if task.StartTime.IsZero() && status != model.TaskPending {
		task.StartTime = now
	}
	task.Status = status
	task.StatusMessage = message
	task.LastUpdateTime = now
	if status.IsTerminal() {
		task.EndTime = now
	} else {
		task.EndTime = time.Time{}
	}
}

// aggregateProgress implements §4.6's progress aggregation: the mean of
// per-task progress, terminal-success tasks counted as 100 and
// terminal-non-success as their last reported percent (or 0).
func aggregateProgress(nodeAction *model.NodeAction) int {
	if len(nodeAction.NodeTasks) == 0 {
		return 0
	}
	total := 0
	worstMessage := ""
	worstRank := -1
	for _, t := range nodeAction.NodeTasks {
		percent := t.ProgressPercent
		if t.Status.IsSuccessClass() {
			percent = 100
		}
		total += percent

		rank := statusSeverityRank(t.Status)
		if rank > worstRank {
			worstRank = rank
			worstMessage = string(t.Status)
			if t.StatusMessage != "" {
				worstMessage = string(t.Status) + ": " + t.StatusMessage
			}
		}
	}
	nodeAction.ProgressPercent = total / len(nodeAction.NodeTasks)
	nodeAction.StatusMessage = worstMessage
	return nodeAction.ProgressPercent
}

// statusSeverityRank orders task statuses so the progress summary
// message reflects the worst current state across all tasks.
func statusSeverityRank(s model.TaskStatus) int {
	switch s {
	case model.TaskFailed, model.TaskDispatchFailedPrepare, model.TaskDispatchFailedExecute,
		model.TaskTimedOut, model.TaskNodeOfflineDuringTask, model.TaskCancellationFailed:
		return 5
	case model.TaskNotReadyForTask, model.TaskReadinessCheckTimedOut:
		return 4
	case model.TaskCancelling, model.TaskRetrying:
		return 3
	case model.TaskInProgress, model.TaskStarting, model.TaskDispatched:
		return 2
	case model.TaskSucceededWithIssues:
		return 1
	default:
		return 0
	}
}

// computeOutcome implements §4.6's overall outcome computation, applied
// once every task has reached a terminal state.
func computeOutcome(nodeAction *model.NodeAction, cancellationRequested bool, failFastOnNodeOffline bool) model.NodeActionOverallStatus {
	allSucceeded := true
	anyIssues := false
	anyCancelled := false
	anyFailureClass := false

	for _, t := range nodeAction.NodeTasks {
		switch t.Status {
		case model.TaskSucceeded:
		case model.TaskSucceededWithIssues:
			allSucceeded = false
			anyIssues = true
		case model.TaskCancelled, model.TaskCancellationFailed:
			anyCancelled = true
			allSucceeded = false
		case model.TaskNodeOfflineDuringTask:
			allSucceeded = false
			anyFailureClass = true
		default:
			if !t.Status.IsSuccessClass() {
				allSucceeded = false
				anyFailureClass = true
			}
		}
	}

	switch {
	case cancellationRequested && anyCancelled:
		return model.NodeActionCancelled
	case allSucceeded:
		return model.NodeActionSucceeded
	case !anyFailureClass && anyIssues:
		return model.NodeActionSucceededWithErrors
	case anyFailureClass && !failFastOnNodeOffline && onlyOfflineFailures(nodeAction):
		return model.NodeActionSucceededWithErrors
	default:
		return model.NodeActionFailed
	}
}

func onlyOfflineFailures(nodeAction *model.NodeAction) bool {
	for _, t := range nodeAction.NodeTasks {
		if !t.Status.IsSuccessClass() && t.Status != model.TaskNodeOfflineDuringTask {
			return false
		}
	}
	return true
}
