package model

import (
	"time"
)

// OperationType identifies the workflow a MasterAction runs, resolved by
// the ActionHandler registry (pkg/handlers) to a concrete handler.
type OperationType string

// OverallStatus is the lifecycle status of a MasterAction.
type OverallStatus string

const (
	OverallInitiated  OverallStatus = "Initiated"
	OverallInProgress OverallStatus = "InProgress"
	OverallCancelling OverallStatus = "Cancelling"
	OverallSucceeded  OverallStatus = "Succeeded"
	OverallFailed     OverallStatus = "Failed"
	OverallCancelled  OverallStatus = "Cancelled"
)

// IsTerminal reports whether status is one of the three terminal values.
func (s OverallStatus) IsTerminal() bool {
	switch s {
	case OverallSucceeded, OverallFailed, OverallCancelled:
		return true
	default:
		return false
	}
}

// recentLogsCap bounds MasterAction.RecentLogs, per the spec's ring buffer.
const recentLogsCap = 1000

// LogEntry is one line in a MasterAction's recent-log ring buffer.
type LogEntry struct {
	Time    time.Time
	Level   string
	Stage   string
	Message string
}

// MasterAction is a top-level workflow instance triggered by an operator.
type MasterAction struct {
	ID          string
	Type        OperationType
	Name        string
	InitiatedBy string
	Parameters  map[string]any

	StartTime time.Time
	EndTime   time.Time

	OverallStatus          OverallStatus
	OverallProgressPercent int
	FinalResultPayload     any
	FailureMessage         string

	ExecutionHistory []StageRecord

	// Transient fields: live-UI only, never archived by pkg/journal.
	CurrentStageName       string
	CurrentStageIndex      int
	CurrentStageNodeActions map[string]*NodeAction
	RecentLogs              []LogEntry
}

// AppendLog pushes a log line into the ring buffer, evicting the oldest
// entry once the buffer is at capacity. Callers must hold the owning
// MasterAction's lock (see pkg/workflow).
func (a *MasterAction) AppendLog(e LogEntry) {
	a.RecentLogs = append(a.RecentLogs, e)
	if over := len(a.RecentLogs) - recentLogsCap; over > 0 {
		a.RecentLogs = a.RecentLogs[over:]
	}
}

// StageRecord is the persisted history of one completed stage.
type StageRecord struct {
	StageIndex       int
	StageName        string
	StartTime        time.Time
	EndTime          time.Time
	IsSuccess        bool
	FinalNodeActions []NodeAction
	CustomResult     any
}

// NodeActionOverallStatus is the aggregate status of a NodeAction.
type NodeActionOverallStatus string

const (
	NodeActionPendingInitiation    NodeActionOverallStatus = "PendingInitiation"
	NodeActionAwaitingReadiness    NodeActionOverallStatus = "AwaitingReadiness"
	NodeActionInProgress           NodeActionOverallStatus = "InProgress"
	NodeActionSucceeded            NodeActionOverallStatus = "Succeeded"
	NodeActionSucceededWithErrors  NodeActionOverallStatus = "SucceededWithErrors"
	NodeActionFailed               NodeActionOverallStatus = "Failed"
	NodeActionCancelled            NodeActionOverallStatus = "Cancelled"
)

// NodeAction is a group of per-node tasks of a single TaskType, issued
// together as part of one stage.
type NodeAction struct {
	ID            string
	Name          string
	OverallStatus NodeActionOverallStatus

	CreationTime time.Time
	StartTime    time.Time
	EndTime      time.Time

	AuditContext map[string]string
	InitiatedBy  string

	NodeTasks []*NodeTask

	ProgressPercent         int
	StatusMessage           string
	FinalOutcome            string
	IsCancellationRequested bool
	ResultPayload           any
}

// TaskStatus is the per-task state, following the state graph in §4.6 of
// the specification. Transitions are enforced by pkg/dispatcher; this
// package only names the values.
type TaskStatus string

const (
	TaskPending                 TaskStatus = "Pending"
	TaskAwaitingReadiness       TaskStatus = "AwaitingReadiness"
	TaskReadyToExecute          TaskStatus = "ReadyToExecute"
	TaskNotReadyForTask         TaskStatus = "NotReadyForTask"
	TaskReadinessCheckTimedOut  TaskStatus = "ReadinessCheckTimedOut"
	TaskDispatchFailedPrepare   TaskStatus = "DispatchFailed_Prepare"
	TaskDispatched              TaskStatus = "TaskDispatched"
	TaskDispatchFailedExecute   TaskStatus = "TaskDispatchFailed_Execute"
	TaskStarting                TaskStatus = "Starting"
	TaskInProgress              TaskStatus = "InProgress"
	TaskSucceeded               TaskStatus = "Succeeded"
	TaskSucceededWithIssues     TaskStatus = "SucceededWithIssues"
	TaskFailed                  TaskStatus = "Failed"
	TaskRetrying                TaskStatus = "Retrying"
	TaskTimedOut                TaskStatus = "TimedOut"
	TaskNodeOfflineDuringTask   TaskStatus = "NodeOfflineDuringTask"
	TaskCancelling              TaskStatus = "Cancelling"
	TaskCancelled               TaskStatus = "Cancelled"
	TaskCancellationFailed      TaskStatus = "CancellationFailed"
)

// terminalTaskStatuses is the IsTerminal set from §4.6.
var terminalTaskStatuses = map[TaskStatus]bool{
	TaskNotReadyForTask:        true,
	TaskReadinessCheckTimedOut: true,
	TaskDispatchFailedPrepare:  true,
	TaskSucceeded:              true,
	TaskSucceededWithIssues:    true,
	TaskFailed:                 true,
	TaskCancelled:              true,
	TaskCancellationFailed:     true,
	TaskDispatchFailedExecute:  true,
	TaskNodeOfflineDuringTask:  true,
	TaskTimedOut:               true,
}

// IsTerminal reports whether s is one of the graph's terminal states.
func (s TaskStatus) IsTerminal() bool {
	return terminalTaskStatuses[s]
}

// successClassTaskStatuses succeed cleanly or with issues, used by the
// NodeAction outcome computation in pkg/dispatcher.
var successClassTaskStatuses = map[TaskStatus]bool{
	TaskSucceeded:           true,
	TaskSucceededWithIssues: true,
}

// IsSuccessClass reports whether s is Succeeded or SucceededWithIssues.
func (s TaskStatus) IsSuccessClass() bool {
	return successClassTaskStatuses[s]
}

// NodeTask is a single task dispatched to one slave.
type NodeTask struct {
	TaskID   string
	ActionID string
	NodeName string
	TaskType string

	Status  TaskStatus
	Payload map[string]any

	CreationTime   time.Time
	StartTime      time.Time
	EndTime        time.Time
	LastUpdateTime time.Time

	ProgressPercent int
	StatusMessage   string
	RetryCount      int
	ResultPayload   any
}

// AgentConnectivityStatus is the connectivity state NodeHealthMonitor
// derives for a node (§4.3).
type AgentConnectivityStatus string

const (
	ConnectivityNeverConnected AgentConnectivityStatus = "NeverConnected"
	ConnectivityOnline         AgentConnectivityStatus = "Online"
	ConnectivityUnreachable    AgentConnectivityStatus = "Unreachable"
	ConnectivityOffline        AgentConnectivityStatus = "Offline"
	ConnectivityUnknown        AgentConnectivityStatus = "Unknown"
)

// ConnectedAgentInfo is one entry per registered slave (§ Data Model).
type ConnectedAgentInfo struct {
	NodeName         string
	ChannelHandle    string
	AgentVersion     string
	LastHeartbeat    time.Time
	LastKnownStatus  AgentConnectivityStatus
	ConnectedSince   time.Time
	RemoteAddress    string
	OSDescription    string
	FrameworkVersion string
	MaxConcurrentTasks int
	Metadata         map[string]string
}

// NodeHealthSummary is the derived health picture NodeHealthMonitor
// publishes alongside AgentConnectivityStatus.
type NodeHealthSummary struct {
	NodeName           string
	ConnectivityStatus AgentConnectivityStatus
	LastHeartbeatTime  time.Time
	ActiveTasks        int
	AvailableTaskSlots int
	CPUUsagePercent    float64
	RAMUsagePercent    float64
}

// ActionIdMapping is one entry in the ActionIdTranslator's nodeActionId →
// masterActionId routing table (§4.5). Unregistered anchors the grace
// period: an entry is retained for actionIdGraceSec after Unregistered is
// set, so late slave messages still route to the Journal.
type ActionIdMapping struct {
	NodeActionID   string
	MasterActionID string
	RegisteredAt   time.Time
	Unregistered   time.Time
}

// CachedNodeState is the master's last-known picture of a node,
// independent of current connectivity; it persists across reconnects.
type CachedNodeState struct {
	NodeName            string
	ConnectivityStatus  AgentConnectivityStatus
	LastHeartbeatTime   time.Time
	CPUUsagePercent     float64
	RAMUsagePercent     float64
	LastDiagnostics     any
	InstalledPackages   []string
	ApplicationStatuses map[string]string
	LastStateUpdateTime time.Time
}
