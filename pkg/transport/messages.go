package transport

import "time"

// FrameKind discriminates the payload carried by a Frame.
type FrameKind string

const (
	KindSlaveRegistration    FrameKind = "SlaveRegistration"
	KindHeartbeat            FrameKind = "Heartbeat"
	KindPrepareForTask       FrameKind = "PrepareForTask"
	KindTaskReadinessReport  FrameKind = "TaskReadinessReport"
	KindExecuteTask          FrameKind = "ExecuteTaskInstruction"
	KindTaskProgressUpdate   FrameKind = "TaskProgressUpdate"
	KindCancelTaskRequest    FrameKind = "CancelTaskRequest"
	KindTaskLogEntry         FrameKind = "TaskLogEntry"
	KindLogFlushRequest      FrameKind = "LogFlushRequest"
	KindLogFlushConfirmation FrameKind = "LogFlushConfirmation"
	KindAdjustSystemTime     FrameKind = "AdjustSystemTime"
)

// Frame is the single wire-level envelope exchanged over the Channel
// stream. Exactly one of the typed fields is populated, selected by
// Kind; this shape travels as JSON under jsonCodec, so the payload
// fields are plain structs rather than a protobuf oneof.
type Frame struct {
	Kind FrameKind `json:"kind"`

	SlaveRegistration    *SlaveRegistration    `json:"slaveRegistration,omitempty"`
	Heartbeat            *Heartbeat            `json:"heartbeat,omitempty"`
	PrepareForTask       *PrepareForTask       `json:"prepareForTask,omitempty"`
	TaskReadinessReport  *TaskReadinessReport  `json:"taskReadinessReport,omitempty"`
	ExecuteTask          *ExecuteTaskInstruction `json:"executeTask,omitempty"`
	TaskProgressUpdate   *TaskProgressUpdate   `json:"taskProgressUpdate,omitempty"`
	CancelTaskRequest    *CancelTaskRequest    `json:"cancelTaskRequest,omitempty"`
	TaskLogEntry         *TaskLogEntry         `json:"taskLogEntry,omitempty"`
	LogFlushRequest      *LogFlushRequest      `json:"logFlushRequest,omitempty"`
	LogFlushConfirmation *LogFlushConfirmation `json:"logFlushConfirmation,omitempty"`
	AdjustSystemTime     *AdjustSystemTimeCommand `json:"adjustSystemTime,omitempty"`
}

// SlaveRegistration is sent once, immediately after a slave opens its
// channel.
type SlaveRegistration struct {
	AgentName            string `json:"agentName"`
	AgentVersion         string `json:"agentVersion"`
	OSDescription        string `json:"osDescription"`
	FrameworkDescription string `json:"frameworkDescription"`
	MaxConcurrentTasks   int    `json:"maxConcurrentTasks"`
	Hostname             string `json:"hostname"`
}

// Heartbeat is sent periodically by a slave.
type Heartbeat struct {
	NodeName           string    `json:"nodeName"`
	Timestamp          time.Time `json:"timestamp"`
	ActiveTasks        int       `json:"activeTasks"`
	AvailableTaskSlots  int       `json:"availableTaskSlots"`
	CPUUsagePercent    float64   `json:"cpuUsagePercent"`
	RAMUsagePercent    float64   `json:"ramUsagePercent"`
}

// PrepareForTask is Phase 1 of the dispatcher's per-task protocol.
type PrepareForTask struct {
	NodeActionID              string `json:"nodeActionId"`
	TaskID                    string `json:"taskId"`
	ExpectedTaskType          string `json:"expectedTaskType"`
	TargetResource            string `json:"targetResource,omitempty"`
	PreparationParametersJSON string `json:"preparationParametersJson"`
}

// TaskReadinessReport answers a PrepareForTask.
type TaskReadinessReport struct {
	NodeActionID    string    `json:"nodeActionId"`
	TaskID          string    `json:"taskId"`
	NodeName        string    `json:"nodeName"`
	IsReady         bool      `json:"isReady"`
	ReasonIfNotReady string   `json:"reasonIfNotReady,omitempty"`
	TimestampUTC    time.Time `json:"timestampUtc"`
}

// ExecuteTaskInstruction is Phase 2's dispatch message.
type ExecuteTaskInstruction struct {
	NodeActionID   string `json:"nodeActionId"`
	TaskID         string `json:"taskId"`
	TaskType       string `json:"taskType"`
	ParametersJSON string `json:"parametersJson"`
}

// TaskProgressUpdate carries status/percent/message updates and the
// terminal result payload.
type TaskProgressUpdate struct {
	NodeActionID    string    `json:"nodeActionId"`
	TaskID          string    `json:"taskId"`
	NodeName        string    `json:"nodeName"`
	Status          string    `json:"status"`
	Message         string    `json:"message,omitempty"`
	ProgressPercent int       `json:"progressPercent"`
	ResultJSON      string    `json:"resultJson,omitempty"`
	TimestampUTC    time.Time `json:"timestampUtc"`
}

// CancelTaskRequest asks a slave to abort one task.
type CancelTaskRequest struct {
	NodeActionID string `json:"nodeActionId"`
	TaskID       string `json:"taskId"`
}

// TaskLogEntry is one log line a slave attributes to a task.
type TaskLogEntry struct {
	NodeActionID string    `json:"nodeActionId"`
	TaskID       string    `json:"taskId,omitempty"`
	NodeName     string    `json:"nodeName"`
	Level        string    `json:"level"`
	Message      string    `json:"message"`
	TimestampUTC time.Time `json:"timestampUtc"`
}

// LogFlushRequest asks a slave to flush any buffered logs for a
// NodeAction before the dispatcher finalizes its outcome.
type LogFlushRequest struct {
	NodeActionID string `json:"nodeActionId"`
}

// LogFlushConfirmation answers a LogFlushRequest.
type LogFlushConfirmation struct {
	NodeActionID string `json:"nodeActionId"`
	NodeName     string `json:"nodeName"`
}

// AdjustSystemTimeCommand is an opaque pass-through the core neither
// interprets nor validates.
type AdjustSystemTimeCommand struct {
	ParametersJSON string `json:"parametersJson"`
}
