package handlers

// TaskType tags used by the two reference handlers. The dispatcher
// treats these as opaque strings; only pkg/handlers and pkg/slave's
// executors give them meaning.
const (
	VerifyConfiguration     = "VerifyConfiguration"
	OrchestrationSimulation = "OrchestrationSimulation"
)

// Simulation payload keys, shared with pkg/slave's executor so the two
// sides agree on the wire shape of an OrchestrationSimulation task.
const (
	PayloadSlaveBehavior         = "slaveBehavior"
	PayloadCustomMessage         = "customMessage"
	PayloadExecutionDelaySeconds = "executionDelaySeconds"
)

// Slave behaviors an OrchestrationSimulation task's payload may select,
// each landing the task on a different edge of §4.6's state graph.
const (
	BehaviorSucceed           = "succeed"
	BehaviorSucceedWithIssues = "succeed_with_issues"
	BehaviorFail              = "fail"
	BehaviorFailRetryable     = "fail_retryable"
	BehaviorNotReady          = "not_ready"
	BehaviorReadinessTimeout  = "readiness_timeout"
	BehaviorExecutionTimeout  = "execution_timeout"
	BehaviorDisconnect        = "disconnect"
	BehaviorCancelConfirm     = "cancel_confirm"
	BehaviorCancelIgnore      = "cancel_ignore"
)
