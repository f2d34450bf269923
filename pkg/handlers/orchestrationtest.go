package handlers

import (
	"fmt"

	"github.com/cuemby/sitekeeper/pkg/coordinator"
	"github.com/cuemby/sitekeeper/pkg/model"
	"github.com/cuemby/sitekeeper/pkg/workflow"
)

// OrchestrationTest is the self-test handler that exercises every edge
// of the NodeActionDispatcher's state graph (§4.6) on demand, selected
// by simulation parameters on the MasterAction:
//
//   - slaveBehavior: one of the Behavior* constants in tasktypes.go,
//     forwarded to pkg/slave's OrchestrationSimulation executor.
//   - masterFailure: if true, panics before dispatching anything, to
//     exercise the coordinator's own panic-recovery path instead of the
//     dispatcher's.
//   - targetNodeName: restricts the NodeAction to one node; empty means
//     every connected node.
//   - customMessage: echoed into the simulated task's behavior (e.g.
//     the failure message a "fail" behavior reports).
//   - executionDelaySeconds: how long the simulated task sleeps before
//     acting out its behavior, letting a scenario exercise "cancel
//     mid-execution" deterministically.
type OrchestrationTest struct{}

var _ coordinator.ActionHandler = OrchestrationTest{}

func (OrchestrationTest) OperationType() model.OperationType {
	return model.OperationType("OrchestrationTest")
}

func (OrchestrationTest) Execute(mctx *workflow.MasterActionContext) error {
	params := mctx.Action().Parameters

	if masterFailure, _ := params["masterFailure"].(bool); masterFailure {
		panic("OrchestrationTest: simulated master-side failure")
	}

	behavior, _ := params["slaveBehavior"].(string)
	if behavior == "" {
		behavior = BehaviorSucceed
	}
	customMessage, _ := params["customMessage"].(string)
	delaySeconds := 0
	switch v := params["executionDelaySeconds"].(type) {
	case int:
		delaySeconds = v
	case float64:
		delaySeconds = int(v)
	}
	var targets []string
	if nodeName, _ := params["targetNodeName"].(string); nodeName != "" {
		targets = []string{nodeName}
	}

	mctx.InitializeProgress(1)
	stage, err := mctx.BeginStageAsync("Simulation", 1)
	if err != nil {
		return err
	}
	stage.LogInfo(fmt.Sprintf("running orchestration simulation: behavior=%s delay=%ds", behavior, delaySeconds))

	result, err := stage.CreateAndExecuteNodeAction(workflow.NodeActionInput{
		ActionName:      "Orchestration Test Stage",
		TaskType:        OrchestrationSimulation,
		TargetNodeNames: targets,
		DefaultPayload: map[string]any{
			PayloadSlaveBehavior:         behavior,
			PayloadCustomMessage:         customMessage,
			PayloadExecutionDelaySeconds: delaySeconds,
		},
		AuditContext: map[string]string{"behavior": behavior},
	})
	if err != nil {
		stage.Finish(false, err.Error())
		return err
	}
	stage.SetCustomResult(map[string]any{"behavior": behavior, "customMessage": customMessage})
	stage.Finish(result.IsSuccess, result.FinalState.StatusMessage)
	stage.ReportProgress(100, "simulation complete")

	if !result.IsSuccess {
		mctx.SetFailed(result.FinalState.FinalOutcome)
		return nil
	}
	mctx.SetCompleted("simulation succeeded")
	return nil
}
