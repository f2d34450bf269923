package handlers

import (
	"github.com/cuemby/sitekeeper/pkg/coordinator"
	"github.com/cuemby/sitekeeper/pkg/model"
	"github.com/cuemby/sitekeeper/pkg/workflow"
)

// EnvVerify is the core's minimal self-test handler (§4.9): one stage,
// one NodeAction, overall outcome mirrors the NodeActionResult.
type EnvVerify struct{}

var _ coordinator.ActionHandler = EnvVerify{}

func (EnvVerify) OperationType() model.OperationType {
	return model.OperationType("EnvVerify")
}

func (EnvVerify) Execute(mctx *workflow.MasterActionContext) error {
	mctx.InitializeProgress(1)

	stage, err := mctx.BeginStageAsync("Verification", 1)
	if err != nil {
		return err
	}

	result, err := stage.CreateAndExecuteNodeAction(workflow.NodeActionInput{
		ActionName: "Environment Verification Stage",
		TaskType:   VerifyConfiguration,
	})
	if err != nil {
		stage.Finish(false, err.Error())
		return err
	}

	stage.Finish(result.IsSuccess, result.FinalState.StatusMessage)
	stage.ReportProgress(100, "verification complete")

	if !result.IsSuccess {
		mctx.SetFailed(result.FinalState.FinalOutcome)
		return nil
	}
	mctx.SetFinalResult(result.FinalState.ResultPayload)
	mctx.SetCompleted("environment verified")
	return nil
}
