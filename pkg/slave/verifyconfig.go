package slave

import (
	"context"

	"github.com/cuemby/sitekeeper/pkg/transport"
)

// VerifyConfigExecutor backs pkg/handlers.EnvVerify's VerifyConfiguration
// task: it is always ready and always succeeds, since the core treats
// task bodies as opaque and VerifyConfiguration's real logic is an
// external collaborator per spec.md's scope.
type VerifyConfigExecutor struct{}

var _ Executor = VerifyConfigExecutor{}

func (VerifyConfigExecutor) Prepare(*transport.PrepareForTask) (bool, string) {
	return true, ""
}

func (VerifyConfigExecutor) Execute(ctx context.Context, task *transport.ExecuteTaskInstruction, report Reporter, cancel <-chan struct{}) {
	report.Progress("InProgress", 50, "checking configuration", "")
	select {
	case <-ctx.Done():
		report.Progress("Cancelled", 50, "connection lost", "")
	case <-cancel:
		report.Progress("Cancelled", 50, "cancelled", "")
	default:
		report.Progress("Succeeded", 100, "configuration verified", `{"ok":true}`)
	}
}
