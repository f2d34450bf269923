package coordinator

import (
	"github.com/cuemby/sitekeeper/pkg/model"
	"github.com/cuemby/sitekeeper/pkg/workflow"
)

// ActionHandler implements the workflow for one OperationType (C9),
// using MasterActionContext's Stage DSL. Execute's returned error, if
// any, becomes the MasterAction's FailureMessage unless the handler
// already called a terminal Set* method itself.
type ActionHandler interface {
	OperationType() model.OperationType
	Execute(mctx *workflow.MasterActionContext) error
}

// ConflictPolicy controls how many concurrently-active MasterActions a
// given OperationType tolerates. The zero value (0) means "use the
// Coordinator's global default", matching §4.8's "default policy: one
// active MasterAction total; configurable per-type".
type ConflictPolicy struct {
	MaxConcurrent int
}
