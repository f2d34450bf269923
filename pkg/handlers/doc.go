/*
Package handlers is the ActionHandler registry (C9): the compiled-in set
of OperationType implementations pkg/coordinator dispatches to.

Two reference handlers ship with the core, both exercised end-to-end by
pkg/slave's reference executors (VerifyConfigExecutor and
SimulationExecutor):

  - EnvVerify: a minimal single-stage handler that fans
    VerifyConfiguration out to every connected node and mirrors the
    resulting NodeActionResult as the MasterAction's own outcome.
  - OrchestrationTest: reads simulation parameters
    (slaveBehavior, masterFailure, targetNodeName, customMessage,
    executionDelaySeconds) and drives an OrchestrationSimulation task
    built to land on whichever edge of the NodeActionDispatcher's state
    graph the parameters select, including a master-side panic path
    that exercises the coordinator's own recovery.

There is no registry variable in this package: cmd/sitekeeper-master
lists both handlers when it constructs the coordinator.
*/
package handlers
