/*
Package dispatcher implements the NodeActionDispatcher (C6): the
per-task state machine that drives a NodeAction's tasks through the
two-phase prepare/execute protocol against one or more slaves, and
reports the aggregated result back to the workflow layer (pkg/workflow).

Dispatcher implements idtranslator.ContextRouter, so it is the terminal
destination for every inbound slave frame that carries a nodeActionId
while that NodeAction is active. Each Execute call registers a run
keyed by the NodeAction's id; RouteToNodeAction looks the run up and
hands the frame to the matching task's state machine goroutine over a
dedicated channel.

The state graph, readiness gating, progress aggregation, retry policy,
and outcome computation all follow §4.6 exactly; the comments on
phase1, phase2 and phase2WithRetry in task.go name the transitions each
function implements.

A background goroutine subscribes to pkg/health.Monitor's StatusChange
stream so a node going Offline mid-task is reflected as
NodeOfflineDuringTask without the per-task state machine needing to
poll connectivity itself — the same "push, don't poll" shape the
teacher uses between its worker heartbeat loop and reconciler.
*/
package dispatcher
