/*
Package workflow implements the StageContext / MasterActionContext DSL
(C7): the API an ActionHandler (pkg/handlers) uses to drive a
MasterAction through a sequence of Stages, each of which issues one or
more NodeActions through the Dispatcher (pkg/dispatcher) and records
its outcome to the Journal (pkg/journal).

A MasterActionContext wraps exactly one in-flight model.MasterAction. A
handler calls BeginStageAsync to open the next Stage, drives it via the
returned StageContext's CreateAndExecuteNodeAction /
CreateAndExecuteNodeActionsInParallel / ReportProgress / LogInfo family,
then calls StageContext.Finish to close it before opening the next one
— stages are strictly sequential, never concurrent, mirroring the
single current-stage fields (CurrentStageName/CurrentStageIndex) on
MasterAction itself.

Finalization is guaranteed on every exit path: pkg/coordinator wraps
handler execution in a recover() and, on panic or early return with an
open stage, force-finishes it before finalizing the MasterAction, so a
handler bug can leave a stage unfinished in memory but never unfinished
in the Journal.
*/
package workflow
