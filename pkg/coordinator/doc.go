/*
Package coordinator implements the MasterActionCoordinator (C8): the
entry point that accepts operator-triggered action requests, enforces
the single-active-MasterAction policy, resolves an ActionHandler (C9)
for the requested OperationType, and runs it to completion under a
fresh workflow.MasterActionContext (C7).

SubmitAction uses golang.org/x/sync/singleflight to serialize the
check-active/create-and-launch critical section per initiator, so two
submissions racing in from the same tenant at the same instant can
never both observe "no active action" and both be accepted — exactly
the guard named in the specification's submitAction description.

Handler execution always finalizes, even on panic: run wraps the
handler call in a recover() and, whatever happens, finalizes any stage
the handler left open, defaults an unset terminal status to Succeeded
(or Failed with the panic/error message), and removes the action from
the active set. Finalizing publishes the completion event to C10, so
that event goes out before the action leaves the active set.
*/
package coordinator
