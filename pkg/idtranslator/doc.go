/*
Package idtranslator implements the ActionIdTranslator (C5): the
nodeActionId → masterActionId routing table consulted on every inbound
slave message that carries a nodeActionId.

Translator implements connection.FrameRouter, so it sits directly behind
pkg/connection.Manager in the inbound frame path. While a mapping is
active, frames route to the live NodeActionDispatcher context via
ContextRouter. registerMapping is called when a NodeAction is created;
unregisterMapping when the owning MasterAction is finalized — but the
mapping is not deleted immediately. It enters a grace period
(actionIdGraceSec, default 60s, see pkg/config) during which a late
slave message — a straggling TaskProgressUpdate or TaskLogEntry sent
before the slave's socket caught up with the master's finalize — still
gets appended to the Journal directly, rather than being silently
dropped or, worse, routed into a context that no longer exists.

The grace-period sweep follows the same ticker-loop shape as
pkg/health.Monitor, adapted from the teacher's pkg/reconciler.
*/
package idtranslator
