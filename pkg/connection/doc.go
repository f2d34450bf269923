/*
Package connection implements the AgentConnectionManager (C2): the
registry of currently-connected slaves, their live transport.Channel,
and liveness bookkeeping.

Manager implements transport.Handler directly, so it sits between
pkg/transport and everything above it: every inbound Frame passes
through Manager first. SlaveRegistration and Heartbeat frames are
consumed here; everything else is handed to a FrameRouter (the
dispatcher, via its idtranslator-based routing) unchanged.

Concurrency follows §5: "single-writer per nodeName". Manager holds one
entry per node behind a map-level RWMutex for membership changes, and
each entry carries its own mutex so a connect/disconnect/heartbeat for
node A never blocks the same operation for node B.

A github.com/sony/gobreaker circuit breaker is attached per entry: a
slave channel failing sends repeatedly opens its breaker, so SendToNode
fails fast with the breaker's error instead of blocking the dispatcher
on a channel that is effectively dead (an addition beyond the core spec,
see SPEC_FULL.md's SUPPLEMENTED FEATURES).
*/
package connection
