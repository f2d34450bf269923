/*
Package health implements the NodeHealthMonitor (C3): periodic
connectivity derivation from heartbeat timestamps, independent of
whether a transport channel happens to be open right now.

Monitor is adapted from the teacher's pkg/reconciler ticker-loop: a
single goroutine wakes on a fixed interval, walks every known node under
one lock, and recomputes connectivity per §4.3's thresholds. Unlike the
teacher's reconciler (which reacts to drift in cluster-desired-state),
Monitor only derives and publishes status — the dispatcher is the one
consumer that acts on it, by treating an InProgress task on a newly
Offline node as NodeOfflineDuringTask.

CachedNodeState persists across reconnects: a node's last-known
diagnostics, resource usage, and connectivity survive a disconnect/
reconnect cycle so the GUI always has something to show.
*/
package health
