/*
Package slave implements the Slave-side agent runtime: the Transport
(C1) client that dials the Master, registers, sends heartbeats, and
dispatches inbound PrepareForTask/ExecuteTaskInstruction/
CancelTaskRequest/LogFlushRequest frames to a pluggable Executor per
TaskType.

Agent follows the teacher's worker.go heartbeat/executor-loop idiom: a
single connect-register-serve cycle that runs until its receive loop
ends (network drop or Master-initiated close), then reconnects using
transport.ReconnectSchedule's backoff, exactly mirroring §4.1's
slave-side reconnection policy.

Two reference executors ship with the core, matching pkg/handlers'
EnvVerify and OrchestrationTest: a no-op VerifyConfiguration that always
succeeds, and an OrchestrationSimulation executor that acts out whatever
Behavior its payload selects so every edge of the NodeActionDispatcher's
state graph (§4.6) can be exercised from a real Master↔Slave exchange
rather than only through in-process tests.
*/
package slave
