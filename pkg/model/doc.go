/*
Package model defines the data structures shared by every SiteKeeper core
component.

This package contains the hierarchical workflow model — MasterAction,
StageRecord, NodeAction, NodeTask — plus the agent bookkeeping types
(ConnectedAgentInfo, CachedNodeState, ActionIdMapping) that the control
plane uses to track slaves independently of any in-flight action.

# Architecture

	┌─────────────────────── WORKFLOW MODEL ───────────────────────┐
	│                                                                │
	│  MasterAction (one operator-triggered workflow)                │
	│    └─ executionHistory []StageRecord (append-only, archived)    │
	│    └─ currentStageNodeActions map[string]*NodeAction (live)     │
	│          └─ NodeAction (one TaskType, many nodes)               │
	│                └─ NodeTask (one node, one task graph position)  │
	│                                                                │
	└────────────────────────────────────────────────────────────────┘

MasterAction carries both the durable record (executionHistory, set once
a stage closes) and transient fields for live UI consumption
(currentStageName, currentStageNodeActions, recentLogs). Transient fields
are never written to the Journal; see pkg/journal.

# State machines

NodeTask status follows the per-task graph from the specification
(Pending → AwaitingReadiness → ReadyToExecute → TaskDispatched →
Starting → InProgress → a terminal state). NodeAction and MasterAction
status are derived aggregates, never set directly except through the
terminal-outcome computation in pkg/dispatcher and pkg/workflow.

All types here are plain data: no package in this module performs I/O or
holds a lock on a model.* value. Concurrency ownership is documented per
holder (pkg/dispatcher, pkg/workflow, pkg/connection), not here.
*/
package model
