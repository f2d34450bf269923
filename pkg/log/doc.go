/*
Package log provides structured logging for SiteKeeper using zerolog.

The log package wraps zerolog to provide JSON-structured logging with
component-specific loggers, configurable log levels, and helper functions for
common logging patterns. All logs include timestamps and support filtering by
severity level for production debugging.

# Usage

Initializing the Logger:

	import "github.com/cuemby/sitekeeper/pkg/log"

	// JSON output (production)
	log.Init(log.Config{
		Level:      log.InfoLevel,
		JSONOutput: true,
		Output:     os.Stdout,
	})

	// Console output (development)
	log.Init(log.Config{
		Level:      log.DebugLevel,
		JSONOutput: false,
		Output:     os.Stdout,
	})

Simple Logging:

	log.Info("coordinator started")
	log.Warn("high memory usage detected")
	log.Error("failed to dispatch task")

Component Loggers:

	dispatcherLog := log.WithComponent("dispatcher")
	dispatcherLog.Info().Str("node_action_id", id).Msg("phase 1 complete")

	nodeLog := log.WithNodeID("node-1").With().
		Str("master_action_id", actionID).Logger()
	nodeLog.Info().Msg("task dispatched")

Context Logger Helpers:

	log.WithComponent("coordinator")
	log.WithNodeID("node-1")
	log.WithMasterActionID("ma-abc123")
	log.WithTaskID("task-def456")

A Sink lets non-logging components capture a copy of every record written
through a derived logger — used by pkg/workflow to mirror stage logs into
MasterAction.RecentLogs and the Journal's per-stage _master.log:

	sinkLogger := log.WithSink(log.WithComponent("workflow"), mySink)

# Design Patterns

Global Logger Pattern:
  - Single package-level Logger instance, initialized once via log.Init.
  - Component loggers derive from it with With().Str(...).Logger() so every
    record carries enough context to correlate across the Master/Slave
    boundary without thread-local state.

Do:
  - Use structured fields for queryable data (node name, master action id,
    task id), not string interpolation.
  - Create component/entity-scoped loggers once and pass them down instead
    of re-deriving per call.

Don't:
  - Log secrets or task payload contents verbatim.
  - Use Debug level in production.
*/
package log
