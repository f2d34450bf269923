package log

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
)

var (
	// Logger is the global logger instance
	Logger zerolog.Logger
)

// Level represents log level
type Level string

const (
	DebugLevel Level = "debug"
	InfoLevel  Level = "info"
	WarnLevel  Level = "warn"
	ErrorLevel Level = "error"
)

// Config holds logging configuration
type Config struct {
	Level      Level
	JSONOutput bool
	Output     io.Writer
}

// Init initializes the global logger
func Init(cfg Config) {
	// Set log level
	var level zerolog.Level
	switch cfg.Level {
	case DebugLevel:
		level = zerolog.DebugLevel
	case InfoLevel:
		level = zerolog.InfoLevel
	case WarnLevel:
		level = zerolog.WarnLevel
	case ErrorLevel:
		level = zerolog.ErrorLevel
	default:
		level = zerolog.InfoLevel
	}

	zerolog.SetGlobalLevel(level)

	// Configure output
	output := cfg.Output
	if output == nil {
		output = os.Stdout
	}

	// Use JSON or console output
	if cfg.JSONOutput {
		Logger = zerolog.New(output).With().Timestamp().Logger()
	} else {
		Logger = zerolog.New(zerolog.ConsoleWriter{
			Out:        output,
			TimeFormat: time.RFC3339,
		}).With().Timestamp().Logger()
	}
}

// WithComponent creates a child logger with a component field, e.g.
// "dispatcher", "coordinator", "journal", "health".
func WithComponent(component string) zerolog.Logger {
	return Logger.With().Str("component", component).Logger()
}

// WithNodeID creates a child logger scoped to one slave node.
func WithNodeID(nodeName string) zerolog.Logger {
	return Logger.With().Str("node_name", nodeName).Logger()
}

// WithMasterActionID creates a child logger scoped to one MasterAction.
func WithMasterActionID(masterActionID string) zerolog.Logger {
	return Logger.With().Str("master_action_id", masterActionID).Logger()
}

// WithTaskID creates a child logger scoped to one NodeTask.
func WithTaskID(taskID string) zerolog.Logger {
	return Logger.With().Str("task_id", taskID).Logger()
}

// Sink lets non-logging components (the workflow context, the Journal)
// capture log records without depending on zerolog directly. A Sink is
// attached to a component logger with WithSink.
type Sink interface {
	Record(level string, message string)
}

// sinkHook forwards every write on the wrapped logger to a Sink; used to
// mirror stage logs into MasterAction.RecentLogs and the Journal's
// per-stage _master.log (see pkg/workflow).
type sinkHook struct {
	sink Sink
}

func (h sinkHook) Run(e *zerolog.Event, level zerolog.Level, msg string) {
	if h.sink == nil || msg == "" {
		return
	}
	h.sink.Record(level.String(), msg)
}

// WithSink returns a derived logger that also forwards every log line to
// sink, in addition to the normal output.
func WithSink(base zerolog.Logger, sink Sink) zerolog.Logger {
	return base.Hook(sinkHook{sink: sink})
}

// Helper functions for common logging patterns
func Info(msg string) {
	Logger.Info().Msg(msg)
}

func Debug(msg string) {
	Logger.Debug().Msg(msg)
}

func Warn(msg string) {
	Logger.Warn().Msg(msg)
}

func Error(msg string) {
	Logger.Error().Msg(msg)
}

func Errorf(format string, err error) {
	Logger.Error().Err(err).Msg(format)
}

func Fatal(msg string) {
	Logger.Fatal().Msg(msg)
}
