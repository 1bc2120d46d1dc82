// Package logging provides structured logging for the Conductor process.
//
// This package wraps Go's log/slog to provide JSON-formatted logs with
// context propagation support for debugging and post-hoc analysis. Every
// component of the orchestration core (coordinator, scheduler, rule engine,
// threshold monitor, workflow engine, communication bus) logs through a
// child [Logger] carrying its component name, so a single log file can be
// filtered per subsystem, per task, per worker, or per workflow execution.
//
// # Features
//
//   - JSON-formatted structured logging via slog
//   - Configurable log levels (DEBUG, INFO, WARN, ERROR), adjustable at runtime
//   - Context propagation (component, task ID, worker ID, execution ID)
//   - Size-based log rotation with optional compression (lumberjack)
//   - Log aggregation, filtering, and export utilities
//
// # Thread Safety
//
// All types in this package are safe for concurrent use. Child loggers
// created via With* methods share the underlying writer and level.
//
// # Basic Usage
//
//	logger, err := logging.NewLogger(logging.Options{
//	    File:  "/var/log/conductor/conductor.log",
//	    Level: "INFO",
//	})
//	if err != nil {
//	    return err
//	}
//	defer logger.Close()
//
//	coordLog := logger.WithComponent("coordinator")
//	coordLog.WithTask("t-123").Info("task dispatched", "worker_id", "w-1", "attempt", 1)
//
// Output:
//
//	{"time":"...","level":"INFO","msg":"task dispatched","component":"coordinator","task_id":"t-123","worker_id":"w-1","attempt":1}
//
// # Testing
//
// For testing, use [NopLogger] to discard all log output.
//
// # Configuration
//
//	logging:
//	  enabled: true
//	  level: info
//	  file: /var/log/conductor/conductor.log
//	  max_size_mb: 10
//	  max_backups: 3
package logging
