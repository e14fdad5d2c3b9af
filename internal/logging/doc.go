// Package logging provides structured logging for the Overseer engine.
//
// This package wraps Go's log/slog to provide JSON-formatted logs with
// persistent attributes for debugging and post-hoc analysis. Engine
// components attach their identity (component, task, session, plan) once
// via the With* methods and every subsequent entry carries it.
//
// # Features
//
//   - JSON-formatted structured logging via slog
//   - Configurable log levels (DEBUG, INFO, WARN, ERROR)
//   - Attribute propagation (component, task ID, session ID, plan ID)
//   - File-backed or stderr output
//
// # Thread Safety
//
// All types in this package are safe for concurrent use. Child loggers
// created via the With* methods share the underlying writer safely.
//
// # Basic Usage
//
//	logger, err := logging.NewLogger("/path/to/state", "INFO")
//	if err != nil {
//	    return err
//	}
//	defer logger.Close()
//
//	log := logger.WithComponent("supervisor").WithTask("task-1")
//	log.Info("monitoring started", "interval_s", 60)
//	log.Error("session unresponsive", "session_id", sid)
package logging
