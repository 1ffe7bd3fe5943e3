// Package logging provides a minimal logging interface and adapters for a2aflow.
//
// The Logger interface defines the leveled methods (Debug, Info, Warn, Error)
// that the engine, the server and task handlers use for observability. Arguments
// after the message are slog style key/value pairs. This package includes:
//
//   - Logger interface for dependency injection
//   - SlogAdapter wrapping Go's structured logging
//   - FlowLogger with workflow/run scoping and domain helpers
//   - NoOpLogger for silent operation (testing, minimal setups)
//
// Usage:
//
//	logger := logging.NewSlogLogger(logging.LogLevelInfo, "json", false)
//	eng := engine.New(tasks, func(o *engine.Options) { o.Logger = logger })
package logging
