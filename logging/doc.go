// Package logging provides a minimal logging interface and adapters for codeagent.
//
// The Logger interface defines the standard logging methods (Debug, Info, Warn, Error)
// that agents, tools and executors use for observability. This package includes:
//
//   - Logger interface for dependency injection
//   - SlogAdapter wrapping an existing *slog.Logger
//   - AgentLogger, a configurable slog logger (console + optional file sink)
//     with step, tool, model and code execution helpers
//   - NoOpLogger for silent operation (testing, minimal setups)
//
// Usage:
//
//	logger := logging.NewSlogLogger(logging.LogLevelInfo, "text", false)
//	a := agent.NewCodeAgent(m, tools, func(o *agent.Options) { o.Logger = logger })
package logging
