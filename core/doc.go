// Package core provides the foundational domain types, interfaces and execution
// contexts shared by codeagent packages. It defines:
//
//   - Content and Parts (role based model messages, text, tool calls, tool results)
//   - Events (the stream of step records emitted while an agent runs)
//   - RunContext / ToolContext (scoped execution state handed to tools)
//   - ModelLimiter (per-run model call budget)
//   - Pluggable stores for session memory snapshots and artifacts
//
// Concrete agents, models, executors and store backends live in their own
// packages and depend on the small interfaces declared here.
package core
