package core

import (
	"context"

	"github.com/hupe1980/codeagent/logging"
)

// ToolContext provides a constrained surface for tool implementations invoked
// by an agent: the cancellation context, correlation ids, the run logger and
// run scoped state. Its Log* helpers tag records with the agent name and the
// function call id.
type ToolContext struct {
	runCtx         *RunContext
	ctx            context.Context
	functionCallID string

	*loggerAdapter
}

// NewToolContext constructs a tool context bound to a parent RunContext and
// unique functionCallID. ctx narrows the run context (e.g. a per-call timeout);
// nil uses the run context.
func NewToolContext(ctx context.Context, runCtx *RunContext, functionCallID string) *ToolContext {
	if ctx == nil {
		ctx = runCtx.Context
	}
	return &ToolContext{
		runCtx:         runCtx,
		ctx:            ctx,
		functionCallID: functionCallID,
		loggerAdapter:  newLoggerAdapter(runCtx.Logger(), "agent", runCtx.AgentName, "fc_id", functionCallID),
	}
}

// NewStandaloneToolContext builds a ToolContext for calling a tool outside of
// an agent run (tests, CLI diagnostics).
func NewStandaloneToolContext(ctx context.Context, logger logging.Logger) *ToolContext {
	rc := NewRunContext(ctx, "", NewID(), "", 0, nil, logger)
	return NewToolContext(ctx, rc, NewID())
}

// Context returns the context associated with the tool invocation.
func (tc *ToolContext) Context() context.Context { return tc.ctx }

// SessionID returns the session ID associated with the tool invocation.
func (tc *ToolContext) SessionID() string { return tc.runCtx.SessionID }

// RunID returns the run ID associated with the tool invocation.
func (tc *ToolContext) RunID() string { return tc.runCtx.RunID }

// FunctionCallID returns the function call ID associated with the tool invocation.
func (tc *ToolContext) FunctionCallID() string { return tc.functionCallID }

// AgentName returns the agent name associated with the tool invocation.
func (tc *ToolContext) AgentName() string { return tc.runCtx.AgentName }

// RunContext returns the parent run context.
func (tc *ToolContext) RunContext() *RunContext { return tc.runCtx }

// GetState retrieves run scoped state.
func (tc *ToolContext) GetState(k string) (any, bool) { return tc.runCtx.GetState(k) }

// SetState records run scoped state visible to later tool calls of the same run.
func (tc *ToolContext) SetState(k string, v any) { tc.runCtx.SetState(k, v) }

// SaveArtifact persists artifact bytes under the run's session.
func (tc *ToolContext) SaveArtifact(id string, data []byte) error {
	return tc.runCtx.SaveArtifact(id, data)
}
