package core

import (
	"context"
	"fmt"
	"maps"
	"sync"

	"github.com/hupe1980/codeagent/logging"
)

// RunContext carries execution state & helpers for one agent run:
//   - The ambient cancellation Context
//   - Identifiers (SessionID, RunID, AgentName)
//   - Run scoped key/value state shared by tools
//   - The model call Limiter and optional ArtifactStore
//
// A RunContext is created by the agent at the start of Run and is safe for
// concurrent use by tools executing in parallel.
type RunContext struct {
	Context       context.Context
	SessionID     string
	RunID         string
	AgentName     string
	Limiter       *ModelLimiter
	ArtifactStore ArtifactStore

	mu    sync.RWMutex
	state map[string]any

	*loggerAdapter
}

// NewRunContext constructs a RunContext with empty state.
func NewRunContext(
	ctx context.Context,
	sessionID, runID, agentName string,
	maxModelCalls int,
	artifactStore ArtifactStore,
	logger logging.Logger,
) *RunContext {
	return &RunContext{
		Context:       ctx,
		SessionID:     sessionID,
		RunID:         runID,
		AgentName:     agentName,
		Limiter:       NewModelLimiter(maxModelCalls),
		ArtifactStore: artifactStore,
		state:         map[string]any{},
		loggerAdapter: newLoggerAdapter(logger, "agent", agentName),
	}
}

// Done returns a channel closed when the underlying context is cancelled.
func (rc *RunContext) Done() <-chan struct{} { return rc.Context.Done() }

// Err returns the cancellation error (if any) from the underlying context.
func (rc *RunContext) Err() error { return rc.Context.Err() }

// GetState returns a run scoped value.
func (rc *RunContext) GetState(k string) (any, bool) {
	rc.mu.RLock()
	defer rc.mu.RUnlock()
	v, ok := rc.state[k]
	return v, ok
}

// SetState stores a run scoped value.
func (rc *RunContext) SetState(k string, v any) {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	rc.state[k] = v
}

// State returns a copy of the run scoped state.
func (rc *RunContext) State() map[string]any {
	rc.mu.RLock()
	defer rc.mu.RUnlock()
	return maps.Clone(rc.state)
}

// SaveArtifact stores bytes in the ArtifactStore under the run's session.
func (rc *RunContext) SaveArtifact(id string, data []byte) error {
	if rc.ArtifactStore == nil {
		return fmt.Errorf("artifact store not configured")
	}

	return rc.ArtifactStore.Save(rc.Context, rc.SessionID, id, data)
}
