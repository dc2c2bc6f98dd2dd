package agent

import (
	"context"
	"fmt"
	"sync"
)

// BaseAgent bundles identity and run lifecycle shared by all agents. An agent
// runs one task at a time since runs share its memory and executor.
type BaseAgent struct {
	name        string
	description string

	mu          sync.Mutex
	cancel      context.CancelCauseFunc
	running     bool
	interrupted bool
}

// NewBaseAgent constructs a BaseAgent with a generated description. The
// result holds a mutex and must not be copied.
func NewBaseAgent(name string) *BaseAgent {
	return &BaseAgent{
		name:        name,
		description: fmt.Sprintf("Agent %s", name),
	}
}

// Name returns the agent's name.
func (b *BaseAgent) Name() string { return b.name }

// Description returns what the agent does; managed agents expose it to
// their manager.
func (b *BaseAgent) Description() string { return b.description }

// SetDescription updates the agent's description.
func (b *BaseAgent) SetDescription(desc string) { b.description = desc }

// start marks the agent running and derives a context cancelled by
// Interrupt.
func (b *BaseAgent) start(ctx context.Context) (context.Context, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.running {
		return nil, fmt.Errorf("%s: %w", b.name, ErrAlreadyRunning)
	}

	runCtx, cancel := context.WithCancelCause(ctx)
	b.cancel = cancel
	b.running = true
	b.interrupted = false

	return runCtx, nil
}

// stop releases the run context.
func (b *BaseAgent) stop() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.cancel != nil {
		b.cancel(nil)
		b.cancel = nil
	}
	b.running = false
}

// Running reports whether a run is in progress.
func (b *BaseAgent) Running() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.running
}

// Interrupt stops the current run before its next step. In-flight model
// calls and code executions observe the cancelled context.
func (b *BaseAgent) Interrupt() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if !b.running {
		return
	}
	b.interrupted = true
	if b.cancel != nil {
		b.cancel(ErrInterrupted)
	}
}

func (b *BaseAgent) isInterrupted() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.interrupted
}
