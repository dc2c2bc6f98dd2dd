package runner

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	"golang.org/x/sync/semaphore"

	"github.com/hupe1980/codeagent/agent"
	"github.com/hupe1980/codeagent/artifact"
	"github.com/hupe1980/codeagent/core"
	"github.com/hupe1980/codeagent/logging"
	"github.com/hupe1980/codeagent/memory"
	"github.com/hupe1980/codeagent/session"
)

// DefaultFinalAnswerArtifact is the artifact id the final answer is saved under.
const DefaultFinalAnswerArtifact = "final_answer.md"

// AgentFactory creates the agent for one run. Agents hold per run memory so
// every run gets its own instance; the session snapshot is restored into it.
type AgentFactory func() (agent.Agent, error)

// Options holds dependency + configuration overrides passed to New().
type Options struct {
	// MaxConcurrentRuns limits concurrent agent runs. Further runs wait for a
	// free slot or their context.
	MaxConcurrentRuns int
	// EventBufferSize sets channel buffering for events.
	EventBufferSize int
	// SessionStore persists agent memory between runs of a session.
	SessionStore core.SessionStore
	// ArtifactStore receives the final answer and is exposed to tools.
	ArtifactStore core.ArtifactStore
	// FinalAnswerArtifact names the artifact holding the final answer, saved
	// under the session id (or the run id for runs without session). Empty
	// disables saving it.
	FinalAnswerArtifact string
	Logger              logging.Logger
}

// Runner coordinates agent runs: bounded concurrency, cancellation by run
// id, session memory persistence and event streaming. Public methods are
// safe for concurrent use.
type Runner struct {
	newAgent AgentFactory

	sem                 *semaphore.Weighted
	eventBufferSize     int
	sessionStore        core.SessionStore
	artifactStore       core.ArtifactStore
	finalAnswerArtifact string
	logger              logging.Logger

	mu           sync.Mutex
	activeRuns   map[string]context.CancelFunc
	sessionLocks map[string]*sessionLock
}

// sessionLock is released from Runner.sessionLocks once refs drops to zero.
type sessionLock struct {
	mu   sync.Mutex
	refs int
}

// New constructs a Runner with optional overrides.
func New(newAgent AgentFactory, optFns ...func(o *Options)) *Runner {
	opts := Options{
		MaxConcurrentRuns:   10,
		EventBufferSize:     100,
		SessionStore:        session.NewInMemoryStore(),
		ArtifactStore:       artifact.NewInMemoryStore(),
		FinalAnswerArtifact: DefaultFinalAnswerArtifact,
		Logger:              logging.NoOpLogger{},
	}

	for _, fn := range optFns {
		fn(&opts)
	}

	if opts.MaxConcurrentRuns <= 0 {
		opts.MaxConcurrentRuns = 1
	}

	return &Runner{
		newAgent:            newAgent,
		sem:                 semaphore.NewWeighted(int64(opts.MaxConcurrentRuns)),
		eventBufferSize:     opts.EventBufferSize,
		sessionStore:        opts.SessionStore,
		artifactStore:       opts.ArtifactStore,
		finalAnswerArtifact: opts.FinalAnswerArtifact,
		logger:              opts.Logger,
		activeRuns:          make(map[string]context.CancelFunc),
		sessionLocks:        make(map[string]*sessionLock),
	}
}

// ArtifactStore returns the store final answers are saved to.
func (r *Runner) ArtifactStore() core.ArtifactStore { return r.artifactStore }

// SessionStore returns the store agent memory is persisted to.
func (r *Runner) SessionStore() core.SessionStore { return r.sessionStore }

// Run starts an asynchronous run and returns its id. Events are delivered in
// order; the error channel carries at most one terminal error. Both channels
// are closed when the run ends.
func (r *Runner) Run(
	ctx context.Context,
	sessionID, task string,
	optFns ...func(o *agent.RunOptions),
) (string, <-chan core.Event, <-chan error) {
	runID := core.NewID()

	eventsCh := make(chan core.Event, r.eventBufferSize)
	errorsCh := make(chan error, 1)

	ctx, cancel := context.WithCancel(ctx)
	r.mu.Lock()
	r.activeRuns[runID] = cancel
	r.mu.Unlock()

	go func() {
		defer func() {
			close(eventsCh)
			close(errorsCh)
			r.release(runID)
		}()

		emit := func(ev core.Event) {
			select {
			case <-ctx.Done():
			case eventsCh <- ev:
			}
		}

		if _, err := r.execute(ctx, runID, sessionID, task, emit, optFns); err != nil {
			errorsCh <- fmt.Errorf("agent execution failed: %w", err)
		}
	}()

	return runID, eventsCh, errorsCh
}

// RunSync runs task to completion and returns the result.
func (r *Runner) RunSync(
	ctx context.Context,
	sessionID, task string,
	optFns ...func(o *agent.RunOptions),
) (*agent.RunResult, error) {
	runID := core.NewID()

	ctx, cancel := context.WithCancel(ctx)
	r.mu.Lock()
	r.activeRuns[runID] = cancel
	r.mu.Unlock()
	defer r.release(runID)

	return r.execute(ctx, runID, sessionID, task, nil, optFns)
}

// Cancel cancels a running run by ID.
func (r *Runner) Cancel(runID string) error {
	r.mu.Lock()
	cancel, exists := r.activeRuns[runID]
	r.mu.Unlock()

	if !exists {
		return fmt.Errorf("run %s not found", runID)
	}

	cancel()

	return nil
}

// ActiveRuns returns the number of runs in progress or waiting for a slot.
func (r *Runner) ActiveRuns() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.activeRuns)
}

func (r *Runner) release(runID string) {
	r.mu.Lock()
	cancel, ok := r.activeRuns[runID]
	delete(r.activeRuns, runID)
	r.mu.Unlock()

	if ok {
		cancel()
	}
}

// lockSession serializes runs on the same session so snapshots are not lost.
func (r *Runner) lockSession(sessionID string) func() {
	if sessionID == "" {
		return func() {}
	}

	r.mu.Lock()
	l, ok := r.sessionLocks[sessionID]
	if !ok {
		l = &sessionLock{}
		r.sessionLocks[sessionID] = l
	}
	l.refs++
	r.mu.Unlock()

	l.mu.Lock()
	return func() {
		l.mu.Unlock()

		r.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(r.sessionLocks, sessionID)
		}
		r.mu.Unlock()
	}
}

func (r *Runner) execute(
	ctx context.Context,
	runID, sessionID, task string,
	emit func(core.Event),
	optFns []func(o *agent.RunOptions),
) (*agent.RunResult, error) {
	if err := r.sem.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	defer r.sem.Release(1)

	unlock := r.lockSession(sessionID)
	defer unlock()

	a, err := r.newAgent()
	if err != nil {
		return nil, fmt.Errorf("create agent: %w", err)
	}
	if c, ok := a.(io.Closer); ok {
		defer func() {
			if err := c.Close(); err != nil {
				r.logger.Warn("runner.agent.close_failed", "agent", a.Name(), "error", err.Error())
			}
		}()
	}

	restored, err := r.restore(ctx, sessionID, a.Memory())
	if err != nil {
		return nil, err
	}

	r.logger.Info("runner.run.start", "agent", a.Name(), "session_id", sessionID, "run_id", runID, "restored", restored)

	opts := append([]func(o *agent.RunOptions){func(o *agent.RunOptions) {
		o.SessionID = sessionID
		o.RunID = runID
		o.ArtifactStore = r.artifactStore
		o.Reset = !restored
		o.OnEvent = emit
	}}, optFns...)

	res, err := a.Run(ctx, task, opts...)
	if err != nil {
		r.logger.Warn("runner.run.failed", "agent", a.Name(), "run_id", runID, "error", err.Error())
		if errors.Is(err, agent.ErrInterrupted) || ctx.Err() != nil {
			return nil, err
		}
		if perr := r.persist(ctx, sessionID, a.Memory()); perr != nil {
			r.logger.Warn("runner.session.save_failed", "session_id", sessionID, "error", perr.Error())
		}
		return nil, err
	}

	if err := r.persist(ctx, sessionID, a.Memory()); err != nil {
		return nil, err
	}

	if r.finalAnswerArtifact != "" {
		owner := sessionID
		if owner == "" {
			owner = runID
		}
		data := []byte(memory.FormatValue(res.Output))
		if err := r.artifactStore.Save(ctx, owner, r.finalAnswerArtifact, data); err != nil {
			return nil, fmt.Errorf("save final answer: %w", err)
		}
	}

	r.logger.Info("runner.run.complete", "agent", a.Name(), "run_id", runID, "state", res.State, "duration_ms", res.Duration.Milliseconds())

	return res, nil
}

func (r *Runner) restore(ctx context.Context, sessionID string, mem *memory.AgentMemory) (bool, error) {
	if sessionID == "" {
		return false, nil
	}

	snapshot, err := r.sessionStore.Load(ctx, sessionID)
	if err != nil {
		if errors.Is(err, session.ErrNotFound) {
			return false, nil
		}
		return false, fmt.Errorf("load session: %w", err)
	}

	if err := mem.Restore(snapshot); err != nil {
		return false, fmt.Errorf("restore session %s: %w", sessionID, err)
	}

	return true, nil
}

func (r *Runner) persist(ctx context.Context, sessionID string, mem *memory.AgentMemory) error {
	if sessionID == "" {
		return nil
	}

	snapshot, err := mem.Snapshot()
	if err != nil {
		return fmt.Errorf("snapshot memory: %w", err)
	}

	if err := r.sessionStore.Save(ctx, sessionID, snapshot); err != nil {
		return fmt.Errorf("save session: %w", err)
	}

	return nil
}
