// Package codeagent provides a high-level façade over the runner and the
// service abstractions (sessions, artifacts & logging) for building agents
// that solve tasks by writing Python code or calling tools. Most
// applications interact with this package by:
//  1. Building an agent factory around agent.NewCodeAgent or agent.NewToolCallingAgent
//  2. Creating a Runtime via New() (optionally overriding default in‑memory stores)
//  3. Running tasks asynchronously (Invoke) or synchronously (InvokeSync, Run)
//
// All defaults are safe for local development and testing; production
// deployments typically supply durable stores (session.RedisStore,
// artifact.FileStore, artifact/s3) and a structured logger.
package codeagent

import (
	"context"

	"github.com/hupe1980/codeagent/agent"
	"github.com/hupe1980/codeagent/core"
	"github.com/hupe1980/codeagent/runner"
)

// Options configures the Runtime. Unset stores default to in-memory
// implementations.
type Options = runner.Options

// Runtime is the high-level façade aggregating the runner and its stores.
type Runtime struct {
	runner *runner.Runner
}

// New creates a Runtime running agents produced by newAgent.
func New(newAgent runner.AgentFactory, optFns ...func(o *Options)) *Runtime {
	return &Runtime{runner: runner.New(newAgent, optFns...)}
}

// Runner returns the underlying runner.
func (rt *Runtime) Runner() *runner.Runner { return rt.runner }

// Invoke starts an asynchronous run returning its id and the event & error channels.
func (rt *Runtime) Invoke(
	ctx context.Context,
	sessionID, task string,
	optFns ...func(o *agent.RunOptions),
) (string, <-chan core.Event, <-chan error) {
	return rt.runner.Run(ctx, sessionID, task, optFns...)
}

// InvokeSync is a synchronous helper that drains the async channels, accumulates
// events and returns the run id.
func (rt *Runtime) InvokeSync(
	ctx context.Context,
	sessionID, task string,
	optFns ...func(o *agent.RunOptions),
) (string, []core.Event, error) {
	runID, eventsCh, errorsCh := rt.runner.Run(ctx, sessionID, task, optFns...)

	var events []core.Event
	for {
		select {
		case <-ctx.Done():
			return runID, events, ctx.Err()

		case event, ok := <-eventsCh:
			if !ok {
				// The error channel is closed right after the event channel.
				return runID, events, <-errorsCh
			}
			events = append(events, event)
		}
	}
}

// Run solves task and returns the agent's result.
func (rt *Runtime) Run(
	ctx context.Context,
	sessionID, task string,
	optFns ...func(o *agent.RunOptions),
) (*agent.RunResult, error) {
	return rt.runner.RunSync(ctx, sessionID, task, optFns...)
}

// Cancel cancels a running run by id.
func (rt *Runtime) Cancel(runID string) error { return rt.runner.Cancel(runID) }
