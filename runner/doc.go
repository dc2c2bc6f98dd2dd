// Package runner is the orchestration layer above the agents.
//
// A Runner creates a fresh agent per run from an AgentFactory, restores the
// session's memory snapshot into it, runs the task and persists the memory
// again afterwards. The final answer is saved as an artifact. Runs are
// bounded by a weighted semaphore, can be cancelled by run id and stream
// their events over a channel.
package runner
