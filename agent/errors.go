package agent

import (
	"errors"
	"fmt"
)

// ErrorKind classifies agent errors.
type ErrorKind string

const (
	// ParsingError: the model output did not contain a usable action.
	ParsingError ErrorKind = "ParsingError"
	// ExecutionError: the code action raised or a tool failed inside the code.
	ExecutionError ErrorKind = "ExecutionError"
	// GenerationError: the model call itself failed. Aborts the run.
	GenerationError ErrorKind = "GenerationError"
	// ToolCallError: a native tool call was invalid or failed.
	ToolCallError ErrorKind = "ToolCallError"
	// MaxStepsError: the step limit was reached without a final answer.
	MaxStepsError ErrorKind = "MaxStepsError"
)

var (
	// ErrInterrupted is returned when Interrupt stopped a run.
	ErrInterrupted = errors.New("agent run interrupted")
	// ErrAlreadyRunning is returned when Run is called on a busy agent.
	ErrAlreadyRunning = errors.New("agent is already running")
)

// AgentError is a step error. Everything but GenerationError is recoverable:
// it is written to memory and the loop continues.
type AgentError struct {
	Kind ErrorKind
	Step int
	Err  error
}

func (e *AgentError) Error() string {
	return fmt.Sprintf("%s (step %d): %v", e.Kind, e.Step, e.Err)
}

func (e *AgentError) Unwrap() error { return e.Err }

func newAgentError(kind ErrorKind, step int, err error) *AgentError {
	return &AgentError{Kind: kind, Step: step, Err: err}
}

// Recoverable reports whether the loop can continue after err.
func Recoverable(err error) bool {
	var agentErr *AgentError
	if !errors.As(err, &agentErr) {
		return false
	}
	return agentErr.Kind != GenerationError
}
