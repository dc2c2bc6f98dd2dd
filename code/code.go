// Package code parses code actions out of model output and executes them.
//
// The PythonExecutor keeps one interpreter per executor alive between
// executions so variables and imports persist across agent steps, exactly
// like a notebook. Tool calls made from Python are dispatched back to Go.
package code

import (
	"context"
	"fmt"
)

// BaseBuiltinModules are always importable from executed code.
var BaseBuiltinModules = []string{
	"collections",
	"datetime",
	"itertools",
	"math",
	"queue",
	"random",
	"re",
	"stat",
	"statistics",
	"time",
	"unicodedata",
}

// ToolFunc is a Go function callable from executed code. Params lists the
// parameter names in positional order so calls like web_search("q") map to
// {"query": "q"}.
type ToolFunc struct {
	Params []string
	Fn     func(ctx context.Context, args map[string]any) (any, error)
}

// Result is the outcome of a successful execution.
type Result struct {
	// Output is the value of the last expression, or the final answer.
	Output any
	// Logs holds everything printed during execution.
	Logs string
	// IsFinalAnswer is set when the code called final_answer.
	IsFinalAnswer bool
}

// ExecutionError reports an exception raised by executed code. Logs printed
// before the failure are preserved so the model can see them.
type ExecutionError struct {
	Message string
	Logs    string
}

func (e *ExecutionError) Error() string {
	return fmt.Sprintf("code execution failed: %s", e.Message)
}

// Executor runs code actions.
type Executor interface {
	// SendTools makes tools callable by name from executed code.
	SendTools(tools map[string]ToolFunc) error
	// SendVariables defines global variables for subsequent executions.
	SendVariables(vars map[string]any) error
	// Execute runs code. Exceptions raised by the code are returned as
	// *ExecutionError; other errors mean the executor itself failed.
	Execute(ctx context.Context, code string) (*Result, error)
	// Close releases the executor's resources.
	Close() error
}
