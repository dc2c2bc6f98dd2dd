package agent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"runtime/debug"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/hupe1980/codeagent/code"
	"github.com/hupe1980/codeagent/core"
	"github.com/hupe1980/codeagent/memory"
	"github.com/hupe1980/codeagent/model"
	"github.com/hupe1980/codeagent/tool"
)

// errNoToolCall is reported when the model answers in plain text.
var errNoToolCall = errors.New("Model did not call any tools. Call `final_answer` tool to return a final answer.")

// ToolCallingAgentOptions configures a ToolCallingAgent.
type ToolCallingAgentOptions struct {
	Options
	// MaxParallelToolCalls bounds concurrent tool calls per step. Zero runs
	// all calls of a step at once.
	MaxParallelToolCalls int
	// MaxPrintOutputLength bounds each tool observation (default 50000).
	MaxPrintOutputLength int
}

// ToolCallingAgent acts through the model's native function calling.
type ToolCallingAgent struct {
	*MultiStepAgent

	maxParallel    int
	maxPrintLength int
}

// NewToolCallingAgent creates a tool calling agent using tools.
func NewToolCallingAgent(m model.Model, tools []tool.Tool, optFns ...func(o *ToolCallingAgentOptions)) (*ToolCallingAgent, error) {
	opts := ToolCallingAgentOptions{
		Options:              Options{Name: "tool_calling_agent"},
		MaxPrintOutputLength: 50000,
	}
	for _, fn := range optFns {
		fn(&opts)
	}

	ta := &ToolCallingAgent{
		maxParallel:    opts.MaxParallelToolCalls,
		maxPrintLength: opts.MaxPrintOutputLength,
	}

	msa, err := newMultiStepAgent(m, tools, opts.Options, "toolcalling_agent_system", ta)
	if err != nil {
		return nil, err
	}
	ta.MultiStepAgent = msa

	return ta, nil
}

func (a *ToolCallingAgent) prepare(*core.RunContext, map[string]any) error { return nil }

func (a *ToolCallingAgent) promptData(*promptData) {}

func (a *ToolCallingAgent) step(rc *core.RunContext, action *memory.ActionStep, emit emitFunc) error {
	n := action.StepNumber

	input := a.memory.ToMessages(false)
	action.ModelInputMessages = input

	resp, err := a.generate(rc, n, model.Request{
		Contents:      input,
		Tools:         a.tools.Definitions(),
		StopSequences: []string{"Observation:"},
	}, emit)
	if err != nil {
		return newAgentError(GenerationError, n, err)
	}
	action.Usage = resp.Usage
	action.ModelOutput = resp.Content.Text()

	calls := resp.Content.FunctionCalls()
	if len(calls) == 0 {
		return newAgentError(ParsingError, n, errNoToolCall)
	}

	for i := range calls {
		if calls[i].ID == "" {
			calls[i].ID = fmt.Sprintf("call_%d_%d", n, i)
		}
		action.ToolCalls = append(action.ToolCalls, memory.ToolCall{
			ID:        calls[i].ID,
			Name:      calls[i].Name,
			Arguments: calls[i].Arguments,
		})
	}

	results := a.callTools(rc, calls)
	action.ToolResults = results

	var (
		observations []string
		firstErr     error
	)
	for i, r := range results {
		if r.Error != "" {
			if firstErr == nil {
				firstErr = fmt.Errorf("error executing tool '%s': %s", r.Name, r.Error)
			}
			continue
		}
		if r.Name == tool.FinalAnswerName {
			action.ActionOutput = results[i].Output
			action.IsFinalAnswer = true
			continue
		}
		observations = append(observations, memory.FormatValue(r.Output))
	}
	action.Observations = strings.Join(observations, "\n")

	if firstErr != nil {
		action.IsFinalAnswer = false
		action.ActionOutput = nil
		if err := rc.Context.Err(); err != nil {
			return context.Cause(rc.Context)
		}
		return newAgentError(ToolCallError, n, firstErr)
	}

	return nil
}

// callTools runs calls concurrently and returns results in call order.
func (a *ToolCallingAgent) callTools(rc *core.RunContext, calls []core.FunctionCall) []memory.ToolResult {
	results := make([]memory.ToolResult, len(calls))

	g := new(errgroup.Group)
	if a.maxParallel > 0 {
		g.SetLimit(a.maxParallel)
	}

	started := time.Now()
	for i, fc := range calls {
		g.Go(func() error {
			out, err := a.callTool(rc, fc)
			res := memory.ToolResult{ID: fc.ID, Name: fc.Name}
			if err != nil {
				res.Error = err.Error()
			} else if fc.Name == tool.FinalAnswerName {
				res.Output = out
			} else {
				res.Output = truncateOutput(out, a.maxPrintLength)
			}
			results[i] = res
			return nil
		})
	}
	_ = g.Wait()

	rc.LogDebug("agent.tools.batch.complete",
		"count", len(calls),
		"parallelism", a.maxParallel,
		"duration_ms", time.Since(started).Milliseconds(),
	)

	return results
}

func (a *ToolCallingAgent) callTool(rc *core.RunContext, fc core.FunctionCall) (result any, err error) {
	if err := rc.Context.Err(); err != nil {
		return nil, err
	}

	started := time.Now()
	defer func() {
		if r := recover(); r != nil {
			rc.LogError("agent.tool.panic", "tool", fc.Name, "recover", r, "stack", string(debug.Stack()))
			err = fmt.Errorf("tool %s panicked: %v", fc.Name, r)
		}
		logToolCall(rc.Logger(), fc.Name, time.Since(started), err)
	}()

	args, err := parseArguments(fc.Arguments)
	if err != nil {
		return nil, err
	}

	return a.tools.Call(core.NewToolContext(rc.Context, rc, fc.ID), fc.Name, args)
}

func parseArguments(raw string) (map[string]any, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return map[string]any{}, nil
	}

	var args map[string]any
	if err := json.Unmarshal([]byte(raw), &args); err != nil {
		return nil, fmt.Errorf("invalid tool arguments %q: %w", raw, err)
	}

	return args, nil
}

func truncateOutput(out any, maxLen int) any {
	if s, ok := out.(string); ok {
		return code.Truncate(s, maxLen)
	}
	return out
}
