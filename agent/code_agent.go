package agent

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/hupe1980/codeagent/code"
	"github.com/hupe1980/codeagent/core"
	"github.com/hupe1980/codeagent/memory"
	"github.com/hupe1980/codeagent/model"
	"github.com/hupe1980/codeagent/tool"
)

// CodeStopSequences end a code action: the model must not invent the
// observation itself.
var CodeStopSequences = []string{"<end_code>", "Observation:"}

// CodeAgentOptions configures a CodeAgent.
type CodeAgentOptions struct {
	Options
	// Executor runs the code actions. Defaults to a PythonExecutor owned by
	// the agent and closed by Close.
	Executor code.Executor
	// AdditionalAuthorizedImports extends code.BaseBuiltinModules.
	AdditionalAuthorizedImports []string
	// MaxPrintOutputLength bounds the observation per step (default 50000).
	MaxPrintOutputLength int
	// ExecutionTimeout bounds one code execution of the default executor.
	ExecutionTimeout time.Duration
}

// CodeAgent writes its actions as Python code.
type CodeAgent struct {
	*MultiStepAgent

	executor          code.Executor
	ownsExecutor      bool
	authorizedImports []string
	maxPrintLength    int
}

// NewCodeAgent creates a code agent using tools.
func NewCodeAgent(m model.Model, tools []tool.Tool, optFns ...func(o *CodeAgentOptions)) (*CodeAgent, error) {
	opts := CodeAgentOptions{
		Options:              Options{Name: "code_agent"},
		MaxPrintOutputLength: 50000,
	}
	for _, fn := range optFns {
		fn(&opts)
	}

	ca := &CodeAgent{
		maxPrintLength:    opts.MaxPrintOutputLength,
		authorizedImports: authorizedImports(opts.AdditionalAuthorizedImports),
	}

	if opts.Executor != nil {
		ca.executor = opts.Executor
	} else {
		ca.executor = code.NewPythonExecutor(func(o *code.PythonOptions) {
			o.AdditionalAuthorizedImports = opts.AdditionalAuthorizedImports
			o.MaxPrintLength = opts.MaxPrintOutputLength
			o.Timeout = opts.ExecutionTimeout
			if opts.Logger != nil {
				o.Logger = opts.Logger
			}
		})
		ca.ownsExecutor = true
	}

	msa, err := newMultiStepAgent(m, tools, opts.Options, "code_agent_system", ca)
	if err != nil {
		return nil, err
	}
	ca.MultiStepAgent = msa

	return ca, nil
}

func authorizedImports(additional []string) []string {
	out := append(slices.Clone(code.BaseBuiltinModules), additional...)
	slices.Sort(out)
	return slices.Compact(out)
}

// AuthorizedImports returns the modules code may import.
func (a *CodeAgent) AuthorizedImports() []string { return slices.Clone(a.authorizedImports) }

// Executor returns the code executor.
func (a *CodeAgent) Executor() code.Executor { return a.executor }

// Close releases the executor if the agent created it.
func (a *CodeAgent) Close() error {
	if a.ownsExecutor {
		return a.executor.Close()
	}
	return nil
}

func (a *CodeAgent) promptData(data *promptData) {
	if slices.Contains(a.authorizedImports, "*") {
		data.AuthorizedImports = "You can import from any package you want."
		return
	}
	data.AuthorizedImports = fmt.Sprintf("%q", a.authorizedImports)
}

// prepare makes every tool callable from Python for this run and defines
// the additional arguments as variables.
func (a *CodeAgent) prepare(rc *core.RunContext, additionalArgs map[string]any) error {
	funcs := make(map[string]code.ToolFunc)
	for _, t := range a.tools.List() {
		name := t.Name()
		if name == tool.FinalAnswerName {
			continue
		}
		funcs[name] = code.ToolFunc{
			Params: tool.ParamNames(t),
			Fn: func(ctx context.Context, args map[string]any) (any, error) {
				toolCtx := core.NewToolContext(ctx, rc, core.NewID())
				started := time.Now()
				out, err := a.tools.Call(toolCtx, name, args)
				logToolCall(rc.Logger(), name, time.Since(started), err)
				return out, err
			},
		}
	}

	if err := a.executor.SendTools(funcs); err != nil {
		return err
	}
	if len(additionalArgs) > 0 {
		return a.executor.SendVariables(additionalArgs)
	}
	return nil
}

func (a *CodeAgent) step(rc *core.RunContext, action *memory.ActionStep, emit emitFunc) error {
	n := action.StepNumber

	input := a.memory.ToMessages(false)
	action.ModelInputMessages = input

	resp, err := a.generate(rc, n, model.Request{Contents: input, StopSequences: CodeStopSequences}, emit)
	if err != nil {
		return newAgentError(GenerationError, n, err)
	}
	action.Usage = resp.Usage

	output := resp.Content.Text()
	action.ModelOutput = output

	src, err := code.ExtractCode(output)
	if err != nil {
		return newAgentError(ParsingError, n, err)
	}
	if !strings.HasSuffix(strings.TrimSpace(output), "<end_code>") {
		action.ModelOutput = strings.TrimRight(output, "\n") + "<end_code>"
	}

	src = code.FixFinalAnswerCode(src)
	action.CodeAction = src
	action.ToolCalls = []memory.ToolCall{{
		ID:        fmt.Sprintf("call_%d", n),
		Name:      "python_interpreter",
		Arguments: src,
	}}

	started := time.Now()
	res, err := a.executor.Execute(rc.Context, src)
	logCodeExecution(rc.Logger(), len(src), time.Since(started), res != nil && res.IsFinalAnswer, err)

	if err != nil {
		var execErr *code.ExecutionError
		if errors.As(err, &execErr) {
			if execErr.Logs != "" {
				action.Observations = "Execution logs:\n" + execErr.Logs
			}
			return newAgentError(ExecutionError, n, err)
		}
		if rc.Context.Err() != nil {
			return err
		}
		return newAgentError(ExecutionError, n, err)
	}

	obs := "Execution logs:\n" + res.Logs
	if !res.IsFinalAnswer && res.Output != nil {
		obs += "Last output from code snippet:\n" + memory.FormatValue(res.Output)
	}
	action.Observations = code.Truncate(obs, a.maxPrintLength)
	action.ActionOutput = res.Output
	action.IsFinalAnswer = res.IsFinalAnswer

	return nil
}
