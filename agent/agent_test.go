package agent

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/codeagent/code"
	"github.com/hupe1980/codeagent/core"
	"github.com/hupe1980/codeagent/internal/testutil"
	"github.com/hupe1980/codeagent/memory"
	"github.com/hupe1980/codeagent/model"
	"github.com/hupe1980/codeagent/tool"
)

type execResult struct {
	res *code.Result
	err error
}

// fakeExecutor replays scripted execution results and records the code it
// was asked to run. Exhausted scripts yield an empty, non final result.
type fakeExecutor struct {
	mu        sync.Mutex
	tools     map[string]code.ToolFunc
	vars      map[string]any
	codes     []string
	results   []execResult
	closed    bool
	onExecute func(code string)
}

func newFakeExecutor(results ...execResult) *fakeExecutor {
	return &fakeExecutor{results: results, vars: map[string]any{}}
}

func (f *fakeExecutor) SendTools(tools map[string]code.ToolFunc) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.tools = tools
	return nil
}

func (f *fakeExecutor) SendVariables(vars map[string]any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for k, v := range vars {
		f.vars[k] = v
	}
	return nil
}

func (f *fakeExecutor) Execute(_ context.Context, src string) (*code.Result, error) {
	f.mu.Lock()
	f.codes = append(f.codes, src)
	var next execResult
	if len(f.results) > 0 {
		next = f.results[0]
		f.results = f.results[1:]
	}
	hook := f.onExecute
	f.mu.Unlock()

	if hook != nil {
		hook(src)
	}
	if next.err != nil {
		return nil, next.err
	}
	if next.res == nil {
		return &code.Result{}, nil
	}
	return next.res, nil
}

func (f *fakeExecutor) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

func final(v any) execResult {
	return execResult{res: &code.Result{Output: v, IsFinalAnswer: true}}
}

func codeReply(src string) string {
	return testutil.CodeReply("let me do this.", src)
}

func addTool() tool.Tool {
	return tool.NewFunctionTool("add", "Adds two numbers.", map[string]any{
		"type": "object",
		"properties": map[string]any{
			"a": map[string]any{"type": "number", "description": "first"},
			"b": map[string]any{"type": "number", "description": "second"},
		},
		"required": []string{"a", "b"},
	}, func(_ *core.ToolContext, args map[string]any) (any, error) {
		return args["a"].(float64) + args["b"].(float64), nil
	})
}

func newCodeAgent(t *testing.T, m model.Model, exec code.Executor, optFns ...func(o *CodeAgentOptions)) *CodeAgent {
	t.Helper()
	ag, err := NewCodeAgent(m, []tool.Tool{addTool()}, append([]func(o *CodeAgentOptions){
		func(o *CodeAgentOptions) { o.Executor = exec },
	}, optFns...)...)
	require.NoError(t, err)
	return ag
}

func actionAt(t *testing.T, steps []memory.Step, i int) *memory.ActionStep {
	t.Helper()
	require.Greater(t, len(steps), i)
	a, ok := steps[i].(*memory.ActionStep)
	require.True(t, ok, "step %d is %T", i, steps[i])
	return a
}

func lastText(c []core.Content) string {
	if len(c) == 0 {
		return ""
	}
	return c[len(c)-1].Text()
}

func TestNewCodeAgent_RequiresModel(t *testing.T) {
	_, err := NewCodeAgent(nil, nil, func(o *CodeAgentOptions) { o.Executor = newFakeExecutor() })
	require.Error(t, err)
}

func TestCodeAgent_FinalAnswer(t *testing.T) {
	m := model.NewScriptedModel(codeReply(`final_answer("42")`))
	exec := newFakeExecutor(final("42"))
	ag := newCodeAgent(t, m, exec)

	res, err := ag.Run(context.Background(), "What is the answer?")
	require.NoError(t, err)

	assert.Equal(t, "42", res.Output)
	assert.Equal(t, StateSuccess, res.State)
	assert.NotEmpty(t, res.RunID)
	require.Len(t, res.Steps, 3)
	assert.Equal(t, memory.StepTask, res.Steps[0].Type())
	assert.Equal(t, memory.StepFinalAnswer, res.Steps[2].Type())
	assert.Equal(t, model.TokenUsage{InputTokens: 10, OutputTokens: 5}, res.Usage)

	action := actionAt(t, res.Steps, 1)
	assert.True(t, action.IsFinalAnswer)
	assert.Equal(t, `final_answer("42")`, action.CodeAction)
	require.Len(t, action.ToolCalls, 1)
	assert.Equal(t, "python_interpreter", action.ToolCalls[0].Name)

	assert.Equal(t, []string{`final_answer("42")`}, exec.codes)
	assert.Contains(t, exec.tools, "add")
	assert.NotContains(t, exec.tools, tool.FinalAnswerName)
	assert.Equal(t, []string{"a", "b"}, exec.tools["add"].Params)

	reqs := m.Requests()
	require.Len(t, reqs, 1)
	assert.Equal(t, CodeStopSequences, reqs[0].StopSequences)
	require.Len(t, reqs[0].Contents, 2)
	assert.Equal(t, core.RoleSystem, reqs[0].Contents[0].Role)
	assert.Contains(t, reqs[0].Contents[0].Text(), "add")
	assert.Equal(t, "New task:\nWhat is the answer?", reqs[0].Contents[1].Text())
	assert.False(t, ag.Running())
}

func TestCodeAgent_ToolsCallableFromCode(t *testing.T) {
	exec := newFakeExecutor(final(nil))
	ag := newCodeAgent(t, model.NewScriptedModel(codeReply("final_answer(add(1, 2))")), exec)

	exec.onExecute = func(string) {
		out, err := exec.tools["add"].Fn(context.Background(), map[string]any{"a": 1.0, "b": 2.0})
		assert.NoError(t, err)
		assert.Equal(t, 3.0, out)
	}

	_, err := ag.Run(context.Background(), "add")
	require.NoError(t, err)
}

func TestCodeAgent_ObservationFromOutput(t *testing.T) {
	m := model.NewScriptedModel(codeReply("print('hi')\n3"), codeReply("final_answer(3)"))
	exec := newFakeExecutor(execResult{res: &code.Result{Output: 3, Logs: "hi\n"}}, final(3))
	ag := newCodeAgent(t, m, exec)

	res, err := ag.Run(context.Background(), "task")
	require.NoError(t, err)

	first := actionAt(t, res.Steps, 1)
	assert.Equal(t, "Execution logs:\nhi\nLast output from code snippet:\n3", first.Observations)
	assert.False(t, first.IsFinalAnswer)

	reqs := m.Requests()
	require.Len(t, reqs, 2)
	assert.Equal(t, "Observation:\n"+first.Observations, lastText(reqs[1].Contents))
}

func TestCodeAgent_RecoversFromParsingError(t *testing.T) {
	m := model.NewScriptedModel("I will just answer without code.", codeReply(`final_answer("ok")`))
	ag := newCodeAgent(t, m, newFakeExecutor(final("ok")))

	var events []core.Event
	res, err := ag.Run(context.Background(), "task", func(o *RunOptions) {
		o.OnEvent = func(ev core.Event) { events = append(events, ev) }
	})
	require.NoError(t, err)
	assert.Equal(t, "ok", res.Output)

	failed := actionAt(t, res.Steps, 1)
	assert.Equal(t, string(ParsingError), failed.ErrorKind)
	assert.Contains(t, failed.Error, "no code block found")

	reqs := m.Requests()
	require.Len(t, reqs, 2)
	assert.True(t, strings.HasPrefix(lastText(reqs[1].Contents), "Error:\n"))

	var errEvents int
	for _, ev := range events {
		if ev.Type == core.EventError {
			errEvents++
		}
	}
	assert.Equal(t, 1, errEvents)
}

func TestCodeAgent_RecoversFromExecutionError(t *testing.T) {
	m := model.NewScriptedModel(codeReply("print('partial')\nx"), codeReply(`final_answer("done")`))
	exec := newFakeExecutor(
		execResult{err: &code.ExecutionError{Message: "NameError: name 'x' is not defined", Logs: "partial\n"}},
		final("done"),
	)
	ag := newCodeAgent(t, m, exec)

	res, err := ag.Run(context.Background(), "task")
	require.NoError(t, err)
	assert.Equal(t, "done", res.Output)

	failed := actionAt(t, res.Steps, 1)
	assert.Equal(t, string(ExecutionError), failed.ErrorKind)
	assert.Equal(t, "Execution logs:\npartial\n", failed.Observations)
	assert.Contains(t, failed.Error, "NameError")
}

func TestCodeAgent_MaxSteps(t *testing.T) {
	m := model.NewScriptedModel(codeReply("x = 1"), codeReply("y = 2"), "The answer is 7")
	ag := newCodeAgent(t, m, newFakeExecutor(), func(o *CodeAgentOptions) { o.MaxSteps = 2 })

	res, err := ag.Run(context.Background(), "task")
	require.NoError(t, err)

	assert.Equal(t, StateMaxStepsError, res.State)
	assert.Equal(t, "The answer is 7", res.Output)
	assert.Equal(t, 3, m.Calls())

	last := actionAt(t, res.Steps, 3)
	assert.Equal(t, string(MaxStepsError), last.ErrorKind)
	assert.True(t, last.IsFinalAnswer)

	reqs := m.Requests()
	finalReq := reqs[2]
	assert.Equal(t, core.RoleSystem, finalReq.Contents[0].Role)
	assert.Equal(t, core.RoleUser, finalReq.Contents[len(finalReq.Contents)-1].Role)
	assert.Empty(t, finalReq.StopSequences)
}

func TestCodeAgent_Planning(t *testing.T) {
	m := model.NewScriptedModel("1. Add the numbers\n<end_plan>", codeReply("final_answer(3)"))
	ag := newCodeAgent(t, m, newFakeExecutor(final(3)), func(o *CodeAgentOptions) { o.PlanningInterval = 1 })

	res, err := ag.Run(context.Background(), "task")
	require.NoError(t, err)
	require.Len(t, res.Steps, 4)

	plan, ok := res.Steps[1].(*memory.PlanningStep)
	require.True(t, ok)
	assert.Equal(t, "1. Add the numbers", plan.ModelOutput)
	assert.Contains(t, plan.Plan, "1. Add the numbers")
	assert.NotContains(t, plan.Plan, "<end_plan>")

	reqs := m.Requests()
	assert.Equal(t, []string{"<end_plan>"}, reqs[0].StopSequences)
	assert.Contains(t, reqs[1].Contents[2].Text(), "1. Add the numbers")
	assert.Equal(t, model.TokenUsage{InputTokens: 20, OutputTokens: 10}, res.Usage)
}

func TestCodeAgent_PlanningInterval(t *testing.T) {
	ag := newCodeAgent(t, model.NewScriptedModel(), newFakeExecutor(), func(o *CodeAgentOptions) { o.PlanningInterval = 3 })

	assert.True(t, ag.planningDue(1))
	assert.False(t, ag.planningDue(2))
	assert.False(t, ag.planningDue(3))
	assert.True(t, ag.planningDue(4))
	assert.True(t, ag.planningDue(7))
}

func TestCodeAgent_FinalAnswerChecks(t *testing.T) {
	m := model.NewScriptedModel(codeReply(`final_answer("bad")`), codeReply(`final_answer("good")`))
	exec := newFakeExecutor(final("bad"), final("good"))
	ag := newCodeAgent(t, m, exec, func(o *CodeAgentOptions) {
		o.FinalAnswerChecks = []FinalAnswerCheck{func(answer any, mem *memory.AgentMemory) error {
			assert.NotNil(t, mem)
			if answer == "bad" {
				return errors.New("not good enough")
			}
			return nil
		}}
	})

	res, err := ag.Run(context.Background(), "task")
	require.NoError(t, err)
	assert.Equal(t, "good", res.Output)

	rejected := actionAt(t, res.Steps, 1)
	assert.False(t, rejected.IsFinalAnswer)
	assert.Equal(t, string(ExecutionError), rejected.ErrorKind)
	assert.Contains(t, rejected.Error, "check 1 failed with error: not good enough")
}

func TestCodeAgent_StepCallbacks(t *testing.T) {
	var seen []memory.StepType
	m := model.NewScriptedModel("plan\n<end_plan>", codeReply("final_answer(1)"))
	ag := newCodeAgent(t, m, newFakeExecutor(final(1)), func(o *CodeAgentOptions) {
		o.PlanningInterval = 5
		o.StepCallbacks = []StepCallback{func(s memory.Step) { seen = append(seen, s.Type()) }}
	})

	_, err := ag.Run(context.Background(), "task")
	require.NoError(t, err)
	assert.Equal(t, []memory.StepType{memory.StepPlanning, memory.StepAction}, seen)
}

func TestCodeAgent_GenerationErrorAborts(t *testing.T) {
	m := model.NewScriptedModel().FailOn(0, errors.New("boom"))
	ag := newCodeAgent(t, m, newFakeExecutor())

	_, err := ag.Run(context.Background(), "task")
	require.Error(t, err)
	assert.False(t, Recoverable(err))

	var agentErr *AgentError
	require.ErrorAs(t, err, &agentErr)
	assert.Equal(t, GenerationError, agentErr.Kind)

	steps := ag.Memory().ActionSteps()
	require.Len(t, steps, 1)
	assert.Contains(t, steps[0].Error, "boom")
	assert.False(t, ag.Running())
}

func TestCodeAgent_MaxModelCalls(t *testing.T) {
	m := model.NewScriptedModel(codeReply("x = 1"), codeReply("final_answer(1)"))
	ag := newCodeAgent(t, m, newFakeExecutor(), func(o *CodeAgentOptions) { o.MaxModelCalls = 1 })

	_, err := ag.Run(context.Background(), "task")
	require.ErrorIs(t, err, core.ErrModelCallLimit)
	assert.Equal(t, 1, m.Calls())
}

func TestCodeAgent_Interrupt(t *testing.T) {
	exec := newFakeExecutor()
	ag := newCodeAgent(t, model.NewScriptedModel(codeReply("x = 1"), codeReply("final_answer(1)")), exec)
	exec.onExecute = func(string) { ag.Interrupt() }

	_, err := ag.Run(context.Background(), "task")
	require.ErrorIs(t, err, ErrInterrupted)
	assert.False(t, ag.Running())

	// Interrupting an idle agent is a no-op.
	ag.Interrupt()
}

func TestCodeAgent_AlreadyRunning(t *testing.T) {
	exec := newFakeExecutor(final(1))
	ag := newCodeAgent(t, model.NewScriptedModel(codeReply("final_answer(1)")), exec)

	var nested error
	exec.onExecute = func(string) {
		_, nested = ag.Run(context.Background(), "again")
	}

	_, err := ag.Run(context.Background(), "task")
	require.NoError(t, err)
	assert.ErrorIs(t, nested, ErrAlreadyRunning)
}

func TestCodeAgent_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	ag := newCodeAgent(t, model.NewScriptedModel(codeReply("final_answer(1)")), newFakeExecutor(final(1)))
	_, err := ag.Run(ctx, "task")
	require.ErrorIs(t, err, context.Canceled)
}

func TestCodeAgent_ResetFalseContinuesConversation(t *testing.T) {
	m := model.NewScriptedModel(codeReply("final_answer(1)"), codeReply("final_answer(2)"))
	ag := newCodeAgent(t, m, newFakeExecutor(final(1), final(2)))

	_, err := ag.Run(context.Background(), "first")
	require.NoError(t, err)

	res, err := ag.Run(context.Background(), "second", func(o *RunOptions) { o.Reset = false })
	require.NoError(t, err)
	assert.Equal(t, 2, res.Output)
	assert.Len(t, res.Steps, 3)
	assert.Equal(t, 6, ag.Memory().Len())

	var tasks []string
	for _, c := range m.Requests()[1].Contents {
		if strings.HasPrefix(c.Text(), "New task:") {
			tasks = append(tasks, c.Text())
		}
	}
	assert.Equal(t, []string{"New task:\nfirst", "New task:\nsecond"}, tasks)

	_, err = ag.Run(context.Background(), "third")
	require.Error(t, err) // script exhausted
	assert.Equal(t, 2, ag.Memory().Len())
}

func TestCodeAgent_AdditionalArgs(t *testing.T) {
	exec := newFakeExecutor(final("ok"))
	ag := newCodeAgent(t, model.NewScriptedModel(codeReply(`final_answer("ok")`)), exec)

	res, err := ag.Run(context.Background(), "use x", func(o *RunOptions) {
		o.AdditionalArgs = map[string]any{"x": 5}
	})
	require.NoError(t, err)

	assert.Equal(t, 5, exec.vars["x"])
	task, ok := res.Steps[0].(*memory.TaskStep)
	require.True(t, ok)
	assert.Contains(t, task.Task, "You have been provided with these additional arguments")
	assert.Contains(t, task.Task, `{"x":5}`)
}

func TestCodeAgent_RunStream(t *testing.T) {
	ag := newCodeAgent(t, model.NewScriptedModel(codeReply("final_answer(1)")), newFakeExecutor(final(1)),
		func(o *CodeAgentOptions) { o.Stream = true })

	events, errs := ag.RunStream(context.Background(), "task")

	var types []core.EventType
	for ev := range events {
		types = append(types, ev.Type)
	}
	for err := range errs {
		require.NoError(t, err)
	}

	require.NotEmpty(t, types)
	assert.Equal(t, core.EventModelDelta, types[0])
	assert.Contains(t, types, core.EventAction)
	assert.Equal(t, core.EventFinalAnswer, types[len(types)-1])
}

func TestCodeAgent_RunStreamError(t *testing.T) {
	ag := newCodeAgent(t, model.NewScriptedModel().FailOn(0, errors.New("down")), newFakeExecutor())

	events, errs := ag.RunStream(context.Background(), "task")
	for range events {
	}

	var got []error
	for err := range errs {
		got = append(got, err)
	}
	require.Len(t, got, 1)
	assert.ErrorContains(t, got[0], "down")
}

func TestCodeAgent_SystemPrompt(t *testing.T) {
	ag := newCodeAgent(t, model.NewScriptedModel(), newFakeExecutor(), func(o *CodeAgentOptions) {
		o.AdditionalAuthorizedImports = []string{"numpy"}
		o.Instructions = NewInstructionFromText("Always answer in French.")
	})

	prompt, err := ag.SystemPrompt(newTestRunContext())
	require.NoError(t, err)

	assert.Contains(t, prompt, "def add(a: number, b: number)")
	assert.Contains(t, prompt, `"numpy"`)
	assert.Contains(t, prompt, "Always answer in French.")
	assert.Contains(t, ag.AuthorizedImports(), "numpy")
	assert.Contains(t, ag.AuthorizedImports(), "math")
}

func TestCodeAgent_CustomPromptTemplates(t *testing.T) {
	ag := newCodeAgent(t, model.NewScriptedModel(), newFakeExecutor(), func(o *CodeAgentOptions) {
		o.Prompts = PromptTemplates{SystemPrompt: "You are {{ .Name }}."}
		o.Name = "calc"
	})

	prompt, err := ag.SystemPrompt(newTestRunContext())
	require.NoError(t, err)
	assert.Equal(t, "You are calc.", prompt)
}

func TestCodeAgent_CloseOwnedExecutorOnly(t *testing.T) {
	exec := newFakeExecutor()
	ag := newCodeAgent(t, model.NewScriptedModel(), exec)

	require.NoError(t, ag.Close())
	assert.False(t, exec.closed)

	owned, err := NewCodeAgent(model.NewScriptedModel(), nil)
	require.NoError(t, err)
	_, ok := owned.Executor().(*code.PythonExecutor)
	assert.True(t, ok)
	require.NoError(t, owned.Close())
}

func TestToolCallingAgent_CallsToolsAndAnswers(t *testing.T) {
	m := model.NewScriptedModelFromResponses(
		testutil.NewResponseBuilder().
			FunctionCall("c1", "add", map[string]any{"a": 1, "b": 2}).
			FunctionCall("c2", "add", map[string]any{"a": 3, "b": 4}).
			Build(),
		testutil.NewResponseBuilder().RawFunctionCall("c3", "final_answer", `{"answer":"3 and 7"}`).Build(),
	)
	ag, err := NewToolCallingAgent(m, []tool.Tool{addTool()})
	require.NoError(t, err)

	res, err := ag.Run(context.Background(), "add things")
	require.NoError(t, err)
	assert.Equal(t, "3 and 7", res.Output)

	first := actionAt(t, res.Steps, 1)
	require.Len(t, first.ToolResults, 2)
	assert.Equal(t, "c1", first.ToolResults[0].ID)
	assert.Equal(t, 3.0, first.ToolResults[0].Output)
	assert.Equal(t, 7.0, first.ToolResults[1].Output)
	assert.Equal(t, "3\n7", first.Observations)

	reqs := m.Requests()
	var names []string
	for _, d := range reqs[0].Tools {
		names = append(names, d.Function.Name)
	}
	assert.Equal(t, []string{"add", "final_answer"}, names)

	responses := reqs[1].Contents[len(reqs[1].Contents)-1].FunctionResponses()
	require.Len(t, responses, 2)
	assert.Equal(t, "c2", responses[1].ID)
}

func TestToolCallingAgent_NoToolCallIsParsingError(t *testing.T) {
	m := model.NewScriptedModelFromResponses(
		model.Response{Content: core.NewTextContent(core.RoleAssistant, "just text")},
		testutil.NewResponseBuilder().RawFunctionCall("c1", "final_answer", `{"answer":"ok"}`).Build(),
	)
	ag, err := NewToolCallingAgent(m, nil)
	require.NoError(t, err)

	res, err := ag.Run(context.Background(), "task")
	require.NoError(t, err)
	assert.Equal(t, "ok", res.Output)

	failed := actionAt(t, res.Steps, 1)
	assert.Equal(t, string(ParsingError), failed.ErrorKind)
	assert.Contains(t, failed.Error, "Model did not call any tools")
}

func TestToolCallingAgent_ToolErrors(t *testing.T) {
	panicky := tool.NewFunctionTool("explode", "Panics.", nil, func(*core.ToolContext, map[string]any) (any, error) {
		panic("kaboom")
	})

	m := model.NewScriptedModelFromResponses(
		testutil.NewResponseBuilder().RawFunctionCall("", "nope", `{}`).Build(),
		testutil.NewResponseBuilder().RawFunctionCall("", "add", `{not json`).Build(),
		testutil.NewResponseBuilder().RawFunctionCall("", "explode", "").Build(),
		testutil.NewResponseBuilder().RawFunctionCall("", "final_answer", `{"answer":1}`).Build(),
	)
	ag, err := NewToolCallingAgent(m, []tool.Tool{addTool(), panicky}, func(o *ToolCallingAgentOptions) {
		o.MaxParallelToolCalls = 2
	})
	require.NoError(t, err)

	res, err := ag.Run(context.Background(), "task")
	require.NoError(t, err)
	assert.Equal(t, 1.0, res.Output)

	for i, want := range []string{"unknown tool", "invalid tool arguments", "panicked"} {
		step := actionAt(t, res.Steps, i+1)
		assert.Equal(t, string(ToolCallError), step.ErrorKind)
		assert.Contains(t, step.Error, want)
		require.Len(t, step.ToolResults, 1)
		assert.NotEmpty(t, step.ToolResults[0].ID)
	}
}

func TestManagedAgent(t *testing.T) {
	subModel := model.NewScriptedModelFromResponses(
		testutil.NewResponseBuilder().RawFunctionCall("s1", "final_answer", `{"answer":"found it"}`).Build(),
	)
	sub, err := NewToolCallingAgent(subModel, nil, func(o *ToolCallingAgentOptions) {
		o.Name = "researcher"
		o.Description = "Researches things."
	})
	require.NoError(t, err)

	managerModel := model.NewScriptedModelFromResponses(
		testutil.NewResponseBuilder().RawFunctionCall("m1", "researcher", `{"task":"find the thing","additional_args":{"hint":"x"}}`).Build(),
		testutil.NewResponseBuilder().RawFunctionCall("m2", "final_answer", `{"answer":"done"}`).Build(),
	)
	manager, err := NewToolCallingAgent(managerModel, nil, func(o *ToolCallingAgentOptions) {
		o.ManagedAgents = []Agent{sub}
	})
	require.NoError(t, err)

	prompt, err := manager.SystemPrompt(newTestRunContext())
	require.NoError(t, err)
	assert.Contains(t, prompt, "researcher: Researches things.")

	res, err := manager.Run(context.Background(), "big task", func(o *RunOptions) { o.SessionID = "s-1" })
	require.NoError(t, err)
	assert.Equal(t, "done", res.Output)

	delegated := actionAt(t, res.Steps, 1)
	assert.Equal(t, "Here is the final answer from your managed agent 'researcher':\nfound it", delegated.Observations)

	subTask := subModel.Requests()[0].Contents[1].Text()
	assert.Contains(t, subTask, "You're a helpful agent named 'researcher'")
	assert.Contains(t, subTask, "find the thing")
	assert.Contains(t, subTask, `{"hint":"x"}`)
}

type slowModel struct {
	model.Model
	delay time.Duration
}

func (m slowModel) Generate(ctx context.Context, req model.Request) (<-chan model.Response, <-chan error) {
	time.Sleep(m.delay)
	return m.Model.Generate(ctx, req)
}

func TestManagedAgent_ParallelDelegationsAreSerialized(t *testing.T) {
	subModel := model.NewScriptedModelFromResponses(
		testutil.FinalAnswer("first"),
		testutil.FinalAnswer("second"),
	)
	sub, err := NewToolCallingAgent(slowModel{Model: subModel, delay: 50 * time.Millisecond}, nil, func(o *ToolCallingAgentOptions) {
		o.Name = "researcher"
		o.Description = "Researches things."
	})
	require.NoError(t, err)

	managerModel := model.NewScriptedModelFromResponses(
		testutil.NewResponseBuilder().
			RawFunctionCall("m1", "researcher", `{"task":"one"}`).
			RawFunctionCall("m2", "researcher", `{"task":"two"}`).
			Build(),
		testutil.FinalAnswer("done"),
	)
	manager, err := NewToolCallingAgent(managerModel, nil, func(o *ToolCallingAgentOptions) {
		o.ManagedAgents = []Agent{sub}
	})
	require.NoError(t, err)

	res, err := manager.Run(context.Background(), "two sub tasks")
	require.NoError(t, err)
	assert.Equal(t, "done", res.Output)

	step := actionAt(t, res.Steps, 1)
	assert.Empty(t, step.Error)
	require.Len(t, step.ToolResults, 2)
	var answers []string
	for _, r := range step.ToolResults {
		assert.Empty(t, r.Error, r.ID)
		out, _ := r.Output.(string)
		answers = append(answers, out)
	}
	joined := strings.Join(answers, "\n")
	assert.Contains(t, joined, "first")
	assert.Contains(t, joined, "second")
	assert.Len(t, subModel.Requests(), 2)
}

func TestManagedAgentTool_Validation(t *testing.T) {
	sub, err := NewToolCallingAgent(model.NewScriptedModel(), nil)
	require.NoError(t, err)

	mt := NewManagedAgentTool(sub, "helper", "Helps.")
	assert.Equal(t, "helper", mt.Name())
	assert.Equal(t, "Helps.", mt.Description())
	assert.Equal(t, []string{"task", "additional_args"}, tool.ParamNames(mt))

	toolCtx := core.NewStandaloneToolContext(context.Background(), nil)
	_, err = mt.Call(toolCtx, map[string]any{})
	require.Error(t, err)

	_, err = mt.Call(toolCtx, map[string]any{"task": "x", "additional_args": "nope"})
	require.Error(t, err)
}
