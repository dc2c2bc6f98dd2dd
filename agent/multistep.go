package agent

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/hupe1980/codeagent/core"
	"github.com/hupe1980/codeagent/logging"
	"github.com/hupe1980/codeagent/memory"
	"github.com/hupe1980/codeagent/model"
	"github.com/hupe1980/codeagent/tool"
)

// Run states reported in RunResult.State.
const (
	StateSuccess       = "success"
	StateMaxStepsError = "max_steps_error"
)

// Agent is implemented by CodeAgent and ToolCallingAgent.
type Agent interface {
	Name() string
	Description() string
	Run(ctx context.Context, task string, optFns ...func(o *RunOptions)) (*RunResult, error)
	RunStream(ctx context.Context, task string, optFns ...func(o *RunOptions)) (<-chan core.Event, <-chan error)
	Memory() *memory.AgentMemory
	Interrupt()
}

// FinalAnswerCheck validates a final answer before the run ends. A returned
// error becomes the step error and the loop continues.
type FinalAnswerCheck func(answer any, mem *memory.AgentMemory) error

// StepCallback is invoked after every planning and action step.
type StepCallback func(step memory.Step)

// Options configures the loop shared by all agents.
type Options struct {
	// Name identifies the agent in events, logs and as a managed agent.
	Name string
	// Description is shown to a manager agent.
	Description string
	// MaxSteps bounds the number of action steps (default 20). When reached the
	// model is asked for a final answer based on the memory.
	MaxSteps int
	// PlanningInterval runs a planning step at step 1 and every N steps. Zero
	// disables planning.
	PlanningInterval int
	// MaxModelCalls bounds model calls per run; zero is unlimited.
	MaxModelCalls int
	// Stream requests streaming generation and emits model delta events.
	Stream bool
	// Instructions are appended to the system prompt.
	Instructions Instruction
	// Prompts overrides the embedded prompt templates.
	Prompts PromptTemplates
	// ManagedAgents are exposed as tools taking a task.
	ManagedAgents []Agent
	// FinalAnswerChecks run against every final answer.
	FinalAnswerChecks []FinalAnswerCheck
	// StepCallbacks run after every step.
	StepCallbacks []StepCallback
	Logger        logging.Logger
}

// RunOptions configures a single run.
type RunOptions struct {
	// Reset clears the memory before the run (default true). With false the
	// new task continues the previous conversation.
	Reset bool
	// AdditionalArgs are appended to the task and, for code agents, defined
	// as Python variables.
	AdditionalArgs map[string]any
	// SessionID and RunID correlate events, logs and artifacts. A RunID is
	// generated when empty.
	SessionID string
	RunID     string
	// ArtifactStore is exposed to tools through the run context.
	ArtifactStore core.ArtifactStore
	// OnEvent receives every event in order.
	OnEvent func(core.Event)
}

// RunResult summarizes a finished run.
type RunResult struct {
	RunID string
	// Output is the final answer.
	Output any
	// State is StateSuccess or StateMaxStepsError.
	State string
	// Steps recorded during this run, starting with the task.
	Steps    []memory.Step
	Usage    model.TokenUsage
	Duration time.Duration
}

type emitFunc func(core.Event)

// stepper is the agent specific part of the loop.
type stepper interface {
	// prepare runs once per run before the first step.
	prepare(rc *core.RunContext, additionalArgs map[string]any) error
	// promptData adds agent specific template data for the system prompt.
	promptData(data *promptData)
	// step performs one action and fills in the step record. Recoverable
	// failures are returned as *AgentError.
	step(rc *core.RunContext, action *memory.ActionStep, emit emitFunc) error
}

// MultiStepAgent is the ReAct loop shared by CodeAgent and ToolCallingAgent.
type MultiStepAgent struct {
	*BaseAgent

	model   model.Model
	tools   *tool.Registry
	memory  *memory.AgentMemory
	opts    Options
	prompts PromptTemplates
	impl    stepper
}

func newMultiStepAgent(m model.Model, tools []tool.Tool, opts Options, systemTemplate string, impl stepper) (*MultiStepAgent, error) {
	if m == nil {
		return nil, errors.New("agent requires a model")
	}
	if opts.MaxSteps <= 0 {
		opts.MaxSteps = 20
	}
	if opts.Logger == nil {
		opts.Logger = logging.NoOpLogger{}
	}

	registry, err := tool.NewRegistry()
	if err != nil {
		return nil, err
	}
	for _, t := range tools {
		if t.Name() == tool.FinalAnswerName {
			continue
		}
		if err := registry.Register(t); err != nil {
			return nil, err
		}
	}
	for _, ma := range opts.ManagedAgents {
		if err := registry.Register(NewManagedAgentTool(ma, ma.Name(), ma.Description())); err != nil {
			return nil, fmt.Errorf("managed agent: %w", err)
		}
	}
	if err := registry.Register(finalAnswerTool(tools)); err != nil {
		return nil, err
	}

	base := NewBaseAgent(opts.Name)
	if opts.Description != "" {
		base.SetDescription(opts.Description)
	}

	return &MultiStepAgent{
		BaseAgent: base,
		model:     m,
		tools:     registry,
		memory:    memory.NewAgentMemory(""),
		opts:      opts,
		prompts:   opts.Prompts.withDefaults(systemTemplate),
		impl:      impl,
	}, nil
}

// finalAnswerTool returns a caller supplied final_answer tool or the default.
func finalAnswerTool(tools []tool.Tool) tool.Tool {
	for _, t := range tools {
		if t.Name() == tool.FinalAnswerName {
			return t
		}
	}
	return tool.NewFinalAnswerTool()
}

// Memory returns the agent memory.
func (a *MultiStepAgent) Memory() *memory.AgentMemory { return a.memory }

// Tools returns the registered tools including final_answer.
func (a *MultiStepAgent) Tools() []tool.Tool { return a.tools.List() }

// Model returns the model driving the agent.
func (a *MultiStepAgent) Model() model.Model { return a.model }

// MaxSteps returns the configured step limit.
func (a *MultiStepAgent) MaxSteps() int { return a.opts.MaxSteps }

// SystemPrompt renders the system prompt for a run.
func (a *MultiStepAgent) SystemPrompt(rc *core.RunContext) (string, error) {
	data := a.basePromptData("")

	if !a.opts.Instructions.IsZero() {
		inst, err := a.opts.Instructions.Resolve(rc)
		if err != nil {
			return "", fmt.Errorf("resolve instructions: %w", err)
		}
		data.Instructions = strings.TrimSpace(inst)
	}

	return render(a.prompts.SystemPrompt, data)
}

func (a *MultiStepAgent) basePromptData(task string) promptData {
	var (
		plain   []tool.Tool
		managed []agentDoc
	)
	for _, t := range a.tools.List() {
		if mt, ok := t.(*ManagedAgentTool); ok {
			managed = append(managed, agentDoc{Name: mt.Name(), Description: mt.Description()})
			continue
		}
		plain = append(plain, t)
	}

	data := promptData{
		Task:          task,
		Name:          a.Name(),
		Tools:         toolDocs(plain),
		ManagedAgents: managed,
	}
	a.impl.promptData(&data)

	return data
}

// Run solves task and returns the final answer.
func (a *MultiStepAgent) Run(ctx context.Context, task string, optFns ...func(o *RunOptions)) (*RunResult, error) {
	ro := RunOptions{Reset: true}
	for _, fn := range optFns {
		fn(&ro)
	}

	emit := func(ev core.Event) {
		if ro.OnEvent != nil {
			ro.OnEvent(ev)
		}
	}

	return a.run(ctx, task, ro, emit)
}

// RunStream runs task in the background. Events are delivered in order; the
// error channel carries at most one terminal error. Both channels are closed
// when the run ends.
func (a *MultiStepAgent) RunStream(ctx context.Context, task string, optFns ...func(o *RunOptions)) (<-chan core.Event, <-chan error) {
	events := make(chan core.Event, 64)
	errs := make(chan error, 1)

	go func() {
		defer close(errs)
		defer close(events)

		forward := func(o *RunOptions) {
			prev := o.OnEvent
			o.OnEvent = func(ev core.Event) {
				if prev != nil {
					prev(ev)
				}
				select {
				case events <- ev:
				case <-ctx.Done():
				}
			}
		}

		if _, err := a.Run(ctx, task, append(optFns, forward)...); err != nil {
			errs <- err
		}
	}()

	return events, errs
}

func (a *MultiStepAgent) run(ctx context.Context, task string, ro RunOptions, emit emitFunc) (*RunResult, error) {
	ctx, err := a.start(ctx)
	if err != nil {
		return nil, err
	}
	defer a.stop()

	started := time.Now()

	runID := ro.RunID
	if runID == "" {
		runID = core.NewID()
	}

	logger := runLogger(a.opts.Logger, ro.SessionID, runID)
	rc := core.NewRunContext(ctx, ro.SessionID, runID, a.Name(), a.opts.MaxModelCalls, ro.ArtifactStore, logger)

	if len(ro.AdditionalArgs) > 0 {
		task += "\nYou have been provided with these additional arguments, that you can access using the keys as variables in your python code:\n" +
			memory.FormatValue(ro.AdditionalArgs)
	}

	systemPrompt, err := a.SystemPrompt(rc)
	if err != nil {
		return nil, err
	}
	a.memory.SetSystemPrompt(systemPrompt)
	if ro.Reset {
		a.memory.Reset()
	}
	first := a.memory.Len()

	a.memory.Append(&memory.TaskStep{Task: task})
	logger.Info("agent.run.start", "agent", a.Name(), "max_steps", a.opts.MaxSteps, "reset", ro.Reset)

	if err := a.impl.prepare(rc, ro.AdditionalArgs); err != nil {
		return nil, fmt.Errorf("prepare run: %w", err)
	}

	var (
		output any
		state  = StateSuccess
	)

	for step := 1; ; step++ {
		if a.isInterrupted() {
			logger.Warn("agent.run.interrupted", "agent", a.Name(), "step", step)
			return nil, ErrInterrupted
		}
		if err := ctx.Err(); err != nil {
			return nil, context.Cause(ctx)
		}

		if step > a.opts.MaxSteps {
			answer, err := a.provideFinalAnswer(rc, task, step, emit)
			if err != nil {
				return nil, err
			}
			action := &memory.ActionStep{
				Timing:        memory.Timing{StartTime: time.Now(), EndTime: time.Now()},
				StepNumber:    step,
				Error:         newAgentError(MaxStepsError, step, fmt.Errorf("reached max steps (%d)", a.opts.MaxSteps)).Error(),
				ErrorKind:     string(MaxStepsError),
				ActionOutput:  answer,
				IsFinalAnswer: true,
			}
			a.memory.Append(action)
			a.afterStep(action)
			logger.Warn("agent.run.max_steps", "agent", a.Name(), "max_steps", a.opts.MaxSteps)

			output = answer
			state = StateMaxStepsError
			break
		}

		if a.planningDue(step) {
			plan, err := a.planningStep(rc, task, step, emit)
			if err != nil {
				return nil, a.abort(err)
			}
			a.memory.Append(plan)
			a.afterStep(plan)

			ev := core.NewEvent(runID, a.Name(), core.EventPlanning, step)
			ev.Content = &core.Content{Role: core.RoleAssistant, Parts: []core.Part{core.TextPart{Text: plan.Plan}}}
			emit(ev)
		}

		action := &memory.ActionStep{StepNumber: step, Timing: memory.Timing{StartTime: time.Now()}}
		err := a.impl.step(rc, action, emit)
		if err == nil && action.IsFinalAnswer {
			err = a.checkFinalAnswer(step, action.ActionOutput)
			if err != nil {
				action.IsFinalAnswer = false
			}
		}
		action.EndTime = time.Now()
		logStep(logger, step, "action", action.Duration(), err)

		if err != nil {
			if !Recoverable(err) {
				action.Error = err.Error()
				a.memory.Append(action)
				return nil, a.abort(err)
			}

			var agentErr *AgentError
			errors.As(err, &agentErr)
			action.Error = agentErr.Err.Error()
			action.ErrorKind = string(agentErr.Kind)

			ev := core.NewEvent(runID, a.Name(), core.EventError, step)
			ev.Error = err.Error()
			ev.Observation = action.Observations
			emit(ev)
		}

		a.memory.Append(action)
		a.afterStep(action)
		emit(a.actionEvent(runID, action))

		if action.IsFinalAnswer {
			output = action.ActionOutput
			break
		}
	}

	a.memory.Append(&memory.FinalAnswerStep{Output: output})

	final := core.NewEvent(runID, a.Name(), core.EventFinalAnswer, a.lastStep())
	final.Output = output
	final.Content = &core.Content{Role: core.RoleAssistant, Parts: []core.Part{core.TextPart{Text: memory.FormatValue(output)}}}
	emit(final)

	steps := a.memory.Steps()[first:]
	result := &RunResult{
		RunID:    runID,
		Output:   output,
		State:    state,
		Steps:    steps,
		Usage:    usageOf(steps),
		Duration: time.Since(started),
	}

	logger.Info("agent.run.complete",
		"agent", a.Name(),
		"state", state,
		"steps", len(steps),
		"input_tokens", result.Usage.InputTokens,
		"output_tokens", result.Usage.OutputTokens,
		"duration_ms", result.Duration.Milliseconds(),
	)

	return result, nil
}

// abort maps context errors caused by Interrupt to ErrInterrupted.
func (a *MultiStepAgent) abort(err error) error {
	if a.isInterrupted() {
		return ErrInterrupted
	}
	return err
}

func (a *MultiStepAgent) planningDue(step int) bool {
	n := a.opts.PlanningInterval
	return n > 0 && (step == 1 || (step-1)%n == 0)
}

func (a *MultiStepAgent) lastStep() int {
	steps := a.memory.ActionSteps()
	if len(steps) == 0 {
		return 0
	}
	return steps[len(steps)-1].StepNumber
}

func (a *MultiStepAgent) afterStep(step memory.Step) {
	for _, cb := range a.opts.StepCallbacks {
		cb(step)
	}
}

func (a *MultiStepAgent) checkFinalAnswer(step int, answer any) error {
	for i, check := range a.opts.FinalAnswerChecks {
		if err := check(answer, a.memory); err != nil {
			return newAgentError(ExecutionError, step, fmt.Errorf("check %d failed with error: %w", i+1, err))
		}
	}
	return nil
}

func (a *MultiStepAgent) actionEvent(runID string, action *memory.ActionStep) core.Event {
	ev := core.NewEvent(runID, a.Name(), core.EventAction, action.StepNumber)
	if action.ModelOutput != "" {
		ev.Content = &core.Content{Role: core.RoleAssistant, Parts: []core.Part{core.TextPart{Text: action.ModelOutput}}}
	}
	ev.Observation = action.Observations
	ev.Output = action.ActionOutput
	ev.Error = action.Error
	return ev
}

// generate performs one counted model call.
func (a *MultiStepAgent) generate(rc *core.RunContext, step int, req model.Request, emit emitFunc) (model.Response, error) {
	if err := rc.Limiter.Increment(); err != nil {
		return model.Response{}, err
	}

	req.Stream = a.opts.Stream

	var onDelta func(model.Response)
	if a.opts.Stream {
		onDelta = func(r model.Response) {
			ev := core.NewEvent(rc.RunID, a.Name(), core.EventModelDelta, step)
			c := r.Content
			ev.Content = &c
			ev.Partial = true
			emit(ev)
		}
	}

	started := time.Now()
	resp, err := model.GenerateSync(rc.Context, a.model, req, onDelta)

	var usage model.TokenUsage
	if resp.Usage != nil {
		usage = *resp.Usage
	}
	logModelCall(rc.Logger(), a.model.Info().Name, usage, time.Since(started), err)

	return resp, err
}

func (a *MultiStepAgent) planningStep(rc *core.RunContext, task string, step int, emit emitFunc) (*memory.PlanningStep, error) {
	started := time.Now()

	data := a.basePromptData(task)
	data.RemainingSteps = a.opts.MaxSteps - step + 1

	var input []core.Content
	if step == 1 {
		prompt, err := render(a.prompts.PlanningInitial, data)
		if err != nil {
			return nil, err
		}
		input = []core.Content{core.NewTextContent(core.RoleUser, prompt)}
	} else {
		pre, err := render(a.prompts.PlanningUpdatePre, data)
		if err != nil {
			return nil, err
		}
		post, err := render(a.prompts.PlanningUpdatePost, data)
		if err != nil {
			return nil, err
		}
		input = append([]core.Content{core.NewTextContent(core.RoleSystem, pre)}, a.memory.ToMessages(true)...)
		input = append(input, core.NewTextContent(core.RoleUser, post))
	}

	resp, err := a.generate(rc, step, model.Request{Contents: input, StopSequences: []string{"<end_plan>"}}, emit)
	if err != nil {
		return nil, newAgentError(GenerationError, step, err)
	}

	out := strings.TrimSuffix(strings.TrimSpace(resp.Content.Text()), "<end_plan>")
	out = strings.TrimSpace(out)

	var plan string
	if step == 1 {
		plan = "Here are the facts I know and the plan of action that I will follow to solve the task:\n```\n" + out + "\n```"
	} else {
		plan = "I still need to solve the task I was given:\n```\n" + task + "\n```\n\n" +
			"Here are the facts I know and my new/updated plan of action to solve the task:\n```\n" + out + "\n```"
	}

	logStep(rc.Logger(), step, "planning", time.Since(started), nil)

	return &memory.PlanningStep{
		Timing:             memory.Timing{StartTime: started, EndTime: time.Now()},
		ModelInputMessages: input,
		ModelOutput:        out,
		Plan:               plan,
		Usage:              resp.Usage,
	}, nil
}

// provideFinalAnswer asks the model to answer from memory once the step
// limit is reached.
func (a *MultiStepAgent) provideFinalAnswer(rc *core.RunContext, task string, step int, emit emitFunc) (any, error) {
	data := a.basePromptData(task)

	pre, err := render(a.prompts.FinalAnswerPre, data)
	if err != nil {
		return nil, err
	}
	post, err := render(a.prompts.FinalAnswerPost, data)
	if err != nil {
		return nil, err
	}

	input := []core.Content{core.NewTextContent(core.RoleSystem, pre)}
	if msgs := a.memory.ToMessages(false); len(msgs) > 1 {
		input = append(input, msgs[1:]...)
	}
	input = append(input, core.NewTextContent(core.RoleUser, post))

	resp, err := a.generate(rc, step, model.Request{Contents: input}, emit)
	if err != nil {
		return nil, a.abort(newAgentError(GenerationError, step, err))
	}

	return resp.Content.Text(), nil
}

func usageOf(steps []memory.Step) model.TokenUsage {
	var total model.TokenUsage
	for _, s := range steps {
		switch st := s.(type) {
		case *memory.ActionStep:
			if st.Usage != nil {
				total = total.Add(*st.Usage)
			}
		case *memory.PlanningStep:
			if st.Usage != nil {
				total = total.Add(*st.Usage)
			}
		}
	}
	return total
}
