package memory

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/hupe1980/codeagent/core"
	"github.com/hupe1980/codeagent/model"
)

// StepType identifies a step in snapshots.
type StepType string

const (
	StepSystemPrompt StepType = "system_prompt"
	StepTask         StepType = "task"
	StepPlanning     StepType = "planning"
	StepAction       StepType = "action"
	StepFinalAnswer  StepType = "final_answer"
)

// Step is one entry of the agent memory.
type Step interface {
	Type() StepType
	// ToMessages renders the step as model messages. In summary mode model
	// outputs are left out so a planner sees facts rather than reasoning.
	ToMessages(summaryMode bool) []core.Content
}

// Timing records when a step ran.
type Timing struct {
	StartTime time.Time `json:"start_time"`
	EndTime   time.Time `json:"end_time,omitempty"`
}

// Duration returns the step's wall time, zero while it is still running.
func (t Timing) Duration() time.Duration {
	if t.EndTime.IsZero() {
		return 0
	}
	return t.EndTime.Sub(t.StartTime)
}

// SystemPromptStep holds the system prompt.
type SystemPromptStep struct {
	SystemPrompt string `json:"system_prompt"`
}

// Type implements Step.
func (s *SystemPromptStep) Type() StepType { return StepSystemPrompt }

// ToMessages implements Step.
func (s *SystemPromptStep) ToMessages(summaryMode bool) []core.Content {
	if summaryMode {
		return nil
	}
	return []core.Content{core.NewTextContent(core.RoleSystem, s.SystemPrompt)}
}

// TaskStep holds a task given to the agent.
type TaskStep struct {
	Task string `json:"task"`
}

// Type implements Step.
func (s *TaskStep) Type() StepType { return StepTask }

// ToMessages implements Step.
func (s *TaskStep) ToMessages(bool) []core.Content {
	return []core.Content{core.NewTextContent(core.RoleUser, "New task:\n"+s.Task)}
}

// PlanningStep holds a (re)plan produced every planning interval.
type PlanningStep struct {
	Timing
	ModelInputMessages []core.Content    `json:"model_input_messages,omitempty"`
	ModelOutput        string            `json:"model_output"`
	Plan               string            `json:"plan"`
	Usage              *model.TokenUsage `json:"usage,omitempty"`
}

// Type implements Step.
func (s *PlanningStep) Type() StepType { return StepPlanning }

// ToMessages implements Step.
func (s *PlanningStep) ToMessages(summaryMode bool) []core.Content {
	if summaryMode {
		return nil
	}
	return []core.Content{
		core.NewTextContent(core.RoleAssistant, strings.TrimSpace(s.Plan)),
		core.NewTextContent(core.RoleUser, "Now proceed and carry out this plan."),
	}
}

// ToolCall is a tool invocation made during an action step. For code agents
// the single call is the python interpreter running the code action.
type ToolCall struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Arguments any    `json:"arguments"`
}

// ToolResult is the outcome of one native tool call.
type ToolResult struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Output any    `json:"output,omitempty"`
	Error  string `json:"error,omitempty"`
}

// ActionStep records one iteration of the ReAct loop.
type ActionStep struct {
	Timing
	StepNumber         int               `json:"step_number"`
	ModelInputMessages []core.Content    `json:"model_input_messages,omitempty"`
	ModelOutput        string            `json:"model_output,omitempty"`
	CodeAction         string            `json:"code_action,omitempty"`
	ToolCalls          []ToolCall        `json:"tool_calls,omitempty"`
	ToolResults        []ToolResult      `json:"tool_results,omitempty"`
	Observations       string            `json:"observations,omitempty"`
	ActionOutput       any               `json:"action_output,omitempty"`
	Error              string            `json:"error,omitempty"`
	ErrorKind          string            `json:"error_kind,omitempty"`
	Usage              *model.TokenUsage `json:"usage,omitempty"`
	IsFinalAnswer      bool              `json:"is_final_answer,omitempty"`
}

// Type implements Step.
func (s *ActionStep) Type() StepType { return StepAction }

// ToMessages implements Step.
func (s *ActionStep) ToMessages(summaryMode bool) []core.Content {
	var msgs []core.Content

	native := len(s.ToolResults) > 0

	assistant := core.Content{Role: core.RoleAssistant}
	if s.ModelOutput != "" && !summaryMode {
		assistant.Parts = append(assistant.Parts, core.TextPart{Text: strings.TrimSpace(s.ModelOutput)})
	}
	if native {
		for _, tc := range s.ToolCalls {
			assistant.Parts = append(assistant.Parts, core.FunctionCallPart{FunctionCall: core.FunctionCall{
				ID:        tc.ID,
				Name:      tc.Name,
				Arguments: argumentsJSON(tc.Arguments),
			}})
		}
	}
	if len(assistant.Parts) > 0 {
		msgs = append(msgs, assistant)
	}

	if native {
		resp := core.Content{Role: core.RoleTool}
		for _, tr := range s.ToolResults {
			resp.Parts = append(resp.Parts, core.FunctionResponsePart{FunctionResponse: core.FunctionResponse{
				ID:       tr.ID,
				Name:     tr.Name,
				Response: observationText(tr.Output),
				Error:    tr.Error,
			}})
		}
		msgs = append(msgs, resp)
	} else if s.Observations != "" {
		msgs = append(msgs, core.NewTextContent(core.RoleUser, "Observation:\n"+s.Observations))
	}

	if s.Error != "" {
		msgs = append(msgs, core.NewTextContent(core.RoleUser,
			"Error:\n"+s.Error+"\nNow let's retry: take care not to repeat previous errors! "+
				"If you have retried several times, try a completely different approach.\n"))
	}

	return msgs
}

// FinalAnswerStep holds the run's final answer.
type FinalAnswerStep struct {
	Output any `json:"output"`
}

// Type implements Step.
func (s *FinalAnswerStep) Type() StepType { return StepFinalAnswer }

// ToMessages implements Step.
func (s *FinalAnswerStep) ToMessages(bool) []core.Content { return nil }

func argumentsJSON(args any) string {
	if s, ok := args.(string); ok {
		return s
	}
	b, err := json.Marshal(args)
	if err != nil {
		return fmt.Sprintf("%v", args)
	}
	return string(b)
}

// observationText renders a value the way it is shown to the model.
func observationText(v any) string {
	switch t := v.(type) {
	case nil:
		return "None"
	case string:
		return t
	default:
		b, err := json.Marshal(t)
		if err != nil {
			return fmt.Sprintf("%v", t)
		}
		return string(b)
	}
}

// FormatValue renders an action output or final answer for display.
func FormatValue(v any) string { return observationText(v) }
