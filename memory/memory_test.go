package memory

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/codeagent/core"
	"github.com/hupe1980/codeagent/model"
)

type recordingLogger struct{ msgs []string }

func (r *recordingLogger) Debug(msg string, _ ...any) { r.msgs = append(r.msgs, msg) }
func (r *recordingLogger) Info(msg string, _ ...any)  { r.msgs = append(r.msgs, msg) }
func (r *recordingLogger) Warn(msg string, _ ...any)  { r.msgs = append(r.msgs, msg) }
func (r *recordingLogger) Error(msg string, _ ...any) { r.msgs = append(r.msgs, msg) }

func codeAgentMemory() *AgentMemory {
	m := NewAgentMemory("You are an expert assistant.")
	start := time.Date(2025, 1, 1, 10, 0, 0, 0, time.UTC)
	m.Append(
		&TaskStep{Task: "Find restaurants"},
		&ActionStep{
			Timing:       Timing{StartTime: start, EndTime: start.Add(2 * time.Second)},
			StepNumber:   1,
			ModelOutput:  "Thought: search\nCode:\n```py\nprint(web_search('x'))\n```",
			CodeAction:   "print(web_search('x'))",
			ToolCalls:    []ToolCall{{ID: "call_1", Name: "python_interpreter", Arguments: "print(web_search('x'))"}},
			Observations: "Execution logs:\nresults",
			Usage:        &model.TokenUsage{InputTokens: 10, OutputTokens: 5},
		},
		&ActionStep{
			StepNumber:  2,
			ModelOutput: "Thought: oops",
			Error:       "Code execution failed: NameError",
			Usage:       &model.TokenUsage{InputTokens: 20, OutputTokens: 7},
		},
	)
	return m
}

func TestAgentMemory_ToMessages(t *testing.T) {
	m := codeAgentMemory()

	msgs := m.ToMessages(false)
	require.Len(t, msgs, 6)

	assert.Equal(t, core.RoleSystem, msgs[0].Role)
	assert.Equal(t, "You are an expert assistant.", msgs[0].Text())

	assert.Equal(t, core.RoleUser, msgs[1].Role)
	assert.Equal(t, "New task:\nFind restaurants", msgs[1].Text())

	assert.Equal(t, core.RoleAssistant, msgs[2].Role)
	assert.Contains(t, msgs[2].Text(), "print(web_search('x'))")
	assert.Empty(t, msgs[2].FunctionCalls())

	assert.Equal(t, "Observation:\nExecution logs:\nresults", msgs[3].Text())

	assert.Equal(t, "Thought: oops", msgs[4].Text())
	assert.Contains(t, msgs[5].Text(), "Error:\nCode execution failed: NameError\nNow let's retry")
}

func TestAgentMemory_SummaryMode(t *testing.T) {
	m := codeAgentMemory()
	m.Append(&PlanningStep{Plan: "1. search\n2. answer"})

	msgs := m.ToMessages(true)
	for _, msg := range msgs {
		assert.NotEqual(t, core.RoleSystem, msg.Role)
		assert.NotEqual(t, core.RoleAssistant, msg.Role)
	}
	require.Len(t, msgs, 3)
	assert.Equal(t, "New task:\nFind restaurants", msgs[0].Text())
}

func TestPlanningStep_ToMessages(t *testing.T) {
	msgs := (&PlanningStep{Plan: "  1. look up\n"}).ToMessages(false)
	require.Len(t, msgs, 2)
	assert.Equal(t, core.RoleAssistant, msgs[0].Role)
	assert.Equal(t, "1. look up", msgs[0].Text())
	assert.Equal(t, "Now proceed and carry out this plan.", msgs[1].Text())
}

func TestActionStep_NativeToolCalls(t *testing.T) {
	step := &ActionStep{
		StepNumber: 1,
		ToolCalls:  []ToolCall{{ID: "c1", Name: "web_search", Arguments: map[string]any{"query": "go"}}},
		ToolResults: []ToolResult{
			{ID: "c1", Name: "web_search", Output: map[string]any{"n": 1}},
		},
	}

	msgs := step.ToMessages(false)
	require.Len(t, msgs, 2)

	calls := msgs[0].FunctionCalls()
	require.Len(t, calls, 1)
	assert.Equal(t, "web_search", calls[0].Name)
	assert.JSONEq(t, `{"query":"go"}`, calls[0].Arguments)

	assert.Equal(t, core.RoleTool, msgs[1].Role)
	resps := msgs[1].FunctionResponses()
	require.Len(t, resps, 1)
	assert.Equal(t, "c1", resps[0].ID)
	assert.Equal(t, `{"n":1}`, resps[0].Response)
}

func TestAgentMemory_SnapshotRestore(t *testing.T) {
	m := codeAgentMemory()
	m.Append(&FinalAnswerStep{Output: map[string]any{"answer": "ok"}})
	m.ActionSteps()[0].ModelInputMessages = []core.Content{core.NewTextContent(core.RoleUser, "big prompt")}

	data, err := m.Snapshot()
	require.NoError(t, err)
	assert.NotContains(t, string(data), "big prompt")

	restored := NewAgentMemory("other")
	require.NoError(t, restored.Restore(data))

	assert.Equal(t, "You are an expert assistant.", restored.SystemPrompt())
	require.Equal(t, 4, restored.Len())
	assert.Equal(t, m.ToMessages(false), restored.ToMessages(false))
	assert.Equal(t, m.TokenUsage(), restored.TokenUsage())

	fa, ok := restored.Steps()[3].(*FinalAnswerStep)
	require.True(t, ok)
	assert.Equal(t, map[string]any{"answer": "ok"}, fa.Output)
}

func TestAgentMemory_RestoreErrors(t *testing.T) {
	m := NewAgentMemory("")
	assert.Error(t, m.Restore([]byte("not json")))
	assert.ErrorContains(t, m.Restore([]byte(`{"steps":[{"type":"bogus","step":{}}]}`)), "unknown type")
}

func TestAgentMemory_TokenUsageAndReset(t *testing.T) {
	m := codeAgentMemory()
	m.Append(&PlanningStep{Usage: &model.TokenUsage{InputTokens: 1, OutputTokens: 1}})

	assert.Equal(t, model.TokenUsage{InputTokens: 31, OutputTokens: 13}, m.TokenUsage())

	m.Reset()
	assert.Equal(t, 0, m.Len())
	assert.Equal(t, "You are an expert assistant.", m.SystemPrompt())
	assert.Len(t, m.ToMessages(false), 1)
}

func TestAgentMemory_FullStepsAndReplay(t *testing.T) {
	m := codeAgentMemory()
	m.Append(&FinalAnswerStep{Output: "done"})

	full, err := m.FullSteps()
	require.NoError(t, err)
	require.Len(t, full, 4)
	assert.Equal(t, "task", full[0]["type"])
	assert.Equal(t, "action", full[1]["type"])
	assert.Equal(t, float64(1), full[1]["step_number"])

	rec := &recordingLogger{}
	m.Replay(rec)
	assert.Equal(t, []string{
		"memory.replay.task",
		"memory.replay.action",
		"memory.replay.action",
		"memory.replay.final_answer",
	}, rec.msgs)
}

func TestTiming_Duration(t *testing.T) {
	start := time.Now()
	assert.Zero(t, Timing{StartTime: start}.Duration())
	assert.Equal(t, time.Second, Timing{StartTime: start, EndTime: start.Add(time.Second)}.Duration())
}

func TestFormatValue(t *testing.T) {
	assert.Equal(t, "None", FormatValue(nil))
	assert.Equal(t, "text", FormatValue("text"))
	assert.Equal(t, `[1,2]`, FormatValue([]int{1, 2}))
	assert.Equal(t, fmt.Sprint(42), FormatValue(42))
}
