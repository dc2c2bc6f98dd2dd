package memory

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/hupe1980/codeagent/core"
	"github.com/hupe1980/codeagent/logging"
	"github.com/hupe1980/codeagent/model"
)

// AgentMemory holds the system prompt and the steps of an agent's runs.
// It is safe for concurrent use.
type AgentMemory struct {
	mu           sync.RWMutex
	systemPrompt SystemPromptStep
	steps        []Step
}

// NewAgentMemory creates a memory with the given system prompt.
func NewAgentMemory(systemPrompt string) *AgentMemory {
	return &AgentMemory{systemPrompt: SystemPromptStep{SystemPrompt: systemPrompt}}
}

// SetSystemPrompt replaces the system prompt.
func (m *AgentMemory) SetSystemPrompt(prompt string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.systemPrompt.SystemPrompt = prompt
}

// SystemPrompt returns the system prompt.
func (m *AgentMemory) SystemPrompt() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.systemPrompt.SystemPrompt
}

// Append adds steps.
func (m *AgentMemory) Append(steps ...Step) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.steps = append(m.steps, steps...)
}

// Steps returns the recorded steps (without the system prompt). The slice is
// a copy; the steps themselves are shared.
func (m *AgentMemory) Steps() []Step {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]Step(nil), m.steps...)
}

// Len returns the number of recorded steps.
func (m *AgentMemory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.steps)
}

// Reset drops all steps and keeps the system prompt.
func (m *AgentMemory) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.steps = nil
}

// ActionSteps returns only the action steps.
func (m *AgentMemory) ActionSteps() []*ActionStep {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []*ActionStep
	for _, s := range m.steps {
		if a, ok := s.(*ActionStep); ok {
			out = append(out, a)
		}
	}
	return out
}

// ToMessages renders the whole memory as model input.
func (m *AgentMemory) ToMessages(summaryMode bool) []core.Content {
	m.mu.RLock()
	defer m.mu.RUnlock()

	msgs := m.systemPrompt.ToMessages(summaryMode)
	for _, s := range m.steps {
		msgs = append(msgs, s.ToMessages(summaryMode)...)
	}
	return msgs
}

// TokenUsage sums the usage of all planning and action steps.
func (m *AgentMemory) TokenUsage() model.TokenUsage {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var total model.TokenUsage
	for _, s := range m.steps {
		switch st := s.(type) {
		case *ActionStep:
			if st.Usage != nil {
				total = total.Add(*st.Usage)
			}
		case *PlanningStep:
			if st.Usage != nil {
				total = total.Add(*st.Usage)
			}
		}
	}
	return total
}

type stepEnvelope struct {
	Type StepType        `json:"type"`
	Step json.RawMessage `json:"step"`
}

type snapshot struct {
	SystemPrompt string         `json:"system_prompt"`
	Steps        []stepEnvelope `json:"steps"`
}

// Snapshot serializes the memory. Model input messages are dropped since
// they are derivable from the steps.
func (m *AgentMemory) Snapshot() ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	snap := snapshot{SystemPrompt: m.systemPrompt.SystemPrompt, Steps: make([]stepEnvelope, 0, len(m.steps))}
	for _, s := range m.steps {
		b, err := json.Marshal(stripInputs(s))
		if err != nil {
			return nil, fmt.Errorf("marshal %s step: %w", s.Type(), err)
		}
		snap.Steps = append(snap.Steps, stepEnvelope{Type: s.Type(), Step: b})
	}

	return json.Marshal(snap)
}

// Restore replaces the memory with a snapshot produced by Snapshot.
func (m *AgentMemory) Restore(data []byte) error {
	var snap snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return fmt.Errorf("decode memory snapshot: %w", err)
	}

	steps := make([]Step, 0, len(snap.Steps))
	for i, env := range snap.Steps {
		var s Step
		switch env.Type {
		case StepTask:
			s = &TaskStep{}
		case StepPlanning:
			s = &PlanningStep{}
		case StepAction:
			s = &ActionStep{}
		case StepFinalAnswer:
			s = &FinalAnswerStep{}
		case StepSystemPrompt:
			s = &SystemPromptStep{}
		default:
			return fmt.Errorf("decode memory snapshot: step %d has unknown type %q", i, env.Type)
		}
		if err := json.Unmarshal(env.Step, s); err != nil {
			return fmt.Errorf("decode memory snapshot: step %d: %w", i, err)
		}
		steps = append(steps, s)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.systemPrompt.SystemPrompt = snap.SystemPrompt
	m.steps = steps

	return nil
}

// FullSteps returns every step as a generic JSON object including its type.
func (m *AgentMemory) FullSteps() ([]map[string]any, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]map[string]any, 0, len(m.steps))
	for _, s := range m.steps {
		b, err := json.Marshal(s)
		if err != nil {
			return nil, err
		}
		var obj map[string]any
		if err := json.Unmarshal(b, &obj); err != nil {
			return nil, err
		}
		obj["type"] = string(s.Type())
		out = append(out, obj)
	}
	return out, nil
}

// Replay logs the recorded steps in order.
func (m *AgentMemory) Replay(logger logging.Logger) {
	for _, s := range m.Steps() {
		switch st := s.(type) {
		case *TaskStep:
			logger.Info("memory.replay.task", "task", st.Task)
		case *PlanningStep:
			logger.Info("memory.replay.planning", "plan", st.Plan)
		case *ActionStep:
			logger.Info("memory.replay.action",
				"step", st.StepNumber,
				"code", st.CodeAction,
				"observations", st.Observations,
				"error", st.Error,
				"duration_ms", st.Duration().Milliseconds(),
			)
		case *FinalAnswerStep:
			logger.Info("memory.replay.final_answer", "output", FormatValue(st.Output))
		}
	}
}

func stripInputs(s Step) Step {
	switch st := s.(type) {
	case *ActionStep:
		cp := *st
		cp.ModelInputMessages = nil
		return &cp
	case *PlanningStep:
		cp := *st
		cp.ModelInputMessages = nil
		return &cp
	default:
		return s
	}
}
