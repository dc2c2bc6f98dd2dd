package agent

import (
	"fmt"
	"sync"

	"github.com/hupe1980/codeagent/core"
	"github.com/hupe1980/codeagent/memory"
	"github.com/hupe1980/codeagent/tool"
)

// ManagedAgentTool exposes an agent as a tool so a manager agent can
// delegate sub tasks to it. An agent runs one task at a time, so concurrent
// calls are serialized.
type ManagedAgentTool struct {
	mu           sync.Mutex
	agent        Agent
	name         string
	description  string
	taskTemplate string
}

var _ tool.Tool = (*ManagedAgentTool)(nil)

type promptProvider interface {
	promptTemplates() PromptTemplates
}

func (a *MultiStepAgent) promptTemplates() PromptTemplates { return a.prompts }

// NewManagedAgentTool wraps agent under name. The task handed to the agent
// is rendered from its ManagedAgentTask template.
func NewManagedAgentTool(agent Agent, name, description string) *ManagedAgentTool {
	tmpl := mustPrompt("managed_agent_task")
	if pp, ok := agent.(promptProvider); ok {
		tmpl = pp.promptTemplates().ManagedAgentTask
	}

	return &ManagedAgentTool{
		agent:        agent,
		name:         name,
		description:  description,
		taskTemplate: tmpl,
	}
}

// Name implements tool.Tool.
func (t *ManagedAgentTool) Name() string { return t.name }

// Description implements tool.Tool.
func (t *ManagedAgentTool) Description() string { return t.description }

// Agent returns the wrapped agent.
func (t *ManagedAgentTool) Agent() Agent { return t.agent }

// Parameters implements tool.Tool.
func (t *ManagedAgentTool) Parameters() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"task": map[string]any{
				"type":        "string",
				"description": "Long detailed description of the task.",
			},
			"additional_args": map[string]any{
				"type":        "object",
				"description": "Dictionary of extra inputs to pass to the managed agent, e.g. images, dataframes, or any other contextual data it may need.",
			},
		},
		"required": []string{"task"},
	}
}

// Call implements tool.Tool.
func (t *ManagedAgentTool) Call(toolCtx *core.ToolContext, args map[string]any) (any, error) {
	task, ok := args["task"].(string)
	if !ok || task == "" {
		return nil, tool.NewToolError(t.name, "task must be a non-empty string", tool.CodeValidation)
	}

	var extra map[string]any
	if raw, ok := args["additional_args"]; ok && raw != nil {
		m, ok := raw.(map[string]any)
		if !ok {
			return nil, tool.NewToolError(t.name, "additional_args must be an object", tool.CodeValidation)
		}
		extra = m
	}

	prompt, err := render(t.taskTemplate, promptData{Name: t.name, Task: task})
	if err != nil {
		return nil, err
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	rc := toolCtx.RunContext()
	res, err := t.agent.Run(toolCtx.Context(), prompt, func(o *RunOptions) {
		o.AdditionalArgs = extra
		o.SessionID = toolCtx.SessionID()
		if rc != nil {
			o.ArtifactStore = rc.ArtifactStore
		}
	})
	if err != nil {
		return nil, fmt.Errorf("managed agent %s: %w", t.name, err)
	}

	return fmt.Sprintf("Here is the final answer from your managed agent '%s':\n%s", t.name, memory.FormatValue(res.Output)), nil
}
