package agent

import (
	"embed"
	"fmt"
	"strings"

	"github.com/hupe1980/codeagent/internal/util"
	"github.com/hupe1980/codeagent/tool"
)

//go:embed prompts/*.tmpl
var promptFS embed.FS

// PromptTemplates holds the text/template sources an agent renders. Zero
// fields fall back to the embedded defaults.
type PromptTemplates struct {
	SystemPrompt       string
	PlanningInitial    string
	PlanningUpdatePre  string
	PlanningUpdatePost string
	FinalAnswerPre     string
	FinalAnswerPost    string
	ManagedAgentTask   string
}

func mustPrompt(name string) string {
	b, err := promptFS.ReadFile("prompts/" + name + ".tmpl")
	if err != nil {
		panic(fmt.Sprintf("missing embedded prompt %s: %v", name, err))
	}
	return string(b)
}

// DefaultPromptTemplates returns the embedded templates; system is the
// agent specific system prompt template name.
func DefaultPromptTemplates(system string) PromptTemplates {
	return PromptTemplates{
		SystemPrompt:       mustPrompt(system),
		PlanningInitial:    mustPrompt("planning_initial"),
		PlanningUpdatePre:  mustPrompt("planning_update_pre"),
		PlanningUpdatePost: mustPrompt("planning_update_post"),
		FinalAnswerPre:     mustPrompt("final_answer_pre"),
		FinalAnswerPost:    mustPrompt("final_answer_post"),
		ManagedAgentTask:   mustPrompt("managed_agent_task"),
	}
}

func (p PromptTemplates) withDefaults(system string) PromptTemplates {
	d := DefaultPromptTemplates(system)
	if p.SystemPrompt == "" {
		p.SystemPrompt = d.SystemPrompt
	}
	if p.PlanningInitial == "" {
		p.PlanningInitial = d.PlanningInitial
	}
	if p.PlanningUpdatePre == "" {
		p.PlanningUpdatePre = d.PlanningUpdatePre
	}
	if p.PlanningUpdatePost == "" {
		p.PlanningUpdatePost = d.PlanningUpdatePost
	}
	if p.FinalAnswerPre == "" {
		p.FinalAnswerPre = d.FinalAnswerPre
	}
	if p.FinalAnswerPost == "" {
		p.FinalAnswerPost = d.FinalAnswerPost
	}
	if p.ManagedAgentTask == "" {
		p.ManagedAgentTask = d.ManagedAgentTask
	}
	return p
}

// toolDoc is how a tool is presented to prompt templates.
type toolDoc struct {
	Name        string
	Description string
	Signature   string
}

type agentDoc struct {
	Name        string
	Description string
}

// promptData is the template input shared by all prompts.
type promptData struct {
	Task              string
	Tools             []toolDoc
	ManagedAgents     []agentDoc
	AuthorizedImports string
	Instructions      string
	RemainingSteps    int
	Name              string
}

func toolDocs(tools []tool.Tool) []toolDoc {
	docs := make([]toolDoc, 0, len(tools))
	for _, t := range tools {
		docs = append(docs, toolDoc{
			Name:        t.Name(),
			Description: strings.TrimSpace(t.Description()),
			Signature:   tool.Signature(t),
		})
	}
	return docs
}

func render(tmpl string, data promptData) (string, error) {
	out, err := util.RenderTemplate(tmpl, data)
	if err != nil {
		return "", fmt.Errorf("render prompt: %w", err)
	}
	return strings.TrimSpace(out), nil
}
