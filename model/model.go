package model

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/hupe1980/codeagent/core"
)

// ToolCall represents a function call request surfaced by a model provider.
// Unified across vendors so downstream logic does not need per-provider branching.
type ToolCall struct {
	ID       string           `json:"id"`
	Type     string           `json:"type"` // "function"
	Function ToolCallFunction `json:"function"`
}

// ToolCallFunction describes the concrete function target of a tool call.
type ToolCallFunction struct {
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments"`
}

// ToolDefinition declaratively exposes a callable function to the model.
type ToolDefinition struct {
	Type     string             `json:"type"` // "function"
	Function FunctionDefinition `json:"function"`
}

// FunctionDefinition describes an individual function (tool) exposed to the model.
// Parameters is a JSON Schema object (draft agnostic, minimal subset expected).
type FunctionDefinition struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  map[string]any `json:"parameters"`
}

// Request captures the normalized model input produced by agents.
type Request struct {
	Contents      []core.Content   `json:"contents"`
	Tools         []ToolDefinition `json:"tools,omitempty"`
	StopSequences []string         `json:"stop_sequences,omitempty"`
	Stream        bool             `json:"stream,omitempty"`
}

// TokenUsage captures token usage statistics for a response.
type TokenUsage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

// Total returns input + output tokens.
func (u TokenUsage) Total() int { return u.InputTokens + u.OutputTokens }

// Add returns the element-wise sum of two usages.
func (u TokenUsage) Add(o TokenUsage) TokenUsage {
	return TokenUsage{InputTokens: u.InputTokens + o.InputTokens, OutputTokens: u.OutputTokens + o.OutputTokens}
}

// Response is a (partial or final) chunk emitted by a model.
type Response struct {
	ID           string       `json:"id"`
	Partial      bool         `json:"partial"` // Indicates if this is a partial response
	Content      core.Content `json:"content"`
	FinishReason string       `json:"finish_reason"` // "stop", "length", "tool_calls", etc.
	Usage        *TokenUsage  `json:"usage,omitempty"`
}

// Info contains metadata about a model implementation.
type Info struct {
	Name          string `json:"name"`
	Provider      string `json:"provider"` // "openai", "anthropic", "ollama", "mock"
	SupportsTools bool   `json:"supports_tools"`
}

// Model is the minimal interface required by agents to drive generation.
//
// Generate emits zero or more partial responses followed by exactly one final
// response (Partial == false) unless an error is sent. Both channels are
// closed when generation ends.
type Model interface {
	Generate(ctx context.Context, req Request) (<-chan Response, <-chan error)

	// Info returns information about the model implementation.
	Info() Info
}

// MockModel is a lightweight in‑memory Model useful for tests & examples.
// It answers the text of the last user message with a canned reply.
type MockModel struct {
	info      Info
	mu        sync.RWMutex
	responses map[string]string
}

// NewMockModel constructs a MockModel with basic tool support enabled.
func NewMockModel(name, provider string) *MockModel {
	return &MockModel{
		info: Info{
			Name:          name,
			Provider:      provider,
			SupportsTools: true,
		},
		responses: make(map[string]string),
	}
}

// AddResponse registers a deterministic canned completion for an input prompt.
func (m *MockModel) AddResponse(prompt, response string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.responses[prompt] = response
}

// Generate implements Model; emits optional streaming char chunks then final response.
func (m *MockModel) Generate(ctx context.Context, req Request) (<-chan Response, <-chan error) {
	if len(req.Contents) == 0 {
		return Fail(fmt.Errorf("no contents provided"))
	}

	inputText := req.Contents[len(req.Contents)-1].Text()

	m.mu.RLock()
	full := m.responses[inputText]
	m.mu.RUnlock()

	if full == "" {
		full = fmt.Sprintf("Mock response to: %s", inputText)
	}

	return Emit(ctx, req.Stream, Response{
		Content:      core.NewTextContent(core.RoleAssistant, full),
		FinishReason: "stop",
	})
}

// Info implements Model interface.
func (m *MockModel) Info() Info { return m.info }

// ScriptedModel replays a fixed sequence of responses, one per Generate call,
// and records every request it receives. Once the script is exhausted it
// returns an error.
type ScriptedModel struct {
	info Info

	mu        sync.Mutex
	script    []Response
	errs      map[int]error
	requests  []Request
	callCount int
}

// NewScriptedModel creates a model replying with the given texts in order.
func NewScriptedModel(replies ...string) *ScriptedModel {
	script := make([]Response, len(replies))
	for i, r := range replies {
		script[i] = Response{Content: core.NewTextContent(core.RoleAssistant, r), FinishReason: "stop"}
	}
	return NewScriptedModelFromResponses(script...)
}

// NewScriptedModelFromResponses creates a model replaying full responses
// (e.g. responses carrying tool calls).
func NewScriptedModelFromResponses(script ...Response) *ScriptedModel {
	return &ScriptedModel{
		info:   Info{Name: "scripted", Provider: "mock", SupportsTools: true},
		script: script,
		errs:   map[int]error{},
	}
}

// FailOn makes the n-th (0-based) call return err instead of a response.
// The scripted response for that slot is not consumed.
func (m *ScriptedModel) FailOn(call int, err error) *ScriptedModel {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.errs[call] = err
	return m
}

// Generate implements Model.
func (m *ScriptedModel) Generate(ctx context.Context, req Request) (<-chan Response, <-chan error) {
	m.mu.Lock()
	call := m.callCount
	m.callCount++
	m.requests = append(m.requests, req)
	if err, ok := m.errs[call]; ok {
		m.mu.Unlock()
		return Fail(err)
	}
	if len(m.script) == 0 {
		m.mu.Unlock()
		return Fail(fmt.Errorf("scripted model exhausted after %d calls", call))
	}
	resp := m.script[0]
	m.script = m.script[1:]
	m.mu.Unlock()

	if resp.Usage == nil {
		resp.Usage = &TokenUsage{InputTokens: 10, OutputTokens: 5}
	}

	return Emit(ctx, req.Stream, resp)
}

// Requests returns a copy of all received requests.
func (m *ScriptedModel) Requests() []Request {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Request(nil), m.requests...)
}

// Calls returns the number of Generate invocations.
func (m *ScriptedModel) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.callCount
}

// Info implements Model.
func (m *ScriptedModel) Info() Info { return m.info }

// Emit returns channels delivering final, preceded by one partial chunk per
// rune of its text when stream is true.
func Emit(ctx context.Context, stream bool, final Response) (<-chan Response, <-chan error) {
	respCh := make(chan Response, 16)
	errCh := make(chan error, 1)

	go func() {
		defer close(respCh)
		defer close(errCh)
		if stream {
			for _, r := range final.Content.Text() {
				select {
				case <-ctx.Done():
					errCh <- ctx.Err()
					return
				case respCh <- Response{
					Partial: true,
					Content: core.NewTextContent(core.RoleAssistant, string(r)),
				}:
				}
			}
		}
		final.Partial = false
		select {
		case <-ctx.Done():
			errCh <- ctx.Err()
		case respCh <- final:
		}
	}()

	return respCh, errCh
}

// Fail returns closed channels carrying a single error.
func Fail(err error) (<-chan Response, <-chan error) {
	respCh := make(chan Response)
	errCh := make(chan error, 1)
	errCh <- err
	close(respCh)
	close(errCh)
	return respCh, errCh
}
