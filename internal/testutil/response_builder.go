package testutil

import (
	"encoding/json"
	"fmt"

	"github.com/hupe1980/codeagent/core"
	"github.com/hupe1980/codeagent/model"
	"github.com/hupe1980/codeagent/tool"
)

// ResponseBuilder provides a fluent helper for constructing model responses.
// Example:
//
//	r := NewResponseBuilder().Code("add numbers", "print(add(1, 2))").Usage(10, 5).Build()
//
// Chain only the parts you need.
type ResponseBuilder struct {
	text         []string
	calls        []core.FunctionCall
	finishReason string
	usage        *model.TokenUsage
}

// NewResponseBuilder creates an empty builder.
func NewResponseBuilder() *ResponseBuilder { return &ResponseBuilder{} }

// Text appends a text part (chainable).
func (b *ResponseBuilder) Text(t string) *ResponseBuilder {
	b.text = append(b.text, t)
	return b
}

// Code appends a Thought/Code reply in the format the code agent parses (chainable).
func (b *ResponseBuilder) Code(thought, src string) *ResponseBuilder {
	return b.Text(CodeReply(thought, src))
}

// FunctionCall appends a tool call with JSON encoded arguments (chainable).
// An empty id is left for the agent to assign.
func (b *ResponseBuilder) FunctionCall(id, name string, args map[string]any) *ResponseBuilder {
	raw := ""
	if args != nil {
		data, err := json.Marshal(args)
		if err != nil {
			panic(fmt.Sprintf("testutil: marshal arguments of %s: %v", name, err))
		}
		raw = string(data)
	}
	b.calls = append(b.calls, core.FunctionCall{ID: id, Name: name, Arguments: raw})
	b.finishReason = "tool_calls"
	return b
}

// RawFunctionCall appends a tool call with the arguments taken verbatim (chainable).
func (b *ResponseBuilder) RawFunctionCall(id, name, args string) *ResponseBuilder {
	b.calls = append(b.calls, core.FunctionCall{ID: id, Name: name, Arguments: args})
	b.finishReason = "tool_calls"
	return b
}

// FinalAnswer appends a final_answer tool call (chainable).
func (b *ResponseBuilder) FinalAnswer(answer any) *ResponseBuilder {
	return b.FunctionCall("", tool.FinalAnswerName, map[string]any{"answer": answer})
}

// Usage sets the reported token usage (chainable).
func (b *ResponseBuilder) Usage(input, output int) *ResponseBuilder {
	b.usage = &model.TokenUsage{InputTokens: input, OutputTokens: output}
	return b
}

// Build returns the model.Response.
func (b *ResponseBuilder) Build() model.Response {
	parts := make([]core.Part, 0, len(b.text)+len(b.calls))
	for _, t := range b.text {
		parts = append(parts, core.TextPart{Text: t})
	}
	for _, fc := range b.calls {
		parts = append(parts, core.FunctionCallPart{FunctionCall: fc})
	}

	finish := b.finishReason
	if finish == "" {
		finish = "stop"
	}

	return model.Response{
		Content:      core.Content{Role: core.RoleAssistant, Parts: parts},
		FinishReason: finish,
		Usage:        b.usage,
	}
}

// CodeReply formats a Thought/Code reply ending with <end_code>.
func CodeReply(thought, src string) string {
	return "Thought: " + thought + "\nCode:\n```py\n" + src + "\n```<end_code>"
}

// FinalAnswer is shorthand for a response calling final_answer.
func FinalAnswer(answer any) model.Response {
	return NewResponseBuilder().FinalAnswer(answer).Build()
}
