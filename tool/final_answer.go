package tool

import "github.com/hupe1980/codeagent/core"

// FinalAnswerName is the reserved tool name that terminates an agent run.
const FinalAnswerName = "final_answer"

// NewFinalAnswerTool returns the final_answer tool. Its result is the answer
// itself; agents detect the call by name and stop.
func NewFinalAnswerTool() *FunctionTool {
	return NewFunctionTool(
		FinalAnswerName,
		"Provides a final answer to the given problem.",
		map[string]any{
			"type": "object",
			"properties": map[string]any{
				"answer": map[string]any{
					"type":        "any",
					"description": "The final answer to the problem",
				},
			},
			"required": []string{"answer"},
		},
		func(_ *core.ToolContext, args map[string]any) (any, error) {
			return args["answer"], nil
		},
	)
}
