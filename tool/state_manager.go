package tool

import (
	"fmt"
	"sort"

	"github.com/hupe1980/codeagent/core"
)

// StateToolName is the registered name of the run state tool.
const StateToolName = "run_state"

// StateTool lets an agent keep notes across steps and persist text artifacts.
// Values live in the run scoped state of core.RunContext, so they are shared
// with other tools of the same run and discarded when the run ends.
type StateTool struct{}

// NewStateTool creates the run state tool.
func NewStateTool() *StateTool { return &StateTool{} }

// Name implements Tool.
func (t *StateTool) Name() string { return StateToolName }

// Description implements Tool.
func (t *StateTool) Description() string {
	return "Stores and reads run scoped notes and saves text artifacts. " +
		"Operations: get_state, set_state, list_state, save_artifact."
}

// Parameters implements Tool.
func (t *StateTool) Parameters() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"operation": map[string]any{
				"type":        "string",
				"enum":        []string{"get_state", "set_state", "list_state", "save_artifact"},
				"description": "The operation to perform",
			},
			"key": map[string]any{
				"type":        "string",
				"description": "State key (get_state, set_state) or artifact id (save_artifact)",
			},
			"value": map[string]any{
				"type":        "any",
				"description": "Value to store (set_state) or text content (save_artifact)",
			},
		},
		"required": []string{"operation"},
	}
}

// Call implements Tool.
func (t *StateTool) Call(toolCtx *core.ToolContext, args map[string]any) (any, error) {
	operation, _ := args["operation"].(string)
	key, _ := args["key"].(string)

	switch operation {
	case "get_state":
		if key == "" {
			return nil, NewToolError(StateToolName, "key is required for get_state", CodeValidation)
		}
		value, exists := toolCtx.GetState(key)
		return map[string]any{"key": key, "exists": exists, "value": value}, nil
	case "set_state":
		if key == "" {
			return nil, NewToolError(StateToolName, "key is required for set_state", CodeValidation)
		}
		toolCtx.SetState(key, args["value"])
		return map[string]any{"key": key, "success": true}, nil
	case "list_state":
		state := toolCtx.RunContext().State()
		keys := make([]string, 0, len(state))
		for k := range state {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		return keys, nil
	case "save_artifact":
		if key == "" {
			return nil, NewToolError(StateToolName, "key is required for save_artifact", CodeValidation)
		}
		text, ok := args["value"].(string)
		if !ok {
			text = fmt.Sprintf("%v", args["value"])
		}
		if err := toolCtx.SaveArtifact(key, []byte(text)); err != nil {
			return nil, NewToolError(StateToolName, fmt.Sprintf("failed to save artifact: %v", err), CodeExecution)
		}
		return map[string]any{"artifact_id": key, "size": len(text), "success": true}, nil
	default:
		return nil, NewToolError(StateToolName, fmt.Sprintf("unknown operation: %s", operation), CodeValidation)
	}
}
