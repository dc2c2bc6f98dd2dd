package tool

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/hupe1980/codeagent/core"
	"github.com/hupe1980/codeagent/internal/util"
	"github.com/hupe1980/codeagent/model"
)

var (
	// ErrDuplicate is returned when registering a tool whose name is taken.
	ErrDuplicate = errors.New("tool already registered")
	// ErrNotFound is returned when looking up an unknown tool.
	ErrNotFound = errors.New("tool not found")
)

// Registry is an ordered, concurrency-safe set of tools keyed by name.
type Registry struct {
	mu    sync.RWMutex
	order []string
	tools map[string]Tool
}

// NewRegistry creates a registry populated with tools.
func NewRegistry(tools ...Tool) (*Registry, error) {
	r := &Registry{tools: map[string]Tool{}}
	for _, t := range tools {
		if err := r.Register(t); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// Register adds t; names must be unique.
func (r *Registry) Register(t Tool) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	name := t.Name()
	if _, exists := r.tools[name]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicate, name)
	}

	r.tools[name] = t
	r.order = append(r.order, name)

	return nil
}

// Get returns the tool registered under name.
func (r *Registry) Get(name string) (Tool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	t, ok := r.tools[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, name)
	}

	return t, nil
}

// Has reports whether name is registered.
func (r *Registry) Has(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.tools[name]
	return ok
}

// List returns tools in registration order.
func (r *Registry) List() []Tool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Tool, 0, len(r.order))
	for _, n := range r.order {
		out = append(out, r.tools[n])
	}

	return out
}

// Names returns tool names in registration order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]string(nil), r.order...)
}

// Definitions converts all tools into model function definitions.
func (r *Registry) Definitions() []model.ToolDefinition {
	tools := r.List()
	defs := make([]model.ToolDefinition, 0, len(tools))
	for _, t := range tools {
		defs = append(defs, model.ToolDefinition{
			Type: "function",
			Function: model.FunctionDefinition{
				Name:        t.Name(),
				Description: t.Description(),
				Parameters:  t.Parameters(),
			},
		})
	}
	return defs
}

// Call looks up name and invokes it. Unknown tools yield a NOT_FOUND
// *ToolError listing the available names.
func (r *Registry) Call(toolCtx *core.ToolContext, name string, args map[string]any) (any, error) {
	t, err := r.Get(name)
	if err != nil {
		return nil, &ToolError{
			Tool:    name,
			Message: fmt.Sprintf("unknown tool %q, should be one of: %s", name, strings.Join(r.Names(), ", ")),
			Code:    CodeNotFound,
		}
	}

	if args == nil {
		args = map[string]any{}
	}

	return t.Call(toolCtx, args)
}

// Signature renders t as a Python function stub with a docstring, the form
// code agents see tools in their system prompt.
func Signature(t Tool) string {
	props := util.Properties(t.Parameters())

	params := make([]string, 0, len(props))
	for _, p := range props {
		if p.Required {
			params = append(params, fmt.Sprintf("%s: %s", p.Name, p.Type))
			continue
		}
		params = append(params, fmt.Sprintf("%s: %s = None", p.Name, p.Type))
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "def %s(%s) -> any:\n", t.Name(), strings.Join(params, ", "))
	fmt.Fprintf(&sb, "    \"\"\"%s\n", strings.TrimSpace(t.Description()))
	if len(props) > 0 {
		sb.WriteString("\n    Args:\n")
		for _, p := range props {
			fmt.Fprintf(&sb, "        %s: %s\n", p.Name, p.Description)
		}
	}
	sb.WriteString("    \"\"\"")

	return sb.String()
}

// ParamNames returns the parameter names of t in signature order, used to map
// positional Python arguments onto named tool arguments.
func ParamNames(t Tool) []string {
	props := util.Properties(t.Parameters())
	names := make([]string, len(props))
	for i, p := range props {
		names[i] = p.Name
	}
	return names
}
