// Package tool provides the tool registry the executor dispatches through.
package tool

import (
	"github.com/odvcencio/controlplane/pkg/tool/builtin"
)

// Tool represents a tool that can be called by the LLM or run directly by a
// tool_call work order.
type Tool interface {
	Name() string
	Description() string
	Parameters() builtin.ParameterSchema
	Execute(params map[string]any) (*builtin.Result, error)
}

// Dispatcher is the narrow surface the executor consumes: run a tool by id
// and enumerate API tool definitions.
type Dispatcher interface {
	Execute(toolID string, arguments map[string]any) (*builtin.Result, error)
	Definitions() []map[string]any
}

// ToFunctionDefinition converts a tool to the function-calling definition
// shape the gateway forwards to providers.
func ToFunctionDefinition(t Tool) map[string]any {
	return map[string]any{
		"type": "function",
		"function": map[string]any{
			"name":        t.Name(),
			"description": t.Description(),
			"parameters":  t.Parameters(),
		},
	}
}
