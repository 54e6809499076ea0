// Package builtin holds the tool result types and the tools that ship with
// the dispatch core.
package builtin

// ParameterSchema describes a tool's arguments in JSON Schema form.
type ParameterSchema struct {
	Type       string              `json:"type"`
	Properties map[string]Property `json:"properties,omitempty"`
	Required   []string            `json:"required,omitempty"`
}

// Property describes one tool argument.
type Property struct {
	Type        string `json:"type"`
	Description string `json:"description,omitempty"`
}

// Result statuses.
const (
	StatusOK    = "ok"
	StatusError = "error"
)

// Result is the outcome of one tool execution.
type Result struct {
	Status string         `json:"status"`
	Output map[string]any `json:"output,omitempty"`
}

// OK builds a successful result.
func OK(output map[string]any) *Result {
	return &Result{Status: StatusOK, Output: output}
}
