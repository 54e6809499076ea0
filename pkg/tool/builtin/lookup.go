package builtin

import "fmt"

// ContextLookupTool reads a key out of a payload the supervisor seeded for
// the work order, letting tool_call orders resolve values from their own
// input context.
type ContextLookupTool struct {
	// Source supplies the payload to look keys up in.
	Source func() map[string]any
}

// Name returns the tool identifier.
func (t *ContextLookupTool) Name() string { return "context_lookup" }

// Description returns the tool description shown to the model.
func (t *ContextLookupTool) Description() string {
	return "Look up a key in the work order's input context"
}

// Parameters returns the argument schema.
func (t *ContextLookupTool) Parameters() ParameterSchema {
	return ParameterSchema{
		Type: "object",
		Properties: map[string]Property{
			"key": {Type: "string", Description: "Context key to resolve"},
		},
		Required: []string{"key"},
	}
}

// Execute resolves the key.
func (t *ContextLookupTool) Execute(params map[string]any) (*Result, error) {
	key, ok := params["key"].(string)
	if !ok {
		return nil, fmt.Errorf("context_lookup requires a string 'key' argument")
	}
	if t.Source == nil {
		return OK(map[string]any{"key": key, "found": false}), nil
	}
	value, found := t.Source()[key]
	return OK(map[string]any{"key": key, "found": found, "value": value}), nil
}
