package builtin

import "fmt"

// EchoTool returns its input verbatim. It exists so tool_call work orders and
// gateway tool-use loops can be exercised end to end without side effects.
type EchoTool struct{}

// Name returns the tool identifier.
func (t *EchoTool) Name() string { return "echo" }

// Description returns the tool description shown to the model.
func (t *EchoTool) Description() string {
	return "Echo the provided text back unchanged"
}

// Parameters returns the argument schema.
func (t *EchoTool) Parameters() ParameterSchema {
	return ParameterSchema{
		Type: "object",
		Properties: map[string]Property{
			"text": {Type: "string", Description: "Text to echo"},
		},
		Required: []string{"text"},
	}
}

// Execute echoes the text argument.
func (t *EchoTool) Execute(params map[string]any) (*Result, error) {
	text, ok := params["text"].(string)
	if !ok {
		return nil, fmt.Errorf("echo requires a string 'text' argument")
	}
	return OK(map[string]any{"text": text}), nil
}
