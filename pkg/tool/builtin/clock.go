package builtin

import "time"

// ClockTool reports the current time. Deterministic tests inject Now.
type ClockTool struct {
	// Now overrides the time source; nil means time.Now.
	Now func() time.Time
}

// Name returns the tool identifier.
func (t *ClockTool) Name() string { return "clock" }

// Description returns the tool description shown to the model.
func (t *ClockTool) Description() string {
	return "Report the current UTC time in RFC 3339 form"
}

// Parameters returns the argument schema.
func (t *ClockTool) Parameters() ParameterSchema {
	return ParameterSchema{Type: "object"}
}

// Execute reports the current time.
func (t *ClockTool) Execute(_ map[string]any) (*Result, error) {
	now := time.Now
	if t.Now != nil {
		now = t.Now
	}
	return OK(map[string]any{"now": now().UTC().Format(time.RFC3339)}), nil
}
