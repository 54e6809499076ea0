// Package contract loads prompt contracts: named bindings of a prompt
// template to input/output schemas and a generation boundary.
package contract

import (
	"encoding/json"
	"fmt"
	"regexp"
	"sort"
)

// Boundary bounds generation for every call made under a contract.
type Boundary struct {
	MaxTokens   int     `yaml:"max_tokens" json:"max_tokens"`
	Temperature float64 `yaml:"temperature" json:"temperature"`
}

// Property describes one schema field.
type Property struct {
	Type        string `yaml:"type" json:"type"`
	Description string `yaml:"description,omitempty" json:"description,omitempty"`
}

// Schema is the subset of JSON Schema the dispatch core enforces: required
// fields with optional per-field types.
type Schema struct {
	Required   []string            `yaml:"required" json:"required"`
	Properties map[string]Property `yaml:"properties,omitempty" json:"properties,omitempty"`
}

// MissingFields returns every required field absent from the payload.
func (s *Schema) MissingFields(payload map[string]any) []string {
	if s == nil {
		return nil
	}
	var missing []string
	for _, field := range s.Required {
		if _, ok := payload[field]; !ok {
			missing = append(missing, field)
		}
	}
	return missing
}

// ValidateJSON checks raw content against the schema. It returns every
// violation; a non-object or unparseable document is itself a violation.
func (s *Schema) ValidateJSON(raw []byte) []string {
	if s == nil {
		return nil
	}
	var payload map[string]any
	if err := json.Unmarshal(raw, &payload); err != nil {
		return []string{fmt.Sprintf("content is not a JSON object: %v", err)}
	}
	return s.Validate(payload)
}

// Validate checks a decoded payload against the schema.
func (s *Schema) Validate(payload map[string]any) []string {
	if s == nil {
		return nil
	}
	var violations []string
	for _, field := range s.MissingFields(payload) {
		violations = append(violations, fmt.Sprintf("missing required field %q", field))
	}
	for name, prop := range s.Properties {
		value, ok := payload[name]
		if !ok || prop.Type == "" {
			continue
		}
		if !matchesType(value, prop.Type) {
			violations = append(violations, fmt.Sprintf("field %q: expected %s", name, prop.Type))
		}
	}
	sort.Strings(violations)
	return violations
}

func matchesType(value any, typ string) bool {
	switch typ {
	case "string":
		_, ok := value.(string)
		return ok
	case "number":
		switch value.(type) {
		case float64, int, int64:
			return true
		}
		return false
	case "boolean":
		_, ok := value.(bool)
		return ok
	case "object":
		_, ok := value.(map[string]any)
		return ok
	case "array":
		_, ok := value.([]any)
		return ok
	default:
		return true
	}
}

// Contract binds a prompt template to its schemas and boundary.
type Contract struct {
	ID           string   `yaml:"id" json:"id"`
	PromptPackID string   `yaml:"prompt_pack_id" json:"prompt_pack_id"`
	Template     string   `yaml:"template" json:"template"`
	Boundary     Boundary `yaml:"boundary" json:"boundary"`
	InputSchema  *Schema  `yaml:"input_schema,omitempty" json:"input_schema,omitempty"`
	OutputSchema *Schema  `yaml:"output_schema,omitempty" json:"output_schema,omitempty"`
}

var placeholderPattern = regexp.MustCompile(`\{\{\s*([a-zA-Z0-9_.:-]+)\s*\}\}`)

// Render substitutes {{key}} placeholders from the input context. Scalars are
// substituted verbatim; structures are serialized as JSON. Unknown keys keep
// their placeholder so the gap is visible downstream.
func Render(template string, input map[string]any) string {
	return placeholderPattern.ReplaceAllStringFunc(template, func(match string) string {
		key := placeholderPattern.FindStringSubmatch(match)[1]
		value, ok := input[key]
		if !ok {
			return match
		}
		switch tv := value.(type) {
		case string:
			return tv
		case nil:
			return ""
		case bool, int, int64, float64:
			return fmt.Sprintf("%v", tv)
		default:
			data, err := json.Marshal(tv)
			if err != nil {
				return fmt.Sprintf("%v", tv)
			}
			return string(data)
		}
	})
}
