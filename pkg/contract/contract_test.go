package contract

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRenderScalarsAndStructures(t *testing.T) {
	template := "User said: {{user_message}}\nRetries: {{retry_count}}\nContext: {{fragments}}"
	out := Render(template, map[string]any{
		"user_message": "hello there",
		"retry_count":  2,
		"fragments":    []any{map[string]any{"source": "scan"}},
	})

	assert.Contains(t, out, "User said: hello there")
	assert.Contains(t, out, "Retries: 2")
	assert.Contains(t, out, `[{"source":"scan"}]`)
}

func TestRenderKeepsUnknownPlaceholders(t *testing.T) {
	out := Render("known {{a}} unknown {{missing}}", map[string]any{"a": "x"})
	assert.Equal(t, "known x unknown {{missing}}", out)
}

func TestRenderNilValue(t *testing.T) {
	out := Render("value: {{v}}.", map[string]any{"v": nil})
	assert.Equal(t, "value: .", out)
}

func TestSchemaMissingFields(t *testing.T) {
	s := &Schema{Required: []string{"user_message", "intent"}}
	missing := s.MissingFields(map[string]any{"user_message": "hi"})
	assert.Equal(t, []string{"intent"}, missing)

	var nilSchema *Schema
	assert.Nil(t, nilSchema.MissingFields(map[string]any{}))
}

func TestSchemaValidateJSON(t *testing.T) {
	s := &Schema{
		Required:   []string{"answer"},
		Properties: map[string]Property{"answer": {Type: "string"}},
	}

	assert.Empty(t, s.ValidateJSON([]byte(`{"answer":"forty-two"}`)))

	violations := s.ValidateJSON([]byte(`{"greeting":"hi"}`))
	require.Len(t, violations, 1)
	assert.Contains(t, violations[0], `"answer"`)

	violations = s.ValidateJSON([]byte(`not json at all`))
	require.Len(t, violations, 1)
	assert.Contains(t, violations[0], "not a JSON object")

	violations = s.ValidateJSON([]byte(`{"answer": 42}`))
	require.Len(t, violations, 1)
	assert.Contains(t, violations[0], "expected string")
}

func TestRegistryLoad(t *testing.T) {
	r := NewRegistry()
	r.Register(&Contract{ID: "classify-v1", Template: "classify: {{user_message}}"})

	c, err := r.Load("classify-v1")
	require.NoError(t, err)
	assert.Equal(t, "classify-v1", c.ID)

	_, err = r.Load("unknown")
	assert.Error(t, err)
}

func TestFileLoader(t *testing.T) {
	dir := t.TempDir()
	doc := `
id: synthesize-v1
prompt_pack_id: core
template: |
  Answer the user: {{user_message}}
boundary:
  max_tokens: 4096
  temperature: 0.3
input_schema:
  required: [user_message]
output_schema:
  required: [answer]
  properties:
    answer:
      type: string
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "synthesize-v1.yaml"), []byte(doc), 0o644))

	loader := NewFileLoader(dir)
	c, err := loader.Load("synthesize-v1")
	require.NoError(t, err)
	assert.Equal(t, "core", c.PromptPackID)
	assert.Equal(t, 4096, c.Boundary.MaxTokens)
	assert.InDelta(t, 0.3, c.Boundary.Temperature, 1e-9)
	require.NotNil(t, c.InputSchema)
	assert.Equal(t, []string{"user_message"}, c.InputSchema.Required)
	require.NotNil(t, c.OutputSchema)

	// cache hit returns the same contract
	again, err := loader.Load("synthesize-v1")
	require.NoError(t, err)
	assert.Same(t, c, again)

	_, err = loader.Load("missing-contract")
	assert.Error(t, err)

	_, err = loader.Load("../escape")
	assert.Error(t, err)
}
