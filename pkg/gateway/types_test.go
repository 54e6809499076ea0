package gateway

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStructuredPayloadToolUses(t *testing.T) {
	resp := &Response{
		Outcome: OutcomeSuccess,
		ContentBlocks: []ContentBlock{
			{Type: "text", Text: "Let me check."},
			{Type: "tool_use", ID: "tu-1", Name: "echo", Input: map[string]any{"text": "hi"}},
			{Type: "tool_use", ID: "tu-2", Name: "clock"},
		},
	}

	payload := resp.Payload()
	structured, ok := payload.(Structured)
	require.True(t, ok, "block responses should select the structured variant")

	uses := structured.ToolUses()
	require.Len(t, uses, 2)
	assert.Equal(t, "echo", uses[0].Name)
	assert.Equal(t, map[string]any{"text": "hi"}, uses[0].Arguments)
	assert.NotNil(t, uses[1].Arguments, "missing input should become an empty argument map")

	assert.Equal(t, "Let me check.", payload.FinalText())
}

func TestRawPayloadToolUses(t *testing.T) {
	resp := &Response{
		Outcome: OutcomeSuccess,
		Content: `{"tool_calls":[{"id":"tu-1","name":"echo","arguments":{"text":"hi"}}]}`,
	}

	payload := resp.Payload()
	raw, ok := payload.(Raw)
	require.True(t, ok, "content-only responses should select the raw variant")

	uses := raw.ToolUses()
	require.Len(t, uses, 1)
	assert.Equal(t, "echo", uses[0].Name)
}

func TestRawPayloadPlainText(t *testing.T) {
	payload := (&Response{Content: "The answer is 42."}).Payload()
	assert.Empty(t, payload.ToolUses())
	assert.Equal(t, "The answer is 42.", payload.FinalText())
}

func TestRawPayloadJSONWithoutEnvelope(t *testing.T) {
	payload := (&Response{Content: `{"answer":"42"}`}).Payload()
	assert.Empty(t, payload.ToolUses(), "ordinary JSON output is not tool use")
}

func TestRawPayloadMalformedJSON(t *testing.T) {
	payload := (&Response{Content: `{"tool_calls": [`}).Payload()
	assert.Empty(t, payload.ToolUses())
}
