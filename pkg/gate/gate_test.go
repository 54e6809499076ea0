package gate

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVerifyNilOutputRejected(t *testing.T) {
	g := NewCriteriaGate()
	d, err := g.Verify(context.Background(), nil, nil, "WO-test-001")
	require.NoError(t, err)
	assert.Equal(t, VerdictReject, d.Verdict)
	assert.Contains(t, d.Reason, "WO-test-001")
}

func TestVerifyEmptyCriteriaAccepts(t *testing.T) {
	g := NewCriteriaGate()
	d, err := g.Verify(context.Background(), map[string]any{"response_text": "fine"}, nil, "WO-test-001")
	require.NoError(t, err)
	assert.True(t, d.Accepted())
	assert.Empty(t, d.Reason)
}

func TestVerifyRequiredFields(t *testing.T) {
	g := NewCriteriaGate()
	criteria := map[string]any{
		CriterionRequiredFields: []any{"response_text", "summary", "confidence"},
	}
	output := map[string]any{"response_text": "hello"}

	d, err := g.Verify(context.Background(), output, criteria, "WO-test-002")
	require.NoError(t, err)
	assert.Equal(t, VerdictReject, d.Verdict)
	assert.Contains(t, d.Reason, "confidence")
	assert.Contains(t, d.Reason, "summary")

	output["summary"] = "s"
	output["confidence"] = 0.9
	d, err = g.Verify(context.Background(), output, criteria, "WO-test-002")
	require.NoError(t, err)
	assert.True(t, d.Accepted())
}

func TestVerifyRequiredFieldsStringSlice(t *testing.T) {
	g := NewCriteriaGate()
	criteria := map[string]any{CriterionRequiredFields: []string{"answer"}}

	d, err := g.Verify(context.Background(), map[string]any{"response_text": "x"}, criteria, "wo")
	require.NoError(t, err)
	assert.Equal(t, VerdictReject, d.Verdict)
}

func TestVerifyMinResponseChars(t *testing.T) {
	g := NewCriteriaGate()
	criteria := map[string]any{CriterionMinResponseChars: 10}

	d, err := g.Verify(context.Background(), map[string]any{"response_text": "short"}, criteria, "wo")
	require.NoError(t, err)
	assert.Equal(t, VerdictReject, d.Verdict)
	assert.Contains(t, d.Reason, "at least 10")

	d, err = g.Verify(context.Background(), map[string]any{"response_text": "long enough now"}, criteria, "wo")
	require.NoError(t, err)
	assert.True(t, d.Accepted())
}

func TestVerifyMinResponseCharsFromJSONNumber(t *testing.T) {
	// Criteria that round-tripped through JSON carry float64 numbers.
	g := NewCriteriaGate()
	criteria := map[string]any{CriterionMinResponseChars: float64(3)}

	d, err := g.Verify(context.Background(), map[string]any{"response_text": "ok"}, criteria, "wo")
	require.NoError(t, err)
	assert.Equal(t, VerdictReject, d.Verdict)
}

func TestVerifyEmbeddedDiagnostics(t *testing.T) {
	g := NewCriteriaGate()
	output := map[string]any{"response_text": "[Error: gateway_error: upstream unavailable]"}

	d, err := g.Verify(context.Background(), output, nil, "wo")
	require.NoError(t, err)
	assert.Equal(t, VerdictReject, d.Verdict)

	d, err = g.Verify(context.Background(), output, map[string]any{CriterionAllowDiagnostics: true}, "wo")
	require.NoError(t, err)
	assert.True(t, d.Accepted())
}
