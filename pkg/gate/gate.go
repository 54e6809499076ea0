// Package gate verifies work order output against caller-supplied
// acceptance criteria before a turn's result is accepted.
package gate

import (
	"context"
	"fmt"
	"sort"
	"strings"
)

// Verdict is the outcome of a quality check.
type Verdict string

const (
	VerdictAccept Verdict = "accept"
	VerdictReject Verdict = "reject"
)

// Decision carries the verdict and, on rejection, the reason.
type Decision struct {
	Verdict Verdict `json:"verdict"`
	Reason  string  `json:"reason,omitempty"`
}

// Accepted reports whether the decision passes the gate.
func (d Decision) Accepted() bool {
	return d.Verdict == VerdictAccept
}

// Gate is the quality gate contract the supervisor consumes.
type Gate interface {
	Verify(ctx context.Context, output map[string]any, criteria map[string]any, workOrderID string) (Decision, error)
}

// Criteria keys understood by CriteriaGate. Unknown keys are ignored so
// callers can attach bookkeeping to acceptance criteria without tripping
// the gate.
const (
	CriterionRequiredFields   = "required_fields"
	CriterionMinResponseChars = "min_response_chars"
	CriterionAllowDiagnostics = "allow_diagnostics"
)

// CriteriaGate checks output structure and response length against the
// acceptance criteria attached to a work order.
type CriteriaGate struct{}

// NewCriteriaGate creates the default gate.
func NewCriteriaGate() *CriteriaGate {
	return &CriteriaGate{}
}

// Verify implements Gate. Nil output is always rejected; empty criteria
// accept anything else that is not an embedded error diagnostic.
func (g *CriteriaGate) Verify(_ context.Context, output map[string]any, criteria map[string]any, workOrderID string) (Decision, error) {
	if output == nil {
		return Decision{Verdict: VerdictReject, Reason: fmt.Sprintf("work order %s produced no output", workOrderID)}, nil
	}

	responseText, _ := output["response_text"].(string)

	if !allowDiagnostics(criteria) && strings.Contains(responseText, "[Error:") {
		return Decision{Verdict: VerdictReject, Reason: "response contains an embedded error diagnostic"}, nil
	}

	if missing := missingFields(output, criteria); len(missing) > 0 {
		return Decision{
			Verdict: VerdictReject,
			Reason:  fmt.Sprintf("output missing required fields: %s", strings.Join(missing, ", ")),
		}, nil
	}

	if minChars := minResponseChars(criteria); minChars > 0 {
		if got := len([]rune(responseText)); got < minChars {
			return Decision{
				Verdict: VerdictReject,
				Reason:  fmt.Sprintf("response_text has %d characters, need at least %d", got, minChars),
			}, nil
		}
	}

	return Decision{Verdict: VerdictAccept}, nil
}

func allowDiagnostics(criteria map[string]any) bool {
	allowed, _ := criteria[CriterionAllowDiagnostics].(bool)
	return allowed
}

func missingFields(output, criteria map[string]any) []string {
	raw, ok := criteria[CriterionRequiredFields]
	if !ok {
		return nil
	}

	var required []string
	switch fields := raw.(type) {
	case []string:
		required = fields
	case []any:
		for _, f := range fields {
			if name, ok := f.(string); ok {
				required = append(required, name)
			}
		}
	}

	var missing []string
	for _, name := range required {
		if _, ok := output[name]; !ok {
			missing = append(missing, name)
		}
	}
	sort.Strings(missing)
	return missing
}

func minResponseChars(criteria map[string]any) int {
	switch v := criteria[CriterionMinResponseChars].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	}
	return 0
}
