// Package workorder defines the atomic unit of cognitive dispatch: a
// contract-bound record handed from the supervisor to the executor, with a
// strict lifecycle and a structural validator. Pure data and pure functions;
// everything stateful lives in the components that operate on it.
package workorder

import (
	"fmt"
	"time"

	"github.com/odvcencio/controlplane/pkg/cost"
	"github.com/odvcencio/controlplane/pkg/errors"
)

// Type classifies the work a dispatch order performs.
type Type string

const (
	TypeClassify   Type = "classify"
	TypeToolCall   Type = "tool_call"
	TypeSynthesize Type = "synthesize"
	TypeExecute    Type = "execute"
)

// Valid reports whether the type is recognized.
func (t Type) Valid() bool {
	switch t {
	case TypeClassify, TypeToolCall, TypeSynthesize, TypeExecute:
		return true
	}
	return false
}

// InvokesLLM reports whether the type drives a gateway conversation and
// therefore must carry a prompt contract.
func (t Type) InvokesLLM() bool {
	switch t {
	case TypeClassify, TypeSynthesize, TypeExecute:
		return true
	}
	return false
}

// State is a work order lifecycle state.
type State string

const (
	StatePlanned    State = "planned"
	StateDispatched State = "dispatched"
	StateExecuting  State = "executing"
	StateCompleted  State = "completed"
	StateFailed     State = "failed"
)

// Terminal reports whether the state is immutable.
func (s State) Terminal() bool {
	return s == StateCompleted || s == StateFailed
}

// TierHO1 is the only execution tier in service today. The field is reserved
// for multi-tier routing.
const TierHO1 = "HO1"

// Constraints bound what the executor may spend on a work order.
type Constraints struct {
	TokenBudget      int      `json:"token_budget,omitempty"`
	TurnLimit        int      `json:"turn_limit,omitempty"`
	PromptContractID string   `json:"prompt_contract_id,omitempty"`
	ToolsAllowed     []string `json:"tools_allowed,omitempty"`
}

// DefaultTurnLimit bounds the executor's conversation loop when the
// constraints leave it unset.
const DefaultTurnLimit = 5

// WorkOrder is one bounded unit of cognitive work.
type WorkOrder struct {
	ID                 string         `json:"id"`
	SessionID          string         `json:"session_id"`
	Type               Type           `json:"type"`
	TierTarget         string         `json:"tier_target"`
	State              State          `json:"state"`
	CreatedAt          time.Time      `json:"created_at"`
	CreatedBy          string         `json:"created_by"`
	ParentID           string         `json:"parent_id,omitempty"`
	InputContext       map[string]any `json:"input_context,omitempty"`
	Constraints        Constraints    `json:"constraints"`
	AcceptanceCriteria map[string]any `json:"acceptance_criteria,omitempty"`
	OutputResult       map[string]any `json:"output_result,omitempty"`
	Error              string         `json:"error,omitempty"`
	CompletedAt        *time.Time     `json:"completed_at,omitempty"`
	Cost               cost.Usage     `json:"cost"`
}

// Option customizes a new work order.
type Option func(*WorkOrder)

// WithInputContext sets the opaque input payload.
func WithInputContext(ctx map[string]any) Option {
	return func(wo *WorkOrder) { wo.InputContext = ctx }
}

// WithConstraints sets budget, turn, contract, and tool bounds.
func WithConstraints(c Constraints) Option {
	return func(wo *WorkOrder) { wo.Constraints = c }
}

// WithAcceptanceCriteria sets the opaque quality-gate payload.
func WithAcceptanceCriteria(criteria map[string]any) Option {
	return func(wo *WorkOrder) { wo.AcceptanceCriteria = criteria }
}

// WithParent links the order to the work order that spawned it.
func WithParent(parentID string) Option {
	return func(wo *WorkOrder) { wo.ParentID = parentID }
}

// FormatID renders the canonical work order identifier for a session
// sequence number.
func FormatID(sessionID string, seq int) string {
	return fmt.Sprintf("WO-%s-%03d", sessionID, seq)
}

// New creates a work order in the planned state. The sequence number comes
// from the caller's per-session counter so identifiers stay monotonic without
// any process-global state.
func New(typ Type, sessionID string, seq int, createdBy string, opts ...Option) (*WorkOrder, error) {
	if !typ.Valid() {
		return nil, errors.Newf(errors.ErrCodeInvalidWorkOrder, "unrecognized work order type %q", typ)
	}
	if sessionID == "" {
		return nil, errors.New(errors.ErrCodeInvalidWorkOrder, "session id is required")
	}
	if createdBy == "" {
		return nil, errors.New(errors.ErrCodeInvalidWorkOrder, "creator identity is required")
	}
	if seq < 1 {
		return nil, errors.Newf(errors.ErrCodeInvalidWorkOrder, "sequence number must be positive, got %d", seq)
	}

	wo := &WorkOrder{
		ID:         FormatID(sessionID, seq),
		SessionID:  sessionID,
		Type:       typ,
		TierTarget: TierHO1,
		State:      StatePlanned,
		CreatedAt:  time.Now().UTC(),
		CreatedBy:  createdBy,
	}
	for _, opt := range opts {
		opt(wo)
	}
	return wo, nil
}

// transitions is the full lifecycle edge table. Terminal states have no
// outgoing edges.
var transitions = map[State][]State{
	StatePlanned:    {StateDispatched, StateFailed},
	StateDispatched: {StateExecuting},
	StateExecuting:  {StateCompleted, StateFailed},
	StateCompleted:  {},
	StateFailed:     {},
}

// executorTargets are the only states an "HO1" actor may enter.
var executorTargets = map[State]bool{
	StateExecuting: true,
	StateCompleted: true,
	StateFailed:    true,
}

// Transition moves a work order to the target state, enforcing both the edge
// table and the actor-tier restriction. On any violation the state is left
// unchanged. Entering a terminal state stamps the completion time.
func Transition(wo *WorkOrder, target State, actor string) error {
	edges, known := transitions[wo.State]
	if !known {
		return errors.Newf(errors.ErrCodeInvalidTransition, "work order %s is in unknown state %q", wo.ID, wo.State)
	}

	if actor == TierHO1 && !executorTargets[target] {
		return errors.Newf(errors.ErrCodeInvalidTransition,
			"actor %s may not move work order %s to %s", actor, wo.ID, target)
	}

	allowed := false
	for _, next := range edges {
		if next == target {
			allowed = true
			break
		}
	}
	if !allowed {
		return errors.Newf(errors.ErrCodeInvalidTransition,
			"no edge from %s to %s for work order %s", wo.State, target, wo.ID)
	}

	wo.State = target
	if target.Terminal() {
		now := time.Now().UTC()
		wo.CompletedAt = &now
	}
	return nil
}

// Validate performs the structural check, independent of lifecycle state.
// It returns every violation, not just the first.
func Validate(wo *WorkOrder) []string {
	var violations []string

	if !wo.Type.Valid() {
		violations = append(violations, fmt.Sprintf("type: unrecognized work order type %q", wo.Type))
	}
	if wo.SessionID == "" {
		violations = append(violations, "session_id: required")
	}
	if wo.CreatedBy == "" {
		violations = append(violations, "created_by: required")
	}
	if wo.Type.InvokesLLM() && wo.Constraints.PromptContractID == "" {
		violations = append(violations, fmt.Sprintf("prompt_contract_id: required for %s work orders", wo.Type))
	}
	if wo.Type == TypeToolCall && len(wo.Constraints.ToolsAllowed) == 0 {
		violations = append(violations, "tools_allowed: tool_call work orders must declare at least one allowed tool")
	}
	if wo.Constraints.TokenBudget < 0 {
		violations = append(violations, fmt.Sprintf("token_budget: declared budget must be strictly positive, got %d", wo.Constraints.TokenBudget))
	}
	if wo.OutputResult != nil && wo.Error != "" {
		violations = append(violations, "output_result and error are mutually exclusive terminal markers")
	}

	return violations
}

// Clone returns a deep copy so the executor can operate without mutating the
// caller's instance.
func (wo *WorkOrder) Clone() *WorkOrder {
	if wo == nil {
		return nil
	}
	out := *wo
	out.InputContext = cloneMap(wo.InputContext)
	out.AcceptanceCriteria = cloneMap(wo.AcceptanceCriteria)
	out.OutputResult = cloneMap(wo.OutputResult)
	if wo.Constraints.ToolsAllowed != nil {
		out.Constraints.ToolsAllowed = append([]string(nil), wo.Constraints.ToolsAllowed...)
	}
	if wo.CompletedAt != nil {
		completed := *wo.CompletedAt
		out.CompletedAt = &completed
	}
	return &out
}

func cloneMap(in map[string]any) map[string]any {
	if in == nil {
		return nil
	}
	out := make(map[string]any, len(in))
	for k, v := range in {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v any) any {
	switch tv := v.(type) {
	case map[string]any:
		return cloneMap(tv)
	case []any:
		out := make([]any, len(tv))
		for i, item := range tv {
			out[i] = cloneValue(item)
		}
		return out
	default:
		return v
	}
}
