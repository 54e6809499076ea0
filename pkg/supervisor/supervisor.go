// Package supervisor owns one conversational turn: classify the intent,
// assemble context, drive a short work order chain through the executor,
// verify the result against the quality gate, and retry or escalate. A turn
// always produces a response; the only fail-open path renders a degradation
// diagnostic instead of propagating a defect.
package supervisor

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/odvcencio/controlplane/pkg/attention"
	"github.com/odvcencio/controlplane/pkg/cost"
	"github.com/odvcencio/controlplane/pkg/executor"
	"github.com/odvcencio/controlplane/pkg/gate"
	"github.com/odvcencio/controlplane/pkg/ledger"
	"github.com/odvcencio/controlplane/pkg/logging"
	"github.com/odvcencio/controlplane/pkg/session"
	"github.com/odvcencio/controlplane/pkg/telemetry"
	"github.com/odvcencio/controlplane/pkg/workorder"
)

// ActorSupervisor is the creator identity stamped on supervisor-issued work
// orders and the actor used for their planning-phase transitions.
const ActorSupervisor = "supervisor"

// Defaults for turn orchestration.
const (
	DefaultMaxRetries      = 2
	DefaultClassifyTokens  = 256
	DefaultSynthesisTokens = 2048

	// synthesize turn limits by agent capability
	toolTurnLimit   = 10
	noToolTurnLimit = 1
)

// Sequencer mints per-session work order sequence numbers.
type Sequencer interface {
	Next(sessionID string) int
}

// Summary is the per-work-order slice of a turn result.
type Summary struct {
	ID    string          `json:"id"`
	Type  workorder.Type  `json:"type"`
	State workorder.State `json:"state"`
	Cost  cost.Usage      `json:"cost"`
}

// TurnResult is everything a caller learns about one handled turn.
type TurnResult struct {
	SessionID         string     `json:"session_id"`
	Response          string     `json:"response"`
	WorkOrders        []Summary  `json:"work_orders"`
	ChainCost         cost.Usage `json:"chain_cost"`
	QualityGatePassed bool       `json:"quality_gate_passed"`
	TraceHash         string     `json:"trace_hash,omitempty"`
	Degraded          bool       `json:"degraded,omitempty"`
}

// Options wires the supervisor's collaborators and turn policy.
type Options struct {
	Runner    executor.Runner
	Sessions  session.Manager
	Sequencer Sequencer
	Attention attention.Service
	Gate      gate.Gate
	Ledger    ledger.Ledger
	Logger    *logging.Logger

	ClassifyContractID   string
	SynthesizeContractID string
	ClassifyTokens       int
	SynthesisTokens      int
	MaxRetries           int
	ToolsAllowed         []string
	AcceptanceCriteria   map[string]any
}

// Supervisor coordinates a turn across its injected collaborators.
type Supervisor struct {
	runner    executor.Runner
	sessions  session.Manager
	seq       Sequencer
	attention attention.Service
	gate      gate.Gate
	audit     ledger.Ledger
	log       *logging.Logger

	classifyContractID   string
	synthesizeContractID string
	classifyTokens       int
	synthesisTokens      int
	maxRetries           int
	toolsAllowed         []string
	criteria             map[string]any
}

// New creates a supervisor, applying defaults for unset policy knobs.
func New(opts Options) *Supervisor {
	s := &Supervisor{
		runner:               opts.Runner,
		sessions:             opts.Sessions,
		seq:                  opts.Sequencer,
		attention:            opts.Attention,
		gate:                 opts.Gate,
		audit:                opts.Ledger,
		log:                  opts.Logger,
		classifyContractID:   opts.ClassifyContractID,
		synthesizeContractID: opts.SynthesizeContractID,
		classifyTokens:       opts.ClassifyTokens,
		synthesisTokens:      opts.SynthesisTokens,
		maxRetries:           opts.MaxRetries,
		toolsAllowed:         opts.ToolsAllowed,
		criteria:             opts.AcceptanceCriteria,
	}
	if s.classifyTokens <= 0 {
		s.classifyTokens = DefaultClassifyTokens
	}
	if s.synthesisTokens <= 0 {
		s.synthesisTokens = DefaultSynthesisTokens
	}
	if s.maxRetries < 0 {
		s.maxRetries = 0
	} else if opts.MaxRetries == 0 {
		s.maxRetries = DefaultMaxRetries
	}
	if s.criteria == nil {
		s.criteria = map[string]any{gate.CriterionRequiredFields: []any{"response_text"}}
	}
	return s
}

// HandleTurn drives one user message to a response. It never returns nil and
// never panics outward; a defect from the dispatch path degrades the turn
// instead.
func (s *Supervisor) HandleTurn(ctx context.Context, sessionID, message string) *TurnResult {
	started := time.Now()
	defer func() { telemetry.ObserveTurn(time.Since(started)) }()

	turn := &turnState{}

	// 1. ensure a session
	if sessionID == "" {
		id, err := s.sessions.StartSession(ctx)
		if err != nil {
			return s.degrade(ctx, turn, "", fmt.Errorf("session start failed: %w", err))
		}
		sessionID = id
		s.writeEvent(ctx, ledger.Entry{
			EventType:    ledger.EventSessionStarted,
			SubmissionID: sessionID,
			SessionID:    sessionID,
		})
	}

	// 2. classify with a hard single-turn bound
	classifyWO, err := workorder.New(workorder.TypeClassify, sessionID, s.seq.Next(sessionID), ActorSupervisor,
		workorder.WithInputContext(map[string]any{"message": message}),
		workorder.WithConstraints(workorder.Constraints{
			TokenBudget:      s.classifyTokens,
			TurnLimit:        1,
			PromptContractID: s.classifyContractID,
		}),
	)
	if err != nil {
		return s.degrade(ctx, turn, sessionID, fmt.Errorf("classify work order invalid: %w", err))
	}
	classified, derr := s.runner.Execute(ctx, classifyWO)
	if derr != nil {
		return s.degrade(ctx, turn, sessionID, derr)
	}
	turn.record(classified)

	classification := classified.OutputResult
	if classified.State == workorder.StateFailed {
		// Synthesis proceeds without a classification rather than losing
		// the turn.
		classification = map[string]any{"error": classified.Error}
	}

	// 3. context assembly: both probes fan out concurrently
	fragments := s.gatherContext(ctx, sessionID)

	baseInput := map[string]any{
		"message":           message,
		"classification":    classification,
		"context_fragments": fragments,
	}

	// 4–6. synthesize, gate, retry, escalate
	final, decision := s.synthesizeLoop(ctx, turn, sessionID, baseInput)
	if turn.degraded != nil {
		return s.degrade(ctx, turn, sessionID, turn.degraded)
	}

	telemetry.RecordGateDecision(string(decision.Verdict))
	if !decision.Accepted() {
		telemetry.RecordEscalation()
		s.writeEvent(ctx, ledger.Entry{
			EventType:    ledger.EventEscalation,
			SubmissionID: final.ID,
			SessionID:    sessionID,
			Decision:     string(decision.Verdict),
			Reason:       decision.Reason,
			Metadata:     map[string]any{"attempts": s.maxRetries + 1},
		})
		if s.log != nil {
			_ = s.log.Warn(logging.CategorySupervisor, "quality_gate_escalation", decision.Reason, map[string]any{
				"session_id":    sessionID,
				"work_order_id": final.ID,
			})
		}
	}

	// 7. provenance: trace hash, chain events, cost fold, turn record
	traceHash := s.sealChain(ctx, turn, sessionID, final, decision)
	response := renderResponse(final.OutputResult)

	if err := s.sessions.FoldCost(ctx, sessionID, turn.chainCost); err != nil && s.log != nil {
		_ = s.log.Error(logging.CategorySession, "cost_fold_failed", err.Error(), map[string]any{"session_id": sessionID})
	}
	if err := s.sessions.AddTurn(ctx, sessionID, message, response); err != nil && s.log != nil {
		_ = s.log.Error(logging.CategorySession, "turn_record_failed", err.Error(), map[string]any{"session_id": sessionID})
	}

	// 8. the turn result
	return &TurnResult{
		SessionID:         sessionID,
		Response:          response,
		WorkOrders:        turn.summaries,
		ChainCost:         turn.chainCost,
		QualityGatePassed: decision.Accepted(),
		TraceHash:         traceHash,
	}
}

// turnState accumulates the chain as it is built.
type turnState struct {
	summaries []Summary
	chainCost cost.Usage
	degraded  error
}

func (t *turnState) record(wo *workorder.WorkOrder) {
	t.summaries = append(t.summaries, Summary{ID: wo.ID, Type: wo.Type, State: wo.State, Cost: wo.Cost})
	t.chainCost.Fold(wo.Cost)
}

func (t *turnState) workOrderIDs() []string {
	ids := make([]string, len(t.summaries))
	for i, s := range t.summaries {
		ids[i] = s.ID
	}
	return ids
}

// gatherContext fans out the horizontal scan and priority probe. A failed
// probe costs context, not the turn.
func (s *Supervisor) gatherContext(ctx context.Context, sessionID string) []any {
	var history, pinned []attention.Fragment

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		frags, err := s.attention.HorizontalScan(gctx, sessionID)
		history = frags
		return err
	})
	g.Go(func() error {
		frags, err := s.attention.PriorityProbe(gctx)
		pinned = frags
		return err
	})
	if err := g.Wait(); err != nil && s.log != nil {
		_ = s.log.Warn(logging.CategorySupervisor, "context_retrieval_failed", err.Error(), map[string]any{
			"session_id": sessionID,
		})
	}

	fragments := make([]any, 0, len(pinned)+len(history))
	for _, f := range pinned {
		fragments = append(fragments, fragmentPayload(f))
	}
	for _, f := range history {
		fragments = append(fragments, fragmentPayload(f))
	}
	return fragments
}

func fragmentPayload(f attention.Fragment) map[string]any {
	return map[string]any{
		"id":      f.ID,
		"source":  f.Source,
		"content": f.Content,
	}
}

// synthesizeLoop dispatches synthesize work orders until the gate accepts or
// retries are exhausted. Only the final attempt's result matters; every
// attempt is costed and summarized.
func (s *Supervisor) synthesizeLoop(ctx context.Context, turn *turnState, sessionID string, baseInput map[string]any) (*workorder.WorkOrder, gate.Decision) {
	turnLimit := noToolTurnLimit
	if len(s.toolsAllowed) > 0 {
		turnLimit = toolTurnLimit
	}

	var final *workorder.WorkOrder
	var decision gate.Decision

	attempts := s.maxRetries + 1
	rejectionReason := ""
	for attempt := 0; attempt < attempts; attempt++ {
		input := make(map[string]any, len(baseInput)+2)
		for k, v := range baseInput {
			input[k] = v
		}
		if attempt > 0 {
			input["rejection_reason"] = rejectionReason
			input["retry_count"] = attempt
		}

		wo, err := workorder.New(workorder.TypeSynthesize, sessionID, s.seq.Next(sessionID), ActorSupervisor,
			workorder.WithInputContext(input),
			workorder.WithConstraints(workorder.Constraints{
				TokenBudget:      s.synthesisTokens,
				TurnLimit:        turnLimit,
				PromptContractID: s.synthesizeContractID,
				ToolsAllowed:     s.toolsAllowed,
			}),
			workorder.WithAcceptanceCriteria(s.criteria),
		)
		if err != nil {
			turn.degraded = fmt.Errorf("synthesize work order invalid: %w", err)
			return nil, gate.Decision{}
		}

		result, derr := s.runner.Execute(ctx, wo)
		if derr != nil {
			turn.degraded = derr
			return nil, gate.Decision{}
		}
		turn.record(result)

		// A failed dispatch still feeds the gate a response-shaped
		// structure; its rejection drives the ordinary retry loop.
		if result.State == workorder.StateFailed && result.Error != "" {
			result.OutputResult = map[string]any{
				"response_text": fmt.Sprintf("[Error: %s]", result.Error),
				"error":         result.Error,
			}
		}

		decision = s.verify(ctx, result)
		final = result
		if decision.Accepted() {
			break
		}
		rejectionReason = decision.Reason

		if s.log != nil {
			_ = s.log.Info(logging.CategoryGate, "quality_gate_rejected", decision.Reason, map[string]any{
				"session_id":    sessionID,
				"work_order_id": result.ID,
				"attempt":       attempt + 1,
			})
		}
	}

	return final, decision
}

// verify runs the quality gate; a gate defect rejects rather than crashes.
func (s *Supervisor) verify(ctx context.Context, wo *workorder.WorkOrder) gate.Decision {
	decision, err := s.gate.Verify(ctx, wo.OutputResult, wo.AcceptanceCriteria, wo.ID)
	if err != nil {
		return gate.Decision{Verdict: gate.VerdictReject, Reason: fmt.Sprintf("quality gate error: %v", err)}
	}
	return decision
}

// sealChain computes the trace hash over this chain's ledger entries and
// emits the chain-complete and gate-decision events referencing it.
func (s *Supervisor) sealChain(ctx context.Context, turn *turnState, sessionID string, final *workorder.WorkOrder, decision gate.Decision) string {
	entries, err := s.audit.Entries(ctx, ledger.Filter{
		SessionID:    sessionID,
		WorkOrderIDs: turn.workOrderIDs(),
	})
	if err != nil {
		if s.log != nil {
			_ = s.log.Error(logging.CategoryLedger, "trace_read_failed", err.Error(), map[string]any{"session_id": sessionID})
		}
		return ""
	}
	traceHash := ledger.TraceHash(entries)

	s.writeEvent(ctx, ledger.Entry{
		EventType:    ledger.EventChainComplete,
		SubmissionID: final.ID,
		SessionID:    sessionID,
		Metadata: map[string]any{
			"trace_hash":     traceHash,
			"work_order_ids": turn.workOrderIDs(),
			"total_tokens":   turn.chainCost.TotalTokens,
		},
	})
	s.writeEvent(ctx, ledger.Entry{
		EventType:    ledger.EventQualityGateDecision,
		SubmissionID: final.ID,
		SessionID:    sessionID,
		Decision:     string(decision.Verdict),
		Reason:       decision.Reason,
		Metadata:     map[string]any{"trace_hash": traceHash},
	})
	return traceHash
}

// degrade is the single fail-open path: log, audit with the governance flag,
// and hand back a diagnostic response.
func (s *Supervisor) degrade(ctx context.Context, turn *turnState, sessionID string, cause error) *TurnResult {
	telemetry.RecordDegradation()
	s.writeEvent(ctx, ledger.Entry{
		EventType:    ledger.EventDegradation,
		SubmissionID: sessionID,
		SessionID:    sessionID,
		Decision:     "degraded",
		Reason:       cause.Error(),
		Metadata:     map[string]any{"governance_violation": true},
	})
	if s.log != nil {
		_ = s.log.Error(logging.CategorySupervisor, "turn_degraded", cause.Error(), map[string]any{
			"session_id":           sessionID,
			"governance_violation": true,
		})
	}
	return &TurnResult{
		SessionID:  sessionID,
		Response:   fmt.Sprintf("[Degradation: %v]", cause),
		WorkOrders: turn.summaries,
		ChainCost:  turn.chainCost,
		Degraded:   true,
	}
}

func (s *Supervisor) writeEvent(ctx context.Context, entry ledger.Entry) {
	if s.audit == nil {
		return
	}
	if _, err := s.audit.Write(ctx, entry); err != nil && s.log != nil {
		_ = s.log.Error(logging.CategoryLedger, "ledger_write_failed", err.Error(), map[string]any{
			"event_type": entry.EventType,
		})
	}
}

// renderResponse extracts the user-facing text from a terminal output.
func renderResponse(output map[string]any) string {
	if output == nil {
		return ""
	}
	if text, ok := output["response_text"].(string); ok && text != "" {
		return text
	}
	raw, err := json.Marshal(output)
	if err != nil {
		return fmt.Sprintf("%v", output)
	}
	return string(raw)
}
