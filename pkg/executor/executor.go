// Package executor drives a single work order to a terminal state: contract
// resolution, a bounded tool-calling conversation against the gateway, and
// output validation. Every modeled failure becomes a terminal failed work
// order; the only non-nil error Execute returns is a recovered defect.
package executor

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/odvcencio/controlplane/pkg/budget"
	"github.com/odvcencio/controlplane/pkg/contract"
	"github.com/odvcencio/controlplane/pkg/cost"
	"github.com/odvcencio/controlplane/pkg/errors"
	"github.com/odvcencio/controlplane/pkg/gateway"
	"github.com/odvcencio/controlplane/pkg/ledger"
	"github.com/odvcencio/controlplane/pkg/logging"
	"github.com/odvcencio/controlplane/pkg/telemetry"
	"github.com/odvcencio/controlplane/pkg/tool"
	"github.com/odvcencio/controlplane/pkg/tool/builtin"
	"github.com/odvcencio/controlplane/pkg/workorder"
)

// Runner is the narrow dispatch surface the supervisor consumes.
type Runner interface {
	Execute(ctx context.Context, order *workorder.WorkOrder) (*workorder.WorkOrder, error)
}

// Options wires the executor's collaborators. Contracts, Gateway, and Ledger
// are required for LLM work orders; Budgeter and Tools are optional.
type Options struct {
	Contracts contract.Loader
	Gateway   gateway.Gateway
	Budgeter  budget.Budgeter
	Tools     tool.Dispatcher
	Ledger    ledger.Writer
	Logger    *logging.Logger
	Model     string
}

// Executor runs work orders against its injected collaborators.
type Executor struct {
	contracts contract.Loader
	gateway   gateway.Gateway
	budgeter  budget.Budgeter
	tools     tool.Dispatcher
	audit     ledger.Writer
	log       *logging.Logger
	model     string
}

// New creates an executor.
func New(opts Options) *Executor {
	return &Executor{
		contracts: opts.Contracts,
		gateway:   opts.Gateway,
		budgeter:  opts.Budgeter,
		tools:     opts.Tools,
		audit:     opts.Ledger,
		log:       opts.Logger,
		model:     opts.Model,
	}
}

// Execute drives one work order to completion or failure. It operates on a
// clone; the caller's instance is never mutated. Modeled failures return a
// terminal failed work order and a nil error. A panic out of a collaborator
// is recovered and returned as the error alongside the clone as-is.
func (e *Executor) Execute(ctx context.Context, order *workorder.WorkOrder) (result *workorder.WorkOrder, err error) {
	wo := order.Clone()
	started := time.Now()

	defer func() {
		if r := recover(); r != nil {
			result = wo
			err = errors.Newf(errors.ErrCodeExecutionError, "executor panic on work order %s: %v", wo.ID, r)
		}
	}()

	if wo.State.Terminal() {
		return wo, errors.Newf(errors.ErrCodeInvalidTransition,
			"work order %s is already terminal in state %s", wo.ID, wo.State)
	}

	if wo.State == workorder.StatePlanned {
		if terr := workorder.Transition(wo, workorder.StateDispatched, wo.CreatedBy); terr != nil {
			return e.fail(ctx, wo, started, errors.Wrap(terr, errors.ErrCodeExecutionError, "cannot dispatch work order")), nil
		}
		e.writeEvent(ctx, wo, ledger.EventWorkOrderDispatched, string(wo.State), "", nil)
	}
	if terr := workorder.Transition(wo, workorder.StateExecuting, workorder.TierHO1); terr != nil {
		return e.fail(ctx, wo, started, errors.Wrap(terr, errors.ErrCodeExecutionError, "cannot begin execution")), nil
	}

	if wo.Type == workorder.TypeToolCall {
		return e.runToolCall(ctx, wo, started), nil
	}
	return e.runConversation(ctx, wo, started), nil
}

// runToolCall executes every allow-listed tool directly against the input
// context. No gateway call is made.
func (e *Executor) runToolCall(ctx context.Context, wo *workorder.WorkOrder, started time.Time) *workorder.WorkOrder {
	if e.tools == nil {
		return e.fail(ctx, wo, started, errors.New(errors.ErrCodeExecutionError, "no tool dispatcher configured"))
	}
	if len(wo.Constraints.ToolsAllowed) == 0 {
		return e.fail(ctx, wo, started, errors.New(errors.ErrCodeExecutionError, "tool_call work order declares no allowed tools"))
	}

	results := make(map[string]any, len(wo.Constraints.ToolsAllowed))
	for _, name := range wo.Constraints.ToolsAllowed {
		res, err := e.tools.Execute(name, wo.InputContext)
		wo.Cost.AddToolCalls(1)
		e.writeEvent(ctx, wo, ledger.EventToolCall, "", name, map[string]any{"tool": name})
		if err != nil {
			return e.fail(ctx, wo, started, errors.Wrap(err, errors.ErrCodeExecutionError, fmt.Sprintf("tool %q failed", name)))
		}
		if res.Status != builtin.StatusOK {
			return e.fail(ctx, wo, started, errors.Newf(errors.ErrCodeExecutionError, "tool %q reported status %q", name, res.Status))
		}
		results[name] = res.Output
	}

	wo.OutputResult = results
	return e.complete(ctx, wo, started)
}

// runConversation is the LLM path: contract resolution, schema checks, and
// the bounded tool-calling loop.
func (e *Executor) runConversation(ctx context.Context, wo *workorder.WorkOrder, started time.Time) *workorder.WorkOrder {
	contractID := wo.Constraints.PromptContractID
	if contractID == "" {
		return e.fail(ctx, wo, started, errors.Newf(errors.ErrCodeContractNotFound, "work order %s declares no prompt contract", wo.ID))
	}
	c, err := e.contracts.Load(contractID)
	if err != nil {
		return e.fail(ctx, wo, started, errors.Wrap(err, errors.ErrCodeContractNotFound, fmt.Sprintf("contract %q", contractID)))
	}

	if missing := c.InputSchema.MissingFields(wo.InputContext); len(missing) > 0 {
		return e.fail(ctx, wo, started, errors.Newf(errors.ErrCodeInputSchemaInvalid,
			"input context missing required fields: %s", strings.Join(missing, ", ")))
	}

	prompt := contract.Render(c.Template, wo.InputContext)
	maxTokens := c.Boundary.MaxTokens
	if wo.Constraints.TokenBudget > 0 && (maxTokens == 0 || wo.Constraints.TokenBudget < maxTokens) {
		maxTokens = wo.Constraints.TokenBudget
	}

	var defs []map[string]any
	allowed := make(map[string]bool, len(wo.Constraints.ToolsAllowed))
	if e.tools != nil && len(wo.Constraints.ToolsAllowed) > 0 {
		for _, name := range wo.Constraints.ToolsAllowed {
			allowed[name] = true
		}
		defs = filterDefinitions(e.tools.Definitions(), allowed)
	}

	turnLimit := wo.Constraints.TurnLimit
	if turnLimit <= 0 {
		turnLimit = workorder.DefaultTurnLimit
	}

	messages := []gateway.Message{{Role: "user", Content: prompt}}
	var finalText string
	final := false

	// budget checks ask for the estimated prompt plus the output ceiling
	requested := budget.EstimateTokens(prompt) + maxTokens

	for turn := 1; turn <= turnLimit; turn++ {
		if e.budgeter != nil {
			scope := budget.Scope{SessionID: wo.SessionID, WorkOrderID: wo.ID, RequestedTokens: requested}
			decision, berr := e.budgeter.Check(ctx, scope)
			if berr != nil {
				return e.fail(ctx, wo, started, errors.Wrap(berr, errors.ErrCodeExecutionError, "budget check failed"))
			}
			if !decision.Allowed {
				return e.fail(ctx, wo, started, errors.Newf(errors.ErrCodeBudgetExhausted, "%s", decision.Reason))
			}
		}

		resp, gerr := e.gateway.Route(ctx, gateway.Request{
			Model:       e.model,
			Messages:    messages,
			MaxTokens:   maxTokens,
			Temperature: c.Boundary.Temperature,
			Tools:       defs,
			SessionID:   wo.SessionID,
			WorkOrderID: wo.ID,
		})
		if gerr != nil {
			return e.fail(ctx, wo, started, errors.Wrap(gerr, errors.ErrCodeGatewayError, "gateway call failed"))
		}

		wo.Cost.AddCall(resp.InputTokens, resp.OutputTokens)
		telemetry.RecordGatewayCall(resp.InputTokens, resp.OutputTokens)
		e.writeEvent(ctx, wo, ledger.EventLLMCall, resp.Outcome, "", map[string]any{
			"turn":          turn,
			"model_id":      resp.ModelID,
			"input_tokens":  resp.InputTokens,
			"output_tokens": resp.OutputTokens,
		})
		if e.budgeter != nil {
			scope := budget.Scope{SessionID: wo.SessionID, WorkOrderID: wo.ID}
			var spent cost.Usage
			spent.AddCall(resp.InputTokens, resp.OutputTokens)
			if derr := e.budgeter.Debit(ctx, scope, spent); derr != nil {
				// The spend already happened; the budgeter fails closed on
				// the next check. Record and move on.
				if e.log != nil {
					e.log.Warn(logging.CategoryBudget, "debit_over_ceiling", derr.Error(), map[string]any{
						"work_order_id": wo.ID,
					})
				}
			}
		}

		if resp.Outcome != gateway.OutcomeSuccess {
			code := errors.ErrorCode(resp.ErrorCode)
			if code == "" {
				code = errors.ErrCodeGatewayError
			}
			msg := resp.ErrorMessage
			if msg == "" {
				msg = fmt.Sprintf("gateway reported outcome %q", resp.Outcome)
			}
			return e.fail(ctx, wo, started, errors.New(code, msg))
		}

		payload := resp.Payload()
		uses := payload.ToolUses()
		if len(uses) == 0 {
			finalText = payload.FinalText()
			final = true
			break
		}

		if e.tools == nil {
			return e.fail(ctx, wo, started, errors.New(errors.ErrCodeExecutionError, "model requested tools but no dispatcher is configured"))
		}

		messages = append(messages, gateway.Message{Role: "assistant", Content: resp.Content})
		for _, use := range uses {
			if !allowed[use.Name] {
				return e.fail(ctx, wo, started, errors.Newf(errors.ErrCodeExecutionError, "tool %q is not in the allow list", use.Name))
			}
			res, terr := e.tools.Execute(use.Name, use.Arguments)
			wo.Cost.AddToolCalls(1)
			e.writeEvent(ctx, wo, ledger.EventToolCall, "", use.Name, map[string]any{"tool": use.Name, "turn": turn})

			// Tool failures fold back into the conversation; the model
			// decides whether to recover or give up.
			var content string
			if terr != nil {
				content = fmt.Sprintf(`{"status":"error","error":%q}`, terr.Error())
			} else {
				content = encodeToolResult(res.Status, res.Output)
			}
			messages = append(messages, gateway.Message{
				Role:      "tool",
				Content:   content,
				ToolUseID: use.ID,
				ToolName:  use.Name,
			})
		}
	}

	if !final {
		return e.fail(ctx, wo, started, errors.Newf(errors.ErrCodeTurnLimitExceeded,
			"no final content after %d turns", turnLimit))
	}

	if c.OutputSchema != nil {
		if violations := c.OutputSchema.ValidateJSON([]byte(finalText)); len(violations) > 0 {
			return e.fail(ctx, wo, started, errors.Newf(errors.ErrCodeOutputSchemaInvalid, "%s", strings.Join(violations, "; ")))
		}
	}

	var output map[string]any
	if uerr := json.Unmarshal([]byte(finalText), &output); uerr != nil || output == nil {
		if c.OutputSchema != nil {
			return e.fail(ctx, wo, started, errors.New(errors.ErrCodeOutputSchemaInvalid, "final content is not a JSON object"))
		}
		output = map[string]any{"response_text": finalText}
	}

	wo.OutputResult = output
	return e.complete(ctx, wo, started)
}

// complete is the single success path.
func (e *Executor) complete(ctx context.Context, wo *workorder.WorkOrder, started time.Time) *workorder.WorkOrder {
	wo.Cost.ElapsedMS += time.Since(started).Milliseconds()
	if terr := workorder.Transition(wo, workorder.StateCompleted, workorder.TierHO1); terr != nil {
		return e.fail(ctx, wo, started, errors.Wrap(terr, errors.ErrCodeExecutionError, "cannot complete work order"))
	}
	telemetry.RecordWorkOrder(string(wo.Type), "completed")
	e.writeEvent(ctx, wo, ledger.EventWorkOrderCompleted, "completed", "", map[string]any{
		"total_tokens": wo.Cost.TotalTokens,
		"llm_calls":    wo.Cost.LLMCalls,
		"tool_calls":   wo.Cost.ToolCalls,
	})
	if e.log != nil {
		_ = e.log.Info(logging.CategoryDispatch, "work_order_completed", wo.ID, map[string]any{
			"type":         string(wo.Type),
			"total_tokens": wo.Cost.TotalTokens,
		})
	}
	return wo
}

// fail is the single failure path for steps after execution begins.
func (e *Executor) fail(ctx context.Context, wo *workorder.WorkOrder, started time.Time, derr *errors.Error) *workorder.WorkOrder {
	wo.Error = derr.Error()
	wo.OutputResult = nil
	wo.Cost.ElapsedMS += time.Since(started).Milliseconds()
	if !wo.State.Terminal() {
		if terr := workorder.Transition(wo, workorder.StateFailed, workorder.TierHO1); terr != nil {
			wo.State = workorder.StateFailed
			now := time.Now().UTC()
			wo.CompletedAt = &now
		}
	}
	telemetry.RecordWorkOrder(string(wo.Type), "failed")
	e.writeEvent(ctx, wo, ledger.EventWorkOrderFailed, "failed", wo.Error, map[string]any{
		"error_code": string(errors.GetCode(derr)),
	})
	if e.log != nil {
		_ = e.log.Error(logging.CategoryDispatch, "work_order_failed", wo.Error, map[string]any{
			"work_order_id": wo.ID,
			"type":          string(wo.Type),
		})
	}
	return wo
}

func (e *Executor) writeEvent(ctx context.Context, wo *workorder.WorkOrder, eventType, decision, reason string, metadata map[string]any) {
	if e.audit == nil {
		return
	}
	// Audit writes must never take down a dispatch.
	_, err := e.audit.Write(ctx, ledger.Entry{
		EventType:    eventType,
		SubmissionID: wo.ID,
		SessionID:    wo.SessionID,
		Decision:     decision,
		Reason:       reason,
		Metadata:     metadata,
	})
	if err != nil && e.log != nil {
		_ = e.log.Error(logging.CategoryLedger, "ledger_write_failed", err.Error(), map[string]any{
			"work_order_id": wo.ID,
			"event_type":    eventType,
		})
	}
}

// filterDefinitions keeps only the function definitions whose name is in the
// allow list.
func filterDefinitions(defs []map[string]any, allowed map[string]bool) []map[string]any {
	var out []map[string]any
	for _, def := range defs {
		fn, ok := def["function"].(map[string]any)
		if !ok {
			continue
		}
		name, ok := fn["name"].(string)
		if !ok || !allowed[name] {
			continue
		}
		out = append(out, def)
	}
	return out
}

func encodeToolResult(status string, output map[string]any) string {
	body := map[string]any{"status": status}
	if output != nil {
		body["output"] = output
	}
	raw, err := json.Marshal(body)
	if err != nil {
		return fmt.Sprintf(`{"status":%q}`, status)
	}
	return string(raw)
}
