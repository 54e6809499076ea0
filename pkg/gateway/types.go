// Package gateway defines the contract between the dispatch core and the LLM
// routing layer, plus an HTTP client for a remote gateway service.
package gateway

import (
	"context"
	"encoding/json"
	"strings"
)

// OutcomeSuccess is the only outcome the executor treats as a usable
// response; anything else fails the work order with the gateway-supplied
// code and message.
const OutcomeSuccess = "success"

// Message is one turn of the conversation sent to the gateway.
type Message struct {
	Role       string `json:"role"` // user, assistant, tool
	Content    string `json:"content,omitempty"`
	ToolUseID  string `json:"tool_use_id,omitempty"` // for tool result messages
	ToolName   string `json:"tool_name,omitempty"`
}

// Request is a routed completion request. The wire format belongs to the
// gateway service; the dispatch core only populates these fields.
type Request struct {
	Model       string           `json:"model,omitempty"`
	Messages    []Message        `json:"messages"`
	MaxTokens   int              `json:"max_tokens,omitempty"`
	Temperature float64          `json:"temperature,omitempty"`
	Tools       []map[string]any `json:"tools,omitempty"`
	SessionID   string           `json:"session_id,omitempty"`
	WorkOrderID string           `json:"work_order_id,omitempty"`
}

// ContentBlock is one structured block of a gateway response.
type ContentBlock struct {
	Type  string         `json:"type"` // "text" or "tool_use"
	Text  string         `json:"text,omitempty"`
	ID    string         `json:"id,omitempty"`
	Name  string         `json:"name,omitempty"`
	Input map[string]any `json:"input,omitempty"`
}

// Response is the gateway's answer to one routed request.
type Response struct {
	Content       string         `json:"content,omitempty"`
	Outcome       string         `json:"outcome"`
	InputTokens   int            `json:"input_tokens"`
	OutputTokens  int            `json:"output_tokens"`
	ModelID       string         `json:"model_id,omitempty"`
	FinishReason  string         `json:"finish_reason,omitempty"`
	ContentBlocks []ContentBlock `json:"content_blocks,omitempty"`
	ErrorCode     string         `json:"error_code,omitempty"`
	ErrorMessage  string         `json:"error_message,omitempty"`
}

// ToolUse is one tool invocation requested by the model.
type ToolUse struct {
	ID        string         `json:"id"`
	Name      string         `json:"name"`
	Arguments map[string]any `json:"arguments"`
}

// Payload is the tagged variant over the two shapes a gateway may expose
// tool use in: structured content blocks or raw parseable content. Each
// variant owns its extraction; callers never probe response shape directly.
type Payload interface {
	ToolUses() []ToolUse
	FinalText() string
}

// Structured is a block-based payload.
type Structured struct {
	Blocks []ContentBlock
}

// ToolUses extracts tool invocations from tool_use blocks.
func (s Structured) ToolUses() []ToolUse {
	var uses []ToolUse
	for _, block := range s.Blocks {
		if block.Type != "tool_use" {
			continue
		}
		args := block.Input
		if args == nil {
			args = map[string]any{}
		}
		uses = append(uses, ToolUse{ID: block.ID, Name: block.Name, Arguments: args})
	}
	return uses
}

// FinalText joins the text blocks.
func (s Structured) FinalText() string {
	var parts []string
	for _, block := range s.Blocks {
		if block.Type == "text" && block.Text != "" {
			parts = append(parts, block.Text)
		}
	}
	return strings.Join(parts, "\n")
}

// Raw is a text payload; tool use, if any, is a JSON envelope in the content.
type Raw struct {
	Text string
}

// rawEnvelope is the parseable-JSON tool-use shape some gateways emit.
type rawEnvelope struct {
	ToolCalls []struct {
		ID        string         `json:"id"`
		Name      string         `json:"name"`
		Arguments map[string]any `json:"arguments"`
	} `json:"tool_calls"`
}

// ToolUses parses the tool_calls envelope; non-JSON or envelope-free content
// carries no tool use.
func (r Raw) ToolUses() []ToolUse {
	trimmed := strings.TrimSpace(r.Text)
	if !strings.HasPrefix(trimmed, "{") {
		return nil
	}
	var env rawEnvelope
	if err := json.Unmarshal([]byte(trimmed), &env); err != nil {
		return nil
	}
	var uses []ToolUse
	for _, tc := range env.ToolCalls {
		args := tc.Arguments
		if args == nil {
			args = map[string]any{}
		}
		uses = append(uses, ToolUse{ID: tc.ID, Name: tc.Name, Arguments: args})
	}
	return uses
}

// FinalText returns the raw content.
func (r Raw) FinalText() string {
	return r.Text
}

// Payload selects the variant for this response.
func (r *Response) Payload() Payload {
	if len(r.ContentBlocks) > 0 {
		return Structured{Blocks: r.ContentBlocks}
	}
	return Raw{Text: r.Content}
}

// Gateway routes one request to a language model.
//
// A transport failure is returned as an error; a modeled refusal (rate limit,
// policy, upstream fault) comes back as a Response with a non-success outcome.
type Gateway interface {
	Route(ctx context.Context, req Request) (*Response, error)
}
