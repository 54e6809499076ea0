// Package ledger provides the append-only audit trail for cognitive
// dispatch. Every transition, gateway call, tool call, gate decision,
// escalation, and degradation lands here; the supervisor reads entries back
// only to compute trace hashes.
package ledger

import (
	"context"
	"time"
)

// Event types written by the dispatch core.
const (
	EventWorkOrderDispatched = "work_order_dispatched"
	EventWorkOrderCompleted  = "work_order_completed"
	EventWorkOrderFailed     = "work_order_failed"
	EventLLMCall             = "llm_call"
	EventToolCall            = "tool_call"
	EventChainComplete       = "chain_complete"
	EventQualityGateDecision = "quality_gate_decision"
	EventEscalation          = "escalation"
	EventDegradation         = "degradation"
	EventSessionStarted      = "session_started"
)

// Entry is one immutable ledger record. SubmissionID is the work order (or
// chain) the event belongs to; SessionID is denormalized for filtering.
type Entry struct {
	ID           string         `json:"id"`
	EventType    string         `json:"event_type"`
	SubmissionID string         `json:"submission_id"`
	SessionID    string         `json:"session_id,omitempty"`
	Decision     string         `json:"decision,omitempty"`
	Reason       string         `json:"reason,omitempty"`
	Metadata     map[string]any `json:"metadata,omitempty"`
	CreatedAt    time.Time      `json:"created_at"`
}

// Filter selects entries for reads. WorkOrderIDs matches SubmissionID
// membership; empty fields match everything.
type Filter struct {
	SessionID    string
	WorkOrderIDs []string
}

// Writer appends entries. Implementations assign the entry id and timestamp
// when the caller leaves them empty.
type Writer interface {
	Write(ctx context.Context, entry Entry) (string, error)
}

// Reader retrieves entries in append order.
type Reader interface {
	Entries(ctx context.Context, filter Filter) ([]Entry, error)
}

// Ledger combines the append and read-back surfaces.
type Ledger interface {
	Writer
	Reader
}
