// Package budget enforces hierarchical token ceilings over concurrent work
// orders. Checks never reserve capacity: two callers may both pass a check
// and both debit, and the budgeter fails closed once a ceiling is crossed.
package budget

import (
	"context"
	"sync"

	"github.com/odvcencio/controlplane/pkg/cost"
	"github.com/odvcencio/controlplane/pkg/errors"
)

// Scope identifies who is asking for tokens.
type Scope struct {
	SessionID       string `json:"session_id"`
	WorkOrderID     string `json:"work_order_id,omitempty"`
	AgentID         string `json:"agent_id,omitempty"`
	RequestedTokens int    `json:"requested_tokens,omitempty"`
}

// Decision is the outcome of a budget check.
type Decision struct {
	Allowed   bool   `json:"allowed"`
	Reason    string `json:"reason,omitempty"`
	Remaining int    `json:"remaining"`
}

// Allocation sets ceilings for a scope.
type Allocation struct {
	SessionTokens   int `json:"session_tokens,omitempty"`
	WorkOrderTokens int `json:"work_order_tokens,omitempty"`
}

// Budgeter is the token budget contract the dispatch core consumes.
//
// The core checks before every gateway call and debits after; it never
// assumes a check reserved anything.
type Budgeter interface {
	Check(ctx context.Context, scope Scope) (Decision, error)
	Debit(ctx context.Context, scope Scope, usage cost.Usage) error
	Allocate(ctx context.Context, scope Scope, allocation Allocation) error
}

type bucket struct {
	ceiling int
	spent   int
}

func (b *bucket) remaining() int {
	if b.ceiling <= 0 {
		return 0
	}
	return b.ceiling - b.spent
}

// Hierarchy is an in-process budgeter with global, per-session, and
// per-work-order ceilings. A zero ceiling means unbounded at that level.
type Hierarchy struct {
	mu         sync.Mutex
	global     bucket
	sessions   map[string]*bucket
	workOrders map[string]*bucket

	defaultSessionTokens int
}

// NewHierarchy creates a budgeter with the given global ceiling (0 for
// unbounded) and a default per-session ceiling applied on first sight.
func NewHierarchy(globalTokens, defaultSessionTokens int) *Hierarchy {
	return &Hierarchy{
		global:               bucket{ceiling: globalTokens},
		sessions:             make(map[string]*bucket),
		workOrders:           make(map[string]*bucket),
		defaultSessionTokens: defaultSessionTokens,
	}
}

// Allocate implements Budgeter.
func (h *Hierarchy) Allocate(_ context.Context, scope Scope, allocation Allocation) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if scope.SessionID != "" && allocation.SessionTokens > 0 {
		h.sessionBucket(scope.SessionID).ceiling = allocation.SessionTokens
	}
	if scope.WorkOrderID != "" && allocation.WorkOrderTokens > 0 {
		h.workOrderBucket(scope.WorkOrderID).ceiling = allocation.WorkOrderTokens
	}
	return nil
}

// Check implements Budgeter. The walk is ceiling-order: global, session,
// work order; the first exhausted level denies.
func (h *Hierarchy) Check(_ context.Context, scope Scope) (Decision, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	requested := scope.RequestedTokens
	if requested < 0 {
		requested = 0
	}

	levels := []struct {
		name string
		b    *bucket
	}{
		{"global", &h.global},
	}
	if scope.SessionID != "" {
		levels = append(levels, struct {
			name string
			b    *bucket
		}{"session", h.sessionBucket(scope.SessionID)})
	}
	if scope.WorkOrderID != "" {
		levels = append(levels, struct {
			name string
			b    *bucket
		}{"work_order", h.workOrderBucket(scope.WorkOrderID)})
	}

	remaining := -1
	for _, level := range levels {
		if level.b.ceiling <= 0 {
			continue // unbounded at this level
		}
		left := level.b.remaining()
		if left < requested || left <= 0 {
			return Decision{
				Allowed:   false,
				Reason:    level.name + " token budget exhausted",
				Remaining: max(left, 0),
			}, nil
		}
		if remaining < 0 || left < remaining {
			remaining = left
		}
	}

	if remaining < 0 {
		remaining = 0 // every level unbounded
	}
	return Decision{Allowed: true, Remaining: remaining}, nil
}

// Debit implements Budgeter. Over-debit records the spend and returns a
// budget_exhausted error; subsequent checks on the scope deny.
func (h *Hierarchy) Debit(_ context.Context, scope Scope, usage cost.Usage) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	tokens := usage.TotalTokens
	if tokens <= 0 {
		return nil
	}

	var exhausted *errors.Error
	h.global.spent += tokens
	if h.global.ceiling > 0 && h.global.spent > h.global.ceiling {
		exhausted = errors.New(errors.ErrCodeBudgetExhausted, "global token budget exceeded")
	}

	if scope.SessionID != "" {
		b := h.sessionBucket(scope.SessionID)
		b.spent += tokens
		if b.ceiling > 0 && b.spent > b.ceiling && exhausted == nil {
			exhausted = errors.Newf(errors.ErrCodeBudgetExhausted, "session %s token budget exceeded", scope.SessionID)
		}
	}

	if scope.WorkOrderID != "" {
		b := h.workOrderBucket(scope.WorkOrderID)
		b.spent += tokens
		if b.ceiling > 0 && b.spent > b.ceiling && exhausted == nil {
			exhausted = errors.Newf(errors.ErrCodeBudgetExhausted, "work order %s token budget exceeded", scope.WorkOrderID)
		}
	}

	if exhausted != nil {
		return exhausted
	}
	return nil
}

// SessionSpend returns tokens debited against a session so far.
func (h *Hierarchy) SessionSpend(sessionID string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	if b, ok := h.sessions[sessionID]; ok {
		return b.spent
	}
	return 0
}

// sessionBucket returns the session bucket, creating it with the default
// ceiling on first sight. Caller holds the lock.
func (h *Hierarchy) sessionBucket(sessionID string) *bucket {
	b, ok := h.sessions[sessionID]
	if !ok {
		b = &bucket{ceiling: h.defaultSessionTokens}
		h.sessions[sessionID] = b
	}
	return b
}

// workOrderBucket returns the work order bucket. Caller holds the lock.
func (h *Hierarchy) workOrderBucket(workOrderID string) *bucket {
	b, ok := h.workOrders[workOrderID]
	if !ok {
		b = &bucket{}
		h.workOrders[workOrderID] = b
	}
	return b
}
