package budget

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/odvcencio/controlplane/pkg/cost"
	dispatcherrors "github.com/odvcencio/controlplane/pkg/errors"
)

func TestCheckUnboundedByDefault(t *testing.T) {
	h := NewHierarchy(0, 0)
	decision, err := h.Check(context.Background(), Scope{SessionID: "sess", RequestedTokens: 1_000_000})
	require.NoError(t, err)
	assert.True(t, decision.Allowed)
}

func TestCheckDeniesWhenSessionCeilingHit(t *testing.T) {
	ctx := context.Background()
	h := NewHierarchy(0, 100)

	decision, err := h.Check(ctx, Scope{SessionID: "sess", RequestedTokens: 50})
	require.NoError(t, err)
	assert.True(t, decision.Allowed)
	assert.Equal(t, 100, decision.Remaining)

	require.NoError(t, h.Debit(ctx, Scope{SessionID: "sess"}, cost.Usage{TotalTokens: 80}))

	decision, err = h.Check(ctx, Scope{SessionID: "sess", RequestedTokens: 50})
	require.NoError(t, err)
	assert.False(t, decision.Allowed)
	assert.Contains(t, decision.Reason, "session")
	assert.Equal(t, 20, decision.Remaining)
}

func TestDebitFailsClosedOnOverdebit(t *testing.T) {
	ctx := context.Background()
	h := NewHierarchy(0, 100)

	// Two work orders both passed a check; both debit. The budgeter tolerates
	// the race but fails closed.
	require.NoError(t, h.Debit(ctx, Scope{SessionID: "sess", WorkOrderID: "WO-sess-001"}, cost.Usage{TotalTokens: 60}))
	err := h.Debit(ctx, Scope{SessionID: "sess", WorkOrderID: "WO-sess-002"}, cost.Usage{TotalTokens: 60})
	require.Error(t, err)
	assert.True(t, dispatcherrors.IsCode(err, dispatcherrors.ErrCodeBudgetExhausted))

	decision, err := h.Check(ctx, Scope{SessionID: "sess", RequestedTokens: 1})
	require.NoError(t, err)
	assert.False(t, decision.Allowed, "checks after over-debit must deny")
}

func TestAllocatePerWorkOrderCeiling(t *testing.T) {
	ctx := context.Background()
	h := NewHierarchy(0, 0)

	require.NoError(t, h.Allocate(ctx, Scope{WorkOrderID: "WO-sess-001"}, Allocation{WorkOrderTokens: 40}))

	decision, err := h.Check(ctx, Scope{WorkOrderID: "WO-sess-001", RequestedTokens: 41})
	require.NoError(t, err)
	assert.False(t, decision.Allowed)

	decision, err = h.Check(ctx, Scope{WorkOrderID: "WO-sess-001", RequestedTokens: 39})
	require.NoError(t, err)
	assert.True(t, decision.Allowed)
}

func TestGlobalCeilingWinsOverSession(t *testing.T) {
	ctx := context.Background()
	h := NewHierarchy(50, 1000)

	require.NoError(t, h.Debit(ctx, Scope{SessionID: "a"}, cost.Usage{TotalTokens: 30}))
	decision, err := h.Check(ctx, Scope{SessionID: "b", RequestedTokens: 30})
	require.NoError(t, err)
	assert.False(t, decision.Allowed)
	assert.Contains(t, decision.Reason, "global")
}

func TestConcurrentDebitsAccumulate(t *testing.T) {
	ctx := context.Background()
	h := NewHierarchy(0, 0)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = h.Debit(ctx, Scope{SessionID: "sess"}, cost.Usage{TotalTokens: 2})
		}()
	}
	wg.Wait()

	assert.Equal(t, 100, h.SessionSpend("sess"))
}

func TestEstimateTokens(t *testing.T) {
	assert.Equal(t, 0, EstimateTokens(""))
	assert.Greater(t, EstimateTokens("hello world, this is a prompt"), 0)

	long := EstimateTokens("a much longer prompt with many more words than the short one above")
	short := EstimateTokens("short")
	assert.Greater(t, long, short)
}
