package session

import (
	"context"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/odvcencio/controlplane/pkg/cost"
	"github.com/odvcencio/controlplane/pkg/errors"
)

func TestCounterStartsAtOne(t *testing.T) {
	c := NewCounter()
	if got := c.Next("s1"); got != 1 {
		t.Errorf("first Next = %d, want 1", got)
	}
	if got := c.Next("s1"); got != 2 {
		t.Errorf("second Next = %d, want 2", got)
	}
	if got := c.Peek("s1"); got != 2 {
		t.Errorf("Peek = %d, want 2", got)
	}
}

func TestCounterIndependentSessions(t *testing.T) {
	c := NewCounter()
	c.Next("alpha")
	c.Next("alpha")
	if got := c.Next("beta"); got != 1 {
		t.Errorf("beta sequence started at %d, want 1", got)
	}
	if got := c.Peek("alpha"); got != 2 {
		t.Errorf("alpha Peek = %d, want 2", got)
	}
}

func TestCounterConcurrentNoDuplicates(t *testing.T) {
	c := NewCounter()
	const workers = 16
	const perWorker = 100

	var mu sync.Mutex
	seen := make(map[int]bool)

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < perWorker; j++ {
				n := c.Next("shared")
				mu.Lock()
				if seen[n] {
					t.Errorf("duplicate sequence number %d", n)
				}
				seen[n] = true
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if len(seen) != workers*perWorker {
		t.Errorf("issued %d distinct numbers, want %d", len(seen), workers*perWorker)
	}
	if got := c.Peek("shared"); got != workers*perWorker {
		t.Errorf("Peek = %d, want %d", got, workers*perWorker)
	}
}

func TestGenerateSessionID(t *testing.T) {
	id := GenerateSessionID("My Project!")
	assert.True(t, strings.HasPrefix(id, "my-project-"), "id %q should carry the sanitized base", id)

	other := GenerateSessionID("My Project!")
	assert.NotEqual(t, id, other, "ids must be unique")

	fallback := GenerateSessionID("  !!!  ")
	assert.True(t, strings.HasPrefix(fallback, "session-"), "unusable base falls back to %q, got %q", "session", fallback)
}

// managerContract runs the Manager behavior shared by both implementations.
func managerContract(t *testing.T, newManager func(t *testing.T) Manager) {
	ctx := context.Background()

	t.Run("start and end session", func(t *testing.T) {
		m := newManager(t)
		id, err := m.StartSession(ctx)
		require.NoError(t, err)
		require.NotEmpty(t, id)

		require.NoError(t, m.EndSession(ctx, id))
		err = m.EndSession(ctx, id)
		require.Error(t, err)
		assert.True(t, errors.IsCode(err, errors.ErrCodeSessionUnknown), "got %v", err)
	})

	t.Run("work order ids are sequential per session", func(t *testing.T) {
		m := newManager(t)
		a, err := m.StartSession(ctx)
		require.NoError(t, err)
		b, err := m.StartSession(ctx)
		require.NoError(t, err)

		assert.Equal(t, "WO-"+a+"-001", m.NextWorkOrderID(a))
		assert.Equal(t, "WO-"+a+"-002", m.NextWorkOrderID(a))
		assert.Equal(t, "WO-"+b+"-001", m.NextWorkOrderID(b))
	})

	t.Run("turns and cost require a known session", func(t *testing.T) {
		m := newManager(t)
		err := m.FoldCost(ctx, "no-such-session", cost.Usage{TotalTokens: 1})
		require.Error(t, err)
		assert.True(t, errors.IsCode(err, errors.ErrCodeSessionUnknown), "got %v", err)
	})

	t.Run("folded cost accumulates", func(t *testing.T) {
		m := newManager(t)
		id, err := m.StartSession(ctx)
		require.NoError(t, err)

		require.NoError(t, m.FoldCost(ctx, id, cost.Usage{InputTokens: 10, OutputTokens: 5, TotalTokens: 15, LLMCalls: 1}))
		require.NoError(t, m.FoldCost(ctx, id, cost.Usage{InputTokens: 4, OutputTokens: 2, TotalTokens: 6, ToolCalls: 3}))
		require.NoError(t, m.AddTurn(ctx, id, "hello", "hi there"))
	})
}

func TestMemoryManager(t *testing.T) {
	managerContract(t, func(t *testing.T) Manager {
		return NewMemoryManager("test")
	})

	t.Run("snapshot helpers", func(t *testing.T) {
		m := NewMemoryManager("test")
		id, err := m.StartSession(context.Background())
		require.NoError(t, err)
		require.NoError(t, m.AddTurn(context.Background(), id, "q", "a"))
		require.NoError(t, m.FoldCost(context.Background(), id, cost.Usage{TotalTokens: 7}))

		s, ok := m.Session(id)
		require.True(t, ok)
		assert.Equal(t, 7, s.TotalCost.TotalTokens)

		turns := m.Turns(id)
		require.Len(t, turns, 1)
		assert.Equal(t, "q", turns[0].UserMessage)
		assert.Equal(t, "a", turns[0].ResponseText)
	})
}

func TestStore(t *testing.T) {
	managerContract(t, func(t *testing.T) Manager {
		store, err := NewStore(t.TempDir()+"/sessions.db", "test")
		require.NoError(t, err)
		t.Cleanup(func() { store.Close() })
		return store
	})

	t.Run("session record round trips", func(t *testing.T) {
		store, err := NewStore(t.TempDir()+"/sessions.db", "round")
		require.NoError(t, err)
		defer store.Close()

		ctx := context.Background()
		id, err := store.StartSession(ctx)
		require.NoError(t, err)

		require.NoError(t, store.FoldCost(ctx, id, cost.Usage{InputTokens: 3, OutputTokens: 2, TotalTokens: 5, LLMCalls: 1, ElapsedMS: 42}))
		require.NoError(t, store.AddTurn(ctx, id, "first", "one"))
		require.NoError(t, store.AddTurn(ctx, id, "second", "two"))

		sess, err := store.Session(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, 5, sess.TotalCost.TotalTokens)
		assert.Equal(t, 1, sess.TotalCost.LLMCalls)
		assert.Nil(t, sess.EndedAt)

		turns, err := store.RecentTurns(ctx, id, 10)
		require.NoError(t, err)
		require.Len(t, turns, 2)

		require.NoError(t, store.EndSession(ctx, id))
		sess, err = store.Session(ctx, id)
		require.NoError(t, err)
		assert.NotNil(t, sess.EndedAt)
	})
}
