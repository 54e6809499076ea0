package attention

import (
	"context"
	"fmt"

	"github.com/odvcencio/controlplane/pkg/session"
)

// TurnSource reads recent turns from the session store for horizontal
// scans. Pinned fragments are still served from memory; persisted turn
// history is the part worth sharing across processes.
type TurnSource struct {
	store    *session.Store
	pinned   *Memory
	scanSize int
}

// NewTurnSource wraps a session store as an attention service.
func NewTurnSource(store *session.Store, scanSize int) *TurnSource {
	if scanSize <= 0 {
		scanSize = 10
	}
	return &TurnSource{store: store, pinned: NewMemory(scanSize), scanSize: scanSize}
}

// Pin records a fragment returned by every priority probe.
func (t *TurnSource) Pin(content string) {
	t.pinned.Pin(content)
}

// HorizontalScan implements Service. Each recent turn contributes one
// fragment rendering both sides of the exchange, oldest first.
func (t *TurnSource) HorizontalScan(ctx context.Context, sessionID string) ([]Fragment, error) {
	turns, err := t.store.RecentTurns(ctx, sessionID, t.scanSize)
	if err != nil {
		return nil, fmt.Errorf("horizontal scan failed: %w", err)
	}

	// RecentTurns returns newest first; fragments read oldest first.
	frags := make([]Fragment, 0, len(turns))
	for i := len(turns) - 1; i >= 0; i-- {
		turn := turns[i]
		frags = append(frags, Fragment{
			ID:        turn.ID,
			SessionID: turn.SessionID,
			Source:    SourceHistory,
			Content:   fmt.Sprintf("user: %s\nassistant: %s", turn.UserMessage, turn.ResponseText),
			CreatedAt: turn.CreatedAt,
		})
	}
	return frags, nil
}

// PriorityProbe implements Service.
func (t *TurnSource) PriorityProbe(ctx context.Context) ([]Fragment, error) {
	return t.pinned.PriorityProbe(ctx)
}
