package cost

import (
	"sync"
)

// Tracker keeps running per-session usage totals. The supervisor folds each
// completed chain into it; readers get a snapshot copy.
type Tracker struct {
	mu       sync.RWMutex
	sessions map[string]Usage
}

// NewTracker creates an empty tracker.
func NewTracker() *Tracker {
	return &Tracker{
		sessions: make(map[string]Usage),
	}
}

// Fold merges usage into a session's running total.
func (t *Tracker) Fold(sessionID string, usage Usage) {
	if t == nil || sessionID == "" {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()

	total := t.sessions[sessionID]
	total.Fold(usage)
	t.sessions[sessionID] = total
}

// Session returns a snapshot of the session's running total.
func (t *Tracker) Session(sessionID string) Usage {
	if t == nil {
		return Usage{}
	}
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.sessions[sessionID]
}

// Reset clears the session's running total.
func (t *Tracker) Reset(sessionID string) {
	if t == nil {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.sessions, sessionID)
}
