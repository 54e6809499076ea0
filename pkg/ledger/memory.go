package ledger

import (
	"context"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

// Memory is an in-process ledger for tests and embedded runs. Entries are
// append-only; reads return copies.
type Memory struct {
	mu      sync.RWMutex
	entries []Entry
}

// NewMemory creates an empty in-memory ledger.
func NewMemory() *Memory {
	return &Memory{}
}

// Write implements Writer.
func (m *Memory) Write(_ context.Context, entry Entry) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if entry.ID == "" {
		entry.ID = ulid.Make().String()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	m.entries = append(m.entries, entry)
	return entry.ID, nil
}

// Entries implements Reader.
func (m *Memory) Entries(_ context.Context, filter Filter) ([]Entry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	woSet := make(map[string]bool, len(filter.WorkOrderIDs))
	for _, id := range filter.WorkOrderIDs {
		woSet[id] = true
	}

	var out []Entry
	for _, e := range m.entries {
		if filter.SessionID != "" && e.SessionID != filter.SessionID {
			continue
		}
		if len(woSet) > 0 && !woSet[e.SubmissionID] {
			continue
		}
		out = append(out, e)
	}
	return out, nil
}

// ByType returns entries of one event type, a convenience for tests.
func (m *Memory) ByType(eventType string) []Entry {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []Entry
	for _, e := range m.entries {
		if e.EventType == eventType {
			out = append(out, e)
		}
	}
	return out
}
