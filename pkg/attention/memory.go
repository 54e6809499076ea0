package attention

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Memory is an in-process attention service backed by plain maps. It is
// the default for embedded runs and tests.
type Memory struct {
	mu       sync.RWMutex
	history  map[string][]Fragment
	pinned   []Fragment
	scanSize int
}

// NewMemory creates an empty in-memory attention service keeping up to
// scanSize history fragments per horizontal scan.
func NewMemory(scanSize int) *Memory {
	if scanSize <= 0 {
		scanSize = 10
	}
	return &Memory{
		history:  make(map[string][]Fragment),
		scanSize: scanSize,
	}
}

// Observe records one history fragment for a session.
func (m *Memory) Observe(sessionID, content string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.history[sessionID] = append(m.history[sessionID], Fragment{
		ID:        uuid.NewString(),
		SessionID: sessionID,
		Source:    SourceHistory,
		Content:   content,
		CreatedAt: time.Now().UTC(),
	})
}

// Pin records a fragment returned by every priority probe.
func (m *Memory) Pin(content string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pinned = append(m.pinned, Fragment{
		ID:        uuid.NewString(),
		Source:    SourcePinned,
		Content:   content,
		CreatedAt: time.Now().UTC(),
	})
}

// HorizontalScan implements Service. The newest fragments win when the
// session history exceeds the scan size; ordering is oldest first.
func (m *Memory) HorizontalScan(_ context.Context, sessionID string) ([]Fragment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	frags := m.history[sessionID]
	if len(frags) > m.scanSize {
		frags = frags[len(frags)-m.scanSize:]
	}
	return append([]Fragment(nil), frags...), nil
}

// PriorityProbe implements Service.
func (m *Memory) PriorityProbe(_ context.Context) ([]Fragment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]Fragment(nil), m.pinned...), nil
}
