package session

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/odvcencio/controlplane/pkg/cost"
	"github.com/odvcencio/controlplane/pkg/errors"
	"github.com/odvcencio/controlplane/pkg/workorder"
)

// Turn is one recorded user message and its response.
type Turn struct {
	ID           string    `json:"id"`
	SessionID    string    `json:"session_id"`
	UserMessage  string    `json:"user_message"`
	ResponseText string    `json:"response_text"`
	CreatedAt    time.Time `json:"created_at"`
}

// Session is one conversation's bookkeeping record.
type Session struct {
	ID        string     `json:"id"`
	StartedAt time.Time  `json:"started_at"`
	EndedAt   *time.Time `json:"ended_at,omitempty"`
	TotalCost cost.Usage `json:"total_cost"`
}

// Manager is the session contract the supervisor consumes.
type Manager interface {
	StartSession(ctx context.Context) (string, error)
	NextWorkOrderID(sessionID string) string
	AddTurn(ctx context.Context, sessionID, userMessage, responseText string) error
	FoldCost(ctx context.Context, sessionID string, usage cost.Usage) error
	EndSession(ctx context.Context, sessionID string) error
}

// MemoryManager is an in-process Manager for tests and embedded runs.
type MemoryManager struct {
	counter *Counter
	costs   *cost.Tracker

	mu       sync.RWMutex
	sessions map[string]*Session
	turns    map[string][]Turn
	baseName string
}

// NewMemoryManager creates a manager whose session ids use baseName.
func NewMemoryManager(baseName string) *MemoryManager {
	return &MemoryManager{
		counter:  NewCounter(),
		costs:    cost.NewTracker(),
		sessions: make(map[string]*Session),
		turns:    make(map[string][]Turn),
		baseName: baseName,
	}
}

// StartSession implements Manager.
func (m *MemoryManager) StartSession(_ context.Context) (string, error) {
	id := GenerateSessionID(m.baseName)
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[id] = &Session{ID: id, StartedAt: time.Now().UTC()}
	return id, nil
}

// NextWorkOrderID implements Manager.
func (m *MemoryManager) NextWorkOrderID(sessionID string) string {
	return workorder.FormatID(sessionID, m.counter.Next(sessionID))
}

// AddTurn implements Manager.
func (m *MemoryManager) AddTurn(_ context.Context, sessionID, userMessage, responseText string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.sessions[sessionID]; !ok {
		return errors.Newf(errors.ErrCodeSessionUnknown, "no session with id %q", sessionID)
	}
	m.turns[sessionID] = append(m.turns[sessionID], Turn{
		ID:           uuid.NewString(),
		SessionID:    sessionID,
		UserMessage:  userMessage,
		ResponseText: responseText,
		CreatedAt:    time.Now().UTC(),
	})
	return nil
}

// FoldCost implements Manager.
func (m *MemoryManager) FoldCost(_ context.Context, sessionID string, usage cost.Usage) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.sessions[sessionID]; !ok {
		return errors.Newf(errors.ErrCodeSessionUnknown, "no session with id %q", sessionID)
	}
	m.costs.Fold(sessionID, usage)
	return nil
}

// EndSession implements Manager.
func (m *MemoryManager) EndSession(_ context.Context, sessionID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[sessionID]
	if !ok || s.EndedAt != nil {
		return errors.Newf(errors.ErrCodeSessionUnknown, "no open session with id %q", sessionID)
	}
	now := time.Now().UTC()
	s.EndedAt = &now
	return nil
}

// Session returns a snapshot of the session record.
func (m *MemoryManager) Session(sessionID string) (Session, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[sessionID]
	if !ok {
		return Session{}, false
	}
	snapshot := *s
	snapshot.TotalCost = m.costs.Session(sessionID)
	return snapshot, true
}

// Turns returns the recorded turns for a session, oldest first.
func (m *MemoryManager) Turns(sessionID string) []Turn {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]Turn(nil), m.turns[sessionID]...)
}
