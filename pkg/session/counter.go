// Package session manages conversational sessions: identifiers, the
// per-session work order counter, turn records, and running cost totals.
package session

import "sync"

// Counter hands out per-session monotonic sequence numbers. It is safe for
// concurrent use by multiple sessions; cross-session ordering is
// deliberately unspecified.
type Counter struct {
	mu   sync.Mutex
	seqs map[string]int
}

// NewCounter creates an empty counter.
func NewCounter() *Counter {
	return &Counter{seqs: make(map[string]int)}
}

// Next returns the next sequence number for the session, starting at 1.
func (c *Counter) Next(sessionID string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.seqs[sessionID]++
	return c.seqs[sessionID]
}

// Peek returns the last sequence number issued for the session.
func (c *Counter) Peek(sessionID string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.seqs[sessionID]
}
