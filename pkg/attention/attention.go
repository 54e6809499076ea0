// Package attention retrieves context fragments for synthesis: recent
// conversational history via horizontal scan and pinned, always-relevant
// fragments via priority probe. Fragments are opaque to the consumer and
// forwarded verbatim into synthesize input context.
package attention

import (
	"context"
	"time"
)

// Fragment is one unit of retrieved context.
type Fragment struct {
	ID        string    `json:"id"`
	SessionID string    `json:"session_id,omitempty"`
	Source    string    `json:"source"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

// Fragment sources.
const (
	SourceHistory = "history"
	SourcePinned  = "pinned"
)

// Service is the context retrieval contract the supervisor consumes.
type Service interface {
	// HorizontalScan returns fragments drawn from the session's recent turns.
	HorizontalScan(ctx context.Context, sessionID string) ([]Fragment, error)
	// PriorityProbe returns pinned fragments relevant regardless of session.
	PriorityProbe(ctx context.Context) ([]Fragment, error)
}
