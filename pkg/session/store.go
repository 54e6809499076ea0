package session

import (
	"context"
	"database/sql"
	_ "embed"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/odvcencio/controlplane/pkg/cost"
	"github.com/odvcencio/controlplane/pkg/errors"
	"github.com/odvcencio/controlplane/pkg/workorder"
)

//go:embed schema.sql
var schemaSQL string

// Store is the SQLite-backed session manager. Work order sequence numbers
// live in memory behind the counter; only session and turn records persist.
type Store struct {
	db       *sql.DB
	counter  *Counter
	baseName string
}

// NewStore opens (and initializes) the session database at dbPath.
func NewStore(dbPath, baseName string) (*Store, error) {
	if dbPath != ":memory:" && !strings.HasPrefix(dbPath, "file:") {
		if dir := filepath.Dir(dbPath); dir != "" && dir != "." {
			if err := os.MkdirAll(dir, 0o700); err != nil {
				return nil, fmt.Errorf("failed to create session directory: %w", err)
			}
		}
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open session database: %w", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode = WAL"); err != nil {
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}
	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		return nil, fmt.Errorf("failed to set busy timeout: %w", err)
	}
	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}
	if _, err := db.Exec(schemaSQL); err != nil {
		return nil, fmt.Errorf("failed to initialize session schema: %w", err)
	}

	return &Store{db: db, counter: NewCounter(), baseName: baseName}, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// StartSession implements Manager.
func (s *Store) StartSession(ctx context.Context) (string, error) {
	id := GenerateSessionID(s.baseName)
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO sessions (id, started_at) VALUES (?, ?)`,
		id, time.Now().UTC(),
	)
	if err != nil {
		return "", fmt.Errorf("failed to create session: %w", err)
	}
	return id, nil
}

// NextWorkOrderID implements Manager.
func (s *Store) NextWorkOrderID(sessionID string) string {
	return workorder.FormatID(sessionID, s.counter.Next(sessionID))
}

// AddTurn implements Manager.
func (s *Store) AddTurn(ctx context.Context, sessionID, userMessage, responseText string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO turns (id, session_id, user_message, response_text, created_at) VALUES (?, ?, ?, ?, ?)`,
		uuid.NewString(), sessionID, userMessage, responseText, time.Now().UTC(),
	)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeSessionUnknown, fmt.Sprintf("failed to record turn for session %q", sessionID))
	}
	return nil
}

// FoldCost implements Manager.
func (s *Store) FoldCost(ctx context.Context, sessionID string, usage cost.Usage) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE sessions SET
			input_tokens = input_tokens + ?,
			output_tokens = output_tokens + ?,
			total_tokens = total_tokens + ?,
			llm_calls = llm_calls + ?,
			tool_calls = tool_calls + ?,
			elapsed_ms = elapsed_ms + ?
		WHERE id = ?`,
		usage.InputTokens, usage.OutputTokens, usage.TotalTokens,
		usage.LLMCalls, usage.ToolCalls, usage.ElapsedMS, sessionID,
	)
	if err != nil {
		return fmt.Errorf("failed to fold session cost: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to fold session cost: %w", err)
	}
	if affected == 0 {
		return errors.Newf(errors.ErrCodeSessionUnknown, "no session with id %q", sessionID)
	}
	return nil
}

// EndSession implements Manager.
func (s *Store) EndSession(ctx context.Context, sessionID string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE sessions SET ended_at = ? WHERE id = ? AND ended_at IS NULL`,
		time.Now().UTC(), sessionID,
	)
	if err != nil {
		return fmt.Errorf("failed to end session: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to end session: %w", err)
	}
	if affected == 0 {
		return errors.Newf(errors.ErrCodeSessionUnknown, "no open session with id %q", sessionID)
	}
	return nil
}

// Session loads one session record.
func (s *Store) Session(ctx context.Context, sessionID string) (*Session, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, started_at, ended_at, input_tokens, output_tokens, total_tokens, llm_calls, tool_calls, elapsed_ms
		FROM sessions WHERE id = ?`, sessionID)

	var sess Session
	var endedAt sql.NullTime
	err := row.Scan(&sess.ID, &sess.StartedAt, &endedAt,
		&sess.TotalCost.InputTokens, &sess.TotalCost.OutputTokens, &sess.TotalCost.TotalTokens,
		&sess.TotalCost.LLMCalls, &sess.TotalCost.ToolCalls, &sess.TotalCost.ElapsedMS)
	if err == sql.ErrNoRows {
		return nil, errors.Newf(errors.ErrCodeSessionUnknown, "no session with id %q", sessionID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load session: %w", err)
	}
	if endedAt.Valid {
		sess.EndedAt = &endedAt.Time
	}
	return &sess, nil
}

// RecentTurns returns up to limit turns for the session, newest first.
func (s *Store) RecentTurns(ctx context.Context, sessionID string, limit int) ([]Turn, error) {
	if limit <= 0 {
		limit = 10
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, session_id, user_message, response_text, created_at
		FROM turns WHERE session_id = ?
		ORDER BY created_at DESC LIMIT ?`, sessionID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to read turns: %w", err)
	}
	defer rows.Close()

	var turns []Turn
	for rows.Next() {
		var t Turn
		if err := rows.Scan(&t.ID, &t.SessionID, &t.UserMessage, &t.ResponseText, &t.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan turn: %w", err)
		}
		turns = append(turns, t)
	}
	return turns, rows.Err()
}
