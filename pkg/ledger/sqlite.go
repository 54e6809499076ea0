package ledger

import (
	"context"
	"database/sql"
	_ "embed"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
	_ "modernc.org/sqlite"
)

//go:embed schema.sql
var schemaSQL string

// Store is the SQLite-backed ledger.
type Store struct {
	db *sql.DB
}

// NewStore opens (and initializes) the ledger database at dbPath.
// ":memory:" is accepted for tests.
func NewStore(dbPath string) (*Store, error) {
	if dbPath != ":memory:" && !strings.HasPrefix(dbPath, "file:") {
		// Audit trails can hold prompt fragments; keep the directory private.
		if dir := filepath.Dir(dbPath); dir != "" && dir != "." {
			if err := os.MkdirAll(dir, 0o700); err != nil {
				return nil, fmt.Errorf("failed to create ledger directory: %w", err)
			}
		}
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open ledger database: %w", err)
	}

	// WAL allows multiple readers alongside the single writer.
	if _, err := db.Exec("PRAGMA journal_mode = WAL"); err != nil {
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}
	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		return nil, fmt.Errorf("failed to set busy timeout: %w", err)
	}

	if _, err := db.Exec(schemaSQL); err != nil {
		return nil, fmt.Errorf("failed to initialize ledger schema: %w", err)
	}

	return &Store{db: db}, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Write implements Writer.
func (s *Store) Write(ctx context.Context, entry Entry) (string, error) {
	if entry.ID == "" {
		entry.ID = ulid.Make().String()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}

	var metadata []byte
	if entry.Metadata != nil {
		data, err := json.Marshal(entry.Metadata)
		if err != nil {
			return "", fmt.Errorf("failed to marshal entry metadata: %w", err)
		}
		metadata = data
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO ledger_entries (id, event_type, submission_id, session_id, decision, reason, metadata, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		entry.ID, entry.EventType, entry.SubmissionID, entry.SessionID,
		entry.Decision, entry.Reason, string(metadata), entry.CreatedAt,
	)
	if err != nil {
		return "", fmt.Errorf("failed to append ledger entry: %w", err)
	}
	return entry.ID, nil
}

// Entries implements Reader. Results come back in append (id) order.
func (s *Store) Entries(ctx context.Context, filter Filter) ([]Entry, error) {
	query := `SELECT id, event_type, submission_id, session_id, decision, reason, metadata, created_at
		FROM ledger_entries`
	var clauses []string
	var args []any

	if filter.SessionID != "" {
		clauses = append(clauses, "session_id = ?")
		args = append(args, filter.SessionID)
	}
	if len(filter.WorkOrderIDs) > 0 {
		placeholders := strings.Repeat("?,", len(filter.WorkOrderIDs))
		clauses = append(clauses, fmt.Sprintf("submission_id IN (%s)", placeholders[:len(placeholders)-1]))
		for _, id := range filter.WorkOrderIDs {
			args = append(args, id)
		}
	}
	if len(clauses) > 0 {
		query += " WHERE " + strings.Join(clauses, " AND ")
	}
	query += " ORDER BY id"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to read ledger entries: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		var sessionID, decision, reason, metadata sql.NullString
		if err := rows.Scan(&e.ID, &e.EventType, &e.SubmissionID, &sessionID, &decision, &reason, &metadata, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan ledger entry: %w", err)
		}
		e.SessionID = sessionID.String
		e.Decision = decision.String
		e.Reason = reason.String
		if metadata.String != "" {
			if err := json.Unmarshal([]byte(metadata.String), &e.Metadata); err != nil {
				return nil, fmt.Errorf("failed to decode metadata for entry %s: %w", e.ID, err)
			}
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
