package logging

import (
	"bufio"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
)

func readEvents(t *testing.T, path string) []Event {
	t.Helper()
	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("open log: %v", err)
	}
	defer f.Close()

	var events []Event
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		var e Event
		if err := json.Unmarshal(scanner.Bytes(), &e); err != nil {
			t.Fatalf("unmarshal event: %v", err)
		}
		events = append(events, e)
	}
	return events
}

func TestLoggerWritesSessionLog(t *testing.T) {
	dir := t.TempDir()
	logger, err := NewLogger(dir, "sess-1")
	if err != nil {
		t.Fatalf("NewLogger: %v", err)
	}
	defer logger.Close()

	if err := logger.Info(CategoryDispatch, "work_order_dispatched", "dispatched", map[string]any{"work_order_id": "WO-sess-1-001"}); err != nil {
		t.Fatalf("Info: %v", err)
	}

	events := readEvents(t, filepath.Join(dir, "sessions", "sess-1.jsonl"))
	if len(events) != 1 {
		t.Fatalf("Expected 1 event, got %d", len(events))
	}
	if events[0].SessionID != "sess-1" {
		t.Errorf("Expected session id to default, got %q", events[0].SessionID)
	}
	if events[0].EventType != "work_order_dispatched" {
		t.Errorf("Expected event type work_order_dispatched, got %q", events[0].EventType)
	}
}

func TestLoggerRoutesErrorsAndBudget(t *testing.T) {
	dir := t.TempDir()
	logger, err := NewLogger(dir, "sess-2")
	if err != nil {
		t.Fatalf("NewLogger: %v", err)
	}
	defer logger.Close()

	logger.Error(CategoryGateway, "gateway_error", "route failed", nil)
	logger.Info(CategoryBudget, "budget_check", "allowed", map[string]any{"remaining": 1200})

	errEvents := readEvents(t, filepath.Join(dir, "errors.jsonl"))
	if len(errEvents) != 1 || errEvents[0].Category != CategoryGateway {
		t.Errorf("Expected 1 gateway error event, got %+v", errEvents)
	}

	budgetEvents := readEvents(t, filepath.Join(dir, "budget.jsonl"))
	if len(budgetEvents) != 1 || budgetEvents[0].EventType != "budget_check" {
		t.Errorf("Expected 1 budget event, got %+v", budgetEvents)
	}
}

func TestLoggerMinLevel(t *testing.T) {
	dir := t.TempDir()
	logger, err := NewLogger(dir, "sess-3")
	if err != nil {
		t.Fatalf("NewLogger: %v", err)
	}
	defer logger.Close()

	logger.Debug(CategoryDispatch, "noise", "below min level", nil)
	events := readEvents(t, filepath.Join(dir, "sessions", "sess-3.jsonl"))
	if len(events) != 0 {
		t.Errorf("Expected debug event to be dropped, got %d events", len(events))
	}

	logger.SetMinLevel(LevelDebug)
	logger.Debug(CategoryDispatch, "noise", "now visible", nil)
	events = readEvents(t, filepath.Join(dir, "sessions", "sess-3.jsonl"))
	if len(events) != 1 {
		t.Errorf("Expected 1 event after lowering min level, got %d", len(events))
	}
}

func TestNilLoggerIsSafe(t *testing.T) {
	var logger *Logger
	if err := logger.Info(CategoryDispatch, "x", "y", nil); err != nil {
		t.Errorf("Expected nil logger to drop events, got %v", err)
	}
	if err := logger.Close(); err != nil {
		t.Errorf("Expected nil logger Close to succeed, got %v", err)
	}
}
