package sqlite

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/loykin/tablesync/internal/history"
)

func countRows(t *testing.T, s *Sink, where string, args ...any) int {
	t.Helper()
	var n int
	if err := s.db.QueryRow("SELECT COUNT(*) FROM change_history "+where, args...).Scan(&n); err != nil {
		t.Fatalf("count: %v", err)
	}
	return n
}

func TestSQLiteSink_Integration(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "test.db")

	sink, err := New("sqlite://" + dbPath)
	if err != nil {
		t.Fatalf("Failed to create sink: %v", err)
	}
	defer func() {
		if err := sink.Close(); err != nil {
			t.Errorf("Failed to close sink: %v", err)
		}
	}()

	ctx := context.Background()
	write := history.NewEvent(history.EventWrite, history.Change{
		Worker: "writer", Table: "orders", Index: 3, Op: "UPSERT", Version: 2, RecordID: 8001,
		Detail: "qty=5 price=100.50",
	})
	if err := sink.Send(ctx, write); err != nil {
		t.Fatalf("Failed to send write event: %v", err)
	}
	observe := history.NewEvent(history.EventObserve, history.Change{
		Worker: "reader", Table: "orders", Index: 3, Op: "UPSERT", Version: 2, RecordID: 8001,
	})
	if err := sink.Send(ctx, observe); err != nil {
		t.Fatalf("Failed to send observe event: %v", err)
	}

	if n := countRows(t, sink, "WHERE table_name = ? AND idx = ?", "orders", 3); n != 2 {
		t.Fatalf("expected 2 rows, got %d", n)
	}
	if n := countRows(t, sink, "WHERE event = ?", "observe"); n != 1 {
		t.Fatalf("expected 1 observe row, got %d", n)
	}
}

func TestSQLiteSink_InMemory(t *testing.T) {
	sink, err := New(":memory:")
	if err != nil {
		t.Fatalf("Failed to create in-memory sink: %v", err)
	}
	defer func() { _ = sink.Close() }()

	ev := history.NewEvent(history.EventWrite, history.Change{Worker: "peer", Table: "users", Index: 0, Op: "UPSERT", Version: 1, RecordID: 2000})
	if err := sink.Send(context.Background(), ev); err != nil {
		t.Fatalf("Failed to send event: %v", err)
	}
	if n := countRows(t, sink, ""); n != 1 {
		t.Fatalf("expected 1 row, got %d", n)
	}
}

func TestSQLiteSink_ContextCancellation(t *testing.T) {
	sink, err := New(":memory:")
	if err != nil {
		t.Fatalf("Failed to create sink: %v", err)
	}
	defer func() { _ = sink.Close() }()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := sink.Send(ctx, history.NewEvent(history.EventWrite, history.Change{})); err == nil {
		t.Logf("driver accepted insert with cancelled context")
	}
}

func TestSQLiteSink_EmptyDSN(t *testing.T) {
	if _, err := New("  "); err == nil {
		t.Fatalf("expected error for empty DSN")
	}
}
