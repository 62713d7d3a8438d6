package usecase

import (
	"testing"

	"donna-ai/internal/domain"
)

func TestUndoLedgerConsumeIsDestructive(t *testing.T) {
	ledger := NewInMemoryUndoLedger()
	ledger.Record("alice", domain.UndoEntry{
		BatchID: "b1",
		Steps:   []domain.ReversalStep{{Action: "restore", TaskID: "t1", Title: "buy milk"}},
	})

	entry, ok := ledger.Consume("alice")
	if !ok {
		t.Fatal("expected an entry")
	}
	if entry.BatchID != "b1" || len(entry.Steps) != 1 {
		t.Errorf("unexpected entry: %+v", entry)
	}
	if entry.Principal != "alice" {
		t.Errorf("principal = %q, want alice", entry.Principal)
	}
	if entry.CreatedAt.IsZero() {
		t.Error("CreatedAt should be stamped")
	}

	if _, ok := ledger.Consume("alice"); ok {
		t.Error("second consume should find nothing")
	}
}

func TestUndoLedgerRecordOverwrites(t *testing.T) {
	ledger := NewInMemoryUndoLedger()
	ledger.Record("alice", domain.UndoEntry{BatchID: "old"})
	ledger.Record("alice", domain.UndoEntry{BatchID: "new"})

	entry, ok := ledger.Consume("alice")
	if !ok || entry.BatchID != "new" {
		t.Fatalf("expected the newest entry, got %+v (ok=%v)", entry, ok)
	}
}

func TestUndoLedgerIsPerPrincipal(t *testing.T) {
	ledger := NewInMemoryUndoLedger()
	ledger.Record("alice", domain.UndoEntry{BatchID: "a"})
	ledger.Record("bob", domain.UndoEntry{BatchID: "b"})

	if entry, ok := ledger.Consume("alice"); !ok || entry.BatchID != "a" {
		t.Errorf("alice entry = %+v (ok=%v)", entry, ok)
	}
	// Alice's consume must not touch Bob's slot.
	if entry, ok := ledger.Consume("bob"); !ok || entry.BatchID != "b" {
		t.Errorf("bob entry = %+v (ok=%v)", entry, ok)
	}
}
