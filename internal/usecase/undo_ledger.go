package usecase

import (
	"sync"
	"time"

	"donna-ai/internal/domain"
)

// InMemoryUndoLedger holds at most one undoable action per principal.
// Recording overwrites the previous entry; consuming removes it. The
// ledger is process-local: undo covers the most recent action in the
// current conversation, not an audit history.
type InMemoryUndoLedger struct {
	mu      sync.Mutex
	entries map[string]*domain.UndoEntry
}

func NewInMemoryUndoLedger() *InMemoryUndoLedger {
	return &InMemoryUndoLedger{entries: make(map[string]*domain.UndoEntry)}
}

func (l *InMemoryUndoLedger) Record(principal string, entry domain.UndoEntry) {
	l.mu.Lock()
	defer l.mu.Unlock()
	entry.Principal = principal
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now()
	}
	l.entries[principal] = &entry
}

func (l *InMemoryUndoLedger) Consume(principal string) (*domain.UndoEntry, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	entry, ok := l.entries[principal]
	if !ok {
		return nil, false
	}
	delete(l.entries, principal)
	return entry, true
}
