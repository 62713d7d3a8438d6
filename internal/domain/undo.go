package domain

import "time"

// ReversalStep is one compensating instruction recorded by a destructive
// batch operation. Replay goes through the same store operations the
// original mutation used; there is no privileged bypass path.
type ReversalStep struct {
	Action string `json:"action"` // "restore" or "rename"
	TaskID string `json:"task_id"`
	Title  string `json:"title"` // title at the time of the mutation
}

// UndoEntry records the last destructive batch for one principal.
// At most one live entry exists per principal; recording a new one
// discards the previous (single-level undo, not a stack).
type UndoEntry struct {
	Principal string         `json:"principal"`
	BatchID   string         `json:"batch_id"`
	Steps     []ReversalStep `json:"steps"`
	CreatedAt time.Time      `json:"created_at"`
}

// UndoLedger is the single-slot undo record keyed by principal.
// Consume is a destructive read: a second call immediately after returns
// (nil, false), which prevents double-reversal of an already-reversed batch.
type UndoLedger interface {
	Record(principal string, entry UndoEntry)
	Consume(principal string) (*UndoEntry, bool)
}
