package domain

import "context"

// Turn is one immutable unit of a principal's transcript. Sequence numbers
// are assigned by the store, strictly increasing per principal and never
// reused; turns from different principals never interleave.
type Turn struct {
	Principal string  `json:"principal"`
	Seq       uint64  `json:"seq"`
	Message   Message `json:"message"`
}

// ConversationStore persists the append-only transcript per principal.
// Implementations must be durable across process restarts. ReadRecent's
// limit is a read-time projection: older turns remain stored.
type ConversationStore interface {
	Append(ctx context.Context, principal string, msg Message) (Turn, error)
	ReadRecent(ctx context.Context, principal string, limit int) ([]Turn, error)
}
