package domain

import (
	"context"
	"encoding/json"
)

// ToolSchema describes a tool for the reasoning provider's function-calling
// protocol. Parameters must be a JSON Schema of type "object" with named,
// typed properties; providers reject anything else before sending.
type ToolSchema struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Parameters  json.RawMessage `json:"parameters"`
}

// ToolCall represents the reasoning step's request to invoke a tool.
type ToolCall struct {
	ID        string          `json:"id"`
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments"`
}

// ToolResult is the outcome of executing a tool. Every ToolCall produces
// exactly one ToolResult, including lookup misses and executor failures.
type ToolResult struct {
	ToolCallID string `json:"tool_call_id"`
	Name       string `json:"name,omitempty"`
	Content    string `json:"content"`
	IsError    bool   `json:"is_error"`
}

// Tool is the interface every tool must implement.
type Tool interface {
	Name() string
	Description() string
	Schema() ToolSchema
	Execute(ctx context.Context, params json.RawMessage) (*ToolResult, error)
}

// ToolExecutor abstracts tool lookup and execution over one registry snapshot.
type ToolExecutor interface {
	Get(name string) (Tool, error)
	Schemas() []ToolSchema
}

// SessionState carries the per-principal predicate inputs used to compose a
// tool snapshot. It is computed fresh for each inbound message; composition
// over it is pure and deterministic.
type SessionState struct {
	// AccountingActive is set while a reconciliation session is open for the
	// principal (set/cleared by the accounting upload/close flow).
	AccountingActive bool
	// InvoiceCount is the number of stored invoices for the principal.
	InvoiceCount int
}
