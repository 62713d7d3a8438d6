package tool

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel/trace"

	"donna-ai/internal/domain"
)

// Transaction is one bank-statement line under review in an accounting
// session.
type Transaction struct {
	Date        string  `json:"date"`
	Description string  `json:"description"`
	Amount      float64 `json:"amount"`
	Category    string  `json:"category"`
	Note        string  `json:"note,omitempty"`
	Confidence  string  `json:"confidence"`
	Skipped     bool    `json:"skipped,omitempty"`
}

// AccountingSession holds the transactions of one review session.
type AccountingSession struct {
	Principal    string
	StartedAt    time.Time
	Transactions []Transaction
}

// SessionManager tracks accounting review sessions per principal. Sessions
// live in memory only: a review is an interactive activity bound to the
// process lifetime.
type SessionManager struct {
	mu       sync.Mutex
	sessions map[string]*AccountingSession
}

func NewSessionManager() *SessionManager {
	return &SessionManager{sessions: make(map[string]*AccountingSession)}
}

// Active reports whether the principal has an accounting session open.
func (m *SessionManager) Active(principal string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.sessions[principal]
	return ok
}

// Start opens a session with the given transactions, replacing any prior one.
func (m *SessionManager) Start(principal string, txs []Transaction) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[principal] = &AccountingSession{
		Principal:    principal,
		StartedAt:    time.Now(),
		Transactions: txs,
	}
}

// Get returns the principal's session or nil.
func (m *SessionManager) Get(principal string) *AccountingSession {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sessions[principal]
}

// End closes the principal's session.
func (m *SessionManager) End(principal string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, principal)
}

func sessionFor(ctx context.Context, mgr *SessionManager) (*AccountingSession, error) {
	principal := domain.PrincipalFromContext(ctx)
	sess := mgr.Get(principal)
	if sess == nil {
		return nil, domain.ErrNoActiveSession
	}
	return sess, nil
}

// --- get_accounting_status ---

// AccountingStatusTool summarizes the current review session.
type AccountingStatusTool struct {
	sessions *SessionManager
	logger   *slog.Logger
}

func NewAccountingStatusTool(sessions *SessionManager, logger *slog.Logger) *AccountingStatusTool {
	return &AccountingStatusTool{sessions: sessions, logger: logger}
}

func (t *AccountingStatusTool) Name() string { return "get_accounting_status" }
func (t *AccountingStatusTool) Description() string {
	return "Get the status of the current accounting review: how many transactions are categorized, uncertain, or skipped."
}

func (t *AccountingStatusTool) Schema() domain.ToolSchema {
	return domain.ToolSchema{
		Name:        t.Name(),
		Description: t.Description(),
		Parameters:  json.RawMessage(`{"type": "object", "properties": {}}`),
	}
}

type emptyParams struct{}

func (t *AccountingStatusTool) Execute(ctx context.Context, params json.RawMessage) (*domain.ToolResult, error) {
	return Execute(ctx, "tool.get_accounting_status", t.logger, params,
		func(ctx context.Context, _ trace.Span, _ emptyParams) (any, error) {
			sess, err := sessionFor(ctx, t.sessions)
			if err != nil {
				return nil, err
			}
			var categorized, uncertain, skipped int
			var pending []map[string]any
			for i, tx := range sess.Transactions {
				switch {
				case tx.Skipped:
					skipped++
				case tx.Confidence == "low" || tx.Category == "":
					uncertain++
					pending = append(pending, map[string]any{
						"number":      i + 1,
						"date":        tx.Date,
						"description": tx.Description,
						"amount":      tx.Amount,
						"category":    tx.Category,
					})
				default:
					categorized++
				}
			}
			return map[string]any{
				"total":       len(sess.Transactions),
				"categorized": categorized,
				"uncertain":   uncertain,
				"skipped":     skipped,
				"pending":     pending,
			}, nil
		})
}

// --- update_transactions ---

// UpdateTransactionsTool applies category or note updates to transactions
// matched by description substring.
type UpdateTransactionsTool struct {
	sessions *SessionManager
	logger   *slog.Logger
}

func NewUpdateTransactionsTool(sessions *SessionManager, logger *slog.Logger) *UpdateTransactionsTool {
	return &UpdateTransactionsTool{sessions: sessions, logger: logger}
}

func (t *UpdateTransactionsTool) Name() string { return "update_transactions" }
func (t *UpdateTransactionsTool) Description() string {
	return "Update the category or note of transactions in the current review. Matches by description substring, case-insensitive."
}

func (t *UpdateTransactionsTool) Schema() domain.ToolSchema {
	return domain.ToolSchema{
		Name:        t.Name(),
		Description: t.Description(),
		Parameters: json.RawMessage(`{
			"type": "object",
			"properties": {
				"updates": {
					"type": "array",
					"description": "Transaction updates to apply",
					"items": {
						"type": "object",
						"properties": {
							"match": {"type": "string", "description": "Description substring to match"},
							"category": {"type": "string", "description": "New category"},
							"note": {"type": "string", "description": "New note"}
						},
						"required": ["match"]
					}
				}
			},
			"required": ["updates"]
		}`),
	}
}

type transactionUpdate struct {
	Match    string `json:"match"`
	Category string `json:"category"`
	Note     string `json:"note"`
}

type updateTransactionsParams struct {
	Updates []transactionUpdate `json:"updates"`
}

func (t *UpdateTransactionsTool) Execute(ctx context.Context, params json.RawMessage) (*domain.ToolResult, error) {
	return Execute(ctx, "tool.update_transactions", t.logger, params,
		func(ctx context.Context, span trace.Span, p updateTransactionsParams) (any, error) {
			if len(p.Updates) == 0 {
				return nil, fmt.Errorf("updates must not be empty")
			}
			sess, err := sessionFor(ctx, t.sessions)
			if err != nil {
				return nil, err
			}

			var applied []string
			var notMatched []string
			for _, u := range p.Updates {
				if strings.TrimSpace(u.Match) == "" {
					notMatched = append(notMatched, "(empty match)")
					continue
				}
				matched := 0
				needle := strings.ToLower(u.Match)
				for i := range sess.Transactions {
					tx := &sess.Transactions[i]
					if !strings.Contains(strings.ToLower(tx.Description), needle) {
						continue
					}
					if u.Category != "" {
						tx.Category = u.Category
						tx.Confidence = "user"
					}
					if u.Note != "" {
						tx.Note = u.Note
					}
					tx.Skipped = false
					matched++
				}
				if matched == 0 {
					notMatched = append(notMatched, u.Match)
				} else {
					applied = append(applied, fmt.Sprintf("%s (%d matched)", u.Match, matched))
				}
			}

			result := map[string]any{}
			if len(applied) > 0 {
				result["updated"] = applied
			}
			if len(notMatched) > 0 {
				result["not_matched"] = notMatched
			}
			return result, nil
		})
}

// --- skip_transaction ---

// SkipTransactionTool marks a transaction to be left out of the export.
type SkipTransactionTool struct {
	sessions *SessionManager
	logger   *slog.Logger
}

func NewSkipTransactionTool(sessions *SessionManager, logger *slog.Logger) *SkipTransactionTool {
	return &SkipTransactionTool{sessions: sessions, logger: logger}
}

func (t *SkipTransactionTool) Name() string { return "skip_transaction" }
func (t *SkipTransactionTool) Description() string {
	return "Skip a transaction so it is excluded from the accounting export. Matches by description substring."
}

func (t *SkipTransactionTool) Schema() domain.ToolSchema {
	return domain.ToolSchema{
		Name:        t.Name(),
		Description: t.Description(),
		Parameters: json.RawMessage(`{
			"type": "object",
			"properties": {
				"match": {"type": "string", "description": "Description substring of the transaction to skip"}
			},
			"required": ["match"]
		}`),
	}
}

type skipTransactionParams struct {
	Match string `json:"match"`
}

func (t *SkipTransactionTool) Execute(ctx context.Context, params json.RawMessage) (*domain.ToolResult, error) {
	return Execute(ctx, "tool.skip_transaction", t.logger, params,
		func(ctx context.Context, _ trace.Span, p skipTransactionParams) (any, error) {
			if err := RequireField("match", p.Match); err != nil {
				return nil, err
			}
			sess, err := sessionFor(ctx, t.sessions)
			if err != nil {
				return nil, err
			}
			needle := strings.ToLower(p.Match)
			skipped := 0
			for i := range sess.Transactions {
				if strings.Contains(strings.ToLower(sess.Transactions[i].Description), needle) {
					sess.Transactions[i].Skipped = true
					skipped++
				}
			}
			if skipped == 0 {
				return nil, fmt.Errorf("no transaction matching %q", p.Match)
			}
			return map[string]any{"skipped": skipped}, nil
		})
}

// --- export_accounting ---

// ExportAccountingTool renders the non-skipped transactions as CSV and
// closes the session.
type ExportAccountingTool struct {
	sessions *SessionManager
	logger   *slog.Logger
}

func NewExportAccountingTool(sessions *SessionManager, logger *slog.Logger) *ExportAccountingTool {
	return &ExportAccountingTool{sessions: sessions, logger: logger}
}

func (t *ExportAccountingTool) Name() string { return "export_accounting" }
func (t *ExportAccountingTool) Description() string {
	return "Export the reviewed transactions as CSV and close the accounting session. Only use when the user confirms the review is done."
}

func (t *ExportAccountingTool) Schema() domain.ToolSchema {
	return domain.ToolSchema{
		Name:        t.Name(),
		Description: t.Description(),
		Parameters:  json.RawMessage(`{"type": "object", "properties": {}}`),
	}
}

func (t *ExportAccountingTool) Execute(ctx context.Context, params json.RawMessage) (*domain.ToolResult, error) {
	return Execute(ctx, "tool.export_accounting", t.logger, params,
		func(ctx context.Context, _ trace.Span, _ emptyParams) (any, error) {
			sess, err := sessionFor(ctx, t.sessions)
			if err != nil {
				return nil, err
			}
			csvText, exported := renderAccountingCSV(sess.Transactions)
			t.sessions.End(domain.PrincipalFromContext(ctx))
			return map[string]any{
				"csv":      csvText,
				"exported": exported,
				"message":  fmt.Sprintf("Exported %d transactions, session closed.", exported),
			}, nil
		})
}

func renderAccountingCSV(txs []Transaction) (string, int) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	_ = w.Write([]string{"date", "description", "amount", "category", "note"})
	count := 0
	for _, tx := range txs {
		if tx.Skipped {
			continue
		}
		_ = w.Write([]string{
			tx.Date,
			tx.Description,
			strconv.FormatFloat(tx.Amount, 'f', 2, 64),
			tx.Category,
			tx.Note,
		})
		count++
	}
	w.Flush()
	return buf.String(), count
}
