package tool

import (
	"encoding/json"
	"log/slog"
	"strings"
	"testing"
)

func seedSession(mgr *SessionManager, principal string) {
	mgr.Start(principal, []Transaction{
		{Date: "2026-08-01", Description: "CONTINENTE LISBOA", Amount: -54.30, Category: "groceries", Confidence: "high"},
		{Date: "2026-08-02", Description: "GALP ENERGIA", Amount: -80.00, Category: "", Confidence: "low"},
		{Date: "2026-08-03", Description: "TRANSFER FROM ACME LDA", Amount: 1200.00, Category: "income", Confidence: "high"},
	})
}

func TestAccountingStatusCountsBuckets(t *testing.T) {
	mgr := NewSessionManager()
	seedSession(mgr, "alice")
	tool := NewAccountingStatusTool(mgr, slog.Default())

	res, err := tool.Execute(principalCtx("alice"), nil)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if res.IsError {
		t.Fatalf("result error: %s", res.Content)
	}

	var out struct {
		Total       int `json:"total"`
		Categorized int `json:"categorized"`
		Uncertain   int `json:"uncertain"`
	}
	if err := json.Unmarshal([]byte(res.Content), &out); err != nil {
		t.Fatalf("parse: %v", err)
	}
	if out.Total != 3 || out.Categorized != 2 || out.Uncertain != 1 {
		t.Errorf("status = %+v", out)
	}
}

func TestAccountingToolsRequireOpenSession(t *testing.T) {
	mgr := NewSessionManager()
	tool := NewAccountingStatusTool(mgr, slog.Default())

	res, err := tool.Execute(principalCtx("alice"), nil)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if !res.IsError || !strings.Contains(res.Content, "no active accounting session") {
		t.Errorf("result = %+v, want no-session error", res)
	}
}

func TestUpdateTransactionsMatchesBySubstring(t *testing.T) {
	mgr := NewSessionManager()
	seedSession(mgr, "alice")
	tool := NewUpdateTransactionsTool(mgr, slog.Default())

	res, err := tool.Execute(principalCtx("alice"), json.RawMessage(
		`{"updates":[{"match":"galp","category":"fuel"},{"match":"no such thing","category":"x"}]}`))
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if res.IsError {
		t.Fatalf("result error: %s", res.Content)
	}
	if !strings.Contains(res.Content, "not_matched") {
		t.Errorf("result should report the unmatched update: %s", res.Content)
	}

	sess := mgr.Get("alice")
	tx := sess.Transactions[1]
	if tx.Category != "fuel" {
		t.Errorf("category = %q, want fuel", tx.Category)
	}
	// A user-supplied category is authoritative.
	if tx.Confidence != "user" {
		t.Errorf("confidence = %q, want user", tx.Confidence)
	}
}

func TestSkipTransaction(t *testing.T) {
	mgr := NewSessionManager()
	seedSession(mgr, "alice")
	tool := NewSkipTransactionTool(mgr, slog.Default())

	res, err := tool.Execute(principalCtx("alice"), json.RawMessage(`{"match":"transfer from acme"}`))
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if res.IsError {
		t.Fatalf("result error: %s", res.Content)
	}
	if !mgr.Get("alice").Transactions[2].Skipped {
		t.Error("transaction should be skipped")
	}

	res, err = tool.Execute(principalCtx("alice"), json.RawMessage(`{"match":"zzz"}`))
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if !res.IsError {
		t.Errorf("no match should be an error result: %s", res.Content)
	}
}

func TestExportAccountingClosesSession(t *testing.T) {
	mgr := NewSessionManager()
	seedSession(mgr, "alice")
	skip := NewSkipTransactionTool(mgr, slog.Default())
	if _, err := skip.Execute(principalCtx("alice"), json.RawMessage(`{"match":"galp"}`)); err != nil {
		t.Fatalf("skip: %v", err)
	}

	tool := NewExportAccountingTool(mgr, slog.Default())
	res, err := tool.Execute(principalCtx("alice"), nil)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if res.IsError {
		t.Fatalf("result error: %s", res.Content)
	}

	var out struct {
		CSV      string `json:"csv"`
		Exported int    `json:"exported"`
	}
	if err := json.Unmarshal([]byte(res.Content), &out); err != nil {
		t.Fatalf("parse: %v", err)
	}
	if out.Exported != 2 {
		t.Errorf("exported = %d, want 2 (one skipped)", out.Exported)
	}
	if !strings.Contains(out.CSV, "CONTINENTE LISBOA") || strings.Contains(out.CSV, "GALP") {
		t.Errorf("csv content wrong:\n%s", out.CSV)
	}
	if mgr.Active("alice") {
		t.Error("export should close the session")
	}
}

func TestSessionManagerIsPerPrincipal(t *testing.T) {
	mgr := NewSessionManager()
	seedSession(mgr, "alice")

	if !mgr.Active("alice") {
		t.Error("alice should have a session")
	}
	if mgr.Active("bob") {
		t.Error("bob should not have a session")
	}
	mgr.End("alice")
	if mgr.Active("alice") {
		t.Error("ended session still active")
	}
}
