package tool

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"
	"time"
)

func TestSendEmailSplitsRecipients(t *testing.T) {
	backend := NewMockEmailBackend()
	tool := NewSendEmailTool(backend, nil, nil, slog.Default())

	res, err := tool.Execute(principalCtx("alice"), json.RawMessage(
		`{"to":"a@example.com, b@example.com; c@example.com","subject":"hi","body":"hello"}`))
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if res.IsError {
		t.Fatalf("result error: %s", res.Content)
	}
	if len(backend.Sent) != 3 {
		t.Fatalf("sent = %d, want 3", len(backend.Sent))
	}
	if backend.Sent[0].To != "a@example.com" || backend.Sent[2].To != "c@example.com" {
		t.Errorf("recipients = %+v", backend.Sent)
	}
}

func TestSendEmailAutoSavesUnknownRecipient(t *testing.T) {
	backend := NewMockEmailBackend()
	contacts := newTestContacts(t)
	if err := contacts.Save(context.Background(), "alice", Contact{Name: "Known Person", Email: "known@example.com"}); err != nil {
		t.Fatal(err)
	}
	tool := NewSendEmailTool(backend, contacts, nil, slog.Default())

	res, err := tool.Execute(principalCtx("alice"), json.RawMessage(
		`{"to":"joao.santos@example.com,known@example.com","subject":"s","body":"b"}`))
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if res.IsError {
		t.Fatalf("result error: %s", res.Content)
	}

	c, err := contacts.Lookup(context.Background(), "alice", "Joao Santos")
	if err != nil {
		t.Fatalf("Lookup: %v", err)
	}
	if c == nil || c.Source != "auto_email" {
		t.Errorf("auto-saved contact = %+v", c)
	}

	// The known recipient must not produce a second entry.
	all, err := contacts.All(context.Background(), "alice")
	if err != nil {
		t.Fatalf("All: %v", err)
	}
	if len(all) != 2 {
		t.Errorf("contacts = %d, want 2: %+v", len(all), all)
	}
}

func TestSendEmailRateLimitFailsPerRecipient(t *testing.T) {
	backend := NewMockEmailBackend()
	limiter := NewRateLimiter(1, time.Minute)
	tool := NewSendEmailTool(backend, nil, limiter, slog.Default())

	res, err := tool.Execute(principalCtx("alice"), json.RawMessage(
		`{"to":"a@example.com,b@example.com","subject":"s","body":"b"}`))
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if len(backend.Sent) != 1 {
		t.Fatalf("sent = %d, want 1", len(backend.Sent))
	}
	if !strings.Contains(res.Content, "rate limit") {
		t.Errorf("result should report the limited recipient: %s", res.Content)
	}
}

func TestSendEmailRequiresFields(t *testing.T) {
	tool := NewSendEmailTool(NewMockEmailBackend(), nil, nil, slog.Default())

	res, err := tool.Execute(principalCtx("alice"), json.RawMessage(`{"to":"a@example.com"}`))
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if !res.IsError {
		t.Errorf("missing subject/body should be an error result: %s", res.Content)
	}
}

func TestCheckInboxAndReadEmail(t *testing.T) {
	backend := NewMockEmailBackend()
	backend.Inbox = []EmailMessage{
		{From: "x@example.com", Subject: "first", Body: "body one", Date: "2026-08-30"},
		{From: "y@example.com", Subject: "second", Body: "body two", Date: "2026-08-31"},
	}

	inbox := NewCheckInboxTool(backend, slog.Default())
	res, err := inbox.Execute(principalCtx("alice"), nil)
	if err != nil {
		t.Fatalf("check_inbox: %v", err)
	}
	if !strings.Contains(res.Content, `"count":2`) {
		t.Errorf("inbox result = %s", res.Content)
	}

	read := NewReadEmailTool(backend, slog.Default())
	res, err = read.Execute(principalCtx("alice"), json.RawMessage(`{"email_number":2}`))
	if err != nil {
		t.Fatalf("read_email: %v", err)
	}
	if !strings.Contains(res.Content, "body two") {
		t.Errorf("read result = %s", res.Content)
	}

	res, err = read.Execute(principalCtx("alice"), json.RawMessage(`{"email_number":9}`))
	if err != nil {
		t.Fatalf("read_email out of range: %v", err)
	}
	if !res.IsError {
		t.Errorf("out-of-range read should be an error result: %s", res.Content)
	}
}

func TestReplyEmailTargetsSender(t *testing.T) {
	backend := NewMockEmailBackend()
	backend.Inbox = []EmailMessage{
		{From: "maria@example.com", Subject: "meeting", Body: "can we move it?"},
	}
	tool := NewReplyEmailTool(backend, nil, slog.Default())

	res, err := tool.Execute(principalCtx("alice"), json.RawMessage(`{"email_number":1,"body":"sure, 3pm works"}`))
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if res.IsError {
		t.Fatalf("result error: %s", res.Content)
	}
	if len(backend.Sent) != 1 {
		t.Fatalf("sent = %d, want 1", len(backend.Sent))
	}
	sent := backend.Sent[0]
	if sent.To != "maria@example.com" || sent.Subject != "Re: meeting" {
		t.Errorf("reply = %+v", sent)
	}
}
