package tool

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"
)

func newTestContacts(t *testing.T) *FileContactsBackend {
	t.Helper()
	backend, err := NewFileContactsBackend(t.TempDir())
	if err != nil {
		t.Fatalf("NewFileContactsBackend: %v", err)
	}
	return backend
}

func TestContactsSaveAndLookup(t *testing.T) {
	backend := newTestContacts(t)
	ctx := context.Background()

	if err := backend.Save(ctx, "alice", Contact{Name: "Maria Silva", Email: "maria@example.com"}); err != nil {
		t.Fatalf("Save: %v", err)
	}

	// Lookup is case-insensitive.
	c, err := backend.Lookup(ctx, "alice", "maria silva")
	if err != nil {
		t.Fatalf("Lookup: %v", err)
	}
	if c == nil || c.Email != "maria@example.com" {
		t.Errorf("contact = %+v", c)
	}

	// Unknown name is a nil contact, not an error.
	c, err = backend.Lookup(ctx, "alice", "nobody")
	if err != nil {
		t.Fatalf("Lookup unknown: %v", err)
	}
	if c != nil {
		t.Errorf("expected nil for unknown contact, got %+v", c)
	}
}

func TestContactsSaveFillsMissingFieldsOnly(t *testing.T) {
	backend := newTestContacts(t)
	ctx := context.Background()

	if err := backend.Save(ctx, "alice", Contact{Name: "Maria", Email: "maria@example.com"}); err != nil {
		t.Fatalf("Save: %v", err)
	}
	// Second save adds the phone but must not clobber the email.
	if err := backend.Save(ctx, "alice", Contact{Name: "Maria", Email: "other@example.com", Phone: "+351912345678"}); err != nil {
		t.Fatalf("Save update: %v", err)
	}

	c, err := backend.Lookup(ctx, "alice", "Maria")
	if err != nil {
		t.Fatalf("Lookup: %v", err)
	}
	if c.Email != "maria@example.com" {
		t.Errorf("email overwritten: %q", c.Email)
	}
	if c.Phone != "+351912345678" {
		t.Errorf("phone not filled: %q", c.Phone)
	}
}

func TestContactsArePerPrincipal(t *testing.T) {
	backend := newTestContacts(t)
	ctx := context.Background()

	if err := backend.Save(ctx, "alice", Contact{Name: "Maria", Email: "maria@example.com"}); err != nil {
		t.Fatalf("Save: %v", err)
	}
	c, err := backend.Lookup(ctx, "bob", "Maria")
	if err != nil {
		t.Fatalf("Lookup: %v", err)
	}
	if c != nil {
		t.Errorf("bob should not see alice's contact: %+v", c)
	}
}

func TestLookupContactToolUnknownName(t *testing.T) {
	tool := NewLookupContactTool(newTestContacts(t), slog.Default())

	res, err := tool.Execute(principalCtx("alice"), json.RawMessage(`{"name":"Maria"}`))
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if res.IsError {
		t.Fatalf("lookup miss should not be an error result: %s", res.Content)
	}
	if !strings.Contains(res.Content, `"found":false`) {
		t.Errorf("result = %s, want found:false", res.Content)
	}
}

func TestSaveContactTool(t *testing.T) {
	backend := newTestContacts(t)
	tool := NewSaveContactTool(backend, slog.Default())

	res, err := tool.Execute(principalCtx("alice"), json.RawMessage(`{"name":"Maria","phone":"+351912345678"}`))
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if res.IsError {
		t.Fatalf("result error: %s", res.Content)
	}

	c, err := backend.Lookup(context.Background(), "alice", "Maria")
	if err != nil || c == nil {
		t.Fatalf("Lookup: %v, %+v", err, c)
	}
	if c.Source != "manual" {
		t.Errorf("source = %q, want manual", c.Source)
	}
}
