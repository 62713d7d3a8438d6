package tool

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"go.opentelemetry.io/otel/trace"

	"donna-ai/internal/domain"
)

// Contact is one saved contact.
type Contact struct {
	Name   string `json:"name"`
	Email  string `json:"email,omitempty"`
	Phone  string `json:"phone,omitempty"`
	Source string `json:"source,omitempty"` // "manual" or "auto_email"
}

// ContactsBackend abstracts contact storage. Lookup is case-insensitive by
// name.
type ContactsBackend interface {
	Lookup(ctx context.Context, principal, name string) (*Contact, error)
	Save(ctx context.Context, principal string, c Contact) error
	All(ctx context.Context, principal string) ([]Contact, error)
}

// FileContactsBackend stores contacts as one JSON file per principal.
type FileContactsBackend struct {
	mu      sync.Mutex
	dataDir string
}

// NewFileContactsBackend creates a backend that stores contacts in dataDir.
func NewFileContactsBackend(dataDir string) (*FileContactsBackend, error) {
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, fmt.Errorf("create contacts dir: %w", err)
	}
	return &FileContactsBackend{dataDir: dataDir}, nil
}

func (b *FileContactsBackend) path(principal string) string {
	return filepath.Join(b.dataDir, "contacts-"+principal+".json")
}

func (b *FileContactsBackend) load(principal string) (map[string]Contact, error) {
	data, err := os.ReadFile(b.path(principal))
	if os.IsNotExist(err) {
		return map[string]Contact{}, nil
	}
	if err != nil {
		return nil, err
	}
	var contacts map[string]Contact
	if err := json.Unmarshal(data, &contacts); err != nil {
		return nil, fmt.Errorf("parse contacts file: %w", err)
	}
	return contacts, nil
}

func (b *FileContactsBackend) store(principal string, contacts map[string]Contact) error {
	data, err := json.MarshalIndent(contacts, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(b.path(principal), data, 0o600)
}

func (b *FileContactsBackend) Lookup(_ context.Context, principal, name string) (*Contact, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	contacts, err := b.load(principal)
	if err != nil {
		return nil, err
	}
	c, ok := contacts[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return nil, nil
	}
	return &c, nil
}

// Save adds a new contact or fills missing fields on an existing one.
// Existing non-empty fields are never overwritten.
func (b *FileContactsBackend) Save(_ context.Context, principal string, c Contact) error {
	if c.Name == "" {
		return domain.NewDomainError("FileContactsBackend.Save", domain.ErrInvalidInput, "empty name")
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	contacts, err := b.load(principal)
	if err != nil {
		return err
	}

	key := strings.ToLower(strings.TrimSpace(c.Name))
	if existing, ok := contacts[key]; ok {
		if c.Email != "" && existing.Email == "" {
			existing.Email = c.Email
		}
		if c.Phone != "" && existing.Phone == "" {
			existing.Phone = c.Phone
		}
		contacts[key] = existing
	} else {
		c.Name = strings.TrimSpace(c.Name)
		contacts[key] = c
	}
	return b.store(principal, contacts)
}

func (b *FileContactsBackend) All(_ context.Context, principal string) ([]Contact, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	contacts, err := b.load(principal)
	if err != nil {
		return nil, err
	}
	out := make([]Contact, 0, len(contacts))
	for _, c := range contacts {
		out = append(out, c)
	}
	return out, nil
}

// --- lookup_contact ---

// LookupContactTool finds a contact's email/phone by name.
type LookupContactTool struct {
	backend ContactsBackend
	logger  *slog.Logger
}

func NewLookupContactTool(backend ContactsBackend, logger *slog.Logger) *LookupContactTool {
	return &LookupContactTool{backend: backend, logger: logger}
}

func (t *LookupContactTool) Name() string { return "lookup_contact" }
func (t *LookupContactTool) Description() string {
	return "Look up a contact's email or phone number by name. Use this before sending emails or messages to find addresses."
}

func (t *LookupContactTool) Schema() domain.ToolSchema {
	return domain.ToolSchema{
		Name:        t.Name(),
		Description: t.Description(),
		Parameters: json.RawMessage(`{
			"type": "object",
			"properties": {
				"name": {"type": "string", "description": "Contact name to look up"}
			},
			"required": ["name"]
		}`),
	}
}

type lookupContactParams struct {
	Name string `json:"name"`
}

func (t *LookupContactTool) Execute(ctx context.Context, params json.RawMessage) (*domain.ToolResult, error) {
	return Execute(ctx, "tool.lookup_contact", t.logger, params,
		func(ctx context.Context, _ trace.Span, p lookupContactParams) (any, error) {
			if err := RequireField("name", p.Name); err != nil {
				return nil, err
			}
			c, err := t.backend.Lookup(ctx, domain.PrincipalFromContext(ctx), p.Name)
			if err != nil {
				return nil, err
			}
			if c == nil {
				return map[string]any{
					"found":   false,
					"message": fmt.Sprintf("No contact named %q found.", p.Name),
				}, nil
			}
			return map[string]any{
				"found": true,
				"name":  c.Name,
				"email": c.Email,
				"phone": c.Phone,
			}, nil
		})
}

// --- save_contact ---

// SaveContactTool saves or updates a contact.
type SaveContactTool struct {
	backend ContactsBackend
	logger  *slog.Logger
}

func NewSaveContactTool(backend ContactsBackend, logger *slog.Logger) *SaveContactTool {
	return &SaveContactTool{backend: backend, logger: logger}
}

func (t *SaveContactTool) Name() string { return "save_contact" }
func (t *SaveContactTool) Description() string {
	return "Save or update a contact's info. Use this when the user provides someone's email or phone."
}

func (t *SaveContactTool) Schema() domain.ToolSchema {
	return domain.ToolSchema{
		Name:        t.Name(),
		Description: t.Description(),
		Parameters: json.RawMessage(`{
			"type": "object",
			"properties": {
				"name": {"type": "string", "description": "Contact name"},
				"email": {"type": "string", "description": "Email address"},
				"phone": {"type": "string", "description": "Phone number with country code"}
			},
			"required": ["name"]
		}`),
	}
}

type saveContactParams struct {
	Name  string `json:"name"`
	Email string `json:"email"`
	Phone string `json:"phone"`
}

func (t *SaveContactTool) Execute(ctx context.Context, params json.RawMessage) (*domain.ToolResult, error) {
	return Execute(ctx, "tool.save_contact", t.logger, params,
		func(ctx context.Context, _ trace.Span, p saveContactParams) (any, error) {
			if err := RequireField("name", p.Name); err != nil {
				return nil, err
			}
			err := t.backend.Save(ctx, domain.PrincipalFromContext(ctx), Contact{
				Name:   p.Name,
				Email:  p.Email,
				Phone:  p.Phone,
				Source: "manual",
			})
			if err != nil {
				return nil, err
			}
			return map[string]any{"success": true, "name": p.Name}, nil
		})
}
