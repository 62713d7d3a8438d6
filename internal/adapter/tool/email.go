package tool

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"go.opentelemetry.io/otel/trace"

	"donna-ai/internal/domain"
	"donna-ai/internal/infra/tracer"
)

// EmailSummary describes an inbox email without its full body.
type EmailSummary struct {
	Number  int    `json:"number"`
	From    string `json:"from"`
	Subject string `json:"subject"`
	Date    string `json:"date"`
	Snippet string `json:"snippet"`
}

// EmailMessage is a full email with body.
type EmailMessage struct {
	Number  int    `json:"number"`
	From    string `json:"from"`
	To      string `json:"to"`
	Subject string `json:"subject"`
	Body    string `json:"body"`
	Date    string `json:"date"`
}

// EmailBackend abstracts the mail service. Inbox emails are addressed by
// their number from the most recent listing, the way the reasoning step
// refers to them.
type EmailBackend interface {
	Send(ctx context.Context, to, subject, body string) error
	Recent(ctx context.Context, limit int) ([]EmailSummary, error)
	Read(ctx context.Context, number int) (*EmailMessage, error)
	Reply(ctx context.Context, number int, body string) error
}

// MockEmailBackend is an in-memory backend for tests and development.
type MockEmailBackend struct {
	Inbox []EmailMessage
	Sent  []EmailMessage
}

func NewMockEmailBackend() *MockEmailBackend { return &MockEmailBackend{} }

func (m *MockEmailBackend) Send(_ context.Context, to, subject, body string) error {
	m.Sent = append(m.Sent, EmailMessage{To: to, Subject: subject, Body: body})
	return nil
}

func (m *MockEmailBackend) Recent(_ context.Context, limit int) ([]EmailSummary, error) {
	var out []EmailSummary
	for i, msg := range m.Inbox {
		if i >= limit {
			break
		}
		snippet := msg.Body
		if len(snippet) > 80 {
			snippet = snippet[:80]
		}
		out = append(out, EmailSummary{
			Number:  i + 1,
			From:    msg.From,
			Subject: msg.Subject,
			Date:    msg.Date,
			Snippet: snippet,
		})
	}
	return out, nil
}

func (m *MockEmailBackend) Read(_ context.Context, number int) (*EmailMessage, error) {
	if number < 1 || number > len(m.Inbox) {
		return nil, fmt.Errorf("email #%d not found", number)
	}
	msg := m.Inbox[number-1]
	msg.Number = number
	return &msg, nil
}

func (m *MockEmailBackend) Reply(_ context.Context, number int, body string) error {
	if number < 1 || number > len(m.Inbox) {
		return fmt.Errorf("email #%d not found", number)
	}
	orig := m.Inbox[number-1]
	m.Sent = append(m.Sent, EmailMessage{
		To:      orig.From,
		Subject: "Re: " + orig.Subject,
		Body:    body,
	})
	return nil
}

// --- send_email ---

// SendEmailTool sends email, one recipient at a time so a bad address does
// not block the rest. Unknown recipients are auto-saved as contacts.
type SendEmailTool struct {
	backend  EmailBackend
	contacts ContactsBackend
	limiter  *RateLimiter
	logger   *slog.Logger
}

func NewSendEmailTool(backend EmailBackend, contacts ContactsBackend, limiter *RateLimiter, logger *slog.Logger) *SendEmailTool {
	return &SendEmailTool{backend: backend, contacts: contacts, limiter: limiter, logger: logger}
}

func (t *SendEmailTool) Name() string { return "send_email" }
func (t *SendEmailTool) Description() string {
	return "Send an email. Draft the full email body yourself based on what the user wants to say."
}

func (t *SendEmailTool) Schema() domain.ToolSchema {
	return domain.ToolSchema{
		Name:        t.Name(),
		Description: t.Description(),
		Parameters: json.RawMessage(`{
			"type": "object",
			"properties": {
				"to": {"type": "string", "description": "Recipient email address(es), comma-separated for multiple"},
				"subject": {"type": "string", "description": "Email subject line"},
				"body": {"type": "string", "description": "Full email body text"}
			},
			"required": ["to", "subject", "body"]
		}`),
	}
}

type sendEmailParams struct {
	To      string `json:"to"`
	Subject string `json:"subject"`
	Body    string `json:"body"`
}

func (t *SendEmailTool) Execute(ctx context.Context, params json.RawMessage) (*domain.ToolResult, error) {
	return Execute(ctx, "tool.send_email", t.logger, params,
		func(ctx context.Context, span trace.Span, p sendEmailParams) (any, error) {
			if err := ValidateAll(
				RequireField("to", p.To),
				RequireField("subject", p.Subject),
				RequireField("body", p.Body),
			); err != nil {
				return nil, err
			}

			recipients := splitRecipients(p.To)
			if len(recipients) == 0 {
				return nil, fmt.Errorf("no valid recipients in %q", p.To)
			}
			span.SetAttributes(tracer.IntAttr("email.recipients", len(recipients)))

			principal := domain.PrincipalFromContext(ctx)
			var sent, failed []string
			for _, rcpt := range recipients {
				if t.limiter != nil && !t.limiter.Allow() {
					failed = append(failed, rcpt+": send rate limit reached")
					continue
				}
				if err := t.backend.Send(ctx, rcpt, p.Subject, p.Body); err != nil {
					failed = append(failed, fmt.Sprintf("%s: %v", rcpt, err))
					continue
				}
				sent = append(sent, rcpt)
				t.autoSaveContact(ctx, principal, rcpt)
			}

			result := map[string]any{}
			if len(sent) > 0 {
				result["sent_to"] = sent
			}
			if len(failed) > 0 {
				result["failed"] = failed
			}
			return result, nil
		})
}

// autoSaveContact remembers a recipient we have not seen before. Failures
// are logged, never surfaced: contact bookkeeping must not fail a send.
func (t *SendEmailTool) autoSaveContact(ctx context.Context, principal, addr string) {
	if t.contacts == nil {
		return
	}
	existing, err := t.contacts.All(ctx, principal)
	if err != nil {
		t.logger.Warn("contact auto-save skipped", "error", err)
		return
	}
	for _, c := range existing {
		if strings.EqualFold(c.Email, addr) {
			return
		}
	}

	local, _, ok := strings.Cut(addr, "@")
	if !ok {
		return
	}
	name := titleWords(strings.NewReplacer(".", " ", "_", " ").Replace(local))
	if err := t.contacts.Save(ctx, principal, Contact{Name: name, Email: addr, Source: "auto_email"}); err != nil {
		t.logger.Warn("contact auto-save failed", "email", addr, "error", err)
	}
}

func titleWords(s string) string {
	words := strings.Fields(s)
	for i, w := range words {
		words[i] = strings.ToUpper(w[:1]) + w[1:]
	}
	return strings.Join(words, " ")
}

func splitRecipients(raw string) []string {
	var out []string
	for _, part := range strings.Split(strings.ReplaceAll(raw, ";", ","), ",") {
		if addr := strings.TrimSpace(part); addr != "" {
			out = append(out, addr)
		}
	}
	return out
}

// --- check_inbox ---

// CheckInboxTool lists recent received emails.
type CheckInboxTool struct {
	backend EmailBackend
	logger  *slog.Logger
}

func NewCheckInboxTool(backend EmailBackend, logger *slog.Logger) *CheckInboxTool {
	return &CheckInboxTool{backend: backend, logger: logger}
}

func (t *CheckInboxTool) Name() string        { return "check_inbox" }
func (t *CheckInboxTool) Description() string { return "Check recent received emails." }

func (t *CheckInboxTool) Schema() domain.ToolSchema {
	return domain.ToolSchema{
		Name:        t.Name(),
		Description: t.Description(),
		Parameters: json.RawMessage(`{
			"type": "object",
			"properties": {
				"limit": {"type": "integer", "description": "Number of emails to show (default 10)"}
			}
		}`),
	}
}

type checkInboxParams struct {
	Limit int `json:"limit"`
}

func (t *CheckInboxTool) Execute(ctx context.Context, params json.RawMessage) (*domain.ToolResult, error) {
	return Execute(ctx, "tool.check_inbox", t.logger, params,
		func(ctx context.Context, _ trace.Span, p checkInboxParams) (any, error) {
			limit := p.Limit
			if limit <= 0 {
				limit = 10
			}
			emails, err := t.backend.Recent(ctx, limit)
			if err != nil {
				return nil, err
			}
			return map[string]any{"inbox": emails, "count": len(emails)}, nil
		})
}

// --- read_email ---

// ReadEmailTool reads one inbox email in full.
type ReadEmailTool struct {
	backend EmailBackend
	logger  *slog.Logger
}

func NewReadEmailTool(backend EmailBackend, logger *slog.Logger) *ReadEmailTool {
	return &ReadEmailTool{backend: backend, logger: logger}
}

func (t *ReadEmailTool) Name() string { return "read_email" }
func (t *ReadEmailTool) Description() string {
	return "Read the full content of a specific email by its number."
}

func (t *ReadEmailTool) Schema() domain.ToolSchema {
	return domain.ToolSchema{
		Name:        t.Name(),
		Description: t.Description(),
		Parameters: json.RawMessage(`{
			"type": "object",
			"properties": {
				"email_number": {"type": "integer", "description": "Email number from the inbox list"}
			},
			"required": ["email_number"]
		}`),
	}
}

type readEmailParams struct {
	EmailNumber int `json:"email_number"`
}

func (t *ReadEmailTool) Execute(ctx context.Context, params json.RawMessage) (*domain.ToolResult, error) {
	return Execute(ctx, "tool.read_email", t.logger, params,
		func(ctx context.Context, _ trace.Span, p readEmailParams) (any, error) {
			if err := ValidatePositive("email_number", p.EmailNumber); err != nil {
				return nil, err
			}
			msg, err := t.backend.Read(ctx, p.EmailNumber)
			if err != nil {
				return nil, err
			}
			return map[string]any{"email": msg}, nil
		})
}

// --- reply_to_email ---

// ReplyEmailTool replies to an inbox email by number.
type ReplyEmailTool struct {
	backend EmailBackend
	limiter *RateLimiter
	logger  *slog.Logger
}

func NewReplyEmailTool(backend EmailBackend, limiter *RateLimiter, logger *slog.Logger) *ReplyEmailTool {
	return &ReplyEmailTool{backend: backend, limiter: limiter, logger: logger}
}

func (t *ReplyEmailTool) Name() string { return "reply_to_email" }
func (t *ReplyEmailTool) Description() string {
	return "Reply to an email by its number. Draft the reply body based on what the user wants to say."
}

func (t *ReplyEmailTool) Schema() domain.ToolSchema {
	return domain.ToolSchema{
		Name:        t.Name(),
		Description: t.Description(),
		Parameters: json.RawMessage(`{
			"type": "object",
			"properties": {
				"email_number": {"type": "integer", "description": "Email number to reply to"},
				"body": {"type": "string", "description": "Reply body text"}
			},
			"required": ["email_number", "body"]
		}`),
	}
}

type replyEmailParams struct {
	EmailNumber int    `json:"email_number"`
	Body        string `json:"body"`
}

func (t *ReplyEmailTool) Execute(ctx context.Context, params json.RawMessage) (*domain.ToolResult, error) {
	return Execute(ctx, "tool.reply_to_email", t.logger, params,
		func(ctx context.Context, _ trace.Span, p replyEmailParams) (any, error) {
			if err := ValidateAll(
				ValidatePositive("email_number", p.EmailNumber),
				RequireField("body", p.Body),
			); err != nil {
				return nil, err
			}
			if t.limiter != nil && !t.limiter.Allow() {
				return nil, fmt.Errorf("send rate limit reached, try again shortly")
			}
			if err := t.backend.Reply(ctx, p.EmailNumber, p.Body); err != nil {
				return nil, err
			}
			return map[string]any{"success": true, "message": fmt.Sprintf("Reply sent to email #%d", p.EmailNumber)}, nil
		})
}
