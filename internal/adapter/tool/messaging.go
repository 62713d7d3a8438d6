package tool

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"go.opentelemetry.io/otel/trace"

	"donna-ai/internal/domain"
)

// MessengerBackend abstracts the instant-messaging service.
type MessengerBackend interface {
	SendText(ctx context.Context, phone, text string) error
}

// MockMessengerBackend records sent messages for tests.
type MockMessengerBackend struct {
	Sent []struct{ Phone, Text string }
	Err  error
}

func (m *MockMessengerBackend) SendText(_ context.Context, phone, text string) error {
	if m.Err != nil {
		return m.Err
	}
	m.Sent = append(m.Sent, struct{ Phone, Text string }{phone, text})
	return nil
}

// SendMessageTool sends an instant message to a phone number.
type SendMessageTool struct {
	backend MessengerBackend
	limiter *RateLimiter
	logger  *slog.Logger
}

func NewSendMessageTool(backend MessengerBackend, limiter *RateLimiter, logger *slog.Logger) *SendMessageTool {
	return &SendMessageTool{backend: backend, limiter: limiter, logger: logger}
}

func (t *SendMessageTool) Name() string { return "send_message" }
func (t *SendMessageTool) Description() string {
	return "Send an instant message to a phone number. Write the message text yourself based on what the user wants to say."
}

func (t *SendMessageTool) Schema() domain.ToolSchema {
	return domain.ToolSchema{
		Name:        t.Name(),
		Description: t.Description(),
		Parameters: json.RawMessage(`{
			"type": "object",
			"properties": {
				"phone": {"type": "string", "description": "Recipient phone number with country code, e.g. +351912345678"},
				"text": {"type": "string", "description": "Message text to send"}
			},
			"required": ["phone", "text"]
		}`),
	}
}

type sendMessageParams struct {
	Phone string `json:"phone"`
	Text  string `json:"text"`
}

func (t *SendMessageTool) Execute(ctx context.Context, params json.RawMessage) (*domain.ToolResult, error) {
	return Execute(ctx, "tool.send_message", t.logger, params,
		func(ctx context.Context, _ trace.Span, p sendMessageParams) (any, error) {
			if err := ValidateAll(
				RequireField("phone", p.Phone),
				RequireField("text", p.Text),
			); err != nil {
				return nil, err
			}
			phone := normalizePhone(p.Phone)
			if phone == "" {
				return nil, fmt.Errorf("phone %q is not a valid number", p.Phone)
			}
			if t.limiter != nil && !t.limiter.Allow() {
				return nil, fmt.Errorf("send rate limit reached, try again shortly")
			}
			if err := t.backend.SendText(ctx, phone, p.Text); err != nil {
				return nil, err
			}
			return map[string]any{"success": true, "message": "Message sent to " + phone}, nil
		})
}

// normalizePhone strips separators and keeps a leading plus. Returns ""
// when nothing dialable remains.
func normalizePhone(raw string) string {
	var b strings.Builder
	for i, r := range raw {
		switch {
		case r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == '+' && i == 0:
			b.WriteRune(r)
		}
	}
	s := b.String()
	if strings.TrimPrefix(s, "+") == "" {
		return ""
	}
	return s
}
