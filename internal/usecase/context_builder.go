package usecase

import (
	"fmt"
	"strings"
	"time"

	"donna-ai/internal/domain"
)

// ContextBuilder constructs the prompt message array for reasoning calls.
type ContextBuilder struct {
	systemPrompt string
	model        string
	maxTokens    int
	now          func() time.Time
}

// NewContextBuilder creates a new context builder.
func NewContextBuilder(systemPrompt, model string, maxTokens int) *ContextBuilder {
	return &ContextBuilder{
		systemPrompt: systemPrompt,
		model:        model,
		maxTokens:    maxTokens,
		now:          time.Now,
	}
}

// Build assembles: system prompt + situational context + transcript window.
// The transcript window is already projected by the store; Build does not
// truncate further.
func (cb *ContextBuilder) Build(
	turns []domain.Turn,
	state domain.SessionState,
	tools []domain.ToolSchema,
) domain.ChatRequest {
	messages := make([]domain.Message, 0, 1+len(turns))
	messages = append(messages, domain.Message{
		Role:      domain.RoleSystem,
		Content:   cb.systemContent(state),
		Timestamp: cb.now(),
	})
	for _, t := range turns {
		messages = append(messages, t.Message)
	}

	return domain.ChatRequest{
		Model:     cb.model,
		Messages:  messages,
		Tools:     tools,
		MaxTokens: cb.maxTokens,
	}
}

func (cb *ContextBuilder) systemContent(state domain.SessionState) string {
	var sb strings.Builder
	sb.WriteString(cb.systemPrompt)

	now := cb.now()
	fmt.Fprintf(&sb, "\n\n## Current Context\nNow: %s (%s)\n",
		now.Format("Monday, 2 January 2006 15:04"), timeOfDay(now))

	if state.AccountingActive {
		sb.WriteString("An accounting review session is in progress. Accounting tools are available.\n")
	}
	if state.InvoiceCount > 0 {
		fmt.Fprintf(&sb, "There are %d captured invoices pending review. Invoice tools are available.\n", state.InvoiceCount)
	}
	return sb.String()
}

func timeOfDay(t time.Time) string {
	switch h := t.Hour(); {
	case h < 6:
		return "night"
	case h < 12:
		return "morning"
	case h < 18:
		return "afternoon"
	default:
		return "evening"
	}
}
