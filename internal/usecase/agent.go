package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel/trace"

	"donna-ai/internal/domain"
	"donna-ai/internal/infra/tracer"
)

// ToolSource yields the tool set visible to a principal for one run.
// Implementations must be pure: the same principal and state always
// produce the same set.
type ToolSource interface {
	Snapshot(principal string, state domain.SessionState) domain.ToolExecutor
}

// StateFunc reports the session state used to select tool groups.
type StateFunc func(ctx context.Context, principal string) domain.SessionState

// AgentDeps holds injected dependencies for the agent.
type AgentDeps struct {
	LLM            domain.LLMProvider
	Store          domain.ConversationStore
	Tools          ToolSource
	State          StateFunc // optional, nil = zero state
	ContextBuilder *ContextBuilder
	Locker         *RunLocker // optional, nil = no per-principal locking
	Logger         *slog.Logger
	MaxTurns       int
	HistoryWindow  int
}

// RunResult is the outcome of one agent run.
type RunResult struct {
	FinalText   string
	ToolResults []domain.ToolResult
	TurnsUsed   int
}

// Agent orchestrates the receive-think-act loop over a durable transcript.
type Agent struct {
	deps AgentDeps
}

// NewAgent creates an agent with the given dependencies.
func NewAgent(deps AgentDeps) *Agent {
	if deps.MaxTurns == 0 {
		deps.MaxTurns = 5
	}
	if deps.HistoryWindow <= 0 {
		deps.HistoryWindow = 20
	}
	return &Agent{deps: deps}
}

// Run processes one user message. The reasoning loop calls the model up to
// MaxTurns times, executing requested tool calls between turns. Reasoning
// failures and an exhausted turn budget degrade into a final apologetic
// reply rather than an error: by then tools may already have run, and the
// user must hear what happened.
func (a *Agent) Run(ctx context.Context, principal, userMsg string) (*RunResult, error) {
	ctx, span := tracer.StartSpan(ctx, "agent.run",
		trace.WithAttributes(tracer.StringAttr("principal", principal)),
	)
	defer span.End()

	if principal == "" {
		return nil, domain.NewDomainError("Agent.Run", domain.ErrInvalidInput, "principal must not be empty")
	}
	if a.deps.MaxTurns < 1 {
		return nil, domain.NewDomainError("Agent.Run", domain.ErrInvalidInput, "max turns must be >= 1")
	}

	if a.deps.Locker != nil {
		unlock, err := a.deps.Locker.Lock(ctx, principal)
		if err != nil {
			return nil, domain.NewDomainError("Agent.Run", err, "run lock")
		}
		defer unlock()
	}

	ctx = domain.ContextWithPrincipal(ctx, principal)

	var state domain.SessionState
	if a.deps.State != nil {
		state = a.deps.State(ctx, principal)
	}
	tools := a.deps.Tools.Snapshot(principal, state)

	if _, err := a.deps.Store.Append(ctx, principal, domain.Message{
		Role:      domain.RoleUser,
		Content:   userMsg,
		Timestamp: time.Now(),
	}); err != nil {
		return nil, domain.WrapOp("Agent.Run", err)
	}

	result := &RunResult{}
	var totalUsage domain.Usage

	for turn := 0; turn < a.deps.MaxTurns; turn++ {
		result.TurnsUsed = turn + 1
		span.AddEvent("agent.turn", trace.WithAttributes(tracer.IntAttr("turn", turn)))

		window, err := a.deps.Store.ReadRecent(ctx, principal, a.deps.HistoryWindow)
		if err != nil {
			return nil, domain.WrapOp("Agent.Run", err)
		}
		chatReq := a.deps.ContextBuilder.Build(window, state, tools.Schemas())

		llmCtx, llmSpan := tracer.StartSpan(ctx, "agent.llm_call")
		resp, llmErr := a.deps.LLM.Chat(llmCtx, chatReq)
		llmSpan.End()

		if llmErr != nil {
			tracer.RecordError(span, llmErr)
			// Shutdown abandons the run without a partial assistant turn.
			if ctx.Err() != nil {
				return nil, domain.WrapOp("Agent.Run", ctx.Err())
			}
			a.deps.Logger.Error("reasoning call failed", "turn", turn, "error", llmErr)
			return a.finishDegraded(ctx, principal, result,
				fmt.Sprintf("Hmm, hit a snag: %v", llmErr))
		}

		totalUsage.PromptTokens += resp.Usage.PromptTokens
		totalUsage.CompletionTokens += resp.Usage.CompletionTokens
		totalUsage.TotalTokens += resp.Usage.TotalTokens

		msg := resp.Message
		if _, err := a.deps.Store.Append(ctx, principal, msg); err != nil {
			return nil, domain.WrapOp("Agent.Run", err)
		}

		a.deps.Logger.Debug("llm response",
			"turn", turn,
			"tool_calls", len(msg.ToolCalls),
			"tokens", resp.Usage.TotalTokens,
		)

		// No tool calls = final response.
		if len(msg.ToolCalls) == 0 {
			result.FinalText = msg.Content
			tracer.SetOK(span)
			return result, nil
		}

		// Execute tool calls in parallel. Results land in an indexed slice
		// so they are appended in request order regardless of completion
		// order.
		toolResults := make([]domain.ToolResult, len(msg.ToolCalls))
		var wg sync.WaitGroup
		for i, call := range msg.ToolCalls {
			wg.Add(1)
			go func(idx int, c domain.ToolCall) {
				defer wg.Done()
				toolResults[idx] = a.executeTool(ctx, tools, c)
			}(i, call)
		}
		wg.Wait()

		for _, tr := range toolResults {
			result.ToolResults = append(result.ToolResults, tr)
			if _, err := a.deps.Store.Append(ctx, principal, domain.Message{
				Role:    domain.RoleTool,
				Name:    tr.Name,
				Content: tr.Content,
				ToolCalls: []domain.ToolCall{{
					ID:   tr.ToolCallID,
					Name: tr.Name,
				}},
				Timestamp: time.Now(),
			}); err != nil {
				return nil, domain.WrapOp("Agent.Run", err)
			}
		}
	}

	tracer.RecordError(span, domain.ErrMaxTurns)
	a.deps.Logger.Warn("turn budget exhausted", "max_turns", a.deps.MaxTurns)
	return a.finishDegraded(ctx, principal, result,
		"Sorry, that took more steps than I had. Here is where I got to; ask me to continue if you want me to keep going.")
}

// finishDegraded records the degraded reply on the transcript and returns
// it as a successful result. Tool effects from earlier turns are already
// durable.
func (a *Agent) finishDegraded(ctx context.Context, principal string, result *RunResult, text string) (*RunResult, error) {
	result.FinalText = text
	if _, err := a.deps.Store.Append(ctx, principal, domain.Message{
		Role:      domain.RoleAssistant,
		Content:   text,
		Timestamp: time.Now(),
	}); err != nil {
		a.deps.Logger.Error("failed to record degraded reply", "error", err)
	}
	return result, nil
}

// executeTool runs a single tool call. Failures never escape: an unknown
// tool, an executor error, or a panic all become an error-flagged result
// so sibling calls and the rest of the run proceed.
func (a *Agent) executeTool(ctx context.Context, tools domain.ToolExecutor, call domain.ToolCall) (result domain.ToolResult) {
	ctx, span := tracer.StartSpan(ctx, "agent.execute_tool",
		trace.WithAttributes(tracer.StringAttr("tool.name", call.Name)),
	)
	defer span.End()

	defer func() {
		if r := recover(); r != nil {
			err := fmt.Errorf("tool %s panicked: %v", call.Name, r)
			tracer.RecordError(span, err)
			a.deps.Logger.Error("tool panic", "tool", call.Name, "panic", r)
			result = failedResult(call, err.Error())
		}
	}()

	t, err := tools.Get(call.Name)
	if err != nil {
		tracer.RecordError(span, err)
		return failedResult(call, fmt.Sprintf("unknown tool %q", call.Name))
	}

	res, err := t.Execute(ctx, call.Arguments)
	if err != nil {
		tracer.RecordError(span, err)
		a.deps.Logger.Warn("tool failed", "tool", call.Name, "error", err)
		return failedResult(call, err.Error())
	}

	tracer.SetOK(span)
	res.ToolCallID = call.ID
	res.Name = call.Name
	return *res
}

func failedResult(call domain.ToolCall, content string) domain.ToolResult {
	return domain.ToolResult{
		ToolCallID: call.ID,
		Name:       call.Name,
		Content:    content,
		IsError:    true,
	}
}
