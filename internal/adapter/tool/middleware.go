package tool

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"go.opentelemetry.io/otel/trace"

	"donna-ai/internal/domain"
	"donna-ai/internal/infra/tracer"
)

// Execute runs a tool handler inside the shared pipeline: decode params,
// open a span, invoke, convert the return value into a ToolResult. Handler
// errors become error results rather than Go errors so one bad call never
// aborts a batch.
//
// A handler may return a *domain.ToolResult (passed through), a string
// (plain-text result), nil ("ok"), or any other value, which is
// JSON-encoded.
func Execute[P any](
	ctx context.Context,
	spanName string,
	logger *slog.Logger,
	rawParams json.RawMessage,
	handler func(ctx context.Context, span trace.Span, params P) (any, error),
) (*domain.ToolResult, error) {
	ctx, span := tracer.StartSpan(ctx, spanName,
		trace.WithAttributes(tracer.StringAttr("tool.name", spanName)),
	)
	defer span.End()

	var params P
	if len(rawParams) > 0 {
		if err := json.Unmarshal(rawParams, &params); err != nil {
			tracer.RecordError(span, err)
			return &domain.ToolResult{IsError: true, Content: fmt.Sprintf("invalid params: %v", err)}, nil
		}
	}

	out, err := handler(ctx, span, params)
	if err != nil {
		tracer.RecordError(span, err)
		logger.Warn(spanName+" failed", "error", err)
		return &domain.ToolResult{IsError: true, Content: err.Error()}, nil
	}

	res := resultFrom(out)
	if res.IsError {
		tracer.RecordError(span, fmt.Errorf("%s", res.Content))
	} else {
		tracer.SetOK(span)
	}
	return res, nil
}

func resultFrom(out any) *domain.ToolResult {
	switch v := out.(type) {
	case *domain.ToolResult:
		return v
	case string:
		return &domain.ToolResult{Content: v}
	case nil:
		return &domain.ToolResult{Content: "ok"}
	}

	data, err := json.Marshal(out)
	if err != nil {
		return &domain.ToolResult{IsError: true, Content: fmt.Sprintf("marshal result: %v", err)}
	}
	return &domain.ToolResult{Content: string(data)}
}
