package tool

import (
	"context"
	"encoding/json"
	"log/slog"

	"go.opentelemetry.io/otel/trace"

	"donna-ai/internal/domain"
	"donna-ai/internal/infra/tracer"
)

// UndoTool reverses the last destructive task batch. It consumes the single
// ledger slot (so a second undo right after reports nothing to undo) and
// replays the recorded reversal steps through the regular task backend.
type UndoTool struct {
	backend TaskBackend
	ledger  domain.UndoLedger
	logger  *slog.Logger
}

func NewUndoTool(backend TaskBackend, ledger domain.UndoLedger, logger *slog.Logger) *UndoTool {
	return &UndoTool{backend: backend, ledger: ledger, logger: logger}
}

func (t *UndoTool) Name() string { return "undo_last_action" }
func (t *UndoTool) Description() string {
	return "Undo the last delete or done action, restoring the affected tasks."
}

func (t *UndoTool) Schema() domain.ToolSchema {
	return domain.ToolSchema{
		Name:        t.Name(),
		Description: t.Description(),
		Parameters:  json.RawMessage(`{"type": "object", "properties": {}}`),
	}
}

func (t *UndoTool) Execute(ctx context.Context, params json.RawMessage) (*domain.ToolResult, error) {
	return Execute(ctx, "tool.undo_last_action", t.logger, params,
		func(ctx context.Context, span trace.Span, _ struct{}) (any, error) {
			principal := domain.PrincipalFromContext(ctx)

			entry, ok := t.ledger.Consume(principal)
			if !ok {
				return map[string]any{"message": "Nothing to undo."}, nil
			}
			span.SetAttributes(
				tracer.StringAttr("undo.batch_id", entry.BatchID),
				tracer.IntAttr("undo.steps", len(entry.Steps)),
			)

			var restored, failed []string
			for _, step := range entry.Steps {
				if err := t.backend.Restore(ctx, principal, step.TaskID); err != nil {
					t.logger.Warn("undo step failed",
						"batch_id", entry.BatchID, "task", step.Title, "error", err)
					failed = append(failed, step.Title)
					continue
				}
				restored = append(restored, step.Title)
			}

			result := map[string]any{"restored": restored}
			if len(failed) > 0 {
				result["failed"] = failed
			}
			return result, nil
		})
}
