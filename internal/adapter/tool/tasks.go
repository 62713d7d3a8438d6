package tool

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/oklog/ulid/v2"
	"go.opentelemetry.io/otel/trace"

	"donna-ai/internal/domain"
	"donna-ai/internal/infra/tracer"
)

// Task priorities and categories mirror what the reasoning step is told to
// infer from context.
const (
	TaskStatusOpen    = "open"
	TaskStatusDone    = "done"
	TaskStatusDeleted = "deleted"
)

// Task is a single task record.
type Task struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	Category  string    `json:"category"`
	Priority  string    `json:"priority"`
	DueDate   string    `json:"due_date,omitempty"` // YYYY-MM-DD
	Status    string    `json:"status"`
	CreatedAt time.Time `json:"created_at"`
}

// TaskFilter narrows a task listing.
type TaskFilter struct {
	Category    string
	DueToday    bool
	Overdue     bool
	DueThisWeek bool
}

// TaskBackend abstracts task storage. Restore is the compensating operation
// for Complete and Delete; the undo path goes through it, the same operation
// surface the original mutation used.
type TaskBackend interface {
	List(ctx context.Context, principal string, f TaskFilter) ([]Task, error)
	Add(ctx context.Context, principal string, t Task) (Task, error)
	Complete(ctx context.Context, principal, id string) error
	Delete(ctx context.Context, principal, id string) error
	Restore(ctx context.Context, principal, id string) error
	Rename(ctx context.Context, principal, id, title string) error
}

// taskView is the numbered projection returned to the reasoning step.
// Numbers are 1-based positions in the current open list, which is how
// complete_tasks/delete_tasks address tasks.
type taskView struct {
	Number   int    `json:"number"`
	Title    string `json:"title"`
	Category string `json:"category"`
	Priority string `json:"priority"`
	DueDate  string `json:"due_date,omitempty"`
}

// --- get_tasks ---

// GetTasksTool lists the principal's open tasks with an optional filter.
type GetTasksTool struct {
	backend TaskBackend
	logger  *slog.Logger
}

func NewGetTasksTool(backend TaskBackend, logger *slog.Logger) *GetTasksTool {
	return &GetTasksTool{backend: backend, logger: logger}
}

func (t *GetTasksTool) Name() string { return "get_tasks" }
func (t *GetTasksTool) Description() string {
	return "Get the user's current tasks. Use this when they ask to see tasks, what's pending, what's due, etc."
}

func (t *GetTasksTool) Schema() domain.ToolSchema {
	return domain.ToolSchema{
		Name:        t.Name(),
		Description: t.Description(),
		Parameters: json.RawMessage(`{
			"type": "object",
			"properties": {
				"filter": {
					"type": "string",
					"enum": ["all", "today", "business", "personal", "overdue", "week"],
					"description": "Filter tasks. 'all' returns everything."
				}
			},
			"required": ["filter"]
		}`),
	}
}

type getTasksParams struct {
	Filter string `json:"filter"`
}

func (t *GetTasksTool) Execute(ctx context.Context, params json.RawMessage) (*domain.ToolResult, error) {
	return Execute(ctx, "tool.get_tasks", t.logger, params,
		func(ctx context.Context, span trace.Span, p getTasksParams) (any, error) {
			var f TaskFilter
			switch p.Filter {
			case "today":
				f.DueToday = true
			case "business":
				f.Category = "Business"
			case "personal":
				f.Category = "Personal"
			case "overdue":
				f.Overdue = true
			case "week":
				f.DueThisWeek = true
			}

			tasks, err := t.backend.List(ctx, domain.PrincipalFromContext(ctx), f)
			if err != nil {
				return nil, err
			}
			span.SetAttributes(tracer.IntAttr("tasks.count", len(tasks)))

			views := make([]taskView, 0, len(tasks))
			for i, task := range tasks {
				views = append(views, taskView{
					Number:   i + 1,
					Title:    task.Title,
					Category: task.Category,
					Priority: task.Priority,
					DueDate:  task.DueDate,
				})
			}
			if len(views) == 0 {
				return map[string]any{"tasks": views, "message": "No tasks found."}, nil
			}
			return map[string]any{"tasks": views, "count": len(views)}, nil
		})
}

// --- add_task ---

// AddTaskTool creates a new task.
type AddTaskTool struct {
	backend TaskBackend
	logger  *slog.Logger
}

func NewAddTaskTool(backend TaskBackend, logger *slog.Logger) *AddTaskTool {
	return &AddTaskTool{backend: backend, logger: logger}
}

func (t *AddTaskTool) Name() string { return "add_task" }
func (t *AddTaskTool) Description() string {
	return "Create a new task. Infer category (Personal/Business) and priority from context."
}

func (t *AddTaskTool) Schema() domain.ToolSchema {
	return domain.ToolSchema{
		Name:        t.Name(),
		Description: t.Description(),
		Parameters: json.RawMessage(`{
			"type": "object",
			"properties": {
				"title": {"type": "string", "description": "Task title"},
				"category": {"type": "string", "enum": ["Personal", "Business"], "description": "Task category"},
				"priority": {"type": "string", "enum": ["Low", "Medium", "High"], "description": "Priority level"},
				"due_date": {"type": "string", "description": "Due date in YYYY-MM-DD format"}
			},
			"required": ["title"]
		}`),
	}
}

type addTaskParams struct {
	Title    string `json:"title"`
	Category string `json:"category"`
	Priority string `json:"priority"`
	DueDate  string `json:"due_date"`
}

func (t *AddTaskTool) Execute(ctx context.Context, params json.RawMessage) (*domain.ToolResult, error) {
	return Execute(ctx, "tool.add_task", t.logger, params,
		func(ctx context.Context, _ trace.Span, p addTaskParams) (any, error) {
			if err := ValidateAll(
				RequireField("title", p.Title),
				ValidateEnum("category", p.Category, "Personal", "Business"),
				ValidateEnum("priority", p.Priority, "Low", "Medium", "High"),
			); err != nil {
				return nil, err
			}
			if p.DueDate != "" {
				if _, err := time.Parse("2006-01-02", p.DueDate); err != nil {
					return nil, fmt.Errorf("invalid due_date %q: want YYYY-MM-DD", p.DueDate)
				}
			}
			if p.Category == "" {
				p.Category = "Personal"
			}
			if p.Priority == "" {
				p.Priority = "Medium"
			}

			task, err := t.backend.Add(ctx, domain.PrincipalFromContext(ctx), Task{
				Title:    p.Title,
				Category: p.Category,
				Priority: p.Priority,
				DueDate:  p.DueDate,
			})
			if err != nil {
				return nil, err
			}
			return map[string]any{"success": true, "title": task.Title, "category": task.Category}, nil
		})
}

// --- complete_tasks / delete_tasks ---

// batchTaskParams addresses tasks by their numbers in the current open list.
type batchTaskParams struct {
	TaskNumbers []int `json:"task_numbers"`
}

// CompleteTasksTool marks tasks done and records the batch in the undo ledger.
type CompleteTasksTool struct {
	backend TaskBackend
	ledger  domain.UndoLedger
	logger  *slog.Logger
}

func NewCompleteTasksTool(backend TaskBackend, ledger domain.UndoLedger, logger *slog.Logger) *CompleteTasksTool {
	return &CompleteTasksTool{backend: backend, ledger: ledger, logger: logger}
}

func (t *CompleteTasksTool) Name() string { return "complete_tasks" }
func (t *CompleteTasksTool) Description() string {
	return "Mark one or more tasks as done by their task numbers from the list."
}

func (t *CompleteTasksTool) Schema() domain.ToolSchema {
	return domain.ToolSchema{
		Name:        t.Name(),
		Description: t.Description(),
		Parameters: json.RawMessage(`{
			"type": "object",
			"properties": {
				"task_numbers": {
					"type": "array",
					"items": {"type": "integer"},
					"description": "List of task numbers to mark as done"
				}
			},
			"required": ["task_numbers"]
		}`),
	}
}

func (t *CompleteTasksTool) Execute(ctx context.Context, params json.RawMessage) (*domain.ToolResult, error) {
	return Execute(ctx, "tool.complete_tasks", t.logger, params,
		func(ctx context.Context, _ trace.Span, p batchTaskParams) (any, error) {
			return runTaskBatch(ctx, t.backend, t.ledger, p.TaskNumbers, "completed", t.backend.Complete)
		})
}

// DeleteTasksTool deletes tasks and records the batch in the undo ledger.
type DeleteTasksTool struct {
	backend TaskBackend
	ledger  domain.UndoLedger
	logger  *slog.Logger
}

func NewDeleteTasksTool(backend TaskBackend, ledger domain.UndoLedger, logger *slog.Logger) *DeleteTasksTool {
	return &DeleteTasksTool{backend: backend, ledger: ledger, logger: logger}
}

func (t *DeleteTasksTool) Name() string { return "delete_tasks" }
func (t *DeleteTasksTool) Description() string {
	return "Delete one or more tasks by their task numbers from the list."
}

func (t *DeleteTasksTool) Schema() domain.ToolSchema {
	return domain.ToolSchema{
		Name:        t.Name(),
		Description: t.Description(),
		Parameters: json.RawMessage(`{
			"type": "object",
			"properties": {
				"task_numbers": {
					"type": "array",
					"items": {"type": "integer"},
					"description": "List of task numbers to delete"
				}
			},
			"required": ["task_numbers"]
		}`),
	}
}

func (t *DeleteTasksTool) Execute(ctx context.Context, params json.RawMessage) (*domain.ToolResult, error) {
	return Execute(ctx, "tool.delete_tasks", t.logger, params,
		func(ctx context.Context, _ trace.Span, p batchTaskParams) (any, error) {
			return runTaskBatch(ctx, t.backend, t.ledger, p.TaskNumbers, "deleted", t.backend.Delete)
		})
}

// runTaskBatch resolves task numbers against the open list, applies op to
// each, and records one undo batch covering everything that succeeded.
// The ledger write happens before returning success, and only when at least
// one task was actually mutated.
func runTaskBatch(
	ctx context.Context,
	backend TaskBackend,
	ledger domain.UndoLedger,
	numbers []int,
	verb string,
	op func(ctx context.Context, principal, id string) error,
) (any, error) {
	if len(numbers) == 0 {
		return nil, fmt.Errorf("'task_numbers' is required")
	}

	principal := domain.PrincipalFromContext(ctx)
	tasks, err := backend.List(ctx, principal, TaskFilter{})
	if err != nil {
		return nil, err
	}

	seen := make(map[int]bool, len(numbers))
	var affected []string
	var notFound []int
	var steps []domain.ReversalStep

	for _, num := range numbers {
		if seen[num] {
			continue
		}
		seen[num] = true
		if num < 1 || num > len(tasks) {
			notFound = append(notFound, num)
			continue
		}
		task := tasks[num-1]
		if err := op(ctx, principal, task.ID); err != nil {
			return nil, fmt.Errorf("%s task %q: %w", verb, task.Title, err)
		}
		affected = append(affected, task.Title)
		steps = append(steps, domain.ReversalStep{
			Action: "restore",
			TaskID: task.ID,
			Title:  task.Title,
		})
	}

	if len(steps) > 0 {
		ledger.Record(principal, domain.UndoEntry{
			Principal: principal,
			BatchID:   ulid.Make().String(),
			Steps:     steps,
			CreatedAt: time.Now(),
		})
	}

	result := map[string]any{verb: affected}
	if len(notFound) > 0 {
		result["not_found"] = notFound
	}
	return result, nil
}

// --- edit_task ---

// EditTaskTool renames a task.
type EditTaskTool struct {
	backend TaskBackend
	logger  *slog.Logger
}

func NewEditTaskTool(backend TaskBackend, logger *slog.Logger) *EditTaskTool {
	return &EditTaskTool{backend: backend, logger: logger}
}

func (t *EditTaskTool) Name() string        { return "edit_task" }
func (t *EditTaskTool) Description() string { return "Edit a task's title." }

func (t *EditTaskTool) Schema() domain.ToolSchema {
	return domain.ToolSchema{
		Name:        t.Name(),
		Description: t.Description(),
		Parameters: json.RawMessage(`{
			"type": "object",
			"properties": {
				"task_number": {"type": "integer", "description": "Task number to edit"},
				"new_title": {"type": "string", "description": "New title for the task"}
			},
			"required": ["task_number", "new_title"]
		}`),
	}
}

type editTaskParams struct {
	TaskNumber int    `json:"task_number"`
	NewTitle   string `json:"new_title"`
}

func (t *EditTaskTool) Execute(ctx context.Context, params json.RawMessage) (*domain.ToolResult, error) {
	return Execute(ctx, "tool.edit_task", t.logger, params,
		func(ctx context.Context, _ trace.Span, p editTaskParams) (any, error) {
			if err := ValidateAll(
				ValidatePositive("task_number", p.TaskNumber),
				RequireField("new_title", p.NewTitle),
			); err != nil {
				return nil, err
			}

			principal := domain.PrincipalFromContext(ctx)
			tasks, err := t.backend.List(ctx, principal, TaskFilter{})
			if err != nil {
				return nil, err
			}
			if p.TaskNumber > len(tasks) {
				return nil, fmt.Errorf("task #%d not found", p.TaskNumber)
			}

			task := tasks[p.TaskNumber-1]
			if err := t.backend.Rename(ctx, principal, task.ID, p.NewTitle); err != nil {
				return nil, err
			}
			return map[string]any{"old_title": task.Title, "new_title": p.NewTitle}, nil
		})
}
