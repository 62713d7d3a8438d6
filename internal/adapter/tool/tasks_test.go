package tool

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"testing"

	"donna-ai/internal/domain"
)

// fakeTaskBackend keeps tasks in memory for tool-level tests.
type fakeTaskBackend struct {
	mu    sync.Mutex
	tasks []Task
	next  int
}

func (b *fakeTaskBackend) List(_ context.Context, _ string, f TaskFilter) ([]Task, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []Task
	for _, t := range b.tasks {
		if t.Status != TaskStatusOpen {
			continue
		}
		if f.Category != "" && t.Category != f.Category {
			continue
		}
		out = append(out, t)
	}
	return out, nil
}

func (b *fakeTaskBackend) Add(_ context.Context, _ string, t Task) (Task, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.next++
	t.ID = fmt.Sprintf("t%d", b.next)
	t.Status = TaskStatusOpen
	b.tasks = append(b.tasks, t)
	return t, nil
}

func (b *fakeTaskBackend) setStatus(id, status string) error {
	for i := range b.tasks {
		if b.tasks[i].ID == id {
			b.tasks[i].Status = status
			return nil
		}
	}
	return domain.ErrNotFound
}

func (b *fakeTaskBackend) Complete(_ context.Context, _ string, id string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.setStatus(id, TaskStatusDone)
}

func (b *fakeTaskBackend) Delete(_ context.Context, _ string, id string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.setStatus(id, TaskStatusDeleted)
}

func (b *fakeTaskBackend) Restore(_ context.Context, _ string, id string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.setStatus(id, TaskStatusOpen)
}

func (b *fakeTaskBackend) Rename(_ context.Context, _ string, id, title string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i := range b.tasks {
		if b.tasks[i].ID == id {
			b.tasks[i].Title = title
			return nil
		}
	}
	return domain.ErrNotFound
}

func (b *fakeTaskBackend) statusOf(id string) string {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, t := range b.tasks {
		if t.ID == id {
			return t.Status
		}
	}
	return ""
}

// singleSlotLedger is a minimal ledger for tool tests.
type singleSlotLedger struct {
	mu      sync.Mutex
	entries map[string]*domain.UndoEntry
}

func newSingleSlotLedger() *singleSlotLedger {
	return &singleSlotLedger{entries: make(map[string]*domain.UndoEntry)}
}

func (l *singleSlotLedger) Record(principal string, entry domain.UndoEntry) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries[principal] = &entry
}

func (l *singleSlotLedger) Consume(principal string) (*domain.UndoEntry, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	entry, ok := l.entries[principal]
	if !ok {
		return nil, false
	}
	delete(l.entries, principal)
	return entry, true
}

func (l *singleSlotLedger) peek(principal string) *domain.UndoEntry {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.entries[principal]
}

func principalCtx(principal string) context.Context {
	return domain.ContextWithPrincipal(context.Background(), principal)
}

func seedTasks(t *testing.T, backend *fakeTaskBackend, titles ...string) {
	t.Helper()
	for _, title := range titles {
		if _, err := backend.Add(context.Background(), "alice", Task{Title: title, Category: "Personal", Priority: "Medium"}); err != nil {
			t.Fatalf("seed %q: %v", title, err)
		}
	}
}

func TestAddTaskValidation(t *testing.T) {
	tool := NewAddTaskTool(&fakeTaskBackend{}, slog.Default())

	tests := []struct {
		name    string
		params  string
		wantErr string
	}{
		{"missing title", `{}`, "'title' is required"},
		{"bad category", `{"title":"x","category":"Work"}`, "invalid category"},
		{"bad priority", `{"title":"x","priority":"Urgent"}`, "invalid priority"},
		{"bad due date", `{"title":"x","due_date":"tomorrow"}`, "invalid due_date"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := tool.Execute(principalCtx("alice"), json.RawMessage(tt.params))
			if err != nil {
				t.Fatalf("Execute: %v", err)
			}
			if !res.IsError || !strings.Contains(res.Content, tt.wantErr) {
				t.Errorf("result = %+v, want error containing %q", res, tt.wantErr)
			}
		})
	}

	res, err := tool.Execute(principalCtx("alice"), json.RawMessage(`{"title":"call bank","due_date":"2026-09-15"}`))
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if res.IsError {
		t.Errorf("valid task rejected: %s", res.Content)
	}
}

func TestCompleteTasksRecordsUndoBatch(t *testing.T) {
	backend := &fakeTaskBackend{}
	ledger := newSingleSlotLedger()
	seedTasks(t, backend, "buy milk", "call bank", "file taxes")

	tool := NewCompleteTasksTool(backend, ledger, slog.Default())
	res, err := tool.Execute(principalCtx("alice"), json.RawMessage(`{"task_numbers":[1,3]}`))
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if res.IsError {
		t.Fatalf("result error: %s", res.Content)
	}

	if backend.statusOf("t1") != TaskStatusDone || backend.statusOf("t3") != TaskStatusDone {
		t.Error("tasks 1 and 3 should be done")
	}
	if backend.statusOf("t2") != TaskStatusOpen {
		t.Error("task 2 should stay open")
	}

	entry := ledger.peek("alice")
	if entry == nil {
		t.Fatal("expected an undo entry")
	}
	if len(entry.Steps) != 2 {
		t.Fatalf("undo steps = %d, want 2", len(entry.Steps))
	}
	if entry.Steps[0].TaskID != "t1" || entry.Steps[1].TaskID != "t3" {
		t.Errorf("undo steps = %+v", entry.Steps)
	}
	if entry.BatchID == "" {
		t.Error("batch id should be set")
	}
}

func TestDeleteTasksReportsNotFound(t *testing.T) {
	backend := &fakeTaskBackend{}
	ledger := newSingleSlotLedger()
	seedTasks(t, backend, "buy milk")

	tool := NewDeleteTasksTool(backend, ledger, slog.Default())
	res, err := tool.Execute(principalCtx("alice"), json.RawMessage(`{"task_numbers":[1,5,1]}`))
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if res.IsError {
		t.Fatalf("result error: %s", res.Content)
	}
	if !strings.Contains(res.Content, "not_found") || !strings.Contains(res.Content, "5") {
		t.Errorf("result should report number 5 as not found: %s", res.Content)
	}
	// Duplicate number 1 is applied once.
	entry := ledger.peek("alice")
	if entry == nil || len(entry.Steps) != 1 {
		t.Fatalf("undo entry = %+v, want 1 step", entry)
	}
}

func TestBatchWithNoMutationRecordsNoUndo(t *testing.T) {
	backend := &fakeTaskBackend{}
	ledger := newSingleSlotLedger()
	seedTasks(t, backend, "buy milk")

	tool := NewCompleteTasksTool(backend, ledger, slog.Default())
	res, err := tool.Execute(principalCtx("alice"), json.RawMessage(`{"task_numbers":[9]}`))
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if res.IsError {
		t.Fatalf("result error: %s", res.Content)
	}
	if ledger.peek("alice") != nil {
		t.Error("no mutation happened, ledger must stay empty")
	}
}

func TestUndoRestoresBatchOnce(t *testing.T) {
	backend := &fakeTaskBackend{}
	ledger := newSingleSlotLedger()
	seedTasks(t, backend, "buy milk", "call bank")

	del := NewDeleteTasksTool(backend, ledger, slog.Default())
	if _, err := del.Execute(principalCtx("alice"), json.RawMessage(`{"task_numbers":[1,2]}`)); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if backend.statusOf("t1") != TaskStatusDeleted {
		t.Fatal("delete did not apply")
	}

	undo := NewUndoTool(backend, ledger, slog.Default())
	res, err := undo.Execute(principalCtx("alice"), nil)
	if err != nil {
		t.Fatalf("undo: %v", err)
	}
	if res.IsError {
		t.Fatalf("undo error: %s", res.Content)
	}
	if backend.statusOf("t1") != TaskStatusOpen || backend.statusOf("t2") != TaskStatusOpen {
		t.Error("undo should restore both tasks")
	}

	// Second undo finds the slot empty.
	res, err = undo.Execute(principalCtx("alice"), nil)
	if err != nil {
		t.Fatalf("second undo: %v", err)
	}
	if !strings.Contains(res.Content, "Nothing to undo") {
		t.Errorf("second undo = %s, want nothing-to-undo message", res.Content)
	}
}

func TestGetTasksNumbersAreListPositions(t *testing.T) {
	backend := &fakeTaskBackend{}
	seedTasks(t, backend, "one", "two", "three")
	if err := backend.Complete(context.Background(), "alice", "t2"); err != nil {
		t.Fatal(err)
	}

	tool := NewGetTasksTool(backend, slog.Default())
	res, err := tool.Execute(principalCtx("alice"), json.RawMessage(`{"filter":"all"}`))
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}

	var out struct {
		Tasks []taskView `json:"tasks"`
	}
	if err := json.Unmarshal([]byte(res.Content), &out); err != nil {
		t.Fatalf("parse result: %v", err)
	}
	if len(out.Tasks) != 2 {
		t.Fatalf("tasks = %d, want 2", len(out.Tasks))
	}
	// "three" renumbers to 2 once "two" is done.
	if out.Tasks[1].Number != 2 || out.Tasks[1].Title != "three" {
		t.Errorf("tasks[1] = %+v", out.Tasks[1])
	}
}

func TestEditTaskRename(t *testing.T) {
	backend := &fakeTaskBackend{}
	seedTasks(t, backend, "old name")

	tool := NewEditTaskTool(backend, slog.Default())
	res, err := tool.Execute(principalCtx("alice"), json.RawMessage(`{"task_number":1,"new_title":"new name"}`))
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if res.IsError {
		t.Fatalf("result error: %s", res.Content)
	}
	tasks, _ := backend.List(context.Background(), "alice", TaskFilter{})
	if tasks[0].Title != "new name" {
		t.Errorf("title = %q, want renamed", tasks[0].Title)
	}
}
