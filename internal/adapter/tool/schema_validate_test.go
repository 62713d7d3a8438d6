package tool

import (
	"context"
	"encoding/json"
	"strings"
	"testing"
)

const addTaskSchema = `{
	"type": "object",
	"properties": {
		"title": {"type": "string"},
		"priority": {"type": "string", "enum": ["low", "medium", "high"]}
	},
	"required": ["title"]
}`

func TestSchemaValidationRejectsBadArgs(t *testing.T) {
	inner := &fakeTool{name: "add_task", params: addTaskSchema}
	wrapped, err := WithSchemaValidation(inner)
	if err != nil {
		t.Fatalf("WithSchemaValidation: %v", err)
	}

	tests := []struct {
		name   string
		params string
	}{
		{"missing required field", `{"priority":"high"}`},
		{"wrong type", `{"title":123}`},
		{"enum violation", `{"title":"buy milk","priority":"urgent"}`},
		{"not valid json", `{"title":`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			inner.ran = false
			res, err := wrapped.Execute(context.Background(), json.RawMessage(tt.params))
			if err != nil {
				t.Fatalf("Execute: %v", err)
			}
			if !res.IsError {
				t.Fatal("expected error result")
			}
			if !strings.Contains(res.Content, "invalid arguments") {
				t.Errorf("content = %q, want invalid arguments", res.Content)
			}
			if inner.ran {
				t.Error("inner tool executed despite invalid arguments")
			}
		})
	}
}

func TestSchemaValidationPassesValidArgs(t *testing.T) {
	inner := &fakeTool{name: "add_task", params: addTaskSchema}
	wrapped, err := WithSchemaValidation(inner)
	if err != nil {
		t.Fatalf("WithSchemaValidation: %v", err)
	}

	res, err := wrapped.Execute(context.Background(), json.RawMessage(`{"title":"buy milk","priority":"low"}`))
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if res.IsError {
		t.Fatalf("unexpected error result: %s", res.Content)
	}
	if !inner.ran {
		t.Error("inner tool did not run")
	}
}

func TestSchemaValidationEmptyParams(t *testing.T) {
	inner := &fakeTool{name: "get_tasks"}
	wrapped, err := WithSchemaValidation(inner)
	if err != nil {
		t.Fatalf("WithSchemaValidation: %v", err)
	}

	// Empty params are treated as an empty object.
	res, err := wrapped.Execute(context.Background(), nil)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if res.IsError {
		t.Fatalf("unexpected error result: %s", res.Content)
	}
	if !inner.ran {
		t.Error("inner tool did not run")
	}
}

func TestSchemaValidationNoSchemaPassthrough(t *testing.T) {
	inner := &fakeTool{name: "bare", params: "null"}
	wrapped, err := WithSchemaValidation(inner)
	if err != nil {
		t.Fatalf("WithSchemaValidation: %v", err)
	}
	if wrapped != inner {
		t.Error("tool without a schema should be returned unwrapped")
	}
}
