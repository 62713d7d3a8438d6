package tool

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"donna-ai/internal/domain"
)

// WithSchemaValidation wraps a tool so arguments get checked against its
// JSON Schema before the handler runs. A tool without a schema is returned
// unchanged. Schema compile failures are construction errors since they
// mean the tool's own declaration is broken.
func WithSchemaValidation(t domain.Tool) (domain.Tool, error) {
	raw := t.Schema().Parameters
	if len(raw) == 0 || string(raw) == "null" {
		return t, nil
	}

	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("schema.json", bytes.NewReader(raw)); err != nil {
		return nil, fmt.Errorf("add schema resource for %q: %w", t.Name(), err)
	}
	compiled, err := compiler.Compile("schema.json")
	if err != nil {
		return nil, fmt.Errorf("compile schema for %q: %w", t.Name(), err)
	}

	return &schemaCheckedTool{Tool: t, schema: compiled}, nil
}

type schemaCheckedTool struct {
	domain.Tool
	schema *jsonschema.Schema
}

func (s *schemaCheckedTool) Execute(ctx context.Context, params json.RawMessage) (*domain.ToolResult, error) {
	if len(params) == 0 {
		params = json.RawMessage(`{}`)
	}

	if err := s.check(params); err != nil {
		return &domain.ToolResult{
			Name:    s.Name(),
			IsError: true,
			Content: fmt.Sprintf("invalid arguments: %v", err),
		}, nil
	}

	return s.Tool.Execute(ctx, params)
}

func (s *schemaCheckedTool) check(params json.RawMessage) error {
	var v interface{}
	if err := json.Unmarshal(params, &v); err != nil {
		return fmt.Errorf("not valid JSON: %v", err)
	}
	return s.schema.Validate(v)
}
