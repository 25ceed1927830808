package tools

import (
	"context"
	"testing"

	"github.com/relaycore/agentgate/internal/models"
)

func TestBuiltinGetCurrentTime(t *testing.T) {
	r := NewRegistry()
	result, err := r.Execute(context.Background(), "get_current_time", map[string]any{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	m, ok := result.(map[string]any)
	if !ok || m["iso8601"] == "" {
		t.Fatalf("unexpected result: %v", result)
	}
}

func TestExecuteUnknownTool(t *testing.T) {
	r := NewRegistry()
	_, err := r.Execute(context.Background(), "does_not_exist", map[string]any{})
	if err == nil {
		t.Fatalf("expected error")
	}
	if ae := models.AsAgentError(err); ae.Code != models.ErrUnknownTool {
		t.Fatalf("got %s, want UNKNOWN_TOOL", ae.Code)
	}
}

func TestValidateArgumentsRejectsWrongType(t *testing.T) {
	r := NewRegistry()
	r.Register(models.ToolSchema{
		Name:        "add",
		Description: "add two numbers",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"a": map[string]any{"type": "number"},
				"b": map[string]any{"type": "number"},
			},
			"required": []any{"a", "b"},
		},
	}, func(ctx context.Context, args map[string]any) (any, error) {
		return nil, nil
	})
	if err := r.ValidateArguments("add", map[string]any{"a": "not-a-number", "b": 2}); err == nil {
		t.Fatalf("expected validation error for wrong type")
	}
	if err := r.ValidateArguments("add", map[string]any{"a": 1, "b": 2}); err != nil {
		t.Fatalf("unexpected validation error: %v", err)
	}
}
