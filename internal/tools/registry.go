// Package tools implements the tool registry: a startup-registered
// name → (schema, executor) map, with JSON-Schema argument validation and
// the built-in get_current_time tool required by the canonical test suite.
package tools

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/relaycore/agentgate/internal/models"
)

// MaxToolNameLength bounds a tool name accepted from a model-produced call.
const MaxToolNameLength = 256

// Executor receives the decoded argument map and returns any
// JSON-serializable value, or a categorized error.
type Executor func(ctx context.Context, args map[string]any) (any, error)

type registration struct {
	schema    models.ToolSchema
	executor  Executor
	validator *jsonschema.Schema
}

// Registry is a read-only-at-request-time name → (schema, executor) map.
type Registry struct {
	tools map[string]registration
}

// NewRegistry constructs an empty registry with the built-in
// get_current_time tool registered.
func NewRegistry() *Registry {
	r := &Registry{tools: make(map[string]registration)}
	r.Register(currentTimeSchema(), currentTimeExecutor)
	return r
}

// Register compiles schema.Parameters once and adds (schema, executor) to
// the registry. Panics on an invalid schema — registration happens at
// startup, before any request is served.
func (r *Registry) Register(schema models.ToolSchema, executor Executor) {
	validator, err := compileSchema(schema.Parameters)
	if err != nil {
		panic(fmt.Sprintf("tools: invalid schema for %q: %v", schema.Name, err))
	}
	r.tools[schema.Name] = registration{schema: schema, executor: executor, validator: validator}
}

// Get looks up a registered tool by name.
func (r *Registry) Get(name string) (models.ToolSchema, Executor, bool) {
	reg, ok := r.tools[name]
	if !ok {
		return models.ToolSchema{}, nil, false
	}
	return reg.schema, reg.executor, true
}

// Schemas returns every registered ToolSchema whose name is in names. An
// empty names slice returns all registered schemas.
func (r *Registry) Schemas(names []string) []models.ToolSchema {
	if len(names) == 0 {
		out := make([]models.ToolSchema, 0, len(r.tools))
		for _, reg := range r.tools {
			out = append(out, reg.schema)
		}
		return out
	}
	out := make([]models.ToolSchema, 0, len(names))
	for _, n := range names {
		if reg, ok := r.tools[n]; ok {
			out = append(out, reg.schema)
		}
	}
	return out
}

// ValidateArguments validates args against the compiled schema for name.
func (r *Registry) ValidateArguments(name string, args map[string]any) error {
	reg, ok := r.tools[name]
	if !ok {
		return models.NewAgentError(models.ErrUnknownTool, fmt.Sprintf("unknown tool %q", name), nil)
	}
	if reg.validator == nil {
		return nil
	}
	if err := reg.validator.Validate(toJSONCompatible(args)); err != nil {
		return models.NewAgentError(models.ErrInvalidArguments, fmt.Sprintf("arguments for %q do not satisfy its schema", name), err)
	}
	return nil
}

// Execute runs the registered executor for name with args, after validating
// name length and argument schema conformance.
func (r *Registry) Execute(ctx context.Context, name string, args map[string]any) (any, error) {
	if len(name) > MaxToolNameLength {
		return nil, models.NewAgentError(models.ErrUnknownTool, "tool name exceeds maximum length", nil)
	}
	_, executor, ok := r.Get(name)
	if !ok {
		return nil, models.NewAgentError(models.ErrUnknownTool, fmt.Sprintf("unknown tool %q", name), nil)
	}
	if err := r.ValidateArguments(name, args); err != nil {
		return nil, err
	}
	return executor(ctx, args)
}

func compileSchema(parameters map[string]any) (*jsonschema.Schema, error) {
	if len(parameters) == 0 {
		return nil, nil
	}
	raw, err := json.Marshal(parameters)
	if err != nil {
		return nil, err
	}
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("schema.json", bytesReader(raw)); err != nil {
		return nil, err
	}
	return compiler.Compile("schema.json")
}

func bytesReader(b []byte) io.Reader { return bytes.NewReader(b) }

// toJSONCompatible round-trips args through JSON so jsonschema validates
// the same shape the wire format would produce (e.g. numbers as float64).
func toJSONCompatible(args map[string]any) any {
	raw, err := json.Marshal(args)
	if err != nil {
		return args
	}
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return args
	}
	return v
}
