package tool

import (
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/opencore-ai/opencore/internal/provider"
)

// Registry holds registered tools keyed by ID. Registering a tool under
// an existing ID replaces it. Safe for concurrent use.
type Registry struct {
	mu      sync.RWMutex
	tools   map[string]Tool
	order   []string
	schemas map[string]*jsonschema.Schema
}

// NewRegistry creates an empty tool registry.
func NewRegistry() *Registry {
	return &Registry{
		tools:   make(map[string]Tool),
		schemas: make(map[string]*jsonschema.Schema),
	}
}

// Register adds or replaces a tool under its ID.
func (r *Registry) Register(t Tool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.tools[t.ID()]; !exists {
		r.order = append(r.order, t.ID())
	}
	r.tools[t.ID()] = t
	delete(r.schemas, t.ID())
}

// Get returns the tool with the given ID, or nil.
func (r *Registry) Get(toolID string) Tool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.tools[toolID]
}

// List returns registered tools in registration order.
func (r *Registry) List() []Tool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Tool, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.tools[id])
	}
	return out
}

// Schemas returns the provider-facing schema of every registered tool.
func (r *Registry) Schemas() []provider.ToolSchema {
	tools := r.List()
	out := make([]provider.ToolSchema, 0, len(tools))
	for _, t := range tools {
		out = append(out, provider.ToolSchema{
			Name:        t.ID(),
			Description: t.Description(),
			Parameters:  t.Parameters(),
		})
	}
	return out
}

// Validate checks tool arguments against the tool's parameter schema.
// Unknown tools fail; tools whose schema does not compile validate as a
// no-op since the model already received that schema verbatim.
func (r *Registry) Validate(toolID string, args map[string]any) error {
	t := r.Get(toolID)
	if t == nil {
		return fmt.Errorf("unknown tool %q", toolID)
	}
	schema, err := r.compiled(toolID, t)
	if err != nil || schema == nil {
		return nil
	}
	// The validator wants plain decoded JSON.
	raw, err := json.Marshal(args)
	if err != nil {
		return fmt.Errorf("tool %s: invalid arguments: %w", toolID, err)
	}
	var doc any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return fmt.Errorf("tool %s: invalid arguments: %w", toolID, err)
	}
	if err := schema.Validate(doc); err != nil {
		return fmt.Errorf("tool %s: %w", toolID, err)
	}
	return nil
}

func (r *Registry) compiled(toolID string, t Tool) (*jsonschema.Schema, error) {
	r.mu.RLock()
	schema, ok := r.schemas[toolID]
	r.mu.RUnlock()
	if ok {
		return schema, nil
	}

	compiler := jsonschema.NewCompiler()
	url := fmt.Sprintf("tool://%s/parameters.json", toolID)
	if err := compiler.AddResource(url, strings.NewReader(string(t.Parameters()))); err != nil {
		return nil, err
	}
	schema, err := compiler.Compile(url)
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	r.schemas[toolID] = schema
	r.mu.Unlock()
	return schema, nil
}
