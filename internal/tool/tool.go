// Package tool defines the tool contract and the built-in tools the
// orchestrator dispatches to: question, todo, web_search, webfetch, skill.
package tool

import (
	"context"
	"encoding/json"
)

// MaxOutputLength caps tool output before it is fed back to the model.
const MaxOutputLength = 50000

// Context carries the call site of a tool execution.
type Context struct {
	SessionID  string
	MessageID  string
	ToolCallID string
	Agent      string
}

// Result is what a tool execution produced.
type Result struct {
	Title          string         `json:"title"`
	Output         string         `json:"output"`
	Metadata       map[string]any `json:"metadata,omitempty"`
	Truncated      bool           `json:"truncated,omitempty"`
	OriginalLength int            `json:"original_length,omitempty"`
}

// Truncate caps Output at MaxOutputLength, recording the original size.
// The truncation is mirrored into Metadata so consumers that only see
// the metadata map still observe it.
func (r *Result) Truncate() {
	if len(r.Output) <= MaxOutputLength {
		return
	}
	r.OriginalLength = len(r.Output)
	r.Output = r.Output[:MaxOutputLength] + "\n\n[Output truncated...]"
	r.Truncated = true
	if r.Metadata == nil {
		r.Metadata = make(map[string]any)
	}
	r.Metadata["truncated"] = true
	r.Metadata["original_length"] = r.OriginalLength
}

// Tool is the contract every callable tool implements. Execute returns a
// Result even for domain-level failures (bad URL, missing skill); an
// error return means the execution itself broke.
type Tool interface {
	ID() string
	Description() string

	// Parameters returns the JSON Schema for the tool's arguments.
	Parameters() json.RawMessage

	Execute(ctx context.Context, args map[string]any, tc Context) (*Result, error)
}

// mustJSON marshals a schema literal; schemas are package constants and
// cannot fail at runtime.
func mustJSON(v any) json.RawMessage {
	raw, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	return raw
}

// stringArg reads an optional string argument.
func stringArg(args map[string]any, key, fallback string) string {
	if v, ok := args[key].(string); ok && v != "" {
		return v
	}
	return fallback
}

// intArg reads an optional integer argument; JSON numbers decode as
// float64.
func intArg(args map[string]any, key string, fallback int) int {
	switch v := args[key].(type) {
	case float64:
		return int(v)
	case int:
		return v
	default:
		return fallback
	}
}
