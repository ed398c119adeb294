// Package provider abstracts LLM backends behind a uniform streaming
// interface. Adapters convert native wire events into StreamChunk values
// and normalize stop reasons into a fixed vocabulary.
package provider

import (
	"context"
	"encoding/json"

	"github.com/opencore-ai/opencore/pkg/models"
)

// Chunk types emitted on a stream. The orchestrator reuses the same
// record for its own loop markers (message_start, step_start, step_finish).
const (
	ChunkText         = "text"
	ChunkReasoning    = "reasoning"
	ChunkToolCall     = "tool_call"
	ChunkToolResult   = "tool_result"
	ChunkDone         = "done"
	ChunkError        = "error"
	ChunkMessageStart = "message_start"
	ChunkStepStart    = "step_start"
	ChunkStepFinish   = "step_finish"
)

// Normalized stop reasons. Every adapter maps its native finish reason
// into this set.
const (
	StopEndTurn       = "end_turn"
	StopToolCalls     = "tool_calls"
	StopMaxTokens     = "max_tokens"
	StopContentFilter = "content_filter"
	StopSafety        = "safety"
)

// ModelInfo describes one model's limits and pricing. Costs are
// per-million-token rates.
type ModelInfo struct {
	ID                string  `json:"id"`
	Name              string  `json:"name"`
	ProviderID        string  `json:"provider_id"`
	ContextLimit      int     `json:"context_limit"`
	OutputLimit       int     `json:"output_limit"`
	SupportsTools     bool    `json:"supports_tools"`
	SupportsStreaming bool    `json:"supports_streaming"`
	CostInput         float64 `json:"cost_input"`
	CostOutput        float64 `json:"cost_output"`
}

// ProviderInfo is the serializable description of a provider.
type ProviderInfo struct {
	ID     string               `json:"id"`
	Name   string               `json:"name"`
	Models map[string]ModelInfo `json:"models"`
}

// Message is one turn in the conversation sent to a backend.
type Message struct {
	Role    models.Role `json:"role"`
	Content string      `json:"content"`
}

// ToolCall is a completed tool invocation request from the model.
type ToolCall struct {
	ID        string         `json:"id"`
	Name      string         `json:"name"`
	Arguments map[string]any `json:"arguments"`
}

// ToolSchema is the provider-agnostic description of a callable tool.
type ToolSchema struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Parameters  json.RawMessage `json:"parameters"`
}

// StreamChunk is one event on a completion stream.
type StreamChunk struct {
	Type     string        `json:"type"`
	Text     string        `json:"text,omitempty"`
	ToolCall *ToolCall     `json:"tool_call,omitempty"`
	Error    string        `json:"error,omitempty"`
	Usage    *models.Usage `json:"usage,omitempty"`

	// done chunks only.
	StopReason string `json:"stop_reason,omitempty"`

	// Set by the orchestrator on its own marker chunks.
	MessageID string `json:"message_id,omitempty"`
	ParentID  string `json:"parent_id,omitempty"`

	StepNumber   int     `json:"step_number,omitempty"`
	MaxSteps     int     `json:"max_steps,omitempty"`
	InputTokens  int     `json:"input_tokens,omitempty"`
	OutputTokens int     `json:"output_tokens,omitempty"`
	Cost         float64 `json:"cost,omitempty"`
}

// StreamRequest carries the arguments of one completion call.
type StreamRequest struct {
	ModelID     string
	Messages    []Message
	Tools       []ToolSchema
	System      string
	Temperature *float64
	MaxTokens   int
}

// Provider is the backend contract. Stream returns a channel that the
// adapter closes after the terminal done or error chunk.
type Provider interface {
	ID() string
	Name() string
	Models() map[string]ModelInfo

	Stream(ctx context.Context, req StreamRequest) (<-chan *StreamChunk, error)
}

// Info builds the serializable description of a provider.
func Info(p Provider) ProviderInfo {
	return ProviderInfo{ID: p.ID(), Name: p.Name(), Models: p.Models()}
}

// Normalize pipes a stream through the stop-reason override: if any
// tool_call chunk was seen, the done chunk reports tool_calls regardless
// of the backend's native reason. Some backends report a plain stop even
// when tool calls are pending.
func Normalize(in <-chan *StreamChunk) <-chan *StreamChunk {
	out := make(chan *StreamChunk)
	go func() {
		defer close(out)
		sawToolCall := false
		for chunk := range in {
			if chunk.Type == ChunkToolCall {
				sawToolCall = true
			}
			if chunk.Type == ChunkDone && sawToolCall {
				chunk.StopReason = StopToolCalls
			}
			out <- chunk
		}
	}()
	return out
}

// ParseToolArguments decodes a streamed tool-argument JSON buffer.
// Malformed or empty buffers yield an empty argument map so a bad tool
// call degrades into a tool error instead of killing the turn.
func ParseToolArguments(buf string) map[string]any {
	if buf == "" {
		return map[string]any{}
	}
	var args map[string]any
	if err := json.Unmarshal([]byte(buf), &args); err != nil || args == nil {
		return map[string]any{}
	}
	return args
}
