// Package models provides the domain types shared across the opencore
// orchestrator: sessions, messages, message parts, and agent configuration.
package models

import "time"

// Session represents a conversational thread and its metadata.
type Session struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id,omitempty"`
	Title     string    `json:"title"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	// Default provider/model/agent bindings for prompts that do not
	// specify their own.
	ProviderID string `json:"provider_id,omitempty"`
	ModelID    string `json:"model_id,omitempty"`
	AgentID    string `json:"agent_id,omitempty"`

	// Cumulative totals. Monotonically non-decreasing.
	TotalCost         float64 `json:"total_cost"`
	TotalInputTokens  int     `json:"total_input_tokens"`
	TotalOutputTokens int     `json:"total_output_tokens"`
}

// SessionCreate carries the caller-settable fields for a new session.
type SessionCreate struct {
	Title      string `json:"title,omitempty"`
	ProviderID string `json:"provider_id,omitempty"`
	ModelID    string `json:"model_id,omitempty"`
	AgentID    string `json:"agent_id,omitempty"`
}

// Usage is the token usage reported by a provider for one completion.
type Usage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}
