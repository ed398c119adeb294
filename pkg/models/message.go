package models

import "time"

// Role indicates the message author type.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

// PartType discriminates the typed fragments of an assistant message.
type PartType string

const (
	PartText       PartType = "text"
	PartReasoning  PartType = "reasoning"
	PartToolCall   PartType = "tool_call"
	PartToolResult PartType = "tool_result"
	PartStepStart  PartType = "step_start"
	PartStepFinish PartType = "step_finish"
)

// ToolStatus tracks a tool call part through its lifecycle.
// Transitions are monotonic: pending -> running -> (completed|error).
type ToolStatus string

const (
	ToolPending   ToolStatus = "pending"
	ToolRunning   ToolStatus = "running"
	ToolCompleted ToolStatus = "completed"
	ToolError     ToolStatus = "error"
)

// Part is a typed fragment appended to an assistant message.
//
// The meaning of the optional fields depends on Type:
//   - text, reasoning: Content accumulates streamed text.
//   - tool_call: ToolCallID, ToolName, ToolArgs, ToolStatus.
//   - tool_result: ToolCallID, ToolOutput; pairs with an earlier tool_call
//     part carrying the same ToolCallID within the same message.
//   - step_start, step_finish: StepNumber, MaxSteps; step_finish may also
//     carry InputTokens, OutputTokens, Cost, and StopReason.
type Part struct {
	ID        string   `json:"id"`
	SessionID string   `json:"session_id"`
	MessageID string   `json:"message_id"`
	Type      PartType `json:"type"`

	Content string `json:"content,omitempty"`

	ToolCallID string         `json:"tool_call_id,omitempty"`
	ToolName   string         `json:"tool_name,omitempty"`
	ToolArgs   map[string]any `json:"tool_args,omitempty"`
	ToolOutput string         `json:"tool_output,omitempty"`
	ToolStatus ToolStatus     `json:"tool_status,omitempty"`

	StepNumber   int     `json:"step_number,omitempty"`
	MaxSteps     int     `json:"max_steps,omitempty"`
	InputTokens  int     `json:"input_tokens,omitempty"`
	OutputTokens int     `json:"output_tokens,omitempty"`
	Cost         float64 `json:"cost,omitempty"`
	StopReason   string  `json:"stop_reason,omitempty"`
}

// Message is one entry in a session's append-only log. User messages carry
// Content and are immutable after creation; assistant messages start empty
// and grow an ordered list of Parts.
type Message struct {
	ID        string    `json:"id"`
	SessionID string    `json:"session_id"`
	Role      Role      `json:"role"`
	CreatedAt time.Time `json:"created_at"`

	// User messages only.
	Content string `json:"content,omitempty"`

	// Assistant messages only.
	ProviderID string `json:"provider_id,omitempty"`
	ModelID    string `json:"model_id,omitempty"`
	Parts      []Part `json:"parts,omitempty"`
	Usage      *Usage `json:"usage,omitempty"`
	Error      string `json:"error,omitempty"`
	Finish     string `json:"finish,omitempty"`
	Summary    bool   `json:"summary,omitempty"`
}

// TextContent joins the content of all text parts of an assistant message.
// For a user message it returns Content.
func (m *Message) TextContent() string {
	if m.Role == RoleUser {
		return m.Content
	}
	var out string
	for i := range m.Parts {
		if m.Parts[i].Type == PartText {
			out += m.Parts[i].Content
		}
	}
	return out
}
