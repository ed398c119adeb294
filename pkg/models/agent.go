package models

import "fmt"

// AgentMode controls where an agent can be selected.
type AgentMode string

const (
	ModePrimary  AgentMode = "primary"
	ModeSubagent AgentMode = "subagent"
	ModeAll      AgentMode = "all"
)

// PermissionAction is the outcome of a permission rule.
type PermissionAction string

const (
	ActionAllow PermissionAction = "allow"
	ActionDeny  PermissionAction = "deny"
	ActionAsk   PermissionAction = "ask"
)

// ParsePermissionAction validates a string action. Unknown values are
// rejected at load time rather than silently treated as allow.
func ParsePermissionAction(s string) (PermissionAction, error) {
	switch PermissionAction(s) {
	case ActionAllow, ActionDeny, ActionAsk:
		return PermissionAction(s), nil
	}
	return "", fmt.Errorf("unknown permission action %q", s)
}

// Permission is one entry in an agent's ordered permission list.
// ToolName may be a concrete tool name or "*". Last match wins.
type Permission struct {
	ToolName string           `json:"tool_name" yaml:"tool_name"`
	Action   PermissionAction `json:"action" yaml:"action"`
}

// AgentModel binds an agent to a specific provider and model.
type AgentModel struct {
	ProviderID string `json:"provider_id" yaml:"provider_id"`
	ModelID    string `json:"model_id" yaml:"model_id"`
}

// Agent bundles a prompt, permissions, and loop defaults under a name.
type Agent struct {
	ID          string    `json:"id" yaml:"id"`
	Name        string    `json:"name" yaml:"name"`
	Description string    `json:"description,omitempty" yaml:"description"`
	Mode        AgentMode `json:"mode" yaml:"mode"`
	Hidden      bool      `json:"hidden,omitempty" yaml:"hidden"`
	Native      bool      `json:"native,omitempty" yaml:"native"`

	Model       *AgentModel `json:"model,omitempty" yaml:"model"`
	Temperature *float32    `json:"temperature,omitempty" yaml:"temperature"`
	TopP        *float32    `json:"top_p,omitempty" yaml:"top_p"`
	MaxTokens   int         `json:"max_tokens,omitempty" yaml:"max_tokens"`

	Prompt string `json:"prompt,omitempty" yaml:"prompt"`

	Tools       []string     `json:"tools,omitempty" yaml:"tools"`
	Permissions []Permission `json:"permissions,omitempty" yaml:"permissions"`

	AutoContinue    bool `json:"auto_continue" yaml:"auto_continue"`
	MaxSteps        int  `json:"max_steps" yaml:"max_steps"`
	PauseOnQuestion bool `json:"pause_on_question" yaml:"pause_on_question"`
}
