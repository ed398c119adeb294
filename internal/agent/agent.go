// Package agent holds the agent catalog: named bundles of prompt,
// permissions, and loop defaults that govern how the orchestrator runs
// a session.
package agent

import (
	"sort"
	"strings"
	"sync"

	"github.com/opencore-ai/opencore/pkg/models"
)

// DefaultAgentID is used when a session has no agent set.
const DefaultAgentID = "build"

// Registry holds built-in and custom agents. Custom agents shadow
// builtins with the same ID. Safe for concurrent use.
type Registry struct {
	mu       sync.RWMutex
	builtins map[string]*models.Agent
	custom   map[string]*models.Agent
}

// NewRegistry creates a registry seeded with the built-in agents.
func NewRegistry() *Registry {
	r := &Registry{
		builtins: make(map[string]*models.Agent),
		custom:   make(map[string]*models.Agent),
	}
	for _, a := range builtinAgents() {
		r.builtins[a.ID] = a
	}
	return r
}

// Get returns the agent with the given ID, custom agents first, or nil.
func (r *Registry) Get(agentID string) *models.Agent {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if a, ok := r.custom[agentID]; ok {
		return a
	}
	return r.builtins[agentID]
}

// Default returns the build agent.
func (r *Registry) Default() *models.Agent {
	return r.Get(DefaultAgentID)
}

// Register adds or replaces a custom agent.
func (r *Registry) Register(a *models.Agent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.custom[a.ID] = a
}

// Unregister removes a custom agent. Builtins cannot be removed.
func (r *Registry) Unregister(agentID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.custom[agentID]; !ok {
		return false
	}
	delete(r.custom, agentID)
	return true
}

// List returns agents, optionally filtered by mode, sorted by name with
// build first. Hidden agents are skipped unless includeHidden is set.
func (r *Registry) List(mode models.AgentMode, includeHidden bool) []*models.Agent {
	r.mu.RLock()
	merged := make(map[string]*models.Agent, len(r.builtins)+len(r.custom))
	for id, a := range r.builtins {
		merged[id] = a
	}
	for id, a := range r.custom {
		merged[id] = a
	}
	r.mu.RUnlock()

	out := make([]*models.Agent, 0, len(merged))
	for _, a := range merged {
		if a.Hidden && !includeHidden {
			continue
		}
		if mode != "" && a.Mode != mode {
			continue
		}
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool {
		if (out[i].Name == "build") != (out[j].Name == "build") {
			return out[i].Name == "build"
		}
		return out[i].Name < out[j].Name
	})
	return out
}

// IsToolAllowed evaluates the agent's ordered permission list for a
// tool. Rules match on the exact tool name or "*"; the last matching
// rule wins and no match means allow.
func IsToolAllowed(a *models.Agent, toolName string) models.PermissionAction {
	result := models.ActionAllow
	for _, perm := range a.Permissions {
		if perm.ToolName == "*" || perm.ToolName == toolName {
			result = perm.Action
		}
	}
	return result
}

// SystemPrompt composes the agent's own prompt contribution: its
// configured prompt when it auto-continues, plus its description.
func SystemPrompt(a *models.Agent) string {
	var parts []string
	if a.AutoContinue && a.Prompt != "" {
		parts = append(parts, a.Prompt)
	}
	if a.Description != "" {
		parts = append(parts, "You are the '"+a.Name+"' agent: "+a.Description)
	}
	return strings.Join(parts, "\n\n")
}

// BuildSystemPrompt assembles the full system prompt: the
// provider-optimized base prompt, the agent contribution when it
// differs, and any custom system text from the request.
func BuildSystemPrompt(a *models.Agent, providerID, custom string) string {
	var parts []string
	providerPrompt := PromptForProvider(providerID)
	if providerPrompt != "" {
		parts = append(parts, providerPrompt)
	}
	if agentPrompt := SystemPrompt(a); agentPrompt != "" && agentPrompt != providerPrompt {
		parts = append(parts, agentPrompt)
	}
	if custom != "" {
		parts = append(parts, custom)
	}
	return strings.Join(parts, "\n\n")
}

func builtinAgents() []*models.Agent {
	return []*models.Agent{
		{
			ID:          "build",
			Name:        "build",
			Description: "Default agent with full capabilities. Continues working until task is complete.",
			Mode:        models.ModePrimary,
			Native:      true,
			Prompt:      beastPrompt,
			Permissions: []models.Permission{
				{ToolName: "*", Action: models.ActionAllow},
				{ToolName: "question", Action: models.ActionAllow},
			},
			AutoContinue:    true,
			MaxSteps:        50,
			PauseOnQuestion: true,
		},
		{
			ID:          "general",
			Name:        "general",
			Description: "General-purpose agent for researching complex questions and executing multi-step tasks.",
			Mode:        models.ModeSubagent,
			Native:      true,
			Permissions: []models.Permission{
				{ToolName: "*", Action: models.ActionAllow},
				{ToolName: "todo", Action: models.ActionDeny},
			},
			AutoContinue:    true,
			MaxSteps:        30,
			PauseOnQuestion: true,
		},
		{
			ID:          "explore",
			Name:        "explore",
			Description: "Fast agent specialized for exploring codebases and searching for information.",
			Mode:        models.ModeSubagent,
			Native:      true,
			Permissions: []models.Permission{
				{ToolName: "*", Action: models.ActionDeny},
				{ToolName: "websearch", Action: models.ActionAllow},
				{ToolName: "webfetch", Action: models.ActionAllow},
			},
			AutoContinue:    false,
			MaxSteps:        50,
			PauseOnQuestion: true,
		},
		{
			ID:          "compaction",
			Name:        "Compaction",
			Description: "Summarizes conversation context for compaction",
			Mode:        models.ModePrimary,
			Hidden:      true,
			Native:      true,
			Tools:       []string{},
			Permissions: []models.Permission{
				{ToolName: "*", Action: models.ActionAllow},
			},
			AutoContinue:    false,
			MaxSteps:        1,
			PauseOnQuestion: true,
		},
	}
}
