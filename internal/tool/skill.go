package tool

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
)

// SkillInfo is a named block of detailed instructions the model can
// load on demand.
type SkillInfo struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Content     string `json:"content"`
}

// SkillTool exposes registered skills. The description lists the
// available skills so the model knows what it can load.
type SkillTool struct {
	skills map[string]SkillInfo
	order  []string
}

// NewSkillTool creates the skill tool with the built-in skills plus any
// additional ones.
func NewSkillTool(additional ...SkillInfo) *SkillTool {
	t := &SkillTool{skills: make(map[string]SkillInfo)}
	for _, s := range defaultSkills {
		t.register(s)
	}
	for _, s := range additional {
		t.register(s)
	}
	return t
}

func (t *SkillTool) register(s SkillInfo) {
	if _, exists := t.skills[s.Name]; !exists {
		t.order = append(t.order, s.Name)
	}
	t.skills[s.Name] = s
}

// Skills returns registered skills in registration order.
func (t *SkillTool) Skills() []SkillInfo {
	out := make([]SkillInfo, 0, len(t.order))
	for _, name := range t.order {
		out = append(out, t.skills[name])
	}
	return out
}

func (t *SkillTool) ID() string { return "skill" }

func (t *SkillTool) Description() string {
	skills := t.Skills()
	if len(skills) == 0 {
		return "Load a skill to get detailed instructions for a specific task. No skills are currently available."
	}
	lines := []string{
		"Load a skill to get detailed instructions for a specific task.",
		"Skills provide specialized knowledge and step-by-step guidance.",
		"Use this when a task matches an available skill's description.",
		"",
		"<available_skills>",
	}
	for _, s := range skills {
		lines = append(lines,
			"  <skill>",
			fmt.Sprintf("    <name>%s</name>", s.Name),
			fmt.Sprintf("    <description>%s</description>", s.Description),
			"  </skill>",
		)
	}
	lines = append(lines, "</available_skills>")
	return strings.Join(lines, "\n")
}

func (t *SkillTool) Parameters() json.RawMessage {
	names := t.order
	examples := make([]string, 0, 3)
	for i, name := range names {
		if i == 3 {
			break
		}
		examples = append(examples, fmt.Sprintf("'%s'", name))
	}
	hint := ""
	if len(examples) > 0 {
		hint = fmt.Sprintf(" (e.g., %s, ...)", strings.Join(examples, ", "))
	}

	nameSchema := map[string]any{
		"type":        "string",
		"description": "The skill identifier from available_skills" + hint,
	}
	if len(names) > 0 {
		nameSchema["enum"] = names
	}
	return mustJSON(map[string]any{
		"type": "object",
		"properties": map[string]any{
			"name": nameSchema,
		},
		"required": []string{"name"},
	})
}

func (t *SkillTool) Execute(ctx context.Context, args map[string]any, tc Context) (*Result, error) {
	name := stringArg(args, "name", "")
	skill, ok := t.skills[name]
	if !ok {
		available := strings.Join(t.order, ", ")
		if available == "" {
			available = "none"
		}
		return &Result{
			Title:    fmt.Sprintf("Skill not found: %s", name),
			Output:   fmt.Sprintf("Skill %q not found. Available skills: %s", name, available),
			Metadata: map[string]any{"error": true},
		}, nil
	}

	output := fmt.Sprintf("## Skill: %s\n\n**Description**: %s\n\n%s\n", skill.Name, skill.Description, skill.Content)
	return &Result{
		Title:    fmt.Sprintf("Loaded skill: %s", skill.Name),
		Output:   output,
		Metadata: map[string]any{"name": skill.Name},
	}, nil
}

var defaultSkills = []SkillInfo{
	{
		Name:        "web-research",
		Description: "Comprehensive web research methodology for gathering information from multiple sources",
		Content: `# Web Research Skill

## Purpose
Guide for conducting thorough web research to answer questions or gather information.

## Methodology

### 1. Query Formulation
- Break down complex questions into specific search queries
- Use different phrasings to get diverse results
- Include domain-specific terms when relevant

### 2. Source Evaluation
- Prioritize authoritative sources (official docs, reputable publications)
- Cross-reference information across multiple sources
- Note publication dates for time-sensitive information

### 3. Information Synthesis
- Compile findings from multiple sources
- Identify consensus vs. conflicting information
- Summarize key points clearly

### 4. Citation
- Always provide source URLs
- Note when information might be outdated

## Tools to Use
- ` + "`websearch`" + `: For finding relevant pages
- ` + "`webfetch`" + `: For extracting content from specific URLs

## Best Practices
- Start broad, then narrow down
- Use quotes for exact phrases
- Filter by date when freshness matters
- Verify claims with multiple sources
`,
	},
	{
		Name:        "code-explanation",
		Description: "Methodology for explaining code clearly to users of varying skill levels",
		Content: `# Code Explanation Skill

## Purpose
Guide for explaining code in a clear, educational manner.

## Approach

### 1. Assess Context
- Determine user's apparent skill level
- Identify what aspect they're asking about
- Note any specific confusion points

### 2. Structure Explanation
- Start with high-level overview (what does it do?)
- Break down into logical sections
- Explain each component's purpose

### 3. Use Analogies
- Relate concepts to familiar ideas
- Use real-world metaphors when helpful
- Avoid overly technical jargon initially

### 4. Provide Examples
- Show simple examples first
- Build up to complex cases
- Include edge cases when relevant

### 5. Verify Understanding
- Use the question tool to check comprehension
- Offer to elaborate on specific parts
- Provide additional resources if needed

## Best Practices
- Don't assume prior knowledge
- Explain "why" not just "what"
- Use code comments effectively
- Highlight common pitfalls
`,
	},
	{
		Name:        "api-integration",
		Description: "Best practices for integrating with external APIs",
		Content: `# API Integration Skill

## Purpose
Guide for properly integrating with external APIs.

## Key Considerations

### 1. Authentication
- Store API keys securely (environment variables)
- Never hardcode credentials
- Handle token refresh if applicable

### 2. Error Handling
- Implement retry logic for transient failures
- Handle rate limiting gracefully
- Log errors with context

### 3. Request Best Practices
- Set appropriate timeouts
- Use connection pooling
- Implement circuit breakers for resilience

### 4. Response Handling
- Validate response schemas
- Handle pagination properly
- Cache responses when appropriate

### 5. Testing
- Mock API responses in tests
- Test error scenarios
- Verify rate limit handling
`,
	},
	{
		Name:        "debugging",
		Description: "Systematic approach to debugging problems",
		Content: `# Debugging Skill

## Purpose
Systematic methodology for identifying and fixing bugs.

## Process

### 1. Reproduce the Issue
- Get exact steps to reproduce
- Note environment details
- Identify when it started happening

### 2. Gather Information
- Check error messages and stack traces
- Review recent changes
- Check logs for anomalies

### 3. Form Hypotheses
- List possible causes
- Rank by likelihood
- Consider recent changes first

### 4. Test Hypotheses
- Start with most likely cause
- Make minimal changes to test
- Verify each hypothesis before moving on

### 5. Implement Fix
- Fix root cause, not symptoms
- Add tests to prevent regression
- Document the fix

### 6. Verify Fix
- Confirm original issue is resolved
- Check for side effects
- Test related functionality

## Debugging Questions
- What changed recently?
- Does it happen consistently?
- What's different when it works?
- What are the exact inputs?
`,
	},
	{
		Name:        "task-planning",
		Description: "Breaking down complex tasks into manageable steps",
		Content: `# Task Planning Skill

## Purpose
Guide for decomposing complex tasks into actionable steps.

## Methodology

### 1. Understand the Goal
- Clarify the end objective
- Identify success criteria
- Note any constraints

### 2. Identify Components
- Break into major phases
- List dependencies between parts
- Identify parallel vs. sequential work

### 3. Create Action Items
- Make each item specific and actionable
- Estimate effort/complexity
- Assign priorities

### 4. Sequence Work
- Order by dependencies
- Front-load risky items
- Plan for blockers

### 5. Track Progress
- Use todo tool to track items
- Update status as work progresses
- Re-plan when needed

## Best Practices
- Start with end goal in mind
- Keep items small (< 1 hour ideal)
- Include verification steps
- Plan for error cases
`,
	},
}
