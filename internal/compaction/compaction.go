// Package compaction reclaims context window space: prune replaces old
// tool outputs with a marker, compact summarizes the whole history
// through the compaction agent.
package compaction

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/opencore-ai/opencore/internal/agent"
	"github.com/opencore-ai/opencore/internal/bus"
	"github.com/opencore-ai/opencore/internal/message"
	"github.com/opencore-ai/opencore/internal/provider"
	"github.com/opencore-ai/opencore/internal/session"
	"github.com/opencore-ai/opencore/internal/token"
	"github.com/opencore-ai/opencore/pkg/models"
)

const (
	// PruneProtect is the token window of recent tool output kept intact.
	PruneProtect = 40000
	// PruneMinimum is the smallest reclaim worth persisting.
	PruneMinimum = 20000
	// PruneMarker replaces pruned tool outputs.
	PruneMarker = "[pruned]"

	// CompactionThreshold is the message count that suggests compacting.
	CompactionThreshold = 50

	compactionAgentID = "compaction"
)

// protectedTools are never pruned; their output is instructions the
// model still needs.
var protectedTools = map[string]bool{"skill": true}

const continuationPrompt = "Provide a detailed prompt for continuing our conversation above. " +
	"Summarize what has been discussed, key decisions made, the current state of any ongoing " +
	"work, and what remains to be done, so a fresh session can pick up exactly where this one left off."

// PruneResult reports what a prune pass reclaimed.
type PruneResult struct {
	PrunedCount int `json:"pruned_count"`
	TokensSaved int `json:"tokens_saved"`
}

// Result reports a compaction run.
type Result struct {
	SessionID         string    `json:"session_id"`
	Summary           string    `json:"summary"`
	MessagesCompacted int       `json:"messages_compacted"`
	TokensSaved       int       `json:"tokens_saved"`
	CostSaved         float64   `json:"cost_saved"`
	CompactedAt       time.Time `json:"compacted_at"`
}

// Status describes how close a session is to the compaction threshold.
type Status struct {
	SessionID                string `json:"session_id"`
	MessageCount             int    `json:"message_count"`
	CompactionThreshold      int    `json:"compaction_threshold"`
	ShouldCompact            bool   `json:"should_compact"`
	CompactionCount          int    `json:"compaction_count"`
	RemainingUntilCompaction int    `json:"remaining_until_compaction"`
}

// Compactor runs prune and compact over a session's history.
type Compactor struct {
	sessions  *session.Store
	messages  *message.Store
	providers *provider.Registry
	agents    *agent.Registry
	bus       *bus.Bus
	logger    *slog.Logger
}

// New creates a compactor.
func New(sessions *session.Store, messages *message.Store, providers *provider.Registry, agents *agent.Registry, b *bus.Bus, logger *slog.Logger) *Compactor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Compactor{
		sessions:  sessions,
		messages:  messages,
		providers: providers,
		agents:    agents,
		bus:       b,
		logger:    logger,
	}
}

// prunable marks one tool_result part scheduled for replacement.
type prunable struct {
	messageID string
	partID    string
	tokens    int
}

// Prune walks history newest-to-oldest and replaces tool outputs that
// fall outside the protected window with PruneMarker. The latest two
// user turns are never touched, a summary message halts the scan, and
// nothing is persisted unless the reclaim exceeds PruneMinimum.
func (c *Compactor) Prune(ctx context.Context, sessionID string) (*PruneResult, error) {
	history, err := c.messages.List(ctx, sessionID, 0)
	if err != nil {
		return nil, err
	}

	var marked []prunable
	total := 0
	pruned := 0
	turns := 0

scan:
	for i := len(history) - 1; i >= 0; i-- {
		msg := history[i]
		if msg.Role == models.RoleUser {
			turns++
			continue
		}
		if msg.Role != models.RoleAssistant {
			continue
		}
		if msg.Summary {
			break
		}
		// Latest two turns stay intact.
		if turns < 2 {
			continue
		}

		calls := toolCallsByID(msg)
		for j := len(msg.Parts) - 1; j >= 0; j-- {
			part := &msg.Parts[j]
			if part.Type != models.PartToolResult {
				continue
			}
			call := calls[part.ToolCallID]
			if call != nil && call.ToolStatus != models.ToolCompleted {
				continue
			}
			if call != nil && protectedTools[call.ToolName] {
				continue
			}
			if strings.HasPrefix(part.ToolOutput, PruneMarker) {
				// Boundary of a previous prune pass.
				break scan
			}
			estimate := token.Estimate(part.ToolOutput)
			total += estimate
			if total > PruneProtect {
				marked = append(marked, prunable{messageID: msg.ID, partID: part.ID, tokens: estimate})
				pruned += estimate
			}
		}
	}

	if pruned <= PruneMinimum {
		return nil, nil
	}

	for _, m := range marked {
		_, err := c.messages.UpdatePart(ctx, sessionID, m.messageID, m.partID, func(p *models.Part) {
			p.ToolOutput = PruneMarker
		})
		if err != nil {
			return nil, fmt.Errorf("prune part %s: %w", m.partID, err)
		}
	}

	c.logger.Info("pruned session history",
		"session_id", sessionID,
		"parts", len(marked),
		"tokens_saved", pruned)
	return &PruneResult{PrunedCount: len(marked), TokensSaved: pruned}, nil
}

// toolCallsByID maps tool_call_id to its tool_call part within one
// message, for resolving the name and status behind a tool_result.
func toolCallsByID(msg *models.Message) map[string]*models.Part {
	calls := make(map[string]*models.Part)
	for i := range msg.Parts {
		if msg.Parts[i].Type == models.PartToolCall {
			calls[msg.Parts[i].ToolCallID] = &msg.Parts[i]
		}
	}
	return calls
}

// ShouldCompact reports whether the session's message count has reached
// the threshold.
func (c *Compactor) ShouldCompact(ctx context.Context, sessionID string) bool {
	history, err := c.messages.List(ctx, sessionID, 0)
	if err != nil {
		return false
	}
	return len(history) >= CompactionThreshold
}

// IsOverflow reports whether the session's history exceeds the model's
// usable context.
func (c *Compactor) IsOverflow(ctx context.Context, sessionID string, model *provider.ModelInfo) (bool, error) {
	if model == nil {
		return false, nil
	}
	history, err := c.messages.List(ctx, sessionID, 0)
	if err != nil {
		return false, err
	}
	return token.IsOverflow(history, model.ContextLimit, model.OutputLimit), nil
}

// Compact asks the compaction agent's model to summarize the whole
// conversation and persists the summary as a summary-flagged assistant
// message. When the model cannot be reached mid-stream, a deterministic
// structural summary is used instead.
func (c *Compactor) Compact(ctx context.Context, sessionID string) (*Result, error) {
	sess, err := c.sessions.Get(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	history, err := c.messages.List(ctx, sessionID, 0)
	if err != nil {
		return nil, err
	}
	if len(history) == 0 {
		return nil, nil
	}

	compactionAgent := c.agents.Get(compactionAgentID)
	if compactionAgent == nil {
		return nil, fmt.Errorf("compaction agent not registered")
	}

	providerID, modelID := c.resolveModel(compactionAgent, sess)
	prov, err := c.providers.Get(providerID)
	if err != nil {
		return nil, fmt.Errorf("compaction provider: %w", err)
	}

	preEstimate := token.CountMessages(history).Total

	summaryMsg, err := c.messages.CreateAssistant(ctx, sessionID, message.AssistantOptions{
		ProviderID: providerID,
		ModelID:    modelID,
		Summary:    true,
	})
	if err != nil {
		return nil, err
	}

	summary, err := c.summarize(ctx, prov, modelID, compactionAgent, history)
	if err != nil {
		c.logger.Warn("compaction model failed, using structural summary",
			"session_id", sessionID, "error", err)
		summary = structuralSummary(history)
	}

	if _, err := c.messages.AddPart(ctx, sessionID, summaryMsg.ID, models.Part{
		Type:    models.PartText,
		Content: summary,
	}); err != nil {
		return nil, err
	}

	if c.bus != nil {
		c.bus.Publish(bus.SessionUpdated, map[string]any{"session_id": sessionID})
	}

	tokensSaved := preEstimate - token.Estimate(summary)
	if tokensSaved < 0 {
		tokensSaved = 0
	}
	return &Result{
		SessionID:         sessionID,
		Summary:           summary,
		MessagesCompacted: len(history),
		TokensSaved:       tokensSaved,
		CostSaved:         float64(tokensSaved) * 1e-8,
		CompactedAt:       time.Now().UTC(),
	}, nil
}

// Status returns the compaction posture of a session.
func (c *Compactor) Status(ctx context.Context, sessionID string) (*Status, error) {
	history, err := c.messages.List(ctx, sessionID, 0)
	if err != nil {
		return nil, err
	}
	compactions := 0
	for _, msg := range history {
		if msg.Summary {
			compactions++
		}
	}
	remaining := CompactionThreshold - len(history)
	if remaining < 0 {
		remaining = 0
	}
	return &Status{
		SessionID:                sessionID,
		MessageCount:             len(history),
		CompactionThreshold:      CompactionThreshold,
		ShouldCompact:            len(history) >= CompactionThreshold,
		CompactionCount:          compactions,
		RemainingUntilCompaction: remaining,
	}, nil
}

func (c *Compactor) resolveModel(a *models.Agent, sess *models.Session) (providerID, modelID string) {
	if a.Model != nil {
		return a.Model.ProviderID, a.Model.ModelID
	}
	providerID = sess.ProviderID
	modelID = sess.ModelID
	if modelID != "" && providerID == "" {
		providerID = c.providers.Infer(modelID)
	}
	return providerID, modelID
}

// summarize streams the summary request and joins the text chunks. An
// error chunk or stream failure returns an error so the caller can fall
// back.
func (c *Compactor) summarize(ctx context.Context, prov provider.Provider, modelID string, a *models.Agent, history []*models.Message) (string, error) {
	wire := provider.ProjectMessages(history)
	wire = append(wire, provider.Message{Role: models.RoleUser, Content: continuationPrompt})

	chunks, err := prov.Stream(ctx, provider.StreamRequest{
		ModelID:  modelID,
		Messages: wire,
		System:   agent.SystemPrompt(a),
	})
	if err != nil {
		return "", err
	}

	var b strings.Builder
	for chunk := range chunks {
		switch chunk.Type {
		case provider.ChunkText:
			b.WriteString(chunk.Text)
		case provider.ChunkError:
			return "", fmt.Errorf("summary stream: %s", chunk.Error)
		}
	}
	if b.Len() == 0 {
		return "", fmt.Errorf("summary stream produced no text")
	}
	return b.String(), nil
}

// structuralSummary is the deterministic fallback: header, first and
// last conversation lines, totals.
func structuralSummary(history []*models.Message) string {
	var lines []string
	for _, msg := range history {
		if content := msg.TextContent(); content != "" {
			lines = append(lines, string(msg.Role)+": "+content)
		}
	}

	var keyLines []string
	if len(lines) > 0 {
		keyLines = append(keyLines, lines[0])
		if len(lines) > 1 {
			keyLines = append(keyLines, lines[len(lines)-1])
		}
	}

	parts := []string{
		fmt.Sprintf("[Conversation Summary - %d messages]", len(history)),
		"",
		"Key points:",
	}
	for _, line := range keyLines {
		if len(line) > 200 {
			line = line[:200] + "..."
		}
		parts = append(parts, "- "+line)
	}
	parts = append(parts,
		"",
		fmt.Sprintf("Total messages: %d", len(history)),
		"Context: Previous conversation history available in full log.",
	)
	return strings.Join(parts, "\n")
}
