package compaction

import (
	"context"
	"strings"
	"testing"

	"github.com/opencore-ai/opencore/internal/agent"
	"github.com/opencore-ai/opencore/internal/bus"
	"github.com/opencore-ai/opencore/internal/message"
	"github.com/opencore-ai/opencore/internal/provider"
	"github.com/opencore-ai/opencore/internal/session"
	"github.com/opencore-ai/opencore/internal/storage"
	"github.com/opencore-ai/opencore/pkg/models"
)

type fakeProvider struct {
	script []*provider.StreamChunk
}

func (f *fakeProvider) ID() string   { return "fake" }
func (f *fakeProvider) Name() string { return "Fake" }
func (f *fakeProvider) Models() map[string]provider.ModelInfo {
	return map[string]provider.ModelInfo{"fake-model": {ID: "fake-model", ProviderID: "fake"}}
}

func (f *fakeProvider) Stream(ctx context.Context, req provider.StreamRequest) (<-chan *provider.StreamChunk, error) {
	chunks := make(chan *provider.StreamChunk)
	go func() {
		defer close(chunks)
		for _, c := range f.script {
			chunks <- c
		}
	}()
	return provider.Normalize(chunks), nil
}

type fixture struct {
	sessions  *session.Store
	messages  *message.Store
	providers *provider.Registry
	compactor *Compactor
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	st := storage.NewMemoryStore()
	b := bus.New()
	t.Cleanup(b.Clear)
	msgs := message.NewStore(st, b)
	sessions := session.NewStore(st, msgs, b)
	providers := provider.NewRegistry()
	agents := agent.NewRegistry()
	return &fixture{
		sessions:  sessions,
		messages:  msgs,
		providers: providers,
		compactor: New(sessions, msgs, providers, agents, b, nil),
	}
}

// seedToolTurn adds one user message and one assistant message carrying
// a completed tool call whose result estimates to outputChars/4 tokens.
func seedToolTurn(t *testing.T, f *fixture, sessionID, toolName string, outputChars int) {
	t.Helper()
	ctx := context.Background()
	if _, err := f.messages.CreateUser(ctx, sessionID, "next step please"); err != nil {
		t.Fatal(err)
	}
	asst, err := f.messages.CreateAssistant(ctx, sessionID, message.AssistantOptions{ProviderID: "fake", ModelID: "fake-model"})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := f.messages.AddPart(ctx, sessionID, asst.ID, models.Part{
		Type:       models.PartToolCall,
		ToolCallID: "call_" + asst.ID,
		ToolName:   toolName,
		ToolArgs:   map[string]any{"q": "x"},
		ToolStatus: models.ToolCompleted,
	}); err != nil {
		t.Fatal(err)
	}
	if _, err := f.messages.AddPart(ctx, sessionID, asst.ID, models.Part{
		Type:       models.PartToolResult,
		ToolCallID: "call_" + asst.ID,
		ToolOutput: strings.Repeat("x", outputChars),
	}); err != nil {
		t.Fatal(err)
	}
}

func TestPruneReplacesOldToolOutputs(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	sess, err := f.sessions.Create(ctx, models.SessionCreate{}, "")
	if err != nil {
		t.Fatal(err)
	}

	// 8 turns of ~15000 estimated tokens each.
	for i := 0; i < 8; i++ {
		seedToolTurn(t, f, sess.ID, "websearch", 60000)
	}

	result, err := f.compactor.Prune(ctx, sess.ID)
	if err != nil {
		t.Fatal(err)
	}
	if result == nil {
		t.Fatal("prune persisted nothing")
	}
	// 6 eligible parts; the newest 30k tokens stay inside the 40k
	// protected window, the remaining 4 parts are reclaimed.
	if result.PrunedCount != 4 {
		t.Errorf("pruned count = %d, want 4", result.PrunedCount)
	}
	if result.TokensSaved <= PruneMinimum {
		t.Errorf("tokens saved = %d, want > %d", result.TokensSaved, PruneMinimum)
	}

	history, err := f.messages.List(ctx, sess.ID, 0)
	if err != nil {
		t.Fatal(err)
	}
	// Latest two turns (last 4 messages) untouched, oldest pruned.
	for _, msg := range history[len(history)-4:] {
		for _, part := range msg.Parts {
			if part.Type == models.PartToolResult && part.ToolOutput == PruneMarker {
				t.Error("recent turn was pruned")
			}
		}
	}
	oldest := history[1]
	if oldest.Parts[1].ToolOutput != PruneMarker {
		t.Errorf("oldest tool output = %q, want marker", oldest.Parts[1].ToolOutput[:20])
	}
}

func TestPruneBelowMinimumIsNoop(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	sess, _ := f.sessions.Create(ctx, models.SessionCreate{}, "")

	// 4 turns x 15000 tokens: only 30k eligible beyond the latest two
	// turns, and everything inside the protected window.
	for i := 0; i < 4; i++ {
		seedToolTurn(t, f, sess.ID, "websearch", 60000)
	}

	result, err := f.compactor.Prune(ctx, sess.ID)
	if err != nil {
		t.Fatal(err)
	}
	if result != nil {
		t.Fatalf("prune persisted below minimum: %+v", result)
	}

	history, _ := f.messages.List(ctx, sess.ID, 0)
	for _, msg := range history {
		for _, part := range msg.Parts {
			if part.ToolOutput == PruneMarker {
				t.Error("part pruned despite no-op result")
			}
		}
	}
}

func TestPruneSkipsProtectedTools(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	sess, _ := f.sessions.Create(ctx, models.SessionCreate{}, "")

	for i := 0; i < 8; i++ {
		seedToolTurn(t, f, sess.ID, "skill", 60000)
	}

	result, err := f.compactor.Prune(ctx, sess.ID)
	if err != nil {
		t.Fatal(err)
	}
	if result != nil {
		t.Fatalf("skill outputs pruned: %+v", result)
	}
}

func TestCompactWithoutProviderFails(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	sess, _ := f.sessions.Create(ctx, models.SessionCreate{ProviderID: "fake", ModelID: "fake-model"}, "")
	for i := 0; i < 10; i++ {
		if _, err := f.messages.CreateUser(ctx, sess.ID, "message"); err != nil {
			t.Fatal(err)
		}
	}

	result, err := f.compactor.Compact(ctx, sess.ID)
	if err == nil || result != nil {
		t.Fatalf("Compact = %+v, %v; want provider error", result, err)
	}
}

func TestCompactFallbackSummary(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.providers.Register(&fakeProvider{script: []*provider.StreamChunk{
		{Type: provider.ChunkError, Error: "model unavailable"},
	}})

	sess, _ := f.sessions.Create(ctx, models.SessionCreate{ProviderID: "fake", ModelID: "fake-model"}, "")
	for i := 0; i < 10; i++ {
		if _, err := f.messages.CreateUser(ctx, sess.ID, "message"); err != nil {
			t.Fatal(err)
		}
	}

	result, err := f.compactor.Compact(ctx, sess.ID)
	if err != nil {
		t.Fatal(err)
	}
	if result == nil {
		t.Fatal("Compact returned nil despite registered provider")
	}
	if !strings.Contains(result.Summary, "[Conversation Summary - 10 messages]") {
		t.Errorf("summary = %q", result.Summary)
	}
	if result.MessagesCompacted != 10 {
		t.Errorf("messages compacted = %d", result.MessagesCompacted)
	}

	history, _ := f.messages.List(ctx, sess.ID, 0)
	last := history[len(history)-1]
	if !last.Summary {
		t.Error("summary message not flagged")
	}
	if last.TextContent() != result.Summary {
		t.Error("persisted summary differs from result")
	}
}

func TestCompactModelSummary(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.providers.Register(&fakeProvider{script: []*provider.StreamChunk{
		{Type: provider.ChunkText, Text: "The user asked about Go "},
		{Type: provider.ChunkText, Text: "and we discussed channels."},
		{Type: provider.ChunkDone, StopReason: provider.StopEndTurn},
	}})

	sess, _ := f.sessions.Create(ctx, models.SessionCreate{ProviderID: "fake", ModelID: "fake-model"}, "")
	f.messages.CreateUser(ctx, sess.ID, "tell me about Go channels")

	result, err := f.compactor.Compact(ctx, sess.ID)
	if err != nil {
		t.Fatal(err)
	}
	if result.Summary != "The user asked about Go and we discussed channels." {
		t.Errorf("summary = %q", result.Summary)
	}
	if result.TokensSaved < 0 {
		t.Errorf("tokens saved = %d", result.TokensSaved)
	}
}

func TestShouldCompactAndStatus(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	sess, _ := f.sessions.Create(ctx, models.SessionCreate{}, "")

	if f.compactor.ShouldCompact(ctx, sess.ID) {
		t.Error("empty session should not compact")
	}
	for i := 0; i < CompactionThreshold; i++ {
		f.messages.CreateUser(ctx, sess.ID, "m")
	}
	if !f.compactor.ShouldCompact(ctx, sess.ID) {
		t.Error("session at threshold should compact")
	}

	status, err := f.compactor.Status(ctx, sess.ID)
	if err != nil {
		t.Fatal(err)
	}
	if !status.ShouldCompact || status.MessageCount != CompactionThreshold || status.RemainingUntilCompaction != 0 {
		t.Errorf("status = %+v", status)
	}
}
