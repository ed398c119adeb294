package message

import (
	"context"
	"errors"
	"testing"

	"github.com/opencore-ai/opencore/internal/bus"
	"github.com/opencore-ai/opencore/internal/id"
	"github.com/opencore-ai/opencore/internal/storage"
	"github.com/opencore-ai/opencore/pkg/models"
)

func newStore() (*Store, *bus.Bus) {
	b := bus.New()
	return NewStore(storage.NewMemoryStore(), b), b
}

func TestCreateUserPublishesAfterWrite(t *testing.T) {
	ctx := context.Background()
	s, b := newStore()

	var seen *models.Message
	b.Subscribe(bus.MessageUpdated, func(ev bus.Event) {
		// The event must observe the committed write.
		msg, err := s.Get(ctx, ev.Payload["session_id"].(string), ev.Payload["message_id"].(string))
		if err != nil {
			t.Errorf("Get inside handler: %v", err)
			return
		}
		seen = msg
	})

	msg, err := s.CreateUser(ctx, "ses_1", "hello")
	if err != nil {
		t.Fatal(err)
	}
	if !id.Validate(msg.ID, id.Message) {
		t.Errorf("message ID %q lacks msg prefix", msg.ID)
	}
	if seen == nil || seen.Content != "hello" {
		t.Fatalf("subscriber saw %+v", seen)
	}
}

func TestListAscending(t *testing.T) {
	ctx := context.Background()
	s, _ := newStore()

	first, _ := s.CreateUser(ctx, "ses_1", "one")
	second, _ := s.CreateAssistant(ctx, "ses_1", AssistantOptions{ProviderID: "anthropic", ModelID: "claude-sonnet-4-5"})
	third, _ := s.CreateUser(ctx, "ses_1", "two")

	msgs, err := s.List(ctx, "ses_1", 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(msgs) != 3 {
		t.Fatalf("len = %d, want 3", len(msgs))
	}
	for i, want := range []string{first.ID, second.ID, third.ID} {
		if msgs[i].ID != want {
			t.Errorf("msgs[%d].ID = %s, want %s", i, msgs[i].ID, want)
		}
	}
}

func TestListIsScopedToSession(t *testing.T) {
	ctx := context.Background()
	s, _ := newStore()

	s.CreateUser(ctx, "ses_1", "mine")
	s.CreateUser(ctx, "ses_2", "other")

	msgs, err := s.List(ctx, "ses_1", 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(msgs) != 1 || msgs[0].Content != "mine" {
		t.Fatalf("msgs = %+v", msgs)
	}
}

func TestAddPartPreservesOrderAndPairing(t *testing.T) {
	ctx := context.Background()
	s, _ := newStore()

	msg, _ := s.CreateAssistant(ctx, "ses_1", AssistantOptions{})
	s.AddPart(ctx, "ses_1", msg.ID, models.Part{Type: models.PartText, Content: "thinking about it"})
	call, _ := s.AddPart(ctx, "ses_1", msg.ID, models.Part{
		Type:       models.PartToolCall,
		ToolCallID: "call_1",
		ToolName:   "web_search",
		ToolArgs:   map[string]any{"query": "news"},
		ToolStatus: models.ToolPending,
	})
	s.AddPart(ctx, "ses_1", msg.ID, models.Part{
		Type:       models.PartToolResult,
		ToolCallID: "call_1",
		ToolOutput: "results",
	})

	got, err := s.Get(ctx, "ses_1", msg.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(got.Parts) != 3 {
		t.Fatalf("parts = %d, want 3", len(got.Parts))
	}
	if got.Parts[1].ID != call.ID {
		t.Errorf("part order not preserved")
	}
	if got.Parts[1].ToolCallID != got.Parts[2].ToolCallID {
		t.Errorf("tool_result not paired with its tool_call")
	}
	if !id.Validate(got.Parts[0].ID, id.Part) {
		t.Errorf("part ID %q lacks prt prefix", got.Parts[0].ID)
	}
}

func TestUpdatePart(t *testing.T) {
	ctx := context.Background()
	s, b := newStore()

	msg, _ := s.CreateAssistant(ctx, "ses_1", AssistantOptions{})
	part, _ := s.AddPart(ctx, "ses_1", msg.ID, models.Part{
		Type:       models.PartToolCall,
		ToolCallID: "call_1",
		ToolName:   "web_search",
		ToolStatus: models.ToolPending,
	})

	var events int
	b.Subscribe(bus.PartUpdated, func(bus.Event) { events++ })

	updated, err := s.UpdatePart(ctx, "ses_1", msg.ID, part.ID, func(p *models.Part) {
		p.ToolStatus = models.ToolCompleted
	})
	if err != nil {
		t.Fatal(err)
	}
	if updated.ToolStatus != models.ToolCompleted {
		t.Errorf("status = %s", updated.ToolStatus)
	}
	if events != 1 {
		t.Errorf("part.updated events = %d, want 1", events)
	}

	_, err = s.UpdatePart(ctx, "ses_1", msg.ID, "prt_missing", func(*models.Part) {})
	if !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("missing part err = %v, want ErrNotFound", err)
	}
}

func TestSetUsageErrorFinish(t *testing.T) {
	ctx := context.Background()
	s, _ := newStore()

	msg, _ := s.CreateAssistant(ctx, "ses_1", AssistantOptions{})
	if err := s.SetUsage(ctx, "ses_1", msg.ID, models.Usage{InputTokens: 10, OutputTokens: 20}); err != nil {
		t.Fatal(err)
	}
	if err := s.SetError(ctx, "ses_1", msg.ID, "provider exploded"); err != nil {
		t.Fatal(err)
	}
	if err := s.SetFinish(ctx, "ses_1", msg.ID, "end_turn"); err != nil {
		t.Fatal(err)
	}

	got, _ := s.Get(ctx, "ses_1", msg.ID)
	if got.Usage == nil || got.Usage.InputTokens != 10 || got.Usage.OutputTokens != 20 {
		t.Errorf("usage = %+v", got.Usage)
	}
	if got.Error != "provider exploded" || got.Finish != "end_turn" {
		t.Errorf("error = %q finish = %q", got.Error, got.Finish)
	}
}

func TestDeleteAll(t *testing.T) {
	ctx := context.Background()
	s, _ := newStore()

	s.CreateUser(ctx, "ses_1", "a")
	s.CreateUser(ctx, "ses_1", "b")
	s.CreateUser(ctx, "ses_2", "keep")

	if err := s.DeleteAll(ctx, "ses_1"); err != nil {
		t.Fatal(err)
	}
	msgs, _ := s.List(ctx, "ses_1", 0)
	if len(msgs) != 0 {
		t.Fatalf("ses_1 still has %d messages", len(msgs))
	}
	others, _ := s.List(ctx, "ses_2", 0)
	if len(others) != 1 {
		t.Fatalf("ses_2 lost messages")
	}
}
