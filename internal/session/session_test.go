package session

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/opencore-ai/opencore/internal/bus"
	"github.com/opencore-ai/opencore/internal/id"
	"github.com/opencore-ai/opencore/internal/message"
	"github.com/opencore-ai/opencore/internal/storage"
	"github.com/opencore-ai/opencore/pkg/models"
)

func newStore() (*Store, *message.Store, storage.Store, *bus.Bus) {
	st := storage.NewMemoryStore()
	b := bus.New()
	msgs := message.NewStore(st, b)
	return NewStore(st, msgs, b), msgs, st, b
}

func TestCreateDefaults(t *testing.T) {
	ctx := context.Background()
	s, _, _, _ := newStore()

	sess, err := s.Create(ctx, models.SessionCreate{}, "")
	if err != nil {
		t.Fatal(err)
	}
	if !id.Validate(sess.ID, id.Session) {
		t.Errorf("session ID %q lacks ses prefix", sess.ID)
	}
	if !strings.HasPrefix(sess.Title, "Session ") {
		t.Errorf("default title = %q", sess.Title)
	}
	if sess.AgentID != "build" {
		t.Errorf("agent = %q, want build", sess.AgentID)
	}
	if sess.UpdatedAt.Before(sess.CreatedAt) {
		t.Error("updated_at before created_at")
	}
}

func TestCreateExplicitFields(t *testing.T) {
	ctx := context.Background()
	s, _, _, _ := newStore()

	sess, err := s.Create(ctx, models.SessionCreate{
		Title:      "my session",
		ProviderID: "anthropic",
		ModelID:    "claude-sonnet-4-5",
		AgentID:    "explore",
	}, "usr_1")
	if err != nil {
		t.Fatal(err)
	}
	if sess.Title != "my session" || sess.AgentID != "explore" || sess.UserID != "usr_1" {
		t.Fatalf("sess = %+v", sess)
	}
}

func TestUpdateRefreshesUpdatedAt(t *testing.T) {
	ctx := context.Background()
	s, _, _, _ := newStore()

	sess, _ := s.Create(ctx, models.SessionCreate{}, "")
	updated, err := s.Update(ctx, sess.ID, func(m *models.Session) {
		m.Title = "renamed"
	})
	if err != nil {
		t.Fatal(err)
	}
	if updated.Title != "renamed" {
		t.Errorf("title = %q", updated.Title)
	}
	if updated.UpdatedAt.Before(sess.UpdatedAt) {
		t.Error("updated_at went backwards")
	}
}

func TestAddUsageAccumulates(t *testing.T) {
	ctx := context.Background()
	s, _, _, _ := newStore()

	sess, _ := s.Create(ctx, models.SessionCreate{}, "")
	s.AddUsage(ctx, sess.ID, models.Usage{InputTokens: 100, OutputTokens: 50}, 0.003)
	got, err := s.AddUsage(ctx, sess.ID, models.Usage{InputTokens: 10, OutputTokens: 5}, 0.001)
	if err != nil {
		t.Fatal(err)
	}
	if got.TotalInputTokens != 110 || got.TotalOutputTokens != 55 {
		t.Errorf("totals = %d/%d", got.TotalInputTokens, got.TotalOutputTokens)
	}
	if got.TotalCost < 0.0039 || got.TotalCost > 0.0041 {
		t.Errorf("cost = %f", got.TotalCost)
	}
}

func TestDeleteCascades(t *testing.T) {
	ctx := context.Background()
	s, msgs, st, b := newStore()

	sess, _ := s.Create(ctx, models.SessionCreate{}, "")
	msgs.CreateUser(ctx, sess.ID, "hello")
	msgs.CreateUser(ctx, sess.ID, "again")
	st.Write(ctx, []string{"todo", sess.ID}, []any{map[string]any{"content": "x"}})

	var deleted bool
	b.Subscribe(bus.SessionDeleted, func(ev bus.Event) {
		deleted = ev.Payload["id"] == sess.ID
	})

	if err := s.Delete(ctx, sess.ID); err != nil {
		t.Fatal(err)
	}
	if !deleted {
		t.Error("session.deleted not published")
	}
	if _, err := s.Get(ctx, sess.ID); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("Get after delete = %v", err)
	}
	remaining, _ := msgs.List(ctx, sess.ID, 0)
	if len(remaining) != 0 {
		t.Errorf("messages survived delete: %d", len(remaining))
	}
	if raw, _ := st.Read(ctx, []string{"todo", sess.ID}); raw != nil {
		t.Error("todo state survived delete")
	}
}

func TestDeleteMissingSession(t *testing.T) {
	ctx := context.Background()
	s, _, _, _ := newStore()
	if err := s.Delete(ctx, "ses_missing"); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestListMostRecentFirst(t *testing.T) {
	ctx := context.Background()
	s, _, _, _ := newStore()

	a, _ := s.Create(ctx, models.SessionCreate{Title: "a"}, "")
	bSess, _ := s.Create(ctx, models.SessionCreate{Title: "b"}, "")
	s.Touch(ctx, a.ID)

	got, err := s.List(ctx, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 {
		t.Fatalf("len = %d", len(got))
	}
	if got[0].ID != a.ID || got[1].ID != bSess.ID {
		t.Errorf("order = %s, %s; want touched session first", got[0].Title, got[1].Title)
	}

	limited, _ := s.List(ctx, 1)
	if len(limited) != 1 {
		t.Errorf("limit ignored: %d", len(limited))
	}
}
