// Package session manages session lifecycle: creation, metadata updates,
// cost rollups, and cascading deletion of the message log.
package session

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/opencore-ai/opencore/internal/bus"
	"github.com/opencore-ai/opencore/internal/id"
	"github.com/opencore-ai/opencore/internal/message"
	"github.com/opencore-ai/opencore/internal/storage"
	"github.com/opencore-ai/opencore/pkg/models"
)

// DefaultAgentID is bound to sessions created without an explicit agent.
const DefaultAgentID = "build"

// Store manages sessions under storage keys ["session", sessionID].
type Store struct {
	storage  storage.Store
	messages *message.Store
	bus      *bus.Bus
}

// NewStore creates a session store. The message store is used for
// cascading deletes.
func NewStore(st storage.Store, msgs *message.Store, b *bus.Bus) *Store {
	return &Store{storage: st, messages: msgs, bus: b}
}

func key(sessionID string) []string { return []string{"session", sessionID} }

// Create mints a new session. Empty create fields fall back to defaults:
// a timestamped title and the build agent.
func (s *Store) Create(ctx context.Context, create models.SessionCreate, userID string) (*models.Session, error) {
	now := time.Now().UTC()
	sess := &models.Session{
		ID:         id.New(id.Session),
		UserID:     userID,
		Title:      create.Title,
		CreatedAt:  now,
		UpdatedAt:  now,
		ProviderID: create.ProviderID,
		ModelID:    create.ModelID,
		AgentID:    create.AgentID,
	}
	if sess.Title == "" {
		sess.Title = fmt.Sprintf("Session %s", now.Format(time.RFC3339))
	}
	if sess.AgentID == "" {
		sess.AgentID = DefaultAgentID
	}
	if err := s.storage.Write(ctx, key(sess.ID), sess); err != nil {
		return nil, err
	}
	s.publish(bus.SessionCreated, sess)
	return sess, nil
}

// Get returns one session by ID.
func (s *Store) Get(ctx context.Context, sessionID string) (*models.Session, error) {
	var sess models.Session
	if err := s.storage.ReadInto(ctx, key(sessionID), &sess); err != nil {
		return nil, err
	}
	return &sess, nil
}

// Update applies fn to the session, refreshes updated_at, and persists.
func (s *Store) Update(ctx context.Context, sessionID string, fn func(*models.Session)) (*models.Session, error) {
	var sess models.Session
	if err := s.storage.ReadInto(ctx, key(sessionID), &sess); err != nil {
		return nil, err
	}
	fn(&sess)
	sess.UpdatedAt = time.Now().UTC()
	if sess.UpdatedAt.Before(sess.CreatedAt) {
		sess.UpdatedAt = sess.CreatedAt
	}
	if err := s.storage.Write(ctx, key(sessionID), &sess); err != nil {
		return nil, err
	}
	s.publish(bus.SessionUpdated, &sess)
	return &sess, nil
}

// Touch refreshes updated_at without other changes.
func (s *Store) Touch(ctx context.Context, sessionID string) error {
	_, err := s.Update(ctx, sessionID, func(*models.Session) {})
	return err
}

// AddUsage rolls one turn's usage and cost into the session totals.
func (s *Store) AddUsage(ctx context.Context, sessionID string, usage models.Usage, cost float64) (*models.Session, error) {
	return s.Update(ctx, sessionID, func(sess *models.Session) {
		sess.TotalInputTokens += usage.InputTokens
		sess.TotalOutputTokens += usage.OutputTokens
		sess.TotalCost += cost
	})
}

// Delete removes the session and cascades over its messages.
func (s *Store) Delete(ctx context.Context, sessionID string) error {
	sess, err := s.Get(ctx, sessionID)
	if err != nil {
		return err
	}
	if err := s.messages.DeleteAll(ctx, sessionID); err != nil {
		return err
	}
	// Session-scoped auxiliary state goes with the session.
	if err := s.storage.Remove(ctx, []string{"todo", sessionID}); err != nil {
		return err
	}
	if err := s.storage.Remove(ctx, key(sessionID)); err != nil {
		return err
	}
	s.publish(bus.SessionDeleted, sess)
	return nil
}

// List returns sessions sorted by updated_at, most recent first.
// A limit of 0 means no limit.
func (s *Store) List(ctx context.Context, limit int) ([]*models.Session, error) {
	keys, err := s.storage.List(ctx, []string{"session"})
	if err != nil {
		return nil, err
	}
	sessions := make([]*models.Session, 0, len(keys))
	for _, k := range keys {
		var sess models.Session
		if err := s.storage.ReadInto(ctx, k, &sess); err != nil {
			if storage.IsNotFound(err) {
				continue
			}
			return nil, err
		}
		sessions = append(sessions, &sess)
	}
	sort.SliceStable(sessions, func(i, j int) bool {
		return sessions[i].UpdatedAt.After(sessions[j].UpdatedAt)
	})
	if limit > 0 && len(sessions) > limit {
		sessions = sessions[:limit]
	}
	return sessions, nil
}

func (s *Store) publish(eventType string, sess *models.Session) {
	if s.bus == nil {
		return
	}
	s.bus.Publish(eventType, map[string]any{
		"id":    sess.ID,
		"title": sess.Title,
	})
}
