// Package message persists the per-session message log and its parts.
// All mutations publish bus events after the write commits so subscribers
// observe state at least as new as the event.
package message

import (
	"context"
	"sort"
	"time"

	"github.com/opencore-ai/opencore/internal/bus"
	"github.com/opencore-ai/opencore/internal/id"
	"github.com/opencore-ai/opencore/internal/storage"
	"github.com/opencore-ai/opencore/pkg/models"
)

// Store reads and writes messages under storage keys
// ["message", sessionID, messageID].
type Store struct {
	storage storage.Store
	bus     *bus.Bus
}

// NewStore creates a message store over the given backend and bus.
func NewStore(st storage.Store, b *bus.Bus) *Store {
	return &Store{storage: st, bus: b}
}

func (s *Store) key(sessionID, messageID string) []string {
	return []string{"message", sessionID, messageID}
}

// CreateUser appends an immutable user message with the given content.
func (s *Store) CreateUser(ctx context.Context, sessionID, content string) (*models.Message, error) {
	msg := &models.Message{
		ID:        id.New(id.Message),
		SessionID: sessionID,
		Role:      models.RoleUser,
		Content:   content,
		CreatedAt: time.Now().UTC(),
	}
	if err := s.storage.Write(ctx, s.key(sessionID, msg.ID), msg); err != nil {
		return nil, err
	}
	s.publishMessage(bus.MessageUpdated, sessionID, msg.ID)
	return msg, nil
}

// AssistantOptions configures a new assistant message.
type AssistantOptions struct {
	ProviderID string
	ModelID    string
	Summary    bool
}

// CreateAssistant appends an empty assistant message that will accumulate
// parts as the turn streams.
func (s *Store) CreateAssistant(ctx context.Context, sessionID string, opts AssistantOptions) (*models.Message, error) {
	msg := &models.Message{
		ID:         id.New(id.Message),
		SessionID:  sessionID,
		Role:       models.RoleAssistant,
		CreatedAt:  time.Now().UTC(),
		ProviderID: opts.ProviderID,
		ModelID:    opts.ModelID,
		Summary:    opts.Summary,
		Parts:      []models.Part{},
	}
	if err := s.storage.Write(ctx, s.key(sessionID, msg.ID), msg); err != nil {
		return nil, err
	}
	s.publishMessage(bus.MessageUpdated, sessionID, msg.ID)
	return msg, nil
}

// Get returns one message by ID.
func (s *Store) Get(ctx context.Context, sessionID, messageID string) (*models.Message, error) {
	var msg models.Message
	if err := s.storage.ReadInto(ctx, s.key(sessionID, messageID), &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}

// List returns the session's messages in ascending creation order.
// A limit of 0 means no limit.
func (s *Store) List(ctx context.Context, sessionID string, limit int) ([]*models.Message, error) {
	keys, err := s.storage.List(ctx, []string{"message", sessionID})
	if err != nil {
		return nil, err
	}
	messages := make([]*models.Message, 0, len(keys))
	for _, key := range keys {
		if limit > 0 && len(messages) >= limit {
			break
		}
		var msg models.Message
		if err := s.storage.ReadInto(ctx, key, &msg); err != nil {
			if storage.IsNotFound(err) {
				continue
			}
			return nil, err
		}
		messages = append(messages, &msg)
	}
	sort.SliceStable(messages, func(i, j int) bool {
		return messages[i].CreatedAt.Before(messages[j].CreatedAt)
	})
	return messages, nil
}

// AddPart appends a part to an assistant message, minting its part ID.
func (s *Store) AddPart(ctx context.Context, sessionID, messageID string, part models.Part) (*models.Part, error) {
	part.ID = id.New(id.Part)
	part.SessionID = sessionID
	part.MessageID = messageID

	var msg models.Message
	key := s.key(sessionID, messageID)
	if err := s.storage.ReadInto(ctx, key, &msg); err != nil {
		return nil, err
	}
	msg.Parts = append(msg.Parts, part)
	if err := s.storage.Write(ctx, key, &msg); err != nil {
		return nil, err
	}
	s.publishPart(sessionID, messageID, part.ID)
	return &part, nil
}

// UpdatePart applies fn to the identified part and persists the result.
func (s *Store) UpdatePart(ctx context.Context, sessionID, messageID, partID string, fn func(*models.Part)) (*models.Part, error) {
	var msg models.Message
	key := s.key(sessionID, messageID)
	if err := s.storage.ReadInto(ctx, key, &msg); err != nil {
		return nil, err
	}
	for i := range msg.Parts {
		if msg.Parts[i].ID != partID {
			continue
		}
		fn(&msg.Parts[i])
		if err := s.storage.Write(ctx, key, &msg); err != nil {
			return nil, err
		}
		s.publishPart(sessionID, messageID, partID)
		updated := msg.Parts[i]
		return &updated, nil
	}
	return nil, &storage.NotFoundError{Key: []string{"part", messageID, partID}}
}

// SetUsage records the turn's token usage on the message.
func (s *Store) SetUsage(ctx context.Context, sessionID, messageID string, usage models.Usage) error {
	return s.mutate(ctx, sessionID, messageID, func(m *models.Message) {
		m.Usage = &usage
	})
}

// SetError records a provider or loop error on the message.
func (s *Store) SetError(ctx context.Context, sessionID, messageID, errText string) error {
	return s.mutate(ctx, sessionID, messageID, func(m *models.Message) {
		m.Error = errText
	})
}

// SetFinish records the normalized stop reason that ended the turn.
func (s *Store) SetFinish(ctx context.Context, sessionID, messageID, reason string) error {
	return s.mutate(ctx, sessionID, messageID, func(m *models.Message) {
		m.Finish = reason
	})
}

func (s *Store) mutate(ctx context.Context, sessionID, messageID string, fn func(*models.Message)) error {
	var msg models.Message
	key := s.key(sessionID, messageID)
	if err := s.storage.ReadInto(ctx, key, &msg); err != nil {
		return err
	}
	fn(&msg)
	if err := s.storage.Write(ctx, key, &msg); err != nil {
		return err
	}
	s.publishMessage(bus.MessageUpdated, sessionID, messageID)
	return nil
}

// Delete removes one message. Deleting an absent message is not an error.
func (s *Store) Delete(ctx context.Context, sessionID, messageID string) error {
	if err := s.storage.Remove(ctx, s.key(sessionID, messageID)); err != nil {
		return err
	}
	s.publishMessage(bus.MessageRemoved, sessionID, messageID)
	return nil
}

// DeleteAll removes every message in a session without per-message events.
// Session deletion publishes its own cascade event.
func (s *Store) DeleteAll(ctx context.Context, sessionID string) error {
	keys, err := s.storage.List(ctx, []string{"message", sessionID})
	if err != nil {
		return err
	}
	for _, key := range keys {
		if err := s.storage.Remove(ctx, key); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) publishMessage(eventType, sessionID, messageID string) {
	if s.bus == nil {
		return
	}
	s.bus.Publish(eventType, map[string]any{
		"session_id": sessionID,
		"message_id": messageID,
	})
}

func (s *Store) publishPart(sessionID, messageID, partID string) {
	if s.bus == nil {
		return
	}
	s.bus.Publish(bus.PartUpdated, map[string]any{
		"session_id": sessionID,
		"message_id": messageID,
		"part_id":    partID,
	})
}
