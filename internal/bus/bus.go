// Package bus provides the in-process pub/sub event bus. Subscribers
// register for a single event type or for the firehose (every event).
// Delivery is synchronous and best-effort: there is no persistence and no
// replay, and a subscriber that panics is logged and skipped.
package bus

import (
	"log/slog"
	"sync"
)

// Predefined event types published by the core.
const (
	SessionCreated = "session.created"
	SessionUpdated = "session.updated"
	SessionDeleted = "session.deleted"

	MessageUpdated = "message.updated"
	MessageRemoved = "message.removed"

	PartUpdated = "part.updated"
	PartRemoved = "part.removed"

	StepStarted  = "step.started"
	StepFinished = "step.finished"

	ToolStateChanged = "tool.state.changed"

	QuestionAsked    = "question.asked"
	QuestionReplied  = "question.replied"
	QuestionRejected = "question.rejected"

	// Emitted by the SSE gateway, not the core.
	ServerConnected = "server.connected"
	ServerHeartbeat = "server.heartbeat"
)

// Event is a published event instance.
type Event struct {
	Type    string         `json:"type"`
	Payload map[string]any `json:"payload"`
}

// Handler receives published events.
type Handler func(Event)

type subscriber struct {
	seq     uint64
	handler Handler
}

// Bus multiplexes events to typed and firehose subscribers.
// The zero value is not usable; call New.
type Bus struct {
	mu     sync.Mutex
	nextID uint64
	typed  map[string][]subscriber
	all    []subscriber
	logger *slog.Logger
}

// New creates an empty bus.
func New() *Bus {
	return &Bus{
		typed:  make(map[string][]subscriber),
		logger: slog.Default(),
	}
}

// Publish delivers the event to typed subscribers first, then firehose
// subscribers, each in subscription order. The lock is held across the
// iteration so events from one publisher arrive in publish order.
func (b *Bus) Publish(eventType string, payload map[string]any) {
	ev := Event{Type: eventType, Payload: payload}

	b.mu.Lock()
	defer b.mu.Unlock()
	for _, sub := range b.typed[eventType] {
		b.deliver(sub, ev)
	}
	for _, sub := range b.all {
		b.deliver(sub, ev)
	}
}

func (b *Bus) deliver(sub subscriber, ev Event) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("event subscriber panicked", "type", ev.Type, "panic", r)
		}
	}()
	sub.handler(ev)
}

// Subscribe registers a handler for one event type and returns an
// unsubscribe function.
func (b *Bus) Subscribe(eventType string, h Handler) func() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.nextID++
	seq := b.nextID
	b.typed[eventType] = append(b.typed[eventType], subscriber{seq: seq, handler: h})
	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		subs := b.typed[eventType]
		for i := range subs {
			if subs[i].seq == seq {
				b.typed[eventType] = append(subs[:i:i], subs[i+1:]...)
				return
			}
		}
	}
}

// SubscribeAll registers a firehose handler receiving every event and
// returns an unsubscribe function.
func (b *Bus) SubscribeAll(h Handler) func() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.nextID++
	seq := b.nextID
	b.all = append(b.all, subscriber{seq: seq, handler: h})
	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		for i := range b.all {
			if b.all[i].seq == seq {
				b.all = append(b.all[:i:i], b.all[i+1:]...)
				return
			}
		}
	}
}

// Clear removes every subscriber.
func (b *Bus) Clear() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.typed = make(map[string][]subscriber)
	b.all = nil
}
