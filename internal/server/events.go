package server

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/opencore-ai/opencore/internal/bus"
)

// sseWriter writes server-sent-event data lines.
type sseWriter struct {
	w       http.ResponseWriter
	flusher http.Flusher
}

func newSSEWriter(w http.ResponseWriter) (*sseWriter, bool) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		return nil, false
	}
	h := w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no")
	return &sseWriter{w: w, flusher: flusher}, true
}

// send writes one data line. It reports false once the client is gone.
func (s *sseWriter) send(data string) bool {
	if _, err := s.w.Write([]byte("data: " + data + "\n\n")); err != nil {
		return false
	}
	s.flusher.Flush()
	return true
}

func (s *sseWriter) sendEvent(eventType string, payload map[string]any) bool {
	if payload == nil {
		payload = map[string]any{}
	}
	data, err := json.Marshal(map[string]any{"type": eventType, "payload": payload})
	if err != nil {
		return true
	}
	return s.send(string(data))
}

// eventQueue is an unbounded per-subscriber buffer so a slow SSE client
// never blocks bus publishers.
type eventQueue struct {
	mu     sync.Mutex
	events []bus.Event
	signal chan struct{}
}

func newEventQueue() *eventQueue {
	return &eventQueue{signal: make(chan struct{}, 1)}
}

func (q *eventQueue) push(ev bus.Event) {
	q.mu.Lock()
	q.events = append(q.events, ev)
	q.mu.Unlock()
	select {
	case q.signal <- struct{}{}:
	default:
	}
}

func (q *eventQueue) drain() []bus.Event {
	q.mu.Lock()
	defer q.mu.Unlock()
	events := q.events
	q.events = nil
	return events
}

// handleEvents streams the bus firehose. The stream opens with
// server.connected and heartbeats every 30 s when idle.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	sse, ok := newSSEWriter(w)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	queue := newEventQueue()
	unsubscribe := s.bus.SubscribeAll(queue.push)
	defer unsubscribe()

	if !sse.sendEvent(bus.ServerConnected, nil) {
		return
	}

	heartbeat := time.NewTicker(heartbeatInterval)
	defer heartbeat.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-queue.signal:
			for _, ev := range queue.drain() {
				if !sse.sendEvent(ev.Type, ev.Payload) {
					return
				}
			}
			heartbeat.Reset(heartbeatInterval)
		case <-heartbeat.C:
			if !sse.sendEvent(bus.ServerHeartbeat, nil) {
				return
			}
		}
	}
}
