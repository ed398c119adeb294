// Package server exposes the orchestrator over HTTP: session CRUD, the
// SSE prompt stream, the event firehose, question reply/reject, agent
// and provider listings, and operational endpoints.
package server

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/opencore-ai/opencore/internal/agent"
	"github.com/opencore-ai/opencore/internal/auth"
	"github.com/opencore-ai/opencore/internal/bus"
	"github.com/opencore-ai/opencore/internal/compaction"
	"github.com/opencore-ai/opencore/internal/message"
	"github.com/opencore-ai/opencore/internal/observability"
	"github.com/opencore-ai/opencore/internal/orchestrator"
	"github.com/opencore-ai/opencore/internal/provider"
	"github.com/opencore-ai/opencore/internal/session"
	"github.com/opencore-ai/opencore/internal/tool"
	"github.com/opencore-ai/opencore/pkg/models"
)

// heartbeatInterval paces the event firehose when the bus is idle.
const heartbeatInterval = 30 * time.Second

// Options wires a server.
type Options struct {
	Sessions     *session.Store
	Messages     *message.Store
	Orchestrator *orchestrator.Orchestrator
	Compactor    *compaction.Compactor
	Agents       *agent.Registry
	Providers    *provider.Registry
	Questions    *tool.QuestionChannel
	Bus          *bus.Bus
	Metrics      *observability.Metrics
	JWT          *auth.JWTService
	Logger       *slog.Logger
}

// Server is the HTTP surface over the orchestrator.
type Server struct {
	sessions  *session.Store
	messages  *message.Store
	orch      *orchestrator.Orchestrator
	compactor *compaction.Compactor
	agents    *agent.Registry
	providers *provider.Registry
	questions *tool.QuestionChannel
	bus       *bus.Bus
	metrics   *observability.Metrics
	jwt       *auth.JWTService
	logger    *slog.Logger

	handler http.Handler
}

// New builds a server with its routes and middleware installed.
func New(opts Options) *Server {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	metrics := opts.Metrics
	if metrics == nil {
		metrics = observability.NewMetrics()
	}
	s := &Server{
		sessions:  opts.Sessions,
		messages:  opts.Messages,
		orch:      opts.Orchestrator,
		compactor: opts.Compactor,
		agents:    opts.Agents,
		providers: opts.Providers,
		questions: opts.Questions,
		bus:       opts.Bus,
		metrics:   metrics,
		jwt:       opts.JWT,
		logger:    logger,
	}

	mux := http.NewServeMux()
	s.routes(mux)

	var h http.Handler = mux
	h = s.withMetrics(h)
	h = auth.Middleware(s.jwt)(h)
	h = s.withRequestID(h)
	s.handler = h
	return s
}

// Handler returns the root handler.
func (s *Server) Handler() http.Handler {
	return s.handler
}

func (s *Server) routes(mux *http.ServeMux) {
	mux.HandleFunc("GET /session", s.handleListSessions)
	mux.HandleFunc("POST /session", s.handleCreateSession)
	mux.HandleFunc("GET /session/{id}", s.handleGetSession)
	mux.HandleFunc("PATCH /session/{id}", s.handleUpdateSession)
	mux.HandleFunc("DELETE /session/{id}", s.handleDeleteSession)
	mux.HandleFunc("GET /session/{id}/message", s.handleListMessages)
	mux.HandleFunc("POST /session/{id}/message", s.handleSendMessage)
	mux.HandleFunc("POST /session/{id}/abort", s.handleAbortSession)
	mux.HandleFunc("POST /session/{id}/generate-title", s.handleGenerateTitle)
	mux.HandleFunc("POST /session/{id}/compact", s.handleCompact)
	mux.HandleFunc("POST /session/{id}/prune", s.handlePrune)
	mux.HandleFunc("GET /session/{id}/compact/status", s.handleCompactStatus)

	mux.HandleFunc("GET /event", s.handleEvents)

	mux.HandleFunc("GET /question", s.handleListQuestions)
	mux.HandleFunc("POST /question/{request_id}/reply", s.handleReplyQuestion)
	mux.HandleFunc("POST /question/{request_id}/reject", s.handleRejectQuestion)

	mux.HandleFunc("GET /agent", s.handleListAgents)
	mux.HandleFunc("GET /agent/{id}", s.handleGetAgent)
	mux.HandleFunc("POST /agent", s.handleCreateAgent)
	mux.HandleFunc("DELETE /agent/{id}", s.handleDeleteAgent)

	mux.HandleFunc("GET /provider", s.handleListProviders)

	mux.HandleFunc("GET /health", s.handleHealth)
	mux.Handle("GET /metrics", promhttp.HandlerFor(s.metrics.Registry(), promhttp.HandlerOpts{}))
}

// withMetrics records request counts by method, route pattern, and
// status code.
func (s *Server) withMetrics(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(sw, r)

		path := r.Pattern
		if path == "" {
			path = r.URL.Path
		}
		s.metrics.RecordHTTPRequest(r.Method, path, strconv.Itoa(sw.status))
	})
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}

func (w *statusWriter) Flush() {
	if f, ok := w.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok"})
}

func (s *Server) handleListAgents(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	includeHidden := q.Get("include_hidden") == "true"
	agents := s.agents.List(models.AgentMode(q.Get("mode")), includeHidden)
	writeJSON(w, http.StatusOK, agents)
}

func (s *Server) handleGetAgent(w http.ResponseWriter, r *http.Request) {
	a := s.agents.Get(r.PathValue("id"))
	if a == nil {
		writeError(w, http.StatusNotFound, "Agent not found: "+r.PathValue("id"))
		return
	}
	writeJSON(w, http.StatusOK, a)
}

func (s *Server) handleCreateAgent(w http.ResponseWriter, r *http.Request) {
	var a models.Agent
	if err := json.NewDecoder(r.Body).Decode(&a); err != nil || a.ID == "" {
		writeError(w, http.StatusBadRequest, "invalid agent")
		return
	}
	if existing := s.agents.Get(a.ID); existing != nil && existing.Native {
		writeError(w, http.StatusBadRequest, "Cannot override native agent: "+a.ID)
		return
	}
	s.agents.Register(&a)
	writeJSON(w, http.StatusOK, &a)
}

func (s *Server) handleDeleteAgent(w http.ResponseWriter, r *http.Request) {
	agentID := r.PathValue("id")
	a := s.agents.Get(agentID)
	if a == nil {
		writeError(w, http.StatusNotFound, "Agent not found: "+agentID)
		return
	}
	if a.Native {
		writeError(w, http.StatusBadRequest, "Cannot delete native agent: "+agentID)
		return
	}
	s.agents.Unregister(agentID)
	writeJSON(w, http.StatusOK, map[string]any{"deleted": agentID})
}

func (s *Server) handleListProviders(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.providers.List())
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, detail string) {
	writeJSON(w, status, map[string]any{"error": detail})
}
