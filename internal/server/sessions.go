package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/opencore-ai/opencore/internal/auth"
	"github.com/opencore-ai/opencore/internal/orchestrator"
	"github.com/opencore-ai/opencore/internal/storage"
	"github.com/opencore-ai/opencore/pkg/models"
)

func (s *Server) handleListSessions(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	sessions, err := s.sessions.List(r.Context(), limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	user := auth.UserFrom(r.Context())
	visible := make([]*models.Session, 0, len(sessions))
	for _, sess := range sessions {
		if s.ownedBy(sess, user) {
			visible = append(visible, sess)
		}
	}
	writeJSON(w, http.StatusOK, visible)
}

func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	var create models.SessionCreate
	if r.Body != nil {
		// An empty body creates a session with defaults.
		_ = json.NewDecoder(r.Body).Decode(&create)
	}

	userID := ""
	if s.jwt.Enabled() {
		userID = auth.UserFrom(r.Context()).ID
	}
	sess, err := s.sessions.Create(r.Context(), create, userID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, sess)
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.loadSession(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, sess)
}

func (s *Server) handleUpdateSession(w http.ResponseWriter, r *http.Request) {
	if _, ok := s.loadSession(w, r); !ok {
		return
	}
	var patch struct {
		Title      *string `json:"title"`
		ProviderID *string `json:"provider_id"`
		ModelID    *string `json:"model_id"`
		AgentID    *string `json:"agent_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&patch); err != nil {
		writeError(w, http.StatusBadRequest, "invalid body")
		return
	}

	sess, err := s.sessions.Update(r.Context(), r.PathValue("id"), func(sess *models.Session) {
		if patch.Title != nil {
			sess.Title = *patch.Title
		}
		if patch.ProviderID != nil {
			sess.ProviderID = *patch.ProviderID
		}
		if patch.ModelID != nil {
			sess.ModelID = *patch.ModelID
		}
		if patch.AgentID != nil {
			sess.AgentID = *patch.AgentID
		}
	})
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, sess)
}

func (s *Server) handleDeleteSession(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.loadSession(w, r)
	if !ok {
		return
	}
	if err := s.sessions.Delete(r.Context(), sess.ID); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"deleted": sess.ID})
}

func (s *Server) handleListMessages(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.loadSession(w, r)
	if !ok {
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	messages, err := s.messages.List(r.Context(), sess.ID, limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, messages)
}

func (s *Server) handleSendMessage(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.loadSession(w, r)
	if !ok {
		return
	}
	var input orchestrator.PromptInput
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		writeError(w, http.StatusBadRequest, "invalid body")
		return
	}

	chunks, err := s.orch.Prompt(r.Context(), sess.ID, input)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	sse, ok := newSSEWriter(w)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}
	for chunk := range chunks {
		data, err := json.Marshal(chunk)
		if err != nil {
			continue
		}
		if !sse.send(string(data)) {
			// Client went away; drain so the loop can cancel cleanly.
			for range chunks {
			}
			return
		}
	}
	sse.send("[DONE]")
}

func (s *Server) handleAbortSession(w http.ResponseWriter, r *http.Request) {
	cancelled := s.orch.Cancel(r.PathValue("id"))
	writeJSON(w, http.StatusOK, map[string]any{"cancelled": cancelled})
}

func (s *Server) handleGenerateTitle(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.loadSession(w, r)
	if !ok {
		return
	}
	var req struct {
		Message string `json:"message"`
		ModelID string `json:"model_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Message == "" {
		writeError(w, http.StatusBadRequest, "message required")
		return
	}
	modelID := req.ModelID
	if modelID == "" {
		modelID = "gemini/gemini-2.0-flash"
	}

	gw, err := s.providers.Get("gateway")
	if err != nil {
		writeError(w, http.StatusServiceUnavailable, "Gateway provider not available")
		return
	}
	completer, ok := gw.(interface {
		Complete(ctx context.Context, modelID, prompt string, maxTokens int) (string, error)
	})
	if !ok {
		writeError(w, http.StatusServiceUnavailable, "Gateway provider not available")
		return
	}

	prompt := fmt.Sprintf(
		"Generate a short title for this conversation opener. Output only the title, at most a few words, no quotes.\n\nUser message: %q\n\nTitle:",
		truncateRunes(req.Message, 200))

	title, err := completer.Complete(r.Context(), modelID, prompt, 50)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to generate title: "+err.Error())
		return
	}
	title = truncateRunes(strings.TrimSpace(title), 30)

	if _, err := s.sessions.Update(r.Context(), sess.ID, func(sess *models.Session) {
		sess.Title = title
	}); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"title": title})
}

func (s *Server) handleCompact(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.loadSession(w, r)
	if !ok {
		return
	}
	result, err := s.compactor.Compact(r.Context(), sess.ID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handlePrune(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.loadSession(w, r)
	if !ok {
		return
	}
	result, err := s.compactor.Prune(r.Context(), sess.ID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if result == nil {
		writeJSON(w, http.StatusOK, map[string]any{"pruned_count": 0, "tokens_saved": 0})
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleCompactStatus(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.loadSession(w, r)
	if !ok {
		return
	}
	status, err := s.compactor.Status(r.Context(), sess.ID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, status)
}

// loadSession fetches the path's session, enforcing ownership, and
// writes the error response itself on failure.
func (s *Server) loadSession(w http.ResponseWriter, r *http.Request) (*models.Session, bool) {
	sessionID := r.PathValue("id")
	sess, err := s.sessions.Get(r.Context(), sessionID)
	if err != nil {
		if storage.IsNotFound(err) {
			writeError(w, http.StatusNotFound, "Session not found: "+sessionID)
		} else {
			writeError(w, http.StatusInternalServerError, err.Error())
		}
		return nil, false
	}
	if !s.ownedBy(sess, auth.UserFrom(r.Context())) {
		writeError(w, http.StatusNotFound, "Session not found: "+sessionID)
		return nil, false
	}
	return sess, true
}

// ownedBy checks session visibility. Without auth every session is
// local; with auth, unowned sessions stay visible to everyone.
func (s *Server) ownedBy(sess *models.Session, user *models.User) bool {
	if !s.jwt.Enabled() || sess.UserID == "" {
		return true
	}
	return sess.UserID == user.ID
}

func truncateRunes(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}
