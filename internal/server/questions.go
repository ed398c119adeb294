package server

import (
	"encoding/json"
	"net/http"
)

func (s *Server) handleListQuestions(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"pending": s.questions.Pending()})
}

func (s *Server) handleReplyQuestion(w http.ResponseWriter, r *http.Request) {
	requestID := r.PathValue("request_id")
	var req struct {
		Answers [][]string `json:"answers"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid body")
		return
	}
	if !s.questions.Reply(requestID, req.Answers) {
		writeError(w, http.StatusNotFound,
			"Question request '"+requestID+"' not found or already answered")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "answered", "request_id": requestID})
}

func (s *Server) handleRejectQuestion(w http.ResponseWriter, r *http.Request) {
	requestID := r.PathValue("request_id")
	if !s.questions.Reject(requestID) {
		writeError(w, http.StatusNotFound,
			"Question request '"+requestID+"' not found or already handled")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "rejected", "request_id": requestID})
}
