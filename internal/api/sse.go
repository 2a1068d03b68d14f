package api

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
)

// streamEvent is one SSE payload for a streamed turn.
type streamEvent struct {
	Event     string `json:"event"`
	Content   string `json:"content,omitempty"`
	SessionID string `json:"sessionId,omitempty"`
	Error     string `json:"error,omitempty"`
}

// handleStream answers one turn over Server-Sent Events. The user message
// arrives in the `message` query parameter; sampling overrides are optional
// query parameters.
func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		respondError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	sessionID := chi.URLParam(r, "sessionID")
	userMessage := r.URL.Query().Get("message")
	if userMessage == "" {
		respondError(w, http.StatusBadRequest, "message query parameter is required")
		return
	}
	cfg, err := parseGenerationConfig(r)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	fragments, err := s.ctrl.RespondStream(r.Context(), sessionID, userMessage, cfg)
	if err != nil {
		s.respondTurnError(w, err)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	s.sendSSE(w, flusher, streamEvent{Event: "start", SessionID: sessionID})
	for frag := range fragments {
		if frag.Err != nil {
			s.sendSSE(w, flusher, streamEvent{Event: "error", Error: frag.Err.Error()})
			return
		}
		s.sendSSE(w, flusher, streamEvent{Event: "delta", Content: frag.Text})
	}
	s.sendSSE(w, flusher, streamEvent{Event: "done", SessionID: sessionID})
}

// sendSSE writes one event in `data: <json>` framing and flushes.
func (s *Server) sendSSE(w http.ResponseWriter, flusher http.Flusher, payload streamEvent) {
	data, err := json.Marshal(payload)
	if err != nil {
		s.logger.Error("failed to marshal sse payload", "error", err)
		return
	}
	if _, err := w.Write([]byte("data: ")); err != nil {
		s.logger.Warn("failed to write sse prefix", "error", err)
		return
	}
	if _, err := w.Write(data); err != nil {
		s.logger.Warn("failed to write sse payload", "error", err)
		return
	}
	if _, err := w.Write([]byte("\n\n")); err != nil {
		s.logger.Warn("failed to write sse terminator", "error", err)
		return
	}
	flusher.Flush()
}
