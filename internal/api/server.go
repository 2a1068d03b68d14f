// Package api exposes the session core to a desktop GUI shell over
// localhost HTTP: REST for session management, SSE and websocket for
// streamed turns.
package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"LocalChat/internal/assistant"
	"LocalChat/internal/memory"
	"LocalChat/internal/model"
	"LocalChat/internal/session"
	"LocalChat/internal/store"
)

// Server holds the handler dependencies.
type Server struct {
	ctrl    *assistant.Controller
	store   store.Store
	facts   memory.Store
	binding string
	logger  *slog.Logger
}

// NewServer wires the HTTP surface. binding names the model binding used
// for sessions created over the API.
func NewServer(ctrl *assistant.Controller, st store.Store, facts memory.Store, binding string, logger *slog.Logger) *Server {
	return &Server{
		ctrl:    ctrl,
		store:   st,
		facts:   facts,
		binding: binding,
		logger:  logger,
	}
}

// Router builds the chi router with all routes registered.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	r.Route("/api", func(api chi.Router) {
		api.Post("/sessions", s.handleCreateSession)
		api.Get("/sessions", s.handleListSessions)
		api.Get("/sessions/{sessionID}", s.handleGetSession)
		api.Delete("/sessions/{sessionID}", s.handleDeleteSession)
		api.Get("/sessions/{sessionID}/messages", s.handleHistory)
		api.Get("/sessions/{sessionID}/stream", s.handleStream)

		api.Get("/facts", s.handleListFacts)
		api.Put("/facts/{key}", s.handlePutFact)
		api.Delete("/facts/{key}", s.handleDeleteFact)

		api.Get("/ws", s.handleWebSocket)
	})

	return r
}

type createSessionRequest struct {
	Model string `json:"model,omitempty"`
}

func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	var req createSessionRequest
	if r.Body != nil && r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			respondError(w, http.StatusBadRequest, "invalid request body")
			return
		}
	}
	binding := req.Model
	if binding == "" {
		binding = s.binding
	}

	sess, err := s.store.NewSession(r.Context(), binding)
	if err != nil {
		s.logger.Error("failed to create session", "error", err)
		respondError(w, http.StatusInternalServerError, "failed to create session")
		return
	}
	respondJSON(w, http.StatusCreated, sess)
}

func (s *Server) handleListSessions(w http.ResponseWriter, r *http.Request) {
	sessions, err := s.store.List(r.Context(), 200)
	if err != nil {
		s.logger.Error("failed to list sessions", "error", err)
		respondError(w, http.StatusInternalServerError, "failed to list sessions")
		return
	}
	respondJSON(w, http.StatusOK, sessions)
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	sess, err := s.store.Get(r.Context(), chi.URLParam(r, "sessionID"))
	if err != nil {
		s.respondStoreError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, sess)
}

func (s *Server) handleDeleteSession(w http.ResponseWriter, r *http.Request) {
	if err := s.store.Delete(r.Context(), chi.URLParam(r, "sessionID")); err != nil {
		s.respondStoreError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	msgs, err := s.store.History(r.Context(), chi.URLParam(r, "sessionID"))
	if err != nil {
		s.respondStoreError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, msgs)
}

func (s *Server) handleListFacts(w http.ResponseWriter, r *http.Request) {
	facts, err := s.facts.All(r.Context())
	if err != nil {
		s.logger.Error("failed to list facts", "error", err)
		respondError(w, http.StatusInternalServerError, "failed to list facts")
		return
	}
	respondJSON(w, http.StatusOK, facts)
}

type putFactRequest struct {
	Value string `json:"value"`
}

func (s *Server) handlePutFact(w http.ResponseWriter, r *http.Request) {
	var req putFactRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	key := chi.URLParam(r, "key")
	if err := s.facts.Remember(r.Context(), key, req.Value); err != nil {
		s.logger.Error("failed to store fact", "key", key, "error", err)
		respondError(w, http.StatusInternalServerError, "failed to store fact")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleDeleteFact(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "key")
	if err := s.facts.Forget(r.Context(), key); err != nil {
		if errors.Is(err, memory.ErrNoFact) {
			respondError(w, http.StatusNotFound, "no fact stored under that key")
			return
		}
		s.logger.Error("failed to forget fact", "key", key, "error", err)
		respondError(w, http.StatusInternalServerError, "failed to forget fact")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// parseGenerationConfig reads optional sampling overrides from query
// parameters, falling back to defaults.
func parseGenerationConfig(r *http.Request) (session.GenerationConfig, error) {
	cfg := session.DefaultGenerationConfig()
	q := r.URL.Query()
	if v := q.Get("max_tokens"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return cfg, errors.New("invalid max_tokens")
		}
		cfg.MaxTokens = n
	}
	if v := q.Get("temperature"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return cfg, errors.New("invalid temperature")
		}
		cfg.Temperature = f
	}
	if v := q.Get("top_p"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return cfg, errors.New("invalid top_p")
		}
		cfg.TopP = f
	}
	return cfg, cfg.Validate()
}

func (s *Server) respondStoreError(w http.ResponseWriter, err error) {
	if errors.Is(err, store.ErrInvalidSession) {
		respondError(w, http.StatusNotFound, "unknown session")
		return
	}
	s.logger.Error("store error", "error", err)
	respondError(w, http.StatusInternalServerError, "internal error")
}

func (s *Server) respondTurnError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, store.ErrInvalidSession):
		respondError(w, http.StatusNotFound, "unknown session")
	case errors.Is(err, assistant.ErrGenerationInFlight):
		respondError(w, http.StatusConflict, "generation already in progress")
	case errors.Is(err, model.ErrModelUnavailable):
		respondError(w, http.StatusServiceUnavailable, "model unavailable")
	default:
		s.logger.Error("turn failed", "error", err)
		respondError(w, http.StatusInternalServerError, "generation failed")
	}
}
