// Package server exposes the runtime over HTTP: an OpenAI-compatible
// streaming chat completions endpoint whose model field selects the agent
// variant, plus session inspection, clarification resolution and
// cancellation. Frames travel as server-sent events and every stream ends
// with the [DONE] sentinel.
package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"sync"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/sgrlabs/sgragent/core"
	"github.com/sgrlabs/sgragent/logging"
	"github.com/sgrlabs/sgragent/runner"
	"github.com/sgrlabs/sgragent/stream"
)

// SessionHeader carries the session id on requests and responses. A request
// without it gets a fresh session; echoing the header back lets clients
// continue the conversation.
const SessionHeader = "X-Session-Id"

// Options holds overrides passed to New().
type Options struct {
	Logger logging.Logger
}

// Server wires the runner into HTTP handlers.
type Server struct {
	runner *runner.Runner
	logger logging.Logger
}

// New constructs a Server over the runner.
func New(r *runner.Runner, optFns ...func(o *Options)) *Server {
	opts := Options{Logger: logging.NoOpLogger{}}
	for _, fn := range optFns {
		fn(&opts)
	}
	return &Server{runner: r, logger: opts.Logger}
}

// Routes returns the HTTP handler tree.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Heartbeat("/health"))

	r.Post("/v1/chat/completions", s.handleCompletions)
	r.Route("/v1/sessions/{id}", func(r chi.Router) {
		r.Get("/", s.handleGetSession)
		r.Post("/clarification", s.handleClarification)
		r.Post("/cancel", s.handleCancel)
	})
	return r
}

// completionsRequest is the accepted subset of the OpenAI request body. The
// model field names the agent variant.
type completionsRequest struct {
	Model    string `json:"model"`
	Messages []struct {
		Role    string `json:"role"`
		Content string `json:"content"`
	} `json:"messages"`
	Stream bool `json:"stream"`
}

func (s *Server) handleCompletions(w http.ResponseWriter, r *http.Request) {
	var req completionsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	userMessage := lastUserContent(req)
	if userMessage == "" {
		writeError(w, http.StatusBadRequest, "request carries no user message")
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	sessionID := r.Header.Get(SessionHeader)

	// The session id must be on the wire before the first frame, so ids for
	// fresh sessions are minted here rather than by the runner.
	if sessionID == "" {
		sessionID = stream.NewStreamID()
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set(SessionHeader, sessionID)

	sink := &sseSink{w: w, flusher: flusher}
	_, err := s.runner.Run(r.Context(), req.Model, sessionID, userMessage, sink)
	if err != nil && !sink.wrote() {
		// Nothing streamed yet, so a proper status line is still possible.
		switch {
		case errors.Is(err, core.ErrSessionBusy):
			writeError(w, http.StatusConflict, "session is processing another request")
		default:
			var cfgErr *core.ConfigurationError
			if errors.As(err, &cfgErr) {
				writeError(w, http.StatusBadRequest, cfgErr.Error())
			} else {
				writeError(w, http.StatusInternalServerError, err.Error())
			}
		}
		return
	}
	if err != nil {
		s.logger.Error("server.completions.failed", "session_id", sessionID, "error", err.Error())
	}

	if err := stream.WriteDone(w); err != nil {
		s.logger.Warn("server.stream.done_failed", "session_id", sessionID, "error", err.Error())
		return
	}
	flusher.Flush()
}

// clarificationRequest resolves a pending clarification.
type clarificationRequest struct {
	Answer string `json:"answer"`
}

func (s *Server) handleClarification(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "id")

	var req clarificationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Answer == "" {
		writeError(w, http.StatusBadRequest, "answer must not be empty")
		return
	}

	err := s.runner.ProvideClarification(r.Context(), sessionID, req.Answer)
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, map[string]string{"status": "resolved"})
	case errors.Is(err, core.ErrSessionNotFound):
		writeError(w, http.StatusNotFound, "session not found")
	case errors.Is(err, core.ErrNotClarifying), errors.Is(err, core.ErrClarificationResolved):
		writeError(w, http.StatusConflict, err.Error())
	default:
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "id")

	session, err := s.runner.Session(r.Context(), sessionID)
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, session)
	case errors.Is(err, core.ErrSessionNotFound):
		writeError(w, http.StatusNotFound, "session not found")
	default:
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}

func (s *Server) handleCancel(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "id")

	err := s.runner.Cancel(sessionID)
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, map[string]string{"status": "cancelled"})
	case errors.Is(err, core.ErrSessionNotFound):
		writeError(w, http.StatusNotFound, "no active run for session")
	default:
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}

func lastUserContent(req completionsRequest) string {
	for i := len(req.Messages) - 1; i >= 0; i-- {
		if req.Messages[i].Role == "user" {
			return req.Messages[i].Content
		}
	}
	return ""
}

// sseSink streams frames to the response writer, flushing after each one so
// clients see progress immediately.
type sseSink struct {
	w       http.ResponseWriter
	flusher http.Flusher

	mu   sync.Mutex
	sent bool
}

func (s *sseSink) Send(frame stream.Frame) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := stream.WriteFrame(s.w, frame); err != nil {
		return err
	}
	s.sent = true
	s.flusher.Flush()
	return nil
}

func (s *sseSink) wrote() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sent
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, `{"error":"failed to encode response"}`, http.StatusInternalServerError)
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
