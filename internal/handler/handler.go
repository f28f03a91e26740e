package handler

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/pavelanni/archimedes/internal/catalog"
	"github.com/pavelanni/archimedes/internal/i18n"
	"github.com/pavelanni/archimedes/internal/progress"
	"github.com/pavelanni/archimedes/internal/session"
	"github.com/pavelanni/archimedes/internal/store"
)

const maxBodyBytes = 1 << 20

// Handler holds shared dependencies for HTTP handlers.
type Handler struct {
	store    *store.Store
	catalog  *catalog.Service
	progress *progress.Aggregator
	sessions *session.Manager
}

// New creates a new Handler.
func New(s *store.Store, c *catalog.Service, p *progress.Aggregator, m *session.Manager) *Handler {
	return &Handler{store: s, catalog: c, progress: p, sessions: m}
}

// Routes registers all HTTP routes.
func (h *Handler) Routes(r chi.Router) {
	r.Get("/healthz", h.handleHealth)

	r.Route("/api", func(r chi.Router) {
		r.Get("/user", h.handleGetUser)
		r.Patch("/user", h.handleRenameUser)

		r.Get("/tests", h.handleListTests)
		r.Post("/tests", h.handleCreateTest)
		r.Post("/tests/upload", h.handleUploadTest)
		r.Post("/tests/generate", h.handleGenerateTest)
		r.Get("/tests/{testID}", h.handleGetTest)

		r.Post("/results", h.handleCreateResult)
		r.Get("/progress", h.handleListProgress)
		r.Get("/progress/summary", h.handleSummary)
		r.Get("/progress/topics", h.handleTopicBreakdown)

		r.Get("/topics", h.handleListTopics)
		r.Post("/topics/explain", h.handleExplainTopic)

		r.Post("/sessions", h.handleStartSession)
		r.Route("/sessions/{sessionID}", func(r chi.Router) {
			r.Get("/", h.handleGetSession)
			r.Post("/answer", h.handleAnswer)
			r.Post("/jump", h.handleJump)
			r.Post("/next", h.handleNext)
			r.Post("/previous", h.handlePrevious)
			r.Post("/submit", h.handleSubmit)
		})
	})
}

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = w.Write([]byte("ok"))
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("failed to encode response", "error", err)
	}
}

// writeMessage writes the localized message msgID as the error body.
func writeMessage(w http.ResponseWriter, r *http.Request, status int, msgID string) {
	writeJSON(w, status, map[string]string{"error": i18n.T(r.Context(), msgID)})
}

// writeError maps a domain error to its status code and localized message.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status, msgID := http.StatusInternalServerError, "InternalError"
	switch {
	case errors.Is(err, catalog.ErrNotFound):
		status, msgID = http.StatusNotFound, "TestNotFound"
	case errors.Is(err, catalog.ErrConflict):
		status, msgID = http.StatusBadRequest, "TestExists"
	case errors.Is(err, catalog.ErrInvalid):
		status, msgID = http.StatusBadRequest, "InvalidTest"
	case errors.Is(err, catalog.ErrGenerationFailed):
		status, msgID = http.StatusBadGateway, "GenerationFailed"
	case errors.Is(err, session.ErrNotFound):
		status, msgID = http.StatusNotFound, "SessionNotFound"
	case errors.Is(err, session.ErrFinished):
		status, msgID = http.StatusConflict, "SessionFinished"
	case errors.Is(err, session.ErrAbandoned):
		status, msgID = http.StatusConflict, "SessionAbandoned"
	case errors.Is(err, session.ErrInvalidOption):
		status, msgID = http.StatusBadRequest, "InvalidOption"
	case errors.Is(err, session.ErrIndexOutOfRange):
		status, msgID = http.StatusBadRequest, "IndexOutOfRange"
	case errors.Is(err, session.ErrEmptyTest):
		status, msgID = http.StatusBadRequest, "EmptyTest"
	case errors.Is(err, store.ErrUnknownReference):
		status, msgID = http.StatusBadRequest, "InvalidRequest"
	case errors.Is(err, store.ErrNotFound):
		status, msgID = http.StatusNotFound, "UserNotFound"
	}
	if status >= http.StatusInternalServerError {
		slog.Error("request failed", "method", r.Method, "path", r.URL.Path, "error", err)
	}
	writeMessage(w, r, status, msgID)
}

// decodeBody decodes a JSON request body into v. It writes a 400 response
// and returns false on failure.
func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		slog.Debug("invalid request body", "path", r.URL.Path, "error", err)
		writeMessage(w, r, http.StatusBadRequest, "InvalidRequest")
		return false
	}
	return true
}

// decodeOptionalBody is decodeBody for requests whose body may be empty,
// including empty chunked bodies.
func decodeOptionalBody(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	err := json.NewDecoder(r.Body).Decode(v)
	if err == nil || errors.Is(err, io.EOF) {
		return true
	}
	slog.Debug("invalid request body", "path", r.URL.Path, "error", err)
	writeMessage(w, r, http.StatusBadRequest, "InvalidRequest")
	return false
}

func parseID(w http.ResponseWriter, r *http.Request, param string) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, param), 10, 64)
	if err != nil || id <= 0 {
		writeMessage(w, r, http.StatusBadRequest, "InvalidID")
		return 0, false
	}
	return id, true
}
