package handler

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/pavelanni/archimedes/internal/i18n"
	"github.com/pavelanni/archimedes/internal/session"
)

type startSessionRequest struct {
	TestID int64 `json:"test_id"`
}

type answerRequest struct {
	Option string `json:"option"`
}

type jumpRequest struct {
	Index *int `json:"index"`
}

func (h *Handler) handleStartSession(w http.ResponseWriter, r *http.Request) {
	var req startSessionRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.TestID <= 0 {
		writeMessage(w, r, http.StatusBadRequest, "InvalidID")
		return
	}
	test, err := h.catalog.GetTest(r.Context(), req.TestID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	u, err := h.store.GetUser(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	s, err := h.sessions.Start(r.Context(), test, u.ID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, state(r, s))
}

// currentSession resolves the session named in the URL. It writes a 404
// response and returns nil when there is none.
func (h *Handler) currentSession(w http.ResponseWriter, r *http.Request) *session.Session {
	s, err := h.sessions.Get(chi.URLParam(r, "sessionID"))
	if err != nil {
		writeError(w, r, err)
		return nil
	}
	return s
}

func (h *Handler) handleGetSession(w http.ResponseWriter, r *http.Request) {
	if s := h.currentSession(w, r); s != nil {
		writeJSON(w, http.StatusOK, state(r, s))
	}
}

func (h *Handler) handleAnswer(w http.ResponseWriter, r *http.Request) {
	s := h.currentSession(w, r)
	if s == nil {
		return
	}
	var req answerRequest
	if !decodeBody(w, r, &req) {
		return
	}
	h.respond(w, r, s, s.RecordAnswer(req.Option))
}

func (h *Handler) handleJump(w http.ResponseWriter, r *http.Request) {
	s := h.currentSession(w, r)
	if s == nil {
		return
	}
	var req jumpRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.Index == nil {
		writeMessage(w, r, http.StatusBadRequest, "InvalidRequest")
		return
	}
	h.respond(w, r, s, s.JumpTo(*req.Index))
}

func (h *Handler) handleNext(w http.ResponseWriter, r *http.Request) {
	if s := h.currentSession(w, r); s != nil {
		h.respond(w, r, s, s.Next(r.Context()))
	}
}

func (h *Handler) handlePrevious(w http.ResponseWriter, r *http.Request) {
	if s := h.currentSession(w, r); s != nil {
		h.respond(w, r, s, s.Previous())
	}
}

func (h *Handler) handleSubmit(w http.ResponseWriter, r *http.Request) {
	if s := h.currentSession(w, r); s != nil {
		_, err := s.Submit(r.Context())
		h.respond(w, r, s, err)
	}
}

// respond writes the session state after an action. A result that failed to
// persist is not an error for the client: the state carries persist_error.
func (h *Handler) respond(w http.ResponseWriter, r *http.Request, s *session.Session, err error) {
	if err != nil && !errors.Is(err, session.ErrNotRecorded) {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, state(r, s))
}

// state snapshots s for the client. A persistence failure is reported as a
// localized notice instead of the storage error.
func state(r *http.Request, s *session.Session) session.State {
	st := s.Snapshot()
	if st.PersistError != "" {
		st.PersistError = i18n.T(r.Context(), "ResultNotRecorded")
	}
	return st
}
