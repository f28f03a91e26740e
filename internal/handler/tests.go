package handler

import (
	"errors"
	"net/http"
	"strings"

	"github.com/pavelanni/archimedes/internal/catalog"
	"github.com/pavelanni/archimedes/internal/i18n"
	"github.com/pavelanni/archimedes/internal/model"
)

type createTestRequest struct {
	DayNumber int              `json:"day_number"`
	Title     string           `json:"title"`
	Questions []model.Question `json:"questions"`
}

type generateTestRequest struct {
	DayNumber  int    `json:"day_number"`
	TopicFocus string `json:"topic_focus"`
}

type explainRequest struct {
	Topic string `json:"topic"`
}

func (h *Handler) handleListTests(w http.ResponseWriter, r *http.Request) {
	tests, err := h.catalog.ListTests(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, tests)
}

func (h *Handler) handleGetTest(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r, "testID")
	if !ok {
		return
	}
	t, err := h.catalog.GetTest(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, t)
}

func (h *Handler) handleCreateTest(w http.ResponseWriter, r *http.Request) {
	var req createTestRequest
	if !decodeBody(w, r, &req) {
		return
	}
	id, err := h.catalog.CreateTest(r.Context(), req.DayNumber, req.Title, req.Questions)
	if err != nil {
		writeTestError(w, r, err, req.DayNumber)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "id": id})
}

func (h *Handler) handleGenerateTest(w http.ResponseWriter, r *http.Request) {
	var req generateTestRequest
	if !decodeOptionalBody(w, r, &req) {
		return
	}
	if req.DayNumber < 0 {
		writeMessage(w, r, http.StatusBadRequest, "InvalidRequest")
		return
	}
	test, err := h.catalog.GenerateNext(r.Context(), req.DayNumber, strings.TrimSpace(req.TopicFocus))
	if err != nil {
		writeTestError(w, r, err, req.DayNumber)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success":    true,
		"id":         test.ID,
		"day_number": test.DayNumber,
		"title":      test.Title,
		"questions":  len(test.Questions),
		"message":    i18n.Tp(r.Context(), "QuestionsGenerated", len(test.Questions)),
	})
}

// writeTestError names the day in a conflict response when it is known.
func writeTestError(w http.ResponseWriter, r *http.Request, err error, day int) {
	if errors.Is(err, catalog.ErrConflict) && day > 0 {
		msg := i18n.Td(r.Context(), "TestExistsDay", map[string]any{"Day": day})
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": msg})
		return
	}
	writeError(w, r, err)
}

func (h *Handler) handleListTopics(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.catalog.Topics())
}

func (h *Handler) handleExplainTopic(w http.ResponseWriter, r *http.Request) {
	var req explainRequest
	if !decodeBody(w, r, &req) {
		return
	}
	topic := catalog.TopicTitle(strings.TrimSpace(req.Topic))
	if topic == "" {
		writeMessage(w, r, http.StatusBadRequest, "InvalidRequest")
		return
	}
	text, err := h.catalog.ExplainTopic(r.Context(), topic)
	if err != nil {
		writeJSON(w, http.StatusBadGateway, map[string]string{"error": i18n.T(r.Context(), "ExplanationFailed")})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"topic": topic, "markdown": text})
}
