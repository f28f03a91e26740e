package handler

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/pavelanni/archimedes/internal/model"
)

type createResultRequest struct {
	UserID         int64         `json:"user_id"`
	TestID         int64         `json:"test_id"`
	Score          *int          `json:"score"`
	TotalQuestions *int          `json:"total_questions"`
	Answers        model.Answers `json:"answers"`
}

// handleCreateResult stores a completed attempt. Score and total are derived
// from the stored test and the answers; values sent by the client must agree.
func (h *Handler) handleCreateResult(w http.ResponseWriter, r *http.Request) {
	var req createResultRequest
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

	total := len(test.Questions)
	score := model.Score(model.CountCorrect(test.Questions, req.Answers), total)
	if (req.Score != nil && *req.Score != score) || (req.TotalQuestions != nil && *req.TotalQuestions != total) {
		slog.Debug("result does not match its answers", "test_id", req.TestID, "score", score, "total", total)
		writeMessage(w, r, http.StatusBadRequest, "ScoreMismatch")
		return
	}

	if req.UserID == 0 {
		u, err := h.store.GetUser(r.Context())
		if err != nil {
			writeError(w, r, err)
			return
		}
		req.UserID = u.ID
	}

	id, err := h.store.InsertResult(r.Context(), model.TestResult{
		UserID:         req.UserID,
		TestID:         req.TestID,
		Score:          score,
		TotalQuestions: total,
		Answers:        req.Answers,
		CompletedAt:    time.Now().UTC(),
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int64{"id": id})
}

func (h *Handler) handleListProgress(w http.ResponseWriter, r *http.Request) {
	entries, err := h.progress.ListProgress(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, entries)
}

func (h *Handler) handleSummary(w http.ResponseWriter, r *http.Request) {
	sum, err := h.progress.Summary(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sum)
}

func (h *Handler) handleTopicBreakdown(w http.ResponseWriter, r *http.Request) {
	stats, err := h.progress.TopicBreakdown(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}
