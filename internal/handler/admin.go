package handler

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"strings"
)

const maxUploadBytes = 10 << 20

type renameUserRequest struct {
	Name string `json:"name"`
}

func (h *Handler) handleGetUser(w http.ResponseWriter, r *http.Request) {
	u, err := h.store.GetUser(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, u)
}

func (h *Handler) handleRenameUser(w http.ResponseWriter, r *http.Request) {
	var req renameUserRequest
	if !decodeBody(w, r, &req) {
		return
	}
	name := strings.TrimSpace(req.Name)
	if name == "" {
		writeMessage(w, r, http.StatusBadRequest, "InvalidRequest")
		return
	}
	u, err := h.store.GetUser(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	if err := h.store.RenameUser(r.Context(), u.ID, name); err != nil {
		writeError(w, r, err)
		return
	}
	slog.Info("renamed user", "id", u.ID, "name", name)
	u.Name = name
	writeJSON(w, http.StatusOK, u)
}

// handleUploadTest accepts a test definition file in the same JSON shape
// as POST /api/tests, sent as the multipart field "test_file".
func (h *Handler) handleUploadTest(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		writeMessage(w, r, http.StatusBadRequest, "InvalidRequest")
		return
	}

	file, header, err := r.FormFile("test_file")
	if err != nil {
		writeMessage(w, r, http.StatusBadRequest, "InvalidRequest")
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		writeError(w, r, err)
		return
	}

	var req createTestRequest
	if err := json.Unmarshal(data, &req); err != nil {
		slog.Debug("invalid uploaded test file", "filename", header.Filename, "error", err)
		writeMessage(w, r, http.StatusBadRequest, "InvalidRequest")
		return
	}

	id, err := h.catalog.CreateTest(r.Context(), req.DayNumber, req.Title, req.Questions)
	if err != nil {
		writeTestError(w, r, err, req.DayNumber)
		return
	}
	slog.Info("uploaded test", "filename", header.Filename, "day", req.DayNumber, "questions", len(req.Questions))
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "id": id})
}
