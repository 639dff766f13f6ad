package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"chatgate/internal/session"
)

// sessionHandler serves the saved-chat CRUD endpoints.
type sessionHandler struct {
	store  *session.Store
	logger *slog.Logger
}

// list handles GET /api/chats.
func (h *sessionHandler) list(w http.ResponseWriter, r *http.Request) {
	summaries, err := h.store.List(r.Context())
	if err != nil {
		h.logger.Error("listing sessions", "error", err)
		writeError(w, http.StatusInternalServerError, "list_failed", "listing sessions failed", h.logger)
		return
	}
	writeJSON(w, http.StatusOK, summaries, h.logger)
}

// get handles GET /api/chats/{id}.
func (h *sessionHandler) get(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	sess, err := h.store.Get(r.Context(), id)
	switch {
	case errors.Is(err, session.ErrNotFound):
		writeError(w, http.StatusNotFound, "not_found", "chat not found", h.logger)
	case errors.Is(err, session.ErrCorruptRecord):
		h.logger.Error("reading session", "id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "corrupt_record", "chat record is unreadable", h.logger)
	case err != nil:
		h.logger.Error("reading session", "id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "read_failed", "loading chat failed", h.logger)
	default:
		writeJSON(w, http.StatusOK, sess, h.logger)
	}
}

// saveRequest is the body of POST /api/chats. Omitted id creates a new
// session; omitted title is derived from the first user message.
type saveRequest struct {
	ID       string         `json:"id,omitempty"`
	Title    string         `json:"title,omitempty"`
	Model    string         `json:"model"`
	Messages []session.Turn `json:"messages"`
}

type saveResponse struct {
	ID    string `json:"id"`
	Title string `json:"title"`
}

// save handles POST /api/chats. Saving an existing id overwrites the whole
// record, last writer wins.
func (h *sessionHandler) save(w http.ResponseWriter, r *http.Request) {
	var req saveRequest
	r.Body = http.MaxBytesReader(w, r.Body, maxChatBody)
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "invalid request body", h.logger)
		return
	}

	id, title, err := h.store.Save(r.Context(), session.Session{
		ID:    req.ID,
		Title: req.Title,
		Model: req.Model,
		Turns: req.Messages,
	})
	switch {
	case errors.Is(err, session.ErrInvalidID):
		writeError(w, http.StatusBadRequest, "invalid_id", "id must be a UUID", h.logger)
	case err != nil:
		h.logger.Error("saving session", "error", err)
		writeError(w, http.StatusInternalServerError, "save_failed", "saving chat failed", h.logger)
	default:
		writeJSON(w, http.StatusOK, saveResponse{ID: id, Title: title}, h.logger)
	}
}

// delete handles DELETE /api/chats/{id}. Deleting a missing record is 404,
// including the second delete of the same id.
func (h *sessionHandler) delete(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	err := h.store.Delete(r.Context(), id)
	switch {
	case errors.Is(err, session.ErrNotFound):
		writeError(w, http.StatusNotFound, "not_found", "chat not found", h.logger)
	case err != nil:
		h.logger.Error("deleting session", "id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "delete_failed", "deleting chat failed", h.logger)
	default:
		writeJSON(w, http.StatusOK, map[string]string{"status": "success"}, h.logger)
	}
}
