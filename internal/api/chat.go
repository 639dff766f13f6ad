package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"chatgate/internal/chat"
	"chatgate/internal/session"
)

const maxChatBody = 1 << 20 // 1MB

// chatHandler streams generated responses for POST /api/chat.
type chatHandler struct {
	orch   *chat.Orchestrator
	logger *slog.Logger
}

// chatRequest is the inbound turn. Messages is the full conversation so far,
// ending with the user's latest message. An id targets an existing session;
// without one a new session is created when the turn completes.
type chatRequest struct {
	ModelKey  string         `json:"model_key"`
	SessionID string         `json:"id,omitempty"`
	Messages  []session.Turn `json:"messages"`
}

// stream handles POST /api/chat. The response is plain text written and
// flushed fragment by fragment as the model produces it. Backend failures
// mid-stream arrive in-band as a trailing "Error: ..." fragment; the HTTP
// exchange itself stays intact.
func (h *chatHandler) stream(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	r.Body = http.MaxBytesReader(w, r.Body, maxChatBody)
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "invalid request body", h.logger)
		return
	}
	if len(req.Messages) == 0 {
		writeError(w, http.StatusBadRequest, "missing_messages", "messages is required", h.logger)
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming_unsupported", "streaming not supported", h.logger)
		return
	}

	var target chat.Target = chat.NewSession{}
	if req.SessionID != "" {
		target = chat.ExistingSession{ID: req.SessionID}
		w.Header().Set("X-Chat-Session-Id", req.SessionID)
	}

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("X-Accel-Buffering", "no")

	streamed := false
	emit := func(_ context.Context, fragment string) error {
		if _, err := w.Write([]byte(fragment)); err != nil {
			return err
		}
		flusher.Flush()
		streamed = true
		return nil
	}

	res, err := h.orch.HandleTurn(r.Context(), chat.TurnRequest{
		ModelKey: req.ModelKey,
		Target:   target,
		Turns:    req.Messages,
	}, emit)

	switch {
	case errors.Is(err, chat.ErrClientGone):
		h.logger.Debug("client disconnected mid-stream", "error", err)
	case err != nil && !streamed:
		writeError(w, http.StatusInternalServerError, "turn_failed", "generating response failed", h.logger)
	case err != nil:
		// Body already committed; the turn outcome can only be logged.
		h.logger.Error("completing turn after stream", "error", err)
	default:
		h.logger.Debug("turn streamed", "session", res.SessionID, "bytes", len(res.Response))
	}
}
