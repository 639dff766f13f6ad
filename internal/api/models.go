package api

import (
	"log/slog"
	"net/http"

	"chatgate/internal/registry"
)

// modelsHandler serves the model mapping for the UI's model picker.
type modelsHandler struct {
	registry *registry.Registry
	logger   *slog.Logger
}

type modelsResponse struct {
	Models []registry.Model `json:"models"`
}

// list handles GET /api/models.
func (h *modelsHandler) list(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, modelsResponse{Models: h.registry.List()}, h.logger)
}
