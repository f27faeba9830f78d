package persona

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/sajang-ai/backend/internal/model/persona"
	"github.com/sajang-ai/backend/pkg/utils"
)

// Handler serves the persona catalog.
type Handler struct {
	personas persona.Store
}

// New builds the persona handler.
func New(personas persona.Store) *Handler {
	return &Handler{personas: personas}
}

// RegisterRoutes mounts the persona routes.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/personas", h.handleListPersonas)
}

// handleListPersonas returns the public projection; system prompts never leave the server.
func (h *Handler) handleListPersonas(w http.ResponseWriter, r *http.Request) {
	items := h.personas.List()
	out := make([]persona.Summary, 0, len(items))
	for _, p := range items {
		out = append(out, p.Public())
	}
	utils.RespondJSON(w, http.StatusOK, out)
}
