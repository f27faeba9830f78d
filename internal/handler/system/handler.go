// Package system serves the health probe and the client bootstrap config.
package system

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/sirupsen/logrus"

	"github.com/sajang-ai/backend/internal/config"
	"github.com/sajang-ai/backend/internal/logging"
	"github.com/sajang-ai/backend/pkg/utils"
)

// Pinger reports whether a backing store is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Handler serves /api/health and /api/config.
type Handler struct {
	store  Pinger
	auth   config.AuthConfig
	now    func() time.Time
	logger logrus.FieldLogger
}

// New builds the handler. store may be nil.
func New(store Pinger, authCfg config.AuthConfig, logger logrus.FieldLogger) *Handler {
	return &Handler{
		store:  store,
		auth:   authCfg,
		now:    time.Now,
		logger: logging.Component(logger, "system"),
	}
}

// RegisterRoutes mounts the system routes.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/health", h.handleHealth)
	r.Get("/config", h.handleConfig)
}

type healthResponse struct {
	Status string    `json:"status"`
	Time   time.Time `json:"time"`
}

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	status := "ok"
	if h.store != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := h.store.Ping(ctx); err != nil {
			h.logger.WithError(err).Warn("store ping failed")
			status = "degraded"
		}
	}
	utils.RespondJSON(w, http.StatusOK, healthResponse{Status: status, Time: h.now().UTC()})
}

func (h *Handler) handleConfig(w http.ResponseWriter, r *http.Request) {
	if !h.auth.Enabled() {
		utils.RespondError(w, http.StatusInternalServerError, "인증 설정이 없습니다.")
		return
	}
	utils.RespondJSON(w, http.StatusOK, map[string]string{
		"supabaseUrl":     h.auth.SupabaseURL,
		"supabaseAnonKey": h.auth.SupabaseAnonKey,
	})
}
