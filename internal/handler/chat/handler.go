package chat

import (
	"errors"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"github.com/sajang-ai/backend/internal/auth"
	"github.com/sajang-ai/backend/internal/handler/stream"
	"github.com/sajang-ai/backend/internal/logging"
	"github.com/sajang-ai/backend/internal/model/persona"
	"github.com/sajang-ai/backend/pkg/utils"
)

const rateLimitedMessage = "요청이 너무 많습니다. 잠시 후 다시 시도해 주세요."

// Limiter admits or rejects a request for a client key.
type Limiter interface {
	Allow(key string) bool
	Remaining(key string) int
}

// Options tunes the chat endpoints.
type Options struct {
	RequireAuth    bool
	AllowedOrigins []string
	WriteTimeout   time.Duration
}

// Handler serves POST /api/chat and the WebSocket variant of the same relay.
type Handler struct {
	relay       *stream.Relay
	personas    persona.Store
	limiter     Limiter
	auth        *auth.Middleware
	requireAuth bool
	upgrader    websocket.Upgrader
	writeWait   time.Duration
	logger      logrus.FieldLogger
}

// New builds the chat handler.
func New(relay *stream.Relay, personas persona.Store, limiter Limiter, authMW *auth.Middleware, opts Options, logger logrus.FieldLogger) *Handler {
	writeWait := opts.WriteTimeout
	if writeWait <= 0 {
		writeWait = 10 * time.Second
	}
	return &Handler{
		relay:       relay,
		personas:    personas,
		limiter:     limiter,
		auth:        authMW,
		requireAuth: opts.RequireAuth,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     originChecker(opts.AllowedOrigins),
		},
		writeWait: writeWait,
		logger:    logging.Component(logger, "chat"),
	}
}

// RegisterRoutes mounts the chat routes.
func (h *Handler) RegisterRoutes(r chi.Router) {
	identify := h.auth.Optional
	if h.requireAuth {
		identify = h.auth.Required
	}
	r.With(h.rateLimit, identify).Post("/chat", h.handleChat)
	r.Get("/chat/ws", h.handleWebSocket)
}

// rateLimit runs ahead of authentication and body parsing.
func (h *Handler) rateLimit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if h.limiter == nil {
			next.ServeHTTP(w, r)
			return
		}
		key := ClientKey(r)
		allowed := h.limiter.Allow(key)
		w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(h.limiter.Remaining(key)))
		if !allowed {
			w.Header().Set("Retry-After", "60")
			utils.RespondError(w, http.StatusTooManyRequests, rateLimitedMessage)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (h *Handler) handleChat(w http.ResponseWriter, r *http.Request) {
	var body ChatRequest
	if err := utils.DecodeJSON(w, r, maxBodyBytes, &body); err != nil {
		if errors.Is(err, utils.ErrBodyTooLarge) {
			respondValidation(w, &ValidationError{Field: "body", Message: "요청 본문은 4MB를 넘을 수 없습니다."})
			return
		}
		utils.RespondError(w, http.StatusBadRequest, "요청 형식이 올바르지 않습니다.")
		return
	}

	req, err := Validate(body, h.personas)
	if err != nil {
		respondValidation(w, err)
		return
	}

	if user, ok := auth.UserFromContext(r.Context()); ok {
		req.UserID = user.ID
	} else if req.ConversationID != "" {
		utils.RespondError(w, http.StatusUnauthorized, "대화를 저장하려면 로그인이 필요합니다.")
		return
	}

	if !h.relay.Enabled() {
		utils.RespondError(w, http.StatusServiceUnavailable, "AI 서비스가 설정되지 않았습니다.")
		return
	}

	sink, err := stream.NewSSESink(w)
	if err != nil {
		utils.RespondError(w, http.StatusInternalServerError, "스트리밍을 지원하지 않는 연결입니다.")
		return
	}

	result := h.relay.Stream(r.Context(), sink, req)
	h.logger.WithFields(logrus.Fields{
		"session_id": req.SessionID,
		"state":      result.State,
	}).Debug("chat request finished")
}

func respondValidation(w http.ResponseWriter, err error) {
	var verr *ValidationError
	if errors.As(err, &verr) {
		utils.RespondJSON(w, http.StatusBadRequest, map[string]string{
			"error": verr.Message,
			"field": verr.Field,
		})
		return
	}
	utils.RespondError(w, http.StatusBadRequest, err.Error())
}

// ClientKey identifies the caller for rate limiting. RemoteAddr is only rewritten from
// forwarding headers when the router trusts its proxy.
func ClientKey(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func originChecker(allowed []string) func(r *http.Request) bool {
	if len(allowed) == 0 {
		return func(*http.Request) bool { return true }
	}
	set := make(map[string]struct{}, len(allowed))
	for _, origin := range allowed {
		if origin == "*" {
			return func(*http.Request) bool { return true }
		}
		set[origin] = struct{}{}
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		_, ok := set[origin]
		return ok
	}
}
