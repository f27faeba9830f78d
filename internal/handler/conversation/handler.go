package conversation

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"unicode/utf8"

	"github.com/go-chi/chi/v5"
	"github.com/sirupsen/logrus"

	"github.com/sajang-ai/backend/internal/auth"
	"github.com/sajang-ai/backend/internal/logging"
	"github.com/sajang-ai/backend/internal/model/chat"
	"github.com/sajang-ai/backend/internal/model/persona"
	conversationService "github.com/sajang-ai/backend/internal/service/conversation"
	"github.com/sajang-ai/backend/internal/store"
	"github.com/sajang-ai/backend/pkg/utils"
)

const (
	maxBodyBytes    = 64 << 10
	maxContentRunes = 10000
)

// Conversations is the user-scoped view of the persistence gateway.
type Conversations interface {
	Create(ctx context.Context, userID, personaID, title string) (chat.Conversation, error)
	List(ctx context.Context, userID string, limit int) ([]chat.Conversation, error)
	Messages(ctx context.Context, userID, conversationID string) ([]chat.Message, error)
	AppendMessage(ctx context.Context, userID, conversationID string, msg chat.Message) (chat.Message, error)
}

// Handler serves /api/conversations. Every route requires a signed-in user.
type Handler struct {
	conversations Conversations
	personas      persona.Store
	auth          *auth.Middleware
	logger        logrus.FieldLogger
}

// New builds the conversation handler.
func New(conversations Conversations, personas persona.Store, authMW *auth.Middleware, logger logrus.FieldLogger) *Handler {
	return &Handler{
		conversations: conversations,
		personas:      personas,
		auth:          authMW,
		logger:        logging.Component(logger, "conversation"),
	}
}

// RegisterRoutes mounts the conversation routes.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/conversations", func(r chi.Router) {
		r.Use(h.auth.Required)
		r.Get("/", h.handleList)
		r.Post("/", h.handleCreate)
		r.Get("/{conversationID}/messages", h.handleListMessages)
		r.Post("/{conversationID}/messages", h.handleAppendMessage)
	})
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	user, _ := auth.UserFromContext(r.Context())

	items, err := h.conversations.List(r.Context(), user.ID, conversationService.DefaultListLimit)
	if err != nil {
		h.respondStoreError(w, err)
		return
	}

	out := make([]chat.ConversationListItem, 0, len(items))
	for _, c := range items {
		out = append(out, c.ListItem())
	}
	utils.RespondJSON(w, http.StatusOK, out)
}

func (h *Handler) handleCreate(w http.ResponseWriter, r *http.Request) {
	user, _ := auth.UserFromContext(r.Context())

	var payload struct {
		PersonaID string `json:"personaId"`
		Title     string `json:"title"`
	}
	if err := utils.DecodeJSON(w, r, maxBodyBytes, &payload); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "요청 형식이 올바르지 않습니다.")
		return
	}
	if _, ok := h.personas.FindByID(payload.PersonaID); !ok {
		utils.RespondError(w, http.StatusBadRequest, "알 수 없는 상담사입니다.")
		return
	}

	conv, err := h.conversations.Create(r.Context(), user.ID, payload.PersonaID, payload.Title)
	if err != nil {
		h.respondStoreError(w, err)
		return
	}
	utils.RespondJSON(w, http.StatusCreated, map[string]string{"id": conv.ID})
}

func (h *Handler) handleListMessages(w http.ResponseWriter, r *http.Request) {
	user, _ := auth.UserFromContext(r.Context())

	messages, err := h.conversations.Messages(r.Context(), user.ID, chi.URLParam(r, "conversationID"))
	if err != nil {
		h.respondStoreError(w, err)
		return
	}
	if messages == nil {
		messages = []chat.Message{}
	}
	utils.RespondJSON(w, http.StatusOK, messages)
}

func (h *Handler) handleAppendMessage(w http.ResponseWriter, r *http.Request) {
	user, _ := auth.UserFromContext(r.Context())

	var payload struct {
		Role      string `json:"role"`
		Content   string `json:"content"`
		ModelUsed string `json:"model_used"`
	}
	if err := utils.DecodeJSON(w, r, maxBodyBytes, &payload); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "요청 형식이 올바르지 않습니다.")
		return
	}
	if !chat.ValidRole(payload.Role) {
		utils.RespondError(w, http.StatusBadRequest, "role은 user 또는 assistant여야 합니다.")
		return
	}
	if strings.TrimSpace(payload.Content) == "" || utf8.RuneCountInString(payload.Content) > maxContentRunes {
		utils.RespondError(w, http.StatusBadRequest, "메시지 내용이 비어 있거나 너무 깁니다.")
		return
	}

	msg, err := h.conversations.AppendMessage(r.Context(), user.ID, chi.URLParam(r, "conversationID"), chat.Message{
		Role:      payload.Role,
		Content:   payload.Content,
		ModelUsed: payload.ModelUsed,
	})
	if err != nil {
		h.respondStoreError(w, err)
		return
	}
	utils.RespondJSON(w, http.StatusCreated, msg)
}

func (h *Handler) respondStoreError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, store.ErrNotFound):
		utils.RespondError(w, http.StatusNotFound, "대화를 찾을 수 없습니다.")
	case errors.Is(err, conversationService.ErrForbidden):
		utils.RespondError(w, http.StatusForbidden, "접근 권한이 없는 대화입니다.")
	case errors.Is(err, store.ErrInvalidInput):
		utils.RespondError(w, http.StatusBadRequest, "요청 값이 올바르지 않습니다.")
	default:
		h.logger.WithError(err).Error("conversation store failed")
		utils.RespondError(w, http.StatusInternalServerError, "대화를 처리하지 못했습니다.")
	}
}
