package chat

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/sajang-ai/backend/internal/handler/stream"
	"github.com/sajang-ai/backend/internal/model/chat"
	"github.com/sajang-ai/backend/internal/model/persona"
	"github.com/sajang-ai/backend/internal/service/ai"
)

// Request limits.
const (
	MaxMessages     = 50
	MaxContentRunes = 10000
	MaxSessionIDLen = 128
	maxBodyBytes    = 4 << 20
)

// ChatRequest is the body of POST /api/chat and of each WebSocket message.
type ChatRequest struct {
	Persona        string      `json:"persona"`
	SessionID      string      `json:"sessionId"`
	Messages       []chat.Turn `json:"messages"`
	FormatMode     string      `json:"formatMode,omitempty"`
	ConversationID string      `json:"conversationId,omitempty"`
}

// ValidationError names the offending field.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return e.Field + ": " + e.Message
}

func invalid(field, format string, args ...any) error {
	return &ValidationError{Field: field, Message: fmt.Sprintf(format, args...)}
}

// Validate checks body against the request limits and resolves the persona.
func Validate(body ChatRequest, personas persona.Store) (stream.Request, error) {
	if len(body.Messages) == 0 {
		return stream.Request{}, invalid("messages", "메시지가 비어 있습니다.")
	}
	if len(body.Messages) > MaxMessages {
		return stream.Request{}, invalid("messages", "메시지는 최대 %d개까지 보낼 수 있습니다.", MaxMessages)
	}
	for i, msg := range body.Messages {
		if !chat.ValidRole(msg.Role) {
			return stream.Request{}, invalid(fmt.Sprintf("messages[%d].role", i), "role은 user 또는 assistant여야 합니다.")
		}
		if strings.TrimSpace(msg.Content) == "" {
			return stream.Request{}, invalid(fmt.Sprintf("messages[%d].content", i), "내용이 비어 있습니다.")
		}
		if utf8.RuneCountInString(msg.Content) > MaxContentRunes {
			return stream.Request{}, invalid(fmt.Sprintf("messages[%d].content", i), "메시지는 %d자를 넘을 수 없습니다.", MaxContentRunes)
		}
	}
	if last := body.Messages[len(body.Messages)-1]; last.Role != chat.RoleUser {
		return stream.Request{}, invalid("messages", "마지막 메시지는 사용자 메시지여야 합니다.")
	}

	p, ok := personas.FindByID(body.Persona)
	if !ok {
		return stream.Request{}, invalid("persona", "알 수 없는 상담사입니다.")
	}

	sessionID := strings.TrimSpace(body.SessionID)
	if sessionID == "" {
		return stream.Request{}, invalid("sessionId", "sessionId가 필요합니다.")
	}
	if len(sessionID) > MaxSessionIDLen {
		return stream.Request{}, invalid("sessionId", "sessionId가 너무 깁니다.")
	}

	if !ai.ValidFormatMode(body.FormatMode) {
		return stream.Request{}, invalid("formatMode", "formatMode는 plain 또는 structured여야 합니다.")
	}

	messages := make([]chat.Turn, len(body.Messages))
	copy(messages, body.Messages)

	return stream.Request{
		Persona:        &p,
		SessionID:      sessionID,
		Messages:       messages,
		FormatMode:     body.FormatMode,
		ConversationID: strings.TrimSpace(body.ConversationID),
	}, nil
}
