// Package store is the persistence gateway for conversations and their messages.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/sajang-ai/backend/internal/model/chat"
)

var (
	ErrNotFound     = errors.New("not found")
	ErrInvalidInput = errors.New("invalid input")
)

// Repository reads and writes the durable conversation state the chat pipeline needs.
type Repository interface {
	CreateConversation(ctx context.Context, conv chat.Conversation) (chat.Conversation, error)
	GetConversation(ctx context.Context, id string) (chat.Conversation, error)
	// ListConversations returns the user's conversations, most recently updated first.
	ListConversations(ctx context.Context, userID string, limit int) ([]chat.Conversation, error)

	AppendMessage(ctx context.Context, msg chat.Message) (chat.Message, error)
	ListMessages(ctx context.Context, conversationID string) ([]chat.Message, error)

	// IncrementTurnCount atomically adds one to the counter and returns the new value.
	IncrementTurnCount(ctx context.Context, conversationID string, at time.Time) (int, error)
	SaveSummary(ctx context.Context, conversationID, summary string, at time.Time) error

	// LatestSummary returns the newest non-empty summary of the user's conversations with
	// personaID, or "" when none exists.
	LatestSummary(ctx context.Context, userID, personaID string) (string, error)
	// LatestOtherPersonaSummary is LatestSummary over every persona except personaID.
	LatestOtherPersonaSummary(ctx context.Context, userID, personaID string) (string, error)

	Ping(ctx context.Context) error
	Close() error
}

// MaxTitleRunes bounds conversation titles.
const MaxTitleRunes = 100

// DefaultTitle is used when a conversation is created without a title.
const DefaultTitle = "새 대화"

func validateConversation(conv chat.Conversation) error {
	if conv.UserID == "" || conv.PersonaID == "" {
		return ErrInvalidInput
	}
	return nil
}

func validateMessage(msg chat.Message) error {
	if msg.ConversationID == "" || !chat.ValidRole(msg.Role) {
		return ErrInvalidInput
	}
	return nil
}
