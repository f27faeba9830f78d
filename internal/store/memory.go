package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/sajang-ai/backend/internal/model/chat"
)

// MemoryStore implements Repository in process memory. Data is lost on restart.
type MemoryStore struct {
	mu            sync.RWMutex
	conversations map[string]chat.Conversation
	messages      map[string][]chat.Message
	now           func() time.Time
}

// NewMemory returns an empty MemoryStore.
func NewMemory() *MemoryStore {
	return &MemoryStore{
		conversations: make(map[string]chat.Conversation),
		messages:      make(map[string][]chat.Message),
		now:           func() time.Time { return time.Now().UTC() },
	}
}

func (s *MemoryStore) CreateConversation(_ context.Context, conv chat.Conversation) (chat.Conversation, error) {
	if err := validateConversation(conv); err != nil {
		return chat.Conversation{}, err
	}
	if conv.ID == "" {
		conv.ID = uuid.NewString()
	}
	now := s.now()
	if conv.CreatedAt.IsZero() {
		conv.CreatedAt = now
	}
	if conv.UpdatedAt.IsZero() {
		conv.UpdatedAt = conv.CreatedAt
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.conversations[conv.ID] = conv
	return copyConversation(conv), nil
}

func (s *MemoryStore) GetConversation(_ context.Context, id string) (chat.Conversation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	conv, ok := s.conversations[id]
	if !ok {
		return chat.Conversation{}, ErrNotFound
	}
	return copyConversation(conv), nil
}

func (s *MemoryStore) ListConversations(_ context.Context, userID string, limit int) ([]chat.Conversation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]chat.Conversation, 0)
	for _, conv := range s.conversations {
		if conv.UserID == userID {
			out = append(out, copyConversation(conv))
		}
	}
	sortByUpdatedDesc(out)
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *MemoryStore) AppendMessage(_ context.Context, msg chat.Message) (chat.Message, error) {
	if err := validateMessage(msg); err != nil {
		return chat.Message{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	conv, ok := s.conversations[msg.ConversationID]
	if !ok {
		return chat.Message{}, ErrNotFound
	}

	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = s.now()
	}
	s.messages[msg.ConversationID] = append(s.messages[msg.ConversationID], msg)

	if msg.CreatedAt.After(conv.UpdatedAt) {
		conv.UpdatedAt = msg.CreatedAt
		s.conversations[conv.ID] = conv
	}
	return msg, nil
}

func (s *MemoryStore) ListMessages(_ context.Context, conversationID string) ([]chat.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if _, ok := s.conversations[conversationID]; !ok {
		return nil, ErrNotFound
	}
	msgs := s.messages[conversationID]
	out := make([]chat.Message, len(msgs))
	copy(out, msgs)
	return out, nil
}

func (s *MemoryStore) IncrementTurnCount(_ context.Context, conversationID string, at time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	conv, ok := s.conversations[conversationID]
	if !ok {
		return 0, ErrNotFound
	}
	conv.TurnCount++
	conv.UpdatedAt = at
	s.conversations[conversationID] = conv
	return conv.TurnCount, nil
}

func (s *MemoryStore) SaveSummary(_ context.Context, conversationID, summary string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	conv, ok := s.conversations[conversationID]
	if !ok {
		return ErrNotFound
	}
	text := summary
	conv.Summary = &text
	conv.UpdatedAt = at
	s.conversations[conversationID] = conv
	return nil
}

func (s *MemoryStore) LatestSummary(_ context.Context, userID, personaID string) (string, error) {
	return s.latestSummary(userID, func(p string) bool { return p == personaID }), nil
}

func (s *MemoryStore) LatestOtherPersonaSummary(_ context.Context, userID, personaID string) (string, error) {
	return s.latestSummary(userID, func(p string) bool { return p != personaID }), nil
}

func (s *MemoryStore) latestSummary(userID string, match func(personaID string) bool) string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var (
		best  string
		found time.Time
	)
	for _, conv := range s.conversations {
		if conv.UserID != userID || !match(conv.PersonaID) || conv.Summary == nil || *conv.Summary == "" {
			continue
		}
		if best == "" || conv.UpdatedAt.After(found) {
			best = *conv.Summary
			found = conv.UpdatedAt
		}
	}
	return best
}

func (s *MemoryStore) Ping(context.Context) error { return nil }

func (s *MemoryStore) Close() error { return nil }

func copyConversation(conv chat.Conversation) chat.Conversation {
	if conv.Summary != nil {
		text := *conv.Summary
		conv.Summary = &text
	}
	return conv
}

func sortByUpdatedDesc(items []chat.Conversation) {
	sort.SliceStable(items, func(i, j int) bool {
		if items[i].UpdatedAt.Equal(items[j].UpdatedAt) {
			return items[i].CreatedAt.After(items[j].CreatedAt)
		}
		return items[i].UpdatedAt.After(items[j].UpdatedAt)
	})
}
