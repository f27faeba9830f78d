package conversation

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/sirupsen/logrus"

	"github.com/sajang-ai/backend/internal/logging"
	"github.com/sajang-ai/backend/internal/model/chat"
	"github.com/sajang-ai/backend/internal/service/ai"
	"github.com/sajang-ai/backend/internal/store"
)

// ErrForbidden is returned when a conversation belongs to another user.
var ErrForbidden = errors.New("conversation belongs to another user")

// DefaultListLimit caps conversation listings.
const DefaultListLimit = 20

// Summarizer advances turn counters and refreshes rolling summaries.
type Summarizer interface {
	MaybeSummarize(ctx context.Context, conversationID string, turns []chat.Turn) (bool, error)
}

// Config tunes background recording.
type Config struct {
	RecordTimeout time.Duration
}

// Service is the durable side of the chat pipeline: ownership checks, prior context
// lookups and fire-and-forget recording of completed turns.
type Service struct {
	repo       store.Repository
	summarizer Summarizer
	timeout    time.Duration
	logger     logrus.FieldLogger

	wg sync.WaitGroup
}

// NewService wires the recorder. summarizer may be nil, in which case only the turn
// counter is advanced.
func NewService(repo store.Repository, summarizer Summarizer, cfg Config, logger logrus.FieldLogger) *Service {
	if cfg.RecordTimeout <= 0 {
		cfg.RecordTimeout = 30 * time.Second
	}
	if logger == nil {
		logger = logging.Discard()
	}
	return &Service{repo: repo, summarizer: summarizer, timeout: cfg.RecordTimeout, logger: logger}
}

// Create starts a new conversation for the user.
func (s *Service) Create(ctx context.Context, userID, personaID, title string) (chat.Conversation, error) {
	return s.repo.CreateConversation(ctx, chat.Conversation{
		UserID:    userID,
		PersonaID: personaID,
		Title:     NormalizeTitle(title),
	})
}

// List returns the user's most recently updated conversations.
func (s *Service) List(ctx context.Context, userID string, limit int) ([]chat.Conversation, error) {
	if limit <= 0 || limit > DefaultListLimit {
		limit = DefaultListLimit
	}
	return s.repo.ListConversations(ctx, userID, limit)
}

// Owned loads a conversation and checks it belongs to userID.
func (s *Service) Owned(ctx context.Context, userID, conversationID string) (chat.Conversation, error) {
	conv, err := s.repo.GetConversation(ctx, conversationID)
	if err != nil {
		return chat.Conversation{}, err
	}
	if conv.UserID != userID {
		return chat.Conversation{}, ErrForbidden
	}
	return conv, nil
}

// Messages lists the messages of a conversation owned by userID.
func (s *Service) Messages(ctx context.Context, userID, conversationID string) ([]chat.Message, error) {
	if _, err := s.Owned(ctx, userID, conversationID); err != nil {
		return nil, err
	}
	return s.repo.ListMessages(ctx, conversationID)
}

// AppendMessage stores one message in a conversation owned by userID.
func (s *Service) AppendMessage(ctx context.Context, userID, conversationID string, msg chat.Message) (chat.Message, error) {
	if _, err := s.Owned(ctx, userID, conversationID); err != nil {
		return chat.Message{}, err
	}
	msg.ConversationID = conversationID
	return s.repo.AppendMessage(ctx, msg)
}

// PriorContext gathers the summaries fused into the system prompt. Lookup failures are
// logged and yield an empty context.
func (s *Service) PriorContext(ctx context.Context, userID, personaID string) ai.PriorContext {
	if userID == "" {
		return ai.PriorContext{}
	}

	var prior ai.PriorContext
	same, err := s.repo.LatestSummary(ctx, userID, personaID)
	if err != nil {
		s.logger.WithError(err).WithField("persona", personaID).Warn("load persona summary failed")
	} else {
		prior.PersonaSummary = same
	}

	other, err := s.repo.LatestOtherPersonaSummary(ctx, userID, personaID)
	if err != nil {
		s.logger.WithError(err).WithField("persona", personaID).Warn("load cross-persona summary failed")
	} else {
		prior.OtherSummary = other
	}
	return prior
}

// Turn is a completed exchange handed over by the relay.
type Turn struct {
	UserID         string
	ConversationID string
	User           string
	Assistant      string
	Model          string
	// History is the session's full turn list including this exchange.
	History []chat.Turn
}

// RecordTurn persists the exchange, then advances the counter and maybe the summary.
func (s *Service) RecordTurn(ctx context.Context, turn Turn) error {
	conv, err := s.Owned(ctx, turn.UserID, turn.ConversationID)
	if err != nil {
		return err
	}

	now := time.Now().UTC()
	if _, err := s.repo.AppendMessage(ctx, chat.Message{
		ConversationID: conv.ID,
		Role:           chat.RoleUser,
		Content:        turn.User,
		CreatedAt:      now,
	}); err != nil {
		return fmt.Errorf("append user message: %w", err)
	}
	if _, err := s.repo.AppendMessage(ctx, chat.Message{
		ConversationID: conv.ID,
		Role:           chat.RoleAssistant,
		Content:        turn.Assistant,
		ModelUsed:      turn.Model,
		CreatedAt:      now.Add(time.Millisecond),
	}); err != nil {
		return fmt.Errorf("append assistant message: %w", err)
	}

	if s.summarizer == nil {
		_, err = s.repo.IncrementTurnCount(ctx, conv.ID, now)
		return err
	}
	_, err = s.summarizer.MaybeSummarize(ctx, conv.ID, turn.History)
	return err
}

// RecordTurnAsync runs RecordTurn on a detached goroutine with its own timeout.
// Failures and panics are logged and never reach the caller.
func (s *Service) RecordTurnAsync(turn Turn) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()

		log := s.logger.WithFields(logrus.Fields{
			"conversation_id": turn.ConversationID,
			"user_id":         turn.UserID,
		})
		defer func() {
			if r := recover(); r != nil {
				log.WithField("panic", r).Error("record turn panicked")
			}
		}()

		ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
		defer cancel()

		if err := s.RecordTurn(ctx, turn); err != nil {
			log.WithError(err).Warn("record turn failed")
			return
		}
		log.Debug("turn recorded")
	}()
}

// Wait blocks until every pending RecordTurnAsync has finished.
func (s *Service) Wait() {
	s.wg.Wait()
}

// NormalizeTitle trims title to MaxTitleRunes and falls back to the default title.
func NormalizeTitle(title string) string {
	title = strings.TrimSpace(title)
	if title == "" {
		return store.DefaultTitle
	}
	if utf8.RuneCountInString(title) > store.MaxTitleRunes {
		runes := []rune(title)
		title = string(runes[:store.MaxTitleRunes])
	}
	return title
}
