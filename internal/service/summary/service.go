package summary

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/components/prompt"
	"github.com/cloudwego/eino/compose"
	"github.com/cloudwego/eino/schema"
	"github.com/sirupsen/logrus"

	"github.com/sajang-ai/backend/internal/logging"
	"github.com/sajang-ai/backend/internal/model/chat"
)

// Writer is the slice of the persistence gateway the summarizer touches.
type Writer interface {
	IncrementTurnCount(ctx context.Context, conversationID string, at time.Time) (int, error)
	SaveSummary(ctx context.Context, conversationID, summary string, at time.Time) error
}

// Config controls how often and over how many turns summaries are produced.
type Config struct {
	Every    int
	Turns    int
	MaxLines int
}

// Service keeps a rolling summary on each conversation.
type Service struct {
	chain    compose.Runnable[map[string]any, *schema.Message]
	repo     Writer
	every    int
	turns    int
	maxLines int
	logger   logrus.FieldLogger
	now      func() time.Time
}

// NewService compiles the summarization chain. A nil chatModel disables summaries
// while still advancing turn counters.
func NewService(ctx context.Context, chatModel model.ChatModel, repo Writer, cfg Config, logger logrus.FieldLogger) (*Service, error) {
	if cfg.Every <= 0 {
		cfg.Every = 5
	}
	if cfg.Turns <= 0 {
		cfg.Turns = 10
	}
	if cfg.MaxLines <= 0 {
		cfg.MaxLines = 3
	}
	if logger == nil {
		logger = logging.Discard()
	}

	svc := &Service{
		repo:     repo,
		every:    cfg.Every,
		turns:    cfg.Turns,
		maxLines: cfg.MaxLines,
		logger:   logger,
		now:      func() time.Time { return time.Now().UTC() },
	}

	if chatModel == nil {
		return svc, nil
	}

	promptTemplate := prompt.FromMessages(
		schema.FString,
		schema.SystemMessage(summarySystemPrompt),
		schema.UserMessage(summaryUserPrompt),
	)

	chain := compose.NewChain[map[string]any, *schema.Message]()
	chain.AppendChatTemplate(promptTemplate)
	chain.AppendChatModel(chatModel)

	runnable, err := chain.Compile(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to compile summary chain: %w", err)
	}
	svc.chain = runnable
	return svc, nil
}

// Enabled reports whether summaries can be generated.
func (s *Service) Enabled() bool {
	return s != nil && s.chain != nil
}

// Due reports whether turnCount lands on a summary boundary.
func (s *Service) Due(turnCount int) bool {
	return turnCount > 0 && turnCount%s.every == 0
}

// MaybeSummarize advances the conversation's turn counter by one and, when the new
// value lands on a boundary, regenerates the summary from the latest turns. The
// boundary is decided from the stored counter, so concurrent recorders each see a
// distinct value. A failed generation leaves the previous summary in place.
func (s *Service) MaybeSummarize(ctx context.Context, conversationID string, turns []chat.Turn) (bool, error) {
	count, err := s.repo.IncrementTurnCount(ctx, conversationID, s.now())
	if err != nil {
		return false, fmt.Errorf("update turn count: %w", err)
	}
	if !s.Enabled() || !s.Due(count) {
		return false, nil
	}

	log := s.logger.WithFields(logrus.Fields{
		"conversation_id": conversationID,
		"turn_count":      count,
	})
	text, err := s.Summarize(ctx, turns)
	switch {
	case err != nil:
		log.WithError(err).Warn("summary generation failed")
		return false, nil
	case text == "":
		log.Warn("summary generation returned empty text")
		return false, nil
	}

	if err := s.repo.SaveSummary(ctx, conversationID, text, s.now()); err != nil {
		return false, fmt.Errorf("save summary: %w", err)
	}
	log.Info("conversation summary updated")
	return true, nil
}

// Summarize asks the model for a short summary of the most recent turns.
func (s *Service) Summarize(ctx context.Context, turns []chat.Turn) (string, error) {
	if !s.Enabled() {
		return "", fmt.Errorf("summary model is not configured")
	}

	dialogue := FormatDialogue(turns, s.turns)
	if dialogue == "" {
		return "", nil
	}

	msg, err := s.chain.Invoke(ctx, map[string]any{"dialogue": dialogue})
	if err != nil {
		return "", fmt.Errorf("failed to run summary chain: %w", err)
	}
	if msg == nil {
		return "", nil
	}
	return clampLines(msg.Content, s.maxLines), nil
}

// FormatDialogue renders the last limit turns as a labeled transcript.
func FormatDialogue(turns []chat.Turn, limit int) string {
	if limit > 0 && len(turns) > limit {
		turns = turns[len(turns)-limit:]
	}

	lines := make([]string, 0, len(turns))
	for _, turn := range turns {
		content := strings.TrimSpace(turn.Content)
		if content == "" {
			continue
		}
		switch turn.Role {
		case chat.RoleUser:
			lines = append(lines, "사장님: "+content)
		case chat.RoleAssistant:
			lines = append(lines, "상담사: "+content)
		}
	}
	return strings.Join(lines, "\n")
}

func clampLines(text string, maxLines int) string {
	var kept []string
	for _, line := range strings.Split(strings.TrimSpace(text), "\n") {
		if line = strings.TrimSpace(line); line == "" {
			continue
		}
		kept = append(kept, line)
		if len(kept) == maxLines {
			break
		}
	}
	return strings.Join(kept, "\n")
}

const summarySystemPrompt = `당신은 소상공인 상담 기록을 정리하는 요약가입니다.
주어진 대화를 3줄 이내의 자연스러운 한국어 문장으로 요약하세요.
다음 내용을 반드시 포함하세요.
1. 사장님의 업종이나 사업 분야
2. 사장님이 겪고 있는 핵심 문제
3. 대화에서 논의된 해결 방향
인사말이나 머리말 없이 요약문만 출력하세요.`

const summaryUserPrompt = `다음 대화를 요약해 주세요.

{dialogue}`
