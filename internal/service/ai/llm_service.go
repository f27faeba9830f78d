package ai

import (
	"context"
	"fmt"
	"net/http"

	"github.com/cloudwego/eino-ext/components/model/ark"
	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"

	"github.com/sajang-ai/backend/internal/config"
	"github.com/sajang-ai/backend/internal/model/chat"
)

// Service owns the completion models used by the relay and the summarizer.
type Service struct {
	chatModel    model.ChatModel
	summaryModel model.ChatModel
	cfg          config.AIConfig
}

// NewService creates the chat and summary models for the configured provider.
func NewService(ctx context.Context, cfg config.AIConfig) (*Service, error) {
	if !cfg.Enabled() {
		return nil, ErrNotConfigured
	}

	chatModel, err := NewChatModel(ctx, cfg, cfg.Model, cfg.MaxTokens)
	if err != nil {
		return nil, fmt.Errorf("failed to create chat model: %w", err)
	}

	summaryModel := chatModel
	if cfg.SummaryModel != cfg.Model || cfg.SummaryMaxTokens != cfg.MaxTokens {
		summaryModel, err = NewChatModel(ctx, cfg, cfg.SummaryModel, cfg.SummaryMaxTokens)
		if err != nil {
			return nil, fmt.Errorf("failed to create summary model: %w", err)
		}
	}

	return NewServiceWithModels(cfg, chatModel, summaryModel), nil
}

// NewServiceWithModels wires pre-built models, mainly for tests.
func NewServiceWithModels(cfg config.AIConfig, chatModel, summaryModel model.ChatModel) *Service {
	if summaryModel == nil {
		summaryModel = chatModel
	}
	return &Service{chatModel: chatModel, summaryModel: summaryModel, cfg: cfg}
}

// NewChatModel creates a model instance for the configured provider.
func NewChatModel(ctx context.Context, cfg config.AIConfig, modelName string, maxTokens int) (model.ChatModel, error) {
	var temperature *float32
	if cfg.Temperature != nil {
		val := float32(*cfg.Temperature)
		temperature = &val
	}

	switch cfg.Provider {
	case config.ProviderAnthropic:
		return NewAnthropicChatModel(ctx, AnthropicConfig{
			APIKey:      cfg.APIKey,
			BaseURL:     cfg.BaseURL,
			Model:       modelName,
			MaxTokens:   maxTokens,
			Temperature: temperature,
			HTTPClient:  &http.Client{Timeout: cfg.RequestTimeout},
		})
	case config.ProviderOpenAI:
		return NewOpenAIChatModel(OpenAIConfig{
			APIKey:      cfg.APIKey,
			BaseURL:     cfg.BaseURL,
			Model:       modelName,
			MaxTokens:   maxTokens,
			Temperature: temperature,
			Timeout:     cfg.RequestTimeout,
		})
	case config.ProviderArk:
		arkCfg := &ark.ChatModelConfig{
			BaseURL:     cfg.BaseURL,
			Region:      cfg.Region,
			APIKey:      cfg.APIKey,
			AccessKey:   cfg.AccessKey,
			SecretKey:   cfg.SecretKey,
			Model:       modelName,
			Temperature: temperature,
		}
		if maxTokens > 0 {
			arkCfg.MaxTokens = &maxTokens
		}
		return ark.NewChatModel(ctx, arkCfg)
	default:
		return nil, fmt.Errorf("unsupported provider %q", cfg.Provider)
	}
}

// ModelName is the identifier stored alongside assistant messages.
func (s *Service) ModelName() string {
	return s.cfg.Model
}

// ChatModel returns the model used for replies.
func (s *Service) ChatModel() model.ChatModel {
	return s.chatModel
}

// SummaryModel returns the model used for rolling summaries, or nil on a nil Service.
func (s *Service) SummaryModel() model.ChatModel {
	if s == nil {
		return nil
	}
	return s.summaryModel
}

// StreamReply opens one upstream stream for the system prompt followed by history.
func (s *Service) StreamReply(ctx context.Context, systemPrompt string, history []chat.Turn) (*schema.StreamReader[*schema.Message], error) {
	return s.chatModel.Stream(ctx, BuildMessages(systemPrompt, history))
}

// BuildMessages converts session turns into the eino message list.
func BuildMessages(systemPrompt string, history []chat.Turn) []*schema.Message {
	messages := make([]*schema.Message, 0, len(history)+1)
	if systemPrompt != "" {
		messages = append(messages, schema.SystemMessage(systemPrompt))
	}
	for _, turn := range history {
		switch turn.Role {
		case chat.RoleUser:
			messages = append(messages, schema.UserMessage(turn.Content))
		case chat.RoleAssistant:
			messages = append(messages, schema.AssistantMessage(turn.Content, nil))
		}
	}
	return messages
}
