package ai

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	openai "github.com/sashabaranov/go-openai"
)

// OpenAIConfig configures an OpenAI compatible chat completions backend.
type OpenAIConfig struct {
	APIKey      string
	BaseURL     string
	Model       string
	MaxTokens   int
	Temperature *float32
	// Timeout bounds a whole request including the streamed body. Zero means none.
	Timeout time.Duration
}

// OpenAIChatModel adapts go-openai to the eino ChatModel interface.
type OpenAIChatModel struct {
	cfg    OpenAIConfig
	client *openai.Client
}

var _ model.ChatModel = (*OpenAIChatModel)(nil)

// NewOpenAIChatModel builds a client for cfg.
func NewOpenAIChatModel(cfg OpenAIConfig) (*OpenAIChatModel, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("openai api key is required")
	}
	if cfg.Model == "" {
		return nil, errors.New("openai model is required")
	}

	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}
	clientCfg.HTTPClient = &http.Client{Timeout: cfg.Timeout}
	return &OpenAIChatModel{cfg: cfg, client: openai.NewClientWithConfig(clientCfg)}, nil
}

func (m *OpenAIChatModel) Generate(ctx context.Context, input []*schema.Message, opts ...model.Option) (*schema.Message, error) {
	resp, err := m.client.CreateChatCompletion(ctx, m.buildRequest(input, false, opts...))
	if err != nil {
		return nil, openAIError(err)
	}
	if len(resp.Choices) == 0 {
		return nil, errors.New("openai returned no choices")
	}

	msg := schema.AssistantMessage(resp.Choices[0].Message.Content, nil)
	msg.ResponseMeta = &schema.ResponseMeta{
		FinishReason: string(resp.Choices[0].FinishReason),
		Usage: &schema.TokenUsage{
			PromptTokens:     resp.Usage.PromptTokens,
			CompletionTokens: resp.Usage.CompletionTokens,
			TotalTokens:      resp.Usage.TotalTokens,
		},
	}
	return msg, nil
}

func (m *OpenAIChatModel) Stream(ctx context.Context, input []*schema.Message, opts ...model.Option) (*schema.StreamReader[*schema.Message], error) {
	stream, err := m.client.CreateChatCompletionStream(ctx, m.buildRequest(input, true, opts...))
	if err != nil {
		return nil, openAIError(err)
	}

	sr, sw := schema.Pipe[*schema.Message](16)
	go func() {
		defer sw.Close()
		defer stream.Close()
		for {
			resp, err := stream.Recv()
			if errors.Is(err, io.EOF) {
				return
			}
			if err != nil {
				sw.Send(nil, openAIError(err))
				return
			}
			for _, choice := range resp.Choices {
				if choice.Delta.Content == "" {
					continue
				}
				if closed := sw.Send(&schema.Message{Role: schema.Assistant, Content: choice.Delta.Content}, nil); closed {
					return
				}
			}
		}
	}()
	return sr, nil
}

// BindTools is a no-op; the relay never offers tools.
func (m *OpenAIChatModel) BindTools(_ []*schema.ToolInfo) error {
	return nil
}

func (m *OpenAIChatModel) buildRequest(input []*schema.Message, stream bool, opts ...model.Option) openai.ChatCompletionRequest {
	modelName := m.cfg.Model
	maxTokens := m.cfg.MaxTokens
	options := model.GetCommonOptions(&model.Options{
		Model:       &modelName,
		MaxTokens:   &maxTokens,
		Temperature: m.cfg.Temperature,
	}, opts...)

	req := openai.ChatCompletionRequest{Stream: stream}
	if options.Model != nil {
		req.Model = *options.Model
	}
	if options.MaxTokens != nil && *options.MaxTokens > 0 {
		req.MaxTokens = *options.MaxTokens
	}
	if options.Temperature != nil {
		req.Temperature = *options.Temperature
	}

	for _, msg := range input {
		if msg == nil {
			continue
		}
		var role string
		switch msg.Role {
		case schema.System:
			role = openai.ChatMessageRoleSystem
		case schema.User:
			role = openai.ChatMessageRoleUser
		case schema.Assistant:
			role = openai.ChatMessageRoleAssistant
		default:
			continue
		}
		req.Messages = append(req.Messages, openai.ChatCompletionMessage{Role: role, Content: msg.Content})
	}
	return req
}

func openAIError(err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return &UpstreamError{Provider: "openai", StatusCode: apiErr.HTTPStatusCode, Message: apiErr.Message}
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return &UpstreamError{Provider: "openai", StatusCode: reqErr.HTTPStatusCode, Message: fmt.Sprint(reqErr.Err)}
	}
	return err
}
