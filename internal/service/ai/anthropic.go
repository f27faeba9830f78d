package ai

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/cloudwego/eino-ext/components/model/claude"
	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
)

// AnthropicConfig configures the Messages API backend.
type AnthropicConfig struct {
	APIKey      string
	BaseURL     string
	Model       string
	MaxTokens   int
	Temperature *float32
	HTTPClient  *http.Client
}

// AnthropicChatModel wraps the eino claude component so that upstream failures
// surface as *UpstreamError. Extended thinking is left off, so only user facing
// text is produced.
type AnthropicChatModel struct {
	inner model.BaseChatModel
}

var _ model.ChatModel = (*AnthropicChatModel)(nil)

// NewAnthropicChatModel validates cfg and returns a ready model.
func NewAnthropicChatModel(ctx context.Context, cfg AnthropicConfig) (*AnthropicChatModel, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("anthropic api key is required")
	}
	if cfg.Model == "" {
		return nil, errors.New("anthropic model is required")
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = 4096
	}

	client := &http.Client{}
	if cfg.HTTPClient != nil {
		copied := *cfg.HTTPClient
		client = &copied
	}
	client.Transport = noRetryTransport{next: client.Transport}

	claudeCfg := &claude.Config{
		APIKey:      cfg.APIKey,
		Model:       cfg.Model,
		MaxTokens:   cfg.MaxTokens,
		Temperature: cfg.Temperature,
		HTTPClient:  client,
	}
	if base := strings.TrimRight(cfg.BaseURL, "/"); base != "" {
		claudeCfg.BaseURL = &base
	}

	inner, err := claude.NewChatModel(ctx, claudeCfg)
	if err != nil {
		return nil, err
	}
	return &AnthropicChatModel{inner: inner}, nil
}

// Generate performs a single non-streaming completion.
func (m *AnthropicChatModel) Generate(ctx context.Context, input []*schema.Message, opts ...model.Option) (*schema.Message, error) {
	msg, err := m.inner.Generate(ctx, input, opts...)
	if err != nil {
		return nil, anthropicError(err)
	}
	return msg, nil
}

// Stream opens a streaming completion. Depending on when the API rejects the call,
// an upstream failure arrives either here or from the first Recv.
func (m *AnthropicChatModel) Stream(ctx context.Context, input []*schema.Message, opts ...model.Option) (*schema.StreamReader[*schema.Message], error) {
	upstream, err := m.inner.Stream(ctx, input, opts...)
	if err != nil {
		return nil, anthropicError(err)
	}

	sr, sw := schema.Pipe[*schema.Message](16)
	go func() {
		defer sw.Close()
		defer upstream.Close()
		for {
			chunk, err := upstream.Recv()
			if errors.Is(err, io.EOF) {
				return
			}
			if err != nil {
				sw.Send(nil, anthropicError(err))
				return
			}
			if closed := sw.Send(chunk, nil); closed {
				return
			}
		}
	}()
	return sr, nil
}

// BindTools is a no-op; the relay never offers tools.
func (m *AnthropicChatModel) BindTools(_ []*schema.ToolInfo) error {
	return nil
}

// noRetryTransport marks every response as non-retryable so the SDK never replays a
// request on its own; a failed completion is reported to the client instead.
type noRetryTransport struct {
	next http.RoundTripper
}

func (t noRetryTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	next := t.next
	if next == nil {
		next = http.DefaultTransport
	}
	resp, err := next.RoundTrip(req)
	if resp != nil {
		resp.Header.Set("X-Should-Retry", "false")
	}
	return resp, err
}

// anthropicErrorTypes maps the API's error type names to the status the API answers
// with. In-band stream errors only carry the type name.
var anthropicErrorTypes = []struct {
	name   string
	status int
}{
	{"rate_limit_error", http.StatusTooManyRequests},
	{"authentication_error", http.StatusUnauthorized},
	{"permission_error", http.StatusForbidden},
	{"overloaded_error", 529},
	{"api_error", http.StatusInternalServerError},
	{"invalid_request_error", http.StatusBadRequest},
	{"not_found_error", http.StatusNotFound},
}

func anthropicError(err error) error {
	if err == nil {
		return nil
	}
	var upstream *UpstreamError
	if errors.As(err, &upstream) {
		return err
	}

	var apiErr *anthropic.Error
	if errors.As(err, &apiErr) && apiErr.StatusCode != 0 {
		return &UpstreamError{
			Provider:   "anthropic",
			StatusCode: apiErr.StatusCode,
			Message:    anthropicErrorMessage(apiErr.RawJSON()),
			Err:        err,
		}
	}

	text := err.Error()
	for _, t := range anthropicErrorTypes {
		if strings.Contains(text, t.name) {
			return &UpstreamError{Provider: "anthropic", StatusCode: t.status, Message: anthropicErrorMessage(text), Err: err}
		}
	}
	return err
}

// anthropicErrorMessage pulls error.message out of an error body, falling back to
// the raw text.
func anthropicErrorMessage(raw string) string {
	body := raw
	if i := strings.Index(raw, "{"); i >= 0 {
		body = raw[i:]
	}
	var payload struct {
		Error struct {
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.Unmarshal([]byte(body), &payload); err == nil && payload.Error.Message != "" {
		return payload.Error.Message
	}
	return strings.TrimSpace(raw)
}
