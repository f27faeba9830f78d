package ai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/cloudwego/eino/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func anthropicEvent(w io.Writer, eventType string, payload map[string]any) {
	payload["type"] = eventType
	raw, _ := json.Marshal(payload)
	fmt.Fprintf(w, "event: %s\ndata: %s\n\n", eventType, raw)
}

func anthropicMessageStart(w io.Writer, modelName string) {
	anthropicEvent(w, "message_start", map[string]any{"message": map[string]any{
		"id":            "msg_1",
		"type":          "message",
		"role":          "assistant",
		"model":         modelName,
		"content":       []any{},
		"stop_reason":   nil,
		"stop_sequence": nil,
		"usage":         map[string]any{"input_tokens": 12, "output_tokens": 1},
	}})
	anthropicEvent(w, "content_block_start", map[string]any{
		"index":         0,
		"content_block": map[string]any{"type": "text", "text": ""},
	})
}

func anthropicTextDelta(w io.Writer, text string) {
	anthropicEvent(w, "content_block_delta", map[string]any{
		"index": 0,
		"delta": map[string]any{"type": "text_delta", "text": text},
	})
}

func drain(t *testing.T, sr *schema.StreamReader[*schema.Message]) (content, reasoning string, err error) {
	t.Helper()
	defer sr.Close()
	for {
		msg, recvErr := sr.Recv()
		if errors.Is(recvErr, io.EOF) {
			return content, reasoning, nil
		}
		if recvErr != nil {
			return content, reasoning, recvErr
		}
		if msg == nil {
			continue
		}
		content += msg.Content
		reasoning += msg.ReasoningContent
	}
}

func TestAnthropicStreamRelaysTextDeltas(t *testing.T) {
	var captured map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/messages", r.URL.Path)
		assert.Equal(t, "sk-test", r.Header.Get("x-api-key"))
		assert.NotEmpty(t, r.Header.Get("anthropic-version"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&captured))

		w.Header().Set("Content-Type", "text/event-stream")
		anthropicMessageStart(w, "claude-test")
		anthropicTextDelta(w, "Hi")
		anthropicEvent(w, "ping", map[string]any{})
		anthropicTextDelta(w, " there")
		anthropicEvent(w, "content_block_stop", map[string]any{"index": 0})
		anthropicEvent(w, "message_delta", map[string]any{
			"delta": map[string]any{"stop_reason": "end_turn", "stop_sequence": nil},
			"usage": map[string]any{"output_tokens": 5},
		})
		anthropicEvent(w, "message_stop", map[string]any{})
	}))
	defer server.Close()

	m, err := NewAnthropicChatModel(context.Background(), AnthropicConfig{APIKey: "sk-test", BaseURL: server.URL + "/", Model: "claude-test"})
	require.NoError(t, err)

	sr, err := m.Stream(context.Background(), []*schema.Message{
		schema.SystemMessage("persona prompt"),
		schema.UserMessage("안녕하세요"),
	})
	require.NoError(t, err)

	content, _, err := drain(t, sr)
	require.NoError(t, err)
	assert.Equal(t, "Hi there", content)

	assert.Equal(t, true, captured["stream"])
	assert.Equal(t, "claude-test", captured["model"])
	assert.EqualValues(t, 4096, captured["max_tokens"])
	assert.NotContains(t, captured, "thinking")

	system, _ := json.Marshal(captured["system"])
	assert.Contains(t, string(system), "persona prompt")
	messages, ok := captured["messages"].([]any)
	require.True(t, ok)
	require.Len(t, messages, 1)
	assert.Equal(t, "user", messages[0].(map[string]any)["role"])
}

func TestAnthropicRateLimitIsNotRetried(t *testing.T) {
	var hits atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		hits.Add(1)
		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("Retry-After", "0")
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = io.WriteString(w, `{"type":"error","error":{"type":"rate_limit_error","message":"slow down"}}`)
	}))
	defer server.Close()

	m, err := NewAnthropicChatModel(context.Background(), AnthropicConfig{APIKey: "sk-test", BaseURL: server.URL, Model: "claude-test"})
	require.NoError(t, err)

	sr, err := m.Stream(context.Background(), []*schema.Message{schema.UserMessage("hi")})
	if err == nil {
		_, _, err = drain(t, sr)
	}

	var upstream *UpstreamError
	require.ErrorAs(t, err, &upstream)
	assert.Equal(t, http.StatusTooManyRequests, upstream.StatusCode)
	assert.Equal(t, "slow down", upstream.Message)
	assert.Equal(t, CategoryRateLimited, Classify(err))
	assert.EqualValues(t, 1, hits.Load())
}

func TestAnthropicStreamInBandError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		anthropicMessageStart(w, "claude-test")
		anthropicTextDelta(w, "partial")
		anthropicEvent(w, "error", map[string]any{"error": map[string]any{"type": "overloaded_error", "message": "Overloaded"}})
	}))
	defer server.Close()

	m, err := NewAnthropicChatModel(context.Background(), AnthropicConfig{APIKey: "sk-test", BaseURL: server.URL, Model: "claude-test"})
	require.NoError(t, err)

	sr, err := m.Stream(context.Background(), []*schema.Message{schema.UserMessage("hi")})
	require.NoError(t, err)

	content, _, err := drain(t, sr)
	assert.Equal(t, "partial", content)
	var upstream *UpstreamError
	require.ErrorAs(t, err, &upstream)
	assert.Equal(t, 529, upstream.StatusCode)
	assert.Equal(t, CategoryServer, Classify(err))
}

func TestAnthropicGenerate(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.NotEqual(t, true, req["stream"])
		assert.Equal(t, "claude-haiku", req["model"])
		assert.EqualValues(t, 300, req["max_tokens"])

		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"id":"msg_2","type":"message","role":"assistant","model":"claude-haiku",`+
			`"content":[{"type":"text","text":"요약 완료"}],"stop_reason":"end_turn","stop_sequence":null,`+
			`"usage":{"input_tokens":10,"output_tokens":4}}`)
	}))
	defer server.Close()

	m, err := NewAnthropicChatModel(context.Background(), AnthropicConfig{APIKey: "sk-test", BaseURL: server.URL, Model: "claude-haiku", MaxTokens: 300})
	require.NoError(t, err)

	msg, err := m.Generate(context.Background(), []*schema.Message{schema.UserMessage("summarize")})
	require.NoError(t, err)
	assert.Equal(t, "요약 완료", msg.Content)
}

func TestNewAnthropicChatModelValidates(t *testing.T) {
	_, err := NewAnthropicChatModel(context.Background(), AnthropicConfig{Model: "m"})
	assert.Error(t, err)
	_, err = NewAnthropicChatModel(context.Background(), AnthropicConfig{APIKey: "k"})
	assert.True(t, err != nil && strings.Contains(err.Error(), "model"))
}

type stubTransport struct{}

func (stubTransport) RoundTrip(*http.Request) (*http.Response, error) {
	return &http.Response{StatusCode: http.StatusServiceUnavailable, Header: http.Header{"X-Should-Retry": {"true"}}, Body: http.NoBody}, nil
}

func TestNoRetryTransportOverridesRetryHint(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "https://api.anthropic.com/v1/messages", nil)
	resp, err := noRetryTransport{next: stubTransport{}}.RoundTrip(req)
	require.NoError(t, err)
	assert.Equal(t, "false", resp.Header.Get("X-Should-Retry"))
}

func TestAnthropicErrorMapping(t *testing.T) {
	cases := []struct {
		err    error
		status int
	}{
		{errors.New(`received error while streaming: {"type":"error","error":{"type":"rate_limit_error","message":"x"}}`), 429},
		{errors.New(`POST "https://api.anthropic.com/v1/messages": 401 Unauthorized {"type":"error","error":{"type":"authentication_error","message":"bad key"}}`), 401},
		{errors.New(`{"error":{"type":"api_error","message":"boom"}}`), 500},
	}
	for _, tc := range cases {
		var upstream *UpstreamError
		require.ErrorAs(t, anthropicError(tc.err), &upstream, "%v", tc.err)
		assert.Equal(t, tc.status, upstream.StatusCode)
		assert.ErrorIs(t, upstream, tc.err)
	}

	plain := errors.New("connection reset by peer")
	assert.Same(t, plain, anthropicError(plain))
	assert.Equal(t, "bad key", anthropicErrorMessage(`POST "u": 401 {"error":{"message":"bad key"}}`))
}
