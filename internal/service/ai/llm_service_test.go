package ai

import (
	"context"
	"testing"

	"github.com/cloudwego/eino/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sajang-ai/backend/internal/config"
	"github.com/sajang-ai/backend/internal/model/chat"
)

func TestBuildMessages(t *testing.T) {
	msgs := BuildMessages("sys", []chat.Turn{
		{Role: chat.RoleUser, Content: "q"},
		{Role: chat.RoleAssistant, Content: "a"},
		{Role: "system", Content: "ignored"},
	})

	require.Len(t, msgs, 3)
	assert.Equal(t, schema.System, msgs[0].Role)
	assert.Equal(t, schema.User, msgs[1].Role)
	assert.Equal(t, schema.Assistant, msgs[2].Role)
}

func TestNewServiceRequiresCredentials(t *testing.T) {
	_, err := NewService(context.Background(), config.AIConfig{Provider: config.ProviderAnthropic, Model: "m"})
	assert.ErrorIs(t, err, ErrNotConfigured)
}

func TestNewServiceBuildsSeparateSummaryModel(t *testing.T) {
	svc, err := NewService(context.Background(), config.AIConfig{
		Provider:         config.ProviderAnthropic,
		APIKey:           "sk-test",
		Model:            "claude-sonnet",
		SummaryModel:     "claude-haiku",
		MaxTokens:        4096,
		SummaryMaxTokens: 300,
	})
	require.NoError(t, err)

	assert.Equal(t, "claude-sonnet", svc.ModelName())
	assert.NotSame(t, svc.ChatModel(), svc.SummaryModel())
}
