package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("PORT", "")
	t.Setenv("DATABASE_URL", "")
	t.Setenv("DATABASE_DRIVER", "")
	t.Setenv("LLM_PROVIDER", "")
	t.Setenv("ANTHROPIC_API_KEY", "sk-test")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, ":3100", cfg.Server.Addr)
	assert.Equal(t, ProviderAnthropic, cfg.AI.Provider)
	assert.True(t, cfg.AI.Enabled())
	assert.Equal(t, DriverMemory, cfg.Database.Driver)
	assert.Equal(t, 30*time.Minute, cfg.Chat.SessionTTL)
	assert.Equal(t, time.Minute, cfg.Chat.SweepInterval)
	assert.Equal(t, 40, cfg.Chat.HistoryWindow)
	assert.Equal(t, 20, cfg.Chat.RateLimitMax)
	assert.Equal(t, time.Minute, cfg.Chat.RateLimitWindow)
	assert.Equal(t, 5, cfg.Chat.SummaryEvery)
	assert.False(t, cfg.Chat.RequireAuth)
}

func TestLoadServerAddrForms(t *testing.T) {
	t.Setenv("PORT", "127.0.0.1:9000")
	server, err := loadServerConfig()
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1:9000", server.Addr)

	t.Setenv("PORT", "80 80")
	_, err = loadServerConfig()
	assert.Error(t, err)
}

func TestLoadServerTrustProxy(t *testing.T) {
	t.Setenv("PORT", "")
	t.Setenv("TRUST_PROXY", "")
	server, err := loadServerConfig()
	require.NoError(t, err)
	assert.False(t, server.TrustProxy)

	t.Setenv("TRUST_PROXY", "true")
	server, err = loadServerConfig()
	require.NoError(t, err)
	assert.True(t, server.TrustProxy)

	t.Setenv("TRUST_PROXY", "sometimes")
	_, err = loadServerConfig()
	assert.ErrorContains(t, err, "TRUST_PROXY")
}

func TestLoadDatabaseDriverFromURL(t *testing.T) {
	t.Setenv("DATABASE_DRIVER", "")
	t.Setenv("DATABASE_URL", "postgres://localhost/app")

	db, err := loadDatabaseConfig()
	require.NoError(t, err)
	assert.Equal(t, DriverPostgres, db.Driver)
	assert.True(t, db.Migrate)
}

func TestLoadDatabaseSQLiteRequiresURL(t *testing.T) {
	t.Setenv("DATABASE_DRIVER", "sqlite")
	t.Setenv("DATABASE_URL", "")

	_, err := loadDatabaseConfig()
	assert.Error(t, err)
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	t.Setenv("SESSION_TTL", "forever")
	_, err := loadChatConfig()
	assert.ErrorContains(t, err, "SESSION_TTL")

	t.Setenv("SESSION_TTL", "")
	t.Setenv("LLM_PROVIDER", "palm")
	_, err = loadAIConfig()
	assert.ErrorContains(t, err, "LLM_PROVIDER")
}

func TestArkEnabledWithAccessKeyPair(t *testing.T) {
	cfg := AIConfig{Provider: ProviderArk, Model: "doubao", AccessKey: "ak", SecretKey: "sk"}
	assert.True(t, cfg.Enabled())

	cfg.SecretKey = ""
	assert.False(t, cfg.Enabled())
}

func TestAuthConfigTrimsTrailingSlash(t *testing.T) {
	t.Setenv("SUPABASE_URL", "https://demo.supabase.co/")
	t.Setenv("SUPABASE_ANON_KEY", "anon")

	auth, err := loadAuthConfig()
	require.NoError(t, err)
	assert.Equal(t, "https://demo.supabase.co", auth.SupabaseURL)
	assert.True(t, auth.Enabled())
}
