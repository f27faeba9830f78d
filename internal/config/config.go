package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config aggregates every setting the service needs.
type Config struct {
	Server   ServerConfig
	AI       AIConfig
	Auth     AuthConfig
	Database DatabaseConfig
	Chat     ChatConfig
	Log      LogConfig

	// PersonasFile overrides the built-in persona catalog when set.
	PersonasFile string
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	server, err := loadServerConfig()
	if err != nil {
		return nil, err
	}

	ai, err := loadAIConfig()
	if err != nil {
		return nil, err
	}

	chat, err := loadChatConfig()
	if err != nil {
		return nil, err
	}

	database, err := loadDatabaseConfig()
	if err != nil {
		return nil, err
	}

	auth, err := loadAuthConfig()
	if err != nil {
		return nil, err
	}

	return &Config{
		Server:   server,
		AI:       ai,
		Auth:     auth,
		Database: database,
		Chat:     chat,
		Log: LogConfig{
			Level:  getEnvOrDefault("LOG_LEVEL", "info"),
			Format: getEnvOrDefault("LOG_FORMAT", "text"),
		},
		PersonasFile: strings.TrimSpace(os.Getenv("PERSONAS_FILE")),
	}, nil
}

// ServerConfig describes the HTTP listener.
type ServerConfig struct {
	Addr           string
	AllowedOrigins []string
	// TrustProxy takes the client address from X-Forwarded-For / X-Real-IP. Enable it
	// only behind a proxy that overwrites those headers.
	TrustProxy bool
}

func loadServerConfig() (ServerConfig, error) {
	port := strings.TrimSpace(os.Getenv("PORT"))
	if port == "" {
		port = "3100"
	}

	origins := splitList(getEnvOrDefault("CORS_ALLOWED_ORIGINS", "*"))
	trustProxy, err := parseBoolEnv("TRUST_PROXY", false)
	if err != nil {
		return ServerConfig{}, err
	}

	if strings.Contains(port, ":") {
		// Accept ":3100" or "127.0.0.1:3100" as-is.
		return ServerConfig{Addr: port, AllowedOrigins: origins, TrustProxy: trustProxy}, nil
	}

	if strings.Contains(port, " ") {
		return ServerConfig{}, fmt.Errorf("invalid PORT value: %q", port)
	}

	return ServerConfig{Addr: ":" + port, AllowedOrigins: origins, TrustProxy: trustProxy}, nil
}

// Supported completion providers.
const (
	ProviderAnthropic = "anthropic"
	ProviderOpenAI    = "openai"
	ProviderArk       = "ark"
)

// AIConfig describes the upstream completion provider.
type AIConfig struct {
	Provider         string
	Model            string
	SummaryModel     string
	APIKey           string
	BaseURL          string
	AccessKey        string
	SecretKey        string
	Region           string
	Temperature      *float64
	MaxTokens        int
	SummaryMaxTokens int
	RequestTimeout   time.Duration
}

// Enabled reports whether enough credentials were supplied to talk to the provider.
func (c AIConfig) Enabled() bool {
	if c.Model == "" {
		return false
	}
	if c.Provider == ProviderArk {
		return c.APIKey != "" || (c.AccessKey != "" && c.SecretKey != "")
	}
	return c.APIKey != ""
}

func loadAIConfig() (AIConfig, error) {
	provider := strings.ToLower(getEnvOrDefault("LLM_PROVIDER", ProviderAnthropic))
	switch provider {
	case ProviderAnthropic, ProviderOpenAI, ProviderArk:
	default:
		return AIConfig{}, fmt.Errorf("invalid LLM_PROVIDER value %q", provider)
	}

	temperature, err := parseOptionalFloatEnv("LLM_TEMPERATURE")
	if err != nil {
		return AIConfig{}, err
	}

	maxTokens, err := parseIntEnv("LLM_MAX_TOKENS", 4096)
	if err != nil {
		return AIConfig{}, err
	}

	summaryMaxTokens, err := parseIntEnv("LLM_SUMMARY_MAX_TOKENS", 300)
	if err != nil {
		return AIConfig{}, err
	}

	timeout, err := parseDurationEnv("LLM_REQUEST_TIMEOUT", 0)
	if err != nil {
		return AIConfig{}, err
	}

	cfg := AIConfig{
		Provider:         provider,
		Temperature:      temperature,
		MaxTokens:        maxTokens,
		SummaryMaxTokens: summaryMaxTokens,
		RequestTimeout:   timeout,
		Model:            strings.TrimSpace(os.Getenv("LLM_MODEL")),
		SummaryModel:     strings.TrimSpace(os.Getenv("LLM_SUMMARY_MODEL")),
	}

	switch provider {
	case ProviderAnthropic:
		cfg.APIKey = strings.TrimSpace(os.Getenv("ANTHROPIC_API_KEY"))
		cfg.BaseURL = getEnvOrDefault("ANTHROPIC_BASE_URL", "https://api.anthropic.com")
		if cfg.Model == "" {
			cfg.Model = "claude-sonnet-4-5"
		}
		if cfg.SummaryModel == "" {
			cfg.SummaryModel = "claude-haiku-4-5"
		}
	case ProviderOpenAI:
		cfg.APIKey = strings.TrimSpace(os.Getenv("OPENAI_API_KEY"))
		cfg.BaseURL = strings.TrimSpace(os.Getenv("OPENAI_BASE_URL"))
	case ProviderArk:
		cfg.APIKey = strings.TrimSpace(os.Getenv("ARK_API_KEY"))
		cfg.AccessKey = strings.TrimSpace(os.Getenv("ARK_ACCESS_KEY"))
		cfg.SecretKey = strings.TrimSpace(os.Getenv("ARK_SECRET_KEY"))
		cfg.BaseURL = getEnvOrDefault("ARK_BASE_URL", "https://ark.cn-beijing.volces.com/api/v3")
		cfg.Region = getEnvOrDefault("ARK_REGION", "cn-beijing")
	}

	if cfg.SummaryModel == "" {
		cfg.SummaryModel = cfg.Model
	}

	return cfg, nil
}

// AuthConfig carries the identity provider bootstrap data.
type AuthConfig struct {
	SupabaseURL     string
	SupabaseAnonKey string
	LookupTimeout   time.Duration
}

// Enabled reports whether bearer tokens can be verified.
func (c AuthConfig) Enabled() bool {
	return c.SupabaseURL != "" && c.SupabaseAnonKey != ""
}

func loadAuthConfig() (AuthConfig, error) {
	timeout, err := parseDurationEnv("AUTH_LOOKUP_TIMEOUT", 5*time.Second)
	if err != nil {
		return AuthConfig{}, err
	}

	return AuthConfig{
		SupabaseURL:     strings.TrimRight(strings.TrimSpace(os.Getenv("SUPABASE_URL")), "/"),
		SupabaseAnonKey: strings.TrimSpace(os.Getenv("SUPABASE_ANON_KEY")),
		LookupTimeout:   timeout,
	}, nil
}

// Supported persistence drivers.
const (
	DriverMemory   = "memory"
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

// DatabaseConfig selects the persistence backend.
type DatabaseConfig struct {
	Driver  string
	URL     string
	Migrate bool
}

func loadDatabaseConfig() (DatabaseConfig, error) {
	url := strings.TrimSpace(os.Getenv("DATABASE_URL"))

	defaultDriver := DriverMemory
	if url != "" {
		defaultDriver = DriverPostgres
	}

	driver := strings.ToLower(getEnvOrDefault("DATABASE_DRIVER", defaultDriver))
	switch driver {
	case DriverMemory:
	case DriverPostgres, DriverSQLite:
		if url == "" {
			return DatabaseConfig{}, fmt.Errorf("DATABASE_URL is required for driver %q", driver)
		}
	default:
		return DatabaseConfig{}, fmt.Errorf("invalid DATABASE_DRIVER value %q", driver)
	}

	migrate, err := parseBoolEnv("DATABASE_MIGRATE", true)
	if err != nil {
		return DatabaseConfig{}, err
	}

	return DatabaseConfig{Driver: driver, URL: url, Migrate: migrate}, nil
}

// ChatConfig holds the relay and context pipeline tunables.
type ChatConfig struct {
	RequireAuth     bool
	SessionTTL      time.Duration
	SweepInterval   time.Duration
	MaxSessions     int
	HistoryWindow   int
	RateLimitMax    int
	RateLimitWindow time.Duration
	SummaryEvery    int
	SummaryTurns    int
	RecordTimeout   time.Duration
}

func loadChatConfig() (ChatConfig, error) {
	requireAuth, err := parseBoolEnv("CHAT_REQUIRE_AUTH", false)
	if err != nil {
		return ChatConfig{}, err
	}

	ttl, err := parseDurationEnv("SESSION_TTL", 30*time.Minute)
	if err != nil {
		return ChatConfig{}, err
	}

	sweep, err := parseDurationEnv("SESSION_SWEEP_INTERVAL", time.Minute)
	if err != nil {
		return ChatConfig{}, err
	}

	maxSessions, err := parseIntEnv("SESSION_MAX", 10000)
	if err != nil {
		return ChatConfig{}, err
	}

	window, err := parseIntEnv("CHAT_HISTORY_WINDOW", 40)
	if err != nil {
		return ChatConfig{}, err
	}

	rateMax, err := parseIntEnv("RATE_LIMIT_MAX", 20)
	if err != nil {
		return ChatConfig{}, err
	}

	rateWindow, err := parseDurationEnv("RATE_LIMIT_WINDOW", time.Minute)
	if err != nil {
		return ChatConfig{}, err
	}

	recordTimeout, err := parseDurationEnv("RECORD_TIMEOUT", 30*time.Second)
	if err != nil {
		return ChatConfig{}, err
	}

	if window < 1 {
		window = 1
	}
	if rateMax < 1 {
		return ChatConfig{}, fmt.Errorf("RATE_LIMIT_MAX must be > 0")
	}

	return ChatConfig{
		RequireAuth:     requireAuth,
		SessionTTL:      ttl,
		SweepInterval:   sweep,
		MaxSessions:     maxSessions,
		HistoryWindow:   window,
		RateLimitMax:    rateMax,
		RateLimitWindow: rateWindow,
		SummaryEvery:    5,
		SummaryTurns:    10,
		RecordTimeout:   recordTimeout,
	}, nil
}

// LogConfig controls the logrus output.
type LogConfig struct {
	Level  string
	Format string
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return defaultValue
}

func splitList(raw string) []string {
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func parseBoolEnv(key string, defaultValue bool) (bool, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return defaultValue, nil
	}

	val, err := strconv.ParseBool(raw)
	if err != nil {
		return false, fmt.Errorf("invalid %s value %q: %w", key, raw, err)
	}
	return val, nil
}

func parseIntEnv(key string, defaultValue int) (int, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return defaultValue, nil
	}

	val, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s value %q: %w", key, raw, err)
	}
	return val, nil
}

func parseDurationEnv(key string, defaultValue time.Duration) (time.Duration, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return defaultValue, nil
	}

	val, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s value %q: %w", key, raw, err)
	}
	return val, nil
}

func parseOptionalFloatEnv(key string) (*float64, error) {
	raw, ok := os.LookupEnv(key)
	if !ok {
		return nil, nil
	}

	value := strings.TrimSpace(raw)
	if value == "" {
		return nil, nil
	}

	val, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid %s value %q: %w", key, value, err)
	}
	return &val, nil
}
