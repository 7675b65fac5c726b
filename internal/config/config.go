package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Store backends selectable via STORE_BACKEND.
const (
	StoreMemory = "memory"
	StoreBolt   = "bolt"
	StoreRedis  = "redis"
)

type Config struct {
	WAVerifyToken   string
	WAAccessToken   string
	WAPhoneNumberID string

	OpenAIAPIKey string
	OpenAIModel  string
	MaxTokens    int
	Temperature  float64
	SystemPrompt string

	MaxConversationLength int
	RateLimitPerMinute    int
	RateLimitQuiet        bool
	RequestTimeout        time.Duration

	StoreBackend    string
	DataDir         string
	RedisURL        string
	ConversationTTL time.Duration

	Port      string
	LogLevel  string
	LogFormat string
}

func Load() (*Config, error) {
	// .env is optional — env vars may already be set (e.g. in production)
	_ = godotenv.Load()

	cfg := &Config{
		WAVerifyToken:   os.Getenv("WA_VERIFY_TOKEN"),
		WAAccessToken:   os.Getenv("WA_ACCESS_TOKEN"),
		WAPhoneNumberID: os.Getenv("WA_PHONE_NUMBER_ID"),

		OpenAIAPIKey: os.Getenv("OPENAI_API_KEY"),
		OpenAIModel:  envOr("OPENAI_MODEL", "gpt-4o-mini"),
		MaxTokens:    intEnvOr("MAX_TOKENS", 1000),
		Temperature:  floatEnvOr("TEMPERATURE", 0.7),
		SystemPrompt: os.Getenv("SYSTEM_PROMPT"),

		MaxConversationLength: intEnvOr("MAX_CONVERSATION_LENGTH", 10),
		RateLimitPerMinute:    intEnvOr("RATE_LIMIT_PER_MINUTE", 30),
		RateLimitQuiet:        boolEnv("RATE_LIMIT_QUIET"),
		RequestTimeout:        time.Duration(intEnvOr("REQUEST_TIMEOUT_SECONDS", 30)) * time.Second,

		StoreBackend:    envOr("STORE_BACKEND", StoreMemory),
		DataDir:         envOr("DATA_DIR", "."),
		RedisURL:        os.Getenv("REDIS_URL"),
		ConversationTTL: time.Duration(intEnvOr("CONVERSATION_TTL_HOURS", 24)) * time.Hour,

		Port:      envOr("PORT", "8080"),
		LogLevel:  envOr("LOG_LEVEL", "info"),
		LogFormat: envOr("LOG_FORMAT", "console"),
	}

	for _, req := range []struct {
		name, val string
	}{
		{"WA_VERIFY_TOKEN", cfg.WAVerifyToken},
		{"WA_ACCESS_TOKEN", cfg.WAAccessToken},
		{"WA_PHONE_NUMBER_ID", cfg.WAPhoneNumberID},
		{"OPENAI_API_KEY", cfg.OpenAIAPIKey},
	} {
		if req.val == "" {
			return nil, fmt.Errorf("required env var %s is not set", req.name)
		}
	}

	switch cfg.StoreBackend {
	case StoreMemory, StoreBolt:
	case StoreRedis:
		if cfg.RedisURL == "" {
			return nil, fmt.Errorf("STORE_BACKEND=redis requires REDIS_URL")
		}
	default:
		return nil, fmt.Errorf("unknown STORE_BACKEND %q (want memory, bolt or redis)", cfg.StoreBackend)
	}

	return cfg, nil
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func intEnvOr(key string, def int) int {
	v, err := strconv.Atoi(os.Getenv(key))
	if err != nil {
		return def
	}
	return v
}

func floatEnvOr(key string, def float64) float64 {
	v, err := strconv.ParseFloat(os.Getenv(key), 64)
	if err != nil {
		return def
	}
	return v
}

func boolEnv(key string) bool {
	v, _ := strconv.ParseBool(os.Getenv(key))
	return v
}
