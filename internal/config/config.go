// Package config provides environment configuration for the chat core.
package config

import (
	"os"
	"strconv"
	"time"
)

// Config holds all configuration for the application.
type Config struct {
	// Transport settings
	Transport       string // "sse", "openai" or "anthropic"
	ChatEndpoint    string
	FeedbackURL     string
	APIToken        string
	OpenAIAPIKey    string
	AnthropicAPIKey string
	Model           string

	// Persistence settings
	PersistBackend  string // "none", "bolt" or "nats"
	PersistMode     string // "options" or "full"
	PersistPath     string
	PersistKey      string
	PersistInterval time.Duration

	// NATS settings
	NATSURL      string
	NATSCAFile   string
	NATSCertFile string
	NATSKeyFile  string
	NATSToken    string

	// Debug surface
	DebugAddr         string
	JWTSecret         string
	RateLimitRequests int
	RateLimitWindow   time.Duration

	// Logging
	LogLevel string

	// Tracing
	TracingEndpoint string
	TracingEnabled  bool
}

// Load reads configuration from environment variables.
func Load() *Config {
	return &Config{
		// Transport
		Transport:       getEnv("CHAT_TRANSPORT", "sse"),
		ChatEndpoint:    getEnv("CHAT_ENDPOINT", "http://localhost:8080/api/v1/chat"),
		FeedbackURL:     getEnv("CHAT_FEEDBACK_URL", "http://localhost:8080/api/feedback"),
		APIToken:        getEnv("CHAT_API_TOKEN", ""),
		OpenAIAPIKey:    getEnv("OPENAI_API_KEY", ""),
		AnthropicAPIKey: getEnv("ANTHROPIC_API_KEY", ""),
		Model:           getEnv("CHAT_MODEL", ""),

		// Persistence
		PersistBackend:  getEnv("PERSIST_BACKEND", "bolt"),
		PersistMode:     getEnv("PERSIST_MODE", "full"),
		PersistPath:     getEnv("PERSIST_PATH", "chat-history.db"),
		PersistKey:      getEnv("PERSIST_KEY", "history-store"),
		PersistInterval: getDurationEnv("PERSIST_INTERVAL", 500*time.Millisecond),

		// NATS
		NATSURL:      getEnv("NATS_URL", "nats://localhost:4222"),
		NATSCAFile:   getEnv("NATS_CA_FILE", ""),
		NATSCertFile: getEnv("NATS_CERT_FILE", ""),
		NATSKeyFile:  getEnv("NATS_KEY_FILE", ""),
		NATSToken:    getEnv("NATS_TOKEN", ""),

		// Debug surface
		DebugAddr:         getEnv("DEBUG_ADDR", ""),
		JWTSecret:         getEnv("JWT_SECRET", ""),
		RateLimitRequests: getIntEnv("RATE_LIMIT_REQUESTS", 60),
		RateLimitWindow:   getDurationEnv("RATE_LIMIT_WINDOW", time.Minute),

		// Logging
		LogLevel: getEnv("LOG_LEVEL", "info"),

		// Tracing
		TracingEndpoint: getEnv("TRACING_ENDPOINT", "localhost:4318"),
		TracingEnabled:  getBoolEnv("TRACING_ENABLED", false),
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getBoolEnv(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func getDurationEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
