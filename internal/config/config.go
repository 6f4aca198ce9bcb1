// Package config provides application configuration management with
// multi-source priority.
//
// Configuration sources (highest to lowest priority):
//  1. Environment variables (BINVENTORY_*, plus DATABASE_URL override)
//  2. Config file (~/.binventory/config.yaml)
//  3. Default values
//
// Main configuration categories:
//   - AI: chat model, embedder model, vision model, temperature
//   - Session: TTL and cleanup cadence for in-memory sessions
//   - Conversation: history window bounds (count and age)
//   - Dispatch: tool-call round ceiling
//   - Search: similarity threshold and candidate limits
//   - Storage: PostgreSQL connection (see storage.go)
//
// Security: passwords and API keys are masked in MarshalJSON and never
// logged. Validation lives in validation.go with sentinel errors usable
// via errors.Is().
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const (
	// DefaultChatModel is the Gemini model used for command dispatch.
	DefaultChatModel = "gemini-2.5-flash"

	// DefaultEmbedderModel is the Gemini embedding model.
	// gemini-embedding-001 outputs 3072 dimensions by default but
	// supports truncation via OutputDimensionality; the items schema
	// stores 768-dimension vectors (see inventory.VectorDimension).
	DefaultEmbedderModel = "gemini-embedding-001"

	// DefaultVisionModel is the multimodal model used for image analysis.
	DefaultVisionModel = "gemini-2.5-flash"

	// DefaultSessionTTL is how long an idle session survives.
	DefaultSessionTTL = 30 * time.Minute

	// DefaultSessionCleanupInterval is the background sweep cadence.
	DefaultSessionCleanupInterval = 5 * time.Minute

	// DefaultMaxMessages bounds per-session conversation length.
	DefaultMaxMessages = 50

	// DefaultMaxMessageAge bounds how old a retained message may be.
	DefaultMaxMessageAge = 10 * time.Minute

	// DefaultMaxToolRounds is the dispatcher's hard iteration ceiling.
	DefaultMaxToolRounds = 5

	// DefaultMinRelevance is the similarity floor for query resolution.
	DefaultMinRelevance = 0.6

	// DefaultResolveLimit caps candidates fetched for disambiguation.
	DefaultResolveLimit = 50
)

// Config stores application configuration.
// SECURITY: sensitive fields are masked in MarshalJSON(). When adding
// new secrets (passwords, API keys, tokens), update MarshalJSON.
type Config struct {
	// AI models
	ChatModel     string  `mapstructure:"chat_model" json:"chat_model"`
	EmbedderModel string  `mapstructure:"embedder_model" json:"embedder_model"`
	VisionModel   string  `mapstructure:"vision_model" json:"vision_model"`
	Temperature   float32 `mapstructure:"temperature" json:"temperature"`
	GeminiAPIKey  string  `mapstructure:"gemini_api_key" json:"gemini_api_key"`

	// Session lifecycle
	SessionTTL             time.Duration `mapstructure:"session_ttl" json:"session_ttl"`
	SessionCleanupInterval time.Duration `mapstructure:"session_cleanup_interval" json:"session_cleanup_interval"`

	// Conversation window bounds
	MaxMessages   int           `mapstructure:"max_messages" json:"max_messages"`
	MaxMessageAge time.Duration `mapstructure:"max_message_age" json:"max_message_age"`

	// Dispatch loop
	MaxToolRounds int `mapstructure:"max_tool_rounds" json:"max_tool_rounds"`

	// Query resolution
	MinRelevance float64 `mapstructure:"min_relevance" json:"min_relevance"`
	ResolveLimit int     `mapstructure:"resolve_limit" json:"resolve_limit"`

	// Logging
	LogLevel string `mapstructure:"log_level" json:"log_level"`

	// PostgreSQL connection
	PostgresHost     string `mapstructure:"postgres_host" json:"postgres_host"`
	PostgresPort     int    `mapstructure:"postgres_port" json:"postgres_port"`
	PostgresUser     string `mapstructure:"postgres_user" json:"postgres_user"`
	PostgresPassword string `mapstructure:"postgres_password" json:"postgres_password"`
	PostgresDBName   string `mapstructure:"postgres_dbname" json:"postgres_dbname"`
	PostgresSSLMode  string `mapstructure:"postgres_sslmode" json:"postgres_sslmode"`
}

// Load reads configuration from defaults, the config file (if present)
// and environment variables, then validates the result.
func Load() (*Config, error) {
	v := viper.New()

	setDefaults(v)

	// Config file is optional; env vars and defaults can carry a full
	// configuration on their own.
	if dir, err := configDir(); err == nil {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(dir)
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("reading config file: %w", err)
			}
		}
	}

	v.SetEnvPrefix("BINVENTORY")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	// GEMINI_API_KEY is the conventional variable for the Gemini SDK;
	// accept it when the prefixed variable is unset.
	if cfg.GeminiAPIKey == "" {
		cfg.GeminiAPIKey = os.Getenv("GEMINI_API_KEY")
	}

	// DATABASE_URL overrides the individual postgres_* settings.
	if err := cfg.parseDatabaseURL(); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// setDefaults registers every default value with viper.
func setDefaults(v *viper.Viper) {
	v.SetDefault("chat_model", DefaultChatModel)
	v.SetDefault("embedder_model", DefaultEmbedderModel)
	v.SetDefault("vision_model", DefaultVisionModel)
	v.SetDefault("temperature", 0.2)

	v.SetDefault("session_ttl", DefaultSessionTTL)
	v.SetDefault("session_cleanup_interval", DefaultSessionCleanupInterval)

	v.SetDefault("max_messages", DefaultMaxMessages)
	v.SetDefault("max_message_age", DefaultMaxMessageAge)

	v.SetDefault("max_tool_rounds", DefaultMaxToolRounds)

	v.SetDefault("min_relevance", DefaultMinRelevance)
	v.SetDefault("resolve_limit", DefaultResolveLimit)

	v.SetDefault("log_level", "info")

	v.SetDefault("postgres_host", "localhost")
	v.SetDefault("postgres_port", 5432)
	v.SetDefault("postgres_user", "binventory")
	v.SetDefault("postgres_password", "")
	v.SetDefault("postgres_dbname", "binventory")
	v.SetDefault("postgres_sslmode", "disable")
}

// configDir returns ~/.binventory, creating it with restricted
// permissions when absent.
func configDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolving home directory: %w", err)
	}
	dir := filepath.Join(home, ".binventory")
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return "", fmt.Errorf("creating config directory: %w", err)
	}
	return dir, nil
}

// SlogLevel maps the configured log level onto slog. Unknown values
// fall back to info.
func (c *Config) SlogLevel() slog.Level {
	switch strings.ToLower(c.LogLevel) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// MarshalJSON masks sensitive fields so a Config can be logged or
// dumped safely.
func (c *Config) MarshalJSON() ([]byte, error) {
	type alias Config // avoid recursion
	masked := alias(*c)
	if masked.PostgresPassword != "" {
		masked.PostgresPassword = "****"
	}
	if masked.GeminiAPIKey != "" {
		masked.GeminiAPIKey = "****"
	}
	return json.Marshal(masked)
}
