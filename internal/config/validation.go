package config

import (
	"errors"
	"fmt"
)

var (
	// ErrConfigNil indicates the configuration is nil.
	ErrConfigNil = errors.New("configuration is nil")

	// ErrInvalidModelName indicates a model name is empty.
	ErrInvalidModelName = errors.New("invalid model name")

	// ErrInvalidTemperature indicates the temperature is out of range.
	ErrInvalidTemperature = errors.New("invalid temperature")

	// ErrInvalidSessionTTL indicates a non-positive session TTL.
	ErrInvalidSessionTTL = errors.New("invalid session TTL")

	// ErrInvalidWindowBounds indicates bad conversation window bounds.
	ErrInvalidWindowBounds = errors.New("invalid conversation window bounds")

	// ErrInvalidToolRounds indicates a non-positive dispatch ceiling.
	ErrInvalidToolRounds = errors.New("invalid tool round ceiling")

	// ErrInvalidRelevance indicates a relevance threshold outside [0, 1].
	ErrInvalidRelevance = errors.New("invalid relevance threshold")

	// ErrInvalidPostgresHost indicates a bad PostgreSQL host.
	ErrInvalidPostgresHost = errors.New("invalid PostgreSQL host")

	// ErrInvalidPostgresPort indicates a PostgreSQL port out of range.
	ErrInvalidPostgresPort = errors.New("invalid PostgreSQL port")

	// ErrInvalidPostgresDBName indicates a bad PostgreSQL database name.
	ErrInvalidPostgresDBName = errors.New("invalid PostgreSQL database name")
)

// Validate checks every configuration value against its allowed range.
// Errors wrap the package sentinels so callers can use errors.Is().
func (c *Config) Validate() error {
	if c == nil {
		return ErrConfigNil
	}

	if c.ChatModel == "" {
		return fmt.Errorf("%w: chat_model is empty", ErrInvalidModelName)
	}
	if c.EmbedderModel == "" {
		return fmt.Errorf("%w: embedder_model is empty", ErrInvalidModelName)
	}
	if c.VisionModel == "" {
		return fmt.Errorf("%w: vision_model is empty", ErrInvalidModelName)
	}
	if c.Temperature < 0 || c.Temperature > 2 {
		return fmt.Errorf("%w: %.2f not in [0, 2]", ErrInvalidTemperature, c.Temperature)
	}

	if c.SessionTTL <= 0 {
		return fmt.Errorf("%w: %s", ErrInvalidSessionTTL, c.SessionTTL)
	}
	if c.SessionCleanupInterval <= 0 {
		return fmt.Errorf("%w: cleanup interval %s", ErrInvalidSessionTTL, c.SessionCleanupInterval)
	}

	if c.MaxMessages <= 0 {
		return fmt.Errorf("%w: max_messages %d", ErrInvalidWindowBounds, c.MaxMessages)
	}
	if c.MaxMessageAge <= 0 {
		return fmt.Errorf("%w: max_message_age %s", ErrInvalidWindowBounds, c.MaxMessageAge)
	}

	if c.MaxToolRounds <= 0 {
		return fmt.Errorf("%w: %d", ErrInvalidToolRounds, c.MaxToolRounds)
	}

	if c.MinRelevance < 0 || c.MinRelevance > 1 {
		return fmt.Errorf("%w: %.2f not in [0, 1]", ErrInvalidRelevance, c.MinRelevance)
	}
	if c.ResolveLimit <= 0 {
		return fmt.Errorf("%w: resolve_limit %d", ErrInvalidRelevance, c.ResolveLimit)
	}

	if c.PostgresHost == "" {
		return ErrInvalidPostgresHost
	}
	if c.PostgresPort < 1 || c.PostgresPort > 65535 {
		return fmt.Errorf("%w: %d", ErrInvalidPostgresPort, c.PostgresPort)
	}
	if c.PostgresDBName == "" {
		return ErrInvalidPostgresDBName
	}

	return nil
}
