package config

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/caarlos0/env/v9"
)

// Config holds all configuration for the application.
type Config struct {
	Server    ServerConfig
	Database  DatabaseConfig
	Auth      AuthConfig
	Tagging   TaggingConfig
	RateLimit RateLimitConfig
	CORS      CORSConfig
	Log       LogConfig
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Host string `env:"SERVER_HOST" envDefault:"0.0.0.0"`
	Port int    `env:"SERVER_PORT" envDefault:"8080"`
}

// DatabaseConfig holds database configuration.
type DatabaseConfig struct {
	Driver string `env:"DB_DRIVER" envDefault:"sqlite3"`
	DSN    string `env:"DB_DSN" envDefault:"data/storyshare.db?_foreign_keys=on"`
}

// AuthConfig holds API authentication configuration.
type AuthConfig struct {
	// BootstrapAPIKey is accepted only while no API keys exist.
	BootstrapAPIKey string `env:"BOOTSTRAP_API_KEY"`
}

// TaggingConfig holds story tagging configuration.
type TaggingConfig struct {
	MaxTagsPerStory int `env:"MAX_TAGS_PER_STORY" envDefault:"5"`
}

// RateLimitConfig holds per-client request rate limiting configuration.
type RateLimitConfig struct {
	Enabled bool    `env:"RATE_LIMIT_ENABLED" envDefault:"true"`
	RPS     float64 `env:"RATE_LIMIT_RPS" envDefault:"10"`
	Burst   int     `env:"RATE_LIMIT_BURST" envDefault:"30"`
}

// CORSConfig holds cross-origin configuration for the web client.
type CORSConfig struct {
	AllowedOrigins string `env:"CORS_ALLOWED_ORIGINS" envDefault:"http://localhost:3000"`
}

// GetAllowedOrigins returns the allowed origins as a slice.
func (c *CORSConfig) GetAllowedOrigins() []string {
	if c.AllowedOrigins == "" {
		return nil
	}
	origins := strings.Split(c.AllowedOrigins, ",")
	for i := range origins {
		origins[i] = strings.TrimSpace(origins[i])
	}
	return origins
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level       string `env:"LOG_LEVEL" envDefault:"info"`
	Format      string `env:"LOG_FORMAT"` // json or text; derived from Environment when empty
	Environment string `env:"ENVIRONMENT" envDefault:"development"`
}

// SlogLevel returns the configured level.
func (c *LogConfig) SlogLevel() (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.Level)); err != nil {
		return slog.LevelInfo, fmt.Errorf("invalid LOG_LEVEL %q: %w", c.Level, err)
	}
	return level, nil
}

// Load loads configuration from environment variables.
func Load() (*Config, error) {
	cfg := &Config{}

	if err := env.Parse(&cfg.Server); err != nil {
		return nil, fmt.Errorf("parsing server config: %w", err)
	}
	if err := env.Parse(&cfg.Database); err != nil {
		return nil, fmt.Errorf("parsing database config: %w", err)
	}
	if err := env.Parse(&cfg.Auth); err != nil {
		return nil, fmt.Errorf("parsing auth config: %w", err)
	}
	if err := env.Parse(&cfg.Tagging); err != nil {
		return nil, fmt.Errorf("parsing tagging config: %w", err)
	}
	if err := env.Parse(&cfg.RateLimit); err != nil {
		return nil, fmt.Errorf("parsing rate limit config: %w", err)
	}
	if err := env.Parse(&cfg.CORS); err != nil {
		return nil, fmt.Errorf("parsing cors config: %w", err)
	}
	if err := env.Parse(&cfg.Log); err != nil {
		return nil, fmt.Errorf("parsing log config: %w", err)
	}

	return cfg, nil
}

// Addr returns the server address in host:port format.
func (c *ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	switch c.Database.Driver {
	case "sqlite3", "postgres":
	default:
		return fmt.Errorf("DB_DRIVER must be sqlite3 or postgres, got %q", c.Database.Driver)
	}
	if c.Database.DSN == "" {
		return fmt.Errorf("DB_DSN is required")
	}

	if c.Tagging.MaxTagsPerStory < 1 {
		return fmt.Errorf("MAX_TAGS_PER_STORY must be at least 1")
	}

	if c.RateLimit.Enabled {
		if c.RateLimit.RPS <= 0 {
			return fmt.Errorf("RATE_LIMIT_RPS must be positive when rate limiting is enabled")
		}
		if c.RateLimit.Burst < 1 {
			return fmt.Errorf("RATE_LIMIT_BURST must be at least 1 when rate limiting is enabled")
		}
	}

	if _, err := c.Log.SlogLevel(); err != nil {
		return err
	}
	switch c.Log.Format {
	case "", "json", "text":
	default:
		return fmt.Errorf("LOG_FORMAT must be json or text, got %q", c.Log.Format)
	}

	return nil
}
