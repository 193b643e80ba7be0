package config

import (
	"log/slog"
	"testing"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Server.Addr() != "0.0.0.0:8080" {
		t.Errorf("Expected default addr 0.0.0.0:8080, got %s", cfg.Server.Addr())
	}
	if cfg.Tagging.MaxTagsPerStory != 5 {
		t.Errorf("Expected default MaxTagsPerStory 5, got %d", cfg.Tagging.MaxTagsPerStory)
	}
	if cfg.Database.Driver != "sqlite3" {
		t.Errorf("Expected default driver sqlite3, got %s", cfg.Database.Driver)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Expected defaults to validate, got %v", err)
	}
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("SERVER_PORT", "9090")
	t.Setenv("MAX_TAGS_PER_STORY", "8")
	t.Setenv("RATE_LIMIT_RPS", "2.5")
	t.Setenv("CORS_ALLOWED_ORIGINS", "https://a.example, https://b.example")
	t.Setenv("LOG_LEVEL", "debug")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Server.Port != 9090 {
		t.Errorf("Expected port 9090, got %d", cfg.Server.Port)
	}
	if cfg.Tagging.MaxTagsPerStory != 8 {
		t.Errorf("Expected MaxTagsPerStory 8, got %d", cfg.Tagging.MaxTagsPerStory)
	}
	if cfg.RateLimit.RPS != 2.5 {
		t.Errorf("Expected RPS 2.5, got %v", cfg.RateLimit.RPS)
	}

	origins := cfg.CORS.GetAllowedOrigins()
	if len(origins) != 2 || origins[1] != "https://b.example" {
		t.Errorf("Unexpected origins %v", origins)
	}

	level, err := cfg.Log.SlogLevel()
	if err != nil || level != slog.LevelDebug {
		t.Errorf("Expected debug level, got %v (err %v)", level, err)
	}
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		return &Config{
			Database:  DatabaseConfig{Driver: "sqlite3", DSN: "test.db"},
			Tagging:   TaggingConfig{MaxTagsPerStory: 5},
			RateLimit: RateLimitConfig{Enabled: true, RPS: 1, Burst: 1},
			Log:       LogConfig{Level: "info"},
		}
	}

	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr bool
	}{
		{"valid", func(c *Config) {}, false},
		{"unknown driver", func(c *Config) { c.Database.Driver = "mysql" }, true},
		{"empty dsn", func(c *Config) { c.Database.DSN = "" }, true},
		{"zero tag limit", func(c *Config) { c.Tagging.MaxTagsPerStory = 0 }, true},
		{"zero rps", func(c *Config) { c.RateLimit.RPS = 0 }, true},
		{"zero rps disabled", func(c *Config) { c.RateLimit.RPS = 0; c.RateLimit.Enabled = false }, false},
		{"bad log level", func(c *Config) { c.Log.Level = "loud" }, true},
		{"bad log format", func(c *Config) { c.Log.Format = "xml" }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}
