package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"

	"github.com/valpere/gameloc/internal"
)

func TestLoad_Defaults(t *testing.T) {
	v := viper.New()
	SetDefaults(v)
	v.Set("zhipu.api_key", "id.secret")

	cfg, err := Load(v)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Provider != ProviderZhipu || cfg.Model() != "glm-4-plus" {
		t.Errorf("unexpected provider defaults: %+v", cfg)
	}
	if cfg.Batch.ChunkSize != 10 || !cfg.Batch.Validate || cfg.Poll.MaxAttempts != 540 || cfg.Poll.Interval != 10*time.Second {
		t.Errorf("unexpected batch/poll defaults: %+v %+v", cfg.Batch, cfg.Poll)
	}
	if cfg.Zhipu.TokenTTL != time.Hour || cfg.Zhipu.RefreshBefore != 30*time.Minute {
		t.Errorf("unexpected token defaults: %+v", cfg.Zhipu)
	}
	if cfg.Server.Addr != ":8080" || cfg.Server.DataDir != "data" {
		t.Errorf("unexpected server defaults: %+v", cfg.Server)
	}
}

func TestInit_FileAndEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "gameloc.yaml")
	content := `provider: google
batch:
  chunk_size: 25
poll:
  interval: 2s
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}
	t.Setenv("GAMELOC_POLL_MAX_ATTEMPTS", "7")

	v := viper.New()
	if err := Init(v, path); err != nil {
		t.Fatalf("Init failed: %v", err)
	}
	cfg, err := Load(v)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Provider != ProviderGoogle || cfg.Batch.ChunkSize != 25 || cfg.Poll.Interval != 2*time.Second {
		t.Errorf("file values not applied: %+v", cfg)
	}
	if cfg.Poll.MaxAttempts != 7 {
		t.Errorf("env override not applied, got %d", cfg.Poll.MaxAttempts)
	}
	if cfg.Model() != "" {
		t.Errorf("google provider has no model, got %q", cfg.Model())
	}
}

func TestInit_MissingExplicitFile(t *testing.T) {
	v := viper.New()
	if err := Init(v, filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Error("expected error for a missing explicit config file")
	}
}

func TestValidate(t *testing.T) {
	valid := func() Config {
		return Config{
			Provider: ProviderZhipu,
			Zhipu:    ZhipuConfig{APIKey: "id.secret", TokenTTL: time.Hour, RefreshBefore: time.Minute},
			Batch:    BatchConfig{ChunkSize: 10, Temperature: 0.1},
			Poll:     PollConfig{Interval: time.Second, MaxAttempts: 1},
			Log:      LogConfig{Level: "info", Format: "json"},
		}
	}

	tests := []struct {
		name   string
		modify func(*Config)
		field  string
	}{
		{"valid", func(*Config) {}, ""},
		{"unknown provider", func(c *Config) { c.Provider = "deepl" }, "provider"},
		{"missing key", func(c *Config) { c.Zhipu.APIKey = "" }, "zhipu.api_key"},
		{"google needs no key", func(c *Config) { c.Provider = ProviderGoogle; c.Zhipu.APIKey = "" }, ""},
		{"chat needs base url", func(c *Config) { c.Provider = ProviderChat; c.Chat = ChatConfig{Timeout: time.Second} }, "chat.base_url"},
		{"chat timeout", func(c *Config) { c.Provider = ProviderChat; c.Chat = ChatConfig{BaseURL: "http://x"} }, "chat.timeout"},
		{"chat valid", func(c *Config) {
			c.Provider = ProviderChat
			c.Chat = ChatConfig{BaseURL: "http://x", Timeout: time.Second}
		}, ""},
		{"zero ttl", func(c *Config) { c.Zhipu.TokenTTL = 0 }, "zhipu.token_ttl"},
		{"chunk size zero", func(c *Config) { c.Batch.ChunkSize = 0 }, "batch.chunk_size"},
		{"chunk size too big", func(c *Config) { c.Batch.ChunkSize = 201 }, "batch.chunk_size"},
		{"temperature", func(c *Config) { c.Batch.Temperature = 1.5 }, "batch.temperature"},
		{"interval", func(c *Config) { c.Poll.Interval = 0 }, "poll.interval"},
		{"attempts", func(c *Config) { c.Poll.MaxAttempts = 0 }, "poll.max_attempts"},
		{"log format", func(c *Config) { c.Log.Format = "xml" }, "log.format"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.modify(&cfg)
			err := cfg.Validate()
			if tt.field == "" {
				if err != nil {
					t.Errorf("expected valid config, got %v", err)
				}
				return
			}
			var ve *internal.ValidationError
			if !errors.As(err, &ve) {
				t.Fatalf("expected ValidationError, got %v", err)
			}
			if ve.Field != tt.field {
				t.Errorf("expected field %s, got %s", tt.field, ve.Field)
			}
		})
	}
}
