// Package config loads gameloc settings from flags, GAMELOC_* environment
// variables and an optional gameloc.yaml.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/valpere/gameloc/internal"
)

const (
	EnvPrefix = "GAMELOC"
	FileName  = "gameloc"

	ProviderZhipu  = "zhipu"
	ProviderGoogle = "google"
	ProviderChat   = "chat"
)

type ZhipuConfig struct {
	APIKey        string        `mapstructure:"api_key"`
	BaseURL       string        `mapstructure:"base_url"`
	Model         string        `mapstructure:"model"`
	TokenTTL      time.Duration `mapstructure:"token_ttl"`
	RefreshBefore time.Duration `mapstructure:"refresh_before"`
}

type GoogleConfig struct {
	Credentials string `mapstructure:"credentials"`
	Project     string `mapstructure:"project"`
}

// ChatConfig points at an OpenAI-compatible chat completions server.
type ChatConfig struct {
	BaseURL string        `mapstructure:"base_url"`
	APIKey  string        `mapstructure:"api_key"`
	Model   string        `mapstructure:"model"`
	Timeout time.Duration `mapstructure:"timeout"`
}

type BatchConfig struct {
	ChunkSize   int     `mapstructure:"chunk_size"`
	Temperature float64 `mapstructure:"temperature"`
	Validate    bool    `mapstructure:"validate"` // run tag and language checks on results
}

type PollConfig struct {
	Interval    time.Duration `mapstructure:"interval"`
	MaxAttempts int           `mapstructure:"max_attempts"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`  // trace|debug|info|warn|error
	Format string `mapstructure:"format"` // console|json
}

type StoreConfig struct {
	DSN string `mapstructure:"dsn"`
}

type ServerConfig struct {
	Addr string `mapstructure:"addr"`
	// DataDir holds the sheets the API may read and write. Empty disables
	// file submissions.
	DataDir string `mapstructure:"data_dir"`
}

type Config struct {
	Provider string       `mapstructure:"provider"`
	Zhipu    ZhipuConfig  `mapstructure:"zhipu"`
	Google   GoogleConfig `mapstructure:"google"`
	Chat     ChatConfig   `mapstructure:"chat"`
	Batch    BatchConfig  `mapstructure:"batch"`
	Poll     PollConfig   `mapstructure:"poll"`
	Log      LogConfig    `mapstructure:"log"`
	Store    StoreConfig  `mapstructure:"store"`
	Server   ServerConfig `mapstructure:"server"`
}

// SetDefaults registers every key with its default so that environment
// variables are picked up by Unmarshal.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("provider", ProviderZhipu)
	v.SetDefault("zhipu.api_key", "")
	v.SetDefault("zhipu.base_url", "https://open.bigmodel.cn/api/paas")
	v.SetDefault("zhipu.model", "glm-4-plus")
	v.SetDefault("zhipu.token_ttl", time.Hour)
	v.SetDefault("zhipu.refresh_before", 30*time.Minute)
	v.SetDefault("google.credentials", "")
	v.SetDefault("google.project", "")
	v.SetDefault("chat.base_url", "http://localhost:11434/v1")
	v.SetDefault("chat.api_key", "")
	v.SetDefault("chat.model", "llama3.2")
	v.SetDefault("chat.timeout", 120*time.Second)
	v.SetDefault("batch.chunk_size", 10)
	v.SetDefault("batch.temperature", 0.1)
	v.SetDefault("batch.validate", true)
	v.SetDefault("poll.interval", 10*time.Second)
	v.SetDefault("poll.max_attempts", 540)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "console")
	v.SetDefault("store.dsn", "file:gameloc?mode=memory&cache=shared")
	v.SetDefault("server.addr", ":8080")
	v.SetDefault("server.data_dir", "data")
}

// Init wires defaults, environment and the config file into v. An explicit
// cfgFile must exist; otherwise gameloc.yaml is searched in the working
// directory and $HOME/.config/gameloc and may be absent.
func Init(v *viper.Viper, cfgFile string) error {
	SetDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.SetConfigName(FileName)
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(filepath.Join(home, ".config", FileName))
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if cfgFile == "" && errors.As(err, &notFound) {
			return nil
		}
		return fmt.Errorf("read config: %w", err)
	}
	return nil
}

// Load decodes v and validates the result.
func Load(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	cfg.Provider = strings.ToLower(strings.TrimSpace(cfg.Provider))
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks ranges and provider requirements. Credential format is
// checked by the provider itself.
func (c *Config) Validate() error {
	switch c.Provider {
	case ProviderZhipu:
		if c.Zhipu.APIKey == "" {
			return internal.Invalid("zhipu.api_key", "required for provider %s", ProviderZhipu)
		}
		if c.Zhipu.TokenTTL <= 0 {
			return internal.Invalid("zhipu.token_ttl", "must be positive")
		}
		if c.Zhipu.RefreshBefore < 0 {
			return internal.Invalid("zhipu.refresh_before", "must not be negative")
		}
	case ProviderGoogle:
	case ProviderChat:
		if c.Chat.BaseURL == "" {
			return internal.Invalid("chat.base_url", "required for provider %s", ProviderChat)
		}
		if c.Chat.Timeout <= 0 {
			return internal.Invalid("chat.timeout", "must be positive")
		}
	default:
		return internal.Invalid("provider", "unknown provider %q (want %s, %s or %s)", c.Provider, ProviderZhipu, ProviderGoogle, ProviderChat)
	}

	if c.Batch.ChunkSize < 1 || c.Batch.ChunkSize > 200 {
		return internal.Invalid("batch.chunk_size", "must be between 1 and 200, got %d", c.Batch.ChunkSize)
	}
	if c.Batch.Temperature < 0 || c.Batch.Temperature > 1 {
		return internal.Invalid("batch.temperature", "must be between 0 and 1")
	}
	if c.Poll.Interval <= 0 {
		return internal.Invalid("poll.interval", "must be positive")
	}
	if c.Poll.MaxAttempts < 1 {
		return internal.Invalid("poll.max_attempts", "must be at least 1")
	}
	switch strings.ToLower(c.Log.Format) {
	case "console", "json":
	default:
		return internal.Invalid("log.format", "unknown format %q", c.Log.Format)
	}
	return nil
}

// Model returns the model name sent in manifests for the configured provider.
func (c *Config) Model() string {
	switch c.Provider {
	case ProviderZhipu:
		return c.Zhipu.Model
	case ProviderChat:
		return c.Chat.Model
	}
	return ""
}
