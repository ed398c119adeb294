// Package config loads server configuration from YAML with environment
// overrides. Environment variables win over file values so deployments
// can keep secrets out of the config file.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Auth      AuthConfig      `yaml:"auth"`
	Storage   StorageConfig   `yaml:"storage"`
	Providers ProvidersConfig `yaml:"providers"`
	Defaults  DefaultsConfig  `yaml:"defaults"`
	Log       LogConfig       `yaml:"log"`
}

// ServerConfig controls the HTTP listener.
type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// Addr returns the host:port listen address.
func (c ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// AuthConfig controls optional bearer-token identity.
type AuthConfig struct {
	JWTSecret string        `yaml:"jwt_secret"`
	Expiry    time.Duration `yaml:"expiry"`
}

// StorageConfig selects the persistence backend. An empty path keeps
// everything in memory.
type StorageConfig struct {
	Path string `yaml:"path"`
}

// ProviderConfig holds credentials for one backend.
type ProviderConfig struct {
	APIKey  string `yaml:"api_key"`
	BaseURL string `yaml:"base_url"`
}

// ProvidersConfig holds per-backend credentials. The gateway entries
// route prefixed model IDs to OpenAI-compatible upstreams.
type ProvidersConfig struct {
	Anthropic  ProviderConfig `yaml:"anthropic"`
	OpenAI     ProviderConfig `yaml:"openai"`
	Gemini     ProviderConfig `yaml:"gemini"`
	Groq       ProviderConfig `yaml:"groq"`
	DeepSeek   ProviderConfig `yaml:"deepseek"`
	OpenRouter ProviderConfig `yaml:"openrouter"`
	Zai        ProviderConfig `yaml:"zai"`
}

// DefaultsConfig sets the fallback provider and model for sessions that
// do not specify one.
type DefaultsConfig struct {
	ProviderID string `yaml:"provider_id"`
	ModelID    string `yaml:"model_id"`
}

// LogConfig controls the slog handler.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Server: ServerConfig{Host: "127.0.0.1", Port: 8080},
		Auth:   AuthConfig{Expiry: 24 * time.Hour},
		Defaults: DefaultsConfig{
			ProviderID: "anthropic",
			ModelID:    "claude-sonnet-4-20250514",
		},
		Log: LogConfig{Level: "info", Format: "text"},
	}
}

// Load reads the YAML file at path over the defaults and applies
// environment overrides. An empty path skips the file.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	cfg.applyEnv()
	return cfg, nil
}

// applyEnv lets environment variables override file values.
func (c *Config) applyEnv() {
	overrideString(&c.Providers.Anthropic.APIKey, "ANTHROPIC_API_KEY")
	overrideString(&c.Providers.OpenAI.APIKey, "OPENAI_API_KEY")
	overrideString(&c.Providers.Gemini.APIKey, "GEMINI_API_KEY")
	overrideString(&c.Providers.Groq.APIKey, "GROQ_API_KEY")
	overrideString(&c.Providers.DeepSeek.APIKey, "DEEPSEEK_API_KEY")
	overrideString(&c.Providers.OpenRouter.APIKey, "OPENROUTER_API_KEY")
	overrideString(&c.Providers.Zai.APIKey, "ZAI_API_KEY")
	overrideString(&c.Providers.Zai.BaseURL, "ZAI_API_BASE")

	overrideString(&c.Storage.Path, "OPENCORE_STORAGE_PATH")
	overrideString(&c.Auth.JWTSecret, "OPENCORE_JWT_SECRET")
	overrideString(&c.Server.Host, "OPENCORE_HOST")
	overrideInt(&c.Server.Port, "OPENCORE_PORT")
	overrideString(&c.Defaults.ProviderID, "OPENCORE_DEFAULT_PROVIDER")
	overrideString(&c.Defaults.ModelID, "OPENCORE_DEFAULT_MODEL")
	overrideString(&c.Log.Level, "OPENCORE_LOG_LEVEL")
	overrideString(&c.Log.Format, "OPENCORE_LOG_FORMAT")
}

func overrideString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func overrideInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}
