// Package config loads gateway configuration with multi-source priority.
//
// Sources, highest to lowest:
//  1. Environment variables (CHATGATE_*)
//  2. Config file (~/.chatgate/config.yaml or ./config.yaml)
//  3. Defaults
//
// Load validates immediately, so a misconfigured gateway fails at startup
// rather than on the first request.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"

	"chatgate/internal/registry"
)

// Sentinel errors, checked with errors.Is.
var (
	// ErrInvalidAddr indicates a missing or malformed listen address.
	ErrInvalidAddr = errors.New("invalid listen address")

	// ErrInvalidStoreDir indicates a missing store directory path.
	ErrInvalidStoreDir = errors.New("invalid store directory")

	// ErrInvalidOllamaHost indicates an unparseable Ollama server address.
	ErrInvalidOllamaHost = errors.New("invalid Ollama host")

	// ErrInvalidHistoryWindow indicates a history window below 1.
	ErrInvalidHistoryWindow = errors.New("invalid history window")

	// ErrInvalidModels indicates an empty or inconsistent model mapping.
	ErrInvalidModels = errors.New("invalid model mapping")

	// ErrInvalidLogLevel indicates an unknown log level name.
	ErrInvalidLogLevel = errors.New("invalid log level")
)

// TracingConfig controls optional OTLP span export.
type TracingConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Endpoint string `mapstructure:"endpoint"`
	Service  string `mapstructure:"service"`
}

// Config is the full gateway configuration.
type Config struct {
	Addr          string           `mapstructure:"addr"`
	StoreDir      string           `mapstructure:"store_dir"`
	OllamaHost    string           `mapstructure:"ollama_host"`
	Models        []registry.Model `mapstructure:"models"`
	HistoryWindow int              `mapstructure:"history_window"`
	CORSOrigins   []string         `mapstructure:"cors_origins"`
	RateBurst     int              `mapstructure:"rate_burst"`
	LogLevel      string           `mapstructure:"log_level"`
	LogJSON       bool             `mapstructure:"log_json"`
	Tracing       TracingConfig    `mapstructure:"tracing"`
}

// Load reads configuration from defaults, an optional config file, and
// CHATGATE_* environment variables, then validates it.
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	if home, err := os.UserHomeDir(); err == nil {
		v.AddConfigPath(filepath.Join(home, ".chatgate"))
	}
	v.AddConfigPath(".")

	setDefaults(v)
	bindEnvVariables(v)

	if err := v.ReadInConfig(); err != nil {
		// A missing file is fine, defaults carry the gateway.
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("parsing configuration: %w", err)
	}

	cfg.CORSOrigins = splitCommaValues(cfg.CORSOrigins)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating configuration: %w", err)
	}

	return &cfg, nil
}

// setDefaults mirrors the out-of-the-box local setup: Ollama on its default
// port, records under ./saved_chats, one general and one coding model.
func setDefaults(v *viper.Viper) {
	v.SetDefault("addr", ":8000")
	v.SetDefault("store_dir", "./saved_chats")
	v.SetDefault("ollama_host", "http://localhost:11434")
	v.SetDefault("history_window", 20)
	v.SetDefault("cors_origins", []string{"*"})
	v.SetDefault("rate_burst", 60)
	v.SetDefault("log_level", "info")
	v.SetDefault("log_json", false)
	v.SetDefault("models", []map[string]string{
		{"key": "general", "name": "qwen2.5:3b", "label": "💬 General"},
		{"key": "code", "name": "qwen2.5-coder:3b", "label": "💻 Code"},
	})
	v.SetDefault("tracing.enabled", false)
	v.SetDefault("tracing.endpoint", "localhost:4318")
	v.SetDefault("tracing.service", "chatgate")
}

// bindEnvVariables binds runtime overrides explicitly.
func bindEnvVariables(v *viper.Viper) {
	// Hardcoded keys cannot fail to bind; a panic here is a bug.
	mustBind := func(key, envVar string) {
		if err := v.BindEnv(key, envVar); err != nil {
			panic(fmt.Sprintf("BUG: failed to bind %q to %q: %v", key, envVar, err))
		}
	}

	mustBind("addr", "CHATGATE_ADDR")
	mustBind("store_dir", "CHATGATE_STORE_DIR")
	mustBind("ollama_host", "CHATGATE_OLLAMA_HOST")
	mustBind("history_window", "CHATGATE_HISTORY_WINDOW")
	mustBind("cors_origins", "CHATGATE_CORS_ORIGINS")
	mustBind("rate_burst", "CHATGATE_RATE_BURST")
	mustBind("log_level", "CHATGATE_LOG_LEVEL")
	mustBind("log_json", "CHATGATE_LOG_JSON")
	mustBind("tracing.enabled", "CHATGATE_TRACING_ENABLED")
	mustBind("tracing.endpoint", "CHATGATE_TRACING_ENDPOINT")
}

// splitCommaValues expands comma-separated entries, as the env override
// arrives as a single string.
func splitCommaValues(values []string) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		for _, part := range strings.Split(v, ",") {
			if trimmed := strings.TrimSpace(part); trimmed != "" {
				out = append(out, trimmed)
			}
		}
	}
	return out
}

// Validate fails fast on configuration the gateway cannot run with.
func (c *Config) Validate() error {
	if c == nil {
		return errors.New("configuration is nil")
	}
	if strings.TrimSpace(c.Addr) == "" {
		return fmt.Errorf("%w: empty", ErrInvalidAddr)
	}
	if strings.TrimSpace(c.StoreDir) == "" {
		return fmt.Errorf("%w: empty", ErrInvalidStoreDir)
	}

	u, err := url.Parse(c.OllamaHost)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("%w: %q", ErrInvalidOllamaHost, c.OllamaHost)
	}

	if c.HistoryWindow < 1 {
		return fmt.Errorf("%w: %d", ErrInvalidHistoryWindow, c.HistoryWindow)
	}

	if len(c.Models) == 0 {
		return fmt.Errorf("%w: no models configured", ErrInvalidModels)
	}
	seen := make(map[string]struct{}, len(c.Models))
	for _, m := range c.Models {
		if m.Key == "" || m.Name == "" {
			return fmt.Errorf("%w: model entries need key and name", ErrInvalidModels)
		}
		if _, dup := seen[m.Key]; dup {
			return fmt.Errorf("%w: duplicate key %q", ErrInvalidModels, m.Key)
		}
		seen[m.Key] = struct{}{}
	}

	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("%w: %q", ErrInvalidLogLevel, c.LogLevel)
	}

	return nil
}
