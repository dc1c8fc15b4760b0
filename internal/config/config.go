// Package config loads settings from a .env file and the environment.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"figmento/internal/executor"
	"figmento/internal/progress"
	"figmento/internal/provider"
)

type Config struct {
	Providers map[provider.ID]ProviderConfig
	Request   RequestConfig
	Progress  progress.Range
	Cache     CacheConfig
	LogLevel  slog.Level
}

type ProviderConfig struct {
	APIKey  string
	Model   string
	BaseURL string
}

type RequestConfig struct {
	MaxTokens      int
	MaxAttempts    int
	AttemptTimeout time.Duration
	RetryBaseDelay time.Duration
}

type CacheConfig struct {
	Size int
	TTL  time.Duration
}

// env prefixes per provider, e.g. OPENAI_API_KEY and OPENAI_MODEL.
var envPrefix = map[provider.ID]string{
	provider.Anthropic: "ANTHROPIC",
	provider.OpenAI:    "OPENAI",
	provider.Gemini:    "GEMINI",
}

// Load reads .env files (missing files are ignored) and then the process
// environment. Variables already set in the environment win.
func Load(files ...string) (*Config, error) {
	_ = godotenv.Load(files...)

	cfg := &Config{
		Providers: make(map[provider.ID]ProviderConfig, len(envPrefix)),
		Progress:  progress.DefaultRange(),
	}
	for id, prefix := range envPrefix {
		pc := ProviderConfig{
			APIKey:  strings.TrimSpace(os.Getenv(prefix + "_API_KEY")),
			Model:   strings.TrimSpace(os.Getenv(prefix + "_MODEL")),
			BaseURL: strings.TrimSpace(os.Getenv(prefix + "_BASE_URL")),
		}
		if id == provider.Gemini && pc.APIKey == "" {
			pc.APIKey = strings.TrimSpace(os.Getenv("GOOGLE_API_KEY"))
		}
		cfg.Providers[id] = pc
	}

	var err error
	if cfg.Request.MaxTokens, err = intEnv("DESIGN_MAX_TOKENS", provider.DefaultMaxTokens); err != nil {
		return nil, err
	}
	if cfg.Request.MaxAttempts, err = intEnv("DESIGN_MAX_ATTEMPTS", executor.DefaultMaxAttempts); err != nil {
		return nil, err
	}
	if cfg.Request.AttemptTimeout, err = durationEnv("DESIGN_ATTEMPT_TIMEOUT", executor.DefaultAttemptTimeout); err != nil {
		return nil, err
	}
	if cfg.Request.RetryBaseDelay, err = durationEnv("DESIGN_RETRY_BASE_DELAY", executor.DefaultBaseDelay); err != nil {
		return nil, err
	}
	if cfg.Progress.Min, err = intEnv("DESIGN_PROGRESS_MIN", progress.DefaultMin); err != nil {
		return nil, err
	}
	if cfg.Progress.Max, err = intEnv("DESIGN_PROGRESS_MAX", progress.DefaultMax); err != nil {
		return nil, err
	}
	if cfg.Progress.Min > cfg.Progress.Max {
		return nil, fmt.Errorf("config: DESIGN_PROGRESS_MIN (%d) exceeds DESIGN_PROGRESS_MAX (%d)", cfg.Progress.Min, cfg.Progress.Max)
	}
	if cfg.Cache.Size, err = intEnv("DESIGN_CACHE_SIZE", 128); err != nil {
		return nil, err
	}
	if cfg.Cache.TTL, err = durationEnv("DESIGN_CACHE_TTL", 30*time.Minute); err != nil {
		return nil, err
	}
	if cfg.LogLevel, err = levelEnv("LOG_LEVEL"); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Settings converts the provider section for the adapter registry.
func (c *Config) Settings() map[provider.ID]provider.Settings {
	out := make(map[provider.ID]provider.Settings, len(c.Providers))
	for id, pc := range c.Providers {
		out[id] = provider.Settings{Model: pc.Model, BaseURL: pc.BaseURL, MaxTokens: c.Request.MaxTokens}
	}
	return out
}

// APIKey returns the credential for a provider id or alias.
func (c *Config) APIKey(id string) (string, error) {
	pid, err := provider.ParseID(id)
	if err != nil {
		return "", err
	}
	key := c.Providers[pid].APIKey
	if key == "" {
		return "", fmt.Errorf("config: %s_API_KEY is not set", envPrefix[pid])
	}
	return key, nil
}

func intEnv(key string, def int) (int, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("config: %s: %w", key, err)
	}
	return v, nil
}

// durationEnv accepts Go durations ("90s") or plain seconds ("90").
func durationEnv(key string, def time.Duration) (time.Duration, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def, nil
	}
	if secs, err := strconv.Atoi(raw); err == nil {
		return time.Duration(secs) * time.Second, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("config: %s: %w", key, err)
	}
	return d, nil
}

func levelEnv(key string) (slog.Level, error) {
	var lvl slog.Level
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return slog.LevelInfo, nil
	}
	if err := lvl.UnmarshalText([]byte(raw)); err != nil {
		return 0, fmt.Errorf("config: %s: %w", key, err)
	}
	return lvl, nil
}
