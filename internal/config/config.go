// Package config loads scout configuration from YAML presets.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all scout configuration.
type Config struct {
	Name string `yaml:"name"`

	LLM      LLMConfig      `yaml:"llm"`
	Search   SearchConfig   `yaml:"search"`
	Research ResearchConfig `yaml:"research"`
	Logging  LoggingConfig  `yaml:"logging"`
}

// LLMConfig configures the model client. The API is OpenAI-compatible chat
// completions, so any local or hosted server exposing that surface works.
type LLMConfig struct {
	APIKey        string  `yaml:"api_key"`
	BaseURL       string  `yaml:"base_url"`
	Model         string  `yaml:"model"`
	Timeout       string  `yaml:"timeout"`
	MaxTokens     int     `yaml:"max_tokens"`
	Temperature   float64 `yaml:"temperature"`
	ContextTokens int     `yaml:"context_tokens"` // context budget for the size ceiling
}

// SearchConfig configures search and scraping.
type SearchConfig struct {
	MaxResults      int      `yaml:"max_results"`
	SelectLimit     int      `yaml:"select_limit"` // pages scraped per query
	ConcurrentFetch int      `yaml:"concurrent_fetch"`
	FetchTimeout    string   `yaml:"fetch_timeout"`
	UserAgent       string   `yaml:"user_agent"`
	AllowedDomains  []string `yaml:"allowed_domains"`
	BlockedDomains  []string `yaml:"blocked_domains"`
	BrowserFallback bool     `yaml:"browser_fallback"` // rod-rendered fetch for JS-heavy pages
}

// ResearchConfig configures the research loop.
type ResearchConfig struct {
	SessionDir          string  `yaml:"session_dir"`
	SoftSizeRatio       float64 `yaml:"soft_size_ratio"`
	HardSizeRatio       float64 `yaml:"hard_size_ratio"`
	StartTimeout        string  `yaml:"start_timeout"`
	PausePoll           string  `yaml:"pause_poll"`
	MaxAnalysisFailures int     `yaml:"max_analysis_failures"`
	InitialBackoff      string  `yaml:"initial_backoff"`
	MaxBackoff          string  `yaml:"max_backoff"`
}

// LoggingConfig configures logging.
type LoggingConfig struct {
	Level string `yaml:"level"` // debug, info, warn, error
}

// Default returns the default configuration.
func Default() *Config {
	return &Config{
		Name: "default",
		LLM: LLMConfig{
			BaseURL:       "http://localhost:1234/v1",
			Model:         "local",
			Timeout:       "120s",
			MaxTokens:     1000,
			Temperature:   0.7,
			ContextTokens: 8192,
		},
		Search: SearchConfig{
			MaxResults:      10,
			SelectLimit:     3,
			ConcurrentFetch: 2,
			FetchTimeout:    "30s",
			UserAgent:       "scout/1.0 (research agent)",
			BlockedDomains: []string{
				"facebook.com", "twitter.com", "instagram.com",
				"linkedin.com", "tiktok.com",
			},
		},
		Research: ResearchConfig{
			SessionDir:          ".",
			SoftSizeRatio:       0.8,
			HardSizeRatio:       0.9,
			StartTimeout:        "10s",
			PausePoll:           "1s",
			MaxAnalysisFailures: 5,
			InitialBackoff:      "1s",
			MaxBackoff:          "8s",
		},
		Logging: LoggingConfig{Level: "info"},
	}
}

// Load reads a config file, applying defaults for missing fields and
// SCOUT_* environment overrides on top.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}

	cfg.applyEnvOverrides()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("SCOUT_API_KEY"); v != "" {
		c.LLM.APIKey = v
	}
	if v := os.Getenv("SCOUT_BASE_URL"); v != "" {
		c.LLM.BaseURL = v
	}
	if v := os.Getenv("SCOUT_MODEL"); v != "" {
		c.LLM.Model = v
	}
	if v := os.Getenv("SCOUT_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
}

// Validate checks invariants that would otherwise surface deep in the loop.
func (c *Config) Validate() error {
	if c.LLM.BaseURL == "" {
		return fmt.Errorf("llm.base_url is required")
	}
	if c.LLM.ContextTokens <= 0 {
		return fmt.Errorf("llm.context_tokens must be positive")
	}
	if c.Research.HardSizeRatio <= 0 || c.Research.HardSizeRatio > 1 {
		return fmt.Errorf("research.hard_size_ratio must be in (0,1]")
	}
	if c.Research.SoftSizeRatio > c.Research.HardSizeRatio {
		return fmt.Errorf("research.soft_size_ratio must not exceed hard_size_ratio")
	}
	if c.Search.ConcurrentFetch <= 0 {
		return fmt.Errorf("search.concurrent_fetch must be positive")
	}
	return nil
}

// Duration parses a duration field, falling back when unset or malformed.
func Duration(s string, fallback time.Duration) time.Duration {
	if s == "" {
		return fallback
	}
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}

// Save writes the config to path, creating parent directories.
func (c *Config) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	return os.WriteFile(path, data, 0o644)
}
