// Package config loads server configuration from an optional YAML file with
// environment variable overrides for secrets.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Duration wraps time.Duration so YAML values like "24h" parse directly.
type Duration time.Duration

// UnmarshalYAML parses a Go duration string.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var raw string
	if err := value.Decode(&raw); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", raw, err)
	}
	*d = Duration(parsed)
	return nil
}

// MarshalYAML renders the duration back as a string.
func (d Duration) MarshalYAML() (interface{}, error) {
	return time.Duration(d).String(), nil
}

// Std returns the standard library representation.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// RateLimit throttles unauthenticated endpoints per client IP.
type RateLimit struct {
	PerSecond float64 `yaml:"per_second"`
	Burst     int     `yaml:"burst"`
}

// Generator selects and configures the question generator.
type Generator struct {
	// Kind is "heuristic" or "openai".
	Kind    string `yaml:"kind"`
	APIKey  string `yaml:"api_key"`
	BaseURL string `yaml:"base_url"`
	Model   string `yaml:"model"`
}

// Config is the full server configuration.
type Config struct {
	Host string `yaml:"host"`
	Port string `yaml:"port"`

	// Store is "memory", "file" or "sqlite".
	Store       string `yaml:"store"`
	SessionsDir string `yaml:"sessions_dir"`
	SQLitePath  string `yaml:"sqlite_path"`

	SessionTTL      Duration `yaml:"session_ttl"`
	CleanupInterval Duration `yaml:"cleanup_interval"`

	QuestionCount int `yaml:"question_count"`

	RateLimit RateLimit `yaml:"rate_limit"`
	Generator Generator `yaml:"generator"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{
		Host:            "0.0.0.0",
		Port:            "8080",
		Store:           "file",
		SessionsDir:     "sessions",
		SQLitePath:      "sessions.db",
		SessionTTL:      Duration(24 * time.Hour),
		CleanupInterval: Duration(1 * time.Hour),
		QuestionCount:   10,
		RateLimit: RateLimit{
			PerSecond: 5,
			Burst:     10,
		},
		Generator: Generator{
			Kind: "heuristic",
		},
	}
}

// Load reads the YAML file at path over the defaults. An empty path returns
// the defaults unchanged. OPENAI_API_KEY overrides generator.api_key so the
// secret never has to live in the file.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config file: %w", err)
		}
	}

	if key := os.Getenv("OPENAI_API_KEY"); key != "" {
		cfg.Generator.APIKey = key
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects configurations the server cannot start with.
func (c *Config) Validate() error {
	switch c.Store {
	case "memory", "file", "sqlite":
	default:
		return fmt.Errorf("unknown store %q (want memory, file or sqlite)", c.Store)
	}
	if c.Store == "file" && c.SessionsDir == "" {
		return fmt.Errorf("sessions_dir is required for the file store")
	}
	if c.Store == "sqlite" && c.SQLitePath == "" {
		return fmt.Errorf("sqlite_path is required for the sqlite store")
	}

	switch c.Generator.Kind {
	case "heuristic":
	case "openai":
		if c.Generator.APIKey == "" {
			return fmt.Errorf("generator.api_key (or OPENAI_API_KEY) is required for the openai generator")
		}
	default:
		return fmt.Errorf("unknown generator %q (want heuristic or openai)", c.Generator.Kind)
	}

	if c.QuestionCount <= 0 {
		return fmt.Errorf("question_count must be positive, got %d", c.QuestionCount)
	}
	if c.SessionTTL.Std() <= 0 {
		return fmt.Errorf("session_ttl must be positive")
	}
	if c.CleanupInterval.Std() <= 0 {
		return fmt.Errorf("cleanup_interval must be positive")
	}
	if c.RateLimit.PerSecond <= 0 || c.RateLimit.Burst <= 0 {
		return fmt.Errorf("rate_limit values must be positive")
	}
	return nil
}

// Addr returns the host:port the HTTP server binds to.
func (c *Config) Addr() string {
	return c.Host + ":" + c.Port
}
