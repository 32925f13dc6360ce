// ABOUTME: Configuration loading and parsing for inferd.
// ABOUTME: Supports YAML files with environment variable expansion and duration parsing.

package config

import (
	"fmt"
	"os"
	"regexp"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the complete inferd configuration.
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Engine     EngineConfig     `yaml:"engine"`
	Database   DatabaseConfig   `yaml:"database"`
	Generation GenerationConfig `yaml:"generation"`
	Logging    LoggingConfig    `yaml:"logging"`
}

// ServerConfig holds the HTTP listener configuration.
type ServerConfig struct {
	HTTPAddr string `yaml:"http_addr"`
}

// EngineConfig selects and configures the generation backend.
type EngineConfig struct {
	// Type selects the backend adapter. Currently "openai" (any
	// OpenAI-compatible server: llama.cpp --server, LM Studio, vLLM, hosted).
	Type string `yaml:"type"`
	// Model is the backend model identifier, also served on /v1/models.
	Model string `yaml:"model"`
	// BaseURL points at the backend. Empty means the hosted OpenAI API.
	BaseURL string `yaml:"base_url"`
	// APIKey is sent as a bearer token. Local backends usually ignore it.
	APIKey string `yaml:"api_key"`
	// OwnedBy is reported in /v1/models. Defaults to "inferd".
	OwnedBy string `yaml:"owned_by"`
}

// DatabaseConfig holds completion store configuration.
type DatabaseConfig struct {
	Path string `yaml:"path"`
}

// GenerationConfig holds per-generation limits.
type GenerationConfig struct {
	Timeout time.Duration `yaml:"-"`

	// Raw string value for YAML unmarshaling
	TimeoutRaw string `yaml:"timeout"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Load reads a configuration file from the given path and returns a parsed
// Config. Environment variables in the format ${VAR_NAME} are expanded.
// Duration strings are parsed into time.Duration values.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	expandedData := expandEnvVars(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expandedData), &cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	if err := parseDurations(&cfg); err != nil {
		return nil, fmt.Errorf("parsing durations: %w", err)
	}

	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return &cfg, nil
}

// expandEnvVars replaces ${VAR_NAME} patterns with the corresponding
// environment variable values. Unset variables expand to the empty string.
func expandEnvVars(s string) string {
	re := regexp.MustCompile(`\$\{([^}]+)\}`)

	return re.ReplaceAllStringFunc(s, func(match string) string {
		varName := re.FindStringSubmatch(match)[1]
		return os.Getenv(varName)
	})
}

func (c *Config) applyDefaults() {
	if c.Engine.Type == "" {
		c.Engine.Type = "openai"
	}
	if c.Engine.OwnedBy == "" {
		c.Engine.OwnedBy = "inferd"
	}
	if c.Database.Path == "" {
		c.Database.Path = ":memory:"
	}
}

// Validate checks that all required configuration fields are present and
// valid. Returns an error describing the first validation failure.
func (c *Config) Validate() error {
	if c.Server.HTTPAddr == "" {
		return fmt.Errorf("server.http_addr is required")
	}
	if c.Engine.Model == "" {
		return fmt.Errorf("engine.model is required")
	}
	if c.Engine.Type != "openai" {
		return fmt.Errorf("engine.type %q is not supported", c.Engine.Type)
	}
	return nil
}

func parseDurations(cfg *Config) error {
	var err error

	if cfg.Generation.TimeoutRaw != "" {
		cfg.Generation.Timeout, err = time.ParseDuration(cfg.Generation.TimeoutRaw)
		if err != nil {
			return fmt.Errorf("parsing generation timeout %q: %w", cfg.Generation.TimeoutRaw, err)
		}
	}

	return nil
}
