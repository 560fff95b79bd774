// Package config provides application configuration for the server and CLI
// binaries: a YAML file, overridden by SGR_* environment variables. Library
// packages never read configuration themselves; values are threaded in
// explicitly at construction.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/sgrlabs/sgragent/agent"
)

// Config holds all application configuration.
type Config struct {
	Server  ServerConfig             `yaml:"server"`
	Store   StoreConfig              `yaml:"store"`
	Gateway GatewayConfig            `yaml:"gateway"`
	Agents  map[string]AgentOverride `yaml:"agents"`
	Logging LoggingConfig            `yaml:"logging"`
}

// ServerConfig controls the HTTP surface.
type ServerConfig struct {
	Addr string `yaml:"addr"`
}

// StoreConfig selects the session store backend.
type StoreConfig struct {
	// Driver is "memory" or "sqlite".
	Driver string `yaml:"driver"`
	// Path is the database file for the sqlite driver.
	Path string `yaml:"path"`
}

// GatewayConfig selects and parameterizes the model backend.
type GatewayConfig struct {
	// Provider is "openai" or "anthropic".
	Provider    string  `yaml:"provider"`
	Model       string  `yaml:"model"`
	BaseURL     string  `yaml:"base_url"`
	APIKey      string  `yaml:"api_key"`
	Temperature float64 `yaml:"temperature"`
	MaxTokens   int     `yaml:"max_tokens"`
}

// AgentOverride adjusts a variant preset. Zero values keep the preset's.
type AgentOverride struct {
	Instructions         string   `yaml:"instructions"`
	MaxIterations        int      `yaml:"max_iterations"`
	MaxSearches          int      `yaml:"max_searches"`
	MaxClarifications    int      `yaml:"max_clarifications"`
	MaxHistoryMessages   int      `yaml:"max_history_messages"`
	ClarificationTimeout Duration `yaml:"clarification_timeout"`
	MaxToolFailures      int      `yaml:"max_tool_failures"`
	WorkingDirectory     string   `yaml:"working_directory"`
}

// LoggingConfig controls log output at the binaries.
type LoggingConfig struct {
	// Level is "debug", "info", "warn" or "error".
	Level string `yaml:"level"`
}

// Duration is a time.Duration that unmarshals from YAML strings like "5m".
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
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

// Default returns the built-in configuration used when no file is present.
func Default() *Config {
	return &Config{
		Server: ServerConfig{Addr: ":8080"},
		Store:  StoreConfig{Driver: "memory", Path: "./data/sessions.db"},
		Gateway: GatewayConfig{
			Provider:    "openai",
			Model:       "gpt-4o",
			Temperature: 0.4,
			MaxTokens:   8000,
		},
		Logging: LoggingConfig{Level: "info"},
	}
}

// Load reads the YAML file at path (skipped when path is empty or the file
// does not exist), applies SGR_* environment overrides and validates the
// result.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("parse config %s: %w", path, err)
			}
		case os.IsNotExist(err):
			// defaults + environment only
		default:
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	c.Server.Addr = getEnv("SGR_ADDR", c.Server.Addr)
	c.Store.Driver = getEnv("SGR_STORE_DRIVER", c.Store.Driver)
	c.Store.Path = getEnv("SGR_STORE_PATH", c.Store.Path)
	c.Gateway.Provider = getEnv("SGR_PROVIDER", c.Gateway.Provider)
	c.Gateway.Model = getEnv("SGR_MODEL", c.Gateway.Model)
	c.Gateway.BaseURL = getEnv("SGR_BASE_URL", c.Gateway.BaseURL)
	c.Gateway.Temperature = getEnvFloat("SGR_TEMPERATURE", c.Gateway.Temperature)
	c.Gateway.MaxTokens = getEnvInt("SGR_MAX_TOKENS", c.Gateway.MaxTokens)
	c.Logging.Level = getEnv("SGR_LOG_LEVEL", c.Logging.Level)

	if c.Gateway.APIKey == "" {
		c.Gateway.APIKey = getEnv("SGR_API_KEY", "")
	}
	if c.Gateway.APIKey == "" {
		switch c.Gateway.Provider {
		case "anthropic":
			c.Gateway.APIKey = getEnv("ANTHROPIC_API_KEY", "")
		default:
			c.Gateway.APIKey = getEnv("OPENAI_API_KEY", "")
		}
	}
}

// Validate checks every field the binaries cannot run without.
func (c *Config) Validate() error {
	if c.Server.Addr == "" {
		return fmt.Errorf("server.addr cannot be empty")
	}
	switch c.Store.Driver {
	case "memory":
	case "sqlite":
		if c.Store.Path == "" {
			return fmt.Errorf("store.path cannot be empty for the sqlite driver")
		}
	default:
		return fmt.Errorf("unknown store.driver %q", c.Store.Driver)
	}
	switch c.Gateway.Provider {
	case "openai", "anthropic":
	default:
		return fmt.Errorf("unknown gateway.provider %q", c.Gateway.Provider)
	}
	if c.Gateway.Model == "" {
		return fmt.Errorf("gateway.model cannot be empty")
	}
	if c.Gateway.MaxTokens <= 0 {
		return fmt.Errorf("gateway.max_tokens must be > 0")
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("unknown logging.level %q", c.Logging.Level)
	}

	for variant := range c.Agents {
		if _, err := agent.VariantConfig(variant); err != nil {
			return err
		}
	}
	return nil
}

// AgentConfig resolves a variant preset with this configuration's overrides
// applied.
func (c *Config) AgentConfig(variant string) (agent.Config, error) {
	base, err := agent.VariantConfig(variant)
	if err != nil {
		return agent.Config{}, err
	}

	ov, ok := c.Agents[variant]
	if !ok {
		return base, nil
	}

	if ov.Instructions != "" {
		base.Instructions = ov.Instructions
	}
	if ov.MaxIterations != 0 {
		base.MaxIterations = ov.MaxIterations
	}
	if ov.MaxSearches != 0 {
		base.MaxSearches = ov.MaxSearches
	}
	if ov.MaxClarifications != 0 {
		base.MaxClarifications = ov.MaxClarifications
	}
	if ov.MaxHistoryMessages != 0 {
		base.MaxHistoryMessages = ov.MaxHistoryMessages
	}
	if ov.ClarificationTimeout != 0 {
		base.ClarificationTimeout = time.Duration(ov.ClarificationTimeout)
	}
	if ov.MaxToolFailures != 0 {
		base.MaxToolFailures = ov.MaxToolFailures
	}
	if ov.WorkingDirectory != "" {
		base.WorkingDirectory = ov.WorkingDirectory
	}
	return base, nil
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	n, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return fallback
	}
	return n
}

func getEnvFloat(key string, fallback float64) float64 {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	f, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
	if err != nil {
		return fallback
	}
	return f
}
