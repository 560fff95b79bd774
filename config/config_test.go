package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.Server.Addr)
	assert.Equal(t, "memory", cfg.Store.Driver)
	assert.Equal(t, "openai", cfg.Gateway.Provider)
	assert.Equal(t, "info", cfg.Logging.Level)
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
server:
  addr: ":9999"
store:
  driver: sqlite
  path: /tmp/sessions.db
gateway:
  provider: anthropic
  model: claude-sonnet-4-5
  max_tokens: 4000
agents:
  research:
    max_iterations: 3
    clarification_timeout: 30s
logging:
  level: debug
`), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, ":9999", cfg.Server.Addr)
	assert.Equal(t, "sqlite", cfg.Store.Driver)
	assert.Equal(t, "anthropic", cfg.Gateway.Provider)
	assert.Equal(t, 4000, cfg.Gateway.MaxTokens)
	assert.Equal(t, "debug", cfg.Logging.Level)

	ac, err := cfg.AgentConfig("research")
	require.NoError(t, err)
	assert.Equal(t, 3, ac.MaxIterations)
	assert.Equal(t, 30*time.Second, ac.ClarificationTimeout)
	// untouched preset values survive
	assert.Equal(t, 4, ac.MaxSearches)
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.Equal(t, ":8080", cfg.Server.Addr)
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("SGR_ADDR", ":7000")
	t.Setenv("SGR_PROVIDER", "anthropic")
	t.Setenv("SGR_MAX_TOKENS", "512")
	t.Setenv("ANTHROPIC_API_KEY", "test-key")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, ":7000", cfg.Server.Addr)
	assert.Equal(t, "anthropic", cfg.Gateway.Provider)
	assert.Equal(t, 512, cfg.Gateway.MaxTokens)
	assert.Equal(t, "test-key", cfg.Gateway.APIKey)
}

func TestValidateRejections(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"empty addr", func(c *Config) { c.Server.Addr = "" }},
		{"unknown store driver", func(c *Config) { c.Store.Driver = "postgres" }},
		{"sqlite without path", func(c *Config) { c.Store.Driver = "sqlite"; c.Store.Path = "" }},
		{"unknown provider", func(c *Config) { c.Gateway.Provider = "llama" }},
		{"empty model", func(c *Config) { c.Gateway.Model = "" }},
		{"zero max tokens", func(c *Config) { c.Gateway.MaxTokens = 0 }},
		{"unknown log level", func(c *Config) { c.Logging.Level = "loud" }},
		{"unknown agent variant", func(c *Config) { c.Agents = map[string]AgentOverride{"poetry": {}} }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := Default()
			tc.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}
