package config

import (
	"testing"
	"time"

	"gotest.tools/v3/assert"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	assert.NilError(t, err)
	assert.Equal(t, cfg.Profile, "dev")
	assert.Equal(t, cfg.LogLevel, "info")
	assert.Equal(t, cfg.CacheTTL, time.Hour)
	assert.Assert(t, cfg.NetworkEnabled == nil)
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("MCP_EXEC_MANIFEST", "/etc/mcp-exec/manifest.toml")
	t.Setenv("MCP_EXEC_NETWORK", "true")
	t.Setenv("MCP_EXEC_CACHE_MAX_ENTRIES", "5")

	cfg, err := Load()
	assert.NilError(t, err)
	assert.Equal(t, cfg.ManifestPath, "/etc/mcp-exec/manifest.toml")
	assert.Assert(t, cfg.NetworkEnabled != nil && *cfg.NetworkEnabled)
	assert.Equal(t, cfg.CacheMaxEntries, 5)
}
