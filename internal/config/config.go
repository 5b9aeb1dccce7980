package config

import (
	"time"

	"github.com/caarlos0/env/v11"
)

// Config stores environment-driven settings for the process.
type Config struct {
	// ManifestPath is the execution manifest (YAML or TOML). Empty selects
	// the embedded profile.
	ManifestPath string `env:"MCP_EXEC_MANIFEST"`
	// Profile selects an embedded manifest when ManifestPath is empty.
	Profile string `env:"MCP_EXEC_PROFILE" envDefault:"dev"`
	// ToolStore overrides the local tool store directory.
	ToolStore string `env:"MCP_EXEC_TOOL_STORE"`
	// NetworkEnabled overrides the manifest network flag when set.
	NetworkEnabled *bool `env:"MCP_EXEC_NETWORK"`
	// LogLevel sets the logger level.
	LogLevel string `env:"MCP_EXEC_LOG_LEVEL" envDefault:"info"`
	// SecretPrefix is the environment prefix read by the env secret store.
	SecretPrefix string `env:"MCP_EXEC_SECRET_PREFIX" envDefault:"MCP_SECRET_"`
	// CacheTTL controls how long idempotent envelopes are kept.
	CacheTTL time.Duration `env:"MCP_EXEC_CACHE_TTL" envDefault:"1h"`
	// CacheMaxEntries bounds the idempotency cache.
	CacheMaxEntries int `env:"MCP_EXEC_CACHE_MAX_ENTRIES" envDefault:"1000"`
	// ShutdownTimeout controls graceful shutdown duration.
	ShutdownTimeout time.Duration `env:"MCP_EXEC_SHUTDOWN_TIMEOUT" envDefault:"10s"`
}

// Load parses environment variables into Config.
func Load() (Config, error) {
	return env.ParseAs[Config]()
}
