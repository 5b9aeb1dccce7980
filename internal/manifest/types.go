package manifest

import (
	"github.com/codex-k8s/mcp-exec/internal/describe"
	"github.com/codex-k8s/mcp-exec/internal/sandbox"
	"github.com/codex-k8s/mcp-exec/internal/verify"
)

// Store types.
const (
	StoreLocal = "local"
	StoreHTTP  = "http"
)

// Secret store types.
const (
	SecretsNone = "none"
	SecretsEnv  = "env"
	SecretsMap  = "map"
)

// Transports.
const (
	TransportHTTP  = "http"
	TransportStdio = "stdio"
)

// Manifest is the top-level execution manifest.
type Manifest struct {
	// Server describes the MCP server settings used by serve.
	Server ServerConfig `yaml:"server" toml:"server"`
	// Store selects where component binaries come from.
	Store StoreConfig `yaml:"store" toml:"store"`
	// Verify is the verification policy.
	Verify verify.Policy `yaml:"verify" toml:"verify"`
	// Runtime bounds execution.
	Runtime RuntimeConfig `yaml:"runtime" toml:"runtime"`
	// Network enables outbound network access for sources and guests.
	Network bool `yaml:"network" toml:"network"`
	// Secrets selects the secret store.
	Secrets SecretsConfig `yaml:"secrets" toml:"secrets"`
	// Tenant scopes calls made through serve.
	Tenant *TenantConfig `yaml:"tenant" toml:"tenant"`
	// Components declares per-component settings keyed by locator.
	Components map[string]ComponentConfig `yaml:"components" toml:"components"`
}

// ServerConfig defines MCP server settings.
type ServerConfig struct {
	// Name is the MCP server name.
	Name string `yaml:"name" toml:"name"`
	// Version is the MCP server version.
	Version string `yaml:"version" toml:"version"`
	// Transport selects the server transport ("http" or "stdio").
	Transport string `yaml:"transport" toml:"transport"`
	// ShutdownTimeout overrides graceful shutdown duration.
	ShutdownTimeout string `yaml:"shutdown_timeout" toml:"shutdown_timeout"`
	// Idempotency configures the call cache.
	Idempotency IdempotencyConfig `yaml:"idempotency_cache" toml:"idempotency_cache"`
	// HTTP configures HTTP transport.
	HTTP HTTPConfig `yaml:"http" toml:"http"`
}

// HTTPConfig configures the HTTP transport.
type HTTPConfig struct {
	Listen       string `yaml:"listen" toml:"listen"`
	Path         string `yaml:"path" toml:"path"`
	ReadTimeout  string `yaml:"read_timeout" toml:"read_timeout"`
	WriteTimeout string `yaml:"write_timeout" toml:"write_timeout"`
	IdleTimeout  string `yaml:"idle_timeout" toml:"idle_timeout"`
	// Stateless disables session tracking.
	Stateless bool `yaml:"stateless" toml:"stateless"`
}

// IdempotencyConfig configures caching of idempotent calls.
type IdempotencyConfig struct {
	Enabled    bool   `yaml:"enabled" toml:"enabled"`
	TTL        string `yaml:"ttl" toml:"ttl"`
	MaxEntries int    `yaml:"max_entries" toml:"max_entries"`
}

// StoreConfig selects the artifact source.
type StoreConfig struct {
	// Type is local or http.
	Type string `yaml:"type" toml:"type"`
	// Root is the local tool store directory.
	Root string `yaml:"root" toml:"root"`
	// Locator is the component served by an http store.
	Locator string `yaml:"locator" toml:"locator"`
	// URL is the binary location of an http store.
	URL string `yaml:"url" toml:"url"`
	// Timeout bounds one fetch.
	Timeout string `yaml:"timeout" toml:"timeout"`
	// RatePerMinute limits fetches. Zero disables the limit.
	RatePerMinute int `yaml:"rate_per_minute" toml:"rate_per_minute"`
}

// RuntimeConfig bounds execution. Durations use time.ParseDuration syntax.
type RuntimeConfig struct {
	MemoryLimitPages  uint32         `yaml:"memory_limit_pages" toml:"memory_limit_pages"`
	PerCallTimeout    string         `yaml:"per_call_timeout" toml:"per_call_timeout"`
	WallClockTimeout  string         `yaml:"wall_clock_timeout" toml:"wall_clock_timeout"`
	MaxAttempts       int            `yaml:"max_attempts" toml:"max_attempts"`
	BaseBackoff       string         `yaml:"base_backoff" toml:"base_backoff"`
	MaxBackoff        string         `yaml:"max_backoff" toml:"max_backoff"`
	ValidateArguments bool           `yaml:"validate_arguments" toml:"validate_arguments"`
	Grants            sandbox.Grants `yaml:"grants" toml:"grants"`
}

// SecretsConfig selects the secret store.
type SecretsConfig struct {
	// Type is none, env or map.
	Type string `yaml:"type" toml:"type"`
	// Prefix is the environment prefix of an env store.
	Prefix string `yaml:"prefix" toml:"prefix"`
	// Values seed a map store.
	Values []SecretValue `yaml:"values" toml:"values"`
}

// SecretValue is one seeded secret of a map store.
type SecretValue struct {
	Key    string `yaml:"key" toml:"key"`
	Value  string `yaml:"value" toml:"value"`
	Env    string `yaml:"env" toml:"env"`
	Tenant string `yaml:"tenant" toml:"tenant"`
	Team   string `yaml:"team" toml:"team"`
}

// TenantConfig is the fixed tenant scope of a served component.
type TenantConfig struct {
	Env    string `yaml:"env" toml:"env"`
	Tenant string `yaml:"tenant" toml:"tenant"`
	Team   string `yaml:"team" toml:"team"`
	User   string `yaml:"user" toml:"user"`
}

// ComponentConfig declares settings for one component.
type ComponentConfig struct {
	// LegacyEntry overrides the legacy entry export.
	LegacyEntry string `yaml:"legacy_entry" toml:"legacy_entry"`
	// Secrets are declared secret requirements.
	Secrets []describe.SecretRequirement `yaml:"secrets" toml:"secrets"`
	// Grants override the runtime grants.
	Grants *sandbox.Grants `yaml:"grants" toml:"grants"`
}
