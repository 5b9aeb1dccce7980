package manifest

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/codex-k8s/mcp-exec/internal/config"
	"github.com/codex-k8s/mcp-exec/internal/idempotency"
	"github.com/codex-k8s/mcp-exec/internal/resolver"
	"github.com/codex-k8s/mcp-exec/internal/runtime"
	"github.com/codex-k8s/mcp-exec/internal/secrets"
	"github.com/codex-k8s/mcp-exec/internal/tenant"
	"github.com/codex-k8s/mcp-exec/internal/timeutil"
)

// ApplyEnv overlays process settings on the manifest.
func (m *Manifest) ApplyEnv(cfg config.Config) {
	if strings.TrimSpace(cfg.ToolStore) != "" {
		m.Store.Type = StoreLocal
		m.Store.Root = cfg.ToolStore
	}
	if cfg.NetworkEnabled != nil {
		m.Network = *cfg.NetworkEnabled
	}
	if m.Secrets.Type == SecretsEnv && cfg.SecretPrefix != "" {
		m.Secrets.Prefix = cfg.SecretPrefix
	}
	if !m.Server.Idempotency.Enabled {
		return
	}
	if m.Server.Idempotency.TTL == "" && cfg.CacheTTL > 0 {
		m.Server.Idempotency.TTL = cfg.CacheTTL.String()
	}
	if m.Server.Idempotency.MaxEntries == 0 {
		m.Server.Idempotency.MaxEntries = cfg.CacheMaxEntries
	}
}

// ExecConfig builds the runtime configuration described by the manifest.
func (m *Manifest) ExecConfig(ctx context.Context) (runtime.ExecConfig, error) {
	var store resolver.Source
	switch m.Store.Type {
	case StoreHTTP:
		store = resolver.NewHTTPFile(m.Store.Locator, m.Store.URL, m.Network, timeutil.ParseDurationOrDefault(m.Store.Timeout, 0), m.Store.RatePerMinute)
	default:
		store = resolver.LocalDir{Root: m.Store.Root}
	}

	secretStore, err := m.secretStore(ctx)
	if err != nil {
		return runtime.ExecConfig{}, err
	}

	rt := m.Runtime
	cfg := runtime.ExecConfig{
		Store:          store,
		Verify:         m.Verify,
		NetworkEnabled: m.Network,
		Secrets:        secretStore,
		Runtime: runtime.RuntimePolicy{
			MemoryLimitPages:  rt.MemoryLimitPages,
			PerCallTimeout:    timeutil.ParseDurationOrDefault(rt.PerCallTimeout, 0),
			WallClockTimeout:  timeutil.ParseDurationOrDefault(rt.WallClockTimeout, 0),
			MaxAttempts:       rt.MaxAttempts,
			BaseBackoff:       timeutil.ParseDurationOrDefault(rt.BaseBackoff, 0),
			MaxBackoff:        timeutil.ParseDurationOrDefault(rt.MaxBackoff, 0),
			Grants:            rt.Grants,
			ValidateArguments: rt.ValidateArguments,
		},
		Components: make(map[string]runtime.ComponentConfig, len(m.Components)),
	}
	for locator, comp := range m.Components {
		cfg.Components[locator] = runtime.ComponentConfig{
			LegacyEntry: comp.LegacyEntry,
			Secrets:     comp.Secrets,
			Grants:      comp.Grants,
		}
	}
	return cfg, nil
}

func (m *Manifest) secretStore(ctx context.Context) (secrets.Store, error) {
	switch m.Secrets.Type {
	case SecretsEnv:
		return secrets.EnvStore{Prefix: m.Secrets.Prefix}, nil
	case SecretsMap:
		store := secrets.NewMapStore()
		for _, value := range m.Secrets.Values {
			scope := tenant.Ctx{Env: value.Env, Tenant: value.Tenant, Team: value.Team}
			if err := store.Write(ctx, scope, value.Key, []byte(value.Value)); err != nil {
				return nil, fmt.Errorf("seed secret %s: %w", value.Key, err)
			}
		}
		return store, nil
	default:
		return nil, nil
	}
}

// Cache returns the idempotency cache, or nil when disabled.
func (m *Manifest) Cache() *idempotency.Cache {
	if !m.Server.Idempotency.Enabled {
		return nil
	}
	return idempotency.NewCache(timeutil.ParseDurationOrDefault(m.Server.Idempotency.TTL, time.Hour), m.Server.Idempotency.MaxEntries)
}

// TenantCtx returns the tenant scope used by serve, or nil.
func (m *Manifest) TenantCtx() *tenant.Ctx {
	if m.Tenant == nil {
		return nil
	}
	tc := tenant.New(m.Tenant.Env, m.Tenant.Tenant)
	tc.Team = m.Tenant.Team
	tc.User = m.Tenant.User
	return &tc
}

// ShutdownTimeout returns the configured graceful shutdown duration.
func (m *Manifest) ShutdownTimeout(def time.Duration) time.Duration {
	return timeutil.ParseDurationOrDefault(m.Server.ShutdownTimeout, def)
}
