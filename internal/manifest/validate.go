package manifest

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/codex-k8s/mcp-exec/internal/sandbox"
	"github.com/codex-k8s/mcp-exec/internal/timeutil"
)

// Validate applies defaults and verifies required fields.
func Validate(m *Manifest) error {
	if m == nil {
		return fmt.Errorf("manifest is nil")
	}
	if err := validateServer(&m.Server); err != nil {
		return err
	}

	m.Store.Type = strings.ToLower(strings.TrimSpace(m.Store.Type))
	switch m.Store.Type {
	case "", StoreLocal:
		m.Store.Type = StoreLocal
		if strings.TrimSpace(m.Store.Root) == "" {
			m.Store.Root = "tools"
		}
	case StoreHTTP:
		if strings.TrimSpace(m.Store.Locator) == "" {
			return fmt.Errorf("store.locator is required for http stores")
		}
		parsed, err := url.Parse(strings.TrimSpace(m.Store.URL))
		if err != nil || parsed.Scheme == "" || parsed.Host == "" {
			return fmt.Errorf("store.url must be an absolute url")
		}
		if m.Store.RatePerMinute < 0 {
			return fmt.Errorf("store.rate_per_minute must be >= 0")
		}
	default:
		return fmt.Errorf("store.type must be local or http")
	}
	if err := checkDuration("store.timeout", m.Store.Timeout); err != nil {
		return err
	}

	if err := m.Verify.Validate(); err != nil {
		return fmt.Errorf("verify: %w", err)
	}

	rt := m.Runtime
	for field, value := range map[string]string{
		"runtime.per_call_timeout":   rt.PerCallTimeout,
		"runtime.wall_clock_timeout": rt.WallClockTimeout,
		"runtime.base_backoff":       rt.BaseBackoff,
		"runtime.max_backoff":        rt.MaxBackoff,
	} {
		if err := checkDuration(field, value); err != nil {
			return err
		}
	}
	if rt.MaxAttempts < 0 {
		return fmt.Errorf("runtime.max_attempts must be >= 0")
	}
	if err := validateMounts("runtime.grants", rt.Grants.Filesystem); err != nil {
		return err
	}

	m.Secrets.Type = strings.ToLower(strings.TrimSpace(m.Secrets.Type))
	switch m.Secrets.Type {
	case "", SecretsNone:
		m.Secrets.Type = SecretsNone
	case SecretsEnv:
		if m.Secrets.Prefix == "" {
			m.Secrets.Prefix = "MCP_SECRET_"
		}
	case SecretsMap:
		for i, value := range m.Secrets.Values {
			if strings.TrimSpace(value.Key) == "" {
				return fmt.Errorf("secrets.values[%d].key is required", i)
			}
		}
	default:
		return fmt.Errorf("secrets.type must be none, env or map")
	}

	if m.Tenant != nil && strings.TrimSpace(m.Tenant.Tenant) == "" {
		return fmt.Errorf("tenant.tenant is required when tenant is set")
	}

	for locator, comp := range m.Components {
		if strings.TrimSpace(locator) == "" {
			return fmt.Errorf("components: empty locator")
		}
		for i, secret := range comp.Secrets {
			if strings.TrimSpace(secret.Key) == "" {
				return fmt.Errorf("components.%s.secrets[%d].key is required", locator, i)
			}
		}
		if comp.Grants != nil {
			if err := validateMounts("components."+locator+".grants", comp.Grants.Filesystem); err != nil {
				return err
			}
		}
	}
	return nil
}

func validateServer(s *ServerConfig) error {
	if s.Name == "" {
		s.Name = "mcp-exec"
	}
	if s.Version == "" {
		s.Version = "dev"
	}
	s.Transport = strings.ToLower(strings.TrimSpace(s.Transport))
	switch s.Transport {
	case "":
		s.Transport = TransportStdio
	case TransportStdio, TransportHTTP:
	default:
		return fmt.Errorf("server.transport must be http or stdio")
	}
	if s.HTTP.Listen == "" {
		s.HTTP.Listen = ":8080"
	}
	if s.HTTP.Path == "" {
		s.HTTP.Path = "/mcp"
	}
	if !strings.HasPrefix(s.HTTP.Path, "/") {
		return fmt.Errorf("server.http.path must start with /")
	}
	for field, value := range map[string]string{
		"server.shutdown_timeout":   s.ShutdownTimeout,
		"server.http.read_timeout":  s.HTTP.ReadTimeout,
		"server.http.write_timeout": s.HTTP.WriteTimeout,
		"server.http.idle_timeout":  s.HTTP.IdleTimeout,
	} {
		if err := checkDuration(field, value); err != nil {
			return err
		}
	}
	if s.Idempotency.Enabled {
		if s.Idempotency.TTL == "" {
			s.Idempotency.TTL = "1h"
		}
		if s.Idempotency.MaxEntries == 0 {
			s.Idempotency.MaxEntries = 1000
		}
		if s.Idempotency.MaxEntries < 0 {
			return fmt.Errorf("server.idempotency_cache.max_entries must be >= 0")
		}
		if err := checkDuration("server.idempotency_cache.ttl", s.Idempotency.TTL); err != nil {
			return err
		}
	}
	return nil
}

func validateMounts(field string, mounts []sandbox.Mount) error {
	for i, mount := range mounts {
		if strings.TrimSpace(mount.HostPath) == "" {
			return fmt.Errorf("%s.filesystem[%d].host_path is required", field, i)
		}
		if !strings.HasPrefix(mount.GuestPath, "/") {
			return fmt.Errorf("%s.filesystem[%d].guest_path must be absolute", field, i)
		}
	}
	return nil
}

func checkDuration(field, value string) error {
	if _, err := timeutil.ParseOptional(value); err != nil {
		return fmt.Errorf("%s is invalid: %w", field, err)
	}
	return nil
}
