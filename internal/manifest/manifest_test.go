package manifest

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"gotest.tools/v3/assert"

	"github.com/codex-k8s/mcp-exec/configs"
	"github.com/codex-k8s/mcp-exec/internal/config"
	"github.com/codex-k8s/mcp-exec/internal/resolver"
	"github.com/codex-k8s/mcp-exec/internal/secrets"
	"github.com/codex-k8s/mcp-exec/internal/tenant"
)

func TestEmbeddedProfilesLoad(t *testing.T) {
	names := configs.Names()
	assert.DeepEqual(t, names, []string{"dev.yaml", "strict.yaml"})
	for _, profile := range []string{"dev", "strict"} {
		name, data, err := configs.Load(profile)
		assert.NilError(t, err, profile)
		m, err := Load(name, data)
		assert.NilError(t, err, profile)
		assert.Equal(t, m.Store.Type, StoreLocal, profile)
	}
}

func TestDefaults(t *testing.T) {
	m, err := Load("m.yaml", []byte("server:\n  idempotency_cache:\n    enabled: true\n"))
	assert.NilError(t, err)
	assert.Equal(t, m.Server.Name, "mcp-exec")
	assert.Equal(t, m.Server.Transport, TransportStdio)
	assert.Equal(t, m.Server.HTTP.Path, "/mcp")
	assert.Equal(t, m.Server.Idempotency.TTL, "1h")
	assert.Equal(t, m.Server.Idempotency.MaxEntries, 1000)
	assert.Equal(t, m.Store.Root, "tools")
	assert.Equal(t, m.Secrets.Type, SecretsNone)
	assert.Assert(t, m.Cache() != nil)
	assert.Assert(t, m.TenantCtx() == nil)
}

func TestEmptyDocumentIsValid(t *testing.T) {
	m, err := Load("empty.yaml", nil)
	assert.NilError(t, err)
	assert.Equal(t, m.Store.Type, StoreLocal)
}

func TestUnknownFieldsRejected(t *testing.T) {
	_, err := Load("m.yaml", []byte("stroe:\n  type: local\n"))
	assert.ErrorContains(t, err, "parse yaml")

	_, err = Load("m.toml", []byte("[stroe]\ntype = \"local\"\n"))
	assert.ErrorContains(t, err, "unknown field")
}

func TestValidateRejects(t *testing.T) {
	cases := map[string]string{
		"store.type must be local or http":             "store:\n  type: s3\n",
		"store.locator is required":                    "store:\n  type: http\n  url: https://example.com/a.wasm\n",
		"store.url must be an absolute url":            "store:\n  type: http\n  locator: a\n  url: a.wasm\n",
		"runtime.per_call_timeout is invalid":          "runtime:\n  per_call_timeout: soon\n",
		"runtime.max_attempts must be >= 0":            "runtime:\n  max_attempts: -1\n",
		"server.transport must be http or stdio":       "server:\n  transport: grpc\n",
		"secrets.type must be none, env or map":        "secrets:\n  type: vault\n",
		"tenant.tenant is required":                    "tenant:\n  env: dev\n",
		"guest_path must be absolute":                  "runtime:\n  grants:\n    filesystem:\n      - host_path: /tmp\n        guest_path: data\n",
		"require_signed is set but no trusted signers": "verify:\n  require_signed: true\n",
	}
	for want, doc := range cases {
		_, err := Load("m.yaml", []byte(doc))
		assert.ErrorContains(t, err, want, doc)
	}
}

func TestTOMLManifestBuildsExecConfig(t *testing.T) {
	doc := `
network = true

[store]
type = "http"
locator = "weather"
url = "https://tools.example.com/weather.wasm"
rate_per_minute = 30

[runtime]
per_call_timeout = "5s"
max_attempts = 4
base_backoff = "50ms"

[runtime.grants]
network = false

[secrets]
type = "map"

[[secrets.values]]
key = "api-key"
value = "s3cr3t"
env = "dev"
tenant = "acme"

[components.weather]
legacy_entry = "run"

[[components.weather.secrets]]
key = "api-key"
required = true
`
	m, err := Load("exec.toml", []byte(doc))
	assert.NilError(t, err)

	ctx := context.Background()
	cfg, err := m.ExecConfig(ctx)
	assert.NilError(t, err)
	assert.Assert(t, cfg.NetworkEnabled)
	assert.Equal(t, cfg.Runtime.PerCallTimeout, 5*time.Second)
	assert.Equal(t, cfg.Runtime.MaxAttempts, 4)
	assert.Equal(t, cfg.Runtime.BaseBackoff, 50*time.Millisecond)

	src, ok := cfg.Store.(*resolver.HTTPFile)
	assert.Assert(t, ok)
	assert.Equal(t, src.Locator, "weather")
	assert.Assert(t, src.Enabled)

	comp := cfg.Components["weather"]
	assert.Equal(t, comp.LegacyEntry, "run")
	assert.Equal(t, len(comp.Secrets), 1)
	assert.Assert(t, comp.Secrets[0].Required)

	value, err := cfg.Secrets.Read(ctx, tenant.Ctx{Env: "dev", Tenant: "acme"}, "api-key")
	assert.NilError(t, err)
	assert.Equal(t, string(value), "s3cr3t")
}

func TestApplyEnvOverrides(t *testing.T) {
	m, err := Load("m.yaml", []byte("secrets:\n  type: env\nserver:\n  idempotency_cache:\n    enabled: true\n    ttl: \"\"\n"))
	assert.NilError(t, err)

	enabled := true
	m.ApplyEnv(config.Config{ToolStore: "/srv/tools", NetworkEnabled: &enabled, SecretPrefix: "X_", CacheMaxEntries: 7})
	assert.Equal(t, m.Store.Root, "/srv/tools")
	assert.Assert(t, m.Network)
	assert.Equal(t, m.Secrets.Prefix, "X_")

	cfg, err := m.ExecConfig(context.Background())
	assert.NilError(t, err)
	assert.DeepEqual(t, cfg.Store, resolver.LocalDir{Root: "/srv/tools"})
	assert.DeepEqual(t, cfg.Secrets, secrets.EnvStore{Prefix: "X_"}, cmp.AllowUnexported(secrets.EnvStore{}))
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "exec.yaml")
	assert.NilError(t, os.WriteFile(path, []byte("tenant:\n  env: dev\n  tenant: acme\n  team: ops\n"), 0o644))
	m, err := LoadFile(path)
	assert.NilError(t, err)
	tc := m.TenantCtx()
	assert.Equal(t, tc.Tenant, "acme")
	assert.Equal(t, tc.Team, "ops")
	assert.Assert(t, tc.CorrelationID != "")

	_, err = LoadFile(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.ErrorContains(t, err, "read manifest")
}

func TestRenderExpandsEnvironment(t *testing.T) {
	env := map[string]string{"TOOLS": "/srv/tools"}
	lookup := func(key string) (string, bool) {
		value, ok := env[key]
		return value, ok
	}

	out, err := Render("m.yaml", []byte(`root: {{ env "TOOLS" }}
level: {{ envOr "LEVEL" "info" | upper }}`), lookup)
	assert.NilError(t, err)
	assert.Equal(t, string(out), "root: /srv/tools\nlevel: INFO")

	_, err = Render("m.yaml", []byte(`a: {{ env "B" }} {{ env "A" }}`), lookup)
	assert.ErrorContains(t, err, "missing env vars: A, B")

	plain := []byte("store:\n  root: tools\n")
	out, err = Render("m.yaml", plain, lookup)
	assert.NilError(t, err)
	assert.Equal(t, string(out), string(plain))
}

func TestLoadRendersTemplates(t *testing.T) {
	t.Setenv("MCP_EXEC_TEST_ROOT", "/opt/tools")
	m, err := Load("m.yaml", []byte("store:\n  root: {{ env \"MCP_EXEC_TEST_ROOT\" }}\n"))
	assert.NilError(t, err)
	assert.Equal(t, m.Store.Root, "/opt/tools")
}
