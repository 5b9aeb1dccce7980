package describe

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"gotest.tools/v3/assert"

	"github.com/codex-k8s/mcp-exec/internal/sandbox"
	"github.com/codex-k8s/mcp-exec/internal/sandbox/sandboxtest"
)

func TestParseSecretRequirements(t *testing.T) {
	meta, err := Parse([]byte(`{
		"name": "demo",
		"secret_requirements": [
			{"key": "api-key", "required": false, "format": "json",
			 "scope": {"env": "dev", "tenant": "acme"}, "description": "auth key"},
			{"name": "api-key", "scope": {"env": "dev", "tenant": "acme"}},
			{"key": "api-key", "env": "prod", "tenant": "acme", "team": "ops", "examples": ["x", 1]},
			{"key": "bad key"},
			42
		]
	}`), nil)
	assert.NilError(t, err)
	assert.Assert(t, !meta.LegacySecrets)
	assert.Equal(t, len(meta.Secrets), 2)

	first := meta.Secrets[0]
	assert.Equal(t, first.Key, "api-key")
	assert.Assert(t, !first.Required)
	assert.Equal(t, first.Format, FormatJSON)
	assert.DeepEqual(t, first.Scope, Scope{Env: "dev", Tenant: "acme"})
	assert.Equal(t, first.Description, "auth key")

	second := meta.Secrets[1]
	assert.Assert(t, second.Required)
	assert.DeepEqual(t, second.Scope, Scope{Env: "prod", Tenant: "acme", Team: "ops"})
	assert.DeepEqual(t, second.Examples, []string{"x", "1"})
}

func TestParseLegacyListSecrets(t *testing.T) {
	meta, err := Parse([]byte(`{"list_secrets": ["token", "secondary", "token"]}`), nil)
	assert.NilError(t, err)
	assert.Assert(t, meta.LegacySecrets)
	assert.Equal(t, len(meta.Secrets), 2)
	for _, req := range meta.Secrets {
		assert.Assert(t, req.Required)
		assert.Equal(t, req.Format, FormatText)
		assert.DeepEqual(t, req.Scope, Scope{Env: RuntimeScope, Tenant: RuntimeScope})
	}
}

func TestParseNoSecrets(t *testing.T) {
	meta, err := Parse([]byte(`{"capabilities": ["http", 3]}`), nil)
	assert.NilError(t, err)
	assert.DeepEqual(t, meta.Secrets, []SecretRequirement{})
	assert.DeepEqual(t, meta.Capabilities, []string{"http"})

	_, err = Parse([]byte(`[]`), nil)
	assert.ErrorContains(t, err, "decode describe document")
}

func TestConfigSchema(t *testing.T) {
	meta, err := Parse([]byte(`{
		"config_schema": {"type": "object", "properties": {"units": {"enum": ["c", "f"]}}},
		"defaults": {"units": "c"}
	}`), nil)
	assert.NilError(t, err)
	assert.Equal(t, string(meta.Defaults), `{"units": "c"}`)
	assert.NilError(t, meta.ValidateConfig(json.RawMessage(`{"units":"f"}`)))
	assert.Assert(t, meta.ValidateConfig(json.RawMessage(`{"units":"k"}`)) != nil)

	dropped, err := Parse([]byte(`{"config_schema": {"type": 5}}`), nil)
	assert.NilError(t, err)
	assert.Assert(t, dropped.ConfigSchema == nil)
	assert.NilError(t, dropped.ValidateConfig(json.RawMessage(`{}`)))

	mismatched, err := Parse([]byte(`{
		"config_schema": {"type": "object", "properties": {"units": {"enum": ["c", "f"]}}},
		"defaults": {"units": "kelvin"}
	}`), nil)
	assert.NilError(t, err)
	assert.Assert(t, mismatched.ConfigSchema != nil)
	assert.Assert(t, mismatched.Defaults == nil)
}

func TestDescribeThroughSandbox(t *testing.T) {
	host := sandboxtest.NewHost()
	ctx := context.Background()

	plain, err := host.Load(ctx, host.Register("plain", sandboxtest.EchoRouter()))
	assert.NilError(t, err)
	assert.Assert(t, Describe(ctx, plain, sandbox.Imports{}, nil) == nil)

	described, err := host.Load(ctx, host.Register("described",
		sandboxtest.WithDescribe(sandboxtest.EchoRouter(), `{"secret_requirements":["token"]}`)))
	assert.NilError(t, err)
	meta := Describe(ctx, described, sandbox.Imports{}, nil)
	assert.Assert(t, meta != nil)
	assert.Equal(t, meta.Secrets[0].Key, "token")

	faulty := sandboxtest.EchoRouter()
	faulty.Exports[sandbox.ExportDescribe] = func(context.Context, sandbox.Imports, [][]byte) ([]byte, error) {
		return nil, errors.New("unreachable")
	}
	faultyMod, err := host.Load(ctx, host.Register("faulty", faulty))
	assert.NilError(t, err)
	assert.Assert(t, Describe(ctx, faultyMod, sandbox.Imports{}, nil) == nil)
}
