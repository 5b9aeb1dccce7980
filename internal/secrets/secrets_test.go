package secrets

import (
	"context"
	"testing"

	"gotest.tools/v3/assert"

	"github.com/codex-k8s/mcp-exec/internal/describe"
	"github.com/codex-k8s/mcp-exec/internal/tenant"
)

func TestMapStoreScopes(t *testing.T) {
	ctx := context.Background()
	store := NewMapStore()
	acme := tenant.Ctx{Env: "dev", Tenant: "acme"}
	globex := tenant.Ctx{Env: "dev", Tenant: "globex"}

	assert.NilError(t, store.Write(ctx, acme, "token", []byte("a")))
	value, err := store.Read(ctx, acme, "token")
	assert.NilError(t, err)
	assert.Equal(t, string(value), "a")

	_, err = store.Read(ctx, globex, "token")
	assert.ErrorIs(t, err, ErrNotFound)

	assert.NilError(t, store.Delete(ctx, acme, "token"))
	_, err = store.Read(ctx, acme, "token")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestEnvStore(t *testing.T) {
	t.Setenv("MCP_SECRET_API_KEY", "k")
	store := EnvStore{Prefix: "MCP_SECRET_"}

	value, err := store.Read(context.Background(), tenant.Ctx{}, "api-key")
	assert.NilError(t, err)
	assert.Equal(t, string(value), "k")
	assert.ErrorIs(t, store.Write(context.Background(), tenant.Ctx{}, "x", nil), ErrReadOnly)
}

func TestGate(t *testing.T) {
	ctx := context.Background()
	store := NewMapStore()
	tc := tenant.Ctx{Env: "dev", Tenant: "acme"}
	assert.NilError(t, store.Write(ctx, tc, "token", []byte("t")))
	assert.NilError(t, store.Write(ctx, tc, "other", []byte("o")))

	declared := []describe.SecretRequirement{
		{Key: "token", Scope: describe.Scope{Env: describe.RuntimeScope, Tenant: describe.RuntimeScope}},
		{Key: "other", Scope: describe.Scope{Env: "prod", Tenant: "acme"}},
	}

	gate := Gate(store, declared, &tc, nil)
	value, ok := gate(ctx, "token")
	assert.Assert(t, ok)
	assert.Equal(t, string(value), "t")

	_, ok = gate(ctx, "other")
	assert.Assert(t, !ok, "scope does not match the tenant")
	_, ok = gate(ctx, "undeclared")
	assert.Assert(t, !ok)

	_, ok = Gate(nil, declared, &tc, nil)(ctx, "token")
	assert.Assert(t, !ok, "no store configured")
	_, ok = Gate(store, declared, nil, nil)(ctx, "token")
	assert.Assert(t, !ok, "no tenant")
}
