package runtime

import (
	"testing"
	"time"

	"gotest.tools/v3/assert"

	"github.com/codex-k8s/mcp-exec/internal/sandbox"
)

func TestRuntimePolicyDefaults(t *testing.T) {
	p := RuntimePolicy{BaseBackoff: 5 * time.Second}.WithDefaults()
	assert.Equal(t, p.MemoryLimitPages, uint32(DefaultMemoryLimitPages))
	assert.Equal(t, p.MaxAttempts, DefaultMaxAttempts)
	assert.Equal(t, p.PerCallTimeout, DefaultPerCallTimeout)
	assert.Equal(t, p.MaxBackoff, 5*time.Second, "max backoff never drops below the base")
}

func TestComponentGrantsOverride(t *testing.T) {
	cfg := ExecConfig{
		Runtime: RuntimePolicy{Grants: sandbox.Grants{Env: map[string]string{"A": "1"}}},
		Components: map[string]ComponentConfig{
			"net": {Grants: &sandbox.Grants{Network: true}},
		},
	}
	assert.Assert(t, cfg.grants("net").Network)
	assert.Equal(t, cfg.grants("other").Env["A"], "1")
	assert.Assert(t, !cfg.grants("other").Network)
}
