package runtime

import (
	"time"

	"github.com/codex-k8s/mcp-exec/internal/describe"
	"github.com/codex-k8s/mcp-exec/internal/resolver"
	"github.com/codex-k8s/mcp-exec/internal/sandbox"
	"github.com/codex-k8s/mcp-exec/internal/secrets"
	"github.com/codex-k8s/mcp-exec/internal/verify"
)

// Runtime policy defaults.
const (
	DefaultMemoryLimitPages = 1024 // 64 MiB
	DefaultPerCallTimeout   = 30 * time.Second
	DefaultMaxAttempts      = 3
	DefaultBaseBackoff      = 100 * time.Millisecond
	DefaultMaxBackoff       = 2 * time.Second
)

// ExecConfig is the execution configuration shared by every request.
type ExecConfig struct {
	// Store resolves component locators.
	Store resolver.Source
	// Verify is the verification policy.
	Verify verify.Policy
	// Runtime bounds sandbox execution and retries.
	Runtime RuntimePolicy
	// NetworkEnabled gates all network access.
	NetworkEnabled bool
	// Secrets backs the get-secret capability. Nil disables it.
	Secrets secrets.Store
	// Components holds per-component declarations keyed by locator.
	Components map[string]ComponentConfig
}

// RuntimePolicy bounds sandbox execution.
type RuntimePolicy struct {
	// MemoryLimitPages caps guest memory in 64KiB pages.
	MemoryLimitPages uint32
	// PerCallTimeout bounds one export call.
	PerCallTimeout time.Duration
	// WallClockTimeout bounds a whole request including retries.
	WallClockTimeout time.Duration
	// MaxAttempts is the number of attempts for transient failures.
	MaxAttempts int
	// BaseBackoff is the first retry delay.
	BaseBackoff time.Duration
	// MaxBackoff caps retry delays.
	MaxBackoff time.Duration
	// Grants are the default capabilities of every component.
	Grants sandbox.Grants
	// ValidateArguments checks call arguments against tool input schemas.
	ValidateArguments bool
}

// WithDefaults fills zero values.
func (p RuntimePolicy) WithDefaults() RuntimePolicy {
	if p.MemoryLimitPages == 0 {
		p.MemoryLimitPages = DefaultMemoryLimitPages
	}
	if p.PerCallTimeout == 0 {
		p.PerCallTimeout = DefaultPerCallTimeout
	}
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = DefaultMaxAttempts
	}
	if p.BaseBackoff <= 0 {
		p.BaseBackoff = DefaultBaseBackoff
	}
	if p.MaxBackoff <= 0 {
		p.MaxBackoff = DefaultMaxBackoff
	}
	if p.MaxBackoff < p.BaseBackoff {
		p.MaxBackoff = p.BaseBackoff
	}
	return p
}

// ComponentConfig declares how one component is called.
type ComponentConfig struct {
	// LegacyEntry overrides the legacy entry export name.
	LegacyEntry string
	// Secrets are declared in addition to the describe document.
	Secrets []describe.SecretRequirement
	// Grants override the runtime default grants when set.
	Grants *sandbox.Grants
}

func (c ExecConfig) component(locator string) ComponentConfig {
	return c.Components[locator]
}

func (c ExecConfig) grants(locator string) sandbox.Grants {
	if comp := c.component(locator); comp.Grants != nil {
		return *comp.Grants
	}
	return c.Runtime.Grants
}
