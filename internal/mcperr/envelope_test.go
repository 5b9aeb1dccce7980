package mcperr

import (
	"errors"
	"fmt"
	"testing"

	"gotest.tools/v3/assert"

	"github.com/codex-k8s/mcp-exec/internal/protocol"
)

func TestStatusForToolKind(t *testing.T) {
	cases := map[string]int{
		"bad-input":          400,
		"invalid-parameters": 400,
		"not-found":          404,
		"NOT_FOUND":          404,
		"invalid-state":      422,
		"schema-error":       422,
		"internal":           500,
		"":                   500,
		"something-new":      500,
	}
	for kind, want := range cases {
		assert.Equal(t, StatusForToolKind(kind), want, kind)
	}
}

func TestEnvelopeMapping(t *testing.T) {
	cases := []struct {
		name   string
		err    error
		code   string
		status int
	}{
		{"tool not found", ToolError(StatusForToolKind("not-found"), "no such city"), protocol.CodeToolError, 404},
		{"trap", RouterError("call-tool trapped", errors.New("wasm error: unreachable")), protocol.CodeRouterError, 502},
		{"bad operation", ConfigError("unsupported operation value: frobnicate", nil), protocol.CodeConfigError, 400},
		{"resolution", ResolutionFailed("weather", false, errors.New("missing")), protocol.CodeConfigError, 404},
		{"verification", VerificationFailed("weather", "digest mismatch"), protocol.CodeConfigError, 403},
		{"unsupported", Unsupported("weather", []string{"memory"}), protocol.CodeRouterError, 501},
		{"plain error", errors.New("boom"), protocol.CodeRouterError, 502},
		{"wrapped", fmt.Errorf("attempt 2: %w", ToolError(422, "bad state")), protocol.CodeToolError, 422},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			env := Envelope(tc.err, protocol.Latest)
			assert.Assert(t, !env.OK)
			assert.Equal(t, env.Error.Code, tc.code)
			assert.Equal(t, env.Error.Status, tc.status)
			assert.Equal(t, env.Error.Protocol, "2025-06-18")
		})
	}
}

func TestUnsupportedKeepsExportsVerbatim(t *testing.T) {
	exports := []string{"_start", "memory", "run"}
	env := Envelope(Unsupported("weather", exports), protocol.Latest)

	details, ok := env.Error.Details.(map[string]any)
	assert.Assert(t, ok)
	assert.DeepEqual(t, details["exports"], exports)
}

func TestTransientFlagReachesDetails(t *testing.T) {
	err := &Error{Kind: KindRouterError, Message: "legacy entry trapped", Transient: true}
	env := Envelope(err.WithTool("echo"), protocol.Latest)

	assert.Equal(t, env.Error.Tool, "echo")
	details := env.Error.Details.(map[string]any)
	assert.Equal(t, details["transient"], true)
	assert.Assert(t, IsTransient(fmt.Errorf("wrap: %w", err)))
}
