package executor

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"gotest.tools/v3/assert"

	"github.com/codex-k8s/mcp-exec/internal/mcperr"
	"github.com/codex-k8s/mcp-exec/internal/protocol"
	"github.com/codex-k8s/mcp-exec/internal/sandbox"
	"github.com/codex-k8s/mcp-exec/internal/sandbox/sandboxtest"
)

func load(t *testing.T, host *sandboxtest.Host, name string, guest *sandboxtest.Guest) sandbox.Module {
	t.Helper()
	mod, err := host.Load(context.Background(), host.Register(name, guest))
	assert.NilError(t, err)
	return mod
}

func TestRouterListTools(t *testing.T) {
	host := sandboxtest.NewHost()
	mod := load(t, host, "echo", sandboxtest.EchoRouter())

	res, err := Router{}.ListTools(context.Background(), mod, sandbox.Imports{}, protocol.Latest)
	assert.NilError(t, err)
	assert.Equal(t, res.Kind, ResultTools)
	assert.Equal(t, len(res.Tools), 1)
	assert.Equal(t, res.Tools[0].Name, "echo")
	assert.Equal(t, *res.Tools[0].Title, "Echo")

	older, err := Router{}.ListTools(context.Background(), mod, sandbox.Imports{}, protocol.Revision20250326)
	assert.NilError(t, err)
	assert.Assert(t, older.Tools[0].Title == nil)
	assert.Equal(t, older.Envelope().List.Protocol, "2025-03-26")
}

func TestRouterCallEcho(t *testing.T) {
	host := sandboxtest.NewHost()
	mod := load(t, host, "echo", sandboxtest.EchoRouter())

	res, err := Router{}.CallTool(context.Background(), mod, sandbox.Imports{}, "echo", json.RawMessage(`{"msg":"hi"}`), protocol.Latest)
	assert.NilError(t, err)
	assert.Equal(t, res.Kind, ResultCompleted)
	assert.Equal(t, res.Call.Content[0].Text, `{"msg":"hi"}`)
	assert.Equal(t, string(res.Call.StructuredContent), `{"msg":"hi"}`)
	assert.Equal(t, len(res.Messages), 1)
	assert.Equal(t, host.Instances(), 1)
}

func TestRouterToolErrorStatus(t *testing.T) {
	host := sandboxtest.NewHost()
	mod := load(t, host, "echo", sandboxtest.EchoRouter())

	_, err := Router{}.CallTool(context.Background(), mod, sandbox.Imports{}, "nope", json.RawMessage(`{}`), protocol.Latest)
	mapped, ok := mcperr.As(err)
	assert.Assert(t, ok)
	assert.Equal(t, mapped.Kind, mcperr.KindToolError)
	assert.Equal(t, mapped.Status, 404)
	assert.Assert(t, !mapped.Transient)
}

func TestRouterElicitation(t *testing.T) {
	host := sandboxtest.NewHost()
	guest := sandboxtest.Router(nil, func(context.Context, sandbox.Imports, string, json.RawMessage) protocol.WireResponse {
		return protocol.WireResponse{Elicit: &protocol.WireElicitation{Message: "which city?", Schema: `{"type":"object"}`}}
	})
	mod := load(t, host, "ask", guest)

	res, err := Router{}.CallTool(context.Background(), mod, sandbox.Imports{}, "weather", json.RawMessage(`{}`), protocol.Latest)
	assert.NilError(t, err)
	assert.Equal(t, res.Kind, ResultElicitation)
	assert.Equal(t, res.Elicitation.Message, "which city?")
	assert.Assert(t, res.Envelope().OK)
}

func TestRouterTrapAndGarbage(t *testing.T) {
	host := sandboxtest.NewHost()
	trapping := sandboxtest.EchoRouter()
	trapping.Exports[sandbox.ExportCallTool] = func(context.Context, sandbox.Imports, [][]byte) ([]byte, error) {
		return nil, errors.New("unreachable")
	}
	mod := load(t, host, "trap", trapping)
	_, err := Router{}.CallTool(context.Background(), mod, sandbox.Imports{}, "echo", json.RawMessage(`{}`), protocol.Latest)
	mapped, _ := mcperr.As(err)
	assert.Equal(t, mapped.Kind, mcperr.KindRouterError)
	assert.Assert(t, !mapped.Transient)

	garbage := sandboxtest.EchoRouter()
	garbage.Exports[sandbox.ExportCallTool] = func(context.Context, sandbox.Imports, [][]byte) ([]byte, error) {
		return []byte("not json"), nil
	}
	mod = load(t, host, "garbage", garbage)
	_, err = Router{}.CallTool(context.Background(), mod, sandbox.Imports{}, "echo", json.RawMessage(`{}`), protocol.Latest)
	assert.ErrorContains(t, err, "decode call-tool response")
}

func TestRouterValidatesArguments(t *testing.T) {
	host := sandboxtest.NewHost()
	guest := sandboxtest.Router([]protocol.WireTool{{
		Name:        "weather",
		InputSchema: `{"type":"object","required":["city"]}`,
	}}, func(context.Context, sandbox.Imports, string, json.RawMessage) protocol.WireResponse {
		return protocol.WireResponse{Completed: &protocol.WireToolResult{Content: []protocol.Content{{Type: "text", Text: "sunny"}}}}
	})
	mod := load(t, host, "weather", guest)
	r := Router{ValidateArguments: true}

	_, err := r.CallTool(context.Background(), mod, sandbox.Imports{}, "weather", json.RawMessage(`{}`), protocol.Latest)
	mapped, ok := mcperr.As(err)
	assert.Assert(t, ok)
	assert.Equal(t, mapped.Status, 400)
	assert.Equal(t, host.Calls(sandbox.ExportCallTool), 0)

	res, err := r.CallTool(context.Background(), mod, sandbox.Imports{}, "weather", json.RawMessage(`{"city":"Oslo"}`), protocol.Latest)
	assert.NilError(t, err)
	assert.Equal(t, res.Call.Content[0].Text, "sunny")
}

func TestLegacyExec(t *testing.T) {
	host := sandboxtest.NewHost()
	echo := sandboxtest.Legacy("exec", func(_ context.Context, _ sandbox.Imports, input []byte) ([]byte, error) {
		return input, nil
	})
	mod := load(t, host, "legacy", echo)

	res, err := Legacy{}.Exec(context.Background(), mod, sandbox.Imports{}, json.RawMessage(`{"n":1}`), protocol.Latest)
	assert.NilError(t, err)
	assert.Equal(t, res.Call.Content[0].Text, `{"n":1}`)
	assert.Equal(t, string(res.Call.StructuredContent), `{"n":1}`)
}

func TestLegacyFailureClasses(t *testing.T) {
	host := sandboxtest.NewHost()
	trap := sandboxtest.Legacy("exec", func(context.Context, sandbox.Imports, []byte) ([]byte, error) {
		return nil, errors.New("unreachable")
	})
	_, err := Legacy{}.Exec(context.Background(), load(t, host, "trap", trap), sandbox.Imports{}, json.RawMessage(`{}`), protocol.Latest)
	assert.Assert(t, mcperr.IsTransient(err))

	text := sandboxtest.Legacy("exec", func(context.Context, sandbox.Imports, []byte) ([]byte, error) {
		return []byte("plain text"), nil
	})
	_, err = Legacy{}.Exec(context.Background(), load(t, host, "text", text), sandbox.Imports{}, json.RawMessage(`{}`), protocol.Latest)
	assert.ErrorContains(t, err, "invalid JSON")
	assert.Assert(t, !mcperr.IsTransient(err))

	_, err = Legacy{Entry: "run"}.Exec(context.Background(), load(t, host, "entry", text), sandbox.Imports{}, json.RawMessage(`{}`), protocol.Latest)
	assert.ErrorIs(t, err, sandbox.ErrMissingExport)
	assert.Assert(t, !mcperr.IsTransient(err))

	broken := sandboxtest.Legacy("exec", nil)
	broken.FailInstantiate = true
	_, err = Legacy{}.Exec(context.Background(), load(t, host, "broken", broken), sandbox.Imports{}, json.RawMessage(`{}`), protocol.Latest)
	assert.ErrorIs(t, err, sandbox.ErrInstantiate)
	assert.Assert(t, !mcperr.IsTransient(err))
}
