package wazerohost

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"

	"github.com/codex-k8s/mcp-exec/internal/sandbox"
)

type importsKey struct{}

func withImports(ctx context.Context, imports *sandbox.Imports) context.Context {
	return context.WithValue(ctx, importsKey{}, imports)
}

func importsFrom(ctx context.Context) *sandbox.Imports {
	imports, _ := ctx.Value(importsKey{}).(*sandbox.Imports)
	return imports
}

var (
	i32 = api.ValueTypeI32
	i64 = api.ValueTypeI64
)

// instantiateCapabilities registers the host capability module. Handlers read
// per-call state from the context passed to the export call.
func instantiateCapabilities(ctx context.Context, rt wazero.Runtime, logger *slog.Logger) error {
	_, err := rt.NewHostModuleBuilder(sandbox.HostModule).
		NewFunctionBuilder().
		WithGoModuleFunction(api.GoModuleFunc(getSecret), []api.ValueType{i32, i32}, []api.ValueType{i64}).
		Export(sandbox.ImportGetSecret).
		NewFunctionBuilder().
		WithGoModuleFunction(api.GoModuleFunc(tenantJSON), nil, []api.ValueType{i64}).
		Export(sandbox.ImportTenant).
		NewFunctionBuilder().
		WithGoModuleFunction(httpRequest(logger), []api.ValueType{i32, i32}, []api.ValueType{i64}).
		Export(sandbox.ImportHTTPRequest).
		Instantiate(ctx)
	return err
}

// getSecret returns 0 when the secret is unavailable.
func getSecret(ctx context.Context, mod api.Module, stack []uint64) {
	name, ok := mod.Memory().Read(uint32(stack[0]), uint32(stack[1]))
	stack[0] = 0
	if !ok {
		return
	}
	imports := importsFrom(ctx)
	if imports == nil || imports.Secret == nil {
		return
	}
	value, ok := imports.Secret(ctx, string(name))
	if !ok {
		return
	}
	stack[0] = mustWrite(ctx, mod, value)
}

func tenantJSON(ctx context.Context, mod api.Module, stack []uint64) {
	imports := importsFrom(ctx)
	var raw []byte
	if imports != nil {
		raw, _ = json.Marshal(imports.Tenant)
	} else {
		raw = []byte("{}")
	}
	stack[0] = mustWrite(ctx, mod, raw)
}

func httpRequest(logger *slog.Logger) api.GoModuleFunc {
	return func(ctx context.Context, mod api.Module, stack []uint64) {
		payload, ok := mod.Memory().Read(uint32(stack[0]), uint32(stack[1]))
		if !ok {
			stack[0] = mustWrite(ctx, mod, sandbox.DeniedHTTPResponse())
			return
		}
		imports := importsFrom(ctx)
		if imports == nil || imports.HTTP == nil {
			if logger != nil {
				logger.Warn("guest http request denied")
			}
			stack[0] = mustWrite(ctx, mod, sandbox.DeniedHTTPResponse())
			return
		}
		resp, err := imports.HTTP(ctx, append([]byte(nil), payload...))
		if err != nil {
			resp, _ = json.Marshal(sandbox.HTTPResponse{Error: err.Error()})
		}
		stack[0] = mustWrite(ctx, mod, resp)
	}
}

// mustWrite hands data to the guest. A failure panics, which wazero turns
// into a trap of the calling export.
func mustWrite(ctx context.Context, mod api.Module, data []byte) uint64 {
	ptr, err := writeString(ctx, mod, data)
	if err != nil {
		panic(err)
	}
	return pack(ptr, uint32(len(data)))
}
