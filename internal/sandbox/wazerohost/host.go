// Package wazerohost runs guests on the wazero WebAssembly runtime.
package wazerohost

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"time"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
	"github.com/tetratelabs/wazero/imports/wasi_snapshot_preview1"

	"github.com/codex-k8s/mcp-exec/internal/sandbox"
)

// Config holds runtime limits.
type Config struct {
	// MemoryLimitPages caps guest memory in 64KiB pages. Zero keeps the
	// wazero default.
	MemoryLimitPages uint32
	// PerCallTimeout bounds a single export call. Zero means no bound
	// beyond the caller context.
	PerCallTimeout time.Duration
}

// Host is a sandbox.Host backed by one wazero runtime.
type Host struct {
	rt     wazero.Runtime
	cfg    Config
	logger *slog.Logger
}

// New creates a runtime with WASI preview1 and the host capability module.
func New(ctx context.Context, cfg Config, logger *slog.Logger) (*Host, error) {
	rc := wazero.NewRuntimeConfig().WithCloseOnContextDone(true)
	if cfg.MemoryLimitPages > 0 {
		rc = rc.WithMemoryLimitPages(cfg.MemoryLimitPages)
	}
	rt := wazero.NewRuntimeWithConfig(ctx, rc)

	if _, err := wasi_snapshot_preview1.Instantiate(ctx, rt); err != nil {
		_ = rt.Close(ctx)
		return nil, fmt.Errorf("instantiate wasi: %w", err)
	}
	if err := instantiateCapabilities(ctx, rt, logger); err != nil {
		_ = rt.Close(ctx)
		return nil, fmt.Errorf("instantiate %s: %w", sandbox.HostModule, err)
	}
	return &Host{rt: rt, cfg: cfg, logger: logger}, nil
}

// Load implements sandbox.Host.
func (h *Host) Load(ctx context.Context, wasm []byte) (sandbox.Module, error) {
	compiled, err := h.rt.CompileModule(ctx, wasm)
	if err != nil {
		return nil, fmt.Errorf("compile module: %w", err)
	}
	exports := make([]string, 0, len(compiled.ExportedFunctions())+1)
	for name := range compiled.ExportedFunctions() {
		exports = append(exports, name)
	}
	for name := range compiled.ExportedMemories() {
		exports = append(exports, name)
	}
	sort.Strings(exports)
	return &module{host: h, compiled: compiled, exports: exports}, nil
}

// Close implements sandbox.Host.
func (h *Host) Close(ctx context.Context) error {
	return h.rt.Close(ctx)
}

type module struct {
	host     *Host
	compiled wazero.CompiledModule
	exports  []string
}

func (m *module) Exports() []string {
	return append([]string(nil), m.exports...)
}

func (m *module) HasExport(name string) bool {
	_, ok := m.compiled.ExportedFunctions()[name]
	return ok
}

func (m *module) Instantiate(ctx context.Context, imports sandbox.Imports) (sandbox.Instance, error) {
	inst := &instance{host: m.host, imports: imports}
	inst.life.Advance(sandbox.StateLinked)

	cfg := wazero.NewModuleConfig().
		WithName("").
		WithStdout(writerOrDiscard(imports.Stdout)).
		WithStderr(writerOrDiscard(imports.Stderr)).
		WithSysWalltime().
		WithSysNanotime().
		WithStartFunctions("_initialize")
	for k, v := range imports.Grants.Env {
		cfg = cfg.WithEnv(k, v)
	}
	if len(imports.Grants.Filesystem) > 0 {
		fsCfg := wazero.NewFSConfig()
		for _, mount := range imports.Grants.Filesystem {
			if mount.ReadOnly {
				fsCfg = fsCfg.WithReadOnlyDirMount(mount.HostPath, mount.GuestPath)
			} else {
				fsCfg = fsCfg.WithDirMount(mount.HostPath, mount.GuestPath)
			}
		}
		cfg = cfg.WithFSConfig(fsCfg)
	}

	mod, err := m.host.rt.InstantiateModule(withImports(ctx, &inst.imports), m.compiled, cfg)
	if err != nil {
		inst.life.Fault()
		return nil, fmt.Errorf("%w: %v", sandbox.ErrInstantiate, err)
	}
	inst.mod = mod
	inst.life.Advance(sandbox.StateInstantiated)
	inst.life.Advance(sandbox.StateReady)
	return inst, nil
}

func (m *module) Close(ctx context.Context) error {
	return m.compiled.Close(ctx)
}

type instance struct {
	host    *Host
	mod     api.Module
	imports sandbox.Imports
	life    sandbox.Lifecycle
}

func (i *instance) Call(ctx context.Context, export string, args ...[]byte) ([]byte, error) {
	fn := i.mod.ExportedFunction(export)
	if fn == nil {
		return nil, fmt.Errorf("%w: %s", sandbox.ErrMissingExport, export)
	}
	if err := checkSignature(fn.Definition(), len(args)); err != nil {
		return nil, fmt.Errorf("%s: %w", export, err)
	}
	if err := i.life.Begin(); err != nil {
		return nil, err
	}

	if i.host.cfg.PerCallTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, i.host.cfg.PerCallTimeout)
		defer cancel()
	}
	ctx = withImports(ctx, &i.imports)

	params := make([]uint64, 0, 2*len(args))
	for _, arg := range args {
		ptr, err := writeString(ctx, i.mod, arg)
		if err != nil {
			trap := &sandbox.Trap{Export: export, Err: err}
			i.life.End(trap)
			return nil, trap
		}
		params = append(params, uint64(ptr), uint64(len(arg)))
	}

	results, err := fn.Call(ctx, params...)
	if err != nil {
		trap := &sandbox.Trap{Export: export, Err: err}
		i.life.End(trap)
		return nil, trap
	}
	out, err := readPacked(i.mod, results[0])
	i.life.End(err)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", export, err)
	}
	return out, nil
}

func (i *instance) State() sandbox.State {
	return i.life.State()
}

func (i *instance) Close(ctx context.Context) error {
	if i.mod == nil {
		return nil
	}
	return i.mod.Close(ctx)
}

func checkSignature(def api.FunctionDefinition, args int) error {
	params := def.ParamTypes()
	results := def.ResultTypes()
	if len(params) != 2*args || len(results) != 1 || results[0] != api.ValueTypeI64 {
		return fmt.Errorf("%w: want %d i32 params and one i64 result", sandbox.ErrSignature, 2*args)
	}
	for _, p := range params {
		if p != api.ValueTypeI32 {
			return fmt.Errorf("%w: non-i32 parameter", sandbox.ErrSignature)
		}
	}
	return nil
}

func writerOrDiscard(w io.Writer) io.Writer {
	if w == nil {
		return io.Discard
	}
	return w
}

var errNoAlloc = errors.New("guest does not export alloc")
