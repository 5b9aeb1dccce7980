// Package sandboxtest provides an in-process sandbox host whose guests are Go
// functions. Artifacts are real wasm preambles followed by a fixture name.
package sandboxtest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/codex-k8s/mcp-exec/internal/protocol"
	"github.com/codex-k8s/mcp-exec/internal/sandbox"
)

var preamble = []byte{0x00, 'a', 's', 'm', 0x01, 0x00, 0x00, 0x00}

// Func implements one guest export.
type Func func(ctx context.Context, imports sandbox.Imports, args [][]byte) ([]byte, error)

// Guest is a fake component.
type Guest struct {
	// Exports maps export names to implementations.
	Exports map[string]Func
	// Extra lists exports with no implementation, such as memory.
	Extra []string
	// FailInstantiate makes every instantiation fail.
	FailInstantiate bool
}

// Host is a sandbox.Host over registered guests.
type Host struct {
	mu        sync.Mutex
	guests    map[string]*Guest
	loads     int
	instances int
	calls     map[string]int
}

// NewHost creates an empty host.
func NewHost() *Host {
	return &Host{guests: make(map[string]*Guest), calls: make(map[string]int)}
}

// Register adds guest under name and returns its artifact bytes.
func (h *Host) Register(name string, guest *Guest) []byte {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.guests[name] = guest
	return Artifact(name)
}

// Artifact returns the artifact bytes for a fixture name.
func Artifact(name string) []byte {
	return append(append([]byte{}, preamble...), name...)
}

// Loads returns how many times Load was called.
func (h *Host) Loads() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.loads
}

// Instances returns how many instances were created.
func (h *Host) Instances() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.instances
}

// Calls returns how many times export was invoked.
func (h *Host) Calls(export string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.calls[export]
}

// Load implements sandbox.Host.
func (h *Host) Load(_ context.Context, wasm []byte) (sandbox.Module, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.loads++
	if len(wasm) < len(preamble) {
		return nil, errors.New("invalid wasm binary")
	}
	name := string(wasm[len(preamble):])
	guest, ok := h.guests[name]
	if !ok {
		return nil, fmt.Errorf("unknown fixture %q", name)
	}
	return &module{host: h, guest: guest}, nil
}

// Close implements sandbox.Host.
func (h *Host) Close(context.Context) error {
	return nil
}

type module struct {
	host  *Host
	guest *Guest
}

func (m *module) Exports() []string {
	out := make([]string, 0, len(m.guest.Exports)+len(m.guest.Extra))
	for name := range m.guest.Exports {
		out = append(out, name)
	}
	out = append(out, m.guest.Extra...)
	sort.Strings(out)
	return out
}

func (m *module) HasExport(name string) bool {
	_, ok := m.guest.Exports[name]
	return ok
}

func (m *module) Instantiate(_ context.Context, imports sandbox.Imports) (sandbox.Instance, error) {
	if m.guest.FailInstantiate {
		return nil, fmt.Errorf("%w: start function failed", sandbox.ErrInstantiate)
	}
	m.host.mu.Lock()
	m.host.instances++
	m.host.mu.Unlock()

	inst := &instance{module: m, imports: imports}
	inst.life.Advance(sandbox.StateLinked)
	inst.life.Advance(sandbox.StateInstantiated)
	inst.life.Advance(sandbox.StateReady)
	return inst, nil
}

func (m *module) Close(context.Context) error {
	return nil
}

type instance struct {
	module  *module
	imports sandbox.Imports
	life    sandbox.Lifecycle
}

func (i *instance) Call(ctx context.Context, export string, args ...[]byte) ([]byte, error) {
	fn, ok := i.module.guest.Exports[export]
	if !ok {
		return nil, fmt.Errorf("%w: %s", sandbox.ErrMissingExport, export)
	}
	if err := i.life.Begin(); err != nil {
		return nil, err
	}
	i.module.host.mu.Lock()
	i.module.host.calls[export]++
	i.module.host.mu.Unlock()

	out, err := fn(ctx, i.imports, args)
	if err != nil && !sandbox.IsTrap(err) {
		err = &sandbox.Trap{Export: export, Err: err}
	}
	i.life.End(err)
	return out, err
}

func (i *instance) State() sandbox.State {
	return i.life.State()
}

func (i *instance) Close(context.Context) error {
	return nil
}

// Router builds a router guest from a static catalog and a call handler.
func Router(tools []protocol.WireTool, call func(ctx context.Context, imports sandbox.Imports, name string, args json.RawMessage) protocol.WireResponse) *Guest {
	return &Guest{
		Exports: map[string]Func{
			sandbox.ExportListTools: func(context.Context, sandbox.Imports, [][]byte) ([]byte, error) {
				return json.Marshal(tools)
			},
			sandbox.ExportCallTool: func(ctx context.Context, imports sandbox.Imports, args [][]byte) ([]byte, error) {
				if len(args) != 2 {
					return nil, fmt.Errorf("call-tool takes 2 arguments, got %d", len(args))
				}
				return json.Marshal(call(ctx, imports, string(args[0]), args[1]))
			},
		},
		Extra: []string{"memory", sandbox.ExportAlloc},
	}
}

// EchoRouter exposes one tool, echo, that returns its arguments.
func EchoRouter() *Guest {
	title := "Echo"
	return Router([]protocol.WireTool{{
		Name:        "echo",
		Title:       &title,
		Description: "Echo the arguments back",
		InputSchema: `{"type":"object"}`,
	}}, func(_ context.Context, _ sandbox.Imports, name string, args json.RawMessage) protocol.WireResponse {
		if name != "echo" {
			return protocol.WireResponse{Error: &protocol.WireToolError{Kind: "not-found", Message: "unknown tool " + name}}
		}
		structured := string(args)
		return protocol.WireResponse{Completed: &protocol.WireToolResult{
			Content:           []protocol.Content{{Type: protocol.ContentText, Text: string(args)}},
			StructuredContent: &structured,
		}}
	})
}

// Legacy builds a legacy guest exporting entry.
func Legacy(entry string, fn func(ctx context.Context, imports sandbox.Imports, input []byte) ([]byte, error)) *Guest {
	return &Guest{
		Exports: map[string]Func{
			entry: func(ctx context.Context, imports sandbox.Imports, args [][]byte) ([]byte, error) {
				if len(args) != 1 {
					return nil, fmt.Errorf("%s takes 1 argument, got %d", entry, len(args))
				}
				return fn(ctx, imports, args[0])
			},
		},
		Extra: []string{"memory", sandbox.ExportAlloc},
	}
}

// WithDescribe adds a describe export returning doc.
func WithDescribe(g *Guest, doc string) *Guest {
	g.Exports[sandbox.ExportDescribe] = func(context.Context, sandbox.Imports, [][]byte) ([]byte, error) {
		return []byte(doc), nil
	}
	return g
}
