package sandbox

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/codex-k8s/mcp-exec/internal/tenant"
)

// Export and import names of the guest ABI.
const (
	// ExportListTools is the router catalog export.
	ExportListTools = "wasix:mcp/router@25.6.18#list-tools"
	// ExportCallTool is the router invocation export.
	ExportCallTool = "wasix:mcp/router@25.6.18#call-tool"
	// ExportDescribe returns the component metadata document.
	ExportDescribe = "greentic:component/describe-v1@1.0.0#describe-json"
	// DefaultLegacyEntry is the legacy single-entry export.
	DefaultLegacyEntry = "exec"
	// ExportAlloc reserves guest memory for host-written strings.
	ExportAlloc = "alloc"

	// HostModule is the import module of host capabilities.
	HostModule = "greentic:host/capabilities@1.0.0"
	// ImportGetSecret resolves a declared secret.
	ImportGetSecret = "get-secret"
	// ImportTenant returns the tenant context as JSON.
	ImportTenant = "tenant"
	// ImportHTTPRequest performs an outbound HTTP request.
	ImportHTTPRequest = "http-request"
)

var (
	// ErrMissingExport is returned when a called export does not exist.
	ErrMissingExport = errors.New("export not found")
	// ErrNotReady is returned when an instance is not in the Ready state.
	ErrNotReady = errors.New("instance is not ready")
	// ErrInstantiate wraps instantiation and link failures.
	ErrInstantiate = errors.New("instantiate module")
	// ErrSignature is returned when an export does not follow the string ABI.
	ErrSignature = errors.New("export does not follow the string calling convention")
)

// Trap is a guest fault raised while an export was running.
type Trap struct {
	// Export is the export that faulted.
	Export string
	// Err is the runtime cause.
	Err error
}

func (t *Trap) Error() string {
	return fmt.Sprintf("%s trapped: %v", t.Export, t.Err)
}

func (t *Trap) Unwrap() error {
	return t.Err
}

// IsTrap reports whether err is a guest trap.
func IsTrap(err error) bool {
	var trap *Trap
	return errors.As(err, &trap)
}

// Mount exposes a host directory to the guest.
type Mount struct {
	// HostPath is the directory on the host.
	HostPath string `yaml:"host_path" toml:"host_path"`
	// GuestPath is where the guest sees it.
	GuestPath string `yaml:"guest_path" toml:"guest_path"`
	// ReadOnly forbids writes.
	ReadOnly bool `yaml:"read_only" toml:"read_only"`
}

// Grants lists the capabilities a component may use.
type Grants struct {
	// Network allows the http-request import. Networking must also be
	// enabled globally.
	Network bool `yaml:"network" toml:"network"`
	// Filesystem lists directory mounts. Empty means no filesystem.
	Filesystem []Mount `yaml:"filesystem" toml:"filesystem"`
	// Env is passed to the guest environment.
	Env map[string]string `yaml:"env" toml:"env"`
}

// SecretFunc returns a secret value, or false when it is unavailable.
type SecretFunc func(ctx context.Context, name string) ([]byte, bool)

// HTTPFunc performs an outbound request encoded as JSON.
type HTTPFunc func(ctx context.Context, request []byte) ([]byte, error)

// Imports is the per-instance host state visible to the guest.
type Imports struct {
	// Tenant is returned by the tenant import.
	Tenant tenant.Ctx
	// Secret answers get-secret. Nil means every secret is unavailable.
	Secret SecretFunc
	// HTTP answers http-request. Nil means outbound requests are denied.
	HTTP HTTPFunc
	// Grants describes filesystem and environment access.
	Grants Grants
	// Stdout receives guest stdout. Nil discards it.
	Stdout io.Writer
	// Stderr receives guest stderr. Nil discards it.
	Stderr io.Writer
}

// Host compiles guest binaries.
type Host interface {
	// Load compiles wasm into a module.
	Load(ctx context.Context, wasm []byte) (Module, error)
	// Close releases every module compiled by the host.
	Close(ctx context.Context) error
}

// Module is a compiled guest that can be instantiated many times.
type Module interface {
	// Exports lists export names in sorted order.
	Exports() []string
	// HasExport reports whether name is exported.
	HasExport(name string) bool
	// Instantiate links imports and runs initialization.
	Instantiate(ctx context.Context, imports Imports) (Instance, error)
	// Close releases the compiled module.
	Close(ctx context.Context) error
}

// Instance is a single-use guest instance.
type Instance interface {
	// Call invokes export with string arguments and returns its string result.
	Call(ctx context.Context, export string, args ...[]byte) ([]byte, error)
	// State returns the lifecycle state.
	State() State
	// Close releases the instance.
	Close(ctx context.Context) error
}

// State is the lifecycle state of an instance.
type State int

// Lifecycle states.
const (
	StateUnloaded State = iota
	StateLinked
	StateInstantiated
	StateReady
	StateInvoking
	StateFaulted
)

func (s State) String() string {
	switch s {
	case StateUnloaded:
		return "unloaded"
	case StateLinked:
		return "linked"
	case StateInstantiated:
		return "instantiated"
	case StateReady:
		return "ready"
	case StateInvoking:
		return "invoking"
	case StateFaulted:
		return "faulted"
	default:
		return "unknown"
	}
}

// Lifecycle tracks instance state transitions. The zero value is Unloaded.
type Lifecycle struct {
	mu    sync.Mutex
	state State
}

// Advance moves the lifecycle forward to s during instantiation.
func (l *Lifecycle) Advance(s State) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.state < s && l.state != StateFaulted {
		l.state = s
	}
}

// Begin enters Invoking. It fails unless the instance is Ready.
func (l *Lifecycle) Begin() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.state != StateReady {
		return fmt.Errorf("%w: %s", ErrNotReady, l.state)
	}
	l.state = StateInvoking
	return nil
}

// End leaves Invoking. A trap faults the instance permanently.
func (l *Lifecycle) End(err error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if IsTrap(err) {
		l.state = StateFaulted
		return
	}
	if l.state == StateInvoking {
		l.state = StateReady
	}
}

// Fault marks the instance as faulted.
func (l *Lifecycle) Fault() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.state = StateFaulted
}

// State returns the current state.
func (l *Lifecycle) State() State {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state
}
