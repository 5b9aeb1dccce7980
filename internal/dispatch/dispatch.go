package dispatch

import (
	"fmt"
	"slices"

	"github.com/codex-k8s/mcp-exec/internal/sandbox"
)

// Convention names a guest calling convention.
type Convention int

// Calling conventions.
const (
	Unsupported Convention = iota
	Router
	Legacy
)

func (c Convention) String() string {
	switch c {
	case Router:
		return "router"
	case Legacy:
		return "legacy"
	default:
		return "unsupported"
	}
}

// Kind is the dispatch decision for one artifact.
type Kind struct {
	// Convention selects the executor.
	Convention Convention
	// Entry is the legacy export name. Set only for Legacy.
	Entry string
	// Exports lists discovered exports, sorted. Set only for Unsupported.
	Exports []string
}

func (k Kind) String() string {
	switch k.Convention {
	case Legacy:
		return fmt.Sprintf("legacy(%s)", k.Entry)
	case Unsupported:
		return fmt.Sprintf("unsupported(%d exports)", len(k.Exports))
	default:
		return k.Convention.String()
	}
}

// Dispatch classifies exports. The router interface wins over a legacy entry.
// An empty legacyEntry selects the default entry name.
func Dispatch(exports []string, legacyEntry string) Kind {
	if legacyEntry == "" {
		legacyEntry = sandbox.DefaultLegacyEntry
	}
	if slices.Contains(exports, sandbox.ExportListTools) && slices.Contains(exports, sandbox.ExportCallTool) {
		return Kind{Convention: Router}
	}
	if slices.Contains(exports, legacyEntry) {
		return Kind{Convention: Legacy, Entry: legacyEntry}
	}
	sorted := slices.Clone(exports)
	if sorted == nil {
		sorted = []string{}
	}
	slices.Sort(sorted)
	return Kind{Convention: Unsupported, Exports: sorted}
}
