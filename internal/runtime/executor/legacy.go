package executor

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/codex-k8s/mcp-exec/internal/mcperr"
	"github.com/codex-k8s/mcp-exec/internal/protocol"
	"github.com/codex-k8s/mcp-exec/internal/sandbox"
)

// Legacy executes components with a single JSON-in JSON-out entry export.
type Legacy struct {
	// Entry is the export to call. Empty selects the default entry.
	Entry string
	// Logger is used for structured logging.
	Logger *slog.Logger
}

// Exec calls the entry with args. Traps are transient; every other failure
// is permanent.
func (l Legacy) Exec(ctx context.Context, mod sandbox.Module, imports sandbox.Imports, args json.RawMessage, rev protocol.Revision) (Result, error) {
	entry := l.Entry
	if entry == "" {
		entry = sandbox.DefaultLegacyEntry
	}
	return withInstance(ctx, mod, imports, l.Logger, func(inst sandbox.Instance) (Result, error) {
		raw, err := inst.Call(ctx, entry, args)
		if err != nil {
			return Result{}, callError(entry, err, true)
		}
		if !json.Valid(raw) {
			return Result{}, mcperr.RouterError("legacy entry "+entry+" returned invalid JSON", nil)
		}
		text := string(raw)
		call, messages := protocol.RenderResult(protocol.WireToolResult{
			Content:           []protocol.Content{{Type: protocol.ContentText, Text: text}},
			StructuredContent: &text,
		}, rev)
		return Result{Kind: ResultCompleted, Call: call, Messages: messages, Revision: rev}, nil
	})
}
