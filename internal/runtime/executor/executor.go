package executor

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"

	"github.com/codex-k8s/mcp-exec/internal/mcperr"
	"github.com/codex-k8s/mcp-exec/internal/protocol"
	"github.com/codex-k8s/mcp-exec/internal/sandbox"
)

// maxCapture caps captured guest stdout and stderr per instance.
const maxCapture = 64 << 10

// ResultKind tags a Result.
type ResultKind int

// Result kinds.
const (
	ResultTools ResultKind = iota + 1
	ResultCompleted
	ResultElicitation
)

// Result is the successful outcome of an execution.
type Result struct {
	// Kind selects which fields are set.
	Kind ResultKind
	// Tools is the rendered catalog for ResultTools.
	Tools []protocol.Tool
	// Call is the rendered call result for ResultCompleted.
	Call *protocol.CallResult
	// Elicitation is the follow-up request for ResultElicitation.
	Elicitation *protocol.Elicitation
	// Messages are caller-facing message blocks.
	Messages []protocol.Content
	// Revision is the protocol revision the result was shaped for.
	Revision protocol.Revision
}

// Envelope renders the result as a success envelope.
func (r Result) Envelope() protocol.Envelope {
	switch r.Kind {
	case ResultCompleted:
		return protocol.CallEnvelope(r.Call, r.Messages, r.Revision)
	case ResultElicitation:
		return protocol.ElicitationEnvelope(r.Elicitation, r.Messages, r.Revision)
	default:
		return protocol.ListEnvelope(r.Tools, r.Revision)
	}
}

// withInstance runs fn on a fresh instance of mod and always closes it.
// Captured guest output is logged at debug level.
func withInstance(ctx context.Context, mod sandbox.Module, imports sandbox.Imports, logger *slog.Logger, fn func(sandbox.Instance) (Result, error)) (Result, error) {
	stdout := &capped{limit: maxCapture}
	stderr := &capped{limit: maxCapture}
	if imports.Stdout == nil {
		imports.Stdout = stdout
	}
	if imports.Stderr == nil {
		imports.Stderr = stderr
	}

	inst, err := mod.Instantiate(ctx, imports)
	if err != nil {
		return Result{}, mcperr.RouterError("instantiate component", err)
	}
	defer func() {
		if cerr := inst.Close(context.WithoutCancel(ctx)); cerr != nil && logger != nil {
			logger.Debug("instance close failed", "error", cerr)
		}
		if logger != nil && (stdout.Len() > 0 || stderr.Len() > 0) {
			logger.Debug("guest output", "stdout", stdout.String(), "stderr", stderr.String(), "state", inst.State().String())
		}
	}()
	return fn(inst)
}

// callError maps a sandbox call failure. Traps are transient when
// transientTraps is set; everything else is a permanent router error.
func callError(export string, err error, transientTraps bool) *mcperr.Error {
	switch {
	case errors.Is(err, sandbox.ErrMissingExport):
		return mcperr.RouterError("missing export "+export, err)
	case sandbox.IsTrap(err):
		mapped := mcperr.RouterError(export+" trapped", err)
		mapped.Transient = transientTraps
		return mapped
	default:
		return mcperr.RouterError("call "+export, err)
	}
}

type capped struct {
	bytes.Buffer
	limit int
}

func (c *capped) Write(p []byte) (int, error) {
	room := c.limit - c.Len()
	if room > 0 {
		if len(p) > room {
			c.Buffer.Write(p[:room])
		} else {
			c.Buffer.Write(p)
		}
	}
	return len(p), nil
}

var _ io.Writer = (*capped)(nil)
