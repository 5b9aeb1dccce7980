package executor

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/codex-k8s/mcp-exec/internal/mcperr"
	"github.com/codex-k8s/mcp-exec/internal/protocol"
	"github.com/codex-k8s/mcp-exec/internal/sandbox"
	"github.com/codex-k8s/mcp-exec/internal/schema"
)

// Router executes components that export the router interface.
type Router struct {
	// Logger is used for structured logging.
	Logger *slog.Logger
	// ValidateArguments checks call arguments against the tool input schema
	// before invoking the tool.
	ValidateArguments bool
}

// ListTools returns the tool catalog shaped for rev.
func (r Router) ListTools(ctx context.Context, mod sandbox.Module, imports sandbox.Imports, rev protocol.Revision) (Result, error) {
	return withInstance(ctx, mod, imports, r.Logger, func(inst sandbox.Instance) (Result, error) {
		tools, err := listTools(ctx, inst)
		if err != nil {
			return Result{}, err
		}
		return Result{Kind: ResultTools, Tools: protocol.RenderTools(tools, rev), Revision: rev}, nil
	})
}

// CallTool invokes name with args.
func (r Router) CallTool(ctx context.Context, mod sandbox.Module, imports sandbox.Imports, name string, args json.RawMessage, rev protocol.Revision) (Result, error) {
	return withInstance(ctx, mod, imports, r.Logger, func(inst sandbox.Instance) (Result, error) {
		if r.ValidateArguments {
			if err := r.validate(ctx, inst, name, args); err != nil {
				return Result{}, err
			}
		}

		raw, err := inst.Call(ctx, sandbox.ExportCallTool, []byte(name), args)
		if err != nil {
			return Result{}, callError(sandbox.ExportCallTool, err, false)
		}

		var resp protocol.WireResponse
		if err := json.Unmarshal(raw, &resp); err != nil {
			return Result{}, mcperr.RouterError("decode call-tool response", err)
		}
		switch {
		case resp.Completed != nil:
			call, messages := protocol.RenderResult(*resp.Completed, rev)
			return Result{Kind: ResultCompleted, Call: call, Messages: messages, Revision: rev}, nil
		case resp.Elicit != nil:
			elicit, messages := protocol.RenderElicitation(*resp.Elicit)
			return Result{Kind: ResultElicitation, Elicitation: elicit, Messages: messages, Revision: rev}, nil
		case resp.Error != nil:
			status := mcperr.StatusForToolKind(resp.Error.Kind)
			mapped := mcperr.ToolError(status, resp.Error.Message)
			mapped.Details = map[string]any{"kind": resp.Error.Kind}
			return Result{}, mapped
		default:
			return Result{}, mcperr.RouterError("decode call-tool response", fmt.Errorf("response carries no variant: %s", raw))
		}
	})
}

func (r Router) validate(ctx context.Context, inst sandbox.Instance, name string, args json.RawMessage) error {
	tools, err := listTools(ctx, inst)
	if err != nil {
		return err
	}
	for _, tool := range tools {
		if tool.Name != name {
			continue
		}
		raw := protocol.ParseJSONString(tool.InputSchema)
		compiled, err := schema.Compile(name+".input.json", raw)
		if err != nil {
			if r.Logger != nil {
				r.Logger.Warn("input schema ignored", "tool", name, "error", err)
			}
			return nil
		}
		if err := compiled.Validate(args); err != nil {
			mapped := mcperr.ToolError(http.StatusBadRequest, fmt.Sprintf("arguments do not match the input schema of %s", name))
			mapped.Details = map[string]any{"kind": "invalid-parameters", "validation": err.Error()}
			return mapped
		}
		return nil
	}
	mapped := mcperr.ToolError(http.StatusNotFound, fmt.Sprintf("tool %s is not listed by the component", name))
	mapped.Details = map[string]any{"kind": "not-found"}
	return mapped
}

func listTools(ctx context.Context, inst sandbox.Instance) ([]protocol.WireTool, error) {
	raw, err := inst.Call(ctx, sandbox.ExportListTools)
	if err != nil {
		return nil, callError(sandbox.ExportListTools, err, false)
	}
	var tools []protocol.WireTool
	if err := json.Unmarshal(raw, &tools); err != nil {
		return nil, mcperr.RouterError("decode list-tools response", err)
	}
	return tools, nil
}
