package runtime

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/codex-k8s/mcp-exec/internal/describe"
	"github.com/codex-k8s/mcp-exec/internal/mcperr"
	"github.com/codex-k8s/mcp-exec/internal/tenant"
)

// Operation is the requested protocol operation.
type Operation string

// Operations.
const (
	OperationList Operation = "list"
	OperationCall Operation = "call"
)

// Request is one execution request.
type Request struct {
	// Component is the component locator.
	Component string `json:"component"`
	// Action is the tool name.
	Action string `json:"action,omitempty"`
	// Operation is list or call. Empty infers it from Action.
	Operation string `json:"operation,omitempty"`
	// Arguments is a JSON object of tool arguments.
	Arguments json.RawMessage `json:"arguments,omitempty"`
	// Tenant scopes the request.
	Tenant *tenant.Ctx `json:"tenant,omitempty"`
	// Protocol pins the protocol revision.
	Protocol string `json:"protocol,omitempty"`
}

// ToolRef names a tool served by a component.
type ToolRef struct {
	// Name is the tool name.
	Name string
	// Component is the component locator.
	Component string
	// LegacyEntry is the legacy entry export, if any.
	LegacyEntry string
	// Secrets are the declared secret requirements.
	Secrets []describe.SecretRequirement
}

// normalized is a validated request.
type normalized struct {
	Request
	op   Operation
	args json.RawMessage
}

// normalize validates the request and infers missing fields.
func (r Request) normalize() (normalized, error) {
	n := normalized{Request: r}
	n.Component = strings.TrimSpace(r.Component)
	n.Action = strings.TrimSpace(r.Action)
	if n.Component == "" {
		return n, mcperr.ConfigError("component is required", nil)
	}

	switch strings.ToLower(strings.TrimSpace(r.Operation)) {
	case "":
		if n.Action != "" {
			n.op = OperationCall
		} else {
			n.op = OperationList
		}
	case string(OperationList):
		n.op = OperationList
	case string(OperationCall):
		n.op = OperationCall
	default:
		return n, mcperr.ConfigError(fmt.Sprintf("unsupported operation value: %s", r.Operation),
			map[string]any{"operation": r.Operation, "allowed": []string{string(OperationList), string(OperationCall)}})
	}

	if n.op == OperationCall && n.Action == "" {
		return n, mcperr.ConfigError("tool name is required for call", map[string]any{"operation": string(OperationCall)})
	}

	args := bytes.TrimSpace(r.Arguments)
	switch {
	case len(args) == 0 || bytes.Equal(args, []byte("null")):
		n.args = json.RawMessage(`{}`)
	case args[0] == '{' && json.Valid(args):
		n.args = json.RawMessage(args)
	default:
		return n, mcperr.ConfigError("arguments must be a JSON object", map[string]any{"tool": n.Action})
	}
	return n, nil
}
