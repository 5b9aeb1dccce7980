package runtime

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/codex-k8s/mcp-exec/internal/audit"
	"github.com/codex-k8s/mcp-exec/internal/protocol"
	"github.com/codex-k8s/mcp-exec/internal/tenant"
)

// Builder constructs an MCP server exposing the tools of one component.
type Builder struct {
	// Logger is used for structured logging.
	Logger *slog.Logger
	// Audit records dispatch events.
	Audit audit.Logger
	// Runner executes list and call requests.
	Runner *Runner
	// Name and Version identify the server.
	Name    string
	Version string
	// Protocol pins the protocol revision.
	Protocol string
	// Tenant scopes every call. Nil runs calls without a tenant.
	Tenant *tenant.Ctx
}

// Build lists the component tools and registers each on a new server.
func (b Builder) Build(ctx context.Context, component string) (*mcp.Server, []ToolRef, error) {
	if b.Runner == nil {
		return nil, nil, fmt.Errorf("runner is nil")
	}
	env := b.Runner.Run(ctx, Request{Component: component, Operation: string(OperationList), Tenant: b.tenant(""), Protocol: b.Protocol})
	if !env.OK {
		return nil, nil, fmt.Errorf("list tools of %s: %s", component, env.Error.Message)
	}

	name := b.Name
	if strings.TrimSpace(name) == "" {
		name = "mcp-exec"
	}
	server := mcp.NewServer(&mcp.Implementation{Name: name, Version: b.Version}, nil)

	comp := b.Runner.cfg.component(component)
	refs := make([]ToolRef, 0, len(env.List.Tools))
	for _, tool := range env.List.Tools {
		mcpTool, err := toMCPTool(tool)
		if err != nil {
			return nil, nil, fmt.Errorf("tool %s: %w", tool.Name, err)
		}
		server.AddTool(mcpTool, b.handler(component, tool.Name))
		refs = append(refs, ToolRef{Name: tool.Name, Component: component, LegacyEntry: comp.LegacyEntry, Secrets: comp.Secrets})
	}
	if b.Logger != nil {
		b.Logger.Info("mcp server built", "component", component, "tools", len(refs))
	}
	return server, refs, nil
}

func (b Builder) handler(component, tool string) mcp.ToolHandler {
	return func(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		var args json.RawMessage
		if req != nil && req.Params != nil {
			args = req.Params.Arguments
		}
		tc := b.tenant(correlationID(args))
		if b.Audit != nil {
			event := audit.Event{Type: audit.EventDispatch, Component: component, Tool: tool}
			if tc != nil {
				event.Tenant, event.CorrelationID = tc.Tenant, tc.CorrelationID
			}
			b.Audit.Record(ctx, event)
		}
		env := b.Runner.Run(ctx, Request{
			Component: component,
			Action:    tool,
			Operation: string(OperationCall),
			Arguments: args,
			Tenant:    tc,
			Protocol:  b.Protocol,
		})
		return toCallToolResult(env), nil
	}
}

// tenant returns a fresh copy of the configured tenant for one request.
func (b Builder) tenant(correlation string) *tenant.Ctx {
	if b.Tenant == nil {
		return nil
	}
	tc := *b.Tenant
	tc.TraceID = ""
	tc.CorrelationID = correlation
	tc.Attempt = 0
	tc = tc.WithDefaults()
	return &tc
}

func toMCPTool(tool protocol.Tool) (*mcp.Tool, error) {
	input, err := objectSchema(tool.InputSchema)
	if err != nil {
		return nil, fmt.Errorf("input schema: %w", err)
	}
	out := &mcp.Tool{
		Name:        tool.Name,
		Description: tool.Description,
		InputSchema: input,
		Annotations: buildAnnotations(tool.Annotations),
	}
	if tool.Title != nil {
		out.Title = *tool.Title
	}
	if len(tool.OutputSchema) > 0 {
		output, err := objectSchema(tool.OutputSchema)
		if err == nil {
			out.OutputSchema = output
		}
	}
	if len(tool.Meta) > 0 {
		out.Meta = make(mcp.Meta, len(tool.Meta))
		for key, value := range tool.Meta {
			out.Meta[key] = value
		}
	}
	return out, nil
}

// objectSchema decodes raw into a schema map with type object.
func objectSchema(raw json.RawMessage) (map[string]any, error) {
	schema := map[string]any{}
	if len(raw) > 0 && string(raw) != "null" {
		if err := json.Unmarshal(raw, &schema); err != nil {
			return nil, err
		}
	}
	if _, ok := schema["type"]; !ok {
		schema["type"] = "object"
	}
	if schema["type"] != "object" {
		return nil, fmt.Errorf("schema type must be object, got %v", schema["type"])
	}
	return schema, nil
}

func buildAnnotations(cfg *protocol.ToolAnnotations) *mcp.ToolAnnotations {
	if cfg == nil {
		return nil
	}
	out := &mcp.ToolAnnotations{DestructiveHint: cfg.Destructive}
	if cfg.ReadOnly != nil {
		out.ReadOnlyHint = *cfg.ReadOnly
	}
	return out
}

func toCallToolResult(env protocol.Envelope) *mcp.CallToolResult {
	switch {
	case env.Error != nil:
		body, _ := json.Marshal(env)
		return &mcp.CallToolResult{
			IsError: true,
			Content: []mcp.Content{&mcp.TextContent{Text: string(body)}},
		}
	case env.Elicitation != nil:
		result := &mcp.CallToolResult{Content: toMCPContent(env.Messages)}
		result.StructuredContent = map[string]any{"elicitation": env.Elicitation}
		return result
	case env.Call != nil:
		result := &mcp.CallToolResult{Content: toMCPContent(env.Call.Content)}
		if len(env.Call.StructuredContent) > 0 {
			result.StructuredContent = env.Call.StructuredContent
		}
		if env.Call.IsError != nil {
			result.IsError = *env.Call.IsError
		}
		if len(env.Call.Meta) > 0 {
			result.Meta = make(mcp.Meta, len(env.Call.Meta))
			for key, value := range env.Call.Meta {
				result.Meta[key] = value
			}
		}
		return result
	default:
		return &mcp.CallToolResult{Content: []mcp.Content{}}
	}
}

func toMCPContent(blocks []protocol.Content) []mcp.Content {
	out := make([]mcp.Content, 0, len(blocks))
	for _, block := range blocks {
		switch block.Type {
		case protocol.ContentImage:
			out = append(out, &mcp.ImageContent{Data: decodeData(block.Data), MIMEType: block.MIMEType})
		case protocol.ContentAudio:
			out = append(out, &mcp.AudioContent{Data: decodeData(block.Data), MIMEType: block.MIMEType})
		case protocol.ContentResourceLink:
			name := block.Title
			if name == "" {
				name = block.URI
			}
			out = append(out, &mcp.ResourceLink{
				URI:         block.URI,
				Name:        name,
				Title:       block.Title,
				Description: block.Description,
				MIMEType:    block.MIMEType,
			})
		case protocol.ContentResource:
			contents := &mcp.ResourceContents{URI: block.URI, MIMEType: block.MIMEType, Text: block.Text}
			if block.Data != "" {
				contents.Blob = decodeData(block.Data)
			}
			out = append(out, &mcp.EmbeddedResource{Resource: contents})
		default:
			out = append(out, &mcp.TextContent{Text: block.Text})
		}
	}
	return out
}

// decodeData returns the raw bytes of a base64 payload, or the payload
// itself when it is not valid base64.
func decodeData(data string) []byte {
	raw, err := base64.StdEncoding.DecodeString(data)
	if err != nil {
		return []byte(data)
	}
	return raw
}

func correlationID(args json.RawMessage) string {
	if len(args) == 0 {
		return ""
	}
	var probe struct {
		CorrelationID string `json:"correlation_id"`
		RequestID     string `json:"request_id"`
	}
	if err := json.Unmarshal(args, &probe); err != nil {
		return ""
	}
	if probe.CorrelationID != "" {
		return probe.CorrelationID
	}
	return probe.RequestID
}
