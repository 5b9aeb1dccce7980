package protocol

// The types below mirror what a router guest writes across the sandbox
// boundary. Schemas, structured content and meta values travel as JSON
// encoded strings.

// WireTool is a tool as declared by list-tools.
type WireTool struct {
	Name         string           `json:"name"`
	Title        *string          `json:"title,omitempty"`
	Description  string           `json:"description"`
	InputSchema  string           `json:"input_schema"`
	OutputSchema *string          `json:"output_schema,omitempty"`
	Annotations  *ToolAnnotations `json:"annotations,omitempty"`
	Meta         []MetaEntry      `json:"meta,omitempty"`
}

// WireToolResult is a completed call-tool response.
type WireToolResult struct {
	Content           []Content   `json:"content"`
	StructuredContent *string     `json:"structured_content,omitempty"`
	Progress          []Progress  `json:"progress,omitempty"`
	Meta              []MetaEntry `json:"meta,omitempty"`
	IsError           *bool       `json:"is_error,omitempty"`
}

// WireElicitation is a follow-up request emitted by call-tool.
type WireElicitation struct {
	Title       *string      `json:"title,omitempty"`
	Message     string       `json:"message"`
	Schema      string       `json:"schema"`
	Annotations *Annotations `json:"annotations,omitempty"`
	Meta        []MetaEntry  `json:"meta,omitempty"`
}

// WireToolError is a guest-declared tool failure.
type WireToolError struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

// WireResponse is the call-tool result. Exactly one field is set.
type WireResponse struct {
	Completed *WireToolResult  `json:"completed,omitempty"`
	Elicit    *WireElicitation `json:"elicit,omitempty"`
	Error     *WireToolError   `json:"error,omitempty"`
}
