package protocol

import "encoding/json"

// Content block types.
const (
	ContentText         = "text"
	ContentImage        = "image"
	ContentAudio        = "audio"
	ContentResource     = "resource"
	ContentResourceLink = "resource_link"
)

// Error codes used in error envelopes.
const (
	CodeToolError   = "MCP_TOOL_ERROR"
	CodeRouterError = "MCP_ROUTER_ERROR"
	CodeConfigError = "MCP_CONFIG_ERROR"
)

// Annotations are audience and priority hints attached to content.
type Annotations struct {
	// Audience lists intended roles (user, assistant).
	Audience []string `json:"audience,omitempty"`
	// Priority ranks the content between 0 and 1.
	Priority *float64 `json:"priority,omitempty"`
	// Timestamp is an RFC 3339 modification time.
	Timestamp *string `json:"timestamp,omitempty"`
}

// ToolAnnotations are behavior hints declared by a tool.
type ToolAnnotations struct {
	ReadOnly     *bool `json:"read_only,omitempty"`
	Destructive  *bool `json:"destructive,omitempty"`
	Streaming    *bool `json:"streaming,omitempty"`
	Experimental *bool `json:"experimental,omitempty"`
}

// Progress is a progress notification reported alongside a result.
type Progress struct {
	Progress    float64      `json:"progress"`
	Message     *string      `json:"message,omitempty"`
	Annotations *Annotations `json:"annotations,omitempty"`
}

// MetaEntry is a key with a JSON-encoded value.
type MetaEntry struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

// Tool is one entry of a rendered tool catalog.
type Tool struct {
	Name         string                     `json:"name"`
	Title        *string                    `json:"title,omitempty"`
	Description  string                     `json:"description"`
	InputSchema  json.RawMessage            `json:"input_schema"`
	OutputSchema json.RawMessage            `json:"output_schema,omitempty"`
	Annotations  *ToolAnnotations           `json:"annotations,omitempty"`
	Meta         map[string]json.RawMessage `json:"meta,omitempty"`
}

// Content is a typed content block. Binary payloads are base64 encoded.
type Content struct {
	Type        string       `json:"type"`
	Text        string       `json:"text,omitempty"`
	Data        string       `json:"data,omitempty"`
	MIMEType    string       `json:"mime_type,omitempty"`
	URI         string       `json:"uri,omitempty"`
	Title       string       `json:"title,omitempty"`
	Description string       `json:"description,omitempty"`
	Annotations *Annotations `json:"annotations,omitempty"`
}

// ListResult is the result body of a list envelope.
type ListResult struct {
	Tools    []Tool `json:"tools"`
	Protocol string `json:"protocol"`
}

// CallResult is the result body of a completed call envelope.
type CallResult struct {
	Content           []Content                  `json:"content"`
	StructuredContent json.RawMessage            `json:"structured_content,omitempty"`
	Progress          []Progress                 `json:"progress,omitempty"`
	Meta              map[string]json.RawMessage `json:"meta,omitempty"`
	IsError           *bool                      `json:"is_error,omitempty"`
	Annotations       *Annotations               `json:"annotations,omitempty"`
}

// Elicitation asks the caller for more input instead of completing.
type Elicitation struct {
	Title       *string                    `json:"title,omitempty"`
	Message     string                     `json:"message"`
	Schema      json.RawMessage            `json:"schema,omitempty"`
	Annotations *Annotations               `json:"annotations,omitempty"`
	Meta        map[string]json.RawMessage `json:"meta,omitempty"`
}

// ErrorBody is the error section of an error envelope.
type ErrorBody struct {
	Code     string `json:"code"`
	Message  string `json:"message"`
	Status   int    `json:"status"`
	Tool     string `json:"tool,omitempty"`
	Protocol string `json:"protocol,omitempty"`
	Details  any    `json:"details,omitempty"`
}

// Envelope is the normalized response returned to callers. Exactly one of
// List, Call, Elicitation or Error is set.
type Envelope struct {
	OK          bool
	List        *ListResult
	Call        *CallResult
	Elicitation *Elicitation
	Messages    []Content
	Protocol    string
	Error       *ErrorBody
}

// MarshalJSON renders the envelope in the shape matching its variant.
func (e Envelope) MarshalJSON() ([]byte, error) {
	messages := e.Messages
	if messages == nil {
		messages = []Content{}
	}
	switch {
	case e.Error != nil:
		return json.Marshal(struct {
			OK    bool       `json:"ok"`
			Error *ErrorBody `json:"error"`
		}{OK: false, Error: e.Error})
	case e.Elicitation != nil:
		return json.Marshal(struct {
			OK          bool         `json:"ok"`
			Elicitation *Elicitation `json:"elicitation"`
			Messages    []Content    `json:"messages"`
			Protocol    string       `json:"protocol"`
		}{OK: true, Elicitation: e.Elicitation, Messages: messages, Protocol: e.Protocol})
	case e.Call != nil:
		return json.Marshal(struct {
			OK       bool        `json:"ok"`
			Result   *CallResult `json:"result"`
			Messages []Content   `json:"messages"`
			Protocol string      `json:"protocol"`
		}{OK: true, Result: e.Call, Messages: messages, Protocol: e.Protocol})
	default:
		list := e.List
		if list == nil {
			list = &ListResult{Tools: []Tool{}, Protocol: e.Protocol}
		}
		return json.Marshal(struct {
			OK     bool        `json:"ok"`
			Result *ListResult `json:"result"`
		}{OK: true, Result: list})
	}
}
