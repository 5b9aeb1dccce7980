package protocol

import (
	"encoding/json"
	"strings"
)

// RenderTools converts a guest tool catalog into the shape for rev.
func RenderTools(tools []WireTool, rev Revision) []Tool {
	out := make([]Tool, 0, len(tools))
	for _, tool := range tools {
		rendered := Tool{
			Name:        tool.Name,
			Title:       tool.Title,
			Description: tool.Description,
			InputSchema: ParseJSONString(tool.InputSchema),
			Annotations: tool.Annotations,
			Meta:        MetaToMap(tool.Meta),
		}
		if tool.OutputSchema != nil {
			rendered.OutputSchema = ParseJSONString(*tool.OutputSchema)
		}
		if !rev.Supports(Revision20250618) {
			rendered.Title = nil
			rendered.OutputSchema = nil
		}
		out = append(out, rendered)
	}
	return out
}

// RenderResult converts a completed guest result and derives caller messages.
func RenderResult(result WireToolResult, rev Revision) (*CallResult, []Content) {
	content := make([]Content, 0, len(result.Content))
	messages := make([]Content, 0, len(result.Content))
	var annotations *Annotations
	for _, block := range result.Content {
		content = append(content, block)
		messages = append(messages, messageFor(block))
		if annotations == nil && block.Annotations != nil {
			annotations = block.Annotations
		}
	}

	rendered := &CallResult{
		Content:     content,
		Progress:    result.Progress,
		Meta:        MetaToMap(result.Meta),
		IsError:     result.IsError,
		Annotations: annotations,
	}
	if result.StructuredContent != nil && rev.Supports(Revision20250618) {
		rendered.StructuredContent = ParseJSONString(*result.StructuredContent)
	}
	return rendered, messages
}

// RenderElicitation converts a guest elicitation request.
func RenderElicitation(req WireElicitation) (*Elicitation, []Content) {
	return &Elicitation{
			Title:       req.Title,
			Message:     req.Message,
			Schema:      ParseJSONString(req.Schema),
			Annotations: req.Annotations,
			Meta:        MetaToMap(req.Meta),
		}, []Content{{
			Type: ContentText,
			Text: req.Message,
		}}
}

// ListEnvelope builds a successful list envelope.
func ListEnvelope(tools []Tool, rev Revision) Envelope {
	if tools == nil {
		tools = []Tool{}
	}
	return Envelope{
		OK:       true,
		List:     &ListResult{Tools: tools, Protocol: rev.String()},
		Protocol: rev.String(),
	}
}

// CallEnvelope builds a successful call envelope.
func CallEnvelope(result *CallResult, messages []Content, rev Revision) Envelope {
	return Envelope{OK: true, Call: result, Messages: messages, Protocol: rev.String()}
}

// ElicitationEnvelope builds an elicitation envelope.
func ElicitationEnvelope(req *Elicitation, messages []Content, rev Revision) Envelope {
	return Envelope{OK: true, Elicitation: req, Messages: messages, Protocol: rev.String()}
}

// ParseJSONString returns raw as JSON when it parses, otherwise as a JSON string.
func ParseJSONString(raw string) json.RawMessage {
	trimmed := strings.TrimSpace(raw)
	if trimmed != "" && json.Valid([]byte(trimmed)) {
		return json.RawMessage(trimmed)
	}
	quoted, _ := json.Marshal(raw)
	return quoted
}

// MetaToMap turns meta entries into an object; nil stays nil.
func MetaToMap(entries []MetaEntry) map[string]json.RawMessage {
	if entries == nil {
		return nil
	}
	out := make(map[string]json.RawMessage, len(entries))
	for _, entry := range entries {
		out[entry.Key] = ParseJSONString(entry.Value)
	}
	return out
}

func messageFor(block Content) Content {
	msg := Content{Type: block.Type}
	switch block.Type {
	case ContentText:
		msg.Text = block.Text
	case ContentImage, ContentAudio:
		msg.MIMEType = block.MIMEType
		msg.Data = block.Data
	case ContentResourceLink:
		msg.URI = block.URI
		msg.Title = block.Title
		msg.Description = block.Description
	case ContentResource:
		msg.URI = block.URI
		msg.Title = block.Title
		msg.Description = block.Description
		msg.MIMEType = block.MIMEType
	default:
		msg.Text = block.Text
	}
	return msg
}
