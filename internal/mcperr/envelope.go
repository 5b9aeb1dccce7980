package mcperr

import (
	"maps"
	"net/http"
	"strings"

	"github.com/codex-k8s/mcp-exec/internal/protocol"
)

// Guest tool-error kinds and the statuses they map to. Both the short names
// and the router interface names are accepted.
var toolErrorStatus = map[string]int{
	"bad-input":          http.StatusBadRequest,
	"invalid-parameters": http.StatusBadRequest,
	"not-found":          http.StatusNotFound,
	"invalid-state":      http.StatusUnprocessableEntity,
	"schema-error":       http.StatusUnprocessableEntity,
	"internal":           http.StatusInternalServerError,
	"execution-error":    http.StatusInternalServerError,
}

// StatusForToolKind maps a guest-declared error kind to a status.
// Unknown kinds are internal errors.
func StatusForToolKind(kind string) int {
	normalized := strings.ReplaceAll(strings.ToLower(strings.TrimSpace(kind)), "_", "-")
	if status, ok := toolErrorStatus[normalized]; ok {
		return status
	}
	return http.StatusInternalServerError
}

// Code returns the envelope code and status for err.
func Code(err *Error) (string, int) {
	switch err.Kind {
	case KindToolError:
		return protocol.CodeToolError, statusOr(err.Status, http.StatusInternalServerError)
	case KindConfigError:
		return protocol.CodeConfigError, statusOr(err.Status, http.StatusBadRequest)
	case KindResolutionFailed:
		return protocol.CodeConfigError, statusOr(err.Status, http.StatusNotFound)
	case KindVerificationFailed:
		return protocol.CodeConfigError, statusOr(err.Status, http.StatusForbidden)
	case KindUnsupported:
		return protocol.CodeRouterError, statusOr(err.Status, http.StatusNotImplemented)
	default:
		return protocol.CodeRouterError, statusOr(err.Status, http.StatusBadGateway)
	}
}

// Envelope normalizes any error into the external error envelope.
func Envelope(err error, rev protocol.Revision) protocol.Envelope {
	mapped, ok := As(err)
	if !ok {
		mapped = RouterError("", err)
	}
	code, status := Code(mapped)

	message := mapped.Message
	if message == "" && mapped.Err != nil {
		message = mapped.Err.Error()
	} else if mapped.Err != nil && mapped.Kind != KindToolError {
		message = message + ": " + mapped.Err.Error()
	}

	var details any
	if len(mapped.Details) > 0 || mapped.Transient {
		d := maps.Clone(mapped.Details)
		if d == nil {
			d = map[string]any{}
		}
		if mapped.Transient {
			d["transient"] = true
		}
		details = d
	}

	return protocol.Envelope{
		Error: &protocol.ErrorBody{
			Code:     code,
			Message:  message,
			Status:   status,
			Tool:     mapped.Tool,
			Protocol: rev.String(),
			Details:  details,
		},
	}
}

func statusOr(status, def int) int {
	if status == 0 {
		return def
	}
	return status
}
