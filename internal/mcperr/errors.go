package mcperr

import (
	"errors"
	"fmt"
)

// Kind classifies a failure by the layer that produced it.
type Kind int

// Failure kinds.
const (
	KindToolError Kind = iota + 1
	KindRouterError
	KindConfigError
	KindResolutionFailed
	KindVerificationFailed
	KindUnsupported
)

// String returns the kind label used in logs.
func (k Kind) String() string {
	switch k {
	case KindToolError:
		return "tool_error"
	case KindRouterError:
		return "router_error"
	case KindConfigError:
		return "config_error"
	case KindResolutionFailed:
		return "resolution_failed"
	case KindVerificationFailed:
		return "verification_failed"
	case KindUnsupported:
		return "unsupported"
	default:
		return "unknown"
	}
}

// Error is the failure type shared by every layer of the pipeline.
type Error struct {
	// Kind is the failure class.
	Kind Kind
	// Status is the HTTP-like status; zero selects the kind default.
	Status int
	// Message is a human-readable description.
	Message string
	// Tool is the tool name, when known.
	Tool string
	// Details carries structured diagnostics.
	Details map[string]any
	// Transient marks failures that may succeed on retry.
	Transient bool
	// Err is the underlying cause.
	Err error
}

func (e *Error) Error() string {
	if e.Err != nil && e.Message != "" {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Kind, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// WithTool returns a copy of e that names tool.
func (e *Error) WithTool(tool string) *Error {
	if e == nil {
		return nil
	}
	cp := *e
	if cp.Tool == "" {
		cp.Tool = tool
	}
	return &cp
}

// ToolError is a permanent, guest-declared failure.
func ToolError(status int, message string) *Error {
	return &Error{Kind: KindToolError, Status: status, Message: message}
}

// RouterError is a fault at the sandbox boundary: trap, missing export,
// undecodable guest output.
func RouterError(message string, err error) *Error {
	return &Error{Kind: KindRouterError, Message: message, Err: err}
}

// ConfigError reports malformed caller input.
func ConfigError(message string, details map[string]any) *Error {
	return &Error{Kind: KindConfigError, Message: message, Details: details}
}

// ResolutionFailed reports an artifact that could not be obtained.
func ResolutionFailed(locator string, transient bool, err error) *Error {
	return &Error{
		Kind:      KindResolutionFailed,
		Message:   fmt.Sprintf("resolve %s", locator),
		Details:   map[string]any{"stage": "resolve", "component": locator},
		Transient: transient,
		Err:       err,
	}
}

// VerificationFailed reports a policy violation.
func VerificationFailed(locator, reason string) *Error {
	return &Error{
		Kind:    KindVerificationFailed,
		Message: fmt.Sprintf("verify %s: %s", locator, reason),
		Details: map[string]any{"stage": "verify", "component": locator, "reason": reason},
	}
}

// Unsupported reports an artifact without a known calling convention.
// exports is passed through verbatim.
func Unsupported(locator string, exports []string) *Error {
	if exports == nil {
		exports = []string{}
	}
	return &Error{
		Kind:    KindUnsupported,
		Message: fmt.Sprintf("component %s exports neither the router interface nor the legacy entry", locator),
		Details: map[string]any{"component": locator, "exports": exports},
	}
}

// As extracts an *Error from err.
func As(err error) (*Error, bool) {
	var target *Error
	if errors.As(err, &target) {
		return target, true
	}
	return nil, false
}

// IsTransient reports whether err may succeed on retry.
func IsTransient(err error) bool {
	if e, ok := As(err); ok {
		return e.Transient
	}
	return false
}
