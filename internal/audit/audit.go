package audit

import (
	"context"
	"log/slog"
	"sync"
)

// Event types.
const (
	EventResolve      = "resolve"
	EventVerifyFailed = "verify_failed"
	EventDispatch     = "dispatch"
	EventRetry        = "retry"
	EventExecOK       = "exec_ok"
	EventExecError    = "exec_error"
	EventCacheHit     = "cache_hit"
	EventCacheStore   = "cache_store"
)

// Event represents an audit entry for one pipeline stage.
type Event struct {
	// Type describes the event kind.
	Type string
	// Component is the component locator.
	Component string
	// Tool is the tool name.
	Tool string
	// Tenant is the tenant id, when known.
	Tenant string
	// CorrelationID links related events.
	CorrelationID string
	// Attempt is the zero-based attempt counter.
	Attempt int
	// Digest is the artifact digest, when resolved.
	Digest string
	// Reason provides additional context.
	Reason string
}

// Logger records audit events.
type Logger interface {
	// Record stores an audit event.
	Record(ctx context.Context, event Event)
}

// StdLogger writes audit events to slog.
type StdLogger struct {
	logger *slog.Logger
}

// New returns a StdLogger.
func New(logger *slog.Logger) *StdLogger {
	return &StdLogger{logger: logger}
}

// Record logs an audit event.
func (l *StdLogger) Record(ctx context.Context, event Event) {
	if l == nil || l.logger == nil {
		return
	}
	l.logger.InfoContext(ctx, "audit",
		"type", event.Type,
		"component", event.Component,
		"tool", event.Tool,
		"tenant", event.Tenant,
		"correlation_id", event.CorrelationID,
		"attempt", event.Attempt,
		"digest", event.Digest,
		"reason", event.Reason,
	)
}

// Recorder collects events in memory.
type Recorder struct {
	mu     sync.Mutex
	Events []Event
}

// Record implements Logger.
func (r *Recorder) Record(_ context.Context, event Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Events = append(r.Events, event)
}

// Types returns the recorded event types in order.
func (r *Recorder) Types() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.Events))
	for _, e := range r.Events {
		out = append(out, e.Type)
	}
	return out
}
